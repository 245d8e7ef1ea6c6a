package router

import (
	"net"
	"strconv"

	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/cache"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
)

// NewLimiterStorage keeps rate limiter counters in Redis so that every
// instance shares them. The cache uses DB 0, the limiter RATE_LIMIT_DB.
func NewLimiterStorage() *redis.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetEnvInt("RATE_LIMIT_DB", 2),
		Reset:    false,
	})
}
