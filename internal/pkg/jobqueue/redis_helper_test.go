package jobqueue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
)

// Redis-backed tests run in their own database so they never touch cache data.
const isolatedJobQueueTestRedisDB = 14

// resolveTestRedis returns the first reachable Redis address or skips the test.
func resolveTestRedis(t *testing.T) (string, string) {
	t.Helper()

	password := env.GetEnv("CACHE_PASSWORD", "")
	candidates := []string{
		fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		"cache:6379",
		"consultledger-cache:6379",
		"127.0.0.1:6379",
	}

	var lastErr error
	for _, addr := range candidates {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		_ = client.Close()
		if err == nil {
			return addr, password
		}
		lastErr = err
	}

	t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", lastErr)
	return "", ""
}

func newIsolatedRedisClient(t *testing.T, db int) *redis.Client {
	t.Helper()

	addr, password := resolveTestRedis(t)
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("failed to flush isolated redis db %d: %v", db, err)
	}

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return client
}
