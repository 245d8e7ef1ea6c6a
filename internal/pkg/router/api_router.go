package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ConsultLedger/app/controllers"
	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:          env.GetEnvInt("API_RATE_LIMIT", 120),
		Expiration:   time.Minute,
		KeyGenerator: rateLimitKey,
		Storage:      h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Too many requests",
			})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})
	api.Get("/ping", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"success": true,
			"message": "pong",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(h.deps.Users), middleware.RequireOperator)
	controllers.RegisterBillingRoutes(v1, h.deps.Billing, middleware.RequireAdmin)
	controllers.RegisterOperatorRoutes(v1, controllers.NewOperatorController(h.deps.Users), middleware.RequireAdmin)
	if h.deps.Jobs != nil {
		controllers.RegisterQueueRoutes(v1, controllers.NewAdminQueueController(h.deps.Jobs), middleware.RequireAdmin)
	}
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

// rateLimitKey buckets authenticated callers by key id and everyone else by IP.
func rateLimitKey(c *fiber.Ctx) string {
	raw := strings.TrimSpace(c.Get("X-API-Key"))
	if raw == "" {
		auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			raw = strings.TrimSpace(auth[7:])
		}
	}
	if keyID, _, ok := models.SplitAPIKey(raw); ok {
		return "key:" + keyID
	}
	return "ip:" + c.IP()
}
