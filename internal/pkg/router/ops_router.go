package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
)

// OpsRouter serves the operational endpoints outside the API.
type OpsRouter struct {
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	// fiber metrics
	user := env.GetEnv("METRICS_USER", "admin")
	password := env.GetEnv("METRICS_PASSWORD", "")
	if password == "" {
		log.Info("METRICS_PASSWORD not set, /metrics disabled")
		return
	}
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			user: password,
		},
	}), monitor.New(monitor.Config{Title: "ConsultLedger Metrics"}))
}

func NewOpsRouter() *OpsRouter {
	return &OpsRouter{}
}
