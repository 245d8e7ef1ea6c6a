package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/ConsultLedger/app/controllers"
	"github.com/ManuelReschke/ConsultLedger/app/repository"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/cache"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/database"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/router"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/s3backup"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/scheduler"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
		if err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	shutdown()
}

// NewApplication wires storage, billing, background jobs and HTTP routes.
// The returned func stops the background workers.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	jobs := jobqueue.GetManager()
	archiveCfg, err := s3backup.LoadConfig()
	if err != nil {
		log.Fatalf("S3 archive config: %v", err)
	}
	erp := jobqueue.NewERPClientFromEnv()

	svc := repository.GetGlobalFactory().NewBillingService(
		billing.WithTolerance(env.GetEnvInt64("BILLING_AMOUNT_TOLERANCE", billing.DefaultTolerance)),
		billing.WithSummaryCache(cache.NewStore(cache.GetClient()), time.Duration(env.GetEnvInt("BILLING_SUMMARY_CACHE_TTL", 300))*time.Second),
		billing.WithEventSink(jobqueue.NewEventSink(jobs.GetQueue(), erp != nil, archiveCfg.IsEnabled())),
	)

	handlers := jobqueue.Handlers{ERP: erp}
	if archiveCfg.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		client, err := s3backup.NewClient(ctx, archiveCfg)
		cancel()
		if err != nil {
			log.Fatalf("S3 archive client: %v", err)
		}
		handlers.Archive = jobqueue.NewLedgerArchiver(svc, client, archiveCfg.LedgerObjectKey)
	}
	jobs.Configure(handlers)
	jobs.Start()

	sweep, err := scheduler.NewIntegritySweep(svc, "").Start()
	if err != nil {
		log.Fatalf("Integrity scheduler: %v", err)
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "ConsultLedger",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
	}))

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Billing:        controllers.NewBillingController(svc),
		Users:          repository.GetGlobalFactory().GetUserRepository(),
		Jobs:           jobs.GetQueue(),
		LimiterStorage: router.NewLimiterStorage(),
	})

	return app, func() {
		sweep.Stop()
		jobs.Stop()
	}
}
