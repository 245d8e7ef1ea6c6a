package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ConsultLedger/app/controllers"
	"github.com/ManuelReschke/ConsultLedger/app/repository"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies carries what the routers need from the application wiring.
// A nil LimiterStorage keeps the rate limiter in memory, a nil Jobs leaves the
// queue monitor unmounted.
type Dependencies struct {
	Billing        *controllers.BillingController
	Users          repository.UserRepository
	Jobs           controllers.JobInspector
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewOpsRouter(), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
