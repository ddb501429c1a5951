package router

import (
	"github.com/ManuelReschke/creditsync/app/controllers"
	"github.com/gofiber/fiber/v2"
)

// Router installs one group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers and credentials the routers need.
type Dependencies struct {
	Webhooks        *controllers.WebhookController
	Credits         *controllers.CreditsController
	MetricsUser     string
	MetricsPassword string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app,
		NewOpsRouter(deps.MetricsUser, deps.MetricsPassword),
		NewWebhookRouter(deps.Webhooks),
		NewApiRouter(deps.Credits, deps.MetricsUser, deps.MetricsPassword),
	)
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
