package router

import (
	"github.com/ManuelReschke/creditsync/app/controllers"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
)

// OpsRouter serves health and metrics endpoints.
type OpsRouter struct {
	user     string
	password string
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", controllers.HandleHealthz)

	metrics := app.Group("/metrics", basicAuth(h.user, h.password))
	metrics.Get("/webhooks", controllers.HandleWebhookStats)
	metrics.Get("/", monitor.New())
}

func NewOpsRouter(user, password string) *OpsRouter {
	return &OpsRouter{user: user, password: password}
}

func basicAuth(user, password string) fiber.Handler {
	return basicauth.New(basicauth.Config{
		Users: map[string]string{
			user: password,
		},
	})
}
