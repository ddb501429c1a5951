package router

import (
	"github.com/ManuelReschke/creditsync/app/controllers"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
	credits  *controllers.CreditsController
	user     string
	password string
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(), basicAuth(h.user, h.password))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "creditsync api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/users/:userID/credits", h.credits.HandleGetBalance)
}

func NewApiRouter(credits *controllers.CreditsController, user, password string) *ApiRouter {
	return &ApiRouter{credits: credits, user: user, password: password}
}
