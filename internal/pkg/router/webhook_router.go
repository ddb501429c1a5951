package router

import (
	"github.com/ManuelReschke/creditsync/app/controllers"
	"github.com/gofiber/fiber/v2"
)

type WebhookRouter struct {
	controller *controllers.WebhookController
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/stripe", h.controller.HandleStripeWebhook)
}

func NewWebhookRouter(controller *controllers.WebhookController) *WebhookRouter {
	return &WebhookRouter{controller: controller}
}
