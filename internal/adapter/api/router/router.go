package router

import (
	"github.com/labstack/echo/v4"

	"vendora/internal/adapter/api/handler"
	"vendora/internal/adapter/api/middleware"
)

type Handlers struct {
	Health  *handler.HealthHandler
	Webhook *handler.WebhookHandler
	Message *handler.MessageHandler
	Admin   *handler.AdminHandler
}

func Setup(e *echo.Echo, h Handlers, authMiddleware *middleware.AuthMiddleware, transportSecret string) {
	SetupHealthRouter(e, h.Health)
	SetupWebhookRouter(e, h.Webhook)
	SetupMessageRouter(e, h.Message, transportSecret)
	SetupAdminRouter(e, h.Admin, authMiddleware)
}
