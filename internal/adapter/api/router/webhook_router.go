package router

import (
	"github.com/labstack/echo/v4"

	"vendora/internal/adapter/api/handler"
)

func SetupWebhookRouter(e *echo.Echo, webhookHandler *handler.WebhookHandler) {
	// Signature verification happens in the handler; Paystack calls this
	// without any auth header.
	e.POST("/v1/webhooks/paystack", webhookHandler.PaystackWebhook)
}
