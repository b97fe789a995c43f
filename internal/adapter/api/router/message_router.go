package router

import (
	"github.com/labstack/echo/v4"

	"vendora/internal/adapter/api/handler"
	"vendora/internal/adapter/api/middleware"
)

func SetupMessageRouter(e *echo.Echo, messageHandler *handler.MessageHandler, transportSecret string) {
	e.POST("/v1/messages/inbound", messageHandler.InboundMessage, middleware.TransportSecret(transportSecret))
	e.GET("/v1/ws", messageHandler.WebSocket)
}
