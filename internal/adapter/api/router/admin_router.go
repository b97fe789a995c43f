package router

import (
	"github.com/labstack/echo/v4"

	"vendora/internal/adapter/api/handler"
	"vendora/internal/adapter/api/middleware"
)

func SetupAdminRouter(e *echo.Echo, adminHandler *handler.AdminHandler, authMiddleware *middleware.AuthMiddleware) {
	adminGroup := e.Group("/v1/admin", authMiddleware.Authenticate)

	adminGroup.GET("/transactions", adminHandler.ListTransactions)
	adminGroup.GET("/transactions/:reference", adminHandler.GetTransaction)
	adminGroup.POST("/transactions/:reference/verify", adminHandler.VerifyTransaction)
	adminGroup.POST("/transactions/:reference/release", adminHandler.ReleaseEscrow)
	adminGroup.POST("/transactions/:reference/refund", adminHandler.RefundTransaction)

	adminGroup.GET("/vendors/:id", adminHandler.GetVendor)
	adminGroup.PATCH("/vendors/:id/tier", adminHandler.UpdateVendorTier)
	adminGroup.POST("/vendors/promotions/run", adminHandler.RunPromotions)
}
