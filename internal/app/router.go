// internal/app/router.go
package app

import (
	customerHandler "bloom-payments/internal/handlers/customer"
	giftCardHandler "bloom-payments/internal/handlers/giftcard"
	orderHandler "bloom-payments/internal/handlers/order"
	reportHandler "bloom-payments/internal/handlers/report"
	settingsHandler "bloom-payments/internal/handlers/settings"
	transactionHandler "bloom-payments/internal/handlers/transaction"
	webhookHandler "bloom-payments/internal/handlers/webhook"
	wsHandler "bloom-payments/internal/handlers/websocket"
	"bloom-payments/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	TransactionHandler *transactionHandler.TransactionHandler
	ReportHandler      *reportHandler.ReportHandler
	CustomerHandler    *customerHandler.CustomerHandler
	GiftCardHandler    *giftCardHandler.GiftCardHandler
	SettingsHandler    *settingsHandler.SettingsHandler
	OrderHandler       *orderHandler.OrderHandler
	WebhookHandler     *webhookHandler.WebhookHandler
	WSHandler          *wsHandler.WebSocketHandler
	AuthMiddleware     *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Provider Webhooks ====================
	// Signed by the provider, no staff token
	webhooks := api.Group("/webhooks")
	{
		webhooks.POST("/stripe", h.WebhookHandler.Stripe)
		webhooks.POST("/square", h.WebhookHandler.Square)
	}

	// ==================== Transactions ====================
	transactions := api.Group("/transactions")
	transactions.Use(h.AuthMiddleware.Auth())
	{
		transactions.POST("", h.TransactionHandler.ProcessTransaction)
		transactions.GET("", h.TransactionHandler.SearchTransactions)
		transactions.GET("/:id", h.TransactionHandler.GetTransaction)
	}

	refunds := api.Group("/transactions")
	refunds.Use(h.AuthMiddleware.ManagerOnly()...)
	{
		refunds.POST("/:id/refunds", h.TransactionHandler.CreateRefund)
	}

	// ==================== Customers ====================
	customers := api.Group("/customers")
	customers.Use(h.AuthMiddleware.Auth())
	{
		customers.GET("/:id/saved-cards", h.CustomerHandler.ListSavedCards) // ?provider=STRIPE
	}

	// ==================== Gift Cards ====================
	giftCards := api.Group("/gift-cards")
	giftCards.Use(h.AuthMiddleware.Auth())
	{
		giftCards.GET("/:number", h.GiftCardHandler.GetBalance)
	}

	// ==================== Orders ====================
	orders := api.Group("/orders")
	orders.Use(h.AuthMiddleware.Auth())
	{
		orders.POST("/adjustment-check", h.OrderHandler.CheckAdjustment)
		orders.GET("/:id/settlement", h.OrderHandler.GetSettlement)
	}

	// ==================== MANAGER ROUTES ====================
	manager := api.Group("")
	manager.Use(h.AuthMiddleware.ManagerOnly()...)
	{
		reports := manager.Group("/reports")
		{
			reports.GET("/analytics", h.ReportHandler.GetAnalytics) // ?from=2026-05-01&to=2026-05-31
			reports.GET("/daily", h.ReportHandler.GetDailySummary)
			reports.GET("/export", h.ReportHandler.ExportTransactions)
		}

		settings := manager.Group("/settings/providers")
		{
			settings.GET("/:provider", h.SettingsHandler.GetProviderSettings)
			settings.PUT("/:provider", h.SettingsHandler.UpdateProviderSettings)
			settings.POST("/cache/invalidate", h.SettingsHandler.InvalidateProviderCache)
		}

		sockets := manager.Group("/ws")
		{
			sockets.GET("/stats", h.WSHandler.GetStats)
			sockets.POST("/alerts", h.WSHandler.BroadcastAlert)
			sockets.POST("/connections/:employee_id/disconnect", h.WSHandler.DisconnectEmployee)
		}
	}

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
