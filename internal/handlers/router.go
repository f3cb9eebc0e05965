// Package handlers contains the HTTP handlers and routing.
package handlers

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterConfig holds the settings the router needs.
type RouterConfig struct {
	GinMode        string
	ServiceName    string
	ServiceAPIKey  string
	AllowedOrigins []string
	Production     bool
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(payments *PaymentHandler, subs *SubscriptionHandler, checkout *CheckoutHandler, cfg RouterConfig) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(CORSMiddleware(cfg.AllowedOrigins))
	router.Use(RequestIDMiddleware())

	// Health check (public)
	router.GET("/health", payments.Health)

	// API v1 routes (requires Bearer auth)
	v1 := router.Group("/api/v1")
	v1.Use(ServiceAuthMiddleware(cfg.ServiceAPIKey, cfg.Production))
	{
		s := v1.Group("/subscriptions")
		s.POST("", subs.Create)
		s.GET("/:user_id", subs.GetActive)
		s.POST("/:user_id/cancel", subs.Cancel)

		co := v1.Group("/checkout")
		co.POST("/subscriptions/:subscription_id", checkout.PaySubscription)
		co.POST("/orders/:order_id", checkout.PayOrder)

		v1.GET("/payments/:charge_id", checkout.GetCharge)
	}

	// Webhook endpoint (public, authenticated by token or signature)
	router.POST("/webhooks/payments", payments.HandleWebhook)

	return router
}
