package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prepforge/billing-service/internal/api/rest/handlers"
	"github.com/prepforge/billing-service/internal/middleware"
	"github.com/prepforge/billing-service/pkg/logger"
)

// RouterDeps зависимости маршрутизатора, собранные в точке входа
type RouterDeps struct {
	BillingHandler *handlers.BillingHandler
	WebhookHandler *handlers.WebhookHandler
	AuthMiddleware *middleware.JWTMiddleware
	Registry       *prometheus.Registry
	Log            *logger.Logger
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestLogger(deps.Log))
	r.Use(gin.Recovery())

	// Endpoint для проверки работоспособности сервиса
	r.GET("/health", handlers.HealthCheck)

	// Prometheus метрики
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	// Пользовательское API биллинга, под аутентификацией
	v1 := r.Group("/api/v1")
	{
		billing := v1.Group("/billing")
		billing.Use(deps.AuthMiddleware.RequireAuth())
		{
			billing.POST("/checkout", deps.BillingHandler.CreateCheckout)
			billing.GET("/subscription", deps.BillingHandler.GetSubscription)
			billing.GET("/plans", deps.BillingHandler.ListPlans)
		}
	}

	// Вебхуки на корневом уровне роутера: аутентификация - подпись провайдера
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/stripe", deps.WebhookHandler.HandleStripeWebhook)
	}

	return r
}
