package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailprobe/api/handlers"
	"github.com/customeros/mailprobe/api/middleware"
	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/metrics"
	"github.com/customeros/mailprobe/internal/tracing"
	"github.com/customeros/mailprobe/services"
)

const apiPrefix = "/api/v1"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, cfg *config.AppConfig, log logger.Logger) {
	if s == nil {
		panic("Services cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	apiHandlers := handlers.InitHandlers(s, log)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Email Validation Service is running"})
	})
	r.GET("/health", handlers.HealthCheck)
	r.GET(cfg.MetricsPath, gin.WrapH(metrics.Handler()))

	api := r.Group(apiPrefix)
	if cfg.APIKey != "" {
		api.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
			HeaderName:  middleware.APIKeyHeader,
			ValidAPIKey: cfg.APIKey,
		}))
	}
	api.Use(middleware.CustomContextMiddleware("mailprobe"))
	api.Use(middleware.TracingMiddleware())
	{
		api.POST("/validate", apiHandlers.Validation.ValidateEmail())
		api.POST("/validate-batch", apiHandlers.Validation.ValidateBatch())
		api.GET("/validation-status/:id", apiHandlers.Validation.ValidationStatus())

		cache := api.Group("/cache")
		{
			cache.GET("/view/:namespace", apiHandlers.Admin.ViewCache())
			cache.DELETE("/clear/:namespace", apiHandlers.Admin.ClearCache())
		}

		breaker := api.Group("/circuit-breaker")
		{
			breaker.GET("", apiHandlers.Admin.CircuitBreakerMetrics())
			breaker.POST("/reset", apiHandlers.Admin.ResetCircuitBreaker())
		}

		api.GET("/ws/progress/:id", apiHandlers.Progress.Stream())
	}
}
