package routes

import (
	"log/slog"
	"time"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/handlers"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/middleware"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// Options carries what the router needs beyond the handlers.
type Options struct {
	TriggerToken string
	RateLimit    int
	RedisClient  *redis.Client
	Started      time.Time
}

// SetupRoutes configures the routes for the application.
func SetupRoutes(
	router *gin.Engine,
	dispatchHandler *handlers.DispatchHandler,
	quotaHandler *handlers.QuotaHandler,
	collector *metrics.Collector,
	logger *slog.Logger,
	opts Options,
) {
	router.Use(middleware.RequestIDMiddleware(logger))
	router.Use(collector.GinMiddleware())

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.TriggerToken))
	v1.Use(middleware.RateLimitMiddleware(opts.RedisClient, opts.RateLimit, time.Minute))
	{
		dispatch := v1.Group("/dispatch")
		{
			dispatch.POST("/run", dispatchHandler.Run)
			dispatch.POST("/batch", dispatchHandler.Batch)
			dispatch.POST("/sweep", dispatchHandler.Sweep)
		}
		v1.GET("/quota/:salon_id", quotaHandler.GetUsage)
		v1.GET("/audit/:salon_id", quotaHandler.ListAudit)
	}

	router.GET("/health", handlers.HealthCheck(opts.Started))
	router.GET("/metrics", gin.WrapH(collector.Handler()))
}
