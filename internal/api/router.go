package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"crane-availability-backend/config"
	"crane-availability-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig, cache *mw.ResponseCache, limiter *mw.IPRateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log))

	if limiter == nil {
		limiter = mw.NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	}
	if cache == nil {
		cache = mw.NewResponseCache(cfg.CacheTTL())
	}
	caching := cache.Middleware()

	// API group
	api := r.Group("/api")
	api.Use(mw.RateLimiter(limiter), cache.PurgeOnWrite())
	{
		api.GET("/metrics", caching, h.GetMetrics)

		api.GET("/cranes", caching, h.ListCranes)
		api.POST("/cranes", h.CreateCrane)
		api.DELETE("/cranes/:id", h.DeleteCrane)
		api.POST("/cranes/:id/maintenance", h.StartMaintenance)
		api.POST("/cranes/:id/recover", h.ManualRecover)
		api.GET("/cranes/:id/conflicts", h.GetConflicts)

		api.POST("/bookings", h.CreateBooking)
		api.PUT("/bookings/:id", h.UpdateBooking)
		api.POST("/bookings/:id/cancel", h.CancelBooking)

		api.POST("/usage", h.LogUsage)
		api.GET("/usage/subcategories", h.ListSubcategories)
		api.POST("/usage/subcategories", h.CreateSubcategory)
		api.DELETE("/usage/subcategories/:id", h.DeactivateSubcategory)

		api.POST("/service-plans", h.CreateServicePlan)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()))
	}
}
