package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfwatch/backend/config"
	"github.com/shelfwatch/backend/internal/logger"
)

// SetupRouter creates and configures the Gin router. metrics may be nil.
func SetupRouter(cfg *config.Config, handler *Handler, log logger.Logger, metrics http.Handler) *gin.Engine {
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDMiddleware(log))
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	auth := AuthMiddleware(cfg.Review.JWTSecret, cfg.Server.IsProduction())

	v1 := router.Group("/api/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.POST("", handler.StartRun)
			runs.GET("", handler.ListRuns)
			runs.GET("/:id", handler.GetRun)
		}

		products := v1.Group("/products")
		{
			products.GET("", handler.ListProducts)
			products.GET("/:id", handler.GetProduct)
			products.POST("/:id/archive", auth, handler.ArchiveProduct)
			products.POST("/:id/publish", auth, handler.PublishProduct)
		}

		v1.GET("/updates", handler.ListUpdates)
		v1.GET("/patterns/:retailer", handler.PatternStats)

		reviews := v1.Group("/reviews")
		{
			reviews.GET("", handler.ListReviews)
			reviews.GET("/:id", handler.GetReview)
			reviews.POST("/:id/decision", auth, handler.DecideReview)
		}
	}

	return router
}
