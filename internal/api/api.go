package api

import (
	"context"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/api/handlers"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/api/middleware"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/metrics"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/service"
)

// NewRouter serves health, metrics and the run history. Runs started through
// POST /api/v1/runs live as long as runCtx.
func NewRouter(runCtx context.Context, svc *service.SegregationService, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	corsConfig := cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	runHandler := handlers.NewRunHandler(runCtx, svc)

	router.GET("/health", runHandler.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	runs := router.Group("/api/v1/runs")
	{
		runs.GET("", runHandler.ListRuns)
		runs.GET("/latest", runHandler.LatestRun)
		runs.POST("", runHandler.TriggerRun)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
