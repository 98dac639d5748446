package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mailkeep/core/internal/api/handlers"
	"github.com/mailkeep/core/internal/api/middleware"
	"github.com/mailkeep/core/internal/config"
	"github.com/mailkeep/core/internal/services"
)

// SetupRouter initializes and returns the Gin router with all routes configured
func SetupRouter(cfg *config.Config, orchestrator *services.Orchestrator, runService *services.RunService) (*gin.Engine, *middleware.APIKeyManager, error) {
	router := gin.Default()

	// 配置 CORS - 允许跨域请求
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.CORSOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.APIKeyHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Initialize API key manager
	apiKeyManager, err := middleware.NewAPIKeyManager(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}

	syncHandler := handlers.NewSyncHandler(orchestrator, runService)

	// Health check endpoint (no auth required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		// Apply API key middleware to all API routes
		api.Use(middleware.APIKeyMiddleware(apiKeyManager))

		api.GET("/accounts", syncHandler.ListAccounts)
		api.POST("/sync", syncHandler.TriggerSync)
		api.GET("/runs", syncHandler.ListRuns)
	}

	return router, apiKeyManager, nil
}
