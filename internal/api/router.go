package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/storyscope/storyscope/internal/api/handler"
	"github.com/storyscope/storyscope/internal/api/middleware"
	"github.com/storyscope/storyscope/internal/config"
	"github.com/storyscope/storyscope/internal/logger"
	"github.com/storyscope/storyscope/internal/resilience/circuitbreaker"
	"github.com/storyscope/storyscope/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	cfg *config.Config,
	log *logger.Logger,
	db *gorm.DB,
	bookService *service.BookService,
	reportService *service.ReportService,
	breaker *circuitbreaker.CircuitBreaker,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))
	r.Use(middleware.RateLimit(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst))

	// Create handlers
	healthHandler := handler.NewHealthHandler(db, breaker)
	bookHandler := handler.NewBookHandler(bookService)
	reportHandler := handler.NewReportHandler(reportService)
	adminHandler := handler.NewAdminHandler(breaker)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Books
		v1.POST("/books", bookHandler.Create)
		v1.GET("/books", bookHandler.List)
		v1.GET("/books/:id", bookHandler.Get)

		// Analysis
		v1.POST("/books/:id/analyze", reportHandler.Submit)
		v1.POST("/reports", reportHandler.SubmitBody)
		v1.GET("/reports/:id/status", reportHandler.Status)
		v1.GET("/reports/:id", reportHandler.Get)

		// Admin
		admin := v1.Group("/admin", middleware.AdminAuth(cfg.Admin.Token))
		{
			admin.GET("/breaker", adminHandler.BreakerStatus)
			admin.POST("/breaker/open", adminHandler.BreakerForceOpen)
			admin.POST("/breaker/close", adminHandler.BreakerForceClose)
			admin.POST("/breaker/reset", adminHandler.BreakerReset)
		}
	}

	return r
}
