package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prepworks/examgate-backend/internal/config"
	"github.com/prepworks/examgate-backend/internal/handler"
	"github.com/prepworks/examgate-backend/internal/middleware"
	"github.com/prepworks/examgate-backend/internal/response"
	"github.com/prepworks/examgate-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Attempt     *handler.AttemptHandler
	AdminResult *handler.AdminResultHandler
	Monitor     *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public) ────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", handlers.Auth.Login)
	}

	// ─── 2. Attempt Group (Candidate JWT) ──────────────────────────────
	attempts := router.Group("/api/v1/attempts")
	attempts.Use(middleware.RequireCandidateJWT(authService))
	{
		attempts.POST("/start", handlers.Attempt.Start)
		attempts.POST("/:id/answer", handlers.Attempt.SaveAnswer)
		attempts.POST("/:id/finish", handlers.Attempt.Finish)
		attempts.POST("/:id/focus-violation", handlers.Attempt.FocusViolation)
		attempts.GET("/:id/result", handlers.Attempt.GetResult)
	}

	// ─── 3. Admin Group (Admin JWT) ────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/exams/:id/results", handlers.AdminResult.ListResults)
		adminAPI.GET("/exams/:id/results/export", handlers.AdminResult.ExportResults)
	}

	// ─── 4. WebSocket Group (Admin WS Auth) ────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAdminWSAuth(authService))
	{
		ws.GET("/admin/exams/:id/monitor", handlers.Monitor.MonitorExam)
	}

	return router
}
