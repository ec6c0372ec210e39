package router

import (
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/handler"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/middleware"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/response"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Room        *handler.RoomHandler
	Submission  *handler.SubmissionHandler
	Stats       *handler.StatsHandler
	Monitor     *handler.MonitorHandler
	WS          *handler.WSHandler
	System      *handler.SystemHandler
	RateLimiter *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally. WS, SSE and /metrics are skipped.
	router.Use(middleware.Brotli())

	// ─── Health ────────────────────────────────────────────────────────
	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(middleware.NoStore(), middleware.RequireJWT(auth))

	teacherOnly := middleware.RequireRole(model.RoleTeacher)
	studentOnly := middleware.RequireRole(model.RoleStudent)
	limited := handlers.RateLimiter.Middleware()

	// ─── 1. Identity ───────────────────────────────────────────────────
	api.GET("/auth/me", handlers.Auth.Me)

	// ─── 2. Rooms ──────────────────────────────────────────────────────
	rooms := api.Group("/rooms")
	{
		rooms.POST("", teacherOnly, limited, handlers.Room.CreateRoom)
		rooms.GET("", teacherOnly, handlers.Room.ListRooms)
		rooms.GET("/:code", limited, handlers.Room.GetRoom)
		rooms.DELETE("/:code", teacherOnly, handlers.Room.DeleteRoom)
		rooms.POST("/:code/publish", teacherOnly, handlers.Room.TogglePublish)
		rooms.POST("/:code/start", teacherOnly, handlers.Room.StartExam)
		rooms.POST("/:code/end", teacherOnly, handlers.Room.EndExam)
		rooms.GET("/:code/participants", teacherOnly, handlers.Room.Participants)
		rooms.GET("/:code/monitor", teacherOnly, handlers.Monitor.MonitorRoomSSE)

		// Submissions
		rooms.GET("/:code/paper", studentOnly, handlers.Submission.GetPaper)
		rooms.GET("/:code/submissions", teacherOnly, handlers.Submission.ListSubmissions)
		rooms.GET("/:code/submissions/me", studentOnly, handlers.Submission.MySubmission)

		// Analytics
		rooms.GET("/:code/stats/summary", handlers.Stats.Summary)
		rooms.GET("/:code/stats/questions", handlers.Stats.Questions)
	}

	// ─── 3. WebSocket Group (token query param) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(auth))
	{
		ws.GET("/rooms", handlers.WS.RoomSocket)
	}

	return router
}
