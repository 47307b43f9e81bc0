package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"pkt.systems/pslog"

	"focusflow/backend/internal/handler"
	"focusflow/backend/internal/middleware"
	"focusflow/backend/internal/service"
)

// New builds the HTTP API. Everything under /api/pomodoro and /api/auth/me
// requires a bearer token.
func New(
	logger pslog.Logger,
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	pomodoroHandler *handler.PomodoroHandler,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestLogger(logger), gin.Recovery(), middleware.CORS(corsOrigins))
	engine.GET("/health", health)

	requireAuth := middleware.Auth(authService)
	api := engine.Group("/api")
	registerAuthRoutes(api.Group("/auth"), authHandler, requireAuth)
	registerPomodoroRoutes(api.Group("/pomodoro", requireAuth), pomodoroHandler)

	return engine
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func registerAuthRoutes(group *gin.RouterGroup, h *handler.AuthHandler, requireAuth gin.HandlerFunc) {
	group.POST("/register", h.Register)
	group.POST("/login", h.Login)
	group.GET("/me", requireAuth, h.Me)
}

func registerPomodoroRoutes(group *gin.RouterGroup, h *handler.PomodoroHandler) {
	group.GET("/state", h.GetState)
	group.GET("/events", h.Events)
	group.GET("/history", h.GetHistory)
	group.GET("/stats", h.GetStats)

	// Mutations carry the client's baseVersion.
	group.POST("/start", h.Start)
	group.POST("/pause", h.Pause)
	group.POST("/reset", h.Reset)
	group.PUT("/settings", h.UpdateSettings)
}
