package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/avenika/study-helper/internal/auth"
	"github.com/avenika/study-helper/internal/chat"
	"github.com/avenika/study-helper/internal/models"
	"github.com/avenika/study-helper/internal/storage"
)

// RouterConfig carries everything the HTTP layer depends on.
type RouterConfig struct {
	Auth           *auth.Service
	Chat           *chat.Service
	Store          storage.Storage
	Logger         *zap.Logger
	Registry       *prometheus.Registry // nil disables /metrics
	AllowedOrigins []string
}

// NewRouter assembles the gin engine: recovery, request ids, request logging,
// CORS, the public auth endpoints and the token-protected API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(cfg.Logger))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))
	}

	ah := &authHandler{auth: cfg.Auth}
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", ah.register)
		authGroup.POST("/login", ah.login)
		authGroup.POST("/google", ah.google)
		authGroup.POST("/refresh", ah.refresh)
	}

	ch := &chatHandler{chat: cfg.Chat, logger: cfg.Logger}
	ph := &progressHandler{store: cfg.Store}

	protected := router.Group("/")
	protected.Use(auth.RequireAuth(cfg.Auth))
	{
		protected.POST("/chat/sessions", ch.createSession)
		protected.GET("/chat/sessions", ch.listSessions)
		protected.PATCH("/chat/sessions/:id", ch.renameSession)
		protected.DELETE("/chat/sessions/:id", ch.deleteSession)
		protected.GET("/chat/history", ch.history)
		protected.POST("/chat/ask", ch.ask)
		protected.GET("/progress", ph.get)
	}

	return router
}

// currentUser pulls the user RequireAuth put on the context. Handlers behind
// the protected group can rely on it being present.
func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
	}
	return user, ok
}
