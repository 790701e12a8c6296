package server

import (
	"net/http"
	"time"

	"user-directory/internal/config"
	"user-directory/internal/handlers"
	"user-directory/internal/logging"
	"user-directory/internal/middleware"
	"user-directory/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "directory_session"

func NewRouter(cfg *config.Config, h *handlers.Handler, log logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(log))
	r.Use(middleware.AccessLog(log, "/health"))

	// cors.New panics on an empty allow-list; no list means same-origin only.
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", middleware.HeaderRequestID},
			ExposeHeaders:    []string{middleware.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))

	adminOnly := middleware.Optional(cfg.AdminSessionRequired, middleware.RequireRole(models.RoleAdmin))

	api := r.Group("/api")
	{
		api.GET("/users", h.ListUsers)
		api.POST("/users", adminOnly, h.CreateUser)
		api.POST("/login", h.Login)
		api.POST("/logout", h.Logout)
		api.GET("/stats", h.Stats)
		api.GET("/audit", adminOnly, h.ListAuditLogs)
	}

	r.GET("/health", h.Health)

	if cfg.PublicDir != "" {
		r.NoRoute(staticFallback(cfg.PublicDir))
	}

	return r
}

// staticFallback serves the frontend for anything outside /api.
func staticFallback(dir string) gin.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			return
		}
		fs.ServeHTTP(c.Writer, c.Request)
	}
}
