package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sykell/url-scraper/internal/auth"
	"github.com/sykell/url-scraper/internal/crawler"
	"github.com/sykell/url-scraper/internal/export"
	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/middleware"
	"github.com/sykell/url-scraper/internal/scheduler"
	"github.com/sykell/url-scraper/internal/service"
)

// Handlers holds everything the API routes depend on
type Handlers struct {
	Gate        *auth.Gate
	Sessions    *service.SessionStore
	Coordinator *crawler.Coordinator
	Renderer    *export.Renderer
	Scheduler   *scheduler.Scheduler
	Log         logger.Logger
}

// Register mounts the /api routes on r. Everything except login requires a
// bearer token.
func Register(r gin.IRouter, h Handlers) {
	apiGroup := r.Group("/api")
	apiGroup.POST("/login", LoginHandler(h.Gate, h.Log))

	authorized := apiGroup.Group("")
	authorized.Use(middleware.JWTRequired(h.Gate, h.Log))
	{
		authorized.POST("/logout", LogoutHandler(h.Gate, h.Log))
		authorized.GET("/dashboard", DashboardHandler(h.Sessions, h.Log))
		authorized.GET("/sessions", ListSessionsHandler(h.Sessions, h.Log))

		authorized.POST("/scrape", ScrapeHandler(h.Coordinator, h.Log))
		authorized.POST("/scrape/batch", BatchHandler(h.Coordinator, h.Log))

		authorized.GET("/session/:id", GetSessionHandler(h.Sessions, h.Log))
		authorized.GET("/session/:id/export", ExportHandler(h.Renderer, h.Log))
		authorized.DELETE("/session/:id", DeleteSessionHandler(h.Sessions, h.Log))

		if h.Scheduler != nil {
			authorized.GET("/tasks", ListTasksHandler(h.Scheduler, h.Log))
			authorized.POST("/tasks", CreateTaskHandler(h.Scheduler, h.Log))
			authorized.POST("/tasks/:id/pause", TaskActionHandler(h.Scheduler.Pause, h.Log))
			authorized.POST("/tasks/:id/resume", TaskActionHandler(h.Scheduler.Resume, h.Log))
			authorized.POST("/tasks/:id/run", RunTaskHandler(h.Scheduler, h.Log))
			authorized.DELETE("/tasks/:id", TaskActionHandler(h.Scheduler.Delete, h.Log))
		}
	}
}
