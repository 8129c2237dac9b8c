package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/johnquangdev/meeting-memory/pkg/config"
)

// Router holds all handlers
type Router struct {
	cfg           *config.Config
	memoryHandler *Memory
	authRequired  echo.MiddlewareFunc
}

// NewRouter creates a new router with all handlers. authRequired may be
// nil, in which case the meeting routes are open (development mode).
func NewRouter(cfg *config.Config, memoryHandler *Memory, authRequired echo.MiddlewareFunc) *Router {
	return &Router{
		cfg:           cfg,
		memoryHandler: memoryHandler,
		authRequired:  authRequired,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", rt.healthCheck)

	// API v1 group
	v1 := e.Group("/v1")

	rt.setupMeetingRoutes(v1)
}

// setupMeetingRoutes configures the meeting memory routes
func (rt *Router) setupMeetingRoutes(g *echo.Group) {
	meetings := g.Group("/meetings")
	if rt.authRequired != nil {
		meetings.Use(rt.authRequired)
	}

	meetings.POST("/:id/utterances", rt.memoryHandler.AppendUtterance)
	meetings.POST("/:id/end", rt.memoryHandler.EndMeeting)
	meetings.POST("/:id/query", rt.memoryHandler.Query)
	meetings.GET("/:id/summary", rt.memoryHandler.GetSummary)
	meetings.GET("/:id/jobs", rt.memoryHandler.ListJobs)
}

// healthCheck returns health status
func (rt *Router) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"time":        time.Now().Format(time.RFC3339),
		"environment": rt.cfg.Server.Environment,
	})
}
