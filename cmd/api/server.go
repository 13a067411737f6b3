package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/restream/internal/broadcast"
	"github.com/therealutkarshpriyadarshi/restream/internal/logging"
	"github.com/therealutkarshpriyadarshi/restream/internal/middleware"
	"github.com/therealutkarshpriyadarshi/restream/internal/telemetry"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// sessionStore is the broadcast history backend
type sessionStore interface {
	ListSessions(ctx context.Context, limit, offset int) ([]*models.BroadcastSession, error)
	GetSession(ctx context.Context, id string) (*models.BroadcastSession, error)
}

// transcriptStore serves archived broadcast artifacts
type transcriptStore interface {
	Bucket() string
	Exists(ctx context.Context, objectName string) (bool, error)
	GetURL(ctx context.Context, objectName string) (string, error)
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// statusCache is told when the current broadcast is released
type statusCache interface {
	ClearCurrent(ctx context.Context) error
}

// Server is the control-panel API around one Supervisor
type Server struct {
	sup       *broadcast.Supervisor
	logs      *logRegistry
	telemetry telemetry.Source
	logger    *logging.Logger

	// Optional integrations; nil when disabled
	sessions    sessionStore
	transcripts transcriptStore
	cache       statusCache
	checks      map[string]func(context.Context) error

	stopTimeout time.Duration
	rateLimit   gin.HandlerFunc
}

// NewServer creates the API server
func NewServer(sup *broadcast.Supervisor, logs *logRegistry, source telemetry.Source, logger *logging.Logger) *Server {
	opts := sup.Options()
	return &Server{
		sup:         sup,
		logs:        logs,
		telemetry:   source,
		logger:      logger.WithComponent("api"),
		checks:      make(map[string]func(context.Context) error),
		stopTimeout: opts.GracePeriod + opts.KillTimeout + opts.DrainTimeout + time.Second,
	}
}

// AddCheck registers a dependency probed by /health
func (s *Server) AddCheck(name string, check func(context.Context) error) {
	s.checks[name] = check
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(s.logger))
	if s.rateLimit != nil {
		router.Use(s.rateLimit)
	}

	// Health check
	router.GET("/health", s.healthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/settings", s.getSettings)

		// Current broadcast
		v1.POST("/broadcast", s.startBroadcast)
		v1.POST("/broadcast/stop", s.stopBroadcast)
		v1.GET("/broadcast", s.getBroadcast)
		v1.DELETE("/broadcast", s.releaseBroadcast)
		v1.GET("/broadcast/logs", s.getLogs)
		v1.GET("/broadcast/logs/stream", s.streamLogs)

		// Telemetry
		v1.GET("/stream/health", s.getStreamHealth)
		v1.GET("/stream/analytics", s.getStreamAnalytics)

		// History
		v1.GET("/broadcasts", s.listBroadcasts)
		v1.GET("/broadcasts/:id", s.getBroadcastSession)
		v1.GET("/broadcasts/:id/transcript", s.getTranscript)
		v1.GET("/broadcasts/:id/artifacts", s.listArtifacts)
	}

	return router
}

// Health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	deps := gin.H{}
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			healthy = false
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	body := gin.H{
		"status":       "healthy",
		"broadcast":    s.sup.Status(s.sup.Current()).State,
		"dependencies": deps,
	}
	if !healthy {
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	c.JSON(http.StatusOK, body)
}
