// Package server provides the HTTP server setup and routing configuration.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/simulcast/internal/api"
	"github.com/stwalsh4118/simulcast/internal/broadcast"
	"github.com/stwalsh4118/simulcast/internal/config"
	"github.com/stwalsh4118/simulcast/internal/db"
	"github.com/stwalsh4118/simulcast/internal/logger"
	"github.com/stwalsh4118/simulcast/internal/metrics"
	"github.com/stwalsh4118/simulcast/internal/middleware"
	"github.com/stwalsh4118/simulcast/internal/timeline"
)

// Server represents the HTTP server
type Server struct {
	config          *config.Config
	db              *db.DB
	timelineService *timeline.TimelineService
	hub             *broadcast.Hub
	metrics         *metrics.Metrics
	router          *gin.Engine
	handler         http.Handler
	server          *http.Server

	// baseCtx is cancelled on shutdown so hijacked websocket connections end too
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates a new server instance for an already bootstrapped schedule
func New(cfg *config.Config, database *db.DB, schedule *timeline.Schedule) *Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:          cfg,
		db:              database,
		timelineService: timeline.NewTimelineService(schedule, nil),
		hub:             broadcast.NewHub(),
		baseCtx:         baseCtx,
		cancelBase:      cancel,
	}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.New()
	}
	return s
}

// Hub returns the broadcast hub websocket peers join
func (s *Server) Hub() *broadcast.Hub {
	return s.hub
}

// Handler builds the router on first use and returns it. The sync websocket is
// served on the raw connection; every other path goes to gin.
func (s *Server) Handler() http.Handler {
	if s.handler == nil {
		s.setupRouter()

		mux := http.NewServeMux()
		api.SetupSyncRoutes(mux, s.hub, s.metrics, s.config.Sync.BroadcastName)
		mux.Handle("/", s.router)
		s.handler = mux
	}
	return s.handler
}

// setupRouter initializes the Gin router with middleware and routes
func (s *Server) setupRouter() {
	// Set Gin mode based on log level
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	s.router.Use(middleware.RequestLogger()) // Custom zerolog request logger
	s.router.Use(gin.Recovery())             // Panic recovery
	s.router.Use(cors.Default())             // CORS support (allows all origins)
	if s.metrics != nil {
		s.router.Use(middleware.Metrics(s.metrics))
		s.router.GET(s.config.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	apiGroup := s.router.Group("/api")

	api.SetupHealthRoutes(apiGroup, s.db, s.timelineService)
	api.SetupScheduleRoutes(apiGroup, s.timelineService, s.config.Channel.Name)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
		BaseContext:    func(net.Listener) context.Context { return s.baseCtx },
	}

	sched := s.timelineService.Schedule()
	logger.Log.Info().
		Str("host", s.config.Server.Host).
		Int("port", s.config.Server.Port).
		Str("channel", s.config.Channel.Name).
		Int("programs", sched.Len()).
		Int64("total_duration", sched.TotalDuration()).
		Time("epoch", sched.Epoch()).
		Msg("Starting HTTP server")

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Log.Info().Msg("Shutting down server gracefully")
	s.cancelBase()

	// Check if server was started before attempting shutdown
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	logger.Log.Info().Msg("Server stopped")
	return nil
}
