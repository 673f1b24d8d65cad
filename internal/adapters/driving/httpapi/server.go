// Package httpapi exposes homeqa over a JSON HTTP API built on gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driving"
	"github.com/custodia-labs/homeqa/internal/logger"
	"github.com/custodia-labs/homeqa/internal/metrics"
)

// ErrMissingService is returned when a required port is not provided.
var ErrMissingService = errors.New("httpapi: sync and answer services are required")

// Ports aggregates what the HTTP API calls into.
type Ports struct {
	Sync    driving.SyncOrchestrator
	Answers driving.AnswerService

	// Optional.
	Scheduler   driving.Scheduler
	Metrics     *metrics.Metrics
	SourceTypes []domain.SourceType
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// Options tunes the HTTP server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	ports  Ports
	opts   Options
	router *gin.Engine
}

// NewServer builds the router.
func NewServer(ports Ports, opts Options) (*Server, error) {
	if ports.Sync == nil || ports.Answers == nil {
		return nil, ErrMissingService
	}
	if opts.Addr == "" {
		opts.Addr = ":8000"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware())

	s := &Server{ports: ports, opts: opts, router: router}
	s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening on %s", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	logger.Info("HTTP API stopped")
	return nil
}

func (s *Server) routes() {
	r := s.router
	r.GET("/", s.root)
	r.GET("/health", s.health)

	connectors := r.Group("/connectors")
	connectors.GET("", s.listConnectors)
	connectors.POST("", s.createConnector)
	connectors.GET("/types", s.connectorTypes)
	connectors.POST("/:id/connect", s.connectConnector)
	connectors.POST("/:id/disconnect", s.disconnectConnector)
	connectors.POST("/:id/sync", s.syncConnector)
	connectors.GET("/:id/sync-status", s.syncStatus)
	connectors.GET("/:id/history", s.syncHistory)
	connectors.DELETE("/:id", s.deleteConnector)

	r.POST("/chat", s.chat)
	r.POST("/search", s.search)
	r.GET("/stats", s.stats)

	if s.ports.Scheduler != nil {
		r.POST("/scheduler/run", s.runScheduler)
	}
	if s.ports.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.ports.Metrics.Handler()))
	}
	if s.ports.MCP != nil {
		r.Any("/mcp", gin.WrapH(s.ports.MCP))
	}
}

func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(map[string]any{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}, "%s %s", c.Request.Method, c.Request.URL.Path)
	}
}
