// Package ops provides the operational HTTP server for a capture worker:
// health, task state, snapshot progress and Prometheus metrics.
package ops

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pinterest/debezium/internal/config"
	"github.com/pinterest/debezium/internal/snapshot"
	"github.com/pinterest/debezium/internal/task"
)

// TaskStatus is the read side of the capture task exposed over HTTP.
type TaskStatus interface {
	State() task.State
	SnapshotMetrics() *snapshot.Progress
	ProducerError() error
}

// Server is the operational HTTP server.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	status     TaskStatus
	registry   *prometheus.Registry
	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates an ops server for the given task. The registry may be
// nil, in which case the default Prometheus handler is used.
func NewServer(cfg *config.Config, status TaskStatus, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		logger:   logger.With("component", "ops-server"),
		status:   status,
		registry: registry,
		router:   router,
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Ops.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Ops.ReadTimeout,
		WriteTimeout: cfg.Ops.WriteTimeout,
		IdleTimeout:  cfg.Ops.ReadTimeout * 4,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.getHealth)
	s.router.GET("/state", s.getState)
	s.router.GET("/snapshot", s.getSnapshot)

	if s.cfg.Ops.MetricsEnabled {
		handler := promhttp.Handler()
		if s.registry != nil {
			handler = promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
		}
		s.router.GET("/metrics", gin.WrapH(handler))
	}
}

// getHealth reports liveness. The worker is unhealthy once the producer has
// hit a fatal error, even if the process is still up.
func (s *Server) getHealth(c *gin.Context) {
	if err := s.status.ProducerError(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// getState reports the task lifecycle state.
func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"task_id": s.cfg.TaskID,
		"state":   s.status.State().String(),
	})
}

// getSnapshot reports the progress of the initial data scan.
func (s *Server) getSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.SnapshotMetrics().Report())
}

// Start starts the HTTP server and blocks until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting ops server", "addr", s.cfg.Ops.ListenAddr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping ops server")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
