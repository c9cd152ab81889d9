// Package api exposes the matching service over HTTP with gin.
//
// Routes:
//
//	GET    /health         liveness, pings the database when one is configured
//	POST   /match          {deduction, candidates} -> MatchResult
//	POST   /match/batch    {deductions, candidates} -> BatchResult
//	POST   /review-queue   {deductions, candidates} -> {queue, summary}
//	GET    /review-queue   loads from the configured source (customerId, from, to, limit)
//	GET    /thresholds     current threshold configuration
//	PATCH  /thresholds     partial update, 422 when the invariant would break
//	DELETE /thresholds     reset to the configured defaults
//
// Failures use the envelope {"error": {"code", "message", "status", "details"}}.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"deduction-matching-service/internal/reconciler"
	"deduction-matching-service/internal/store"
	"deduction-matching-service/pkg/logger"
)

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// DefaultServerConfig returns the default server settings
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxBodyBytes:    32 << 20,
	}
}

// Validate checks the server settings
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max body bytes cannot be negative, got %d", c.MaxBodyBytes)
	}
	return nil
}

// Pinger is implemented by sources that can report their reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server
type Server struct {
	config  *ServerConfig
	service *reconciler.MatchingService
	runner  *reconciler.Runner
	pinger  Pinger
	router  *gin.Engine
	server  *http.Server
	logger  logger.Logger
}

// NewServer creates the API server. source may be nil, in which case
// GET /review-queue answers 503.
func NewServer(config *ServerConfig, service *reconciler.MatchingService, source store.Source) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if service == nil {
		return nil, fmt.Errorf("matching service is required")
	}

	s := &Server{
		config:  config,
		service: service,
		logger:  logger.GetGlobalLogger().WithComponent("api"),
	}
	if source != nil {
		s.runner = reconciler.NewRunner(service, source)
		if p, ok := source.(Pinger); ok {
			s.pinger = p
		}
	}

	s.setupRouter()
	return s, nil
}

func (s *Server) setupRouter() {
	s.router = gin.New()
	s.router.Use(RequestID())
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(Recovery(s.logger))
	s.router.Use(BodyLimit(s.config.MaxBodyBytes))

	s.router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, CodeNotFound, "route not found", map[string]interface{}{"path": c.Request.URL.Path})
	})

	s.router.GET("/health", s.healthHandler)

	s.router.POST("/match", s.matchHandler)
	s.router.POST("/match/batch", s.batchHandler)

	s.router.POST("/review-queue", s.reviewQueueHandler)
	s.router.GET("/review-queue", s.sourceReviewQueueHandler)

	thresholds := s.router.Group("/thresholds")
	{
		thresholds.GET("", s.getThresholdsHandler)
		thresholds.PATCH("", s.updateThresholdsHandler)
		thresholds.DELETE("", s.resetThresholdsHandler)
	}
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")
	return nil
}
