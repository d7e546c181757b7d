// Package http provides the HTTP adapter over the lifecycle core.
// Handlers translate requests into engine calls; no business rules live here.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pavelsemenov/choreboard/internal/application/port"
	"github.com/pavelsemenov/choreboard/internal/generator"
	"github.com/pavelsemenov/choreboard/internal/lifecycle"
	"github.com/pavelsemenov/choreboard/internal/reward"
	"github.com/pavelsemenov/choreboard/internal/scoring"
	"github.com/pavelsemenov/choreboard/internal/voting"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Deps bundles the application components the handlers call into
type Deps struct {
	Lifecycle    *lifecycle.Engine
	Voting       *voting.Engine
	Ledger       *scoring.Ledger
	Reward       *reward.Controller
	Generator    *generator.Generator
	Templates    port.TemplateRepository
	Instances    port.InstanceRepository
	Participants port.ParticipantRepository
	Disputes     port.DisputeRepository
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	logger     *zap.Logger
}

// NewServer creates a new HTTP server wired to the given components
func NewServer(config ServerConfig, deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config: config,
		router: router,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes(deps)

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(deps Deps) {
	handlers := NewHandlers(deps, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		// Task lifecycle
		api.GET("/tasks", handlers.ListTasks)
		api.GET("/tasks/:id", handlers.GetTask)
		api.POST("/tasks/:id/claim", handlers.ClaimTask)
		api.POST("/tasks/:id/defer", handlers.DeferTask)
		api.POST("/tasks/:id/report", handlers.SubmitReport)
		api.POST("/tasks/:id/cancel", handlers.CancelClaim)

		// Peer voting
		api.POST("/reports/:id/vote", handlers.CastVote)

		// Disputes
		api.GET("/disputes", handlers.ListOpenDisputes)
		api.POST("/disputes/:id/resolve", handlers.ResolveDispute)

		// Scoring
		api.GET("/scoreboard", handlers.Scoreboard)
		api.GET("/participants", handlers.ListParticipants)
		api.POST("/participants", handlers.CreateParticipant)
		api.GET("/participants/:id/balance", handlers.ParticipantBalance)

		// Reward coefficients
		api.GET("/reward/coefficients", handlers.ListCoefficients)
		api.GET("/reward/settings", handlers.GetRewardSettings)
		api.PUT("/reward/settings", handlers.UpdateRewardSettings)

		// Templates
		api.GET("/templates", handlers.ListTemplates)
		api.POST("/templates", handlers.CreateTemplate)
		api.PUT("/templates/:id", handlers.UpdateTemplate)

		// Admin
		admin := api.Group("/admin")
		{
			admin.POST("/tasks/:id/announce", handlers.ForceAnnounce)
			admin.POST("/tasks/:id/retire", handlers.RetireTask)
			admin.POST("/generate", handlers.GenerateNow)
			admin.POST("/season/end", handlers.EndSeason)
		}
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
