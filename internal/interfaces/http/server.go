// Package http exposes the voucher and assignment services over gin. It is a
// thin adapter: handlers parse the request, call one service method and map
// the typed error to a status code.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/inspector-vouchers/internal/application/service"
	"github.com/garyjia/inspector-vouchers/internal/container"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// HealthReporter reports component health for GET /health
type HealthReporter interface {
	Health(ctx context.Context) *container.HealthStatus
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		Mode:            gin.ReleaseMode,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Services groups the application services the handlers call
type Services struct {
	Voucher    service.VoucherService
	Assignment service.AssignmentService
	Export     service.ExportService
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	health     HealthReporter
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, health HealthReporter, logger Logger) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	server := &Server{
		config:   config,
		router:   gin.New(),
		handlers: NewHandlers(services, logger),
		health:   health,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(loggingMiddleware(s.logger))
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/api", actorMiddleware())
	{
		api.POST("/vouchers", h.OpenVoucher)
		api.GET("/vouchers/:id", h.GetVoucher)
		api.GET("/vouchers/:id/certifications", h.ListCertifications)
		api.POST("/vouchers/:id/submit", h.SubmitVoucher)
		api.POST("/vouchers/:id/approve/supervisor", h.ApproveAsSupervisor)
		api.POST("/vouchers/:id/approve/fleet", h.ApproveAsFleetManager)
		api.POST("/vouchers/:id/reject", h.RejectVoucher)
		api.POST("/vouchers/:id/reopen", h.ReopenVoucher)

		api.POST("/trips", h.AddTrip)
		api.GET("/approvals/pending", h.ListPendingApprovals)

		api.POST("/assignment-requests", h.RequestAssignment)
		api.GET("/assignment-requests/pending", h.ListPendingAssignments)
		api.GET("/assignment-requests/:id", h.GetAssignment)
		api.POST("/assignment-requests/:id/resolve", h.ResolveAssignment)
		api.POST("/assignment-requests/:id/cancel", h.CancelAssignment)

		api.GET("/exports/vouchers", h.ExportApproved)
	}
}

// healthCheck handles GET /health
func (s *Server) healthCheck(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"status": "healthy"}})
		return
	}

	status := s.health.Health(c.Request.Context())
	code := http.StatusOK
	if !status.Overall {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, Response{Success: status.Overall, Data: status})
}

// Start serves until ctx is canceled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
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
