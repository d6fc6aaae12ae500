// Package http exposes the design assistant over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/logging"
	"github.com/fyrsmithlabs/designd/internal/workflow"
)

// Driver is the workflow surface served over HTTP.
type Driver interface {
	StartImageSession(ctx context.Context, image []byte, filename, userQuery string) (*workflow.ImageResult, error)
	ResumeWithSelection(ctx context.Context, id string, index int) (*workflow.SelectionResult, error)
	AnswerText(ctx context.Context, id, query string) (*workflow.TextResult, error)
}

// Server provides the chat endpoints.
type Server struct {
	echo    *echo.Echo
	driver  Driver
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	MaxUploadBytes int64
	AllowOrigins   []string
}

// NewServer creates the server and registers its routes.
func NewServer(driver Driver, logger *zap.Logger, cfg *Config) (*Server, error) {
	if driver == nil {
		return nil, fmt.Errorf("driver cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8000,
		}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	s := &Server{
		echo:    e,
		driver:  driver,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowCredentials: !containsWildcard(cfg.AllowOrigins),
	}))
	e.Use(s.requestContext)
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	chat := s.echo.Group("/chat")
	chat.POST("/image", s.handleImage)
	chat.POST("/select", s.handleSelect)
	chat.POST("/text", s.handleText)
}

// requestContext carries the request id into the request context so
// context-aware loggers downstream pick it up.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		if id != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		}
		return next(c)
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		duration := time.Since(start)

		s.logger.Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", duration),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		return nil
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Start starts the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
