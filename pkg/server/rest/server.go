// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-objbackup.
//
// go-objbackup is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest serves restore submissions and job status over HTTP.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/audit"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/server/middleware"
	"github.com/jeremyhahn/go-objbackup/pkg/service"
)

// Server represents the REST API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	handler    *Handler
	config     *ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	// Host is the hostname to bind to (default: "0.0.0.0")
	Host string

	// Port is the port to listen on (default: 8080)
	Port int

	// BaseURL prefixes status locations. Empty derives it from the request.
	BaseURL string

	EnableCORS            bool
	EnableLogging         bool
	EnableRateLimit       bool
	RateLimitConfig       *middleware.RateLimitConfig
	EnableSecurityHeaders bool
	SecurityHeadersConfig *middleware.SecurityHeadersConfig
	EnableRequestID       bool
	EnableMetrics         bool

	// MaxRequestSize is the maximum request body size in bytes (default: 1MB)
	MaxRequestSize int64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Mode sets the Gin mode: "debug", "release", or "test" (default: "release")
	Mode string

	// Logger is the pluggable logger adapter (default: DefaultLogger)
	Logger adapters.Logger

	// Authenticator is the pluggable authentication adapter (default: NoOpAuthenticator)
	Authenticator adapters.Authenticator

	// TLSConfig is the TLS/mTLS configuration (default: nil = no TLS)
	TLSConfig *adapters.TLSConfig

	// AuditLogger records restore submissions, status reads and rejected
	// credentials (default: nil = no audit trail)
	AuditLogger audit.AuditLogger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:                  "0.0.0.0",
		Port:                  8080,
		EnableCORS:            true,
		EnableLogging:         true,
		EnableRateLimit:       false,
		RateLimitConfig:       middleware.DefaultRateLimitConfig(),
		EnableSecurityHeaders: true,
		SecurityHeadersConfig: middleware.DefaultSecurityHeadersConfig(),
		EnableRequestID:       true,
		EnableMetrics:         true,
		MaxRequestSize:        1 << 20,
		// Sync restores run inside the request.
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Minute,
		IdleTimeout:   120 * time.Second,
		Mode:          gin.ReleaseMode,
		Logger:        adapters.NewDefaultLogger(),
		Authenticator: adapters.NewNoOpAuthenticator(),
	}
}

// NewServer creates a new REST API server
func NewServer(svc *service.RestoreService, config *ServerConfig) (*Server, error) {
	if svc == nil {
		return nil, common.ErrStoreRequired
	}
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.Logger == nil {
		config.Logger = adapters.NewDefaultLogger()
	}
	if config.Authenticator == nil {
		config.Authenticator = adapters.NewNoOpAuthenticator()
	}
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ErrorHandlingMiddleware(config.Logger))

	// Middleware order: request ID → audit → rate limit → security headers → CORS → metrics → auth → logging → size limit
	if config.EnableRequestID {
		router.Use(middleware.RequestID())
	}
	if config.AuditLogger != nil {
		router.Use(audit.AuditMiddleware(config.AuditLogger))
	}
	if config.EnableRateLimit {
		router.Use(middleware.RateLimit(config.RateLimitConfig, config.Logger))
	}
	if config.EnableSecurityHeaders {
		sec := config.SecurityHeadersConfig
		if sec == nil {
			sec = middleware.DefaultSecurityHeadersConfig()
		}
		if config.TLSConfig.Enabled() && sec.HSTSMaxAge == 0 {
			copied := *sec
			copied.HSTSMaxAge = 31536000
			sec = &copied
		}
		router.Use(middleware.SecurityHeaders(sec))
	}
	if config.EnableCORS {
		router.Use(CORSMiddleware())
	}
	if config.EnableMetrics {
		router.Use(middleware.Metrics())
	}
	router.Use(AuthenticationMiddleware(config.Authenticator, config.Logger))
	if config.EnableLogging {
		router.Use(LoggingMiddleware(config.Logger))
	}
	if config.MaxRequestSize > 0 {
		router.Use(RequestSizeLimitMiddleware(config.MaxRequestSize))
	}

	handler := NewHandler(svc, config.BaseURL, config.Logger)
	SetupRoutes(router, handler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		handler:    handler,
		config:     config,
	}, nil
}

// ListenAndServe starts the server, with TLS when configured. It satisfies
// supervisor.HTTPServer.
func (s *Server) ListenAndServe() error {
	if s.config.TLSConfig.Enabled() {
		tlsConfig, err := s.config.TLSConfig.Build()
		if err != nil {
			return err
		}
		s.httpServer.TLSConfig = tlsConfig

		s.config.Logger.Info(context.Background(), "Starting REST API server with TLS",
			adapters.Field{Key: "address", Value: s.httpServer.Addr},
			adapters.Field{Key: "tls_mode", Value: s.config.TLSConfig.Mode()},
		)
		// ListenAndServeTLS requires empty cert/key params when using TLSConfig
		return s.httpServer.ListenAndServeTLS("", "")
	}

	s.config.Logger.Info(context.Background(), "Starting REST API server",
		adapters.Field{Key: "address", Value: s.httpServer.Addr},
	)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.config.Logger.Info(ctx, "Shutting down REST API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return s.httpServer.Addr
}
