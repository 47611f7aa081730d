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

package grpc

import (
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/server/middleware"
)

// ServerOptions configures the health server listener and its interceptor
// chain.
type ServerOptions struct {
	Address string

	MaxConcurrentStreams uint32
	KeepAliveTime        time.Duration
	KeepAliveTimeout     time.Duration

	// ShutdownTimeout bounds GracefulStop; the server is stopped hard after it.
	ShutdownTimeout time.Duration

	EnableRequestID bool
	EnableRateLimit bool
	RateLimitConfig *middleware.RateLimitConfig
	EnableLogging   bool
	EnableMetrics   bool

	Logger        adapters.Logger
	Authenticator adapters.Authenticator

	// TLSConfig is nil for plaintext.
	TLSConfig *adapters.TLSConfig
}

// DefaultServerOptions listens on :50051 without rate limiting or TLS.
func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{
		Address:              ":50051",
		MaxConcurrentStreams: 16,
		KeepAliveTime:        2 * time.Hour,
		KeepAliveTimeout:     20 * time.Second,
		ShutdownTimeout:      10 * time.Second,
		EnableRequestID:      true,
		RateLimitConfig:      middleware.DefaultRateLimitConfig(),
		EnableLogging:        true,
		EnableMetrics:        true,
		Logger:               adapters.NewDefaultLogger(),
		Authenticator:        adapters.NewNoOpAuthenticator(),
	}
}

// ServerOption mutates ServerOptions.
type ServerOption func(*ServerOptions)

func WithAddress(addr string) ServerOption {
	return func(o *ServerOptions) { o.Address = addr }
}

func WithTLS(config *adapters.TLSConfig) ServerOption {
	return func(o *ServerOptions) { o.TLSConfig = config }
}

func WithShutdownTimeout(timeout time.Duration) ServerOption {
	return func(o *ServerOptions) { o.ShutdownTimeout = timeout }
}

// WithRateLimit turns on the rate limit interceptors. A nil config keeps the
// default limits.
func WithRateLimit(config *middleware.RateLimitConfig) ServerOption {
	return func(o *ServerOptions) {
		o.EnableRateLimit = true
		if config != nil {
			o.RateLimitConfig = config
		}
	}
}

func WithLogger(logger adapters.Logger) ServerOption {
	return func(o *ServerOptions) { o.Logger = logger }
}

func WithAuthenticator(authenticator adapters.Authenticator) ServerOption {
	return func(o *ServerOptions) { o.Authenticator = authenticator }
}
