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

// Package grpc runs the gRPC listener that serves grpc.health.v1 for the
// restore service.
package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/server/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the name reported to health probes alongside the
// overall ("") status.
const ServiceName = "objbackup.Restore"

// Server is a supervised gRPC server.
type Server struct {
	opts   *ServerOptions
	server *grpc.Server
	health *health.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a gRPC server with the health service registered.
func NewServer(options ...ServerOption) (*Server, error) {
	opts := DefaultServerOptions()
	for _, opt := range options {
		opt(opts)
	}
	if opts.Logger == nil {
		opts.Logger = adapters.NewDefaultLogger()
	}
	if opts.Authenticator == nil {
		opts.Authenticator = adapters.NewNoOpAuthenticator()
	}

	s := &Server{opts: opts, health: health.NewServer()}

	serverOpts, err := s.buildServerOptions()
	if err != nil {
		return nil, err
	}
	s.server = grpc.NewServer(serverOpts...)
	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	s.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return s, nil
}

func (s *Server) setStatus(st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Listen binds the configured address. Serve calls it when no listener is
// bound yet.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr(), nil
	}
	lis, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return nil, err
	}
	s.listener = lis
	return lis.Addr(), nil
}

// Serve implements suture.Service. The health status is SERVING while the
// server runs and NOT_SERVING once ctx ends, before connections drain.
func (s *Server) Serve(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}

	s.mu.Lock()
	lis := s.listener
	s.mu.Unlock()

	s.opts.Logger.Info(ctx, "Starting gRPC server",
		adapters.Field{Key: "address", Value: addr.String()},
		adapters.Field{Key: "tls_mode", Value: s.opts.TLSConfig.Mode()})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(lis)
	}()
	s.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)

	select {
	case err := <-errCh:
		s.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.opts.Logger.Info(context.Background(), "Shutting down gRPC server")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.ShutdownTimeout):
		s.opts.Logger.Warn(context.Background(), "gRPC graceful stop timed out")
		s.server.Stop()
	}
	<-errCh
	return ctx.Err()
}

// Health returns the health server so callers can report component status.
func (s *Server) Health() *health.Server {
	return s.health
}

// Address returns the bound address, or the configured one before Listen.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Address
}

func (s *Server) String() string {
	return "grpc-server"
}

func (s *Server) buildServerOptions() ([]grpc.ServerOption, error) {
	var opts []grpc.ServerOption

	if s.opts.TLSConfig.Enabled() {
		tlsConfig, err := s.opts.TLSConfig.Build()
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	opts = append(opts,
		grpc.MaxConcurrentStreams(s.opts.MaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    s.opts.KeepAliveTime,
			Timeout: s.opts.KeepAliveTimeout,
		}),
	)

	// Order: recovery → request ID → rate limit → auth → logging → metrics
	unary := []grpc.UnaryServerInterceptor{RecoveryUnaryInterceptor(s.opts.Logger)}
	stream := []grpc.StreamServerInterceptor{RecoveryStreamInterceptor(s.opts.Logger)}

	if s.opts.EnableRequestID {
		unary = append(unary, middleware.RequestIDUnaryInterceptor())
		stream = append(stream, middleware.RequestIDStreamInterceptor())
	}
	if s.opts.EnableRateLimit {
		unary = append(unary, middleware.RateLimitUnaryInterceptor(s.opts.RateLimitConfig, s.opts.Logger))
		stream = append(stream, middleware.RateLimitStreamInterceptor(s.opts.RateLimitConfig, s.opts.Logger))
	}

	unary = append(unary, AuthenticationUnaryInterceptor(s.opts.Authenticator, s.opts.Logger))
	stream = append(stream, AuthenticationStreamInterceptor(s.opts.Authenticator, s.opts.Logger))

	if s.opts.EnableLogging {
		unary = append(unary, LoggingUnaryInterceptor(s.opts.Logger))
		stream = append(stream, LoggingStreamInterceptor(s.opts.Logger))
	}
	if s.opts.EnableMetrics {
		unary = append(unary, MetricsUnaryInterceptor())
		stream = append(stream, MetricsStreamInterceptor())
	}

	opts = append(opts,
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)
	return opts, nil
}
