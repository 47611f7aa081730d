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
	"context"
	"strings"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// healthPrefix is the method prefix of the health service. Probes are not
// authenticated.
var healthPrefix = "/" + grpc_health_v1.Health_ServiceDesc.ServiceName + "/"

type principalKey struct{}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (*adapters.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*adapters.Principal)
	return p, ok
}

// LoggingUnaryInterceptor logs unary RPC calls using the logger adapter.
func LoggingUnaryInterceptor(logger adapters.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []adapters.Field{
			{Key: "method", Value: info.FullMethod},
			{Key: "duration", Value: time.Since(start).String()},
		}
		if err != nil {
			fields = append(fields, adapters.Field{Key: "error", Value: err.Error()})
			logger.Error(ctx, "gRPC request failed", fields...)
		} else {
			logger.Debug(ctx, "gRPC request completed", fields...)
		}
		return resp, err
	}
}

// LoggingStreamInterceptor logs stream RPC calls using the logger adapter.
func LoggingStreamInterceptor(logger adapters.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)

		fields := []adapters.Field{
			{Key: "method", Value: info.FullMethod},
			{Key: "duration", Value: time.Since(start).String()},
		}
		if err != nil && status.Code(err) != codes.Canceled {
			fields = append(fields, adapters.Field{Key: "error", Value: err.Error()})
			logger.Error(ss.Context(), "gRPC stream failed", fields...)
		} else {
			logger.Debug(ss.Context(), "gRPC stream completed", fields...)
		}
		return err
	}
}

// MetricsUnaryInterceptor records call counts and latencies labelled with
// the gRPC status code.
func MetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		metrics.RecordAPIRequest("GRPC", info.FullMethod, int(status.Code(err)), time.Since(start))
		return resp, err
	}
}

// MetricsStreamInterceptor is the streaming counterpart of
// MetricsUnaryInterceptor.
func MetricsStreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		metrics.RecordAPIRequest("GRPC", info.FullMethod, int(status.Code(err)), time.Since(start))
		return err
	}
}

// RecoveryUnaryInterceptor recovers from panics in unary RPC calls.
func RecoveryUnaryInterceptor(logger adapters.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "gRPC panic recovered",
					adapters.Field{Key: "method", Value: info.FullMethod},
					adapters.Field{Key: "panic", Value: r})
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// RecoveryStreamInterceptor recovers from panics in stream RPC calls.
func RecoveryStreamInterceptor(logger adapters.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ss.Context(), "gRPC stream panic recovered",
					adapters.Field{Key: "method", Value: info.FullMethod},
					adapters.Field{Key: "panic", Value: r})
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

func authenticate(ctx context.Context, method string, authenticator adapters.Authenticator, logger adapters.Logger) (context.Context, error) {
	if strings.HasPrefix(method, healthPrefix) {
		return ctx, nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		md = metadata.MD{}
	}
	principal, err := authenticator.AuthenticateGRPC(ctx, md)
	if err != nil {
		logger.Warn(ctx, "gRPC authentication failed",
			adapters.Field{Key: "method", Value: method},
			adapters.Field{Key: "error", Value: err.Error()})
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return context.WithValue(ctx, principalKey{}, principal), nil
}

// AuthenticationUnaryInterceptor authenticates unary RPC calls from the
// incoming metadata.
func AuthenticationUnaryInterceptor(authenticator adapters.Authenticator, logger adapters.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, info.FullMethod, authenticator, logger)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthenticationStreamInterceptor authenticates stream RPC calls.
func AuthenticationStreamInterceptor(authenticator adapters.Authenticator, logger adapters.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), info.FullMethod, authenticator, logger)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
