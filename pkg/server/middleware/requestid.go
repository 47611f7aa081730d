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

// Package middleware holds the gin middleware and gRPC interceptors shared
// by the REST and gRPC servers.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type contextKey string

const (
	// RequestIDHeader carries the request id on HTTP requests and responses.
	RequestIDHeader = "X-Request-ID"

	// GRPCRequestIDKey carries the request id in gRPC metadata.
	GRPCRequestIDKey = "x-request-id"

	requestIDKey contextKey = "request_id"
)

// maxRequestIDLength bounds caller-supplied ids that are echoed back.
const maxRequestIDLength = 128

func requestIDOrNew(id string) string {
	if id == "" || len(id) > maxRequestIDLength {
		return uuid.NewString()
	}
	return id
}

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestID propagates X-Request-ID or assigns a new one, and stores it in
// both the gin context and the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := requestIDOrNew(c.GetHeader(RequestIDHeader))
		c.Set(string(requestIDKey), id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func grpcRequestID(ctx context.Context) context.Context {
	var id string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(GRPCRequestIDKey); len(values) > 0 {
			id = values[0]
		}
	}
	id = requestIDOrNew(id)
	_ = grpc.SetHeader(ctx, metadata.Pairs(GRPCRequestIDKey, id))
	return WithRequestID(ctx, id)
}

// RequestIDUnaryInterceptor is the gRPC counterpart of RequestID.
func RequestIDUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(grpcRequestID(ctx), req)
	}
}

// RequestIDStreamInterceptor is the streaming counterpart of
// RequestIDUnaryInterceptor.
func RequestIDStreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &contextStream{ServerStream: ss, ctx: grpcRequestID(ss.Context())})
	}
}

// contextStream overrides the context of a server stream.
type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context {
	return s.ctx
}
