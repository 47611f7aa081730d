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

package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RateLimitConfig configures request rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int

	// PerClient keeps one bucket per client address instead of one shared
	// bucket.
	PerClient bool

	// IdleTTL evicts per-client buckets that have not been used for this
	// long. Defaults to 10 minutes.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns 50 requests per second with a burst of 100.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{RequestsPerSecond: 50, Burst: 100, IdleTTL: 10 * time.Minute}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out token buckets keyed by client.
type Limiter struct {
	config    RateLimitConfig
	shared    *rate.Limiter
	mu        sync.Mutex
	clients   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// NewLimiter creates a Limiter. A nil config uses DefaultRateLimitConfig.
func NewLimiter(config *RateLimitConfig) *Limiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	cfg := *config
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	l := &Limiter{config: cfg, clients: make(map[string]*bucket), now: time.Now}
	if !cfg.PerClient {
		l.shared = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return l
}

// Allow reports whether a request from client may proceed.
func (l *Limiter) Allow(client string) bool {
	if l.shared != nil {
		return l.shared.Allow()
	}

	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) > l.config.IdleTTL {
		for key, b := range l.clients {
			if now.Sub(b.lastSeen) > l.config.IdleTTL {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.clients[client]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.Allow()
}

// RateLimit rejects requests over the limit with 429.
func RateLimit(config *RateLimitConfig, logger adapters.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	limiter := NewLimiter(config)

	return func(c *gin.Context) {
		client := c.ClientIP()
		if limiter.Allow(client) {
			c.Next()
			return
		}
		logger.Warn(c.Request.Context(), "Rate limit exceeded",
			adapters.Field{Key: "client_ip", Value: client},
			adapters.Field{Key: "path", Value: c.Request.URL.Path})

		c.Header("Retry-After", "1")
		c.Header("X-RateLimit-Limit", strconv.FormatFloat(limiter.config.RequestsPerSecond, 'f', -1, 64))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   http.StatusText(http.StatusTooManyRequests),
			"code":    http.StatusTooManyRequests,
			"message": "too many requests, retry later",
		})
	}
}

func grpcClient(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// RateLimitUnaryInterceptor rejects calls over the limit with
// ResourceExhausted.
func RateLimitUnaryInterceptor(config *RateLimitConfig, logger adapters.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	limiter := NewLimiter(config)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !limiter.Allow(grpcClient(ctx)) {
			logger.Warn(ctx, "gRPC rate limit exceeded", adapters.Field{Key: "method", Value: info.FullMethod})
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// RateLimitStreamInterceptor is the streaming counterpart of
// RateLimitUnaryInterceptor.
func RateLimitStreamInterceptor(config *RateLimitConfig, logger adapters.Logger) grpc.StreamServerInterceptor {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	limiter := NewLimiter(config)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !limiter.Allow(grpcClient(ss.Context())) {
			logger.Warn(ss.Context(), "gRPC stream rate limit exceeded", adapters.Field{Key: "method", Value: info.FullMethod})
			return status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(srv, ss)
	}
}
