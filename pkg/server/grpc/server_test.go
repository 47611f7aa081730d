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
	"testing"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	opts = append([]ServerOption{
		WithAddress("127.0.0.1:0"),
		WithLogger(adapters.NewNoOpLogger()),
		WithShutdownTimeout(time.Second),
	}, opts...)
	s, err := NewServer(opts...)
	require.NoError(t, err)
	return s
}

func healthClient(t *testing.T, addr string) grpc_health_v1.HealthClient {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return grpc_health_v1.NewHealthClient(conn)
}

func TestServer_HealthLifecycle(t *testing.T) {
	s := newTestServer(t, WithAuthenticator(adapters.NewAPIKeyAuthenticator(map[string]string{"ops": "k"})))
	addr, err := s.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	client := healthClient(t, addr.String())
	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
		return err == nil && resp.Status == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, "grpc-server", s.String())
}

func TestServer_NotServingBeforeStart(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.Health().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)
	assert.Equal(t, "127.0.0.1:0", s.Address())
}

func TestServer_ListenFailure(t *testing.T) {
	s := newTestServer(t, WithAddress("256.0.0.1:bad"))
	err := s.Serve(context.Background())
	assert.Error(t, err)
}

func TestAuthenticationUnaryInterceptor(t *testing.T) {
	interceptor := AuthenticationUnaryInterceptor(
		adapters.NewAPIKeyAuthenticator(map[string]string{"ops": "k"}), adapters.NewNoOpLogger())
	handler := func(ctx context.Context, _ any) (any, error) {
		p, ok := PrincipalFromContext(ctx)
		if ok {
			return p.Name, nil
		}
		return "none", nil
	}

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/objbackup.Restore/Submit"}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(adapters.APIKeyMetadataKey, "k"))
	resp, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/objbackup.Restore/Submit"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "ops", resp)

	resp, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: healthPrefix + "Check"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "none", resp)
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	interceptor := RecoveryUnaryInterceptor(adapters.NewNoOpLogger())
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test/Panic"},
		func(context.Context, any) (any, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestMetricsAndLoggingInterceptors(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Fail"}
	fail := func(context.Context, any) (any, error) { return nil, status.Error(codes.NotFound, "missing") }

	_, err := MetricsUnaryInterceptor()(context.Background(), nil, info, fail)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = LoggingUnaryInterceptor(adapters.NewNoOpLogger())(context.Background(), nil, info, fail)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestDefaultServerOptions(t *testing.T) {
	opts := DefaultServerOptions()
	assert.Equal(t, ":50051", opts.Address)
	assert.True(t, opts.EnableRequestID)
	assert.False(t, opts.EnableRateLimit)

	WithRateLimit(nil)(opts)
	assert.True(t, opts.EnableRateLimit)
}
