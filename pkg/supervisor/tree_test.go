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

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingService struct {
	starts atomic.Int32
	fail   bool
}

func (s *countingService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	if s.fail {
		return errors.New("crashed")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return "counting" }

func TestTree_RunsAndStopsServices(t *testing.T) {
	tree := NewTree(nil, TreeConfig{ShutdownTimeout: time.Second})
	data := &countingService{}
	api := &countingService{}
	tree.AddDataService(data)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	require.Eventually(t, func() bool {
		return data.starts.Load() == 1 && api.starts.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}

	report, err := tree.UnstoppedServiceReport()
	require.NoError(t, err)
	assert.Empty(t, report)
}

func TestTree_RestartsFailedService(t *testing.T) {
	tree := NewTree(nil, TreeConfig{FailureThreshold: 100, FailureBackoff: 10 * time.Millisecond})
	svc := &countingService{fail: true}
	tree.AddDataService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	require.Eventually(t, func() bool {
		return svc.starts.Load() >= 3
	}, 5*time.Second, 10*time.Millisecond)
}

type mockHTTPServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns atomic.Int32
}

func newMockHTTPServer(listenErr error) *mockHTTPServer {
	return &mockHTTPServer{listenErr: listenErr, stop: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stop
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	close(m.stop)
	return nil
}

func TestHTTPService_GracefulShutdown(t *testing.T) {
	server := newMockHTTPServer(nil)
	svc := NewHTTPService("rest", server, 0)
	assert.Equal(t, "rest", svc.String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, int32(1), server.shutdowns.Load())
}

func TestHTTPService_ListenFailure(t *testing.T) {
	svc := NewHTTPService("rest", newMockHTTPServer(errors.New("address in use")), time.Second)
	err := svc.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
}
