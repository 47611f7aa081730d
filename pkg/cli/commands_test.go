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

package cli

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/event"
	"github.com/jeremyhahn/go-objbackup/pkg/jobs"
	"github.com/jeremyhahn/go-objbackup/pkg/journal"
	"github.com/jeremyhahn/go-objbackup/pkg/restore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLocalContext returns a command context over in-memory components
// whose journal holds one Deleted entry on 2024-01-01.
func newLocalContext(t *testing.T, modify ...func(*Config)) *CommandContext {
	t.Helper()
	cfg := validConfig(t)
	cfg.Server.BaseURL = "http://backup.local"
	cfg.Dispatch.Interval = 10 * time.Millisecond
	for _, m := range modify {
		m(cfg)
	}

	cc, err := NewCommandContext(cfg, adapters.NewNoOpLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	j, err := cc.Runtime.Journal()
	require.NoError(t, err)
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, j.Append(context.Background(), journal.NewEntry(
		event.NewDeleted("33333333-3333-3333-3333-333333333333", "https://acct.blob.core.windows.net/docs/b.txt", at), nil)))
	return cc
}

func TestNewCommandContext_InvalidConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Store.Type = "tape"
	_, err := NewCommandContext(cfg, nil)
	assert.ErrorIs(t, err, ErrUnsupportedStore)
}

func TestRestoreCommand_Sync(t *testing.T) {
	cc := newLocalContext(t)

	resp, err := cc.RestoreCommand(context.Background(), restore.Request{StartDate: "2024-01-01", EndDate: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, string(jobs.StatusCompleted), resp.Status)
	assert.Equal(t, 1, resp.TotalSuccessCount)
	assert.Zero(t, resp.TotalFailureCount)
	assert.Empty(t, resp.StatusLocationURI)
}

func TestRestoreCommand_Invalid(t *testing.T) {
	cc := newLocalContext(t)

	_, err := cc.RestoreCommand(context.Background(), restore.Request{EndDate: "2024-01-01"})
	var verr *restore.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestRestoreCommand_AsyncThenDispatch(t *testing.T) {
	cc := newLocalContext(t)
	ctx := context.Background()

	resp, err := cc.RestoreCommand(ctx, restore.Request{StartDate: "2024-01-01", EndDate: "2024-01-01", ReqType: "async"})
	require.NoError(t, err)
	assert.Equal(t, string(jobs.StatusAccepted), resp.Status)
	require.True(t, strings.HasPrefix(resp.StatusLocationURI, "http://backup.local/api/restore/"))

	status, err := cc.StatusCommand(ctx, resp.StatusLocationURI)
	require.NoError(t, err)
	assert.Equal(t, string(jobs.StatusAccepted), status.Status)

	job, err := cc.DispatchCommand(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobs.StatusCompleted, job.Status)

	status, err = cc.StatusCommand(ctx, resp.StatusLocationURI)
	require.NoError(t, err)
	assert.Equal(t, string(jobs.StatusCompleted), status.Status)
	assert.Equal(t, 1, status.TotalSuccessCount)
	assert.NotEmpty(t, status.EndTime)

	job, err = cc.DispatchCommand(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestStatusCommand_Unknown(t *testing.T) {
	cc := newLocalContext(t)

	status, err := cc.StatusCommand(context.Background(), "2024_1/missing")
	require.NoError(t, err)
	assert.Equal(t, string(jobs.StatusUnknown), status.Status)

	_, err = cc.StatusCommand(context.Background(), "no-slash")
	assert.ErrorIs(t, err, ErrInvalidJobID)
}

func TestParseJobRef(t *testing.T) {
	tests := []struct {
		ref    string
		pk, id string
		ok     bool
	}{
		{"2024_2/abc", "2024_2", "abc", true},
		{"/2024_2/abc/", "2024_2", "abc", true},
		{"https://host/api/restore/2024_2/abc", "2024_2", "abc", true},
		{"/api/restore/2024_2/abc", "2024_2", "abc", true},
		{"abc", "", "", false},
		{"a/b/c", "", "", false},
		{"https://host/api/restore/2024_2", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			pk, id, err := ParseJobRef(tt.ref)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidJobID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.pk, pk)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestHealthCommand_Local(t *testing.T) {
	cc := newLocalContext(t)

	res, err := cc.HealthCommand(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "store memory")
}

func TestIngestCommand_EmptyQueue(t *testing.T) {
	cc := newLocalContext(t)

	res, err := cc.IngestCommand(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Received)
}

func TestServeCommand(t *testing.T) {
	t.Run("nothing enabled", func(t *testing.T) {
		cc := newLocalContext(t)
		assert.ErrorIs(t, cc.ServeCommand(context.Background()), ErrNothingToRun)
	})

	t.Run("dispatcher runs accepted jobs until cancelled", func(t *testing.T) {
		cc := newLocalContext(t, func(c *Config) { c.Dispatch.Enabled = true })
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		resp, err := cc.RestoreCommand(ctx, restore.Request{StartDate: "2024-01-01", EndDate: "2024-01-01", ReqType: "Async"})
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() { done <- cc.ServeCommand(ctx) }()

		assert.Eventually(t, func() bool {
			status, err := cc.StatusCommand(ctx, resp.StatusLocationURI)
			return err == nil && status.Status == string(jobs.StatusCompleted)
		}, 5*time.Second, 20*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(15 * time.Second):
			t.Fatal("serve did not stop")
		}
	})
}

func TestServeCommand_OptionalListeners(t *testing.T) {
	cc := newLocalContext(t, func(c *Config) {
		c.QUIC = QUICConfig{Enabled: true, Address: "127.0.0.1:0", SelfSigned: true}
		c.MCP = MCPConfig{Enabled: true, Address: "127.0.0.1:0"}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cc.ServeCommand(ctx) }()
	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestRuntime_SharedBadger(t *testing.T) {
	dir := t.TempDir()
	cfg := validConfig(t)
	cfg.Journal = JournalConfig{Backend: "badger", Path: dir}
	cfg.Jobs = JobsConfig{Backend: "badger", Path: filepath.Join(dir, ".")}

	rt, err := NewRuntime(cfg, adapters.NewNoOpLogger())
	require.NoError(t, err)
	require.True(t, rt.sharedBadger())

	_, err = rt.Journal()
	require.NoError(t, err)
	_, err = rt.Registry(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rt.shared)
	require.NoError(t, rt.Close())

	// Both handles are released, so the directory can be opened again.
	rt, err = NewRuntime(cfg, adapters.NewNoOpLogger())
	require.NoError(t, err)
	_, err = rt.Journal()
	require.NoError(t, err)
	assert.NoError(t, rt.Close())
}

func TestRemoteCommands(t *testing.T) {
	server := newLocalContext(t, func(c *Config) { c.Server.BaseURL = "" })
	srv, err := server.Runtime.RESTServer(context.Background())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	cc, err := NewCommandContext(func() *Config {
		cfg := validConfig(t)
		cfg.Remote.URL = ts.URL
		return cfg
	}(), adapters.NewNoOpLogger())
	require.NoError(t, err)
	defer cc.Close()
	ctx := context.Background()

	res, err := cc.HealthCommand(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)

	resp, err := cc.RestoreCommand(ctx, restore.Request{StartDate: "2024-01-01", EndDate: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalSuccessCount)

	resp, err = cc.RestoreCommand(ctx, restore.Request{StartDate: "2024-01-01", EndDate: "2024-01-01", ReqType: "Async"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(resp.StatusLocationURI, ts.URL+"/api/restore/"))

	status, err := cc.StatusCommand(ctx, resp.StatusLocationURI)
	require.NoError(t, err)
	assert.Equal(t, string(jobs.StatusAccepted), status.Status)
}
