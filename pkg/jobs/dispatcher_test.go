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

package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/event"
	"github.com/jeremyhahn/go-objbackup/pkg/journal"
	"github.com/jeremyhahn/go-objbackup/pkg/memory"
	"github.com/jeremyhahn/go-objbackup/pkg/restore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, p restore.Params, progress restore.Progress) (restore.Result, error)

func (f runnerFunc) Run(ctx context.Context, p restore.Params, progress restore.Progress) (restore.Result, error) {
	return f(ctx, p, progress)
}

func okRunner(success, failure int) runnerFunc {
	return func(context.Context, restore.Params, restore.Progress) (restore.Result, error) {
		return restore.Result{
			SuccessCount: success,
			FailureCount: failure,
			StartTime:    baseTime,
			EndTime:      baseTime.Add(1500 * time.Millisecond),
		}, nil
	}
}

func newDispatcher(t *testing.T, reg Registry, runner Runner) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherConfig{Registry: reg, Runner: runner, Owner: "test-owner", Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	return d
}

func TestDispatcher_EndToEnd(t *testing.T) {
	ctx := context.Background()

	j, err := journal.New(journal.Config{Store: journal.NewMemoryStore()})
	require.NoError(t, err)
	store := memory.New()

	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	orig := "https://acct.blob.core.windows.net/docs/a.txt"
	require.NoError(t, store.Put(ctx, common.ObjectRef{Container: "backup2024", Name: "wk1/dy1/docs/a.txt.x"}, []byte("a")))
	require.NoError(t, j.Append(ctx, journal.NewEntry(event.NewCreated("11111111-1111-1111-1111-111111111111", orig, at, 1), &journal.BackupRef{
		BackupContainer:    "backup2024",
		BackupObjectName:   "wk1/dy1/docs/a.txt.x",
		OriginalContainer:  "docs",
		OriginalObjectName: "a.txt",
	})))
	require.NoError(t, j.Append(ctx, journal.NewEntry(event.NewDeleted("22222222-2222-2222-2222-222222222222",
		"https://acct.blob.core.windows.net/docs/b.txt", at.Add(time.Hour)), nil)))

	orch, err := restore.New(restore.Config{Journal: j, Target: store})
	require.NoError(t, err)

	reg := NewMemoryRegistry()
	job := New("2024_01", "job-1", restore.Request{StartDate: "2024-01-01", EndDate: "2024-01-01", ContainerName: "docs", ReqType: "Async"}, baseTime)
	require.NoError(t, reg.Insert(ctx, job))

	before, err := reg.Get(ctx, "2024_01", "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, before.Status)

	d := newDispatcher(t, reg, orch)
	ran, err := d.Tick(ctx)
	require.NoError(t, err)
	require.NotNil(t, ran)

	after, err := reg.Get(ctx, "2024_01", "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, after.Status)
	assert.Equal(t, 2, after.SuccessCount)
	assert.Equal(t, 0, after.FailureCount)
	assert.Equal(t, "test-owner", after.ClaimedBy)
	assert.NotEmpty(t, after.ExecutionTime)
	require.NotNil(t, after.StartedAt)
	require.NotNil(t, after.CompletedAt)
	assert.False(t, after.CompletedAt.Before(*after.StartedAt))

	data, err := store.Get(ctx, common.ObjectRef{Container: "docs", Name: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestDispatcher_IdleTick(t *testing.T) {
	d := newDispatcher(t, NewMemoryRegistry(), okRunner(0, 0))
	job, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDispatcher_RunErrorMarksException(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Insert(ctx, testJob("a", baseTime)))

	boom := errors.New("checkpoint write failed")
	d := newDispatcher(t, reg, runnerFunc(func(context.Context, restore.Params, restore.Progress) (restore.Result, error) {
		return restore.Result{SuccessCount: 4, StartTime: baseTime, EndTime: baseTime}, boom
	}))

	_, err := d.Tick(ctx)
	require.NoError(t, err)

	got, err := reg.Get(ctx, "2024_01", "a")
	require.NoError(t, err)
	assert.Equal(t, StatusException, got.Status)
	assert.Equal(t, boom.Error(), got.ErrorMessage)
	assert.Equal(t, 4, got.SuccessCount)
}

func TestDispatcher_CancelledRunStillRecordsException(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Insert(context.Background(), testJob("a", baseTime)))

	d := newDispatcher(t, reg, runnerFunc(func(ctx context.Context, _ restore.Params, _ restore.Progress) (restore.Result, error) {
		cancel()
		return restore.Result{SuccessCount: 1, StartTime: baseTime, EndTime: baseTime}, ctx.Err()
	}))

	_, err := d.Tick(ctx)
	require.NoError(t, err)

	got, err := reg.Get(context.Background(), "2024_01", "a")
	require.NoError(t, err)
	assert.Equal(t, StatusException, got.Status)
	assert.Equal(t, context.Canceled.Error(), got.ErrorMessage)
	assert.Equal(t, 1, got.SuccessCount)
}

func TestDispatcher_InvalidStoredRequest(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	job := New("2024_01", "bad", restore.Request{StartDate: "2024-02-01", EndDate: "2024-01-01"}, baseTime)
	require.NoError(t, reg.Insert(ctx, job))

	called := false
	d := newDispatcher(t, reg, runnerFunc(func(context.Context, restore.Params, restore.Progress) (restore.Result, error) {
		called = true
		return restore.Result{}, nil
	}))
	_, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, called)

	got, err := reg.Get(ctx, "2024_01", "bad")
	require.NoError(t, err)
	assert.Equal(t, StatusException, got.Status)
	assert.Contains(t, got.ErrorMessage, "StartDate")
}

func TestDispatcher_CheckpointPersistsCounts(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Insert(ctx, testJob("a", baseTime)))

	var mid *Job
	d := newDispatcher(t, reg, runnerFunc(func(ctx context.Context, _ restore.Params, progress restore.Progress) (restore.Result, error) {
		require.NoError(t, progress.Checkpoint(ctx, restore.Counts{Success: 100, Failure: 2}))
		var err error
		mid, err = reg.Get(ctx, "2024_01", "a")
		require.NoError(t, err)
		return restore.Result{SuccessCount: 150, FailureCount: 2, StartTime: baseTime, EndTime: baseTime}, nil
	}))

	_, err := d.Tick(ctx)
	require.NoError(t, err)

	require.NotNil(t, mid)
	assert.Equal(t, StatusProcessing, mid.Status)
	assert.Equal(t, 100, mid.SuccessCount)

	final, err := reg.Get(ctx, "2024_01", "a")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 150, final.SuccessCount)
}

func TestDispatcher_OverlappingTickIsSkipped(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Insert(ctx, testJob("a", baseTime)))
	require.NoError(t, reg.Insert(ctx, testJob("b", baseTime.Add(time.Second))))

	started := make(chan struct{})
	release := make(chan struct{})
	d := newDispatcher(t, reg, runnerFunc(func(context.Context, restore.Params, restore.Progress) (restore.Result, error) {
		close(started)
		<-release
		return restore.Result{}, nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := d.Tick(ctx)
		done <- err
	}()
	<-started

	job, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	pending, err := reg.Get(ctx, "2024_01", "b")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, pending.Status)

	close(release)
	require.NoError(t, <-done)
}

type failingUpdateRegistry struct {
	*MemoryRegistry
	err error
}

func (r *failingUpdateRegistry) Update(context.Context, *Job) error {
	return r.err
}

func TestDispatcher_FinalUpdateFailureKeepsLastState(t *testing.T) {
	ctx := context.Background()
	reg := &failingUpdateRegistry{MemoryRegistry: NewMemoryRegistry(), err: errors.New("disk full")}
	require.NoError(t, reg.Insert(ctx, testJob("a", baseTime)))

	d := newDispatcher(t, reg, okRunner(1, 0))
	_, err := d.Tick(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	got, err := reg.Get(ctx, "2024_01", "a")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
}

func TestDispatcher_ServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Insert(ctx, testJob("a", baseTime)))

	d := newDispatcher(t, reg, okRunner(1, 0))
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	require.Eventually(t, func() bool {
		job, err := reg.Get(context.Background(), "2024_01", "a")
		return err == nil && job.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.Equal(t, "restore-dispatcher", d.String())
}

func TestNewDispatcher_Defaults(t *testing.T) {
	_, err := NewDispatcher(DispatcherConfig{Registry: NewMemoryRegistry()})
	assert.ErrorIs(t, err, ErrRegistryRequired)

	d, err := NewDispatcher(DispatcherConfig{Registry: NewMemoryRegistry(), Runner: okRunner(0, 0)})
	require.NoError(t, err)
	assert.NotEmpty(t, d.Owner())
	assert.Equal(t, DefaultDispatchInterval, d.interval)
}
