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

package backup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/event"
	"github.com/jeremyhahn/go-objbackup/pkg/journal"
	"github.com/jeremyhahn/go-objbackup/pkg/memory"
	"github.com/jeremyhahn/go-objbackup/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventTime = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

type harness struct {
	queue   *queue.MemoryQueue
	store   *memory.Memory
	journal *journal.Journal
	worker  *Worker
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{queue: queue.NewMemoryQueue(), store: memory.New()}

	j, err := journal.New(journal.Config{Store: journal.NewMemoryStore()})
	require.NoError(t, err)
	h.journal = j

	cfg := Config{Queue: h.queue, Store: h.store, Journal: j, BatchSize: 10}
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := NewWorker(cfg)
	require.NoError(t, err)
	h.worker = w
	return h
}

func (h *harness) send(t *testing.T, ev event.ChangeEvent) {
	t.Helper()
	body, err := event.EncodeMessage(ev)
	require.NoError(t, err)
	_, err = h.queue.Send(context.Background(), body)
	require.NoError(t, err)
}

func (h *harness) entries(t *testing.T) []*journal.Entry {
	t.Helper()
	var out []*journal.Entry
	for e, err := range h.journal.Day(context.Background(), eventTime) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestWorker_CreatedIsCopiedAndJournaled(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	src := common.ObjectRef{Container: "docs", Name: "a.txt"}
	require.NoError(t, h.store.Put(ctx, src, []byte("hello")))
	h.send(t, event.NewCreated("evt-1", "https://acct.blob.core.windows.net/docs/a.txt", eventTime, 5))

	res, err := h.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Received: 1, Journaled: 1, Copied: 1, Acked: 1}, res)
	assert.Equal(t, 0, h.queue.Len())

	entries := h.entries(t)
	require.Len(t, entries, 1)
	ref := entries[0].Backup
	require.NotNil(t, ref)
	assert.Equal(t, "2024", ref.BackupContainer)
	assert.True(t, strings.HasPrefix(ref.BackupObjectName, "wk1/dy1/docs/a.txt."), ref.BackupObjectName)
	assert.Equal(t, src, ref.Original())
	assert.NotEmpty(t, ref.CopyOperationID)

	data, err := h.store.Get(ctx, ref.Backup())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWorker_MissingSourceJournaledWithoutBackup(t *testing.T) {
	h := newHarness(t, nil)

	h.send(t, event.NewCreated("evt-1", "https://acct.blob.core.windows.net/docs/gone.txt", eventTime, 5))

	res, err := h.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Received: 1, Journaled: 1, SkippedMissing: 1, Acked: 1}, res)

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Backup)
	assert.Empty(t, h.store.List("2024"))
}

func TestWorker_DeletedIsJournaledOnly(t *testing.T) {
	h := newHarness(t, nil)

	h.send(t, event.NewDeleted("evt-2", "https://acct.blob.core.windows.net/docs/b.txt", eventTime))

	res, err := h.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Received: 1, Journaled: 1, Acked: 1}, res)

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, event.KindDeleted, entries[0].Event.Kind)
	assert.Nil(t, entries[0].Backup)
}

func TestWorker_MalformedMessageIsNotAcked(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.queue.Send(ctx, []byte(`{"eventType":"Microsoft.Storage.BlobTierChanged"}`))
	require.NoError(t, err)
	h.send(t, event.NewCreated("evt-3", "https://acct.blob.core.windows.net/onlycontainer", eventTime, 1))
	h.send(t, event.NewDeleted("evt-4", "https://acct.blob.core.windows.net/docs/c.txt", eventTime))

	res, err := h.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Received)
	assert.Equal(t, 2, res.Malformed)
	assert.Equal(t, 1, res.Journaled)
	assert.Equal(t, 1, res.Acked)
	assert.Equal(t, 2, h.queue.Len())
}

func TestWorker_DuplicateIsAcked(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ev := event.NewDeleted("evt-5", "https://acct.blob.core.windows.net/docs/d.txt", eventTime)

	h.send(t, ev)
	res, err := h.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Acked)

	// A redelivery after a lost ack carries the same event.
	h.send(t, ev)
	res, err = h.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Received: 1, Duplicates: 1, Acked: 1}, res)
	assert.Equal(t, 0, h.queue.Len())
	assert.Len(t, h.entries(t), 1)
}

type failingJournalStore struct {
	journal.Store
}

func (failingJournalStore) Append(ctx context.Context, pk, ok string, record []byte) error {
	return errors.New("table unavailable")
}

func TestWorker_JournalFailureLeavesMessage(t *testing.T) {
	j, err := journal.New(journal.Config{Store: failingJournalStore{Store: journal.NewMemoryStore()}})
	require.NoError(t, err)
	h := newHarness(t, func(c *Config) { c.Journal = j })

	h.send(t, event.NewDeleted("evt-6", "https://acct.blob.core.windows.net/docs/e.txt", eventTime))

	res, err := h.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Received: 1, Failed: 1}, res)
	assert.Equal(t, 1, h.queue.Len())
}

type errStore struct {
	*memory.Memory
	existsErr error
	copyErr   error
}

func (s *errStore) Exists(ctx context.Context, ref common.ObjectRef) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.Memory.Exists(ctx, ref)
}

func (s *errStore) Copy(ctx context.Context, src, dst common.ObjectRef) (string, error) {
	if s.copyErr != nil {
		return "", s.copyErr
	}
	return s.Memory.Copy(ctx, src, dst)
}

func TestWorker_StoreErrors(t *testing.T) {
	ctx := context.Background()
	src := common.ObjectRef{Container: "docs", Name: "f.txt"}

	t.Run("exists fails", func(t *testing.T) {
		store := &errStore{Memory: memory.New(), existsErr: errors.New("timeout")}
		h := newHarness(t, func(c *Config) { c.Store = store })
		h.send(t, event.NewCreated("evt-7", "https://acct.blob.core.windows.net/docs/f.txt", eventTime, 1))

		res, err := h.worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Received: 1, Failed: 1}, res)
		assert.Equal(t, 1, h.queue.Len())
		assert.Empty(t, h.entries(t))
	})

	t.Run("copy fails", func(t *testing.T) {
		store := &errStore{Memory: memory.New(), copyErr: errors.New("throttled")}
		require.NoError(t, store.Put(ctx, src, []byte("x")))
		h := newHarness(t, func(c *Config) { c.Store = store })
		h.send(t, event.NewCreated("evt-8", "https://acct.blob.core.windows.net/docs/f.txt", eventTime, 1))

		res, err := h.worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Received: 1, Failed: 1}, res)
		assert.Equal(t, 1, h.queue.Len())
	})

	t.Run("source removed before copy", func(t *testing.T) {
		store := &errStore{Memory: memory.New(), copyErr: common.ErrNotFound}
		require.NoError(t, store.Put(ctx, src, []byte("x")))
		h := newHarness(t, func(c *Config) { c.Store = store })
		h.send(t, event.NewCreated("evt-9", "https://acct.blob.core.windows.net/docs/f.txt", eventTime, 1))

		res, err := h.worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Received: 1, Journaled: 1, SkippedMissing: 1, Acked: 1}, res)
	})
}

func TestWorker_TimestampSuffix(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.TimestampSuffix = true
		c.ContainerPrefix = "bk-"
	})
	h.worker.now = func() time.Time { return time.Date(2024, 1, 1, 9, 31, 0, 5, time.UTC) }
	ctx := context.Background()

	require.NoError(t, h.store.Put(ctx, common.ObjectRef{Container: "docs", Name: "a.txt"}, []byte("x")))
	h.send(t, event.NewCreated("evt-10", "https://acct.blob.core.windows.net/docs/a.txt", eventTime, 1))

	_, err := h.worker.RunOnce(ctx)
	require.NoError(t, err)

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "bk-2024", entries[0].Backup.BackupContainer)
	assert.Equal(t, "wk1/dy1/docs/a.txt.20240101T093100.000000005Z", entries[0].Backup.BackupObjectName)
}

type brokenQueue struct{ queue.Queue }

func (brokenQueue) Receive(ctx context.Context, n int, vis time.Duration) ([]queue.Message, error) {
	return nil, errors.New("queue offline")
}

func TestWorker_ReceiveError(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Queue = brokenQueue{} })
	_, err := h.worker.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue offline")
}

func TestNewWorker_RequiresCollaborators(t *testing.T) {
	_, err := NewWorker(Config{})
	assert.ErrorIs(t, err, common.ErrStoreRequired)
}

func TestWorker_RunDrainsFullBatches(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.BatchSize = 2
		c.Interval = time.Hour
	})
	for i := 0; i < 5; i++ {
		h.send(t, event.NewDeleted(string(rune('a'+i))+"-evt", "https://acct.blob.core.windows.net/docs/x.txt", eventTime.Add(time.Duration(i)*time.Second)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Serve(ctx) }()

	require.Eventually(t, func() bool { return h.queue.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Len(t, h.entries(t), 5)
}
