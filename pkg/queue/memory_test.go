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

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMemoryQueue(t *testing.T) (*MemoryQueue, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := NewMemoryQueue()
	q.SetClock(clock.Now)
	return q, clock
}

func TestMemoryQueue_ReceiveHidesMessages(t *testing.T) {
	q, _ := newTestMemoryQueue(t)
	ctx := context.Background()

	for _, body := range []string{"a", "b", "c"} {
		_, err := q.Send(ctx, []byte(body))
		require.NoError(t, err)
	}

	first, err := q.Receive(ctx, 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "a", string(first[0].Body))
	assert.Equal(t, "b", string(first[1].Body))
	assert.Equal(t, 1, first[0].Attempts)

	second, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "c", string(second[0].Body))

	none, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, 3, q.Len())
}

func TestMemoryQueue_RedeliversAfterVisibility(t *testing.T) {
	q, clock := newTestMemoryQueue(t)
	ctx := context.Background()

	_, err := q.Send(ctx, []byte("payload"))
	require.NoError(t, err)

	first, err := q.Receive(ctx, 1, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, first, 1)

	clock.Advance(31 * time.Second)
	second, err := q.Receive(ctx, 1, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, 2, second[0].Attempts)
	assert.NotEqual(t, first[0].Receipt, second[0].Receipt)

	assert.ErrorIs(t, q.Delete(ctx, first[0]), ErrInvalidReceipt, "stale receipt")
	require.NoError(t, q.Delete(ctx, second[0]))
	assert.Equal(t, 0, q.Len())

	clock.Advance(time.Hour)
	none, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryQueue_DeleteUnknown(t *testing.T) {
	q, _ := newTestMemoryQueue(t)
	err := q.Delete(context.Background(), Message{ID: "missing", Receipt: "r"})
	assert.ErrorIs(t, err, ErrInvalidReceipt)
}

func TestMemoryQueue_Closed(t *testing.T) {
	q, _ := newTestMemoryQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Close())

	_, err := q.Send(ctx, []byte("x"))
	assert.ErrorIs(t, err, ErrQueueClosed)
	_, err = q.Receive(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Delete(ctx, Message{ID: "x"}), ErrQueueClosed)
}

func TestMemoryQueue_CanceledContext(t *testing.T) {
	q, _ := newTestMemoryQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Receive(ctx, 1, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
