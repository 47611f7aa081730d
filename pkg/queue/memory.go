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
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryItem struct {
	id        string
	body      []byte
	receipt   string
	attempts  int
	visibleAt time.Time
}

// MemoryQueue is a process-local queue with visibility timeouts. It backs
// tests and the filesystem watcher.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []*memoryItem
	now    func() time.Time
	closed bool
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{now: time.Now}
}

// SetClock replaces the time source. Tests use it to expire visibility
// timeouts without sleeping.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	q.now = now
	q.mu.Unlock()
}

// Send enqueues body and returns the message id.
func (q *MemoryQueue) Send(ctx context.Context, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}
	item := &memoryItem{
		id:   uuid.NewString(),
		body: append([]byte(nil), body...),
	}
	q.items = append(q.items, item)
	return item.id, nil
}

// Receive returns up to maxMessages visible messages in enqueue order.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, visibility time.Duration) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if visibility <= 0 {
		visibility = DefaultVisibilityTimeout
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	now := q.now()
	msgs := make([]Message, 0, maxMessages)
	for _, item := range q.items {
		if len(msgs) >= maxMessages {
			break
		}
		if item.visibleAt.After(now) {
			continue
		}
		item.attempts++
		item.receipt = uuid.NewString()
		item.visibleAt = now.Add(visibility)
		msgs = append(msgs, Message{
			ID:       item.id,
			Body:     append([]byte(nil), item.body...),
			Receipt:  item.receipt,
			Attempts: item.attempts,
		})
	}
	return msgs, nil
}

// Delete removes the message delivered with msg.Receipt.
func (q *MemoryQueue) Delete(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	for i, item := range q.items {
		if item.id != msg.ID {
			continue
		}
		if item.receipt == "" || item.receipt != msg.Receipt {
			return ErrInvalidReceipt
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		return nil
	}
	return ErrInvalidReceipt
}

// Len returns the number of messages not yet deleted, visible or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close discards all messages.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	return nil
}
