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

// Package queue defines the notification queue the ingestion worker drains
// and its backends: an in-memory queue, Amazon SQS, a NATS JetStream pull
// consumer and a filesystem watcher that feeds the local object store.
//
// Messages are delivered at least once. A received message stays invisible
// for the visibility timeout and is redelivered unless it is deleted.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQueueClosed is returned by operations on a closed queue.
	ErrQueueClosed = errors.New("queue closed")

	// ErrInvalidReceipt is returned when deleting with a receipt that is
	// unknown or was superseded by a later delivery.
	ErrInvalidReceipt = errors.New("invalid receipt")
)

// DefaultVisibilityTimeout is used when Receive is called with a zero
// visibility.
const DefaultVisibilityTimeout = 5 * time.Minute

// Message is one delivery of a notification.
type Message struct {
	// ID identifies the message across deliveries.
	ID string

	// Body is the raw notification payload.
	Body []byte

	// Receipt identifies this delivery and is required to delete it.
	Receipt string

	// Attempts counts deliveries including this one, when the backend
	// reports it.
	Attempts int
}

// Queue is the consumer side of a notification queue.
type Queue interface {
	// Receive returns up to maxMessages visible messages and hides them for
	// visibility. It returns an empty slice when nothing is available.
	Receive(ctx context.Context, maxMessages int, visibility time.Duration) ([]Message, error)

	// Delete acknowledges a delivery so it is not redelivered.
	Delete(ctx context.Context, msg Message) error

	// Close releases the queue's resources.
	Close() error
}
