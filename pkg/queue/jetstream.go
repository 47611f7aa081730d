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

//go:build nats

package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamConfig configures a JetStream pull consumer.
type JetStreamConfig struct {
	URL      string
	Stream   string
	Subject  string
	Consumer string

	// AckWait is the redelivery timeout for unacknowledged messages.
	AckWait time.Duration

	// FetchWait bounds how long Receive waits for the first message.
	FetchWait time.Duration

	Logger adapters.Logger
}

// jsConsumer is the subset of jetstream.Consumer used by JetStreamQueue.
type jsConsumer interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// JetStreamQueue consumes change notifications from a NATS JetStream stream.
// Deleting a message acknowledges it. Messages that are not deleted are
// redelivered by the server once AckWait elapses.
type JetStreamQueue struct {
	nc        *nats.Conn
	consumer  jsConsumer
	fetchWait time.Duration
	logger    adapters.Logger

	mu       sync.Mutex
	inflight map[string]jetstream.Msg
	closed   bool
}

// NewJetStreamQueue connects to NATS, ensures the stream and a durable
// consumer exist and returns a queue reading from them.
func NewJetStreamQueue(ctx context.Context, cfg JetStreamConfig) (*JetStreamQueue, error) {
	if cfg.URL == "" || cfg.Stream == "" || cfg.Subject == "" {
		return nil, fmt.Errorf("%w: url, stream and subject are required", common.ErrQueueNotSet)
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "objbackup-ingest"
	}
	if cfg.AckWait == 0 {
		cfg.AckWait = DefaultVisibilityTimeout
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("objbackup"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Consumer,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer %s: %w", cfg.Consumer, err)
	}

	q := newJetStreamQueue(consumer, cfg.FetchWait, cfg.Logger)
	q.nc = nc
	return q, nil
}

func newJetStreamQueue(consumer jsConsumer, fetchWait time.Duration, logger adapters.Logger) *JetStreamQueue {
	if fetchWait == 0 {
		fetchWait = 2 * time.Second
	}
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	return &JetStreamQueue{
		consumer:  consumer,
		fetchWait: fetchWait,
		logger:    logger,
		inflight:  make(map[string]jetstream.Msg),
	}
}

// Receive fetches up to maxMessages. The visibility argument is ignored:
// redelivery follows the consumer's AckWait.
func (q *JetStreamQueue) Receive(ctx context.Context, maxMessages int, visibility time.Duration) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return nil, ErrQueueClosed
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	batch, err := q.consumer.Fetch(maxMessages, jetstream.FetchMaxWait(q.fetchWait))
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	var msgs []Message
	for m := range batch.Messages() {
		id, attempts := "", 1
		if meta, err := m.Metadata(); err == nil {
			id = strconv.FormatUint(meta.Sequence.Stream, 10)
			attempts = int(meta.NumDelivered)
		}
		receipt := fmt.Sprintf("%s.%d", id, attempts)

		q.mu.Lock()
		q.inflight[receipt] = m
		q.mu.Unlock()

		msgs = append(msgs, Message{
			ID:       id,
			Body:     m.Data(),
			Receipt:  receipt,
			Attempts: attempts,
		})
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		q.logger.Warn(ctx, "JetStream fetch ended with error",
			adapters.Field{Key: "error", Value: err},
			adapters.Field{Key: "received", Value: len(msgs)})
	}
	return msgs, nil
}

// Delete acknowledges the delivery.
func (q *JetStreamQueue) Delete(ctx context.Context, msg Message) error {
	q.mu.Lock()
	m, ok := q.inflight[msg.Receipt]
	if ok {
		delete(q.inflight, msg.Receipt)
	}
	q.mu.Unlock()

	if !ok {
		return ErrInvalidReceipt
	}
	if err := m.Ack(); err != nil {
		return fmt.Errorf("ack message %s: %w", msg.ID, err)
	}
	return nil
}

// Close drops in-flight deliveries and closes the connection. Unacked
// messages are redelivered by the server.
func (q *JetStreamQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.inflight = nil
	if q.nc != nil {
		q.nc.Close()
	}
	return nil
}
