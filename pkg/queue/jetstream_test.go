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
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockJSMsg struct {
	jetstream.Msg
	data      []byte
	seq       uint64
	delivered uint64
	acked     bool
}

func (m *mockJSMsg) Data() []byte { return m.data }

func (m *mockJSMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{
		Sequence:     jetstream.SequencePair{Stream: m.seq},
		NumDelivered: m.delivered,
	}, nil
}

func (m *mockJSMsg) Ack() error {
	m.acked = true
	return nil
}

type mockBatch struct {
	msgs chan jetstream.Msg
	err  error
}

func (b *mockBatch) Messages() <-chan jetstream.Msg { return b.msgs }
func (b *mockBatch) Error() error                   { return b.err }

type mockConsumer struct {
	pending []*mockJSMsg
	err     error
	batches []int
}

func (c *mockConsumer) Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error) {
	c.batches = append(c.batches, batch)
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan jetstream.Msg, len(c.pending))
	n := 0
	for _, m := range c.pending {
		if n == batch {
			break
		}
		ch <- m
		n++
	}
	c.pending = c.pending[n:]
	close(ch)
	return &mockBatch{msgs: ch}, nil
}

func TestJetStreamQueue_ReceiveAndDelete(t *testing.T) {
	first := &mockJSMsg{data: []byte(`{"id":"1"}`), seq: 7, delivered: 1}
	second := &mockJSMsg{data: []byte(`{"id":"2"}`), seq: 8, delivered: 3}
	consumer := &mockConsumer{pending: []*mockJSMsg{first, second}}
	q := newJetStreamQueue(consumer, 0, nil)
	ctx := context.Background()

	msgs, err := q.Receive(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []int{10}, consumer.batches)

	assert.Equal(t, "7", msgs[0].ID)
	assert.Equal(t, 1, msgs[0].Attempts)
	assert.Equal(t, `{"id":"1"}`, string(msgs[0].Body))
	assert.Equal(t, 3, msgs[1].Attempts)

	require.NoError(t, q.Delete(ctx, msgs[1]))
	assert.True(t, second.acked)
	assert.False(t, first.acked)

	assert.ErrorIs(t, q.Delete(ctx, msgs[1]), ErrInvalidReceipt)
}

func TestJetStreamQueue_FetchError(t *testing.T) {
	consumer := &mockConsumer{err: errors.New("no responders")}
	q := newJetStreamQueue(consumer, 0, nil)

	_, err := q.Receive(context.Background(), 5, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no responders")
}

func TestJetStreamQueue_Closed(t *testing.T) {
	q := newJetStreamQueue(&mockConsumer{}, 0, nil)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err := q.Receive(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrQueueClosed)
}
