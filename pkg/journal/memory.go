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

package journal

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// MemoryStore keeps partitions as sorted slices. It is used by tests and
// single-process deployments that do not need durability.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string][]Record
	closed     bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string][]Record)}
}

// Append inserts a record keeping the partition sorted.
func (s *MemoryStore) Append(ctx context.Context, partitionKey, orderKey string, record []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	recs := s.partitions[partitionKey]
	i := sort.Search(len(recs), func(i int) bool { return recs[i].OrderKey >= orderKey })
	if i < len(recs) && recs[i].OrderKey == orderKey {
		return fmt.Errorf("%w: %s/%s", common.ErrEntryExists, partitionKey, orderKey)
	}

	recs = append(recs, Record{})
	copy(recs[i+1:], recs[i:])
	recs[i] = Record{OrderKey: orderKey, Data: append([]byte(nil), record...)}
	s.partitions[partitionKey] = recs
	return nil
}

// QueryRange returns one page of the requested range.
func (s *MemoryStore) QueryRange(ctx context.Context, q RangeQuery) (Page, error) {
	if err := q.validate(); err != nil {
		return Page{}, err
	}
	select {
	case <-ctx.Done():
		return Page{}, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Page{}, ErrStoreClosed
	}
	return paginate(s.partitions[q.PartitionKey], q)
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
