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
	"sort"
	"sync"
	"time"
)

// MemoryRegistry keeps jobs in process memory.
type MemoryRegistry struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	closed bool
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string]*Job)}
}

// Insert stores a copy of job.
func (r *MemoryRegistry) Insert(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.jobs[job.Key()]; ok {
		return exists(job.PartitionKey, job.ID)
	}
	r.jobs[job.Key()] = job.Clone()
	return nil
}

// Get returns a copy of the stored job.
func (r *MemoryRegistry) Get(ctx context.Context, pk, id string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	job, ok := r.jobs[pk+"/"+id]
	if !ok {
		return nil, notFound(pk, id)
	}
	return job.Clone(), nil
}

// ClaimNextPending claims the Accepted job with the oldest CreatedAt.
func (r *MemoryRegistry) ClaimNextPending(ctx context.Context, owner string, now time.Time) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}

	var pending []*Job
	for _, job := range r.jobs {
		if job.Status == StatusAccepted {
			pending = append(pending, job)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sort.Slice(pending, func(a, b int) bool {
		if !pending[a].CreatedAt.Equal(pending[b].CreatedAt) {
			return pending[a].CreatedAt.Before(pending[b].CreatedAt)
		}
		return pending[a].Key() < pending[b].Key()
	})

	job := pending[0]
	if err := job.Claim(owner, now); err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// Update replaces the stored job.
func (r *MemoryRegistry) Update(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.jobs[job.Key()]; !ok {
		return notFound(job.PartitionKey, job.ID)
	}
	r.jobs[job.Key()] = job.Clone()
	return nil
}

// Close marks the registry closed.
func (r *MemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
