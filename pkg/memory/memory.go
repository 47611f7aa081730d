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

// Package memory provides an in-memory object store. It is used by tests
// and by single-process setups that do not need persistence.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// Memory is an object store that keeps objects in a map.
type Memory struct {
	mu      sync.RWMutex
	objects map[common.ObjectRef][]byte
}

// New creates an empty Memory store.
func New() *Memory {
	return &Memory{objects: make(map[common.ObjectRef][]byte)}
}

// Configure sets up the backend. The memory backend has no settings.
func (m *Memory) Configure(settings map[string]string) error {
	return nil
}

// Put stores data under ref, replacing any existing object.
func (m *Memory) Put(ctx context.Context, ref common.ObjectRef, data []byte) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	m.objects[ref] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the object data.
func (m *Memory) Get(ctx context.Context, ref common.ObjectRef) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, ref)
	}
	return append([]byte(nil), data...), nil
}

// Exists reports whether ref is stored.
func (m *Memory) Exists(ctx context.Context, ref common.ObjectRef) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	m.mu.RLock()
	_, ok := m.objects[ref]
	m.mu.RUnlock()
	return ok, nil
}

// Copy duplicates src to dst. The copy completes before Copy returns.
func (m *Memory) Copy(ctx context.Context, src, dst common.ObjectRef) (string, error) {
	if err := dst.Validate(); err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[src]
	if !ok {
		return "", fmt.Errorf("%w: %s", common.ErrNotFound, src)
	}
	m.objects[dst] = append([]byte(nil), data...)
	return uuid.NewString(), nil
}

// Delete removes ref. It reports false when nothing was stored.
func (m *Memory) Delete(ctx context.Context, ref common.ObjectRef) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[ref]; !ok {
		return false, nil
	}
	delete(m.objects, ref)
	return true, nil
}

// List returns the refs stored in container, sorted by name.
func (m *Memory) List(container string) []common.ObjectRef {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var refs []common.ObjectRef
	for ref := range m.objects {
		if container == "" || ref.Container == container {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Container != refs[j].Container {
			return refs[i].Container < refs[j].Container
		}
		return refs[i].Name < refs[j].Name
	})
	return refs
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
