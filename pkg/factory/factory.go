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

// Package factory creates object stores and notification queues by backend
// name. Backends register themselves from init functions; cloud backends are
// compiled in with build tags (awss3, azureblob, gcpstorage, awssqs, nats).
package factory

import (
	"sort"
	"sync"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/queue"
)

// StoreCreator is a function that creates an object store.
type StoreCreator func(settings map[string]string) (common.ObjectStore, error)

// QueueCreator is a function that creates a notification queue.
type QueueCreator func(settings map[string]string, logger adapters.Logger) (queue.Queue, error)

var (
	mu            sync.RWMutex
	storeRegistry = make(map[string]StoreCreator)
	queueRegistry = make(map[string]QueueCreator)
)

// RegisterStore registers an object store creator.
func RegisterStore(backendType string, creator StoreCreator) {
	mu.Lock()
	defer mu.Unlock()
	storeRegistry[backendType] = creator
}

// RegisterQueue registers a queue creator.
func RegisterQueue(queueType string, creator QueueCreator) {
	mu.Lock()
	defer mu.Unlock()
	queueRegistry[queueType] = creator
}

// NewStore creates a new object store based on the given type.
func NewStore(backendType string, settings map[string]string) (common.ObjectStore, error) {
	mu.RLock()
	creator, exists := storeRegistry[backendType]
	mu.RUnlock()
	if !exists {
		return nil, ErrUnknownBackend
	}
	return creator(settings)
}

// NewQueue creates a new notification queue based on the given type. A nil
// logger is replaced with a no-op logger.
func NewQueue(queueType string, settings map[string]string, logger adapters.Logger) (queue.Queue, error) {
	mu.RLock()
	creator, exists := queueRegistry[queueType]
	mu.RUnlock()
	if !exists {
		return nil, ErrUnknownQueue
	}
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	return creator(settings, logger)
}

// StoreTypes lists the registered object store backends.
func StoreTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(storeRegistry)
}

// QueueTypes lists the registered queue backends.
func QueueTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(queueRegistry)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
