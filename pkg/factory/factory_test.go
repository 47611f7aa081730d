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

package factory

import (
	"context"
	"testing"

	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/local"
	"github.com/jeremyhahn/go-objbackup/pkg/memory"
	"github.com/jeremyhahn/go-objbackup/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_Memory(t *testing.T) {
	store, err := NewStore("memory", nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Memory{}, store)
	require.NoError(t, store.Close())
}

func TestNewStore_Local(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore("local", map[string]string{"path": root})
	require.NoError(t, err)
	require.IsType(t, &local.Local{}, store)
	assert.Equal(t, root, store.(*local.Local).Root())

	ok, err := store.Exists(context.Background(), common.ObjectRef{Container: "docs", Name: "a.txt"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewStore_LocalRequiresPath(t *testing.T) {
	_, err := NewStore("local", map[string]string{})
	assert.ErrorIs(t, err, common.ErrPathNotSet)
}

func TestNewStore_Unknown(t *testing.T) {
	_, err := NewStore("floppy", nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestRegisterStore_Custom(t *testing.T) {
	called := false
	RegisterStore("test-custom", func(settings map[string]string) (common.ObjectStore, error) {
		called = true
		assert.Equal(t, "v", settings["k"])
		return memory.New(), nil
	})

	_, err := NewStore("test-custom", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, StoreTypes(), "test-custom")
}

func TestNewQueue_Memory(t *testing.T) {
	q, err := NewQueue("memory", nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &queue.MemoryQueue{}, q)
	require.NoError(t, q.Close())
}

func TestNewQueue_Watch(t *testing.T) {
	q, err := NewQueue("watch", map[string]string{
		"path":              t.TempDir(),
		"excludeContainers": `^[0-9]{4}$`,
		"debounce":          "50ms",
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &queue.WatchQueue{}, q)
	require.NoError(t, q.Close())
}

func TestNewQueue_WatchInvalidSettings(t *testing.T) {
	root := t.TempDir()

	_, err := NewQueue("watch", map[string]string{"path": root, "excludeContainers": "("}, nil)
	assert.Error(t, err)

	_, err = NewQueue("watch", map[string]string{"path": root, "debounce": "soon"}, nil)
	assert.Error(t, err)

	_, err = NewQueue("watch", map[string]string{}, nil)
	assert.ErrorIs(t, err, common.ErrPathNotSet)
}

func TestNewQueue_Unknown(t *testing.T) {
	_, err := NewQueue("carrier-pigeon", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownQueue)
}

func TestTypes_Sorted(t *testing.T) {
	types := QueueTypes()
	assert.Contains(t, types, "memory")
	assert.Contains(t, types, "watch")
	assert.IsIncreasing(t, types)
}
