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
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/event"
)

// ErrWatcherStopped is returned when adding a watch after Close.
var ErrWatcherStopped = errors.New("watcher stopped")

const maxDebounceEntries = 4096

// WatchConfig configures a WatchQueue.
type WatchConfig struct {
	// Root is the directory of a local object store. Its first-level
	// directories are containers.
	Root string

	// SkipContainer reports containers whose changes are not published,
	// typically the backup containers written into the same root.
	SkipContainer func(container string) bool

	// DebounceDelay suppresses repeated events for one path. Default: 100ms.
	DebounceDelay time.Duration

	Logger adapters.Logger
}

// WatchQueue turns filesystem changes under a local object store root into
// change notifications. Created and Deleted events are encoded in the same
// format as cloud notifications and queued in memory with visibility
// semantics, so the ingestion worker treats them like any other queue.
type WatchQueue struct {
	*MemoryQueue

	root          string
	skip          func(string) bool
	debounceDelay time.Duration
	logger        adapters.Logger
	watcher       *fsnotify.Watcher

	mu        sync.Mutex
	watching  map[string]bool
	lastEvent map[string]time.Time
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatchQueue starts a recursive watch on cfg.Root.
func NewWatchQueue(cfg WatchConfig) (*WatchQueue, error) {
	if cfg.Root == "" {
		return nil, common.ErrPathNotSet
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NewNoOpLogger()
	}
	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	if cfg.SkipContainer == nil {
		cfg.SkipContainer = func(string) bool { return false }
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &WatchQueue{
		MemoryQueue:   NewMemoryQueue(),
		root:          root,
		skip:          cfg.SkipContainer,
		debounceDelay: cfg.DebounceDelay,
		logger:        cfg.Logger,
		watcher:       watcher,
		watching:      make(map[string]bool),
		lastEvent:     make(map[string]time.Time),
		ctx:           ctx,
		cancel:        cancel,
	}

	if err := q.addTree(root); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, err
	}

	q.wg.Add(1)
	go q.processEvents()

	q.logger.Info(ctx, "Started watching local object store",
		adapters.Field{Key: "root", Value: root})
	return q, nil
}

// Close stops the watcher and discards undelivered notifications.
func (q *WatchQueue) Close() error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	if err := q.watcher.Close(); err != nil {
		q.logger.Error(q.ctx, "Error closing fsnotify watcher",
			adapters.Field{Key: "error", Value: err.Error()})
	}
	q.wg.Wait()
	return q.MemoryQueue.Close()
}

// addTree watches dir and every directory below it.
func (q *WatchQueue) addTree(dir string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrWatcherStopped
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			q.logger.Warn(q.ctx, "Error walking path",
				adapters.Field{Key: "path", Value: path},
				adapters.Field{Key: "error", Value: err.Error()})
			return nil
		}
		if !d.IsDir() || q.watching[path] {
			return nil
		}
		if path != dir && q.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := q.watcher.Add(path); err != nil {
			if path == dir {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			q.logger.Warn(q.ctx, "Failed to watch subdirectory",
				adapters.Field{Key: "path", Value: path},
				adapters.Field{Key: "error", Value: err.Error()})
			return nil
		}
		q.watching[path] = true
		return nil
	})
}

func (q *WatchQueue) processEvents() {
	defer q.wg.Done()

	for {
		select {
		case ev, ok := <-q.watcher.Events:
			if !ok {
				return
			}
			q.handleEvent(ev)

		case err, ok := <-q.watcher.Errors:
			if !ok {
				return
			}
			q.logger.Error(q.ctx, "Filesystem watcher error",
				adapters.Field{Key: "error", Value: err.Error()})

		case <-q.ctx.Done():
			return
		}
	}
}

func (q *WatchQueue) handleEvent(ev fsnotify.Event) {
	if q.shouldIgnore(ev.Name) {
		return
	}

	var kind event.Kind
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		kind = event.KindCreated
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		kind = event.KindDeleted
	default:
		return
	}

	var size int64
	if kind == event.KindCreated {
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := q.addTree(ev.Name); err != nil && !errors.Is(err, ErrWatcherStopped) {
				q.logger.Warn(q.ctx, "Failed to watch new directory",
					adapters.Field{Key: "path", Value: ev.Name},
					adapters.Field{Key: "error", Value: err.Error()})
			}
			return
		}
		size = info.Size()
	} else {
		q.mu.Lock()
		delete(q.watching, ev.Name)
		q.mu.Unlock()
	}

	if !q.shouldProcess(ev.Name, kind) {
		return
	}

	ref, ok := q.objectRef(ev.Name)
	if !ok || q.skip(ref.Container) {
		return
	}

	objectURL := (&url.URL{Scheme: "file", Path: "/" + ref.Container + "/" + ref.Name}).String()
	now := time.Now().UTC()
	var change event.ChangeEvent
	if kind == event.KindCreated {
		change = event.NewCreated(uuid.NewString(), objectURL, now, size)
	} else {
		change = event.NewDeleted(uuid.NewString(), objectURL, now)
	}

	body, err := event.EncodeMessage(change)
	if err != nil {
		q.logger.Warn(q.ctx, "Dropping unencodable change",
			adapters.Field{Key: "path", Value: ev.Name},
			adapters.Field{Key: "error", Value: err.Error()})
		return
	}
	if _, err := q.Send(q.ctx, body); err != nil {
		q.logger.Warn(q.ctx, "Dropping change",
			adapters.Field{Key: "path", Value: ev.Name},
			adapters.Field{Key: "error", Value: err.Error()})
		return
	}
	q.logger.Debug(q.ctx, "Change queued",
		adapters.Field{Key: "object", Value: ref.String()},
		adapters.Field{Key: "kind", Value: string(kind)})
}

// objectRef maps an absolute path below root to container and object name.
func (q *WatchQueue) objectRef(path string) (common.ObjectRef, bool) {
	rel, err := filepath.Rel(q.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return common.ObjectRef{}, false
	}
	container, name, ok := strings.Cut(filepath.ToSlash(rel), "/")
	if !ok || name == "" {
		return common.ObjectRef{}, false
	}
	ref := common.ObjectRef{Container: container, Name: name}
	if ref.Validate() != nil {
		return common.ObjectRef{}, false
	}
	return ref, true
}

// shouldIgnore skips hidden files, in-flight copies and editor leftovers.
func (q *WatchQueue) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".tmp")
}

// shouldProcess debounces repeated events of the same kind for one path.
func (q *WatchQueue) shouldProcess(path string, kind event.Kind) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := string(kind) + ":" + path
	now := time.Now()
	if len(q.lastEvent) > maxDebounceEntries {
		for k, at := range q.lastEvent {
			if now.Sub(at) >= q.debounceDelay {
				delete(q.lastEvent, k)
			}
		}
	}
	if last, ok := q.lastEvent[key]; ok && now.Sub(last) < q.debounceDelay {
		return false
	}
	q.lastEvent[key] = now
	return true
}
