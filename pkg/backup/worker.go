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

// Package backup implements the ingestion worker. It drains change
// notifications from a queue, copies created objects to dated backup
// locations, records every change in the journal and only then
// acknowledges the notification.
package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/event"
	"github.com/jeremyhahn/go-objbackup/pkg/journal"
	"github.com/jeremyhahn/go-objbackup/pkg/metrics"
	"github.com/jeremyhahn/go-objbackup/pkg/queue"
)

// Defaults applied by NewWorker.
const (
	DefaultBatchSize         = 32
	DefaultVisibilityTimeout = 5 * time.Minute
	DefaultInterval          = 30 * time.Second
)

// Config configures a Worker.
type Config struct {
	Queue   queue.Queue
	Store   common.ObjectStore
	Journal *journal.Journal

	// BatchSize is the maximum number of messages per receive.
	BatchSize int

	// VisibilityTimeout hides received messages from other consumers until
	// they are acknowledged or the timeout passes.
	VisibilityTimeout time.Duration

	// Interval is the pause between batches in Run.
	Interval time.Duration

	// ContainerPrefix is prepended to the year of backup containers.
	ContainerPrefix string

	// TimestampSuffix selects UTC timestamp suffixes instead of UUIDs.
	TimestampSuffix bool

	Logger adapters.Logger
}

// BatchResult counts the outcomes of one batch.
type BatchResult struct {
	Received       int `json:"received"`
	Journaled      int `json:"journaled"`
	Copied         int `json:"copied"`
	SkippedMissing int `json:"skippedMissing"`
	Duplicates     int `json:"duplicates"`
	Malformed      int `json:"malformed"`
	Failed         int `json:"failed"`
	Acked          int `json:"acked"`
}

// Worker is the backup ingestion worker.
type Worker struct {
	queue     queue.Queue
	store     common.ObjectStore
	journal   *journal.Journal
	batchSize int
	vis       time.Duration
	interval  time.Duration
	prefix    string
	timestamp bool
	logger    adapters.Logger
	now       func() time.Time
}

// NewWorker creates a Worker. Queue, Store and Journal are required.
func NewWorker(cfg Config) (*Worker, error) {
	if cfg.Queue == nil || cfg.Store == nil || cfg.Journal == nil {
		return nil, fmt.Errorf("backup worker: queue, store and journal: %w", common.ErrStoreRequired)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NewNoOpLogger()
	}
	return &Worker{
		queue:     cfg.Queue,
		store:     cfg.Store,
		journal:   cfg.Journal,
		batchSize: cfg.BatchSize,
		vis:       cfg.VisibilityTimeout,
		interval:  cfg.Interval,
		prefix:    cfg.ContainerPrefix,
		timestamp: cfg.TimestampSuffix,
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// String names the worker in supervisor logs.
func (w *Worker) String() string {
	return "backup-worker"
}

// RunOnce receives and handles one batch. Per-message failures are logged
// and counted and never abort the batch; the returned error is only set
// when the queue itself could not be read.
func (w *Worker) RunOnce(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	start := time.Now()
	defer func() { metrics.ObserveIngestBatch(time.Since(start)) }()

	msgs, err := w.queue.Receive(ctx, w.batchSize, w.vis)
	if err != nil {
		return res, fmt.Errorf("receive notifications: %w", err)
	}
	res.Received = len(msgs)

	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}
		w.handle(ctx, msg, &res)
	}

	if res.Received > 0 {
		w.logger.Info(ctx, "Ingestion batch completed",
			adapters.Field{Key: "received", Value: res.Received},
			adapters.Field{Key: "journaled", Value: res.Journaled},
			adapters.Field{Key: "copied", Value: res.Copied},
			adapters.Field{Key: "skipped_missing", Value: res.SkippedMissing},
			adapters.Field{Key: "malformed", Value: res.Malformed},
			adapters.Field{Key: "failed", Value: res.Failed},
			adapters.Field{Key: "acked", Value: res.Acked})
	}
	return res, nil
}

func (w *Worker) handle(ctx context.Context, msg queue.Message, res *BatchResult) {
	logger := w.logger.WithFields(adapters.Field{Key: "message_id", Value: msg.ID})

	ev, err := event.ParseMessage(msg.Body)
	if err != nil {
		res.Malformed++
		metrics.RecordIngestMessage("malformed")
		logger.Warn(ctx, "Malformed notification left in queue",
			adapters.Field{Key: "error", Value: err},
			adapters.Field{Key: "attempts", Value: msg.Attempts},
			adapters.Field{Key: "body", Value: string(msg.Body)})
		return
	}
	logger = logger.WithFields(
		adapters.Field{Key: "event_id", Value: ev.ID},
		adapters.Field{Key: "kind", Value: string(ev.Kind)},
		adapters.Field{Key: "url", Value: ev.URL})

	var ref *journal.BackupRef
	switch ev.Kind {
	case event.KindCreated:
		ref, err = w.backup(ctx, ev, logger)
		if err != nil {
			if errors.Is(err, common.ErrInvalidObjectURL) || errors.Is(err, common.ErrInvalidObjectName) {
				res.Malformed++
				metrics.RecordIngestMessage("malformed")
			} else {
				res.Failed++
				metrics.RecordIngestMessage("failed")
			}
			logger.Error(ctx, "Backup copy failed, notification left in queue",
				adapters.Field{Key: "error", Value: err})
			return
		}
		if ref == nil {
			res.SkippedMissing++
			metrics.RecordIngestMessage("missing")
		} else {
			res.Copied++
			metrics.RecordIngestMessage("copied")
		}
	case event.KindDeleted:
		// Deletions are journaled only.
	}

	err = w.journal.Append(ctx, journal.NewEntry(ev, ref))
	switch {
	case errors.Is(err, common.ErrEntryExists):
		res.Duplicates++
		metrics.RecordIngestMessage("duplicate")
		logger.Warn(ctx, "Notification already journaled, acknowledging redelivery")
	case err != nil:
		res.Failed++
		metrics.RecordIngestMessage("failed")
		logger.Error(ctx, "Journal append failed, notification left in queue",
			adapters.Field{Key: "error", Value: err})
		return
	default:
		res.Journaled++
		metrics.RecordIngestMessage("journaled")
	}

	if err := w.queue.Delete(ctx, msg); err != nil {
		res.Failed++
		logger.Error(ctx, "Failed to acknowledge notification",
			adapters.Field{Key: "error", Value: err})
		return
	}
	res.Acked++
}

// backup copies the created object to its backup location. It returns a
// nil reference when the source no longer exists.
func (w *Worker) backup(ctx context.Context, ev event.ChangeEvent, logger adapters.Logger) (*journal.BackupRef, error) {
	src, err := ev.Object()
	if err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}

	exists, err := w.store.Exists(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", src, err)
	}
	if !exists {
		logger.Info(ctx, "Source object no longer exists, journaling without backup")
		return nil, nil
	}

	dst := Location(w.prefix, src, ev.EventTime, NewSuffix(w.timestamp, w.now()))
	opID, err := w.store.Copy(ctx, src, dst)
	if errors.Is(err, common.ErrNotFound) {
		logger.Info(ctx, "Source object removed before copy, journaling without backup")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}

	logger.Info(ctx, "Backup copy scheduled",
		adapters.Field{Key: "size", Value: ev.Size},
		adapters.Field{Key: "backup", Value: dst.String()},
		adapters.Field{Key: "copy_id", Value: opID})

	return &journal.BackupRef{
		BackupContainer:    dst.Container,
		BackupObjectName:   dst.Name,
		OriginalContainer:  src.Container,
		OriginalObjectName: src.Name,
		CopyOperationID:    opID,
	}, nil
}

// Run handles batches until ctx is cancelled. A full batch is followed
// immediately by the next one; otherwise the worker waits for Interval.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info(ctx, "Backup worker started",
		adapters.Field{Key: "interval", Value: w.interval.String()},
		adapters.Field{Key: "batch_size", Value: w.batchSize})

	for {
		w.drain(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			w.logger.Info(ctx, "Backup worker stopping (context done)")
			return
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error(ctx, "Ingestion batch failed",
					adapters.Field{Key: "error", Value: err.Error()})
			}
			return
		}
		if res.Received < w.batchSize {
			return
		}
	}
}

// Serve runs the worker as a supervised service.
func (w *Worker) Serve(ctx context.Context) error {
	w.Run(ctx)
	return ctx.Err()
}
