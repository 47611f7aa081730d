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

// Package restore replays journaled changes over a date range to bring a
// set of containers back to the state the journal describes. Created
// entries are copied back from their backup location and deleted entries
// are deleted again, in event-time order, one UTC day at a time.
package restore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/event"
	"github.com/jeremyhahn/go-objbackup/pkg/journal"
	"github.com/jeremyhahn/go-objbackup/pkg/metrics"
)

// DefaultUpdateFrequency is the number of successes between progress
// checkpoints.
const DefaultUpdateFrequency = 100

// ErrJournalScan is returned by Run when the journal could not be read for
// one or more days. The days that were readable are still replayed.
var ErrJournalScan = errors.New("journal scan failed")

// Journal is the read side of the change journal used by restore.
type Journal interface {
	Day(ctx context.Context, day time.Time) iter.Seq2[*journal.Entry, error]
}

// Counts are the running totals of a restore.
type Counts struct {
	Success int
	Failure int
	Skipped int
	Scanned int
}

// Progress receives periodic checkpoints from a running restore. A
// checkpoint error aborts the run.
type Progress interface {
	Checkpoint(ctx context.Context, c Counts) error
}

// Result is the outcome of a restore run.
type Result struct {
	SuccessCount int       `json:"successCount"`
	FailureCount int       `json:"failureCount"`
	Skipped      int       `json:"skipped"`
	Scanned      int       `json:"scanned"`
	Days         int       `json:"days"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
}

// Duration is the wall-clock time of the run.
func (r Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// ExecutionTime formats Duration as HH:MM:SS.cc.
func (r Result) ExecutionTime() string {
	return FormatExecutionTime(r.Duration())
}

// Config configures an Orchestrator.
type Config struct {
	Journal Journal
	// Target is the object store restored into. Backup copies are read from
	// the same store.
	Target          common.ObjectStore
	UpdateFrequency int
	Logger          adapters.Logger
}

// Orchestrator runs restores.
type Orchestrator struct {
	journal    Journal
	target     common.ObjectStore
	updateFreq int
	logger     adapters.Logger
	now        func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Journal == nil || cfg.Target == nil {
		return nil, common.ErrStoreRequired
	}
	if cfg.UpdateFrequency <= 0 {
		cfg.UpdateFrequency = DefaultUpdateFrequency
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NewNoOpLogger()
	}
	return &Orchestrator{
		journal:    cfg.Journal,
		target:     cfg.Target,
		updateFreq: cfg.UpdateFrequency,
		logger:     cfg.Logger,
		now:        time.Now,
	}, nil
}

// Run replays every day from p.Start through p.End. Per-entry failures are
// counted and logged and never stop the run. A day whose scan fails counts
// as one failure and the run moves on; Run then returns an error wrapping
// ErrJournalScan. Cancellation and a rejected checkpoint stop the run at
// once. The partial result is returned alongside any error. progress may be
// nil.
func (o *Orchestrator) Run(ctx context.Context, p Params, progress Progress) (Result, error) {
	mode := "sync"
	if progress != nil {
		mode = "async"
	}

	run := &runState{o: o, params: p, progress: progress}
	res := Result{StartTime: o.now().UTC()}

	o.logger.Info(ctx, "Restore started",
		adapters.Field{Key: "start", Value: p.Start.Format(time.DateOnly)},
		adapters.Field{Key: "end", Value: p.End.Format(time.DateOnly)},
		adapters.Field{Key: "container", Value: p.Container},
		adapters.Field{Key: "names", Value: len(p.Names)},
		adapters.Field{Key: "skip_deletes", Value: p.SkipDeletes},
		adapters.Field{Key: "mode", Value: mode})

	var err error
	for _, day := range ExpandDays(p.Start, p.End) {
		if err = run.day(ctx, day); err != nil {
			break
		}
		res.Days++
	}
	if err == nil && run.scanErr != nil {
		err = fmt.Errorf("%w: %d day(s) unreadable: %w", ErrJournalScan, run.failedDays, run.scanErr)
	}

	res.SuccessCount = run.counts.Success
	res.FailureCount = run.counts.Failure
	res.Skipped = run.counts.Skipped
	res.Scanned = run.counts.Scanned
	res.EndTime = o.now().UTC()

	metrics.RecordRestoreRun(mode, res.Duration(), err)

	fields := []adapters.Field{
		{Key: "success", Value: res.SuccessCount},
		{Key: "failure", Value: res.FailureCount},
		{Key: "skipped", Value: res.Skipped},
		{Key: "scanned", Value: res.Scanned},
		{Key: "days", Value: res.Days},
		{Key: "execution_time", Value: res.ExecutionTime()},
	}
	if err != nil {
		o.logger.Error(ctx, "Restore aborted", append(fields, adapters.Field{Key: "error", Value: err.Error()})...)
		return res, err
	}
	o.logger.Info(ctx, "Restore finished", fields...)
	return res, nil
}

type runState struct {
	o        *Orchestrator
	params   Params
	progress Progress
	counts   Counts

	// first scan error and the number of days it affected
	scanErr    error
	failedDays int
}

// day replays one UTC day. Only cancellation and checkpoint failures are
// returned; a failed scan is counted, remembered for Run and the run moves
// on to the next day.
func (r *runState) day(ctx context.Context, day time.Time) error {
	logger := r.o.logger
	for entry, err := range r.o.journal.Day(ctx, day) {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			var derr *journal.DecodeError
			if errors.As(err, &derr) {
				r.counts.Scanned++
				r.counts.Failure++
				metrics.RecordRestoreEntry("decode", "failure")
				logger.Error(ctx, "Undecodable journal entry",
					adapters.Field{Key: "partition", Value: derr.PartitionKey},
					adapters.Field{Key: "order_key", Value: derr.OrderKey},
					adapters.Field{Key: "raw", Value: string(derr.Raw)},
					adapters.Field{Key: "error", Value: derr.Err.Error()})
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.counts.Failure++
			r.failedDays++
			if r.scanErr == nil {
				r.scanErr = err
			}
			metrics.RecordRestoreEntry("scan", "failure")
			logger.Error(ctx, "Journal scan failed, skipping day",
				adapters.Field{Key: "day", Value: day.Format(time.DateOnly)},
				adapters.Field{Key: "error", Value: err.Error()})
			return nil
		}

		r.counts.Scanned++
		if err := r.apply(ctx, entry); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// apply replays one entry and checkpoints when the success count reaches a
// multiple of the update frequency.
func (r *runState) apply(ctx context.Context, entry *journal.Entry) error {
	action, err := r.replay(ctx, entry)
	switch {
	case action == "":
		return nil
	case err != nil:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		r.counts.Failure++
		metrics.RecordRestoreEntry(action, "failure")
		r.o.logger.Error(ctx, "Restore entry failed",
			adapters.Field{Key: "action", Value: action},
			adapters.Field{Key: "entry", Value: entry},
			adapters.Field{Key: "error", Value: err.Error()})
		return nil
	}

	r.counts.Success++
	metrics.RecordRestoreEntry(action, "success")
	if r.progress != nil && r.counts.Success%r.o.updateFreq == 0 {
		if err := r.progress.Checkpoint(ctx, r.counts); err != nil {
			return err
		}
	}
	return nil
}

// replay performs the action for entry. An empty action means the entry
// was skipped or filtered out and is not counted as success or failure.
func (r *runState) replay(ctx context.Context, entry *journal.Entry) (string, error) {
	switch entry.Event.Kind {
	case event.KindCreated:
		if entry.Backup == nil {
			// The object was gone before it could be copied.
			if ref, err := entry.ObjectRef(); err == nil && r.params.Matches(ref) {
				r.skip(ctx, entry, "copy", "no backup copy")
			}
			return "", nil
		}
		if !r.params.Matches(entry.Backup.Original()) {
			return "", nil
		}
		_, err := r.o.target.Copy(ctx, entry.Backup.Backup(), entry.Backup.Original())
		return "copy", err

	case event.KindDeleted:
		ref, err := entry.ObjectRef()
		switch {
		case err != nil && r.params.Filtered():
			return "", nil
		case err == nil && !r.params.Matches(ref):
			return "", nil
		case r.params.SkipDeletes:
			r.skip(ctx, entry, "delete", "skip deletes")
			return "", nil
		case err != nil:
			return "delete", err
		}
		_, err = r.o.target.Delete(ctx, ref)
		return "delete", err
	}
	return "", nil
}

func (r *runState) skip(ctx context.Context, entry *journal.Entry, action, reason string) {
	r.counts.Skipped++
	metrics.RecordRestoreEntry(action, "skipped")
	r.o.logger.Debug(ctx, "Restore entry skipped",
		adapters.Field{Key: "action", Value: action},
		adapters.Field{Key: "reason", Value: reason},
		adapters.Field{Key: "order_key", Value: entry.OrderKey})
}
