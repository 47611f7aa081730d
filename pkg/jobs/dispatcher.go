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
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/metrics"
	"github.com/jeremyhahn/go-objbackup/pkg/restore"
)

// DefaultDispatchInterval is the tick period of Run.
const DefaultDispatchInterval = 10 * time.Second

// FinalWriteTimeout bounds the write of a job's final status, which runs
// detached from the tick's context.
const FinalWriteTimeout = 5 * time.Second

// Runner executes a validated restore. *restore.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, p restore.Params, progress restore.Progress) (restore.Result, error)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Registry Registry
	Runner   Runner
	// Owner is recorded as ClaimedBy. Defaults to "{hostname}-{random}".
	Owner    string
	Interval time.Duration
	Logger   adapters.Logger
}

// Dispatcher claims Accepted jobs and runs them one at a time.
type Dispatcher struct {
	registry Registry
	runner   Runner
	owner    string
	interval time.Duration
	logger   adapters.Logger
	now      func() time.Time

	// running is held for the length of a tick; overlapping ticks skip.
	running sync.Mutex
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil || cfg.Runner == nil {
		return nil, ErrRegistryRequired
	}
	if cfg.Owner == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "objbackup"
		}
		cfg.Owner = host + "-" + uuid.NewString()[:8]
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultDispatchInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NewNoOpLogger()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		runner:   cfg.Runner,
		owner:    cfg.Owner,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

// String implements fmt.Stringer for supervisor logs.
func (d *Dispatcher) String() string {
	return "restore-dispatcher"
}

// Owner returns the claim owner recorded on jobs.
func (d *Dispatcher) Owner() string {
	return d.owner
}

// Tick claims at most one pending job and runs it to completion. It returns
// the job it ran, or nil when nothing was pending or a previous tick is
// still running. The error is non-nil only when the claim or the final
// status write failed.
func (d *Dispatcher) Tick(ctx context.Context) (*Job, error) {
	if !d.running.TryLock() {
		metrics.RecordDispatchTick("busy")
		d.logger.Debug(ctx, "Dispatch tick skipped, previous run still active")
		return nil, nil
	}
	defer d.running.Unlock()

	job, err := d.registry.ClaimNextPending(ctx, d.owner, d.now())
	if err != nil {
		metrics.RecordDispatchTick("error")
		return nil, fmt.Errorf("claim pending job: %w", err)
	}
	if job == nil {
		metrics.RecordDispatchTick("idle")
		return nil, nil
	}
	metrics.RecordJobStatus(string(StatusProcessing))

	logger := d.logger.WithFields(
		adapters.Field{Key: "job", Value: job.Key()},
		adapters.Field{Key: "owner", Value: d.owner})
	logger.Info(ctx, "Restore job claimed")

	res, runErr := d.execute(ctx, job, logger)

	job.SuccessCount = res.SuccessCount
	job.FailureCount = res.FailureCount
	if !res.StartTime.IsZero() {
		job.ExecutionTime = res.ExecutionTime()
	}
	final := StatusCompleted
	if runErr != nil {
		final = StatusException
		job.ErrorMessage = runErr.Error()
	}
	if err := job.Transition(final, d.now()); err != nil {
		metrics.RecordDispatchTick("error")
		return job, err
	}

	// The outcome is written even when ctx was cancelled by shutdown, so the
	// job does not stay in Processing.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FinalWriteTimeout)
	defer cancel()
	if err := d.registry.Update(wctx, job); err != nil {
		metrics.RecordDispatchTick("error")
		logger.Error(ctx, "Failed to record restore job outcome",
			adapters.Field{Key: "status", Value: string(final)},
			adapters.Field{Key: "error", Value: err.Error()})
		return job, fmt.Errorf("update job %s: %w", job.Key(), err)
	}

	metrics.RecordJobStatus(string(final))
	metrics.RecordDispatchTick("ran")
	logger.Info(ctx, "Restore job finished",
		adapters.Field{Key: "status", Value: string(final)},
		adapters.Field{Key: "success", Value: job.SuccessCount},
		adapters.Field{Key: "failure", Value: job.FailureCount},
		adapters.Field{Key: "execution_time", Value: job.ExecutionTime})
	return job, nil
}

func (d *Dispatcher) execute(ctx context.Context, job *Job, logger adapters.Logger) (restore.Result, error) {
	p, err := job.Request.Validate()
	if err != nil {
		return restore.Result{}, err
	}
	progress := &jobProgress{registry: d.registry, job: job, logger: logger}
	return d.runner.Run(ctx, p, progress)
}

// Run ticks every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info(ctx, "Restore dispatcher started",
		adapters.Field{Key: "interval", Value: d.interval.String()},
		adapters.Field{Key: "owner", Value: d.owner})

	for {
		if _, err := d.Tick(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error(ctx, "Dispatch tick failed",
				adapters.Field{Key: "error", Value: err.Error()})
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			d.logger.Info(ctx, "Restore dispatcher stopping (context done)")
			return
		}
	}
}

// Serve runs the dispatcher as a supervised service.
func (d *Dispatcher) Serve(ctx context.Context) error {
	d.Run(ctx)
	return ctx.Err()
}

// jobProgress persists running counts on the job being executed.
type jobProgress struct {
	registry Registry
	job      *Job
	logger   adapters.Logger
}

func (p *jobProgress) Checkpoint(ctx context.Context, c restore.Counts) error {
	p.job.SuccessCount = c.Success
	p.job.FailureCount = c.Failure
	if err := p.registry.Update(ctx, p.job); err != nil {
		return fmt.Errorf("checkpoint job %s: %w", p.job.Key(), err)
	}
	p.logger.Debug(ctx, "Restore job checkpoint",
		adapters.Field{Key: "success", Value: c.Success},
		adapters.Field{Key: "failure", Value: c.Failure})
	return nil
}
