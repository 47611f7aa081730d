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

// Package jobs tracks asynchronous restore jobs. A job is created in the
// Accepted state by the front end, claimed and moved to Processing by a
// dispatcher, and finishes as Completed or Exception. Jobs are never
// deleted.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/restore"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusAccepted   Status = "Accepted"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusException  Status = "Exception"

	// StatusUnknown is reported for jobs that cannot be found. It is never
	// stored.
	StatusUnknown Status = "Unknown"
)

var transitions = map[Status][]Status{
	StatusAccepted:   {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusException},
}

// CanTransition reports whether a job in state s may move to state to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusException
}

// Job is the persisted state of an asynchronous restore.
type Job struct {
	ID                string          `json:"id"`
	PartitionKey      string          `json:"partitionKey"`
	Status            Status          `json:"status"`
	Request           restore.Request `json:"request"`
	CreatedAt         time.Time       `json:"createdAt"`
	StartedAt         *time.Time      `json:"startedAt,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	SuccessCount      int             `json:"successCount"`
	FailureCount      int             `json:"failureCount"`
	ErrorMessage      string          `json:"errorMessage,omitempty"`
	ExecutionTime     string          `json:"executionTime,omitempty"`
	StatusLocationURI string          `json:"statusLocationUri,omitempty"`
	ClaimedBy         string          `json:"claimedBy,omitempty"`
	ClaimedAt         *time.Time      `json:"claimedAt,omitempty"`
}

// New creates an Accepted job.
func New(pk, id string, req restore.Request, now time.Time) *Job {
	return &Job{
		ID:           id,
		PartitionKey: pk,
		Status:       StatusAccepted,
		Request:      req,
		CreatedAt:    now.UTC(),
	}
}

// Key returns "{partitionKey}/{id}".
func (j *Job) Key() string {
	return j.PartitionKey + "/" + j.ID
}

// Transition moves the job to status to, stamping StartedAt on entering
// Processing and CompletedAt on entering a terminal state.
func (j *Job) Transition(to Status, now time.Time) error {
	if !j.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, j.Status, to)
	}
	now = now.UTC()
	switch {
	case to == StatusProcessing:
		j.StartedAt = &now
	case to.Terminal():
		j.CompletedAt = &now
	}
	j.Status = to
	return nil
}

// Claim moves an Accepted job to Processing on behalf of owner.
func (j *Job) Claim(owner string, now time.Time) error {
	if err := j.Transition(StatusProcessing, now); err != nil {
		return err
	}
	now = now.UTC()
	j.ClaimedBy = owner
	j.ClaimedAt = &now
	return nil
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	c := *j
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.ClaimedAt = cloneTime(j.ClaimedAt)
	c.Request.BlobNames = append([]string(nil), j.Request.BlobNames...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Registry stores jobs.
type Registry interface {
	// Insert stores a new job. It fails with common.ErrJobExists when the
	// key is taken.
	Insert(ctx context.Context, job *Job) error

	// Get returns the job or common.ErrJobNotFound.
	Get(ctx context.Context, pk, id string) (*Job, error)

	// ClaimNextPending atomically moves the oldest Accepted job to
	// Processing and returns it. It returns nil, nil when nothing is
	// pending.
	ClaimNextPending(ctx context.Context, owner string, now time.Time) (*Job, error)

	// Update overwrites an existing job.
	Update(ctx context.Context, job *Job) error

	Close() error
}

func notFound(pk, id string) error {
	return fmt.Errorf("%w: %s/%s", common.ErrJobNotFound, pk, id)
}

func exists(pk, id string) error {
	return fmt.Errorf("%w: %s/%s", common.ErrJobExists, pk, id)
}
