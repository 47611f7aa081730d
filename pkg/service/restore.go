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

// Package service is the front end for restore requests. It validates
// submissions, runs synchronous restores inline and records asynchronous
// ones as jobs for the dispatcher.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/jobs"
	"github.com/jeremyhahn/go-objbackup/pkg/journal"
	"github.com/jeremyhahn/go-objbackup/pkg/restore"
)

// StatusPath is the route prefix of job status locations.
const StatusPath = "/api/restore"

// Response echoes the request together with its outcome.
type Response struct {
	restore.Request
	Status            string `json:"Status"`
	StartTime         string `json:"StartTime,omitempty"`
	EndTime           string `json:"EndTime,omitempty"`
	TotalSuccessCount int    `json:"TotalSuccessCount"`
	TotalFailureCount int    `json:"TotalFailureCount"`
	ExceptionMessage  string `json:"ExceptionMessage,omitempty"`
	ExecutionTime     string `json:"ExecutionTime,omitempty"`
	StatusLocationURI string `json:"StatusLocationUri,omitempty"`
}

// Config configures a RestoreService.
type Config struct {
	Runner   jobs.Runner
	Registry jobs.Registry
	Logger   adapters.Logger
}

// RestoreService accepts restore requests.
type RestoreService struct {
	runner   jobs.Runner
	registry jobs.Registry
	logger   adapters.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a RestoreService.
func New(cfg Config) (*RestoreService, error) {
	if cfg.Runner == nil || cfg.Registry == nil {
		return nil, common.ErrStoreRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NewNoOpLogger()
	}
	return &RestoreService{
		runner:   cfg.Runner,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Submit validates req and either runs it (Sync) or records an Accepted
// job (Async). Validation failures return a *restore.ValidationError and
// nothing is run. A failed synchronous run is reported in the response
// with Status Exception, not as an error.
func (s *RestoreService) Submit(ctx context.Context, req restore.Request, baseURL string) (*Response, error) {
	p, err := req.Validate()
	if err != nil {
		s.logger.Warn(ctx, "Rejected restore request",
			adapters.Field{Key: "error", Value: err.Error()})
		return nil, err
	}
	req.ReqType = string(p.Type)

	if p.Type == restore.Async {
		return s.submitAsync(ctx, req, baseURL)
	}
	return s.runSync(ctx, req, p), nil
}

func (s *RestoreService) runSync(ctx context.Context, req restore.Request, p restore.Params) *Response {
	res, err := s.runner.Run(ctx, p, nil)

	resp := &Response{
		Request:           req,
		Status:            string(jobs.StatusCompleted),
		StartTime:         formatTime(res.StartTime),
		EndTime:           formatTime(res.EndTime),
		TotalSuccessCount: res.SuccessCount,
		TotalFailureCount: res.FailureCount,
	}
	if !res.StartTime.IsZero() {
		resp.ExecutionTime = res.ExecutionTime()
	}
	if err != nil {
		resp.Status = string(jobs.StatusException)
		resp.ExceptionMessage = err.Error()
	}
	return resp
}

func (s *RestoreService) submitAsync(ctx context.Context, req restore.Request, baseURL string) (*Response, error) {
	now := s.now().UTC()
	job := jobs.New(journal.PartitionKey(now), s.newID(), req, now)
	job.StatusLocationURI = StatusLocation(baseURL, job.PartitionKey, job.ID)

	if err := s.registry.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("record restore job: %w", err)
	}
	s.logger.Info(ctx, "Restore job accepted",
		adapters.Field{Key: "job", Value: job.Key()},
		adapters.Field{Key: "start", Value: req.StartDate},
		adapters.Field{Key: "end", Value: req.EndDate})
	return jobResponse(job), nil
}

// Status returns the current view of a job. Jobs that cannot be loaded are
// reported with Status Unknown.
func (s *RestoreService) Status(ctx context.Context, pk, id string) *Response {
	job, err := s.registry.Get(ctx, pk, id)
	if err != nil {
		s.logger.Debug(ctx, "Restore job lookup failed",
			adapters.Field{Key: "job", Value: pk + "/" + id},
			adapters.Field{Key: "error", Value: err.Error()})
		return &Response{Status: string(jobs.StatusUnknown)}
	}
	return jobResponse(job)
}

func jobResponse(job *jobs.Job) *Response {
	resp := &Response{
		Request:           job.Request,
		Status:            string(job.Status),
		TotalSuccessCount: job.SuccessCount,
		TotalFailureCount: job.FailureCount,
		ExceptionMessage:  job.ErrorMessage,
		ExecutionTime:     job.ExecutionTime,
		StatusLocationURI: job.StatusLocationURI,
	}
	if job.StartedAt != nil {
		resp.StartTime = formatTime(*job.StartedAt)
	}
	if job.CompletedAt != nil {
		resp.EndTime = formatTime(*job.CompletedAt)
	}
	return resp
}

// StatusLocation returns "{baseURL}/api/restore/{pk}/{id}".
func StatusLocation(baseURL, pk, id string) string {
	return strings.TrimRight(baseURL, "/") + StatusPath + "/" + pk + "/" + id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
