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

// Package audit records who asked for which restore. Events are written as
// structured log lines separate from the operational log.
package audit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// EventType represents the type of audit event
type EventType string

const (
	// EventAuthFailure indicates an authentication failure
	EventAuthFailure EventType = "AUTH_FAILURE"

	// EventRestoreSubmitted indicates a restore request was submitted
	EventRestoreSubmitted EventType = "RESTORE_SUBMITTED"

	// EventRestoreStatus indicates a restore job status was read
	EventRestoreStatus EventType = "RESTORE_STATUS"

	// EventRequest is any other audited API request
	EventRequest EventType = "API_REQUEST"
)

// Result represents the outcome of an audited operation
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailure Result = "FAILURE"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`

	// Principal is the authenticated caller
	Principal string `json:"principal,omitempty"`

	// Resource is the restore job ("{partition}/{id}") when one is known
	Resource string `json:"resource,omitempty"`

	Action       string        `json:"action"`
	Result       Result        `json:"result"`
	ErrorMessage string        `json:"error_message,omitempty"`
	IPAddress    string        `json:"ip_address,omitempty"`
	RequestID    string        `json:"request_id,omitempty"`
	StatusCode   int           `json:"status_code,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`

	// Metadata contains additional event-specific data
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AuditLogger defines the interface for audit logging
type AuditLogger interface {
	LogEvent(ctx context.Context, event *AuditEvent) error

	// LogAuthFailure logs a rejected credential
	LogAuthFailure(ctx context.Context, ipAddress, requestID, reason string) error
}

// OutputFormat specifies the format for audit log output
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Config holds configuration for the audit logger
type Config struct {
	Enabled bool
	Format  OutputFormat

	// Output defaults to stdout
	Output io.Writer
}

// DefaultConfig returns an enabled JSON logger on stdout.
func DefaultConfig() *Config {
	return &Config{Enabled: true, Format: FormatJSON, Output: os.Stdout}
}

// DefaultAuditLogger implements AuditLogger using slog
type DefaultAuditLogger struct {
	config *Config
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger with the specified configuration
func NewAuditLogger(config *Config) *DefaultAuditLogger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if config.Format == FormatText {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}
	return &DefaultAuditLogger{config: config, logger: slog.New(handler)}
}

// LogEvent logs a generic audit event
func (a *DefaultAuditLogger) LogEvent(ctx context.Context, event *AuditEvent) error {
	if !a.config.Enabled || event == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []slog.Attr{
		slog.Time("timestamp", event.Timestamp),
		slog.String("event_type", string(event.EventType)),
		slog.String("action", event.Action),
		slog.String("result", string(event.Result)),
	}
	if event.Principal != "" {
		attrs = append(attrs, slog.String("principal", event.Principal))
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}
	if event.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error", event.ErrorMessage))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.StatusCode > 0 {
		attrs = append(attrs, slog.Int("status_code", event.StatusCode))
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}
	if len(event.Metadata) > 0 {
		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
		attrs = append(attrs, slog.String("metadata", string(metadataJSON)))
	}

	a.logger.LogAttrs(ctx, slog.LevelInfo, "Audit event: "+event.Action, attrs...)
	return nil
}

// LogAuthFailure logs authentication failures
func (a *DefaultAuditLogger) LogAuthFailure(ctx context.Context, ipAddress, requestID, reason string) error {
	return a.LogEvent(ctx, &AuditEvent{
		EventType:    EventAuthFailure,
		Action:       "authenticate",
		Result:       ResultFailure,
		ErrorMessage: reason,
		IPAddress:    ipAddress,
		RequestID:    requestID,
	})
}

// NoOpAuditLogger discards events.
type NoOpAuditLogger struct{}

// NewNoOpAuditLogger returns a logger that records nothing.
func NewNoOpAuditLogger() *NoOpAuditLogger {
	return &NoOpAuditLogger{}
}

func (NoOpAuditLogger) LogEvent(context.Context, *AuditEvent) error { return nil }

func (NoOpAuditLogger) LogAuthFailure(context.Context, string, string, string) error { return nil }
