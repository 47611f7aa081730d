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

// Package adapters provides interfaces for pluggable logging and authentication.
package adapters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// DebugLevel for detailed debugging information.
	DebugLevel LogLevel = iota
	// InfoLevel for general informational messages.
	InfoLevel
	// WarnLevel for warning messages.
	WarnLevel
	// ErrorLevel for error messages.
	ErrorLevel
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a configuration string such as "debug" or "WARN"
// into a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Field represents a structured logging field (key-value pair).
type Field struct {
	Key   string
	Value any
}

// Logger defines the interface for pluggable logging implementations.
// Applications can implement this interface to integrate the library with
// their native logging frameworks (e.g., zap, zerolog, logrus).
type Logger interface {
	// Debug logs a debug-level message with optional fields.
	Debug(ctx context.Context, msg string, fields ...Field)

	// Info logs an info-level message with optional fields.
	Info(ctx context.Context, msg string, fields ...Field)

	// Warn logs a warning-level message with optional fields.
	Warn(ctx context.Context, msg string, fields ...Field)

	// Error logs an error-level message with optional fields.
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields returns a new Logger with the given fields added to all log entries.
	WithFields(fields ...Field) Logger

	// WithContext returns a new Logger with the given context.
	WithContext(ctx context.Context) Logger

	// SetLevel sets the minimum log level that will be output.
	SetLevel(level LogLevel)

	// GetLevel returns the current log level.
	GetLevel() LogLevel
}

// LoggerConfig selects and configures a Logger backend.
type LoggerConfig struct {
	// Backend is "slog" (default) or "zerolog".
	Backend string

	// Level is the minimum level, e.g. "info".
	Level string

	// Format is "json" (default) or "text". The zerolog backend renders
	// "text" with its console writer.
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// NewLogger builds a Logger from configuration.
func NewLogger(cfg LoggerConfig) (Logger, error) {
	level, err := ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var logger Logger
	switch strings.ToLower(cfg.Backend) {
	case "", "slog":
		logger = NewDefaultLoggerWithWriter(cfg.Output, cfg.Format)
	case "zerolog":
		logger = NewZerologLogger(cfg.Output, cfg.Format)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLogBackend, cfg.Backend)
	}
	logger.SetLevel(level)
	return logger, nil
}

// DefaultLogger is a simple implementation using Go's standard slog package.
type DefaultLogger struct {
	logger   *slog.Logger
	levelVar *slog.LevelVar
	level    LogLevel
	fields   []Field
	ctx      context.Context
}

// NewDefaultLogger creates a new default logger instance using slog.
func NewDefaultLogger() Logger {
	return NewDefaultLoggerWithWriter(os.Stdout, "json")
}

// NewDefaultLoggerWithWriter creates a slog-backed logger writing to w.
// format is "json" or "text".
func NewDefaultLoggerWithWriter(w io.Writer, format string) *DefaultLogger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	opts := &slog.HandlerOptions{Level: levelVar}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return &DefaultLogger{
		logger:   slog.New(handler),
		levelVar: levelVar,
		level:    InfoLevel,
		fields:   make([]Field, 0),
	}
}

// Debug logs a debug-level message.
func (l *DefaultLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	if l.level <= DebugLevel {
		l.log(DebugLevel, ctx, msg, fields...)
	}
}

// Info logs an info-level message.
func (l *DefaultLogger) Info(ctx context.Context, msg string, fields ...Field) {
	if l.level <= InfoLevel {
		l.log(InfoLevel, ctx, msg, fields...)
	}
}

// Warn logs a warning-level message.
func (l *DefaultLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	if l.level <= WarnLevel {
		l.log(WarnLevel, ctx, msg, fields...)
	}
}

// Error logs an error-level message.
func (l *DefaultLogger) Error(ctx context.Context, msg string, fields ...Field) {
	if l.level <= ErrorLevel {
		l.log(ErrorLevel, ctx, msg, fields...)
	}
}

// WithFields returns a new logger with additional fields.
func (l *DefaultLogger) WithFields(fields ...Field) Logger {
	newFields := make([]Field, len(l.fields)+len(fields))
	copy(newFields, l.fields)
	copy(newFields[len(l.fields):], fields)

	return &DefaultLogger{
		logger:   l.logger,
		levelVar: l.levelVar,
		level:    l.level,
		fields:   newFields,
		ctx:      l.ctx,
	}
}

// WithContext returns a new logger with the given context.
func (l *DefaultLogger) WithContext(ctx context.Context) Logger {
	return &DefaultLogger{
		logger:   l.logger,
		levelVar: l.levelVar,
		level:    l.level,
		fields:   l.fields,
		ctx:      ctx,
	}
}

// SetLevel sets the minimum log level. The handler level follows so that
// debug output is not swallowed by the slog handler itself.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level = level
	if l.levelVar != nil {
		l.levelVar.Set(level.slogLevel())
	}
}

// GetLevel returns the current log level.
func (l *DefaultLogger) GetLevel() LogLevel {
	return l.level
}

// Slog exposes the underlying *slog.Logger for libraries that take one
// directly (the supervisor event hook).
func (l *DefaultLogger) Slog() *slog.Logger {
	return l.logger
}

// log is the internal method that formats and writes log entries using slog.
func (l *DefaultLogger) log(level LogLevel, ctx context.Context, msg string, fields ...Field) {
	allFields := make([]Field, 0, len(l.fields)+len(fields))
	allFields = append(allFields, l.fields...)
	allFields = append(allFields, fields...)

	if ctx == nil && l.ctx != nil {
		ctx = l.ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}

	attrs := make([]slog.Attr, len(allFields))
	for i, field := range allFields {
		attrs[i] = slog.Any(field.Key, field.Value)
	}

	l.logger.LogAttrs(ctx, level.slogLevel(), msg, attrs...)
}

// NoOpLogger is a logger that discards all log messages.
// Useful for testing or when logging is not desired.
type NoOpLogger struct {
	level LogLevel
}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() Logger {
	return &NoOpLogger{level: ErrorLevel}
}

func (l *NoOpLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoOpLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoOpLogger) WithFields(fields ...Field) Logger                      { return l }
func (l *NoOpLogger) WithContext(ctx context.Context) Logger                 { return l }
func (l *NoOpLogger) SetLevel(level LogLevel)                                { l.level = level }
func (l *NoOpLogger) GetLevel() LogLevel                                     { return l.level }

// SlogFor returns a *slog.Logger that forwards into logger. It returns the
// native slog logger when logger is a DefaultLogger.
func SlogFor(logger Logger) *slog.Logger {
	if dl, ok := logger.(*DefaultLogger); ok {
		return dl.Slog()
	}
	return slog.New(&forwardHandler{logger: logger})
}

// forwardHandler adapts an adapters.Logger to slog.Handler.
type forwardHandler struct {
	logger Logger
	attrs  []Field
	group  string
}

func (h *forwardHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.logger.GetLevel().slogLevel()
}

func (h *forwardHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := make([]Field, 0, len(h.attrs)+r.NumAttrs())
	fields = append(fields, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, Field{Key: h.key(a.Key), Value: a.Value.Any()})
		return true
	})
	switch {
	case r.Level >= slog.LevelError:
		h.logger.Error(ctx, r.Message, fields...)
	case r.Level >= slog.LevelWarn:
		h.logger.Warn(ctx, r.Message, fields...)
	case r.Level >= slog.LevelInfo:
		h.logger.Info(ctx, r.Message, fields...)
	default:
		h.logger.Debug(ctx, r.Message, fields...)
	}
	return nil
}

func (h *forwardHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &forwardHandler{logger: h.logger, group: h.group}
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, Field{Key: h.key(a.Key), Value: a.Value.Any()})
	}
	return next
}

func (h *forwardHandler) WithGroup(name string) slog.Handler {
	return &forwardHandler{logger: h.logger, attrs: h.attrs, group: h.key(name)}
}

func (h *forwardHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
