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

package adapters

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger on top of rs/zerolog.
type ZerologLogger struct {
	log   zerolog.Logger
	level LogLevel
	ctx   context.Context
}

// NewZerologLogger creates a zerolog-backed logger. A format of "text"
// selects the human-readable console writer.
func NewZerologLogger(w io.Writer, format string) *ZerologLogger {
	out := w
	if strings.EqualFold(format, "text") {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
	}
	return &ZerologLogger{
		log:   zerolog.New(out).With().Timestamp().Logger(),
		level: InfoLevel,
	}
}

// Debug logs a debug-level message.
func (l *ZerologLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	if l.level <= DebugLevel {
		l.emit(l.log.Debug(), msg, fields)
	}
}

// Info logs an info-level message.
func (l *ZerologLogger) Info(ctx context.Context, msg string, fields ...Field) {
	if l.level <= InfoLevel {
		l.emit(l.log.Info(), msg, fields)
	}
}

// Warn logs a warning-level message.
func (l *ZerologLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	if l.level <= WarnLevel {
		l.emit(l.log.Warn(), msg, fields)
	}
}

// Error logs an error-level message.
func (l *ZerologLogger) Error(ctx context.Context, msg string, fields ...Field) {
	if l.level <= ErrorLevel {
		l.emit(l.log.Error(), msg, fields)
	}
}

// WithFields returns a child logger carrying the given fields.
func (l *ZerologLogger) WithFields(fields ...Field) Logger {
	zctx := l.log.With()
	for _, f := range fields {
		zctx = zctx.Interface(f.Key, f.Value)
	}
	return &ZerologLogger{log: zctx.Logger(), level: l.level, ctx: l.ctx}
}

// WithContext returns a copy bound to ctx.
func (l *ZerologLogger) WithContext(ctx context.Context) Logger {
	return &ZerologLogger{log: l.log, level: l.level, ctx: ctx}
}

// SetLevel sets the minimum log level.
func (l *ZerologLogger) SetLevel(level LogLevel) {
	l.level = level
}

// GetLevel returns the current log level.
func (l *ZerologLogger) GetLevel() LogLevel {
	return l.level
}

func (l *ZerologLogger) emit(evt *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			evt = evt.AnErr(f.Key, err)
			continue
		}
		evt = evt.Interface(f.Key, f.Value)
	}
	evt.Msg(msg)
}
