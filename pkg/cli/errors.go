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

package cli

import "errors"

var (
	// Configuration errors

	// ErrUnsupportedStore is returned when store.type names no registered backend.
	ErrUnsupportedStore = errors.New("unsupported store type")

	// ErrUnsupportedQueue is returned when queue.type names no registered queue.
	ErrUnsupportedQueue = errors.New("unsupported queue type")

	// ErrUnsupportedJournal is returned for an unknown journal.backend.
	ErrUnsupportedJournal = errors.New("unsupported journal backend")

	// ErrUnsupportedRegistry is returned for an unknown jobs.backend.
	ErrUnsupportedRegistry = errors.New("unsupported jobs backend")

	// ErrJournalPathRequired is returned when a persistent journal has no path.
	ErrJournalPathRequired = errors.New("journal.path is required for the file and badger journals")

	// ErrJobsDSNRequired is returned when the postgres registry has no DSN.
	ErrJobsDSNRequired = errors.New("jobs.dsn is required for the postgres registry")

	// ErrUnsupportedOutputFormat is returned when an unsupported output format is specified.
	ErrUnsupportedOutputFormat = errors.New("unsupported output format")

	// ErrInvalidPort is returned when server.port is out of range.
	ErrInvalidPort = errors.New("server.port must be between 0 and 65535")

	// ErrQUICTLSRequired is returned when HTTP/3 is enabled without a
	// certificate or quic.self_signed.
	ErrQUICTLSRequired = errors.New("quic.enabled requires server.tls.cert_file and key_file, or quic.self_signed")

	// ErrNothingToRun is returned by serve when every service is disabled.
	ErrNothingToRun = errors.New("no services enabled")

	// ErrInvalidJobID is returned for status lookups not shaped "partition/id".
	ErrInvalidJobID = errors.New("job id must be partition/id or a status location")
)
