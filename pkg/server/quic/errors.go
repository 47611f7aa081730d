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

package quic

import "errors"

var (
	// ErrInvalidAddr is returned when the listen address is empty.
	ErrInvalidAddr = errors.New("invalid address")

	// ErrHandlerRequired is returned when no HTTP handler is given.
	ErrHandlerRequired = errors.New("http handler is required")

	// ErrTLSConfigRequired is returned when neither certificates nor a
	// self-signed certificate are configured. QUIC cannot run without TLS.
	ErrTLSConfigRequired = errors.New("TLS configuration is required for QUIC")
)
