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

// Package client talks to a running objbackup server.
package client

import (
	"errors"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
)

var (
	// ErrConfigRequired is returned when client config is nil
	ErrConfigRequired = errors.New("client config is required")
	// ErrServerURLRequired is returned when server URL is missing
	ErrServerURLRequired = errors.New("server URL is required")
	// ErrServerNotServing is returned when health check fails
	ErrServerNotServing = errors.New("server not serving")
	// ErrServerError is returned when server returns non-success status
	ErrServerError = errors.New("server returned error")
)

// DefaultTimeout bounds REST calls. Sync restores can take a while.
const DefaultTimeout = 30 * time.Minute

// Config holds configuration for creating a client
type Config struct {
	ServerURL string

	// APIKey is sent as X-API-Key (REST) or x-api-key metadata (gRPC).
	APIKey string

	Timeout time.Duration

	TLSConfig *adapters.TLSConfig

	// Insecure skips server certificate verification on gRPC probes.
	Insecure bool
}
