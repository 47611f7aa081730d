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

package mcp

import "errors"

var (
	// ErrServiceRequired is returned when no restore service is given.
	ErrServiceRequired = errors.New("restore service is required")

	// ErrUnknownServerMode is returned when an unknown server mode is specified.
	ErrUnknownServerMode = errors.New("unknown server mode")

	// ErrUnknownTool is returned when an unknown tool is requested.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrMissingParameter is returned when a required parameter is missing.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrInvalidParameter is returned when a parameter has an invalid value or type.
	ErrInvalidParameter = errors.New("invalid parameter")
)
