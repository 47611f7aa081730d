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

package factory

import "errors"

var (
	// ErrUnknownBackend is returned when an unknown backend type is specified.
	ErrUnknownBackend = errors.New("unknown backend type")

	// ErrUnknownQueue is returned when an unknown queue type is specified.
	ErrUnknownQueue = errors.New("unknown queue type")
)
