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

package jobs

import "errors"

var (
	// ErrRegistryClosed is returned after Close.
	ErrRegistryClosed = errors.New("job registry closed")

	// ErrRegistryRequired is returned when a dispatcher is built without a
	// registry or runner.
	ErrRegistryRequired = errors.New("job registry and runner are required")
)
