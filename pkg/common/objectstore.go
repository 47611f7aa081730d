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

package common

import "context"

// ObjectStore is the narrow object-store surface the backup and restore
// paths depend on.
type ObjectStore interface {
	// Exists reports whether the object is present.
	Exists(ctx context.Context, ref ObjectRef) (bool, error)

	// Copy starts a server-side copy from src to dst and returns an
	// operation id. Backends that copy synchronously return a generated id.
	// The caller does not wait for asynchronous copies to finish.
	Copy(ctx context.Context, src, dst ObjectRef) (string, error)

	// Delete removes the object. It returns false and no error when the
	// object was already absent.
	Delete(ctx context.Context, ref ObjectRef) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
