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

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors

	// ErrNotConfigured is returned when a backend is not properly configured.
	ErrNotConfigured = errors.New("not configured")

	// ErrPathNotSet is returned when the required path is not set.
	ErrPathNotSet = errors.New("path not set")

	// ErrBucketNotSet is returned when the required bucket is not set.
	ErrBucketNotSet = errors.New("bucket not set")

	// ErrAccountNotSet is returned when the storage account name is not set.
	ErrAccountNotSet = errors.New("accountName not set")

	// ErrRegionNotSet is returned when the required region is not set.
	ErrRegionNotSet = errors.New("region not set")

	// ErrQueueNotSet is returned when a queue URL, subject or path is missing.
	ErrQueueNotSet = errors.New("queue not set")

	// ErrDSNNotSet is returned when a database connection string is missing.
	ErrDSNNotSet = errors.New("dsn not set")

	// Validation errors

	// ErrValidation is wrapped by every request validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidObjectName is returned when a container or object name is unsafe.
	ErrInvalidObjectName = errors.New("invalid object name")

	// ErrInvalidObjectURL is returned when an object URL cannot be split into
	// container and name.
	ErrInvalidObjectURL = errors.New("invalid object url")

	// ErrInvalidEvent is returned for a notification that does not decode into
	// a change event.
	ErrInvalidEvent = errors.New("invalid change event")

	// Journal errors

	// ErrJournalWrite is returned when the journal store rejects an append.
	ErrJournalWrite = errors.New("journal write failed")

	// ErrEntryExists is returned when an entry with the same order key is
	// already stored in the partition.
	ErrEntryExists = fmt.Errorf("%w: entry already exists", ErrJournalWrite)

	// ErrInvalidToken is returned when a continuation token was not issued by
	// the store it is passed to.
	ErrInvalidToken = errors.New("invalid continuation token")

	// Object store errors

	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrStoreRequired is returned when a component is built without a store.
	ErrStoreRequired = errors.New("store is required")

	// Job errors

	// ErrJobNotFound is returned when a restore job does not exist.
	ErrJobNotFound = errors.New("restore job not found")

	// ErrJobExists is returned when inserting a job whose key is taken.
	ErrJobExists = errors.New("restore job already exists")

	// ErrInvalidTransition is returned for a job status change that would
	// move the lifecycle backwards or skip Processing.
	ErrInvalidTransition = errors.New("invalid job status transition")
)
