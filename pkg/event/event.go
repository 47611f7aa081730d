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

// Package event defines the object change notifications consumed by the
// backup worker and replayed by restore.
package event

import (
	"fmt"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// Kind tags a ChangeEvent variant.
type Kind string

const (
	// KindCreated marks an object that was written.
	KindCreated Kind = "Created"

	// KindDeleted marks an object that was removed.
	KindDeleted Kind = "Deleted"
)

// Valid reports whether k is a known variant.
func (k Kind) Valid() bool {
	return k == KindCreated || k == KindDeleted
}

// ChangeEvent is a single observed change to an object. Size and
// ContentType are only meaningful for KindCreated.
type ChangeEvent struct {
	Kind        Kind      `json:"kind"`
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	EventTime   time.Time `json:"eventTime"`
	Size        int64     `json:"size,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
}

// NewCreated returns a Created event.
func NewCreated(id, url string, at time.Time, size int64) ChangeEvent {
	return ChangeEvent{Kind: KindCreated, ID: id, URL: url, EventTime: at.UTC(), Size: size}
}

// NewDeleted returns a Deleted event.
func NewDeleted(id, url string, at time.Time) ChangeEvent {
	return ChangeEvent{Kind: KindDeleted, ID: id, URL: url, EventTime: at.UTC()}
}

// Validate checks that the event carries everything the journal needs.
func (e ChangeEvent) Validate() error {
	switch {
	case !e.Kind.Valid():
		return fmt.Errorf("%w: unsupported kind %q", common.ErrInvalidEvent, e.Kind)
	case e.ID == "":
		return fmt.Errorf("%w: missing id", common.ErrInvalidEvent)
	case e.URL == "":
		return fmt.Errorf("%w: missing url", common.ErrInvalidEvent)
	case e.EventTime.IsZero():
		return fmt.Errorf("%w: missing event time", common.ErrInvalidEvent)
	case e.Size < 0:
		return fmt.Errorf("%w: negative size", common.ErrInvalidEvent)
	}
	return nil
}

// Object resolves the event URL into a container and object name.
func (e ChangeEvent) Object() (common.ObjectRef, error) {
	return common.ParseObjectURL(e.URL)
}
