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

package journal

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/event"
)

// BackupRef records where a created object was copied to. It is only
// present when the source object still existed at backup time.
type BackupRef struct {
	BackupContainer    string `json:"backupContainer"`
	BackupObjectName   string `json:"backupObjectName"`
	OriginalContainer  string `json:"originalContainer"`
	OriginalObjectName string `json:"originalObjectName"`
	CopyOperationID    string `json:"copyOperationId,omitempty"`
}

// Backup returns the location of the backup copy.
func (b BackupRef) Backup() common.ObjectRef {
	return common.ObjectRef{Container: b.BackupContainer, Name: b.BackupObjectName}
}

// Original returns the location the object was backed up from.
func (b BackupRef) Original() common.ObjectRef {
	return common.ObjectRef{Container: b.OriginalContainer, Name: b.OriginalObjectName}
}

// Entry is one journaled change. Entries are written once and never
// updated.
type Entry struct {
	PartitionKey string            `json:"partitionKey"`
	OrderKey     string            `json:"orderKey"`
	Event        event.ChangeEvent `json:"event"`
	Backup       *BackupRef        `json:"backup,omitempty"`
}

// NewEntry builds an entry for ev with its keys derived from the event
// time and id. ref may be nil.
func NewEntry(ev event.ChangeEvent, ref *BackupRef) *Entry {
	return &Entry{
		PartitionKey: PartitionKey(ev.EventTime),
		OrderKey:     OrderKey(ev.EventTime, ev.ID),
		Event:        ev,
		Backup:       ref,
	}
}

// Validate checks the event and the backup reference.
func (e *Entry) Validate() error {
	if err := e.Event.Validate(); err != nil {
		return err
	}
	if e.Backup == nil {
		return nil
	}
	if e.Event.Kind != event.KindCreated {
		return fmt.Errorf("%w: backup reference on a %s event", common.ErrInvalidEvent, e.Event.Kind)
	}
	if err := e.Backup.Backup().Validate(); err != nil {
		return fmt.Errorf("backup location: %w", err)
	}
	if err := e.Backup.Original().Validate(); err != nil {
		return fmt.Errorf("original location: %w", err)
	}
	return nil
}

// ObjectRef returns the object the entry is about. Created entries with a
// backup reference use the recorded original location; everything else
// parses the event URL.
func (e *Entry) ObjectRef() (common.ObjectRef, error) {
	if e.Event.Kind == event.KindCreated && e.Backup != nil {
		return e.Backup.Original(), nil
	}
	return e.Event.Object()
}

func marshalEntry(e *Entry) ([]byte, error) {
	return json.Marshal(e)
}

func unmarshalEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
