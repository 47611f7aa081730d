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

package event

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// Event Grid type names for blob notifications.
const (
	BlobCreatedType = "Microsoft.Storage.BlobCreated"
	BlobDeletedType = "Microsoft.Storage.BlobDeleted"
)

// envelope is the Event Grid schema subset we read. The CloudEvents field
// names (type, time) are accepted as fallbacks.
type envelope struct {
	ID        string     `json:"id"`
	EventType string     `json:"eventType,omitempty"`
	Type      string     `json:"type,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	EventTime time.Time  `json:"eventTime"`
	Time      *time.Time `json:"time,omitempty"`
	Data      blobData   `json:"data"`
}

type blobData struct {
	API           string `json:"api,omitempty"`
	URL           string `json:"url"`
	ContentType   string `json:"contentType,omitempty"`
	ContentLength int64  `json:"contentLength,omitempty"`
}

func kindOf(eventType string) (Kind, bool) {
	switch strings.ToLower(eventType) {
	case strings.ToLower(BlobCreatedType), "created":
		return KindCreated, true
	case strings.ToLower(BlobDeletedType), "deleted":
		return KindDeleted, true
	}
	return "", false
}

// ParseMessage decodes a queue message body into a ChangeEvent. The body may
// be a single event object, an array holding exactly one event, or either of
// those base64 encoded.
func ParseMessage(body []byte) (ChangeEvent, error) {
	raw := bytes.TrimSpace(body)
	if len(raw) == 0 {
		return ChangeEvent{}, fmt.Errorf("%w: empty message", common.ErrInvalidEvent)
	}
	if raw[0] != '{' && raw[0] != '[' {
		decoded, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("%w: body is neither JSON nor base64", common.ErrInvalidEvent)
		}
		raw = bytes.TrimSpace(decoded)
	}

	var env envelope
	if len(raw) > 0 && raw[0] == '[' {
		var batch []envelope
		if err := json.Unmarshal(raw, &batch); err != nil {
			return ChangeEvent{}, fmt.Errorf("%w: %v", common.ErrInvalidEvent, err)
		}
		if len(batch) != 1 {
			return ChangeEvent{}, fmt.Errorf("%w: expected one event, got %d", common.ErrInvalidEvent, len(batch))
		}
		env = batch[0]
	} else if err := json.Unmarshal(raw, &env); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", common.ErrInvalidEvent, err)
	}

	eventType := env.EventType
	if eventType == "" {
		eventType = env.Type
	}
	kind, ok := kindOf(eventType)
	if !ok {
		return ChangeEvent{}, fmt.Errorf("%w: unsupported event type %q", common.ErrInvalidEvent, eventType)
	}
	at := env.EventTime
	if at.IsZero() && env.Time != nil {
		at = *env.Time
	}

	ev := ChangeEvent{
		Kind:      kind,
		ID:        env.ID,
		URL:       env.Data.URL,
		EventTime: at.UTC(),
	}
	if kind == KindCreated {
		ev.Size = env.Data.ContentLength
		ev.ContentType = env.Data.ContentType
	}
	if err := ev.Validate(); err != nil {
		return ChangeEvent{}, err
	}
	return ev, nil
}

// EncodeMessage renders ev in the Event Grid schema accepted by
// ParseMessage.
func EncodeMessage(ev ChangeEvent) ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	env := envelope{
		ID:        ev.ID,
		EventTime: ev.EventTime.UTC(),
		Data:      blobData{URL: ev.URL},
	}
	switch ev.Kind {
	case KindCreated:
		env.EventType = BlobCreatedType
		env.Data.API = "PutBlob"
		env.Data.ContentLength = ev.Size
		env.Data.ContentType = ev.ContentType
	case KindDeleted:
		env.EventType = BlobDeletedType
		env.Data.API = "DeleteBlob"
	}
	if ref, err := ev.Object(); err == nil {
		env.Subject = "/blobServices/default/containers/" + ref.Container + "/blobs/" + ref.Name
	}
	return json.Marshal(env)
}
