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

package restore

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// ReqType selects inline or background execution of a restore.
type ReqType string

const (
	// Sync runs the restore inline and answers with the final counts.
	Sync ReqType = "Sync"

	// Async records a job and answers immediately with a status location.
	Async ReqType = "Async"
)

// ParseReqType accepts "Sync" or "Async" in any case. Empty means Sync.
func ParseReqType(s string) (ReqType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sync":
		return Sync, true
	case "async":
		return Async, true
	}
	return "", false
}

// ValidationError describes a rejected restore request. It unwraps to
// common.ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return common.ErrValidation
}

// SkipDeletes decodes from a JSON bool or from the strings "yes", "no",
// "true" and "false" in any case.
type SkipDeletes bool

// UnmarshalJSON implements json.Unmarshaler.
func (s *SkipDeletes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = false
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*s = SkipDeletes(b)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return &ValidationError{Field: "SkipDeletes", Reason: "must be a boolean or Yes/No"}
	}
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "yes", "true", "y", "1":
		*s = true
	case "", "no", "false", "n", "0":
		*s = false
	default:
		return &ValidationError{Field: "SkipDeletes", Reason: fmt.Sprintf("%q is not Yes or No", str)}
	}
	return nil
}

// Request is a restore request as submitted by a caller. Dates are kept as
// strings so the request can be echoed back unchanged.
type Request struct {
	StartDate     string      `json:"StartDate"`
	EndDate       string      `json:"EndDate"`
	ContainerName string      `json:"ContainerName,omitempty"`
	BlobNames     []string    `json:"BlobNames,omitempty"`
	BlobName      string      `json:"BlobName,omitempty"`
	SkipDeletes   SkipDeletes `json:"SkipDeletes"`
	ReqType       string      `json:"ReqType,omitempty"`
}

// Params is a validated request.
type Params struct {
	Start       time.Time
	End         time.Time
	Container   string
	Names       map[string]struct{}
	SkipDeletes bool
	Type        ReqType
}

// Validate parses and checks the request. The legacy single BlobName is
// folded into BlobNames.
func (r *Request) Validate() (Params, error) {
	var p Params

	if strings.TrimSpace(r.StartDate) == "" {
		return p, &ValidationError{Field: "StartDate", Reason: "is required"}
	}
	if strings.TrimSpace(r.EndDate) == "" {
		return p, &ValidationError{Field: "EndDate", Reason: "is required"}
	}
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return p, &ValidationError{Field: "StartDate", Reason: err.Error()}
	}
	end, err := ParseDate(r.EndDate)
	if err != nil {
		return p, &ValidationError{Field: "EndDate", Reason: err.Error()}
	}
	if start.After(end) {
		return p, &ValidationError{Field: "StartDate", Reason: "start date cannot be after end date"}
	}

	names := make(map[string]struct{}, len(r.BlobNames)+1)
	for _, n := range r.BlobNames {
		if n = strings.TrimSpace(n); n != "" {
			names[n] = struct{}{}
		}
	}
	if n := strings.TrimSpace(r.BlobName); n != "" {
		names[n] = struct{}{}
	}
	container := strings.TrimSpace(r.ContainerName)
	if len(names) > 0 && container == "" {
		return p, &ValidationError{Field: "ContainerName", Reason: "is required when blob names are given"}
	}

	reqType, ok := ParseReqType(r.ReqType)
	if !ok {
		return p, &ValidationError{Field: "ReqType", Reason: fmt.Sprintf("%q must be Sync or Async", r.ReqType)}
	}

	return Params{
		Start:       start,
		End:         end,
		Container:   container,
		Names:       names,
		SkipDeletes: bool(r.SkipDeletes),
		Type:        reqType,
	}, nil
}

// Matches applies the container and name filters. An empty filter matches
// everything; both filters must match.
func (p Params) Matches(ref common.ObjectRef) bool {
	if p.Container != "" && ref.Container != p.Container {
		return false
	}
	if len(p.Names) > 0 {
		if _, ok := p.Names[ref.Name]; !ok {
			return false
		}
	}
	return true
}

// Filtered reports whether any filter is set.
func (p Params) Filtered() bool {
	return p.Container != "" || len(p.Names) > 0
}
