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
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_Validate(t *testing.T) {
	req := Request{
		StartDate:     "2024-01-01",
		EndDate:       "01/03/2024",
		ContainerName: "c1",
		BlobNames:     []string{"a.txt", " ", "b.txt"},
		BlobName:      "c.txt",
		ReqType:       "async",
	}
	p, err := req.Validate()
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), p.End)
	assert.Equal(t, Async, p.Type)
	assert.Len(t, p.Names, 3)
	assert.Contains(t, p.Names, "c.txt")
	assert.False(t, p.SkipDeletes)
}

func TestRequest_ValidateErrors(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"missing start", Request{EndDate: "2024-01-01"}, "StartDate"},
		{"missing end", Request{StartDate: "2024-01-01"}, "EndDate"},
		{"bad start", Request{StartDate: "yesterday", EndDate: "2024-01-01"}, "StartDate"},
		{"bad end", Request{StartDate: "2024-01-01", EndDate: "2024-13-45"}, "EndDate"},
		{"reversed", Request{StartDate: "2024-01-05", EndDate: "2024-01-01"}, "StartDate"},
		{"names without container", Request{StartDate: "2024-01-01", EndDate: "2024-01-01", BlobName: "a"}, "ContainerName"},
		{"bad type", Request{StartDate: "2024-01-01", EndDate: "2024-01-01", ReqType: "later"}, "ReqType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrValidation))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRequest_UnmarshalSkipDeletes(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`"Yes"`, true},
		{`"YES"`, true},
		{`"No"`, false},
		{`"true"`, true},
		{`""`, false},
		{`null`, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var req Request
			body := `{"StartDate":"2024-01-01","EndDate":"2024-01-01","SkipDeletes":` + tt.raw + `}`
			require.NoError(t, json.Unmarshal([]byte(body), &req))
			assert.Equal(t, tt.want, bool(req.SkipDeletes))
		})
	}

	var req Request
	err := json.Unmarshal([]byte(`{"SkipDeletes":"maybe"}`), &req)
	assert.Error(t, err)
}

func TestParams_Matches(t *testing.T) {
	all := Params{}
	assert.True(t, all.Matches(common.ObjectRef{Container: "x", Name: "y"}))
	assert.False(t, all.Filtered())

	byContainer := Params{Container: "c1"}
	assert.True(t, byContainer.Matches(common.ObjectRef{Container: "c1", Name: "any"}))
	assert.False(t, byContainer.Matches(common.ObjectRef{Container: "c2", Name: "any"}))

	byName := Params{Container: "c1", Names: map[string]struct{}{"a.txt": {}}}
	assert.True(t, byName.Matches(common.ObjectRef{Container: "c1", Name: "a.txt"}))
	assert.False(t, byName.Matches(common.ObjectRef{Container: "c1", Name: "a.txt.bak"}))
	assert.False(t, byName.Matches(common.ObjectRef{Container: "c2", Name: "a.txt"}))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29T23:30:00-02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2024-01-01T00:00:00+05:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2/9/2024")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("")
	assert.Error(t, err)
}

func TestExpandDays(t *testing.T) {
	start := time.Date(2023, 12, 30, 15, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)

	days := ExpandDays(start, end)
	require.Len(t, days, 4)
	assert.Equal(t, time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC), days[0])
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), days[3])

	assert.Len(t, ExpandDays(start, start), 1)
	assert.Nil(t, ExpandDays(end, start))
}

func TestFormatExecutionTime(t *testing.T) {
	assert.Equal(t, "00:00:00.00", FormatExecutionTime(0))
	assert.Equal(t, "00:00:01.25", FormatExecutionTime(1250*time.Millisecond))
	assert.Equal(t, "01:02:03.45", FormatExecutionTime(time.Hour+2*time.Minute+3*time.Second+456*time.Millisecond))
	assert.Equal(t, "26:00:00.00", FormatExecutionTime(26*time.Hour))
	assert.Equal(t, "00:00:00.00", FormatExecutionTime(-time.Second))
}
