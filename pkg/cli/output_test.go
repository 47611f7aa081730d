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

package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-objbackup/pkg/backup"
	"github.com/jeremyhahn/go-objbackup/pkg/jobs"
	"github.com/jeremyhahn/go-objbackup/pkg/restore"
	"github.com/jeremyhahn/go-objbackup/pkg/service"
	"github.com/stretchr/testify/assert"
)

func TestFormatOperationResult(t *testing.T) {
	ok := &OperationResult{Success: true, Message: "Restore accepted"}
	failed := &OperationResult{Success: false, Error: "journal unavailable"}

	assert.Equal(t, "Restore accepted\n", FormatOperationResult(ok, FormatText))
	assert.Equal(t, "Operation completed successfully\n", FormatOperationResult(&OperationResult{Success: true}, FormatText))
	assert.Equal(t, "Error: journal unavailable\n", FormatOperationResult(failed, FormatText))

	table := FormatOperationResult(failed, FormatTable)
	assert.Contains(t, table, "FAILED")
	assert.Contains(t, table, "journal unavailable")

	assert.Contains(t, FormatOperationResult(ok, FormatJSON), `"success": true`)
}

func TestFormatError(t *testing.T) {
	out := FormatError(errors.New("boom"), FormatJSON)
	assert.Contains(t, out, `"success": false`)
	assert.Contains(t, out, `"error": "boom"`)
}

func TestFormatRestoreResponse(t *testing.T) {
	resp := &service.Response{
		Request: restore.Request{
			StartDate:     "2024-01-01",
			EndDate:       "2024-01-07",
			ContainerName: "docs",
			BlobNames:     []string{"a.txt", "b.txt"},
		},
		Status:            "Completed",
		TotalSuccessCount: 4,
		TotalFailureCount: 1,
		ExecutionTime:     "00:00:02.5000000",
	}

	text := FormatRestoreResponse(resp, FormatText)
	assert.Contains(t, text, "Status: Completed\n")
	assert.Contains(t, text, "Range: 2024-01-01 .. 2024-01-07\n")
	assert.Contains(t, text, "Blobs: a.txt, b.txt\n")
	assert.Contains(t, text, "Succeeded: 4\n")
	assert.NotContains(t, text, "Status Location")

	js := FormatRestoreResponse(resp, FormatJSON)
	assert.Contains(t, js, `"TotalSuccessCount": 4`)
	assert.Contains(t, js, `"ContainerName": "docs"`)

	assert.Contains(t, FormatRestoreResponse(resp, FormatTable), "Execution Time")
}

func TestFormatBatchResult(t *testing.T) {
	res := backup.BatchResult{Received: 3, Journaled: 2, Copied: 2, Malformed: 1, Acked: 3}
	assert.Contains(t, FormatBatchResult(res, FormatText), "Journaled: 2\n")
	assert.Contains(t, FormatBatchResult(res, FormatJSON), `"malformed": 1`)
	assert.Contains(t, FormatBatchResult(res, FormatTable), "Acknowledged")
}

func TestFormatDispatchResult(t *testing.T) {
	assert.Equal(t, "No pending restore jobs\n", FormatDispatchResult(nil, FormatText))

	job := &jobs.Job{ID: "abc", PartitionKey: "2024_2", Status: jobs.StatusCompleted, SuccessCount: 2}
	assert.Equal(t, "Job 2024_2/abc finished with status Completed (2 succeeded, 0 failed)\n", FormatDispatchResult(job, FormatText))

	job.Status = jobs.StatusException
	assert.True(t, strings.HasPrefix(FormatDispatchResult(job, FormatText), "Error: Job 2024_2/abc"))
	assert.Contains(t, FormatDispatchResult(job, FormatJSON), `"partitionKey": "2024_2"`)
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"fits", "short text", 20, []string{"short text"}},
		{"word wrap", "the quick brown fox jumps", 10, []string{"the quick", "brown fox", "jumps"}},
		{"hard wrap", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"long word among short", "a bcdefghijkl m", 5, []string{"a", "bcdef", "ghijk", "l m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrapText(tt.text, tt.width))
		})
	}
}
