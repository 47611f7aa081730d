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
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jeremyhahn/go-objbackup/pkg/backup"
	"github.com/jeremyhahn/go-objbackup/pkg/jobs"
	"github.com/jeremyhahn/go-objbackup/pkg/service"
)

// OutputFormat defines the output format type.
type OutputFormat string

const (
	FormatText  OutputFormat = "text"
	FormatJSON  OutputFormat = "json"
	FormatTable OutputFormat = "table"
)

// OperationResult holds the result of an operation.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// FormatOperationResult formats an operation result in the specified format.
func FormatOperationResult(result *OperationResult, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(result)
	case FormatTable:
		return formatResultTable(result)
	default:
		return formatResultText(result)
	}
}

// FormatError formats an error message in the specified format.
func FormatError(err error, format OutputFormat) string {
	result := &OperationResult{
		Success: false,
		Error:   err.Error(),
	}
	return FormatOperationResult(result, format)
}

// FormatRestoreResponse formats the outcome of a restore submission or
// status lookup. JSON output is the wire shape of the REST API.
func FormatRestoreResponse(resp *service.Response, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatTable:
		return formatRowsTable(restoreRows(resp))
	default:
		var b strings.Builder
		for _, row := range restoreRows(resp) {
			fmt.Fprintf(&b, "%s: %s\n", row[0], row[1])
		}
		return b.String()
	}
}

func restoreRows(resp *service.Response) [][2]string {
	rows := [][2]string{
		{"Status", resp.Status},
		{"Range", resp.StartDate + " .. " + resp.EndDate},
	}
	if resp.ContainerName != "" {
		rows = append(rows, [2]string{"Container", resp.ContainerName})
	}
	if len(resp.BlobNames) > 0 {
		rows = append(rows, [2]string{"Blobs", strings.Join(resp.BlobNames, ", ")})
	}
	rows = append(rows,
		[2]string{"Succeeded", fmt.Sprint(resp.TotalSuccessCount)},
		[2]string{"Failed", fmt.Sprint(resp.TotalFailureCount)},
	)
	if resp.StartTime != "" {
		rows = append(rows, [2]string{"Started", resp.StartTime})
	}
	if resp.EndTime != "" {
		rows = append(rows, [2]string{"Finished", resp.EndTime})
	}
	if resp.ExecutionTime != "" {
		rows = append(rows, [2]string{"Execution Time", resp.ExecutionTime})
	}
	if resp.StatusLocationURI != "" {
		rows = append(rows, [2]string{"Status Location", resp.StatusLocationURI})
	}
	if resp.ExceptionMessage != "" {
		rows = append(rows, [2]string{"Error", resp.ExceptionMessage})
	}
	return rows
}

// FormatBatchResult formats the counters of one ingestion batch.
func FormatBatchResult(res backup.BatchResult, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(res)
	default:
		rows := [][2]string{
			{"Received", fmt.Sprint(res.Received)},
			{"Journaled", fmt.Sprint(res.Journaled)},
			{"Copied", fmt.Sprint(res.Copied)},
			{"Skipped (missing)", fmt.Sprint(res.SkippedMissing)},
			{"Duplicates", fmt.Sprint(res.Duplicates)},
			{"Malformed", fmt.Sprint(res.Malformed)},
			{"Failed", fmt.Sprint(res.Failed)},
			{"Acknowledged", fmt.Sprint(res.Acked)},
		}
		if format == FormatTable {
			return formatRowsTable(rows)
		}
		var b strings.Builder
		for _, row := range rows {
			fmt.Fprintf(&b, "%s: %s\n", row[0], row[1])
		}
		return b.String()
	}
}

// FormatDispatchResult formats the job run by one dispatcher tick, or
// reports that nothing was pending.
func FormatDispatchResult(job *jobs.Job, format OutputFormat) string {
	if job == nil {
		return FormatOperationResult(&OperationResult{Success: true, Message: "No pending restore jobs"}, format)
	}
	if format == FormatJSON {
		return formatJSON(job)
	}
	msg := fmt.Sprintf("Job %s finished with status %s (%d succeeded, %d failed)",
		job.Key(), job.Status, job.SuccessCount, job.FailureCount)
	result := &OperationResult{Success: job.Status == jobs.StatusCompleted, Message: msg, Error: msg}
	return FormatOperationResult(result, format)
}

func formatResultText(result *OperationResult) string {
	if result.Success {
		if result.Message != "" {
			return result.Message + "\n"
		}
		return "Operation completed successfully\n"
	}
	return fmt.Sprintf("Error: %s\n", result.Error)
}

func formatResultTable(result *OperationResult) string {
	status, text := "SUCCESS", result.Message
	if !result.Success {
		status, text = "FAILED", result.Error
	}

	var b strings.Builder
	b.WriteString("┌────────────────────────────────────────────────────────┐\n")
	b.WriteString("│ Operation Result                                       │\n")
	b.WriteString("├────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&b, "│ Status: %-46s │\n", status)
	if text != "" {
		for _, line := range wrapText(text, 54) {
			fmt.Fprintf(&b, "│ %-54s │\n", line)
		}
	}
	b.WriteString("└────────────────────────────────────────────────────────┘\n")
	return b.String()
}

// formatRowsTable renders two-column rows in a box.
func formatRowsTable(rows [][2]string) string {
	var b strings.Builder
	b.WriteString("┌──────────────────────┬────────────────────────────────────────┐\n")
	b.WriteString("│ Field                │ Value                                  │\n")
	b.WriteString("├──────────────────────┼────────────────────────────────────────┤\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "│ %-20s │ %-38s │\n", truncate(row[0], 20), truncate(row[1], 38))
	}
	b.WriteString("└──────────────────────┴────────────────────────────────────────┘\n")
	return b.String()
}

func formatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": \"failed to marshal JSON: %s\"}\n", err)
	}
	return string(data) + "\n"
}

// wrapText wraps text to fit within maxWidth characters.
func wrapText(text string, maxWidth int) []string {
	if len(text) <= maxWidth {
		return []string{text}
	}

	// No spaces: hard wrap
	if !strings.Contains(text, " ") {
		var lines []string
		for len(text) > maxWidth {
			lines = append(lines, text[:maxWidth])
			text = text[maxWidth:]
		}
		if len(text) > 0 {
			lines = append(lines, text)
		}
		return lines
	}

	var lines []string
	var current string
	for _, word := range strings.Fields(text) {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= maxWidth:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
		for len(current) > maxWidth {
			lines = append(lines, current[:maxWidth])
			current = current[maxWidth:]
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}
