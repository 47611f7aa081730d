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

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jeremyhahn/go-objbackup/pkg/restore"
	"github.com/jeremyhahn/go-objbackup/pkg/service"
)

// Tool names.
const (
	ToolRestoreSubmit = "restore_submit"
	ToolRestoreStatus = "restore_status"
)

// Tool represents an MCP tool definition
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolRegistry manages available tools
type ToolRegistry struct {
	tools map[string]Tool
}

// NewToolRegistry creates a new tool registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// RegisterDefaultTools registers the restore tools.
func (r *ToolRegistry) RegisterDefaultTools() {
	r.tools[ToolRestoreSubmit] = Tool{
		Name: ToolRestoreSubmit,
		Description: "Replay the backup journal for a date range onto the target store. " +
			"Sync runs inline and returns the counts; Async queues a job and returns its status location.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"StartDate":     stringProp("First day to replay (YYYY-MM-DD or RFC3339)"),
				"EndDate":       stringProp("Last day to replay, inclusive"),
				"ContainerName": stringProp("Only replay objects in this container"),
				"BlobNames": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Only replay these object names (requires ContainerName)",
				},
				"SkipDeletes": map[string]any{
					"type":        []string{"boolean", "string"},
					"description": "Do not replay deletions (true/false or Yes/No)",
				},
				"ReqType": map[string]any{
					"type":        "string",
					"enum":        []string{string(restore.Sync), string(restore.Async)},
					"description": "Sync or Async (default Sync)",
				},
			},
			"required": []string{"StartDate", "EndDate"},
		},
	}

	r.tools[ToolRestoreStatus] = Tool{
		Name:        ToolRestoreStatus,
		Description: "Report the state of an asynchronous restore job.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"datebucket": stringProp("Job partition key (year_week)"),
				"id":         stringProp("Job id"),
			},
			"required": []string{"datebucket", "id"},
		},
	}
}

// ListTools returns the registered tools sorted by name.
func (r *ToolRegistry) ListTools() []Tool {
	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// GetTool returns a tool by name
func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// ToolExecutor runs tools against the restore service.
type ToolExecutor struct {
	svc     *service.RestoreService
	baseURL string
}

// NewToolExecutor creates a ToolExecutor. baseURL prefixes the status
// locations of Async jobs.
func NewToolExecutor(svc *service.RestoreService, baseURL string) *ToolExecutor {
	return &ToolExecutor{svc: svc, baseURL: baseURL}
}

// Execute runs toolName and returns the service response as JSON text.
func (e *ToolExecutor) Execute(ctx context.Context, toolName string, args map[string]any) (string, error) {
	var (
		resp *service.Response
		err  error
	)
	switch toolName {
	case ToolRestoreSubmit:
		resp, err = e.executeSubmit(ctx, args)
	case ToolRestoreStatus:
		resp, err = e.executeStatus(ctx, args)
	default:
		return "", ErrUnknownTool
	}
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (e *ToolExecutor) executeSubmit(ctx context.Context, args map[string]any) (*service.Response, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	var req restore.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	return e.svc.Submit(ctx, req, e.baseURL)
}

func (e *ToolExecutor) executeStatus(ctx context.Context, args map[string]any) (*service.Response, error) {
	pk, err := stringArg(args, "datebucket")
	if err != nil {
		return nil, err
	}
	id, err := stringArg(args, "id")
	if err != nil {
		return nil, err
	}
	return e.svc.Status(ctx, pk, id), nil
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidParameter, name)
	}
	return s, nil
}
