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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/version"
	"github.com/sourcegraph/jsonrpc2"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      any           `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// RPCHandler handles JSON-RPC requests
type RPCHandler struct {
	server *Server
}

// NewRPCHandler creates a new RPC handler
func NewRPCHandler(server *Server) *RPCHandler {
	return &RPCHandler{server: server}
}

// Handle processes a JSON-RPC request
func (h *RPCHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "initialize":
		return h.handleInitialize(req.Params)
	case "tools/list":
		return map[string]any{"tools": h.server.ListTools()}, nil
	case "tools/call":
		return h.handleToolsCall(ctx, req.Params)
	case "ping":
		return map[string]string{"status": "ok"}, nil
	default:
		return nil, &jsonrpc2.Error{
			Code:    ErrCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
	}
}

func (h *RPCHandler) handleInitialize(params *json.RawMessage) (any, error) {
	var initParams struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	if !emptyParams(params) {
		if err := json.Unmarshal(*params, &initParams); err != nil {
			return nil, &jsonrpc2.Error{
				Code:    ErrCodeInvalidParams,
				Message: "invalid initialize parameters",
			}
		}
	}

	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]string{
			"name":    "go-objbackup-mcp",
			"version": version.Get(),
		},
	}, nil
}

func (h *RPCHandler) handleToolsCall(ctx context.Context, params *json.RawMessage) (any, error) {
	if emptyParams(params) {
		return nil, &jsonrpc2.Error{
			Code:    ErrCodeInvalidParams,
			Message: "missing parameters",
		}
	}

	var callParams struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(*params, &callParams); err != nil {
		return nil, &jsonrpc2.Error{
			Code:    ErrCodeInvalidParams,
			Message: "invalid call parameters",
		}
	}

	result, err := h.server.CallTool(ctx, callParams.Name, callParams.Arguments)
	if err != nil {
		code := int64(ErrCodeInternalError)
		switch {
		case errors.Is(err, ErrUnknownTool):
			code = ErrCodeMethodNotFound
		case errors.Is(err, ErrMissingParameter), errors.Is(err, ErrInvalidParameter),
			errors.Is(err, common.ErrValidation):
			code = ErrCodeInvalidParams
		}
		return nil, &jsonrpc2.Error{Code: code, Message: err.Error()}
	}

	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": result},
		},
	}, nil
}

// emptyParams reports whether params is absent or JSON null.
func emptyParams(params *json.RawMessage) bool {
	if params == nil {
		return true
	}
	trimmed := bytes.TrimSpace(*params)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// HTTPHandler provides HTTP transport for JSON-RPC
type HTTPHandler struct {
	handler *RPCHandler
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(server *Server) *HTTPHandler {
	return &HTTPHandler{handler: NewRPCHandler(server)}
}

// ServeHTTP implements http.Handler
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, nil, ErrCodeParseError, "failed to read request body")
		return
	}
	defer r.Body.Close()

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, nil, ErrCodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		h.writeError(w, req.ID, ErrCodeInvalidRequest, "invalid JSON-RPC version")
		return
	}

	result, err := h.handler.Handle(r.Context(), nil, &jsonrpc2.Request{
		Method: req.Method,
		Params: &req.Params,
	})

	resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID}
	if err != nil {
		var rpcErr *jsonrpc2.Error
		if errors.As(err, &rpcErr) {
			resp.Error = &JSONRPCError{Code: int(rpcErr.Code), Message: rpcErr.Message}
		} else {
			resp.Error = &JSONRPCError{Code: ErrCodeInternalError, Message: err.Error()}
		}
	} else {
		resp.Result = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, id any, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &JSONRPCError{Code: code, Message: message},
		ID:      id,
	})
}
