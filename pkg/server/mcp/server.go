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

// Package mcp exposes restore submission and job status as Model Context
// Protocol tools over JSON-RPC 2.0, on stdio or HTTP.
package mcp

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/service"
	"github.com/sourcegraph/jsonrpc2"
)

// ServerMode defines the transport mode for the MCP server
type ServerMode string

const (
	// ModeStdio runs the server over stdin/stdout
	ModeStdio ServerMode = "stdio"
	// ModeHTTP runs the server over HTTP
	ModeHTTP ServerMode = "http"
)

// ServerConfig holds the server configuration
type ServerConfig struct {
	Mode        ServerMode
	HTTPAddress string
	Service     *service.RestoreService

	// BaseURL prefixes the status locations of Async jobs. It should point
	// at the REST listener.
	BaseURL string

	// Logger is the pluggable logger adapter (default: DefaultLogger)
	Logger adapters.Logger

	// Authenticator is the pluggable authentication adapter for HTTP mode
	// (default: NoOpAuthenticator). Not used for stdio mode.
	Authenticator adapters.Authenticator

	// TLSConfig is the TLS/mTLS configuration for HTTP mode (optional)
	TLSConfig *adapters.TLSConfig

	// ShutdownTimeout bounds the HTTP drain (default: 10s)
	ShutdownTimeout time.Duration
}

// Server is the MCP server
type Server struct {
	config       *ServerConfig
	toolRegistry *ToolRegistry
	toolExecutor *ToolExecutor

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new MCP server
func NewServer(config *ServerConfig) (*Server, error) {
	if config == nil || config.Service == nil {
		return nil, ErrServiceRequired
	}
	switch config.Mode {
	case "":
		config.Mode = ModeHTTP
	case ModeHTTP, ModeStdio:
	default:
		return nil, ErrUnknownServerMode
	}
	if config.HTTPAddress == "" {
		config.HTTPAddress = ":8090"
	}
	if config.Logger == nil {
		config.Logger = adapters.NewDefaultLogger()
	}
	if config.Authenticator == nil {
		config.Authenticator = adapters.NewNoOpAuthenticator()
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	toolRegistry := NewToolRegistry()
	toolRegistry.RegisterDefaultTools()

	return &Server{
		config:       config,
		toolRegistry: toolRegistry,
		toolExecutor: NewToolExecutor(config.Service, config.BaseURL),
	}, nil
}

// Serve implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	if s.config.Mode == ModeStdio {
		s.config.Logger.Info(ctx, "Starting MCP server in stdio mode")
		err := s.ServeConn(ctx, &stdioReadWriteCloser{reader: os.Stdin, writer: os.Stdout})
		s.config.Logger.Info(ctx, "MCP server (stdio mode) stopped")
		return err
	}
	return s.serveHTTP(ctx)
}

// ServeConn serves one JSON-RPC stream with LSP-style framing until the
// peer disconnects or ctx ends.
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) error {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(NewRPCHandler(s).Handle))

	select {
	case <-conn.DisconnectNotify():
		return nil
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	}
}

// Listen binds the HTTP address. Serve calls it when no listener is bound
// yet.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr(), nil
	}
	lis, err := net.Listen("tcp", s.config.HTTPAddress)
	if err != nil {
		return nil, err
	}
	s.listener = lis
	return lis.Addr(), nil
}

// Handler returns the HTTP handler: /health plus authenticated JSON-RPC on
// every other path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/", s.authenticationMiddleware(NewHTTPHandler(s)))
	return mux
}

func (s *Server) serveHTTP(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}
	s.mu.Lock()
	lis := s.listener
	s.listener = nil
	s.mu.Unlock()

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Sync restores run inside the call.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.config.TLSConfig.Enabled() {
			tlsConfig, err := s.config.TLSConfig.Build()
			if err != nil {
				_ = lis.Close()
				errCh <- err
				return
			}
			server.TLSConfig = tlsConfig
			s.config.Logger.Info(ctx, "Starting MCP server in HTTP mode with TLS",
				adapters.Field{Key: "address", Value: addr.String()},
				adapters.Field{Key: "tls_mode", Value: s.config.TLSConfig.Mode()})
			errCh <- server.ServeTLS(lis, "", "")
			return
		}
		s.config.Logger.Info(ctx, "Starting MCP server in HTTP mode",
			adapters.Field{Key: "address", Value: addr.String()})
		errCh <- server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.config.Logger.Info(context.Background(), "Stopping MCP server (HTTP mode)")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return ctx.Err()
}

// authenticationMiddleware wraps an HTTP handler with authentication
func (s *Server) authenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.config.Authenticator.AuthenticateHTTP(r.Context(), r)
		if err != nil {
			s.config.Logger.Warn(r.Context(), "MCP HTTP authentication failed",
				adapters.Field{Key: "error", Value: err.Error()},
				adapters.Field{Key: "path", Value: r.URL.Path},
				adapters.Field{Key: "method", Value: r.Method})
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		s.config.Logger.Debug(r.Context(), "MCP request authenticated",
			adapters.Field{Key: "principal_id", Value: principal.ID})
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return "mcp-server"
}

// ListTools returns all available tools
func (s *Server) ListTools() []Tool {
	return s.toolRegistry.ListTools()
}

// CallTool executes a tool
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if _, ok := s.toolRegistry.GetTool(name); !ok {
		return "", ErrUnknownTool
	}
	s.config.Logger.Info(ctx, "MCP tool called", adapters.Field{Key: "tool", Value: name})
	return s.toolExecutor.Execute(ctx, name, args)
}

// stdioReadWriteCloser wraps stdin/stdout for use with jsonrpc2
type stdioReadWriteCloser struct {
	reader io.Reader
	writer io.Writer
}

func (rw *stdioReadWriteCloser) Read(p []byte) (int, error) {
	return rw.reader.Read(p)
}

func (rw *stdioReadWriteCloser) Write(p []byte) (int, error) {
	return rw.writer.Write(p)
}

// Close leaves stdin and stdout open.
func (rw *stdioReadWriteCloser) Close() error {
	return nil
}
