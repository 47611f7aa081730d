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

// Package quic serves the restore API over HTTP/3.
package quic

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// Server is an HTTP/3 listener in front of an http.Handler, normally the
// REST router. It satisfies supervisor.HTTPServer.
type Server struct {
	opts   *Options
	server *http3.Server

	mu   sync.RWMutex
	addr net.Addr
}

// New creates an HTTP/3 server for handler.
func New(handler http.Handler, opts *Options) (*Server, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	tlsConfig, err := opts.buildTLS()
	if err != nil {
		return nil, err
	}

	return &Server{
		opts: opts,
		server: &http3.Server{
			Addr:       opts.Addr,
			TLSConfig:  tlsConfig,
			QUICConfig: opts.QUICConfig,
			Handler:    handler,
		},
	}, nil
}

// ListenAndServe binds the UDP address and serves until Shutdown. It
// returns http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.opts.Addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addr = conn.LocalAddr()
	s.mu.Unlock()

	s.opts.Logger.Info(context.Background(), "Starting HTTP/3 server",
		adapters.Field{Key: "address", Value: conn.LocalAddr().String()},
		adapters.Field{Key: "tls_mode", Value: s.tlsMode()})

	err = s.server.Serve(conn)
	_ = conn.Close()
	if errors.Is(err, quic.ErrServerClosed) {
		return http.ErrServerClosed
	}
	return err
}

// Shutdown closes the listener and its connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.opts.Logger.Info(ctx, "Shutting down HTTP/3 server")
	return s.server.Close()
}

// Addr returns the bound address, or nil before ListenAndServe.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Server) tlsMode() string {
	if s.opts.TLSConfig.Enabled() {
		return s.opts.TLSConfig.Mode()
	}
	return "self-signed"
}
