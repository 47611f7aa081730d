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

package quic

import (
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/quic-go/quic-go"
)

// Options configures the HTTP/3 listener.
type Options struct {
	// Addr is the UDP address to listen on (default: ":4433").
	Addr string

	// TLSConfig holds the certificate files. HTTP/3 always runs over TLS 1.3.
	TLSConfig *adapters.TLSConfig

	// SelfSigned generates a throwaway localhost certificate when TLSConfig
	// has no certificate. Not for production.
	SelfSigned bool

	// QUICConfig contains QUIC-specific configuration
	QUICConfig *quic.Config

	// Logger is the pluggable logger adapter (default: DefaultLogger)
	Logger adapters.Logger
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Addr:   ":4433",
		Logger: adapters.NewDefaultLogger(),
		QUICConfig: &quic.Config{
			MaxIdleTimeout:        60 * time.Second,
			MaxIncomingStreams:    100,
			MaxIncomingUniStreams: 100,
			KeepAlivePeriod:       30 * time.Second,
			// Restore submissions are not idempotent.
			Allow0RTT: false,
		},
	}
}

// Validate fills defaults and checks the address.
func (o *Options) Validate() error {
	if o.Addr == "" {
		return ErrInvalidAddr
	}
	if o.Logger == nil {
		o.Logger = adapters.NewDefaultLogger()
	}
	if o.QUICConfig == nil {
		o.QUICConfig = DefaultOptions().QUICConfig
	}
	return nil
}
