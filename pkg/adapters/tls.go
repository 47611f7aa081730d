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

package adapters

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrInvalidCertificate is returned when a certificate is invalid.
	ErrInvalidCertificate = errors.New("invalid certificate")

	// ErrInvalidCAPool is returned when the CA pool is invalid.
	ErrInvalidCAPool = errors.New("invalid CA pool")
)

// TLSConfig describes the listener certificate for the REST and gRPC
// servers. Setting ClientCAFile turns on mutual TLS.
type TLSConfig struct {
	CertFile     string
	KeyFile      string
	ClientCAFile string

	// MinVersion defaults to TLS 1.2.
	MinVersion uint16
}

// Enabled reports whether a certificate has been configured.
func (c *TLSConfig) Enabled() bool {
	return c != nil && c.CertFile != "" && c.KeyFile != ""
}

// Mode returns "mutual", "server" or "disabled" for logging.
func (c *TLSConfig) Mode() string {
	switch {
	case !c.Enabled():
		return "disabled"
	case c.ClientCAFile != "":
		return "mutual"
	default:
		return "server"
	}
}

// Build creates a *tls.Config. It returns nil, nil when TLS is disabled.
func (c *TLSConfig) Build() (*tls.Config, error) {
	if !c.Enabled() {
		return nil, nil
	}

	minVersion := c.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	config := &tls.Config{
		MinVersion:   minVersion,
		Certificates: []tls.Certificate{cert},
	}

	if c.ClientCAFile != "" {
		caData, err := os.ReadFile(c.ClientCAFile) // #nosec G304 -- path from operator configuration
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCAPool, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caData) {
			return nil, ErrInvalidCAPool
		}
		config.ClientCAs = pool
		config.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return config, nil
}
