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
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/supervisor"
	"github.com/quic-go/quic-go/http3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			http.Error(w, "plaintext", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, r.Proto)
	})
}

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Addr = "127.0.0.1:0"
	opts.SelfSigned = true
	opts.Logger = adapters.NewNoOpLogger()
	return opts
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, testOptions())
	assert.ErrorIs(t, err, ErrHandlerRequired)

	_, err = New(okHandler(), &Options{})
	assert.ErrorIs(t, err, ErrInvalidAddr)

	_, err = New(okHandler(), &Options{Addr: ":4433"})
	assert.ErrorIs(t, err, ErrTLSConfigRequired)

	opts := testOptions()
	opts.TLSConfig = &adapters.TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	_, err = New(okHandler(), opts)
	assert.ErrorIs(t, err, adapters.ErrInvalidCertificate)
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(okHandler(), &Options{Addr: ":0", SelfSigned: true})
	require.NoError(t, err)
	assert.NotNil(t, s.opts.Logger)
	assert.False(t, s.opts.QUICConfig.Allow0RTT)
	assert.Equal(t, []string{"h3"}, s.server.TLSConfig.NextProtos)
	assert.Equal(t, uint16(tls.VersionTLS13), s.server.TLSConfig.MinVersion)
	assert.Nil(t, s.Addr())
}

func TestServer_ServesOverHTTP3(t *testing.T) {
	s, err := New(okHandler(), testOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	svc := supervisor.NewHTTPService("http3-server", s, time.Second)
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != nil }, 5*time.Second, 10*time.Millisecond)

	tr := &http3.Transport{TLSClientConfig: &tls.Config{
		InsecureSkipVerify: true, // #nosec G402 -- self-signed test certificate
		NextProtos:         []string{"h3"},
	}}
	defer tr.Close()
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	resp, err := client.Get("https://" + s.Addr().String() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, resp.ProtoMajor)
	assert.Equal(t, "HTTP/3.0", string(body))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("HTTP/3 server did not stop")
	}
}
