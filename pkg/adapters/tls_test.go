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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "objbackup-test"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}), 0600))
	return certFile, keyFile
}

func TestTLSConfig_Disabled(t *testing.T) {
	var nilConfig *TLSConfig
	assert.False(t, nilConfig.Enabled())

	cfg := &TLSConfig{}
	assert.Equal(t, "disabled", cfg.Mode())

	built, err := cfg.Build()
	require.NoError(t, err)
	assert.Nil(t, built)
}

func TestTLSConfig_Server(t *testing.T) {
	certFile, keyFile := writeTestCert(t, t.TempDir())

	cfg := &TLSConfig{CertFile: certFile, KeyFile: keyFile}
	assert.Equal(t, "server", cfg.Mode())

	built, err := cfg.Build()
	require.NoError(t, err)
	require.NotNil(t, built)
	assert.Len(t, built.Certificates, 1)
	assert.Nil(t, built.ClientCAs)
}

func TestTLSConfig_Mutual(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCert(t, dir)

	cfg := &TLSConfig{CertFile: certFile, KeyFile: keyFile, ClientCAFile: certFile}
	assert.Equal(t, "mutual", cfg.Mode())

	built, err := cfg.Build()
	require.NoError(t, err)
	assert.NotNil(t, built.ClientCAs)
}

func TestTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCert(t, dir)

	_, err := (&TLSConfig{CertFile: filepath.Join(dir, "missing.pem"), KeyFile: keyFile}).Build()
	assert.ErrorIs(t, err, ErrInvalidCertificate)

	_, err = (&TLSConfig{CertFile: certFile, KeyFile: keyFile, ClientCAFile: filepath.Join(dir, "nope.pem")}).Build()
	assert.ErrorIs(t, err, ErrInvalidCAPool)

	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a cert"), 0600))
	_, err = (&TLSConfig{CertFile: certFile, KeyFile: keyFile, ClientCAFile: garbage}).Build()
	assert.ErrorIs(t, err, ErrInvalidCAPool)
}
