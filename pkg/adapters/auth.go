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
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

var (
	// ErrUnauthorized is returned when authentication fails.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is returned when credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingCredentials is returned when required credentials are missing.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrInvalidLogLevel is returned for an unrecognized log level string.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrUnknownLogBackend is returned for an unrecognized logger backend.
	ErrUnknownLogBackend = errors.New("unknown log backend")
)

const (
	// APIKeyHeader carries the API key on REST calls.
	APIKeyHeader = "X-API-Key"

	// FunctionsKeyHeader is accepted for clients migrating from function-key
	// protected endpoints.
	FunctionsKeyHeader = "X-Functions-Key"

	// APIKeyQueryParam is the query string alternative to the header.
	APIKeyQueryParam = "code"

	// APIKeyMetadataKey carries the API key in gRPC metadata.
	APIKeyMetadataKey = "x-api-key"
)

// Principal represents an authenticated caller.
type Principal struct {
	// ID is the unique identifier for this principal.
	ID string

	// Name is the human-readable name.
	Name string

	// Type indicates the principal type (e.g., "apikey", "anonymous").
	Type string
}

// Authenticator defines the interface for pluggable authentication implementations.
type Authenticator interface {
	// AuthenticateHTTP authenticates an HTTP request and returns the authenticated principal.
	AuthenticateHTTP(ctx context.Context, req *http.Request) (*Principal, error)

	// AuthenticateGRPC authenticates a gRPC call from its incoming metadata.
	AuthenticateGRPC(ctx context.Context, md metadata.MD) (*Principal, error)
}

// NoOpAuthenticator is an authenticator that allows all requests (no authentication).
// Useful for development or when authentication is handled externally.
type NoOpAuthenticator struct{}

// NewNoOpAuthenticator creates a new no-op authenticator.
func NewNoOpAuthenticator() *NoOpAuthenticator {
	return &NoOpAuthenticator{}
}

func anonymous() *Principal {
	return &Principal{ID: "anonymous", Name: "Anonymous", Type: "anonymous"}
}

// AuthenticateHTTP allows all HTTP requests.
func (a *NoOpAuthenticator) AuthenticateHTTP(ctx context.Context, req *http.Request) (*Principal, error) {
	return anonymous(), nil
}

// AuthenticateGRPC allows all gRPC requests.
func (a *NoOpAuthenticator) AuthenticateGRPC(ctx context.Context, md metadata.MD) (*Principal, error) {
	return anonymous(), nil
}

// APIKeyAuthenticator accepts requests that present one of a fixed set of
// named keys.
type APIKeyAuthenticator struct {
	keys map[string]string // key -> principal name
}

// NewAPIKeyAuthenticator creates an authenticator from a name -> key map.
// Empty keys are ignored.
func NewAPIKeyAuthenticator(named map[string]string) *APIKeyAuthenticator {
	keys := make(map[string]string, len(named))
	for name, key := range named {
		if key == "" {
			continue
		}
		keys[key] = name
	}
	return &APIKeyAuthenticator{keys: keys}
}

// AuthenticateHTTP reads the key from X-API-Key, X-Functions-Key or the
// "code" query parameter.
func (a *APIKeyAuthenticator) AuthenticateHTTP(ctx context.Context, req *http.Request) (*Principal, error) {
	key := req.Header.Get(APIKeyHeader)
	if key == "" {
		key = req.Header.Get(FunctionsKeyHeader)
	}
	if key == "" {
		key = req.URL.Query().Get(APIKeyQueryParam)
	}
	return a.lookup(key)
}

// AuthenticateGRPC reads the key from the x-api-key metadata entry.
func (a *APIKeyAuthenticator) AuthenticateGRPC(ctx context.Context, md metadata.MD) (*Principal, error) {
	values := md.Get(APIKeyMetadataKey)
	if len(values) == 0 {
		return nil, ErrMissingCredentials
	}
	return a.lookup(values[0])
}

func (a *APIKeyAuthenticator) lookup(key string) (*Principal, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrMissingCredentials
	}
	for candidate, name := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return &Principal{ID: name, Name: name, Type: "apikey"}, nil
		}
	}
	return nil, ErrInvalidCredentials
}
