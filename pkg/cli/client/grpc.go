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

package client

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// GRPCHealthClient probes the grpc.health.v1 service of a server.
type GRPCHealthClient struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
	apiKey string
}

// NewGRPCHealthClient dials config.ServerURL ("host:port").
func NewGRPCHealthClient(config *Config) (*GRPCHealthClient, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if config.ServerURL == "" {
		return nil, ErrServerURLRequired
	}

	creds := insecure.NewCredentials()
	switch {
	case config.TLSConfig.Enabled():
		tlsConfig, err := config.TLSConfig.Build()
		if err != nil {
			return nil, err
		}
		// Build returns a server config; present its certificate as the
		// client certificate instead.
		creds = credentials.NewTLS(&tls.Config{
			MinVersion:         tlsConfig.MinVersion,
			Certificates:       tlsConfig.Certificates,
			InsecureSkipVerify: config.Insecure, // #nosec G402 -- operator opt-in
		})
	case config.Insecure:
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true}) // #nosec G402 -- operator opt-in
	}

	conn, err := grpc.NewClient(config.ServerURL, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", config.ServerURL, err)
	}
	return &GRPCHealthClient{
		conn:   conn,
		health: grpc_health_v1.NewHealthClient(conn),
		apiKey: config.APIKey,
	}, nil
}

// Check returns nil when service ("" for the whole server) is SERVING.
func (c *GRPCHealthClient) Check(ctx context.Context, service string) error {
	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, adapters.APIKeyMetadataKey, c.apiKey)
	}
	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return err
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrServerNotServing, resp.Status)
	}
	return nil
}

// Close closes the connection.
func (c *GRPCHealthClient) Close() error {
	return c.conn.Close()
}
