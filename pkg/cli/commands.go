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

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/backup"
	"github.com/jeremyhahn/go-objbackup/pkg/cli/client"
	"github.com/jeremyhahn/go-objbackup/pkg/jobs"
	"github.com/jeremyhahn/go-objbackup/pkg/restore"
	grpcserver "github.com/jeremyhahn/go-objbackup/pkg/server/grpc"
	"github.com/jeremyhahn/go-objbackup/pkg/server/mcp"
	"github.com/jeremyhahn/go-objbackup/pkg/service"
)

// CommandContext holds the context for executing commands. Restore, status
// and health go to the remote server when Remote.URL is set and run
// in-process otherwise.
type CommandContext struct {
	Config  *Config
	Runtime *Runtime
	Client  *client.RESTClient
}

// NewCommandContext creates a new command context from the configuration.
// logger may be nil.
func NewCommandContext(cfg *Config, logger adapters.Logger) (*CommandContext, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	rt, err := NewRuntime(cfg, logger)
	if err != nil {
		return nil, err
	}
	ctx := &CommandContext{Config: cfg, Runtime: rt}

	if cfg.Remote.URL != "" {
		c, err := client.NewRESTClient(&client.Config{
			ServerURL: cfg.Remote.URL,
			APIKey:    cfg.Remote.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create remote client: %w", err)
		}
		ctx.Client = c
	}
	return ctx, nil
}

// Close closes the command context and cleans up resources.
func (c *CommandContext) Close() error {
	var errs []error
	if c.Client != nil {
		errs = append(errs, c.Client.Close())
	}
	errs = append(errs, c.Runtime.Close())
	return errors.Join(errs...)
}

// RestoreCommand submits a restore request. A local Async submission only
// records the job; a running daemon (or DispatchCommand) executes it.
func (c *CommandContext) RestoreCommand(ctx context.Context, req restore.Request) (*service.Response, error) {
	if c.Client != nil {
		return c.Client.SubmitRestore(ctx, req)
	}
	svc, err := c.Runtime.Service(ctx)
	if err != nil {
		return nil, err
	}
	return svc.Submit(ctx, req, c.Config.Server.BaseURL)
}

// ParseJobRef splits a job reference into its partition key and id. It
// accepts "partition/id" or a status location URL.
func ParseJobRef(ref string) (pk, id string, err error) {
	path := ref
	if u, perr := url.Parse(ref); perr == nil && u.Scheme != "" {
		path = u.Path
	}
	if i := strings.Index(path, service.StatusPath+"/"); i >= 0 {
		path = path[i+len(service.StatusPath)+1:]
	}
	path = strings.Trim(path, "/")

	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidJobID, ref)
	}
	return parts[0], parts[1], nil
}

// StatusCommand looks up an asynchronous restore job.
func (c *CommandContext) StatusCommand(ctx context.Context, ref string) (*service.Response, error) {
	pk, id, err := ParseJobRef(ref)
	if err != nil {
		return nil, err
	}
	if c.Client != nil {
		return c.Client.RestoreStatus(ctx, pk, id)
	}
	svc, err := c.Runtime.Service(ctx)
	if err != nil {
		return nil, err
	}
	return svc.Status(ctx, pk, id), nil
}

// HealthCommand checks the remote server, and its gRPC listener when one
// is configured. Without a remote it opens the local store, journal and
// job registry.
func (c *CommandContext) HealthCommand(ctx context.Context) (*OperationResult, error) {
	if c.Client != nil {
		if err := c.Client.Health(ctx); err != nil {
			return nil, err
		}
		if addr := c.Config.Remote.GRPCAddress; addr != "" {
			hc, err := client.NewGRPCHealthClient(&client.Config{ServerURL: addr, APIKey: c.Config.Remote.APIKey})
			if err != nil {
				return nil, err
			}
			defer hc.Close()
			if err := hc.Check(ctx, grpcserver.ServiceName); err != nil {
				return nil, err
			}
		}
		return &OperationResult{Success: true, Message: "Server is healthy: " + c.Config.Remote.URL}, nil
	}

	if _, err := c.Runtime.Store(); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if _, err := c.Runtime.Journal(); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	if _, err := c.Runtime.Registry(ctx); err != nil {
		return nil, fmt.Errorf("jobs: %w", err)
	}
	return &OperationResult{
		Success: true,
		Message: fmt.Sprintf("Local configuration is healthy (store %s, journal %s, jobs %s)",
			c.Config.Store.Type, c.Config.Journal.Backend, c.Config.Jobs.Backend),
	}, nil
}

// IngestCommand runs one backup ingestion batch.
func (c *CommandContext) IngestCommand(ctx context.Context) (backup.BatchResult, error) {
	w, err := c.Runtime.Worker()
	if err != nil {
		return backup.BatchResult{}, err
	}
	return w.RunOnce(ctx)
}

// DispatchCommand claims and runs at most one pending restore job.
func (c *CommandContext) DispatchCommand(ctx context.Context) (*jobs.Job, error) {
	d, err := c.Runtime.Dispatcher(ctx)
	if err != nil {
		return nil, err
	}
	return d.Tick(ctx)
}

// ServeCommand runs the enabled services under supervision until ctx is
// cancelled.
func (c *CommandContext) ServeCommand(ctx context.Context) error {
	tree, err := c.Runtime.Tree(ctx)
	if err != nil {
		return err
	}
	logger := c.Runtime.Logger()
	logger.Info(ctx, "Daemon started")
	err = tree.Serve(ctx)
	logger.Info(ctx, "Daemon stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// MCPCommand serves the MCP tools on stdin and stdout until the client
// disconnects or ctx is cancelled.
func (c *CommandContext) MCPCommand(ctx context.Context) error {
	m, err := c.Runtime.MCPServer(ctx, mcp.ModeStdio)
	if err != nil {
		return err
	}
	err = m.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ConfigCommand returns the current configuration.
func (c *CommandContext) ConfigCommand() *Config {
	return c.Config
}
