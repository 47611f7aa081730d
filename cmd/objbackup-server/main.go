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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/cli"
	"github.com/jeremyhahn/go-objbackup/pkg/version"
)

func main() {
	configFile := flag.String("config", "", "Configuration file (default $HOME/.objbackup.yaml or ./.objbackup.yaml)")

	// Service selection; unset flags keep the configured value
	enableREST := flag.Bool("rest", true, "Enable REST server")
	enableGRPC := flag.Bool("grpc", false, "Enable gRPC health server")
	enableIngest := flag.Bool("ingest", true, "Enable the backup ingestion worker")
	enableDispatch := flag.Bool("dispatch", true, "Enable the restore job dispatcher")
	enableQUIC := flag.Bool("quic", false, "Enable the HTTP/3 listener for the REST API")
	enableMCP := flag.Bool("mcp", false, "Enable the MCP tool server")

	restPort := flag.Int("rest-port", 8080, "REST server port")
	grpcAddr := flag.String("grpc-addr", ":50051", "gRPC server address")
	quicAddr := flag.String("quic-addr", ":4433", "HTTP/3 (UDP) listen address")
	mcpAddr := flag.String("mcp-addr", ":8090", "MCP server address")
	storePath := flag.String("path", "", "Root directory of the local store")

	flag.Parse()

	v, err := cli.InitConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg, err := cli.GetConfig(v)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rest":
			cfg.Server.Enabled = *enableREST
		case "grpc":
			cfg.GRPC.Enabled = *enableGRPC
		case "ingest":
			cfg.Ingest.Enabled = *enableIngest
		case "dispatch":
			cfg.Dispatch.Enabled = *enableDispatch
		case "quic":
			cfg.QUIC.Enabled = *enableQUIC
		case "mcp":
			cfg.MCP.Enabled = *enableMCP
		case "quic-addr":
			cfg.QUIC.Address = *quicAddr
		case "mcp-addr":
			cfg.MCP.Address = *mcpAddr
		case "rest-port":
			cfg.Server.Port = *restPort
		case "grpc-addr":
			cfg.GRPC.Address = *grpcAddr
		case "path":
			cfg.Store.Settings["path"] = *storePath
			if cfg.Queue.Type == "watch" {
				cfg.Queue.Settings["path"] = *storePath
			}
		}
	})

	logger, err := adapters.NewLogger(adapters.LoggerConfig{
		Backend: cfg.Log.Backend,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	cc, err := cli.NewCommandContext(cfg, logger)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	defer func() { _ = cc.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "Object backup daemon starting",
		adapters.Field{Key: "version", Value: version.Get()},
		adapters.Field{Key: "store", Value: cfg.Store.Type},
		adapters.Field{Key: "queue", Value: cfg.Queue.Type},
		adapters.Field{Key: "journal", Value: cfg.Journal.Backend},
		adapters.Field{Key: "jobs", Value: cfg.Jobs.Backend},
		adapters.Field{Key: "rest", Value: enabledAt(cfg.Server.Enabled, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))},
		adapters.Field{Key: "grpc", Value: enabledAt(cfg.GRPC.Enabled, cfg.GRPC.Address)},
		adapters.Field{Key: "http3", Value: enabledAt(cfg.QUIC.Enabled, cfg.QUIC.Address)},
		adapters.Field{Key: "mcp", Value: enabledAt(cfg.MCP.Enabled, cfg.MCP.Address)},
		adapters.Field{Key: "ingest", Value: cfg.Ingest.Enabled},
		adapters.Field{Key: "dispatch", Value: cfg.Dispatch.Enabled})

	if err := cc.ServeCommand(ctx); err != nil {
		logger.Error(ctx, "Daemon failed", adapters.Field{Key: "error", Value: err.Error()})
		_ = cc.Close()
		os.Exit(1)
	}
}

func enabledAt(enabled bool, addr string) string {
	if !enabled {
		return "disabled"
	}
	return addr
}
