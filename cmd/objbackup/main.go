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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-objbackup/pkg/cli"
	"github.com/jeremyhahn/go-objbackup/pkg/restore"
	"github.com/jeremyhahn/go-objbackup/pkg/version"
)

var (
	cfgFile      string
	viperConfig  *viper.Viper
	globalConfig *cli.Config
)

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"server":        "remote.url",
	"api-key":       "remote.api_key",
	"grpc-address":  "remote.grpc_address",
	"output-format": "output",
	"log-level":     "log.level",
	"store":         "store.type",
	"journal":       "journal.backend",
	"journal-path":  "journal.path",
	"jobs":          "jobs.backend",
	"jobs-dsn":      "jobs.dsn",
}

// reportedError has already been printed in the selected output format.
type reportedError struct{ error }

func main() {
	if err := rootCmd.Execute(); err != nil {
		if _, ok := err.(reportedError); !ok {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "objbackup",
	Short: "Continuous object store backup with point-in-time restore",
	Long: `objbackup journals every change to an object store, keeps a
time-bucketed copy of each written object and replays the journal to
restore containers to an earlier state.

Object Stores:
  - memory : in-process (testing)
  - local  : local filesystem
  - s3     : AWS S3 and compatible services (build tag awss3)
  - azure  : Azure Blob Storage (build tag azureblob)
  - gcs    : Google Cloud Storage (build tag gcpstorage)

Change Queues:
  - watch  : filesystem notifications for the local store
  - memory : in-process (testing)
  - sqs    : AWS SQS (build tag awssqs)
  - nats   : NATS JetStream (build tag nats)

Configuration can be provided via:
  - Command-line flags (highest priority)
  - Environment variables (OBJBACKUP_*, e.g. OBJBACKUP_SERVER_PORT)
  - Configuration file (~/.objbackup.yaml or ./.objbackup.yaml)
  - Default values (lowest priority)`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		viperConfig, err = cli.InitConfig(cfgFile)
		if err != nil {
			return err
		}

		for flag, key := range flagKeys {
			if f := cmd.Flags().Lookup(flag); f != nil {
				if err := viperConfig.BindPFlag(key, f); err != nil {
					return fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
		}

		globalConfig, err = cli.GetConfig(viperConfig)
		return err
	},
}

func outputFormat() cli.OutputFormat {
	return cli.OutputFormat(globalConfig.Output)
}

// withContext builds the command context, runs fn and prints any error in
// the selected output format.
func withContext(fn func(ctx context.Context, cc *cli.CommandContext) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cc, err := cli.NewCommandContext(globalConfig, nil)
	if err != nil {
		fmt.Fprint(os.Stderr, cli.FormatError(err, outputFormat()))
		return reportedError{err}
	}
	defer func() { _ = cc.Close() }()

	if err := fn(ctx, cc); err != nil {
		fmt.Fprint(os.Stderr, cli.FormatError(err, outputFormat()))
		return reportedError{err}
	}
	return nil
}

var restoreCmd = &cobra.Command{
	Use:   "restore <start-date> <end-date>",
	Short: "Restore objects to their state as of the end of a date range",
	Long: `Replay the change journal for every UTC day from start-date through
end-date. Dates use YYYY-MM-DD. Without --container the whole store is
restored. A synchronous restore waits for the final counts; --async
records a job and prints its status location.`,
	Example: `  objbackup restore 2024-01-01 2024-01-07
  objbackup restore 2024-01-01 2024-01-07 --container docs --blob a.txt --blob b.txt
  objbackup restore 2024-01-01 2024-01-07 --skip-deletes --async
  objbackup restore 2024-01-01 2024-01-07 --server http://localhost:8080 -o json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, _ := cmd.Flags().GetString("container")    //nolint:errcheck // flags are validated by cobra
		blobs, _ := cmd.Flags().GetStringSlice("blob")        //nolint:errcheck // flags are validated by cobra
		skipDeletes, _ := cmd.Flags().GetBool("skip-deletes") //nolint:errcheck // flags are validated by cobra
		async, _ := cmd.Flags().GetBool("async")              //nolint:errcheck // flags are validated by cobra

		req := restore.Request{
			StartDate:     args[0],
			EndDate:       args[1],
			ContainerName: container,
			BlobNames:     blobs,
			SkipDeletes:   restore.SkipDeletes(skipDeletes),
			ReqType:       string(restore.Sync),
		}
		if async {
			req.ReqType = string(restore.Async)
		}

		return withContext(func(ctx context.Context, cc *cli.CommandContext) error {
			resp, err := cc.RestoreCommand(ctx, req)
			if err != nil {
				return err
			}
			fmt.Print(cli.FormatRestoreResponse(resp, outputFormat()))
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <partition/id | status-location>",
	Short: "Show the status of an asynchronous restore",
	Example: `  objbackup status 2024_2/6f1c0f0e-4c1e-4d7e-a1f3-3f1f2b0c9d11
  objbackup status http://localhost:8080/api/restore/2024_2/6f1c0f0e-4c1e-4d7e-a1f3-3f1f2b0c9d11`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContext(func(ctx context.Context, cc *cli.CommandContext) error {
			resp, err := cc.StatusCommand(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Print(cli.FormatRestoreResponse(resp, outputFormat()))
			return nil
		})
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Process one batch of change notifications",
	Long: `Receive one batch from the configured change queue, journal each
change and copy written objects to their backup location.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContext(func(ctx context.Context, cc *cli.CommandContext) error {
			res, err := cc.IngestCommand(ctx)
			if err != nil {
				return err
			}
			fmt.Print(cli.FormatBatchResult(res, outputFormat()))
			return nil
		})
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run the oldest pending asynchronous restore",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContext(func(ctx context.Context, cc *cli.CommandContext) error {
			job, err := cc.DispatchCommand(ctx)
			if err != nil {
				return err
			}
			fmt.Print(cli.FormatDispatchResult(job, outputFormat()))
			return nil
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backup daemon",
	Long: `Run the enabled services under supervision: the ingestion worker,
the restore dispatcher, the REST API, the gRPC health listener, the
HTTP/3 listener and the MCP tool server. The daemon stops on SIGINT or
SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContext(func(ctx context.Context, cc *cli.CommandContext) error {
			return cc.ServeCommand(ctx)
		})
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the restore tools to an MCP client over stdio",
	Long: `Expose restore_submit and restore_status as Model Context Protocol
tools on stdin and stdout. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContext(func(ctx context.Context, cc *cli.CommandContext) error {
			return cc.MCPCommand(ctx)
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the remote server or the local configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContext(func(ctx context.Context, cc *cli.CommandContext) error {
			res, err := cc.HealthCommand(ctx)
			if err != nil {
				return err
			}
			fmt.Print(cli.FormatOperationResult(res, outputFormat()))
			return nil
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.ValidateConfig(globalConfig); err != nil {
			fmt.Fprint(os.Stderr, cli.FormatError(err, outputFormat()))
			return reportedError{err}
		}
		fmt.Print(cli.DisplayConfig(globalConfig, globalConfig.Output))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.GetInfo()
		fmt.Print(cli.FormatOperationResult(&cli.OperationResult{
			Success: true,
			Message: fmt.Sprintf("objbackup %s (commit %s, built %s, %s)",
				info.Version, info.Commit, info.BuildDate, info.GoVersion),
			Data: info,
		}, outputFormat()))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.objbackup.yaml)")
	rootCmd.PersistentFlags().String("server", "", "server URL for remote operations (e.g., http://localhost:8080)")
	rootCmd.PersistentFlags().String("api-key", "", "API key sent to the remote server")
	rootCmd.PersistentFlags().String("grpc-address", "", "gRPC address probed by health (e.g., localhost:50051)")
	rootCmd.PersistentFlags().StringP("output-format", "o", "text", "output format (text, json, table)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store", "local", "object store (memory, local, s3, azure, gcs)")
	rootCmd.PersistentFlags().String("journal", "badger", "journal backend (memory, file, badger)")
	rootCmd.PersistentFlags().String("journal-path", "./data", "journal directory")
	rootCmd.PersistentFlags().String("jobs", "badger", "restore job registry (memory, badger, postgres)")
	rootCmd.PersistentFlags().String("jobs-dsn", "", "PostgreSQL DSN for the postgres job registry")

	restoreCmd.Flags().String("container", "", "restrict the restore to one container")
	restoreCmd.Flags().StringSlice("blob", nil, "restrict the restore to these objects (requires --container)")
	restoreCmd.Flags().Bool("skip-deletes", false, "do not replay deletions")
	restoreCmd.Flags().Bool("async", false, "record a job instead of waiting for the result")

	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
