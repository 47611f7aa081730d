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
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/audit"
	"github.com/jeremyhahn/go-objbackup/pkg/backup"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/factory"
	"github.com/jeremyhahn/go-objbackup/pkg/jobs"
	"github.com/jeremyhahn/go-objbackup/pkg/journal"
	"github.com/jeremyhahn/go-objbackup/pkg/objectstore"
	"github.com/jeremyhahn/go-objbackup/pkg/queue"
	"github.com/jeremyhahn/go-objbackup/pkg/restore"
	grpcserver "github.com/jeremyhahn/go-objbackup/pkg/server/grpc"
	"github.com/jeremyhahn/go-objbackup/pkg/server/mcp"
	"github.com/jeremyhahn/go-objbackup/pkg/server/middleware"
	quicserver "github.com/jeremyhahn/go-objbackup/pkg/server/quic"
	"github.com/jeremyhahn/go-objbackup/pkg/server/rest"
	"github.com/jeremyhahn/go-objbackup/pkg/service"
	"github.com/jeremyhahn/go-objbackup/pkg/supervisor"
)

// Runtime holds the components built from a Config. Components are built
// lazily so client commands only open what they use.
type Runtime struct {
	cfg    *Config
	logger adapters.Logger

	store    common.ObjectStore
	journal  *journal.Journal
	registry jobs.Registry
	runner   *restore.Orchestrator
	svc      *service.RestoreService

	// shared is the badger database used by both the journal and the job
	// registry when they point at the same directory.
	shared *badger.DB

	closers []io.Closer
}

// NewRuntime creates a Runtime. logger may be nil, in which case one is
// built from cfg.Log.
func NewRuntime(cfg *Config, logger adapters.Logger) (*Runtime, error) {
	if logger == nil {
		l, err := adapters.NewLogger(adapters.LoggerConfig{
			Backend: cfg.Log.Backend,
			Level:   cfg.Log.Level,
			Format:  cfg.Log.Format,
			Output:  os.Stderr,
		})
		if err != nil {
			return nil, err
		}
		logger = l
	}
	return &Runtime{cfg: cfg, logger: logger}, nil
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() adapters.Logger {
	return r.logger
}

// Store returns the configured object store, wrapped in a circuit breaker
// when enabled.
func (r *Runtime) Store() (common.ObjectStore, error) {
	if r.store != nil {
		return r.store, nil
	}
	store, err := factory.NewStore(r.cfg.Store.Type, r.cfg.Store.Settings)
	if err != nil {
		return nil, err
	}
	if r.cfg.Breaker.Enabled {
		bc := objectstore.DefaultBreakerConfig(r.cfg.Store.Type)
		if r.cfg.Breaker.FailureThreshold > 0 {
			bc.FailureThreshold = r.cfg.Breaker.FailureThreshold
		}
		if r.cfg.Breaker.Timeout > 0 {
			bc.Timeout = r.cfg.Breaker.Timeout
		}
		bc.Logger = r.logger
		store = objectstore.NewBreakerStore(store, bc)
	}
	r.store = store
	r.closers = append(r.closers, store)
	return store, nil
}

// sharedBadger reports whether the journal and registry share one badger
// database.
func (r *Runtime) sharedBadger() bool {
	return r.cfg.Journal.Backend == "badger" && r.cfg.Jobs.Backend == "badger" &&
		filepath.Clean(r.cfg.Journal.Path) == filepath.Clean(r.cfg.Jobs.Path)
}

func (r *Runtime) badgerDB() (*badger.DB, error) {
	if r.shared != nil {
		return r.shared, nil
	}
	opts := badger.DefaultOptions(r.cfg.Journal.Path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", r.cfg.Journal.Path, err)
	}
	r.shared = db
	return db, nil
}

// Journal returns the change journal.
func (r *Runtime) Journal() (*journal.Journal, error) {
	if r.journal != nil {
		return r.journal, nil
	}

	var store journal.Store
	switch r.cfg.Journal.Backend {
	case "memory":
		store = journal.NewMemoryStore()
	case "file":
		fs, err := journal.NewFileStore(r.cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		store = fs
	case "badger":
		if r.sharedBadger() {
			db, err := r.badgerDB()
			if err != nil {
				return nil, err
			}
			store = journal.NewBadgerStore(db)
		} else {
			bs, err := journal.OpenBadgerStore(r.cfg.Journal.Path)
			if err != nil {
				return nil, err
			}
			store = bs
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedJournal, r.cfg.Journal.Backend)
	}

	j, err := journal.New(journal.Config{Store: store, PageSize: r.cfg.Journal.PageSize, Logger: r.logger})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	r.journal = j
	r.closers = append(r.closers, j)
	return j, nil
}

// Registry returns the restore job registry.
func (r *Runtime) Registry(ctx context.Context) (jobs.Registry, error) {
	if r.registry != nil {
		return r.registry, nil
	}

	var reg jobs.Registry
	switch r.cfg.Jobs.Backend {
	case "memory":
		reg = jobs.NewMemoryRegistry()
	case "badger":
		if r.sharedBadger() {
			db, err := r.badgerDB()
			if err != nil {
				return nil, err
			}
			reg = jobs.NewBadgerRegistry(db)
		} else {
			br, err := jobs.OpenBadgerRegistry(r.cfg.Jobs.Path)
			if err != nil {
				return nil, err
			}
			reg = br
		}
	case "postgres":
		pr, err := jobs.NewPostgresRegistry(ctx, jobs.PostgresConfig{DSN: r.cfg.Jobs.DSN, Table: r.cfg.Jobs.Table})
		if err != nil {
			return nil, err
		}
		reg = pr
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRegistry, r.cfg.Jobs.Backend)
	}
	r.registry = reg
	r.closers = append(r.closers, reg)
	return reg, nil
}

// Orchestrator returns the restore orchestrator.
func (r *Runtime) Orchestrator() (*restore.Orchestrator, error) {
	if r.runner != nil {
		return r.runner, nil
	}
	j, err := r.Journal()
	if err != nil {
		return nil, err
	}
	store, err := r.Store()
	if err != nil {
		return nil, err
	}
	o, err := restore.New(restore.Config{
		Journal:         j,
		Target:          store,
		UpdateFrequency: r.cfg.Restore.UpdateFrequency,
		Logger:          r.logger,
	})
	if err != nil {
		return nil, err
	}
	r.runner = o
	return o, nil
}

// Service returns the restore submission service.
func (r *Runtime) Service(ctx context.Context) (*service.RestoreService, error) {
	if r.svc != nil {
		return r.svc, nil
	}
	o, err := r.Orchestrator()
	if err != nil {
		return nil, err
	}
	reg, err := r.Registry(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := service.New(service.Config{Runner: o, Registry: reg, Logger: r.logger})
	if err != nil {
		return nil, err
	}
	r.svc = svc
	return svc, nil
}

// Worker builds a backup worker over a newly opened queue. The queue is
// closed with the runtime.
func (r *Runtime) Worker() (*backup.Worker, error) {
	q, err := factory.NewQueue(r.cfg.Queue.Type, r.cfg.Queue.Settings, r.logger)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, q)
	return r.workerFor(q)
}

func (r *Runtime) workerFor(q queue.Queue) (*backup.Worker, error) {
	store, err := r.Store()
	if err != nil {
		return nil, err
	}
	j, err := r.Journal()
	if err != nil {
		return nil, err
	}
	return backup.NewWorker(backup.Config{
		Queue:             q,
		Store:             store,
		Journal:           j,
		BatchSize:         r.cfg.Ingest.BatchSize,
		VisibilityTimeout: r.cfg.Ingest.VisibilityTimeout,
		Interval:          r.cfg.Ingest.Interval,
		ContainerPrefix:   r.cfg.Ingest.ContainerPrefix,
		TimestampSuffix:   r.cfg.Ingest.TimestampSuffix,
		Logger:            r.logger,
	})
}

// Dispatcher builds the restore job dispatcher.
func (r *Runtime) Dispatcher(ctx context.Context) (*jobs.Dispatcher, error) {
	o, err := r.Orchestrator()
	if err != nil {
		return nil, err
	}
	reg, err := r.Registry(ctx)
	if err != nil {
		return nil, err
	}
	return jobs.NewDispatcher(jobs.DispatcherConfig{
		Registry: reg,
		Runner:   o,
		Owner:    r.cfg.Dispatch.Owner,
		Interval: r.cfg.Dispatch.Interval,
		Logger:   r.logger,
	})
}

func (r *Runtime) tlsConfig() *adapters.TLSConfig {
	t := r.cfg.Server.TLS
	if t.CertFile == "" && t.KeyFile == "" {
		return nil
	}
	return &adapters.TLSConfig{CertFile: t.CertFile, KeyFile: t.KeyFile, ClientCAFile: t.ClientCAFile}
}

func (r *Runtime) authenticator() adapters.Authenticator {
	if len(r.cfg.Server.APIKeys) == 0 {
		return adapters.NewNoOpAuthenticator()
	}
	return adapters.NewAPIKeyAuthenticator(r.cfg.Server.APIKeys)
}

func (r *Runtime) rateLimit() *middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = r.cfg.Server.RateLimit
	if r.cfg.Server.RateBurst > 0 {
		rl.Burst = r.cfg.Server.RateBurst
	}
	rl.PerClient = r.cfg.Server.PerClient
	return rl
}

// RESTServer builds the REST API server.
func (r *Runtime) RESTServer(ctx context.Context) (*rest.Server, error) {
	svc, err := r.Service(ctx)
	if err != nil {
		return nil, err
	}
	sc := rest.DefaultServerConfig()
	sc.Host = r.cfg.Server.Host
	sc.Port = r.cfg.Server.Port
	sc.BaseURL = r.cfg.Server.BaseURL
	if r.cfg.Server.MaxRequestSize > 0 {
		sc.MaxRequestSize = r.cfg.Server.MaxRequestSize
	}
	sc.EnableRateLimit = r.cfg.Server.RateLimit > 0
	sc.RateLimitConfig = r.rateLimit()
	sc.Logger = r.logger
	sc.Authenticator = r.authenticator()
	sc.TLSConfig = r.tlsConfig()
	if r.cfg.Server.Audit {
		sc.AuditLogger = audit.NewAuditLogger(&audit.Config{
			Enabled: true,
			Format:  audit.OutputFormat(r.cfg.Log.Format),
			Output:  os.Stdout,
		})
	}
	return rest.NewServer(svc, sc)
}

// GRPCServer builds the gRPC health server.
func (r *Runtime) GRPCServer() (*grpcserver.Server, error) {
	opts := []grpcserver.ServerOption{
		grpcserver.WithAddress(r.cfg.GRPC.Address),
		grpcserver.WithLogger(r.logger),
		grpcserver.WithAuthenticator(r.authenticator()),
		grpcserver.WithTLS(r.tlsConfig()),
	}
	if r.cfg.Server.RateLimit > 0 {
		opts = append(opts, grpcserver.WithRateLimit(r.rateLimit()))
	}
	return grpcserver.NewServer(opts...)
}

// HTTP3Server builds the HTTP/3 listener in front of handler, normally the
// REST router.
func (r *Runtime) HTTP3Server(handler http.Handler) (*quicserver.Server, error) {
	opts := quicserver.DefaultOptions()
	opts.Addr = r.cfg.QUIC.Address
	opts.TLSConfig = r.tlsConfig()
	opts.SelfSigned = r.cfg.QUIC.SelfSigned
	opts.Logger = r.logger
	return quicserver.New(handler, opts)
}

// MCPServer builds the MCP tool server in the given transport mode.
func (r *Runtime) MCPServer(ctx context.Context, mode mcp.ServerMode) (*mcp.Server, error) {
	svc, err := r.Service(ctx)
	if err != nil {
		return nil, err
	}
	return mcp.NewServer(&mcp.ServerConfig{
		Mode:          mode,
		HTTPAddress:   r.cfg.MCP.Address,
		Service:       svc,
		BaseURL:       r.cfg.Server.BaseURL,
		Logger:        r.logger,
		Authenticator: r.authenticator(),
		TLSConfig:     r.tlsConfig(),
	})
}

// Tree assembles the supervision tree from the enabled services.
func (r *Runtime) Tree(ctx context.Context) (*supervisor.Tree, error) {
	tree := supervisor.NewTree(r.logger, supervisor.DefaultTreeConfig())
	services := 0

	if r.cfg.Ingest.Enabled {
		w, err := r.Worker()
		if err != nil {
			return nil, fmt.Errorf("backup worker: %w", err)
		}
		tree.AddDataService(w)
		services++
	}
	if r.cfg.Dispatch.Enabled {
		d, err := r.Dispatcher(ctx)
		if err != nil {
			return nil, fmt.Errorf("restore dispatcher: %w", err)
		}
		tree.AddDataService(d)
		services++
	}
	if r.cfg.Server.Enabled || r.cfg.QUIC.Enabled {
		srv, err := r.RESTServer(ctx)
		if err != nil {
			return nil, fmt.Errorf("rest server: %w", err)
		}
		shutdownTimeout := rest.DefaultServerConfig().ReadTimeout
		if r.cfg.Server.Enabled {
			tree.AddAPIService(supervisor.NewHTTPService("rest-server", srv, shutdownTimeout))
			services++
		}
		if r.cfg.QUIC.Enabled {
			h3, err := r.HTTP3Server(srv.Router())
			if err != nil {
				return nil, fmt.Errorf("http3 server: %w", err)
			}
			tree.AddAPIService(supervisor.NewHTTPService("http3-server", h3, shutdownTimeout))
			services++
		}
	}
	if r.cfg.GRPC.Enabled {
		g, err := r.GRPCServer()
		if err != nil {
			return nil, fmt.Errorf("grpc server: %w", err)
		}
		tree.AddAPIService(g)
		services++
	}
	if r.cfg.MCP.Enabled {
		m, err := r.MCPServer(ctx, mcp.ModeHTTP)
		if err != nil {
			return nil, fmt.Errorf("mcp server: %w", err)
		}
		tree.AddAPIService(m)
		services++
	}
	if services == 0 {
		return nil, ErrNothingToRun
	}

	r.logger.Info(ctx, "Services configured",
		adapters.Field{Key: "store", Value: r.cfg.Store.Type},
		adapters.Field{Key: "queue", Value: r.cfg.Queue.Type},
		adapters.Field{Key: "journal", Value: r.cfg.Journal.Backend},
		adapters.Field{Key: "jobs", Value: r.cfg.Jobs.Backend},
		adapters.Field{Key: "services", Value: strconv.Itoa(services)})
	return tree, nil
}

// Close releases everything the runtime opened, newest first.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	if r.shared != nil {
		if err := r.shared.Close(); err != nil {
			errs = append(errs, err)
		}
		r.shared = nil
	}
	return errors.Join(errs...)
}
