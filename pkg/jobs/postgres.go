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

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// DefaultPostgresTable is the table used when PostgresConfig.Table is empty.
const DefaultPostgresTable = "objbackup_restore_jobs"

// PostgresConfig configures a PostgresRegistry.
type PostgresConfig struct {
	DSN   string
	Table string
}

// PostgresRegistry stores jobs in PostgreSQL. The full job is kept as
// JSONB next to the columns used for claiming.
type PostgresRegistry struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresRegistry connects, pings and creates the table if needed.
func NewPostgresRegistry(ctx context.Context, cfg PostgresConfig) (*PostgresRegistry, error) {
	if cfg.DSN == "" {
		return nil, common.ErrDSNNotSet
	}
	if cfg.Table == "" {
		cfg.Table = DefaultPostgresTable
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	r := &PostgresRegistry{pool: pool, table: pgx.Identifier{cfg.Table}.Sanitize()}
	if err := r.bootstrap(ctx, cfg.Table); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRegistry) bootstrap(ctx context.Context, table string) error {
	index := pgx.Identifier{table + "_pending"}.Sanitize()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + r.table + ` (
			partition_key TEXT NOT NULL,
			id            TEXT NOT NULL,
			status        TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			claimed_by    TEXT NOT NULL DEFAULT '',
			data          JSONB NOT NULL,
			PRIMARY KEY (partition_key, id)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + index + ` ON ` + r.table + ` (created_at) WHERE status = 'Accepted'`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap job table: %w", err)
		}
	}
	return nil
}

// Insert stores a new job.
func (r *PostgresRegistry) Insert(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO `+r.table+` (partition_key, id, status, created_at, claimed_by, data)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.PartitionKey, job.ID, string(job.Status), job.CreatedAt, job.ClaimedBy, data)
	if isUniqueViolation(err) {
		return exists(job.PartitionKey, job.ID)
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get loads a job.
func (r *PostgresRegistry) Get(ctx context.Context, pk, id string) (*Job, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM `+r.table+` WHERE partition_key = $1 AND id = $2`, pk, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(pk, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return decodeJob(data)
}

// ClaimNextPending locks the oldest Accepted row with SKIP LOCKED, so
// concurrent dispatchers never claim the same job.
func (r *PostgresRegistry) ClaimNextPending(ctx context.Context, owner string, now time.Time) (*Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var data []byte
	err = tx.QueryRow(ctx,
		`SELECT data FROM `+r.table+`
		 WHERE status = $1
		 ORDER BY created_at, partition_key, id
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`, string(StatusAccepted)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select pending job: %w", err)
	}

	job, err := decodeJob(data)
	if err != nil {
		return nil, err
	}
	if err := job.Claim(owner, now); err != nil {
		return nil, err
	}
	if err := r.write(ctx, tx, job); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return job, nil
}

// Update overwrites an existing job.
func (r *PostgresRegistry) Update(ctx context.Context, job *Job) error {
	return r.write(ctx, r.pool, job)
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (r *PostgresRegistry) write(ctx context.Context, db execer, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	tag, err := db.Exec(ctx,
		`UPDATE `+r.table+` SET status = $3, claimed_by = $4, data = $5
		 WHERE partition_key = $1 AND id = $2`,
		job.PartitionKey, job.ID, string(job.Status), job.ClaimedBy, data)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(job.PartitionKey, job.ID)
	}
	return nil
}

// Close closes the pool.
func (r *PostgresRegistry) Close() error {
	r.pool.Close()
	return nil
}

func decodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
