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

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for Badger storage
const (
	jobKeyPrefix     = "job/"
	pendingKeyPrefix = "pending/"
)

// BadgerRegistry stores jobs in Badger. Accepted jobs are also indexed
// under "pending/{createdAt}/{pk}/{id}" so the oldest one is the first key
// of the prefix.
type BadgerRegistry struct {
	db     *badger.DB
	ownsDB bool
}

// NewBadgerRegistry wraps an already opened database. The caller keeps
// ownership of db.
func NewBadgerRegistry(db *badger.DB) *BadgerRegistry {
	return &BadgerRegistry{db: db}
}

// OpenBadgerRegistry opens (or creates) a database at path. An empty path
// opens an in-memory database.
func OpenBadgerRegistry(path string) (*BadgerRegistry, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	return &BadgerRegistry{db: db, ownsDB: true}, nil
}

func jobKey(pk, id string) []byte {
	return []byte(jobKeyPrefix + pk + "/" + id)
}

func pendingKey(job *Job) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s/%s", pendingKeyPrefix, job.CreatedAt.UnixNano(), job.PartitionKey, job.ID))
}

// Insert stores job and, when it is Accepted, its pending index entry.
func (r *BadgerRegistry) Insert(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		key := jobKey(job.PartitionKey, job.ID)
		_, err := txn.Get(key)
		if err == nil {
			return exists(job.PartitionKey, job.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check job: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set job: %w", err)
		}
		if job.Status == StatusAccepted {
			if err := txn.Set(pendingKey(job), key); err != nil {
				return fmt.Errorf("set pending index: %w", err)
			}
		}
		return nil
	})
}

// Get loads a job.
func (r *BadgerRegistry) Get(ctx context.Context, pk, id string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var job *Job
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		job, err = loadJob(txn, jobKey(pk, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return notFound(pk, id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func loadJob(txn *badger.Txn, key []byte) (*Job, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var job Job
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	}); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", key, err)
	}
	return &job, nil
}

// ClaimNextPending takes the first claimable pending entry, moves its job to
// Processing and removes the index entry in one transaction. A claim that
// loses a transaction conflict is retried; the conflict means another claim
// committed.
func (r *BadgerRegistry) ClaimNextPending(ctx context.Context, owner string, now time.Time) (*Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		job, err := r.claimOnce(owner, now)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return job, err
	}
}

func (r *BadgerRegistry) claimOnce(owner string, now time.Time) (*Job, error) {
	var claimed *Job
	err := r.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingKeyPrefix)
		it := txn.NewIterator(opts)

		// Dangling or stale index entries are dropped on the way to the
		// first job that can still be claimed.
		var drop [][]byte
		var jobKey []byte
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			indexKey := item.KeyCopy(nil)
			key, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			drop = append(drop, indexKey)

			job, err := loadJob(txn, key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				it.Close()
				return err
			}
			if err := job.Claim(owner, now); err != nil {
				continue
			}
			claimed, jobKey = job, key
			break
		}
		it.Close()

		for _, k := range drop {
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("delete pending index: %w", err)
			}
		}
		if claimed == nil {
			return nil
		}
		data, err := json.Marshal(claimed)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		if err := txn.Set(jobKey, data); err != nil {
			return fmt.Errorf("set job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Update overwrites an existing job and drops its pending index entry once
// it has left Accepted.
func (r *BadgerRegistry) Update(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		key := jobKey(job.PartitionKey, job.ID)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return notFound(job.PartitionKey, job.ID)
		} else if err != nil {
			return fmt.Errorf("check job: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set job: %w", err)
		}
		if job.Status != StatusAccepted {
			if err := txn.Delete(pendingKey(job)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete pending index: %w", err)
			}
		}
		return nil
	})
}

// Close closes the database if the registry opened it.
func (r *BadgerRegistry) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}
