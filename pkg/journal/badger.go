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

package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

const badgerKeyPrefix = "j/"

// BadgerStore persists records in Badger under "j/{partition}/{orderKey}".
// Badger keeps keys sorted, so a range scan is a seek plus a bounded walk.
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool
}

// NewBadgerStore wraps an already opened database. The caller keeps
// ownership of db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens (or creates) a Badger database at path. An empty
// path opens an in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	return &BadgerStore{db: db, ownsDB: true}, nil
}

func badgerKey(partitionKey, orderKey string) []byte {
	return []byte(badgerKeyPrefix + partitionKey + "/" + orderKey)
}

// Append writes the record unless the key is already present.
func (s *BadgerStore) Append(ctx context.Context, partitionKey, orderKey string, record []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := badgerKey(partitionKey, orderKey)
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%w: %s/%s", common.ErrEntryExists, partitionKey, orderKey)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check entry: %w", err)
		}
		if err := txn.Set(key, record); err != nil {
			return fmt.Errorf("set entry: %w", err)
		}
		return nil
	})
}

// QueryRange seeks to the lower bound (or just past the token) and walks
// forward until the upper bound or the page limit.
func (s *BadgerStore) QueryRange(ctx context.Context, q RangeQuery) (Page, error) {
	if err := q.validate(); err != nil {
		return Page{}, err
	}
	after, err := q.resumeAfter()
	if err != nil {
		return Page{}, err
	}

	prefix := []byte(badgerKeyPrefix + q.PartitionKey + "/")
	seek := badgerKey(q.PartitionKey, q.Lower)
	if after != "" {
		// The smallest key strictly greater than after.
		seek = append(badgerKey(q.PartitionKey, after), 0)
	}

	limit := q.limit()
	var page Page
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			orderKey := string(item.Key()[len(prefix):])
			if !q.inRange(orderKey) {
				break
			}
			if len(page.Records) == limit {
				page.NextToken = encodeToken(q.PartitionKey, page.Records[limit-1].OrderKey)
				break
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read entry %s: %w", orderKey, err)
			}
			page.Records = append(page.Records, Record{OrderKey: orderKey, Data: data})
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// Close closes the database when the store opened it.
func (s *BadgerStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
