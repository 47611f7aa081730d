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

// Package journal implements the append-only, time-partitioned change log
// that restore replays. Entries are grouped into ISO-week partitions and
// ordered inside a partition by a key whose lexicographic order is the
// event time order.
package journal

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

var (
	// ErrStoreClosed is returned by stores after Close.
	ErrStoreClosed = errors.New("journal store closed")
)

// DecodeError reports a stored record that could not be decoded. Range
// scans yield it and carry on with the next record.
type DecodeError struct {
	PartitionKey string
	OrderKey     string
	Raw          []byte
	Err          error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode journal entry %s/%s: %v", e.PartitionKey, e.OrderKey, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Config configures a Journal.
type Config struct {
	Store    Store
	PageSize int
	Logger   adapters.Logger
}

// Journal appends change entries and scans them back by time range.
type Journal struct {
	store    Store
	pageSize int
	logger   adapters.Logger
}

// New creates a Journal over cfg.Store.
func New(cfg Config) (*Journal, error) {
	if cfg.Store == nil {
		return nil, common.ErrStoreRequired
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NewNoOpLogger()
	}
	return &Journal{store: cfg.Store, pageSize: cfg.PageSize, logger: cfg.Logger}, nil
}

// Append validates entry, fills in missing keys and stores it. Failures
// wrap common.ErrJournalWrite; a repeated order key wraps
// common.ErrEntryExists as well.
func (j *Journal) Append(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrJournalWrite, err)
	}
	if entry.PartitionKey == "" {
		entry.PartitionKey = PartitionKey(entry.Event.EventTime)
	}
	if entry.OrderKey == "" {
		entry.OrderKey = OrderKey(entry.Event.EventTime, entry.Event.ID)
	}

	data, err := marshalEntry(entry)
	if err != nil {
		return fmt.Errorf("%w: encode entry: %w", common.ErrJournalWrite, err)
	}

	if err := j.store.Append(ctx, entry.PartitionKey, entry.OrderKey, data); err != nil {
		if errors.Is(err, common.ErrJournalWrite) {
			return err
		}
		return fmt.Errorf("%w: %s/%s: %w", common.ErrJournalWrite, entry.PartitionKey, entry.OrderKey, err)
	}

	j.logger.Debug(ctx, "Journal entry appended",
		adapters.Field{Key: "partition", Value: entry.PartitionKey},
		adapters.Field{Key: "order_key", Value: entry.OrderKey},
		adapters.Field{Key: "kind", Value: string(entry.Event.Kind)})
	return nil
}

// QueryRange returns the entries of partition pk with lower <= orderKey <
// upper in ascending order. The sequence is lazy and can be ranged over
// more than once; each pass runs a fresh scan. A store failure is yielded
// once and ends the sequence. Undecodable records are yielded as
// *DecodeError and the scan continues.
func (j *Journal) QueryRange(ctx context.Context, pk, lower, upper string) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		q := RangeQuery{PartitionKey: pk, Lower: lower, Upper: upper, Limit: j.pageSize}
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, err := j.store.QueryRange(ctx, q)
			if err != nil {
				yield(nil, fmt.Errorf("query %s [%s, %s): %w", pk, lower, upper, err))
				return
			}
			for _, rec := range page.Records {
				entry, err := unmarshalEntry(rec.Data)
				if err != nil {
					derr := &DecodeError{PartitionKey: pk, OrderKey: rec.OrderKey, Raw: rec.Data, Err: err}
					if !yield(nil, derr) {
						return
					}
					continue
				}
				if !yield(entry, nil) {
					return
				}
			}
			if page.NextToken == "" {
				return
			}
			q.Token = page.NextToken
		}
	}
}

// Day returns the entries of the UTC calendar day containing day.
func (j *Journal) Day(ctx context.Context, day time.Time) iter.Seq2[*Entry, error] {
	pk, lower, upper := DayBounds(day)
	return j.QueryRange(ctx, pk, lower, upper)
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	return j.store.Close()
}
