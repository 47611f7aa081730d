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
	"iter"
	"testing"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func createdAt(id string, at time.Time) event.ChangeEvent {
	return event.NewCreated(id, "https://src.blob.core.windows.net/docs/"+id+".txt", at, 10)
}

func newTestJournal(t *testing.T, pageSize int) *Journal {
	t.Helper()
	j, err := New(Config{Store: NewMemoryStore(), PageSize: pageSize})
	require.NoError(t, err)
	return j
}

func drain(t *testing.T, seq iter.Seq2[*Entry, error]) []*Entry {
	t.Helper()
	var out []*Entry
	for e, err := range seq {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestJournal_AppendAndDay(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t, 2)

	times := []time.Duration{5 * time.Hour, time.Hour, 23*time.Hour + 59*time.Minute, 3 * time.Hour, 0}
	for i, offset := range times {
		ev := createdAt(string(rune('a'+i)), day.Add(offset))
		require.NoError(t, j.Append(ctx, NewEntry(ev, nil)))
	}
	// Neighbouring days must not leak into the range.
	require.NoError(t, j.Append(ctx, NewEntry(createdAt("prev", day.Add(-time.Nanosecond*100)), nil)))
	require.NoError(t, j.Append(ctx, NewEntry(createdAt("next", day.AddDate(0, 0, 1)), nil)))

	entries := drain(t, j.Day(ctx, day.Add(12*time.Hour)))
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].OrderKey, entries[i].OrderKey)
		assert.False(t, entries[i].Event.EventTime.Before(entries[i-1].Event.EventTime))
	}
	assert.Equal(t, "e", entries[0].Event.ID)
	assert.Equal(t, "c", entries[4].Event.ID)

	// Restartable: a second pass issues a fresh scan.
	again := drain(t, j.Day(ctx, day))
	assert.Len(t, again, 5)
}

func TestJournal_AppendDerivesKeys(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t, 0)

	entry := &Entry{Event: createdAt("A-B", day.Add(time.Hour))}
	require.NoError(t, j.Append(ctx, entry))
	assert.Equal(t, "2024_1", entry.PartitionKey)
	assert.Equal(t, OrderKey(day.Add(time.Hour), "ab"), entry.OrderKey)
}

func TestJournal_AppendErrors(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t, 0)

	ev := createdAt("x", day)
	require.NoError(t, j.Append(ctx, NewEntry(ev, nil)))

	err := j.Append(ctx, NewEntry(ev, nil))
	assert.ErrorIs(t, err, common.ErrEntryExists)
	assert.ErrorIs(t, err, common.ErrJournalWrite)

	err = j.Append(ctx, NewEntry(event.ChangeEvent{Kind: event.KindCreated}, nil))
	assert.ErrorIs(t, err, common.ErrJournalWrite)
	assert.ErrorIs(t, err, common.ErrInvalidEvent)

	deleted := event.NewDeleted("d", "s3://docs/a", day)
	err = j.Append(ctx, NewEntry(deleted, &BackupRef{BackupContainer: "2024", BackupObjectName: "x", OriginalContainer: "docs", OriginalObjectName: "a"}))
	assert.ErrorIs(t, err, common.ErrJournalWrite)

	failing, err := New(Config{Store: &failingStore{appendErr: errors.New("table unavailable")}})
	require.NoError(t, err)
	err = failing.Append(ctx, NewEntry(createdAt("y", day), nil))
	assert.ErrorIs(t, err, common.ErrJournalWrite)
	assert.Contains(t, err.Error(), "table unavailable")
}

func TestJournal_QueryRangeStoreError(t *testing.T) {
	store := &failingStore{queryErr: errors.New("timeout")}
	j, err := New(Config{Store: store})
	require.NoError(t, err)

	var errs int
	for e, err := range j.Day(context.Background(), day) {
		assert.Nil(t, e)
		assert.Error(t, err)
		errs++
	}
	assert.Equal(t, 1, errs)
}

func TestJournal_QueryRangeDecodeError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	j, err := New(Config{Store: store})
	require.NoError(t, err)

	pk, lower, _ := DayBounds(day)
	require.NoError(t, store.Append(ctx, pk, lower+"0bad", []byte("{not json")))
	require.NoError(t, j.Append(ctx, NewEntry(createdAt("good", day.Add(time.Hour)), nil)))

	var entries []*Entry
	var decodeErrs []*DecodeError
	for e, err := range j.Day(ctx, day) {
		if err != nil {
			var derr *DecodeError
			require.ErrorAs(t, err, &derr)
			decodeErrs = append(decodeErrs, derr)
			continue
		}
		entries = append(entries, e)
	}
	require.Len(t, decodeErrs, 1)
	assert.Equal(t, lower+"0bad", decodeErrs[0].OrderKey)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].Event.ID)
}

func TestJournal_EarlyBreak(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: NewMemoryStore()}
	j, err := New(Config{Store: store, PageSize: 1})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, j.Append(ctx, NewEntry(createdAt(string(rune('a'+i)), day.Add(time.Duration(i)*time.Minute)), nil)))
	}
	for range j.Day(ctx, day) {
		break
	}
	assert.Equal(t, 1, store.queries)
}

func TestJournal_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j := newTestJournal(t, 0)
	for _, err := range j.Day(ctx, day) {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, common.ErrStoreRequired)
}

func TestEntry_ObjectRef(t *testing.T) {
	ev := createdAt("a", day)
	ref, err := NewEntry(ev, nil).ObjectRef()
	require.NoError(t, err)
	assert.Equal(t, common.ObjectRef{Container: "docs", Name: "a.txt"}, ref)

	backed := NewEntry(ev, &BackupRef{
		BackupContainer: "2024", BackupObjectName: "wk1/dy1/docs/a.txt.1",
		OriginalContainer: "orig", OriginalObjectName: "renamed.txt",
	})
	ref, err = backed.ObjectRef()
	require.NoError(t, err)
	assert.Equal(t, common.ObjectRef{Container: "orig", Name: "renamed.txt"}, ref)
}

type failingStore struct {
	appendErr error
	queryErr  error
}

func (s *failingStore) Append(ctx context.Context, pk, ok string, record []byte) error {
	return s.appendErr
}

func (s *failingStore) QueryRange(ctx context.Context, q RangeQuery) (Page, error) {
	return Page{}, s.queryErr
}

func (s *failingStore) Close() error { return nil }

type countingStore struct {
	Store
	queries int
}

func (s *countingStore) QueryRange(ctx context.Context, q RangeQuery) (Page, error) {
	s.queries++
	return s.Store.QueryRange(ctx, q)
}
