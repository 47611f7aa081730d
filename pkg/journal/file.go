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
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// fileLine is one JSON Lines record in a partition file.
type fileLine struct {
	OrderKey string          `json:"orderKey"`
	Record   json.RawMessage `json:"record"`
}

// FileStore keeps one JSON Lines file per partition under a directory.
// Appends are synced to disk before returning. Scans read the partition
// file and sort it, so FileStore suits modest volumes and local setups.
type FileStore struct {
	dir   string
	mutex sync.Mutex
	files map[string]*os.File
	keys  map[string]map[string]struct{}
}

// NewFileStore creates the directory if needed and returns a store rooted
// there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, common.ErrPathNotSet
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &FileStore{
		dir:   dir,
		files: make(map[string]*os.File),
		keys:  make(map[string]map[string]struct{}),
	}, nil
}

func (s *FileStore) path(partitionKey string) string {
	return filepath.Join(s.dir, partitionKey+".jsonl")
}

// Append writes one line to the partition file and syncs it.
func (s *FileStore) Append(ctx context.Context, partitionKey, orderKey string, record []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := common.ValidateContainer(partitionKey); err != nil {
		return fmt.Errorf("partition key: %w", err)
	}
	if !json.Valid(record) {
		return fmt.Errorf("record for %s is not valid JSON", orderKey)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.files == nil {
		return ErrStoreClosed
	}

	keys, err := s.loadKeys(partitionKey)
	if err != nil {
		return err
	}
	if _, ok := keys[orderKey]; ok {
		return fmt.Errorf("%w: %s/%s", common.ErrEntryExists, partitionKey, orderKey)
	}

	file, err := s.open(partitionKey)
	if err != nil {
		return err
	}

	data, err := json.Marshal(fileLine{OrderKey: orderKey, Record: record})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	keys[orderKey] = struct{}{}
	return nil
}

// QueryRange reads the partition file and returns one page of the range.
func (s *FileStore) QueryRange(ctx context.Context, q RangeQuery) (Page, error) {
	if err := q.validate(); err != nil {
		return Page{}, err
	}
	if err := common.ValidateContainer(q.PartitionKey); err != nil {
		return Page{}, fmt.Errorf("partition key: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.files == nil {
		return Page{}, ErrStoreClosed
	}

	lines, err := s.readLines(q.PartitionKey)
	if err != nil {
		return Page{}, err
	}

	records := make([]Record, 0, len(lines))
	for _, l := range lines {
		if q.inRange(l.OrderKey) {
			records = append(records, Record{OrderKey: l.OrderKey, Data: l.Record})
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].OrderKey < records[j].OrderKey })
	return paginate(records, q)
}

// Close closes every open partition file.
func (s *FileStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var firstErr error
	for pk, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close partition %s: %w", pk, err)
		}
	}
	s.files = nil
	s.keys = nil
	return firstErr
}

// open returns the append handle for a partition (mutex held).
func (s *FileStore) open(partitionKey string) (*os.File, error) {
	if f, ok := s.files[partitionKey]; ok {
		return f, nil
	}
	f, err := os.OpenFile(s.path(partitionKey), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0600) // #nosec G304 -- partition key validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open partition file: %w", err)
	}
	if err := terminateTornLine(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	s.files[partitionKey] = f
	return f, nil
}

// terminateTornLine appends a newline when the file does not end with one,
// so the next record starts on its own line.
func terminateTornLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat partition file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("failed to read partition file: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("failed to repair partition file: %w", err)
	}
	return nil
}

// loadKeys builds the duplicate index for a partition on first use (mutex
// held).
func (s *FileStore) loadKeys(partitionKey string) (map[string]struct{}, error) {
	if keys, ok := s.keys[partitionKey]; ok {
		return keys, nil
	}
	lines, err := s.readLines(partitionKey)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		keys[l.OrderKey] = struct{}{}
	}
	s.keys[partitionKey] = keys
	return keys, nil
}

// readLines scans a partition file (mutex held). A missing file is an
// empty partition.
func (s *FileStore) readLines(partitionKey string) ([]fileLine, error) {
	f, err := os.Open(s.path(partitionKey)) // #nosec G304 -- path built from validated partition key
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open partition file: %w", err)
	}
	defer f.Close()

	var lines []fileLine
	scanner := bufio.NewScanner(f)

	const maxCapacity = 1024 * 1024 // 1MB
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	for scanner.Scan() {
		var l fileLine
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			// A torn final line from a crash mid-write is skipped.
			continue
		}
		l.Record = append(json.RawMessage(nil), l.Record...)
		lines = append(lines, l)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning partition file: %w", err)
	}
	return lines, nil
}
