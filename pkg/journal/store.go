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
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// DefaultPageSize bounds a single QueryRange page when the caller does not
// set a limit.
const DefaultPageSize = 1000

// Record is a stored entry body addressed by its order key.
type Record struct {
	OrderKey string
	Data     []byte
}

// RangeQuery selects records of one partition with Lower <= key < Upper.
// Token continues a previous page.
type RangeQuery struct {
	PartitionKey string
	Lower        string
	Upper        string
	Token        string
	Limit        int
}

// Page is one slice of a range scan. An empty NextToken means the scan is
// complete.
type Page struct {
	Records   []Record
	NextToken string
}

// Store is the durable backend behind a Journal. Implementations must
// reject a second append of the same (partitionKey, orderKey) with an error
// wrapping common.ErrEntryExists, and must return records in ascending
// order-key order.
type Store interface {
	Append(ctx context.Context, partitionKey, orderKey string, record []byte) error
	QueryRange(ctx context.Context, q RangeQuery) (Page, error)
	Close() error
}

func (q RangeQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultPageSize
	}
	return q.Limit
}

func (q RangeQuery) validate() error {
	if q.PartitionKey == "" {
		return fmt.Errorf("%w: partition key is required", common.ErrValidation)
	}
	if q.Upper != "" && q.Lower >= q.Upper {
		return fmt.Errorf("%w: empty range [%s, %s)", common.ErrValidation, q.Lower, q.Upper)
	}
	return nil
}

// inRange applies the half-open predicate. An empty upper bound is open.
func (q RangeQuery) inRange(key string) bool {
	return key >= q.Lower && (q.Upper == "" || key < q.Upper)
}

func encodeToken(partitionKey, lastKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(partitionKey + "\x00" + lastKey))
}

// resumeAfter decodes q.Token into the last order key already returned.
func (q RangeQuery) resumeAfter() (string, error) {
	if q.Token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(q.Token)
	if err != nil {
		return "", common.ErrInvalidToken
	}
	pk, last, ok := strings.Cut(string(raw), "\x00")
	if !ok || pk != q.PartitionKey || !q.inRange(last) {
		return "", common.ErrInvalidToken
	}
	return last, nil
}

// paginate cuts one page out of records, which must be sorted by order key.
func paginate(records []Record, q RangeQuery) (Page, error) {
	after, err := q.resumeAfter()
	if err != nil {
		return Page{}, err
	}

	i := sort.Search(len(records), func(i int) bool {
		k := records[i].OrderKey
		if after != "" {
			return k > after
		}
		return k >= q.Lower
	})

	limit := q.limit()
	var page Page
	for ; i < len(records) && q.inRange(records[i].OrderKey); i++ {
		if len(page.Records) == limit {
			page.NextToken = encodeToken(q.PartitionKey, page.Records[limit-1].OrderKey)
			break
		}
		rec := records[i]
		page.Records = append(page.Records, Record{OrderKey: rec.OrderKey, Data: append([]byte(nil), rec.Data...)})
	}
	return page, nil
}
