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
	"fmt"
	"strings"
	"time"
)

const (
	// ticksPerSecond is the number of 100ns intervals in a second.
	ticksPerSecond = int64(time.Second / 100)

	// epochOffsetSeconds is the distance from 0001-01-01T00:00:00Z to the
	// Unix epoch.
	epochOffsetSeconds = int64(62135596800)

	// tickDigits is the zero-padded width of the tick prefix. It fits every
	// tick value up to year 9999.
	tickDigits = 19
)

// Ticks returns the number of 100ns intervals between 0001-01-01T00:00:00Z
// and t.
func Ticks(t time.Time) int64 {
	t = t.UTC()
	return (t.Unix()+epochOffsetSeconds)*ticksPerSecond + int64(t.Nanosecond()/100)
}

// PartitionKey returns "{isoYear}_{isoWeek}" for the UTC instant t. All
// instants of a UTC calendar day share one partition.
func PartitionKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d_%d", year, week)
}

// OrderKey returns the sort key for an event observed at t. Lexicographic
// order of order keys is chronological order, with ties broken by id.
func OrderKey(t time.Time, id string) string {
	return fmt.Sprintf("%0*d_%s", tickDigits, Ticks(t), normalizeID(id))
}

// LowerBound returns the smallest order key that can be produced for an
// event at or after t.
func LowerBound(t time.Time) string {
	return fmt.Sprintf("%0*d_", tickDigits, Ticks(t))
}

// DayBounds returns the partition key and the half-open [lower, upper)
// order-key range covering the UTC calendar day containing day.
func DayBounds(day time.Time) (pk, lower, upper string) {
	start := StartOfDay(day)
	return PartitionKey(start), LowerBound(start), LowerBound(start.AddDate(0, 0, 1))
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "-", ""))
}
