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

package restore

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayouts are the accepted request date formats, tried in order.
var DateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
	time.RFC3339Nano,
}

var errUnparseableDate = errors.New("unparseable date")

// ParseDate parses s with DateLayouts and returns midnight UTC of the
// calendar date written in s. An RFC3339 offset does not move the date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("%w %q, use yyyy-mm-dd or mm/dd/yyyy", errUnparseableDate, s)
}

// ExpandDays returns every UTC calendar day from start through end,
// inclusive and ascending. It returns nil when start is after end.
func ExpandDays(start, end time.Time) []time.Time {
	start = start.UTC()
	end = end.UTC()
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	var days []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// FormatExecutionTime renders d as HH:MM:SS.cc with hundredths of a second.
func FormatExecutionTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := d.Milliseconds() / 10
	return fmt.Sprintf("%02d:%02d:%02d.%02d",
		cs/360000, (cs/6000)%60, (cs/100)%60, cs%100)
}
