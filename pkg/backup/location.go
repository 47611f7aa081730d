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

package backup

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// TimestampSuffixLayout is the suffix layout used when the worker is
// configured for timestamp suffixes instead of UUIDs.
const TimestampSuffixLayout = "20060102T150405.000000000Z"

// Container returns the backup container for an event at t: the optional
// prefix followed by the four-digit UTC year.
func Container(prefix string, t time.Time) string {
	return fmt.Sprintf("%s%04d", prefix, t.UTC().Year())
}

// ContainerPattern returns a regular expression matching every backup
// container for prefix.
func ContainerPattern(prefix string) string {
	return "^" + regexp.QuoteMeta(prefix) + "[0-9]{4}$"
}

// ObjectName returns the backup object name for src observed at t:
//
//	wk{isoWeek}/dy{weekday}/{container}/{name}.{suffix}
//
// weekday is 0 for Sunday.
func ObjectName(src common.ObjectRef, t time.Time, suffix string) string {
	t = t.UTC()
	_, week := t.ISOWeek()
	return fmt.Sprintf("wk%d/dy%d/%s/%s.%s", week, int(t.Weekday()), src.Container, src.Name, suffix)
}

// Location returns the backup location for src.
func Location(prefix string, src common.ObjectRef, t time.Time, suffix string) common.ObjectRef {
	return common.ObjectRef{
		Container: Container(prefix, t),
		Name:      ObjectName(src, t, suffix),
	}
}

// NewSuffix returns a UUIDv4 suffix, or the UTC time now formatted with
// TimestampSuffixLayout when timestamp is set.
func NewSuffix(timestamp bool, now time.Time) string {
	if timestamp {
		return now.UTC().Format(TimestampSuffixLayout)
	}
	return uuid.NewString()
}
