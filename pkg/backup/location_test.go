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
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer(t *testing.T) {
	at := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024", Container("", at))
	assert.Equal(t, "backup-2024", Container("backup-", at))

	// Local time is converted to UTC first.
	east := time.FixedZone("UTC+5", 5*3600)
	assert.Equal(t, "2023", Container("", time.Date(2024, 1, 1, 2, 0, 0, 0, east)))
}

func TestObjectName(t *testing.T) {
	src := common.ObjectRef{Container: "docs", Name: "reports/q1.pdf"}

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"monday week 1", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), "wk1/dy1/docs/reports/q1.pdf.s"},
		{"sunday", time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC), "wk1/dy0/docs/reports/q1.pdf.s"},
		{"saturday week 10", time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC), "wk10/dy6/docs/reports/q1.pdf.s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectName(src, tt.at, "s"))
		})
	}
}

func TestContainerPattern(t *testing.T) {
	re := regexp.MustCompile(ContainerPattern("bk."))
	assert.True(t, re.MatchString("bk.2024"))
	assert.False(t, re.MatchString("bkx2024"))
	assert.False(t, re.MatchString("bk.20245"))
	assert.False(t, re.MatchString("docs"))

	plain := regexp.MustCompile(ContainerPattern(""))
	assert.True(t, plain.MatchString("1999"))
	assert.False(t, plain.MatchString("photos"))
}

func TestNewSuffix(t *testing.T) {
	_, err := uuid.Parse(NewSuffix(false, time.Now()))
	require.NoError(t, err)

	at := time.Date(2024, 1, 1, 8, 5, 3, 123456789, time.UTC)
	assert.Equal(t, "20240101T080503.123456789Z", NewSuffix(true, at))
}

func TestLocation_RepeatedBackupsDoNotCollide(t *testing.T) {
	src := common.ObjectRef{Container: "docs", Name: "a.txt"}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first := Location("", src, at, NewSuffix(false, at))
	second := Location("", src, at, NewSuffix(false, at))
	assert.NotEqual(t, first, second)
	assert.Equal(t, "2024", first.Container)
	assert.True(t, strings.HasPrefix(first.Name, "wk1/dy1/docs/a.txt."))
	require.NoError(t, first.Validate())
}
