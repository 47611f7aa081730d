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

package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	assert.Equal(t, orig, Get())

	Version = "1.2.3"
	assert.Equal(t, "1.2.3", Get())
}

func TestGetInfo(t *testing.T) {
	orig := Commit
	t.Cleanup(func() { Commit = orig })
	Commit = "abc1234"

	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, "abc1234", info.Commit)
	assert.Equal(t, BuildDate, info.BuildDate)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}
