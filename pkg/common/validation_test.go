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

package common_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/stretchr/testify/assert"
)

func TestValidateObjectName(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
		errMsg  string
	}{
		{name: "simple", key: "myfile.txt"},
		{name: "nested", key: "path/to/myfile.txt"},
		{name: "dots inside segment", key: "a/..b/c..d"},
		{name: "backup path", key: "wk1/dy1/docs/a.txt.5d4f"},
		{name: "empty", key: "", wantErr: true, errMsg: "cannot be empty"},
		{name: "leading traversal", key: "../etc/passwd", wantErr: true, errMsg: "path traversal"},
		{name: "middle traversal", key: "path/../etc/passwd", wantErr: true, errMsg: "path traversal"},
		{name: "trailing traversal", key: "path/..", wantErr: true, errMsg: "path traversal"},
		{name: "backslash traversal", key: "path\\..\\secret", wantErr: true, errMsg: "path traversal"},
		{name: "absolute", key: "/etc/passwd", wantErr: true, errMsg: "absolute path"},
		{name: "windows absolute", key: "C:\\Windows", wantErr: true, errMsg: "absolute path"},
		{name: "null byte", key: "file\x00.txt", wantErr: true, errMsg: "control characters"},
		{name: "newline", key: "file\n.txt", wantErr: true, errMsg: "control characters"},
		{name: "too long", key: strings.Repeat("a", common.MaxObjectNameLength+1), wantErr: true, errMsg: "exceeds maximum"},
		{name: "invalid utf8", key: "file\xff.txt", wantErr: true, errMsg: "UTF-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := common.ValidateObjectName(tt.key)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, common.ErrInvalidObjectName))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateContainer(t *testing.T) {
	assert.NoError(t, common.ValidateContainer("2024"))
	assert.NoError(t, common.ValidateContainer("docs"))

	for _, bad := range []string{"", ".", "..", "a/b", "a\\b", "a\tb", strings.Repeat("c", 256)} {
		assert.ErrorIs(t, common.ValidateContainer(bad), common.ErrInvalidObjectName, bad)
	}
}

func TestObjectRef_Validate(t *testing.T) {
	assert.NoError(t, common.ObjectRef{Container: "docs", Name: "a.txt"}.Validate())
	assert.Error(t, common.ObjectRef{Container: "docs"}.Validate())
	assert.Error(t, common.ObjectRef{Name: "a.txt"}.Validate())
	assert.True(t, common.ObjectRef{}.IsZero())
	assert.Equal(t, "docs/a/b.txt", common.ObjectRef{Container: "docs", Name: "a/b.txt"}.String())
}
