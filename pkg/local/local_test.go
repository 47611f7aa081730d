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

package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l := New()
	require.NoError(t, l.Configure(map[string]string{"path": t.TempDir()}))
	return l
}

func TestLocal_Configure(t *testing.T) {
	assert.ErrorIs(t, New().Configure(map[string]string{}), common.ErrPathNotSet)

	_, err := New().Path(common.ObjectRef{Container: "a", Name: "b"})
	assert.ErrorIs(t, err, common.ErrNotConfigured)
}

func TestLocal_CopyExistsDelete(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	src := common.ObjectRef{Container: "docs", Name: "reports/q1.txt"}
	dst := common.ObjectRef{Container: "2024", Name: "wk1/dy1/docs/reports/q1.txt.abc"}

	require.NoError(t, l.Put(ctx, src, strings.NewReader("quarterly")))

	ok, err := l.Exists(ctx, src)
	require.NoError(t, err)
	assert.True(t, ok)

	id, err := l.Copy(ctx, src, dst)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	path, err := l.Path(dst)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "quarterly", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, IsTempFile(e.Name()), e.Name())
	}

	deleted, err := l.Delete(ctx, dst)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = l.Delete(ctx, dst)
	require.NoError(t, err)
	assert.False(t, deleted)

	ok, err = l.Exists(ctx, dst)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal_Errors(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	_, err := l.Copy(ctx, common.ObjectRef{Container: "docs", Name: "missing"}, common.ObjectRef{Container: "b", Name: "x"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = l.Exists(ctx, common.ObjectRef{Container: "docs", Name: "../../etc/passwd"})
	assert.ErrorIs(t, err, common.ErrInvalidObjectName)

	_, err = l.Delete(ctx, common.ObjectRef{Container: "..", Name: "x"})
	assert.ErrorIs(t, err, common.ErrInvalidObjectName)
}

func TestIsTempFile(t *testing.T) {
	assert.True(t, IsTempFile("/root/docs/.objbackup-tmp-1234"))
	assert.False(t, IsTempFile("/root/docs/report.txt"))
}
