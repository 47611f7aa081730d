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

// Package local provides an object store backed by a directory tree. Each
// container is a directory below the root and object names map to relative
// paths inside it.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// tempPrefix marks in-flight copies. Change watchers ignore these files.
const tempPrefix = ".objbackup-tmp-"

// Local is an object store that keeps objects as files on disk.
type Local struct {
	root string
}

// New creates an unconfigured Local store.
func New() *Local {
	return &Local{}
}

// Configure sets up the backend.
// Settings:
//   - path: the root directory (required, created if missing)
func (l *Local) Configure(settings map[string]string) error {
	l.root = settings["path"]
	if l.root == "" {
		return common.ErrPathNotSet
	}
	return os.MkdirAll(l.root, 0750)
}

// Root returns the configured root directory.
func (l *Local) Root() string {
	return l.root
}

// Path returns the file path for ref after validating it.
func (l *Local) Path(ref common.ObjectRef) (string, error) {
	if l.root == "" {
		return "", common.ErrNotConfigured
	}
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return filepath.Join(l.root, ref.Container, filepath.FromSlash(ref.Name)), nil
}

// Put writes data to ref atomically.
func (l *Local) Put(ctx context.Context, ref common.ObjectRef, data io.Reader) error {
	path, err := l.Path(ref)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// Exists reports whether ref is a regular file.
func (l *Local) Exists(ctx context.Context, ref common.ObjectRef) (bool, error) {
	path, err := l.Path(ref)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Copy copies src to dst through a temporary file renamed into place, so
// readers never see a partial object.
func (l *Local) Copy(ctx context.Context, src, dst common.ObjectRef) (string, error) {
	srcPath, err := l.Path(src)
	if err != nil {
		return "", err
	}
	dstPath, err := l.Path(dst)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	in, err := os.Open(srcPath) // #nosec G304 -- path validated by Path
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", common.ErrNotFound, src)
	}
	if err != nil {
		return "", err
	}
	defer in.Close()

	if err := writeAtomic(dstPath, in); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// Delete removes ref. It reports false when the file was already absent.
func (l *Local) Delete(ctx context.Context, ref common.ObjectRef) (bool, error) {
	path, err := l.Path(ref)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close is a no-op.
func (l *Local) Close() error {
	return nil
}

func writeAtomic(path string, data io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// IsTempFile reports whether name is an in-flight copy written by this
// package.
func IsTempFile(name string) bool {
	base := filepath.Base(name)
	return len(base) >= len(tempPrefix) && base[:len(tempPrefix)] == tempPrefix
}
