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

//go:build gcpstorage

// Package gcs provides an object store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/storage"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"google.golang.org/api/option"
)

// Small internal interfaces to enable unit tests without real GCS.
type gcsObject interface {
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
	Delete(ctx context.Context) error
	CopyFrom(ctx context.Context, src gcsObject) (*storage.ObjectAttrs, error)
}

type gcsClient interface {
	Object(bucket, name string) gcsObject
	Close() error
}

type clientWrapper struct{ *storage.Client }
type objectWrapper struct{ *storage.ObjectHandle }

func (c clientWrapper) Object(bucket, name string) gcsObject {
	return objectWrapper{c.Client.Bucket(bucket).Object(name)}
}

func (o objectWrapper) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	return o.ObjectHandle.Attrs(ctx)
}

func (o objectWrapper) Delete(ctx context.Context) error {
	return o.ObjectHandle.Delete(ctx)
}

func (o objectWrapper) CopyFrom(ctx context.Context, src gcsObject) (*storage.ObjectAttrs, error) {
	s, ok := src.(objectWrapper)
	if !ok {
		return nil, fmt.Errorf("gcs: copy source has unexpected type %T", src)
	}
	return o.ObjectHandle.CopierFrom(s.ObjectHandle).Run(ctx)
}

var gcsNewClient = func(ctx context.Context, opts ...option.ClientOption) (*storage.Client, error) {
	return storage.NewClient(ctx, opts...)
}

// GCS is an object store where containers are buckets.
type GCS struct {
	client gcsClient
}

// New creates an unconfigured GCS store.
func New() *GCS {
	return &GCS{}
}

// Configure sets up the backend.
// Settings:
//   - credentialsFile: service account JSON (optional, ADC otherwise)
//   - endpoint: API endpoint override, e.g. a fake-gcs-server URL
//   - withoutAuthentication: "true" to skip credentials (emulators)
func (g *GCS) Configure(settings map[string]string) error {
	var opts []option.ClientOption
	if f := settings["credentialsFile"]; f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	if ep := settings["endpoint"]; ep != "" {
		opts = append(opts, option.WithEndpoint(ep))
	}
	if noAuth, _ := strconv.ParseBool(settings["withoutAuthentication"]); noAuth {
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := gcsNewClient(context.Background(), opts...)
	if err != nil {
		return err
	}
	g.client = clientWrapper{client}
	return nil
}

// Exists reads the object attributes.
func (g *GCS) Exists(ctx context.Context, ref common.ObjectRef) (bool, error) {
	if g.client == nil {
		return false, common.ErrNotConfigured
	}
	_, err := g.client.Object(ref.Container, ref.Name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Copy runs a server-side rewrite. It returns the generation of the new
// object.
func (g *GCS) Copy(ctx context.Context, src, dst common.ObjectRef) (string, error) {
	if g.client == nil {
		return "", common.ErrNotConfigured
	}
	attrs, err := g.client.Object(dst.Container, dst.Name).CopyFrom(ctx, g.client.Object(src.Container, src.Name))
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("%w: %s", common.ErrNotFound, src)
	}
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(attrs.Generation, 10), nil
}

// Delete removes the object.
func (g *GCS) Delete(ctx context.Context, ref common.ObjectRef) (bool, error) {
	if g.client == nil {
		return false, common.ErrNotConfigured
	}
	err := g.client.Object(ref.Container, ref.Name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the client.
func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
