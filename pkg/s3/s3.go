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

//go:build awss3

// Package s3 provides an object store backed by Amazon S3 or any
// S3-compatible service such as MinIO.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// S3API is the subset of the S3 client used here. It allows unit tests
// without real network I/O.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 is an object store where containers are buckets.
type S3 struct {
	svc S3API
}

// New creates an unconfigured S3 store.
func New() *S3 {
	return &S3{}
}

// NewWithClient creates a store around an existing client.
func NewWithClient(svc S3API) *S3 {
	return &S3{svc: svc}
}

// Configure sets up the backend.
// Settings:
//   - region: AWS region (required unless endpoint is set)
//   - endpoint: custom endpoint URL for S3-compatible services
//   - accessKey, secretKey: static credentials (optional, default chain otherwise)
//   - usePathStyle: "true" for path-style addressing (MinIO)
func (s *S3) Configure(settings map[string]string) error {
	region := settings["region"]
	endpoint := settings["endpoint"]
	if region == "" && endpoint == "" {
		return common.ErrRegionNotSet
	}
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if ak, sk := settings["accessKey"], settings["secretKey"]; ak != "" && sk != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ak, sk, "")))
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return err
	}

	s.svc = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle, _ = strconv.ParseBool(settings["usePathStyle"])
	})
	return nil
}

// Exists issues a HEAD request for the object.
func (s *S3) Exists(ctx context.Context, ref common.ObjectRef) (bool, error) {
	if s.svc == nil {
		return false, common.ErrNotConfigured
	}
	_, err := s.svc.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Name),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Copy performs a server-side CopyObject. S3 copies complete
// synchronously; the returned id is the new version id or ETag.
func (s *S3) Copy(ctx context.Context, src, dst common.ObjectRef) (string, error) {
	if s.svc == nil {
		return "", common.ErrNotConfigured
	}
	out, err := s.svc.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dst.Container),
		Key:        aws.String(dst.Name),
		CopySource: aws.String(url.PathEscape(src.Container) + "/" + escapeKey(src.Name)),
	})
	if isNotFound(err) {
		return "", fmt.Errorf("%w: %s", common.ErrNotFound, src)
	}
	if err != nil {
		return "", err
	}
	switch {
	case out.VersionId != nil && *out.VersionId != "":
		return *out.VersionId, nil
	case out.CopyObjectResult != nil && out.CopyObjectResult.ETag != nil:
		return *out.CopyObjectResult.ETag, nil
	}
	return "", nil
}

// Delete removes the object. S3 does not report whether a key existed, so
// a HEAD request runs first.
func (s *S3) Delete(ctx context.Context, ref common.ObjectRef) (bool, error) {
	exists, err := s.Exists(ctx, ref)
	if err != nil || !exists {
		return false, err
	}
	_, err = s.svc.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Name),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close is a no-op; the SDK client holds no closable resources.
func (s *S3) Close() error {
	return nil
}

func escapeKey(key string) string {
	u := url.URL{Path: key}
	return u.EscapedPath()
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
