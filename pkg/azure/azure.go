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

//go:build azureblob

// Package azure provides an object store backed by Azure Blob Storage.
package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// BlobAPI is the subset of *blob.Client used here. It allows unit tests
// without network access.
type BlobAPI interface {
	URL() string
	GetProperties(ctx context.Context, o *blob.GetPropertiesOptions) (blob.GetPropertiesResponse, error)
	StartCopyFromURL(ctx context.Context, copySource string, o *blob.StartCopyFromURLOptions) (blob.StartCopyFromURLResponse, error)
	Delete(ctx context.Context, o *blob.DeleteOptions) (blob.DeleteResponse, error)
}

// BlobResolver returns the blob client for a container and name.
type BlobResolver func(container, name string) BlobAPI

// Azure is an object store over one storage account. Containers map to
// blob containers.
type Azure struct {
	blob      BlobResolver
	sourceSAS string
}

// New creates an unconfigured Azure store.
func New() *Azure {
	return &Azure{}
}

// NewWithResolver creates a store around an existing blob resolver.
func NewWithResolver(resolve BlobResolver) *Azure {
	return &Azure{blob: resolve}
}

// Configure sets up the backend.
// Settings, in order of precedence:
//   - connectionString: a storage connection string
//   - accountName + accountKey: shared key credentials
//   - accountName alone: azidentity DefaultAzureCredential
//
// Optional settings:
//   - endpoint: service URL override (Azurite, sovereign clouds)
//   - copySourceSAS: SAS token appended to copy source URLs when the source
//     container is not readable with the account credential
func (a *Azure) Configure(settings map[string]string) error {
	client, err := newClient(settings)
	if err != nil {
		return err
	}
	svc := client.ServiceClient()
	a.blob = func(container, name string) BlobAPI {
		return svc.NewContainerClient(container).NewBlobClient(name)
	}
	a.sourceSAS = strings.TrimPrefix(settings["copySourceSAS"], "?")
	return nil
}

func newClient(settings map[string]string) (*azblob.Client, error) {
	if cs := settings["connectionString"]; cs != "" {
		return azblob.NewClientFromConnectionString(cs, nil)
	}

	accountName := settings["accountName"]
	if accountName == "" {
		return nil, common.ErrAccountNotSet
	}
	serviceURL := settings["endpoint"]
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	}

	if key := settings["accountKey"]; key != "" {
		cred, err := azblob.NewSharedKeyCredential(accountName, key)
		if err != nil {
			return nil, err
		}
		return azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return azblob.NewClient(serviceURL, cred, nil)
}

// Exists fetches the blob properties.
func (a *Azure) Exists(ctx context.Context, ref common.ObjectRef) (bool, error) {
	if a.blob == nil {
		return false, common.ErrNotConfigured
	}
	_, err := a.blob(ref.Container, ref.Name).GetProperties(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Copy starts an asynchronous server-side copy and returns the copy id.
// The copy may still be pending when Copy returns.
func (a *Azure) Copy(ctx context.Context, src, dst common.ObjectRef) (string, error) {
	if a.blob == nil {
		return "", common.ErrNotConfigured
	}
	source := a.blob(src.Container, src.Name).URL()
	if a.sourceSAS != "" {
		source += "?" + a.sourceSAS
	}

	resp, err := a.blob(dst.Container, dst.Name).StartCopyFromURL(ctx, source, nil)
	if bloberror.HasCode(err, bloberror.CannotVerifyCopySource, bloberror.BlobNotFound) {
		return "", fmt.Errorf("%w: %s: %v", common.ErrNotFound, src, err)
	}
	if err != nil {
		return "", err
	}
	if resp.CopyID == nil {
		return "", nil
	}
	return *resp.CopyID, nil
}

// Delete removes the blob and its snapshots.
func (a *Azure) Delete(ctx context.Context, ref common.ObjectRef) (bool, error) {
	if a.blob == nil {
		return false, common.ErrNotConfigured
	}
	include := blob.DeleteSnapshotsOptionTypeInclude
	_, err := a.blob(ref.Container, ref.Name).Delete(ctx, &blob.DeleteOptions{DeleteSnapshots: &include})
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close is a no-op.
func (a *Azure) Close() error {
	return nil
}
