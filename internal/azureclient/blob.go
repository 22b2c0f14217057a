// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package azureclient

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.opentelemetry.io/otel/trace"
)

// BlobClient pairs an SDK client with the tracer used for upload spans.
type BlobClient struct {
	Client *azblob.Client
	Tracer trace.Tracer
}

type blobConfig struct {
	StorageAccount string
	Endpoint       string
}

// BlobOption is a functional option for GetBlob.
type BlobOption func(*blobConfig)

// WithBlobStorageAccount sets the storage account. The endpoint defaults to
// the account's public blob endpoint.
func WithBlobStorageAccount(storageAccount string) BlobOption {
	return func(c *blobConfig) {
		c.StorageAccount = storageAccount
	}
}

// WithBlobEndpoint overrides the service endpoint, for Azurite or sovereign
// clouds.
func WithBlobEndpoint(endpoint string) BlobOption {
	return func(c *blobConfig) {
		c.Endpoint = endpoint
	}
}

type blobClientKey struct {
	Endpoint string
}

// GetBlob returns a cached client for the configured endpoint.
func (m *Manager) GetBlob(ctx context.Context, opts ...BlobOption) (*BlobClient, error) {
	bc := blobConfig{}
	for _, o := range opts {
		o(&bc)
	}

	if bc.Endpoint == "" {
		if bc.StorageAccount == "" {
			return nil, fmt.Errorf("storage account or endpoint is required")
		}
		bc.Endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", bc.StorageAccount)
	}

	key := blobClientKey{Endpoint: bc.Endpoint}
	m.RLock()
	client, ok := m.blobClients[key]
	m.RUnlock()
	if ok {
		return client, nil
	}

	m.Lock()
	defer m.Unlock()
	if client, ok = m.blobClients[key]; ok {
		return client, nil
	}
	azClient, err := azblob.NewClient(bc.Endpoint, m.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	client = &BlobClient{Client: azClient, Tracer: m.tracer}
	m.blobClients[key] = client
	return client, nil
}
