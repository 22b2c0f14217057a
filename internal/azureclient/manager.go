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

// Package azureclient builds Azure Blob Storage clients that share one
// default credential chain.
package azureclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Manager struct {
	cred azcore.TokenCredential

	sync.RWMutex
	blobClients map[blobClientKey]*BlobClient
	tracer      trace.Tracer
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCredential replaces the default Azure credential chain.
func WithCredential(cred azcore.TokenCredential) ManagerOption {
	return func(mgr *Manager) {
		mgr.cred = cred
	}
}

// NewManager resolves Azure credentials from the environment, managed
// identity or the CLI, in that order.
func NewManager(ctx context.Context, opts ...ManagerOption) (*Manager, error) {
	mgr := &Manager{
		blobClients: make(map[blobClientKey]*BlobClient),
		tracer:      otel.Tracer("github.com/cardinalhq/shardcsv/internal/azureclient"),
	}
	for _, opt := range opts {
		opt(mgr)
	}

	if mgr.cred == nil {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("loading Azure credentials: %w", err)
		}
		mgr.cred = cred
	}

	return mgr, nil
}
