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
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCredential struct{}

func (staticCredential) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "test"}, nil
}

func TestGetBlobCachesByEndpoint(t *testing.T) {
	mgr, err := NewManager(context.Background(), WithCredential(staticCredential{}))
	require.NoError(t, err)

	a, err := mgr.GetBlob(context.Background(), WithBlobStorageAccount("acct"))
	require.NoError(t, err)
	b, err := mgr.GetBlob(context.Background(), WithBlobEndpoint("https://acct.blob.core.windows.net/"))
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := mgr.GetBlob(context.Background(), WithBlobStorageAccount("other"))
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestGetBlobRequiresAccount(t *testing.T) {
	mgr, err := NewManager(context.Background(), WithCredential(staticCredential{}))
	require.NoError(t, err)

	_, err = mgr.GetBlob(context.Background())
	assert.Error(t, err)
}
