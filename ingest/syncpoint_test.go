// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisSyncPointStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSyncPointStore(client, "test"), mr
}

func TestSyncPointStores(t *testing.T) {
	stores := map[string]func(t *testing.T) SyncPointStore{
		"memory": func(t *testing.T) SyncPointStore { return NewMemorySyncPointStore() },
		"redis": func(t *testing.T) SyncPointStore {
			s, _ := newRedisStore(t)
			return s
		},
	}

	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := build(t)

			_, err := store.Get(ctx, "sp", "drive-a")
			assert.ErrorIs(t, err, ErrSyncPointNotFound)

			now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
			require.NoError(t, store.Put(ctx, &SyncPoint{ConnectorName: "sp", SiteID: "site", DriveID: "drive-b", DeltaLink: "https://graph/b?token=1", UpdatedAt: now, ItemsSynced: 4}))
			require.NoError(t, store.Put(ctx, &SyncPoint{ConnectorName: "sp", SiteID: "site", DriveID: "drive-a", DeltaLink: "https://graph/a?token=1", UpdatedAt: now}))
			require.NoError(t, store.Put(ctx, &SyncPoint{ConnectorName: "other", DriveID: "drive-a", DeltaLink: "x"}))

			got, err := store.Get(ctx, "sp", "drive-b")
			require.NoError(t, err)
			assert.Equal(t, "https://graph/b?token=1", got.DeltaLink)
			assert.Equal(t, int64(4), got.ItemsSynced)
			assert.True(t, now.Equal(got.UpdatedAt))

			list, err := store.List(ctx, "sp")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "drive-a", list[0].DriveID)
			assert.Equal(t, "drive-b", list[1].DriveID)

			require.NoError(t, store.Put(ctx, &SyncPoint{ConnectorName: "sp", DriveID: "drive-a", DeltaLink: "https://graph/a?token=2"}))
			got, err = store.Get(ctx, "sp", "drive-a")
			require.NoError(t, err)
			assert.Equal(t, "https://graph/a?token=2", got.DeltaLink)

			require.NoError(t, store.Delete(ctx, "sp", "drive-a"))
			_, err = store.Get(ctx, "sp", "drive-a")
			assert.ErrorIs(t, err, ErrSyncPointNotFound)

			list, err = store.List(ctx, "missing")
			require.NoError(t, err)
			assert.Empty(t, list)

			assert.Error(t, store.Put(ctx, &SyncPoint{ConnectorName: "sp"}))
		})
	}
}

func TestRedisSyncPointStoreLayout(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &SyncPoint{ConnectorName: "sp", DriveID: "d1", DeltaLink: "link"}))
	assert.True(t, mr.Exists("test:sp"))
	assert.Contains(t, mr.HGet("test:sp", "d1"), `"delta_link":"link"`)

	mr.HSet("test:sp", "broken", "{not json")
	_, err := store.Get(ctx, "sp", "broken")
	assert.ErrorContains(t, err, "corrupt sync point")
}

func TestNewRedisSyncPointStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisSyncPointStoreFromURL(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, DefaultKeyPrefix, store.prefix)

	_, err = NewRedisSyncPointStoreFromURL(context.Background(), "://bad")
	assert.Error(t, err)
}
