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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultKeyPrefix namespaces sync point hashes.
const DefaultKeyPrefix = "saasbridge:syncpoints"

// RedisSyncPointStore keeps one hash per connector: field = drive id,
// value = JSON sync point.
type RedisSyncPointStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSyncPointStore wraps an existing client. An empty prefix uses DefaultKeyPrefix.
func NewRedisSyncPointStore(client *redis.Client, prefix string) *RedisSyncPointStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisSyncPointStore{client: client, prefix: prefix}
}

// NewRedisSyncPointStoreFromURL connects with a redis:// URL and pings the server.
func NewRedisSyncPointStoreFromURL(ctx context.Context, redisURL string) (*RedisSyncPointStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisSyncPointStore(client, ""), nil
}

func (s *RedisSyncPointStore) key(connectorName string) string {
	return s.prefix + ":" + connectorName
}

func (s *RedisSyncPointStore) Get(ctx context.Context, connectorName, driveID string) (*SyncPoint, error) {
	raw, err := s.client.HGet(ctx, s.key(connectorName), driveID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSyncPointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync point: %w", err)
	}
	var p SyncPoint
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("corrupt sync point for drive %s: %w", driveID, err)
	}
	return &p, nil
}

func (s *RedisSyncPointStore) Put(ctx context.Context, point *SyncPoint) error {
	if point == nil || point.ConnectorName == "" || point.DriveID == "" {
		return errors.New("sync point needs a connector name and drive id")
	}
	raw, err := json.Marshal(point)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key(point.ConnectorName), point.DriveID, raw).Err(); err != nil {
		return fmt.Errorf("failed to store sync point: %w", err)
	}
	return nil
}

func (s *RedisSyncPointStore) Delete(ctx context.Context, connectorName, driveID string) error {
	if err := s.client.HDel(ctx, s.key(connectorName), driveID).Err(); err != nil {
		return fmt.Errorf("failed to delete sync point: %w", err)
	}
	return nil
}

// List returns the connector's sync points ordered by drive id.
func (s *RedisSyncPointStore) List(ctx context.Context, connectorName string) ([]*SyncPoint, error) {
	all, err := s.client.HGetAll(ctx, s.key(connectorName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sync points: %w", err)
	}
	out := make([]*SyncPoint, 0, len(all))
	for driveID, raw := range all {
		var p SyncPoint
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("corrupt sync point for drive %s: %w", driveID, err)
		}
		out = append(out, &p)
	}
	sortPoints(out)
	return out, nil
}

// Close closes the underlying client.
func (s *RedisSyncPointStore) Close() error {
	return s.client.Close()
}
