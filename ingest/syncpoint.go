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
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrSyncPointNotFound is returned by Get when a drive has never completed a sync.
var ErrSyncPointNotFound = errors.New("sync point not found")

// SyncPoint records where the last completed delta chain of a drive ended.
type SyncPoint struct {
	ConnectorName string    `json:"connector_name"`
	SiteID        string    `json:"site_id"`
	DriveID       string    `json:"drive_id"`
	DeltaLink     string    `json:"delta_link"`
	UpdatedAt     time.Time `json:"updated_at"`
	ItemsSynced   int64     `json:"items_synced"`
}

// SyncPointStore persists sync points keyed by connector and drive.
type SyncPointStore interface {
	Get(ctx context.Context, connectorName, driveID string) (*SyncPoint, error)
	Put(ctx context.Context, point *SyncPoint) error
	Delete(ctx context.Context, connectorName, driveID string) error
	List(ctx context.Context, connectorName string) ([]*SyncPoint, error)
}

// MemorySyncPointStore keeps sync points in process memory.
type MemorySyncPointStore struct {
	mu     sync.RWMutex
	points map[string]map[string]SyncPoint
}

// NewMemorySyncPointStore creates an empty store.
func NewMemorySyncPointStore() *MemorySyncPointStore {
	return &MemorySyncPointStore{points: make(map[string]map[string]SyncPoint)}
}

func (m *MemorySyncPointStore) Get(ctx context.Context, connectorName, driveID string) (*SyncPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[connectorName][driveID]
	if !ok {
		return nil, ErrSyncPointNotFound
	}
	return &p, nil
}

func (m *MemorySyncPointStore) Put(ctx context.Context, point *SyncPoint) error {
	if point == nil || point.ConnectorName == "" || point.DriveID == "" {
		return errors.New("sync point needs a connector name and drive id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	drives, ok := m.points[point.ConnectorName]
	if !ok {
		drives = make(map[string]SyncPoint)
		m.points[point.ConnectorName] = drives
	}
	drives[point.DriveID] = *point
	return nil
}

func (m *MemorySyncPointStore) Delete(ctx context.Context, connectorName, driveID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.points[connectorName], driveID)
	return nil
}

// List returns the connector's sync points ordered by drive id.
func (m *MemorySyncPointStore) List(ctx context.Context, connectorName string) ([]*SyncPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SyncPoint, 0, len(m.points[connectorName]))
	for _, p := range m.points[connectorName] {
		p := p
		out = append(out, &p)
	}
	sortPoints(out)
	return out, nil
}

func sortPoints(points []*SyncPoint) {
	sort.Slice(points, func(i, j int) bool { return points[i].DriveID < points[j].DriveID })
}
