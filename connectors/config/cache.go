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

package config

import (
	"sync"
	"time"

	"saasbridge/platform/connectors/base"
)

// cacheEntry holds one tenant's resolved connector configs.
type cacheEntry struct {
	configs   []*base.ConnectorConfig
	source    ConfigSource
	expiresAt time.Time
}

// ConfigCache caches resolved connector configs per tenant with a TTL.
type ConfigCache struct {
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	stats   CacheStats
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits         int64
	Misses       int64
	Evictions    int64
	LastEviction time.Time
}

// NewConfigCache creates a cache; ttl defaults to 30s.
func NewConfigCache(ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ConfigCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetConnectors returns the cached configs and their source for a tenant.
func (c *ConfigCache) GetConnectors(tenantID string) ([]*base.ConnectorConfig, ConfigSource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[tenantID]
	if !exists || c.now().After(entry.expiresAt) {
		c.stats.Misses++
		return nil, "", false
	}
	c.stats.Hits++
	return entry.configs, entry.source, true
}

// SetConnectors caches connector configs for a tenant
func (c *ConfigCache) SetConnectors(tenantID string, configs []*base.ConnectorConfig, source ConfigSource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[tenantID] = &cacheEntry{
		configs:   configs,
		source:    source,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate drops the tenant's entry so the next lookup reloads every source.
func (c *ConfigCache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[tenantID]; ok {
		delete(c.entries, tenantID)
		c.evicted(1)
	}
}

// InvalidateAll clears all cached configurations
func (c *ConfigCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*cacheEntry)
	c.evicted(n)
}

// Cleanup removes expired entries and returns how many were evicted.
func (c *ConfigCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	c.evicted(evicted)
	return evicted
}

func (c *ConfigCache) evicted(n int) {
	if n == 0 {
		return
	}
	c.stats.Evictions += int64(n)
	c.stats.LastEviction = c.now()
}

// GetStats returns cache performance statistics
func (c *ConfigCache) GetStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// HitRate returns the cache hit rate as a percentage (0-100)
func (c *ConfigCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.stats.Hits + c.stats.Misses
	if total == 0 {
		return 0
	}
	return float64(c.stats.Hits) / float64(total) * 100
}
