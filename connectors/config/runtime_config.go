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
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/shared/logger"
)

// ConfigSource indicates where a configuration was loaded from
type ConfigSource string

const (
	ConfigSourceDatabase ConfigSource = "database"
	ConfigSourceFile     ConfigSource = "config_file"
	ConfigSourceEnvVars  ConfigSource = "env_vars"
)

// ConfigStore is a persistent source of connector configs, such as the
// registry's PostgreSQL storage.
type ConfigStore interface {
	ListConnectorsByTenant(ctx context.Context, tenantID string) ([]*base.ConnectorConfig, error)
}

// ConfigFileLoader loads connector configs from a file.
type ConfigFileLoader interface {
	LoadConnectors(tenantID string) ([]*base.ConnectorConfig, error)
}

// RuntimeConfigService resolves the connector configs of a tenant.
// Sources are tried in order: store, config file, environment. The first
// source that yields configs wins; results are cached per tenant and carry
// resolved secrets.
type RuntimeConfigService struct {
	store          ConfigStore
	fileLoader     ConfigFileLoader
	secretsManager SecretsManager
	cache          *ConfigCache
	logger         *logger.Logger
	mu             sync.RWMutex
}

// RuntimeConfigServiceOptions holds options for creating a RuntimeConfigService
type RuntimeConfigServiceOptions struct {
	Store          ConfigStore
	FileLoader     ConfigFileLoader
	SecretsManager SecretsManager
	CacheTTL       time.Duration
	Logger         *logger.Logger
}

// NewRuntimeConfigService creates a new RuntimeConfigService
func NewRuntimeConfigService(opts RuntimeConfigServiceOptions) *RuntimeConfigService {
	log := opts.Logger
	if log == nil {
		log = logger.New("runtime_config")
	}
	return &RuntimeConfigService{
		store:          opts.Store,
		fileLoader:     opts.FileLoader,
		secretsManager: opts.SecretsManager,
		cache:          NewConfigCache(opts.CacheTTL),
		logger:         log,
	}
}

// SetConfigFileLoader replaces the config file loader.
func (s *RuntimeConfigService) SetConfigFileLoader(loader ConfigFileLoader) {
	s.mu.Lock()
	s.fileLoader = loader
	s.mu.Unlock()
	s.cache.InvalidateAll()
}

// GetConnectorConfigs returns the usable connector configs for a tenant.
// Configs that fail validation or secret resolution are logged and skipped.
func (s *RuntimeConfigService) GetConnectorConfigs(ctx context.Context, tenantID string) ([]*base.ConnectorConfig, ConfigSource, error) {
	if cached, source, ok := s.cache.GetConnectors(tenantID); ok {
		return cached, source, nil
	}

	s.mu.RLock()
	store, fileLoader := s.store, s.fileLoader
	s.mu.RUnlock()

	type source struct {
		name ConfigSource
		load func() ([]*base.ConnectorConfig, error)
	}
	var sources []source
	if store != nil {
		sources = append(sources, source{ConfigSourceDatabase, func() ([]*base.ConnectorConfig, error) {
			return store.ListConnectorsByTenant(ctx, tenantID)
		}})
	}
	if fileLoader != nil {
		sources = append(sources, source{ConfigSourceFile, func() ([]*base.ConnectorConfig, error) {
			return fileLoader.LoadConnectors(tenantID)
		}})
	}
	sources = append(sources, source{ConfigSourceEnvVars, func() ([]*base.ConnectorConfig, error) {
		return s.loadConnectorsFromEnvVars(tenantID), nil
	}})

	for _, src := range sources {
		configs, err := src.load()
		if err != nil {
			s.logger.Warn(tenantID, "", "config source failed", map[string]interface{}{
				"source": string(src.name),
				"error":  err.Error(),
			})
			continue
		}
		usable := s.prepare(ctx, tenantID, configs)
		if len(usable) == 0 {
			continue
		}
		s.cache.SetConnectors(tenantID, usable, src.name)
		s.logger.Info(tenantID, "", "connector configs loaded", map[string]interface{}{
			"source": string(src.name),
			"count":  len(usable),
		})
		return usable, src.name, nil
	}

	return nil, "", fmt.Errorf("no connector configurations found for tenant %s", tenantID)
}

// prepare copies each config, resolves its secrets and validates it.
func (s *RuntimeConfigService) prepare(ctx context.Context, tenantID string, configs []*base.ConnectorConfig) []*base.ConnectorConfig {
	out := make([]*base.ConnectorConfig, 0, len(configs))
	for _, cfg := range configs {
		c := cloneConfig(cfg)
		if err := ResolveSecrets(ctx, c, s.secretsManager); err != nil {
			s.logger.Error(tenantID, "", "secret resolution failed", map[string]interface{}{
				"connector": c.Name,
				"error":     err.Error(),
			})
			continue
		}
		if err := ValidateConfig(c); err != nil {
			s.logger.Warn(tenantID, "", "skipping invalid connector config", map[string]interface{}{
				"connector": c.Name,
				"error":     err.Error(),
			})
			continue
		}
		out = append(out, c)
	}
	return out
}

func cloneConfig(cfg *base.ConnectorConfig) *base.ConnectorConfig {
	c := *cfg
	c.Credentials = make(map[string]string, len(cfg.Credentials))
	for k, v := range cfg.Credentials {
		c.Credentials[k] = v
	}
	c.Options = make(map[string]interface{}, len(cfg.Options))
	for k, v := range cfg.Options {
		c.Options[k] = v
	}
	return &c
}

// GetConnectorConfig returns a specific connector config by name
func (s *RuntimeConfigService) GetConnectorConfig(ctx context.Context, tenantID, connectorName string) (*base.ConnectorConfig, ConfigSource, error) {
	configs, source, err := s.GetConnectorConfigs(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	for _, cfg := range configs {
		if cfg.Name == connectorName {
			return cfg, source, nil
		}
	}
	return nil, "", fmt.Errorf("connector '%s' not found for tenant %s", connectorName, tenantID)
}

// RefreshConnectorConfigs drops the tenant's cached configs.
func (s *RuntimeConfigService) RefreshConnectorConfigs(tenantID string) {
	s.cache.Invalidate(tenantID)
}

// RefreshAllConfigs invalidates all cached configurations
func (s *RuntimeConfigService) RefreshAllConfigs() {
	s.cache.InvalidateAll()
}

// GetCacheStats returns cache performance statistics
func (s *RuntimeConfigService) GetCacheStats() CacheStats {
	return s.cache.GetStats()
}

// GetCacheHitRate returns the cache hit rate percentage
func (s *RuntimeConfigService) GetCacheHitRate() float64 {
	return s.cache.HitRate()
}

// loadConnectorsFromEnvVars loads the connectors named in MCP_CONNECTORS
// ("name:type,name:type"). Without it, each known type is tried under its
// own name (MCP_SLACK_BOT_TOKEN and so on).
func (s *RuntimeConfigService) loadConnectorsFromEnvVars(tenantID string) []*base.ConnectorConfig {
	type entry struct{ name, connType string }
	var entries []entry

	if list := os.Getenv("MCP_CONNECTORS"); list != "" {
		for _, item := range strings.Split(list, ",") {
			name, connType, ok := strings.Cut(strings.TrimSpace(item), ":")
			if !ok || name == "" || connType == "" {
				s.logger.Warn(tenantID, "", "ignoring malformed MCP_CONNECTORS entry", map[string]interface{}{"entry": item})
				continue
			}
			entries = append(entries, entry{name, connType})
		}
	} else {
		for _, t := range KnownTypes {
			entries = append(entries, entry{t, t})
		}
	}

	var configs []*base.ConnectorConfig
	for _, e := range entries {
		cfg, err := LoadFromEnv(e.name, e.connType)
		if err != nil {
			continue
		}
		if tenantID != "*" && cfg.TenantID != "*" && cfg.TenantID != tenantID {
			continue
		}
		configs = append(configs, cfg)
	}
	return configs
}

// StartPeriodicCleanup evicts expired cache entries every interval until ctx ends.
func (s *RuntimeConfigService) StartPeriodicCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if evicted := s.cache.Cleanup(); evicted > 0 {
					s.logger.Debug("", "", "evicted expired connector configs", map[string]interface{}{"count": evicted})
				}
			}
		}
	}()
}
