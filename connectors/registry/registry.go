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

package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/shared/logger"
)

// ConnectorFactory creates a connector instance based on type
type ConnectorFactory func(connectorType string) (base.Connector, error)

// Registry manages all registered connectors.
// Thread-safe for concurrent access
type Registry struct {
	connectors map[string]base.Connector
	configs    map[string]*base.ConnectorConfig
	storage    Storage          // Optional persistent storage
	factory    ConnectorFactory // Factory for lazy-loading connectors
	mu         sync.RWMutex
	logger     *logger.Logger
}

// NewRegistry creates a new connector registry with in-memory storage
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]base.Connector),
		configs:    make(map[string]*base.ConnectorConfig),
		logger:     logger.New("registry"),
	}
}

// NewRegistryWithStorage creates a registry over storage and loads the
// configs it already holds. Connectors are instantiated on first use.
func NewRegistryWithStorage(ctx context.Context, storage Storage) *Registry {
	r := NewRegistry()
	r.storage = storage
	if err := r.ReloadFromStorage(ctx); err != nil {
		r.logger.Warn("", "", "failed to load connectors from storage", map[string]interface{}{"error": err.Error()})
	}
	return r
}

// SetLogger replaces the registry logger.
func (r *Registry) SetLogger(l *logger.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

// SetFactory sets the connector factory for lazy-loading
func (r *Registry) SetFactory(factory ConnectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = factory
}

// ReloadFromStorage picks up configs saved by other gateway replicas.
// Configs already known to this instance are left alone.
func (r *Registry) ReloadFromStorage(ctx context.Context) error {
	if r.storage == nil {
		return nil
	}

	ids, err := r.storage.ListConnectors(ctx)
	if err != nil {
		return fmt.Errorf("failed to list connectors: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0
	for _, id := range ids {
		if _, exists := r.configs[id]; exists {
			continue
		}

		config, err := r.storage.GetConnector(ctx, id)
		if err != nil {
			r.logger.Warn("", "", "failed to load connector", map[string]interface{}{"connector": id, "error": err.Error()})
			continue
		}

		r.configs[id] = config
		loaded++
	}

	if loaded > 0 {
		r.logger.Info("", "", "loaded connectors from storage", map[string]interface{}{"count": loaded})
	}
	return nil
}

// StartPeriodicReload reloads from storage every interval until ctx ends.
func (r *Registry) StartPeriodicReload(ctx context.Context, interval time.Duration) {
	if r.storage == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.ReloadFromStorage(ctx); err != nil {
					r.logger.Warn("", "", "periodic reload failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	}()
}

// AddConfig records a config without connecting. The connector is created
// through the factory on the first Get.
func (r *Registry) AddConfig(config *base.ConnectorConfig) error {
	if config == nil || config.Name == "" {
		return fmt.Errorf("connector config requires a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[config.Name]; exists {
		return fmt.Errorf("connector '%s' already registered", config.Name)
	}
	r.configs[config.Name] = config
	return nil
}

// Register connects a connector and adds it to the registry.
// Returns error if a connector with the same name already exists
func (r *Registry) Register(name string, connector base.Connector, config *base.ConnectorConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[name]; exists {
		return fmt.Errorf("connector '%s' already registered", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout(config))
	defer cancel()

	if err := connector.Connect(ctx, config); err != nil {
		r.logger.Error(config.TenantID, "", "failed to connect connector", map[string]interface{}{
			"connector": name,
			"error":     err.Error(),
		})
		return fmt.Errorf("failed to connect connector '%s': %w", name, err)
	}

	r.connectors[name] = connector
	r.configs[name] = config

	// Persistence failures do not fail registration.
	if r.storage != nil {
		if err := r.storage.SaveConnector(ctx, name, config); err != nil {
			r.logger.Warn(config.TenantID, "", "failed to persist connector", map[string]interface{}{
				"connector": name,
				"error":     err.Error(),
			})
		}
	}

	r.logger.Info(config.TenantID, "", "registered connector", map[string]interface{}{
		"connector": name,
		"type":      config.Type,
	})
	return nil
}

// Unregister removes a connector from the registry and disconnects it
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	connector, exists := r.connectors[name]
	_, hasConfig := r.configs[name]
	if !exists && !hasConfig {
		return fmt.Errorf("connector '%s' not found", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if exists {
		if err := connector.Disconnect(ctx); err != nil {
			r.logger.Warn("", "", "error disconnecting connector", map[string]interface{}{"connector": name, "error": err.Error()})
		}
	}

	delete(r.connectors, name)
	delete(r.configs, name)

	if r.storage != nil {
		if err := r.storage.DeleteConnector(ctx, name); err != nil {
			r.logger.Warn("", "", "failed to delete connector from storage", map[string]interface{}{"connector": name, "error": err.Error()})
		}
	}

	r.logger.Info("", "", "unregistered connector", map[string]interface{}{"connector": name})
	return nil
}

// Get retrieves a connector by name, lazy-loading if necessary
func (r *Registry) Get(name string) (base.Connector, error) {
	r.mu.RLock()
	connector, exists := r.connectors[name]
	config, hasConfig := r.configs[name]
	factory := r.factory
	r.mu.RUnlock()

	if exists {
		return connector, nil
	}

	if hasConfig && factory != nil {
		return r.lazyLoadConnector(name, config)
	}

	return nil, fmt.Errorf("connector '%s' not found", name)
}

func (r *Registry) lazyLoadConnector(name string, config *base.ConnectorConfig) (base.Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have won the race.
	if connector, exists := r.connectors[name]; exists {
		return connector, nil
	}

	connector, err := r.factory(config.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector '%s': %w", name, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout(config))
	defer cancel()

	if err := connector.Connect(ctx, config); err != nil {
		r.logger.Error(config.TenantID, "", "failed to connect lazy-loaded connector", map[string]interface{}{
			"connector": name,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("failed to connect connector '%s': %w", name, err)
	}

	r.connectors[name] = connector
	r.logger.Debug(config.TenantID, "", "lazy-loaded connector", map[string]interface{}{"connector": name, "type": config.Type})
	return connector, nil
}

// GetConfig retrieves a connector's configuration by name
func (r *Registry) GetConfig(name string) (*base.ConnectorConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, exists := r.configs[name]
	if !exists {
		return nil, fmt.Errorf("config for connector '%s' not found", name)
	}
	return config, nil
}

// List returns all known connector names, sorted. Lazily loaded connectors
// that have not been used yet are included.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListWithTypes returns all known connectors with their types
func (r *Registry) ListWithTypes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]string, len(r.configs))
	for name, config := range r.configs {
		result[name] = config.Type
	}
	return result
}

// HealthCheck checks every connected connector concurrently and records
// the outcome in storage when one is configured.
func (r *Registry) HealthCheck(ctx context.Context) map[string]*base.HealthStatus {
	r.mu.RLock()
	snapshot := make(map[string]base.Connector, len(r.connectors))
	for name, connector := range r.connectors {
		snapshot[name] = connector
	}
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]*base.HealthStatus, len(snapshot))
	)

	for name, connector := range snapshot {
		wg.Add(1)
		go func(name string, connector base.Connector) {
			defer wg.Done()
			status := r.checkOne(ctx, name, connector)

			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, connector)
	}
	wg.Wait()

	return results
}

// HealthCheckSingle performs a health check on a specific connector
func (r *Registry) HealthCheckSingle(ctx context.Context, name string) (*base.HealthStatus, error) {
	connector, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return r.checkOne(ctx, name, connector), nil
}

func (r *Registry) checkOne(ctx context.Context, name string, connector base.Connector) *base.HealthStatus {
	status, err := connector.HealthCheck(ctx)
	if err != nil {
		r.logger.Warn("", "", "health check failed", map[string]interface{}{"connector": name, "error": err.Error()})
		status = &base.HealthStatus{
			Healthy:   false,
			Error:     err.Error(),
			Timestamp: time.Now(),
		}
	}
	if status == nil {
		status = &base.HealthStatus{Healthy: false, Error: "no status reported", Timestamp: time.Now()}
	}

	if r.storage != nil {
		if err := r.storage.UpdateHealthStatus(ctx, name, status); err != nil {
			r.logger.Debug("", "", "failed to store health status", map[string]interface{}{"connector": name, "error": err.Error()})
		}
	}
	return status
}

// Count returns the number of connected connectors
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connectors)
}

// DisconnectAll disconnects all connected connectors. Configs are kept so
// a later Get reconnects.
func (r *Registry) DisconnectAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, connector := range r.connectors {
		if err := connector.Disconnect(ctx); err != nil {
			r.logger.Warn("", "", "error disconnecting connector", map[string]interface{}{"connector": name, "error": err.Error()})
		}
		delete(r.connectors, name)
	}
	r.logger.Info("", "", "all connectors disconnected", nil)
}

// GetConnectorsByTenant returns all connectors accessible to a specific tenant
func (r *Registry) GetConnectorsByTenant(tenantID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0)
	for name, config := range r.configs {
		if tenantAllowed(config, tenantID) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ValidateTenantAccess checks if a tenant can access a specific connector
func (r *Registry) ValidateTenantAccess(connectorName, tenantID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, exists := r.configs[connectorName]
	if !exists {
		return fmt.Errorf("connector '%s' not found", connectorName)
	}

	if !tenantAllowed(config, tenantID) {
		return fmt.Errorf("tenant '%s' does not have access to connector '%s'", tenantID, connectorName)
	}
	return nil
}

func tenantAllowed(config *base.ConnectorConfig, tenantID string) bool {
	return config.TenantID == tenantID || config.TenantID == "*" || config.TenantID == ""
}

func connectTimeout(config *base.ConnectorConfig) time.Duration {
	if config == nil || config.Timeout <= 0 {
		return 30 * time.Second
	}
	return config.Timeout
}
