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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/shared/logger"
)

// Storage persists connector configurations for the registry.
type Storage interface {
	SaveConnector(ctx context.Context, id string, config *base.ConnectorConfig) error
	GetConnector(ctx context.Context, id string) (*base.ConnectorConfig, error)
	DeleteConnector(ctx context.Context, id string) error
	ListConnectors(ctx context.Context) ([]string, error)
	ListConnectorsByTenant(ctx context.Context, tenantID string) ([]*base.ConnectorConfig, error)
	UpdateHealthStatus(ctx context.Context, id string, status *base.HealthStatus) error
}

// PostgreSQLStorage implements persistent storage for connector registry
type PostgreSQLStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

const connectorColumns = `name, type, tenant_id, connection_url, options, credentials, timeout_ms, max_retries`

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS connectors (
		id VARCHAR(255) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		type VARCHAR(50) NOT NULL,
		tenant_id VARCHAR(255) NOT NULL,
		connection_url TEXT NOT NULL DEFAULT '',
		options JSONB NOT NULL DEFAULT '{}'::jsonb,
		credentials JSONB NOT NULL DEFAULT '{}'::jsonb,
		timeout_ms INTEGER NOT NULL DEFAULT 30000,
		max_retries INTEGER NOT NULL DEFAULT 3,
		installed_at TIMESTAMP NOT NULL DEFAULT NOW(),
		last_health_check TIMESTAMP,
		health_status JSONB,
		UNIQUE(name, tenant_id)
	);

	CREATE INDEX IF NOT EXISTS idx_connectors_tenant ON connectors(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_connectors_type ON connectors(type);
	`

// NewPostgreSQLStorage connects to dbURL and creates the schema. The first
// connection is retried with a growing pause to ride out slow DNS at startup.
func NewPostgreSQLStorage(dbURL string) (*PostgreSQLStorage, error) {
	log := logger.New("connector_storage")
	maxRetries := 5
	var db *sql.DB
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open("postgres", dbURL)
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
			_ = db.Close()
		}

		if attempt < maxRetries {
			backoff := time.Duration(attempt*2) * time.Second
			log.Warn("", "", "database connection failed, retrying", map[string]interface{}{
				"attempt": attempt,
				"backoff": backoff.String(),
				"error":   err.Error(),
			})
			time.Sleep(backoff)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	return NewPostgreSQLStorageWithDB(context.Background(), db, log)
}

// NewPostgreSQLStorageWithDB wraps an open database and creates the schema.
func NewPostgreSQLStorageWithDB(ctx context.Context, db *sql.DB, log *logger.Logger) (*PostgreSQLStorage, error) {
	if log == nil {
		log = logger.New("connector_storage")
	}
	storage := &PostgreSQLStorage{db: db, logger: log}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	storage.logger.Info("", "", "connector storage initialized", nil)
	return storage, nil
}

// SaveConnector inserts or replaces a connector configuration
func (s *PostgreSQLStorage) SaveConnector(ctx context.Context, id string, config *base.ConnectorConfig) error {
	optionsJSON, err := json.Marshal(nonNilOptions(config.Options))
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	credentialsJSON, err := json.Marshal(nonNilCredentials(config.Credentials))
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	query := `
		INSERT INTO connectors (id, name, type, tenant_id, connection_url, options, credentials, timeout_ms, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			connection_url = EXCLUDED.connection_url,
			options = EXCLUDED.options,
			credentials = EXCLUDED.credentials,
			timeout_ms = EXCLUDED.timeout_ms,
			max_retries = EXCLUDED.max_retries
	`

	_, err = s.db.ExecContext(ctx, query,
		id,
		config.Name,
		config.Type,
		config.TenantID,
		config.ConnectionURL,
		optionsJSON,
		credentialsJSON,
		config.Timeout.Milliseconds(),
		config.MaxRetries,
	)
	if err != nil {
		return fmt.Errorf("failed to save connector: %w", err)
	}

	s.logger.Info(config.TenantID, "", "connector saved", map[string]interface{}{"connector": id})
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row rowScanner) (*base.ConnectorConfig, error) {
	var (
		name, connType, tenantID, connectionURL string
		optionsJSON, credentialsJSON            []byte
		timeoutMs, maxRetries                   int
	)
	if err := row.Scan(&name, &connType, &tenantID, &connectionURL, &optionsJSON, &credentialsJSON, &timeoutMs, &maxRetries); err != nil {
		return nil, err
	}

	var options map[string]interface{}
	if err := json.Unmarshal(optionsJSON, &options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	var credentials map[string]string
	if err := json.Unmarshal(credentialsJSON, &credentials); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}

	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &base.ConnectorConfig{
		Name:          name,
		Type:          connType,
		TenantID:      tenantID,
		ConnectionURL: connectionURL,
		Options:       nonNilOptions(options),
		Credentials:   nonNilCredentials(credentials),
		Timeout:       timeout,
		MaxRetries:    maxRetries,
	}, nil
}

// GetConnector retrieves a connector configuration
func (s *PostgreSQLStorage) GetConnector(ctx context.Context, id string) (*base.ConnectorConfig, error) {
	query := `SELECT ` + connectorColumns + ` FROM connectors WHERE id = $1`

	config, err := scanConfig(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("connector not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connector: %w", err)
	}
	return config, nil
}

// DeleteConnector removes a connector configuration
func (s *PostgreSQLStorage) DeleteConnector(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM connectors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connector: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("connector not found: %s", id)
	}

	s.logger.Info("", "", "connector deleted", map[string]interface{}{"connector": id})
	return nil
}

// ListConnectors returns the ids of all stored connectors, newest first.
func (s *PostgreSQLStorage) ListConnectors(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM connectors ORDER BY installed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

// ListConnectorsByTenant returns the configs visible to a tenant, including
// those shared with every tenant ("*").
func (s *PostgreSQLStorage) ListConnectorsByTenant(ctx context.Context, tenantID string) ([]*base.ConnectorConfig, error) {
	query := `SELECT ` + connectorColumns + ` FROM connectors WHERE tenant_id = $1 OR tenant_id = '*' ORDER BY installed_at DESC`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connectors by tenant: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var configs []*base.ConnectorConfig
	for rows.Next() {
		config, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		configs = append(configs, config)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return configs, nil
}

// UpdateHealthStatus updates the health status of a connector
func (s *PostgreSQLStorage) UpdateHealthStatus(ctx context.Context, id string, status *base.HealthStatus) error {
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal health status: %w", err)
	}

	query := `
		UPDATE connectors
		SET last_health_check = NOW(), health_status = $2
		WHERE id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, id, statusJSON); err != nil {
		return fmt.Errorf("failed to update health status: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nonNilOptions(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func nonNilCredentials(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
