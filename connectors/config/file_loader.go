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
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"saasbridge/platform/connectors/base"

	"gopkg.in/yaml.v3"
)

// ConfigFile represents the root structure of a configuration file
type ConfigFile struct {
	Version    string                         `yaml:"version"`
	Connectors map[string]ConnectorFileConfig `yaml:"connectors,omitempty"`
}

// ConnectorFileConfig represents a connector configuration in the config file
type ConnectorFileConfig struct {
	Type          string                 `yaml:"type"`
	Enabled       bool                   `yaml:"enabled"`
	DisplayName   string                 `yaml:"display_name,omitempty"`
	Description   string                 `yaml:"description,omitempty"`
	ConnectionURL string                 `yaml:"connection_url,omitempty"`
	Credentials   map[string]string      `yaml:"credentials,omitempty"`
	Options       map[string]interface{} `yaml:"options,omitempty"`
	TimeoutMs     int                    `yaml:"timeout_ms,omitempty"`
	MaxRetries    int                    `yaml:"max_retries,omitempty"`
	TenantID      string                 `yaml:"tenant_id,omitempty"`
}

// YAMLConfigFileLoader loads configurations from a YAML file
type YAMLConfigFileLoader struct {
	filePath string
	mu       sync.RWMutex
	config   *ConfigFile
}

// NewYAMLConfigFileLoader reads, expands and validates the file at filePath.
func NewYAMLConfigFileLoader(filePath string) (*YAMLConfigFileLoader, error) {
	loader := &YAMLConfigFileLoader{filePath: filePath}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

// ParseConfigFile parses YAML content after environment expansion.
func ParseConfigFile(data []byte) (*ConfigFile, error) {
	var config ConfigFile
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := ValidateConfigFile(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (l *YAMLConfigFileLoader) reload() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", l.filePath, err)
	}
	config, err := ParseConfigFile(data)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.config = config
	l.mu.Unlock()
	return nil
}

// LoadConnectors returns the enabled connector configs visible to tenantID,
// sorted by name. Entries without tenant_id belong to every tenant ("*").
func (l *YAMLConfigFileLoader) LoadConnectors(tenantID string) ([]*base.ConnectorConfig, error) {
	l.mu.RLock()
	file := l.config
	l.mu.RUnlock()
	if file == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	names := make([]string, 0, len(file.Connectors))
	for name := range file.Connectors {
		names = append(names, name)
	}
	sort.Strings(names)

	var configs []*base.ConnectorConfig
	for _, name := range names {
		fileConfig := file.Connectors[name]
		if !fileConfig.Enabled {
			continue
		}

		cfgTenantID := fileConfig.TenantID
		if cfgTenantID == "" {
			cfgTenantID = "*"
		}
		if tenantID != "*" && cfgTenantID != "*" && cfgTenantID != tenantID {
			continue
		}

		timeout := time.Duration(fileConfig.TimeoutMs) * time.Millisecond
		if timeout == 0 {
			timeout = 30 * time.Second
		}

		maxRetries := fileConfig.MaxRetries
		if maxRetries == 0 {
			maxRetries = 3
		}

		options := make(map[string]interface{}, len(fileConfig.Options))
		for k, v := range fileConfig.Options {
			options[k] = v
		}
		credentials := make(map[string]string, len(fileConfig.Credentials))
		for k, v := range fileConfig.Credentials {
			credentials[k] = v
		}

		configs = append(configs, &base.ConnectorConfig{
			Name:          name,
			Type:          fileConfig.Type,
			ConnectionURL: fileConfig.ConnectionURL,
			Credentials:   credentials,
			Options:       options,
			Timeout:       timeout,
			MaxRetries:    maxRetries,
			TenantID:      cfgTenantID,
		})
	}

	return configs, nil
}

// Reload reloads the configuration file
func (l *YAMLConfigFileLoader) Reload() error {
	return l.reload()
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands ${VAR}, ${VAR:-default} and $VAR references.
// Undefined variables without a default expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

// ValidateConfigFile validates the structure of a config file
func ValidateConfigFile(config *ConfigFile) error {
	if config.Version == "" {
		return fmt.Errorf("config file must specify a version")
	}

	for name, connector := range config.Connectors {
		if connector.Type == "" {
			return fmt.Errorf("connector '%s' must specify a type", name)
		}
		if _, ok := credentialRules[connector.Type]; !ok {
			return fmt.Errorf("connector '%s' has invalid type '%s'", name, connector.Type)
		}
		if connector.TimeoutMs < 0 {
			return fmt.Errorf("connector '%s' timeout_ms cannot be negative", name)
		}
	}

	return nil
}

// GenerateExampleConfigFile generates an example configuration file
func GenerateExampleConfigFile() string {
	return `# SaaS bridge connector configuration
# Environment variables can be referenced using ${VAR_NAME} or ${VAR_NAME:-default}.
# Credentials of the form secret:<secret-id>#<key> are resolved through the secrets manager.

version: "1.0"

connectors:
  slack_main:
    type: slack
    enabled: true
    credentials:
      bot_token: ${SLACK_BOT_TOKEN}
    timeout_ms: 30000

  docusign_esign:
    type: docusign
    enabled: false
    credentials:
      integration_key: ${DOCUSIGN_INTEGRATION_KEY}
      user_id: ${DOCUSIGN_USER_ID}
      private_key: secret:prod/docusign#private_key
    options:
      environment: ${DOCUSIGN_ENV:-demo}

  snowflake_dw:
    type: snowflake
    enabled: false
    credentials:
      account: ${SNOWFLAKE_ACCOUNT}
      username: ${SNOWFLAKE_USER}
      private_key: secret:prod/snowflake#private_key
    options:
      warehouse: ${SNOWFLAKE_WAREHOUSE:-COMPUTE_WH}
      database: ANALYTICS
    timeout_ms: 60000

  hubspot_crm:
    type: hubspot
    enabled: false
    credentials:
      access_token: ${HUBSPOT_ACCESS_TOKEN}

  sharepoint_docs:
    type: sharepoint
    enabled: false
    credentials:
      azure_tenant_id: ${AZURE_TENANT_ID}
      client_id: ${AZURE_CLIENT_ID}
      client_secret: secret:prod/sharepoint#client_secret
    options:
      site_url: https://contoso.sharepoint.com/sites/engineering
      batch_size: 50
      batch_pause: 1s
`
}
