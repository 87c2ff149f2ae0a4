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
	"strconv"
	"strings"
	"time"

	"saasbridge/platform/connectors/base"
)

// Connector types understood by the loaders.
const (
	TypeSlack      = "slack"
	TypeDocuSign   = "docusign"
	TypeSnowflake  = "snowflake"
	TypeHubSpot    = "hubspot"
	TypeSharePoint = "sharepoint"
)

// KnownTypes lists every connector type with an environment loader.
var KnownTypes = []string{TypeSlack, TypeDocuSign, TypeSnowflake, TypeHubSpot, TypeSharePoint}

// LoadFromEnv loads a connector configuration from environment variables
// prefixed with MCP_<CONNECTOR_NAME>_ (for example MCP_CRM_ACCESS_TOKEN).
// Known types are delegated to their loader; other types need MCP_<NAME>_URL.
func LoadFromEnv(connectorName, connectorType string) (*base.ConnectorConfig, error) {
	switch connectorType {
	case TypeSlack:
		return LoadSlackConfig(connectorName)
	case TypeDocuSign:
		return LoadDocuSignConfig(connectorName)
	case TypeSnowflake:
		return LoadSnowflakeConfig(connectorName)
	case TypeHubSpot:
		return LoadHubSpotConfig(connectorName)
	case TypeSharePoint:
		return LoadSharePointConfig(connectorName)
	}

	config, err := loadCommon(connectorName, connectorType, 30*time.Second)
	if err != nil {
		return nil, err
	}
	if config.ConnectionURL == "" {
		return nil, fmt.Errorf("missing required environment variable: %sURL", envPrefix(connectorName))
	}
	if apiKey := os.Getenv(envPrefix(connectorName) + "API_KEY"); apiKey != "" {
		config.Credentials["api_key"] = apiKey
	}
	return config, nil
}

func envPrefix(connectorName string) string {
	return "MCP_" + strings.ToUpper(connectorName) + "_"
}

// loadCommon reads the settings shared by all connector types: URL override,
// tenant, timeout and retries.
func loadCommon(connectorName, connectorType string, defaultTimeout time.Duration) (*base.ConnectorConfig, error) {
	prefix := envPrefix(connectorName)

	config := &base.ConnectorConfig{
		Name:          connectorName,
		Type:          connectorType,
		ConnectionURL: firstEnv(prefix+"URL", prefix+"BASE_URL"),
		Credentials:   make(map[string]string),
		Options:       make(map[string]interface{}),
		Timeout:       defaultTimeout,
		MaxRetries:    3,
		TenantID:      getEnvOrDefault(prefix+"TENANT_ID", "*"),
	}

	if timeoutStr := os.Getenv(prefix + "TIMEOUT"); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format: %s", timeoutStr)
		}
		config.Timeout = timeout
	}

	if maxRetriesStr := os.Getenv(prefix + "MAX_RETRIES"); maxRetriesStr != "" {
		maxRetries, err := strconv.Atoi(maxRetriesStr)
		if err != nil {
			return nil, fmt.Errorf("invalid max_retries format: %s", maxRetriesStr)
		}
		config.MaxRetries = maxRetries
	}

	return config, nil
}

// LoadSlackConfig loads Slack connector configuration
func LoadSlackConfig(connectorName string) (*base.ConnectorConfig, error) {
	prefix := envPrefix(connectorName)

	botToken := os.Getenv(prefix + "BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("missing required environment variable: %sBOT_TOKEN", prefix)
	}

	config, err := loadCommon(connectorName, TypeSlack, 30*time.Second)
	if err != nil {
		return nil, err
	}
	config.Credentials["bot_token"] = botToken
	setOption(config, "team_id", os.Getenv(prefix+"TEAM_ID"))
	setOption(config, "page_size", os.Getenv(prefix+"PAGE_SIZE"))

	return config, nil
}

// LoadDocuSignConfig loads DocuSign configuration. Either a static access
// token or the JWT grant triple (integration key, user id, private key) is required.
func LoadDocuSignConfig(connectorName string) (*base.ConnectorConfig, error) {
	prefix := envPrefix(connectorName)

	accessToken := os.Getenv(prefix + "ACCESS_TOKEN")
	integrationKey := os.Getenv(prefix + "INTEGRATION_KEY")
	userID := os.Getenv(prefix + "USER_ID")
	privateKey, err := readKey(prefix)
	if err != nil {
		return nil, err
	}

	if accessToken == "" && (integrationKey == "" || userID == "" || privateKey == "") {
		return nil, fmt.Errorf("missing DocuSign credentials: provide %sACCESS_TOKEN or %sINTEGRATION_KEY, %sUSER_ID and %sPRIVATE_KEY", prefix, prefix, prefix, prefix)
	}

	config, err := loadCommon(connectorName, TypeDocuSign, 30*time.Second)
	if err != nil {
		return nil, err
	}
	setCredential(config, "access_token", accessToken)
	setCredential(config, "integration_key", integrationKey)
	setCredential(config, "user_id", userID)
	setCredential(config, "private_key", privateKey)

	environment := strings.ToLower(getEnvOrDefault(prefix+"ENVIRONMENT", "demo"))
	if environment != "demo" && environment != "production" {
		environment = "demo"
	}
	config.Options["environment"] = environment
	setOption(config, "account_id", os.Getenv(prefix+"ACCOUNT_ID"))

	return config, nil
}

// LoadSnowflakeConfig loads Snowflake connector configuration
func LoadSnowflakeConfig(connectorName string) (*base.ConnectorConfig, error) {
	prefix := envPrefix(connectorName)

	account := os.Getenv(prefix + "ACCOUNT")
	username := os.Getenv(prefix + "USERNAME")
	if account == "" || username == "" {
		return nil, fmt.Errorf("missing required Snowflake credentials (account, username)")
	}

	privateKey, err := readKey(prefix)
	if err != nil {
		return nil, err
	}
	token := os.Getenv(prefix + "TOKEN")
	if privateKey == "" && token == "" {
		return nil, fmt.Errorf("missing authentication: provide either PRIVATE_KEY, PRIVATE_KEY_PATH or TOKEN")
	}

	// Snowflake statements can run long
	config, err := loadCommon(connectorName, TypeSnowflake, 60*time.Second)
	if err != nil {
		return nil, err
	}
	config.Credentials["account"] = account
	config.Credentials["username"] = username
	setCredential(config, "private_key", privateKey)
	setCredential(config, "token", token)

	for _, opt := range []string{"database", "schema", "warehouse", "role"} {
		setOption(config, opt, os.Getenv(prefix+strings.ToUpper(opt)))
	}

	return config, nil
}

// LoadHubSpotConfig loads HubSpot configuration: a private-app token or an
// OAuth client with refresh token.
func LoadHubSpotConfig(connectorName string) (*base.ConnectorConfig, error) {
	prefix := envPrefix(connectorName)

	accessToken := os.Getenv(prefix + "ACCESS_TOKEN")
	clientID := os.Getenv(prefix + "CLIENT_ID")
	clientSecret := os.Getenv(prefix + "CLIENT_SECRET")
	refreshToken := os.Getenv(prefix + "REFRESH_TOKEN")

	if accessToken == "" && (clientID == "" || clientSecret == "" || refreshToken == "") {
		return nil, fmt.Errorf("missing HubSpot credentials: provide %sACCESS_TOKEN or %sCLIENT_ID, %sCLIENT_SECRET and %sREFRESH_TOKEN", prefix, prefix, prefix, prefix)
	}

	config, err := loadCommon(connectorName, TypeHubSpot, 30*time.Second)
	if err != nil {
		return nil, err
	}
	setCredential(config, "access_token", accessToken)
	setCredential(config, "client_id", clientID)
	setCredential(config, "client_secret", clientSecret)
	setCredential(config, "refresh_token", refreshToken)
	setOption(config, "page_size", os.Getenv(prefix+"PAGE_SIZE"))

	return config, nil
}

// LoadSharePointConfig loads SharePoint Online configuration (Entra ID app
// registration plus the site to sync).
func LoadSharePointConfig(connectorName string) (*base.ConnectorConfig, error) {
	prefix := envPrefix(connectorName)

	tenant := firstEnv(prefix+"AZURE_TENANT_ID", "AZURE_TENANT_ID")
	clientID := firstEnv(prefix+"CLIENT_ID", "AZURE_CLIENT_ID")
	clientSecret := firstEnv(prefix+"CLIENT_SECRET", "AZURE_CLIENT_SECRET")
	siteURL := os.Getenv(prefix + "SITE_URL")

	if tenant == "" || clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("missing SharePoint credentials (azure tenant id, client id, client secret)")
	}
	if siteURL == "" {
		return nil, fmt.Errorf("missing required environment variable: %sSITE_URL", prefix)
	}

	config, err := loadCommon(connectorName, TypeSharePoint, 60*time.Second)
	if err != nil {
		return nil, err
	}
	config.Credentials["azure_tenant_id"] = tenant
	config.Credentials["client_id"] = clientID
	config.Credentials["client_secret"] = clientSecret
	config.Options["site_url"] = siteURL
	setOption(config, "drives", os.Getenv(prefix+"DRIVES"))
	setOption(config, "batch_size", os.Getenv(prefix+"BATCH_SIZE"))
	setOption(config, "batch_pause", os.Getenv(prefix+"BATCH_PAUSE"))

	return config, nil
}

// readKey returns the PEM private key from <prefix>PRIVATE_KEY or the file
// named by <prefix>PRIVATE_KEY_PATH.
func readKey(prefix string) (string, error) {
	if key := os.Getenv(prefix + "PRIVATE_KEY"); key != "" {
		return key, nil
	}
	path := os.Getenv(prefix + "PRIVATE_KEY_PATH")
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read private key file: %w", err)
	}
	return string(data), nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setCredential(config *base.ConnectorConfig, key, value string) {
	if value != "" {
		config.Credentials[key] = value
	}
}

func setOption(config *base.ConnectorConfig, key, value string) {
	if value != "" {
		config.Options[key] = value
	}
}

// credentialRules lists, per connector type, the credential sets that must
// be present. Each rule is satisfied when every key of one alternative is set.
var credentialRules = map[string][][][]string{
	TypeSlack: {
		{{"bot_token"}},
	},
	TypeDocuSign: {
		{{"access_token"}, {"integration_key", "user_id", "private_key"}},
	},
	TypeSnowflake: {
		{{"account"}},
		{{"username"}},
		{{"private_key"}, {"token"}},
	},
	TypeHubSpot: {
		{{"access_token"}, {"client_id", "client_secret", "refresh_token"}},
	},
	TypeSharePoint: {
		{{"azure_tenant_id"}},
		{{"client_id"}},
		{{"client_secret"}},
	},
}

// RequiredCredentials describes the credential rules of a connector type,
// one entry per rule with alternatives separated by " or ".
func RequiredCredentials(connectorType string) []string {
	var out []string
	for _, rule := range credentialRules[connectorType] {
		alts := make([]string, 0, len(rule))
		for _, alt := range rule {
			alts = append(alts, strings.Join(alt, "+"))
		}
		out = append(out, strings.Join(alts, " or "))
	}
	return out
}

// ValidateConfig validates a connector configuration
func ValidateConfig(config *base.ConnectorConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.Name == "" {
		return fmt.Errorf("connector name is required")
	}
	if config.Type == "" {
		return fmt.Errorf("connector type is required")
	}
	rules, known := credentialRules[config.Type]
	if !known && config.ConnectionURL == "" {
		return fmt.Errorf("connection URL is required for %s connector", config.Type)
	}
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	for i, rule := range rules {
		if !satisfied(config.Credentials, rule) {
			return fmt.Errorf("%s connector '%s' is missing credentials: %s", config.Type, config.Name, RequiredCredentials(config.Type)[i])
		}
	}
	if config.Type == TypeSharePoint {
		if site, _ := config.Options["site_url"].(string); site == "" {
			return fmt.Errorf("sharepoint connector '%s' requires option site_url", config.Name)
		}
	}
	return nil
}

func satisfied(creds map[string]string, rule [][]string) bool {
	for _, alt := range rule {
		ok := true
		for _, key := range alt {
			if creds[key] == "" {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
