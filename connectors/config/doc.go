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

/*
Package config provides configuration loading for SaaS connectors from
environment variables, YAML files and persistent stores.

# Environment Variable Convention

Connector configuration uses the prefix MCP_<CONNECTOR_NAME>_ (the name is
upper-cased):

	MCP_CRM_ACCESS_TOKEN=pat-na1-...
	MCP_CRM_TIMEOUT=10s
	MCP_CRM_MAX_RETRIES=5
	MCP_CRM_TENANT_ID=tenant-123

Common optional variables:
  - MCP_<NAME>_URL or MCP_<NAME>_BASE_URL: vendor API base URL override
  - MCP_<NAME>_TIMEOUT: operation timeout (default per type)
  - MCP_<NAME>_MAX_RETRIES: retry count (default: 3)
  - MCP_<NAME>_TENANT_ID: tenant (default: *)

# Connector-Specific Loaders

	config.LoadSlackConfig("chat")        // BOT_TOKEN
	config.LoadDocuSignConfig("esign")    // ACCESS_TOKEN or INTEGRATION_KEY + USER_ID + PRIVATE_KEY[_PATH]
	config.LoadSnowflakeConfig("dw")      // ACCOUNT, USERNAME, PRIVATE_KEY[_PATH] or TOKEN
	config.LoadHubSpotConfig("crm")       // ACCESS_TOKEN or CLIENT_ID + CLIENT_SECRET + REFRESH_TOKEN
	config.LoadSharePointConfig("docs")   // AZURE_TENANT_ID, CLIENT_ID, CLIENT_SECRET, SITE_URL

# Config Files

YAMLConfigFileLoader reads a versioned YAML document with ${VAR} and
${VAR:-default} expansion. See GenerateExampleConfigFile.

# Secrets

Credential values of the form secret:<secret-id>#<key> are replaced by
ResolveSecrets using a SecretsManager (AWS Secrets Manager or in-memory).

# Runtime Resolution

RuntimeConfigService combines a ConfigStore, a file loader and the
environment, resolves secrets, validates each config and caches the result
per tenant.
*/
package config
