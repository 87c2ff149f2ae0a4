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

// Package main is the entry point for the SaaS bridge gateway.
//
// The gateway loads connector configs, connects each connector and serves
// the registry over HTTP.
//
// Usage:
//
//	./bridge
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string for stored connector configs
//	CONNECTORS_CONFIG - path of a YAML connector config file
//	MCP_CONNECTORS - "name:type,..." list read from MCP_<NAME>_* variables
//	SECRETS_REGION - AWS region of Secrets Manager for "secret:<id>#<key>" credentials
//	REDIS_URL - Redis URL for SharePoint sync points (default: in memory)
//	SYNC_BUCKET, SYNC_PREFIX, S3_ENDPOINT - S3 destination of synced records
//	SYNC_BATCH_SIZE - records per sink write (default: 100)
//	CORS_ORIGINS - comma separated allowed origins (default: *)
package main

import (
	"saasbridge/platform/server"
)

func main() {
	server.Run()
}
