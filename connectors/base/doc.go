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
Package base provides the core interfaces and types shared by every SaaS
connector in the bridge.

# Connector Interface

All connectors implement the Connector interface:

	type Connector interface {
	    Connect(ctx context.Context, config *ConnectorConfig) error
	    Disconnect(ctx context.Context) error
	    HealthCheck(ctx context.Context) (*HealthStatus, error)

	    Query(ctx context.Context, query *Query) (*QueryResult, error)
	    Execute(ctx context.Context, cmd *Command) (*CommandResult, error)

	    Name() string
	    Type() string
	    Version() string
	    Capabilities() []string
	}

Query statements name a read operation ("list_channels", "get_envelope",
"list contacts") or carry SQL for Snowflake. Command actions name a write
("send_message", "create_envelope", "sync").

# Sync Connectors

Connectors that mirror documents into an internal index also implement
SyncConnector. Sync returns a stream of Record values, each an upsert or a
delete with resolved AccessControl. The ingest package drains the stream
into a sink.

# Responses

NewToolResponse wraps any result or error into the uniform ToolResponse
envelope used by the HTTP gateway. The status code is taken from errors
implementing StatusCoder, or derived from the sentinel errors of this
package.

# Security

ValidateURL guards connection_url overrides against SSRF.
ValidateSQLIdentifier guards identifiers interpolated into SHOW statements.
SanitizeLogString strips log-injection characters from request values.
*/
package base
