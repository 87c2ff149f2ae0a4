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

package base

import (
	"context"
	"errors"
	"time"
)

// Connector is implemented by every SaaS connector.
// Query covers read operations, Execute covers writes and actions.
type Connector interface {
	Connect(ctx context.Context, config *ConnectorConfig) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	Query(ctx context.Context, query *Query) (*QueryResult, error)
	Execute(ctx context.Context, cmd *Command) (*CommandResult, error)

	Name() string           // Unique connector instance name
	Type() string           // Connector type (slack, docusign, snowflake, hubspot, sharepoint)
	Version() string        // Connector version
	Capabilities() []string // Supported capabilities (query, execute, sync, ...)
}

// ConnectorConfig holds the configuration for a connector instance
type ConnectorConfig struct {
	Name          string                 `json:"name"`           // Unique name for this connector
	Type          string                 `json:"type"`           // slack, docusign, snowflake, hubspot, sharepoint
	ConnectionURL string                 `json:"connection_url"` // Vendor API base URL override
	Credentials   map[string]string      `json:"credentials"`    // Tokens, keys, client secrets
	Options       map[string]interface{} `json:"options"`        // Connector-specific options
	Timeout       time.Duration          `json:"timeout"`        // Operation timeout (default: 30s)
	MaxRetries    int                    `json:"max_retries"`    // Retry count for transient failures
	TenantID      string                 `json:"tenant_id"`      // Tenant isolation, "*" for shared
}

// Query represents a read operation
type Query struct {
	Statement  string                 `json:"statement"`  // Named operation ("list_channels") or SQL
	Parameters map[string]interface{} `json:"parameters"` // Operation parameters
	Timeout    time.Duration          `json:"timeout"`    // Override default timeout
	Limit      int                    `json:"limit"`      // Result limit (optional)
}

// QueryResult contains the results of a Query operation
type QueryResult struct {
	Rows      []map[string]interface{} `json:"rows"`
	RowCount  int                      `json:"row_count"`
	Duration  time.Duration            `json:"duration"`
	Cached    bool                     `json:"cached"`
	Connector string                   `json:"connector"`
	Metadata  map[string]interface{}   `json:"metadata,omitempty"` // Paging cursors, vendor request ids
}

// Command represents a write operation or action
type Command struct {
	Action     string                 `json:"action"`     // send_message, create_envelope, sync, ...
	Statement  string                 `json:"statement"`  // SQL for snowflake, object for hubspot
	Parameters map[string]interface{} `json:"parameters"` // Action parameters
	Timeout    time.Duration          `json:"timeout"`    // Override default timeout
}

// CommandResult contains the results of a Command execution
type CommandResult struct {
	Success      bool                   `json:"success"`
	RowsAffected int                    `json:"rows_affected"`
	Duration     time.Duration          `json:"duration"`
	Message      string                 `json:"message"`
	Connector    string                 `json:"connector"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// HealthStatus represents the health of a connector
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error"`
}

// ErrUnsupportedOperation is returned for statements or actions a connector does not know.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// ErrNotConnected is returned when an operation runs before Connect.
var ErrNotConnected = errors.New("connector not connected")

// ErrInvalidParameter is returned when a required parameter is missing or malformed.
var ErrInvalidParameter = errors.New("invalid parameter")

// ConnectorError represents errors specific to connector operations
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.ConnectorName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ConnectorName + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}

// NewUnsupportedError reports an unknown statement or action.
func NewUnsupportedError(connectorName, operation, what string) *ConnectorError {
	return NewConnectorError(connectorName, operation, "unsupported: "+what, ErrUnsupportedOperation)
}

// NewParameterError reports a missing or malformed parameter.
func NewParameterError(connectorName, operation, message string) *ConnectorError {
	return NewConnectorError(connectorName, operation, message, ErrInvalidParameter)
}
