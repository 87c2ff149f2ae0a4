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

package sdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"saasbridge/platform/connectors/base"
)

// MockConnector is an in-memory base.SyncConnector for registry, ingest and
// server tests.
type MockConnector struct {
	name         string
	connType     string
	capabilities []string
	connected    bool
	tenantID     string

	queryResult   *base.QueryResult
	queryError    error
	executeResult *base.CommandResult
	executeError  error
	healthStatus  *base.HealthStatus
	connectError  error
	syncRecords   []base.Record
	syncError     error

	queryCalls   []*base.Query
	executeCalls []*base.Command
	syncCalls    []base.SyncRequest
	disconnects  int

	onQuery func(context.Context, *base.Query) (*base.QueryResult, error)

	mu sync.Mutex
}

// NewMockConnector creates a new mock connector
func NewMockConnector(name, connType string) *MockConnector {
	return &MockConnector{
		name:         name,
		connType:     connType,
		capabilities: []string{"query", "execute", "sync"},
		queryResult:  &base.QueryResult{Rows: []map[string]interface{}{}, Connector: name},
		executeResult: &base.CommandResult{
			Success:   true,
			Connector: name,
		},
		healthStatus: &base.HealthStatus{Healthy: true},
	}
}

// Connect implements base.Connector
func (m *MockConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectError != nil {
		return m.connectError
	}
	m.connected = true
	if config != nil {
		m.name = config.Name
		m.tenantID = config.TenantID
	}
	return nil
}

// Disconnect implements base.Connector
func (m *MockConnector) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected = false
	return nil
}

// HealthCheck implements base.Connector
func (m *MockConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := *m.healthStatus
	status.Timestamp = time.Now()
	return &status, nil
}

// Query implements base.Connector
func (m *MockConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	m.mu.Lock()
	m.queryCalls = append(m.queryCalls, query)
	onQuery, result, err := m.onQuery, m.queryResult, m.queryError
	m.mu.Unlock()

	if onQuery != nil {
		return onQuery(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	out := *result
	return &out, nil
}

// Execute implements base.Connector
func (m *MockConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executeCalls = append(m.executeCalls, cmd)
	if m.executeError != nil {
		return nil, m.executeError
	}
	out := *m.executeResult
	return &out, nil
}

// Sync implements base.SyncConnector by replaying the configured records.
func (m *MockConnector) Sync(ctx context.Context, req base.SyncRequest) (<-chan base.Record, <-chan error) {
	m.mu.Lock()
	m.syncCalls = append(m.syncCalls, req)
	records := append([]base.Record(nil), m.syncRecords...)
	syncErr := m.syncError
	m.mu.Unlock()

	out := make(chan base.Record)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for _, r := range records {
			select {
			case out <- r:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if syncErr != nil {
			errc <- syncErr
		}
	}()
	return out, errc
}

func (m *MockConnector) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

func (m *MockConnector) Type() string           { return m.connType }
func (m *MockConnector) Version() string        { return "1.0.0-mock" }
func (m *MockConnector) Capabilities() []string { return m.capabilities }

// TenantID returns the tenant seen at Connect.
func (m *MockConnector) TenantID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tenantID
}

// SetQueryResult sets the result returned by Query
func (m *MockConnector) SetQueryResult(result *base.QueryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryResult = result
}

// SetQueryError makes Query fail
func (m *MockConnector) SetQueryError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryError = err
}

// SetOnQuery installs a custom Query handler
func (m *MockConnector) SetOnQuery(fn func(context.Context, *base.Query) (*base.QueryResult, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onQuery = fn
}

// SetExecuteResult sets the result returned by Execute
func (m *MockConnector) SetExecuteResult(result *base.CommandResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeResult = result
}

// SetExecuteError makes Execute fail
func (m *MockConnector) SetExecuteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeError = err
}

// SetHealthStatus sets the status returned by HealthCheck
func (m *MockConnector) SetHealthStatus(status *base.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthStatus = status
}

// SetConnectError makes Connect fail
func (m *MockConnector) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectError = err
}

// SetSyncRecords sets the records replayed by Sync, and the error sent after them.
func (m *MockConnector) SetSyncRecords(records []base.Record, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncRecords = records
	m.syncError = err
}

// QueryCalls returns the queries received so far
func (m *MockConnector) QueryCalls() []*base.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*base.Query(nil), m.queryCalls...)
}

// ExecuteCalls returns the commands received so far
func (m *MockConnector) ExecuteCalls() []*base.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*base.Command(nil), m.executeCalls...)
}

// SyncCalls returns the sync requests received so far
func (m *MockConnector) SyncCalls() []base.SyncRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]base.SyncRequest(nil), m.syncCalls...)
}

// DisconnectCalls returns how many times Disconnect ran
func (m *MockConnector) DisconnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

// IsConnected returns the connection status
func (m *MockConnector) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// TestHarness bundles a bounded context and a fake vendor server for connector tests.
type TestHarness struct {
	t      *testing.T
	ctx    context.Context
	cancel context.CancelFunc
	mux    *http.ServeMux
	server *httptest.Server
}

// NewTestHarness creates a harness whose resources are released by t.Cleanup.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	h := &TestHarness{t: t, ctx: ctx, cancel: cancel, mux: http.NewServeMux()}
	h.server = httptest.NewServer(h.mux)
	t.Cleanup(func() {
		h.server.Close()
		h.cancel()
	})
	return h
}

// Context returns the test context
func (h *TestHarness) Context() context.Context {
	return h.ctx
}

// URL returns the fake vendor server's base URL.
func (h *TestHarness) URL() string {
	return h.server.URL
}

// Handle registers a handler on the fake vendor server.
func (h *TestHarness) Handle(pattern string, fn http.HandlerFunc) {
	h.mux.HandleFunc(pattern, fn)
}

// NewConfig creates a test configuration pointing at the fake vendor server.
func (h *TestHarness) NewConfig(name, connType string) *base.ConnectorConfig {
	return &base.ConnectorConfig{
		Name:          name,
		Type:          connType,
		ConnectionURL: h.server.URL,
		Timeout:       5 * time.Second,
		Options:       map[string]interface{}{"allow_private_ips": true},
		Credentials:   map[string]string{},
		TenantID:      "tenant-test",
	}
}

// FastRetry returns a retry policy with millisecond waits.
func FastRetry(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		RetryIf:         DefaultRetryCondition,
	}
}

// AssertNoError fails the test if err is not nil
func (h *TestHarness) AssertNoError(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
}

// AssertErrorContains fails if err doesn't contain the expected message
func (h *TestHarness) AssertErrorContains(err error, msg string) {
	h.t.Helper()
	if err == nil {
		h.t.Fatalf("expected error containing %q but got nil", msg)
	}
	if !strings.Contains(err.Error(), msg) {
		h.t.Fatalf("expected error containing %q, got %q", msg, err.Error())
	}
}

// AssertRowCount fails if the result does not have the expected row count
func (h *TestHarness) AssertRowCount(result *base.QueryResult, expected int) {
	h.t.Helper()
	if result == nil {
		h.t.Fatal("result is nil")
	}
	if result.RowCount != expected || len(result.Rows) != expected {
		h.t.Fatalf("expected %d rows, got RowCount=%d len(Rows)=%d", expected, result.RowCount, len(result.Rows))
	}
}
