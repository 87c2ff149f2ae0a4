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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/registry"
	"saasbridge/platform/connectors/sdk"
	"saasbridge/platform/ingest"
	"saasbridge/platform/shared/logger"
)

// queryOnly hides the mock's Sync method.
type queryOnly struct {
	base.Connector
}

type fixture struct {
	server *Server
	slack  *sdk.MockConnector
	docs   *sdk.MockConnector
	sink   *ingest.MemorySink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	quiet := logger.New("test").WithOutput(io.Discard)

	reg := registry.NewRegistry()
	reg.SetLogger(quiet)

	f := &fixture{
		slack: sdk.NewMockConnector("team-slack", "slack"),
		docs:  sdk.NewMockConnector("docs", "sharepoint"),
		sink:  ingest.NewMemorySink(),
	}
	require.NoError(t, reg.Register("team-slack", queryOnly{f.slack}, &base.ConnectorConfig{Name: "team-slack", Type: "slack", TenantID: "acme"}))
	require.NoError(t, reg.Register("docs", f.docs, &base.ConnectorConfig{Name: "docs", Type: "sharepoint", TenantID: "*"}))

	srv, err := New(reg, Options{
		Sink:      f.sink,
		BatchSize: 2,
		Metrics:   prometheus.NewRegistry(),
		Logger:    quiet,
	})
	require.NoError(t, err)
	f.server = srv
	return f
}

func (f *fixture) do(t *testing.T, method, path, tenant, body string) (*httptest.ResponseRecorder, base.ToolResponse) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if tenant != "" {
		req.Header.Set(headerTenantID, tenant)
	}
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)

	var resp base.ToolResponse
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}
	return rr, resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr, resp := f.do(t, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, float64(2), data["connectors"])
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, resp.RequestID, rr.Header().Get(headerRequestID))
}

func TestRequestIDEcho(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-42")
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "req-42", rr.Header().Get(headerRequestID))
	assert.Contains(t, rr.Body.String(), `"request_id":"req-42"`)
}

func TestListFiltersByTenant(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		tenant string
		want   []ConnectorInfo
	}{
		{"acme", []ConnectorInfo{{Name: "docs", Type: "sharepoint"}, {Name: "team-slack", Type: "slack"}}},
		{"globex", []ConnectorInfo{{Name: "docs", Type: "sharepoint"}}},
	}
	for _, tt := range tests {
		t.Run(tt.tenant, func(t *testing.T) {
			rr, _ := f.do(t, http.MethodGet, "/connectors", tt.tenant, "")
			require.Equal(t, http.StatusOK, rr.Code)

			var body struct {
				Data []ConnectorInfo `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Data)
		})
	}
}

func TestTenantAccess(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		path   string
		tenant string
		want   int
	}{
		{"own connector", "/connectors/team-slack/health", "acme", http.StatusOK},
		{"shared connector", "/connectors/docs/health", "globex", http.StatusOK},
		{"other tenant", "/connectors/team-slack/health", "globex", http.StatusForbidden},
		{"missing tenant", "/connectors/team-slack/health", "", http.StatusForbidden},
		{"unknown connector", "/connectors/nope/health", "acme", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, resp := f.do(t, http.MethodGet, tt.path, tt.tenant, "")
			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestConnectorHealthUnhealthy(t *testing.T) {
	f := newFixture(t)
	f.docs.SetHealthStatus(&base.HealthStatus{Healthy: false, Error: "token expired"})

	rr, resp := f.do(t, http.MethodGet, "/connectors/docs/health", "acme", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "token expired", resp.Error)
}

func TestQuery(t *testing.T) {
	f := newFixture(t)
	f.slack.SetQueryResult(&base.QueryResult{
		Rows:     []map[string]interface{}{{"id": "C1", "name": "general"}},
		RowCount: 1,
	})

	rr, resp := f.do(t, http.MethodPost, "/connectors/team-slack/query", "acme",
		`{"statement":"list_channels","parameters":{"types":"public_channel"},"limit":5,"timeout_ms":1500}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, resp.Success)

	calls := f.slack.QueryCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "list_channels", calls[0].Statement)
	assert.Equal(t, 5, calls[0].Limit)
	assert.Equal(t, "public_channel", calls[0].Parameters["types"])
	assert.Equal(t, int64(1500), calls[0].Timeout.Milliseconds())
}

func TestQueryErrors(t *testing.T) {
	f := newFixture(t)
	f.slack.SetQueryError(base.NewUnsupportedError("team-slack", "Query", "statement bogus"))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{"statement":`, http.StatusBadRequest},
		{"missing statement", `{}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"unsupported statement", `{"statement":"bogus"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, resp := f.do(t, http.MethodPost, "/connectors/team-slack/query", "acme", tt.body)
			assert.Equal(t, tt.want, rr.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestQueryVendorFailure(t *testing.T) {
	f := newFixture(t)
	f.slack.SetQueryError(&sdk.HTTPError{StatusCode: http.StatusTooManyRequests, Method: "GET", URL: "https://slack.com/api/conversations.list"})

	rr, resp := f.do(t, http.MethodPost, "/connectors/team-slack/query", "acme", `{"statement":"list_channels"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.False(t, resp.Success)
}

func TestExecute(t *testing.T) {
	f := newFixture(t)

	rr, resp := f.do(t, http.MethodPost, "/connectors/team-slack/execute", "acme",
		`{"action":"send_message","parameters":{"channel":"C1","text":"hi"}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, resp.Success)

	calls := f.slack.ExecuteCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "send_message", calls[0].Action)
	assert.Equal(t, "hi", calls[0].Parameters["text"])

	rr, _ = f.do(t, http.MethodPost, "/connectors/team-slack/execute", "acme", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	f.slack.SetExecuteError(base.NewConnectorError("team-slack", "Execute", "not connected", base.ErrNotConnected))
	rr, _ = f.do(t, http.MethodPost, "/connectors/team-slack/execute", "acme", `{"action":"send_message"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSync(t *testing.T) {
	f := newFixture(t)
	f.docs.SetSyncRecords([]base.Record{
		{ID: "d1/a", Kind: base.RecordUpsert, Source: "docs"},
		{ID: "d1/b", Kind: base.RecordUpsert, Source: "docs"},
		{ID: "d1/c", Kind: base.RecordDelete, Source: "docs"},
	}, nil)

	rr, _ := f.do(t, http.MethodPost, "/connectors/docs/sync", "acme", `{"full":true,"drives":["Documents"],"run_id":"run-7"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Success bool              `json:"success"`
		Data    ingest.RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "run-7", body.Data.RunID)
	assert.Equal(t, 2, body.Data.Upserts)
	assert.Equal(t, 1, body.Data.Deletes)

	calls := f.docs.SyncCalls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Full)
	assert.Equal(t, []string{"Documents"}, calls[0].Scope)
	assert.Equal(t, "acme", calls[0].TenantID)

	assert.Len(t, f.sink.Records(), 3)
	assert.Equal(t, 2, f.sink.Batches())
}

func TestSyncFailureKeepsSummary(t *testing.T) {
	f := newFixture(t)
	f.docs.SetSyncRecords([]base.Record{{ID: "d1/a", Kind: base.RecordUpsert}}, errors.New("graph unavailable"))

	rr, _ := f.do(t, http.MethodPost, "/connectors/docs/sync", "acme", `{}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	var body struct {
		Success bool              `json:"success"`
		Error   string            `json:"error"`
		Data    ingest.RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "graph unavailable")
	assert.Equal(t, 1, body.Data.Upserts)
	assert.Equal(t, 1, body.Data.Errors)
	assert.NotEmpty(t, body.Data.RunID)
}

func TestSyncUnsupported(t *testing.T) {
	f := newFixture(t)
	rr, resp := f.do(t, http.MethodPost, "/connectors/team-slack/sync", "acme", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, resp.Error, "unsupported")
}

func TestUnknownRoutes(t *testing.T) {
	f := newFixture(t)

	rr, resp := f.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "route not found", resp.Error)
	assert.NotEmpty(t, rr.Header().Get(headerRequestID))

	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/connectors/docs/query"},
		{http.MethodPost, "/connectors/docs/health"},
		{http.MethodDelete, "/connectors/docs/sync"},
		{http.MethodPost, "/health"},
	} {
		rr, resp = f.do(t, tt.method, tt.path, "acme", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, "%s %s", tt.method, tt.path)
		assert.Equal(t, "method not allowed", resp.Error, "%s %s", tt.method, tt.path)
		assert.NotEmpty(t, resp.RequestID)
	}
}

func TestPrometheus(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/health", "", "")
	f.do(t, http.MethodGet, "/connectors/team-slack/health", "globex", "")

	rr, _ := f.do(t, http.MethodGet, "/prometheus", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	out := rr.Body.String()
	assert.Contains(t, out, `saasbridge_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, out, `saasbridge_http_requests_total{method="GET",route="/connectors/{name}/health",status="403"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/connectors/docs/query", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestListenAndServeStops(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, f.server.ListenAndServe(ctx, "127.0.0.1:0"))
}
