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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/sdk"
)

// QueryRequest is the body of POST /connectors/{name}/query.
type QueryRequest struct {
	Statement  string                 `json:"statement"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	TimeoutMS  int                    `json:"timeout_ms,omitempty"`
}

// ExecuteRequest is the body of POST /connectors/{name}/execute.
type ExecuteRequest struct {
	Action     string                 `json:"action"`
	Statement  string                 `json:"statement,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	TimeoutMS  int                    `json:"timeout_ms,omitempty"`
}

// SyncRequest is the body of POST /connectors/{name}/sync.
type SyncRequest struct {
	Full   bool     `json:"full"`
	Drives []string `json:"drives,omitempty"`
	RunID  string   `json:"run_id,omitempty"`
}

// ConnectorInfo is one entry of GET /connectors.
type ConnectorInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, r, map[string]interface{}{
		"status":     "ok",
		"connectors": s.registry.Count(),
		"time":       time.Now().UTC().Format(time.RFC3339),
	}, nil)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	types := s.registry.ListWithTypes()
	names := s.registry.GetConnectorsByTenant(r.Header.Get(headerTenantID))

	out := make([]ConnectorInfo, 0, len(names))
	for _, name := range names {
		out = append(out, ConnectorInfo{Name: name, Type: types[name]})
	}
	s.writeResult(w, r, out, nil)
}

func (s *Server) handleConnectorHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.registry.HealthCheckSingle(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeResult(w, r, nil, err)
		return
	}
	resp := base.NewToolResponse(status, nil)
	if !status.Healthy {
		resp.Success = false
		resp.Error = status.Error
		resp.StatusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Statement == "" {
		s.writeError(w, r, http.StatusBadRequest, "statement is required")
		return
	}
	conn, ok := s.connector(w, r)
	if !ok {
		return
	}

	result, err := conn.Query(r.Context(), &base.Query{
		Statement:  req.Statement,
		Parameters: req.Parameters,
		Limit:      req.Limit,
		Timeout:    time.Duration(req.TimeoutMS) * time.Millisecond,
	})
	s.writeResult(w, r, result, err)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Action == "" && req.Statement == "" {
		s.writeError(w, r, http.StatusBadRequest, "action or statement is required")
		return
	}
	conn, ok := s.connector(w, r)
	if !ok {
		return
	}

	result, err := conn.Execute(r.Context(), &base.Command{
		Action:     req.Action,
		Statement:  req.Statement,
		Parameters: req.Parameters,
		Timeout:    time.Duration(req.TimeoutMS) * time.Millisecond,
	})
	s.writeResult(w, r, result, err)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !s.decode(w, r, &req) {
		return
	}
	conn, ok := s.connector(w, r)
	if !ok {
		return
	}
	sc, ok := conn.(base.SyncConnector)
	if !ok {
		s.writeResult(w, r, nil, base.NewUnsupportedError(conn.Name(), "Sync", "sync"))
		return
	}

	summary, err := s.runner.Run(r.Context(), sc, base.SyncRequest{
		RunID:    req.RunID,
		TenantID: sdk.GetTenantID(r.Context()),
		Full:     req.Full,
		Scope:    req.Drives,
	})
	if err != nil {
		resp := base.NewToolResponse(nil, err)
		resp.Data = summary
		s.writeJSON(w, r, resp)
		return
	}
	s.writeResult(w, r, summary, nil)
}

func (s *Server) connector(w http.ResponseWriter, r *http.Request) (base.Connector, bool) {
	conn, err := s.registry.Get(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, err.Error())
		return nil, false
	}
	return conn, true
}

// decode reads a JSON body. An empty body leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}
