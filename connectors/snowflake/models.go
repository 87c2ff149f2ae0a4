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

package snowflake

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// statementRequest is the POST /api/v2/statements body.
type statementRequest struct {
	Statement string             `json:"statement"`
	Timeout   int                `json:"timeout,omitempty"`
	Database  string             `json:"database,omitempty"`
	Schema    string             `json:"schema,omitempty"`
	Warehouse string             `json:"warehouse,omitempty"`
	Role      string             `json:"role,omitempty"`
	Bindings  map[string]Binding `json:"bindings,omitempty"`
}

// Binding is a positional bind variable.
type Binding struct {
	Type  string  `json:"type"`
	Value *string `json:"value"`
}

// Column describes one result column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Scale    int    `json:"scale"`
	Nullable bool   `json:"nullable"`
}

type partitionInfo struct {
	RowCount         int `json:"rowCount"`
	UncompressedSize int `json:"uncompressedSize"`
}

type resultSetMetaData struct {
	NumRows       int             `json:"numRows"`
	Format        string          `json:"format"`
	RowType       []Column        `json:"rowType"`
	PartitionInfo []partitionInfo `json:"partitionInfo"`
}

// Stats reports DML row counts.
type Stats struct {
	NumRowsInserted         int64 `json:"numRowsInserted"`
	NumRowsUpdated          int64 `json:"numRowsUpdated"`
	NumRowsDeleted          int64 `json:"numRowsDeleted"`
	NumDuplicateRowsUpdated int64 `json:"numDuplicateRowsUpdated"`
}

// Affected is the total of inserted, updated and deleted rows.
func (s *Stats) Affected() int64 {
	if s == nil {
		return 0
	}
	return s.NumRowsInserted + s.NumRowsUpdated + s.NumRowsDeleted
}

// statementResponse covers both the 200 result and the 202 in-progress body.
type statementResponse struct {
	Code               string             `json:"code"`
	SQLState           string             `json:"sqlState"`
	Message            string             `json:"message"`
	StatementHandle    string             `json:"statementHandle"`
	StatementStatusURL string             `json:"statementStatusUrl"`
	CreatedOn          int64              `json:"createdOn"`
	ResultSetMetaData  *resultSetMetaData `json:"resultSetMetaData"`
	Data               [][]*string        `json:"data"`
	Stats              *Stats             `json:"stats"`
}

// APIError is a failed statement as reported by the SQL API.
type APIError struct {
	StatusCode      int    `json:"-"`
	Code            string `json:"code"`
	SQLState        string `json:"sqlState"`
	Message         string `json:"message"`
	StatementHandle string `json:"statementHandle"`
}

func (e *APIError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("snowflake %s (sqlstate %s): %s", e.Code, e.SQLState, e.Message)
	}
	return fmt.Sprintf("snowflake %s: %s", e.Code, e.Message)
}

// HTTPStatus maps compilation and execution errors to 400.
func (e *APIError) HTTPStatus() int {
	switch {
	case e.StatusCode == http.StatusUnprocessableEntity:
		return http.StatusBadRequest
	case e.StatusCode == 0:
		return http.StatusBadGateway
	}
	return e.StatusCode
}

func parseAPIError(status int, body string) *APIError {
	var e APIError
	if err := json.Unmarshal([]byte(body), &e); err != nil || (e.Code == "" && e.Message == "") {
		return nil
	}
	e.StatusCode = status
	return &e
}
