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
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/sdk"
)

// DecodeValue converts one JSON cell into a Go value for its column type.
// Cells that do not parse are returned as strings.
func DecodeValue(col Column, raw *string) interface{} {
	if raw == nil {
		return nil
	}
	s := *raw
	switch strings.ToLower(col.Type) {
	case "fixed":
		if col.Scale == 0 {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
			return s
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "real":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return s
}

// DecodeRows maps result data onto column names.
func DecodeRows(cols []Column, data [][]*string) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(data))
	for _, rec := range data {
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if i < len(rec) {
				row[col.Name] = DecodeValue(col, rec[i])
			} else {
				row[col.Name] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// BuildBindings turns the positional parameters "1".."n" into SQL API
// bindings. Any other parameter key is an error.
func BuildBindings(params map[string]interface{}) (map[string]Binding, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out := make(map[string]Binding, len(params))
	for key, v := range params {
		pos, err := strconv.Atoi(key)
		if err != nil || pos < 1 || pos > len(params) {
			return nil, &sdk.MissingParamError{Key: fmt.Sprintf("%s (bind positions are 1..%d)", key, len(params))}
		}
		out[key] = bindingFor(v)
	}
	return out, nil
}

func bindingFor(v interface{}) Binding {
	str := func(s string) *string { return &s }
	switch x := v.(type) {
	case nil:
		return Binding{Type: "TEXT"}
	case bool:
		return Binding{Type: "BOOLEAN", Value: str(strconv.FormatBool(x))}
	case int:
		return Binding{Type: "FIXED", Value: str(strconv.Itoa(x))}
	case int64:
		return Binding{Type: "FIXED", Value: str(strconv.FormatInt(x, 10))}
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return Binding{Type: "FIXED", Value: str(strconv.FormatInt(int64(x), 10))}
		}
		return Binding{Type: "REAL", Value: str(strconv.FormatFloat(x, 'f', -1, 64))}
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return Binding{Type: "FIXED", Value: str(strconv.FormatInt(n, 10))}
		}
		if f, err := x.Float64(); err == nil {
			return bindingFor(f)
		}
		return Binding{Type: "TEXT", Value: str(x.String())}
	case time.Time:
		return Binding{Type: "TIMESTAMP_LTZ", Value: str(strconv.FormatInt(x.UnixNano(), 10))}
	case string:
		return Binding{Type: "TEXT", Value: str(x)}
	}
	return Binding{Type: "TEXT", Value: str(fmt.Sprint(v))}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]{0,254}$`)

// ValidIdentifier reports whether s is an unquoted Snowflake identifier.
func ValidIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// namedStatement expands list_databases, list_schemas and list_tables into
// SHOW statements. ok is false for raw SQL.
func namedStatement(statement string, p sdk.Params) (sql string, ok bool, err error) {
	ident := func(key string) (string, error) {
		v := p.String(key)
		if v == "" {
			return "", nil
		}
		if !ValidIdentifier(v) {
			return "", fmt.Errorf("invalid %s identifier %q: %w", key, v, base.ErrInvalidParameter)
		}
		return strings.ToUpper(v), nil
	}

	switch statement {
	case "list_databases":
		return "SHOW DATABASES", true, nil
	case "list_schemas":
		db, err := ident("database")
		if err != nil {
			return "", true, err
		}
		if db == "" {
			return "SHOW SCHEMAS", true, nil
		}
		return "SHOW SCHEMAS IN DATABASE " + db, true, nil
	case "list_tables":
		db, err := ident("database")
		if err != nil {
			return "", true, err
		}
		schema, err := ident("schema")
		if err != nil {
			return "", true, err
		}
		switch {
		case db != "" && schema != "":
			return "SHOW TABLES IN SCHEMA " + db + "." + schema, true, nil
		case db != "":
			return "SHOW TABLES IN DATABASE " + db, true, nil
		case schema != "":
			return "SHOW TABLES IN SCHEMA " + schema, true, nil
		}
		return "SHOW TABLES", true, nil
	}
	return "", false, nil
}
