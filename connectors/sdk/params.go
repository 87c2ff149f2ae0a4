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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"saasbridge/platform/connectors/base"
)

// Params wraps Query.Parameters / Command.Parameters with typed accessors.
// Values decoded from JSON arrive as float64, []interface{} and
// map[string]interface{}; the accessors accept those as well as native Go types.
type Params map[string]interface{}

// String returns the parameter as a trimmed string, or "" when absent.
func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// StringOr returns the parameter or def when it is empty.
func (p Params) StringOr(key, def string) string {
	if s := p.String(key); s != "" {
		return s
	}
	return def
}

// Require returns the parameter or an error naming it.
func (p Params) Require(key string) (string, error) {
	if s := p.String(key); s != "" {
		return s, nil
	}
	return "", &MissingParamError{Key: key}
}

// MissingParamError reports an absent required parameter. It matches
// base.ErrInvalidParameter.
type MissingParamError struct {
	Key string
}

func (e *MissingParamError) Error() string { return fmt.Sprintf("parameter '%s' is required", e.Key) }
func (e *MissingParamError) Unwrap() error { return base.ErrInvalidParameter }

// Int returns the parameter as an int, or def when absent or malformed.
func (p Params) Int(key string, def int) int {
	if n, ok := AsInt(p[key]); ok {
		return n
	}
	return def
}

// Bool returns the parameter as a bool, or def when absent or malformed.
func (p Params) Bool(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Time parses an RFC 3339 timestamp or a date (2006-01-02).
func (p Params) Time(key string) (time.Time, bool) {
	s := p.String(key)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Strings returns a list parameter given as a list or comma-separated string.
func (p Params) Strings(key string) []string {
	return AsStringSlice(p[key])
}

// Maps returns a list-of-objects parameter.
func (p Params) Maps(key string) []map[string]interface{} {
	switch v := p[key].(type) {
	case []map[string]interface{}:
		return v
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// Map returns an object parameter.
func (p Params) Map(key string) map[string]interface{} {
	if m, ok := p[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}

// Decode converts the parameter into out through a JSON round-trip.
func (p Params) Decode(key string, out interface{}) error {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("parameter '%s': %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parameter '%s': %w", key, err)
	}
	return nil
}

// AsInt converts JSON and Go numeric values, and numeric strings, to int.
func AsInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

// AsFloat converts JSON and Go numeric values to float64.
func AsFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// AsStringSlice converts []string, []interface{} or a comma-separated string.
func AsStringSlice(v interface{}) []string {
	var out []string
	switch s := v.(type) {
	case []string:
		for _, item := range s {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	case []interface{}:
		for _, item := range s {
			if str := strings.TrimSpace(fmt.Sprint(item)); str != "" && item != nil {
				out = append(out, str)
			}
		}
	case string:
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
