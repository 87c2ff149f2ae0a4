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

package hubspot

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"saasbridge/platform/connectors/base"
)

// Object is a CRM object as returned by the v3 API.
type Object struct {
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties"`
	CreatedAt  string                 `json:"createdAt"`
	UpdatedAt  string                 `json:"updatedAt"`
	Archived   bool                   `json:"archived"`
}

// Row flattens the object's properties next to its id and timestamps.
func (o Object) Row() map[string]interface{} {
	row := make(map[string]interface{}, len(o.Properties)+4)
	for k, v := range o.Properties {
		row[k] = v
	}
	row["id"] = o.ID
	row["createdAt"] = o.CreatedAt
	row["updatedAt"] = o.UpdatedAt
	row["archived"] = o.Archived
	return row
}

type paging struct {
	Next *struct {
		After string `json:"after"`
		Link  string `json:"link"`
	} `json:"next"`
}

type listResponse struct {
	Total   int      `json:"total"`
	Results []Object `json:"results"`
	Paging  *paging  `json:"paging"`
}

func (r *listResponse) after() string {
	if r.Paging == nil || r.Paging.Next == nil {
		return ""
	}
	return r.Paging.Next.After
}

// Property is one entry of an object's property schema.
type Property struct {
	Name           string `json:"name"`
	Label          string `json:"label"`
	Type           string `json:"type"`
	FieldType      string `json:"fieldType"`
	GroupName      string `json:"groupName"`
	Description    string `json:"description,omitempty"`
	Calculated     bool   `json:"calculated"`
	HubspotDefined bool   `json:"hubspotDefined"`
}

type propertiesResponse struct {
	Results []Property `json:"results"`
}

// Filter is one search condition.
type Filter struct {
	PropertyName string      `json:"propertyName"`
	Operator     string      `json:"operator"`
	Value        interface{} `json:"value,omitempty"`
	HighValue    interface{} `json:"highValue,omitempty"`
	Values       []string    `json:"values,omitempty"`
}

type filterGroup struct {
	Filters []Filter `json:"filters"`
}

// Sort orders search results.
type Sort struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups,omitempty"`
	Query        string        `json:"query,omitempty"`
	Sorts        []Sort        `json:"sorts,omitempty"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	After        string        `json:"after,omitempty"`
}

var operators = map[string]bool{
	"EQ": true, "NEQ": true, "LT": true, "LTE": true, "GT": true, "GTE": true,
	"BETWEEN": true, "IN": true, "NOT_IN": true, "HAS_PROPERTY": true,
	"NOT_HAS_PROPERTY": true, "CONTAINS_TOKEN": true, "NOT_CONTAINS_TOKEN": true,
}

// BuildFilters converts [{property, operator, value}] parameters into search
// filters. The operator defaults to EQ.
func BuildFilters(raw []map[string]interface{}) ([]Filter, error) {
	filters := make([]Filter, 0, len(raw))
	for i, m := range raw {
		prop, _ := m["property"].(string)
		if prop == "" {
			return nil, fmt.Errorf("filter %d has no property: %w", i, base.ErrInvalidParameter)
		}
		op := "EQ"
		if s, ok := m["operator"].(string); ok && s != "" {
			op = strings.ToUpper(s)
		}
		if !operators[op] {
			return nil, fmt.Errorf("filter %d: unknown operator %q: %w", i, op, base.ErrInvalidParameter)
		}
		f := Filter{PropertyName: prop, Operator: op, HighValue: m["high_value"]}
		switch v := m["value"].(type) {
		case []interface{}:
			for _, item := range v {
				f.Values = append(f.Values, fmt.Sprint(item))
			}
		case []string:
			f.Values = v
		default:
			f.Value = v
		}
		if (op == "IN" || op == "NOT_IN") && len(f.Values) == 0 {
			return nil, fmt.Errorf("filter %d: %s needs a list value: %w", i, op, base.ErrInvalidParameter)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// BuildSorts accepts "property", "-property" or {property, direction}.
func BuildSorts(raw interface{}) []Sort {
	var items []interface{}
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		for _, s := range strings.Split(v, ",") {
			items = append(items, strings.TrimSpace(s))
		}
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case []interface{}:
		items = v
	}

	var sorts []Sort
	for _, item := range items {
		switch s := item.(type) {
		case string:
			if s == "" {
				continue
			}
			if strings.HasPrefix(s, "-") {
				sorts = append(sorts, Sort{PropertyName: s[1:], Direction: "DESCENDING"})
			} else {
				sorts = append(sorts, Sort{PropertyName: s, Direction: "ASCENDING"})
			}
		case map[string]interface{}:
			prop, _ := s["property"].(string)
			dir, _ := s["direction"].(string)
			dir = strings.ToUpper(dir)
			if dir == "DESC" || dir == "DESCENDING" {
				dir = "DESCENDING"
			} else {
				dir = "ASCENDING"
			}
			if prop != "" {
				sorts = append(sorts, Sort{PropertyName: prop, Direction: dir})
			}
		}
	}
	return sorts
}

// APIError is a HubSpot error body.
type APIError struct {
	StatusCode    int    `json:"-"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	Category      string `json:"category"`
	CorrelationID string `json:"correlationId"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hubspot %s: %s (correlation %s)", e.Category, e.Message, e.CorrelationID)
}

// HTTPStatus surfaces the vendor status to the gateway.
func (e *APIError) HTTPStatus() int {
	if e.StatusCode == 0 {
		return http.StatusBadGateway
	}
	return e.StatusCode
}

func parseAPIError(status int, body string) *APIError {
	var e APIError
	if err := json.Unmarshal([]byte(body), &e); err != nil || e.Message == "" {
		return nil
	}
	e.StatusCode = status
	return &e
}
