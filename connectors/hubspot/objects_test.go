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
	"errors"
	"reflect"
	"testing"

	"saasbridge/platform/connectors/base"
)

func TestObjects_HaveDefaultProperties(t *testing.T) {
	if len(Objects) != 12 {
		t.Fatalf("expected 12 object types, got %d", len(Objects))
	}
	for name, obj := range Objects {
		if obj.Name != name {
			t.Errorf("object %s has mismatched name %s", name, obj.Name)
		}
		if len(obj.DefaultProperties) == 0 {
			t.Errorf("object %s has no default properties", name)
		}
	}
}

func TestParseStatement(t *testing.T) {
	tests := []struct {
		statement  string
		verbs      map[string]bool
		wantVerb   string
		wantObject string
		wantErr    error
	}{
		{"list contacts", queryVerbs, "list", "contacts", nil},
		{"LIST Contacts", queryVerbs, "list", "contacts", nil},
		{"get deal", queryVerbs, "get", "deals", nil},
		{"search_line_items", queryVerbs, "search", "line_items", nil},
		{"properties tickets", queryVerbs, "properties", "tickets", nil},
		{"create company", executeVerbs, "create", "companies", nil},
		{"associate notes", executeVerbs, "associate", "notes", nil},
		{"create contacts", queryVerbs, "", "", base.ErrUnsupportedOperation},
		{"list", queryVerbs, "", "", base.ErrUnsupportedOperation},
		{"drop contacts", executeVerbs, "", "", base.ErrUnsupportedOperation},
		{"list widgets", queryVerbs, "", "", base.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.statement, func(t *testing.T) {
			verb, obj, err := ParseStatement(tt.statement, tt.verbs)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if verb != tt.wantVerb || obj.Name != tt.wantObject {
				t.Errorf("got %s %s, want %s %s", verb, obj.Name, tt.wantVerb, tt.wantObject)
			}
		})
	}
}

func TestBuildFilters(t *testing.T) {
	filters, err := BuildFilters([]map[string]interface{}{
		{"property": "email", "value": "jane@acme.test"},
		{"property": "lifecyclestage", "operator": "in", "value": []interface{}{"lead", "customer"}},
		{"property": "amount", "operator": "BETWEEN", "value": 10, "high_value": 20},
	})
	if err != nil {
		t.Fatalf("BuildFilters() error = %v", err)
	}
	want := []Filter{
		{PropertyName: "email", Operator: "EQ", Value: "jane@acme.test"},
		{PropertyName: "lifecyclestage", Operator: "IN", Values: []string{"lead", "customer"}},
		{PropertyName: "amount", Operator: "BETWEEN", Value: 10, HighValue: 20},
	}
	if !reflect.DeepEqual(filters, want) {
		t.Errorf("BuildFilters() = %#v, want %#v", filters, want)
	}

	bad := [][]map[string]interface{}{
		{{"value": "x"}},
		{{"property": "email", "operator": "LIKE", "value": "x"}},
		{{"property": "email", "operator": "IN", "value": "x"}},
	}
	for _, b := range bad {
		if _, err := BuildFilters(b); !errors.Is(err, base.ErrInvalidParameter) {
			t.Errorf("BuildFilters(%v) error = %v, want invalid parameter", b, err)
		}
	}
}

func TestBuildSorts(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want []Sort
	}{
		{"nil", nil, nil},
		{"csv", "-createdate, email", []Sort{{"createdate", "DESCENDING"}, {"email", "ASCENDING"}}},
		{"list", []interface{}{"name", map[string]interface{}{"property": "amount", "direction": "desc"}}, []Sort{{"name", "ASCENDING"}, {"amount", "DESCENDING"}}},
		{"skips empty", []string{"", "-amount"}, []Sort{{"amount", "DESCENDING"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildSorts(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildSorts() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestObjectRow(t *testing.T) {
	row := Object{ID: "51", Properties: map[string]interface{}{"email": "a@b.test"}, CreatedAt: "2026-01-01T00:00:00Z"}.Row()
	if row["id"] != "51" || row["email"] != "a@b.test" || row["archived"] != false {
		t.Errorf("unexpected row %#v", row)
	}
}
