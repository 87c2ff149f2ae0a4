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
	"fmt"
	"sort"
	"strings"

	"saasbridge/platform/connectors/base"
)

// ObjectType describes one CRM object type.
type ObjectType struct {
	Name              string
	DefaultProperties []string
}

// Objects lists the supported object types by API name.
var Objects = map[string]ObjectType{
	"contacts":   {"contacts", []string{"email", "firstname", "lastname", "phone", "company", "jobtitle", "lifecyclestage", "hubspot_owner_id"}},
	"companies":  {"companies", []string{"name", "domain", "industry", "city", "country", "numberofemployees", "annualrevenue", "hubspot_owner_id"}},
	"deals":      {"deals", []string{"dealname", "amount", "dealstage", "pipeline", "closedate", "hubspot_owner_id"}},
	"tickets":    {"tickets", []string{"subject", "content", "hs_pipeline", "hs_pipeline_stage", "hs_ticket_priority", "hubspot_owner_id"}},
	"products":   {"products", []string{"name", "description", "price", "hs_sku", "hs_cost_of_goods_sold"}},
	"line_items": {"line_items", []string{"name", "quantity", "price", "amount", "hs_product_id"}},
	"quotes":     {"quotes", []string{"hs_title", "hs_status", "hs_expiration_date", "hs_quote_amount"}},
	"calls":      {"calls", []string{"hs_call_title", "hs_call_body", "hs_call_direction", "hs_call_duration", "hs_timestamp"}},
	"emails":     {"emails", []string{"hs_email_subject", "hs_email_text", "hs_email_direction", "hs_email_status", "hs_timestamp"}},
	"meetings":   {"meetings", []string{"hs_meeting_title", "hs_meeting_body", "hs_meeting_start_time", "hs_meeting_end_time", "hs_meeting_outcome"}},
	"notes":      {"notes", []string{"hs_note_body", "hs_timestamp", "hubspot_owner_id"}},
	"tasks":      {"tasks", []string{"hs_task_subject", "hs_task_body", "hs_task_status", "hs_task_priority", "hs_timestamp"}},
}

// objectAliases maps singular names to their object type.
var objectAliases = map[string]string{
	"contact": "contacts", "company": "companies", "deal": "deals", "ticket": "tickets",
	"product": "products", "line_item": "line_items", "quote": "quotes", "call": "calls",
	"email": "emails", "meeting": "meetings", "note": "notes", "task": "tasks",
}

// Verbs
const (
	VerbList       = "list"
	VerbGet        = "get"
	VerbSearch     = "search"
	VerbProperties = "properties"
	VerbCreate     = "create"
	VerbUpdate     = "update"
	VerbArchive    = "archive"
	VerbAssociate  = "associate"
)

var (
	queryVerbs   = map[string]bool{VerbList: true, VerbGet: true, VerbSearch: true, VerbProperties: true}
	executeVerbs = map[string]bool{VerbCreate: true, VerbUpdate: true, VerbArchive: true, VerbAssociate: true}
)

// ObjectNames returns the supported object type names, sorted.
func ObjectNames() []string {
	names := make([]string, 0, len(Objects))
	for name := range Objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupObject resolves a plural or singular object name.
func LookupObject(name string) (ObjectType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := objectAliases[name]; ok {
		name = alias
	}
	obj, ok := Objects[name]
	return obj, ok
}

// ParseStatement splits "<verb> <object>" (or "<verb>_<object>") and checks
// both halves. Unknown verbs return base.ErrUnsupportedOperation; unknown
// objects return base.ErrInvalidParameter.
func ParseStatement(statement string, verbs map[string]bool) (string, ObjectType, error) {
	s := strings.TrimSpace(statement)
	verb, object, found := strings.Cut(s, " ")
	if !found {
		verb, object, found = strings.Cut(s, "_")
	}
	verb = strings.ToLower(verb)
	if !found || !verbs[verb] {
		return "", ObjectType{}, base.ErrUnsupportedOperation
	}
	obj, ok := LookupObject(object)
	if !ok {
		return "", ObjectType{}, fmt.Errorf("unknown object type %q (supported: %s): %w",
			strings.TrimSpace(object), strings.Join(ObjectNames(), ", "), base.ErrInvalidParameter)
	}
	return verb, obj, nil
}
