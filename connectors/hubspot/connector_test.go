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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/sdk"
)

// fakeCRM is a tiny HubSpot CRM with three pages of contacts.
type fakeCRM struct {
	t        *testing.T
	h        *sdk.TestHarness
	mu       sync.Mutex
	token    string
	refresh  int
	searches []searchRequest
	writes   []string
	bodies   []map[string]interface{}
	lastList map[string]string
}

func newFakeCRM(t *testing.T, token string) *fakeCRM {
	f := &fakeCRM{t: t, h: sdk.NewTestHarness(t), token: token}
	f.h.Handle("/oauth/v1/token", f.tokenEndpoint)
	f.h.Handle("/crm/v3/objects/contacts", f.auth(f.contacts))
	f.h.Handle("/crm/v3/objects/contacts/search", f.auth(f.search))
	f.h.Handle("/crm/v3/objects/contacts/", f.auth(f.contact))
	f.h.Handle("/crm/v3/objects/deals", f.auth(f.createDeal))
	f.h.Handle("/crm/v3/properties/deals", f.auth(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, propertiesResponse{Results: []Property{
			{Name: "dealname", Label: "Deal Name", Type: "string", FieldType: "text"},
			{Name: "amount", Label: "Amount", Type: "number", FieldType: "number"},
		}})
	}))
	f.h.Handle("/crm/v4/objects/", f.auth(func(w http.ResponseWriter, r *http.Request) {
		f.record(r, nil)
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "COMPLETE"})
	}))
	return f
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeCRM) record(r *http.Request, body map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, r.Method+" "+r.URL.Path)
	f.bodies = append(f.bodies, body)
}

func (f *fakeCRM) tokenEndpoint(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "refresh-1" ||
		r.Form.Get("client_id") != "client-1" || r.Form.Get("client_secret") != "secret-1" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	f.mu.Lock()
	f.refresh++
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  f.token,
		"token_type":    "bearer",
		"expires_in":    1800,
		"refresh_token": "refresh-1",
	})
}

func (f *fakeCRM) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			writeJSON(w, http.StatusUnauthorized, APIError{
				Status:        "error",
				Message:       "Authentication credentials not found.",
				Category:      "INVALID_AUTHENTICATION",
				CorrelationID: "c-401",
			})
			return
		}
		next(w, r)
	}
}

func contactPage(after string) listResponse {
	pages := map[string]struct {
		ids  []string
		next string
	}{
		"":  {[]string{"1", "2"}, "2"},
		"2": {[]string{"3", "4"}, "4"},
		"4": {[]string{"5"}, ""},
	}
	page := pages[after]
	resp := listResponse{}
	for _, id := range page.ids {
		resp.Results = append(resp.Results, Object{ID: id, Properties: map[string]interface{}{"email": "c" + id + "@acme.test"}})
	}
	if page.next != "" {
		resp.Paging = &paging{}
		resp.Paging.Next = &struct {
			After string `json:"after"`
			Link  string `json:"link"`
		}{After: page.next}
	}
	return resp
}

func (f *fakeCRM) contacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	f.lastList = map[string]string{"limit": q.Get("limit"), "properties": q.Get("properties"), "after": q.Get("after")}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, contactPage(q.Get("after")))
}

func (f *fakeCRM) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	f.mu.Lock()
	f.searches = append(f.searches, req)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, listResponse{Total: 1, Results: []Object{{ID: "7", Properties: map[string]interface{}{"email": "jane@acme.test"}}}})
}

func (f *fakeCRM) contact(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/crm/v3/objects/contacts/")
	switch r.Method {
	case http.MethodGet:
		if id == "404" {
			writeJSON(w, http.StatusNotFound, APIError{Status: "error", Message: "Object not found.", Category: "OBJECT_NOT_FOUND", CorrelationID: "c-404"})
			return
		}
		writeJSON(w, http.StatusOK, Object{ID: id, Properties: map[string]interface{}{"email": r.URL.Query().Get("idProperty") + ":" + id}})
	case http.MethodPatch:
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.record(r, body)
		writeJSON(w, http.StatusOK, Object{ID: id, Properties: body["properties"].(map[string]interface{})})
	case http.MethodDelete:
		f.record(r, nil)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeCRM) createDeal(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.record(r, body)
	writeJSON(w, http.StatusCreated, Object{ID: "901", Properties: body["properties"].(map[string]interface{})})
}

func (f *fakeCRM) snapshot() (int, []string, []map[string]interface{}, []searchRequest, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh, append([]string(nil), f.writes...), append([]map[string]interface{}(nil), f.bodies...),
		append([]searchRequest(nil), f.searches...), f.lastList
}

func connectCRM(t *testing.T) (*HubSpotConnector, *fakeCRM) {
	t.Helper()
	f := newFakeCRM(t, "pat-na1-test")
	cfg := f.h.NewConfig("crm", "hubspot")
	cfg.Credentials["access_token"] = "pat-na1-test"
	cfg.Options["page_size"] = 2

	c := NewHubSpotConnector()
	c.SetRateLimiter(sdk.NewRateLimiter(1000, 1000))
	c.SetRetryConfig(sdk.FastRetry(1))
	require.NoError(t, c.Connect(f.h.Context(), cfg))
	return c, f
}

func TestHubSpotConnector_ConnectPrivateApp(t *testing.T) {
	c, f := connectCRM(t)
	assert.True(t, c.IsConnected())
	status, err := c.HealthCheck(f.h.Context())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}

func TestHubSpotConnector_ConnectRefreshToken(t *testing.T) {
	f := newFakeCRM(t, "oauth-access")
	cfg := f.h.NewConfig("crm", "hubspot")
	cfg.Credentials = map[string]string{"client_id": "client-1", "client_secret": "secret-1", "refresh_token": "refresh-1"}
	cfg.Options["token_url"] = f.h.URL() + "/oauth/v1/token"

	c := NewHubSpotConnector()
	require.NoError(t, c.Connect(f.h.Context(), cfg))
	_, err := c.Query(f.h.Context(), &base.Query{Statement: "get contacts", Parameters: map[string]interface{}{"id": "1"}})
	require.NoError(t, err)

	refreshes, _, _, _, _ := f.snapshot()
	assert.Equal(t, 1, refreshes, "access token must be reused until it expires")
}

func TestHubSpotConnector_ConnectErrors(t *testing.T) {
	f := newFakeCRM(t, "pat-na1-test")

	cfg := f.h.NewConfig("crm", "hubspot")
	cfg.Credentials = map[string]string{"refresh_token": "refresh-1"}
	err := NewHubSpotConnector().Connect(f.h.Context(), cfg)
	assert.ErrorIs(t, err, base.ErrInvalidParameter)

	cfg = f.h.NewConfig("crm", "hubspot")
	cfg.Credentials["access_token"] = "wrong"
	c := NewHubSpotConnector()
	c.SetRetryConfig(sdk.FastRetry(0))
	err = c.Connect(f.h.Context(), cfg)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_AUTHENTICATION", apiErr.Category)
	assert.Equal(t, http.StatusUnauthorized, base.StatusFromError(err))

	cfg = f.h.NewConfig("crm", "hubspot")
	cfg.Credentials = map[string]string{"client_id": "client-1", "client_secret": "secret-1", "refresh_token": "refresh-1"}
	cfg.Options = map[string]interface{}{"token_url": "https://tokens.example.com/oauth"}
	cfg.ConnectionURL = ""
	err = NewHubSpotConnector().Connect(f.h.Context(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_url")
}

func TestHubSpotConnector_ListSinglePage(t *testing.T) {
	c, f := connectCRM(t)
	res, err := c.Query(f.h.Context(), &base.Query{Statement: "list contacts"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, "2", res.Metadata["next_after"])
	assert.Equal(t, "c1@acme.test", res.Rows[0]["email"])

	_, _, _, _, last := f.snapshot()
	assert.Equal(t, "2", last["limit"])
	assert.Equal(t, strings.Join(Objects["contacts"].DefaultProperties, ","), last["properties"])
}

func TestHubSpotConnector_ListAllPages(t *testing.T) {
	c, f := connectCRM(t)

	res, err := c.Query(f.h.Context(), &base.Query{Statement: "list contacts", Parameters: map[string]interface{}{"all": true, "properties": "email,phone"}})
	require.NoError(t, err)
	assert.Equal(t, 5, res.RowCount)
	assert.NotContains(t, res.Metadata, "next_after")
	_, _, _, _, last := f.snapshot()
	assert.Equal(t, "email,phone", last["properties"])

	res, err = c.Query(f.h.Context(), &base.Query{Statement: "list contacts", Limit: 3, Parameters: map[string]interface{}{"all": true}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowCount)
	assert.Equal(t, "4", res.Metadata["next_after"])
}

func TestHubSpotConnector_Get(t *testing.T) {
	c, f := connectCRM(t)
	res, err := c.Query(f.h.Context(), &base.Query{Statement: "get contact", Parameters: map[string]interface{}{"id": "jane@acme.test", "id_property": "email"}})
	require.NoError(t, err)
	assert.Equal(t, "email:jane@acme.test", res.Rows[0]["email"])

	_, err = c.Query(f.h.Context(), &base.Query{Statement: "get contacts", Parameters: map[string]interface{}{"id": "404"}})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, base.StatusFromError(err))

	_, err = c.Query(f.h.Context(), &base.Query{Statement: "get contacts"})
	assert.ErrorIs(t, err, base.ErrInvalidParameter)
}

func TestHubSpotConnector_Search(t *testing.T) {
	c, f := connectCRM(t)
	res, err := c.Query(f.h.Context(), &base.Query{
		Statement: "search contacts",
		Limit:     10,
		Parameters: map[string]interface{}{
			"filters": []interface{}{map[string]interface{}{"property": "email", "operator": "CONTAINS_TOKEN", "value": "*@acme.test"}},
			"sorts":   "-createdate",
			"query":   "jane",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, 1, res.Metadata["total"])

	_, _, _, searches, _ := f.snapshot()
	require.Len(t, searches, 1)
	req := searches[0]
	assert.Equal(t, "jane", req.Query)
	assert.Equal(t, 10, req.Limit)
	require.Len(t, req.FilterGroups, 1)
	assert.Equal(t, "CONTAINS_TOKEN", req.FilterGroups[0].Filters[0].Operator)
	assert.Equal(t, []Sort{{PropertyName: "createdate", Direction: "DESCENDING"}}, req.Sorts)

	_, err = c.Query(f.h.Context(), &base.Query{Statement: "search contacts", Parameters: map[string]interface{}{
		"filters": []interface{}{map[string]interface{}{"property": "email", "operator": "SOUNDS_LIKE"}},
	}})
	assert.ErrorIs(t, err, base.ErrInvalidParameter)
}

func TestHubSpotConnector_Properties(t *testing.T) {
	c, f := connectCRM(t)
	res, err := c.Query(f.h.Context(), &base.Query{Statement: "properties deals"})
	require.NoError(t, err)
	require.Equal(t, 2, res.RowCount)
	assert.Equal(t, "dealname", res.Rows[0]["name"])
}

func TestHubSpotConnector_UnknownStatements(t *testing.T) {
	c, f := connectCRM(t)
	_, err := c.Query(f.h.Context(), &base.Query{Statement: "list widgets"})
	assert.ErrorIs(t, err, base.ErrInvalidParameter)
	_, err = c.Query(f.h.Context(), &base.Query{Statement: "merge contacts"})
	assert.ErrorIs(t, err, base.ErrUnsupportedOperation)
	_, err = c.Execute(f.h.Context(), &base.Command{Action: "list contacts"})
	assert.ErrorIs(t, err, base.ErrUnsupportedOperation)
}

func TestHubSpotConnector_Writes(t *testing.T) {
	c, f := connectCRM(t)

	res, err := c.Execute(f.h.Context(), &base.Command{Action: "create deal", Parameters: map[string]interface{}{
		"properties": map[string]interface{}{"dealname": "Renewal", "amount": "1200"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "901", res.Metadata["id"])
	assert.Equal(t, "Renewal", res.Metadata["dealname"])

	_, err = c.Execute(f.h.Context(), &base.Command{Action: "update contacts", Parameters: map[string]interface{}{
		"id": "7", "properties": map[string]interface{}{"phone": "555"},
	}})
	require.NoError(t, err)

	_, err = c.Execute(f.h.Context(), &base.Command{Action: "archive contacts", Parameters: map[string]interface{}{"id": "7"}})
	require.NoError(t, err)

	res, err = c.Execute(f.h.Context(), &base.Command{Action: "associate contacts", Parameters: map[string]interface{}{
		"id": "7", "to_object": "company", "to_id": "88",
	}})
	require.NoError(t, err)
	assert.Equal(t, "companies", res.Metadata["to_object"])

	_, writes, bodies, _, _ := f.snapshot()
	assert.Equal(t, []string{
		"POST /crm/v3/objects/deals",
		"PATCH /crm/v3/objects/contacts/7",
		"DELETE /crm/v3/objects/contacts/7",
		"PUT /crm/v4/objects/contacts/7/associations/default/companies/88",
	}, writes)
	assert.Equal(t, map[string]interface{}{"phone": "555"}, bodies[1]["properties"])

	for _, bad := range []*base.Command{
		{Action: "create deals"},
		{Action: "update contacts", Parameters: map[string]interface{}{"properties": map[string]interface{}{"a": 1}}},
		{Action: "associate contacts", Parameters: map[string]interface{}{"id": "7", "to_object": "widgets", "to_id": "1"}},
	} {
		_, err := c.Execute(f.h.Context(), bad)
		assert.ErrorIs(t, err, base.ErrInvalidParameter, fmt.Sprint(bad.Parameters))
	}
}
