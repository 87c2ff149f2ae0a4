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
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/sdk"
)

const (
	DefaultAPIURL   = "https://api.hubapi.com"
	DefaultTokenURL = "https://api.hubapi.com/oauth/v1/token"

	defaultPageSize = 100
	maxPageSize     = 100
	maxPages        = 50
)

// HubSpotConnector implements base.Connector over the CRM v3 APIs.
type HubSpotConnector struct {
	*sdk.BaseConnector
	client   *sdk.RESTClient
	pageSize int
}

// NewHubSpotConnector creates a new HubSpot connector instance.
func NewHubSpotConnector() *HubSpotConnector {
	c := &HubSpotConnector{BaseConnector: sdk.NewBaseConnector("hubspot")}
	c.SetValidator(sdk.NewDefaultConfigValidator(
		[]string{"access_token|refresh_token"},
		map[string]interface{}{"page_size": defaultPageSize},
	))
	c.SetRateLimiter(sdk.NewRateLimiterWithConfig(sdk.HubSpotRateLimit))
	return c
}

// Connect sets up authentication and verifies it with a one-record read.
func (c *HubSpotConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	if err := c.Configure(config); err != nil {
		return err
	}

	ctx, cancel := c.WithTimeout(ctx, 0)
	defer cancel()

	baseURL, err := c.ResolveBaseURL(DefaultAPIURL, base.HubSpotHostSuffixes)
	if err != nil {
		return err
	}
	httpClient := sdk.NewHTTPClient(c.GetTimeout())

	auth, err := c.buildAuth(httpClient)
	if err != nil {
		return err
	}
	c.SetAuthProvider(auth)

	c.client, err = sdk.NewRESTClient(sdk.RESTClientConfig{
		BaseURL:       baseURL,
		Auth:          auth,
		Limiter:       c.GetRateLimiter(),
		Retry:         c.GetRetryConfig(),
		HTTPClient:    httpClient,
		OnRateLimited: func(time.Duration) { c.GetMetrics().RecordRateLimited() },
	})
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid API URL", err)
	}

	c.pageSize = c.GetIntOption("page_size", defaultPageSize)
	if c.pageSize <= 0 || c.pageSize > maxPageSize {
		c.pageSize = maxPageSize
	}

	if err := c.client.Get(ctx, "/crm/v3/objects/contacts", url.Values{"limit": {"1"}}, nil); err != nil {
		return base.NewConnectorError(config.Name, "Connect", "credential check failed", vendorError(err))
	}

	c.Logger().Info(config.TenantID, "", "hubspot connected", map[string]interface{}{"auth": auth.Type()})
	c.MarkConnected()
	return nil
}

func (c *HubSpotConnector) buildAuth(httpClient *http.Client) (sdk.AuthProvider, error) {
	if token := c.GetCredential("access_token"); token != "" {
		return sdk.NewBearerTokenAuth(token, time.Time{}), nil
	}

	for _, key := range []string{"client_id", "client_secret", "refresh_token"} {
		if c.GetCredential(key) == "" {
			return nil, base.NewConnectorError(c.Name(), "Connect", "oauth refresh requires "+key, base.ErrInvalidParameter)
		}
	}
	tokenURL := c.GetStringOption("token_url", DefaultTokenURL)
	opts := base.VendorURLValidationOptions(base.HubSpotHostSuffixes)
	if c.GetBoolOption("allow_private_ips", false) {
		opts = base.URLValidationOptions{AllowPrivateIPs: true, AllowedSchemes: []string{"https", "http"}}
	}
	if err := base.ValidateURL(tokenURL, opts); err != nil {
		return nil, base.NewConnectorError(c.Name(), "Connect", "token_url rejected", err)
	}

	// The token source outlives Connect, so it gets its own context.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	return sdk.NewRefreshTokenAuth(tokenCtx,
		c.GetCredential("client_id"),
		c.GetCredential("client_secret"),
		tokenURL,
		c.GetCredential("refresh_token"),
	), nil
}

// Disconnect releases pooled connections.
func (c *HubSpotConnector) Disconnect(ctx context.Context) error {
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	return c.BaseConnector.Disconnect(ctx)
}

// HealthCheck reads one contact.
func (c *HubSpotConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return c.ProbeHealth(ctx, func(ctx context.Context) (map[string]string, error) {
		if err := c.client.Get(ctx, "/crm/v3/objects/contacts", url.Values{"limit": {"1"}}, nil); err != nil {
			return nil, vendorError(err)
		}
		return map[string]string{"objects": strconv.Itoa(len(Objects))}, nil
	})
}

// Query runs list, get, search or properties against an object type.
func (c *HubSpotConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if err := c.RequireConnected("Query"); err != nil {
		return nil, err
	}
	if query == nil {
		return nil, base.NewParameterError(c.Name(), "Query", "query cannot be nil")
	}

	ctx, cancel := c.WithTimeout(ctx, query.Timeout)
	defer cancel()

	start := time.Now()
	rows, meta, err := c.runQuery(ctx, query)
	c.Track(ctx, "Query", query.Statement, start, err)
	if err != nil {
		return nil, c.wrap("Query", query.Statement, err)
	}

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Connector: c.Name(),
		Metadata:  meta,
	}, nil
}

func (c *HubSpotConnector) runQuery(ctx context.Context, query *base.Query) ([]map[string]interface{}, map[string]interface{}, error) {
	verb, obj, err := ParseStatement(query.Statement, queryVerbs)
	if err != nil {
		return nil, nil, err
	}
	p := sdk.Params(query.Parameters)
	props := p.Strings("properties")
	if len(props) == 0 {
		props = obj.DefaultProperties
	}
	meta := map[string]interface{}{"object": obj.Name}

	switch verb {
	case VerbList:
		rows, after, err := c.list(ctx, obj, props, p, query.Limit)
		if after != "" {
			meta["next_after"] = after
		}
		return rows, meta, err

	case VerbGet:
		id, err := p.Require("id")
		if err != nil {
			return nil, nil, err
		}
		q := url.Values{"properties": {strings.Join(props, ",")}}
		if idProp := p.String("id_property"); idProp != "" {
			q.Set("idProperty", idProp)
		}
		if assoc := p.Strings("associations"); len(assoc) > 0 {
			q.Set("associations", strings.Join(assoc, ","))
		}
		var o Object
		if err := c.client.Get(ctx, objectPath(obj, id), q, &o); err != nil {
			return nil, nil, err
		}
		return []map[string]interface{}{o.Row()}, meta, nil

	case VerbSearch:
		filters, err := BuildFilters(p.Maps("filters"))
		if err != nil {
			return nil, nil, err
		}
		req := searchRequest{
			Query:      p.String("query"),
			Sorts:      BuildSorts(query.Parameters["sorts"]),
			Properties: props,
			Limit:      c.limit(p, query.Limit),
			After:      p.String("after"),
		}
		if len(filters) > 0 {
			req.FilterGroups = []filterGroup{{Filters: filters}}
		}
		var resp listResponse
		if err := c.client.Post(ctx, "/crm/v3/objects/"+obj.Name+"/search", req, &resp); err != nil {
			return nil, nil, err
		}
		meta["total"] = resp.Total
		if after := resp.after(); after != "" {
			meta["next_after"] = after
		}
		return objectRows(resp.Results), meta, nil

	case VerbProperties:
		var resp propertiesResponse
		if err := c.client.Get(ctx, "/crm/v3/properties/"+obj.Name, nil, &resp); err != nil {
			return nil, nil, err
		}
		rows, err := sdk.ToRows(resp.Results)
		return rows, meta, err
	}
	return nil, nil, base.ErrUnsupportedOperation
}

// list reads one page, or with all=true follows paging.next.after until
// the limit or the page cap is reached.
func (c *HubSpotConnector) list(ctx context.Context, obj ObjectType, props []string, p sdk.Params, limit int) ([]map[string]interface{}, string, error) {
	all := p.Bool("all", false)
	after := p.String("after")
	var rows []map[string]interface{}

	for page := 0; page < maxPages; page++ {
		q := url.Values{
			"limit":      {strconv.Itoa(c.limit(p, limit-len(rows)))},
			"properties": {strings.Join(props, ",")},
		}
		if after != "" {
			q.Set("after", after)
		}
		if p.Bool("archived", false) {
			q.Set("archived", "true")
		}

		var resp listResponse
		if err := c.client.Get(ctx, "/crm/v3/objects/"+obj.Name, q, &resp); err != nil {
			return nil, "", err
		}
		rows = append(rows, objectRows(resp.Results)...)
		after = resp.after()

		if !all || after == "" || (limit > 0 && len(rows) >= limit) {
			break
		}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, after, nil
}

// limit picks the page size: the limit parameter, then the query limit,
// then the configured page size, capped at the API maximum.
func (c *HubSpotConnector) limit(p sdk.Params, queryLimit int) int {
	n := p.Int("limit", 0)
	if n <= 0 {
		n = queryLimit
	}
	if n <= 0 {
		n = c.pageSize
	}
	if n > maxPageSize {
		n = maxPageSize
	}
	return n
}

// Execute runs create, update, archive or associate against an object type.
func (c *HubSpotConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if err := c.RequireConnected("Execute"); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, base.NewParameterError(c.Name(), "Execute", "command cannot be nil")
	}

	ctx, cancel := c.WithTimeout(ctx, cmd.Timeout)
	defer cancel()

	statement := cmd.Action
	if statement == "" {
		statement = cmd.Statement
	}

	start := time.Now()
	meta, err := c.runCommand(ctx, statement, sdk.Params(cmd.Parameters))
	c.Track(ctx, "Execute", statement, start, err)
	if err != nil {
		return nil, c.wrap("Execute", statement, err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("%s %v", statement, meta["id"]),
		Connector:    c.Name(),
		Metadata:     meta,
	}, nil
}

func (c *HubSpotConnector) runCommand(ctx context.Context, statement string, p sdk.Params) (map[string]interface{}, error) {
	verb, obj, err := ParseStatement(statement, executeVerbs)
	if err != nil {
		return nil, err
	}

	switch verb {
	case VerbCreate:
		props := p.Map("properties")
		if len(props) == 0 {
			return nil, &sdk.MissingParamError{Key: "properties"}
		}
		var o Object
		if err := c.client.Post(ctx, "/crm/v3/objects/"+obj.Name, map[string]interface{}{"properties": props}, &o); err != nil {
			return nil, err
		}
		return o.Row(), nil

	case VerbUpdate:
		id, err := p.Require("id")
		if err != nil {
			return nil, err
		}
		props := p.Map("properties")
		if len(props) == 0 {
			return nil, &sdk.MissingParamError{Key: "properties"}
		}
		var o Object
		if err := c.client.Patch(ctx, objectPath(obj, id), map[string]interface{}{"properties": props}, &o); err != nil {
			return nil, err
		}
		return o.Row(), nil

	case VerbArchive:
		id, err := p.Require("id")
		if err != nil {
			return nil, err
		}
		if err := c.client.Delete(ctx, objectPath(obj, id)); err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": id, "archived": true}, nil

	case VerbAssociate:
		id, err := p.Require("id")
		if err != nil {
			return nil, err
		}
		toName, err := p.Require("to_object")
		if err != nil {
			return nil, err
		}
		to, ok := LookupObject(toName)
		if !ok {
			return nil, fmt.Errorf("unknown object type %q: %w", toName, base.ErrInvalidParameter)
		}
		toID, err := p.Require("to_id")
		if err != nil {
			return nil, err
		}
		path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/default/%s/%s",
			obj.Name, url.PathEscape(id), to.Name, url.PathEscape(toID))
		if err := c.client.Put(ctx, path, nil, nil); err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": id, "to_object": to.Name, "to_id": toID}, nil
	}
	return nil, base.ErrUnsupportedOperation
}

func objectPath(obj ObjectType, id string) string {
	return "/crm/v3/objects/" + obj.Name + "/" + url.PathEscape(id)
}

func objectRows(objects []Object) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(objects))
	for i, o := range objects {
		rows[i] = o.Row()
	}
	return rows
}

// vendorError replaces an HTTPError with the HubSpot error it carries.
func vendorError(err error) error {
	var herr *sdk.HTTPError
	if errors.As(err, &herr) {
		if apiErr := parseAPIError(herr.StatusCode, herr.Body); apiErr != nil {
			return apiErr
		}
	}
	return err
}

func (c *HubSpotConnector) wrap(op, what string, err error) error {
	switch {
	case errors.Is(err, base.ErrUnsupportedOperation):
		return base.NewUnsupportedError(c.Name(), op, what)
	case errors.Is(err, base.ErrInvalidParameter):
		return base.NewConnectorError(c.Name(), op, err.Error(), err)
	}
	return base.NewConnectorError(c.Name(), op, what+" failed", vendorError(err))
}
