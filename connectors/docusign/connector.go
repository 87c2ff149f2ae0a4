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

package docusign

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/sdk"
)

const (
	// DemoAuthHost is the OAuth server of the developer environment.
	DemoAuthHost = "account-d.docusign.com"
	// ProductionAuthHost is the OAuth server of production accounts.
	ProductionAuthHost = "account.docusign.com"

	apiPathPrefix      = "/restapi/v2.1"
	defaultLookback    = 30 * 24 * time.Hour
	defaultEnvelopeMax = 100
)

// Scopes requested by the JWT grant.
var Scopes = []string{"signature", "impersonation"}

// DocuSignConnector implements base.Connector over the eSignature REST API.
type DocuSignConnector struct {
	*sdk.BaseConnector
	auth      sdk.AuthProvider
	oauth     *sdk.RESTClient
	api       *sdk.RESTClient
	accountID string
	account   Account
	now       func() time.Time
}

// NewDocuSignConnector creates a new DocuSign connector instance.
func NewDocuSignConnector() *DocuSignConnector {
	c := &DocuSignConnector{
		BaseConnector: sdk.NewBaseConnector("docusign"),
		now:           time.Now,
	}
	c.SetValidator(sdk.NewDefaultConfigValidator(
		[]string{"access_token|integration_key"},
		map[string]interface{}{"environment": "demo"},
	))
	c.SetRateLimiter(sdk.NewRateLimiterWithConfig(sdk.DocuSignRateLimit))
	return c
}

// AuthHost returns the OAuth host for an environment name.
func AuthHost(environment string) string {
	if strings.EqualFold(environment, "production") || strings.EqualFold(environment, "prod") {
		return ProductionAuthHost
	}
	return DemoAuthHost
}

// Connect authenticates, discovers the account and its base_uri, and
// prepares the API client.
func (c *DocuSignConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	if err := c.Configure(config); err != nil {
		return err
	}

	ctx, cancel := c.WithTimeout(ctx, 0)
	defer cancel()

	authURL, err := c.authServerURL()
	if err != nil {
		return err
	}
	httpClient := sdk.NewHTTPClient(c.GetTimeout())

	if err := c.buildAuth(authURL, httpClient); err != nil {
		return err
	}

	c.oauth, err = sdk.NewRESTClient(sdk.RESTClientConfig{
		BaseURL:    authURL,
		Auth:       c.auth,
		Limiter:    c.GetRateLimiter(),
		Retry:      c.GetRetryConfig(),
		HTTPClient: httpClient,
	})
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid auth server URL", err)
	}

	baseURI, err := c.discoverAccount(ctx)
	if err != nil {
		return err
	}

	c.api, err = sdk.NewRESTClient(sdk.RESTClientConfig{
		BaseURL:       baseURI + apiPathPrefix,
		Auth:          c.auth,
		Limiter:       c.GetRateLimiter(),
		Retry:         c.GetRetryConfig(),
		HTTPClient:    httpClient,
		OnRateLimited: func(time.Duration) { c.GetMetrics().RecordRateLimited() },
	})
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid base_uri", err)
	}

	c.Logger().Info(config.TenantID, "", "docusign account selected", map[string]interface{}{
		"account_id": c.accountID,
		"base_uri":   baseURI,
	})
	c.MarkConnected()
	return nil
}

func (c *DocuSignConnector) authServerURL() (string, error) {
	raw := c.GetStringOption("oauth_url", "")
	if raw == "" {
		return "https://" + AuthHost(c.GetStringOption("environment", "demo")), nil
	}
	if err := c.validateVendorURL(raw); err != nil {
		return "", base.NewConnectorError(c.Name(), "Connect", "oauth_url rejected", err)
	}
	return strings.TrimSuffix(raw, "/"), nil
}

func (c *DocuSignConnector) validateVendorURL(raw string) error {
	opts := base.VendorURLValidationOptions(base.DocuSignHostSuffixes)
	if c.GetBoolOption("allow_private_ips", false) {
		opts = base.URLValidationOptions{AllowPrivateIPs: true, AllowedSchemes: []string{"https", "http"}}
	}
	return base.ValidateURL(raw, opts)
}

func (c *DocuSignConnector) buildAuth(authURL string, httpClient *http.Client) error {
	if token := c.GetCredential("access_token"); token != "" {
		c.auth = sdk.NewBearerTokenAuth(token, time.Time{})
		return nil
	}

	for _, key := range []string{"integration_key", "user_id", "private_key"} {
		if c.GetCredential(key) == "" {
			return base.NewConnectorError(c.Name(), "Connect", "jwt grant requires "+key, base.ErrInvalidParameter)
		}
	}
	key, err := sdk.ParseRSAPrivateKey(c.GetCredential("private_key"))
	if err != nil {
		return base.NewConnectorError(c.Name(), "Connect", "invalid private_key", err)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		return base.NewConnectorError(c.Name(), "Connect", "invalid auth server URL", err)
	}
	c.auth = sdk.NewJWTBearerGrantAuth(sdk.JWTGrantConfig{
		ClientID:   c.GetCredential("integration_key"),
		Subject:    c.GetCredential("user_id"),
		Audience:   u.Host,
		TokenURL:   authURL + "/oauth/token",
		Scopes:     Scopes,
		PrivateKey: key,
	}, httpClient)
	return nil
}

// discoverAccount picks the configured or default account from userinfo.
// A connection_url override replaces the account's base_uri.
func (c *DocuSignConnector) discoverAccount(ctx context.Context) (string, error) {
	wanted := c.GetStringOption("account_id", "")
	cfg := c.GetConfig()

	if cfg.ConnectionURL != "" && wanted != "" {
		baseURI, err := c.ResolveBaseURL("", base.DocuSignHostSuffixes)
		if err != nil {
			return "", err
		}
		c.accountID = wanted
		c.account = Account{AccountID: wanted, BaseURI: baseURI}
		return baseURI, nil
	}

	var info UserInfo
	if err := c.oauth.Get(ctx, "/oauth/userinfo", nil, &info); err != nil {
		return "", base.NewConnectorError(c.Name(), "Connect", "userinfo request failed", c.vendorError(err))
	}

	account, err := SelectAccount(info.Accounts, wanted)
	if err != nil {
		return "", base.NewConnectorError(c.Name(), "Connect", err.Error(), err)
	}

	baseURI := strings.TrimSuffix(account.BaseURI, "/")
	if cfg.ConnectionURL != "" {
		if baseURI, err = c.ResolveBaseURL("", base.DocuSignHostSuffixes); err != nil {
			return "", err
		}
	} else if err := c.validateVendorURL(baseURI); err != nil {
		return "", base.NewConnectorError(c.Name(), "Connect", "base_uri rejected", err)
	}

	c.accountID = account.AccountID
	c.account = account
	return baseURI, nil
}

// ErrNoAccount is returned when userinfo lists no usable account.
var ErrNoAccount = errors.New("no docusign account available")

// SelectAccount returns the account with id wanted, or the default account
// when wanted is empty. Without a default the first account is used.
func SelectAccount(accounts []Account, wanted string) (Account, error) {
	if len(accounts) == 0 {
		return Account{}, ErrNoAccount
	}
	if wanted != "" {
		for _, a := range accounts {
			if a.AccountID == wanted {
				return a, nil
			}
		}
		return Account{}, fmt.Errorf("account %s is not available to this user: %w", wanted, ErrNoAccount)
	}
	for _, a := range accounts {
		if a.IsDefault {
			return a, nil
		}
	}
	return accounts[0], nil
}

// AccountID returns the selected account id.
func (c *DocuSignConnector) AccountID() string { return c.accountID }

// Disconnect releases pooled connections.
func (c *DocuSignConnector) Disconnect(ctx context.Context) error {
	if c.api != nil {
		c.api.CloseIdleConnections()
	}
	return c.BaseConnector.Disconnect(ctx)
}

// HealthCheck reads the account information.
func (c *DocuSignConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return c.ProbeHealth(ctx, func(ctx context.Context) (map[string]string, error) {
		var acct struct {
			AccountName string `json:"accountName"`
			PlanName    string `json:"planName"`
		}
		if err := c.api.Get(ctx, c.accountPath(""), nil, &acct); err != nil {
			return nil, c.vendorError(err)
		}
		return map[string]string{"account_id": c.accountID, "account_name": acct.AccountName}, nil
	})
}

func (c *DocuSignConnector) accountPath(suffix string) string {
	return "/accounts/" + url.PathEscape(c.accountID) + suffix
}

// vendorError replaces an HTTPError with the DocuSign error it carries.
func (c *DocuSignConnector) vendorError(err error) error {
	var herr *sdk.HTTPError
	if errors.As(err, &herr) {
		if apiErr := parseAPIError(herr.StatusCode, herr.Body); apiErr != nil {
			return apiErr
		}
	}
	return err
}

// Query runs a read statement.
func (c *DocuSignConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
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
	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Connector: c.Name(),
		Metadata:  meta,
	}, nil
}

func (c *DocuSignConnector) runQuery(ctx context.Context, query *base.Query) ([]map[string]interface{}, map[string]interface{}, error) {
	p := sdk.Params(query.Parameters)

	switch query.Statement {
	case "list_envelopes":
		q := url.Values{}
		from := c.now().Add(-defaultLookback)
		if t, ok := p.Time("from_date"); ok {
			from = t
		}
		q.Set("from_date", from.UTC().Format(time.RFC3339))
		if s := p.String("status"); s != "" {
			q.Set("status", s)
		}
		count := p.Int("count", defaultEnvelopeMax)
		if query.Limit > 0 && query.Limit < count {
			count = query.Limit
		}
		q.Set("count", strconv.Itoa(count))
		if v := p.String("start_position"); v != "" {
			q.Set("start_position", v)
		}

		var resp envelopesResponse
		if err := c.api.Get(ctx, c.accountPath("/envelopes"), q, &resp); err != nil {
			return nil, nil, err
		}
		rows, err := sdk.ToRows(resp.Envelopes)
		meta := map[string]interface{}{"total_set_size": resp.TotalSetSize}
		if resp.NextURI != "" {
			meta["next_uri"] = resp.NextURI
		}
		return rows, meta, err

	case "get_envelope":
		id, err := p.Require("envelope_id")
		if err != nil {
			return nil, nil, err
		}
		var env map[string]interface{}
		if err := c.api.Get(ctx, c.accountPath("/envelopes/"+url.PathEscape(id)), nil, &env); err != nil {
			return nil, nil, err
		}
		return []map[string]interface{}{env}, nil, nil

	case "list_recipients":
		id, err := p.Require("envelope_id")
		if err != nil {
			return nil, nil, err
		}
		var resp recipientsResponse
		if err := c.api.Get(ctx, c.accountPath("/envelopes/"+url.PathEscape(id)+"/recipients"), nil, &resp); err != nil {
			return nil, nil, err
		}
		var rows []map[string]interface{}
		for kind, list := range map[string][]Recipient{"signer": resp.Signers, "carbon_copy": resp.CarbonCopies} {
			converted, err := sdk.ToRows(list)
			if err != nil {
				return nil, nil, err
			}
			for _, r := range converted {
				r["recipientType"] = kind
			}
			rows = append(rows, converted...)
		}
		sortByKey(rows, "recipientId")
		return rows, map[string]interface{}{"envelope_id": id}, nil

	case "list_documents":
		id, err := p.Require("envelope_id")
		if err != nil {
			return nil, nil, err
		}
		var resp documentsResponse
		if err := c.api.Get(ctx, c.accountPath("/envelopes/"+url.PathEscape(id)+"/documents"), nil, &resp); err != nil {
			return nil, nil, err
		}
		rows, err := sdk.ToRows(resp.EnvelopeDocuments)
		return rows, map[string]interface{}{"envelope_id": id}, err

	case "list_templates":
		q := url.Values{}
		if s := p.String("search_text"); s != "" {
			q.Set("search_text", s)
		}
		if query.Limit > 0 {
			q.Set("count", strconv.Itoa(query.Limit))
		}
		var resp templatesResponse
		if err := c.api.Get(ctx, c.accountPath("/templates"), q, &resp); err != nil {
			return nil, nil, err
		}
		rows, err := sdk.ToRows(resp.EnvelopeTemplates)
		return rows, map[string]interface{}{"total_set_size": resp.TotalSetSize}, err

	case "get_template":
		id, err := p.Require("template_id")
		if err != nil {
			return nil, nil, err
		}
		var tmpl map[string]interface{}
		if err := c.api.Get(ctx, c.accountPath("/templates/"+url.PathEscape(id)), nil, &tmpl); err != nil {
			return nil, nil, err
		}
		return []map[string]interface{}{tmpl}, nil, nil
	}

	return nil, nil, base.ErrUnsupportedOperation
}

// Execute runs a write action.
func (c *DocuSignConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if err := c.RequireConnected("Execute"); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, base.NewParameterError(c.Name(), "Execute", "command cannot be nil")
	}

	ctx, cancel := c.WithTimeout(ctx, cmd.Timeout)
	defer cancel()

	start := time.Now()
	meta, err := c.runCommand(ctx, cmd)
	c.Track(ctx, "Execute", cmd.Action, start, err)
	if err != nil {
		return nil, c.wrap("Execute", cmd.Action, err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("%s %v", cmd.Action, meta["envelopeId"]),
		Connector:    c.Name(),
		Metadata:     meta,
	}, nil
}

func (c *DocuSignConnector) runCommand(ctx context.Context, cmd *base.Command) (map[string]interface{}, error) {
	p := sdk.Params(cmd.Parameters)

	switch cmd.Action {
	case "create_envelope":
		def, err := BuildEnvelopeDefinition(p)
		if err != nil {
			return nil, err
		}
		var summary EnvelopeSummary
		if err := c.api.Post(ctx, c.accountPath("/envelopes"), def, &summary); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"envelopeId":     summary.EnvelopeID,
			"status":         summary.Status,
			"statusDateTime": summary.StatusDateTime,
			"uri":            summary.URI,
		}, nil

	case "void_envelope":
		id, err := p.Require("envelope_id")
		if err != nil {
			return nil, err
		}
		reason, err := p.Require("voided_reason")
		if err != nil {
			return nil, err
		}
		body := map[string]string{"status": "voided", "voidedReason": reason}
		if err := c.api.Put(ctx, c.accountPath("/envelopes/"+url.PathEscape(id)), body, nil); err != nil {
			return nil, err
		}
		return map[string]interface{}{"envelopeId": id, "status": "voided"}, nil

	case "resend_envelope":
		id, err := p.Require("envelope_id")
		if err != nil {
			return nil, err
		}
		_, err = c.api.Do(ctx, &sdk.Request{
			Method: http.MethodPut,
			Path:   c.accountPath("/envelopes/" + url.PathEscape(id)),
			Query:  url.Values{"resend_envelope": {"true"}},
			Body:   map[string]interface{}{},
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"envelopeId": id, "resent": true}, nil
	}

	return nil, base.ErrUnsupportedOperation
}

// BuildEnvelopeDefinition turns create_envelope parameters into a payload.
// A template_id selects the template form (template_roles); otherwise
// documents and signers are required. status is "sent" (default) or "created".
func BuildEnvelopeDefinition(p sdk.Params) (*EnvelopeDefinition, error) {
	status := strings.ToLower(p.StringOr("status", "sent"))
	if status != "sent" && status != "created" {
		return nil, &sdk.MissingParamError{Key: "status (sent|created)"}
	}

	def := &EnvelopeDefinition{
		EmailSubject: p.String("email_subject"),
		EmailBlurb:   p.String("email_blurb"),
		Status:       status,
	}

	if templateID := p.String("template_id"); templateID != "" {
		def.TemplateID = templateID
		if err := p.Decode("template_roles", &def.TemplateRoles); err != nil {
			return nil, err
		}
		if len(def.TemplateRoles) == 0 {
			return nil, &sdk.MissingParamError{Key: "template_roles"}
		}
		return def, nil
	}

	if err := p.Decode("documents", &def.Documents); err != nil {
		return nil, err
	}
	var signers []Signer
	if err := p.Decode("signers", &signers); err != nil {
		return nil, err
	}
	if len(def.Documents) == 0 {
		return nil, &sdk.MissingParamError{Key: "documents"}
	}
	if len(signers) == 0 {
		return nil, &sdk.MissingParamError{Key: "signers"}
	}
	for i := range def.Documents {
		if def.Documents[i].DocumentID == "" {
			def.Documents[i].DocumentID = strconv.Itoa(i + 1)
		}
	}
	for i := range signers {
		if signers[i].RecipientID == "" {
			signers[i].RecipientID = strconv.Itoa(i + 1)
		}
		if signers[i].RoutingOrder == "" {
			signers[i].RoutingOrder = "1"
		}
	}
	if def.EmailSubject == "" {
		def.EmailSubject = "Please sign: " + def.Documents[0].Name
	}
	def.Recipients = &Recipients{Signers: signers}
	return def, nil
}

func (c *DocuSignConnector) wrap(op, what string, err error) error {
	switch {
	case errors.Is(err, base.ErrUnsupportedOperation):
		return base.NewUnsupportedError(c.Name(), op, what)
	case errors.Is(err, base.ErrInvalidParameter):
		return base.NewConnectorError(c.Name(), op, err.Error(), err)
	}
	return base.NewConnectorError(c.Name(), op, what+" failed", c.vendorError(err))
}

func sortByKey(rows []map[string]interface{}, key string) {
	sort.SliceStable(rows, func(i, j int) bool {
		return fmt.Sprint(rows[i][key]) < fmt.Sprint(rows[j][key])
	})
}
