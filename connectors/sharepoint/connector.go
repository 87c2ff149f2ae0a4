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

package sharepoint

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/sdk"
	"saasbridge/platform/ingest"
)

const (
	DefaultGraphURL = "https://graph.microsoft.com/v1.0"
	GraphScope      = "https://graph.microsoft.com/.default"

	DefaultBatchSize = 50
	spAccept         = "application/json;odata=nometadata"
)

// SharePointConnector implements base.Connector and base.SyncConnector for
// one SharePoint Online site.
type SharePointConnector struct {
	*sdk.BaseConnector
	credential azcore.TokenCredential
	graph      *sdk.RESTClient
	sp         *sdk.RESTClient
	site       *SiteMetadata

	store       ingest.SyncPointStore
	sink        ingest.Sink
	driveFilter []string
	batchSize   int
	batchPause  time.Duration
	now         func() time.Time
}

// NewSharePointConnector creates a connector that authenticates with the
// Entra ID client secret in its credentials.
func NewSharePointConnector() *SharePointConnector {
	c := &SharePointConnector{
		BaseConnector: sdk.NewBaseConnector("sharepoint"),
		store:         ingest.NewMemorySyncPointStore(),
		now:           time.Now,
	}
	c.SetValidator(sdk.NewDefaultConfigValidator(
		[]string{"azure_tenant_id", "client_id", "client_secret"},
		map[string]interface{}{"batch_size": DefaultBatchSize},
	))
	c.SetRateLimiter(sdk.NewRateLimiterWithConfig(sdk.SharePointRateLimit))
	c.SetCapabilities("query", "execute", "sync")
	return c
}

// NewSharePointConnectorWithCredential uses cred instead of building a
// client secret credential, e.g. a managed identity.
func NewSharePointConnectorWithCredential(cred azcore.TokenCredential) *SharePointConnector {
	c := NewSharePointConnector()
	c.credential = cred
	c.SetValidator(sdk.NewDefaultConfigValidator(nil, map[string]interface{}{"batch_size": DefaultBatchSize}))
	return c
}

// SetSyncPointStore replaces the default in-memory store.
func (c *SharePointConnector) SetSyncPointStore(store ingest.SyncPointStore) {
	if store != nil {
		c.store = store
	}
}

// SetSink sets where the sync action writes records. Without a sink the
// records are counted and dropped.
func (c *SharePointConnector) SetSink(sink ingest.Sink) {
	c.sink = sink
}

// Connect acquires tokens for Graph and SharePoint REST and resolves the site.
func (c *SharePointConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	if err := c.Configure(config); err != nil {
		return err
	}

	ctx, cancel := c.WithTimeout(ctx, 0)
	defer cancel()

	siteURL, err := c.siteURL()
	if err != nil {
		return err
	}
	graphURL, err := c.ResolveBaseURL(DefaultGraphURL, base.SharePointHostSuffixes)
	if err != nil {
		return err
	}

	cred := c.credential
	if cred == nil {
		cred, err = azidentity.NewClientSecretCredential(
			c.GetCredential("azure_tenant_id"),
			c.GetCredential("client_id"),
			c.GetCredential("client_secret"),
			nil,
		)
		if err != nil {
			return base.NewConnectorError(config.Name, "Connect", "invalid Entra ID credentials", err)
		}
	}

	httpClient := sdk.NewHTTPClient(c.GetTimeout())
	onLimited := func(time.Duration) { c.GetMetrics().RecordRateLimited() }
	graphAuth := sdk.NewAzureCredentialAuth(cred, GraphScope)
	c.SetAuthProvider(graphAuth)

	c.graph, err = sdk.NewRESTClient(sdk.RESTClientConfig{
		BaseURL:       graphURL,
		Auth:          graphAuth,
		Limiter:       c.GetRateLimiter(),
		Retry:         c.GetRetryConfig(),
		HTTPClient:    httpClient,
		OnRateLimited: onLimited,
	})
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid Graph URL", err)
	}
	c.sp, err = sdk.NewRESTClient(sdk.RESTClientConfig{
		BaseURL:       siteURL.String(),
		Auth:          sdk.NewAzureCredentialAuth(cred, RESTScope(siteURL)),
		Limiter:       c.GetRateLimiter(),
		Retry:         c.GetRetryConfig(),
		Headers:       map[string]string{"Accept": spAccept},
		HTTPClient:    httpClient,
		OnRateLimited: onLimited,
	})
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid site URL", err)
	}

	c.batchSize = c.GetIntOption("batch_size", DefaultBatchSize)
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	c.batchPause = c.GetDurationOption("batch_pause", 0)
	c.driveFilter = c.GetStringSliceOption("drives")

	site, err := c.ResolveSite(ctx, siteURL.String())
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "site lookup failed", err)
	}
	c.site = site

	c.Logger().Info(config.TenantID, "", "sharepoint site resolved", map[string]interface{}{
		"site_id": site.ID,
		"drives":  len(site.Drives),
	})
	c.MarkConnected()
	return nil
}

// siteURL validates the site_url option against SharePoint hosts.
func (c *SharePointConnector) siteURL() (*url.URL, error) {
	raw := strings.TrimSuffix(c.GetStringOption("site_url", ""), "/")
	if raw == "" {
		return nil, base.NewConnectorError(c.Name(), "Connect", "site_url option is required", base.ErrInvalidParameter)
	}
	opts := base.VendorURLValidationOptions([]string{".sharepoint.com"})
	if c.GetBoolOption("allow_private_ips", false) {
		opts = base.URLValidationOptions{AllowPrivateIPs: true, AllowedSchemes: []string{"https", "http"}}
	}
	if err := base.ValidateURL(raw, opts); err != nil {
		return nil, base.NewConnectorError(c.Name(), "Connect", "site_url rejected", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Connect", "site_url rejected", err)
	}
	return u, nil
}

// RESTScope is the token scope of the SharePoint REST API serving siteURL.
func RESTScope(siteURL *url.URL) string {
	return siteURL.Scheme + "://" + siteURL.Host + "/.default"
}

// ResolveSite looks up the site behind siteURL and lists its drives.
func (c *SharePointConnector) ResolveSite(ctx context.Context, siteURL string) (*SiteMetadata, error) {
	u, err := url.Parse(siteURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid site URL %q: %w", siteURL, base.ErrInvalidParameter)
	}

	path := "/sites/" + u.Hostname()
	if sitePath := strings.TrimSuffix(u.Path, "/"); sitePath != "" {
		path += ":" + sitePath
	}

	var site Site
	if err := c.graph.Get(ctx, path, nil, &site); err != nil {
		return nil, vendorError(err)
	}
	drives, err := c.ListDrives(ctx, site.ID)
	if err != nil {
		return nil, err
	}

	meta := &SiteMetadata{
		ID:          site.ID,
		Name:        site.Name,
		DisplayName: site.DisplayName,
		WebURL:      site.WebURL,
		Hostname:    u.Hostname(),
		Drives:      drives,
	}
	if site.SiteCollection != nil && site.SiteCollection.Hostname != "" {
		meta.Hostname = site.SiteCollection.Hostname
	}
	return meta, nil
}

// ListDrives returns the document libraries of a site.
func (c *SharePointConnector) ListDrives(ctx context.Context, siteID string) ([]Drive, error) {
	var drives []Drive
	query := url.Values{"$select": {"id,name,driveType,webUrl"}}
	if err := getPaged(ctx, c.graph, "/sites/"+url.PathEscape(siteID)+"/drives", query, &drives); err != nil {
		return nil, err
	}
	return drives, nil
}

// Site returns the site resolved at Connect.
func (c *SharePointConnector) Site() *SiteMetadata {
	return c.site
}

// Disconnect releases pooled connections.
func (c *SharePointConnector) Disconnect(ctx context.Context) error {
	if c.graph != nil {
		c.graph.CloseIdleConnections()
	}
	return c.BaseConnector.Disconnect(ctx)
}

// HealthCheck reads the site id.
func (c *SharePointConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return c.ProbeHealth(ctx, func(ctx context.Context) (map[string]string, error) {
		var site Site
		query := url.Values{"$select": {"id"}}
		if err := c.graph.Get(ctx, "/sites/"+url.PathEscape(c.site.ID), query, &site); err != nil {
			return nil, vendorError(err)
		}
		return map[string]string{"site_id": site.ID, "drives": strconv.Itoa(len(c.site.Drives))}, nil
	})
}

// Query runs site, drives, permissions or sync_status.
func (c *SharePointConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if err := c.RequireConnected("Query"); err != nil {
		return nil, err
	}
	if query == nil {
		return nil, base.NewParameterError(c.Name(), "Query", "query cannot be nil")
	}

	ctx, cancel := c.WithTimeout(ctx, query.Timeout)
	defer cancel()

	start := time.Now()
	rows, err := c.runQuery(ctx, query)
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
		Metadata:  map[string]interface{}{"site_id": c.site.ID},
	}, nil
}

func (c *SharePointConnector) runQuery(ctx context.Context, query *base.Query) ([]map[string]interface{}, error) {
	p := sdk.Params(query.Parameters)

	switch strings.TrimSpace(query.Statement) {
	case "site":
		return sdk.ToRows([]*SiteMetadata{c.site})

	case "drives":
		drives, err := c.ListDrives(ctx, c.site.ID)
		if err != nil {
			return nil, err
		}
		return sdk.ToRows(drives)

	case "permissions":
		driveID, err := p.Require("drive_id")
		if err != nil {
			return nil, err
		}
		itemID, err := p.Require("item_id")
		if err != nil {
			return nil, err
		}
		access, err := NewResolver(c.graph, c.sp, c.Logger()).Resolve(ctx, driveID, itemID)
		if err != nil {
			return nil, err
		}
		row := map[string]interface{}{
			"drive_id": driveID,
			"item_id":  itemID,
			"users":    access.Users,
			"groups":   access.Groups,
			"org_wide": access.OrgWide,
			"public":   access.Public,
		}
		return []map[string]interface{}{row}, nil

	case "sync_status":
		points, err := c.store.List(ctx, c.Name())
		if err != nil {
			return nil, err
		}
		return sdk.ToRows(points)
	}
	return nil, base.ErrUnsupportedOperation
}

// Execute supports the sync action. Parameters: full (bool) and drives
// (ids or names). Without a command timeout the run is bounded only by ctx.
func (c *SharePointConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if err := c.RequireConnected("Execute"); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, base.NewParameterError(c.Name(), "Execute", "command cannot be nil")
	}

	action := cmd.Action
	if action == "" {
		action = strings.TrimSpace(cmd.Statement)
	}
	if action != "sync" {
		return nil, base.NewUnsupportedError(c.Name(), "Execute", action)
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	p := sdk.Params(cmd.Parameters)
	req := base.SyncRequest{
		RunID:    p.String("run_id"),
		TenantID: c.GetConfig().TenantID,
		Full:     p.Bool("full", false),
		Scope:    p.Strings("drives"),
	}

	start := time.Now()
	runner := ingest.NewRunner(c.sink, ingest.RunnerConfig{BatchSize: c.batchSize})
	runner.SetLogger(c.Logger())
	summary, err := runner.Run(ctx, c, req)
	c.Track(ctx, "Execute", action, start, err)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "sync failed", err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: summary.Upserts + summary.Deletes,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("sync %s: %d upserts, %d deletes", summary.RunID, summary.Upserts, summary.Deletes),
		Connector:    c.Name(),
		Metadata: map[string]interface{}{
			"run_id":  summary.RunID,
			"upserts": summary.Upserts,
			"deletes": summary.Deletes,
			"errors":  summary.Errors,
			"full":    req.Full,
		},
	}, nil
}

func (c *SharePointConnector) wrap(op, what string, err error) error {
	switch {
	case errors.Is(err, base.ErrUnsupportedOperation):
		return base.NewUnsupportedError(c.Name(), op, what)
	case errors.Is(err, base.ErrInvalidParameter):
		return base.NewConnectorError(c.Name(), op, err.Error(), err)
	}
	return base.NewConnectorError(c.Name(), op, what+" failed", vendorError(err))
}
