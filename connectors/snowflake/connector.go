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
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/sdk"
)

const (
	statementsPath      = "/api/v2/statements"
	DefaultPollInterval = 500 * time.Millisecond
	cancelTimeout       = 5 * time.Second

	// DefaultMaxResponseSize caps one decompressed result partition. The
	// max_response_bytes option overrides it.
	DefaultMaxResponseSize = 128 * 1024 * 1024
)

// SnowflakeConnector implements base.Connector over the SQL API v2.
type SnowflakeConnector struct {
	*sdk.BaseConnector
	client       *sdk.RESTClient
	session      statementRequest
	pollInterval time.Duration
	maxResponse  int64
}

// NewSnowflakeConnector creates a new Snowflake connector instance.
func NewSnowflakeConnector() *SnowflakeConnector {
	c := &SnowflakeConnector{
		BaseConnector: sdk.NewBaseConnector("snowflake"),
		pollInterval:  DefaultPollInterval,
	}
	c.SetValidator(sdk.NewDefaultConfigValidator(
		[]string{"account", "username", "private_key|token"},
		nil,
	))
	c.SetRateLimiter(sdk.NewRateLimiterWithConfig(sdk.SnowflakeRateLimit))
	return c
}

// AccountURL returns the default SQL API host of an account identifier.
func AccountURL(account string) string {
	return "https://" + strings.ToLower(account) + ".snowflakecomputing.com"
}

// Connect builds the authenticated client and runs a probe statement.
func (c *SnowflakeConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	if err := c.Configure(config); err != nil {
		return err
	}

	ctx, cancel := c.WithTimeout(ctx, 0)
	defer cancel()

	baseURL, err := c.ResolveBaseURL(AccountURL(c.GetCredential("account")), base.SnowflakeHostSuffixes)
	if err != nil {
		return err
	}

	headers := map[string]string{"Accept": "application/json"}
	var auth sdk.AuthProvider
	if token := c.GetCredential("token"); token != "" {
		auth = sdk.NewBearerTokenAuth(token, time.Time{})
		headers["X-Snowflake-Authorization-Token-Type"] = "OAUTH"
	} else {
		key, err := sdk.ParseRSAPrivateKey(c.GetCredential("private_key"))
		if err != nil {
			return base.NewConnectorError(config.Name, "Connect", "invalid private_key", err)
		}
		if auth, err = sdk.NewKeyPairJWTAuth(c.GetCredential("account"), c.GetCredential("username"), key); err != nil {
			return base.NewConnectorError(config.Name, "Connect", "key-pair auth setup failed", err)
		}
	}
	c.SetAuthProvider(auth)

	c.maxResponse = int64(c.GetIntOption("max_response_bytes", DefaultMaxResponseSize))
	c.client, err = sdk.NewRESTClient(sdk.RESTClientConfig{
		BaseURL:         baseURL,
		Auth:            auth,
		Limiter:         c.GetRateLimiter(),
		Retry:           c.GetRetryConfig(),
		Headers:         headers,
		Timeout:         c.GetTimeout(),
		MaxResponseSize: c.maxResponse,
		OnRateLimited:   func(time.Duration) { c.GetMetrics().RecordRateLimited() },
	})
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid account URL", err)
	}

	c.session = statementRequest{
		Database:  c.GetStringOption("database", ""),
		Schema:    c.GetStringOption("schema", ""),
		Warehouse: c.GetStringOption("warehouse", ""),
		Role:      c.GetStringOption("role", ""),
	}
	c.pollInterval = c.GetDurationOption("poll_interval", DefaultPollInterval)

	if _, err := c.run(ctx, "SELECT CURRENT_VERSION() AS VERSION", nil); err != nil {
		return base.NewConnectorError(config.Name, "Connect", "probe statement failed", c.vendorError(err))
	}

	c.Logger().Info(config.TenantID, "", "snowflake connected", map[string]interface{}{
		"url":       baseURL,
		"warehouse": c.session.Warehouse,
		"auth":      auth.Type(),
	})
	c.MarkConnected()
	return nil
}

// Disconnect releases pooled connections.
func (c *SnowflakeConnector) Disconnect(ctx context.Context) error {
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	return c.BaseConnector.Disconnect(ctx)
}

// HealthCheck runs a trivial statement.
func (c *SnowflakeConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return c.ProbeHealth(ctx, func(ctx context.Context) (map[string]string, error) {
		res, err := c.run(ctx, "SELECT CURRENT_VERSION() AS VERSION", nil)
		if err != nil {
			return nil, c.vendorError(err)
		}
		details := map[string]string{"warehouse": c.session.Warehouse}
		if rows := res.rows(); len(rows) > 0 {
			details["version"] = fmt.Sprint(rows[0]["VERSION"])
		}
		return details, nil
	})
}

// result is a completed statement with all partitions loaded.
type result struct {
	handle  string
	columns []Column
	data    [][]*string
	stats   *Stats
}

func (r *result) rows() []map[string]interface{} {
	return DecodeRows(r.columns, r.data)
}

// affected prefers the statement stats and falls back to the
// "number of rows ..." columns DML statements return as data.
func (r *result) affected() int64 {
	if r.stats != nil {
		return r.stats.Affected()
	}
	var n int64
	for _, row := range r.rows() {
		for name, v := range row {
			if !strings.HasPrefix(strings.ToLower(name), "number of rows") {
				continue
			}
			if x, ok := v.(int64); ok {
				n += x
			}
		}
	}
	return n
}

// run submits a statement, waits for it to complete and loads every
// partition of its result.
func (c *SnowflakeConnector) run(ctx context.Context, statement string, bindings map[string]Binding) (*result, error) {
	req := c.session
	req.Statement = statement
	req.Bindings = bindings
	if deadline, ok := ctx.Deadline(); ok {
		if secs := int(time.Until(deadline).Seconds()); secs > 0 {
			req.Timeout = secs
		}
	}

	resp, err := c.client.Do(ctx, &sdk.Request{
		Method: http.MethodPost,
		Path:   statementsPath,
		Query:  url.Values{"requestId": {uuid.NewString()}},
		Body:   req,
	})
	if err != nil {
		return nil, err
	}
	var body statementResponse
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusAccepted {
		if body, err = c.poll(ctx, body.StatementHandle); err != nil {
			return nil, err
		}
	}
	return c.collect(ctx, &body)
}

// poll waits for an asynchronous statement. When ctx ends first the
// statement is cancelled on a detached context.
func (c *SnowflakeConnector) poll(ctx context.Context, handle string) (statementResponse, error) {
	if handle == "" {
		return statementResponse{}, errors.New("asynchronous statement has no handle")
	}
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return statementResponse{}, c.abandon(ctx, handle)
		case <-timer.C:
		}

		resp, err := c.client.Do(ctx, &sdk.Request{Method: http.MethodGet, Path: statementsPath + "/" + url.PathEscape(handle)})
		if err != nil {
			if ctx.Err() != nil {
				return statementResponse{}, c.abandon(ctx, handle)
			}
			return statementResponse{}, err
		}
		var body statementResponse
		if err := resp.Decode(&body); err != nil {
			return statementResponse{}, err
		}
		if resp.StatusCode != http.StatusAccepted {
			return body, nil
		}
		timer.Reset(c.pollInterval)
	}
}

func (c *SnowflakeConnector) abandon(ctx context.Context, handle string) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := c.cancel(cctx, handle); err != nil {
		c.Logger().Warn(c.GetConfig().TenantID, "", "statement cancel failed", map[string]interface{}{
			"statement_handle": handle,
			"error":            err.Error(),
		})
	}
	return fmt.Errorf("statement %s did not finish: %w", handle, ctx.Err())
}

func (c *SnowflakeConnector) collect(ctx context.Context, body *statementResponse) (*result, error) {
	res := &result{handle: body.StatementHandle, data: body.Data, stats: body.Stats}
	if body.ResultSetMetaData == nil {
		return res, nil
	}
	res.columns = body.ResultSetMetaData.RowType

	for i := 1; i < len(body.ResultSetMetaData.PartitionInfo); i++ {
		var part statementResponse
		q := url.Values{"partition": {fmt.Sprint(i)}}
		if err := c.client.Get(ctx, statementsPath+"/"+url.PathEscape(body.StatementHandle), q, &part); err != nil {
			return nil, fmt.Errorf("failed to fetch partition %d: %w", i, err)
		}
		res.data = append(res.data, part.Data...)
	}
	return res, nil
}

func (c *SnowflakeConnector) cancel(ctx context.Context, handle string) error {
	return c.client.Post(ctx, statementsPath+"/"+url.PathEscape(handle)+"/cancel", map[string]interface{}{}, nil)
}

// Query runs a SELECT or SHOW statement, or one of the named statements.
func (c *SnowflakeConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if err := c.RequireConnected("Query"); err != nil {
		return nil, err
	}
	if query == nil || strings.TrimSpace(query.Statement) == "" {
		return nil, base.NewParameterError(c.Name(), "Query", "statement is required")
	}

	ctx, cancel := c.WithTimeout(ctx, query.Timeout)
	defer cancel()

	start := time.Now()
	res, err := c.runQuery(ctx, query)
	c.Track(ctx, "Query", query.Statement, start, err)
	if err != nil {
		return nil, c.wrap("Query", err)
	}

	rows := res.rows()
	total := len(rows)
	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}
	columns := make([]string, len(res.columns))
	for i, col := range res.columns {
		columns[i] = col.Name
	}

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Connector: c.Name(),
		Metadata: map[string]interface{}{
			"statement_handle": res.handle,
			"columns":          columns,
			"total_rows":       total,
		},
	}, nil
}

func (c *SnowflakeConnector) runQuery(ctx context.Context, query *base.Query) (*result, error) {
	sql, named, err := namedStatement(query.Statement, sdk.Params(query.Parameters))
	if err != nil {
		return nil, err
	}
	if named {
		return c.run(ctx, sql, nil)
	}
	bindings, err := BuildBindings(query.Parameters)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, query.Statement, bindings)
}

// Execute runs the sql or cancel action.
func (c *SnowflakeConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if err := c.RequireConnected("Execute"); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, base.NewParameterError(c.Name(), "Execute", "command cannot be nil")
	}

	ctx, cancel := c.WithTimeout(ctx, cmd.Timeout)
	defer cancel()

	start := time.Now()
	meta := map[string]interface{}{}
	var affected int64
	var err error

	switch cmd.Action {
	case "sql", "":
		affected, err = c.execSQL(ctx, cmd, meta)
	case "cancel":
		var handle string
		if handle, err = sdk.Params(cmd.Parameters).Require("statement_handle"); err == nil {
			err = c.cancel(ctx, handle)
			meta["statement_handle"] = handle
		}
	default:
		err = base.ErrUnsupportedOperation
	}

	c.Track(ctx, "Execute", cmd.Action, start, err)
	if err != nil {
		if errors.Is(err, base.ErrUnsupportedOperation) {
			return nil, base.NewUnsupportedError(c.Name(), "Execute", cmd.Action)
		}
		return nil, c.wrap("Execute", err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: int(affected),
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("%d rows affected", affected),
		Connector:    c.Name(),
		Metadata:     meta,
	}, nil
}

func (c *SnowflakeConnector) execSQL(ctx context.Context, cmd *base.Command, meta map[string]interface{}) (int64, error) {
	if strings.TrimSpace(cmd.Statement) == "" {
		return 0, &sdk.MissingParamError{Key: "statement"}
	}
	bindings, err := BuildBindings(cmd.Parameters)
	if err != nil {
		return 0, err
	}
	res, err := c.run(ctx, cmd.Statement, bindings)
	if err != nil {
		return 0, err
	}
	meta["statement_handle"] = res.handle
	return res.affected(), nil
}

// vendorError replaces an HTTPError with the SQL API error it carries.
func (c *SnowflakeConnector) vendorError(err error) error {
	var herr *sdk.HTTPError
	if errors.As(err, &herr) {
		if apiErr := parseAPIError(herr.StatusCode, herr.Body); apiErr != nil {
			return apiErr
		}
	}
	return err
}

func (c *SnowflakeConnector) wrap(op string, err error) error {
	if errors.Is(err, base.ErrUnsupportedOperation) || errors.Is(err, base.ErrInvalidParameter) {
		return base.NewConnectorError(c.Name(), op, err.Error(), err)
	}
	return base.NewConnectorError(c.Name(), op, "statement failed", c.vendorError(err))
}
