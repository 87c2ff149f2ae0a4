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
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxResponseSize is the maximum response body size (10MB)
	DefaultMaxResponseSize = 10 * 1024 * 1024

	maxErrorBody = 512
)

// RESTClientConfig configures a RESTClient.
type RESTClientConfig struct {
	BaseURL         string
	Auth            AuthProvider
	Limiter         *RateLimiter
	Retry           *RetryConfig
	Breaker         *CircuitBreaker
	Headers         map[string]string
	UserAgent       string
	Timeout         time.Duration
	MaxResponseSize int64
	HTTPClient      *http.Client

	// OnRateLimited is called for every 429 with the server's Retry-After.
	OnRateLimited func(retryAfter time.Duration)
}

// Request is one vendor API call. Path is joined to the base URL unless it
// is already absolute (pagination links), in which case it must share the
// base URL's host.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        interface{} // JSON-encoded when set
	RawBody     []byte
	ContentType string
	Headers     map[string]string
}

// Response is a successful (2xx) vendor response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into out.
func (r *Response) Decode(out interface{}) error {
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// RESTClient performs JSON calls against one vendor API: URL building, auth,
// rate limiting, transient-status retries and a response size cap.
type RESTClient struct {
	mu              sync.RWMutex
	baseURL         *url.URL
	auth            AuthProvider
	limiter         *RateLimiter
	retry           *RetryConfig
	breaker         *CircuitBreaker
	headers         map[string]string
	userAgent       string
	maxResponseSize int64
	httpClient      *http.Client
	onRateLimited   func(time.Duration)
}

// NewRESTClient creates a client. The base URL may be empty when every
// request carries an absolute path, or when it is set later with SetBaseURL.
func NewRESTClient(cfg RESTClientConfig) (*RESTClient, error) {
	c := &RESTClient{
		auth:            cfg.Auth,
		limiter:         cfg.Limiter,
		retry:           cfg.Retry,
		breaker:         cfg.Breaker,
		headers:         cfg.Headers,
		userAgent:       cfg.UserAgent,
		maxResponseSize: cfg.MaxResponseSize,
		httpClient:      cfg.HTTPClient,
		onRateLimited:   cfg.OnRateLimited,
	}
	if c.retry == nil {
		c.retry = DefaultRetryConfig()
	}
	if c.maxResponseSize <= 0 {
		c.maxResponseSize = DefaultMaxResponseSize
	}
	if c.userAgent == "" {
		c.userAgent = "saasbridge/" + Version
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient(cfg.Timeout)
	}
	if cfg.BaseURL != "" {
		if err := c.SetBaseURL(cfg.BaseURL); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewHTTPClient returns an http.Client with pooled connections and TLS 1.2+.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// SetBaseURL replaces the base URL (DocuSign learns its base_uri after login).
func (c *RESTClient) SetBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must use http or https scheme")
	}
	c.mu.Lock()
	c.baseURL = u
	c.mu.Unlock()
	return nil
}

// BaseURL returns the current base URL.
func (c *RESTClient) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.baseURL == nil {
		return ""
	}
	return c.baseURL.String()
}

// CloseIdleConnections releases pooled connections.
func (c *RESTClient) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func (c *RESTClient) resolve(path string, query url.Values) (string, error) {
	c.mu.RLock()
	baseURL := c.baseURL
	c.mu.RUnlock()

	var u *url.URL
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		parsed, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("invalid URL %q: %w", path, err)
		}
		if baseURL != nil && !strings.EqualFold(parsed.Host, baseURL.Host) {
			return "", fmt.Errorf("refusing to follow link to foreign host %q", parsed.Host)
		}
		u = parsed
	} else {
		if baseURL == nil {
			return "", fmt.Errorf("base URL is not set")
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		rel, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("invalid path %q: %w", path, err)
		}
		joined := *baseURL
		joined.Path = baseURL.Path + rel.Path
		joined.RawPath = ""
		joined.RawQuery = rel.RawQuery
		u = &joined
	}

	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Do sends req with retry on transient failures. Non-2xx responses come
// back as *HTTPError.
func (c *RESTClient) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, &NonRetryableError{Err: err}
	}

	body := req.RawBody
	contentType := req.ContentType
	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, &NonRetryableError{Err: fmt.Errorf("failed to marshal body: %w", err)}
		}
		contentType = "application/json"
	}

	refreshed := false
	attempt := func() (*Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &NonRetryableError{Err: fmt.Errorf("rate limiter wait: %w", err)}
			}
		}
		resp, err := c.send(ctx, method, target, body, contentType, req.Headers)
		if herr, ok := err.(*HTTPError); ok && herr.StatusCode == http.StatusUnauthorized && !refreshed && c.auth != nil {
			refreshed = true
			if rerr := c.auth.Refresh(ctx); rerr == nil {
				return c.send(ctx, method, target, body, contentType, req.Headers)
			}
		}
		return resp, err
	}

	return RetryWithBackoff(ctx, c.retry, func() (*Response, error) {
		if c.breaker == nil {
			return attempt()
		}
		var resp *Response
		err := c.breaker.Execute(func() error {
			var e error
			resp, e = attempt()
			return e
		}, DefaultRetryCondition)
		if _, open := err.(*CircuitBreakerOpenError); open {
			return nil, &NonRetryableError{Err: err}
		}
		return resp, err
	})
}

func (c *RESTClient) send(ctx context.Context, method, target string, body []byte, contentType string, headers map[string]string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &NonRetryableError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	if c.auth != nil {
		if err := c.auth.Authenticate(ctx, httpReq); err != nil {
			return nil, &NonRetryableError{Err: fmt.Errorf("authentication failed: %w", err)}
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > c.maxResponseSize {
		return nil, &NonRetryableError{Err: fmt.Errorf("response size exceeds limit of %d bytes", c.maxResponseSize)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &HTTPError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        redactQuery(target),
			Body:       truncate(string(data), maxErrorBody),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if c.limiter != nil {
				c.limiter.Backoff(herr.RetryAfter)
			}
			if c.onRateLimited != nil {
				c.onRateLimited(herr.RetryAfter)
			}
		}
		return nil, herr
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// DoJSON sends req and decodes the body into out.
func (c *RESTClient) DoJSON(ctx context.Context, req *Request, out interface{}) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp, resp.Decode(out)
}

// Get issues a GET and decodes the JSON body into out.
func (c *RESTClient) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	_, err := c.DoJSON(ctx, &Request{Method: http.MethodGet, Path: path, Query: query}, out)
	return err
}

// Post issues a POST with a JSON body and decodes the response into out.
func (c *RESTClient) Post(ctx context.Context, path string, body, out interface{}) error {
	_, err := c.DoJSON(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
	return err
}

// Put issues a PUT with a JSON body and decodes the response into out.
func (c *RESTClient) Put(ctx context.Context, path string, body, out interface{}) error {
	_, err := c.DoJSON(ctx, &Request{Method: http.MethodPut, Path: path, Body: body}, out)
	return err
}

// Patch issues a PATCH with a JSON body and decodes the response into out.
func (c *RESTClient) Patch(ctx context.Context, path string, body, out interface{}) error {
	_, err := c.DoJSON(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body}, out)
	return err
}

// Delete issues a DELETE.
func (c *RESTClient) Delete(ctx context.Context, path string) error {
	_, err := c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
	return err
}

// ConvertToRows flattens a decoded JSON value into result rows.
func ConvertToRows(result interface{}) []map[string]interface{} {
	switch v := result.(type) {
	case nil:
		return []map[string]interface{}{}
	case []map[string]interface{}:
		return v
	case []interface{}:
		rows := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if itemMap, ok := item.(map[string]interface{}); ok {
				rows = append(rows, itemMap)
			} else {
				rows = append(rows, map[string]interface{}{"value": item})
			}
		}
		return rows
	case map[string]interface{}:
		return []map[string]interface{}{v}
	default:
		return []map[string]interface{}{{"value": v}}
	}
}

// ToRows converts any JSON-encodable value (typically a slice of structs) into rows.
func ToRows(v interface{}) ([]map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return ConvertToRows(decoded), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// redactQuery drops the query string so tokens and cursors stay out of errors.
func redactQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
