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
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/shared/logger"
)

// DefaultTimeout applies when a config carries no timeout.
const DefaultTimeout = 30 * time.Second

// BaseConnector carries the state every vendor connector shares: config,
// lifecycle flag, logger, auth, limiter, retry policy and metrics.
// Vendor connectors embed it and implement Query, Execute and HealthCheck.
type BaseConnector struct {
	name         string
	connType     string
	version      string
	capabilities []string
	config       *base.ConnectorConfig
	connected    bool
	logger       *logger.Logger
	authProvider AuthProvider
	rateLimiter  *RateLimiter
	retryConfig  *RetryConfig
	validator    ConfigValidator
	metrics      *ConnectorMetrics
	mu           sync.RWMutex
}

// NewBaseConnector creates a new base connector with the given type
func NewBaseConnector(connType string) *BaseConnector {
	return &BaseConnector{
		connType:     connType,
		version:      "1.0.0",
		capabilities: []string{"query", "execute"},
		logger:       logger.New(connType),
		retryConfig:  DefaultRetryConfig(),
		metrics:      NewConnectorMetrics(connType),
	}
}

// Configure validates and stores config without marking the connector connected.
func (c *BaseConnector) Configure(config *base.ConnectorConfig) error {
	if config == nil {
		return base.NewConnectorError(c.connType, "Connect", "config cannot be nil", base.ErrInvalidParameter)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.validator != nil {
		if err := c.validator.Validate(config); err != nil {
			return base.NewConnectorError(config.Name, "Connect", "configuration validation failed", err)
		}
		if dv, ok := c.validator.(*DefaultConfigValidator); ok {
			dv.ApplyDefaults(config)
		}
	}

	c.config = config
	c.name = config.Name
	if c.config.Timeout == 0 {
		c.config.Timeout = DefaultTimeout
	}
	if config.MaxRetries > 0 && c.retryConfig != nil {
		c.retryConfig.MaxRetries = config.MaxRetries
	}
	c.metrics.SetName(config.Name)
	c.logger = logger.New(c.connType + "." + config.Name)
	return nil
}

// Connect configures the connector and marks it connected.
func (c *BaseConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	if err := c.Configure(config); err != nil {
		return err
	}
	c.MarkConnected()
	return nil
}

// MarkConnected flips the lifecycle flag once vendor setup has succeeded.
func (c *BaseConnector) MarkConnected() {
	c.mu.Lock()
	c.connected = true
	name := c.name
	c.mu.Unlock()

	c.metrics.RecordConnect()
	c.logger.Info(c.tenantID(), "", "connector connected", map[string]interface{}{
		"connector": name,
		"type":      c.connType,
	})
}

// Disconnect marks the connector disconnected.
func (c *BaseConnector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	name := c.name
	c.mu.Unlock()

	c.metrics.RecordDisconnect()
	c.logger.Info(c.tenantID(), "", "connector disconnected", map[string]interface{}{"connector": name})
	return nil
}

// HealthCheck reports the lifecycle state only. Vendor connectors override it
// with a real API probe.
func (c *BaseConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &base.HealthStatus{
		Healthy:   c.connected,
		Timestamp: time.Now(),
		Details: map[string]string{
			"connector_type": c.connType,
			"version":        c.version,
		},
	}
	if !c.connected {
		status.Error = "not connected"
	}
	return status, nil
}

// ProbeHealth runs probe and turns its outcome into a HealthStatus.
func (c *BaseConnector) ProbeHealth(ctx context.Context, probe func(ctx context.Context) (map[string]string, error)) (*base.HealthStatus, error) {
	if !c.IsConnected() {
		return &base.HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Error:     "not connected",
			Details:   map[string]string{"connector_type": c.connType},
		}, nil
	}

	ctx, cancel := c.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	details, err := probe(ctx)
	status := &base.HealthStatus{
		Healthy:   err == nil,
		Latency:   time.Since(start),
		Timestamp: time.Now(),
		Details:   map[string]string{"connector_type": c.connType, "version": c.version},
	}
	for k, v := range details {
		status.Details[k] = v
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}

// RequireConnected returns a ConnectorError wrapping base.ErrNotConnected when
// the connector has not been connected.
func (c *BaseConnector) RequireConnected(operation string) error {
	if c.IsConnected() {
		return nil
	}
	return base.NewConnectorError(c.Name(), operation, "not connected", base.ErrNotConnected)
}

// Track records metrics for a finished operation and logs failures.
func (c *BaseConnector) Track(ctx context.Context, operation, statement string, start time.Time, err error) {
	d := time.Since(start)
	switch operation {
	case "Execute":
		c.metrics.RecordExecute(d, err)
	default:
		c.metrics.RecordQuery(d, err)
	}

	fields := map[string]interface{}{
		"operation": operation,
		"statement": base.SanitizeLogString(statement),
	}
	if err != nil {
		fields["error"] = err.Error()
		c.logger.Log(logger.WARN, GetTenantID(ctx), GetRequestID(ctx), "connector operation failed", fields)
		return
	}
	c.logger.InfoWithDuration(GetTenantID(ctx), GetRequestID(ctx), "connector operation completed", d, fields)
}

// Name returns the connector instance name
func (c *BaseConnector) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.name != "" {
		return c.name
	}
	return c.connType
}

// Type returns the connector type
func (c *BaseConnector) Type() string {
	return c.connType
}

// Version returns the connector version
func (c *BaseConnector) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Capabilities returns the list of supported capabilities
func (c *BaseConnector) Capabilities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capabilities
}

// Logger returns the connector logger
func (c *BaseConnector) Logger() *logger.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// SetLogger replaces the connector logger
func (c *BaseConnector) SetLogger(l *logger.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
}

// SetAuthProvider sets the authentication provider
func (c *BaseConnector) SetAuthProvider(auth AuthProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authProvider = auth
}

// GetAuthProvider returns the authentication provider
func (c *BaseConnector) GetAuthProvider() AuthProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authProvider
}

// SetRateLimiter sets the rate limiter
func (c *BaseConnector) SetRateLimiter(limiter *RateLimiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimiter = limiter
}

// GetRateLimiter returns the rate limiter
func (c *BaseConnector) GetRateLimiter() *RateLimiter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateLimiter
}

// SetRetryConfig sets the retry configuration
func (c *BaseConnector) SetRetryConfig(config *RetryConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryConfig = config
}

// GetRetryConfig returns the retry configuration
func (c *BaseConnector) GetRetryConfig() *RetryConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retryConfig
}

// SetValidator sets the configuration validator
func (c *BaseConnector) SetValidator(validator ConfigValidator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validator = validator
}

// GetMetrics returns the connector metrics
func (c *BaseConnector) GetMetrics() *ConnectorMetrics {
	return c.metrics
}

// IsConnected returns the connection status
func (c *BaseConnector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// GetConfig returns the connector configuration
func (c *BaseConnector) GetConfig() *base.ConnectorConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// SetCapabilities sets the connector capabilities
func (c *BaseConnector) SetCapabilities(caps ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capabilities = caps
}

// SetVersion sets the connector version
func (c *BaseConnector) SetVersion(version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = version
}

// SetConnected sets the connection status. Primarily useful for testing.
func (c *BaseConnector) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

func (c *BaseConnector) tenantID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.config == nil {
		return ""
	}
	return c.config.TenantID
}

// GetTimeout returns the configured timeout or default
func (c *BaseConnector) GetTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.config != nil && c.config.Timeout > 0 {
		return c.config.Timeout
	}
	return DefaultTimeout
}

// WithTimeout derives a context bounded by override, or the configured timeout when override is zero.
func (c *BaseConnector) WithTimeout(ctx context.Context, override time.Duration) (context.Context, context.CancelFunc) {
	if override <= 0 {
		override = c.GetTimeout()
	}
	return context.WithTimeout(ctx, override)
}

// GetOption retrieves an option value from config
func (c *BaseConnector) GetOption(key string, defaultValue interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.config == nil || c.config.Options == nil {
		return defaultValue
	}
	if val, ok := c.config.Options[key]; ok && val != nil {
		return val
	}
	return defaultValue
}

// GetStringOption retrieves a string option
func (c *BaseConnector) GetStringOption(key, defaultValue string) string {
	if s, ok := c.GetOption(key, defaultValue).(string); ok && s != "" {
		return s
	}
	return defaultValue
}

// GetIntOption retrieves an integer option. Numeric strings are accepted.
func (c *BaseConnector) GetIntOption(key string, defaultValue int) int {
	if n, ok := AsInt(c.GetOption(key, defaultValue)); ok {
		return n
	}
	return defaultValue
}

// GetBoolOption retrieves a boolean option. "true"/"false" strings are accepted.
func (c *BaseConnector) GetBoolOption(key string, defaultValue bool) bool {
	switch v := c.GetOption(key, defaultValue).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetDurationOption retrieves a duration given as a Go duration string or as seconds.
func (c *BaseConnector) GetDurationOption(key string, defaultValue time.Duration) time.Duration {
	switch v := c.GetOption(key, nil).(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(n * float64(time.Second))
		}
	default:
		if f, ok := AsFloat(v); ok {
			return time.Duration(f * float64(time.Second))
		}
	}
	return defaultValue
}

// GetStringSliceOption retrieves a list option given as a list or a comma-separated string.
func (c *BaseConnector) GetStringSliceOption(key string) []string {
	return AsStringSlice(c.GetOption(key, nil))
}

// GetCredential retrieves a credential value
func (c *BaseConnector) GetCredential(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.config == nil || c.config.Credentials == nil {
		return ""
	}
	return c.config.Credentials[key]
}

// Call runs fn under the connector's rate limiter and retry policy. A
// rate-limited failure pushes the limiter into backoff before the retry.
func Call[T any](ctx context.Context, c *BaseConnector, fn func(ctx context.Context) (T, error)) (T, error) {
	limiter := c.GetRateLimiter()
	rc := c.GetRetryConfig()
	if rc == nil {
		rc = DefaultRetryConfig()
	}
	cfg := *rc
	inner := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		if isRateLimited(err) {
			c.metrics.RecordRateLimited()
			if limiter != nil {
				limiter.Backoff(wait)
			}
		}
		c.Logger().Warn(GetTenantID(ctx), GetRequestID(ctx), "retrying vendor call", map[string]interface{}{
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
		if inner != nil {
			inner(attempt, err, wait)
		}
	}

	return RetryWithBackoff(ctx, &cfg, func() (T, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				var zero T
				return zero, &NonRetryableError{Err: fmt.Errorf("rate limiter wait: %w", err)}
			}
		}
		return fn(ctx)
	})
}

func isRateLimited(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests
	}
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}
	return GetRetryAfter(err) > 0 || strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

// ResolveBaseURL returns the vendor base URL: the config's connection_url
// override when set, otherwise defaultURL. Overrides must be https on one of
// the vendor suffixes unless the allow_private_ips option is true.
func (c *BaseConnector) ResolveBaseURL(defaultURL string, suffixes []string) (string, error) {
	cfg := c.GetConfig()
	if cfg == nil || cfg.ConnectionURL == "" {
		return strings.TrimSuffix(defaultURL, "/"), nil
	}

	opts := base.VendorURLValidationOptions(suffixes)
	if c.GetBoolOption("allow_private_ips", false) {
		opts = base.URLValidationOptions{
			AllowPrivateIPs: true,
			AllowedSchemes:  []string{"https", "http"},
		}
	}
	if err := base.ValidateURL(cfg.ConnectionURL, opts); err != nil {
		return "", base.NewConnectorError(c.Name(), "Connect", "connection_url rejected", err)
	}
	return strings.TrimSuffix(cfg.ConnectionURL, "/"), nil
}
