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
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries      int              // Maximum number of retry attempts
	InitialInterval time.Duration    // Initial wait interval
	MaxInterval     time.Duration    // Maximum wait interval
	Multiplier      float64          // Backoff multiplier
	Jitter          float64          // Jitter factor (0-1)
	RetryIf         func(error) bool // Custom retry condition

	// OnRetry is called before each wait with the failed attempt number (1-based).
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryConfig returns the retry policy used by all vendor clients
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     60 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.1,
		RetryIf:         DefaultRetryCondition,
	}
}

// HTTPError is a non-2xx response from a vendor API.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s returned status %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// HTTPStatus implements base.StatusCoder.
func (e *HTTPError) HTTPStatus() int { return e.StatusCode }

// IsTransientStatus reports whether a status code is worth retrying for any method.
func IsTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// isTransientForMethod widens IsTransientStatus with 500 and 502 for idempotent methods.
func isTransientForMethod(method string, code int) bool {
	if IsTransientStatus(code) {
		return true
	}
	if method == http.MethodGet || method == http.MethodHead {
		return code == http.StatusInternalServerError || code == http.StatusBadGateway
	}
	return false
}

// ParseRetryAfter reads a Retry-After header given either in seconds or as an HTTP date.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// transientPatterns are matched against error text from vendor SDKs that do not
// expose a status code.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
	"ratelimited",
	"timeout",
	"429",
	"503",
	"504",
}

// DefaultRetryCondition returns true for transient errors
func DefaultRetryCondition(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return isTransientForMethod(httpErr.Method, httpErr.StatusCode)
	}

	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// RetryableError wraps an error to indicate it should be retried
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is marked as retryable
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// GetRetryAfter returns the server-requested wait carried by err, if any.
func GetRetryAfter(err error) time.Duration {
	var retryable *RetryableError
	if errors.As(err, &retryable) && retryable.RetryAfter > 0 {
		return retryable.RetryAfter
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return rlErr.RetryAfter
	}
	return 0
}

// NonRetryableError wraps an error to indicate it should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return e.Err.Error()
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nonRetryable *NonRetryableError
	return errors.As(err, &nonRetryable)
}

// RetryFunc is the function type that can be retried
type RetryFunc[T any] func() (T, error)

// RetryWithBackoff executes fn with exponential backoff. A server-provided
// Retry-After replaces the computed interval for that attempt only.
func RetryWithBackoff[T any](ctx context.Context, config *RetryConfig, fn RetryFunc[T]) (T, error) {
	var zero T

	if config == nil {
		config = DefaultRetryConfig()
	}

	backoff := NewBackoff(config.InitialInterval, config.MaxInterval, config.Multiplier, config.Jitter)
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return zero, err
		}
		if !IsRetryable(err) && config.RetryIf != nil && !config.RetryIf(err) {
			return zero, err
		}
		if attempt >= config.MaxRetries {
			break
		}

		waitTime := backoff.Next()
		if retryAfter := GetRetryAfter(err); retryAfter > 0 {
			waitTime = retryAfter
		}
		if config.MaxInterval > 0 && waitTime > config.MaxInterval {
			waitTime = config.MaxInterval
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, waitTime)
		}

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &RetryError{
		Err:      lastErr,
		Attempts: config.MaxRetries + 1,
	}
}

// RetryVoid executes a void function with retry
func RetryVoid(ctx context.Context, config *RetryConfig, fn func() error) error {
	_, err := RetryWithBackoff(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryError indicates all retry attempts failed
type RetryError struct {
	Err      error
	Attempts int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// CircuitBreaker stops calling a vendor after maxFailures consecutive
// failures and lets a probe through once resetTimeout has elapsed.
type CircuitBreaker struct {
	name            string
	maxFailures     int
	resetTimeout    time.Duration
	halfOpenMax     int
	failures        int
	state           circuitState
	lastFailureTime time.Time
	halfOpenSuccess int
	mu              sync.Mutex
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  1,
		state:        circuitClosed,
	}
}

// Execute runs fn through the breaker. Only errors for which countFailure
// returns true open the circuit; nil countFailure counts every error.
func (cb *CircuitBreaker) Execute(fn func() error, countFailure func(error) bool) error {
	cb.mu.Lock()
	if cb.state == circuitOpen {
		if time.Since(cb.lastFailureTime) <= cb.resetTimeout {
			cb.mu.Unlock()
			return &CircuitBreakerOpenError{Name: cb.name}
		}
		cb.state = circuitHalfOpen
		cb.halfOpenSuccess = 0
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && (countFailure == nil || countFailure(err)) {
		cb.failures++
		cb.lastFailureTime = time.Now()
		if cb.state == circuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = circuitOpen
		}
		return err
	}

	if cb.state == circuitHalfOpen {
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.halfOpenMax {
			cb.state = circuitClosed
			cb.failures = 0
		}
	} else {
		cb.failures = 0
	}
	return err
}

// State returns the current circuit state as a string
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerOpenError indicates the circuit is open
type CircuitBreakerOpenError struct {
	Name string
}

func (e *CircuitBreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open", e.Name)
}

// HTTPStatus implements base.StatusCoder.
func (e *CircuitBreakerOpenError) HTTPStatus() int { return http.StatusServiceUnavailable }

// Backoff calculates exponential backoff with optional jitter
type Backoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
	attempt         int
}

// NewBackoff creates a new backoff calculator
func NewBackoff(initial, max time.Duration, multiplier, jitter float64) *Backoff {
	if multiplier < 1 {
		multiplier = 1
	}
	return &Backoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		Jitter:          jitter,
	}
}

// Next returns the next backoff duration
func (b *Backoff) Next() time.Duration {
	interval := float64(b.InitialInterval) * math.Pow(b.Multiplier, float64(b.attempt))
	if b.MaxInterval > 0 && interval > float64(b.MaxInterval) {
		interval = float64(b.MaxInterval)
	}
	if b.Jitter > 0 {
		interval += interval * b.Jitter * (rand.Float64()*2 - 1)
	}
	b.attempt++
	return time.Duration(interval)
}

// Reset resets the backoff to initial state
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns the current attempt number
func (b *Backoff) Attempt() int {
	return b.attempt
}
