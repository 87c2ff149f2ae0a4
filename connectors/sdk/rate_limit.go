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
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default request rates per vendor. Bursts follow the documented limits:
// Slack tier 3 (~50/min), HubSpot 100 per 10s, Graph ~10k per 10 min.
var (
	SlackRateLimit      = RateLimitConfig{RequestsPerSecond: 1, Burst: 5}
	DocuSignRateLimit   = RateLimitConfig{RequestsPerSecond: 2, Burst: 10}
	SnowflakeRateLimit  = RateLimitConfig{RequestsPerSecond: 5, Burst: 10}
	HubSpotRateLimit    = RateLimitConfig{RequestsPerSecond: 10, Burst: 100}
	SharePointRateLimit = RateLimitConfig{RequestsPerSecond: 10, Burst: 15}
)

// DefaultBackoff is applied when a 429 carries no Retry-After.
const DefaultBackoff = 30 * time.Second

// RateLimitConfig holds the sustained rate and burst for a limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// RateLimiter is a fixed-rate token bucket with a server-imposed backoff window.
// Every outgoing vendor call waits on it, and a 429 pushes the window forward.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.Mutex
	retryAt time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     time.Now,
	}
}

// NewRateLimiterWithConfig creates a limiter from a RateLimitConfig.
func NewRateLimiterWithConfig(cfg RateLimitConfig) *RateLimiter {
	return NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
}

// Wait blocks until the backoff window has passed and a token is available.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if d := retryAt.Sub(r.now()); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.limiter.Wait(ctx)
}

// TryAcquire takes a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	if r.InBackoff() {
		return false
	}
	return r.limiter.Allow()
}

// Backoff blocks all callers for retryAfter (DefaultBackoff when zero or negative).
// A shorter window never shortens one already in place.
func (r *RateLimiter) Backoff(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = DefaultBackoff
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	until := r.now().Add(retryAfter)
	if until.After(r.retryAt) {
		r.retryAt = until
	}
}

// InBackoff reports whether a backoff window is active.
func (r *RateLimiter) InBackoff() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Before(r.retryAt)
}

// RetryAt returns the end of the current backoff window (zero if none was set).
func (r *RateLimiter) RetryAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryAt
}

// Reset clears the backoff window.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryAt = time.Time{}
}

// SetRate updates the rate limit dynamically
func (r *RateLimiter) SetRate(rps float64, burst int) {
	r.limiter.SetLimit(rate.Limit(rps))
	r.limiter.SetBurst(burst)
}

// Limit returns the sustained rate in requests per second.
func (r *RateLimiter) Limit() float64 {
	return float64(r.limiter.Limit())
}

// MultiTenantRateLimiter provides per-tenant rate limiting
type MultiTenantRateLimiter struct {
	limiters map[string]*RateLimiter
	defaults RateLimitConfig
	mu       sync.RWMutex
}

// NewMultiTenantRateLimiter creates a rate limiter that supports multiple tenants
func NewMultiTenantRateLimiter(cfg RateLimitConfig) *MultiTenantRateLimiter {
	return &MultiTenantRateLimiter{
		limiters: make(map[string]*RateLimiter),
		defaults: cfg,
	}
}

// Wait blocks until a token is available for the given tenant
func (m *MultiTenantRateLimiter) Wait(ctx context.Context, tenantID string) error {
	return m.getLimiter(tenantID).Wait(ctx)
}

// TryAcquire attempts to acquire a token for the given tenant without blocking
func (m *MultiTenantRateLimiter) TryAcquire(tenantID string) bool {
	return m.getLimiter(tenantID).TryAcquire()
}

// SetTenantLimit sets custom rate limits for a specific tenant
func (m *MultiTenantRateLimiter) SetTenantLimit(tenantID string, cfg RateLimitConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists := m.limiters[tenantID]; exists {
		limiter.SetRate(cfg.RequestsPerSecond, cfg.Burst)
		return
	}
	m.limiters[tenantID] = NewRateLimiterWithConfig(cfg)
}

func (m *MultiTenantRateLimiter) getLimiter(tenantID string) *RateLimiter {
	m.mu.RLock()
	limiter, exists := m.limiters[tenantID]
	m.mu.RUnlock()
	if exists {
		return limiter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists = m.limiters[tenantID]; exists {
		return limiter
	}
	limiter = NewRateLimiterWithConfig(m.defaults)
	m.limiters[tenantID] = limiter
	return limiter
}

// RateLimitError represents a rate limit error with metadata
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
}

// HTTPStatus implements base.StatusCoder.
func (e *RateLimitError) HTTPStatus() int { return 429 }

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}
