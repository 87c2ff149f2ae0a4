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
	"strings"
	"testing"
	"time"

	"saasbridge/platform/connectors/base"
)

func TestBaseConnector_ConfigureValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  *base.ConnectorConfig
		wantErr string
	}{
		{name: "nil config", config: nil, wantErr: "config cannot be nil"},
		{
			name:    "missing name",
			config:  &base.ConnectorConfig{Type: "slack"},
			wantErr: "configuration validation failed",
		},
		{
			name:    "missing credential",
			config:  &base.ConnectorConfig{Name: "s", Type: "slack"},
			wantErr: "configuration validation failed",
		},
		{
			name: "alternative credential satisfies requirement",
			config: &base.ConnectorConfig{
				Name: "s", Type: "slack",
				Credentials: map[string]string{"token": "xoxb-1"},
			},
		},
		{
			name: "option satisfies requirement",
			config: &base.ConnectorConfig{
				Name: "s", Type: "slack",
				Options: map[string]interface{}{"bot_token": "xoxb-1"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBaseConnector("slack")
			c.SetValidator(NewDefaultConfigValidator([]string{"bot_token|token"}, map[string]interface{}{"page_size": 200}))
			err := c.Configure(tt.config)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Configure: %v", err)
			}
			if c.GetTimeout() != DefaultTimeout {
				t.Errorf("timeout = %v", c.GetTimeout())
			}
			if c.GetIntOption("page_size", 0) != 200 {
				t.Errorf("default option not applied")
			}
			if c.IsConnected() {
				t.Error("Configure must not mark connected")
			}
		})
	}
}

func TestBaseConnector_Lifecycle(t *testing.T) {
	c := NewBaseConnector("hubspot")
	if err := c.RequireConnected("Query"); !errors.Is(err, base.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	cfg := &base.ConnectorConfig{Name: "crm", Type: "hubspot", MaxRetries: 7, TenantID: "t1"}
	if err := c.Connect(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	if c.Name() != "crm" || !c.IsConnected() {
		t.Errorf("name=%q connected=%v", c.Name(), c.IsConnected())
	}
	if c.GetRetryConfig().MaxRetries != 7 {
		t.Errorf("MaxRetries = %d", c.GetRetryConfig().MaxRetries)
	}
	if !c.GetMetrics().GetStats().Connected {
		t.Error("metrics should report connected")
	}

	status, _ := c.HealthCheck(context.Background())
	if !status.Healthy {
		t.Error("expected healthy")
	}

	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	status, _ = c.HealthCheck(context.Background())
	if status.Healthy || status.Error != "not connected" {
		t.Errorf("status = %+v", status)
	}
}

func TestBaseConnector_ProbeHealth(t *testing.T) {
	c := NewBaseConnector("docusign")
	c.SetConnected(true)

	status, err := c.ProbeHealth(context.Background(), func(ctx context.Context) (map[string]string, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("probe context should carry a deadline")
		}
		return map[string]string{"account_id": "acc-1"}, nil
	})
	if err != nil || !status.Healthy || status.Details["account_id"] != "acc-1" {
		t.Fatalf("status = %+v err = %v", status, err)
	}

	status, _ = c.ProbeHealth(context.Background(), func(ctx context.Context) (map[string]string, error) {
		return nil, errors.New("token revoked")
	})
	if status.Healthy || status.Error != "token revoked" {
		t.Errorf("status = %+v", status)
	}
}

func TestBaseConnector_Options(t *testing.T) {
	c := NewBaseConnector("sharepoint")
	_ = c.Configure(&base.ConnectorConfig{
		Name: "sp",
		Type: "sharepoint",
		Options: map[string]interface{}{
			"page_size":     "50",
			"batch":         float64(20),
			"include_lists": "true",
			"poll":          "250ms",
			"timeout":       float64(2),
			"sites":         "a, b,,c",
			"drives":        []interface{}{"d1", "d2"},
		},
		Credentials: map[string]string{"client_secret": "s3cr3t"},
	})

	if got := c.GetIntOption("page_size", 0); got != 50 {
		t.Errorf("page_size = %d", got)
	}
	if got := c.GetIntOption("batch", 0); got != 20 {
		t.Errorf("batch = %d", got)
	}
	if got := c.GetIntOption("missing", 9); got != 9 {
		t.Errorf("missing = %d", got)
	}
	if !c.GetBoolOption("include_lists", false) {
		t.Error("include_lists should be true")
	}
	if got := c.GetDurationOption("poll", 0); got != 250*time.Millisecond {
		t.Errorf("poll = %v", got)
	}
	if got := c.GetDurationOption("timeout", 0); got != 2*time.Second {
		t.Errorf("timeout = %v", got)
	}
	if got := c.GetStringSliceOption("sites"); len(got) != 3 || got[2] != "c" {
		t.Errorf("sites = %v", got)
	}
	if got := c.GetStringSliceOption("drives"); len(got) != 2 {
		t.Errorf("drives = %v", got)
	}
	if c.GetCredential("client_secret") != "s3cr3t" || c.GetCredential("nope") != "" {
		t.Error("credential lookup failed")
	}
	if c.GetStringOption("absent", "fallback") != "fallback" {
		t.Error("string default not used")
	}
}

func TestBaseConnector_ResolveBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		private bool
		want    string
		wantErr bool
	}{
		{name: "default", url: "", want: "https://api.hubapi.com"},
		{name: "vendor override", url: "https://eu1.hubapi.com/", want: "https://eu1.hubapi.com"},
		{name: "foreign host", url: "https://attacker.example.org", wantErr: true},
		{name: "plain http", url: "http://api.hubapi.com", wantErr: true},
		{name: "local test server", url: "http://127.0.0.1:8080", private: true, want: "http://127.0.0.1:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBaseConnector("hubspot")
			opts := map[string]interface{}{}
			if tt.private {
				opts["allow_private_ips"] = true
			}
			_ = c.Configure(&base.ConnectorConfig{Name: "h", Type: "hubspot", ConnectionURL: tt.url, Options: opts})

			got, err := c.ResolveBaseURL("https://api.hubapi.com", base.HubSpotHostSuffixes)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCall_RetriesRateLimited(t *testing.T) {
	c := NewBaseConnector("slack")
	c.SetRetryConfig(FastRetry(2))
	limiter := NewRateLimiter(1000, 10)
	c.SetRateLimiter(limiter)

	attempts := 0
	got, err := Call(context.Background(), c, func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", NewRateLimitError(time.Millisecond)
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("got %q err %v", got, err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d", attempts)
	}
	if c.GetMetrics().GetStats().RateLimitedTotal != 1 {
		t.Errorf("rate limited not recorded")
	}
	if limiter.RetryAt().IsZero() {
		t.Error("limiter backoff should have been set")
	}
}

func TestCall_StopsOnNonRetryable(t *testing.T) {
	c := NewBaseConnector("snowflake")
	c.SetRetryConfig(FastRetry(3))

	attempts := 0
	_, err := Call(context.Background(), c, func(ctx context.Context) (int, error) {
		attempts++
		return 0, &NonRetryableError{Err: errors.New("bad statement")}
	})
	if err == nil || attempts != 1 {
		t.Errorf("attempts = %d err = %v", attempts, err)
	}
}

func TestTrack_RecordsMetrics(t *testing.T) {
	c := NewBaseConnector("docusign")
	ctx := WithRequestID(WithTenantID(context.Background(), "t1"), "req-1")

	c.Track(ctx, "Query", "list_envelopes", time.Now(), nil)
	c.Track(ctx, "Execute", "void_envelope", time.Now(), errors.New("boom"))

	stats := c.GetMetrics().GetStats()
	if stats.QueriesTotal != 1 || stats.ExecutesTotal != 1 || stats.ErrorsTotal != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if GetTenantID(ctx) != "" || GetRequestID(ctx) != "" {
		t.Error("empty context should yield empty IDs")
	}
	ctx = WithRequestID(WithTenantID(ctx, "tenant-1"), "req-9")
	if GetTenantID(ctx) != "tenant-1" || GetRequestID(ctx) != "req-9" {
		t.Error("context values not propagated")
	}
}
