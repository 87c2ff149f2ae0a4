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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*RESTClientConfig)) (*RESTClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := RESTClientConfig{
		BaseURL:    server.URL + "/api/v2",
		Retry:      FastRetry(3),
		HTTPClient: server.Client(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewRESTClient(cfg)
	if err != nil {
		t.Fatalf("NewRESTClient: %v", err)
	}
	return client, server
}

func TestRESTClient_BuildsRequest(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/envelopes" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("status") != "sent" || r.URL.Query().Get("count") != "10" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Custom") != "1" {
			t.Errorf("default header missing")
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		_, _ = w.Write([]byte(`{"envelopes":[{"envelopeId":"e1"}]}`))
	}, func(cfg *RESTClientConfig) {
		cfg.Auth = NewBearerTokenAuth("tok", time.Time{})
		cfg.Headers = map[string]string{"X-Custom": "1"}
	})

	var out struct {
		Envelopes []struct {
			EnvelopeID string `json:"envelopeId"`
		} `json:"envelopes"`
	}
	err := client.Get(context.Background(), "envelopes", url.Values{"status": {"sent"}, "count": {"10"}}, &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(out.Envelopes) != 1 || out.Envelopes[0].EnvelopeID != "e1" {
		t.Errorf("decoded = %+v", out)
	}
}

func TestRESTClient_PostsJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["statement"] != "SELECT 1" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, nil)

	var out map[string]interface{}
	if err := client.Post(context.Background(), "/statements", map[string]string{"statement": "SELECT 1"}, &out); err != nil {
		t.Fatal(err)
	}
	if out["ok"] != true {
		t.Errorf("out = %v", out)
	}
}

func TestRESTClient_RetriesTransientStatus(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}, nil)

	if err := client.Get(context.Background(), "/ping", nil, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRESTClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}, nil)

	err := client.Get(context.Background(), "/missing?token=secret", nil, nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusNotFound || !strings.Contains(httpErr.Body, "not found") {
		t.Errorf("HTTPError = %+v", httpErr)
	}
	if strings.Contains(httpErr.URL, "secret") {
		t.Errorf("query string leaked into error URL: %s", httpErr.URL)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRESTClient_RateLimitedSetsBackoff(t *testing.T) {
	limiter := NewRateLimiter(100, 10)
	var seen time.Duration
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}, func(cfg *RESTClientConfig) {
		cfg.Limiter = limiter
		cfg.Retry = FastRetry(0)
		cfg.OnRateLimited = func(d time.Duration) { seen = d }
	})

	err := client.Get(context.Background(), "/throttled", nil, nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.RetryAfter != 120*time.Second {
		t.Fatalf("expected 429 with Retry-After, got %v", err)
	}
	if !limiter.InBackoff() {
		t.Error("limiter should be in backoff after 429")
	}
	if seen != 120*time.Second {
		t.Errorf("OnRateLimited got %v", seen)
	}
}

func TestRESTClient_ResponseSizeCap(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}, func(cfg *RESTClientConfig) {
		cfg.MaxResponseSize = 16
	})

	_, err := client.Do(context.Background(), &Request{Path: "/big"})
	if err == nil || !strings.Contains(err.Error(), "exceeds limit") {
		t.Errorf("expected size limit error, got %v", err)
	}
}

func TestRESTClient_AbsoluteLinks(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$skiptoken") != "abc" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"value":[]}`))
	}, nil)

	if err := client.Get(context.Background(), server.URL+"/api/v2/next?$skiptoken=abc", nil, nil); err != nil {
		t.Fatalf("same-host link: %v", err)
	}

	err := client.Get(context.Background(), "https://evil.example.com/steal", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "foreign host") {
		t.Errorf("expected foreign host error, got %v", err)
	}
}

type countingAuth struct {
	BearerTokenAuth
	refreshes int
}

func (c *countingAuth) Refresh(ctx context.Context) error {
	c.refreshes++
	c.SetToken("new", time.Time{})
	return nil
}

func TestRESTClient_RefreshesOnUnauthorized(t *testing.T) {
	auth := &countingAuth{}
	auth.SetToken("stale", time.Time{})

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}, func(cfg *RESTClientConfig) { cfg.Auth = auth })

	if err := client.Get(context.Background(), "/me", nil, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if auth.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", auth.refreshes)
	}
}

func TestRESTClient_SetBaseURL(t *testing.T) {
	client, err := NewRESTClient(RESTClientConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Get(context.Background(), "/x", nil, nil); err == nil {
		t.Error("expected error without base URL")
	}
	if err := client.SetBaseURL("ftp://files"); err == nil {
		t.Error("expected scheme error")
	}
	if err := client.SetBaseURL("https://na3.docusign.net/restapi/"); err != nil {
		t.Fatal(err)
	}
	if client.BaseURL() != "https://na3.docusign.net/restapi" {
		t.Errorf("BaseURL = %q", client.BaseURL())
	}
}

func TestConvertToRows(t *testing.T) {
	rows := ConvertToRows([]interface{}{map[string]interface{}{"id": "1"}, "scalar"})
	if len(rows) != 2 || rows[0]["id"] != "1" || rows[1]["value"] != "scalar" {
		t.Errorf("rows = %v", rows)
	}
	if rows := ConvertToRows(map[string]interface{}{"a": 1}); len(rows) != 1 {
		t.Errorf("object should yield one row")
	}
	if rows := ConvertToRows(nil); len(rows) != 0 {
		t.Errorf("nil should yield no rows")
	}
}

func TestToRows(t *testing.T) {
	type item struct {
		ID   string `json:"id"`
		Size int    `json:"size"`
	}
	rows, err := ToRows([]item{{"a", 1}, {"b", 2}})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1]["id"] != "b" || rows[1]["size"] != float64(2) {
		t.Errorf("rows = %v", rows)
	}
}
