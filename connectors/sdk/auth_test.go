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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/v1/items", nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestAPIKeyAuth(t *testing.T) {
	t.Run("header", func(t *testing.T) {
		req := newRequest(t)
		if err := NewAPIKeyAuth("k1", APIKeyInHeader, "").Authenticate(context.Background(), req); err != nil {
			t.Fatal(err)
		}
		if req.Header.Get("X-API-Key") != "k1" {
			t.Errorf("header = %q", req.Header.Get("X-API-Key"))
		}
	})

	t.Run("query", func(t *testing.T) {
		req := newRequest(t)
		if err := NewAPIKeyAuth("k2", APIKeyInQuery, "hapikey").Authenticate(context.Background(), req); err != nil {
			t.Fatal(err)
		}
		if req.URL.Query().Get("hapikey") != "k2" {
			t.Errorf("query = %q", req.URL.RawQuery)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if err := NewAPIKeyAuth("", APIKeyInHeader, "").Authenticate(context.Background(), newRequest(t)); err == nil {
			t.Error("expected error for empty key")
		}
	})
}

func TestBearerTokenAuth(t *testing.T) {
	auth := NewBearerTokenAuth("pat-123", time.Time{})
	req := newRequest(t)
	if err := auth.Authenticate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if req.Header.Get("Authorization") != "Bearer pat-123" {
		t.Errorf("Authorization = %q", req.Header.Get("Authorization"))
	}
	if auth.IsExpired() {
		t.Error("token without expiry should never expire")
	}

	auth.SetToken("old", time.Now().Add(-time.Minute))
	if !auth.IsExpired() {
		t.Error("token in the past should be expired")
	}
}

func TestJWTBearerGrantAuth(t *testing.T) {
	key := rsaKey(t)
	var tokenCalls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.Form.Get("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(r.Form.Get("assertion"), claims, func(tok *jwt.Token) (interface{}, error) {
			return &key.PublicKey, nil
		})
		if err != nil {
			t.Errorf("assertion did not verify: %v", err)
		}
		if claims["iss"] != "integration-key" || claims["sub"] != "user-guid" || claims["aud"] != "account-d.docusign.com" {
			t.Errorf("unexpected claims: %v", claims)
		}
		if claims["scope"] != "signature impersonation" {
			t.Errorf("scope = %v", claims["scope"])
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "ds-token", "expires_in": 3600})
	}))
	defer server.Close()

	auth := NewJWTBearerGrantAuth(JWTGrantConfig{
		ClientID:   "integration-key",
		Subject:    "user-guid",
		Audience:   "account-d.docusign.com",
		TokenURL:   server.URL + "/oauth/token",
		Scopes:     []string{"signature", "impersonation"},
		PrivateKey: key,
	}, server.Client())

	for i := 0; i < 3; i++ {
		req := newRequest(t)
		if err := auth.Authenticate(context.Background(), req); err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if req.Header.Get("Authorization") != "Bearer ds-token" {
			t.Errorf("Authorization = %q", req.Header.Get("Authorization"))
		}
	}
	if n := atomic.LoadInt32(&tokenCalls); n != 1 {
		t.Errorf("token endpoint called %d times, want 1 (cached)", n)
	}

	if err := auth.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&tokenCalls); n != 2 {
		t.Errorf("Refresh should request a new token, calls = %d", n)
	}
}

func TestJWTBearerGrantAuth_ConsentRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"consent_required"}`))
	}))
	defer server.Close()

	auth := NewJWTBearerGrantAuth(JWTGrantConfig{
		ClientID: "ik", Subject: "u", Audience: "account-d.docusign.com",
		TokenURL: server.URL, PrivateKey: rsaKey(t),
	}, server.Client())

	err := auth.Authenticate(context.Background(), newRequest(t))
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || !strings.Contains(httpErr.Body, "consent_required") {
		t.Errorf("expected HTTPError with consent_required, got %v", err)
	}
}

func TestKeyPairJWTAuth(t *testing.T) {
	key := rsaKey(t)
	auth, err := NewKeyPairJWTAuth("xy12345.us-east-1", "etl_user", key)
	if err != nil {
		t.Fatal(err)
	}

	req := newRequest(t)
	if err := auth.Authenticate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if req.Header.Get("X-Snowflake-Authorization-Token-Type") != "KEYPAIR_JWT" {
		t.Error("missing token type header")
	}

	raw := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}); err != nil {
		t.Fatalf("token did not verify: %v", err)
	}

	fp, _ := PublicKeyFingerprint(&key.PublicKey)
	if claims.Subject != "XY12345.ETL_USER" {
		t.Errorf("sub = %q", claims.Subject)
	}
	if claims.Issuer != "XY12345.ETL_USER."+fp {
		t.Errorf("iss = %q", claims.Issuer)
	}
	if !strings.HasPrefix(fp, "SHA256:") {
		t.Errorf("fingerprint = %q", fp)
	}
	lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if lifetime != 59*time.Minute {
		t.Errorf("lifetime = %v, want 59m", lifetime)
	}
}

func TestParseRSAPrivateKey(t *testing.T) {
	key := rsaKey(t)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	// environment variables often carry the key on one line with literal \n
	escaped := strings.ReplaceAll(string(pemBytes), "\n", `\n`)
	parsed, err := ParseRSAPrivateKey(escaped)
	if err != nil {
		t.Fatalf("ParseRSAPrivateKey: %v", err)
	}
	if !parsed.Equal(key) {
		t.Error("parsed key differs")
	}

	if _, err := ParseRSAPrivateKey("not a key"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestTokenSourceAuth(t *testing.T) {
	auth := NewTokenSourceAuth(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "hs-oauth", TokenType: "Bearer"}))
	if !auth.IsExpired() {
		t.Error("no token has been fetched yet")
	}

	req := newRequest(t)
	if err := auth.Authenticate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if req.Header.Get("Authorization") != "Bearer hs-oauth" {
		t.Errorf("Authorization = %q", req.Header.Get("Authorization"))
	}
	if auth.IsExpired() {
		t.Error("static token should be valid")
	}
}

func TestRefreshTokenAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "rt-1" {
			t.Errorf("unexpected form: %v", r.Form)
		}
		if r.Form.Get("client_id") != "cid" {
			t.Errorf("client_id should be sent in params, form=%v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"bearer","expires_in":1800}`))
	}))
	defer server.Close()

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, server.Client())
	auth := NewRefreshTokenAuth(ctx, "cid", "secret", server.URL, "rt-1")

	req := newRequest(t)
	if err := auth.Authenticate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if req.Header.Get("Authorization") != "Bearer fresh" {
		t.Errorf("Authorization = %q", req.Header.Get("Authorization"))
	}
}

type fakeCredential struct {
	calls  int32
	scopes []string
}

func (f *fakeCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	atomic.AddInt32(&f.calls, 1)
	f.scopes = opts.Scopes
	return azcore.AccessToken{Token: "graph-token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestAzureCredentialAuth(t *testing.T) {
	cred := &fakeCredential{}
	auth := NewAzureCredentialAuth(cred, "https://graph.microsoft.com/.default")

	for i := 0; i < 2; i++ {
		req := newRequest(t)
		if err := auth.Authenticate(context.Background(), req); err != nil {
			t.Fatal(err)
		}
		if req.Header.Get("Authorization") != "Bearer graph-token" {
			t.Errorf("Authorization = %q", req.Header.Get("Authorization"))
		}
	}
	if cred.calls != 1 {
		t.Errorf("GetToken called %d times, want 1", cred.calls)
	}
	if len(cred.scopes) != 1 || cred.scopes[0] != "https://graph.microsoft.com/.default" {
		t.Errorf("scopes = %v", cred.scopes)
	}
	if auth.IsExpired() {
		t.Error("fresh token should not be expired")
	}
}
