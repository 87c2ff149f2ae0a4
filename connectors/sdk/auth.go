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
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// tokenExpiryMargin is subtracted from token lifetimes so a token is never
// sent in its last moments of validity.
const tokenExpiryMargin = 60 * time.Second

// AuthProvider defines the interface for authentication mechanisms
type AuthProvider interface {
	// Authenticate applies authentication to the given request
	Authenticate(ctx context.Context, req *http.Request) error

	// IsExpired checks if the current credentials have expired
	IsExpired() bool

	// Refresh refreshes the credentials if possible
	Refresh(ctx context.Context) error

	// Type returns the authentication type name
	Type() string
}

// APIKeyLocation specifies where the API key should be placed
type APIKeyLocation int

const (
	// APIKeyInHeader places the API key in a header
	APIKeyInHeader APIKeyLocation = iota
	// APIKeyInQuery places the API key in query parameters
	APIKeyInQuery
)

// APIKeyAuth provides API key authentication
type APIKeyAuth struct {
	apiKey   string
	location APIKeyLocation
	keyName  string
}

// NewAPIKeyAuth creates a new API key authentication provider
func NewAPIKeyAuth(apiKey string, location APIKeyLocation, keyName string) *APIKeyAuth {
	if keyName == "" {
		keyName = "X-API-Key"
	}
	return &APIKeyAuth{apiKey: apiKey, location: location, keyName: keyName}
}

// Authenticate applies the API key to the request
func (a *APIKeyAuth) Authenticate(ctx context.Context, req *http.Request) error {
	if a.apiKey == "" {
		return fmt.Errorf("API key is not set")
	}

	if a.location == APIKeyInQuery {
		q := req.URL.Query()
		q.Set(a.keyName, a.apiKey)
		req.URL.RawQuery = q.Encode()
		return nil
	}
	req.Header.Set(a.keyName, a.apiKey)
	return nil
}

func (a *APIKeyAuth) IsExpired() bool                   { return false }
func (a *APIKeyAuth) Refresh(ctx context.Context) error { return nil }
func (a *APIKeyAuth) Type() string                      { return "api_key" }

// BearerTokenAuth provides Bearer token authentication
type BearerTokenAuth struct {
	token     string
	expiresAt time.Time
	mu        sync.RWMutex
}

// NewBearerTokenAuth creates a new Bearer token authentication provider.
// A zero expiresAt means the token never expires.
func NewBearerTokenAuth(token string, expiresAt time.Time) *BearerTokenAuth {
	return &BearerTokenAuth{token: token, expiresAt: expiresAt}
}

// Authenticate applies the Bearer token to the request
func (b *BearerTokenAuth) Authenticate(ctx context.Context, req *http.Request) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.token == "" {
		return fmt.Errorf("bearer token is not set")
	}

	req.Header.Set("Authorization", "Bearer "+b.token)
	return nil
}

// IsExpired checks if the token has expired
func (b *BearerTokenAuth) IsExpired() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.expiresAt.IsZero() {
		return false
	}
	return time.Now().After(b.expiresAt)
}

// Refresh is a no-op for static Bearer tokens
func (b *BearerTokenAuth) Refresh(ctx context.Context) error { return nil }

// Type returns the authentication type
func (b *BearerTokenAuth) Type() string { return "bearer" }

// SetToken updates the bearer token
func (b *BearerTokenAuth) SetToken(token string, expiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
	b.expiresAt = expiresAt
}

// cachedToken guards a bearer token and its expiry.
type cachedToken struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func (c *cachedToken) valid() bool {
	return c.token != "" && c.now().Add(tokenExpiryMargin).Before(c.expiresAt)
}

func (c *cachedToken) expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.valid()
}

// get returns the cached token or mints a new one with fetch.
func (c *cachedToken) get(ctx context.Context, fetch func(ctx context.Context) (string, time.Time, error)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid() {
		return c.token, nil
	}
	token, expiresAt, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	c.token, c.expiresAt = token, expiresAt
	return token, nil
}

func (c *cachedToken) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

// JWTGrantConfig configures an RFC 7523 JWT bearer grant.
type JWTGrantConfig struct {
	ClientID   string // iss: integration key
	Subject    string // sub: impersonated user id
	Audience   string // aud: authorization server host, e.g. account-d.docusign.com
	TokenURL   string // token endpoint, default https://<Audience>/oauth/token
	Scopes     []string
	PrivateKey *rsa.PrivateKey
	Lifetime   time.Duration // assertion lifetime, default 1h
}

// JWTBearerGrantAuth exchanges a signed assertion for an access token and
// caches it until shortly before expiry.
type JWTBearerGrantAuth struct {
	config     JWTGrantConfig
	httpClient *http.Client
	cache      cachedToken
}

// NewJWTBearerGrantAuth creates a JWT bearer grant provider.
func NewJWTBearerGrantAuth(cfg JWTGrantConfig, httpClient *http.Client) *JWTBearerGrantAuth {
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://" + cfg.Audience + "/oauth/token"
	}
	if cfg.Lifetime == 0 {
		cfg.Lifetime = time.Hour
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &JWTBearerGrantAuth{
		config:     cfg,
		httpClient: httpClient,
		cache:      cachedToken{now: time.Now},
	}
}

// Assertion builds and signs the grant assertion.
func (j *JWTBearerGrantAuth) Assertion() (string, error) {
	if j.config.PrivateKey == nil {
		return "", fmt.Errorf("private key is not set")
	}
	now := j.cache.now()
	claims := jwt.MapClaims{
		"iss":   j.config.ClientID,
		"sub":   j.config.Subject,
		"aud":   j.config.Audience,
		"iat":   now.Unix(),
		"exp":   now.Add(j.config.Lifetime).Unix(),
		"scope": strings.Join(j.config.Scopes, " "),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(j.config.PrivateKey)
}

func (j *JWTBearerGrantAuth) fetch(ctx context.Context) (string, time.Time, error) {
	assertion, err := j.Assertion()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodPost,
			URL:        j.config.TokenURL,
			Body:       string(body),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token response has no access_token")
	}
	return tokenResp.AccessToken, j.cache.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second), nil
}

// Token returns a valid access token, requesting one when needed.
func (j *JWTBearerGrantAuth) Token(ctx context.Context) (string, error) {
	return j.cache.get(ctx, j.fetch)
}

// Authenticate applies the access token to the request
func (j *JWTBearerGrantAuth) Authenticate(ctx context.Context, req *http.Request) error {
	token, err := j.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (j *JWTBearerGrantAuth) IsExpired() bool { return j.cache.expired() }

// Refresh discards the cached token and requests a new one.
func (j *JWTBearerGrantAuth) Refresh(ctx context.Context) error {
	j.cache.clear()
	_, err := j.Token(ctx)
	return err
}

func (j *JWTBearerGrantAuth) Type() string { return "jwt_bearer_grant" }

// KeyPairJWTAuth signs short-lived JWTs locally for Snowflake key-pair authentication.
type KeyPairJWTAuth struct {
	account     string
	user        string
	key         *rsa.PrivateKey
	fingerprint string
	lifetime    time.Duration
	cache       cachedToken
}

// NewKeyPairJWTAuth creates a key-pair provider. The account identifier is
// reduced to its locator (text before the first dot) and upper-cased.
func NewKeyPairJWTAuth(account, user string, key *rsa.PrivateKey) (*KeyPairJWTAuth, error) {
	if key == nil {
		return nil, fmt.Errorf("private key is not set")
	}
	fp, err := PublicKeyFingerprint(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	if i := strings.Index(account, "."); i >= 0 {
		account = account[:i]
	}
	return &KeyPairJWTAuth{
		account:     strings.ToUpper(account),
		user:        strings.ToUpper(user),
		key:         key,
		fingerprint: fp,
		lifetime:    59 * time.Minute,
		cache:       cachedToken{now: time.Now},
	}, nil
}

// PublicKeyFingerprint returns "SHA256:<base64>" of the DER-encoded public key.
func PublicKeyFingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return "SHA256:" + base64.StdEncoding.EncodeToString(sum[:]), nil
}

// Qualified returns ACCOUNT.USER, the JWT subject.
func (k *KeyPairJWTAuth) Qualified() string {
	return k.account + "." + k.user
}

func (k *KeyPairJWTAuth) sign(ctx context.Context) (string, time.Time, error) {
	now := k.cache.now()
	exp := now.Add(k.lifetime)
	claims := jwt.RegisteredClaims{
		Issuer:    k.Qualified() + "." + k.fingerprint,
		Subject:   k.Qualified(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(k.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign key-pair JWT: %w", err)
	}
	return token, exp, nil
}

// Authenticate applies the key-pair JWT to the request
func (k *KeyPairJWTAuth) Authenticate(ctx context.Context, req *http.Request) error {
	token, err := k.cache.get(ctx, k.sign)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Snowflake-Authorization-Token-Type", "KEYPAIR_JWT")
	return nil
}

func (k *KeyPairJWTAuth) IsExpired() bool { return k.cache.expired() }

func (k *KeyPairJWTAuth) Refresh(ctx context.Context) error {
	k.cache.clear()
	_, err := k.cache.get(ctx, k.sign)
	return err
}

func (k *KeyPairJWTAuth) Type() string { return "keypair_jwt" }

// ParseRSAPrivateKey parses a PEM-encoded PKCS#1 or PKCS#8 RSA key.
// Literal "\n" sequences, common in environment variables, are expanded first.
func ParseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	pemData = strings.ReplaceAll(pemData, `\n`, "\n")
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
	}
	return key, nil
}

// TokenSourceAuth adapts an oauth2.TokenSource. Refreshes are handled by
// the token source itself.
type TokenSourceAuth struct {
	source oauth2.TokenSource
	mu     sync.Mutex
	last   *oauth2.Token
}

// NewTokenSourceAuth wraps ts in an oauth2.ReuseTokenSource.
func NewTokenSourceAuth(ts oauth2.TokenSource) *TokenSourceAuth {
	return &TokenSourceAuth{source: oauth2.ReuseTokenSource(nil, ts)}
}

// NewRefreshTokenAuth builds a provider from a refresh token against tokenURL.
func NewRefreshTokenAuth(ctx context.Context, clientID, clientSecret, tokenURL, refreshToken string) *TokenSourceAuth {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return NewTokenSourceAuth(cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}))
}

// Authenticate applies the current token to the request
func (t *TokenSourceAuth) Authenticate(ctx context.Context, req *http.Request) error {
	tok, err := t.source.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain oauth2 token: %w", err)
	}
	t.mu.Lock()
	t.last = tok
	t.mu.Unlock()
	tok.SetAuthHeader(req)
	return nil
}

func (t *TokenSourceAuth) IsExpired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last == nil || !t.last.Valid()
}

func (t *TokenSourceAuth) Refresh(ctx context.Context) error {
	tok, err := t.source.Token()
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.last = tok
	t.mu.Unlock()
	return nil
}

func (t *TokenSourceAuth) Type() string { return "oauth2" }

// AzureCredentialAuth obtains tokens from an azcore.TokenCredential
// (client secret, certificate or managed identity) for fixed scopes.
type AzureCredentialAuth struct {
	cred   azcore.TokenCredential
	scopes []string
	cache  cachedToken
}

// NewAzureCredentialAuth creates a provider for the given scopes.
func NewAzureCredentialAuth(cred azcore.TokenCredential, scopes ...string) *AzureCredentialAuth {
	return &AzureCredentialAuth{cred: cred, scopes: scopes, cache: cachedToken{now: time.Now}}
}

func (a *AzureCredentialAuth) fetch(ctx context.Context) (string, time.Time, error) {
	tok, err := a.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: a.scopes})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to acquire token for %v: %w", a.scopes, err)
	}
	return tok.Token, tok.ExpiresOn, nil
}

// Token returns a valid access token for the configured scopes.
func (a *AzureCredentialAuth) Token(ctx context.Context) (string, error) {
	return a.cache.get(ctx, a.fetch)
}

// Authenticate applies the access token to the request
func (a *AzureCredentialAuth) Authenticate(ctx context.Context, req *http.Request) error {
	token, err := a.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (a *AzureCredentialAuth) IsExpired() bool { return a.cache.expired() }

func (a *AzureCredentialAuth) Refresh(ctx context.Context) error {
	a.cache.clear()
	_, err := a.Token(ctx)
	return err
}

func (a *AzureCredentialAuth) Type() string { return "azure_credential" }
