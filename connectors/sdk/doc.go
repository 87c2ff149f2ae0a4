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

// Package sdk holds the machinery shared by the vendor connectors: an
// embeddable BaseConnector, authentication providers, a rate limiter with
// server backoff, retry with exponential backoff, a JSON REST client and
// Prometheus metrics.
//
// # Building a connector
//
//	type Connector struct {
//	    *sdk.BaseConnector
//	    client *sdk.RESTClient
//	}
//
//	func (c *Connector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
//	    if err := c.Configure(config); err != nil {
//	        return err
//	    }
//	    baseURL, err := c.ResolveBaseURL("https://api.hubapi.com", base.HubSpotHostSuffixes)
//	    ...
//	    c.MarkConnected()
//	    return nil
//	}
//
// # Authentication
//
//	sdk.NewBearerTokenAuth(token, time.Time{})          // static tokens
//	sdk.NewJWTBearerGrantAuth(cfg, httpClient)          // RFC 7523 grant (DocuSign)
//	sdk.NewKeyPairJWTAuth(account, user, key)           // Snowflake key-pair JWT
//	sdk.NewRefreshTokenAuth(ctx, id, secret, url, rt)   // x/oauth2 refresh tokens
//	sdk.NewAzureCredentialAuth(cred, scope)             // azidentity credentials
//
// # Rate limiting and retries
//
// Every RESTClient call waits on its RateLimiter. A 429 response moves the
// limiter into a backoff window taken from Retry-After, so concurrent callers
// pause together. Transient statuses (429, 503, 504, plus 500/502 for GET)
// are retried by RetryWithBackoff, and a server-provided Retry-After replaces
// the computed interval. Calls made through vendor SDKs use Call, which
// applies the same limiter and retry policy.
//
// # Testing
//
// MockConnector implements base.SyncConnector for registry, ingest and
// server tests. TestHarness starts an httptest server that stands in for
// the vendor API.
package sdk
