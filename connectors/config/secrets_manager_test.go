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

package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"saasbridge/platform/connectors/base"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsAPI struct {
	values map[string]string
	calls  map[string]int
	err    error
}

func (f *fakeSecretsAPI) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	id := aws.ToString(in.SecretId)
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[id]++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[id]
	if !ok {
		return &secretsmanager.GetSecretValueOutput{SecretBinary: []byte{1}}, nil
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestMaskSecretID(t *testing.T) {
	assert.Equal(t, "...t-abc123", maskSecretID("arn:aws:secretsmanager:us-east-1:123456789012:secret:my-secret-abc123"))
	assert.Equal(t, "***", maskSecretID("short"))
	assert.Equal(t, "***", maskSecretID("123456789012"))
	assert.Equal(t, "...67890123", maskSecretID("1234567890123"))
}

func TestAWSSecretsManager_GetSecret(t *testing.T) {
	api := &fakeSecretsAPI{values: map[string]string{
		"prod/docusign": `{"private_key":"pem","user_id":"u1"}`,
		"prod/token":    "plain-token",
	}}
	sm, err := NewAWSSecretsManager(context.Background(), AWSSecretsManagerOptions{Client: api, CacheTTL: time.Minute})
	require.NoError(t, err)

	secret, err := sm.GetSecret(context.Background(), "prod/docusign")
	require.NoError(t, err)
	assert.Equal(t, "pem", secret["private_key"])

	_, err = sm.GetSecret(context.Background(), "prod/docusign")
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls["prod/docusign"], "second lookup should hit the cache")

	plain, err := sm.GetSecret(context.Background(), "prod/token")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"value": "plain-token"}, plain)

	_, err = sm.GetSecret(context.Background(), "binary-only-secret")
	assert.ErrorContains(t, err, "no string value")
}

func TestAWSSecretsManager_CacheExpiry(t *testing.T) {
	api := &fakeSecretsAPI{values: map[string]string{"s": `{"k":"v"}`}}
	sm, err := NewAWSSecretsManager(context.Background(), AWSSecretsManagerOptions{Client: api, CacheTTL: time.Minute})
	require.NoError(t, err)

	now := time.Now()
	sm.now = func() time.Time { return now }
	_, _ = sm.GetSecret(context.Background(), "s")

	now = now.Add(2 * time.Minute)
	_, _ = sm.GetSecret(context.Background(), "s")
	assert.Equal(t, 2, api.calls["s"])

	sm.InvalidateSecret("s")
	_, _ = sm.GetSecret(context.Background(), "s")
	assert.Equal(t, 3, api.calls["s"])

	sm.InvalidateAll()
	_, _ = sm.GetSecret(context.Background(), "s")
	assert.Equal(t, 4, api.calls["s"])
}

func TestAWSSecretsManager_Error(t *testing.T) {
	api := &fakeSecretsAPI{err: errors.New("AccessDeniedException")}
	sm, err := NewAWSSecretsManager(context.Background(), AWSSecretsManagerOptions{Client: api})
	require.NoError(t, err)

	_, err = sm.GetSecret(context.Background(), "arn:aws:secretsmanager:eu-west-1:1:secret:abcdefgh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDeniedException")
	assert.NotContains(t, err.Error(), "eu-west-1", "secret id must be masked")
}

func TestParseSecretRef(t *testing.T) {
	tests := []struct {
		ref    string
		id     string
		key    string
		wantOK bool
	}{
		{ref: "secret:prod/docusign#private_key", id: "prod/docusign", key: "private_key", wantOK: true},
		{ref: "secret:arn:aws:secretsmanager:us-east-1:1:secret:x#token", id: "arn:aws:secretsmanager:us-east-1:1:secret:x", key: "token", wantOK: true},
		{ref: "secret:plain", id: "plain", key: "value", wantOK: true},
		{ref: "secret:#key"},
		{ref: "secret:id#"},
		{ref: "xoxb-not-a-ref"},
	}
	for _, tt := range tests {
		id, key, ok := ParseSecretRef(tt.ref)
		assert.Equal(t, tt.wantOK, ok, tt.ref)
		if tt.wantOK {
			assert.Equal(t, tt.id, id, tt.ref)
			assert.Equal(t, tt.key, key, tt.ref)
		}
	}
}

func TestResolveSecrets(t *testing.T) {
	sm := NewMemorySecretsManager()
	sm.SetSecret("prod/sharepoint", map[string]string{"client_secret": "s3cr3t", "client_id": "cid"})

	cfg := &base.ConnectorConfig{
		Name: "docs",
		Credentials: map[string]string{
			"client_secret":   "secret:prod/sharepoint#client_secret",
			"client_id":       "secret:prod/sharepoint#client_id",
			"azure_tenant_id": "literal",
		},
	}
	require.NoError(t, ResolveSecrets(context.Background(), cfg, sm))
	assert.Equal(t, "s3cr3t", cfg.Credentials["client_secret"])
	assert.Equal(t, "cid", cfg.Credentials["client_id"])
	assert.Equal(t, "literal", cfg.Credentials["azure_tenant_id"])

	missingKey := &base.ConnectorConfig{Name: "x", Credentials: map[string]string{"a": "secret:prod/sharepoint#nope"}}
	assert.ErrorContains(t, ResolveSecrets(context.Background(), missingKey, sm), "key 'nope' not found")

	missingSecret := &base.ConnectorConfig{Name: "x", Credentials: map[string]string{"a": "secret:absent#k"}}
	assert.ErrorContains(t, ResolveSecrets(context.Background(), missingSecret, sm), "not found")

	noManager := &base.ConnectorConfig{Name: "x", Credentials: map[string]string{"a": "secret:absent#k"}}
	assert.ErrorContains(t, ResolveSecrets(context.Background(), noManager, nil), "no secrets manager")

	assert.NoError(t, ResolveSecrets(context.Background(), &base.ConnectorConfig{}, nil))
}
