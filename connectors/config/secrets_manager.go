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
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/shared/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager resolves a secret id to its key/value pairs.
type SecretsManager interface {
	GetSecret(ctx context.Context, secretID string) (map[string]string, error)
}

// SecretRefPrefix marks a credential value that names a secret, as in
// "secret:prod/docusign#private_key".
const SecretRefPrefix = "secret:"

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager
type AWSSecretsManager struct {
	client SecretsAPI
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	logger *logger.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	// Client replaces the SDK client; when nil one is built from the default AWS config chain.
	Client SecretsAPI
	Logger *logger.Logger
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	log := opts.Logger
	if log == nil {
		log = logger.New("secrets")
	}

	client := opts.Client
	if client == nil {
		var cfgOpts []func(*awsconfig.LoadOptions) error
		if opts.Region != "" {
			cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = secretsmanager.NewFromConfig(cfg)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		now:    time.Now,
		logger: log,
	}, nil
}

// GetSecret returns the secret's JSON object, or {"value": <string>} when the
// secret is not JSON. Results are cached for the configured TTL.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretID string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[secretID]
	s.mu.RUnlock()

	if exists && s.now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskSecretID(secretID), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskSecretID(secretID))
	}

	secretValue := *result.SecretString
	var credentials map[string]string
	if err := json.Unmarshal([]byte(secretValue), &credentials); err != nil {
		credentials = map[string]string{"value": secretValue}
	}

	s.mu.Lock()
	s.cache[secretID] = &secretCacheEntry{
		value:     credentials,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()

	s.logger.Debug("", "", "secret fetched", map[string]interface{}{"secret": maskSecretID(secretID)})
	return credentials, nil
}

// InvalidateSecret removes a secret from the cache
func (s *AWSSecretsManager) InvalidateSecret(secretID string) {
	s.mu.Lock()
	delete(s.cache, secretID)
	s.mu.Unlock()
}

// InvalidateAll clears the entire secret cache
func (s *AWSSecretsManager) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string]*secretCacheEntry)
	s.mu.Unlock()
}

// maskSecretID keeps only the last 8 characters for logs and errors.
func maskSecretID(id string) string {
	if len(id) <= 12 {
		return "***"
	}
	return "..." + id[len(id)-8:]
}

// MemorySecretsManager keeps secrets in memory, for development and tests.
type MemorySecretsManager struct {
	secrets map[string]map[string]string
	mu      sync.RWMutex
}

// NewMemorySecretsManager creates an empty in-memory secrets manager.
func NewMemorySecretsManager() *MemorySecretsManager {
	return &MemorySecretsManager{secrets: make(map[string]map[string]string)}
}

// GetSecret retrieves a stored secret
func (s *MemorySecretsManager) GetSecret(ctx context.Context, secretID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if secret, exists := s.secrets[secretID]; exists {
		return secret, nil
	}
	return nil, fmt.Errorf("secret %s not found", secretID)
}

// SetSecret stores a secret
func (s *MemorySecretsManager) SetSecret(secretID string, value map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[secretID] = value
}

// ParseSecretRef splits "secret:<id>#<key>" into id and key. The key
// defaults to "value" when omitted.
func ParseSecretRef(ref string) (id, key string, ok bool) {
	if !strings.HasPrefix(ref, SecretRefPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(ref, SecretRefPrefix)
	id, key = rest, "value"
	if i := strings.LastIndexByte(rest, '#'); i >= 0 {
		id, key = rest[:i], rest[i+1:]
	}
	if id == "" || key == "" {
		return "", "", false
	}
	return id, key, true
}

// ResolveSecrets replaces every secret reference in cfg.Credentials with the
// referenced value. Each secret id is fetched once. cfg is modified in place.
func ResolveSecrets(ctx context.Context, cfg *base.ConnectorConfig, sm SecretsManager) error {
	if cfg == nil || len(cfg.Credentials) == 0 {
		return nil
	}

	fetched := make(map[string]map[string]string)
	for field, value := range cfg.Credentials {
		id, key, ok := ParseSecretRef(value)
		if !ok {
			continue
		}
		if sm == nil {
			return fmt.Errorf("connector '%s' credential '%s' references a secret but no secrets manager is configured", cfg.Name, field)
		}

		secret, done := fetched[id]
		if !done {
			var err error
			secret, err = sm.GetSecret(ctx, id)
			if err != nil {
				return fmt.Errorf("connector '%s' credential '%s': %w", cfg.Name, field, err)
			}
			fetched[id] = secret
		}

		resolved, exists := secret[key]
		if !exists {
			return fmt.Errorf("connector '%s' credential '%s': key '%s' not found in secret %s", cfg.Name, field, key, maskSecretID(id))
		}
		cfg.Credentials[field] = resolved
	}
	return nil
}
