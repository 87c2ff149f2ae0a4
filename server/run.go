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

package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/config"
	"saasbridge/platform/connectors/registry"
	"saasbridge/platform/ingest"
	"saasbridge/platform/shared/logger"
)

// Settings is the process configuration read from the environment.
type Settings struct {
	Port           string
	DatabaseURL    string
	ConfigFile     string
	SecretsRegion  string
	RedisURL       string
	BatchSize      int
	AllowedOrigins []string
	Sink           ingest.S3SinkConfig
}

// SettingsFromEnv reads PORT, DATABASE_URL, CONNECTORS_CONFIG,
// SECRETS_REGION, REDIS_URL, SYNC_BATCH_SIZE, CORS_ORIGINS and the SYNC_*
// sink variables.
func SettingsFromEnv() (Settings, error) {
	s := Settings{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		ConfigFile:    os.Getenv("CONNECTORS_CONFIG"),
		SecretsRegion: os.Getenv("SECRETS_REGION"),
		RedisURL:      os.Getenv("REDIS_URL"),
		BatchSize:     ingest.DefaultBatchSize,
		Sink: ingest.S3SinkConfig{
			Bucket:          os.Getenv("SYNC_BUCKET"),
			Prefix:          os.Getenv("SYNC_PREFIX"),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			ForcePathStyle:  os.Getenv("S3_FORCE_PATH_STYLE") == "true",
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		},
	}
	if v := os.Getenv("SYNC_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return s, fmt.Errorf("invalid SYNC_BATCH_SIZE: %q", v)
		}
		s.BatchSize = n
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				s.AllowedOrigins = append(s.AllowedOrigins, o)
			}
		}
	}
	return s, nil
}

// Run starts the gateway and blocks until SIGINT or SIGTERM.
func Run() {
	log := logger.New("bridge")

	settings, err := SettingsFromEnv()
	if err != nil {
		log.Error("", "", "invalid settings", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, log); err != nil {
		log.Error("", "", "gateway stopped", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	log.Info("", "", "gateway stopped", nil)
}

func run(ctx context.Context, settings Settings, log *logger.Logger) error {
	store, err := newSyncPointStore(ctx, settings.RedisURL)
	if err != nil {
		return err
	}
	sink, err := newSink(ctx, settings.Sink, log)
	if err != nil {
		return err
	}

	svc, err := newConfigService(ctx, settings, log)
	if err != nil {
		return err
	}

	reg := registry.NewRegistry()
	reg.SetLogger(log.Named("registry"))
	factory := registry.NewFactory(registry.WithSyncPointStore(store), registry.WithSink(sink))
	reg.SetFactory(factory)
	defer reg.DisconnectAll(context.Background())

	if err := registerConnectors(ctx, reg, factory, svc, log); err != nil {
		return err
	}

	srv, err := New(reg, Options{
		Sink:           sink,
		BatchSize:      settings.BatchSize,
		AllowedOrigins: settings.AllowedOrigins,
		Logger:         log.Named("http"),
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, ":"+settings.Port)
}

// newSyncPointStore uses Redis when url is set and process memory otherwise.
func newSyncPointStore(ctx context.Context, url string) (ingest.SyncPointStore, error) {
	if url == "" {
		return ingest.NewMemorySyncPointStore(), nil
	}
	store, err := ingest.NewRedisSyncPointStoreFromURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync point store: %w", err)
	}
	return store, nil
}

// newSink writes to S3 when a bucket is configured. Without one, synced
// records are dropped after being counted.
func newSink(ctx context.Context, cfg ingest.S3SinkConfig, log *logger.Logger) (ingest.Sink, error) {
	if cfg.Bucket == "" {
		log.Warn("", "", "SYNC_BUCKET not set, synced records are discarded", nil)
		return ingest.DiscardSink{}, nil
	}
	sink, err := ingest.NewS3SinkFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 sink: %w", err)
	}
	return sink, nil
}

func newConfigService(ctx context.Context, settings Settings, log *logger.Logger) (*config.RuntimeConfigService, error) {
	opts := config.RuntimeConfigServiceOptions{
		CacheTTL: 5 * time.Minute,
		Logger:   log.Named("config"),
	}
	if settings.DatabaseURL != "" {
		storage, err := registry.NewPostgreSQLStorage(settings.DatabaseURL)
		if err != nil {
			return nil, err
		}
		opts.Store = storage
	}
	if settings.ConfigFile != "" {
		loader, err := config.NewYAMLConfigFileLoader(settings.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", settings.ConfigFile, err)
		}
		opts.FileLoader = loader
	}
	if settings.SecretsRegion != "" {
		sm, err := config.NewAWSSecretsManager(ctx, config.AWSSecretsManagerOptions{
			Region: settings.SecretsRegion,
			Logger: log.Named("secrets"),
		})
		if err != nil {
			return nil, err
		}
		opts.SecretsManager = sm
	}
	return config.NewRuntimeConfigService(opts), nil
}

type configSource interface {
	GetConnectorConfigs(ctx context.Context, tenantID string) ([]*base.ConnectorConfig, config.ConfigSource, error)
}

// registerConnectors connects every configured connector. A connector that
// fails to connect stays registered by config and is retried on first use.
func registerConnectors(ctx context.Context, reg *registry.Registry, factory registry.ConnectorFactory, svc configSource, log *logger.Logger) error {
	configs, source, err := svc.GetConnectorConfigs(ctx, "*")
	if err != nil {
		return err
	}
	connected := 0
	for _, cfg := range configs {
		conn, err := factory(cfg.Type)
		if err != nil {
			log.Warn(cfg.TenantID, "", "skipping connector", map[string]interface{}{
				"connector": cfg.Name,
				"error":     err.Error(),
			})
			continue
		}
		if err := reg.Register(cfg.Name, conn, cfg); err != nil {
			if addErr := reg.AddConfig(cfg); addErr != nil {
				return addErr
			}
			continue
		}
		connected++
	}
	log.Info("", "", "connectors registered", map[string]interface{}{
		"source":    string(source),
		"configs":   len(configs),
		"connected": connected,
	})
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
