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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/registry"
	"saasbridge/platform/connectors/sdk"
	"saasbridge/platform/ingest"
	"saasbridge/platform/shared/logger"
)

const (
	// maxBodySize caps request bodies.
	maxBodySize = 1 << 20

	headerTenantID  = "X-Tenant-ID"
	headerRequestID = "X-Request-ID"
)

// Options configures a Server.
type Options struct {
	// Sink receives records from POST /connectors/{name}/sync. Nil discards.
	Sink ingest.Sink
	// BatchSize bounds sink writes during sync runs.
	BatchSize int
	// AllowedOrigins for CORS. Empty allows every origin.
	AllowedOrigins []string
	// Metrics is served on /prometheus. A fresh registry is created when nil.
	Metrics *prometheus.Registry
	Logger  *logger.Logger
}

// Server routes HTTP requests to registered connectors.
type Server struct {
	registry *registry.Registry
	runner   *ingest.Runner
	logger   *logger.Logger
	router   *mux.Router
	handler  http.Handler
	requests *prometheus.CounterVec
}

// New builds the router. It registers the connector collectors with the
// metrics registry.
func New(reg *registry.Registry, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = logger.New("server")
	}
	if opts.Metrics == nil {
		opts.Metrics = prometheus.NewRegistry()
	}
	if err := sdk.RegisterPrometheusMetrics(opts.Metrics); err != nil {
		return nil, fmt.Errorf("failed to register connector metrics: %w", err)
	}

	s := &Server{
		registry: reg,
		runner:   ingest.NewRunner(opts.Sink, ingest.RunnerConfig{BatchSize: opts.BatchSize}),
		logger:   opts.Logger,
		router:   mux.NewRouter(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saasbridge_http_requests_total",
				Help: "HTTP requests handled by the gateway",
			},
			[]string{"route", "method", "status"},
		),
	}
	if err := opts.Metrics.Register(s.requests); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("failed to register request metrics: %w", err)
		}
		s.requests = are.ExistingCollector.(*prometheus.CounterVec)
	}
	s.runner.SetLogger(opts.Logger.Named("ingest"))

	s.router.Use(routeLabel)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/connectors", s.handleList).Methods(http.MethodGet)
	s.router.Handle("/prometheus", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	conn := s.router.PathPrefix("/connectors/{name}").Subrouter()
	conn.Use(s.tenantAccess)
	conn.HandleFunc("/health", s.handleConnectorHealth).Methods(http.MethodGet)
	conn.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	conn.HandleFunc("/execute", s.handleExecute).Methods(http.MethodPost)
	conn.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "route not found")
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	// Subrouters report method mismatches through their own handler.
	s.router.NotFoundHandler = notFound
	s.router.MethodNotAllowedHandler = notAllowed
	conn.MethodNotAllowedHandler = notAllowed

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", headerTenantID, headerRequestID},
		ExposedHeaders: []string{headerRequestID},
	}).Handler(s.requestContext(s.router))

	return s, nil
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("", "", "gateway listening", map[string]interface{}{"addr": addr})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, resp *base.ToolResponse) {
	resp.RequestID = sdk.GetRequestID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error(sdk.GetTenantID(r.Context()), resp.RequestID, "failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, data interface{}, err error) {
	s.writeJSON(w, r, base.NewToolResponse(data, err))
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, &base.ToolResponse{Success: false, Error: message, StatusCode: status})
}
