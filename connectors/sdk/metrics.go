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
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics shared by every connector instance
var (
	promConnectorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saasbridge_connector_calls_total",
			Help: "Total number of connector calls",
		},
		[]string{"connector_type", "connector", "operation", "status"},
	)
	promConnectorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saasbridge_connector_duration_milliseconds",
			Help:    "Connector call duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"connector_type", "operation"},
	)
	promSyncRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saasbridge_sync_records_total",
			Help: "Records emitted by sync runs",
		},
		[]string{"connector_type", "connector", "kind"},
	)
	promConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "saasbridge_connector_connected",
			Help: "Whether the connector is connected",
		},
		[]string{"connector_type", "connector"},
	)
)

// RegisterPrometheusMetrics registers the connector collectors with reg.
// Registering twice with the same registerer is not an error.
func RegisterPrometheusMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{promConnectorCalls, promConnectorDuration, promSyncRecords, promConnected} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// ConnectorMetrics tracks metrics for a connector
type ConnectorMetrics struct {
	connectorType string
	name          atomic.Value // string

	queriesTotal     int64
	executesTotal    int64
	errorsTotal      int64
	connectsTotal    int64
	recordsSynced    int64
	rateLimitedTotal int64

	queryDurationTotal   int64
	executeDurationTotal int64

	connected int32

	queryLatencies   *LatencyHistogram
	executeLatencies *LatencyHistogram
}

// NewConnectorMetrics creates a new metrics collector
func NewConnectorMetrics(connectorType string) *ConnectorMetrics {
	m := &ConnectorMetrics{
		connectorType:    connectorType,
		queryLatencies:   NewLatencyHistogram(),
		executeLatencies: NewLatencyHistogram(),
	}
	m.name.Store(connectorType)
	return m
}

// SetName sets the instance label used for Prometheus series.
func (m *ConnectorMetrics) SetName(name string) {
	m.name.Store(name)
}

func (m *ConnectorMetrics) instance() string {
	return m.name.Load().(string)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordQuery records a query operation
func (m *ConnectorMetrics) RecordQuery(duration time.Duration, err error) {
	atomic.AddInt64(&m.queriesTotal, 1)
	atomic.AddInt64(&m.queryDurationTotal, int64(duration))
	if err != nil {
		atomic.AddInt64(&m.errorsTotal, 1)
	}
	m.queryLatencies.Record(duration)
	m.observe("query", duration, err)
}

// RecordExecute records an execute operation
func (m *ConnectorMetrics) RecordExecute(duration time.Duration, err error) {
	atomic.AddInt64(&m.executesTotal, 1)
	atomic.AddInt64(&m.executeDurationTotal, int64(duration))
	if err != nil {
		atomic.AddInt64(&m.errorsTotal, 1)
	}
	m.executeLatencies.Record(duration)
	m.observe("execute", duration, err)
}

func (m *ConnectorMetrics) observe(op string, d time.Duration, err error) {
	promConnectorCalls.WithLabelValues(m.connectorType, m.instance(), op, status(err)).Inc()
	promConnectorDuration.WithLabelValues(m.connectorType, op).Observe(float64(d.Microseconds()) / 1000)
}

// RecordSyncRecord counts one record emitted by a sync run.
func (m *ConnectorMetrics) RecordSyncRecord(kind string) {
	atomic.AddInt64(&m.recordsSynced, 1)
	promSyncRecords.WithLabelValues(m.connectorType, m.instance(), kind).Inc()
}

// RecordRateLimited counts a 429 or equivalent vendor throttle.
func (m *ConnectorMetrics) RecordRateLimited() {
	atomic.AddInt64(&m.rateLimitedTotal, 1)
	promConnectorCalls.WithLabelValues(m.connectorType, m.instance(), "throttle", "rate_limited").Inc()
}

// RecordConnect records a connect operation
func (m *ConnectorMetrics) RecordConnect() {
	atomic.AddInt64(&m.connectsTotal, 1)
	atomic.StoreInt32(&m.connected, 1)
	promConnected.WithLabelValues(m.connectorType, m.instance()).Set(1)
}

// RecordDisconnect records a disconnect operation
func (m *ConnectorMetrics) RecordDisconnect() {
	atomic.StoreInt32(&m.connected, 0)
	promConnected.WithLabelValues(m.connectorType, m.instance()).Set(0)
}

// GetStats returns current metrics
func (m *ConnectorMetrics) GetStats() *MetricsSnapshot {
	queries := atomic.LoadInt64(&m.queriesTotal)
	executes := atomic.LoadInt64(&m.executesTotal)

	var avgQuery, avgExecute time.Duration
	if queries > 0 {
		avgQuery = time.Duration(atomic.LoadInt64(&m.queryDurationTotal) / queries)
	}
	if executes > 0 {
		avgExecute = time.Duration(atomic.LoadInt64(&m.executeDurationTotal) / executes)
	}

	return &MetricsSnapshot{
		ConnectorType:     m.connectorType,
		QueriesTotal:      queries,
		ExecutesTotal:     executes,
		ErrorsTotal:       atomic.LoadInt64(&m.errorsTotal),
		ConnectsTotal:     atomic.LoadInt64(&m.connectsTotal),
		RecordsSynced:     atomic.LoadInt64(&m.recordsSynced),
		RateLimitedTotal:  atomic.LoadInt64(&m.rateLimitedTotal),
		Connected:         atomic.LoadInt32(&m.connected) == 1,
		AvgQueryLatency:   avgQuery,
		AvgExecuteLatency: avgExecute,
		QueryLatencyP50:   m.queryLatencies.Percentile(0.5),
		QueryLatencyP95:   m.queryLatencies.Percentile(0.95),
		QueryLatencyP99:   m.queryLatencies.Percentile(0.99),
		ExecuteLatencyP50: m.executeLatencies.Percentile(0.5),
		ExecuteLatencyP95: m.executeLatencies.Percentile(0.95),
		ExecuteLatencyP99: m.executeLatencies.Percentile(0.99),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	ConnectorType     string        `json:"connector_type"`
	QueriesTotal      int64         `json:"queries_total"`
	ExecutesTotal     int64         `json:"executes_total"`
	ErrorsTotal       int64         `json:"errors_total"`
	ConnectsTotal     int64         `json:"connects_total"`
	RecordsSynced     int64         `json:"records_synced"`
	RateLimitedTotal  int64         `json:"rate_limited_total"`
	Connected         bool          `json:"connected"`
	AvgQueryLatency   time.Duration `json:"avg_query_latency"`
	AvgExecuteLatency time.Duration `json:"avg_execute_latency"`
	QueryLatencyP50   time.Duration `json:"query_latency_p50"`
	QueryLatencyP95   time.Duration `json:"query_latency_p95"`
	QueryLatencyP99   time.Duration `json:"query_latency_p99"`
	ExecuteLatencyP50 time.Duration `json:"execute_latency_p50"`
	ExecuteLatencyP95 time.Duration `json:"execute_latency_p95"`
	ExecuteLatencyP99 time.Duration `json:"execute_latency_p99"`
}

// LatencyHistogram keeps a bounded window of samples for percentile reporting.
type LatencyHistogram struct {
	samples []time.Duration
	maxSize int
	mu      sync.Mutex
}

// NewLatencyHistogram creates a new latency histogram
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		samples: make([]time.Duration, 0, 256),
		maxSize: 4096,
	}
}

// Record adds a latency sample, dropping the oldest half when full.
func (h *LatencyHistogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = append(h.samples[:0], h.samples[len(h.samples)/2:]...)
	}
	h.samples = append(h.samples, d)
}

// Percentile calculates the given percentile
func (h *LatencyHistogram) Percentile(p float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(h.samples))
	copy(sorted, h.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return sorted[int(float64(len(sorted)-1)*p)]
}

// Count returns the number of samples
func (h *LatencyHistogram) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}
