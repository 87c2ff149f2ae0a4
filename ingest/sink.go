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

package ingest

import (
	"context"
	"sync"

	"saasbridge/platform/connectors/base"
)

// Sink receives each batch a Runner drains from a connector.
type Sink interface {
	Write(ctx context.Context, records []base.Record) error
}

type runIDKey struct{}

// WithRunID attaches the sync run id to ctx so sinks can partition output.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id set by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// MemorySink collects records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []base.Record
	batches int
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Write(ctx context.Context, records []base.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	m.batches++
	return nil
}

// Records returns a copy of everything written so far.
func (m *MemorySink) Records() []base.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]base.Record(nil), m.records...)
}

// Batches reports how many Write calls the sink received.
func (m *MemorySink) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

// DiscardSink drops every record. It is the default when no sink is configured.
type DiscardSink struct{}

func (DiscardSink) Write(context.Context, []base.Record) error { return nil }
