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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/shared/logger"
)

// DefaultBatchSize bounds how many records are buffered before a sink write.
const DefaultBatchSize = 100

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	BatchSize int
	// BatchPause is slept after every flush.
	BatchPause time.Duration
}

// RunSummary describes one completed or failed run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Connector   string        `json:"connector"`
	Upserts     int           `json:"upserts"`
	Deletes     int           `json:"deletes"`
	Errors      int           `json:"errors"`
	Checkpoints int           `json:"checkpoints"` // committed
	Duration    time.Duration `json:"duration"`
}

// Runner drains a SyncConnector into a Sink.
type Runner struct {
	sink   Sink
	cfg    RunnerConfig
	logger *logger.Logger
	now    func() time.Time
}

// NewRunner creates a Runner. A nil sink discards records.
func NewRunner(sink Sink, cfg RunnerConfig) *Runner {
	if sink == nil {
		sink = DiscardSink{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Runner{sink: sink, cfg: cfg, logger: logger.New("ingest"), now: time.Now}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *logger.Logger) {
	r.logger = l
}

// Run syncs sc until both of its channels close. A sink failure cancels the
// connector's sync and is returned together with any sync error. Checkpoints
// are committed only once every record before them has been written, so a
// failed write never advances a sync point.
func (r *Runner) Run(ctx context.Context, sc base.SyncConnector, req base.SyncRequest) (*RunSummary, error) {
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	start := r.now()
	summary := &RunSummary{RunID: req.RunID, Connector: sc.Name()}

	ctx, cancel := context.WithCancel(WithRunID(ctx, req.RunID))
	defer cancel()

	r.logger.Info(req.TenantID, req.RunID, "Sync run started", map[string]interface{}{
		"connector": sc.Name(),
		"full":      req.Full,
	})

	records, errs := sc.Sync(ctx, req)
	batch := make([]base.Record, 0, r.cfg.BatchSize)
	var sinkErr, syncErr, commitErr error

	flush := func() {
		if len(batch) == 0 || sinkErr != nil {
			batch = batch[:0]
			return
		}
		if err := r.sink.Write(ctx, batch); err != nil {
			sinkErr = fmt.Errorf("sink write failed: %w", err)
			summary.Errors++
			cancel()
		} else {
			for _, rec := range batch {
				if rec.Kind == base.RecordDelete {
					summary.Deletes++
				} else {
					summary.Upserts++
				}
			}
		}
		batch = batch[:0]
		if sinkErr == nil && r.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.cfg.BatchPause):
			}
		}
	}

	// commit runs after every record before the checkpoint was written.
	commit := func(rec base.Record) {
		if rec.Commit == nil {
			return
		}
		if err := rec.Commit(ctx); err != nil {
			commitErr = errors.Join(commitErr, fmt.Errorf("checkpoint %s: %w", rec.ID, err))
			summary.Errors++
			return
		}
		summary.Checkpoints++
	}

	for records != nil || errs != nil {
		select {
		case rec, ok := <-records:
			if !ok {
				records = nil
				continue
			}
			if sinkErr != nil {
				continue
			}
			if rec.IsCheckpoint() {
				flush()
				if sinkErr == nil {
					commit(rec)
				}
				continue
			}
			batch = append(batch, rec)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && !(sinkErr != nil && errors.Is(err, context.Canceled)) {
				syncErr = err
				summary.Errors++
			}
		}
	}
	flush()
	summary.Duration = r.now().Sub(start)

	err := errors.Join(syncErr, sinkErr, commitErr)
	fields := map[string]interface{}{
		"connector":   sc.Name(),
		"upserts":     summary.Upserts,
		"deletes":     summary.Deletes,
		"errors":      summary.Errors,
		"checkpoints": summary.Checkpoints,
	}
	if err != nil {
		r.logger.ErrorWithCode(req.TenantID, req.RunID, "Sync run failed", base.StatusFromError(err), err, fields)
		return summary, err
	}
	r.logger.InfoWithDuration(req.TenantID, req.RunID, "Sync run completed", summary.Duration, fields)
	return summary, nil
}
