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

package base

import (
	"context"
	"time"
)

// RecordKind distinguishes upserts from deletions in a sync stream.
type RecordKind string

const (
	RecordUpsert RecordKind = "upsert"
	RecordDelete RecordKind = "delete"

	// RecordCheckpoint closes a unit of work, such as one drive's delta
	// chain. It carries no document. A consumer calls Commit only after
	// every record received before it has been written; an uncommitted
	// checkpoint is redone by the next run.
	RecordCheckpoint RecordKind = "checkpoint"
)

// AccessControl is the resolved audience of a record.
// Users and Groups hold email addresses and group identifiers. OrgWide and
// Public are set when a sharing link widens access beyond the explicit list.
type AccessControl struct {
	Users   []string `json:"users,omitempty"`
	Groups  []string `json:"groups,omitempty"`
	OrgWide bool     `json:"org_wide,omitempty"`
	Public  bool     `json:"public,omitempty"`
}

// Record is one vendor-independent document change emitted by a SyncConnector.
type Record struct {
	ID          string                 `json:"id"`
	Kind        RecordKind             `json:"kind"`
	Source      string                 `json:"source"` // connector name
	Title       string                 `json:"title,omitempty"`
	URL         string                 `json:"url,omitempty"`
	ContentType string                 `json:"content_type,omitempty"`
	Size        int64                  `json:"size,omitempty"`
	ModifiedAt  time.Time              `json:"modified_at,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Access      *AccessControl         `json:"access,omitempty"`

	// Commit persists the progress a checkpoint stands for.
	Commit func(ctx context.Context) error `json:"-"`
}

// NewCheckpoint returns a checkpoint record for source.
func NewCheckpoint(source, id string, commit func(ctx context.Context) error) Record {
	return Record{ID: id, Kind: RecordCheckpoint, Source: source, Commit: commit}
}

// IsCheckpoint reports whether r is a checkpoint rather than a document.
func (r Record) IsCheckpoint() bool {
	return r.Kind == RecordCheckpoint
}

// SyncRequest selects the scope of a sync run.
type SyncRequest struct {
	RunID    string `json:"run_id"`
	TenantID string `json:"tenant_id"`
	// Full ignores stored sync points and re-reads everything.
	Full bool `json:"full"`
	// Scope narrows the sync (for SharePoint, a list of drive ids).
	Scope []string `json:"scope,omitempty"`
}

// SyncConnector is a Connector that can stream document changes.
// Both channels are closed when the run ends. At most one error is sent on
// the error channel before it closes.
type SyncConnector interface {
	Connector
	Sync(ctx context.Context, req SyncRequest) (<-chan Record, <-chan error)
}
