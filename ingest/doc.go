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

// Package ingest moves records from sync-capable connectors into a sink and
// keeps the per-drive sync points that make incremental runs possible.
//
// A Runner drains a base.SyncConnector in bounded batches:
//
//	runner := ingest.NewRunner(ingest.NewMemorySink(), ingest.RunnerConfig{BatchSize: 100})
//	summary, err := runner.Run(ctx, connector, base.SyncRequest{TenantID: "acme"})
//
// Sinks receive each batch through Write. S3Sink stores every batch as one
// JSON lines object under <prefix>/<connector>/<run-id>/<seq>.jsonl.
//
// SyncPointStore implementations persist the delta link of every drive.
// MemorySyncPointStore serves tests and single-process deployments;
// RedisSyncPointStore keeps one hash per connector.
package ingest
