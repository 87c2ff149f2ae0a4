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

/*
Package logger provides structured JSON logging for connectors, the sync
runner and the HTTP gateway.

Each log entry includes the timestamp (RFC3339Nano), level, component,
instance ID, container name, tenant ID, request ID and custom fields:

	log := logger.New("sharepoint")
	log.Info("tenant-1", "req-456", "Drive delta completed", map[string]interface{}{
	    "drive_id": driveID,
	    "items":    n,
	})

Output is one JSON object per line:

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"sharepoint","instance_id":"i-abc123","container":"bridge-xyz",
	 "tenant_id":"tenant-1","request_id":"req-456",
	 "message":"Drive delta completed","fields":{"drive_id":"b!x","items":42}}

# Environment Variables

  - INSTANCE_ID: Deployment instance identifier
  - LOG_LEVEL: Minimum level written (DEBUG, INFO, WARN, ERROR; default INFO)

Logger instances are safe for concurrent use.
*/
package logger
