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

// Package server exposes the connector registry over HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /connectors
//	GET  /connectors/{name}/health
//	POST /connectors/{name}/query
//	POST /connectors/{name}/execute
//	POST /connectors/{name}/sync
//	GET  /prometheus
//
// Every JSON body is a base.ToolResponse. X-Tenant-ID selects the tenant
// whose connectors are visible; X-Request-ID is echoed back or generated.
package server
