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

// Package sharepoint syncs SharePoint Online document libraries through
// Microsoft Graph delta queries and resolves who can see each file.
//
// A sync walks every selected drive of the configured site:
//
//	GET /drives/{id}/root/delta          first run, or after a token expires
//	GET <stored @odata.deltaLink>        incremental runs
//
// Pages are followed through @odata.nextLink until a page carries
// @odata.deltaLink. The chain ends with a checkpoint record; committing it
// stores the delta link as the drive's sync point, so a drive whose chain
// fails, or whose records never reach the sink, keeps its previous point.
//
// Permissions come from /drives/{d}/items/{i}/permissions. Graph groups are
// expanded with transitiveMembers; SharePoint site groups are read through
// the SharePoint REST API and their members' login-name claims are mapped
// back to users, Microsoft 365 groups, security groups or everyone.
package sharepoint
