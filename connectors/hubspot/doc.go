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

// Package hubspot exposes the HubSpot CRM v3 object APIs as a connector.
//
// Every supported object type shares one set of operations, so statements
// follow the grammar "<verb> <object>":
//
//	list contacts        GET    /crm/v3/objects/contacts
//	get deals            GET    /crm/v3/objects/deals/{id}
//	search companies     POST   /crm/v3/objects/companies/search
//	properties tickets   GET    /crm/v3/properties/tickets
//
// Execute uses the same grammar with the verbs create, update, archive and
// associate. Authentication is a private-app access token or an OAuth client
// with a refresh token.
package hubspot
