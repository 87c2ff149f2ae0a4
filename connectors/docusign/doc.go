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

// Package docusign provides the DocuSign eSignature REST v2.1 connector.
//
// Authentication is either a static access token or the JWT bearer grant
// (integration key, impersonated user id and RSA private key with the
// "signature impersonation" scope) against account-d.docusign.com (demo) or
// account.docusign.com (production). After login the connector reads
// /oauth/userinfo to find the account and its base_uri.
//
// Query statements: list_envelopes, get_envelope, list_recipients,
// list_documents, list_templates, get_template.
// Execute actions: create_envelope, void_envelope, resend_envelope.
package docusign
