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

package docusign

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// UserInfo is the /oauth/userinfo response.
type UserInfo struct {
	Sub      string    `json:"sub"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Accounts []Account `json:"accounts"`
}

// Account is one account the authenticated user can act on.
type Account struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	IsDefault   bool   `json:"is_default"`
	BaseURI     string `json:"base_uri"`
}

// Envelope summarises an envelope.
type Envelope struct {
	EnvelopeID            string `json:"envelopeId"`
	Status                string `json:"status"`
	EmailSubject          string `json:"emailSubject,omitempty"`
	CreatedDateTime       string `json:"createdDateTime,omitempty"`
	SentDateTime          string `json:"sentDateTime,omitempty"`
	CompletedDateTime     string `json:"completedDateTime,omitempty"`
	VoidedDateTime        string `json:"voidedDateTime,omitempty"`
	VoidedReason          string `json:"voidedReason,omitempty"`
	StatusChangedDateTime string `json:"statusChangedDateTime,omitempty"`
	TemplatesURI          string `json:"templatesUri,omitempty"`
}

type envelopesResponse struct {
	Envelopes     []Envelope `json:"envelopes"`
	ResultSetSize string     `json:"resultSetSize"`
	TotalSetSize  string     `json:"totalSetSize"`
	NextURI       string     `json:"nextUri"`
}

// Recipient is a signer or carbon-copy recipient.
type Recipient struct {
	RecipientID  string `json:"recipientId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	RoleName     string `json:"roleName,omitempty"`
	RoutingOrder string `json:"routingOrder,omitempty"`
	Status       string `json:"status,omitempty"`
	SignedAt     string `json:"signedDateTime,omitempty"`
	DeliveredAt  string `json:"deliveredDateTime,omitempty"`
}

type recipientsResponse struct {
	Signers      []Recipient `json:"signers"`
	CarbonCopies []Recipient `json:"carbonCopies"`
}

// Document is one document of an envelope.
type Document struct {
	DocumentID string `json:"documentId"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	URI        string `json:"uri"`
	Order      string `json:"order,omitempty"`
	Pages      string `json:"pages,omitempty"`
}

type documentsResponse struct {
	EnvelopeID        string     `json:"envelopeId"`
	EnvelopeDocuments []Document `json:"envelopeDocuments"`
}

// Template summarises a template.
type Template struct {
	TemplateID   string `json:"templateId"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Shared       string `json:"shared,omitempty"`
	Created      string `json:"created,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
	EmailSubject string `json:"emailSubject,omitempty"`
}

type templatesResponse struct {
	EnvelopeTemplates []Template `json:"envelopeTemplates"`
	ResultSetSize     string     `json:"resultSetSize"`
	TotalSetSize      string     `json:"totalSetSize"`
}

// TemplateRole fills a template role with a recipient.
type TemplateRole struct {
	RoleName string `json:"roleName"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// EnvelopeDocument is a base64 document uploaded with a new envelope.
type EnvelopeDocument struct {
	DocumentID     string `json:"documentId"`
	Name           string `json:"name"`
	FileExtension  string `json:"fileExtension,omitempty"`
	DocumentBase64 string `json:"documentBase64"`
}

// Signer is a signer of a document-based envelope.
type Signer struct {
	RecipientID  string `json:"recipientId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	RoutingOrder string `json:"routingOrder,omitempty"`
}

// EnvelopeDefinition is the create_envelope payload.
type EnvelopeDefinition struct {
	EmailSubject  string             `json:"emailSubject,omitempty"`
	EmailBlurb    string             `json:"emailBlurb,omitempty"`
	Status        string             `json:"status"`
	TemplateID    string             `json:"templateId,omitempty"`
	TemplateRoles []TemplateRole     `json:"templateRoles,omitempty"`
	Documents     []EnvelopeDocument `json:"documents,omitempty"`
	Recipients    *Recipients        `json:"recipients,omitempty"`
}

// Recipients groups the recipients of a document-based envelope.
type Recipients struct {
	Signers []Signer `json:"signers"`
}

// EnvelopeSummary is returned when an envelope is created.
type EnvelopeSummary struct {
	EnvelopeID     string `json:"envelopeId"`
	Status         string `json:"status"`
	StatusDateTime string `json:"statusDateTime"`
	URI            string `json:"uri"`
}

// APIError is a DocuSign error body with its HTTP status.
type APIError struct {
	StatusCode int    `json:"-"`
	ErrorCode  string `json:"errorCode"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docusign %s: %s (status %d)", e.ErrorCode, e.Message, e.StatusCode)
}

// HTTPStatus surfaces the vendor status to the gateway.
func (e *APIError) HTTPStatus() int {
	if e.StatusCode == 0 {
		return http.StatusBadGateway
	}
	return e.StatusCode
}

// parseAPIError decodes a DocuSign error body. It returns nil when the body
// carries no error code.
func parseAPIError(status int, body string) *APIError {
	var e APIError
	if err := json.Unmarshal([]byte(body), &e); err != nil || e.ErrorCode == "" {
		return nil
	}
	e.StatusCode = status
	return &e
}
