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

package sharepoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"saasbridge/platform/connectors/sdk"
)

// ErrDeltaTokenExpired means the stored delta link can no longer be used
// and the drive has to be read from the root again.
var ErrDeltaTokenExpired = errors.New("delta token expired")

// resyncCodes are the Graph error codes that invalidate a delta token.
var resyncCodes = map[string]bool{
	"resyncRequired":                 true,
	"syncStateNotFound":              true,
	"resyncChangesApplyDifferences":  true,
	"resyncChangesUploadDifferences": true,
	"resyncApplyDifferences":         true,
	"resyncUploadDifferences":        true,
}

// APIError is a Graph or SharePoint REST error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("sharepoint API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("sharepoint API error %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus lets base.StatusFromError report the vendor status.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// parseAPIError reads {"error":{...}} (Graph) or {"odata.error":{...}}
// (SharePoint REST). It returns nil when the body has neither.
func parseAPIError(status int, body string) *APIError {
	var payload struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		OData *struct {
			Code    string `json:"code"`
			Message struct {
				Value string `json:"value"`
			} `json:"message"`
		} `json:"odata.error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil
	}
	switch {
	case payload.Error != nil:
		return &APIError{StatusCode: status, Code: payload.Error.Code, Message: payload.Error.Message}
	case payload.OData != nil:
		return &APIError{StatusCode: status, Code: payload.OData.Code, Message: payload.OData.Message.Value}
	}
	return nil
}

// vendorError replaces an HTTPError with the API error it carries.
func vendorError(err error) error {
	var herr *sdk.HTTPError
	if errors.As(err, &herr) {
		if apiErr := parseAPIError(herr.StatusCode, herr.Body); apiErr != nil {
			return apiErr
		}
	}
	return err
}

// deltaError maps 410 Gone and the resync codes to ErrDeltaTokenExpired.
func deltaError(err error) error {
	err = vendorError(err)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusGone || resyncCodes[apiErr.Code]) {
		return fmt.Errorf("%w: %s", ErrDeltaTokenExpired, apiErr.Message)
	}
	var herr *sdk.HTTPError
	if errors.As(err, &herr) && herr.StatusCode == http.StatusGone {
		return fmt.Errorf("%w: %s", ErrDeltaTokenExpired, herr.Error())
	}
	return err
}
