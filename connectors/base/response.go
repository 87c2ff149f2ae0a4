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
	"errors"
	"net/http"
)

// StatusCoder is implemented by errors that carry an HTTP status from the vendor API.
type StatusCoder interface {
	HTTPStatus() int
}

// ToolResponse is the uniform success/error envelope handed to agents and pipelines.
type ToolResponse struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	StatusCode int         `json:"status_code"`
	RequestID  string      `json:"request_id,omitempty"`
}

// NewToolResponse wraps a result or an error. A nil error yields a success
// response with status 200; otherwise the status comes from the error chain.
func NewToolResponse(data interface{}, err error) *ToolResponse {
	if err == nil {
		return &ToolResponse{Success: true, Data: data, StatusCode: http.StatusOK}
	}
	return &ToolResponse{
		Success:    false,
		Error:      err.Error(),
		StatusCode: StatusFromError(err),
	}
}

// StatusFromError maps an error chain to an HTTP status code.
func StatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var sc StatusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		return sc.HTTPStatus()
	}
	switch {
	case errors.Is(err, ErrUnsupportedOperation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidParameter):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
