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

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/sdk"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	route  string
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestContext assigns the request id, copies the tenant into the
// context and logs the outcome.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}
		tenantID := r.Header.Get(headerTenantID)

		ctx := sdk.WithRequestID(r.Context(), requestID)
		ctx = sdk.WithTenantID(ctx, tenantID)
		w.Header().Set(headerRequestID, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK, route: "unmatched"}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.requests.WithLabelValues(rec.route, r.Method, strconv.Itoa(rec.status)).Inc()
		s.logger.InfoWithDuration(tenantID, requestID, "request completed", time.Since(start), map[string]interface{}{
			"method": r.Method,
			"path":   base.SanitizeLogString(r.URL.Path),
			"status": rec.status,
		})
	})
}

// routeLabel records the matched route template for the request counter.
func routeLabel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec, ok := w.(*statusRecorder); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					rec.route = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// tenantAccess rejects requests for connectors the tenant cannot see.
func (s *Server) tenantAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if _, err := s.registry.GetConfig(name); err != nil {
			s.writeError(w, r, http.StatusNotFound, err.Error())
			return
		}
		if err := s.registry.ValidateTenantAccess(name, r.Header.Get(headerTenantID)); err != nil {
			s.writeError(w, r, http.StatusForbidden, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
