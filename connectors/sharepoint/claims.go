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

import "strings"

// ClaimKind classifies a SharePoint login-name claim.
type ClaimKind int

const (
	ClaimUnknown ClaimKind = iota
	ClaimUser
	ClaimM365Group
	ClaimM365GroupOwners
	ClaimSecurityGroup
	ClaimEveryone
)

func (k ClaimKind) String() string {
	switch k {
	case ClaimUser:
		return "user"
	case ClaimM365Group:
		return "m365_group"
	case ClaimM365GroupOwners:
		return "m365_group_owners"
	case ClaimSecurityGroup:
		return "security_group"
	case ClaimEveryone:
		return "everyone"
	}
	return "unknown"
}

// Claim is a parsed login name. Value is the lowercased UPN for users and
// the Entra object id for groups.
type Claim struct {
	Kind  ClaimKind
	Value string
}

const (
	userClaimPrefix     = "i:0#.f|membership|"
	m365ClaimPrefix     = "c:0o.c|federateddirectoryclaimprovider|"
	securityClaimPrefix = "c:0t.c|tenant|"
	everyonePrefix      = "c:0-.f|rolemanager|spo-grid-all-users"
	everyoneClaim       = "c:0(.s|true"
	ownersSuffix        = "_o"
)

// ParseClaim classifies a login name such as "i:0#.f|membership|ann@contoso.com".
func ParseClaim(loginName string) Claim {
	login := strings.TrimSpace(loginName)
	lower := strings.ToLower(login)

	switch {
	case strings.HasPrefix(lower, userClaimPrefix):
		upn := strings.TrimSpace(lower[len(userClaimPrefix):])
		if upn == "" {
			return Claim{Kind: ClaimUnknown, Value: login}
		}
		return Claim{Kind: ClaimUser, Value: upn}

	case strings.HasPrefix(lower, m365ClaimPrefix):
		id := lower[len(m365ClaimPrefix):]
		if strings.HasSuffix(id, ownersSuffix) {
			return Claim{Kind: ClaimM365GroupOwners, Value: strings.TrimSuffix(id, ownersSuffix)}
		}
		return Claim{Kind: ClaimM365Group, Value: id}

	case strings.HasPrefix(lower, securityClaimPrefix):
		return Claim{Kind: ClaimSecurityGroup, Value: lower[len(securityClaimPrefix):]}

	case strings.HasPrefix(lower, everyonePrefix), lower == everyoneClaim:
		return Claim{Kind: ClaimEveryone}
	}
	return Claim{Kind: ClaimUnknown, Value: login}
}
