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
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/sdk"
	"saasbridge/platform/shared/logger"
)

const (
	// maxExpansionDepth bounds nested group expansion.
	maxExpansionDepth = 5
	maxPages          = 200
)

type principalKind int

const (
	kindGroup principalKind = iota
	kindGroupOwners
	kindSiteGroup
)

type principalKey struct {
	kind principalKind
	id   string
}

// membership is the flattened content of one group.
type membership struct {
	users    []string
	groups   []string
	everyone bool
}

// Resolver turns item permissions into an AccessControl. Group expansions
// are cached for the Resolver's lifetime, so create one per sync run.
type Resolver struct {
	graph  *sdk.RESTClient
	sp     *sdk.RESTClient
	logger *logger.Logger

	mu    sync.Mutex
	cache map[principalKey]membership
	users map[string]string
}

// NewResolver creates a Resolver over the Graph and SharePoint REST clients.
func NewResolver(graph, sp *sdk.RESTClient, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.New("sharepoint")
	}
	return &Resolver{
		graph:  graph,
		sp:     sp,
		logger: log,
		cache:  make(map[principalKey]membership),
		users:  make(map[string]string),
	}
}

type accessBuilder struct {
	users   map[string]bool
	groups  map[string]bool
	orgWide bool
	public  bool
}

func (b *accessBuilder) addUser(email string) {
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		b.users[email] = true
	}
}

func (b *accessBuilder) merge(m membership) {
	for _, u := range m.users {
		b.users[u] = true
	}
	for _, g := range m.groups {
		b.groups[g] = true
	}
	if m.everyone {
		b.orgWide = true
	}
}

func (b *accessBuilder) build() *base.AccessControl {
	return &base.AccessControl{
		Users:   sortedKeys(b.users),
		Groups:  sortedKeys(b.groups),
		OrgWide: b.orgWide,
		Public:  b.public,
	}
}

// Resolve reads the item's permissions and expands every granted principal.
func (r *Resolver) Resolve(ctx context.Context, driveID, itemID string) (*base.AccessControl, error) {
	var perms []Permission
	link := fmt.Sprintf("/drives/%s/items/%s/permissions", url.PathEscape(driveID), url.PathEscape(itemID))
	if err := getPaged(ctx, r.graph, link, nil, &perms); err != nil {
		return nil, err
	}

	b := &accessBuilder{users: make(map[string]bool), groups: make(map[string]bool)}
	for _, p := range perms {
		if p.Link != nil {
			switch strings.ToLower(p.Link.Scope) {
			case "organization":
				b.orgWide = true
			case "anonymous":
				b.public = true
			}
		}

		identities := p.GrantedToIdentitiesV2
		if p.GrantedToV2 != nil {
			identities = append([]IdentitySet{*p.GrantedToV2}, identities...)
		}
		for _, id := range identities {
			if err := r.addIdentity(ctx, b, id); err != nil {
				return nil, err
			}
		}
	}
	return b.build(), nil
}

func (r *Resolver) addIdentity(ctx context.Context, b *accessBuilder, id IdentitySet) error {
	if id.User != nil {
		email := id.User.Email
		if email == "" && id.User.ID != "" {
			var err error
			if email, err = r.lookupUser(ctx, id.User.ID); err != nil {
				return err
			}
		}
		b.addUser(email)
	}
	if id.Group != nil && id.Group.ID != "" {
		m, err := r.expand(ctx, principalKey{kindGroup, id.Group.ID}, 0, map[principalKey]bool{})
		if err != nil {
			return err
		}
		b.groups[id.Group.ID] = true
		b.merge(m)
	}
	if id.SiteGroup != nil && id.SiteGroup.ID != "" {
		m, err := r.expand(ctx, principalKey{kindSiteGroup, id.SiteGroup.ID}, 0, map[principalKey]bool{})
		if err != nil {
			return err
		}
		b.groups["sitegroup:"+id.SiteGroup.ID] = true
		b.merge(m)
	}
	if id.SiteUser != nil {
		m, err := r.claimMembership(ctx, id.SiteUser.LoginName, id.SiteUser.Email, 0, map[principalKey]bool{})
		if err != nil {
			return err
		}
		b.merge(m)
	}
	return nil
}

// expand returns the flattened membership of key. visited guards against
// cycles within one expansion chain.
func (r *Resolver) expand(ctx context.Context, key principalKey, depth int, visited map[principalKey]bool) (membership, error) {
	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}
	if visited[key] {
		return membership{}, nil
	}
	if depth >= maxExpansionDepth {
		r.logger.Warn("", "", "group expansion depth limit reached", map[string]interface{}{
			"principal": key.id,
			"depth":     depth,
		})
		return membership{}, nil
	}
	visited[key] = true

	var (
		m   membership
		err error
	)
	switch key.kind {
	case kindGroup:
		m, err = r.expandGroup(ctx, key.id, "transitiveMembers", depth, visited)
	case kindGroupOwners:
		m, err = r.expandGroup(ctx, key.id, "owners", depth, visited)
	case kindSiteGroup:
		m, err = r.expandSiteGroup(ctx, key.id, depth, visited)
	}
	if err != nil {
		return membership{}, err
	}

	r.mu.Lock()
	r.cache[key] = m
	r.mu.Unlock()
	return m, nil
}

func (r *Resolver) expandGroup(ctx context.Context, groupID, relation string, depth int, visited map[principalKey]bool) (membership, error) {
	var members []directoryObject
	path := fmt.Sprintf("/groups/%s/%s", url.PathEscape(groupID), relation)
	query := url.Values{"$select": {"id,mail,userPrincipalName"}}
	if err := getPaged(ctx, r.graph, path, query, &members); err != nil {
		return membership{}, fmt.Errorf("group %s %s: %w", groupID, relation, err)
	}

	users := make(map[string]bool)
	groups := make(map[string]bool)
	for _, obj := range members {
		if !obj.isGroup() {
			if email := strings.ToLower(obj.email()); email != "" {
				users[email] = true
			}
			continue
		}
		groups[obj.ID] = true
		// transitiveMembers already lists nested members; owners does not.
		if relation == "owners" {
			nested, err := r.expand(ctx, principalKey{kindGroup, obj.ID}, depth+1, visited)
			if err != nil {
				return membership{}, err
			}
			addAll(users, nested.users)
			addAll(groups, nested.groups)
		} else {
			visited[principalKey{kindGroup, obj.ID}] = true
		}
	}
	return membership{users: sortedKeys(users), groups: sortedKeys(groups)}, nil
}

func (r *Resolver) expandSiteGroup(ctx context.Context, siteGroupID string, depth int, visited map[principalKey]bool) (membership, error) {
	if _, err := strconv.Atoi(siteGroupID); err != nil {
		return membership{}, fmt.Errorf("invalid site group id %q: %w", siteGroupID, base.ErrInvalidParameter)
	}
	var members []siteUser
	path := fmt.Sprintf("/_api/web/sitegroups/getbyid(%s)/users", siteGroupID)
	if err := getPaged(ctx, r.sp, path, nil, &members); err != nil {
		return membership{}, fmt.Errorf("site group %s: %w", siteGroupID, err)
	}

	users := make(map[string]bool)
	groups := make(map[string]bool)
	everyone := false
	for _, member := range members {
		m, err := r.claimMembership(ctx, member.LoginName, member.Email, depth, visited)
		if err != nil {
			return membership{}, err
		}
		addAll(users, m.users)
		addAll(groups, m.groups)
		everyone = everyone || m.everyone
	}
	return membership{users: sortedKeys(users), groups: sortedKeys(groups), everyone: everyone}, nil
}

// claimMembership maps one login-name claim to the principals it stands for.
func (r *Resolver) claimMembership(ctx context.Context, loginName, email string, depth int, visited map[principalKey]bool) (membership, error) {
	claim := ParseClaim(loginName)
	switch claim.Kind {
	case ClaimUser:
		return membership{users: []string{claim.Value}}, nil
	case ClaimEveryone:
		return membership{everyone: true}, nil
	case ClaimM365Group, ClaimSecurityGroup:
		m, err := r.expand(ctx, principalKey{kindGroup, claim.Value}, depth+1, visited)
		if err != nil {
			return membership{}, err
		}
		m.groups = append([]string{claim.Value}, m.groups...)
		return m, nil
	case ClaimM365GroupOwners:
		return r.expand(ctx, principalKey{kindGroupOwners, claim.Value}, depth+1, visited)
	}
	if email != "" {
		return membership{users: []string{strings.ToLower(email)}}, nil
	}
	return membership{}, nil
}

// lookupUser resolves a user id without an email in the grant.
func (r *Resolver) lookupUser(ctx context.Context, userID string) (string, error) {
	r.mu.Lock()
	email, ok := r.users[userID]
	r.mu.Unlock()
	if ok {
		return email, nil
	}

	var obj directoryObject
	query := url.Values{"$select": {"id,mail,userPrincipalName"}}
	if err := r.graph.Get(ctx, "/users/"+url.PathEscape(userID), query, &obj); err != nil {
		return "", fmt.Errorf("user %s: %w", userID, err)
	}
	email = obj.email()

	r.mu.Lock()
	r.users[userID] = email
	r.mu.Unlock()
	return email, nil
}

// getPaged follows @odata.nextLink (Graph) or odata.nextLink (SharePoint
// REST) and appends every value into out.
func getPaged[T any](ctx context.Context, client *sdk.RESTClient, path string, query url.Values, out *[]T) error {
	link := path
	for page := 0; page < maxPages; page++ {
		var resp struct {
			Value      []T    `json:"value"`
			NextLink   string `json:"@odata.nextLink"`
			SPNextLink string `json:"odata.nextLink"`
		}
		if err := client.Get(ctx, link, query, &resp); err != nil {
			return vendorError(err)
		}
		*out = append(*out, resp.Value...)

		next := resp.NextLink
		if next == "" {
			next = resp.SPNextLink
		}
		if next == "" {
			return nil
		}
		link, query = next, nil
	}
	return fmt.Errorf("%s: more than %d pages", path, maxPages)
}

func addAll(set map[string]bool, values []string) {
	for _, v := range values {
		set[v] = true
	}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
