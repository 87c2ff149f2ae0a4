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

package slack

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
)

// MaxCandidates caps the candidates reported by an AmbiguousError.
const MaxCandidates = 10

var (
	// ErrAmbiguous is matched by errors.Is when a query fits several users or channels.
	ErrAmbiguous = errors.New("ambiguous match")
	// ErrNotFound is returned when no user or channel matches a query.
	ErrNotFound = errors.New("no match")
)

// Candidate is one possible match listed by an AmbiguousError.
type Candidate struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

// AmbiguousError lists the candidates of the first tier with several matches.
type AmbiguousError struct {
	Kind       string // user or channel
	Query      string
	Candidates []Candidate
	Total      int
}

func (e *AmbiguousError) Error() string {
	names := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.ID))
	}
	msg := fmt.Sprintf("%q matches %d %ss: %s", e.Query, e.Total, e.Kind, strings.Join(names, ", "))
	if e.Total > len(e.Candidates) {
		msg += ", ..."
	}
	return msg
}

func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguous }

// HTTPStatus maps ambiguity to 409 for the gateway.
func (e *AmbiguousError) HTTPStatus() int { return 409 }

type notFoundError struct {
	kind  string
	query string
}

func (e *notFoundError) Error() string   { return fmt.Sprintf("no %s matches %q", e.kind, e.query) }
func (e *notFoundError) Unwrap() error   { return ErrNotFound }
func (e *notFoundError) HTTPStatus() int { return 404 }

var (
	userMention    = regexp.MustCompile(`^<@([A-Za-z0-9]+)(\|[^>]*)?>$`)
	channelMention = regexp.MustCompile(`^<#([A-Za-z0-9]+)(\|[^>]*)?>$`)
	userIDPattern  = regexp.MustCompile(`^[UW][A-Z0-9]{6,}$`)
	chanIDPattern  = regexp.MustCompile(`^[CGD][A-Z0-9]{6,}$`)
)

// normalizeUserQuery strips mention syntax and a leading "@" and lower-cases.
func normalizeUserQuery(q string) string {
	q = strings.TrimSpace(q)
	if m := userMention.FindStringSubmatch(q); m != nil {
		q = m[1]
	}
	q = strings.TrimPrefix(q, "@")
	return strings.ToLower(strings.TrimSpace(q))
}

// normalizeChannelQuery strips mention syntax and a leading "#" and lower-cases.
func normalizeChannelQuery(q string) string {
	q = strings.TrimSpace(q)
	if m := channelMention.FindStringSubmatch(q); m != nil {
		q = m[1]
	}
	q = strings.TrimPrefix(q, "#")
	return strings.ToLower(strings.TrimSpace(q))
}

type tier[T any] func(item T, q string) bool

// pick runs the tiers in order and returns the matches of the first tier
// that matched anything. exactTiers counts the leading tiers where
// restricted items (bots, archived channels) may still match.
func pick[T any](items []T, q string, tiers []tier[T], exactTiers int, restricted func(T) bool) []T {
	for i, match := range tiers {
		var hits []T
		for _, item := range items {
			if i >= exactTiers && restricted(item) {
				continue
			}
			if match(item, q) {
				hits = append(hits, item)
			}
		}
		if len(hits) > 0 {
			return hits
		}
	}
	return nil
}

func userNames(u slack.User) []string {
	names := []string{u.Name, u.Profile.DisplayName, u.RealName, u.Profile.RealName}
	out := names[:0]
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func anyName(names []string, fn func(string) bool) bool {
	for _, n := range names {
		if fn(n) {
			return true
		}
	}
	return false
}

var userTiers = []tier[slack.User]{
	func(u slack.User, q string) bool { return strings.ToLower(u.ID) == q },
	func(u slack.User, q string) bool { return u.Profile.Email != "" && strings.ToLower(u.Profile.Email) == q },
	func(u slack.User, q string) bool {
		return anyName(userNames(u), func(n string) bool { return n == q })
	},
	func(u slack.User, q string) bool {
		return anyName(userNames(u), func(n string) bool { return strings.HasPrefix(n, q) })
	},
	func(u slack.User, q string) bool {
		return anyName(userNames(u), func(n string) bool { return strings.Contains(n, q) })
	},
}

var channelTiers = []tier[slack.Channel]{
	func(c slack.Channel, q string) bool { return strings.ToLower(c.ID) == q },
	func(c slack.Channel, q string) bool { return strings.ToLower(c.Name) == q },
	func(c slack.Channel, q string) bool { return strings.HasPrefix(strings.ToLower(c.Name), q) },
	func(c slack.Channel, q string) bool { return strings.Contains(strings.ToLower(c.Name), q) },
}

// MatchUser resolves query against users. Deleted users never match; bots
// match only through the exact tiers (ID, email, name).
func MatchUser(users []slack.User, query string) (*slack.User, error) {
	q := normalizeUserQuery(query)
	if q == "" {
		return nil, &notFoundError{kind: "user", query: query}
	}

	live := make([]slack.User, 0, len(users))
	for _, u := range users {
		if !u.Deleted {
			live = append(live, u)
		}
	}

	hits := pick(live, q, userTiers, 3, func(u slack.User) bool { return u.IsBot })
	switch len(hits) {
	case 0:
		return nil, &notFoundError{kind: "user", query: query}
	case 1:
		return &hits[0], nil
	}

	amb := &AmbiguousError{Kind: "user", Query: query, Total: len(hits)}
	for i := 0; i < len(hits) && i < MaxCandidates; i++ {
		u := hits[i]
		label := u.RealName
		if label == "" {
			label = u.Profile.DisplayName
		}
		amb.Candidates = append(amb.Candidates, Candidate{ID: u.ID, Name: u.Name, Label: label})
	}
	return nil, amb
}

// MatchChannel resolves query against channels. Archived channels match only
// by exact ID or name.
func MatchChannel(channels []slack.Channel, query string) (*slack.Channel, error) {
	q := normalizeChannelQuery(query)
	if q == "" {
		return nil, &notFoundError{kind: "channel", query: query}
	}

	hits := pick(channels, q, channelTiers, 2, func(c slack.Channel) bool { return c.IsArchived })
	switch len(hits) {
	case 0:
		return nil, &notFoundError{kind: "channel", query: query}
	case 1:
		return &hits[0], nil
	}

	amb := &AmbiguousError{Kind: "channel", Query: query, Total: len(hits)}
	for i := 0; i < len(hits) && i < MaxCandidates; i++ {
		c := hits[i]
		amb.Candidates = append(amb.Candidates, Candidate{ID: c.ID, Name: c.Name, Label: c.Purpose.Value})
	}
	return nil, amb
}

// exactChannel returns the channel whose ID or name equals the query.
func exactChannel(channels []slack.Channel, query string) *slack.Channel {
	q := normalizeChannelQuery(query)
	hits := pick(channels, q, channelTiers[:2], 2, func(slack.Channel) bool { return false })
	if len(hits) == 1 {
		return &hits[0]
	}
	return nil
}

// recipientKind classifies a send_message recipient before any lookup.
type recipientKind int

const (
	recipientBare recipientKind = iota
	recipientChannel
	recipientChannelID
	recipientUser
	recipientUserID
	recipientEmail
)

func classifyRecipient(raw string) (recipientKind, string) {
	r := strings.TrimSpace(raw)
	switch {
	case channelMention.MatchString(r):
		return recipientChannelID, channelMention.FindStringSubmatch(r)[1]
	case userMention.MatchString(r):
		return recipientUserID, userMention.FindStringSubmatch(r)[1]
	case strings.HasPrefix(r, "#"):
		return recipientChannel, r
	case strings.HasPrefix(r, "@"):
		return recipientUser, r
	case chanIDPattern.MatchString(r):
		return recipientChannelID, r
	case userIDPattern.MatchString(r):
		return recipientUserID, r
	case strings.Contains(r, "@"):
		return recipientEmail, r
	}
	return recipientBare, r
}
