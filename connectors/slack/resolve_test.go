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
	"testing"

	"github.com/slack-go/slack"
)

func user(id, name, real, display, email string) slack.User {
	u := slack.User{ID: id, Name: name, RealName: real}
	u.Profile.DisplayName = display
	u.Profile.Email = email
	u.Profile.RealName = real
	return u
}

func channel(id, name string, archived bool) slack.Channel {
	var ch slack.Channel
	ch.ID = id
	ch.Name = name
	ch.IsArchived = archived
	return ch
}

func testUsers() []slack.User {
	deleted := user("U0DELETED", "jane.old", "Jane Old", "", "old@example.com")
	deleted.Deleted = true
	bot := user("B0DEPLOY1", "deploybot", "Deploy Bot", "", "")
	bot.IsBot = true
	return []slack.User{
		user("U01JANE01", "jane", "Jane Doe", "janed", "jane@example.com"),
		user("U02JOHN01", "john", "John Smith", "", "john@example.com"),
		user("U03JOAN01", "joan", "Joan Jett", "", "joan@example.com"),
		deleted,
		bot,
	}
}

func TestMatchUser(t *testing.T) {
	users := testUsers()

	tests := []struct {
		name    string
		query   string
		wantID  string
		wantErr error
	}{
		{"exact id", "U02JOHN01", "U02JOHN01", nil},
		{"id case insensitive", "u02john01", "U02JOHN01", nil},
		{"mention", "<@U01JANE01>", "U01JANE01", nil},
		{"mention with label", "<@U01JANE01|jane>", "U01JANE01", nil},
		{"email", "JOHN@example.com", "U02JOHN01", nil},
		{"username with at", "@joan", "U03JOAN01", nil},
		{"display name", "janed", "U01JANE01", nil},
		{"real name", "jane doe", "U01JANE01", nil},
		{"prefix", "john s", "U02JOHN01", nil},
		{"substring", "jett", "U03JOAN01", nil},
		{"ambiguous prefix", "jo", "", ErrAmbiguous},
		{"deleted never matches", "old@example.com", "", ErrNotFound},
		{"bot exact", "deploybot", "B0DEPLOY1", nil},
		{"bot not by prefix", "deploy", "", ErrNotFound},
		{"no match", "zed", "", ErrNotFound},
		{"empty", "  @ ", "", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchUser(users, tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("MatchUser(%q) error = %v, want %v", tt.query, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("MatchUser(%q) unexpected error: %v", tt.query, err)
			}
			if got.ID != tt.wantID {
				t.Errorf("MatchUser(%q) = %s, want %s", tt.query, got.ID, tt.wantID)
			}
		})
	}
}

func TestMatchUser_ExactTierBeatsPrefix(t *testing.T) {
	users := []slack.User{
		user("U1AAAAAAA", "sam", "Sam Lee", "", ""),
		user("U2AAAAAAA", "samantha", "Samantha Ray", "", ""),
	}
	got, err := MatchUser(users, "sam")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "U1AAAAAAA" {
		t.Errorf("expected exact name to win, got %s", got.ID)
	}
}

func TestMatchUser_AmbiguousCandidatesCapped(t *testing.T) {
	var users []slack.User
	for i := 0; i < 15; i++ {
		users = append(users, user(fmt.Sprintf("U%08d", i), fmt.Sprintf("alex%d", i), "", "", ""))
	}

	_, err := MatchUser(users, "alex")
	var amb *AmbiguousError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousError, got %v", err)
	}
	if amb.Total != 15 {
		t.Errorf("Total = %d, want 15", amb.Total)
	}
	if len(amb.Candidates) != MaxCandidates {
		t.Errorf("len(Candidates) = %d, want %d", len(amb.Candidates), MaxCandidates)
	}
	if amb.HTTPStatus() != 409 {
		t.Errorf("HTTPStatus() = %d", amb.HTTPStatus())
	}
}

func TestMatchChannel(t *testing.T) {
	channels := []slack.Channel{
		channel("C01GENERAL", "general", false),
		channel("C02ENGINE", "engineering", false),
		channel("C03ENGOPS", "eng-ops", false),
		channel("C04OLDENG", "eng-legacy", true),
		channel("C05RANDOM", "random", false),
	}

	tests := []struct {
		name    string
		query   string
		wantID  string
		wantErr error
	}{
		{"id", "C05RANDOM", "C05RANDOM", nil},
		{"mention", "<#C01GENERAL|general>", "C01GENERAL", nil},
		{"hash name", "#general", "C01GENERAL", nil},
		{"case insensitive", "Random", "C05RANDOM", nil},
		{"prefix unique", "engi", "C02ENGINE", nil},
		{"prefix skips archived", "eng-", "C03ENGOPS", nil},
		{"archived exact", "#eng-legacy", "C04OLDENG", nil},
		{"ambiguous", "eng", "", ErrAmbiguous},
		{"substring", "ops", "C03ENGOPS", nil},
		{"none", "#sales", "", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchChannel(channels, tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("MatchChannel(%q) error = %v, want %v", tt.query, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("MatchChannel(%q) unexpected error: %v", tt.query, err)
			}
			if got.ID != tt.wantID {
				t.Errorf("MatchChannel(%q) = %s, want %s", tt.query, got.ID, tt.wantID)
			}
		})
	}
}

func TestClassifyRecipient(t *testing.T) {
	tests := []struct {
		in       string
		wantKind recipientKind
		wantVal  string
	}{
		{"#general", recipientChannel, "#general"},
		{"C01GENERAL", recipientChannelID, "C01GENERAL"},
		{"<#C01GENERAL|general>", recipientChannelID, "C01GENERAL"},
		{"@jane", recipientUser, "@jane"},
		{"<@U01JANE01>", recipientUserID, "U01JANE01"},
		{"U01JANE01", recipientUserID, "U01JANE01"},
		{"jane@example.com", recipientEmail, "jane@example.com"},
		{" general ", recipientBare, "general"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			kind, val := classifyRecipient(tt.in)
			if kind != tt.wantKind || val != tt.wantVal {
				t.Errorf("classifyRecipient(%q) = (%d, %q), want (%d, %q)", tt.in, kind, val, tt.wantKind, tt.wantVal)
			}
		})
	}
}
