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
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/sdk"
)

const (
	// DefaultAPIURL is the Slack Web API root.
	DefaultAPIURL = "https://slack.com/api"
	// DefaultDirectoryTTL bounds how long the user and channel lists are reused.
	DefaultDirectoryTTL = 5 * time.Minute
	defaultPageSize     = 200
	defaultHistoryLimit = 100
)

// API is the subset of *slack.Client the connector calls.
type API interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	GetUserByEmailContext(ctx context.Context, email string) (*slack.User, error)
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
}

// Response is the uniform wrapper around every Slack call.
type Response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// NewResponse wraps a call outcome.
func NewResponse(data interface{}, err error) Response {
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true, Data: data}
}

type directory struct {
	users      []slack.User
	usersAt    time.Time
	channels   []slack.Channel
	channelsAt time.Time
}

// SlackConnector implements base.Connector over the Slack Web API.
type SlackConnector struct {
	*sdk.BaseConnector
	api       API
	presetAPI bool
	botID     string
	teamID    string
	ttl       time.Duration
	now       func() time.Time
	dirMu     sync.Mutex
	dir       directory
}

// NewSlackConnector creates a new Slack connector instance.
func NewSlackConnector() *SlackConnector {
	c := &SlackConnector{
		BaseConnector: sdk.NewBaseConnector("slack"),
		ttl:           DefaultDirectoryTTL,
		now:           time.Now,
	}
	c.SetValidator(sdk.NewDefaultConfigValidator(
		[]string{"bot_token|token"},
		map[string]interface{}{"page_size": defaultPageSize},
	))
	c.SetRateLimiter(sdk.NewRateLimiterWithConfig(sdk.SlackRateLimit))
	c.SetCapabilities("query", "execute", "disambiguation")
	return c
}

// NewSlackConnectorWithAPI creates a connector that talks to api instead of
// building a client on Connect.
func NewSlackConnectorWithAPI(api API) *SlackConnector {
	c := NewSlackConnector()
	c.api = api
	c.presetAPI = true
	return c
}

// Connect builds the Slack client and verifies the token with auth.test.
func (c *SlackConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	if err := c.Configure(config); err != nil {
		return err
	}

	if !c.presetAPI {
		apiURL, err := c.ResolveBaseURL(DefaultAPIURL, base.SlackHostSuffixes)
		if err != nil {
			return err
		}
		token := c.GetCredential("bot_token")
		if token == "" {
			token = c.GetCredential("token")
		}
		c.api = slack.New(token,
			slack.OptionAPIURL(apiURL+"/"),
			slack.OptionHTTPClient(sdk.NewHTTPClient(c.GetTimeout())),
		)
	}
	c.ttl = c.GetDurationOption("directory_ttl", DefaultDirectoryTTL)

	ctx, cancel := c.WithTimeout(ctx, 0)
	defer cancel()

	auth, err := call(ctx, c, func(ctx context.Context) (*slack.AuthTestResponse, error) {
		return c.api.AuthTestContext(ctx)
	})
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "auth.test failed", err)
	}
	c.botID = auth.UserID
	c.teamID = auth.TeamID

	c.Logger().Info(config.TenantID, "", "slack workspace verified", map[string]interface{}{
		"team":    auth.Team,
		"team_id": auth.TeamID,
	})
	c.MarkConnected()
	return nil
}

// BotUserID returns the user id of the token's bot, known after Connect.
func (c *SlackConnector) BotUserID() string { return c.botID }

// Disconnect drops the cached directory and marks the connector disconnected.
func (c *SlackConnector) Disconnect(ctx context.Context) error {
	c.dirMu.Lock()
	c.dir = directory{}
	c.dirMu.Unlock()
	return c.BaseConnector.Disconnect(ctx)
}

// HealthCheck calls auth.test.
func (c *SlackConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return c.ProbeHealth(ctx, func(ctx context.Context) (map[string]string, error) {
		auth, err := c.api.AuthTestContext(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"team_id": auth.TeamID, "bot_user_id": auth.UserID}, nil
	})
}

// call runs fn under the limiter and retry policy. Slack rate-limit errors
// are retried after the server's RetryAfter.
func call[T any](ctx context.Context, c *SlackConnector, fn func(ctx context.Context) (T, error)) (T, error) {
	return sdk.Call(ctx, c.BaseConnector, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if err != nil {
			var rle *slack.RateLimitedError
			if errors.As(err, &rle) {
				return v, &sdk.RetryableError{Err: err, RetryAfter: rle.RetryAfter}
			}
		}
		return v, err
	})
}

// Query runs a read statement.
func (c *SlackConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if err := c.RequireConnected("Query"); err != nil {
		return nil, err
	}
	if query == nil {
		return nil, base.NewParameterError(c.Name(), "Query", "query cannot be nil")
	}

	ctx, cancel := c.WithTimeout(ctx, query.Timeout)
	defer cancel()

	start := time.Now()
	rows, meta, err := c.runQuery(ctx, query)
	c.Track(ctx, "Query", query.Statement, start, err)
	if err != nil {
		return nil, c.wrap("Query", query.Statement, err)
	}

	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["ok"] = true

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Connector: c.Name(),
		Metadata:  meta,
	}, nil
}

func (c *SlackConnector) runQuery(ctx context.Context, query *base.Query) ([]map[string]interface{}, map[string]interface{}, error) {
	p := sdk.Params(query.Parameters)

	switch query.Statement {
	case "list_channels":
		channels, err := c.listChannels(ctx, p.StringOr("types", "public_channel,private_channel"), p.Bool("exclude_archived", true), query.Limit)
		if err != nil {
			return nil, nil, err
		}
		rows := make([]map[string]interface{}, 0, len(channels))
		for _, ch := range channels {
			rows = append(rows, channelRow(ch))
		}
		return rows, nil, nil

	case "list_users":
		users, err := c.users(ctx)
		if err != nil {
			return nil, nil, err
		}
		includeBots, includeDeleted := p.Bool("include_bots", false), p.Bool("include_deleted", false)
		rows := make([]map[string]interface{}, 0, len(users))
		for _, u := range users {
			if (u.IsBot && !includeBots) || (u.Deleted && !includeDeleted) {
				continue
			}
			rows = append(rows, userRow(u))
		}
		return rows, nil, nil

	case "find_user":
		q, err := p.Require("query")
		if err != nil {
			return nil, nil, err
		}
		u, err := c.ResolveUser(ctx, q)
		if err != nil {
			return nil, nil, err
		}
		return []map[string]interface{}{userRow(*u)}, nil, nil

	case "find_channel":
		q, err := p.Require("query")
		if err != nil {
			return nil, nil, err
		}
		ch, err := c.ResolveChannel(ctx, q)
		if err != nil {
			return nil, nil, err
		}
		return []map[string]interface{}{channelRow(*ch)}, nil, nil

	case "user_info":
		q, err := p.Require("user")
		if err != nil {
			return nil, nil, err
		}
		var u *slack.User
		if userIDPattern.MatchString(strings.TrimSpace(q)) {
			u, err = call(ctx, c, func(ctx context.Context) (*slack.User, error) {
				return c.api.GetUserInfoContext(ctx, strings.TrimSpace(q))
			})
		} else {
			u, err = c.ResolveUser(ctx, q)
		}
		if err != nil {
			return nil, nil, err
		}
		return []map[string]interface{}{userRow(*u)}, nil, nil

	case "channel_history":
		return c.channelHistory(ctx, p, query.Limit)

	case "thread_replies":
		return c.threadReplies(ctx, p)
	}

	return nil, nil, base.ErrUnsupportedOperation
}

func (c *SlackConnector) channelID(ctx context.Context, raw string) (string, error) {
	kind, v := classifyRecipient(raw)
	if kind == recipientChannelID {
		return v, nil
	}
	ch, err := c.ResolveChannel(ctx, raw)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (c *SlackConnector) channelHistory(ctx context.Context, p sdk.Params, limit int) ([]map[string]interface{}, map[string]interface{}, error) {
	raw, err := p.Require("channel")
	if err != nil {
		return nil, nil, err
	}
	channelID, err := c.channelID(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = p.Int("limit", defaultHistoryLimit)
	}

	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
		Oldest:    p.String("oldest"),
		Latest:    p.String("latest"),
		Cursor:    p.String("cursor"),
	}
	resp, err := call(ctx, c, func(ctx context.Context) (*slack.GetConversationHistoryResponse, error) {
		return c.api.GetConversationHistoryContext(ctx, params)
	})
	if err != nil {
		return nil, nil, err
	}

	rows := make([]map[string]interface{}, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		rows = append(rows, messageRow(channelID, m))
	}
	meta := map[string]interface{}{
		"channel":  channelID,
		"has_more": resp.HasMore,
	}
	if resp.ResponseMetaData.NextCursor != "" {
		meta["next_cursor"] = resp.ResponseMetaData.NextCursor
	}
	return rows, meta, nil
}

func (c *SlackConnector) threadReplies(ctx context.Context, p sdk.Params) ([]map[string]interface{}, map[string]interface{}, error) {
	raw, err := p.Require("channel")
	if err != nil {
		return nil, nil, err
	}
	threadTS, err := p.Require("thread_ts")
	if err != nil {
		return nil, nil, err
	}
	channelID, err := c.channelID(ctx, raw)
	if err != nil {
		return nil, nil, err
	}

	var rows []map[string]interface{}
	cursor := ""
	for {
		params := &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Cursor:    cursor,
			Limit:     defaultPageSize,
		}
		type page struct {
			msgs []slack.Message
			next string
		}
		pg, err := call(ctx, c, func(ctx context.Context) (page, error) {
			msgs, _, next, err := c.api.GetConversationRepliesContext(ctx, params)
			return page{msgs: msgs, next: next}, err
		})
		if err != nil {
			return nil, nil, err
		}
		for _, m := range pg.msgs {
			rows = append(rows, messageRow(channelID, m))
		}
		if pg.next == "" {
			break
		}
		cursor = pg.next
	}
	return rows, map[string]interface{}{"channel": channelID, "thread_ts": threadTS}, nil
}

// Execute runs a write action.
func (c *SlackConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if err := c.RequireConnected("Execute"); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, base.NewParameterError(c.Name(), "Execute", "command cannot be nil")
	}

	ctx, cancel := c.WithTimeout(ctx, cmd.Timeout)
	defer cancel()

	start := time.Now()
	data, err := c.runCommand(ctx, cmd)
	c.Track(ctx, "Execute", cmd.Action, start, err)
	if err != nil {
		return nil, c.wrap("Execute", cmd.Action, err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     time.Since(start),
		Message:      cmd.Action + " ok",
		Connector:    c.Name(),
		Metadata:     map[string]interface{}{"response": NewResponse(data, nil)},
	}, nil
}

func (c *SlackConnector) runCommand(ctx context.Context, cmd *base.Command) (map[string]interface{}, error) {
	p := sdk.Params(cmd.Parameters)

	switch cmd.Action {
	case "send_message":
		recipient, err := p.Require("recipient")
		if err != nil {
			return nil, err
		}
		text, err := p.Require("text")
		if err != nil {
			return nil, err
		}
		channelID, err := c.ResolveRecipient(ctx, recipient)
		if err != nil {
			return nil, err
		}

		opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
		if ts := p.String("thread_ts"); ts != "" {
			opts = append(opts, slack.MsgOptionTS(ts))
		}
		type posted struct{ channel, ts string }
		out, err := call(ctx, c, func(ctx context.Context) (posted, error) {
			ch, ts, err := c.api.PostMessageContext(ctx, channelID, opts...)
			return posted{ch, ts}, err
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"channel": out.channel, "ts": out.ts}, nil

	case "add_reaction":
		channel, err := p.Require("channel")
		if err != nil {
			return nil, err
		}
		ts, err := p.Require("timestamp")
		if err != nil {
			return nil, err
		}
		name, err := p.Require("name")
		if err != nil {
			return nil, err
		}
		channelID, err := c.channelID(ctx, channel)
		if err != nil {
			return nil, err
		}
		name = strings.Trim(name, ":")
		_, err = call(ctx, c, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.api.AddReactionContext(ctx, name, slack.NewRefToMessage(channelID, ts))
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"channel": channelID, "ts": ts, "name": name}, nil

	case "update_message":
		channel, err := p.Require("channel")
		if err != nil {
			return nil, err
		}
		ts, err := p.Require("timestamp")
		if err != nil {
			return nil, err
		}
		text, err := p.Require("text")
		if err != nil {
			return nil, err
		}
		channelID, err := c.channelID(ctx, channel)
		if err != nil {
			return nil, err
		}
		type updated struct{ channel, ts, text string }
		out, err := call(ctx, c, func(ctx context.Context) (updated, error) {
			ch, newTS, newText, err := c.api.UpdateMessageContext(ctx, channelID, ts, slack.MsgOptionText(text, false))
			return updated{ch, newTS, newText}, err
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"channel": out.channel, "ts": out.ts, "text": out.text}, nil
	}

	return nil, base.ErrUnsupportedOperation
}

// ResolveUser finds the single user matching query.
func (c *SlackConnector) ResolveUser(ctx context.Context, query string) (*slack.User, error) {
	users, err := c.users(ctx)
	if err != nil {
		return nil, err
	}
	return MatchUser(users, query)
}

// ResolveChannel finds the single channel matching query. Archived
// channels are considered so they can still match exactly.
func (c *SlackConnector) ResolveChannel(ctx context.Context, query string) (*slack.Channel, error) {
	channels, err := c.channels(ctx)
	if err != nil {
		return nil, err
	}
	return MatchChannel(channels, query)
}

// ResolveRecipient returns the conversation id to post to. Users are
// reached through a direct-message conversation.
func (c *SlackConnector) ResolveRecipient(ctx context.Context, recipient string) (string, error) {
	kind, v := classifyRecipient(recipient)

	switch kind {
	case recipientChannelID:
		return v, nil
	case recipientChannel:
		ch, err := c.ResolveChannel(ctx, v)
		if err != nil {
			return "", err
		}
		return ch.ID, nil
	case recipientUserID:
		return c.openDM(ctx, v)
	case recipientEmail:
		u, err := call(ctx, c, func(ctx context.Context) (*slack.User, error) {
			return c.api.GetUserByEmailContext(ctx, v)
		})
		if err != nil {
			if u, err = c.ResolveUser(ctx, v); err != nil {
				return "", err
			}
		}
		return c.openDM(ctx, u.ID)
	case recipientUser:
		u, err := c.ResolveUser(ctx, v)
		if err != nil {
			return "", err
		}
		return c.openDM(ctx, u.ID)
	}

	// Bare names prefer an exact channel before any user tier.
	channels, err := c.channels(ctx)
	if err != nil {
		return "", err
	}
	if ch := exactChannel(channels, v); ch != nil {
		return ch.ID, nil
	}
	u, err := c.ResolveUser(ctx, v)
	if err != nil {
		return "", err
	}
	return c.openDM(ctx, u.ID)
}

func (c *SlackConnector) openDM(ctx context.Context, userID string) (string, error) {
	ch, err := call(ctx, c, func(ctx context.Context) (*slack.Channel, error) {
		ch, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users:    []string{userID},
			ReturnIM: true,
		})
		return ch, err
	})
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (c *SlackConnector) users(ctx context.Context) ([]slack.User, error) {
	c.dirMu.Lock()
	if c.dir.users != nil && c.now().Sub(c.dir.usersAt) < c.ttl {
		users := c.dir.users
		c.dirMu.Unlock()
		return users, nil
	}
	c.dirMu.Unlock()

	users, err := call(ctx, c, func(ctx context.Context) ([]slack.User, error) {
		return c.api.GetUsersContext(ctx)
	})
	if err != nil {
		return nil, err
	}

	c.dirMu.Lock()
	c.dir.users, c.dir.usersAt = users, c.now()
	c.dirMu.Unlock()
	return users, nil
}

func (c *SlackConnector) channels(ctx context.Context) ([]slack.Channel, error) {
	c.dirMu.Lock()
	if c.dir.channels != nil && c.now().Sub(c.dir.channelsAt) < c.ttl {
		channels := c.dir.channels
		c.dirMu.Unlock()
		return channels, nil
	}
	c.dirMu.Unlock()

	channels, err := c.listChannels(ctx, "public_channel,private_channel", false, 0)
	if err != nil {
		return nil, err
	}

	c.dirMu.Lock()
	c.dir.channels, c.dir.channelsAt = channels, c.now()
	c.dirMu.Unlock()
	return channels, nil
}

// listChannels pages conversations.list until the cursor runs out or limit is reached.
func (c *SlackConnector) listChannels(ctx context.Context, types string, excludeArchived bool, limit int) ([]slack.Channel, error) {
	var all []slack.Channel
	cursor := ""
	pageSize := c.GetIntOption("page_size", defaultPageSize)

	for {
		params := &slack.GetConversationsParameters{
			Cursor:          cursor,
			ExcludeArchived: excludeArchived,
			Limit:           pageSize,
			Types:           strings.Split(types, ","),
			TeamID:          c.GetStringOption("team_id", ""),
		}
		type page struct {
			channels []slack.Channel
			next     string
		}
		pg, err := call(ctx, c, func(ctx context.Context) (page, error) {
			channels, next, err := c.api.GetConversationsContext(ctx, params)
			return page{channels, next}, err
		})
		if err != nil {
			return nil, err
		}
		all = append(all, pg.channels...)
		if pg.next == "" || (limit > 0 && len(all) >= limit) {
			break
		}
		cursor = pg.next
	}
	return all, nil
}

func (c *SlackConnector) wrap(op, what string, err error) error {
	switch {
	case errors.Is(err, base.ErrUnsupportedOperation):
		return base.NewUnsupportedError(c.Name(), op, what)
	case errors.Is(err, base.ErrInvalidParameter):
		return base.NewConnectorError(c.Name(), op, err.Error(), err)
	}
	return base.NewConnectorError(c.Name(), op, what+" failed", err)
}

func userRow(u slack.User) map[string]interface{} {
	return map[string]interface{}{
		"id":           u.ID,
		"name":         u.Name,
		"real_name":    u.RealName,
		"display_name": u.Profile.DisplayName,
		"email":        u.Profile.Email,
		"title":        u.Profile.Title,
		"is_bot":       u.IsBot,
		"is_admin":     u.IsAdmin,
		"deleted":      u.Deleted,
		"tz":           u.TZ,
		"team_id":      u.TeamID,
	}
}

func channelRow(ch slack.Channel) map[string]interface{} {
	return map[string]interface{}{
		"id":          ch.ID,
		"name":        ch.Name,
		"is_private":  ch.IsPrivate,
		"is_archived": ch.IsArchived,
		"is_member":   ch.IsMember,
		"num_members": ch.NumMembers,
		"topic":       ch.Topic.Value,
		"purpose":     ch.Purpose.Value,
	}
}

func messageRow(channelID string, m slack.Message) map[string]interface{} {
	return map[string]interface{}{
		"channel":     channelID,
		"ts":          m.Timestamp,
		"user":        m.User,
		"text":        m.Text,
		"thread_ts":   m.ThreadTimestamp,
		"reply_count": m.ReplyCount,
		"bot_id":      m.BotID,
		"subtype":     m.SubType,
	}
}
