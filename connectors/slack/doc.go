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

/*
Package slack provides the Slack Web API connector.

The connector wraps github.com/slack-go/slack. Reads are Query statements
and writes are Execute actions:

	list_channels    types, exclude_archived
	list_users       include_bots, include_deleted
	find_user        query
	find_channel     query
	channel_history  channel, limit, oldest, latest
	thread_replies   channel, thread_ts
	user_info        user

	send_message     recipient, text, thread_ts
	add_reaction     channel, timestamp, name
	update_message   channel, timestamp, text

# Disambiguation

Users and channels may be named loosely ("@jane", "Jane Doe",
"jane@example.com", "#general"). Candidates are matched in tiers and the
first non-empty tier wins. A tier holding a single candidate resolves; a
tier with several returns an *AmbiguousError (errors.Is ErrAmbiguous)
listing the first ten. No match returns ErrNotFound.

Users: exact ID, exact email, exact name, name prefix, name substring.
Bots and deleted users only match exactly. Channels: exact ID, exact
name, name prefix, name substring; archived channels only match exactly.

# Rate limiting

Calls wait on a fixed-rate limiter. A *slack.RateLimitedError is retried
after its RetryAfter.
*/
package slack
