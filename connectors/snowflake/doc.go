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

// Package snowflake runs SQL against Snowflake through the SQL API v2.
//
// Authentication is key-pair JWT (credentials account, username and
// private_key) or an OAuth access token (credential token). Statements are
// submitted to /api/v2/statements. Long statements answer 202 and are polled
// until they finish; every result partition is then fetched and decoded into
// typed rows:
//
//	FIXED, scale 0   int64
//	FIXED, scale > 0 float64
//	REAL             float64
//	BOOLEAN          bool
//	NULL             nil
//	anything else    string
//
// Query accepts raw SQL plus the named statements list_databases,
// list_schemas and list_tables. Execute supports the actions sql (DML, rows
// affected from the statement stats) and cancel.
package snowflake
