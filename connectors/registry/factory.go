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

package registry

import (
	"fmt"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/connectors/docusign"
	"saasbridge/platform/connectors/hubspot"
	"saasbridge/platform/connectors/sharepoint"
	"saasbridge/platform/connectors/slack"
	"saasbridge/platform/connectors/snowflake"
	"saasbridge/platform/ingest"
)

type factoryOptions struct {
	store ingest.SyncPointStore
	sink  ingest.Sink
}

// FactoryOption configures connectors built by NewFactory.
type FactoryOption func(*factoryOptions)

// WithSyncPointStore shares store with every sync-capable connector.
func WithSyncPointStore(store ingest.SyncPointStore) FactoryOption {
	return func(o *factoryOptions) { o.store = store }
}

// WithSink makes the sync action of sync-capable connectors write to sink.
func WithSink(sink ingest.Sink) FactoryOption {
	return func(o *factoryOptions) { o.sink = sink }
}

// NewFactory returns a ConnectorFactory for the built-in connector types.
func NewFactory(opts ...FactoryOption) ConnectorFactory {
	var o factoryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(connectorType string) (base.Connector, error) {
		switch connectorType {
		case "slack":
			return slack.NewSlackConnector(), nil
		case "docusign":
			return docusign.NewDocuSignConnector(), nil
		case "snowflake":
			return snowflake.NewSnowflakeConnector(), nil
		case "hubspot":
			return hubspot.NewHubSpotConnector(), nil
		case "sharepoint":
			c := sharepoint.NewSharePointConnector()
			c.SetSyncPointStore(o.store)
			c.SetSink(o.sink)
			return c, nil
		default:
			return nil, fmt.Errorf("unknown connector type: %s", connectorType)
		}
	}
}
