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
Package registry keeps the set of configured SaaS connectors for the gateway.

# Overview

The Registry handles:

  - Connector registration and lifecycle management
  - Lazy loading through a ConnectorFactory from stored configs
  - Tenant isolation and access control
  - Concurrent health checking
  - Synchronization across gateway replicas through PostgreSQL

# Creating a Registry

In memory:

	reg := registry.NewRegistry()
	reg.SetFactory(registry.NewFactory())

Backed by PostgreSQL:

	storage, err := registry.NewPostgreSQLStorage(databaseURL)
	if err != nil {
	    return err
	}
	reg := registry.NewRegistryWithStorage(ctx, storage)
	reg.SetFactory(registry.NewFactory())
	reg.StartPeriodicReload(ctx, 30*time.Second)

# Lazy Loading

Configs added with AddConfig (or loaded from storage) are connected on the
first Get:

	_ = reg.AddConfig(&base.ConnectorConfig{Name: "slack-main", Type: "slack", ...})
	conn, err := reg.Get("slack-main")

# Tenant Access

A config with TenantID "*" is shared with every tenant:

	if err := reg.ValidateTenantAccess("slack-main", tenantID); err != nil {
	    return err
	}
*/
package registry
