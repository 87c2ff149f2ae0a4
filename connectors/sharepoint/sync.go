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
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"saasbridge/platform/connectors/base"
	"saasbridge/platform/ingest"
)

const maxDeltaPages = 10000

// Sync streams the changes of every selected drive. Drives are read one
// after another; a failed drive is reported in the error channel and the
// remaining drives still run.
func (c *SharePointConnector) Sync(ctx context.Context, req base.SyncRequest) (<-chan base.Record, <-chan error) {
	out := make(chan base.Record)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		if err := c.RequireConnected("Sync"); err != nil {
			errc <- err
			return
		}

		drives, err := c.syncTargets(req.Scope)
		if err != nil {
			errc <- err
			return
		}

		resolver := NewResolver(c.graph, c.sp, c.Logger())
		var errs []error
		for _, drive := range drives {
			start := time.Now()
			n, err := c.syncDrive(ctx, req, drive, resolver, out)
			c.Track(ctx, "Sync", drive.ID, start, err)
			if err != nil {
				c.Logger().Error(req.TenantID, req.RunID, "drive sync failed", map[string]interface{}{
					"drive_id": drive.ID,
					"error":    err.Error(),
				})
				errs = append(errs, fmt.Errorf("drive %s: %w", drive.ID, err))
				if ctx.Err() != nil {
					break
				}
				continue
			}
			c.Logger().InfoWithDuration(req.TenantID, req.RunID, "drive synced", time.Since(start), map[string]interface{}{
				"drive_id": drive.ID,
				"items":    n,
			})
		}
		if err := errors.Join(errs...); err != nil {
			errc <- base.NewConnectorError(c.Name(), "Sync", "sync incomplete", err)
		}
	}()

	return out, errc
}

// syncTargets selects drives by the drives option, then by the request
// scope. Both match drive ids or names, case-insensitively.
func (c *SharePointConnector) syncTargets(scope []string) ([]Drive, error) {
	drives := c.site.Drives
	for _, filter := range [][]string{c.driveFilter, scope} {
		if len(filter) == 0 {
			continue
		}
		var kept []Drive
		for _, d := range drives {
			if matchesDrive(d, filter) {
				kept = append(kept, d)
			}
		}
		drives = kept
	}
	if len(drives) == 0 {
		return nil, base.NewConnectorError(c.Name(), "Sync", "no drives selected", base.ErrInvalidParameter)
	}
	return drives, nil
}

func matchesDrive(d Drive, filter []string) bool {
	for _, f := range filter {
		if f == d.ID || strings.EqualFold(f, d.Name) {
			return true
		}
	}
	return false
}

// syncDrive walks one drive. Once the delta chain completes it sends a
// checkpoint whose commit stores the new sync point; the consumer commits it
// after the drive's records are written. An expired token drops the point
// and restarts once.
func (c *SharePointConnector) syncDrive(ctx context.Context, req base.SyncRequest, drive Drive, resolver *Resolver, out chan<- base.Record) (int, error) {
	var point *ingest.SyncPoint
	if !req.Full {
		p, err := c.store.Get(ctx, c.Name(), drive.ID)
		switch {
		case err == nil:
			point = p
		case !errors.Is(err, ingest.ErrSyncPointNotFound):
			return 0, fmt.Errorf("failed to read sync point: %w", err)
		}
	}

	root := fmt.Sprintf("/drives/%s/root/delta", url.PathEscape(drive.ID))
	start := root
	if point != nil && point.DeltaLink != "" {
		start = point.DeltaLink
	}

	n, deltaLink, err := c.walkDelta(ctx, drive, start, resolver, out)
	if errors.Is(err, ErrDeltaTokenExpired) && start != root {
		c.Logger().Warn(req.TenantID, req.RunID, "delta token expired, restarting full sync", map[string]interface{}{
			"drive_id": drive.ID,
		})
		if derr := c.store.Delete(ctx, c.Name(), drive.ID); derr != nil {
			return n, fmt.Errorf("failed to drop sync point: %w", derr)
		}
		point = nil
		var more int
		more, deltaLink, err = c.walkDelta(ctx, drive, root, resolver, out)
		n += more
	}
	if err != nil {
		return n, err
	}

	synced := int64(n)
	if point != nil {
		synced += point.ItemsSynced
	}
	next := &ingest.SyncPoint{
		ConnectorName: c.Name(),
		SiteID:        c.site.ID,
		DriveID:       drive.ID,
		DeltaLink:     deltaLink,
		ItemsSynced:   synced,
	}
	commit := func(ctx context.Context) error {
		next.UpdatedAt = c.now().UTC()
		if err := c.store.Put(ctx, next); err != nil {
			return fmt.Errorf("failed to store sync point for drive %s: %w", drive.ID, err)
		}
		return nil
	}
	select {
	case out <- base.NewCheckpoint(c.Name(), drive.ID, commit):
	case <-ctx.Done():
		return n, ctx.Err()
	}
	return n, nil
}

// walkDelta follows one delta chain from link and returns the number of
// records emitted and the final delta link.
func (c *SharePointConnector) walkDelta(ctx context.Context, drive Drive, link string, resolver *Resolver, out chan<- base.Record) (int, string, error) {
	batch := make([]DriveItem, 0, c.batchSize)
	emitted := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.emitBatch(ctx, drive, batch, resolver, out)
		emitted += n
		batch = batch[:0]
		if err != nil {
			return err
		}
		return c.pause(ctx)
	}

	for page := 0; page < maxDeltaPages; page++ {
		var resp deltaPage
		if err := c.graph.Get(ctx, link, nil, &resp); err != nil {
			return emitted, "", deltaError(err)
		}

		for _, item := range resp.Value {
			if item.Root != nil || item.Folder != nil {
				continue
			}
			if item.Deleted == nil && item.File == nil {
				continue
			}
			batch = append(batch, item)
			if len(batch) >= c.batchSize {
				if err := flush(); err != nil {
					return emitted, "", err
				}
			}
		}

		switch {
		case resp.NextLink != "":
			link = resp.NextLink
		case resp.DeltaLink != "":
			if err := flush(); err != nil {
				return emitted, "", err
			}
			return emitted, resp.DeltaLink, nil
		default:
			return emitted, "", fmt.Errorf("delta page for drive %s has no next or delta link", drive.ID)
		}
	}
	return emitted, "", fmt.Errorf("delta chain for drive %s exceeded %d pages", drive.ID, maxDeltaPages)
}

// emitBatch resolves permissions for the batch and sends its records.
func (c *SharePointConnector) emitBatch(ctx context.Context, drive Drive, items []DriveItem, resolver *Resolver, out chan<- base.Record) (int, error) {
	sent := 0
	for _, item := range items {
		update := RecordUpdate{SiteID: c.site.ID, DriveID: drive.ID, Item: item, Deleted: item.Deleted != nil}
		if !update.Deleted {
			access, err := resolver.Resolve(ctx, drive.ID, item.ID)
			if err != nil {
				return sent, fmt.Errorf("permissions for %s: %w", item.ID, err)
			}
			update.Access = access
		}

		rec := update.Record(c.Name())
		select {
		case out <- rec:
			sent++
			c.GetMetrics().RecordSyncRecord(string(rec.Kind))
		case <-ctx.Done():
			return sent, ctx.Err()
		}
	}
	return sent, nil
}

func (c *SharePointConnector) pause(ctx context.Context) error {
	if c.batchPause <= 0 {
		return nil
	}
	timer := time.NewTimer(c.batchPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
