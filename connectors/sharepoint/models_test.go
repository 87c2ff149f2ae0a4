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
	"testing"

	"saasbridge/platform/connectors/base"
)

func TestDriveItemPath(t *testing.T) {
	tests := []struct {
		parent string
		want   string
	}{
		{"/drives/d1/root:", "/report.pdf"},
		{"/drives/d1/root:/Finance/2026", "/Finance/2026/report.pdf"},
		{"", ""},
	}
	for _, tt := range tests {
		item := DriveItem{Name: "report.pdf"}
		if tt.parent != "" {
			item.ParentReference = &ParentReference{Path: tt.parent}
		}
		if got := item.Path(); got != tt.want {
			t.Errorf("Path() with parent %q = %q, want %q", tt.parent, got, tt.want)
		}
	}
}

func TestRecordUpdateRecord(t *testing.T) {
	deleted := RecordUpdate{SiteID: "s", DriveID: "d", Item: DriveItem{ID: "i", Name: "old.txt"}, Deleted: true}
	rec := deleted.Record("sp")
	if rec.ID != "d/i" || rec.Kind != base.RecordDelete || rec.Title != "" || rec.Access != nil {
		t.Errorf("delete record = %+v", rec)
	}

	access := &base.AccessControl{Users: []string{"a@contoso.com"}}
	upsert := RecordUpdate{
		SiteID:  "s",
		DriveID: "d",
		Item: DriveItem{
			ID:             "i",
			Name:           "new.txt",
			File:           &FileFacet{MimeType: "text/plain"},
			LastModifiedBy: &IdentitySet{User: &Identity{DisplayName: "Ann"}},
		},
		Access: access,
	}
	rec = upsert.Record("sp")
	if rec.Kind != base.RecordUpsert || rec.ContentType != "text/plain" || rec.Access != access {
		t.Errorf("upsert record = %+v", rec)
	}
	if rec.Metadata["modified_by"] != "Ann" || rec.Metadata["drive_id"] != "d" {
		t.Errorf("metadata = %v", rec.Metadata)
	}
	if _, ok := rec.Metadata["path"]; ok {
		t.Error("path set without parent reference")
	}
}
