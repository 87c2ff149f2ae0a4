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
	"path"
	"strings"
	"time"

	"saasbridge/platform/connectors/base"
)

// Identity is one principal inside a Graph identitySet.
type Identity struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	LoginName   string `json:"loginName,omitempty"`
}

// IdentitySet carries at most one principal of each kind.
type IdentitySet struct {
	User        *Identity `json:"user,omitempty"`
	Group       *Identity `json:"group,omitempty"`
	SiteUser    *Identity `json:"siteUser,omitempty"`
	SiteGroup   *Identity `json:"siteGroup,omitempty"`
	Application *Identity `json:"application,omitempty"`
}

// SharingLink is the link facet of a permission.
type SharingLink struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
	URL   string `json:"webUrl,omitempty"`
}

// Permission is a Graph permission resource on a drive item.
type Permission struct {
	ID                    string        `json:"id"`
	Roles                 []string      `json:"roles,omitempty"`
	GrantedToV2           *IdentitySet  `json:"grantedToV2,omitempty"`
	GrantedToIdentitiesV2 []IdentitySet `json:"grantedToIdentitiesV2,omitempty"`
	Link                  *SharingLink  `json:"link,omitempty"`
}

// Site is the Graph site resource.
type Site struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	DisplayName    string          `json:"displayName"`
	WebURL         string          `json:"webUrl"`
	SiteCollection *SiteCollection `json:"siteCollection,omitempty"`
}

// SiteCollection carries the site's hostname.
type SiteCollection struct {
	Hostname string `json:"hostname"`
}

// Drive is a document library.
type Drive struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DriveType string `json:"driveType,omitempty"`
	WebURL    string `json:"webUrl,omitempty"`
}

// SiteMetadata describes the configured site and its libraries.
type SiteMetadata struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	WebURL      string  `json:"web_url"`
	Hostname    string  `json:"hostname"`
	Drives      []Drive `json:"drives"`
}

// DriveItem is one entry of a delta page.
type DriveItem struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Size                 int64            `json:"size"`
	WebURL               string           `json:"webUrl"`
	ETag                 string           `json:"eTag"`
	LastModifiedDateTime time.Time        `json:"lastModifiedDateTime"`
	File                 *FileFacet       `json:"file,omitempty"`
	Folder               *FolderFacet     `json:"folder,omitempty"`
	Root                 *struct{}        `json:"root,omitempty"`
	Deleted              *DeletedFacet    `json:"deleted,omitempty"`
	ParentReference      *ParentReference `json:"parentReference,omitempty"`
	LastModifiedBy       *IdentitySet     `json:"lastModifiedBy,omitempty"`
}

// FileFacet marks an item as a file.
type FileFacet struct {
	MimeType string `json:"mimeType"`
}

// FolderFacet marks an item as a folder.
type FolderFacet struct {
	ChildCount int `json:"childCount"`
}

// DeletedFacet is present on items removed since the previous delta link.
type DeletedFacet struct {
	State string `json:"state,omitempty"`
}

// ParentReference locates an item inside its drive.
type ParentReference struct {
	DriveID string `json:"driveId"`
	ID      string `json:"id"`
	Path    string `json:"path"`
}

// Path returns the item path relative to the drive root, or "" if unknown.
func (i DriveItem) Path() string {
	if i.ParentReference == nil || i.ParentReference.Path == "" {
		return ""
	}
	parent := i.ParentReference.Path
	if idx := strings.Index(parent, ":"); idx >= 0 {
		parent = parent[idx+1:]
	}
	return path.Join("/", parent, i.Name)
}

type deltaPage struct {
	Value     []DriveItem `json:"value"`
	NextLink  string      `json:"@odata.nextLink"`
	DeltaLink string      `json:"@odata.deltaLink"`
}

// directoryObject is a member returned by transitiveMembers or owners.
type directoryObject struct {
	Type              string `json:"@odata.type"`
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

func (o directoryObject) isGroup() bool { return o.Type == "#microsoft.graph.group" }

func (o directoryObject) email() string {
	if o.Mail != "" {
		return o.Mail
	}
	return o.UserPrincipalName
}

// siteUser is a member of a SharePoint site group (REST, nometadata).
type siteUser struct {
	ID            int    `json:"Id"`
	LoginName     string `json:"LoginName"`
	Email         string `json:"Email"`
	Title         string `json:"Title"`
	PrincipalType int    `json:"PrincipalType"`
}

// RecordUpdate is one change read from a drive's delta chain.
type RecordUpdate struct {
	SiteID  string
	DriveID string
	Item    DriveItem
	Deleted bool
	Access  *base.AccessControl
}

// Record converts the update into the vendor-neutral record.
func (u RecordUpdate) Record(source string) base.Record {
	rec := base.Record{
		ID:     u.DriveID + "/" + u.Item.ID,
		Kind:   base.RecordUpsert,
		Source: source,
		Metadata: map[string]interface{}{
			"drive_id": u.DriveID,
			"site_id":  u.SiteID,
			"item_id":  u.Item.ID,
		},
	}
	if u.Deleted {
		rec.Kind = base.RecordDelete
		return rec
	}

	rec.Title = u.Item.Name
	rec.URL = u.Item.WebURL
	rec.Size = u.Item.Size
	rec.ModifiedAt = u.Item.LastModifiedDateTime
	rec.Access = u.Access
	if u.Item.File != nil {
		rec.ContentType = u.Item.File.MimeType
	}
	if p := u.Item.Path(); p != "" {
		rec.Metadata["path"] = p
	}
	if u.Item.ETag != "" {
		rec.Metadata["etag"] = u.Item.ETag
	}
	if by := u.Item.LastModifiedBy; by != nil && by.User != nil {
		if by.User.Email != "" {
			rec.Metadata["modified_by"] = by.User.Email
		} else if by.User.DisplayName != "" {
			rec.Metadata["modified_by"] = by.User.DisplayName
		}
	}
	return rec
}
