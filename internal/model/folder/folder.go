package folder

import (
	"time"

	"github.com/google/uuid"
)

// PermissionLevel is an ordered capability set. Higher levels include every
// capability of the lower ones.
type PermissionLevel int

const (
	LevelRestricted PermissionLevel = iota
	LevelViewer
	LevelEditor
	LevelOwner
)

func (l PermissionLevel) String() string {
	switch l {
	case LevelViewer:
		return "VIEWER"
	case LevelEditor:
		return "EDITOR"
	case LevelOwner:
		return "OWNER"
	default:
		return "RESTRICTED"
	}
}

type Folder struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	ParentID       *string            `json:"parent_id,omitempty"`
	ExternalLinkID string             `json:"external_link_id"`
	ChildIDs       []string           `json:"child_ids,omitempty"`
	Grants         []*PermissionGrant `json:"grants,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// PermissionGrant is the (folder, user) permission record. Exactly one grant
// exists per pair; re-granting updates the record in place.
type PermissionGrant struct {
	ID                  uuid.UUID       `json:"id"`
	FolderID            string          `json:"folder_id"`
	UserID              string          `json:"user_id"`
	Level               PermissionLevel `json:"permission_level"`
	CanCreateSubfolders bool            `json:"can_create_subfolders"`
	CanDeleteContent    bool            `json:"can_delete_content"`
	CanShareFolder      bool            `json:"can_share_folder"`
	ExpiresAt           *time.Time      `json:"expires_at,omitempty"`
	GrantedBy           string          `json:"granted_by"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Expired reports whether the grant carries an expiry that is already in the
// past at the given instant.
func (g *PermissionGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

type Actions struct {
	CanRead              bool `json:"can_read"`
	CanWrite             bool `json:"can_write"`
	CanDelete            bool `json:"can_delete"`
	CanShare             bool `json:"can_share"`
	CanManagePermissions bool `json:"can_manage_permissions"`
	CanCreateSubfolders  bool `json:"can_create_subfolders"`
}

type PermissionCheck struct {
	Level   PermissionLevel `json:"permission_level"`
	Actions Actions         `json:"actions"`
}

// Capabilities resolves the grant into concrete action flags.
// OWNER gets everything, EDITOR's delete/share/subfolder rights follow the
// per-grant flags, VIEWER is read-only, anything else gets nothing.
func (g *PermissionGrant) Capabilities() Actions {
	switch g.Level {
	case LevelOwner:
		return Actions{
			CanRead:              true,
			CanWrite:             true,
			CanDelete:            true,
			CanShare:             true,
			CanManagePermissions: true,
			CanCreateSubfolders:  true,
		}
	case LevelEditor:
		return Actions{
			CanRead:             true,
			CanWrite:            true,
			CanDelete:           g.CanDeleteContent,
			CanShare:            g.CanShareFolder,
			CanCreateSubfolders: g.CanCreateSubfolders,
		}
	case LevelViewer:
		return Actions{CanRead: true}
	default:
		return Actions{}
	}
}

// Restricted is the check result for a user with no effective grant.
func Restricted() PermissionCheck {
	return PermissionCheck{Level: LevelRestricted}
}
