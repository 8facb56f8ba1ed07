package audit

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreateFolder     Action = "CREATE_FOLDER"
	ActionGrantPermission  Action = "GRANT_PERMISSION"
	ActionUpdatePermission Action = "UPDATE_PERMISSION"
	ActionRevokePermission Action = "REVOKE_PERMISSION"
	ActionUploadAsset      Action = "UPLOAD_ASSET"
	ActionDeleteAsset      Action = "DELETE_ASSET"
)

type ResourceType string

const (
	ResourceFolder     ResourceType = "folder"
	ResourcePermission ResourceType = "permission"
	ResourceAsset      ResourceType = "asset"
)

// LogEntry is an immutable audit record. Before/After carry snapshots of the
// mutated resource for permission updates; they are forensic context only and
// never used for rollback.
type LogEntry struct {
	ID           uuid.UUID    `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	ActorID      string       `json:"acting_user_id"`
	Action       Action       `json:"action"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	Before       any          `json:"before,omitempty"`
	After        any          `json:"after,omitempty"`
}

// Filter narrows getAuditLogs results. Zero values match everything.
type Filter struct {
	ActorID      string
	Action       Action
	ResourceType ResourceType
}

func (f Filter) Matches(e *LogEntry) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	return true
}
