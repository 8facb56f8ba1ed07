package permissionService

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gridd360-manager/internal/model/audit"
	"gridd360-manager/internal/model/folder"
)

const maxAuditEntries = 1000

var (
	ErrFolderNotFound = errors.New("folder not found")
	ErrInvalidParent  = errors.New("parent folder not found")
	ErrFolderExists   = errors.New("folder already exists")
)

// FolderStore is the relational mirror of the folder tree and its grants.
type FolderStore interface {
	SaveFolder(ctx context.Context, f *folder.Folder) error
	GetFolderByID(ctx context.Context, folderID string) (*folder.Folder, error)
	ListFolders(ctx context.Context) ([]*folder.Folder, error)
	UpsertGrant(ctx context.Context, g *folder.PermissionGrant) error
	DeleteGrant(ctx context.Context, folderID, userID string) error
	GetFolderGrants(ctx context.Context, folderID string) ([]*folder.PermissionGrant, error)
}

// AuditStore is the durable audit trail behind the in-memory ring.
type AuditStore interface {
	Append(ctx context.Context, e *audit.LogEntry) error
	Query(ctx context.Context, limit int, filter audit.Filter) ([]*audit.LogEntry, error)
}

// PermissionService is the access-control engine: an in-memory folder arena
// plus a (folder,user) grant index, mirrored to the relational store when one
// is configured. Folders form an append-only tree; grants are upserted per
// pair and expire lazily on the next check.
//
// Returned folders and grants are snapshots: callers can hold and marshal
// them without synchronizing with later engine mutations.
type PermissionService struct {
	mu       sync.RWMutex
	folders  map[string]*folder.Folder
	grants   map[string]map[string]*folder.PermissionGrant
	auditLog []*audit.LogEntry

	folderRepo FolderStore // nil = in-memory only
	auditRepo  AuditStore  // nil = in-memory only
	log        *zap.Logger
}

func New(fStore FolderStore, aStore AuditStore, log *zap.Logger) *PermissionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PermissionService{
		folders:    make(map[string]*folder.Folder),
		grants:     make(map[string]map[string]*folder.PermissionGrant),
		folderRepo: fStore,
		auditRepo:  aStore,
		log:        log,
	}
}

// Restore rehydrates the arena from the relational mirror: folder rows,
// their grants, and the retained audit window. Without a configured store it
// is a no-op.
func (s *PermissionService) Restore(ctx context.Context) error {
	if s.folderRepo == nil {
		return nil
	}
	folders, err := s.folderRepo.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load folders: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range folders {
		s.folders[f.ID] = f
	}
	for _, f := range folders {
		if f.ParentID != nil {
			if parent := s.folders[*f.ParentID]; parent != nil {
				parent.ChildIDs = append(parent.ChildIDs, f.ID)
			}
		}
		grants, err := s.folderRepo.GetFolderGrants(ctx, f.ID)
		if err != nil {
			return fmt.Errorf("failed to load grants for folder %s: %w", f.ID, err)
		}
		f.Grants = grants
		if len(grants) > 0 {
			byUser := make(map[string]*folder.PermissionGrant, len(grants))
			for _, g := range grants {
				byUser[g.UserID] = g
			}
			s.grants[f.ID] = byUser
		}
	}

	if s.auditRepo != nil {
		entries, err := s.auditRepo.Query(ctx, maxAuditEntries, audit.Filter{})
		if err != nil {
			return fmt.Errorf("failed to load audit log: %w", err)
		}
		// the store returns newest first, the ring is kept oldest first
		s.auditLog = s.auditLog[:0]
		for i := len(entries) - 1; i >= 0; i-- {
			s.auditLog = append(s.auditLog, entries[i])
		}
	}
	return nil
}

type GrantRequest struct {
	ActorID             string
	ResourceID          string
	UserID              string
	Level               folder.PermissionLevel
	CanCreateSubfolders bool
	CanDeleteContent    bool
	CanShareFolder      bool
	ExpiresAt           *time.Time
}

type AlbumCategory struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
}

// CreateFolder adds a node to the tree. The parent must already exist; when
// ownerID is set an OWNER grant is attached in the same pass.
func (s *PermissionService) CreateFolder(ctx context.Context, id, name, externalLinkID string, parentID *string, ownerID string) (*folder.Folder, error) {
	if id == "" {
		return nil, fmt.Errorf("folder id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.folders[id]; exists {
		return nil, ErrFolderExists
	}
	var parent *folder.Folder
	if parentID != nil {
		if *parentID == id {
			return nil, ErrInvalidParent
		}
		parent = s.folders[*parentID]
		if parent == nil {
			return nil, ErrInvalidParent
		}
	}

	f := &folder.Folder{
		ID:             id,
		Name:           name,
		ParentID:       parentID,
		ExternalLinkID: externalLinkID,
		CreatedAt:      time.Now(),
	}
	s.folders[id] = f
	if parent != nil {
		parent.ChildIDs = append(parent.ChildIDs, id)
	}
	s.mirrorFolder(ctx, f)

	if ownerID != "" {
		s.upsertGrantLocked(ctx, f, &folder.PermissionGrant{
			ID:        uuid.New(),
			FolderID:  id,
			UserID:    ownerID,
			Level:     folder.LevelOwner,
			GrantedBy: ownerID,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		})
	}

	s.appendAuditLocked(ctx, &audit.LogEntry{
		ID:           uuid.New(),
		Timestamp:    time.Now(),
		ActorID:      ownerID,
		Action:       audit.ActionCreateFolder,
		ResourceType: audit.ResourceFolder,
		ResourceID:   id,
		After:        folderSnapshot(f),
	})
	return cloneFolder(f), nil
}

// CreateFolderStructureFromAlbum builds a root folder, one child per category
// and one grandchild per subcategory, composing ids from the parent id and
// position. The owner grant lands on the root only; descendants inherit it
// through the hierarchical check.
func (s *PermissionService) CreateFolderStructureFromAlbum(ctx context.Context, externalRootID, rootName string, categories []AlbumCategory, ownerID string) (*folder.Folder, error) {
	root, err := s.CreateFolder(ctx, externalRootID, rootName, externalRootID, nil, ownerID)
	if err != nil {
		return nil, err
	}
	for i, cat := range categories {
		childID := fmt.Sprintf("%s-c%d", externalRootID, i)
		if _, err := s.CreateFolder(ctx, childID, cat.Name, externalRootID, &root.ID, ""); err != nil {
			return nil, fmt.Errorf("failed to create category folder %q: %w", cat.Name, err)
		}
		for j, sub := range cat.Subcategories {
			subID := fmt.Sprintf("%s-s%d", childID, j)
			if _, err := s.CreateFolder(ctx, subID, sub, externalRootID, &childID, ""); err != nil {
				return nil, fmt.Errorf("failed to create subcategory folder %q: %w", sub, err)
			}
		}
	}
	// re-read so the returned snapshot includes the children built above
	built, _ := s.GetFolder(ctx, externalRootID)
	return built, nil
}

// GrantPermission upserts the grant for (resource, user). An existing grant
// keeps its id and is overwritten in place.
func (s *PermissionService) GrantPermission(ctx context.Context, req GrantRequest) (*folder.PermissionGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.folders[req.ResourceID]
	if f == nil {
		return nil, ErrFolderNotFound
	}

	now := time.Now()
	if existing := s.grantLocked(req.ResourceID, req.UserID); existing != nil {
		before := *existing
		existing.Level = req.Level
		existing.CanCreateSubfolders = req.CanCreateSubfolders
		existing.CanDeleteContent = req.CanDeleteContent
		existing.CanShareFolder = req.CanShareFolder
		existing.ExpiresAt = req.ExpiresAt
		existing.GrantedBy = req.ActorID
		existing.UpdatedAt = now
		after := *existing
		s.mirrorGrant(ctx, existing)
		s.appendAuditLocked(ctx, &audit.LogEntry{
			ID:           uuid.New(),
			Timestamp:    now,
			ActorID:      req.ActorID,
			Action:       audit.ActionUpdatePermission,
			ResourceType: audit.ResourcePermission,
			ResourceID:   req.ResourceID,
			Before:       before,
			After:        after,
		})
		return cloneGrant(existing), nil
	}

	g := &folder.PermissionGrant{
		ID:                  uuid.New(),
		FolderID:            req.ResourceID,
		UserID:              req.UserID,
		Level:               req.Level,
		CanCreateSubfolders: req.CanCreateSubfolders,
		CanDeleteContent:    req.CanDeleteContent,
		CanShareFolder:      req.CanShareFolder,
		ExpiresAt:           req.ExpiresAt,
		GrantedBy:           req.ActorID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.upsertGrantLocked(ctx, f, g)
	s.appendAuditLocked(ctx, &audit.LogEntry{
		ID:           uuid.New(),
		Timestamp:    now,
		ActorID:      req.ActorID,
		Action:       audit.ActionGrantPermission,
		ResourceType: audit.ResourcePermission,
		ResourceID:   req.ResourceID,
		After:        *g,
	})
	return cloneGrant(g), nil
}

// RevokePermission removes the grant for the pair. Missing grant is a no-op.
func (s *PermissionService) RevokePermission(ctx context.Context, actorID, folderID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.grantLocked(folderID, userID)
	if g == nil {
		return nil
	}
	s.removeGrantLocked(ctx, g)
	s.appendAuditLocked(ctx, &audit.LogEntry{
		ID:           uuid.New(),
		Timestamp:    time.Now(),
		ActorID:      actorID,
		Action:       audit.ActionRevokePermission,
		ResourceType: audit.ResourcePermission,
		ResourceID:   folderID,
		Before:       *g,
	})
	return nil
}

// CheckPermission resolves the direct grant on the folder only. An expired
// grant is revoked here, on read, and the caller sees reduced capabilities
// rather than an error.
func (s *PermissionService) CheckPermission(ctx context.Context, userID, folderID string) folder.PermissionCheck {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.grantLocked(folderID, userID)
	if g == nil {
		return folder.Restricted()
	}
	if g.Expired(time.Now()) {
		s.removeGrantLocked(ctx, g)
		s.appendAuditLocked(ctx, &audit.LogEntry{
			ID:           uuid.New(),
			Timestamp:    time.Now(),
			ActorID:      userID,
			Action:       audit.ActionRevokePermission,
			ResourceType: audit.ResourcePermission,
			ResourceID:   folderID,
			Before:       *g,
		})
		return folder.Restricted()
	}
	return folder.PermissionCheck{Level: g.Level, Actions: g.Capabilities()}
}

// CheckHierarchicalPermission walks up the parent chain until a folder grants
// more than RESTRICTED. The visited set guards against a corrupted store
// producing a parent cycle.
func (s *PermissionService) CheckHierarchicalPermission(ctx context.Context, userID, folderID string) folder.PermissionCheck {
	visited := make(map[string]bool)
	current := folderID
	for current != "" && !visited[current] {
		visited[current] = true

		check := s.CheckPermission(ctx, userID, current)
		if check.Level != folder.LevelRestricted {
			return check
		}

		s.mu.RLock()
		f := s.folders[current]
		s.mu.RUnlock()
		if f == nil || f.ParentID == nil {
			break
		}
		current = *f.ParentID
	}
	return folder.Restricted()
}

// GetFolder returns a snapshot of the folder node, or found=false. A folder
// missing from the arena is read through from the relational mirror.
func (s *PermissionService) GetFolder(ctx context.Context, folderID string) (*folder.Folder, bool) {
	s.mu.RLock()
	if f, ok := s.folders[folderID]; ok {
		snap := cloneFolder(f)
		s.mu.RUnlock()
		return snap, true
	}
	s.mu.RUnlock()

	if s.folderRepo == nil {
		return nil, false
	}
	f, err := s.folderRepo.GetFolderByID(ctx, folderID)
	if err != nil {
		s.log.Error("failed to read folder row", zap.String("folder_id", folderID), zap.Error(err))
		return nil, false
	}
	if f == nil {
		return nil, false
	}
	grants, err := s.folderRepo.GetFolderGrants(ctx, folderID)
	if err != nil {
		s.log.Error("failed to read grant rows", zap.String("folder_id", folderID), zap.Error(err))
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.folders[folderID]; ok {
		// lost the load race, the arena copy wins
		return cloneFolder(existing), true
	}
	s.adoptFolderLocked(f, grants)
	return cloneFolder(f), true
}

// GetUserFolders lists folders where the user holds a direct grant.
func (s *PermissionService) GetUserFolders(ctx context.Context, userID string) []*folder.Folder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var folders []*folder.Folder
	for folderID, byUser := range s.grants {
		if _, ok := byUser[userID]; ok {
			if f := s.folders[folderID]; f != nil {
				folders = append(folders, cloneFolder(f))
			}
		}
	}
	return folders
}

// GetFolderPermissions lists the grants attached directly to the folder.
func (s *PermissionService) GetFolderPermissions(ctx context.Context, folderID string) []*folder.PermissionGrant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var grants []*folder.PermissionGrant
	for _, g := range s.grants[folderID] {
		grants = append(grants, cloneGrant(g))
	}
	return grants
}

// GetAuditLogs returns entries most-recent-first, filtered and truncated.
func (s *PermissionService) GetAuditLogs(ctx context.Context, limit int, filter audit.Filter) []*audit.LogEntry {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*audit.LogEntry
	for i := len(s.auditLog) - 1; i >= 0 && len(entries) < limit; i-- {
		if filter.Matches(s.auditLog[i]) {
			entries = append(entries, s.auditLog[i])
		}
	}
	return entries
}

// RecordAudit appends an entry on behalf of another component (asset
// operations share the engine's audit trail).
func (s *PermissionService) RecordAudit(ctx context.Context, actorID string, action audit.Action, resourceType audit.ResourceType, resourceID string, before, after any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAuditLocked(ctx, &audit.LogEntry{
		ID:           uuid.New(),
		Timestamp:    time.Now(),
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Before:       before,
		After:        after,
	})
}

func (s *PermissionService) grantLocked(folderID, userID string) *folder.PermissionGrant {
	byUser := s.grants[folderID]
	if byUser == nil {
		return nil
	}
	return byUser[userID]
}

func (s *PermissionService) upsertGrantLocked(ctx context.Context, f *folder.Folder, g *folder.PermissionGrant) {
	byUser := s.grants[g.FolderID]
	if byUser == nil {
		byUser = make(map[string]*folder.PermissionGrant)
		s.grants[g.FolderID] = byUser
	}
	byUser[g.UserID] = g

	replaced := false
	for i, existing := range f.Grants {
		if existing.UserID == g.UserID {
			f.Grants[i] = g
			replaced = true
			break
		}
	}
	if !replaced {
		f.Grants = append(f.Grants, g)
	}
	s.mirrorGrant(ctx, g)
}

func (s *PermissionService) removeGrantLocked(ctx context.Context, g *folder.PermissionGrant) {
	if byUser := s.grants[g.FolderID]; byUser != nil {
		delete(byUser, g.UserID)
	}
	if f := s.folders[g.FolderID]; f != nil {
		for i, existing := range f.Grants {
			if existing.UserID == g.UserID {
				f.Grants = append(f.Grants[:i], f.Grants[i+1:]...)
				break
			}
		}
	}
	if s.folderRepo != nil {
		if err := s.folderRepo.DeleteGrant(ctx, g.FolderID, g.UserID); err != nil {
			s.log.Error("failed to delete grant row",
				zap.String("folder_id", g.FolderID), zap.String("user_id", g.UserID), zap.Error(err))
		}
	}
}

// adoptFolderLocked inserts a row loaded from the mirror into the arena and
// links it to its parent when the parent is already resident.
func (s *PermissionService) adoptFolderLocked(f *folder.Folder, grants []*folder.PermissionGrant) {
	f.Grants = grants
	s.folders[f.ID] = f
	if len(grants) > 0 {
		byUser := make(map[string]*folder.PermissionGrant, len(grants))
		for _, g := range grants {
			byUser[g.UserID] = g
		}
		s.grants[f.ID] = byUser
	}
	if f.ParentID != nil {
		if parent := s.folders[*f.ParentID]; parent != nil {
			parent.ChildIDs = append(parent.ChildIDs, f.ID)
		}
	}
}

func (s *PermissionService) appendAuditLocked(ctx context.Context, e *audit.LogEntry) {
	s.auditLog = append(s.auditLog, e)
	if len(s.auditLog) > maxAuditEntries {
		s.auditLog = s.auditLog[1:]
	}
	if s.auditRepo != nil {
		if err := s.auditRepo.Append(ctx, e); err != nil {
			s.log.Error("failed to persist audit entry", zap.String("action", string(e.Action)), zap.Error(err))
		}
	}
}

func (s *PermissionService) mirrorFolder(ctx context.Context, f *folder.Folder) {
	if s.folderRepo == nil {
		return
	}
	if err := s.folderRepo.SaveFolder(ctx, f); err != nil {
		s.log.Error("failed to persist folder", zap.String("folder_id", f.ID), zap.Error(err))
	}
}

func (s *PermissionService) mirrorGrant(ctx context.Context, g *folder.PermissionGrant) {
	if s.folderRepo == nil {
		return
	}
	if err := s.folderRepo.UpsertGrant(ctx, g); err != nil {
		s.log.Error("failed to persist grant",
			zap.String("folder_id", g.FolderID), zap.String("user_id", g.UserID), zap.Error(err))
	}
}

func cloneGrant(g *folder.PermissionGrant) *folder.PermissionGrant {
	c := *g
	return &c
}

// cloneFolder detaches the node and its grant list from the arena so callers
// never observe in-place upserts.
func cloneFolder(f *folder.Folder) *folder.Folder {
	c := *f
	if len(f.ChildIDs) > 0 {
		c.ChildIDs = append([]string(nil), f.ChildIDs...)
	}
	if len(f.Grants) > 0 {
		c.Grants = make([]*folder.PermissionGrant, len(f.Grants))
		for i, g := range f.Grants {
			c.Grants[i] = cloneGrant(g)
		}
	}
	return &c
}

// folderSnapshot copies the node without its grant list for audit payloads.
func folderSnapshot(f *folder.Folder) folder.Folder {
	snap := *f
	snap.Grants = nil
	return snap
}
