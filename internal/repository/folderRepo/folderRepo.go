package folderRepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"gridd360-manager/internal/model/folder"
)

// FolderRepo persists folder rows and permission grants. The access-control
// engine treats this store as a mirror: keyed upserts and deletes only, no
// tree logic lives here.
type FolderRepo struct {
	conn *pgx.Conn
}

func New(db *pgx.Conn) *FolderRepo {
	return &FolderRepo{conn: db}
}

func (r *FolderRepo) SaveFolder(ctx context.Context, f *folder.Folder) error {
	_, err := r.conn.Exec(ctx,
		`INSERT INTO folders (id, name, parent_id, external_link_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		f.ID, f.Name, f.ParentID, f.ExternalLinkID, f.CreatedAt)
	return err
}

func (r *FolderRepo) GetFolderByID(ctx context.Context, folderID string) (*folder.Folder, error) {
	var f folder.Folder
	err := r.conn.QueryRow(ctx,
		`SELECT id, name, parent_id, external_link_id, created_at
		 FROM folders WHERE id = $1`, folderID).
		Scan(&f.ID, &f.Name, &f.ParentID, &f.ExternalLinkID, &f.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &f, err
}

func (r *FolderRepo) UpsertGrant(ctx context.Context, g *folder.PermissionGrant) error {
	_, err := r.conn.Exec(ctx,
		`INSERT INTO permission_grants
		   (id, folder_id, user_id, permission_level, can_create_subfolders,
		    can_delete_content, can_share_folder, expires_at, granted_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (folder_id, user_id) DO UPDATE SET
		   permission_level = EXCLUDED.permission_level,
		   can_create_subfolders = EXCLUDED.can_create_subfolders,
		   can_delete_content = EXCLUDED.can_delete_content,
		   can_share_folder = EXCLUDED.can_share_folder,
		   expires_at = EXCLUDED.expires_at,
		   granted_by = EXCLUDED.granted_by,
		   updated_at = EXCLUDED.updated_at`,
		g.ID, g.FolderID, g.UserID, int(g.Level), g.CanCreateSubfolders,
		g.CanDeleteContent, g.CanShareFolder, g.ExpiresAt, g.GrantedBy, g.CreatedAt, g.UpdatedAt)
	return err
}

func (r *FolderRepo) DeleteGrant(ctx context.Context, folderID, userID string) error {
	_, err := r.conn.Exec(ctx,
		"DELETE FROM permission_grants WHERE folder_id = $1 AND user_id = $2",
		folderID, userID)
	return err
}

func (r *FolderRepo) GetFolderGrants(ctx context.Context, folderID string) ([]*folder.PermissionGrant, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT id, folder_id, user_id, permission_level, can_create_subfolders,
		        can_delete_content, can_share_folder, expires_at, granted_by, created_at, updated_at
		 FROM permission_grants WHERE folder_id = $1`, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []*folder.PermissionGrant
	for rows.Next() {
		var g folder.PermissionGrant
		var level int
		if err := rows.Scan(&g.ID, &g.FolderID, &g.UserID, &level, &g.CanCreateSubfolders,
			&g.CanDeleteContent, &g.CanShareFolder, &g.ExpiresAt, &g.GrantedBy, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		g.Level = folder.PermissionLevel(level)
		grants = append(grants, &g)
	}
	return grants, nil
}

// ListFolders returns every folder row in creation order, so parents come
// back before the children that reference them.
func (r *FolderRepo) ListFolders(ctx context.Context) ([]*folder.Folder, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT id, name, parent_id, external_link_id, created_at
		 FROM folders ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []*folder.Folder
	for rows.Next() {
		var f folder.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.ParentID, &f.ExternalLinkID, &f.CreatedAt); err != nil {
			return nil, err
		}
		folders = append(folders, &f)
	}
	return folders, nil
}
