package assetRepo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gridd360-manager/internal/model/asset"
)

type AssetRepo struct {
	conn *pgx.Conn
}

func New(db *pgx.Conn) *AssetRepo {
	return &AssetRepo{conn: db}
}

func (r *AssetRepo) CreateAsset(ctx context.Context, a *asset.Asset) error {
	_, err := r.conn.Exec(ctx,
		`INSERT INTO assets (id, folder_id, name, content_type, size, storage_key, uploaded_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.FolderID, a.Name, a.ContentType, a.Size, a.StorageKey, a.UploadedBy, a.CreatedAt)
	return err
}

func (r *AssetRepo) GetAssetByID(ctx context.Context, assetID uuid.UUID) (*asset.Asset, error) {
	var a asset.Asset
	err := r.conn.QueryRow(ctx,
		`SELECT id, folder_id, name, content_type, size, storage_key, uploaded_by, created_at
		 FROM assets WHERE id = $1`, assetID).
		Scan(&a.ID, &a.FolderID, &a.Name, &a.ContentType, &a.Size, &a.StorageKey, &a.UploadedBy, &a.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &a, err
}

func (r *AssetRepo) DeleteAsset(ctx context.Context, assetID uuid.UUID) error {
	_, err := r.conn.Exec(ctx, "DELETE FROM assets WHERE id = $1", assetID)
	return err
}

func (r *AssetRepo) ListAssetsByFolder(ctx context.Context, folderID string) ([]*asset.Asset, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT id, folder_id, name, content_type, size, storage_key, uploaded_by, created_at
		 FROM assets WHERE folder_id = $1 ORDER BY created_at DESC`, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*asset.Asset
	for rows.Next() {
		var a asset.Asset
		if err := rows.Scan(&a.ID, &a.FolderID, &a.Name, &a.ContentType, &a.Size, &a.StorageKey, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, &a)
	}
	return assets, nil
}
