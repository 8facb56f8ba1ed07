package assetService

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gridd360-manager/internal/MinIO"
	"gridd360-manager/internal/model/asset"
	"gridd360-manager/internal/model/audit"
	"gridd360-manager/internal/repository/assetRepo"
	"gridd360-manager/internal/service/permissionService"
)

var (
	ErrAccessDenied  = errors.New("access denied")
	ErrAssetNotFound = errors.New("asset not found")
)

// AssetService stores asset content in MinIO and metadata in the relational
// store, with every operation authorized through the access-control engine
// before anything is written.
type AssetService struct {
	assetRepo *assetRepo.AssetRepo
	perms     *permissionService.PermissionService
	minIO     *MinIO.MinIOClient
}

func New(repo *assetRepo.AssetRepo, perms *permissionService.PermissionService, minIO *MinIO.MinIOClient) *AssetService {
	return &AssetService{
		assetRepo: repo,
		perms:     perms,
		minIO:     minIO,
	}
}

func (s *AssetService) UploadAsset(ctx context.Context, userID, folderID, name, contentType string, content io.Reader, size int64) (*asset.Asset, error) {
	if _, ok := s.perms.GetFolder(ctx, folderID); !ok {
		return nil, permissionService.ErrFolderNotFound
	}
	check := s.perms.CheckHierarchicalPermission(ctx, userID, folderID)
	if !check.Actions.CanWrite {
		return nil, ErrAccessDenied
	}

	assetID := uuid.New()
	storageKey := fmt.Sprintf("%s/%s", folderID, assetID)
	if err := s.minIO.UploadFile(ctx, storageKey, content, size, contentType); err != nil {
		return nil, fmt.Errorf("failed to upload asset content: %w", err)
	}

	a := &asset.Asset{
		ID:          assetID,
		FolderID:    folderID,
		Name:        name,
		ContentType: contentType,
		Size:        size,
		StorageKey:  storageKey,
		UploadedBy:  userID,
		CreatedAt:   time.Now(),
	}
	if err := s.assetRepo.CreateAsset(ctx, a); err != nil {
		_ = s.minIO.DeleteFile(ctx, storageKey)
		return nil, fmt.Errorf("failed to create asset entry: %w", err)
	}

	s.perms.RecordAudit(ctx, userID, audit.ActionUploadAsset, audit.ResourceAsset, assetID.String(), nil, *a)
	return a, nil
}

func (s *AssetService) DownloadAsset(ctx context.Context, userID string, assetID uuid.UUID) (io.Reader, *asset.Asset, error) {
	a, err := s.assetRepo.GetAssetByID(ctx, assetID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get asset: %w", err)
	}
	if a == nil {
		return nil, nil, ErrAssetNotFound
	}
	check := s.perms.CheckHierarchicalPermission(ctx, userID, a.FolderID)
	if !check.Actions.CanRead {
		return nil, nil, ErrAccessDenied
	}
	reader, err := s.minIO.DownloadFile(ctx, a.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download asset content: %w", err)
	}
	return reader, a, nil
}

func (s *AssetService) DeleteAsset(ctx context.Context, userID string, assetID uuid.UUID) error {
	a, err := s.assetRepo.GetAssetByID(ctx, assetID)
	if err != nil {
		return fmt.Errorf("failed to get asset: %w", err)
	}
	if a == nil {
		return ErrAssetNotFound
	}
	check := s.perms.CheckHierarchicalPermission(ctx, userID, a.FolderID)
	if !check.Actions.CanDelete {
		return ErrAccessDenied
	}
	if err := s.assetRepo.DeleteAsset(ctx, assetID); err != nil {
		return fmt.Errorf("failed to delete asset entry: %w", err)
	}
	if err := s.minIO.DeleteFile(ctx, a.StorageKey); err != nil {
		return fmt.Errorf("failed to delete asset content: %w", err)
	}
	s.perms.RecordAudit(ctx, userID, audit.ActionDeleteAsset, audit.ResourceAsset, assetID.String(), *a, nil)
	return nil
}

func (s *AssetService) ListFolderAssets(ctx context.Context, userID, folderID string) ([]*asset.Asset, error) {
	if _, ok := s.perms.GetFolder(ctx, folderID); !ok {
		return nil, permissionService.ErrFolderNotFound
	}
	check := s.perms.CheckHierarchicalPermission(ctx, userID, folderID)
	if !check.Actions.CanRead {
		return nil, ErrAccessDenied
	}
	assets, err := s.assetRepo.ListAssetsByFolder(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder assets: %w", err)
	}
	return assets, nil
}
