package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gridd360-manager/internal/model/audit"
	"gridd360-manager/internal/model/folder"
	"gridd360-manager/internal/model/token"
	"gridd360-manager/internal/service/assetService"
	"gridd360-manager/internal/service/permissionService"
	"gridd360-manager/internal/service/tokenService"
	"gridd360-manager/pkg/middleware"
)

type handlers struct {
	deps Deps
}

type CreateFolderRequest struct {
	ID             string  `json:"id" binding:"required"`
	Name           string  `json:"name" binding:"required"`
	ExternalLinkID string  `json:"external_link_id"`
	ParentID       *string `json:"parent_id"`
}

type CreateAlbumRequest struct {
	ExternalRootID string                            `json:"external_root_id" binding:"required"`
	RootName       string                            `json:"root_name" binding:"required"`
	Categories     []permissionService.AlbumCategory `json:"categories"`
}

type GrantPermissionRequest struct {
	UserID              string     `json:"user_id" binding:"required"`
	PermissionLevel     string     `json:"permission_level" binding:"required"`
	CanCreateSubfolders bool       `json:"can_create_subfolders"`
	CanDeleteContent    bool       `json:"can_delete_content"`
	CanShareFolder      bool       `json:"can_share_folder"`
	ExpiresAt           *time.Time `json:"expires_at"`
}

func parseLevel(s string) (folder.PermissionLevel, bool) {
	switch s {
	case "RESTRICTED":
		return folder.LevelRestricted, true
	case "VIEWER":
		return folder.LevelViewer, true
	case "EDITOR":
		return folder.LevelEditor, true
	case "OWNER":
		return folder.LevelOwner, true
	}
	return folder.LevelRestricted, false
}

func (h *handlers) handleCreateFolder(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	var req CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// creating under a parent needs the subfolder capability there
	if req.ParentID != nil {
		check := h.deps.Perms.CheckHierarchicalPermission(c.Request.Context(), userID, *req.ParentID)
		if !check.Actions.CanCreateSubfolders {
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to create subfolders here"})
			return
		}
	}

	f, err := h.deps.Perms.CreateFolder(c.Request.Context(), req.ID, req.Name, req.ExternalLinkID, req.ParentID, userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, permissionService.ErrInvalidParent) || errors.Is(err, permissionService.ErrFolderExists) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *handlers) handleCreateAlbumStructure(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	var req CreateAlbumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	root, err := h.deps.Perms.CreateFolderStructureFromAlbum(c.Request.Context(),
		req.ExternalRootID, req.RootName, req.Categories, userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, root)
}

func (h *handlers) handleListUserFolders(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	folders := h.deps.Perms.GetUserFolders(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

func (h *handlers) handleCheckAccess(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	folderID := c.Param("id")
	var check folder.PermissionCheck
	if c.Query("hierarchical") == "true" {
		check = h.deps.Perms.CheckHierarchicalPermission(c.Request.Context(), userID, folderID)
	} else {
		check = h.deps.Perms.CheckPermission(c.Request.Context(), userID, folderID)
	}
	c.JSON(http.StatusOK, gin.H{
		"permission_level": check.Level.String(),
		"actions":          check.Actions,
	})
}

func (h *handlers) handleListPermissions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	folderID := c.Param("id")
	check := h.deps.Perms.CheckHierarchicalPermission(c.Request.Context(), userID, folderID)
	if !check.Actions.CanManagePermissions {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to view folder permissions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"grants": h.deps.Perms.GetFolderPermissions(c.Request.Context(), folderID)})
}

func (h *handlers) handleGrantPermission(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	folderID := c.Param("id")

	check := h.deps.Perms.CheckHierarchicalPermission(c.Request.Context(), userID, folderID)
	if !check.Actions.CanManagePermissions {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to manage folder permissions"})
		return
	}

	var req GrantPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	level, ok := parseLevel(req.PermissionLevel)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown permission level"})
		return
	}

	g, err := h.deps.Perms.GrantPermission(c.Request.Context(), permissionService.GrantRequest{
		ActorID:             userID,
		ResourceID:          folderID,
		UserID:              req.UserID,
		Level:               level,
		CanCreateSubfolders: req.CanCreateSubfolders,
		CanDeleteContent:    req.CanDeleteContent,
		CanShareFolder:      req.CanShareFolder,
		ExpiresAt:           req.ExpiresAt,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, permissionService.ErrFolderNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *handlers) handleRevokePermission(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	folderID := c.Param("id")

	check := h.deps.Perms.CheckHierarchicalPermission(c.Request.Context(), userID, folderID)
	if !check.Actions.CanManagePermissions {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to manage folder permissions"})
		return
	}

	if err := h.deps.Perms.RevokePermission(c.Request.Context(), userID, folderID, c.Param("userId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

func (h *handlers) handleAuditLogs(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	filter := audit.Filter{
		ActorID:      c.Query("user"),
		Action:       audit.Action(c.Query("action")),
		ResourceType: audit.ResourceType(c.Query("resource_type")),
	}
	entries := h.deps.Perms.GetAuditLogs(c.Request.Context(), limit, filter)
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *handlers) handlePhotosConnect(c *gin.Context) {
	url, err := h.deps.Tokens.GetAuthorizationURL(c.Request.Context(), c.Query("state"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *handlers) handlePhotosCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}
	if state := h.deps.Tokens.Session().CSRFState; state != "" && c.Query("state") != state {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
		return
	}

	tok, err := h.deps.Tokens.ExchangeCodeForToken(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, tokenService.ErrAuthorizationExpired) {
			c.JSON(http.StatusGone, gin.H{"error": err.Error(), "reauthorize": true})
			return
		}
		var exchangeErr *tokenService.TokenExchangeError
		if errors.As(err, &exchangeErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": exchangeErr.Payload})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true, "expires_at": tok.ExpiresAt})
}

func (h *handlers) handlePhotosStatus(c *gin.Context) {
	session := h.deps.Tokens.Session()
	resp := gin.H{
		"state":     session.State,
		"connected": session.State == token.StateAuthenticated,
	}
	if tok := h.deps.Tokens.CurrentToken(); tok != nil {
		resp["expires_at"] = tok.ExpiresAt
		resp["scope"] = tok.Scope
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) handlePhotosRefresh(c *gin.Context) {
	tok, err := h.deps.Tokens.RefreshAccessToken(c.Request.Context())
	if err != nil {
		if errors.Is(err, tokenService.ErrNoRefreshToken) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "reauthorize": true})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expires_at": tok.ExpiresAt})
}

func (h *handlers) handlePhotosDisconnect(c *gin.Context) {
	if err := h.deps.Tokens.RevokeToken(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": true})
}

func (h *handlers) handleUploadAsset(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	folderID := c.Param("id")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	a, err := h.deps.Assets.UploadAsset(c.Request.Context(), userID, folderID,
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file, fileHeader.Size)
	if err != nil {
		writeAssetError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *handlers) handleListAssets(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	assets, err := h.deps.Assets.ListFolderAssets(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeAssetError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

func (h *handlers) handleDownloadAsset(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}
	reader, a, err := h.deps.Assets.DownloadAsset(c.Request.Context(), userID, assetID)
	if err != nil {
		writeAssetError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+a.Name)
	c.DataFromReader(http.StatusOK, a.Size, a.ContentType, reader, nil)
}

func (h *handlers) handleDeleteAsset(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}
	if err := h.deps.Assets.DeleteAsset(c.Request.Context(), userID, assetID); err != nil {
		writeAssetError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func writeAssetError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, assetService.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, assetService.ErrAssetNotFound), errors.Is(err, permissionService.ErrFolderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
