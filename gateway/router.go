package gateway

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gridd360-manager/internal/service/assetService"
	"gridd360-manager/internal/service/permissionService"
	"gridd360-manager/internal/service/tokenService"
	"gridd360-manager/pkg/middleware"
)

type Deps struct {
	Perms     *permissionService.PermissionService
	Tokens    *tokenService.TokenService
	Assets    *assetService.AssetService
	JWTSecret string
}

// NewRouter wires the dashboard API. Permission checks run before any
// mutation; a denial surfaces as 403 with the reason.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.Default()

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(config))

	h := &handlers{deps: deps}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		// the provider redirects the browser here, no dashboard JWT attached
		api.GET("/auth/photos/callback", h.handlePhotosCallback)

		authorized := api.Group("/")
		authorized.Use(middleware.Auth(deps.JWTSecret))
		{
			authorized.POST("/folders", h.handleCreateFolder)
			authorized.POST("/folders/album", h.handleCreateAlbumStructure)
			authorized.GET("/folders", h.handleListUserFolders)
			authorized.GET("/folders/:id/access", h.handleCheckAccess)
			authorized.GET("/folders/:id/permissions", h.handleListPermissions)
			authorized.POST("/folders/:id/permissions", h.handleGrantPermission)
			authorized.DELETE("/folders/:id/permissions/:userId", h.handleRevokePermission)
			authorized.GET("/audit", h.handleAuditLogs)

			authorized.GET("/auth/photos/connect", h.handlePhotosConnect)
			authorized.GET("/auth/photos/status", h.handlePhotosStatus)
			authorized.POST("/auth/photos/refresh", h.handlePhotosRefresh)
			authorized.DELETE("/auth/photos", h.handlePhotosDisconnect)

			if deps.Assets != nil {
				authorized.POST("/folders/:id/assets", h.handleUploadAsset)
				authorized.GET("/folders/:id/assets", h.handleListAssets)
				authorized.GET("/assets/:id", h.handleDownloadAsset)
				authorized.DELETE("/assets/:id", h.handleDeleteAsset)
			}
		}
	}

	return r
}
