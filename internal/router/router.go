// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vaultstream/drm-backend/internal/config"
	"github.com/vaultstream/drm-backend/internal/handlers"
	"github.com/vaultstream/drm-backend/internal/middleware"
	"github.com/vaultstream/drm-backend/internal/services"
	"github.com/vaultstream/drm-backend/internal/utils"
)

// Setup wires services, handlers and middleware into the API surface.
func Setup(db *gorm.DB, cfg *config.Config) (*gin.Engine, error) {
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	cipher := services.NewCipherService()
	cache := services.NewArtifactCache(cfg.Storage.TempDir, cipher)
	ledger := services.NewLedgerService(cfg.Ledger)
	authz := services.NewAuthorizationService(db, ledger)
	originality := services.NewOriginalityService(cfg.Engines)
	ipfs := services.NewIPFSService(cfg.IPFS)
	watermark := services.NewWatermarkService(cfg.Watermark)

	storage, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, err
	}

	assets := services.NewAssetService(db, originality, cipher, ipfs, storage, cache)
	licenses := services.NewLicenseService(db)

	assetHandler := handlers.NewAssetHandler(assets, storage)
	streamHandler := handlers.NewStreamHandler(db, assets, authz, cache, watermark)
	licenseHandler := handlers.NewLicenseHandler(licenses)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.GeneralRateLimit())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	v1 := r.Group("/v1")
	{
		assetsGroup := v1.Group("/assets")
		{
			assetsGroup.GET("", middleware.OptionalAuth(), assetHandler.List)
			assetsGroup.GET("/:id", middleware.OptionalAuth(), assetHandler.Get)

			assetsGroup.POST("/upload", middleware.AuthRequired(), middleware.UploadRateLimit(), assetHandler.Upload)
			assetsGroup.PUT("/:id/verify", middleware.AuthRequired(), middleware.UploadRateLimit(), assetHandler.Verify)
			assetsGroup.PUT("/:id/secure", middleware.AuthRequired(), middleware.UploadRateLimit(), assetHandler.Secure)
			assetsGroup.PUT("/:id/mint", middleware.AuthRequired(), assetHandler.Mint)
			assetsGroup.DELETE("/:id", middleware.AuthRequired(), assetHandler.Delete)

			assetsGroup.GET("/:id/stream", middleware.AuthRequired(), streamHandler.StreamAsset)
		}

		licensesGroup := v1.Group("/licenses")
		licensesGroup.Use(middleware.AuthRequired())
		{
			licensesGroup.POST("/sync", licenseHandler.Sync)
			licensesGroup.GET("/me", licenseHandler.MyLicenses)
		}
	}

	return r, nil
}
