// internal/handlers/asset.go
package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vaultstream/drm-backend/internal/models"
	"github.com/vaultstream/drm-backend/internal/services"
	"github.com/vaultstream/drm-backend/internal/utils"
)

type AssetHandler struct {
	assets  *services.AssetService
	storage *services.StorageService
}

func NewAssetHandler(assets *services.AssetService, storage *services.StorageService) *AssetHandler {
	return &AssetHandler{assets: assets, storage: storage}
}

// POST /assets/upload
func (h *AssetHandler) Upload(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "File is required", nil)
		return
	}
	defer file.Close()

	req := &services.CreateAssetRequest{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		ContentType: models.ContentType(c.PostForm("content_type")),
	}

	if raw := c.PostForm("license_terms"); raw != "" {
		var terms map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &terms); err != nil {
			utils.BadRequestResponse(c, "license_terms must be a JSON object", nil)
			return
		}
		req.LicenseTerms = terms
	}

	if raw := c.PostForm("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				req.Tags = append(req.Tags, tag)
			}
		}
	}

	path, err := h.storage.SaveUpload(file, header)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	asset, err := h.assets.CreateAsset(userID, req, header.Filename, path)
	if err != nil {
		h.storage.RemoveLocal(path)
		if strings.Contains(err.Error(), "validation failed") {
			utils.BadRequestResponse(c, "Invalid asset data", utils.GetValidationErrors(err))
			return
		}
		logrus.WithError(err).Error("Failed to create asset")
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.CreatedResponse(c, asset)
}

// GET /assets/:id
func (h *AssetHandler) Get(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid asset ID", nil)
		return
	}

	asset, err := h.assets.GetAsset(assetID)
	if err != nil {
		respondAssetError(c, err)
		return
	}

	utils.SuccessResponse(c, asset)
}

// GET /assets
func (h *AssetHandler) List(c *gin.Context) {
	params := services.AssetSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
		ShowAll:          c.Query("show_all") == "true",
	}

	if raw := c.Query("content_type"); raw != "" {
		ct := models.ContentType(raw)
		if !ct.Valid() {
			utils.BadRequestResponse(c, "Invalid content type", nil)
			return
		}
		params.ContentType = &ct
	}

	if raw := c.Query("owner_id"); raw != "" {
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid owner ID", nil)
			return
		}
		params.OwnerID = &ownerID
	}

	assets, total, err := h.assets.SearchAssets(params)
	if err != nil {
		logrus.WithError(err).Error("Failed to search assets")
		utils.InternalErrorResponse(c, "")
		return
	}

	result := utils.CreatePaginationResult(assets, total, params.PaginationParams)
	utils.PaginatedResponse(c, result)
}

// PUT /assets/:id/verify
func (h *AssetHandler) Verify(c *gin.Context) {
	assetID, userID, ok := assetAndUser(c)
	if !ok {
		return
	}

	asset, err := h.assets.VerifyOriginality(c.Request.Context(), assetID, userID)
	if err != nil {
		if errors.Is(err, services.ErrEngineUnavailable) {
			utils.ErrorResponse(c, 502, "ENGINE_UNAVAILABLE", "Originality engine unavailable", nil)
			return
		}
		respondAssetError(c, err)
		return
	}

	utils.SuccessResponse(c, asset)
}

// PUT /assets/:id/secure
func (h *AssetHandler) Secure(c *gin.Context) {
	assetID, userID, ok := assetAndUser(c)
	if !ok {
		return
	}

	asset, alreadySecured, err := h.assets.SecureAsset(c.Request.Context(), assetID, userID)
	if err != nil {
		respondAssetError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"asset":           asset,
		"already_secured": alreadySecured,
	})
}

// PUT /assets/:id/mint
func (h *AssetHandler) Mint(c *gin.Context) {
	assetID, userID, ok := assetAndUser(c)
	if !ok {
		return
	}

	var body struct {
		BlockchainID string `json:"blockchain_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "blockchain_id is required", nil)
		return
	}

	asset, err := h.assets.SetBlockchainID(assetID, userID, body.BlockchainID)
	if err != nil {
		respondAssetError(c, err)
		return
	}

	utils.SuccessResponse(c, asset)
}

// DELETE /assets/:id
func (h *AssetHandler) Delete(c *gin.Context) {
	assetID, userID, ok := assetAndUser(c)
	if !ok {
		return
	}

	if err := h.assets.DeleteAsset(assetID, userID); err != nil {
		respondAssetError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"deleted": true})
}

func assetAndUser(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid asset ID", nil)
		return uuid.Nil, uuid.Nil, false
	}

	userID, ok := requireUserID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	return assetID, userID, true
}

func requireUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}

	return userID, true
}

func respondAssetError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAssetNotFound):
		utils.NotFoundResponse(c, "Asset")
	case errors.Is(err, services.ErrNotOwner):
		utils.ForbiddenResponse(c, "Only the asset owner may perform this action")
	case errors.Is(err, services.ErrNotVerified):
		utils.BadRequestResponse(c, "Asset must pass originality verification first", nil)
	case errors.Is(err, services.ErrSourceBlobMissing):
		utils.InternalErrorResponse(c, "Uploaded file is missing from storage")
	default:
		logrus.WithError(err).Error("Asset operation failed")
		utils.InternalErrorResponse(c, "")
	}
}
