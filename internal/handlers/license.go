// internal/handlers/license.go
package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vaultstream/drm-backend/internal/services"
	"github.com/vaultstream/drm-backend/internal/utils"
)

type LicenseHandler struct {
	licenses *services.LicenseService
}

func NewLicenseHandler(licenses *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{licenses: licenses}
}

// POST /licenses/sync
func (h *LicenseHandler) Sync(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.SyncLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	grant, err := h.licenses.SyncLicense(userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAssetNotFound):
			utils.NotFoundResponse(c, "Asset")
		case errors.Is(err, services.ErrAssetNotMinted):
			utils.BadRequestResponse(c, "Asset has not been minted", nil)
		case errors.Is(err, services.ErrDuplicateTransaction):
			utils.ConflictResponse(c, "Transaction hash already recorded")
		case strings.Contains(err.Error(), "validation failed"):
			utils.BadRequestResponse(c, "Invalid license data", utils.GetValidationErrors(err))
		default:
			logrus.WithError(err).Error("Failed to sync license")
			utils.InternalErrorResponse(c, "")
		}
		return
	}

	utils.CreatedResponse(c, grant)
}

// GET /licenses/me
func (h *LicenseHandler) MyLicenses(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	grants, err := h.licenses.GetUserLicenses(userID)
	if err != nil {
		logrus.WithError(err).Error("Failed to fetch licenses")
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.SuccessResponse(c, grants)
}
