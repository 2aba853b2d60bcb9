// internal/handlers/stream.go
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vaultstream/drm-backend/internal/models"
	"github.com/vaultstream/drm-backend/internal/services"
	"github.com/vaultstream/drm-backend/internal/utils"
)

// StreamHandler serves decrypted asset bytes under HTTP range semantics,
// gated by the authorization resolver.
type StreamHandler struct {
	db        *gorm.DB
	assets    *services.AssetService
	authz     *services.AuthorizationService
	cache     *services.ArtifactCache
	watermark *services.WatermarkService
}

func NewStreamHandler(db *gorm.DB, assets *services.AssetService, authz *services.AuthorizationService,
	cache *services.ArtifactCache, watermark *services.WatermarkService) *StreamHandler {
	return &StreamHandler{
		db:        db,
		assets:    assets,
		authz:     authz,
		cache:     cache,
		watermark: watermark,
	}
}

// mimeResolvers maps a content category to its MIME resolution rule. Images
// and text refine by file extension; video and audio are served under one
// container type each.
var mimeResolvers = map[models.ContentType]func(ext string) string{
	models.ContentTypeVideo: func(string) string { return "video/mp4" },
	models.ContentTypeAudio: func(string) string { return "audio/mpeg" },
	models.ContentTypeImage: func(ext string) string {
		switch ext {
		case ".png":
			return "image/png"
		case ".gif":
			return "image/gif"
		case ".webp":
			return "image/webp"
		default:
			return "image/jpeg"
		}
	},
	models.ContentTypeText: func(ext string) string {
		if ext == ".pdf" {
			return "application/pdf"
		}
		return "text/plain"
	},
}

func resolveContentType(contentType models.ContentType, fileName string) string {
	resolve, ok := mimeResolvers[contentType]
	if !ok {
		return "application/octet-stream"
	}
	return resolve(strings.ToLower(filepath.Ext(fileName)))
}

// GET /assets/:id/stream
func (h *StreamHandler) StreamAsset(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid asset ID", nil)
		return
	}

	user, ok := h.currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	asset, err := h.assets.GetAssetForStreaming(assetID)
	if err != nil {
		if errors.Is(err, services.ErrAssetNotFound) {
			utils.NotFoundResponse(c, "Asset")
		} else {
			utils.InternalErrorResponse(c, "")
		}
		return
	}

	decision := h.authz.Authorize(c.Request.Context(), user, asset)
	if !decision.Allowed {
		utils.ErrorResponse(c, decision.Reason.HTTPStatus(),
			strings.ToUpper(string(decision.Reason)), decision.Message, nil)
		return
	}

	path, err := h.cache.Materialize(asset)
	if err != nil {
		logrus.WithError(err).WithField("asset_id", asset.ID).Error("Failed to materialize decrypted artifact")
		utils.InternalErrorResponse(c, materializeErrorMessage(err))
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	if c.Query("watermark") == "true" && h.watermark.Supports(asset.ContentType) {
		h.serveWatermarked(c, path, user)
		return
	}

	h.serveRanged(c, path, info.Size(), asset)
}

// serveWatermarked pipes the plaintext through the external filter. The
// output length is unknown up front, so the response is non-seekable and
// carries no Content-Length.
func (h *StreamHandler) serveWatermarked(c *gin.Context, path string, user *models.User) {
	if err := h.watermark.Available(); err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "TRANSFORM_UNAVAILABLE",
			"Watermarking service unavailable", nil)
		return
	}

	c.Header("Content-Type", services.WatermarkOutputContentType)
	c.Header("Accept-Ranges", "none")
	c.Status(http.StatusOK)

	if err := h.watermark.Stream(c.Request.Context(), path, walletLabel(user), c.Writer); err != nil {
		// Headers are already on the wire; all we can do is drop the
		// connection for this request.
		logrus.WithError(err).Warn("Watermarked stream aborted")
		c.Abort()
	}
}

func (h *StreamHandler) serveRanged(c *gin.Context, path string, size int64, asset *models.Asset) {
	file, err := os.Open(path)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}
	defer file.Close()

	contentType := resolveContentType(asset.ContentType, asset.OriginalFileName)
	c.Header("Cross-Origin-Resource-Policy", "cross-origin")

	rangeHeader := c.GetHeader("Range")
	if rangeHeader == "" {
		c.Header("Content-Type", contentType)
		c.Header("Content-Length", strconv.FormatInt(size, 10))
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, file); err != nil {
			logrus.WithError(err).Debug("Full stream aborted by client")
		}
		return
	}

	start, end, err := parseByteRange(rangeHeader, size)
	if err != nil {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		utils.ErrorResponse(c, http.StatusRequestedRangeNotSatisfiable, "INVALID_RANGE",
			"Requested range not satisfiable", nil)
		return
	}

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Length", strconv.FormatInt(end-start+1, 10))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusPartialContent)

	if _, err := io.CopyN(c.Writer, file, end-start+1); err != nil {
		logrus.WithError(err).Debug("Ranged stream aborted by client")
	}
}

// parseByteRange parses a single "bytes=start-end" range against the file
// size. The end offset is optional and clamped to the last byte; a suffix
// range "bytes=-n" addresses the last n bytes.
func parseByteRange(header string, size int64) (int64, int64, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, fmt.Errorf("unsupported range unit")
	}

	value := strings.TrimPrefix(header, prefix)
	if strings.Contains(value, ",") {
		return 0, 0, fmt.Errorf("multipart ranges not supported")
	}

	parts := strings.SplitN(value, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}

	if parts[0] == "" {
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("invalid suffix range %q", header)
		}
		if n > size {
			n = size
		}
		if n == 0 {
			return 0, 0, fmt.Errorf("unsatisfiable suffix range %q", header)
		}
		return size - n, size - 1, nil
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, fmt.Errorf("invalid range start %q", header)
	}

	end := size - 1
	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil || end < start {
			return 0, 0, fmt.Errorf("invalid range end %q", header)
		}
		if end > size-1 {
			end = size - 1
		}
	}

	return start, end, nil
}

func (h *StreamHandler) currentUser(c *gin.Context) (*models.User, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		return nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, false
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, false
	}

	return &user, true
}

func materializeErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrSourceBlobMissing):
		return "Encrypted file source not found"
	case errors.Is(err, services.ErrKeyMaterialMissing):
		return "Asset has not been secured"
	default:
		return "Decryption failed"
	}
}

func walletLabel(user *models.User) string {
	if len(user.WalletAddress) >= 8 {
		return user.WalletAddress[:8]
	}
	return user.Username
}
