// internal/services/asset_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vaultstream/drm-backend/internal/models"
	"github.com/vaultstream/drm-backend/internal/utils"
)

// AssetService owns the asset lifecycle: upload record, originality
// verification, securing (encrypt + pin), minting and deletion.
type AssetService struct {
	db          *gorm.DB
	originality *OriginalityService
	cipher      *CipherService
	ipfs        *IPFSService
	storage     *StorageService
	cache       *ArtifactCache
}

type CreateAssetRequest struct {
	Title        string                 `json:"title" validate:"required,max=100"`
	Description  string                 `json:"description" validate:"required,max=500"`
	ContentType  models.ContentType     `json:"content_type" validate:"required,oneof=video audio image text"`
	LicenseTerms map[string]interface{} `json:"license_terms,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
}

type AssetSearchParams struct {
	utils.PaginationParams
	ContentType *models.ContentType
	OwnerID     *uuid.UUID
	ShowAll     bool
}

func NewAssetService(db *gorm.DB, originality *OriginalityService, cipher *CipherService,
	ipfs *IPFSService, storage *StorageService, cache *ArtifactCache) *AssetService {
	return &AssetService{
		db:          db,
		originality: originality,
		cipher:      cipher,
		ipfs:        ipfs,
		storage:     storage,
		cache:       cache,
	}
}

// CreateAsset records a freshly uploaded file. The asset starts unverified;
// originality verification and securing are separate steps.
func (s *AssetService) CreateAsset(ownerID uuid.UUID, req *CreateAssetRequest, originalFileName, storagePath string) (*models.Asset, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	asset := &models.Asset{
		OwnerID:          ownerID,
		Title:            req.Title,
		Description:      req.Description,
		ContentType:      req.ContentType,
		OriginalFileName: originalFileName,
		StoragePath:      storagePath,
		LicenseTerms:     models.JSONB(req.LicenseTerms),
		Tags:             pq.StringArray(req.Tags),
		Status:           models.AssetStatusActive,
	}

	if err := s.db.Create(asset).Error; err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}

	return asset, nil
}

// GetAsset loads an asset with its owner for API reads. Key material never
// leaves the model's json:"-" fields.
func (s *AssetService) GetAsset(id uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	if err := s.db.Preload("Owner").First(&asset, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &asset, nil
}

// SearchAssets lists marketplace assets. By default only verified originals
// are shown; ShowAll lifts the filter (e.g. for an owner's dashboard).
func (s *AssetService) SearchAssets(params AssetSearchParams) ([]models.Asset, int64, error) {
	query := s.db.Model(&models.Asset{}).Where("status = ?", models.AssetStatusActive)

	if !params.ShowAll {
		query = query.Where("originality_verified = ?", true)
	}
	if params.ContentType != nil {
		query = query.Where("content_type = ?", *params.ContentType)
	}
	if params.OwnerID != nil {
		query = query.Where("owner_id = ?", *params.OwnerID)
	}
	if params.Search != "" {
		query = query.Where("LOWER(title) LIKE LOWER(?)", "%"+params.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count assets: %w", err)
	}

	query = utils.ApplySort(query, params.PaginationParams,
		"created_at", "title", "originality_score")
	query = utils.ApplyPagination(query, params.PaginationParams)

	var assets []models.Asset
	if err := query.Preload("Owner").Find(&assets).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch assets: %w", err)
	}

	return assets, total, nil
}

// VerifyOriginality runs the asset through its originality engine and stores
// the verdict. A verified-original asset is auto-registered with the engine
// so later uploads are fingerprinted against it.
func (s *AssetService) VerifyOriginality(ctx context.Context, assetID, userID uuid.UUID) (*models.Asset, error) {
	asset, err := s.getOwned(assetID, userID)
	if err != nil {
		return nil, err
	}

	result, err := s.originality.Check(ctx, asset.StoragePath, asset.ContentType)
	if err != nil {
		return nil, err
	}

	asset.OriginalityVerified = result.IsOriginal
	asset.OriginalityScore = result.Score
	asset.OriginalityReport = result.Details

	if err := s.db.Save(asset).Error; err != nil {
		return nil, fmt.Errorf("failed to save verification result: %w", err)
	}

	if asset.OriginalityVerified {
		s.originality.Register(ctx, asset.StoragePath, asset.ContentType, asset.ID.String())
	}

	logrus.WithFields(logrus.Fields{
		"asset_id": asset.ID,
		"original": asset.OriginalityVerified,
		"score":    asset.OriginalityScore,
	}).Info("Originality verification completed")

	return asset, nil
}

// SecureAsset encrypts the uploaded file and publishes the encrypted blob.
// Key and IV are written exactly once; a secured asset (CID set) returns
// unchanged so the operation is idempotent. The plaintext upload is removed
// after securing; from then on only the decrypted cache may hold plaintext.
func (s *AssetService) SecureAsset(ctx context.Context, assetID, userID uuid.UUID) (*models.Asset, bool, error) {
	asset, err := s.getOwned(assetID, userID)
	if err != nil {
		return nil, false, err
	}

	if !asset.OriginalityVerified {
		return nil, false, ErrNotVerified
	}

	if asset.Secured() {
		return asset, true, nil
	}

	if !fileExists(asset.StoragePath) {
		return nil, false, ErrSourceBlobMissing
	}

	encryptedPath := EncryptedBlobPath(asset.StoragePath)

	keyHex, ivHex, err := s.cipher.EncryptFile(asset.StoragePath, encryptedPath)
	if err != nil {
		return nil, false, err
	}

	cid, err := s.ipfs.Pin(ctx, encryptedPath)
	if err != nil {
		s.storage.RemoveLocal(encryptedPath)
		return nil, false, fmt.Errorf("publishing encrypted blob: %w", err)
	}

	s.storage.MirrorEncrypted(encryptedPath, MirrorKey(asset.ID))

	asset.EncryptionKey = keyHex
	asset.IV = ivHex
	asset.CID = cid

	if err := s.db.Save(asset).Error; err != nil {
		s.storage.RemoveLocal(encryptedPath)
		return nil, false, fmt.Errorf("failed to persist key material: %w", err)
	}

	// The encrypted blob at {storagePath}.enc is now the streaming source;
	// drop the plaintext upload.
	s.storage.RemoveLocal(asset.StoragePath)

	logrus.WithFields(logrus.Fields{
		"asset_id": asset.ID,
		"cid":      cid,
	}).Info("Asset secured")

	return asset, false, nil
}

// SetBlockchainID records the on-chain token id after the owner mints the
// asset, enabling the purchase-license flow and the ledger fallback.
func (s *AssetService) SetBlockchainID(assetID, userID uuid.UUID, blockchainID string) (*models.Asset, error) {
	if blockchainID == "" {
		return nil, fmt.Errorf("blockchain id is required")
	}

	asset, err := s.getOwned(assetID, userID)
	if err != nil {
		return nil, err
	}

	asset.BlockchainID = blockchainID
	if err := s.db.Save(asset).Error; err != nil {
		return nil, fmt.Errorf("failed to save blockchain id: %w", err)
	}

	return asset, nil
}

// DeleteAsset removes the asset record, its blobs, the S3 mirror and the
// decrypted cache entry.
func (s *AssetService) DeleteAsset(assetID, userID uuid.UUID) error {
	asset, err := s.getOwned(assetID, userID)
	if err != nil {
		return err
	}

	if err := s.cache.Invalidate(asset.ID, asset.OriginalFileName); err != nil {
		logrus.WithError(err).WithField("asset_id", asset.ID).Warn("Failed to invalidate decrypted cache entry")
	}

	s.storage.RemoveLocal(asset.StoragePath, EncryptedBlobPath(asset.StoragePath))

	if err := s.storage.DeleteMirror(MirrorKey(asset.ID)); err != nil {
		logrus.WithError(err).WithField("asset_id", asset.ID).Warn("Failed to delete S3 mirror")
	}

	asset.Status = models.AssetStatusRemoved
	if err := s.db.Save(asset).Error; err != nil {
		return fmt.Errorf("failed to mark asset removed: %w", err)
	}

	if err := s.db.Delete(asset).Error; err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	return nil
}

// GetAssetForStreaming loads an asset including key material, without owner
// preloads, for the delivery path.
func (s *AssetService) GetAssetForStreaming(id uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	if err := s.db.First(&asset, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &asset, nil
}

func (s *AssetService) getOwned(assetID, userID uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	if err := s.db.First(&asset, "id = ?", assetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if asset.OwnerID != userID {
		return nil, ErrNotOwner
	}

	return &asset, nil
}
