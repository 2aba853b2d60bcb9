// internal/services/license_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vaultstream/drm-backend/internal/models"
	"github.com/vaultstream/drm-backend/internal/utils"
)

// LicenseService records license purchases synced from chain transactions
// and serves a principal's grants. These local records are the resolver's
// fast path and the only place time-bounded licenses exist.
type LicenseService struct {
	db *gorm.DB
}

type SyncLicenseRequest struct {
	AssetID         uuid.UUID          `json:"asset_id" validate:"required"`
	TransactionHash string             `json:"transaction_hash" validate:"required,tx_hash"`
	LicenseTier     models.LicenseTier `json:"license_tier" validate:"required,oneof=license1 license2 license3 license4"`
}

func NewLicenseService(db *gorm.DB) *LicenseService {
	return &LicenseService{db: db}
}

// SyncLicense records a grant for a purchase transaction. A transaction hash
// may produce at most one grant; duplicates are rejected. Tier license2 is
// the time-limited tier and expires 24 hours after purchase.
func (s *LicenseService) SyncLicense(userID uuid.UUID, req *SyncLicenseRequest) (*models.LicenseGrant, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var asset models.Asset
	if err := s.db.First(&asset, "id = ?", req.AssetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	// An unminted asset has no on-chain registration to purchase against.
	if !asset.Minted() {
		return nil, ErrAssetNotMinted
	}

	now := time.Now()
	grant := &models.LicenseGrant{
		UserID:          userID,
		AssetID:         asset.ID,
		TransactionHash: req.TransactionHash,
		LicenseTier:     req.LicenseTier,
		PurchasedAt:     now,
		ExpiresAt:       tierExpiry(req.LicenseTier, now),
		Active:          true,
	}

	if err := s.db.Create(grant).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("failed to record license grant: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"asset_id": asset.ID,
		"tier":     req.LicenseTier,
		"tx":       req.TransactionHash,
	}).Info("License grant recorded")

	return grant, nil
}

// GetUserLicenses returns the principal's grants, newest first.
func (s *LicenseService) GetUserLicenses(userID uuid.UUID) ([]models.LicenseGrant, error) {
	var grants []models.LicenseGrant
	if err := s.db.Where("user_id = ?", userID).
		Preload("Asset").
		Order("created_at DESC").
		Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch licenses: %w", err)
	}
	return grants, nil
}

// tierExpiry maps a license tier to its grant lifetime; nil means unbounded.
func tierExpiry(tier models.LicenseTier, purchasedAt time.Time) *time.Time {
	if tier == models.LicenseTierTwo {
		expiry := purchasedAt.Add(24 * time.Hour)
		return &expiry
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
