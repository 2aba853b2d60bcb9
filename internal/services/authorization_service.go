// internal/services/authorization_service.go
package services

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vaultstream/drm-backend/internal/models"
)

type DenyReason string

const (
	DenyNoIdentity         DenyReason = "no_identity"
	DenyNotVerified        DenyReason = "not_verified"
	DenyExpired            DenyReason = "expired"
	DenyNotMinted          DenyReason = "not_minted"
	DenyNoLicense          DenyReason = "no_license"
	DenyVerificationFailed DenyReason = "verification_failed"
)

// HTTPStatus maps a deny reason onto the response status: missing identity is
// 401, license problems are 403, oracle failure is 500 (fail closed).
func (r DenyReason) HTTPStatus() int {
	switch r {
	case DenyNoIdentity:
		return http.StatusUnauthorized
	case DenyVerificationFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusForbidden
	}
}

// Decision is the outcome of an authorization resolution.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Message string
}

func allowDecision() Decision {
	return Decision{Allowed: true}
}

func denyDecision(reason DenyReason, message string) Decision {
	return Decision{Reason: reason, Message: message}
}

// LedgerOracle is the authoritative external source of truth for license
// ownership. It only answers lifetime license queries; time-bounded licenses
// exist solely in the local grant records.
type LedgerOracle interface {
	HasLicense(ctx context.Context, walletAddress, tokenID string) (bool, error)
}

// AuthorizationService resolves whether a principal may view an asset. It is
// stateless apart from its two data reads (local grants, ledger oracle) and
// safe for concurrent use.
type AuthorizationService struct {
	db     *gorm.DB
	ledger LedgerOracle
	now    func() time.Time
}

func NewAuthorizationService(db *gorm.DB, ledger LedgerOracle) *AuthorizationService {
	return &AuthorizationService{
		db:     db,
		ledger: ledger,
		now:    time.Now,
	}
}

// Authorize runs the resolution chain, short-circuiting on the first
// conclusive answer:
//
//  1. unverified assets are never deliverable
//  2. the owner streams without a license
//  3. non-owners need a linked wallet
//  4. a currently valid local grant allows; a grant set that is entirely
//     expired denies without consulting the ledger (local records are the
//     privileged source for expiry semantics)
//  5. otherwise fall back to the ledger oracle, which requires the asset to
//     be minted; oracle errors deny (fail closed, never open)
func (s *AuthorizationService) Authorize(ctx context.Context, user *models.User, asset *models.Asset) Decision {
	if !asset.OriginalityVerified {
		return denyDecision(DenyNotVerified, "Asset is not verified as original content")
	}

	if asset.OwnerID == user.ID {
		return allowDecision()
	}

	if !user.HasWallet() {
		return denyDecision(DenyNoIdentity, "User wallet not connected")
	}

	var grants []models.LicenseGrant
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND asset_id = ? AND active = ?", user.ID, asset.ID, true).
		Find(&grants).Error
	if err != nil {
		logrus.WithError(err).WithField("asset_id", asset.ID).Error("License grant lookup failed")
		return denyDecision(DenyVerificationFailed, "License verification failed")
	}

	if len(grants) > 0 {
		now := s.now()
		for i := range grants {
			if !grants[i].Expired(now) {
				return allowDecision()
			}
		}
		// Holding only expired grants is authoritative: no ledger retry.
		return denyDecision(DenyExpired, "License expired. Please renew.")
	}

	if !asset.Minted() {
		return denyDecision(DenyNotMinted, "Asset not minted on blockchain")
	}

	hasLicense, err := s.ledger.HasLicense(ctx, user.WalletAddress, asset.BlockchainID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"asset_id": asset.ID,
			"wallet":   user.WalletAddress,
		}).Error("Ledger license verification failed")
		return denyDecision(DenyVerificationFailed, "License verification failed")
	}

	if !hasLicense {
		return denyDecision(DenyNoLicense, "No valid license found on blockchain or local DB")
	}

	return allowDecision()
}
