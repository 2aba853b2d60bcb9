// internal/models/license.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// LicenseGrant is the local record of a purchased license, synced from a chain
// transaction. A (user, asset) pair may hold several grants (renewals); the
// resolver only needs one currently valid grant to authorize.
type LicenseGrant struct {
	BaseModel
	UserID          uuid.UUID   `json:"user_id" gorm:"type:uuid;not null;index:idx_license_grants_user_asset"`
	AssetID         uuid.UUID   `json:"asset_id" gorm:"type:uuid;not null;index:idx_license_grants_user_asset"`
	TransactionHash string      `json:"transaction_hash" gorm:"size:66;not null;uniqueIndex"`
	LicenseTier     LicenseTier `json:"license_tier" gorm:"type:varchar(20);not null"`
	PurchasedAt     time.Time   `json:"purchased_at"`
	ExpiresAt       *time.Time  `json:"expires_at,omitempty"` // nil = lifetime
	Active          bool        `json:"active" gorm:"default:true"`

	// Relationships
	User  User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Asset Asset `json:"asset,omitempty" gorm:"foreignKey:AssetID"`
}

// Expired reports whether the grant carries an expiry that has passed.
func (g *LicenseGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}
