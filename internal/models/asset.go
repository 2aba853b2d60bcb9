// internal/models/asset.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Asset struct {
	BaseModel
	OwnerID          uuid.UUID   `json:"owner_id" gorm:"type:uuid;not null;index"`
	Title            string      `json:"title" gorm:"size:255;not null"`
	Description      string      `json:"description" gorm:"type:text"`
	ContentType      ContentType `json:"content_type" gorm:"type:varchar(20);not null;index"`
	OriginalFileName string      `json:"original_file_name" gorm:"size:255;not null"`

	// StoragePath is the uploaded plaintext on disk; the encrypted blob lives
	// at StoragePath + ".enc" once the asset is secured.
	StoragePath string `json:"-" gorm:"size:512"`
	CID         string `json:"cid,omitempty" gorm:"size:128"`

	// Key material is written exactly once, at secure time, and is never
	// serialized in API responses.
	EncryptionKey string `json:"-" gorm:"size:64"`
	IV            string `json:"-" gorm:"size:32"`

	OriginalityVerified bool  `json:"originality_verified" gorm:"default:false;index"`
	OriginalityScore    int   `json:"originality_score" gorm:"default:0"`
	OriginalityReport   JSONB `json:"-" gorm:"type:jsonb"`

	// On-chain token ID, empty until the asset is minted.
	BlockchainID string `json:"blockchain_id,omitempty" gorm:"size:78;index"`

	LicenseTerms JSONB          `json:"license_terms,omitempty" gorm:"type:jsonb"`
	Tags         pq.StringArray `json:"tags,omitempty" gorm:"type:text[]"`
	Status       AssetStatus    `json:"status" gorm:"type:varchar(20);default:'active';index"`

	// Relationships
	Owner  User           `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Grants []LicenseGrant `json:"-" gorm:"foreignKey:AssetID"`
}

// Secured reports whether the encrypted blob has been published. The secure
// flow is idempotent once the CID is set.
func (a *Asset) Secured() bool {
	return a.CID != ""
}

// Minted reports whether the asset has an on-chain registration; without it
// the ledger oracle cannot be consulted and no license can be purchased.
func (a *Asset) Minted() bool {
	return a.BlockchainID != ""
}

func (a *Asset) HasKeyMaterial() bool {
	return a.EncryptionKey != "" && a.IV != ""
}
