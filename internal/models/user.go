// internal/models/user.go
package models

type User struct {
	BaseModel
	Username      string     `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email         string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	WalletAddress string     `json:"wallet_address,omitempty" gorm:"size:42;index"`
	Status        UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`

	// Relationships
	Assets   []Asset        `json:"assets,omitempty" gorm:"foreignKey:OwnerID"`
	Licenses []LicenseGrant `json:"licenses,omitempty" gorm:"foreignKey:UserID"`
}

// HasWallet reports whether the user has a linked external identity.
// Streaming as a non-owner requires one, since the ledger is keyed by
// wallet address.
func (u *User) HasWallet() bool {
	return u.WalletAddress != ""
}
