// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the primary key client side, which works the same on
// postgres and the sqlite test databases.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type ContentType string

const (
	ContentTypeVideo ContentType = "video"
	ContentTypeAudio ContentType = "audio"
	ContentTypeImage ContentType = "image"
	ContentTypeText  ContentType = "text"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeVideo, ContentTypeAudio, ContentTypeImage, ContentTypeText:
		return true
	}
	return false
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type AssetStatus string

const (
	AssetStatusActive  AssetStatus = "active"
	AssetStatusRemoved AssetStatus = "removed"
)

type LicenseTier string

const (
	LicenseTierOne   LicenseTier = "license1" // one-time / view-only
	LicenseTierTwo   LicenseTier = "license2" // time-limited (24h)
	LicenseTierThree LicenseTier = "license3" // commercial
	LicenseTierFour  LicenseTier = "license4" // derivative / exclusive
)

func (t LicenseTier) Valid() bool {
	switch t {
	case LicenseTierOne, LicenseTierTwo, LicenseTierThree, LicenseTierFour:
		return true
	}
	return false
}
