// internal/services/testdb_test.go
package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vaultstream/drm-backend/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Asset{},
		&models.LicenseGrant{},
	))

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username, wallet string) *models.User {
	t.Helper()

	user := &models.User{
		Username:      username,
		Email:         username + "@example.com",
		WalletAddress: wallet,
		Status:        models.UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestAsset(t *testing.T, db *gorm.DB, owner *models.User, mutate func(*models.Asset)) *models.Asset {
	t.Helper()

	asset := &models.Asset{
		OwnerID:             owner.ID,
		Title:               "Test Asset",
		Description:         "An asset for testing",
		ContentType:         models.ContentTypeVideo,
		OriginalFileName:    "clip.mp4",
		StoragePath:         "/tmp/does-not-matter.mp4",
		OriginalityVerified: true,
		Status:              models.AssetStatusActive,
	}
	if mutate != nil {
		mutate(asset)
	}
	require.NoError(t, db.Create(asset).Error)
	return asset
}
