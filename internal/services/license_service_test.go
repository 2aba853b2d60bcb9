// internal/services/license_service_test.go
package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultstream/drm-backend/internal/models"
)

const testTxHash = "0x" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12" + "ab12"

func TestSyncLicenseRecordsGrant(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	buyer := createTestUser(t, db, "buyer", "0x2222222222222222222222222222222222222222")
	asset := createTestAsset(t, db, owner, func(a *models.Asset) {
		a.BlockchainID = "7"
	})

	svc := NewLicenseService(db)

	grant, err := svc.SyncLicense(buyer.ID, &SyncLicenseRequest{
		AssetID:         asset.ID,
		TransactionHash: testTxHash,
		LicenseTier:     models.LicenseTierOne,
	})
	require.NoError(t, err)

	assert.Equal(t, buyer.ID, grant.UserID)
	assert.Equal(t, asset.ID, grant.AssetID)
	assert.True(t, grant.Active)
	assert.Nil(t, grant.ExpiresAt, "license1 is a lifetime grant")
}

func TestSyncLicenseTimeLimitedTier(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	buyer := createTestUser(t, db, "buyer", "0x2222222222222222222222222222222222222222")
	asset := createTestAsset(t, db, owner, func(a *models.Asset) {
		a.BlockchainID = "7"
	})

	svc := NewLicenseService(db)

	grant, err := svc.SyncLicense(buyer.ID, &SyncLicenseRequest{
		AssetID:         asset.ID,
		TransactionHash: testTxHash,
		LicenseTier:     models.LicenseTierTwo,
	})
	require.NoError(t, err)

	require.NotNil(t, grant.ExpiresAt)
	assert.WithinDuration(t, grant.PurchasedAt.Add(24*time.Hour), *grant.ExpiresAt, time.Second)
}

func TestSyncLicenseDuplicateTransaction(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	buyer := createTestUser(t, db, "buyer", "0x2222222222222222222222222222222222222222")
	other := createTestUser(t, db, "other", "0x3333333333333333333333333333333333333333")
	asset := createTestAsset(t, db, owner, func(a *models.Asset) {
		a.BlockchainID = "7"
	})

	svc := NewLicenseService(db)

	req := &SyncLicenseRequest{
		AssetID:         asset.ID,
		TransactionHash: testTxHash,
		LicenseTier:     models.LicenseTierOne,
	}
	_, err := svc.SyncLicense(buyer.ID, req)
	require.NoError(t, err)

	// Replaying the same transaction, even from another user, must fail.
	_, err = svc.SyncLicense(other.ID, req)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestSyncLicenseUnmintedAsset(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	buyer := createTestUser(t, db, "buyer", "0x2222222222222222222222222222222222222222")
	asset := createTestAsset(t, db, owner, nil)

	svc := NewLicenseService(db)

	_, err := svc.SyncLicense(buyer.ID, &SyncLicenseRequest{
		AssetID:         asset.ID,
		TransactionHash: testTxHash,
		LicenseTier:     models.LicenseTierOne,
	})
	assert.ErrorIs(t, err, ErrAssetNotMinted)
}

func TestSyncLicenseValidation(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	buyer := createTestUser(t, db, "buyer", "0x2222222222222222222222222222222222222222")
	asset := createTestAsset(t, db, owner, func(a *models.Asset) {
		a.BlockchainID = "7"
	})

	svc := NewLicenseService(db)

	cases := []struct {
		name string
		req  SyncLicenseRequest
	}{
		{"bad tx hash", SyncLicenseRequest{AssetID: asset.ID, TransactionHash: "0x1234", LicenseTier: models.LicenseTierOne}},
		{"missing tx hash", SyncLicenseRequest{AssetID: asset.ID, LicenseTier: models.LicenseTierOne}},
		{"bad tier", SyncLicenseRequest{AssetID: asset.ID, TransactionHash: testTxHash, LicenseTier: "gold"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SyncLicense(buyer.ID, &tc.req)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), "validation failed"))
		})
	}
}

func TestGetUserLicensesNewestFirst(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	buyer := createTestUser(t, db, "buyer", "0x2222222222222222222222222222222222222222")
	first := createTestAsset(t, db, owner, func(a *models.Asset) { a.BlockchainID = "1" })
	second := createTestAsset(t, db, owner, func(a *models.Asset) { a.BlockchainID = "2" })

	svc := NewLicenseService(db)

	hashA := testTxHash[:len(testTxHash)-1] + "a"
	hashB := testTxHash[:len(testTxHash)-1] + "b"

	_, err := svc.SyncLicense(buyer.ID, &SyncLicenseRequest{
		AssetID: first.ID, TransactionHash: hashA, LicenseTier: models.LicenseTierOne,
	})
	require.NoError(t, err)
	_, err = svc.SyncLicense(buyer.ID, &SyncLicenseRequest{
		AssetID: second.ID, TransactionHash: hashB, LicenseTier: models.LicenseTierOne,
	})
	require.NoError(t, err)

	grants, err := svc.GetUserLicenses(buyer.ID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, grants[0].Asset.ID, grants[0].AssetID, "asset relation must be preloaded")
}
