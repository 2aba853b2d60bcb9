// internal/services/authorization_service_test.go
package services

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vaultstream/drm-backend/internal/models"
)

type fakeOracle struct {
	result bool
	err    error
	calls  int
}

func (f *fakeOracle) HasLicense(ctx context.Context, walletAddress, tokenID string) (bool, error) {
	f.calls++
	return f.result, f.err
}

func newTestAuthz(db *gorm.DB, oracle LedgerOracle, now time.Time) *AuthorizationService {
	svc := NewAuthorizationService(db, oracle)
	svc.now = func() time.Time { return now }
	return svc
}

func grantFor(t *testing.T, db *gorm.DB, user *models.User, asset *models.Asset, expiresAt *time.Time) {
	t.Helper()

	require.NoError(t, db.Create(&models.LicenseGrant{
		UserID:          user.ID,
		AssetID:         asset.ID,
		TransactionHash: fmt.Sprintf("0x%064x", time.Now().UnixNano()),
		LicenseTier:     models.LicenseTierOne,
		PurchasedAt:     time.Now(),
		ExpiresAt:       expiresAt,
		Active:          true,
	}).Error)
}

func TestAuthorizeUnverifiedAssetDenied(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	asset := createTestAsset(t, db, owner, func(a *models.Asset) {
		a.OriginalityVerified = false
	})

	svc := newTestAuthz(db, &fakeOracle{}, time.Now())

	// Even the owner cannot stream an unverified asset.
	decision := svc.Authorize(context.Background(), owner, asset)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DenyNotVerified, decision.Reason)
	assert.Equal(t, http.StatusForbidden, decision.Reason.HTTPStatus())
}

func TestAuthorizeOwnerBypassesLicensing(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "") // owner needs no wallet
	asset := createTestAsset(t, db, owner, nil)

	oracle := &fakeOracle{}
	svc := newTestAuthz(db, oracle, time.Now())

	decision := svc.Authorize(context.Background(), owner, asset)
	assert.True(t, decision.Allowed)
	assert.Zero(t, oracle.calls)
}

func TestAuthorizeNoWalletDenied(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	viewer := createTestUser(t, db, "viewer", "")
	asset := createTestAsset(t, db, owner, nil)

	svc := newTestAuthz(db, &fakeOracle{}, time.Now())

	decision := svc.Authorize(context.Background(), viewer, asset)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DenyNoIdentity, decision.Reason)
	assert.Equal(t, http.StatusUnauthorized, decision.Reason.HTTPStatus())
}

func TestAuthorizeValidLocalGrant(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	viewer := createTestUser(t, db, "viewer", "0x2222222222222222222222222222222222222222")
	asset := createTestAsset(t, db, owner, nil)

	now := time.Now()
	future := now.Add(time.Hour)
	grantFor(t, db, viewer, asset, &future)

	oracle := &fakeOracle{}
	svc := newTestAuthz(db, oracle, now)

	decision := svc.Authorize(context.Background(), viewer, asset)
	assert.True(t, decision.Allowed)
	assert.Zero(t, oracle.calls, "local grant must not consult the ledger")
}

func TestAuthorizeLifetimeGrant(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	viewer := createTestUser(t, db, "viewer", "0x2222222222222222222222222222222222222222")
	asset := createTestAsset(t, db, owner, nil)

	grantFor(t, db, viewer, asset, nil)

	svc := newTestAuthz(db, &fakeOracle{}, time.Now().Add(10*365*24*time.Hour))

	decision := svc.Authorize(context.Background(), viewer, asset)
	assert.True(t, decision.Allowed)
}

func TestAuthorizeExpiredGrantDeniesWithoutLedger(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	viewer := createTestUser(t, db, "viewer", "0x2222222222222222222222222222222222222222")
	asset := createTestAsset(t, db, owner, func(a *models.Asset) {
		a.BlockchainID = "7"
	})

	now := time.Now()
	past := now.Add(-time.Hour)
	grantFor(t, db, viewer, asset, &past)

	// The oracle would say yes, but expired local records are authoritative.
	oracle := &fakeOracle{result: true}
	svc := newTestAuthz(db, oracle, now)

	decision := svc.Authorize(context.Background(), viewer, asset)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DenyExpired, decision.Reason)
	assert.Zero(t, oracle.calls)
}

func TestAuthorizeOneValidAmongExpiredGrants(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	viewer := createTestUser(t, db, "viewer", "0x2222222222222222222222222222222222222222")
	asset := createTestAsset(t, db, owner, nil)

	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	grantFor(t, db, viewer, asset, &past)
	grantFor(t, db, viewer, asset, &future)

	svc := newTestAuthz(db, &fakeOracle{}, now)

	decision := svc.Authorize(context.Background(), viewer, asset)
	assert.True(t, decision.Allowed, "a renewal must authorize despite older expired grants")
}

func TestAuthorizeUnmintedAssetDenied(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	viewer := createTestUser(t, db, "viewer", "0x2222222222222222222222222222222222222222")
	asset := createTestAsset(t, db, owner, nil) // no BlockchainID

	oracle := &fakeOracle{}
	svc := newTestAuthz(db, oracle, time.Now())

	decision := svc.Authorize(context.Background(), viewer, asset)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DenyNotMinted, decision.Reason)
	assert.Zero(t, oracle.calls)
}

func TestAuthorizeLedgerFallback(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "owner", "0x1111111111111111111111111111111111111111")
	viewer := createTestUser(t, db, "viewer", "0x2222222222222222222222222222222222222222")
	asset := createTestAsset(t, db, owner, func(a *models.Asset) {
		a.BlockchainID = "42"
	})

	t.Run("ledger confirms license", func(t *testing.T) {
		oracle := &fakeOracle{result: true}
		svc := newTestAuthz(db, oracle, time.Now())

		decision := svc.Authorize(context.Background(), viewer, asset)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 1, oracle.calls)
	})

	t.Run("ledger denies license", func(t *testing.T) {
		oracle := &fakeOracle{result: false}
		svc := newTestAuthz(db, oracle, time.Now())

		decision := svc.Authorize(context.Background(), viewer, asset)
		assert.False(t, decision.Allowed)
		assert.Equal(t, DenyNoLicense, decision.Reason)
	})

	t.Run("ledger failure fails closed", func(t *testing.T) {
		oracle := &fakeOracle{result: true, err: fmt.Errorf("rpc timeout")}
		svc := newTestAuthz(db, oracle, time.Now())

		decision := svc.Authorize(context.Background(), viewer, asset)
		assert.False(t, decision.Allowed)
		assert.Equal(t, DenyVerificationFailed, decision.Reason)
		assert.Equal(t, http.StatusInternalServerError, decision.Reason.HTTPStatus())
	})
}
