// internal/services/errors.go
package services

import "errors"

// Sentinel errors shared across the streaming core. Handlers map these onto
// HTTP statuses; infrastructure failures surface as 500 and must never leave
// partially written artifacts behind.
var (
	ErrAssetNotFound        = errors.New("asset not found")
	ErrNotOwner             = errors.New("not the asset owner")
	ErrNotVerified          = errors.New("asset is not verified original")
	ErrAssetNotMinted       = errors.New("asset is not minted on the blockchain")
	ErrSourceBlobMissing    = errors.New("encrypted source blob missing")
	ErrEncryptionFailed     = errors.New("encryption failed")
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrKeyMaterialMissing   = errors.New("asset has no encryption key material")
	ErrTransformUnavailable = errors.New("watermarking service unavailable")
	ErrDuplicateTransaction = errors.New("license already recorded for this transaction")
	ErrEngineUnavailable    = errors.New("no originality engine for content type")
)
