// internal/services/artifact_cache.go
package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vaultstream/drm-backend/internal/models"
)

// decrypter is the slice of CipherService the cache needs.
type decrypter interface {
	DecryptFile(srcPath, dstPath, keyHex, ivHex string) error
}

// ArtifactCache materializes decrypted working copies of encrypted assets.
// Each asset is decrypted at most once; the plaintext file is shared by all
// subsequent readers until explicitly invalidated. Creation of an entry is
// coalesced per asset id, reads of an existing entry take no lock.
type ArtifactCache struct {
	dir    string
	cipher decrypter

	mu       sync.Mutex
	inflight map[uuid.UUID]*inflightDecrypt
}

type inflightDecrypt struct {
	done chan struct{}
	path string
	err  error
}

func NewArtifactCache(dir string, cipher decrypter) *ArtifactCache {
	return &ArtifactCache{
		dir:      dir,
		cipher:   cipher,
		inflight: make(map[uuid.UUID]*inflightDecrypt),
	}
}

// EntryPath derives the canonical plaintext path for an asset. The original
// extension is kept so players and MIME sniffing behave.
func (c *ArtifactCache) EntryPath(assetID uuid.UUID, originalFileName string) string {
	ext := strings.ToLower(filepath.Ext(originalFileName))
	return filepath.Join(c.dir, fmt.Sprintf("stream-%s%s", assetID, ext))
}

// Materialize returns the plaintext path for the asset, decrypting the
// encrypted blob on first access. Concurrent first accesses share a single
// decryption pass. A decrypt failure leaves no partial file behind.
func (c *ArtifactCache) Materialize(asset *models.Asset) (string, error) {
	if !asset.HasKeyMaterial() {
		return "", ErrKeyMaterialMissing
	}

	target := c.EntryPath(asset.ID, asset.OriginalFileName)

	// Fast path: the entry is only ever published by rename, so existence
	// means complete.
	if fileExists(target) {
		return target, nil
	}

	c.mu.Lock()
	if call, ok := c.inflight[asset.ID]; ok {
		c.mu.Unlock()
		<-call.done
		return call.path, call.err
	}
	call := &inflightDecrypt{done: make(chan struct{})}
	c.inflight[asset.ID] = call
	c.mu.Unlock()

	call.path, call.err = c.materialize(asset, target)
	close(call.done)

	c.mu.Lock()
	delete(c.inflight, asset.ID)
	c.mu.Unlock()

	return call.path, call.err
}

func (c *ArtifactCache) materialize(asset *models.Asset, target string) (string, error) {
	// Recheck after winning the in-flight slot: a previous call may have
	// published the entry between our existence check and now.
	if fileExists(target) {
		return target, nil
	}

	encryptedPath := EncryptedBlobPath(asset.StoragePath)
	if !fileExists(encryptedPath) {
		return "", ErrSourceBlobMissing
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating cache dir: %v", ErrDecryptionFailed, err)
	}

	// Decrypt to a scratch name and publish atomically so readers never see
	// a half-written plaintext.
	partial := target + ".part"
	if err := c.cipher.DecryptFile(encryptedPath, partial, asset.EncryptionKey, asset.IV); err != nil {
		return "", err
	}
	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("%w: publishing plaintext: %v", ErrDecryptionFailed, err)
	}

	logrus.WithFields(logrus.Fields{
		"asset_id": asset.ID,
		"path":     target,
	}).Info("Materialized decrypted artifact")

	return target, nil
}

// Invalidate removes the plaintext entry for an asset. Called on asset
// deletion; missing entries are not an error.
func (c *ArtifactCache) Invalidate(assetID uuid.UUID, originalFileName string) error {
	err := os.Remove(c.EntryPath(assetID, originalFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// EncryptedBlobPath maps an asset's storage path to its encrypted blob.
func EncryptedBlobPath(storagePath string) string {
	if strings.HasSuffix(storagePath, ".enc") {
		return storagePath
	}
	return storagePath + ".enc"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
