// internal/services/cipher_service_test.go
package services

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validKeyMaterial(t *testing.T) (string, string) {
	t.Helper()
	key := make([]byte, cipherKeySize)
	iv := make([]byte, cipherIVSize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	_, err = rand.Read(iv)
	require.NoError(t, err)
	return hex.EncodeToString(key), hex.EncodeToString(iv)
}

func TestCipherRoundTrip(t *testing.T) {
	svc := NewCipherService()

	sizes := []int{0, 1, 15, 16, 17, 31, 32, 1000, cipherChunkSize, cipherChunkSize + 7, 3*cipherChunkSize + 1}
	for _, size := range sizes {
		plaintext := make([]byte, size)
		_, err := rand.Read(plaintext)
		require.NoError(t, err)

		var encrypted bytes.Buffer
		keyHex, ivHex, err := svc.Encrypt(&encrypted, bytes.NewReader(plaintext))
		require.NoError(t, err, "size %d", size)

		assert.Len(t, keyHex, cipherKeySize*2)
		assert.Len(t, ivHex, cipherIVSize*2)

		// CBC with PKCS#7 always pads, so ciphertext is strictly longer.
		assert.Greater(t, encrypted.Len(), size, "size %d", size)
		assert.Zero(t, encrypted.Len()%16, "size %d", size)

		var decrypted bytes.Buffer
		err = svc.Decrypt(&decrypted, bytes.NewReader(encrypted.Bytes()), keyHex, ivHex)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, plaintext, decrypted.Bytes(), "size %d", size)
	}
}

func TestCipherKeyUniquePerEncrypt(t *testing.T) {
	svc := NewCipherService()

	var a, b bytes.Buffer
	keyA, ivA, err := svc.Encrypt(&a, bytes.NewReader([]byte("same input")))
	require.NoError(t, err)
	keyB, ivB, err := svc.Encrypt(&b, bytes.NewReader([]byte("same input")))
	require.NoError(t, err)

	assert.NotEqual(t, keyA, keyB)
	assert.NotEqual(t, ivA, ivB)
	assert.NotEqual(t, a.Bytes(), b.Bytes())
}

func TestDecryptRejectsBadKeyMaterial(t *testing.T) {
	svc := NewCipherService()
	keyHex, ivHex := validKeyMaterial(t)

	ciphertext := make([]byte, 32)

	cases := []struct {
		name string
		key  string
		iv   string
	}{
		{"short key", keyHex[:16], ivHex},
		{"short iv", keyHex, ivHex[:8]},
		{"non-hex key", "zz" + keyHex[2:], ivHex},
		{"empty key", "", ivHex},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Decrypt(&bytes.Buffer{}, bytes.NewReader(ciphertext), tc.key, tc.iv)
			assert.ErrorIs(t, err, ErrDecryptionFailed)
		})
	}
}

func TestDecryptRejectsMalformedCiphertext(t *testing.T) {
	svc := NewCipherService()
	keyHex, ivHex := validKeyMaterial(t)

	t.Run("not block aligned", func(t *testing.T) {
		err := svc.Decrypt(&bytes.Buffer{}, bytes.NewReader(make([]byte, 10)), keyHex, ivHex)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("empty", func(t *testing.T) {
		err := svc.Decrypt(&bytes.Buffer{}, bytes.NewReader(nil), keyHex, ivHex)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("invalid padding", func(t *testing.T) {
		// Encrypt a block whose final byte is zero without adding padding, so
		// the decrypted block carries a pad length outside 1..16.
		key, _ := hex.DecodeString(keyHex)
		iv, _ := hex.DecodeString(ivHex)
		block, err := aes.NewCipher(key)
		require.NoError(t, err)

		raw := make([]byte, aes.BlockSize)
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(raw, raw)

		err = svc.Decrypt(&bytes.Buffer{}, bytes.NewReader(raw), keyHex, ivHex)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})
}

func TestEncryptFileRoundTrip(t *testing.T) {
	svc := NewCipherService()
	dir := t.TempDir()

	plaintext := []byte("uploaded asset contents")
	src := filepath.Join(dir, "upload.mp4")
	require.NoError(t, os.WriteFile(src, plaintext, 0o644))

	encrypted := src + ".enc"
	keyHex, ivHex, err := svc.EncryptFile(src, encrypted)
	require.NoError(t, err)
	require.FileExists(t, encrypted)

	decrypted := filepath.Join(dir, "out.mp4")
	require.NoError(t, svc.DecryptFile(encrypted, decrypted, keyHex, ivHex))

	got, err := os.ReadFile(decrypted)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptFileMissingSource(t *testing.T) {
	svc := NewCipherService()
	dir := t.TempDir()

	_, _, err := svc.EncryptFile(filepath.Join(dir, "nope.mp4"), filepath.Join(dir, "out.enc"))
	assert.ErrorIs(t, err, ErrSourceBlobMissing)
	assert.NoFileExists(t, filepath.Join(dir, "out.enc"))
}

func TestDecryptFileRemovesPartialOutput(t *testing.T) {
	svc := NewCipherService()
	dir := t.TempDir()
	keyHex, ivHex := validKeyMaterial(t)

	// Unaligned ciphertext fails mid-stream; the partial output must be gone.
	src := filepath.Join(dir, "bad.enc")
	require.NoError(t, os.WriteFile(src, make([]byte, 100), 0o644))

	dst := filepath.Join(dir, "out.mp4")
	err := svc.DecryptFile(src, dst, keyHex, ivHex)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.NoFileExists(t, dst)
}
