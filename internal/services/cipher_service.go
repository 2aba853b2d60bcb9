// internal/services/cipher_service.go
package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	cipherKeySize   = 32 // AES-256
	cipherIVSize    = aes.BlockSize
	cipherChunkSize = 32 * 1024
)

// CipherService encrypts and decrypts asset streams with AES-256-CBC and
// PKCS#7 padding. Streams are processed in bounded chunks so memory use is
// independent of file size. Key and IV are generated at encrypt time and
// persisted on the asset as opaque hex strings.
type CipherService struct{}

func NewCipherService() *CipherService {
	return &CipherService{}
}

// Encrypt streams src through the cipher into dst and returns the freshly
// generated key and IV, hex encoded. Any failure invalidates the whole
// output; callers must discard partial writes.
func (s *CipherService) Encrypt(dst io.Writer, src io.Reader) (string, string, error) {
	key := make([]byte, cipherKeySize)
	if _, err := rand.Read(key); err != nil {
		return "", "", fmt.Errorf("%w: generating key: %v", ErrEncryptionFailed, err)
	}

	iv := make([]byte, cipherIVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", "", fmt.Errorf("%w: generating iv: %v", ErrEncryptionFailed, err)
	}

	if err := encryptStream(dst, src, key, iv); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	return hex.EncodeToString(key), hex.EncodeToString(iv), nil
}

// Decrypt streams src through the cipher into dst using previously persisted
// key material. Malformed key/IV or a non-block-aligned ciphertext fails the
// whole operation.
func (s *CipherService) Decrypt(dst io.Writer, src io.Reader, keyHex, ivHex string) error {
	key, iv, err := decodeKeyMaterial(keyHex, ivHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	if err := decryptStream(dst, src, key, iv); err != nil {
		return fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return nil
}

// EncryptFile encrypts srcPath into dstPath, removing the output file when
// the operation fails part way through.
func (s *CipherService) EncryptFile(srcPath, dstPath string) (string, string, error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrSourceBlobMissing, err)
	}
	defer in.Close()

	out, err := os.Create(dstPath)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	keyHex, ivHex, err := s.Encrypt(out, in)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %v", ErrEncryptionFailed, cerr)
	}
	if err != nil {
		os.Remove(dstPath)
		return "", "", err
	}

	return keyHex, ivHex, nil
}

// DecryptFile decrypts srcPath into dstPath, removing the output file when
// the operation fails part way through.
func (s *CipherService) DecryptFile(srcPath, dstPath, keyHex, ivHex string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceBlobMissing, err)
	}
	defer in.Close()

	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	err = s.Decrypt(out, in, keyHex, ivHex)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %v", ErrDecryptionFailed, cerr)
	}
	if err != nil {
		os.Remove(dstPath)
		return err
	}

	return nil
}

func decodeKeyMaterial(keyHex, ivHex string) ([]byte, []byte, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid key encoding: %v", err)
	}
	if len(key) != cipherKeySize {
		return nil, nil, fmt.Errorf("invalid key length %d, want %d", len(key), cipherKeySize)
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid iv encoding: %v", err)
	}
	if len(iv) != cipherIVSize {
		return nil, nil, fmt.Errorf("invalid iv length %d, want %d", len(iv), cipherIVSize)
	}

	return key, iv, nil
}

func encryptStream(dst io.Writer, src io.Reader, key, iv []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	enc := cipher.NewCBCEncrypter(block, iv)

	// Carry keeps sub-block remainders between reads so every CryptBlocks
	// call sees block-aligned input.
	buf := make([]byte, cipherChunkSize+aes.BlockSize)
	carry := 0
	for {
		n, readErr := src.Read(buf[carry:])
		total := carry + n
		aligned := total - total%aes.BlockSize

		if aligned > 0 {
			enc.CryptBlocks(buf[:aligned], buf[:aligned])
			if _, err := dst.Write(buf[:aligned]); err != nil {
				return err
			}
			copy(buf, buf[aligned:total])
		}
		carry = total - aligned

		if readErr == io.EOF {
			// Final PKCS#7 padded block; a full padding block when the
			// plaintext is block aligned.
			pad := aes.BlockSize - carry
			for i := carry; i < aes.BlockSize; i++ {
				buf[i] = byte(pad)
			}
			enc.CryptBlocks(buf[:aes.BlockSize], buf[:aes.BlockSize])
			_, err := dst.Write(buf[:aes.BlockSize])
			return err
		}
		if readErr != nil {
			return readErr
		}
	}
}

func decryptStream(dst io.Writer, src io.Reader, key, iv []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	dec := cipher.NewCBCDecrypter(block, iv)

	buf := make([]byte, cipherChunkSize+aes.BlockSize)
	// The last decrypted block is held back until EOF so its padding can be
	// stripped; everything before it streams straight through.
	hold := make([]byte, 0, aes.BlockSize)
	carry := 0
	for {
		n, readErr := src.Read(buf[carry:])
		total := carry + n
		aligned := total - total%aes.BlockSize

		if aligned > 0 {
			dec.CryptBlocks(buf[:aligned], buf[:aligned])
			if len(hold) > 0 {
				if _, err := dst.Write(hold); err != nil {
					return err
				}
			}
			if aligned > aes.BlockSize {
				if _, err := dst.Write(buf[:aligned-aes.BlockSize]); err != nil {
					return err
				}
			}
			hold = append(hold[:0], buf[aligned-aes.BlockSize:aligned]...)
			copy(buf, buf[aligned:total])
		}
		carry = total - aligned

		if readErr == io.EOF {
			if carry != 0 {
				return errors.New("ciphertext is not block aligned")
			}
			if len(hold) == 0 {
				return errors.New("ciphertext is empty")
			}
			pad := int(hold[aes.BlockSize-1])
			if pad < 1 || pad > aes.BlockSize {
				return errors.New("invalid padding")
			}
			for _, b := range hold[aes.BlockSize-pad:] {
				if int(b) != pad {
					return errors.New("invalid padding")
				}
			}
			_, err := dst.Write(hold[:aes.BlockSize-pad])
			return err
		}
		if readErr != nil {
			return readErr
		}
	}
}
