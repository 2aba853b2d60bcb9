// internal/services/storage_service.go
package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vaultstream/drm-backend/internal/config"
)

// StorageService writes uploads to the local uploads directory and, when AWS
// credentials are configured, mirrors encrypted blobs to S3 as a durability
// backstop next to the IPFS pin.
type StorageService struct {
	s3Client *s3.S3
	cfg      *config.Config
}

var allowedUploadExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".webm": true,
	".mp3": true, ".wav": true, ".flac": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".pdf": true, ".txt": true, ".md": true,
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	if cfg.AWS.AccessKeyID == "" {
		// Local-only mode for development
		return &StorageService{cfg: cfg}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		cfg:      cfg,
	}, nil
}

// SaveUpload validates and writes a multipart upload into the uploads
// directory, returning the stored path.
func (s *StorageService) SaveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	if s.cfg.Storage.MaxFileSize > 0 && header.Size > s.cfg.Storage.MaxFileSize {
		return "", fmt.Errorf("file size %d bytes exceeds maximum allowed size %d bytes",
			header.Size, s.cfg.Storage.MaxFileSize)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedUploadExtensions[ext] {
		return "", fmt.Errorf("file type %s is not allowed", ext)
	}

	if err := os.MkdirAll(s.cfg.Storage.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}

	path := filepath.Join(s.cfg.Storage.UploadDir, s.generateFileName(header.Filename))

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}

	_, err = io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing upload: %w", err)
	}

	return path, nil
}

// MirrorEncrypted copies the encrypted blob to S3. Best effort: the IPFS pin
// is the primary copy, so a mirror failure is logged rather than failing the
// securing flow.
func (s *StorageService) MirrorEncrypted(path, key string) {
	if s.s3Client == nil {
		return
	}

	file, err := os.Open(path)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Cannot open encrypted blob for S3 mirror")
		return
	}
	defer file.Close()

	_, err = s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AWS.S3Bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to mirror encrypted blob to S3")
		return
	}

	logrus.WithField("key", key).Info("Encrypted blob mirrored to S3")
}

// DeleteMirror removes the mirrored blob; a no-op without S3 configured.
func (s *StorageService) DeleteMirror(key string) error {
	if s.s3Client == nil {
		return nil
	}

	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.AWS.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete mirrored blob: %w", err)
	}

	return nil
}

// RemoveLocal deletes local files, ignoring ones already gone.
func (s *StorageService) RemoveLocal(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).WithField("path", path).Warn("Failed to remove local file")
		}
	}
}

// MirrorKey derives the S3 object key for an asset's encrypted blob.
func MirrorKey(assetID uuid.UUID) string {
	return "encrypted/" + assetID.String() + ".enc"
}

func (s *StorageService) generateFileName(originalName string) string {
	id := uuid.New()
	ext := strings.ToLower(filepath.Ext(originalName))
	timestamp := time.Now().Format("20060102")
	return fmt.Sprintf("%s_%s%s", timestamp, id.String()[:8], ext)
}
