// internal/services/ipfs_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vaultstream/drm-backend/internal/config"
)

const pinataPinURL = "https://api.pinata.cloud/pinning/pinFileToIPFS"

// IPFSService pins encrypted blobs through the Pinata API. Without
// credentials it falls back to a simulated content address so local
// development does not require an IPFS node.
type IPFSService struct {
	cfg    config.IPFSConfig
	pinURL string
	client *http.Client
}

func NewIPFSService(cfg config.IPFSConfig) *IPFSService {
	return &IPFSService{
		cfg:    cfg,
		pinURL: pinataPinURL,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Pin uploads the file and returns its content address.
func (s *IPFSService) Pin(ctx context.Context, filePath string) (string, error) {
	if s.cfg.PinataAPIKey == "" || s.cfg.PinataSecretKey == "" {
		logrus.Warn("No Pinata credentials configured, using simulated CID")
		return fmt.Sprintf("QmSimulated%d", time.Now().UnixNano()), nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening blob for pinning: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.pinURL, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("pinata_api_key", s.cfg.PinataAPIKey)
	req.Header.Set("pinata_secret_api_key", s.cfg.PinataSecretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinning to IPFS: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pinata returned status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding pinata response: %w", err)
	}
	if result.IpfsHash == "" {
		return "", fmt.Errorf("pinata response missing IpfsHash")
	}

	return result.IpfsHash, nil
}
