// internal/services/originality_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vaultstream/drm-backend/internal/config"
	"github.com/vaultstream/drm-backend/internal/models"
)

// OriginalityResult is the normalized verdict consumed by the securing flow
// and the marketplace filter. Score is 0-100, higher is more original.
type OriginalityResult struct {
	IsOriginal bool         `json:"is_original"`
	Score      int          `json:"score"`
	Details    models.JSONB `json:"details,omitempty"`
}

// OriginalityService talks to the per-content-type fingerprinting engines and
// normalizes their heterogeneous responses into a single originality score.
type OriginalityService struct {
	engines config.EngineConfig
	client  *http.Client
}

func NewOriginalityService(cfg config.EngineConfig) *OriginalityService {
	return &OriginalityService{
		engines: cfg,
		client:  &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}
}

// scorer converts one engine's raw response into the shared verdict/score
// pair. Every engine reports similarity or distance on its own scale and
// polarity; each scorer inverts or rescales accordingly.
type scorer func(raw map[string]interface{}) (bool, int)

var scorers = map[models.ContentType]scorer{
	// Audio reports { status: "ORIGINAL"|"DUPLICATE", top_score: similarity% }.
	models.ContentTypeAudio: func(raw map[string]interface{}) (bool, int) {
		similarity := rawFloat(raw, "top_score", 0)
		return rawString(raw, "status") == "ORIGINAL", clampScore(100 - similarity)
	},

	// Image reports a Hamming distance; 0 is an exact match, -1 means no
	// match at all. Distances 0-32 scale to 0-100.
	models.ContentTypeImage: func(raw map[string]interface{}) (bool, int) {
		distance := rawFloat(raw, "distance", 100)
		score := clampScore(distance / 32 * 100)
		if distance == -1 {
			score = 100
		}
		return rawString(raw, "status") == "ORIGINAL", score
	},

	// Video reports visual_score in 0.0-1.0 and audio_score in 0-100, both
	// similarities; the composite takes the worse of the two.
	models.ContentTypeVideo: func(raw map[string]interface{}) (bool, int) {
		visual := rawFloat(raw, "visual_score", 0) * 100
		audio := rawFloat(raw, "audio_score", 0)
		return rawString(raw, "status") == "Original", clampScore(100 - math.Max(visual, audio))
	},

	// Text reports similarity_score in 0.0-1.0.
	models.ContentTypeText: func(raw map[string]interface{}) (bool, int) {
		similarity := rawFloat(raw, "similarity_score", 0) * 100
		return rawString(raw, "status") == "Original", clampScore(100 - similarity)
	},
}

// Normalize converts a raw engine response for the given content type into
// the shared originality verdict.
func Normalize(raw map[string]interface{}, contentType models.ContentType) (*OriginalityResult, error) {
	score, ok := scorers[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEngineUnavailable, contentType)
	}

	isOriginal, value := score(raw)
	return &OriginalityResult{
		IsOriginal: isOriginal,
		Score:      value,
		Details:    models.JSONB(raw),
	}, nil
}

// Check submits the file to the engine for its content type and returns the
// normalized verdict.
func (s *OriginalityService) Check(ctx context.Context, filePath string, contentType models.ContentType) (*OriginalityResult, error) {
	engineURL := s.engines.EngineURL(string(contentType))
	if engineURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrEngineUnavailable, contentType)
	}

	raw, err := s.postFile(ctx, engineURL+"/check", filePath, nil)
	if err != nil {
		return nil, fmt.Errorf("originality check failed: %w", err)
	}

	return Normalize(raw, contentType)
}

// Register submits a verified-original file so the engine fingerprints it
// against future uploads. Registration failure is logged but never blocks
// the securing flow.
func (s *OriginalityService) Register(ctx context.Context, filePath string, contentType models.ContentType, assetID string) {
	engineURL := s.engines.EngineURL(string(contentType))
	if engineURL == "" {
		logrus.WithField("content_type", contentType).Warn("No originality engine for type, skipping registration")
		return
	}

	// Engines disagree on the id field name; send all three.
	fields := map[string]string{
		"content_id": assetID,
		"label":      assetID,
		"id":         assetID,
	}

	if _, err := s.postFile(ctx, engineURL+"/register", filePath, fields); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"asset_id":     assetID,
			"content_type": contentType,
		}).Error("Failed to register asset fingerprint")
		return
	}

	logrus.WithField("asset_id", assetID).Info("Asset fingerprint registered with originality engine")
}

func (s *OriginalityService) postFile(ctx context.Context, url, filePath string, fields map[string]string) (map[string]interface{}, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
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
		for key, value := range fields {
			if err := form.WriteField(key, value); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, body)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding engine response: %w", err)
	}

	return raw, nil
}

func rawFloat(raw map[string]interface{}, key string, fallback float64) float64 {
	if value, ok := raw[key]; ok {
		switch v := value.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		}
	}
	return fallback
}

func rawString(raw map[string]interface{}, key string) string {
	if value, ok := raw[key].(string); ok {
		return value
	}
	return ""
}

func clampScore(value float64) int {
	score := int(math.Round(value))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
