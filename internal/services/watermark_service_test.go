// internal/services/watermark_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vaultstream/drm-backend/internal/config"
	"github.com/vaultstream/drm-backend/internal/models"
)

func TestWatermarkSupportsIsCategoryOnly(t *testing.T) {
	disabled := NewWatermarkService(config.WatermarkConfig{FFmpegPath: "ffmpeg", Enabled: false})

	// Supports must not hide availability problems: a disabled filter still
	// claims the video category so callers reach Available and reject.
	assert.True(t, disabled.Supports(models.ContentTypeVideo))
	assert.False(t, disabled.Supports(models.ContentTypeAudio))
	assert.False(t, disabled.Supports(models.ContentTypeImage))
	assert.False(t, disabled.Supports(models.ContentTypeText))

	assert.ErrorIs(t, disabled.Available(), ErrTransformUnavailable)
}

func TestWatermarkAvailableMissingBinary(t *testing.T) {
	svc := NewWatermarkService(config.WatermarkConfig{FFmpegPath: "/nonexistent/ffmpeg", Enabled: true})
	assert.ErrorIs(t, svc.Available(), ErrTransformUnavailable)
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "0x1234ab", sanitizeLabel("0x1234ab"))
	assert.Equal(t, "abc", sanitizeLabel(`a'b:c%\,;"[]`))
}
