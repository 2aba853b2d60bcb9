// internal/services/watermark_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vaultstream/drm-backend/internal/config"
	"github.com/vaultstream/drm-backend/internal/models"
)

// WatermarkOutputContentType is the fixed output format of the transform.
// The transcoded length is unknown in advance, so the watermark path cannot
// honor byte ranges and declares itself non-seekable.
const WatermarkOutputContentType = "video/mp4"

// WatermarkService pipes a plaintext video through an external ffmpeg
// drawtext filter, burning the licensee's identity into the frame.
type WatermarkService struct {
	ffmpegPath string
	enabled    bool
}

func NewWatermarkService(cfg config.WatermarkConfig) *WatermarkService {
	return &WatermarkService{
		ffmpegPath: cfg.FFmpegPath,
		enabled:    cfg.Enabled,
	}
}

// Supports reports whether the transform applies to a content category.
// Whether the filter can actually run is Available's concern; a request for a
// supported category with an unavailable filter must be rejected, not served
// unwatermarked.
func (s *WatermarkService) Supports(contentType models.ContentType) bool {
	return contentType == models.ContentTypeVideo
}

// Available checks that the external filter binary can be invoked. Callers
// must reject the request when it cannot; silently serving an unwatermarked
// stream would downgrade the protection the client asked for.
func (s *WatermarkService) Available() error {
	if !s.enabled {
		return ErrTransformUnavailable
	}
	if _, err := exec.LookPath(s.ffmpegPath); err != nil {
		return fmt.Errorf("%w: %v", ErrTransformUnavailable, err)
	}
	return nil
}

// Stream transcodes inputPath with the overlay label and writes fragmented
// MP4 to w. Returns once ffmpeg exits or ctx is cancelled.
func (s *WatermarkService) Stream(ctx context.Context, inputPath, label string, w io.Writer) error {
	if err := s.Available(); err != nil {
		return err
	}

	filter := fmt.Sprintf(
		"drawtext=text='Licensed to %s...':fontsize=24:fontcolor=white:x=10:y=h-th-10:box=1:boxcolor=black@0.5:alpha=0.7",
		sanitizeLabel(label),
	)

	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-i", inputPath,
		"-vf", filter,
		"-preset", "ultrafast",
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4",
		"pipe:1",
	)

	var stderr bytes.Buffer
	cmd.Stdout = w
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// Client went away; not a transform failure.
			return ctx.Err()
		}
		logrus.WithError(err).WithField("stderr", tail(stderr.String(), 512)).Error("Watermark transcode failed")
		return fmt.Errorf("%w: %v", ErrTransformUnavailable, err)
	}

	return nil
}

// sanitizeLabel strips characters with meaning inside a drawtext expression.
func sanitizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\'', '"', ':', '\\', '%', ',', '[', ']', ';':
			return -1
		}
		return r
	}, label)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
