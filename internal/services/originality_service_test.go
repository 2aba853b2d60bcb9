// internal/services/originality_service_test.go
package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultstream/drm-backend/internal/config"
	"github.com/vaultstream/drm-backend/internal/models"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name         string
		contentType  models.ContentType
		raw          map[string]interface{}
		wantOriginal bool
		wantScore    int
	}{
		{
			name:         "audio original",
			contentType:  models.ContentTypeAudio,
			raw:          map[string]interface{}{"status": "ORIGINAL", "top_score": 12.0},
			wantOriginal: true,
			wantScore:    88,
		},
		{
			name:         "audio duplicate",
			contentType:  models.ContentTypeAudio,
			raw:          map[string]interface{}{"status": "DUPLICATE", "top_score": 97.5},
			wantOriginal: false,
			wantScore:    3,
		},
		{
			name:         "image exact match",
			contentType:  models.ContentTypeImage,
			raw:          map[string]interface{}{"status": "DUPLICATE", "distance": 0.0},
			wantOriginal: false,
			wantScore:    0,
		},
		{
			name:         "image near match",
			contentType:  models.ContentTypeImage,
			raw:          map[string]interface{}{"status": "DUPLICATE", "distance": 5.0},
			wantOriginal: false,
			wantScore:    16,
		},
		{
			name:         "image no match",
			contentType:  models.ContentTypeImage,
			raw:          map[string]interface{}{"status": "ORIGINAL", "distance": -1.0},
			wantOriginal: true,
			wantScore:    100,
		},
		{
			name:         "image distance beyond scale clamps",
			contentType:  models.ContentTypeImage,
			raw:          map[string]interface{}{"status": "ORIGINAL", "distance": 60.0},
			wantOriginal: true,
			wantScore:    100,
		},
		{
			name:         "video takes worse of the two signals",
			contentType:  models.ContentTypeVideo,
			raw:          map[string]interface{}{"status": "Original", "visual_score": 0.2, "audio_score": 65.0},
			wantOriginal: true,
			wantScore:    35,
		},
		{
			name:         "video copied",
			contentType:  models.ContentTypeVideo,
			raw:          map[string]interface{}{"status": "Copied", "visual_score": 0.98, "audio_score": 10.0},
			wantOriginal: false,
			wantScore:    2,
		},
		{
			name:         "text original",
			contentType:  models.ContentTypeText,
			raw:          map[string]interface{}{"status": "Original", "similarity_score": 0.07},
			wantOriginal: true,
			wantScore:    93,
		},
		{
			name:         "missing fields use defaults",
			contentType:  models.ContentTypeAudio,
			raw:          map[string]interface{}{},
			wantOriginal: false,
			wantScore:    100,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Normalize(tc.raw, tc.contentType)
			require.NoError(t, err)
			assert.Equal(t, tc.wantOriginal, result.IsOriginal)
			assert.Equal(t, tc.wantScore, result.Score)
			assert.Equal(t, models.JSONB(tc.raw), result.Details)
		})
	}
}

func TestNormalizeUnknownContentType(t *testing.T) {
	_, err := Normalize(map[string]interface{}{}, models.ContentType("hologram"))
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestCheckSubmitsMultipart(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(filePath, []byte("audio bytes"), 0o644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/check", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "track.mp3", header.Filename)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ORIGINAL",
			"top_score": 20.0,
		})
	}))
	defer server.Close()

	svc := NewOriginalityService(config.EngineConfig{AudioURL: server.URL, Timeout: 5})

	result, err := svc.Check(context.Background(), filePath, models.ContentTypeAudio)
	require.NoError(t, err)
	assert.True(t, result.IsOriginal)
	assert.Equal(t, 80, result.Score)
}

func TestCheckEngineFailure(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(filePath, []byte("audio bytes"), 0o644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "fingerprint index offline", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewOriginalityService(config.EngineConfig{AudioURL: server.URL, Timeout: 5})

	_, err := svc.Check(context.Background(), filePath, models.ContentTypeAudio)
	assert.ErrorContains(t, err, "503")
}

func TestCheckNoEngineConfigured(t *testing.T) {
	svc := NewOriginalityService(config.EngineConfig{Timeout: 5})

	_, err := svc.Check(context.Background(), "/tmp/whatever.mp4", models.ContentTypeVideo)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}
