package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "IMAGE_UPLOAD_STRATEGY", "VIDEO_UPLOAD_STRATEGY", "IMAGE_MAX_SIZE", "VIDEO_MAX_SIZE",
		"IMAGEHOST_TIMEOUT", "R2_REGION", "LOCAL_BASE_URL", "CORS_ORIGINS",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "local", cfg.Image.Strategy)
	assert.Equal(t, "local", cfg.Video.Strategy)
	assert.Equal(t, int64(5<<20), cfg.Image.MaxSize)
	assert.Equal(t, int64(100<<20), cfg.Video.MaxSize)
	assert.Equal(t, 60*time.Second, cfg.Image.ImageHost.Timeout)
	assert.Equal(t, "auto", cfg.R2.Region)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.LocalBaseURL)
	assert.Contains(t, cfg.Image.AllowedTypes, "image/webp")
	assert.Contains(t, cfg.Video.AllowedTypes, "video/mp4")
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("IMAGE_UPLOAD_STRATEGY", "r2")
	t.Setenv("VIDEO_UPLOAD_STRATEGY", "r2")
	t.Setenv("IMAGE_MAX_SIZE", "10MiB")
	t.Setenv("VIDEO_MAX_SIZE", "1 GiB")
	t.Setenv("IMAGEHOST_TIMEOUT", "1500")
	t.Setenv("IMAGE_ALLOWED_TYPES", " image/png , ,image/jpeg")
	t.Setenv("R2_BUCKET_NAME", "media")
	t.Setenv("LOCAL_BASE_URL", "https://media.example.org")

	cfg := Load()

	assert.Equal(t, "r2", cfg.Image.Strategy)
	assert.Equal(t, int64(10<<20), cfg.Image.MaxSize)
	assert.Equal(t, int64(1<<30), cfg.Video.MaxSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Image.ImageHost.Timeout)
	assert.Equal(t, []string{"image/png", "image/jpeg"}, cfg.Image.AllowedTypes)
	assert.Equal(t, "media", cfg.R2.BucketName)
	assert.Equal(t, "https://media.example.org", cfg.LocalBaseURL)
}

func TestGetSize(t *testing.T) {
	tests := []struct {
		value string
		want  int64
	}{
		{"", 42},
		{"10mb", 10_000_000},
		{"10MiB", 10 << 20},
		{"2048", 2048},
		{"lots", 42},
		{"0", 42},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_SIZE", tt.value)
			assert.Equal(t, tt.want, getSize("TEST_SIZE", 42))
		})
	}
}

func TestGetMillis_Invalid(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "-5")
	assert.Equal(t, time.Second, getMillis("TEST_TIMEOUT", time.Second))

	t.Setenv("TEST_TIMEOUT", "soon")
	assert.Equal(t, time.Second, getMillis("TEST_TIMEOUT", time.Second))
}

func TestIsProduction(t *testing.T) {
	assert.True(t, (&Config{AppEnv: "production"}).IsProduction())
	assert.False(t, (&Config{AppEnv: "development"}).IsProduction())
}
