package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/dropthemike/internal/audio"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/dropthemike", cfg.TempDir)
	assert.Empty(t, cfg.FFmpegPath)
	assert.Empty(t, cfg.FFprobePath)
	assert.Equal(t, 10*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 3, cfg.DefaultParts)
	assert.Equal(t, "original", cfg.DefaultQuality)
	assert.Equal(t, 192, cfg.FallbackBitrateKbps)
	assert.Equal(t, 1, cfg.MaxConcurrentSegments)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("DEFAULT_PARTS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 5, cfg.DefaultParts)
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := load(envconfig.MapLookuper(map[string]string{
		"PORT":                    "3000",
		"TEMP_DIR":                "/custom/temp",
		"ALLOWED_ROOTS":           "/srv/media,/home/podcasts",
		"FFMPEG_PATH":             "/opt/ffmpeg/bin/ffmpeg",
		"FFPROBE_PATH":            "/opt/ffmpeg/bin/ffprobe",
		"PROBE_TIMEOUT":           "5s",
		"DEFAULT_PARTS":           "7",
		"DEFAULT_QUALITY":         "Compact",
		"FALLBACK_BITRATE_KBPS":   "160",
		"MAX_CONCURRENT_SEGMENTS": "4",
		"S3_BUCKET":               "my-bucket",
		"S3_REGION":               "us-east-1",
		"S3_ENDPOINT":             "http://localhost:4566",
		"AWS_ACCESS_KEY_ID":       "AKIA",
		"AWS_SECRET_ACCESS_KEY":   "secret",
		"LOG_FORMAT":              "JSON",
		"LOG_LEVEL":               "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, []string{"/srv/media", "/home/podcasts"}, cfg.AllowedRoots)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.ResolveFFmpeg())
	assert.Equal(t, "/opt/ffmpeg/bin/ffprobe", cfg.ResolveFFprobe())
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 7, cfg.DefaultParts)
	assert.Equal(t, audio.QualityCompact, cfg.Quality())
	assert.Equal(t, 160, cfg.FallbackBitrateKbps)
	assert.Equal(t, 4, cfg.MaxConcurrentSegments)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"probe timeout above bound", map[string]string{"PROBE_TIMEOUT": "30s"}},
		{"zero probe timeout", map[string]string{"PROBE_TIMEOUT": "0s"}},
		{"one part", map[string]string{"DEFAULT_PARTS": "1"}},
		{"too many parts", map[string]string{"DEFAULT_PARTS": "21"}},
		{"unknown quality", map[string]string{"DEFAULT_QUALITY": "lossless"}},
		{"zero concurrency", map[string]string{"MAX_CONCURRENT_SEGMENTS": "0"}},
		{"bucket without region", map[string]string{"S3_BUCKET": "b"}},
		{"bad endpoint", map[string]string{"S3_ENDPOINT": "not a url"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(envconfig.MapLookuper(tt.env))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_InvalidInteger(t *testing.T) {
	_, err := load(envconfig.MapLookuper(map[string]string{"DEFAULT_PARTS": "three"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name   string
		bucket string
		region string
		want   bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{S3Bucket: tt.bucket, S3Region: tt.region}
			assert.Equal(t, tt.want, cfg.S3Enabled())
		})
	}
}

func TestConfig_Quality_Fallback(t *testing.T) {
	cfg := &Config{DefaultQuality: "bogus"}
	assert.Equal(t, audio.QualityOriginal, cfg.Quality())
}

func TestConfig_ResolveTools_Defaults(t *testing.T) {
	cfg := &Config{}
	assert.NotEmpty(t, cfg.ResolveFFmpeg())
	assert.Contains(t, cfg.ResolveFFprobe(), "ffprobe")
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		TempDir:            "/tmp/test",
		DefaultParts:       3,
		S3Bucket:           "bucket",
		AWSAccessKeyID:     "AKIAEXAMPLE",
		AWSSecretAccessKey: "secret-key",
	}

	str := cfg.String()

	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "bucket")

	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "AKIAEXAMPLE")
}

func TestConfig_LogValue(t *testing.T) {
	cfg := &Config{Port: 9000, DefaultParts: 4, S3Bucket: "b", S3Region: "r", AWSSecretAccessKey: "secret-key"}

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("start", slog.Any("config", cfg))

	out := buf.String()
	assert.Contains(t, out, "config.port=9000")
	assert.Contains(t, out, "config.default_parts=4")
	assert.Contains(t, out, "config.s3_enabled=true")
	assert.NotContains(t, out, "secret-key")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{LogFormat: "json", LogLevel: "info"}

	var buf bytes.Buffer
	logger := cfg.LoggerTo(&buf)
	logger.Debug("hidden")
	logger.Info("test message", slog.Int("parts", 3))

	out := buf.String()
	assert.Contains(t, out, `"msg":"test message"`)
	assert.Contains(t, out, `"parts":3`)
	assert.NotContains(t, out, "hidden")
	require.NotNil(t, cfg.NewLogger())
}

func TestConfig_NewLogger_Text(t *testing.T) {
	cfg := &Config{LogFormat: "text", LogLevel: "debug"}

	var buf bytes.Buffer
	cfg.LoggerTo(&buf).Debug("visible", slog.String("source", "talk.mp3"))

	out := buf.String()
	assert.True(t, strings.Contains(out, "msg=visible"))
	assert.Contains(t, out, "source=talk.mp3")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}
