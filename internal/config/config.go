// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/dropthemike/internal/audio"
	"github.com/maauso/dropthemike/internal/media"
)

// ErrInvalidConfig is returned when a loaded value fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/dropthemike" json:"temp_dir" validate:"required"`
	// AllowedRoots lists extra directories, besides TempDir, that HTTP
	// clients may read sources from and write parts into.
	AllowedRoots []string `env:"ALLOWED_ROOTS" json:"allowed_roots,omitempty" validate:"dive,required"`

	// Tool settings; empty paths are located next to the executable or in PATH.
	FFmpegPath   string        `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	FFprobePath  string        `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"`
	ProbeTimeout time.Duration `env:"PROBE_TIMEOUT, default=10s" json:"probe_timeout" validate:"gt=0,lte=10s"`

	// Split settings
	DefaultParts          int    `env:"DEFAULT_PARTS, default=3" json:"default_parts" validate:"min=2,max=20"`
	DefaultQuality        string `env:"DEFAULT_QUALITY, default=original" json:"default_quality" validate:"oneof=original high good medium compact small"`
	FallbackBitrateKbps   int    `env:"FALLBACK_BITRATE_KBPS, default=192" json:"fallback_bitrate_kbps" validate:"min=32,max=320"`
	MaxConcurrentSegments int    `env:"MAX_CONCURRENT_SEGMENTS, default=1" json:"max_concurrent_segments" validate:"min=1,max=20"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty" validate:"required_with=S3Bucket"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level" validate:"oneof=debug info warn warning error"`
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return load(envconfig.OsLookuper())
}

func load(l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.DefaultQuality = strings.ToLower(cfg.DefaultQuality)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Quality returns DefaultQuality as an audio.Quality.
func (c *Config) Quality() audio.Quality {
	q, err := audio.ParseQuality(c.DefaultQuality)
	if err != nil {
		return audio.QualityOriginal
	}
	return q
}

// ResolveFFmpeg returns FFmpegPath, or the located ffmpeg binary when unset.
func (c *Config) ResolveFFmpeg() string {
	if c.FFmpegPath != "" {
		return c.FFmpegPath
	}
	return media.LocateBinary("ffmpeg")
}

// ResolveFFprobe returns FFprobePath, or the located ffprobe binary when unset.
func (c *Config) ResolveFFprobe() string {
	if c.FFprobePath != "" {
		return c.FFprobePath
	}
	return media.LocateBinary("ffprobe")
}

// NewLogger returns a stdout logger in LogFormat ("json" or text) at LogLevel.
func (c *Config) NewLogger() *slog.Logger {
	return c.LoggerTo(os.Stdout)
}

// LoggerTo is NewLogger writing to w.
func (c *Config) LoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// String renders the config as JSON. Credentials carry json:"-" and never
// appear.
func (c *Config) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(b)
}

// LogValue groups the settings worth logging at startup.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("port", c.Port),
		slog.String("temp_dir", c.TempDir),
		slog.Int("default_parts", c.DefaultParts),
		slog.String("default_quality", c.DefaultQuality),
		slog.Int("max_concurrent_segments", c.MaxConcurrentSegments),
		slog.Bool("s3_enabled", c.S3Enabled()),
		slog.String("log_level", c.LogLevel),
	)
}

// parseLogLevel falls back to info for anything slog does not know.
// "warning" is accepted as an alias of "warn".
func parseLogLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
