package bootstrap

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/dropthemike/internal/config"
	"github.com/maauso/dropthemike/internal/media"
	"github.com/maauso/dropthemike/internal/storage"
)

func TestNewDependencies_LocalStorage(t *testing.T) {
	cfg := &config.Config{
		TempDir:               t.TempDir(),
		ProbeTimeout:          media.DefaultProbeTimeout,
		DefaultParts:          3,
		FallbackBitrateKbps:   192,
		MaxConcurrentSegments: 2,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := NewDependencies(cfg, logger)
	require.NoError(t, err)
	defer deps.Close()

	assert.NotNil(t, deps.SplitService)
	assert.NotNil(t, deps.Bus)
	assert.NotNil(t, deps.Recorder)
	_, isLocal := deps.Storage.(*storage.LocalStorage)
	assert.True(t, isLocal)
}

func TestNewDependencies_S3Storage(t *testing.T) {
	cfg := &config.Config{
		TempDir:               t.TempDir(),
		ProbeTimeout:          media.DefaultProbeTimeout,
		FallbackBitrateKbps:   192,
		MaxConcurrentSegments: 1,
		S3Bucket:              "parts",
		S3Region:              "eu-west-1",
		S3Endpoint:            "http://127.0.0.1:9000",
		AWSAccessKeyID:        "key",
		AWSSecretAccessKey:    "secret",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := NewDependencies(cfg, logger)
	require.NoError(t, err)
	defer deps.Close()

	_, isS3 := deps.Storage.(*storage.S3Storage)
	assert.True(t, isS3)
}
