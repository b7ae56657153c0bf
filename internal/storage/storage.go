// Package storage keeps uploaded sources on local disk, removes stale parts
// and optionally publishes produced parts to S3.
package storage

import (
	"context"
	"fmt"
	"io"
)

// Storage defines the interface for source uploads and part publishing.
type Storage interface {
	// SaveTemp stores an uploaded source under its own directory and returns
	// the file path. name keeps its base name and extension.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a stored file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// Cleanup removes the specified files, ignoring ones already gone.
	// It continues even if some files fail to delete.
	Cleanup(ctx context.Context, paths []string) error

	// Publish uploads data under key and returns its URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Publish(ctx context.Context, key string, data io.Reader) (url string, err error)
}

// PublishFile reads the part at path through st and uploads it under key.
func PublishFile(ctx context.Context, st Storage, key, path string) (string, error) {
	r, err := st.LoadTemp(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	defer func() { _ = r.Close() }()

	return st.Publish(ctx, key, r)
}
