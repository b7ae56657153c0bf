package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrS3NotConfigured is returned when publishing without S3 configuration.
	ErrS3NotConfigured = errors.New("S3 storage is not configured")
	// ErrInvalidName is returned when an upload name has no usable base name.
	ErrInvalidName = errors.New("invalid file name")
)

// LocalStorage keeps uploads on local disk. It cannot publish; wrap it in
// S3Storage for that.
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage roots uploads at tempDir, creating it when missing.
// An empty tempDir means os.TempDir()/dropthemike.
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "dropthemike")
	}
	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	return &LocalStorage{tempDir: tempDir}, nil
}

// TempDir returns the upload root.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

func alive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return nil
}

// uploadName reduces a client supplied name to a bare file name. Windows
// separators count as separators too.
func uploadName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch {
	case strings.TrimSpace(base) == "", base == ".", base == "..", base == "/":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// SaveTemp writes data to <tempDir>/upload_<random>/<name>. Each upload
// gets its own directory so the split folder created next to it is removed
// along with it.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := alive(ctx); err != nil {
		return "", err
	}
	base, err := uploadName(name)
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp(s.tempDir, "upload_*")
	if err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	target := filepath.Join(dir, base)
	if err := writeNew(target, data); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	return target, nil
}

func writeNew(path string, data io.Reader) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600) // #nosec G304 - base name only
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close temp file: %w", cerr)
		}
	}()
	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	return nil
}

// LoadTemp opens a stored file. The caller closes it.
func (s *LocalStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	f, err := os.Open(path) // #nosec G304 - path comes from SaveTemp or the encoder
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}
	return f, nil
}

// Cleanup removes paths, skipping ones already gone, and joins every
// failure into one error.
func (s *LocalStorage) Cleanup(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := alive(ctx); err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// IsUpload reports whether path lies inside the temp directory, meaning
// it was created by SaveTemp.
func (s *LocalStorage) IsUpload(path string) bool {
	rel, err := filepath.Rel(s.tempDir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// RemoveUpload deletes the directory SaveTemp created for path, including
// any split folder placed next to it.
func (s *LocalStorage) RemoveUpload(path string) error {
	if !s.IsUpload(path) {
		return nil
	}
	return os.RemoveAll(filepath.Dir(path))
}

// Publish always fails with ErrS3NotConfigured.
func (s *LocalStorage) Publish(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

var _ Storage = (*LocalStorage)(nil)
