package job

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathNotAllowed is returned by Load when the source or output directory
// lies outside every allowed root.
var ErrPathNotAllowed = errors.New("path outside allowed roots")

// WithAllowedRoots confines sources and output directories to the given
// directories. Without roots every path is accepted.
func WithAllowedRoots(roots ...string) ServiceOption {
	return func(s *SplitService) {
		for _, root := range roots {
			if strings.TrimSpace(root) == "" {
				continue
			}
			if resolved, err := resolvePath(root); err == nil {
				s.roots = append(s.roots, resolved)
			}
		}
	}
}

func (s *SplitService) checkPath(p string) error {
	if len(s.roots) == 0 {
		return nil
	}
	resolved, err := resolvePath(p)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPathNotAllowed, p, err)
	}
	for _, root := range s.roots {
		if within(root, resolved) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrPathNotAllowed, p)
}

// resolvePath makes p absolute and follows symlinks through its deepest
// existing ancestor, so a link inside a root cannot point out of it.
func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var missing []string
	for dir := abs; ; dir = filepath.Dir(dir) {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !errors.Is(err, os.ErrNotExist) || filepath.Dir(dir) == dir {
			return "", err
		}
		missing = append([]string{filepath.Base(dir)}, missing...)
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
