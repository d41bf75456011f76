// Package attachments removes client-record files that a committed sync orphaned.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that escape the attachment directory.
var ErrOutsideRoot = errors.New("attachments: path outside storage root")

// LocalRemover deletes files below a fixed root directory.
type LocalRemover struct {
	root string
}

// NewLocalRemover binds a remover to root.
func NewLocalRemover(root string) (*LocalRemover, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("attachments: root directory required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("attachments: resolve root: %w", err)
	}
	return &LocalRemover{root: abs}, nil
}

// Resolve maps a stored path to an absolute file below the root.
func (r *LocalRemover) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideRoot)
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if !filepath.IsAbs(clean) {
		clean = filepath.Join(r.root, clean)
	}
	rel, err := filepath.Rel(r.root, clean)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return clean, nil
}

// Remove unlinks path. A file that is already gone is not an error.
func (r *LocalRemover) Remove(_ context.Context, path string) error {
	target, err := r.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("attachments: remove %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path still has a file below the root.
func (r *LocalRemover) Exists(path string) (bool, error) {
	target, err := r.Resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("attachments: stat %s: %w", path, err)
	}
	return true, nil
}
