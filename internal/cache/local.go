package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalBackend serves files from a directory on the local filesystem.
type LocalBackend struct {
	root string
}

// NewLocalBackend returns a Backend rooted at root. Paths are joined with
// root and cleaned, so a request cannot escape root via "..".
func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{root: root}
}

// Fetch implements Backend.
func (l *LocalBackend) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := filepath.Join(l.root, filepath.Clean("/"+path))
	b, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read %s: %w", full, err)
	}
	return b, nil
}
