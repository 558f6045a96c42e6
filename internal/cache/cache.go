// Package cache implements the read-through static file cache: an
// in-memory map of path to bytes, backed by a filesystem directory and,
// optionally, an S3 bucket for origin storage.
package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when path does not exist in the backend.
var ErrNotFound = errors.New("cache: not found")

// Backend fetches file content by path when it is not already memoized.
type Backend interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Cache memoizes Backend reads in memory. It never evicts: the static
// file set served by this process is small and changes only on restart.
type Cache struct {
	backend Backend

	mu    sync.RWMutex
	files map[string][]byte
}

// New returns a Cache reading through to backend on a miss.
func New(backend Backend) *Cache {
	return &Cache{backend: backend, files: make(map[string][]byte)}
}

// Get returns the bytes for path, fetching and memoizing them on first
// access. Returns ErrNotFound if the backend has no such path.
func (c *Cache) Get(ctx context.Context, path string) ([]byte, error) {
	c.mu.RLock()
	if b, ok := c.files[path]; ok {
		c.mu.RUnlock()
		return b, nil
	}
	c.mu.RUnlock()

	b, err := c.backend.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.files[path] = b
	c.mu.Unlock()
	return b, nil
}

// ChainBackend tries each backend in order, returning the first hit. Used
// to layer an operator-supplied override root ahead of the built-in
// static tree, and to give a remote backend a local fallback.
type ChainBackend struct {
	backends []Backend
}

// NewChainBackend returns a Backend trying backends in order.
func NewChainBackend(backends ...Backend) *ChainBackend {
	return &ChainBackend{backends: backends}
}

// Fetch implements Backend.
func (c *ChainBackend) Fetch(ctx context.Context, path string) ([]byte, error) {
	for _, b := range c.backends {
		body, err := b.Fetch(ctx, path)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}
