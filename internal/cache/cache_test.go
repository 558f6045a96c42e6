package cache

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchCountingBackend struct {
	files map[string][]byte
	calls int
}

func (f *fetchCountingBackend) Fetch(ctx context.Context, path string) ([]byte, error) {
	f.calls++
	b, ok := f.files[path]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func TestCache_GetMemoizesAfterFirstFetch(t *testing.T) {
	backend := &fetchCountingBackend{files: map[string][]byte{"/a.txt": []byte("hello")}}
	c := New(backend)

	b, err := c.Get(context.Background(), "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	_, err = c.Get(context.Background(), "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls, "second Get must be served from memory, not the backend")
}

func TestCache_GetPropagatesNotFound(t *testing.T) {
	c := New(&fetchCountingBackend{files: map[string][]byte{}})
	_, err := c.Get(context.Background(), "/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChainBackend_FallsThroughToNextOnMiss(t *testing.T) {
	first := &fetchCountingBackend{files: map[string][]byte{}}
	second := &fetchCountingBackend{files: map[string][]byte{"/a.txt": []byte("from second")}}
	chain := NewChainBackend(first, second)

	b, err := chain.Fetch(context.Background(), "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "from second", string(b))
	assert.Equal(t, 1, first.calls)
}

func TestChainBackend_PrefersEarlierBackend(t *testing.T) {
	first := &fetchCountingBackend{files: map[string][]byte{"/a.txt": []byte("override")}}
	second := &fetchCountingBackend{files: map[string][]byte{"/a.txt": []byte("default")}}
	chain := NewChainBackend(first, second)

	b, err := chain.Fetch(context.Background(), "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "override", string(b))
	assert.Equal(t, 0, second.calls, "must not consult later backends once an earlier one hits")
}

func TestChainBackend_NotFoundWhenNoBackendHas(t *testing.T) {
	chain := NewChainBackend(
		&fetchCountingBackend{files: map[string][]byte{}},
		&fetchCountingBackend{files: map[string][]byte{}},
	)
	_, err := chain.Fetch(context.Background(), "/nowhere.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBackend_ReadsFileAndReportsNotFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/index.html", []byte("<html></html>"), 0o644))

	l := NewLocalBackend(dir)
	b, err := l.Fetch(context.Background(), "/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(b))

	_, err = l.Fetch(context.Background(), "/missing.html")
	assert.ErrorIs(t, err, ErrNotFound)
}
