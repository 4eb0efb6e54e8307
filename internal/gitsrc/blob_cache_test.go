package gitsrc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingReader serves fixed content and counts fetches per hash.
type countingReader struct {
	content map[string][]byte
	fetches map[string]int
}

func (r *countingReader) GetBlob(_ context.Context, _ string, change FileChange) ([]byte, error) {
	data, ok := r.content[change.Hash]
	if !ok {
		return nil, errors.New("missing blob")
	}

	r.fetches[change.Hash]++

	return data, nil
}

func newCountingReader(content map[string][]byte) *countingReader {
	return &countingReader{content: content, fetches: map[string]int{}}
}

func get(t *testing.T, c *CachedBlobReader, hash string) []byte {
	t.Helper()

	data, err := c.GetBlob(context.Background(), "commit", FileChange{Path: hash, Hash: hash})
	require.NoError(t, err)

	return data
}

func TestCachedBlobReader_SecondReadHitsCache(t *testing.T) {
	t.Parallel()

	inner := newCountingReader(map[string][]byte{"a": []byte("content")})
	cache := NewCachedBlobReader(inner, 1024)

	assert.Equal(t, []byte("content"), get(t, cache, "a"))
	assert.Equal(t, []byte("content"), get(t, cache, "a"))

	assert.Equal(t, 1, inner.fetches["a"])
	assert.Equal(t, int64(1), cache.CacheHits())
	assert.Equal(t, int64(1), cache.CacheMisses())
}

func TestCachedBlobReader_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	inner := newCountingReader(map[string][]byte{
		"a": []byte("aaaa"),
		"b": []byte("bbbb"),
		"c": []byte("cccc"),
	})

	// Room for two four-byte blobs.
	cache := NewCachedBlobReader(inner, 8)

	get(t, cache, "a")
	get(t, cache, "b")

	// Touch "a" so "b" is the eviction candidate.
	get(t, cache, "a")

	get(t, cache, "c")

	assert.Equal(t, 1, inner.fetches["a"], "a should have stayed cached")

	get(t, cache, "b")
	assert.Equal(t, 2, inner.fetches["b"], "b should have been evicted and refetched")
}

func TestCachedBlobReader_OversizedBlobBypassesCache(t *testing.T) {
	t.Parallel()

	inner := newCountingReader(map[string][]byte{"big": make([]byte, 64)})
	cache := NewCachedBlobReader(inner, 16)

	get(t, cache, "big")
	get(t, cache, "big")

	assert.Equal(t, 2, inner.fetches["big"])
}

func TestCachedBlobReader_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	inner := newCountingReader(map[string][]byte{})
	cache := NewCachedBlobReader(inner, 1024)

	_, err := cache.GetBlob(context.Background(), "commit", FileChange{Hash: "absent"})
	require.Error(t, err)
	assert.Equal(t, int64(1), cache.CacheMisses())
}
