package gitsrc

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBlobCacheSize is the default maximum memory size for the blob
// cache (256 MB).
const DefaultBlobCacheSize = 256 * 1024 * 1024

// CachedBlobReader wraps a BlobReader with a cross-commit LRU cache keyed by
// content hash. It tracks memory usage and evicts least recently used
// entries when the limit is exceeded.
type CachedBlobReader struct {
	inner BlobReader

	mu          sync.Mutex
	entries     map[string]*list.Element
	lru         *list.List // front = most recently used
	maxSize     int64
	currentSize int64

	// Metrics (atomic for lock-free reads).
	hits   atomic.Int64
	misses atomic.Int64
}

// cacheEntry is an LRU list payload.
type cacheEntry struct {
	hash string
	data []byte
}

// NewCachedBlobReader creates a caching wrapper with the given maximum size
// in bytes.
func NewCachedBlobReader(inner BlobReader, maxSize int64) *CachedBlobReader {
	if maxSize <= 0 {
		maxSize = DefaultBlobCacheSize
	}

	return &CachedBlobReader{
		inner:   inner,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

// GetBlob returns the cached content for the change's blob hash, fetching
// through the inner reader on miss.
func (c *CachedBlobReader) GetBlob(ctx context.Context, commitHash string, change FileChange) ([]byte, error) {
	if data, ok := c.lookup(change.Hash); ok {
		c.hits.Add(1)

		return data, nil
	}

	c.misses.Add(1)

	data, err := c.inner.GetBlob(ctx, commitHash, change)
	if err != nil {
		return nil, err
	}

	c.insert(change.Hash, data)

	return data, nil
}

// CacheHits returns the number of cache hits.
func (c *CachedBlobReader) CacheHits() int64 {
	return c.hits.Load()
}

// CacheMisses returns the number of cache misses.
func (c *CachedBlobReader) CacheMisses() int64 {
	return c.misses.Load()
}

func (c *CachedBlobReader) lookup(hash string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[hash]
	if !ok {
		return nil, false
	}

	c.lru.MoveToFront(el)

	return el.Value.(*cacheEntry).data, true
}

func (c *CachedBlobReader) insert(hash string, data []byte) {
	size := int64(len(data))

	// Never cache a blob larger than the entire cache.
	if size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[hash]; ok {
		c.lru.MoveToFront(el)

		return
	}

	for c.currentSize+size > c.maxSize && c.lru.Len() > 0 {
		c.evictOldest()
	}

	el := c.lru.PushFront(&cacheEntry{hash: hash, data: data})
	c.entries[hash] = el
	c.currentSize += size
}

func (c *CachedBlobReader) evictOldest() {
	el := c.lru.Back()
	if el == nil {
		return
	}

	entry := el.Value.(*cacheEntry)

	c.lru.Remove(el)
	delete(c.entries, entry.hash)
	c.currentSize -= int64(len(entry.data))
}
