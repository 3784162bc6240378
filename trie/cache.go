// cache.go provides an LRU-evicting hot-node cache. It stores RLP-encoded
// trie nodes keyed by their Keccak-256 hash and tracks cache hit/miss/
// eviction statistics, satisfying the NodeCache interface consumed by
// NodeDatabase.
package trie

import (
	"sync"
	"sync/atomic"

	"github.com/chainkit/worldstate/metrics"
	"github.com/chainkit/worldstate/types"
)

// CacheStats holds trie cache performance metrics.
type CacheStats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	CurrentSize uint64
	EntryCount  int
}

// cacheEntry is a node in the doubly-linked list used for LRU tracking.
type cacheEntry struct {
	hash types.Hash
	data []byte
	prev *cacheEntry
	next *cacheEntry
	size uint64
}

// TrieCache is a thread-safe LRU cache for trie nodes keyed by hash. It
// bounds memory usage by maxSize and evicts the least recently used
// entries when space is needed.
type TrieCache struct {
	mu      sync.RWMutex
	entries map[types.Hash]*cacheEntry
	head    *cacheEntry // most recently used
	tail    *cacheEntry // least recently used
	maxSize uint64      // maximum cache size in bytes
	curSize uint64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewTrieCache creates a hot-node cache bounded by maxSize bytes of node
// data. maxSize <= 0 disables the size bound (entries are never evicted
// on size, only via Reset/Delete).
func NewTrieCache(maxSize int) *TrieCache {
	if maxSize < 0 {
		maxSize = 0
	}
	return &TrieCache{
		entries: make(map[types.Hash]*cacheEntry),
		maxSize: uint64(maxSize),
	}
}

var _ NodeCache = (*TrieCache)(nil)

// Get retrieves a cached node by hash.
func (c *TrieCache) Get(hash types.Hash) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[hash]
	if !ok {
		c.misses.Add(1)
		metrics.NodeCacheMisses.Inc()
		return nil, false
	}
	c.hits.Add(1)
	metrics.NodeCacheHits.Inc()
	c.moveToFrontLocked(entry)

	cp := make([]byte, len(entry.data))
	copy(cp, entry.data)
	return cp, true
}

// Set stores a node's bytes under hash, evicting the least recently used
// entries if the cache would exceed maxSize.
func (c *TrieCache) Set(hash types.Hash, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	dataSize := uint64(len(dataCopy))

	if existing, ok := c.entries[hash]; ok {
		c.curSize -= existing.size
		existing.data = dataCopy
		existing.size = dataSize
		c.curSize += dataSize
		c.moveToFrontLocked(existing)
		return
	}

	for c.maxSize > 0 && c.curSize+dataSize > c.maxSize && c.tail != nil {
		c.evictTailLocked()
	}

	entry := &cacheEntry{hash: hash, data: dataCopy, size: dataSize}
	c.entries[hash] = entry
	c.curSize += dataSize
	c.pushFrontLocked(entry)
}

// Delete removes a node from the cache by hash.
func (c *TrieCache) Delete(hash types.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[hash]
	if !ok {
		return
	}
	c.removeLocked(entry)
	delete(c.entries, hash)
	c.curSize -= entry.size
}

// Len returns the number of entries currently cached.
func (c *TrieCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Size returns the total byte size of all cached node data.
func (c *TrieCache) Size() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.curSize
}

// Stats returns a snapshot of cache performance statistics.
func (c *TrieCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: c.curSize,
		EntryCount:  len(c.entries),
	}
}

// Reset clears all entries and statistics.
func (c *TrieCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[types.Hash]*cacheEntry)
	c.head = nil
	c.tail = nil
	c.curSize = 0
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

func (c *TrieCache) pushFrontLocked(entry *cacheEntry) {
	entry.prev = nil
	entry.next = c.head
	if c.head != nil {
		c.head.prev = entry
	}
	c.head = entry
	if c.tail == nil {
		c.tail = entry
	}
}

func (c *TrieCache) moveToFrontLocked(entry *cacheEntry) {
	if entry == c.head {
		return
	}
	c.removeLocked(entry)
	c.pushFrontLocked(entry)
}

func (c *TrieCache) removeLocked(entry *cacheEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
	entry.prev = nil
	entry.next = nil
}

func (c *TrieCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	evicted := c.tail
	c.removeLocked(evicted)
	delete(c.entries, evicted.hash)
	c.curSize -= evicted.size
	c.evictions.Add(1)
}
