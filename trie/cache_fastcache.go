package trie

import (
	"github.com/VictoriaMetrics/fastcache"
	"github.com/chainkit/worldstate/metrics"
	"github.com/chainkit/worldstate/types"
)

// FastNodeCache is a NodeCache backed by github.com/VictoriaMetrics/fastcache,
// an allocation-free, sharded byte cache. Prefer this over TrieCache for
// large node sets: fastcache keeps entries off the Go heap, so its memory
// footprint does not add GC pressure the way TrieCache's map-of-pointers
// does.
type FastNodeCache struct {
	c *fastcache.Cache
}

var _ NodeCache = (*FastNodeCache)(nil)

// NewFastNodeCache creates a fastcache-backed hot-node cache sized to
// maxBytes of node data.
func NewFastNodeCache(maxBytes int) *FastNodeCache {
	return &FastNodeCache{c: fastcache.New(maxBytes)}
}

// Get retrieves a cached node by hash.
func (f *FastNodeCache) Get(hash types.Hash) ([]byte, bool) {
	data, ok := f.c.HasGet(nil, hash[:])
	if !ok {
		metrics.NodeCacheMisses.Inc()
		return nil, false
	}
	metrics.NodeCacheHits.Inc()
	return data, true
}

// Set stores a node's bytes under hash.
func (f *FastNodeCache) Set(hash types.Hash, data []byte) {
	f.c.Set(hash[:], data)
}

// Reset clears the cache.
func (f *FastNodeCache) Reset() {
	f.c.Reset()
}
