package metrics

// Pre-defined metrics for the world-state library. All metrics live in
// DefaultRegistry so they are globally accessible without passing a
// registry around.

var (
	// ---- World state commit metrics ----

	// CommitsTotal counts WorldState.Commit/Close invocations.
	CommitsTotal = DefaultRegistry.Counter("worldstate.commits")
	// CommitDurationMs records commit latency in milliseconds.
	CommitDurationMs = DefaultRegistry.Histogram("worldstate.commit_ms")
	// NodesInserted counts trie nodes written by the most recent commits.
	NodesInserted = DefaultRegistry.Counter("worldstate.nodes_inserted")
	// NodesDeleted counts trie nodes superseded by the most recent commits.
	NodesDeleted = DefaultRegistry.Counter("worldstate.nodes_deleted")

	// ---- Trie node cache metrics ----

	// NodeCacheHits counts hot-node cache hits.
	NodeCacheHits = DefaultRegistry.Counter("trie.cache_hits")
	// NodeCacheMisses counts hot-node cache misses (fell through to Db).
	NodeCacheMisses = DefaultRegistry.Counter("trie.cache_misses")

	// ---- Index heap metrics ----

	// HeapInserts counts successful index-heap inserts (Update is not counted).
	HeapInserts = DefaultRegistry.Counter("indexheap.inserts")
	// HeapRejections counts inserts rejected because the heap is full,
	// whatever the candidate's Power.
	HeapRejections = DefaultRegistry.Counter("indexheap.rejections")
	// HeapSize tracks the current occupancy of the most recently touched
	// index heap.
	HeapSize = DefaultRegistry.Gauge("indexheap.size")

	// ---- Migration metrics ----

	// MigrationAddresses counts addresses migrated from V1 to V2.
	MigrationAddresses = DefaultRegistry.Counter("migration.addresses_migrated")
	// MigrationBytes counts bytes written to the V2 trie during migration.
	MigrationBytes = DefaultRegistry.Counter("migration.bytes_written")
	// MigrationBatchMs records per-batch migration duration in milliseconds.
	MigrationBatchMs = DefaultRegistry.Histogram("migration.batch_ms")
)
