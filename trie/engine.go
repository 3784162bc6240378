package trie

import "github.com/chainkit/worldstate/types"

// Engine is the MPT engine adapter: open(root), get(key), put(key,value),
// remove(key), commit() -> (root, inserts, deletes). It owns one
// ResolvableTrie and the NodeDatabase it resolves hash nodes against.
type Engine struct {
	rt *ResolvableTrie
	db *NodeDatabase
}

// Open opens the trie at root against backing. A zero root or the
// well-known empty-trie hash opens an empty trie.
func Open(backing Db, root types.Hash) (*Engine, error) {
	return OpenCached(backing, root, nil)
}

// OpenCached opens the trie at root, resolving hash nodes through cache
// before falling back to backing.
func OpenCached(backing Db, root types.Hash, cache NodeCache) (*Engine, error) {
	db := &NodeDatabase{disk: backing, cache: cache}
	rt, err := NewResolvableTrie(root, db)
	if err != nil {
		return nil, err
	}
	return &Engine{rt: rt, db: db}, nil
}

// Get reads a value by key.
func (e *Engine) Get(key []byte) ([]byte, error) {
	return e.rt.Get(key)
}

// Put inserts or updates a key-value pair.
func (e *Engine) Put(key, value []byte) error {
	return e.rt.Put(key, value)
}

// Remove deletes a key. Removing an absent key is a no-op.
func (e *Engine) Remove(key []byte) error {
	return e.rt.Delete(key)
}

// Commit hashes the trie and returns the new root together with the node
// delta since the engine was opened or last committed.
func (e *Engine) Commit() (root types.Hash, inserts map[types.Hash][]byte, deletes map[types.Hash]struct{}, err error) {
	return e.rt.Commit()
}

// Hash returns the current root hash without producing a commit delta.
func (e *Engine) Hash() types.Hash {
	return e.rt.Hash()
}

// Len reports the number of key-value pairs reachable from the current
// root. O(n): intended for tests and diagnostics, not hot paths.
func (e *Engine) Len() int {
	return e.rt.Len()
}

// Empty reports whether the trie holds no entries.
func (e *Engine) Empty() bool {
	return e.rt.Empty()
}
