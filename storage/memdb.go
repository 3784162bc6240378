// Package storage provides the backing trie.Db implementations this
// library ships: an in-memory map for tests and short-lived processes,
// and a github.com/syndtr/goleveldb-backed store for anything durable.
package storage

import (
	"sync"

	"github.com/chainkit/worldstate/trie"
	"github.com/chainkit/worldstate/types"
)

// MemDB is a trie.Db backed by a plain Go map, guarded by a RWMutex for
// safe concurrent reads (§5: Db.Get is the only blocking point and must
// be reentrant).
type MemDB struct {
	mu   sync.RWMutex
	data map[types.NodeHash][]byte
}

// NewMemDB returns an empty MemDB.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[types.NodeHash][]byte)}
}

// Get implements trie.Db.
func (m *MemDB) Get(hash types.NodeHash) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[hash]
	return data, ok, nil
}

// Apply writes a WorldStateChanges-shaped node delta: every insert is
// stored, every delete is removed. Deletes and inserts never overlap in
// a well-formed delta (§4.6), so ordering between the two loops doesn't
// matter.
func (m *MemDB) Apply(inserts map[types.Hash][]byte, deletes map[types.Hash]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, b := range inserts {
		m.data[h] = b
	}
	for h := range deletes {
		delete(m.data, h)
	}
}

// Len reports the number of nodes currently stored.
func (m *MemDB) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

var _ trie.Db = (*MemDB)(nil)
