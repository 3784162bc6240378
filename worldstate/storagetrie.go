package worldstate

import (
	"errors"

	"github.com/chainkit/worldstate/trie"
	"github.com/chainkit/worldstate/types"
)

// ErrEmptyValue is returned by Set when called with a zero-length value;
// use Remove to delete a storage entry instead.
var ErrEmptyValue = errors.New("worldstate: empty storage value; use Remove")

// StorageTrie is a thin typed view over a contract's own MPT, rooted at
// the address's StorageRoot account field. Its physical trie keys are
// the bare AppKey (the owning address is implicit: it is this trie).
type StorageTrie struct {
	engine *trie.Engine
	store  kvStore
}

// openStorageTrie opens (or creates, if root is the empty hash) the
// storage trie for a single contract.
func openStorageTrie(backing trie.Db, root types.Hash) (*StorageTrie, error) {
	e, err := trie.Open(backing, root)
	if err != nil {
		return nil, err
	}
	return &StorageTrie{engine: e, store: e}, nil
}

// setCached installs (enabled) or removes (disabled, flushing first) the
// overlay buffering writes against this trie's engine.
func (s *StorageTrie) setCached(enabled bool) error {
	if enabled {
		if _, ok := s.store.(*overlayView); !ok {
			s.store = newOverlayView(s.engine)
		}
		return nil
	}
	if ov, ok := s.store.(*overlayView); ok {
		if err := ov.flush(); err != nil {
			return err
		}
	}
	s.store = s.engine
	return nil
}

// Get retrieves the value stored under appKey. ok is false if absent.
func (s *StorageTrie) Get(appKey types.AppKey) ([]byte, bool) {
	v, err := s.store.Get(appKey)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Contains reports whether appKey has a value.
func (s *StorageTrie) Contains(appKey types.AppKey) bool {
	_, ok := s.Get(appKey)
	return ok
}

// Set stores value under appKey. An empty value is rejected; callers
// must call Remove to delete an entry.
func (s *StorageTrie) Set(appKey types.AppKey, value []byte) error {
	if len(value) == 0 {
		return ErrEmptyValue
	}
	return s.store.Put(appKey, value)
}

// Remove deletes the entry under appKey. Removing an absent key is a
// no-op.
func (s *StorageTrie) Remove(appKey types.AppKey) error {
	return s.store.Remove(appKey)
}

// Root returns the storage trie's current root hash without committing.
func (s *StorageTrie) Root() types.Hash {
	return s.engine.Hash()
}

// commit flushes any pending overlay and hashes the trie, returning its
// node delta to be merged into the enclosing WorldStateChanges by the
// owning WorldState.
func (s *StorageTrie) commit() (types.Hash, map[types.Hash][]byte, map[types.Hash]struct{}, error) {
	if ov, ok := s.store.(*overlayView); ok {
		if err := ov.flush(); err != nil {
			return types.Hash{}, nil, nil, err
		}
	}
	return s.engine.Commit()
}
