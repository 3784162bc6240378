package worldstate

import "github.com/chainkit/worldstate/trie"

// kvStore is the minimal raw key-value surface both a *trie.Engine and an
// *overlayView satisfy, letting AccountTrie/StorageTrie mutate through
// either one transparently depending on WorldState's cache mode.
type kvStore interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Remove(key []byte) error
}

type overlayOp struct {
	deleted bool
	value   []byte
}

// overlayView buffers writes against a backing kvStore instead of applying
// them immediately, with read-through for keys it hasn't buffered. Each
// AccountTrie/StorageTrie gets its own overlayView, so entries from
// different tries never collide even though WorldState's cache mode is a
// single on/off switch (see DESIGN.md).
type overlayView struct {
	backing kvStore
	ops     map[string]overlayOp
}

func newOverlayView(backing kvStore) *overlayView {
	return &overlayView{backing: backing, ops: make(map[string]overlayOp)}
}

func (o *overlayView) Get(key []byte) ([]byte, error) {
	if op, ok := o.ops[string(key)]; ok {
		if op.deleted {
			return nil, trie.ErrNotFound
		}
		return op.value, nil
	}
	return o.backing.Get(key)
}

func (o *overlayView) Put(key, value []byte) error {
	o.ops[string(key)] = overlayOp{value: append([]byte(nil), value...)}
	return nil
}

func (o *overlayView) Remove(key []byte) error {
	o.ops[string(key)] = overlayOp{deleted: true}
	return nil
}

// flush applies every buffered op to the backing store and clears the
// overlay. Order among keys doesn't matter: each key has at most one
// buffered op, its last write.
func (o *overlayView) flush() error {
	for k, op := range o.ops {
		if op.deleted {
			if err := o.backing.Remove([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := o.backing.Put([]byte(k), op.value); err != nil {
			return err
		}
	}
	o.ops = make(map[string]overlayOp)
	return nil
}
