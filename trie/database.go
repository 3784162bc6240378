package trie

import (
	"errors"

	"github.com/chainkit/worldstate/crypto"
	"github.com/chainkit/worldstate/types"
)

// ErrNodeMissing is returned when a referenced trie node cannot be found
// in the backing store. It is always fatal: the caller's backing store
// is left untouched (see WorldState's failure model).
var ErrNodeMissing = errors.New("trie: node missing from backing store")

// Db is the read-only backing-store capability the MPT engine consumes.
// Persisting a commit's node delta back into a Db implementation is the
// caller's responsibility; the trie package never writes to it.
type Db interface {
	// Get looks up a node by its content hash. ok is false if the hash
	// is not present.
	Get(hash types.NodeHash) (data []byte, ok bool, err error)
}

// NodeCache is a hot-node cache sitting in front of a Db. Implementations
// include the LRU TrieCache (see cache.go) and a github.com/VictoriaMetrics/fastcache
// backed variant (see cache_fastcache.go).
type NodeCache interface {
	Get(hash types.NodeHash) ([]byte, bool)
	Set(hash types.NodeHash, data []byte)
}

// NodeDatabase resolves hashNode references against a backing Db,
// optionally through a NodeCache. It performs no writes: it is a pure
// read path used while traversing a trie opened from a non-empty root.
type NodeDatabase struct {
	disk  Db
	cache NodeCache
}

// NewNodeDatabase creates a resolver backed by disk, with no cache.
func NewNodeDatabase(disk Db) *NodeDatabase {
	return &NodeDatabase{disk: disk}
}

// NewCachedNodeDatabase creates a resolver backed by disk with a hot-node
// cache in front of it.
func NewCachedNodeDatabase(disk Db, cache NodeCache) *NodeDatabase {
	return &NodeDatabase{disk: disk, cache: cache}
}

// Node resolves a node's RLP-encoded bytes by hash. Returns ErrNodeMissing
// if the hash is not present in the cache or the backing store.
func (db *NodeDatabase) Node(hash types.Hash) ([]byte, error) {
	if hash.IsZero() {
		return nil, ErrNodeMissing
	}
	if db.cache != nil {
		if data, ok := db.cache.Get(hash); ok {
			return data, nil
		}
	}
	if db.disk == nil {
		return nil, ErrNodeMissing
	}
	data, ok, err := db.disk.Get(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNodeMissing
	}
	if db.cache != nil {
		db.cache.Set(hash, data)
	}
	return data, nil
}

// ResolvableTrie is a Trie that resolves hashNode references against a
// NodeDatabase, the MPT engine's in-memory working copy of a trie opened
// at a given root. Put/Delete record which persisted nodes they displace
// so Commit can report a delete set alongside the insert set, per the
// MPT engine adapter's commit contract.
type ResolvableTrie struct {
	Trie
	db      *NodeDatabase
	touched map[types.Hash]struct{}
}

// NewResolvableTrie opens a trie at root. If root is the empty-trie hash
// or the zero hash, the result is a fresh empty trie.
func NewResolvableTrie(root types.Hash, db *NodeDatabase) (*ResolvableTrie, error) {
	t := &ResolvableTrie{db: db, touched: make(map[types.Hash]struct{})}
	if root == emptyRoot || root.IsZero() {
		return t, nil
	}
	rootNode, err := t.resolveHash(hashNode(root[:]))
	if err != nil {
		return nil, err
	}
	t.root = rootNode
	return t, nil
}

// Get retrieves a value, resolving hash nodes as needed. Reads do not
// affect the delete set: only mutation paths (Put/Delete) mark a
// persisted node as superseded.
func (t *ResolvableTrie) Get(key []byte) ([]byte, error) {
	value, found, err := t.resolveGet(t.root, keybytesToHex(key), 0)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return value, nil
}

func (t *ResolvableTrie) resolveGet(n node, key []byte, pos int) ([]byte, bool, error) {
	switch n := n.(type) {
	case nil:
		return nil, false, nil
	case valueNode:
		return []byte(n), true, nil
	case *shortNode:
		if len(key)-pos < len(n.Key) || !keysEqual(n.Key, key[pos:pos+len(n.Key)]) {
			return nil, false, nil
		}
		return t.resolveGet(n.Val, key, pos+len(n.Key))
	case *fullNode:
		if pos >= len(key) {
			return t.resolveGet(n.Children[16], key, pos)
		}
		return t.resolveGet(n.Children[key[pos]], key, pos+1)
	case hashNode:
		resolved, err := t.resolveHash(n)
		if err != nil {
			return nil, false, err
		}
		return t.resolveGet(resolved, key, pos)
	default:
		return nil, false, nil
	}
}

func (t *ResolvableTrie) resolveHash(hash hashNode) (node, error) {
	h, err := types.BytesToHash(hash)
	if err != nil {
		return nil, err
	}
	data, err := t.db.Node(h)
	if err != nil {
		return nil, err
	}
	return decodeNode(hash, data)
}

// Put inserts a key/value pair, resolving (and marking touched) any
// persisted hash nodes along the mutated path.
func (t *ResolvableTrie) Put(key, value []byte) error {
	if len(value) == 0 {
		return t.Delete(key)
	}
	t.trackRootIfPersisted()
	k := keybytesToHex(key)
	n, err := t.resolveInsert(t.root, nil, k, valueNode(value))
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

// resolveInsert mirrors Trie.insert but resolves (and marks touched) any
// hashNode encountered along the descent, at every level of the path —
// not just the top. This is required because children of a freshly
// decoded node are themselves left as unresolved hashNode references
// (see decodeRef), so a multi-level path may need several resolutions.
func (t *ResolvableTrie) resolveInsert(n node, prefix, key []byte, value node) (node, error) {
	if hn, ok := n.(hashNode); ok {
		resolved, err := t.resolveHashTracked(hn)
		if err != nil {
			return nil, err
		}
		n = resolved
	}

	if len(key) == 0 {
		if v, ok := n.(valueNode); ok {
			if keysEqual(v, value.(valueNode)) {
				return v, nil
			}
		}
		return value, nil
	}

	switch n := n.(type) {
	case nil:
		return &shortNode{Key: key, Val: value, flags: nodeFlag{dirty: true}}, nil

	case *shortNode:
		matchLen := prefixLen(key, n.Key)
		if matchLen == len(n.Key) {
			nn, err := t.resolveInsert(n.Val, append(prefix, key[:matchLen]...), key[matchLen:], value)
			if err != nil {
				return nil, err
			}
			return &shortNode{Key: n.Key, Val: nn, flags: nodeFlag{dirty: true}}, nil
		}
		branch := &fullNode{flags: nodeFlag{dirty: true}}
		existingChild, err := t.resolveInsert(nil, append(prefix, n.Key[:matchLen+1]...), n.Key[matchLen+1:], n.Val)
		if err != nil {
			return nil, err
		}
		branch.Children[n.Key[matchLen]] = existingChild
		newChild, err := t.resolveInsert(nil, append(prefix, key[:matchLen+1]...), key[matchLen+1:], value)
		if err != nil {
			return nil, err
		}
		branch.Children[key[matchLen]] = newChild
		if matchLen > 0 {
			return &shortNode{Key: key[:matchLen], Val: branch, flags: nodeFlag{dirty: true}}, nil
		}
		return branch, nil

	case *fullNode:
		nn := n.copy()
		nn.flags = nodeFlag{dirty: true}
		child, err := t.resolveInsert(n.Children[key[0]], append(prefix, key[0]), key[1:], value)
		if err != nil {
			return nil, err
		}
		nn.Children[key[0]] = child
		return nn, nil

	default:
		return nil, errors.New("trie: unknown node type")
	}
}

// Delete removes a key, resolving (and marking touched) any persisted
// hash nodes along the mutated path.
func (t *ResolvableTrie) Delete(key []byte) error {
	t.trackRootIfPersisted()
	k := keybytesToHex(key)
	n, err := t.resolveDelete(t.root, nil, k)
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

// resolveDelete mirrors Trie.delete but resolves (and marks touched) any
// hashNode encountered along the descent, at every level of the path.
func (t *ResolvableTrie) resolveDelete(n node, prefix, key []byte) (node, error) {
	if hn, ok := n.(hashNode); ok {
		resolved, err := t.resolveHashTracked(hn)
		if err != nil {
			return nil, err
		}
		n = resolved
	}

	switch n := n.(type) {
	case nil:
		return nil, nil

	case *shortNode:
		matchLen := prefixLen(key, n.Key)
		if matchLen < len(n.Key) {
			return n, nil
		}
		if matchLen == len(key) {
			return nil, nil
		}
		child, err := t.resolveDelete(n.Val, append(prefix, key[:len(n.Key)]...), key[len(n.Key):])
		if err != nil {
			return nil, err
		}
		switch child := child.(type) {
		case nil:
			return nil, nil
		case *shortNode:
			mergedKey := concat(n.Key, child.Key)
			return &shortNode{Key: mergedKey, Val: child.Val, flags: nodeFlag{dirty: true}}, nil
		default:
			return &shortNode{Key: n.Key, Val: child, flags: nodeFlag{dirty: true}}, nil
		}

	case *fullNode:
		nn := n.copy()
		nn.flags = nodeFlag{dirty: true}
		child, err := t.resolveDelete(n.Children[key[0]], append(prefix, key[0]), key[1:])
		if err != nil {
			return nil, err
		}
		nn.Children[key[0]] = child
		remaining := -1
		for i := 0; i < 17; i++ {
			if nn.Children[i] != nil {
				if remaining >= 0 {
					return nn, nil
				}
				remaining = i
			}
		}
		if remaining < 0 {
			return nil, nil
		}
		if remaining == 16 {
			return &shortNode{
				Key:   []byte{terminatorByte},
				Val:   nn.Children[16],
				flags: nodeFlag{dirty: true},
			}, nil
		}
		child = nn.Children[remaining]
		// The sole remaining child may still be an unresolved hashNode
		// (it was not the mutation path); resolve it to inspect whether
		// it is a shortNode eligible for key merging.
		if ch, ok := child.(hashNode); ok {
			resolvedChild, err := t.resolveHashTracked(ch)
			if err != nil {
				return nil, err
			}
			child = resolvedChild
		}
		if cnode, ok := child.(*shortNode); ok {
			mergedKey := concat([]byte{byte(remaining)}, cnode.Key)
			return &shortNode{Key: mergedKey, Val: cnode.Val, flags: nodeFlag{dirty: true}}, nil
		}
		return &shortNode{
			Key:   []byte{byte(remaining)},
			Val:   child,
			flags: nodeFlag{dirty: true},
		}, nil

	case valueNode:
		if len(key) == 0 {
			return nil, nil
		}
		return n, nil

	default:
		return nil, errors.New("trie: unknown node type")
	}
}

// trackRootIfPersisted marks the current root's hash as touched if it was
// loaded from the backing store and hasn't been rewritten yet this
// session. Without this, a commit that only ever rewrites the root node
// (the common case: any mutation rewrites every node on its path back to
// the root) would never report the old root hash as a delete. The dedup
// step in Commit cancels this out again if the root's content ends up
// unchanged (e.g. deleting an absent key).
func (t *ResolvableTrie) trackRootIfPersisted() {
	if t.root == nil {
		return
	}
	hash, dirty := t.root.cache()
	if hash == nil || dirty {
		return
	}
	h, err := types.BytesToHash(hash)
	if err != nil {
		return
	}
	t.touched[h] = struct{}{}
}

func (t *ResolvableTrie) resolveHashTracked(hash hashNode) (node, error) {
	resolved, err := t.resolveHash(hash)
	if err != nil {
		return nil, err
	}
	h, _ := types.BytesToHash(hash)
	t.touched[h] = struct{}{}
	return resolved, nil
}

// Hash computes the root hash without producing a commit delta.
func (t *ResolvableTrie) Hash() types.Hash {
	return t.Trie.Hash()
}

// Commit hashes the trie, returning the new root plus the node delta
// since this ResolvableTrie was opened (or last committed): inserts are
// newly-hashed nodes with byte size >= 32 (per the embed-vs-hash rule),
// deletes are persisted nodes displaced along a mutated path. A hash
// present in both sets (a node re-created with identical content) is
// dropped from both, per the commit's dedup rule.
func (t *ResolvableTrie) Commit() (types.Hash, map[types.Hash][]byte, map[types.Hash]struct{}, error) {
	inserts := make(map[types.Hash][]byte)

	if t.root == nil {
		deletes := t.touched
		t.touched = make(map[types.Hash]struct{})
		return emptyRoot, inserts, deletes, nil
	}

	collapsed, cached := commitNode(t.root, inserts)
	t.root = cached

	var root types.Hash
	switch n := collapsed.(type) {
	case hashNode:
		var err error
		root, err = types.BytesToHash(n)
		if err != nil {
			return types.Hash{}, nil, nil, err
		}
	default:
		enc, err := encodeNode(collapsed)
		if err != nil {
			return types.Hash{}, nil, nil, err
		}
		root = crypto.Keccak256Hash(enc)
		inserts[root] = enc
	}

	deletes := t.touched
	t.touched = make(map[types.Hash]struct{})
	for hash := range inserts {
		if _, ok := deletes[hash]; ok {
			delete(inserts, hash)
			delete(deletes, hash)
		}
	}

	return root, inserts, deletes, nil
}

// commitNode recursively hashes dirty nodes, recording newly-hashed nodes
// of RLP size >= 32 bytes into inserts.
func commitNode(n node, inserts map[types.Hash][]byte) (node, node) {
	switch n := n.(type) {
	case nil:
		return nil, nil

	case valueNode:
		return n, n

	case hashNode:
		return n, n

	case *shortNode:
		collapsed := n.copy()
		collapsed.Key = hexToCompact(n.Key)

		cached := n.copy()
		if _, ok := n.Val.(valueNode); !ok {
			childH, childC := commitNode(n.Val, inserts)
			collapsed.Val = childH
			cached.Val = childC
		}

		enc, err := encodeNode(collapsed)
		if err != nil {
			return collapsed, cached
		}
		if len(enc) >= 32 {
			hash := crypto.Keccak256Hash(enc)
			inserts[hash] = enc
			hn := hashNode(hash[:])
			cached.flags.hash = hn
			cached.flags.dirty = false
			return hn, cached
		}
		return collapsed, cached

	case *fullNode:
		collapsed := n.copy()
		cached := n.copy()

		for i := 0; i < 16; i++ {
			if n.Children[i] != nil {
				childH, childC := commitNode(n.Children[i], inserts)
				collapsed.Children[i] = childH
				cached.Children[i] = childC
			}
		}

		enc, err := encodeNode(collapsed)
		if err != nil {
			return collapsed, cached
		}
		if len(enc) >= 32 {
			hash := crypto.Keccak256Hash(enc)
			inserts[hash] = enc
			hn := hashNode(hash[:])
			cached.flags.hash = hn
			cached.flags.dirty = false
			return hn, cached
		}
		return collapsed, cached
	}

	return n, n
}
