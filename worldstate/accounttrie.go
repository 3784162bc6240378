package worldstate

import (
	"github.com/chainkit/worldstate/trie"
	"github.com/chainkit/worldstate/types"
)

// AccountTrie is the outer MPT keyed by account_key(addr, suffix). It
// owns the per-account storage tries (lazily opened, kept until commit)
// the way the teacher's AccountTrieDB owns its storageTries map.
type AccountTrie struct {
	engine   *trie.Engine
	store    kvStore
	backing  trie.Db
	storages map[types.Address]*StorageTrie
}

func openAccountTrie(backing trie.Db, root types.Hash) (*AccountTrie, error) {
	e, err := trie.Open(backing, root)
	if err != nil {
		return nil, err
	}
	return &AccountTrie{
		engine:   e,
		store:    e,
		backing:  backing,
		storages: make(map[types.Address]*StorageTrie),
	}, nil
}

// setCached installs (enabled) or removes (disabled, flushing first) the
// overlay buffering writes against this trie's engine.
func (a *AccountTrie) setCached(enabled bool) error {
	if enabled {
		if _, ok := a.store.(*overlayView); !ok {
			a.store = newOverlayView(a.engine)
		}
		return nil
	}
	if ov, ok := a.store.(*overlayView); ok {
		if err := ov.flush(); err != nil {
			return err
		}
	}
	a.store = a.engine
	return nil
}

func (a *AccountTrie) getField(addr types.Address, suffix types.AccountSuffix) ([]byte, bool) {
	v, err := a.store.Get(accountKey(addr, suffix))
	if err != nil {
		return nil, false
	}
	return v, true
}

func (a *AccountTrie) setField(addr types.Address, suffix types.AccountSuffix, value []byte) error {
	if len(value) == 0 {
		return a.store.Remove(accountKey(addr, suffix))
	}
	return a.store.Put(accountKey(addr, suffix), value)
}

// Nonce returns the account's nonce, 0 if absent (I3).
func (a *AccountTrie) Nonce(addr types.Address) (uint64, error) {
	v, ok := a.getField(addr, types.SuffixNonce)
	if !ok {
		return 0, nil
	}
	return decodeU64(v)
}

// SetNonce sets the nonce. Setting it to 0 removes the entry (I3).
func (a *AccountTrie) SetNonce(addr types.Address, nonce uint64) error {
	if nonce == 0 {
		return a.store.Remove(accountKey(addr, types.SuffixNonce))
	}
	return a.store.Put(accountKey(addr, types.SuffixNonce), encodeU64(nonce))
}

// Balance returns the account's balance, 0 if absent (I3).
func (a *AccountTrie) Balance(addr types.Address) (uint64, error) {
	v, ok := a.getField(addr, types.SuffixBalance)
	if !ok {
		return 0, nil
	}
	return decodeU64(v)
}

// SetBalance sets the balance. Setting it to 0 removes the entry (I3).
func (a *AccountTrie) SetBalance(addr types.Address, balance uint64) error {
	if balance == 0 {
		return a.store.Remove(accountKey(addr, types.SuffixBalance))
	}
	return a.store.Put(accountKey(addr, types.SuffixBalance), encodeU64(balance))
}

// Code returns the account's code, nil if absent (I3).
func (a *AccountTrie) Code(addr types.Address) ([]byte, error) {
	v, ok := a.getField(addr, types.SuffixCode)
	if !ok {
		return nil, nil
	}
	return v, nil
}

// SetCode sets the account's code. An empty or nil slice removes the
// entry (the "remove code" reading of the set_code-with-empty-bytes
// Open Question; see DESIGN.md).
func (a *AccountTrie) SetCode(addr types.Address, code []byte) error {
	return a.setField(addr, types.SuffixCode, code)
}

// CBIVersion returns the contract-binary-interface version, 0 if absent.
func (a *AccountTrie) CBIVersion(addr types.Address) (uint32, error) {
	v, ok := a.getField(addr, types.SuffixCBIVersion)
	if !ok {
		return 0, nil
	}
	return decodeU32(v)
}

// SetCBIVersion sets the CBI version. Setting it to 0 removes the entry.
func (a *AccountTrie) SetCBIVersion(addr types.Address, version uint32) error {
	if version == 0 {
		return a.store.Remove(accountKey(addr, types.SuffixCBIVersion))
	}
	return a.store.Put(accountKey(addr, types.SuffixCBIVersion), encodeU32(version))
}

// StorageRoot returns the account's StorageRoot field, trie.EmptyRootHash
// if absent (I3: absent storage means empty storage).
func (a *AccountTrie) StorageRoot(addr types.Address) (types.Hash, error) {
	v, ok := a.getField(addr, types.SuffixStorageRoot)
	if !ok {
		return trie.EmptyRootHash, nil
	}
	return decodeHash(v)
}

// SetStorageRoot sets the account's StorageRoot field directly. Setting
// it to the empty-trie root removes the entry, preserving I3.
func (a *AccountTrie) SetStorageRoot(addr types.Address, root types.Hash) error {
	if root == trie.EmptyRootHash {
		return a.store.Remove(accountKey(addr, types.SuffixStorageRoot))
	}
	return a.store.Put(accountKey(addr, types.SuffixStorageRoot), root.Bytes())
}

// Storage lazily opens (or creates) the contract's storage trie using
// the address's current StorageRoot, and keeps it open (owned by the
// account trie) until commit.
func (a *AccountTrie) Storage(addr types.Address) (*StorageTrie, error) {
	if st, ok := a.storages[addr]; ok {
		return st, nil
	}
	root, err := a.StorageRoot(addr)
	if err != nil {
		return nil, err
	}
	st, err := openStorageTrie(a.backing, root)
	if err != nil {
		return nil, err
	}
	if _, cached := a.store.(*overlayView); cached {
		if err := st.setCached(true); err != nil {
			return nil, err
		}
	}
	a.storages[addr] = st
	return st, nil
}

// Root returns the account trie's current root hash without committing.
func (a *AccountTrie) Root() types.Hash {
	return a.engine.Hash()
}

// commit flushes any pending account-trie overlay and hashes the trie,
// returning the node delta since it was opened or last committed.
func (a *AccountTrie) commit() (types.Hash, map[types.Hash][]byte, map[types.Hash]struct{}, error) {
	if ov, ok := a.store.(*overlayView); ok {
		if err := ov.flush(); err != nil {
			return types.Hash{}, nil, nil, err
		}
	}
	return a.engine.Commit()
}
