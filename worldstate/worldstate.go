// Package worldstate implements the account/storage trie pair, the
// world-state cache/commit protocol, the network account schema, and
// the V1-to-V2 migration path this library's host chain uses to track
// account balances, contract code and storage, and validator staking
// state.
package worldstate

import (
	"errors"
	"sort"
	"time"

	"github.com/chainkit/worldstate/log"
	"github.com/chainkit/worldstate/metrics"
	"github.com/chainkit/worldstate/trie"
	"github.com/chainkit/worldstate/types"
)

var wsLog = log.Default().Module("worldstate")

// Default capacities for the network account's bounded heaps; callers
// that need a different validator-set or delegated-stake bound should
// rebuild the Network view with OpenNetwork directly.
const (
	DefaultValidatorCapacity = 256
	DefaultStakeCapacity     = 1024
)

// ErrClosed is returned by any WorldState method invoked after Close.
var ErrClosed = errors.New("worldstate: use of closed WorldState")

// ErrMigration wraps a migration failure with the offending address.
type ErrMigration struct {
	Address types.Address
	Err     error
}

func (e *ErrMigration) Error() string {
	return "worldstate: migration failed at address " + e.Address.Hex() + ": " + e.Err.Error()
}

func (e *ErrMigration) Unwrap() error { return e.Err }

// WorldStateChanges is the node delta produced by a commit: content-
// addressed node bytes to insert, node hashes to delete, and the new
// root (state hash). Inserts and Deletes never share a key (§4.6).
type WorldStateChanges struct {
	Inserts      map[types.Hash][]byte
	Deletes      map[types.Hash]struct{}
	NewStateHash types.Hash
}

// WorldState is the top-level handle over one account trie, its lazily
// opened per-account storage tries, and the network account. Every
// StorageTrie it opens stays open (in AccountTrie.storages) and is
// committed again by each later Commit; it also mediates direct vs
// cached mutation (§4.6).
type WorldState struct {
	backing  trie.Db
	accounts *AccountTrie
	cached   bool
	closed   bool

	validatorCapacity int
	stakeCapacity     int
}

// New opens an empty WorldState (direct mode) over backing.
func New(backing trie.Db) *WorldState {
	ws, err := Open(backing, trie.EmptyRootHash)
	if err != nil {
		// Opening the well-known empty root never fails.
		panic(err)
	}
	return ws
}

// Open opens the WorldState rooted at root (direct mode).
func Open(backing trie.Db, root types.Hash) (*WorldState, error) {
	accounts, err := openAccountTrie(backing, root)
	if err != nil {
		return nil, err
	}
	return &WorldState{
		backing:           backing,
		accounts:          accounts,
		validatorCapacity: DefaultValidatorCapacity,
		stakeCapacity:     DefaultStakeCapacity,
	}, nil
}

// SetCached switches between direct mode (every setter applies
// immediately) and cached mode (setters buffer into a per-trie overlay,
// read-through, drained at commit). Disabling cached mode flushes any
// pending overlay first, so both modes always observe the same reads.
func (ws *WorldState) SetCached(enabled bool) error {
	if ws.closed {
		return ErrClosed
	}
	if err := ws.accounts.setCached(enabled); err != nil {
		return err
	}
	for _, st := range ws.accounts.storages {
		if err := st.setCached(enabled); err != nil {
			return err
		}
	}
	ws.cached = enabled
	return nil
}

// Cached reports whether the WorldState is currently in cached mode.
func (ws *WorldState) Cached() bool { return ws.cached }

// GetNonce returns addr's nonce (0 if the account is absent).
func (ws *WorldState) GetNonce(addr types.Address) (uint64, error) {
	if ws.closed {
		return 0, ErrClosed
	}
	return ws.accounts.Nonce(addr)
}

// SetNonce sets addr's nonce.
func (ws *WorldState) SetNonce(addr types.Address, nonce uint64) error {
	if ws.closed {
		return ErrClosed
	}
	return ws.accounts.SetNonce(addr, nonce)
}

// GetBalance returns addr's balance (0 if the account is absent).
func (ws *WorldState) GetBalance(addr types.Address) (uint64, error) {
	if ws.closed {
		return 0, ErrClosed
	}
	return ws.accounts.Balance(addr)
}

// SetBalance sets addr's balance.
func (ws *WorldState) SetBalance(addr types.Address, balance uint64) error {
	if ws.closed {
		return ErrClosed
	}
	return ws.accounts.SetBalance(addr, balance)
}

// GetCode returns addr's code (nil if absent).
func (ws *WorldState) GetCode(addr types.Address) ([]byte, error) {
	if ws.closed {
		return nil, ErrClosed
	}
	return ws.accounts.Code(addr)
}

// SetCode sets addr's code. A nil or empty slice removes it (Open
// Question, resolved: see DESIGN.md).
func (ws *WorldState) SetCode(addr types.Address, code []byte) error {
	if ws.closed {
		return ErrClosed
	}
	return ws.accounts.SetCode(addr, code)
}

// GetCBIVersion returns addr's contract-binary-interface version (0 if
// absent).
func (ws *WorldState) GetCBIVersion(addr types.Address) (uint32, error) {
	if ws.closed {
		return 0, ErrClosed
	}
	return ws.accounts.CBIVersion(addr)
}

// SetCBIVersion sets addr's CBI version.
func (ws *WorldState) SetCBIVersion(addr types.Address, version uint32) error {
	if ws.closed {
		return ErrClosed
	}
	return ws.accounts.SetCBIVersion(addr, version)
}

// GetStorageHash returns addr's current storage root. There is no
// SetStorageHash: it is only ever produced by committing that address's
// storage trie (see Commit).
func (ws *WorldState) GetStorageHash(addr types.Address) (types.Hash, error) {
	if ws.closed {
		return types.Hash{}, ErrClosed
	}
	if st, ok := ws.accounts.storages[addr]; ok {
		return st.Root(), nil
	}
	return ws.accounts.StorageRoot(addr)
}

// Get reads appKey from addr's storage trie.
func (ws *WorldState) Get(addr types.Address, appKey types.AppKey) ([]byte, bool, error) {
	if ws.closed {
		return nil, false, ErrClosed
	}
	st, err := ws.accounts.Storage(addr)
	if err != nil {
		return nil, false, err
	}
	v, ok := st.Get(appKey)
	return v, ok, nil
}

// Set writes appKey in addr's storage trie.
func (ws *WorldState) Set(addr types.Address, appKey types.AppKey, value []byte) error {
	if ws.closed {
		return ErrClosed
	}
	st, err := ws.accounts.Storage(addr)
	if err != nil {
		return err
	}
	return st.Set(appKey, value)
}

// Remove deletes appKey from addr's storage trie.
func (ws *WorldState) Remove(addr types.Address, appKey types.AppKey) error {
	if ws.closed {
		return ErrClosed
	}
	st, err := ws.accounts.Storage(addr)
	if err != nil {
		return err
	}
	return st.Remove(appKey)
}

// Network opens the fixed NETWORK_ADDR storage trie as a typed Network
// view (§4.7).
func (ws *WorldState) Network() (*Network, error) {
	if ws.closed {
		return nil, ErrClosed
	}
	st, err := ws.accounts.Storage(NetworkAddr)
	if err != nil {
		return nil, err
	}
	return OpenNetwork(st, ws.validatorCapacity, ws.stakeCapacity), nil
}

// Commit drains any pending cache, commits every touched storage trie
// (deterministically, in ascending address order) followed by the
// account trie, and returns the aggregated node delta and new state
// hash (§4.6). WorldState remains usable afterward.
func (ws *WorldState) Commit() (types.Hash, WorldStateChanges, error) {
	if ws.closed {
		return types.Hash{}, WorldStateChanges{}, ErrClosed
	}
	start := time.Now()
	defer func() {
		metrics.CommitsTotal.Inc()
		metrics.CommitDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	}()

	inserts := make(map[types.Hash][]byte)
	deletes := make(map[types.Hash]struct{})

	addrs := make([]types.Address, 0, len(ws.accounts.storages))
	for addr := range ws.accounts.storages {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return lessAddress(addrs[i], addrs[j])
	})

	for _, addr := range addrs {
		st := ws.accounts.storages[addr]
		root, ins, del, err := st.commit()
		if err != nil {
			return types.Hash{}, WorldStateChanges{}, err
		}
		mergeDelta(inserts, deletes, ins, del)
		if err := ws.accounts.SetStorageRoot(addr, root); err != nil {
			return types.Hash{}, WorldStateChanges{}, err
		}
	}

	root, ins, del, err := ws.accounts.commit()
	if err != nil {
		return types.Hash{}, WorldStateChanges{}, err
	}
	mergeDelta(inserts, deletes, ins, del)
	dedup(inserts, deletes)

	metrics.NodesInserted.Add(int64(len(inserts)))
	metrics.NodesDeleted.Add(int64(len(deletes)))
	wsLog.With("root", root.Hex(), "inserts", len(inserts), "deletes", len(deletes)).
		Debug("commit")

	return root, WorldStateChanges{Inserts: inserts, Deletes: deletes, NewStateHash: root}, nil
}

// Close commits any pending work and marks the WorldState unusable.
// Dropping a WorldState without calling Close is always safe: nothing
// outside the backing store's Db.Get calls has been touched.
func (ws *WorldState) Close() (types.Hash, WorldStateChanges, error) {
	root, changes, err := ws.Commit()
	if err != nil {
		return types.Hash{}, WorldStateChanges{}, err
	}
	ws.closed = true
	return root, changes, nil
}

func lessAddress(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func mergeDelta(inserts map[types.Hash][]byte, deletes map[types.Hash]struct{}, ins map[types.Hash][]byte, del map[types.Hash]struct{}) {
	for h, b := range ins {
		inserts[h] = b
	}
	for h := range del {
		deletes[h] = struct{}{}
	}
}

// dedup drops any hash present in both sets, aggregated across every
// trie committed this round (§4.6).
func dedup(inserts map[types.Hash][]byte, deletes map[types.Hash]struct{}) {
	for h := range inserts {
		if _, ok := deletes[h]; ok {
			delete(inserts, h)
			delete(deletes, h)
		}
	}
}
