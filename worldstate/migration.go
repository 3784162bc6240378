package worldstate

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chainkit/worldstate/log"
	"github.com/chainkit/worldstate/metrics"
	"github.com/chainkit/worldstate/trie"
	"github.com/chainkit/worldstate/types"
)

var migrationLog = log.Default().Module("migration")

// MigrationBudget bounds per-batch migration work. It is purely a
// throughput knob (how many addresses one goroutine claims before
// reporting a checkpoint), never a protocol rule: the migrated V2 state
// is identical regardless of its value.
type MigrationBudget struct {
	MaxAddressesPerBatch int
	Concurrency          int
}

// DefaultMigrationBudget is a reasonable default for MigrateV1ToV2.
var DefaultMigrationBudget = MigrationBudget{MaxAddressesPerBatch: 256, Concurrency: 4}

// MigrationCheckpoint lets a caller monitor a long migration. A
// checkpoint is reported each time a goroutine has migrated another
// MaxAddressesPerBatch addresses, and once more (with V2Root set) at the
// end; persisting them is the caller's responsibility (the same
// store-ownership split as backing trie.Db). MigrateV1ToV2 takes no
// checkpoint as input: every call migrates the whole V1 trie.
type MigrationCheckpoint struct {
	AddressesMigrated uint64
	BytesWritten      uint64
	V1Root            types.Hash
	V2Root            types.Hash
}

// MigrationOptions configures MigrateV1ToV2.
type MigrationOptions struct {
	Budget   MigrationBudget
	Progress func(checkpoint MigrationCheckpoint)
}

// v1Fields is the subset of account state the V1 schema carries: no
// CBIVersion, no StorageRoot field, but storage entries are present
// inline in the account trie itself, under the account's Public (0x01)
// namespace rather than a separate per-account trie (that split is new
// in V2). storage is keyed by the raw AppKey bytes.
type v1Fields struct {
	nonce   uint64
	balance uint64
	code    []byte
	storage map[string][]byte
}

// AddressSpaceSplitter partitions the 32-byte address space into n
// disjoint, ordered ranges so independent migration batches can proceed
// concurrently without overlapping.
type AddressSpaceSplitter struct {
	n int
}

func NewAddressSpaceSplitter(n int) AddressSpaceSplitter {
	if n < 1 {
		n = 1
	}
	return AddressSpaceSplitter{n: n}
}

// Assign buckets addr into one of n ranges by its leading byte, split as
// evenly as 256/n allows. Deterministic and order-preserving: addresses
// in range i are always <= addresses in range i+1.
func (s AddressSpaceSplitter) Assign(addr types.Address) int {
	bucket := int(addr[0]) * s.n / 256
	if bucket >= s.n {
		bucket = s.n - 1
	}
	return bucket
}

// MigrateV1ToV2 deterministically re-materializes the V1 account trie
// rooted at v1Root into a fresh V2 trie over the same backing store:
// Nonce and Balance and Code carry over unchanged; CBIVersion and
// StorageRoot start at their V2 defaults (absent). v1Root is never
// mutated. The V1 trie is decoded in one sequential pass first; the
// addresses are then split into ranges written concurrently via
// golang.org/x/sync/errgroup, each address's writes to the shared
// destination trie serialized behind a mutex.
func MigrateV1ToV2(backing trie.Db, v1Root types.Hash, opts MigrationOptions) (types.Hash, WorldStateChanges, error) {
	budget := opts.Budget
	if budget.MaxAddressesPerBatch <= 0 {
		budget = DefaultMigrationBudget
	}
	if budget.Concurrency <= 0 {
		budget.Concurrency = DefaultMigrationBudget.Concurrency
	}

	src, err := trie.Open(backing, v1Root)
	if err != nil {
		return types.Hash{}, WorldStateChanges{}, err
	}

	fields := make(map[types.Address]*v1Fields)
	err = src.Each(func(key, value []byte) error {
		if len(key) < types.AddressLength+2 {
			return nil
		}
		addr, err := types.BytesToAddress(key[:types.AddressLength])
		if err != nil {
			return &ErrMigration{Err: err}
		}
		f, ok := fields[addr]
		if !ok {
			f = &v1Fields{}
			fields[addr] = f
		}
		switch key[types.AddressLength] {
		case types.NamespaceProtected:
			switch types.AccountSuffix(key[types.AddressLength+1]) {
			case types.SuffixNonce:
				n, err := decodeU64(value)
				if err != nil {
					return &ErrMigration{Address: addr, Err: err}
				}
				f.nonce = n
			case types.SuffixBalance:
				b, err := decodeU64(value)
				if err != nil {
					return &ErrMigration{Address: addr, Err: err}
				}
				f.balance = b
			case types.SuffixCode:
				f.code = append([]byte(nil), value...)
			}
		case types.NamespacePublic:
			appKey := key[types.AddressLength+1:]
			if f.storage == nil {
				f.storage = make(map[string][]byte)
			}
			f.storage[string(appKey)] = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil {
		return types.Hash{}, WorldStateChanges{}, err
	}

	addrs := make([]types.Address, 0, len(fields))
	for addr := range fields {
		addrs = append(addrs, addr)
	}

	dst, err := openAccountTrie(backing, trie.EmptyRootHash)
	if err != nil {
		return types.Hash{}, WorldStateChanges{}, err
	}

	splitter := NewAddressSpaceSplitter(budget.Concurrency)
	batches := make([][]types.Address, budget.Concurrency)
	for _, addr := range addrs {
		b := splitter.Assign(addr)
		batches[b] = append(batches[b], addr)
	}

	var mu sync.Mutex
	var migrated, written atomic.Uint64

	var g errgroup.Group
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			batchStart := time.Now()
			count := 0
			for _, addr := range batch {
				f := fields[addr]
				nonce, balance, code := f.nonce, f.balance, f.code
				storageBytes := 0

				mu.Lock()
				err := dst.SetNonce(addr, nonce)
				if err == nil {
					err = dst.SetBalance(addr, balance)
				}
				if err == nil && len(code) > 0 {
					err = dst.SetCode(addr, code)
				}
				if err == nil && len(f.storage) > 0 {
					var st *StorageTrie
					st, err = dst.Storage(addr)
					for appKey, value := range f.storage {
						if err != nil {
							break
						}
						err = st.Set(types.AppKey(appKey), value)
						storageBytes += len(appKey) + len(value)
					}
				}
				mu.Unlock()
				if err != nil {
					return &ErrMigration{Address: addr, Err: err}
				}

				migrated.Add(1)
				written.Add(uint64(8 + 8 + len(code) + storageBytes))
				metrics.MigrationAddresses.Inc()
				metrics.MigrationBytes.Add(int64(8 + 8 + len(code) + storageBytes))
				count++
				if opts.Progress != nil && count%budget.MaxAddressesPerBatch == 0 {
					opts.Progress(MigrationCheckpoint{
						AddressesMigrated: migrated.Load(),
						BytesWritten:      written.Load(),
						V1Root:            v1Root,
					})
				}
			}
			metrics.MigrationBatchMs.Observe(float64(time.Since(batchStart).Milliseconds()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.Hash{}, WorldStateChanges{}, err
	}

	inserts := make(map[types.Hash][]byte)
	deletes := make(map[types.Hash]struct{})

	// Commit every migrated address's storage trie (deterministically,
	// in ascending address order, mirroring WorldState.Commit) before
	// the account trie, so each account's StorageRoot field reflects
	// its migrated storage.
	storageAddrs := make([]types.Address, 0, len(dst.storages))
	for addr := range dst.storages {
		storageAddrs = append(storageAddrs, addr)
	}
	sort.Slice(storageAddrs, func(i, j int) bool {
		return lessAddress(storageAddrs[i], storageAddrs[j])
	})
	for _, addr := range storageAddrs {
		st := dst.storages[addr]
		root, ins, del, err := st.commit()
		if err != nil {
			return types.Hash{}, WorldStateChanges{}, err
		}
		mergeDelta(inserts, deletes, ins, del)
		if err := dst.SetStorageRoot(addr, root); err != nil {
			return types.Hash{}, WorldStateChanges{}, err
		}
	}

	v2Root, accountIns, accountDel, err := dst.commit()
	if err != nil {
		return types.Hash{}, WorldStateChanges{}, err
	}
	mergeDelta(inserts, deletes, accountIns, accountDel)
	dedup(inserts, deletes)
	migrationLog.With("v1Root", v1Root.Hex(), "v2Root", v2Root.Hex(), "addresses", migrated.Load()).
		Info("migration complete")
	if opts.Progress != nil {
		opts.Progress(MigrationCheckpoint{
			AddressesMigrated: migrated.Load(),
			BytesWritten:      written.Load(),
			V1Root:            v1Root,
			V2Root:            v2Root,
		})
	}

	return v2Root, WorldStateChanges{Inserts: inserts, Deletes: deletes, NewStateHash: v2Root}, nil
}
