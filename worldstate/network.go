package worldstate

import (
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/chainkit/worldstate/types"
)

// NetworkAddr is the fixed, protocol-designated address whose storage
// trie holds all network (validator-set / staking) state (C7). It is
// chosen the way the teacher reserves low-valued addresses for built-in
// system contracts: no account ever legitimately derives this value, so
// collisions with user or contract accounts cannot occur.
var NetworkAddr = mustNetworkAddr()

func mustNetworkAddr() types.Address {
	a, err := types.BytesToAddress([]byte{0x4e, 0x45, 0x54, 0x57, 0x4f, 0x52, 0x4b}) // "NETWORK"
	if err != nil {
		panic(err)
	}
	return a
}

// Sub-collection discriminators within the network account's storage
// trie (§4.7's prefix table).
const (
	collectionPVS            byte = 0x00
	collectionVS             byte = 0x01
	collectionNVS            byte = 0x02
	collectionActivePools    byte = 0x03
	collectionDeposits       byte = 0x04
	collectionCurrentEpoch   byte = 0x05
	collectionEpochStartView byte = 0x06
	collectionPrevStartView  byte = 0x07
	collectionEvidence       byte = 0x08
)

// Field suffixes spreading an Active Pool's mutable record across
// prefix++0x03++Operator++{0x00..0x04}. The base fields (Power,
// RewardAddress, Commission, Status) are this implementation's own
// concrete byte layout, since the table that originally fixed them
// wasn't available to this implementation; see DESIGN.md.
const (
	poolFieldPower         byte = 0x00
	poolFieldRewardAddress byte = 0x01
	poolFieldCommission    byte = 0x02
	poolFieldStatus        byte = 0x03
	poolFieldStakes        byte = 0x04
)

// Pool statuses.
const (
	PoolStatusActive byte = 0x00
	PoolStatusJailed byte = 0x01
)

// Pool is a validator pool's full mutable record. Power is a Power/Stake
// amount (§3: uint256.Int, not a bare uint64).
type Pool struct {
	Power         *uint256.Int
	RewardAddress types.Address
	Commission    uint32
	Status        byte
}

// PoolKey is the (operator, power) summary stored by NVS, in the exact
// shape an IndexHeap record already holds.
type PoolKey struct {
	Operator types.Address
	Power    *uint256.Int
}

// encodePool/decodePool: fixed 32+32+4+1 = 69 bytes, used for PVS/VS
// snapshot records (full Pool, no live stake subtree).
func encodePool(p Pool) []byte {
	b := make([]byte, 69)
	copy(b[0:32], encodeU256(p.Power))
	copy(b[32:64], p.RewardAddress.Bytes())
	binary.LittleEndian.PutUint32(b[64:68], p.Commission)
	b[68] = p.Status
	return b
}

func decodePool(b []byte) (Pool, error) {
	if len(b) != 69 {
		return Pool{}, &DecodeError{Field: "pool", Want: 69, Got: len(b)}
	}
	power, err := decodeU256(b[0:32])
	if err != nil {
		return Pool{}, err
	}
	addr, err := types.BytesToAddress(b[32:64])
	if err != nil {
		return Pool{}, err
	}
	return Pool{
		Power:         power,
		RewardAddress: addr,
		Commission:    binary.LittleEndian.Uint32(b[64:68]),
		Status:        b[68],
	}, nil
}

// Network is a typed view over the fixed NETWORK_ADDR storage trie.
type Network struct {
	trie              *StorageTrie
	validatorCapacity int
	stakeCapacity     int
}

// OpenNetwork wraps an already-open NETWORK_ADDR storage trie. validatorCapacity
// bounds PVS/VS/NVS-adjacent heaps (here: NVS, the only one of the three
// backed by an IndexHeap); stakeCapacity bounds each pool's delegated-
// stake heap.
func OpenNetwork(trie *StorageTrie, validatorCapacity, stakeCapacity int) *Network {
	return &Network{trie: trie, validatorCapacity: validatorCapacity, stakeCapacity: stakeCapacity}
}

func snapshotKey(collection byte, operator types.Address) types.AppKey {
	k := make([]byte, 1+types.AddressLength)
	k[0] = collection
	copy(k[1:], operator.Bytes())
	return k
}

// PVSPool/VSPool: full-record snapshots, immutable between epoch
// rebuilds (no delegated-stake subtree).
func (n *Network) PVSPool(operator types.Address) (Pool, bool) {
	return n.snapshotPool(collectionPVS, operator)
}

func (n *Network) SetPVSPool(operator types.Address, p Pool) error {
	return n.trie.Set(snapshotKey(collectionPVS, operator), encodePool(p))
}

func (n *Network) RemovePVSPool(operator types.Address) error {
	return n.trie.Remove(snapshotKey(collectionPVS, operator))
}

func (n *Network) VSPool(operator types.Address) (Pool, bool) {
	return n.snapshotPool(collectionVS, operator)
}

func (n *Network) SetVSPool(operator types.Address, p Pool) error {
	return n.trie.Set(snapshotKey(collectionVS, operator), encodePool(p))
}

func (n *Network) RemoveVSPool(operator types.Address) error {
	return n.trie.Remove(snapshotKey(collectionVS, operator))
}

func (n *Network) snapshotPool(collection byte, operator types.Address) (Pool, bool) {
	v, ok := n.trie.Get(snapshotKey(collection, operator))
	if !ok {
		return Pool{}, false
	}
	p, err := decodePool(v)
	if err != nil {
		return Pool{}, false
	}
	return p, true
}

// NVS is the Next Validator Set: PoolKey (operator, power) summaries
// only, backed directly by a bounded IndexHeap.
func (n *Network) NVS() *IndexHeap {
	return NewIndexHeap(n.trie.store, []byte{collectionNVS}, n.validatorCapacity)
}

func poolPrefix(operator types.Address) []byte {
	k := make([]byte, 1+types.AddressLength)
	k[0] = collectionActivePools
	copy(k[1:], operator.Bytes())
	return k
}

func poolFieldKey(operator types.Address, field byte) types.AppKey {
	return append(poolPrefix(operator), field)
}

// ActivePool reads an active pool's mutable base fields (not its
// delegated-stake heap). ok is false if the operator has no active pool.
func (n *Network) ActivePool(operator types.Address) (Pool, bool) {
	powerB, ok := n.trie.Get(poolFieldKey(operator, poolFieldPower))
	if !ok {
		return Pool{}, false
	}
	power, err := decodeU256(powerB)
	if err != nil {
		return Pool{}, false
	}
	var pool Pool
	pool.Power = power
	if rb, ok := n.trie.Get(poolFieldKey(operator, poolFieldRewardAddress)); ok {
		if addr, err := types.BytesToAddress(rb); err == nil {
			pool.RewardAddress = addr
		}
	}
	if cb, ok := n.trie.Get(poolFieldKey(operator, poolFieldCommission)); ok {
		if c, err := decodeU32(cb); err == nil {
			pool.Commission = c
		}
	}
	if sb, ok := n.trie.Get(poolFieldKey(operator, poolFieldStatus)); ok && len(sb) == 1 {
		pool.Status = sb[0]
	}
	return pool, true
}

// SetActivePool writes (or updates) an active pool's base fields.
// Setting Power to 0 removes the pool's base fields entirely (the
// delegated-stake heap, if any, is left for the caller to drain first).
func (n *Network) SetActivePool(operator types.Address, p Pool) error {
	if p.Power == nil || p.Power.IsZero() {
		return n.RemoveActivePool(operator)
	}
	if err := n.trie.Set(poolFieldKey(operator, poolFieldPower), encodeU256(p.Power)); err != nil {
		return err
	}
	if err := n.trie.Set(poolFieldKey(operator, poolFieldRewardAddress), p.RewardAddress.Bytes()); err != nil {
		return err
	}
	if err := n.trie.Set(poolFieldKey(operator, poolFieldCommission), encodeU32(p.Commission)); err != nil {
		return err
	}
	return n.trie.Set(poolFieldKey(operator, poolFieldStatus), []byte{p.Status})
}

// RemoveActivePool removes a pool's base fields.
func (n *Network) RemoveActivePool(operator types.Address) error {
	for _, f := range []byte{poolFieldPower, poolFieldRewardAddress, poolFieldCommission, poolFieldStatus} {
		if err := n.trie.Remove(poolFieldKey(operator, f)); err != nil {
			return err
		}
	}
	return nil
}

// DelegatedStakes opens the nested index heap of delegated Stakes for a
// pool operator (§4.8's "per-pool delegated stakes" heap instance).
// Identity is the staking owner's Address; Power is stake amount.
func (n *Network) DelegatedStakes(operator types.Address) *IndexHeap {
	prefix := append(poolPrefix(operator), poolFieldStakes)
	return NewIndexHeap(n.trie.store, prefix, n.stakeCapacity)
}

func depositKey(depositor types.Address) types.AppKey {
	k := make([]byte, 1+types.AddressLength)
	k[0] = collectionDeposits
	copy(k[1:], depositor.Bytes())
	return k
}

// Deposit returns the pending deposit amount for depositor, 0 if absent.
func (n *Network) Deposit(depositor types.Address) (uint64, error) {
	v, ok := n.trie.Get(depositKey(depositor))
	if !ok {
		return 0, nil
	}
	return decodeU64(v)
}

// SetDeposit sets a pending deposit. Setting it to 0 removes the entry.
func (n *Network) SetDeposit(depositor types.Address, amount uint64) error {
	if amount == 0 {
		return n.trie.Remove(depositKey(depositor))
	}
	return n.trie.Set(depositKey(depositor), encodeU64(amount))
}

func scalarKey(collection byte) types.AppKey { return types.AppKey{collection} }

func (n *Network) scalar(collection byte) (uint64, error) {
	v, ok := n.trie.Get(scalarKey(collection))
	if !ok {
		return 0, nil
	}
	return decodeU64(v)
}

func (n *Network) setScalar(collection byte, v uint64) error {
	if v == 0 {
		return n.trie.Remove(scalarKey(collection))
	}
	return n.trie.Set(scalarKey(collection), encodeU64(v))
}

func (n *Network) CurrentEpoch() (uint64, error) { return n.scalar(collectionCurrentEpoch) }
func (n *Network) SetCurrentEpoch(e uint64) error { return n.setScalar(collectionCurrentEpoch, e) }

func (n *Network) CurrentEpochStartView() (uint64, error) {
	return n.scalar(collectionEpochStartView)
}
func (n *Network) SetCurrentEpochStartView(v uint64) error {
	return n.setScalar(collectionEpochStartView, v)
}

func (n *Network) PreviousEpochStartView() (uint64, error) {
	return n.scalar(collectionPrevStartView)
}
func (n *Network) SetPreviousEpochStartView(v uint64) error {
	return n.setScalar(collectionPrevStartView, v)
}

func evidenceKey(evidenceHash types.Hash) types.AppKey {
	k := make([]byte, 1+types.HashLength)
	k[0] = collectionEvidence
	copy(k[1:], evidenceHash.Bytes())
	return k
}

// EvidencePublished reports whether evidenceHash has already been
// recorded.
func (n *Network) EvidencePublished(evidenceHash types.Hash) bool {
	return n.trie.Contains(evidenceKey(evidenceHash))
}

// PublishEvidence records evidenceHash with the presence sentinel.
func (n *Network) PublishEvidence(evidenceHash types.Hash) error {
	return n.trie.Set(evidenceKey(evidenceHash), []byte{0x01})
}

// RebuildNVS implements the epoch-boundary rebuild: insert every active
// pool's PoolKey into a fresh capacity-validatorCapacity heap, retaining
// only the top-N by (Power desc, Operator desc) (I6).
func (n *Network) RebuildNVS(pools []PoolKey) error {
	entries := make([]HeapEntry, len(pools))
	for i, p := range pools {
		entries[i] = HeapEntry{Identity: p.Operator.Bytes(), Power: p.Power}
	}
	return n.NVS().Rebuild(entries)
}
