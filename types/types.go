// Package types defines the primitive identifiers shared by every
// world-state component: addresses, node hashes, and application keys.
package types

import (
	"encoding/hex"
	"errors"
)

// AddressLength is the fixed width of an Address, in bytes.
const AddressLength = 32

// HashLength is the fixed width of a Hash/NodeHash, in bytes.
const HashLength = 32

// Address identifies an account in the account trie. Unlike the
// 20-byte Ethereum address, this world state uses a 32-byte identifier
// so it can hold a hash-derived or future-proofed account key directly.
type Address [AddressLength]byte

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte { return a[:] }

// Hex returns the 0x-prefixed hex encoding of the address.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool { return a == Address{} }

// BytesToAddress right-aligns b into a 32-byte Address. Returns an error if b is longer than
// AddressLength so callers can catch malformed input instead of
// silently truncating it.
func BytesToAddress(b []byte) (Address, error) {
	var a Address
	if len(b) > AddressLength {
		return a, errors.New("types: address longer than 32 bytes")
	}
	copy(a[AddressLength-len(b):], b)
	return a, nil
}

// Hash is a 32-byte Keccak-256 digest. NodeHash (below) is an alias used
// wherever the spec speaks specifically of a trie node's content address.
type Hash [HashLength]byte

// NodeHash is the backing-store lookup key: the Keccak-256 hash of a
// trie node's encoded bytes.
type NodeHash = Hash

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// BytesToHash right-aligns b into a 32-byte Hash. Returns an error if b
// is longer than HashLength.
func BytesToHash(b []byte) (Hash, error) {
	var h Hash
	if len(b) > HashLength {
		return h, errors.New("types: hash longer than 32 bytes")
	}
	copy(h[HashLength-len(b):], b)
	return h, nil
}

// AppKey is an arbitrary-length, caller-defined key within a contract's
// storage trie.
type AppKey []byte

// AccountSuffix enumerates the five logical account fields, each
// addressed by a single suffix byte under the account's Protected
// (0x00) key namespace. See (I1) in the component design.
type AccountSuffix byte

const (
	SuffixNonce       AccountSuffix = 0x00
	SuffixBalance     AccountSuffix = 0x01
	SuffixCode        AccountSuffix = 0x02
	SuffixCBIVersion  AccountSuffix = 0x03
	SuffixStorageRoot AccountSuffix = 0x04
)

// Key-namespace discriminators used immediately after the 32-byte
// address in every raw trie key (I1).
const (
	NamespaceProtected byte = 0x00 // account field access
	NamespacePublic    byte = 0x01 // contract storage entry
)
