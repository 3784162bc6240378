// Package crypto provides the Keccak-256 hashing used throughout the
// world-state library for trie node and state-root hashing.
package crypto

import (
	"github.com/chainkit/worldstate/types"
	"golang.org/x/crypto/sha3"
)

// Keccak256 calculates the Keccak-256 hash of the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a types.Hash.
func Keccak256Hash(data ...[]byte) types.Hash {
	h, err := types.BytesToHash(Keccak256(data...))
	if err != nil {
		// Keccak256 always returns exactly 32 bytes.
		panic(err)
	}
	return h
}
