// keycodec.go implements the raw trie key layout (I1) and the fixed-width
// value codecs used throughout the world-state tries. Unlike the
// teacher's account_trie.go, which RLP-encodes the whole account as one
// blob under a Keccak-hashed key, this codec is deliberately the wire
// format the spec mandates: one key per field, fixed-width little-endian
// integers, raw bytes otherwise. RLP stays scoped to internal trie-node
// structure (see the trie package); it never appears here.
package worldstate

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/chainkit/worldstate/types"
)

// DecodeError reports a value whose length doesn't match its codec.
type DecodeError struct {
	Field string
	Want  int
	Got   int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("worldstate: decode %s: want %d bytes, got %d", e.Field, e.Want, e.Got)
}

// accountKey implements addr||0x00||suffix (I1).
func accountKey(addr types.Address, suffix types.AccountSuffix) []byte {
	k := make([]byte, types.AddressLength+2)
	copy(k, addr.Bytes())
	k[types.AddressLength] = types.NamespaceProtected
	k[types.AddressLength+1] = byte(suffix)
	return k
}

// storageKey implements addr||0x01||app_key (I1): the V1 wire format,
// where every account's contract storage sits inline in the one shared
// account trie. V2 moves storage into a separate per-account
// StorageTrie (§4.4) whose physical keys are the bare AppKey, address
// implicit in which trie it is — so nothing in this package's write
// path builds a storageKey for itself. Only tests call it, to author
// the V1 layout that MigrateV1ToV2 consumes; MigrateV1ToV2 splits V1
// keys itself rather than going through this helper.
func storageKey(addr types.Address, appKey types.AppKey) []byte {
	k := make([]byte, types.AddressLength+1+len(appKey))
	copy(k, addr.Bytes())
	k[types.AddressLength] = types.NamespacePublic
	copy(k[types.AddressLength+1:], appKey)
	return k
}

// encodeU32 fixed-width little-endian, per I5.
func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func decodeU32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, &DecodeError{Field: "u32", Want: 4, Got: len(b)}
	}
	return binary.LittleEndian.Uint32(b), nil
}

// encodeU64 fixed-width little-endian, per I5.
func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, &DecodeError{Field: "u64", Want: 8, Got: len(b)}
	}
	return binary.LittleEndian.Uint64(b), nil
}

// encodeU256/decodeU256: fixed 32-byte little-endian, the wire format for
// Power/Stake amounts (§3's uint256.Int numeric type, still fixed-width
// LE per I5).
func encodeU256(v *uint256.Int) []byte {
	b := v.Bytes32()
	// uint256.Bytes32 is big-endian; the wire format is little-endian.
	reverse(b[:])
	return b[:]
}

func decodeU256(b []byte) (*uint256.Int, error) {
	if len(b) != 32 {
		return nil, &DecodeError{Field: "u256", Want: 32, Got: len(b)}
	}
	var be [32]byte
	copy(be[:], b)
	reverse(be[:])
	return new(uint256.Int).SetBytes32(be[:]), nil
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// decodeHash validates a raw 32-byte hash value.
func decodeHash(b []byte) (types.Hash, error) {
	if len(b) != types.HashLength {
		return types.Hash{}, &DecodeError{Field: "hash", Want: types.HashLength, Got: len(b)}
	}
	return types.BytesToHash(b)
}
