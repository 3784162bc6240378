package worldstate

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"

	"github.com/chainkit/worldstate/types"
)

func addr(b byte) types.Address {
	a, _ := types.BytesToAddress([]byte{b})
	return a
}

// pw builds a Power/Stake amount for test fixtures.
func pw(n uint64) *uint256.Int { return uint256.NewInt(n) }

func TestAccountKey_Layout(t *testing.T) {
	k := accountKey(addr(1), types.SuffixBalance)
	if len(k) != types.AddressLength+2 {
		t.Fatalf("len(accountKey) = %d, want %d", len(k), types.AddressLength+2)
	}
	if k[types.AddressLength] != types.NamespaceProtected {
		t.Fatalf("namespace byte = %x, want NamespaceProtected", k[types.AddressLength])
	}
	if k[types.AddressLength+1] != byte(types.SuffixBalance) {
		t.Fatalf("suffix byte = %x, want SuffixBalance", k[types.AddressLength+1])
	}
}

func TestStorageKey_Layout(t *testing.T) {
	appKey := types.AppKey{0xaa, 0xbb}
	k := storageKey(addr(2), appKey)
	if len(k) != types.AddressLength+1+len(appKey) {
		t.Fatalf("len(storageKey) = %d", len(k))
	}
	if k[types.AddressLength] != types.NamespacePublic {
		t.Fatalf("namespace byte = %x, want NamespacePublic", k[types.AddressLength])
	}
	if !bytes.Equal(k[types.AddressLength+1:], appKey) {
		t.Fatalf("appKey suffix mismatch")
	}
}

func TestU32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 42, 0xffffffff} {
		enc := encodeU32(v)
		got, err := decodeU32(enc)
		if err != nil || got != v {
			t.Fatalf("u32 roundtrip(%d) = %d, %v", v, got, err)
		}
	}
	if _, err := decodeU32([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding short u32")
	}
}

func TestU64RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 1 << 40} {
		enc := encodeU64(v)
		got, err := decodeU64(enc)
		if err != nil || got != v {
			t.Fatalf("u64 roundtrip(%d) = %d, %v", v, got, err)
		}
	}
	if _, err := decodeU64([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding short u64")
	}
}

func TestDecodeHash_LengthMismatch(t *testing.T) {
	if _, err := decodeHash([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected DecodeError for short hash")
	}
}
