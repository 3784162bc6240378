package storage

import (
	"testing"

	"github.com/chainkit/worldstate/types"
)

func TestMemDB_GetMissing(t *testing.T) {
	db := NewMemDB()
	h, _ := types.BytesToHash([]byte{1})
	if _, ok, err := db.Get(h); ok || err != nil {
		t.Fatalf("Get on empty db = ok:%v err:%v", ok, err)
	}
}

func TestMemDB_ApplyInsertsAndDeletes(t *testing.T) {
	db := NewMemDB()
	h1, _ := types.BytesToHash([]byte{1})
	h2, _ := types.BytesToHash([]byte{2})

	db.Apply(map[types.Hash][]byte{h1: []byte("a"), h2: []byte("b")}, nil)
	if db.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", db.Len())
	}

	db.Apply(nil, map[types.Hash]struct{}{h1: {}})
	if db.Len() != 1 {
		t.Fatalf("Len() after delete = %d, want 1", db.Len())
	}
	if _, ok, _ := db.Get(h1); ok {
		t.Fatal("expected h1 to be gone")
	}
	data, ok, err := db.Get(h2)
	if !ok || err != nil || string(data) != "b" {
		t.Fatalf("Get(h2) = %q, %v, %v", data, ok, err)
	}
}
