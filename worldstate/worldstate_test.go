package worldstate

import (
	"testing"

	"github.com/chainkit/worldstate/storage"
	"github.com/chainkit/worldstate/trie"
	"github.com/chainkit/worldstate/types"
)

func TestWorldState_EmptyStateHash(t *testing.T) {
	db := storage.NewMemDB()
	ws := New(db)
	root, changes, err := ws.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if root != trie.EmptyRootHash {
		t.Fatalf("root = %v, want EmptyRootHash", root)
	}
	if len(changes.Inserts) != 0 || len(changes.Deletes) != 0 {
		t.Fatalf("expected no node delta for an untouched empty state, got %+v", changes)
	}
}

func TestWorldState_BasicRoundtrip(t *testing.T) {
	db := storage.NewMemDB()
	ws := New(db)
	a := addr(1)

	if err := ws.SetNonce(a, 3); err != nil {
		t.Fatalf("SetNonce: %v", err)
	}
	if err := ws.SetBalance(a, 500); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	root, changes, err := ws.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	db.Apply(changes.Inserts, changes.Deletes)

	reopened, err := Open(db, root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	n, err := reopened.GetNonce(a)
	if err != nil || n != 3 {
		t.Fatalf("GetNonce = %d, %v, want 3", n, err)
	}
	b, err := reopened.GetBalance(a)
	if err != nil || b != 500 {
		t.Fatalf("GetBalance = %d, %v, want 500", b, err)
	}
}

func TestWorldState_CachedModeMultiAccountRoundtrip(t *testing.T) {
	directDB := storage.NewMemDB()
	cachedDB := storage.NewMemDB()

	direct := New(directDB)
	cached := New(cachedDB)
	if err := cached.SetCached(true); err != nil {
		t.Fatalf("SetCached: %v", err)
	}

	for i := byte(1); i <= 5; i++ {
		a := addr(i)
		if err := direct.SetNonce(a, uint64(i)); err != nil {
			t.Fatalf("direct SetNonce: %v", err)
		}
		if err := direct.SetBalance(a, uint64(i)*100); err != nil {
			t.Fatalf("direct SetBalance: %v", err)
		}
		if err := cached.SetNonce(a, uint64(i)); err != nil {
			t.Fatalf("cached SetNonce: %v", err)
		}
		if err := cached.SetBalance(a, uint64(i)*100); err != nil {
			t.Fatalf("cached SetBalance: %v", err)
		}
	}

	directRoot, _, err := direct.Commit()
	if err != nil {
		t.Fatalf("direct Commit: %v", err)
	}
	cachedRoot, _, err := cached.Commit()
	if err != nil {
		t.Fatalf("cached Commit: %v", err)
	}
	if directRoot != cachedRoot {
		t.Fatalf("direct root %v != cached root %v, want equal (I4)", directRoot, cachedRoot)
	}
}

func TestWorldState_ContractStorageIndependentRoot(t *testing.T) {
	db := storage.NewMemDB()
	ws := New(db)
	a1, a2 := addr(1), addr(2)

	if err := ws.Set(a1, types.AppKey("k"), []byte("v1")); err != nil {
		t.Fatalf("Set a1: %v", err)
	}
	if err := ws.Set(a2, types.AppKey("k"), []byte("v2")); err != nil {
		t.Fatalf("Set a2: %v", err)
	}
	root1, err := ws.GetStorageHash(a1)
	if err != nil {
		t.Fatalf("GetStorageHash a1: %v", err)
	}
	root2, err := ws.GetStorageHash(a2)
	if err != nil {
		t.Fatalf("GetStorageHash a2: %v", err)
	}
	if root1 == root2 {
		t.Fatal("expected independent storage roots for different contract contents")
	}

	v, ok, err := ws.Get(a1, types.AppKey("k"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("Get a1 = %q, %v, %v", v, ok, err)
	}
}

func TestWorldState_IndexHeapCapacityOrdering(t *testing.T) {
	db := storage.NewMemDB()
	ws := New(db)
	ws.validatorCapacity = 3

	net, err := ws.Network()
	if err != nil {
		t.Fatalf("Network: %v", err)
	}
	pools := []PoolKey{
		{Operator: addr(1), Power: pw(10)},
		{Operator: addr(2), Power: pw(50)},
		{Operator: addr(3), Power: pw(50)}, // ties with operator 2; greater address wins (I6)
		{Operator: addr(4), Power: pw(40)},
	}
	if err := net.RebuildNVS(pools); err != nil {
		t.Fatalf("RebuildNVS: %v", err)
	}

	top, err := net.NVS().PeekTop(3)
	if err != nil {
		t.Fatalf("PeekTop: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("len(top) = %d, want 3", len(top))
	}
	wantOperators := []byte{3, 2, 4}
	for i, w := range wantOperators {
		if top[i].Identity[len(top[i].Identity)-1] != w {
			t.Fatalf("top[%d] operator = %x, want %x", i, top[i].Identity[len(top[i].Identity)-1], w)
		}
	}
}

func TestWorldState_V1ToV2MigrationRoundtrip(t *testing.T) {
	db := storage.NewMemDB()

	v1, err := openAccountTrie(db, trie.EmptyRootHash)
	if err != nil {
		t.Fatalf("openAccountTrie: %v", err)
	}
	a1, a2 := addr(1), addr(2)
	v1.SetNonce(a1, 7)
	v1.SetBalance(a1, 1000)
	v1.SetCode(a2, []byte{0xde, 0xad, 0xbe, 0xef})
	v1.SetNonce(a2, 2)
	// Contract a2's V1 storage entry {"x": "y"}, inline in the account
	// trie's Public namespace (I1) the way V1 represents storage.
	if err := v1.store.Put(storageKey(a2, types.AppKey("x")), []byte("y")); err != nil {
		t.Fatalf("Put storage: %v", err)
	}

	v1Root, inserts, _, err := v1.commit()
	if err != nil {
		t.Fatalf("v1 commit: %v", err)
	}
	db.Apply(inserts, nil)

	v2Root, changes, err := MigrateV1ToV2(db, v1Root, MigrationOptions{Budget: DefaultMigrationBudget})
	if err != nil {
		t.Fatalf("MigrateV1ToV2: %v", err)
	}
	db.Apply(changes.Inserts, changes.Deletes)

	ws, err := Open(db, v2Root)
	if err != nil {
		t.Fatalf("Open migrated state: %v", err)
	}
	n1, _ := ws.GetNonce(a1)
	b1, _ := ws.GetBalance(a1)
	if n1 != 7 || b1 != 1000 {
		t.Fatalf("a1 nonce/balance = %d/%d, want 7/1000", n1, b1)
	}
	c2, _ := ws.GetCode(a2)
	if string(c2) != "\xde\xad\xbe\xef" {
		t.Fatalf("a2 code = %x", c2)
	}
	v, err := ws.GetCBIVersion(a1)
	if err != nil || v != 0 {
		t.Fatalf("a1 CBIVersion = %d, %v, want 0 (V2 default)", v, err)
	}
	value, ok, err := ws.Get(a2, types.AppKey("x"))
	if err != nil || !ok || string(value) != "y" {
		t.Fatalf("a2 storage[x] = %q, %v, %v, want \"y\", true, nil", value, ok, err)
	}

	// The original V1 root must remain readable and untouched.
	reopenedV1, err := openAccountTrie(db, v1Root)
	if err != nil {
		t.Fatalf("reopen v1Root: %v", err)
	}
	n, _ := reopenedV1.Nonce(a1)
	if n != 7 {
		t.Fatalf("v1Root nonce after migration = %d, want unchanged 7", n)
	}
}

func TestWorldState_ClosedReturnsErrClosed(t *testing.T) {
	db := storage.NewMemDB()
	ws := New(db)
	if _, _, err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := ws.GetNonce(addr(1)); err != ErrClosed {
		t.Fatalf("GetNonce after Close = %v, want ErrClosed", err)
	}
	if err := ws.SetNonce(addr(1), 1); err != ErrClosed {
		t.Fatalf("SetNonce after Close = %v, want ErrClosed", err)
	}
	if _, _, err := ws.Commit(); err != ErrClosed {
		t.Fatalf("Commit after Close = %v, want ErrClosed", err)
	}
}
