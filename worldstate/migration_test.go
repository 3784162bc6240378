package worldstate

import (
	"testing"

	"github.com/chainkit/worldstate/storage"
	"github.com/chainkit/worldstate/trie"
	"github.com/chainkit/worldstate/types"
)

func buildV1Trie(t *testing.T, db *storage.MemDB) types.Hash {
	t.Helper()
	v1, err := openAccountTrie(db, trie.EmptyRootHash)
	if err != nil {
		t.Fatalf("openAccountTrie: %v", err)
	}
	for i := byte(1); i <= 20; i++ {
		a := addr(i)
		if err := v1.SetNonce(a, uint64(i)); err != nil {
			t.Fatalf("SetNonce: %v", err)
		}
		if err := v1.SetBalance(a, uint64(i)*1000); err != nil {
			t.Fatalf("SetBalance: %v", err)
		}
		if i%3 == 0 {
			if err := v1.SetCode(a, []byte{i, i, i}); err != nil {
				t.Fatalf("SetCode: %v", err)
			}
		}
		// V1 has no separate per-account storage trie: contract storage
		// entries sit inline in the account trie itself, under the
		// Public namespace (I1). Give every 4th address one such entry.
		if i%4 == 0 {
			if err := v1.store.Put(storageKey(a, types.AppKey("x")), []byte("y")); err != nil {
				t.Fatalf("Put storage: %v", err)
			}
		}
	}
	root, inserts, _, err := v1.commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	db.Apply(inserts, nil)
	return root
}

func TestMigrateV1ToV2_PreservesFieldsAndDefaultsV2Fields(t *testing.T) {
	db := storage.NewMemDB()
	v1Root := buildV1Trie(t, db)

	v2Root, changes, err := MigrateV1ToV2(db, v1Root, MigrationOptions{Budget: DefaultMigrationBudget})
	if err != nil {
		t.Fatalf("MigrateV1ToV2: %v", err)
	}
	db.Apply(changes.Inserts, changes.Deletes)

	ws, err := Open(db, v2Root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := byte(1); i <= 20; i++ {
		a := addr(i)
		n, err := ws.GetNonce(a)
		if err != nil || n != uint64(i) {
			t.Fatalf("addr %d: GetNonce = %d, %v, want %d", i, n, err, i)
		}
		b, err := ws.GetBalance(a)
		if err != nil || b != uint64(i)*1000 {
			t.Fatalf("addr %d: GetBalance = %d, %v, want %d", i, b, err, uint64(i)*1000)
		}
		if i%3 == 0 {
			code, err := ws.GetCode(a)
			if err != nil || string(code) != string([]byte{i, i, i}) {
				t.Fatalf("addr %d: GetCode = %x, %v", i, code, err)
			}
		}
		v, err := ws.GetCBIVersion(a)
		if err != nil || v != 0 {
			t.Fatalf("addr %d: GetCBIVersion = %d, %v, want 0", i, v, err)
		}
		root, err := ws.GetStorageHash(a)
		if i%4 == 0 {
			if err != nil || root == trie.EmptyRootHash {
				t.Fatalf("addr %d: GetStorageHash = %v, %v, want a non-empty root", i, root, err)
			}
			value, ok, err := ws.Get(a, types.AppKey("x"))
			if err != nil || !ok || string(value) != "y" {
				t.Fatalf("addr %d: Get(x) = %q, %v, %v, want \"y\", true, nil", i, value, ok, err)
			}
		} else if err != nil || root != trie.EmptyRootHash {
			t.Fatalf("addr %d: GetStorageHash = %v, %v, want EmptyRootHash", i, root, err)
		}
	}
}

func TestMigrateV1ToV2_NeverMutatesSourceRoot(t *testing.T) {
	db := storage.NewMemDB()
	v1Root := buildV1Trie(t, db)
	lenBefore := db.Len()

	_, changes, err := MigrateV1ToV2(db, v1Root, MigrationOptions{Budget: DefaultMigrationBudget})
	if err != nil {
		t.Fatalf("MigrateV1ToV2: %v", err)
	}
	if db.Len() != lenBefore {
		t.Fatalf("db.Len() changed from %d to %d before applying the migration's own delta", lenBefore, db.Len())
	}
	db.Apply(changes.Inserts, changes.Deletes)

	reopened, err := openAccountTrie(db, v1Root)
	if err != nil {
		t.Fatalf("reopen v1Root: %v", err)
	}
	n, err := reopened.Nonce(addr(5))
	if err != nil || n != 5 {
		t.Fatalf("v1Root addr(5) nonce = %d, %v, want unchanged 5", n, err)
	}
}

func TestMigrateV1ToV2_DeterministicAcrossConcurrency(t *testing.T) {
	db := storage.NewMemDB()
	v1Root := buildV1Trie(t, db)

	root1, _, err := MigrateV1ToV2(db, v1Root, MigrationOptions{Budget: MigrationBudget{MaxAddressesPerBatch: 4, Concurrency: 1}})
	if err != nil {
		t.Fatalf("migrate concurrency=1: %v", err)
	}
	root8, _, err := MigrateV1ToV2(db, v1Root, MigrationOptions{Budget: MigrationBudget{MaxAddressesPerBatch: 4, Concurrency: 8}})
	if err != nil {
		t.Fatalf("migrate concurrency=8: %v", err)
	}
	if root1 != root8 {
		t.Fatalf("migration root depends on concurrency: %v != %v", root1, root8)
	}
}

func TestMigrateV1ToV2_ProgressCallback(t *testing.T) {
	db := storage.NewMemDB()
	v1Root := buildV1Trie(t, db)

	var checkpoints []MigrationCheckpoint
	_, _, err := MigrateV1ToV2(db, v1Root, MigrationOptions{
		Budget: MigrationBudget{MaxAddressesPerBatch: 5, Concurrency: 2},
		Progress: func(cp MigrationCheckpoint) {
			checkpoints = append(checkpoints, cp)
		},
	})
	if err != nil {
		t.Fatalf("MigrateV1ToV2: %v", err)
	}
	if len(checkpoints) == 0 {
		t.Fatal("expected at least one progress checkpoint")
	}
	last := checkpoints[len(checkpoints)-1]
	if last.V2Root == (types.Hash{}) {
		t.Fatal("expected the final checkpoint to carry the V2 root")
	}
	if last.AddressesMigrated != 20 {
		t.Fatalf("final AddressesMigrated = %d, want 20", last.AddressesMigrated)
	}
}
