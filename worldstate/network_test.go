package worldstate

import (
	"testing"

	"github.com/chainkit/worldstate/storage"
	"github.com/chainkit/worldstate/trie"
	"github.com/chainkit/worldstate/types"
)

func openTestNetwork(t *testing.T) *Network {
	t.Helper()
	db := storage.NewMemDB()
	st, err := openStorageTrie(db, trie.EmptyRootHash)
	if err != nil {
		t.Fatalf("openStorageTrie: %v", err)
	}
	return OpenNetwork(st, 3, 8)
}

func TestNetwork_Scalars(t *testing.T) {
	n := openTestNetwork(t)

	if e, err := n.CurrentEpoch(); err != nil || e != 0 {
		t.Fatalf("CurrentEpoch default = %d, %v", e, err)
	}
	if err := n.SetCurrentEpoch(42); err != nil {
		t.Fatalf("SetCurrentEpoch: %v", err)
	}
	if e, err := n.CurrentEpoch(); err != nil || e != 42 {
		t.Fatalf("CurrentEpoch = %d, %v, want 42", e, err)
	}
}

func TestNetwork_ActivePoolRoundtrip(t *testing.T) {
	n := openTestNetwork(t)
	op := addr(9)
	p := Pool{Power: pw(500), RewardAddress: addr(1), Commission: 250, Status: PoolStatusActive}

	if err := n.SetActivePool(op, p); err != nil {
		t.Fatalf("SetActivePool: %v", err)
	}
	got, ok := n.ActivePool(op)
	if !ok {
		t.Fatal("expected active pool present")
	}
	if got.Power.Cmp(p.Power) != 0 || got.RewardAddress != p.RewardAddress ||
		got.Commission != p.Commission || got.Status != p.Status {
		t.Fatalf("ActivePool = %+v, want %+v", got, p)
	}

	if err := n.RemoveActivePool(op); err != nil {
		t.Fatalf("RemoveActivePool: %v", err)
	}
	if _, ok := n.ActivePool(op); ok {
		t.Fatal("expected pool removed")
	}
}

func TestNetwork_DelegatedStakesIsolatedPerOperator(t *testing.T) {
	n := openTestNetwork(t)
	op1, op2 := addr(1), addr(2)

	n.DelegatedStakes(op1).Insert(addr(10).Bytes(), pw(100))
	n.DelegatedStakes(op2).Insert(addr(10).Bytes(), pw(999))

	top1, _ := n.DelegatedStakes(op1).PeekTop(1)
	top2, _ := n.DelegatedStakes(op2).PeekTop(1)
	if top1[0].Power.Cmp(pw(100)) != 0 || top2[0].Power.Cmp(pw(999)) != 0 {
		t.Fatalf("stake heaps collided: op1=%+v op2=%+v", top1, top2)
	}
}

func TestNetwork_EvidencePublish(t *testing.T) {
	n := openTestNetwork(t)
	h, _ := types.BytesToHash([]byte{0xaa})
	if n.EvidencePublished(h) {
		t.Fatal("expected evidence not yet published")
	}
	if err := n.PublishEvidence(h); err != nil {
		t.Fatalf("PublishEvidence: %v", err)
	}
	if !n.EvidencePublished(h) {
		t.Fatal("expected evidence published")
	}
}

func TestNetwork_RebuildNVS_CapacityAndTieBreak(t *testing.T) {
	n := openTestNetwork(t) // validatorCapacity = 3
	pools := []PoolKey{
		{Operator: addr(1), Power: pw(10)},
		{Operator: addr(2), Power: pw(50)},
		{Operator: addr(3), Power: pw(50)},
		{Operator: addr(4), Power: pw(40)},
	}
	if err := n.RebuildNVS(pools); err != nil {
		t.Fatalf("RebuildNVS: %v", err)
	}

	top, err := n.NVS().PeekTop(3)
	if err != nil {
		t.Fatalf("PeekTop: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("len(top) = %d, want 3 (capacity)", len(top))
	}
	// Power 50 ties between operators 2 and 3; operator 3 (greater address) ranks first.
	if top[0].Power.Cmp(pw(50)) != 0 || top[0].Identity[len(top[0].Identity)-1] != 3 {
		t.Fatalf("top[0] = %+v, want operator 3 power 50", top[0])
	}
	if top[1].Power.Cmp(pw(50)) != 0 || top[1].Identity[len(top[1].Identity)-1] != 2 {
		t.Fatalf("top[1] = %+v, want operator 2 power 50", top[1])
	}
	if top[2].Power.Cmp(pw(40)) != 0 {
		t.Fatalf("top[2] power = %v, want 40", top[2].Power)
	}
}
