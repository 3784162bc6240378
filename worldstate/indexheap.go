package worldstate

import (
	"bytes"
	"errors"
	"sort"

	"github.com/holiman/uint256"

	"github.com/chainkit/worldstate/metrics"
)

// ErrHeapFull is returned by IndexHeap.Insert when the heap is already at
// capacity. Per the on-line eviction policy documented in DESIGN.md,
// mid-epoch inserts into a full heap are rejected outright; eviction only
// happens through Rebuild at an epoch boundary.
var ErrHeapFull = errors.New("worldstate: index heap at capacity")

// ErrHeapIdentityExists is returned by Insert when identity is already a
// member; callers update existing members through Update.
var ErrHeapIdentityExists = errors.New("worldstate: index heap identity already present")

// ErrHeapIdentityMissing is returned by Update/Remove when identity isn't
// a current member.
var ErrHeapIdentityMissing = errors.New("worldstate: index heap identity not present")

// HeapEntry is one member of an IndexHeap: an identity (an Address, per
// I6) and its ordering Power (a Power/Stake amount, §3: uint256.Int
// rather than a bare uint64).
type HeapEntry struct {
	Identity []byte
	Power    *uint256.Int
}

// IndexHeap is a bounded max-heap, by Power with ties broken by the
// greater identity first (I6), persisted across two key families rooted
// under prefix within a kvStore: an index-map (identity -> slot position)
// and a value-slot table (position -> record). A small count scalar
// under prefix completes the bookkeeping the trie alone can't provide,
// since an MPT has no range scan to discover live slots.
type IndexHeap struct {
	store    kvStore
	prefix   []byte
	capacity int
}

// NewIndexHeap opens an index heap rooted at prefix within store, bounded
// to at most capacity members.
func NewIndexHeap(store kvStore, prefix []byte, capacity int) *IndexHeap {
	p := append([]byte(nil), prefix...)
	return &IndexHeap{store: store, prefix: p, capacity: capacity}
}

func (h *IndexHeap) countKey() []byte { return append(append([]byte(nil), h.prefix...), 0x00) }

func (h *IndexHeap) indexKey(identity []byte) []byte {
	k := append(append([]byte(nil), h.prefix...), 0x01)
	// Key on the same 32-byte, zero-padded form the slot record stores,
	// so the caller's bytes and a record's Identity find the same entry.
	var id [32]byte
	copy(id[:], identity)
	return append(k, id[:]...)
}

func (h *IndexHeap) slotKey(pos uint32) []byte {
	k := append(append([]byte(nil), h.prefix...), 0x02)
	return append(k, encodeU32(pos)...)
}

// Len returns the current member count.
func (h *IndexHeap) Len() int {
	n, _ := h.count()
	return int(n)
}

func (h *IndexHeap) count() (uint32, error) {
	v, err := h.store.Get(h.countKey())
	if err != nil {
		return 0, nil
	}
	return decodeU32(v)
}

func (h *IndexHeap) setCount(n uint32) error {
	if n == 0 {
		return h.store.Remove(h.countKey())
	}
	return h.store.Put(h.countKey(), encodeU32(n))
}

func (h *IndexHeap) position(identity []byte) (uint32, bool) {
	v, err := h.store.Get(h.indexKey(identity))
	if err != nil {
		return 0, false
	}
	pos, err := decodeU32(v)
	if err != nil {
		return 0, false
	}
	return pos, true
}

func (h *IndexHeap) setPosition(identity []byte, pos uint32) error {
	return h.store.Put(h.indexKey(identity), encodeU32(pos))
}

func (h *IndexHeap) clearPosition(identity []byte) error {
	return h.store.Remove(h.indexKey(identity))
}

func (h *IndexHeap) record(pos uint32) (HeapEntry, error) {
	v, err := h.store.Get(h.slotKey(pos))
	if err != nil {
		return HeapEntry{}, err
	}
	if len(v) != 64 {
		return HeapEntry{}, &DecodeError{Field: "heap record", Want: 64, Got: len(v)}
	}
	identity := append([]byte(nil), v[:32]...)
	power, err := decodeU256(v[32:])
	if err != nil {
		return HeapEntry{}, err
	}
	return HeapEntry{Identity: identity, Power: power}, nil
}

func (h *IndexHeap) setRecord(pos uint32, e HeapEntry) error {
	v := make([]byte, 64)
	copy(v, e.Identity)
	copy(v[32:], encodeU256(e.Power))
	return h.store.Put(h.slotKey(pos), v)
}

func (h *IndexHeap) clearRecord(pos uint32) error {
	return h.store.Remove(h.slotKey(pos))
}

// higherPriority reports whether a belongs strictly closer to the root
// than b: greater Power wins, ties broken by the greater identity (I6).
func higherPriority(a, b HeapEntry) bool {
	if c := a.Power.Cmp(b.Power); c != 0 {
		return c > 0
	}
	return bytes.Compare(a.Identity, b.Identity) > 0
}

func (h *IndexHeap) swap(i, j uint32, ri, rj HeapEntry) error {
	if err := h.setRecord(i, rj); err != nil {
		return err
	}
	if err := h.setRecord(j, ri); err != nil {
		return err
	}
	if err := h.setPosition(rj.Identity, i); err != nil {
		return err
	}
	return h.setPosition(ri.Identity, j)
}

func (h *IndexHeap) siftUp(pos uint32) error {
	for pos > 0 {
		parent := (pos - 1) / 2
		cur, err := h.record(pos)
		if err != nil {
			return err
		}
		par, err := h.record(parent)
		if err != nil {
			return err
		}
		if !higherPriority(cur, par) {
			return nil
		}
		if err := h.swap(pos, parent, cur, par); err != nil {
			return err
		}
		pos = parent
	}
	return nil
}

func (h *IndexHeap) siftDown(pos uint32, count uint32) error {
	for {
		left, right := 2*pos+1, 2*pos+2
		largest := pos
		largestRec, err := h.record(pos)
		if err != nil {
			return err
		}
		if left < count {
			l, err := h.record(left)
			if err != nil {
				return err
			}
			if higherPriority(l, largestRec) {
				largest, largestRec = left, l
			}
		}
		if right < count {
			r, err := h.record(right)
			if err != nil {
				return err
			}
			if higherPriority(r, largestRec) {
				largest, largestRec = right, r
			}
		}
		if largest == pos {
			return nil
		}
		cur, err := h.record(pos)
		if err != nil {
			return err
		}
		if err := h.swap(pos, largest, cur, largestRec); err != nil {
			return err
		}
		pos = largest
	}
}

// Insert adds a new member. Fails with ErrHeapIdentityExists if identity
// is already present, or ErrHeapFull if the heap is at capacity.
func (h *IndexHeap) Insert(identity []byte, power *uint256.Int) error {
	if _, ok := h.position(identity); ok {
		return ErrHeapIdentityExists
	}
	count, err := h.count()
	if err != nil {
		return err
	}
	if int(count) >= h.capacity {
		metrics.HeapRejections.Inc()
		return ErrHeapFull
	}
	pos := count
	if err := h.setRecord(pos, HeapEntry{Identity: identity, Power: power}); err != nil {
		return err
	}
	if err := h.setPosition(identity, pos); err != nil {
		return err
	}
	if err := h.setCount(count + 1); err != nil {
		return err
	}
	metrics.HeapInserts.Inc()
	metrics.HeapSize.Set(int64(count + 1))
	return h.siftUp(pos)
}

// Update changes an existing member's Power and restores heap order.
func (h *IndexHeap) Update(identity []byte, power *uint256.Int) error {
	pos, ok := h.position(identity)
	if !ok {
		return ErrHeapIdentityMissing
	}
	if err := h.setRecord(pos, HeapEntry{Identity: identity, Power: power}); err != nil {
		return err
	}
	count, err := h.count()
	if err != nil {
		return err
	}
	if err := h.siftUp(pos); err != nil {
		return err
	}
	return h.siftDown(pos, count)
}

// Remove deletes an existing member.
func (h *IndexHeap) Remove(identity []byte) error {
	pos, ok := h.position(identity)
	if !ok {
		return ErrHeapIdentityMissing
	}
	count, err := h.count()
	if err != nil {
		return err
	}
	last := count - 1
	if pos != last {
		lastRec, err := h.record(last)
		if err != nil {
			return err
		}
		if err := h.setRecord(pos, lastRec); err != nil {
			return err
		}
		if err := h.setPosition(lastRec.Identity, pos); err != nil {
			return err
		}
	}
	if err := h.clearRecord(last); err != nil {
		return err
	}
	if err := h.clearPosition(identity); err != nil {
		return err
	}
	if err := h.setCount(last); err != nil {
		return err
	}
	if pos != last {
		if err := h.siftUp(pos); err != nil {
			return err
		}
		if err := h.siftDown(pos, last); err != nil {
			return err
		}
	}
	return nil
}

// PeekTop returns up to k members ordered by descending priority, without
// mutating the heap. Capacity is bounded, so a full scan-and-sort is
// simpler and just as correct as a non-destructive partial extraction.
func (h *IndexHeap) PeekTop(k int) ([]HeapEntry, error) {
	count, err := h.count()
	if err != nil {
		return nil, err
	}
	entries := make([]HeapEntry, 0, count)
	for pos := uint32(0); pos < count; pos++ {
		e, err := h.record(pos)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return higherPriority(entries[i], entries[j]) })
	if k < len(entries) {
		entries = entries[:k]
	}
	return entries, nil
}

// Rebuild clears the heap and reinserts the top `capacity` of entries by
// priority, used for the NVS epoch-boundary rebuild (§4.8): unlike
// Insert, this path is allowed to evict.
func (h *IndexHeap) Rebuild(entries []HeapEntry) error {
	count, err := h.count()
	if err != nil {
		return err
	}
	for pos := uint32(0); pos < count; pos++ {
		e, err := h.record(pos)
		if err != nil {
			return err
		}
		if err := h.clearRecord(pos); err != nil {
			return err
		}
		if err := h.clearPosition(e.Identity); err != nil {
			return err
		}
	}
	if err := h.setCount(0); err != nil {
		return err
	}
	sorted := append([]HeapEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return higherPriority(sorted[i], sorted[j]) })
	if len(sorted) > h.capacity {
		sorted = sorted[:h.capacity]
	}
	for _, e := range sorted {
		if err := h.Insert(e.Identity, e.Power); err != nil {
			return err
		}
	}
	return nil
}
