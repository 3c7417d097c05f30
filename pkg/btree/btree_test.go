package btree

import (
	"fmt"
	"testing"

	"libsds/pkg/sds"
)

func newTestInstance(t *testing.T) *Instance[uint64, string] {
	t.Helper()
	cb := sds.Callbacks[uint64, string]{
		Compare: func(a, b uint64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		},
		KeyDup:    func(k uint64) uint64 { return k },
		KeyFree:   func(uint64) {},
		ValueFree: func(string) {},
	}
	inst, err := Init(cb, Options{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return inst
}

func TestInsertSearchOrder(t *testing.T) {
	inst := newTestInstance(t)
	keys := []uint64{5, 2, 8, 1, 9, 3, 7, 4, 6}
	for _, k := range keys {
		if res := inst.Insert(k, fmt.Sprintf("%d", k)); res != sds.Success {
			t.Fatalf("Insert(%d) = %v", k, res)
		}
	}
	if res := inst.Verify(); res != sds.Success {
		t.Fatalf("Verify after inserts = %v", res)
	}

	var order []uint64
	inst.Map(func(k uint64, v string) { order = append(order, k) })
	for i, k := range order {
		if k != uint64(i+1) {
			t.Fatalf("Map order = %v, want ascending 1..9", order)
		}
	}

	if res := inst.Delete(5); res != sds.Success {
		t.Fatalf("Delete(5) = %v", res)
	}
	if res := inst.Search(5); res != sds.KeyNotPresent {
		t.Fatalf("Search(5) after delete = %v", res)
	}
	if v, res := inst.Retrieve(4); res != sds.KeyPresent || v != "4" {
		t.Fatalf("Retrieve(4) = (%q, %v)", v, res)
	}
	if res := inst.Verify(); res != sds.Success {
		t.Fatalf("Verify after delete = %v", res)
	}
}

func TestDuplicateKeyRejected(t *testing.T) {
	inst := newTestInstance(t)
	if res := inst.Insert(1, "a"); res != sds.Success {
		t.Fatalf("first insert = %v", res)
	}
	if res := inst.Insert(1, "b"); res != sds.DuplicateKey {
		t.Fatalf("duplicate insert = %v, want DuplicateKey", res)
	}
	if v, _ := inst.Retrieve(1); v != "a" {
		t.Fatalf("value after rejected duplicate insert = %q, want unchanged", v)
	}
}

func TestDeleteCheckpointScenario(t *testing.T) {
	inst := newTestInstance(t)
	for i := uint64(0); i < 1000; i++ {
		if res := inst.Insert(i, fmt.Sprintf("%d", i)); res != sds.Success {
			t.Fatalf("Insert(%d) = %v", i, res)
		}
	}
	for i := uint64(0); i < 999; i++ {
		if res := inst.Delete(i); res != sds.Success {
			t.Fatalf("Delete(%d) = %v", i, res)
		}
		if i%100 == 99 {
			if res := inst.Verify(); res != sds.Success {
				t.Fatalf("Verify at checkpoint %d = %v", i, res)
			}
		}
	}
	if res := inst.Verify(); res != sds.Success {
		t.Fatalf("final Verify = %v", res)
	}
	if res := inst.Search(999); res != sds.KeyPresent {
		t.Fatalf("Search(999) = %v, want KeyPresent", res)
	}
	var remaining []uint64
	inst.Map(func(k uint64, v string) { remaining = append(remaining, k) })
	if len(remaining) != 1 || remaining[0] != 999 {
		t.Fatalf("remaining keys = %v, want [999]", remaining)
	}
}

func TestBulkLoadThenInsert(t *testing.T) {
	inst := newTestInstance(t)
	keys := []uint64{10, 20, 30, 40, 50, 60, 70, 80, 90}
	values := make([]string, len(keys))
	if res := inst.BulkLoad(keys, values); res != sds.Success {
		t.Fatalf("BulkLoad = %v", res)
	}
	if res := inst.Verify(); res != sds.Success {
		t.Fatalf("Verify after bulk load = %v", res)
	}
	inst.Insert(25, "")
	inst.Insert(65, "")

	for _, k := range []uint64{20, 25, 65, 90} {
		if res := inst.Search(k); res != sds.KeyPresent {
			t.Fatalf("Search(%d) = %v, want KeyPresent", k, res)
		}
	}
	if res := inst.Search(15); res != sds.KeyNotPresent {
		t.Fatalf("Search(15) = %v, want KeyNotPresent", res)
	}
}

func TestSetOps(t *testing.T) {
	build := func(keys ...uint64) *Instance[uint64, string] {
		inst := newTestInstance(t)
		for _, k := range keys {
			inst.Insert(k, fmt.Sprintf("%d", k))
		}
		return inst
	}
	keysOf := func(inst *Instance[uint64, string]) []uint64 {
		var out []uint64
		inst.Map(func(k uint64, v string) { out = append(out, k) })
		return out
	}
	eq := func(t *testing.T, got, want []uint64) {
		t.Helper()
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	}

	a := build(1, 2, 3)
	b := build(2, 3, 4)

	if u, res := Union(a, b); res != sds.Success {
		t.Fatalf("Union = %v", res)
	} else {
		eq(t, keysOf(u), []uint64{1, 2, 3, 4})
	}
	if i, res := Intersect(a, b); res != sds.Success {
		t.Fatalf("Intersect = %v", res)
	} else {
		eq(t, keysOf(i), []uint64{2, 3})
	}
	if d, res := Difference(a, b); res != sds.Success {
		t.Fatalf("Difference = %v", res)
	} else {
		eq(t, keysOf(d), []uint64{1, 4})
	}
	if c, res := Compliment(a, b); res != sds.Success {
		t.Fatalf("Compliment = %v", res)
	} else {
		eq(t, keysOf(c), []uint64{1})
	}

	selfUnion, _ := Union(a, a)
	eq(t, keysOf(selfUnion), keysOf(a))
	selfIntersect, _ := Intersect(a, a)
	eq(t, keysOf(selfIntersect), keysOf(a))
	selfDiff, _ := Difference(a, a)
	eq(t, keysOf(selfDiff), nil)
	selfCompliment, _ := Compliment(a, a)
	eq(t, keysOf(selfCompliment), nil)

	all := Filter(a, func(uint64, string) bool { return true })
	eq(t, keysOf(all), keysOf(a))
	none := Filter(a, func(uint64, string) bool { return false })
	eq(t, keysOf(none), nil)
}

func TestIncompatibleInstance(t *testing.T) {
	a := newTestInstance(t)
	other := sds.Callbacks[uint64, string]{
		Compare: func(a, b uint64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		},
		KeyDup:    func(k uint64) uint64 { return k },
		KeyFree:   func(uint64) {},
		ValueFree: func(string) {},
	}
	b, _ := Init(other, Options{})
	if _, res := Union(a, b); res != sds.IncompatibleInstance {
		t.Fatalf("Union across distinct vtables = %v, want IncompatibleInstance", res)
	}
}

func TestDestroyIsNoOpOnExternalState(t *testing.T) {
	freed := 0
	cb := sds.Callbacks[uint64, int]{
		Compare: func(a, b uint64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		},
		KeyDup:    func(k uint64) uint64 { return k },
		KeyFree:   func(uint64) {},
		ValueFree: func(int) { freed++ },
	}
	inst, _ := Init(cb, Options{})
	for i := uint64(0); i < 50; i++ {
		inst.Insert(i, 1)
	}
	inst.Destroy()
	if freed != 50 {
		t.Fatalf("freed = %d, want 50", freed)
	}
}

func TestChecksumming(t *testing.T) {
	cb := sds.Callbacks[uint64, string]{
		Compare: func(a, b uint64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		},
		KeyDup:    func(k uint64) uint64 { return k },
		KeyFree:   func(uint64) {},
		ValueFree: func(string) {},
	}
	inst, _ := Init(cb, Options{ChecksumOnWrite: true, ChecksumOnSearch: true})
	for i := uint64(0); i < 200; i++ {
		inst.Insert(i, "")
	}
	if res := inst.Verify(); res != sds.Success {
		t.Fatalf("Verify with checksums = %v", res)
	}
	if res := inst.Search(100); res != sds.KeyPresent {
		t.Fatalf("Search(100) with checksums = %v", res)
	}
}
