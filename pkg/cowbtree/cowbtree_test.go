package cowbtree

import (
	"fmt"
	"testing"

	"libsds/pkg/sds"
)

func newTestInstance(t *testing.T) *Instance[uint64, string] {
	t.Helper()
	cb := sds.CowCallbacks[uint64, string]{
		Callbacks: sds.Callbacks[uint64, string]{
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
		},
		ValueDup: func(v string) string { return v },
	}
	inst, err := CowInit(cb)
	if err != nil {
		t.Fatalf("CowInit: %v", err)
	}
	return inst
}

func TestCowInsertAtomicAndRetrieve(t *testing.T) {
	inst := newTestInstance(t)
	for i := uint64(0); i < 50; i++ {
		if res := CowInsertAtomic(inst, i, fmt.Sprintf("%d", i)); res != sds.Success {
			t.Fatalf("CowInsertAtomic(%d) = %v", i, res)
		}
	}
	if res := CowVerify(inst); res != sds.Success {
		t.Fatalf("CowVerify = %v", res)
	}
	if v, res := CowRetrieveAtomic(inst, 25); res != sds.KeyPresent || v != "25" {
		t.Fatalf("CowRetrieveAtomic(25) = (%q, %v)", v, res)
	}
}

// TestReadTxnSnapshotIsolation: a reader opened before a write commits
// keeps seeing the pre-commit state even after the writer commits.
func TestReadTxnSnapshotIsolation(t *testing.T) {
	inst := newTestInstance(t)
	CowInsertAtomic(inst, 1, "one")

	oldReader := RotxnBegin(inst)

	w := WrtxnBegin(inst)
	if res := CowInsert(w, 2, "two"); res != sds.Success {
		t.Fatalf("CowInsert(2) = %v", res)
	}
	if res := WrtxnCommit(w); res != sds.Success {
		t.Fatalf("WrtxnCommit = %v", res)
	}

	if res := CowSearch(oldReader, 2); res != sds.KeyNotPresent {
		t.Fatalf("old reader sees key 2 = %v, want KeyNotPresent (snapshot isolation violated)", res)
	}
	if res := CowSearch(oldReader, 1); res != sds.KeyPresent {
		t.Fatalf("old reader sees key 1 = %v, want KeyPresent", res)
	}

	newReader := RotxnBegin(inst)
	if res := CowSearch(newReader, 2); res != sds.KeyPresent {
		t.Fatalf("new reader sees key 2 = %v, want KeyPresent", res)
	}

	RotxnClose(oldReader)
	RotxnClose(newReader)
}

// TestUpdateOldVsNewReaderOrdering covers scenario 5: a reader opened
// before an update commits keeps seeing the old value, a reader opened
// after sees the new one, and the old value is freed exactly once, only
// after the old reader closes and cascade-free reclaims its transaction.
func TestUpdateOldVsNewReaderOrdering(t *testing.T) {
	freedCount := make(map[string]int)
	cb := sds.CowCallbacks[uint64, string]{
		Callbacks: sds.Callbacks[uint64, string]{
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
			ValueFree: func(v string) { freedCount[v]++ },
		},
		ValueDup: func(v string) string { return v },
	}
	inst, err := CowInit(cb)
	if err != nil {
		t.Fatalf("CowInit: %v", err)
	}
	CowInsertAtomic(inst, 1, "old")

	oldReader := RotxnBegin(inst)

	w := WrtxnBegin(inst)
	if res := CowUpdate(w, 1, "new"); res != sds.Success {
		t.Fatalf("CowUpdate = %v", res)
	}
	if res := WrtxnCommit(w); res != sds.Success {
		t.Fatalf("WrtxnCommit = %v", res)
	}

	if v, res := CowRetrieve(oldReader, 1); res != sds.KeyPresent || v != "old" {
		t.Fatalf("old reader retrieve = (%q, %v), want (\"old\", KeyPresent)", v, res)
	}

	newReader := RotxnBegin(inst)
	if v, res := CowRetrieve(newReader, 1); res != sds.KeyPresent || v != "new" {
		t.Fatalf("new reader retrieve = (%q, %v), want (\"new\", KeyPresent)", v, res)
	}

	if freedCount["old"] != 0 {
		t.Fatalf("old value freed while old reader still live: count=%d", freedCount["old"])
	}

	RotxnClose(oldReader)
	if freedCount["old"] != 1 {
		t.Fatalf("old value freed %d times after old reader closed, want exactly 1", freedCount["old"])
	}

	RotxnClose(newReader)
}

func TestCowDeleteAndRebalance(t *testing.T) {
	inst := newTestInstance(t)
	for i := uint64(0); i < 200; i++ {
		if res := CowInsertAtomic(inst, i, fmt.Sprintf("%d", i)); res != sds.Success {
			t.Fatalf("CowInsertAtomic(%d) = %v", i, res)
		}
	}
	for i := uint64(0); i < 199; i++ {
		if res := CowDeleteAtomic(inst, i); res != sds.Success {
			t.Fatalf("CowDeleteAtomic(%d) = %v", i, res)
		}
	}
	if res := CowVerify(inst); res != sds.Success {
		t.Fatalf("CowVerify after deletes = %v", res)
	}
	if res := CowSearchAtomic(inst, 199); res != sds.KeyPresent {
		t.Fatalf("CowSearchAtomic(199) = %v, want KeyPresent", res)
	}
}

func TestWrtxnAbortLeavesTreeUnchanged(t *testing.T) {
	inst := newTestInstance(t)
	CowInsertAtomic(inst, 1, "one")

	w := WrtxnBegin(inst)
	CowInsert(w, 2, "two")
	if res := WrtxnAbort(w); res != sds.Success {
		t.Fatalf("WrtxnAbort = %v", res)
	}

	if res := CowSearchAtomic(inst, 2); res != sds.KeyNotPresent {
		t.Fatalf("Search(2) after abort = %v, want KeyNotPresent", res)
	}
	if res := CowSearchAtomic(inst, 1); res != sds.KeyPresent {
		t.Fatalf("Search(1) after abort = %v, want KeyPresent", res)
	}
}

// TestChainCollapsesWithNoOutstandingReaders covers the invariant
// that, absent any held read transactions, repeated commits leave the
// chain trimmed down to a single tail transaction.
func TestChainCollapsesWithNoOutstandingReaders(t *testing.T) {
	inst := newTestInstance(t)
	for i := uint64(0); i < 20; i++ {
		if res := CowInsertAtomic(inst, i, fmt.Sprintf("%d", i)); res != sds.Success {
			t.Fatalf("CowInsertAtomic(%d) = %v", i, res)
		}
	}
	if inst.tailTxn != inst.txn {
		t.Fatalf("chain did not collapse: tailTxn id=%d, active txn id=%d", inst.tailTxn.txnID, inst.txn.txnID)
	}
}

func TestCowDuplicateKeyRejected(t *testing.T) {
	inst := newTestInstance(t)
	CowInsertAtomic(inst, 1, "a")
	if res := CowInsertAtomic(inst, 1, "b"); res != sds.DuplicateKey {
		t.Fatalf("duplicate insert = %v, want DuplicateKey", res)
	}
}
