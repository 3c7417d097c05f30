package hashtrie

import (
	"encoding/binary"
	"fmt"
	"testing"

	"libsds/pkg/sds"
)

func newTestTrie(t *testing.T, valueFree func(string)) *Trie[uint64, string] {
	t.Helper()
	keyBytes := func(k uint64) []byte {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], k)
		return b[:]
	}
	eq := func(a, b uint64) bool { return a == b }
	return New[uint64, string](keyBytes, eq, valueFree, 0x0123456789abcdef, 0xfedcba9876543210)
}

func TestInsertSearchDelete(t *testing.T) {
	tr := newTestTrie(t, nil)
	for i := uint64(0); i < 500; i++ {
		if res := tr.Insert(i, fmt.Sprintf("%d", i)); res != sds.Success {
			t.Fatalf("Insert(%d) = %v", i, res)
		}
	}
	if res := tr.Verify(); res != sds.Success {
		t.Fatalf("Verify = %v", res)
	}
	for i := uint64(0); i < 500; i++ {
		v, res := tr.Retrieve(i)
		if res != sds.KeyPresent || v != fmt.Sprintf("%d", i) {
			t.Fatalf("Retrieve(%d) = (%q, %v)", i, v, res)
		}
	}
	for i := uint64(0); i < 500; i += 2 {
		if res := tr.Delete(i); res != sds.Success {
			t.Fatalf("Delete(%d) = %v", i, res)
		}
	}
	if res := tr.Verify(); res != sds.Success {
		t.Fatalf("Verify after deletes = %v", res)
	}
	for i := uint64(0); i < 500; i++ {
		res := tr.Search(i)
		want := sds.KeyPresent
		if i%2 == 0 {
			want = sds.KeyNotPresent
		}
		if res != want {
			t.Fatalf("Search(%d) = %v, want %v", i, res, want)
		}
	}
}

func TestInsertOverwritesExistingKey(t *testing.T) {
	tr := newTestTrie(t, nil)
	tr.Insert(1, "a")
	tr.Insert(1, "b")
	if v, res := tr.Retrieve(1); res != sds.KeyPresent || v != "b" {
		t.Fatalf("Retrieve(1) = (%q, %v), want (\"b\", KeyPresent)", v, res)
	}
}

func TestDeleteMissingKey(t *testing.T) {
	tr := newTestTrie(t, nil)
	tr.Insert(1, "a")
	if res := tr.Delete(2); res != sds.KeyNotPresent {
		t.Fatalf("Delete(2) = %v, want KeyNotPresent", res)
	}
}

func TestDestroyFreesValues(t *testing.T) {
	freed := 0
	tr := newTestTrie(t, func(string) { freed++ })
	for i := uint64(0); i < 100; i++ {
		tr.Insert(i, fmt.Sprintf("%d", i))
	}
	tr.Destroy()
	if freed != 100 {
		t.Fatalf("freed = %d, want 100", freed)
	}
}
