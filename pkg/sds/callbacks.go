package sds

// Callbacks is the type-erased-in-spirit key/value vtable: compare, key
// duplicate, key free, and value free. Keys inserted into a tree become
// owned by the tree (the tree calls KeyDup on insert, KeyFree on delete or
// destruction); values are owned by the tree from the moment of insert,
// and the prior value is handed to ValueFree when a key is deleted or
// updated.
type Callbacks[K, V any] struct {
	// Compare returns a signed three-way comparison of a and b, and must
	// be a total order over every key that will ever be inserted.
	Compare func(a, b K) int

	// KeyDup returns a fresh key equal to k under Compare; it must not
	// alias k.
	KeyDup func(k K) K

	// KeyFree accepts any key previously returned by KeyDup or handed to
	// Insert.
	KeyFree func(k K)

	// ValueFree accepts any value previously handed to Insert or Update;
	// it may be a no-op.
	ValueFree func(v V)
}

// CowCallbacks extends Callbacks with ValueDup, required only by the
// copy-on-write tree because commits must be able to produce independent
// value copies when an update needs old readers to keep seeing the prior
// value.
type CowCallbacks[K, V any] struct {
	Callbacks[K, V]

	// ValueDup must produce a copy that is itself legal to pass to
	// ValueFree.
	ValueDup func(v V) V
}

// Uint64Callbacks returns convenience Callbacks for uint64 keys with
// no-op duplication/freeing (uint64 is a value type, nothing to own) and a
// no-op value free, matching the Design Notes' call for a ready-made u64
// specialization.
func Uint64Callbacks[V any]() Callbacks[uint64, V] {
	return Callbacks[uint64, V]{
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
		ValueFree: func(V) {},
	}
}

// Uint64CowCallbacks is Uint64Callbacks plus the caller-supplied valueDup
// as ValueDup.
func Uint64CowCallbacks[V any](valueDup func(V) V) CowCallbacks[uint64, V] {
	return CowCallbacks[uint64, V]{
		Callbacks: Uint64Callbacks[V](),
		ValueDup:  valueDup,
	}
}

// BytesCallbacks returns convenience Callbacks for []byte keys: KeyDup
// copies the backing array, KeyFree is a no-op (left to the garbage
// collector), Compare is lexicographic.
func BytesCallbacks[V any](valueFree func(V)) Callbacks[[]byte, V] {
	return Callbacks[[]byte, V]{
		Compare: compareBytes,
		KeyDup:  dupBytes,
		KeyFree: func([]byte) {},
		ValueFree: func(v V) {
			if valueFree != nil {
				valueFree(v)
			}
		},
	}
}

// BytesCowCallbacks is BytesCallbacks plus a caller-supplied ValueDup.
func BytesCowCallbacks[V any](valueFree func(V), valueDup func(V) V) CowCallbacks[[]byte, V] {
	return CowCallbacks[[]byte, V]{
		Callbacks: BytesCallbacks(valueFree),
		ValueDup:  valueDup,
	}
}

func compareBytes(a, b []byte) int {
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}

func dupBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
