package btree

import (
	"reflect"

	"libsds/pkg/sds"
)

// sameVtable reports whether two instances were built with the same
// comparator, the cheapest practical proxy for "same vtable" available in
// Go, where function values are not comparable with ==.
func sameVtable[K, V any](a, b *Instance[K, V]) bool {
	return reflect.ValueOf(a.cb.Compare).Pointer() == reflect.ValueOf(b.cb.Compare).Pointer()
}

// collect walks a's leaves in sorted order via the sibling link chain.
func collect[K, V any](t *Instance[K, V]) ([]K, []V) {
	var keys []K
	var values []V
	n := t.leftmostLeaf()
	for n != nil {
		keys = append(keys, n.keys...)
		values = append(values, n.values...)
		n = n.next
	}
	return keys, values
}

func newResultInstance[K, V any](cb sds.Callbacks[K, V], opts Options) *Instance[K, V] {
	inst, _ := Init(cb, opts) // cb already validated by the source instances
	return inst
}

// Union merge-scans A and B in sorted order, emitting every distinct key
// from both sides; on a tie, A's value wins. Keys are duplicated via
// KeyDup into the result; values are shared by reference (the plain tree
// does not own value lifetimes across instances).
func Union[K, V any](a, b *Instance[K, V]) (*Instance[K, V], sds.Result) {
	if !sameVtable(a, b) {
		return nil, sds.IncompatibleInstance
	}
	ak, av := collect(a)
	bk, bv := collect(b)
	out := newResultInstance(a.cb, a.opts)
	i, j := 0, 0
	for i < len(ak) && j < len(bk) {
		c := a.cb.Compare(ak[i], bk[j])
		switch {
		case c < 0:
			out.Insert(ak[i], av[i])
			i++
		case c > 0:
			out.Insert(bk[j], bv[j])
			j++
		default:
			out.Insert(ak[i], av[i])
			i++
			j++
		}
	}
	for ; i < len(ak); i++ {
		out.Insert(ak[i], av[i])
	}
	for ; j < len(bk); j++ {
		out.Insert(bk[j], bv[j])
	}
	return out, sds.Success
}

// Intersect merge-scans A and B, emitting only keys present in both
// (A's value is kept).
func Intersect[K, V any](a, b *Instance[K, V]) (*Instance[K, V], sds.Result) {
	if !sameVtable(a, b) {
		return nil, sds.IncompatibleInstance
	}
	ak, av := collect(a)
	bk, _ := collect(b)
	out := newResultInstance(a.cb, a.opts)
	i, j := 0, 0
	for i < len(ak) && j < len(bk) {
		c := a.cb.Compare(ak[i], bk[j])
		switch {
		case c < 0:
			i++
		case c > 0:
			j++
		default:
			out.Insert(ak[i], av[i])
			i++
			j++
		}
	}
	return out, sds.Success
}

// Difference merge-scans A and B, emitting keys present in exactly one
// side (the symmetric difference).
func Difference[K, V any](a, b *Instance[K, V]) (*Instance[K, V], sds.Result) {
	if !sameVtable(a, b) {
		return nil, sds.IncompatibleInstance
	}
	ak, av := collect(a)
	bk, bv := collect(b)
	out := newResultInstance(a.cb, a.opts)
	i, j := 0, 0
	for i < len(ak) && j < len(bk) {
		c := a.cb.Compare(ak[i], bk[j])
		switch {
		case c < 0:
			out.Insert(ak[i], av[i])
			i++
		case c > 0:
			out.Insert(bk[j], bv[j])
			j++
		default:
			i++
			j++
		}
	}
	for ; i < len(ak); i++ {
		out.Insert(ak[i], av[i])
	}
	for ; j < len(bk); j++ {
		out.Insert(bk[j], bv[j])
	}
	return out, sds.Success
}

// Compliment (asymmetric) emits keys present in A but not in B.
func Compliment[K, V any](a, b *Instance[K, V]) (*Instance[K, V], sds.Result) {
	if !sameVtable(a, b) {
		return nil, sds.IncompatibleInstance
	}
	ak, av := collect(a)
	bk, _ := collect(b)
	out := newResultInstance(a.cb, a.opts)
	i, j := 0, 0
	for i < len(ak) && j < len(bk) {
		c := a.cb.Compare(ak[i], bk[j])
		switch {
		case c < 0:
			out.Insert(ak[i], av[i])
			i++
		case c > 0:
			j++
		default:
			i++
			j++
		}
	}
	for ; i < len(ak); i++ {
		out.Insert(ak[i], av[i])
	}
	return out, sds.Success
}

// Filter performs an in-order scan emitting entries where predicate(k,v)
// is true.
func Filter[K, V any](a *Instance[K, V], predicate func(K, V) bool) *Instance[K, V] {
	out := newResultInstance(a.cb, a.opts)
	a.Map(func(k K, v V) {
		if predicate(k, v) {
			out.Insert(k, v)
		}
	})
	return out
}
