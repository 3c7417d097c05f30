// Package hashtrie implements an auxiliary hash-trie: a
// 16-way, CAS-based lock-free associative index, grounded on the iNode/cNode
// shape of a concurrent hash trie, reduced to what the embedder actually
// needs here (no snapshot cloning, no generation bookkeeping — the cow
// B+tree already owns versioning in this library).
package hashtrie

import (
	"math/bits"
	"sync/atomic"

	"libsds/internal/siphash"
	"libsds/pkg/sds"
)

const (
	// w is the branching factor exponent: 2^w = 16 children per node.
	w    = 4
	mask = 1<<w - 1
)

// entry is a single key/value pair stored at a trie leaf position.
type entry[K, V any] struct {
	key   K
	value V
}

// cNode is a compressed internal node: a 16-bit presence bitmap plus a dense
// slice holding only the occupied branches, indexed by popcount of bmp below
// that branch's bit.
type cNode[K, V any] struct {
	bmp   uint16
	slice []branch[K, V]
}

// branch is either a nested *iNode or a leaf *entry.
type branch[K, V any] interface{}

// iNode is an indirection node: the only thing ever CAS'd.
type iNode[K, V any] struct {
	main atomic.Pointer[cNode[K, V]]
}

// Trie is a 16-way hash trie keyed by SipHash-1-3 over a caller-supplied key
// encoding.
type Trie[K, V any] struct {
	root    *iNode[K, V]
	keyBytes func(K) []byte
	eq       func(K, K) bool
	valueFree func(V)
	k0, k1   uint64
}

// New constructs an empty trie. keyBytes must return a stable byte encoding
// of a key (used both for hashing and, indirectly, for equality via eq).
func New[K, V any](keyBytes func(K) []byte, eq func(K, K) bool, valueFree func(V), k0, k1 uint64) *Trie[K, V] {
	root := &iNode[K, V]{}
	root.main.Store(&cNode[K, V]{})
	return &Trie[K, V]{root: root, keyBytes: keyBytes, eq: eq, valueFree: valueFree, k0: k0, k1: k1}
}

func (t *Trie[K, V]) hash(key K) uint64 {
	return siphash.Sum64(t.k0, t.k1, t.keyBytes(key))
}

func flagPos(hash uint64, lev uint, bmp uint16) (uint16, int) {
	idx := (hash >> lev) & mask
	flag := uint16(1) << idx
	pos := bits.OnesCount16(bmp & (flag - 1))
	return flag, pos
}

// Insert adds key/value, replacing any existing value for an equal key.
// Returns DuplicateKey semantics are not part of this contract: insert
// always overwrites, matching a trie's typical associative-map role as a
// secondary index rather than a primary ordered store.
func (t *Trie[K, V]) Insert(key K, value V) sds.Result {
	h := t.hash(key)
	for {
		if t.iinsert(t.root, key, value, h, 0) {
			return sds.Success
		}
	}
}

func (t *Trie[K, V]) iinsert(in *iNode[K, V], key K, value V, h uint64, lev uint) bool {
	cn := in.main.Load()
	flag, pos := flagPos(h, lev, cn.bmp)
	if cn.bmp&flag == 0 {
		return in.main.CompareAndSwap(cn, cn.inserted(pos, flag, &entry[K, V]{key, value}))
	}
	switch br := cn.slice[pos].(type) {
	case *iNode[K, V]:
		return t.iinsert(br, key, value, h, lev+w)
	case *entry[K, V]:
		if t.eq(br.key, key) {
			return in.main.CompareAndSwap(cn, cn.updated(pos, &entry[K, V]{key, value}))
		}
		child := &iNode[K, V]{}
		child.main.Store(collide[K, V](br, t.hash(br.key), h, &entry[K, V]{key, value}, lev+w))
		return in.main.CompareAndSwap(cn, cn.updated(pos, child))
	default:
		return false
	}
}

// collide builds the sub-trie needed to separate two colliding entries,
// recursing level by level until their hash prefixes diverge (or, in the
// degenerate case of an identical hash, stacking single-branch cNodes
// indefinitely is avoided by falling back to a two-element list at the
// final addressable level).
func collide[K, V any](existing *entry[K, V], existingHash uint64, otherHash uint64, added *entry[K, V], lev uint) *cNode[K, V] {
	if lev >= 64 {
		return &cNode[K, V]{bmp: 0x1, slice: []branch[K, V]{existing}}
	}
	ei := (existingHash >> lev) & mask
	ai := (otherHash >> lev) & mask
	if ei == ai {
		child := &iNode[K, V]{}
		child.main.Store(collide[K, V](existing, existingHash, otherHash, added, lev+w))
		return &cNode[K, V]{bmp: uint16(1) << ei, slice: []branch[K, V]{child}}
	}
	bmp := uint16(1)<<ei | uint16(1)<<ai
	if ei < ai {
		return &cNode[K, V]{bmp: bmp, slice: []branch[K, V]{existing, added}}
	}
	return &cNode[K, V]{bmp: bmp, slice: []branch[K, V]{added, existing}}
}

// Search reports whether key is present.
func (t *Trie[K, V]) Search(key K) sds.Result {
	_, res := t.Retrieve(key)
	return res
}

// Retrieve returns the value stored for key.
func (t *Trie[K, V]) Retrieve(key K) (V, sds.Result) {
	h := t.hash(key)
	return t.ilookup(t.root, key, h, 0)
}

func (t *Trie[K, V]) ilookup(in *iNode[K, V], key K, h uint64, lev uint) (V, sds.Result) {
	cn := in.main.Load()
	flag, pos := flagPos(h, lev, cn.bmp)
	if cn.bmp&flag == 0 {
		var zero V
		return zero, sds.KeyNotPresent
	}
	switch br := cn.slice[pos].(type) {
	case *iNode[K, V]:
		return t.ilookup(br, key, h, lev+w)
	case *entry[K, V]:
		if t.eq(br.key, key) {
			return br.value, sds.KeyPresent
		}
		var zero V
		return zero, sds.KeyNotPresent
	default:
		var zero V
		return zero, sds.KeyNotPresent
	}
}

// Delete removes key, returning KeyNotPresent if it was absent.
func (t *Trie[K, V]) Delete(key K) sds.Result {
	h := t.hash(key)
	for {
		res, retry := t.iremove(t.root, key, h, 0)
		if !retry {
			return res
		}
	}
}

func (t *Trie[K, V]) iremove(in *iNode[K, V], key K, h uint64, lev uint) (res sds.Result, retry bool) {
	cn := in.main.Load()
	flag, pos := flagPos(h, lev, cn.bmp)
	if cn.bmp&flag == 0 {
		return sds.KeyNotPresent, false
	}
	switch br := cn.slice[pos].(type) {
	case *iNode[K, V]:
		return t.iremove(br, key, h, lev+w)
	case *entry[K, V]:
		if !t.eq(br.key, key) {
			return sds.KeyNotPresent, false
		}
		if !in.main.CompareAndSwap(cn, cn.removed(pos, flag)) {
			return sds.UnknownError, true
		}
		if t.valueFree != nil {
			t.valueFree(br.value)
		}
		return sds.Success, false
	default:
		return sds.KeyNotPresent, false
	}
}

func (c *cNode[K, V]) inserted(pos int, flag uint16, br branch[K, V]) *cNode[K, V] {
	slice := make([]branch[K, V], len(c.slice)+1)
	copy(slice, c.slice[:pos])
	slice[pos] = br
	copy(slice[pos+1:], c.slice[pos:])
	return &cNode[K, V]{bmp: c.bmp | flag, slice: slice}
}

func (c *cNode[K, V]) updated(pos int, br branch[K, V]) *cNode[K, V] {
	slice := make([]branch[K, V], len(c.slice))
	copy(slice, c.slice)
	slice[pos] = br
	return &cNode[K, V]{bmp: c.bmp, slice: slice}
}

func (c *cNode[K, V]) removed(pos int, flag uint16) *cNode[K, V] {
	slice := make([]branch[K, V], len(c.slice)-1)
	copy(slice, c.slice[:pos])
	copy(slice[pos:], c.slice[pos+1:])
	return &cNode[K, V]{bmp: c.bmp ^ flag, slice: slice}
}

// Verify walks the trie checking that the bitmap popcount matches the
// branch slice length at every node, recursively.
func (t *Trie[K, V]) Verify() sds.Result {
	return verifyNode(t.root.main.Load())
}

func verifyNode[K, V any](cn *cNode[K, V]) sds.Result {
	if bits.OnesCount16(cn.bmp) != len(cn.slice) {
		return sds.InvalidNode
	}
	for _, br := range cn.slice {
		if in, ok := br.(*iNode[K, V]); ok {
			if res := verifyNode[K, V](in.main.Load()); res != sds.Success {
				return res
			}
		}
	}
	return sds.Success
}

// Destroy frees every stored value via valueFree.
func (t *Trie[K, V]) Destroy() {
	if t.valueFree == nil {
		return
	}
	destroyNode[K, V](t.root.main.Load(), t.valueFree)
}

func destroyNode[K, V any](cn *cNode[K, V], free func(V)) {
	for _, br := range cn.slice {
		switch b := br.(type) {
		case *iNode[K, V]:
			destroyNode[K, V](b.main.Load(), free)
		case *entry[K, V]:
			free(b.value)
		}
	}
}
