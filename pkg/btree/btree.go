package btree

import (
	"errors"

	"libsds/pkg/sds"
)

// ErrNilCallbacks is returned by Init when required callback fields are
// missing; this is a caller logic error, not a tree-consistency error.
var ErrNilCallbacks = errors.New("btree: Compare, KeyDup, KeyFree and ValueFree must all be set")

// Options controls the debug checksum feature (see node.go's
// recomputeChecksum). Both flags default to false; turning them on is solely for
// bug triage, never required for correctness.
type Options struct {
	ChecksumOnWrite  bool // recompute and stamp node checksums on mutation
	ChecksumOnSearch bool // verify node checksums opportunistically on read
}

// Instance is the plain B+tree: an ordered map with user-supplied key
// comparator, duplicator, destructor, and value destructor.
type Instance[K, V any] struct {
	cb   sds.Callbacks[K, V]
	opts Options
	root *node[K, V]
}

// Init allocates an empty instance; the root starts as an empty leaf.
func Init[K, V any](cb sds.Callbacks[K, V], opts Options) (*Instance[K, V], error) {
	if cb.Compare == nil || cb.KeyDup == nil || cb.KeyFree == nil || cb.ValueFree == nil {
		return nil, ErrNilCallbacks
	}
	root := newLeaf[K, V]()
	if opts.ChecksumOnWrite {
		root.stampChecksum()
	}
	return &Instance[K, V]{
		cb:   cb,
		opts: opts,
		root: root,
	}, nil
}

// Destroy performs a post-order traversal freeing every key via KeyFree and
// every value via ValueFree.
func (t *Instance[K, V]) Destroy() {
	t.clearAll()
	t.root = nil
}

func (t *Instance[K, V]) clearAll() {
	if t.root == nil {
		return
	}
	var walk func(n *node[K, V])
	walk = func(n *node[K, V]) {
		if n.isLeaf() {
			for i := range n.keys {
				t.cb.KeyFree(n.keys[i])
				t.cb.ValueFree(n.values[i])
			}
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)
}

// findLeaf descends from the root to the leaf that would hold key,
// re-stamping parent back-pointers as it goes so splits/merges never need
// a separate traversal stack.
func (t *Instance[K, V]) findLeaf(key K) *node[K, V] {
	n := t.root
	for !n.isLeaf() {
		idx := n.childIndex(key, t.cb.Compare)
		child := n.children[idx]
		child.parent = n
		n = child
	}
	return n
}

// Search descends from the root using the comparator's three-way result.
func (t *Instance[K, V]) Search(key K) sds.Result {
	leaf := t.findLeaf(key)
	pos := leaf.findPosition(key, t.cb.Compare)
	if pos < len(leaf.keys) && t.cb.Compare(leaf.keys[pos], key) == 0 {
		if t.opts.ChecksumOnSearch && !leaf.verifyChecksum() {
			return sds.ChecksumFailure
		}
		return sds.KeyPresent
	}
	return sds.KeyNotPresent
}

// Retrieve behaves like Search but also returns the stored value on
// KeyPresent. The caller must not free the returned value; it is still
// owned by the tree.
func (t *Instance[K, V]) Retrieve(key K) (V, sds.Result) {
	leaf := t.findLeaf(key)
	pos := leaf.findPosition(key, t.cb.Compare)
	if pos < len(leaf.keys) && t.cb.Compare(leaf.keys[pos], key) == 0 {
		if t.opts.ChecksumOnSearch && !leaf.verifyChecksum() {
			var zero V
			return zero, sds.ChecksumFailure
		}
		return leaf.values[pos], sds.KeyPresent
	}
	var zero V
	return zero, sds.KeyNotPresent
}

// Insert descends to the target leaf; a duplicate key leaves the tree
// unmodified and returns DuplicateKey. Otherwise the key is inserted in
// order and the leaf is split upward if it overflows.
func (t *Instance[K, V]) Insert(key K, value V) sds.Result {
	leaf := t.findLeaf(key)
	pos := leaf.findPosition(key, t.cb.Compare)
	if pos < len(leaf.keys) && t.cb.Compare(leaf.keys[pos], key) == 0 {
		return sds.DuplicateKey
	}
	leaf.keys = insertAt(leaf.keys, pos, t.cb.KeyDup(key))
	leaf.values = insertAt(leaf.values, pos, value)
	if t.opts.ChecksumOnWrite {
		leaf.stampChecksum()
	}
	if len(leaf.keys) > MaxKeys {
		t.splitAndPropagate(leaf)
	}
	return sds.Success
}

// splitAndPropagate splits the
// overfull node, propagate a new separator key up to the parent, and
// recurse while the parent itself overflows; if the root overflows, a new
// root one level higher is created.
func (t *Instance[K, V]) splitAndPropagate(n *node[K, V]) {
	for {
		medianKey, right := n.split()
		parent := n.parent
		if parent == nil {
			newRoot := newBranch[K, V](n.level + 1)
			newRoot.keys = append(newRoot.keys, medianKey)
			newRoot.children = append(newRoot.children, n, right)
			n.parent = newRoot
			right.parent = newRoot
			t.root = newRoot
			if t.opts.ChecksumOnWrite {
				n.stampChecksum()
				right.stampChecksum()
				newRoot.stampChecksum()
			}
			return
		}
		idx := childPos(parent, n)
		parent.keys = insertAt(parent.keys, idx, medianKey)
		parent.children = insertAt(parent.children, idx+1, right)
		right.parent = parent
		if t.opts.ChecksumOnWrite {
			n.stampChecksum()
			right.stampChecksum()
			parent.stampChecksum()
		}
		if len(parent.keys) <= MaxKeys {
			return
		}
		n = parent
	}
}

func childPos[K, V any](parent, n *node[K, V]) int {
	for i, c := range parent.children {
		if c == n {
			return i
		}
	}
	return -1
}

// Delete descends to the target leaf; a missing key returns
// KeyNotPresent, otherwise the stored key and value are freed, the entry
// removed, and the path rebalanced via merge/borrow if
// the leaf underflows.
func (t *Instance[K, V]) Delete(key K) sds.Result {
	leaf := t.findLeaf(key)
	pos := leaf.findPosition(key, t.cb.Compare)
	if pos >= len(leaf.keys) || t.cb.Compare(leaf.keys[pos], key) != 0 {
		return sds.KeyNotPresent
	}
	t.cb.KeyFree(leaf.keys[pos])
	t.cb.ValueFree(leaf.values[pos])
	leaf.keys = deleteAt(leaf.keys, pos)
	leaf.values = deleteAt(leaf.values, pos)
	if t.opts.ChecksumOnWrite {
		leaf.stampChecksum()
	}
	t.rebalance(leaf)
	return sds.Success
}

// rebalance implements the merge/borrow algorithm: prefer borrowing
// from the left sibling, then the right; if both siblings are already at
// the minimum, merge and recurse upward. If the root collapses to a
// branch with zero keys and one child, that child becomes the new root.
func (t *Instance[K, V]) rebalance(n *node[K, V]) {
	for {
		if n == t.root {
			if !n.isLeaf() && len(n.keys) == 0 && len(n.children) == 1 {
				t.root = n.children[0]
				t.root.parent = nil
			}
			return
		}
		minKeys := MinKeys
		if !n.isLeaf() {
			minKeys = MinBranchKeys
		}
		if len(n.keys) >= minKeys {
			return
		}
		parent := n.parent
		idx := childPos(parent, n)

		if idx > 0 {
			left := parent.children[idx-1]
			if len(left.keys) > minKeys {
				t.borrowFromLeft(parent, idx, left, n)
				return
			}
		}
		if idx < len(parent.children)-1 {
			right := parent.children[idx+1]
			if len(right.keys) > minKeys {
				t.borrowFromRight(parent, idx, n, right)
				return
			}
		}

		if idx > 0 {
			left := parent.children[idx-1]
			t.mergeNodes(parent, idx-1, left, n)
		} else {
			right := parent.children[idx+1]
			t.mergeNodes(parent, idx, n, right)
		}
		n = parent
	}
}

func (t *Instance[K, V]) borrowFromLeft(parent *node[K, V], idx int, left, n *node[K, V]) {
	if n.isLeaf() {
		last := len(left.keys) - 1
		key, val := left.keys[last], left.values[last]
		left.keys = left.keys[:last]
		left.values = left.values[:last]
		n.keys = insertAt(n.keys, 0, key)
		n.values = insertAt(n.values, 0, val)
		parent.keys[idx-1] = n.keys[0]
	} else {
		sepKey := parent.keys[idx-1]
		lastChild := len(left.children) - 1
		lastKey := len(left.keys) - 1
		movedChild := left.children[lastChild]
		leftLastKey := left.keys[lastKey]
		left.keys = left.keys[:lastKey]
		left.children = left.children[:lastChild]
		n.keys = insertAt(n.keys, 0, sepKey)
		n.children = insertAt(n.children, 0, movedChild)
		movedChild.parent = n
		parent.keys[idx-1] = leftLastKey
	}
	if t.opts.ChecksumOnWrite {
		left.stampChecksum()
		n.stampChecksum()
	}
}

func (t *Instance[K, V]) borrowFromRight(parent *node[K, V], idx int, n, right *node[K, V]) {
	if n.isLeaf() {
		key, val := right.keys[0], right.values[0]
		right.keys = deleteAt(right.keys, 0)
		right.values = deleteAt(right.values, 0)
		n.keys = append(n.keys, key)
		n.values = append(n.values, val)
		parent.keys[idx] = right.keys[0]
	} else {
		sepKey := parent.keys[idx]
		movedChild := right.children[0]
		rightFirstKey := right.keys[0]
		right.keys = deleteAt(right.keys, 0)
		right.children = deleteAt(right.children, 0)
		n.keys = append(n.keys, sepKey)
		n.children = append(n.children, movedChild)
		movedChild.parent = n
		parent.keys[idx] = rightFirstKey
	}
	if t.opts.ChecksumOnWrite {
		right.stampChecksum()
		n.stampChecksum()
	}
}

// mergeNodes folds right into left (left keeps leftIdx's slot in parent),
// removing parent's separator key and child pointer for right.
func (t *Instance[K, V]) mergeNodes(parent *node[K, V], leftIdx int, left, right *node[K, V]) {
	if left.isLeaf() {
		left.keys = append(left.keys, right.keys...)
		left.values = append(left.values, right.values...)
		left.next = right.next
	} else {
		sepKey := parent.keys[leftIdx]
		left.keys = append(left.keys, sepKey)
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
		for _, c := range right.children {
			c.parent = left
		}
	}
	parent.keys = deleteAt(parent.keys, leftIdx)
	parent.children = deleteAt(parent.children, leftIdx+1)
	if t.opts.ChecksumOnWrite {
		left.stampChecksum()
		parent.stampChecksum()
	}
}

// BulkLoad destroys current contents, then builds a tree bottom-up:
// consecutive runs of MaxKeys keys become leaves linked in order; parents
// are constructed level by level using the minimum key of each child as
// separator. Keys must already be strictly ascending; the tree takes
// ownership of the provided keys and values without calling KeyDup (the
// elements are copied into the tree's own node slices).
func (t *Instance[K, V]) BulkLoad(keys []K, values []V) sds.Result {
	if len(keys) != len(values) {
		return sds.InvalidValueSize
	}
	t.clearAll()

	if len(keys) == 0 {
		t.root = newLeaf[K, V]()
		return sds.Success
	}

	var level []*node[K, V]
	for i := 0; i < len(keys); i += MaxKeys {
		end := i + MaxKeys
		if end > len(keys) {
			end = len(keys)
		}
		leaf := newLeaf[K, V]()
		leaf.keys = append(leaf.keys, keys[i:end]...)
		leaf.values = append(leaf.values, values[i:end]...)
		level = append(level, leaf)
	}
	for i := 0; i < len(level)-1; i++ {
		level[i].next = level[i+1]
	}

	for len(level) > 1 {
		var parents []*node[K, V]
		for i := 0; i < len(level); i += MaxKeys + 1 {
			end := i + MaxKeys + 1
			if end > len(level) {
				end = len(level)
			}
			group := level[i:end]
			branch := newBranch[K, V](group[0].level + 1)
			branch.children = append(branch.children, group...)
			for _, c := range group {
				c.parent = branch
			}
			for j := 1; j < len(group); j++ {
				branch.keys = append(branch.keys, minKeyOf(group[j]))
			}
			parents = append(parents, branch)
		}
		level = parents
	}

	t.root = level[0]
	t.root.parent = nil
	if t.opts.ChecksumOnWrite {
		t.stampAll(t.root)
	}
	return sds.Success
}

func (t *Instance[K, V]) stampAll(n *node[K, V]) {
	if !n.isLeaf() {
		for _, c := range n.children {
			t.stampAll(c)
		}
	}
	n.stampChecksum()
}

func minKeyOf[K, V any](n *node[K, V]) K {
	for !n.isLeaf() {
		n = n.children[0]
	}
	return n.keys[0]
}

// Verify walks the tree asserting every structural invariant; when
// checksumming is enabled it recomputes and checks every node's checksum.
func (t *Instance[K, V]) Verify() sds.Result {
	if t.root == nil {
		return sds.InvalidPointer
	}
	return t.verifyNode(t.root, true)
}

func (t *Instance[K, V]) verifyNode(n *node[K, V], isRoot bool) sds.Result {
	minKeys := MinKeys
	if !n.isLeaf() {
		minKeys = MinBranchKeys
	}
	if !isRoot && (n.itemCount() < minKeys || n.itemCount() > MaxKeys) {
		return sds.InvalidNode
	}
	for i := 1; i < len(n.keys); i++ {
		if t.cb.Compare(n.keys[i-1], n.keys[i]) >= 0 {
			return sds.InvalidKeyOrder
		}
	}
	if (t.opts.ChecksumOnWrite || t.opts.ChecksumOnSearch) && !n.verifyChecksum() {
		return sds.ChecksumFailure
	}
	if n.isLeaf() {
		if len(n.values) != len(n.keys) {
			return sds.InvalidValueSize
		}
		return sds.Success
	}
	if len(n.children) != len(n.keys)+1 {
		return sds.InvalidNode
	}
	for i, c := range n.children {
		if c.parent != n {
			return sds.InvalidPointer
		}
		if res := t.verifyNode(c, false); res != sds.Success {
			return res
		}
		if i > 0 {
			if t.cb.Compare(minKeyOf(c), n.keys[i-1]) < 0 {
				return sds.InvalidKeyOrder
			}
		}
	}
	return sds.Success
}

// Map performs an in-order traversal calling fn(key, value) for every
// leaf entry, walking the leaf sibling-link chain rather than
// re-descending from the root for each entry.
func (t *Instance[K, V]) Map(fn func(K, V)) {
	n := t.leftmostLeaf()
	for n != nil {
		for i := range n.keys {
			fn(n.keys[i], n.values[i])
		}
		n = n.next
	}
}

func (t *Instance[K, V]) leftmostLeaf() *node[K, V] {
	n := t.root
	for n != nil && !n.isLeaf() {
		n = n.children[0]
	}
	return n
}
