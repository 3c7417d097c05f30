package cowbtree

import "libsds/pkg/sds"

// CowSearch descends from txn.root; both READ and WRITE transactions may
// search.
func CowSearch[K, V any](txn *Txn[K, V], key K) sds.Result {
	cmp := txn.inst.cb.Compare
	n := txn.root
	for !n.isLeaf() {
		n = n.children[n.childIndex(key, cmp)]
	}
	pos := n.findPosition(key, cmp)
	if pos < len(n.keys) && cmp(n.keys[pos], key) == 0 {
		return sds.KeyPresent
	}
	return sds.KeyNotPresent
}

// CowRetrieve behaves like CowSearch but also returns the stored value on
// KeyPresent.
func CowRetrieve[K, V any](txn *Txn[K, V], key K) (V, sds.Result) {
	cmp := txn.inst.cb.Compare
	n := txn.root
	for !n.isLeaf() {
		n = n.children[n.childIndex(key, cmp)]
	}
	pos := n.findPosition(key, cmp)
	if pos < len(n.keys) && cmp(n.keys[pos], key) == 0 {
		return n.values[pos], sds.KeyPresent
	}
	var zero V
	return zero, sds.KeyNotPresent
}

// cloneForWrite implements the path-copy discipline:
// if N was already created inside W, mutate in place; otherwise clone it,
// tag the clone with W's txn id, link the clone into W's created list and
// add the original to W's owned list. A cloned branch's children are
// re-pointed at the clone. Returns the writable node and whether a clone
// actually happened.
func (inst *Instance[K, V]) cloneForWrite(w *Txn[K, V], n *node[K, V]) (*node[K, V], bool) {
	if n.txnID == w.txnID {
		return n, false
	}
	clone := n.clone(inst.cb, w.txnID)
	for _, c := range clone.children {
		c.parent = clone
	}
	w.created = append(w.created, clone)
	w.owned = append(w.owned, n)
	return clone, true
}

// descendForWrite path-copies from the root down to the leaf that would
// hold key, patching each writable parent's child slot as it descends so
// no separate traversal stack is needed. Returns the writable leaf and
// whether that leaf was freshly cloned by this call (as opposed to
// already owned by w from an earlier operation in the same transaction).
func (inst *Instance[K, V]) descendForWrite(w *Txn[K, V], key K) (*node[K, V], bool) {
	n, fresh := inst.cloneForWrite(w, w.root)
	w.root = n
	cmp := inst.cb.Compare
	for !n.isLeaf() {
		idx := n.childIndex(key, cmp)
		child, childFresh := inst.cloneForWrite(w, n.children[idx])
		n.children[idx] = child
		child.parent = n
		n = child
		fresh = childFresh
	}
	return n, fresh
}

// CowInsert path-copies to the target leaf and inserts key/value there; a
// duplicate key leaves the transaction's view unmodified.
func CowInsert[K, V any](w *Txn[K, V], key K, value V) sds.Result {
	if w.state != TxnWrite {
		return sds.InvalidTxn
	}
	inst := w.inst
	leaf, _ := inst.descendForWrite(w, key)
	pos := leaf.findPosition(key, inst.cb.Compare)
	if pos < len(leaf.keys) && inst.cb.Compare(leaf.keys[pos], key) == 0 {
		return sds.DuplicateKey
	}
	leaf.keys = insertAt(leaf.keys, pos, inst.cb.KeyDup(key))
	leaf.values = insertAt(leaf.values, pos, value)
	w.createdValues = append(w.createdValues, value)
	if len(leaf.keys) > MaxKeys {
		inst.splitAndPropagateCow(w, leaf)
	}
	return sds.Success
}

// splitAndPropagateCow splits an overfull node, tagging brand-new
// siblings with w's txn id and adding them to created (pure additions,
// never owned), propagating upward exactly as pkg/btree does.
func (inst *Instance[K, V]) splitAndPropagateCow(w *Txn[K, V], n *node[K, V]) {
	for {
		medianKey, right := n.split(w.txnID)
		w.created = append(w.created, right)
		parent := n.parent
		if parent == nil {
			newRoot := newBranch[K, V](n.level+1, w.txnID)
			newRoot.keys = append(newRoot.keys, medianKey)
			newRoot.children = append(newRoot.children, n, right)
			n.parent = newRoot
			right.parent = newRoot
			w.root = newRoot
			w.created = append(w.created, newRoot)
			return
		}
		idx := childPos(parent, n)
		parent.keys = insertAt(parent.keys, idx, medianKey)
		parent.children = insertAt(parent.children, idx+1, right)
		right.parent = parent
		if len(parent.keys) <= MaxKeys {
			return
		}
		n = parent
	}
}

// CowDelete path-copies to the target leaf and removes the entry. The
// key is freed immediately (the clone's copy is a private KeyDup'd
// duplicate, never shared with any other generation); the value is
// deferred to w.retired, since the leaf's predecessor generation may
// still be holding the exact same value for an outstanding reader.
func CowDelete[K, V any](w *Txn[K, V], key K) sds.Result {
	if w.state != TxnWrite {
		return sds.InvalidTxn
	}
	inst := w.inst
	leaf, _ := inst.descendForWrite(w, key)
	pos := leaf.findPosition(key, inst.cb.Compare)
	if pos >= len(leaf.keys) || inst.cb.Compare(leaf.keys[pos], key) != 0 {
		return sds.KeyNotPresent
	}
	inst.cb.KeyFree(leaf.keys[pos])
	w.retired = append(w.retired, leaf.values[pos])
	leaf.keys = deleteAt(leaf.keys, pos)
	leaf.values = deleteAt(leaf.values, pos)
	inst.rebalanceCow(w, leaf)
	return sds.Success
}

// CowUpdate implements update-versus-delete+insert semantics: the new
// value (duplicated via ValueDup, so the tree's copy does not alias
// whatever the caller continues to hold) is installed into the cloned
// leaf, while the pre-commit snapshot's leaf keeps referencing the
// original value untouched. The replaced value is deferred to
// w.retired rather than freed here — the leaf's predecessor generation
// may still be holding that exact value for an outstanding reader, and
// it is only safe to free once that predecessor is reclaimed.
func CowUpdate[K, V any](w *Txn[K, V], key K, value V) sds.Result {
	if w.state != TxnWrite {
		return sds.InvalidTxn
	}
	inst := w.inst
	leaf, _ := inst.descendForWrite(w, key)
	pos := leaf.findPosition(key, inst.cb.Compare)
	if pos >= len(leaf.keys) || inst.cb.Compare(leaf.keys[pos], key) != 0 {
		return sds.KeyNotPresent
	}
	old := leaf.values[pos]
	leaf.values[pos] = inst.cb.ValueDup(value)
	w.retired = append(w.retired, old)
	w.createdValues = append(w.createdValues, leaf.values[pos])
	return sds.Success
}

func (inst *Instance[K, V]) rebalanceCow(w *Txn[K, V], n *node[K, V]) {
	for {
		if n == w.root {
			if !n.isLeaf() && len(n.keys) == 0 && len(n.children) == 1 {
				w.root = n.children[0]
				w.root.parent = nil
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

		var left, right *node[K, V]
		if idx > 0 {
			left, _ = inst.cloneForWrite(w, parent.children[idx-1])
			parent.children[idx-1] = left
			left.parent = parent
			if len(left.keys) > minKeys {
				inst.borrowFromLeft(parent, idx, left, n)
				return
			}
		}
		if idx < len(parent.children)-1 {
			right, _ = inst.cloneForWrite(w, parent.children[idx+1])
			parent.children[idx+1] = right
			right.parent = parent
			if len(right.keys) > minKeys {
				inst.borrowFromRight(parent, idx, n, right)
				return
			}
		}

		if idx > 0 {
			inst.mergeNodes(parent, idx-1, left, n)
		} else {
			inst.mergeNodes(parent, idx, n, right)
		}
		n = parent
	}
}

func (inst *Instance[K, V]) borrowFromLeft(parent *node[K, V], idx int, left, n *node[K, V]) {
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
}

func (inst *Instance[K, V]) borrowFromRight(parent *node[K, V], idx int, n, right *node[K, V]) {
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
}

// mergeNodes folds right into left: the surviving node (left) was already
// clone-for-write'd by the
// caller; the disappearing node (right) simply becomes unreachable once
// the parent's separator and child slot are removed — any pre-existing
// (pre-transaction) version of either sibling was already routed to the
// owning transaction's owned list by cloneForWrite before this runs.
func (inst *Instance[K, V]) mergeNodes(parent *node[K, V], leftIdx int, left, right *node[K, V]) {
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
}
