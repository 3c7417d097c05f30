package cowbtree

import "libsds/pkg/sds"

// CowVerify checks both the active transaction's tree shape and the
// transaction chain's own invariants: strictly ascending txn
// ids from tailTxn forward, no node owned by more than one transaction,
// and every live node's creator txn id no greater than the active
// transaction's id.
func CowVerify[K, V any](inst *Instance[K, V]) sds.Result {
	active := inst.txn
	if res := verifyTree(active.root, active.inst.cb.Compare, true, active.txnID); res != sds.Success {
		return res
	}

	seen := make(map[*node[K, V]]bool)
	var prevID uint64
	first := true
	for t := inst.tailTxn; t != nil; t = t.childTxn {
		if !first && t.txnID <= prevID {
			return sds.TestFailed
		}
		prevID, first = t.txnID, false
		for _, n := range t.owned {
			if seen[n] {
				return sds.TestFailed
			}
			seen[n] = true
		}
	}
	return sds.Success
}

func verifyTree[K, V any](n *node[K, V], cmp func(a, b K) int, isRoot bool, activeTxnID uint64) sds.Result {
	if n == nil {
		return sds.NullPointer
	}
	if n.txnID > activeTxnID {
		return sds.InvalidNode
	}
	if !isRoot {
		count := len(n.keys)
		if n.isLeaf() {
			if count < MinKeys {
				return sds.InvalidNode
			}
		} else if count < MinBranchKeys {
			return sds.InvalidNode
		}
	}
	for i := 1; i < len(n.keys); i++ {
		if cmp(n.keys[i-1], n.keys[i]) >= 0 {
			return sds.InvalidKeyOrder
		}
	}
	if n.isLeaf() {
		if len(n.values) != len(n.keys) {
			return sds.InvalidNode
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
		if i > 0 && cmp(minKeyOf(c), n.keys[i-1]) != 0 {
			return sds.InvalidKeyOrder
		}
		if res := verifyTree(c, cmp, false, activeTxnID); res != sds.Success {
			return res
		}
	}
	return sds.Success
}
