package cowbtree

import "libsds/pkg/sds"

// CowSearchAtomic wraps a single search in its own read transaction.
func CowSearchAtomic[K, V any](inst *Instance[K, V], key K) sds.Result {
	txn := RotxnBegin(inst)
	defer RotxnClose(txn)
	return CowSearch(txn, key)
}

// CowRetrieveAtomic wraps a single retrieve in its own read transaction.
func CowRetrieveAtomic[K, V any](inst *Instance[K, V], key K) (V, sds.Result) {
	txn := RotxnBegin(inst)
	defer RotxnClose(txn)
	return CowRetrieve(txn, key)
}

// CowInsertAtomic wraps a single insert in its own write transaction,
// committing on success and aborting on any non-Success result.
func CowInsertAtomic[K, V any](inst *Instance[K, V], key K, value V) sds.Result {
	w := WrtxnBegin(inst)
	res := CowInsert(w, key, value)
	if res != sds.Success {
		WrtxnAbort(w)
		return res
	}
	return WrtxnCommit(w)
}

// CowDeleteAtomic wraps a single delete in its own write transaction.
func CowDeleteAtomic[K, V any](inst *Instance[K, V], key K) sds.Result {
	w := WrtxnBegin(inst)
	res := CowDelete(w, key)
	if res != sds.Success {
		WrtxnAbort(w)
		return res
	}
	return WrtxnCommit(w)
}

// CowUpdateAtomic wraps a single update in its own write transaction.
func CowUpdateAtomic[K, V any](inst *Instance[K, V], key K, value V) sds.Result {
	w := WrtxnBegin(inst)
	res := CowUpdate(w, key, value)
	if res != sds.Success {
		WrtxnAbort(w)
		return res
	}
	return WrtxnCommit(w)
}
