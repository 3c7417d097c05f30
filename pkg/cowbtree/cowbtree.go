package cowbtree

import (
	"errors"
	"sync"
	"sync/atomic"

	"libsds/pkg/sds"
)

// ErrNilCallbacks is returned by CowInit when required callback fields are
// missing.
var ErrNilCallbacks = errors.New("cowbtree: Compare, KeyDup, KeyFree, ValueFree and ValueDup must all be set")

// Instance is the cow B+tree instance: the callback vtable, the
// currently active committed transaction, the oldest still-alive
// transaction, a txn counter, and the two locks that together provide the
// concurrency model. It does not hold a pkg/btree instance; the cow tree
// has its own node type and operations.
type Instance[K, V any] struct {
	cb sds.CowCallbacks[K, V]

	// readLock guards `txn`: readers take it in read mode to snapshot the
	// active transaction pointer; the committer takes it in write mode
	// only for the brief pivot inside commit.
	readLock sync.RWMutex
	txn      *Txn[K, V]

	// tailTxn is mutated only by the thread that owns the last decrement
	// on it (single-writer by invariant), so it needs no lock.
	tailTxn *Txn[K, V]

	// writeLock excludes multiple concurrent writers; held for the whole
	// duration of WrtxnBegin..Commit/Abort.
	writeLock sync.Mutex

	txnCounter uint64 // atomic, strictly increasing txn ids
}

// CowInit creates the instance and bootstraps transaction id 1 as the
// active READ transaction with an empty root leaf.
func CowInit[K, V any](cb sds.CowCallbacks[K, V]) (*Instance[K, V], error) {
	if cb.Compare == nil || cb.KeyDup == nil || cb.KeyFree == nil || cb.ValueFree == nil || cb.ValueDup == nil {
		return nil, ErrNilCallbacks
	}
	inst := &Instance[K, V]{txnCounter: 1}
	root := newLeaf[K, V](1)
	bootstrap := &Txn[K, V]{inst: inst, state: TxnRead, txnID: 1, root: root, refCount: 1}
	inst.cb = cb
	inst.txn = bootstrap
	inst.tailTxn = bootstrap
	return inst, nil
}

// CowDestroy walks every surviving transaction freeing the keys and
// values that no earlier transaction still references, then frees the
// live tree outright. By contract the caller must have already aborted
// any in-progress writer.
func CowDestroy[K, V any](inst *Instance[K, V]) {
	t := inst.tailTxn
	for t != nil {
		for _, n := range t.owned {
			inst.freeNodeKeys(n)
		}
		for _, v := range t.retired {
			inst.cb.ValueFree(v)
		}
		t = t.childTxn
	}
	inst.freeLiveTree(inst.txn.root)
	inst.txn = nil
	inst.tailTxn = nil
}

// freeNodeKeys frees every key in n. Keys are always private, KeyDup'd
// duplicates (see node.clone), never shared across generations, so this is
// always safe to call on a node whose owning generation has gone away —
// unlike values, which an owned leaf's unmodified slots still share with
// the live tree.
func (inst *Instance[K, V]) freeNodeKeys(n *node[K, V]) {
	for _, k := range n.keys {
		inst.cb.KeyFree(k)
	}
}

// freeLiveTree frees every key and value still reachable from n. Used only
// at CowDestroy time, when by contract n is the final live tree and
// nothing else can still be referencing any of its contents.
func (inst *Instance[K, V]) freeLiveTree(n *node[K, V]) {
	if n == nil {
		return
	}
	if !n.isLeaf() {
		for _, c := range n.children {
			inst.freeLiveTree(c)
		}
	}
	inst.freeNodeKeys(n)
	if n.isLeaf() {
		for _, v := range n.values {
			inst.cb.ValueFree(v)
		}
	}
}

// RotxnBegin hands the caller a reference to the active transaction,
// atomically incrementing its reference count. May briefly block on
// readLock while a commit is mid-pivot.
func RotxnBegin[K, V any](inst *Instance[K, V]) *Txn[K, V] {
	inst.readLock.RLock()
	active := inst.txn
	active.incRef()
	inst.readLock.RUnlock()
	return active
}

// RotxnClose releases the reader's hold on the transaction; if this was
// the last reference and the transaction is the tail, cascade-free runs.
func RotxnClose[K, V any](txn *Txn[K, V]) {
	if txn.decRef() == 0 && txn == txn.inst.tailTxn {
		txn.inst.cascadeFree(txn)
	}
}

// WrtxnBegin acquires write_lock (blocking until any other writer
// finishes) and returns a new WRITE transaction rooted at the currently
// active snapshot.
func WrtxnBegin[K, V any](inst *Instance[K, V]) *Txn[K, V] {
	inst.writeLock.Lock()
	inst.readLock.RLock()
	parent := inst.txn
	root := parent.root
	inst.readLock.RUnlock()

	id := atomic.AddUint64(&inst.txnCounter, 1)
	return &Txn[K, V]{inst: inst, state: TxnWrite, txnID: id, root: root}
}

// WrtxnCommit performs the commit protocol:
// flip state, stamp the two-count, link into the chain, pivot the active
// pointer under a brief write-mode hold of readLock, decrement the
// outgoing transaction's count (cascading if it was the tail), and
// finally release write_lock.
func WrtxnCommit[K, V any](w *Txn[K, V]) sds.Result {
	if w.state != TxnWrite {
		return sds.InvalidTxn
	}
	inst := w.inst

	w.state = TxnRead
	atomic.StoreInt32(&w.refCount, 2)
	w.created = nil
	w.createdValues = nil

	p := inst.txn
	p.childTxn = w
	w.parentTxn = p

	inst.readLock.Lock()
	inst.txn = w
	inst.readLock.Unlock()

	if p.decRef() == 0 && p == inst.tailTxn {
		inst.cascadeFree(p)
	}

	inst.writeLock.Unlock()
	return sds.Success
}

// WrtxnAbort releases write_lock, then frees every node in the created
// list (their keys, always private duplicates) and every value this
// transaction had introduced; nothing in owned or retired is touched —
// those nodes and values were never detached from the live chain, since
// the transaction never committed.
func WrtxnAbort[K, V any](w *Txn[K, V]) sds.Result {
	if w.state != TxnWrite {
		return sds.InvalidTxn
	}
	inst := w.inst
	inst.writeLock.Unlock()
	for _, n := range w.created {
		inst.freeNodeKeys(n)
	}
	for _, v := range w.createdValues {
		inst.cb.ValueFree(v)
	}
	w.created = nil
	w.createdValues = nil
	w.owned = nil
	w.retired = nil
	return sds.Success
}

// cascadeFree starts from a transaction t whose reference count has just
// reached zero. t's own owned/retired lists were already freed when t's
// predecessor died (a pre-image node or retired value is reachable only
// through the predecessor's root, never through t's), so this step frees
// t.childTxn's owned nodes and retired values instead, then continues the
// cascade into the child if releasing its inherited parent-link reference
// also brings it to zero.
func (inst *Instance[K, V]) cascadeFree(t *Txn[K, V]) {
	for t != nil {
		next := t.childTxn
		if next != nil {
			for _, n := range next.owned {
				inst.freeNodeKeys(n)
			}
			for _, v := range next.retired {
				inst.cb.ValueFree(v)
			}
			next.owned = nil
			next.retired = nil
			next.parentTxn = nil
		}
		t.childTxn = nil
		inst.tailTxn = next
		if next == nil || next.decRef() != 0 {
			return
		}
		t = next
	}
}
