package cowbtree

import "sync/atomic"

// TxnState is a transaction's read/write mode.
type TxnState int

const (
	TxnRead TxnState = iota
	TxnWrite
)

// Txn is a snapshot record: the transaction's view of the tree root,
// its place in the strictly-ordered parent/child chain of surviving
// transactions, and the node lists that drive cascade-free reclamation.
type Txn[K, V any] struct {
	inst  *Instance[K, V]
	state TxnState
	txnID uint64
	root  *node[K, V]

	// refCount is atomic: the number of outstanding holders. The active
	// (youngest committed) transaction starts at 1; each new reader
	// atomically increments it.
	refCount int32

	parentTxn *Txn[K, V]
	childTxn  *Txn[K, V]

	// owned holds nodes this transaction cloned away from its predecessor
	// (see node.clone): the pre-image is only reachable through the
	// predecessor's root, so it is freed when the predecessor dies, not
	// when this transaction itself does.
	owned []*node[K, V]

	// retired holds values this transaction replaced (CowUpdate) or removed
	// (CowDelete) from a cloned leaf. Like owned, a retired value may still
	// be visible through the predecessor's unmodified leaf, so it is freed
	// on the same predecessor-death schedule as owned, never eagerly.
	retired []V

	// created holds nodes this transaction allocated. Used only before
	// commit, to drive abort rollback; cleared (without freeing) at commit.
	created []*node[K, V]

	// createdValues holds values this transaction introduced (via insert or
	// as an update's replacement): freed on abort since they never became
	// part of the committed tree; simply dropped (not freed) at commit,
	// since they are now live and will be retired by some future
	// transaction.
	createdValues []V
}

// State returns whether this is a read or write transaction.
func (t *Txn[K, V]) State() TxnState { return t.state }

// ID returns the transaction's strictly monotonically increasing id.
func (t *Txn[K, V]) ID() uint64 { return t.txnID }

func (t *Txn[K, V]) incRef() {
	atomic.AddInt32(&t.refCount, 1)
}

func (t *Txn[K, V]) decRef() int32 {
	return atomic.AddInt32(&t.refCount, -1)
}
