// Package txn implements the Transaction Manager (spec §4.F): the
// GROWING/SHRINKING/COMMITTED/ABORTED state machine, isolation levels,
// lock-set bookkeeping, and write-set undo on abort.
//
// Grounded in DaemonDB's storage_engine/transaction_manager, extended
// from its implicit "rollback happens during WAL recovery" model into
// an explicit write-set replay against heap.TableHeap, and from a bare
// commit/abort state pair into the four-state 2PL machine BusTub's
// concurrency/transaction.h describes.
package txn

import "coredb/heap"

// State is a transaction's position in the two-phase-locking protocol.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsolationLevel controls which lock acquisitions the Lock Manager
// gates, per spec §4.E.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

// LockMode is the granularity requested on a RID.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

// ID identifies a transaction. Lower ids are older (began earlier);
// deadlock victim selection aborts the highest id in a cycle.
type ID uint64

// Transaction tracks one unit of work's lock ownership, isolation
// level, and pending write-set for undo.
type Transaction struct {
	id        ID
	state     State
	isolation IsolationLevel

	sharedLocks    map[heap.RID]struct{}
	exclusiveLocks map[heap.RID]struct{}

	writeSet []undoRecord
}

func newTransaction(id ID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:             id,
		state:          Growing,
		isolation:      isolation,
		sharedLocks:    make(map[heap.RID]struct{}),
		exclusiveLocks: make(map[heap.RID]struct{}),
	}
}

// ID returns the transaction's identifier.
func (t *Transaction) ID() ID { return t.id }

// State returns the transaction's current 2PL state.
func (t *Transaction) State() State { return t.state }

// SetState transitions the transaction's state. Exported for the Lock
// Manager, which is the component that observes GROWING->SHRINKING
// (first unlock) and any->ABORTED (deadlock victim, lock-on-shrinking).
func (t *Transaction) SetState(s State) { t.state = s }

// IsolationLevel returns the transaction's isolation level.
func (t *Transaction) IsolationLevel() IsolationLevel { return t.isolation }

// HasSharedLock reports whether the transaction currently holds a
// shared lock on rid.
func (t *Transaction) HasSharedLock(rid heap.RID) bool {
	_, ok := t.sharedLocks[rid]
	return ok
}

// HasExclusiveLock reports whether the transaction currently holds an
// exclusive lock on rid.
func (t *Transaction) HasExclusiveLock(rid heap.RID) bool {
	_, ok := t.exclusiveLocks[rid]
	return ok
}

// GrantShared and GrantExclusive record that the Lock Manager has
// granted this transaction the given lock. Exported for the Lock
// Manager; callers elsewhere have no business calling these directly.
func (t *Transaction) GrantShared(rid heap.RID)    { t.sharedLocks[rid] = struct{}{} }
func (t *Transaction) GrantExclusive(rid heap.RID) { t.exclusiveLocks[rid] = struct{}{} }

// ReleaseLock drops any lock this transaction holds on rid.
func (t *Transaction) ReleaseLock(rid heap.RID) {
	delete(t.sharedLocks, rid)
	delete(t.exclusiveLocks, rid)
}

// LockedRIDs returns every RID currently locked by the transaction, in
// no particular order — used by the Lock Manager to release everything
// on commit or abort.
func (t *Transaction) LockedRIDs() []heap.RID {
	rids := make([]heap.RID, 0, len(t.sharedLocks)+len(t.exclusiveLocks))
	for rid := range t.sharedLocks {
		rids = append(rids, rid)
	}
	for rid := range t.exclusiveLocks {
		rids = append(rids, rid)
	}
	return rids
}

// SharedLockCount and ExclusiveLockCount mirror BusTub's
// CheckTxnLockSize test helper.
func (t *Transaction) SharedLockCount() int    { return len(t.sharedLocks) }
func (t *Transaction) ExclusiveLockCount() int { return len(t.exclusiveLocks) }
