// Package lockmanager implements the Lock Manager (spec §4.E): per-RID
// wait queues, shared/exclusive locking under two-phase locking, lock
// upgrade, isolation-level gating, and background deadlock detection
// over a wait-for graph.
//
// Grounded in BusTub's concurrency/lock_manager (see
// original_source/test/concurrency/lock_manager_test.cpp), which
// DaemonDB itself never implemented — its query_executor has only an
// auto_transaction helper with no row-level locking at all. The named
// error conditions and the GraphEdge/BasicCycle/DeadlockDetection test
// shapes follow that file; the request-queue-per-RID mechanism is
// built from scratch in the idiom of the rest of this module
// (mutex+sync.Cond), since no example repo carries a reusable
// wait-queue package to adapt instead.
package lockmanager

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"coredb/concurrency/txn"
	"coredb/heap"
	"coredb/internal/metrics"
)

// Errors surfaced by Lock/Unlock/LockUpgrade. Every one of these also
// aborts the calling transaction before returning, matching BusTub's
// convention of throwing a TransactionAbortException from inside the
// lock call itself.
var (
	ErrLockSharedOnReadUncommitted = errors.New("lockmanager: READ_UNCOMMITTED transactions may not take shared locks")
	ErrLockOnShrinking             = errors.New("lockmanager: cannot acquire a new lock while SHRINKING")
	ErrUnlockFailed                = errors.New("lockmanager: transaction does not hold a lock on this row")
	ErrUpgradeConflict             = errors.New("lockmanager: another transaction is already upgrading this row")
	ErrTransactionAborted          = errors.New("lockmanager: transaction already aborted")
)

type request struct {
	txn     *txn.Transaction
	mode    txn.LockMode
	granted bool
}

type queue struct {
	cond     *sync.Cond
	requests []*request
}

// Manager owns one wait queue per locked RID plus the wait-for graph
// used for deadlock detection.
type Manager struct {
	mu    sync.Mutex
	table map[heap.RID]*queue

	edges     map[txn.ID]map[txn.ID]struct{} // edges[a][b]: a waits for b
	upgrading map[heap.RID]txn.ID
	txns      map[txn.ID]*txn.Transaction // live transactions participating in the wait-for graph

	log *zap.Logger
	m   *metrics.Set
}

// New creates an empty Lock Manager.
func New(log *zap.Logger, m *metrics.Set) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Manager{
		table:     make(map[heap.RID]*queue),
		edges:     make(map[txn.ID]map[txn.ID]struct{}),
		upgrading: make(map[heap.RID]txn.ID),
		txns:      make(map[txn.ID]*txn.Transaction),
		log:       log,
		m:         m,
	}
}

func (m *Manager) queueFor(rid heap.RID) *queue {
	q, ok := m.table[rid]
	if !ok {
		q = &queue{cond: sync.NewCond(&m.mu)}
		m.table[rid] = q
	}
	return q
}

// checkIsolation applies spec §4.E's gating rules. Caller must hold m.mu.
func (m *Manager) checkIsolation(t *txn.Transaction, mode txn.LockMode) error {
	if t.State() == txn.Aborted {
		return ErrTransactionAborted
	}
	if mode == txn.Shared && t.IsolationLevel() == txn.ReadUncommitted {
		t.SetState(txn.Aborted)
		return ErrLockSharedOnReadUncommitted
	}
	if t.State() == txn.Shrinking {
		// READ_COMMITTED permits acquiring a shared lock while
		// shrinking: releasing write locks eagerly under RC would
		// otherwise make every later read in the same transaction
		// impossible to protect at all.
		if mode == txn.Shared && t.IsolationLevel() == txn.ReadCommitted {
			return nil
		}
		t.SetState(txn.Aborted)
		return ErrLockOnShrinking
	}
	return nil
}

// isCompatible reports whether mode can be granted given the counts of
// already-granted locks on the same RID.
func isCompatible(mode txn.LockMode, grantedShared int, grantedExclusive bool) bool {
	if grantedExclusive {
		return false
	}
	if mode == txn.Exclusive {
		return grantedShared == 0
	}
	return true
}

// tryGrant walks q.requests in FIFO order, granting every request that
// is compatible with what's already granted ahead of it. A READ_
// COMMITTED shared request is allowed to jump ahead of earlier,
// still-waiting exclusive requests — the one queue-jump rule this
// manager carries — but otherwise a request only becomes eligible once
// every request ahead of it has already been granted. Caller must hold
// m.mu.
func (m *Manager) tryGrant(q *queue) {
	grantedShared := 0
	grantedExclusive := false
	for _, r := range q.requests {
		if r.granted {
			if r.mode == txn.Exclusive {
				grantedExclusive = true
			} else {
				grantedShared++
			}
		}
	}

	blocked := false
	for _, r := range q.requests {
		if r.granted {
			continue
		}
		jumpsQueue := r.mode == txn.Shared && r.txn.IsolationLevel() == txn.ReadCommitted
		if blocked && !jumpsQueue {
			continue
		}
		if isCompatible(r.mode, grantedShared, grantedExclusive) {
			r.granted = true
			if r.mode == txn.Exclusive {
				grantedExclusive = true
			} else {
				grantedShared++
			}
		} else if !jumpsQueue {
			blocked = true
		}
	}
}

func removeRequest(q *queue, target *request) {
	for i, r := range q.requests {
		if r == target {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

// recordWaits records, in the wait-for graph, that waiter is blocked
// behind every other request ahead of it in q, granted or not — i.e.
// every request waiter must wait for. Caller must hold m.mu.
func (m *Manager) recordWaits(waiter *request, q *queue) {
	m.txns[waiter.txn.ID()] = waiter.txn
	for _, r := range q.requests {
		if r == waiter {
			break
		}
		if r.txn.ID() == waiter.txn.ID() {
			continue
		}
		m.txns[r.txn.ID()] = r.txn
		m.addEdgeLocked(waiter.txn.ID(), r.txn.ID())
	}
	for _, r := range q.requests {
		if r.granted && r.txn.ID() != waiter.txn.ID() {
			m.txns[r.txn.ID()] = r.txn
			m.addEdgeLocked(waiter.txn.ID(), r.txn.ID())
		}
	}
}

// clearWaitsFor removes every outgoing edge from id — called once its
// wait resolves, one way or another.
func (m *Manager) clearWaitsFor(id txn.ID) {
	delete(m.edges, id)
}

// Lock blocks until t is granted mode on rid, or returns an error if
// the request is refused outright or t becomes a deadlock victim while
// waiting.
func (m *Manager) Lock(t *txn.Transaction, rid heap.RID, mode txn.LockMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mode == txn.Shared && t.HasSharedLock(rid) {
		return nil
	}
	if mode == txn.Exclusive && t.HasExclusiveLock(rid) {
		return nil
	}
	if err := m.checkIsolation(t, mode); err != nil {
		return err
	}

	q := m.queueFor(rid)
	req := &request{txn: t, mode: mode}
	q.requests = append(q.requests, req)
	m.tryGrant(q)

	if !req.granted {
		start := time.Now()
		for !req.granted && t.State() != txn.Aborted {
			m.recordWaits(req, q)
			q.cond.Wait()
			m.clearWaitsFor(t.ID())
		}
		m.m.LockWaitSeconds.Observe(time.Since(start).Seconds())
	}

	if t.State() == txn.Aborted {
		removeRequest(q, req)
		m.tryGrant(q)
		q.cond.Broadcast()
		return ErrTransactionAborted
	}

	if mode == txn.Shared {
		t.GrantShared(rid)
	} else {
		t.GrantExclusive(rid)
	}
	return nil
}

// LockUpgrade upgrades t's shared lock on rid to exclusive. Only one
// transaction may be upgrading a given RID at a time; a second,
// concurrent upgrade attempt on the same RID is refused rather than
// queued, matching BusTub's UpgradeConflictException.
func (m *Manager) LockUpgrade(t *txn.Transaction, rid heap.RID) error {
	m.mu.Lock()

	if !t.HasSharedLock(rid) {
		t.SetState(txn.Aborted)
		m.mu.Unlock()
		return ErrUnlockFailed
	}
	if err := m.checkIsolation(t, txn.Exclusive); err != nil {
		m.mu.Unlock()
		return err
	}
	if owner, busy := m.upgrading[rid]; busy && owner != t.ID() {
		t.SetState(txn.Aborted)
		m.mu.Unlock()
		return ErrUpgradeConflict
	}
	m.upgrading[rid] = t.ID()

	q := m.queueFor(rid)
	for _, r := range q.requests {
		if r.txn.ID() == t.ID() && r.mode == txn.Shared {
			removeRequest(q, r)
			break
		}
	}
	t.ReleaseLock(rid)

	req := &request{txn: t, mode: txn.Exclusive}
	// Upgraders are inserted ahead of ordinary waiters: this
	// transaction already held a shared lock on rid, so it gets
	// priority over requests that arrived after it did.
	inserted := false
	for i, r := range q.requests {
		if !r.granted {
			q.requests = append(q.requests[:i], append([]*request{req}, q.requests[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		q.requests = append(q.requests, req)
	}
	m.tryGrant(q)

	if !req.granted {
		start := time.Now()
		for !req.granted && t.State() != txn.Aborted {
			m.recordWaits(req, q)
			q.cond.Wait()
			m.clearWaitsFor(t.ID())
		}
		m.m.LockWaitSeconds.Observe(time.Since(start).Seconds())
	}
	delete(m.upgrading, rid)

	if t.State() == txn.Aborted {
		removeRequest(q, req)
		m.tryGrant(q)
		q.cond.Broadcast()
		m.mu.Unlock()
		return ErrTransactionAborted
	}
	t.GrantExclusive(rid)
	m.mu.Unlock()
	return nil
}

// Unlock releases t's lock on rid. If t is still GROWING, releasing any
// lock moves REPEATABLE_READ (and READ_UNCOMMITTED) transactions to
// SHRINKING; under READ_COMMITTED only releasing an exclusive lock does
// — a shared lock may be taken and released freely within one
// transaction under RC without ending its growing phase.
func (m *Manager) Unlock(t *txn.Transaction, rid heap.RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hadShared := t.HasSharedLock(rid)
	hadExclusive := t.HasExclusiveLock(rid)
	if !hadShared && !hadExclusive {
		t.SetState(txn.Aborted)
		return ErrUnlockFailed
	}

	t.ReleaseLock(rid)
	q := m.queueFor(rid)
	for _, r := range q.requests {
		if r.txn.ID() == t.ID() && r.granted {
			removeRequest(q, r)
			break
		}
	}
	m.tryGrant(q)
	q.cond.Broadcast()

	if t.State() == txn.Growing {
		if hadExclusive || t.IsolationLevel() != txn.ReadCommitted {
			t.SetState(txn.Shrinking)
		}
	}
	return nil
}

// UnlockAll releases every lock t holds, ignoring the 2PL phase
// transition (a committing or aborting transaction is done acquiring
// locks regardless). Implements txn.LockReleaser.
func (m *Manager) UnlockAll(t *txn.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rid := range t.LockedRIDs() {
		t.ReleaseLock(rid)
		q, ok := m.table[rid]
		if !ok {
			continue
		}
		for _, r := range q.requests {
			if r.txn.ID() == t.ID() && r.granted {
				removeRequest(q, r)
				break
			}
		}
		m.tryGrant(q)
		q.cond.Broadcast()
	}
	m.clearWaitsFor(t.ID())
}
