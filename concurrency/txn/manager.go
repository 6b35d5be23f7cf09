package txn

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"coredb/internal/metrics"
)

// ErrAlreadyCommitted and ErrAlreadyAborted mirror DaemonDB's
// transaction_manager/main.go guard on double Commit/Abort.
var (
	ErrAlreadyCommitted = errors.New("txn: transaction already committed")
	ErrAlreadyAborted   = errors.New("txn: transaction already aborted")
)

// LockReleaser is satisfied by the Lock Manager: the Transaction
// Manager depends on it only through this interface, so the two
// packages do not import each other.
type LockReleaser interface {
	UnlockAll(*Transaction)
}

// Manager issues transaction ids and drives Begin/Commit/Abort, per
// spec §4.F. Grounded in DaemonDB's storage_engine/transaction_manager,
// extended with isolation levels and full write-set undo on abort.
type Manager struct {
	mu         sync.RWMutex
	nextID     ID
	active     map[ID]*Transaction
	locks      LockReleaser
	log        *zap.Logger
	m          *metrics.Set
	defaultISO IsolationLevel
}

// New creates a Transaction Manager. locks is used to release every
// lock a transaction holds once it commits or aborts.
func New(locks LockReleaser, log *zap.Logger, m *metrics.Set) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Manager{
		nextID:     1,
		active:     make(map[ID]*Transaction),
		locks:      locks,
		log:        log,
		m:          m,
		defaultISO: RepeatableRead,
	}
}

// Begin starts a new transaction at the manager's default isolation
// level (REPEATABLE_READ) and registers it as active.
func (tm *Manager) Begin() *Transaction {
	return tm.BeginAt(tm.defaultISO)
}

// BeginAt starts a new transaction at the given isolation level.
func (tm *Manager) BeginAt(isolation IsolationLevel) *Transaction {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	id := tm.nextID
	tm.nextID++
	t := newTransaction(id, isolation)
	tm.active[id] = t
	tm.m.ActiveTransactions.Inc()
	tm.log.Debug("txn begin", zap.Uint64("txn_id", uint64(id)), zap.Int("isolation", int(isolation)))
	return t
}

// Commit releases every lock the transaction holds and marks it
// COMMITTED. Idempotent: committing an already-committed transaction
// is a no-op, matching the teacher's guard.
func (tm *Manager) Commit(t *Transaction) error {
	if t.state == Aborted {
		return fmt.Errorf("%w: txn %d", ErrAlreadyAborted, t.id)
	}
	if t.state == Committed {
		return nil
	}

	tm.mu.Lock()
	delete(tm.active, t.id)
	tm.mu.Unlock()

	t.SetState(Committed)
	if tm.locks != nil {
		tm.locks.UnlockAll(t)
	}
	tm.m.ActiveTransactions.Dec()
	tm.log.Debug("txn commit", zap.Uint64("txn_id", uint64(t.id)))
	return nil
}

// Abort replays the transaction's write-set in reverse order, releases
// every lock it holds, and marks it ABORTED. Idempotent.
func (tm *Manager) Abort(t *Transaction) error {
	if t.state == Committed {
		return fmt.Errorf("%w: txn %d", ErrAlreadyCommitted, t.id)
	}
	if t.state == Aborted {
		return nil
	}

	tm.mu.Lock()
	delete(tm.active, t.id)
	tm.mu.Unlock()

	undoErr := t.undo()
	t.SetState(Aborted)
	if tm.locks != nil {
		tm.locks.UnlockAll(t)
	}
	tm.m.ActiveTransactions.Dec()
	if undoErr != nil {
		tm.log.Warn("txn abort: undo replay had errors", zap.Uint64("txn_id", uint64(t.id)), zap.Error(undoErr))
	} else {
		tm.log.Debug("txn abort", zap.Uint64("txn_id", uint64(t.id)))
	}
	return undoErr
}

// GetTransaction returns the active transaction with the given id, or
// nil if it is not active (never existed, or already committed/aborted).
func (tm *Manager) GetTransaction(id ID) *Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.active[id]
}

// IsActive reports whether id names a currently active transaction.
func (tm *Manager) IsActive(id ID) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	_, ok := tm.active[id]
	return ok
}

// ActiveTransactions returns a snapshot of every currently active
// transaction, in no particular order.
func (tm *Manager) ActiveTransactions() []*Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make([]*Transaction, 0, len(tm.active))
	for _, t := range tm.active {
		out = append(out, t)
	}
	return out
}
