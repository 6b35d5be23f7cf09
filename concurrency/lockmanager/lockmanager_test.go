package lockmanager

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredb/concurrency/txn"
	"coredb/heap"
)

// sharedTxnManager issues ids in the order newTxn is called, so tests
// that depend on relative transaction age (the deadlock victim is
// always the highest id in the cycle) see the ids they expect.
var sharedTxnManager = txn.New(nil, nil, nil)

func newTxn(iso txn.IsolationLevel) *txn.Transaction {
	return sharedTxnManager.BeginAt(iso)
}

func TestBasicSharedLocking(t *testing.T) {
	lm := New(nil, nil)
	tr := newTxn(txn.RepeatableRead)
	rid := heap.RID{PageID: 1, SlotNum: 1}

	require.NoError(t, lm.Lock(tr, rid, txn.Shared))
	assert.Equal(t, txn.Growing, tr.State())
	assert.Equal(t, 1, tr.SharedLockCount())

	require.NoError(t, lm.Unlock(tr, rid))
	assert.Equal(t, txn.Shrinking, tr.State())
}

// Mirrors BusTub's TwoPLTest: unlocking then re-locking after a
// transaction has already entered SHRINKING must abort it.
func TestLockAfterShrinkingAborts(t *testing.T) {
	lm := New(nil, nil)
	tr := newTxn(txn.RepeatableRead)
	rid0 := heap.RID{PageID: 0, SlotNum: 0}
	rid1 := heap.RID{PageID: 0, SlotNum: 1}

	require.NoError(t, lm.Lock(tr, rid0, txn.Shared))
	require.NoError(t, lm.Lock(tr, rid1, txn.Exclusive))
	require.NoError(t, lm.Unlock(tr, rid0))
	assert.Equal(t, txn.Shrinking, tr.State())

	err := lm.Lock(tr, rid0, txn.Shared)
	assert.ErrorIs(t, err, ErrLockOnShrinking)
	assert.Equal(t, txn.Aborted, tr.State())
}

func TestReadUncommittedRejectsSharedLock(t *testing.T) {
	lm := New(nil, nil)
	tr := newTxn(txn.ReadUncommitted)
	rid := heap.RID{PageID: 0, SlotNum: 0}

	err := lm.Lock(tr, rid, txn.Shared)
	assert.ErrorIs(t, err, ErrLockSharedOnReadUncommitted)
	assert.Equal(t, txn.Aborted, tr.State())
}

// Mirrors BusTub's UpgradeTest.
func TestLockUpgrade(t *testing.T) {
	lm := New(nil, nil)
	tr := newTxn(txn.RepeatableRead)
	rid := heap.RID{PageID: 0, SlotNum: 0}

	require.NoError(t, lm.Lock(tr, rid, txn.Shared))
	assert.Equal(t, 1, tr.SharedLockCount())

	require.NoError(t, lm.LockUpgrade(tr, rid))
	assert.Equal(t, 0, tr.SharedLockCount())
	assert.Equal(t, 1, tr.ExclusiveLockCount())
	assert.Equal(t, txn.Growing, tr.State())

	require.NoError(t, lm.Unlock(tr, rid))
	assert.Equal(t, txn.Shrinking, tr.State())
}

func TestUpgradeConflictRefusesSecondUpgrader(t *testing.T) {
	lm := New(nil, nil)
	rid := heap.RID{PageID: 0, SlotNum: 0}
	t1 := newTxn(txn.RepeatableRead)
	t2 := newTxn(txn.RepeatableRead)

	require.NoError(t, lm.Lock(t1, rid, txn.Shared))
	require.NoError(t, lm.Lock(t2, rid, txn.Shared))

	done := make(chan struct{})
	go func() {
		lm.LockUpgrade(t1, rid)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond) // let t1's upgrade register and block behind t2's shared lock

	err := lm.LockUpgrade(t2, rid)
	assert.ErrorIs(t, err, ErrUpgradeConflict)
	assert.Equal(t, txn.Aborted, t2.State())

	require.NoError(t, lm.Unlock(t2, rid))
	<-done
	assert.True(t, t1.HasExclusiveLock(rid))
}

func TestUnlockFailsWithoutLock(t *testing.T) {
	lm := New(nil, nil)
	tr := newTxn(txn.RepeatableRead)
	rid := heap.RID{PageID: 0, SlotNum: 0}
	assert.ErrorIs(t, lm.Unlock(tr, rid), ErrUnlockFailed)
}

// Mirrors BusTub's GraphEdgeTest.
func TestGraphEdges(t *testing.T) {
	lm := New(nil, nil)
	const n = 50
	for i := txn.ID(0); i < n; i += 2 {
		lm.AddEdge(i, i+1)
	}
	edges := lm.GetEdgeList()
	assert.Len(t, edges, n/2)

	sort.Slice(edges, func(i, j int) bool { return edges[i].From < edges[j].From })
	for i := txn.ID(0); i < n; i += 2 {
		assert.Equal(t, Edge{From: i, To: i + 1}, edges[i/2])
	}
}

// Mirrors BusTub's BasicCycleTest: a 0->1->0 cycle reports the higher
// transaction id, 1, as the victim.
func TestBasicCycle(t *testing.T) {
	lm := New(nil, nil)
	lm.AddEdge(0, 1)
	lm.AddEdge(1, 0)

	victim, found := lm.HasCycle()
	require.True(t, found)
	assert.Equal(t, txn.ID(1), victim)

	lm.RemoveEdge(1, 0)
	_, found = lm.HasCycle()
	assert.False(t, found)
}

// Mirrors BusTub's BasicDeadlockDetectionTest: two transactions
// acquiring exclusive locks on each other's rows in opposite order
// deadlock; the detector aborts the younger one so the older completes.
func TestDeadlockDetectorBreaksCycle(t *testing.T) {
	lm := New(nil, nil)
	rid0 := heap.RID{PageID: 0, SlotNum: 0}
	rid1 := heap.RID{PageID: 1, SlotNum: 1}
	t0 := newTxn(txn.RepeatableRead)
	t1 := newTxn(txn.RepeatableRead)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lm.RunDeadlockDetector(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	var t0Err, t1Err error

	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, lm.Lock(t0, rid0, txn.Exclusive))
		time.Sleep(30 * time.Millisecond)
		t0Err = lm.Lock(t0, rid1, txn.Exclusive)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, lm.Lock(t1, rid1, txn.Exclusive))
		t1Err = lm.Lock(t1, rid0, txn.Exclusive)
		// The victim's owner releases its held locks, as txn.Manager.Abort does.
		lm.UnlockAll(t1)
	}()
	wg.Wait()

	assert.NoError(t, t0Err)
	assert.ErrorIs(t, t1Err, ErrTransactionAborted)
	assert.Equal(t, txn.Aborted, t1.State())
}
