package lockmanager

import (
	"context"
	"time"

	"go.uber.org/zap"

	"coredb/concurrency/txn"
)

// DefaultCycleDetectionInterval mirrors BusTub's cycle_detection_interval.
const DefaultCycleDetectionInterval = 50 * time.Millisecond

// RunDeadlockDetector polls the wait-for graph every interval and
// aborts the youngest transaction in any cycle it finds, waking every
// queue so the victim observes ABORTED and unwinds. Blocks until ctx
// is cancelled.
func (m *Manager) RunDeadlockDetector(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCycleDetectionInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.detectOnce()
		}
	}
}

func (m *Manager) detectOnce() {
	m.mu.Lock()
	victimID, found := m.hasCycleLocked()
	if !found {
		m.mu.Unlock()
		return
	}
	victim := m.txns[victimID]
	m.mu.Unlock()

	if victim == nil {
		return
	}

	m.mu.Lock()
	victim.SetState(txn.Aborted)
	m.clearWaitsFor(victimID)
	for _, q := range m.table {
		q.cond.Broadcast()
	}
	m.mu.Unlock()

	m.m.DeadlocksDetected.Inc()
	m.log.Warn("deadlock detected, aborted victim", zap.Uint64("txn_id", uint64(victimID)))
}
