// Package metrics declares the prometheus collectors shared across the
// storage and concurrency components, grounded in sushant-115-gojodb's
// use of github.com/prometheus/client_golang for its own storage engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set bundles every counter/gauge/histogram a component in this module
// may sample. A nil-safe Noop() instance lets tests and call sites that
// don't care about metrics skip wiring a registry.
type Set struct {
	BufferHits      prometheus.Counter
	BufferMisses    prometheus.Counter
	BufferEvictions prometheus.Counter
	PagesAllocated  prometheus.Counter

	LockWaitSeconds    prometheus.Histogram
	DeadlocksDetected  prometheus.Counter
	ActiveTransactions prometheus.Gauge
}

// New registers and returns a Set on reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		BufferHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coredb_bufferpool_hits_total",
			Help: "Buffer pool fetch calls served from cache.",
		}),
		BufferMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coredb_bufferpool_misses_total",
			Help: "Buffer pool fetch calls that required a disk read.",
		}),
		BufferEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coredb_bufferpool_evictions_total",
			Help: "Dirty frames flushed to disk on eviction.",
		}),
		PagesAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coredb_disk_pages_allocated_total",
			Help: "Pages allocated via NewPage.",
		}),
		LockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coredb_lock_wait_seconds",
			Help:    "Time spent blocked waiting for a row lock to be granted.",
			Buckets: prometheus.DefBuckets,
		}),
		DeadlocksDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coredb_deadlocks_detected_total",
			Help: "Transactions aborted by the deadlock detector.",
		}),
		ActiveTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coredb_active_transactions",
			Help: "Transactions currently in the GROWING or SHRINKING state.",
		}),
	}
	for _, c := range []prometheus.Collector{
		s.BufferHits, s.BufferMisses, s.BufferEvictions, s.PagesAllocated,
		s.LockWaitSeconds, s.DeadlocksDetected, s.ActiveTransactions,
	} {
		reg.MustRegister(c)
	}
	return s
}

// Noop returns a Set backed by unregistered collectors, safe to sample
// without a registry — used as the default in constructors and tests.
func Noop() *Set {
	return &Set{
		BufferHits:         prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_buffer_hits"}),
		BufferMisses:       prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_buffer_misses"}),
		BufferEvictions:    prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_buffer_evictions"}),
		PagesAllocated:     prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_pages_allocated"}),
		LockWaitSeconds:    prometheus.NewHistogram(prometheus.HistogramOpts{Name: "noop_lock_wait_seconds"}),
		DeadlocksDetected:  prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_deadlocks_detected"}),
		ActiveTransactions: prometheus.NewGauge(prometheus.GaugeOpts{Name: "noop_active_transactions"}),
	}
}
