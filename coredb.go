// Package main's single file, coredb.go, wires the storage and
// concurrency components into one Engine: the disk-to-bufferpool stack
// per table and index, the catalog registry, the Lock Manager and its
// background deadlock detector, and the Transaction Manager.
//
// Grounded in DaemonDB's top-level main.go, which does the same kind
// of wiring for its own bplustree+heapfile+executor trio, but built
// with explicit parameters and functional options (Config,
// WithPoolSize, ...) in place of the teacher's hardcoded constructor
// calls, matching the constructor-parameter style the rest of this
// module already follows.
package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"coredb/catalog"
	"coredb/concurrency/lockmanager"
	"coredb/concurrency/txn"
	"coredb/heap"
	"coredb/index/bplustree"
	"coredb/internal/metrics"
	"coredb/storage/bufferpool"
	"coredb/storage/disk"
)

// Config bundles the tunables every component constructor in this
// module already takes as plain parameters. There is no file/env/flag
// loading layer here — see DESIGN.md for why a viper-style config
// loader is not wired into a storage-engine-only core.
type Config struct {
	DataDir                string
	PoolSize               int
	CycleDetectionInterval string // parsed by time.ParseDuration; empty uses the Lock Manager's default
	DefaultIsolation       txn.IsolationLevel
}

// Option configures a Config starting from DefaultConfig.
type Option func(*Config)

// DefaultConfig returns a Config with 32 buffer pool frames per file,
// REPEATABLE_READ as the default isolation level, and the Lock
// Manager's default cycle detection interval.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:          dataDir,
		PoolSize:         32,
		DefaultIsolation: txn.RepeatableRead,
	}
}

// WithPoolSize overrides the per-file buffer pool frame count.
func WithPoolSize(n int) Option {
	return func(c *Config) { c.PoolSize = n }
}

// WithDefaultIsolation overrides the isolation level new transactions
// begin at when Engine.Begin is called without one.
func WithDefaultIsolation(level txn.IsolationLevel) Option {
	return func(c *Config) { c.DefaultIsolation = level }
}

// WithCycleDetectionInterval overrides how often the deadlock detector
// polls the wait-for graph. d is formatted per time.ParseDuration
// (e.g. "50ms").
func WithCycleDetectionInterval(d string) Option {
	return func(c *Config) { c.CycleDetectionInterval = d }
}

// detectionInterval parses CycleDetectionInterval, falling back to the
// Lock Manager's own default when unset.
func (c Config) detectionInterval() (time.Duration, error) {
	if c.CycleDetectionInterval == "" {
		return lockmanager.DefaultCycleDetectionInterval, nil
	}
	d, err := time.ParseDuration(c.CycleDetectionInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid cycle detection interval %q: %w", c.CycleDetectionInterval, err)
	}
	return d, nil
}

// tableStack is one table's private disk+bufferpool+heap trio. Every
// table gets its own backing file, matching the single-file-per-BPM
// design already used by index/bplustree.Tree (see DESIGN.md's Open
// Question note on this).
type tableStack struct {
	disk *disk.Manager
	pool *bufferpool.Manager
	heap *heap.TableHeap
}

// indexStack is the equivalent trio for one B+Tree index.
type indexStack struct {
	disk *disk.Manager
	pool *bufferpool.Manager
	tree *bplustree.Tree
}

// Engine is the top-level handle a caller outside this module embeds:
// it owns the catalog, every table's and index's storage stack, the
// Lock Manager plus its deadlock detector, and the Transaction
// Manager. None of the SQL parsing/planning/execution machinery the
// teacher's own main.go drove lives here — spec §1's Non-goals exclude
// the query layer entirely.
type Engine struct {
	cfg Config
	log *zap.Logger
	m   *metrics.Set

	catalog *catalog.Catalog
	locks   *lockmanager.Manager
	txns    *txn.Manager

	mu      sync.Mutex
	tables  map[string]*tableStack
	indexes map[string]*indexStack

	cancelDetector context.CancelFunc
}

// Open starts an Engine rooted at cfg.DataDir, launching the
// background deadlock detector. Callers must call Close to stop it and
// flush every open file.
func Open(cfg Config, log *zap.Logger, reg prometheus.Registerer) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var m *metrics.Set
	if reg != nil {
		m = metrics.New(reg)
	} else {
		m = metrics.Noop()
	}

	locks := lockmanager.New(log, m)
	e := &Engine{
		cfg:     cfg,
		log:     log,
		m:       m,
		catalog: catalog.New(),
		locks:   locks,
		txns:    txn.New(locks, log, m),
		tables:  make(map[string]*tableStack),
		indexes: make(map[string]*indexStack),
	}

	interval, err := cfg.detectionInterval()
	if err != nil {
		return nil, fmt.Errorf("coredb: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelDetector = cancel
	go locks.RunDeadlockDetector(ctx, interval)

	return e, nil
}

// Close stops the deadlock detector and flushes every open table and
// index file.
func (e *Engine) Close() error {
	e.cancelDetector()

	e.mu.Lock()
	defer e.mu.Unlock()

	var first error
	for name, ts := range e.tables {
		if err := ts.pool.FlushAllPages(); err != nil && first == nil {
			first = fmt.Errorf("coredb: flush table %q: %w", name, err)
		}
		if err := ts.disk.Shutdown(); err != nil && first == nil {
			first = fmt.Errorf("coredb: close table %q: %w", name, err)
		}
	}
	for name, is := range e.indexes {
		if err := is.pool.FlushAllPages(); err != nil && first == nil {
			first = fmt.Errorf("coredb: flush index %q: %w", name, err)
		}
		if err := is.disk.Shutdown(); err != nil && first == nil {
			first = fmt.Errorf("coredb: close index %q: %w", name, err)
		}
	}
	return first
}

// CreateTable opens a dedicated backing file for name under the
// engine's data directory and registers it in the catalog.
func (e *Engine) CreateTable(name string) (*catalog.TableInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tables[name]; exists {
		return nil, fmt.Errorf("coredb: table %q already open", name)
	}

	d, err := disk.Open(filepath.Join(e.cfg.DataDir, name+".tbl"), e.log)
	if err != nil {
		return nil, fmt.Errorf("coredb: open table %q: %w", name, err)
	}
	pool := bufferpool.New(e.cfg.PoolSize, d, e.log, e.m)
	h := heap.New(pool, e.log)

	info, err := e.catalog.CreateTable(name, h)
	if err != nil {
		d.Shutdown()
		return nil, err
	}
	e.tables[name] = &tableStack{disk: d, pool: pool, heap: h}
	return info, nil
}

// CreateIndex opens a dedicated backing file for a B+Tree index named
// indexName on table and registers it in the catalog.
func (e *Engine) CreateIndex(table, indexName string, opts ...bplustree.Option) (*bplustree.Tree, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := table + "." + indexName
	if _, exists := e.indexes[key]; exists {
		return nil, fmt.Errorf("coredb: index %q already open", key)
	}

	d, err := disk.Open(filepath.Join(e.cfg.DataDir, key+".idx"), e.log)
	if err != nil {
		return nil, fmt.Errorf("coredb: open index %q: %w", key, err)
	}
	pool := bufferpool.New(e.cfg.PoolSize, d, e.log, e.m)
	tree, err := bplustree.Open(pool, opts...)
	if err != nil {
		d.Shutdown()
		return nil, fmt.Errorf("coredb: open b+tree %q: %w", key, err)
	}

	if err := e.catalog.CreateIndex(table, indexName, tree); err != nil {
		d.Shutdown()
		return nil, err
	}
	e.indexes[key] = &indexStack{disk: d, pool: pool, tree: tree}
	return tree, nil
}

// Begin starts a new transaction at the engine's configured default
// isolation level.
func (e *Engine) Begin() *txn.Transaction {
	return e.txns.BeginAt(e.cfg.DefaultIsolation)
}

// Commit commits t via the engine's Transaction Manager.
func (e *Engine) Commit(t *txn.Transaction) error { return e.txns.Commit(t) }

// Abort aborts t via the engine's Transaction Manager.
func (e *Engine) Abort(t *txn.Transaction) error { return e.txns.Abort(t) }

// Locks returns the engine's Lock Manager, for callers that need to
// acquire row locks directly around heap/index operations.
func (e *Engine) Locks() *lockmanager.Manager { return e.locks }

// Catalog returns the engine's table/index registry.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

func main() {
	// This module is a storage/concurrency core meant to be embedded,
	// not a standalone server or REPL — see spec §1's Non-goals. main
	// exists only so `coredb` remains a buildable command for smoke
	// testing the wiring above; real callers import the package.
	fmt.Println("coredb: storage and concurrency core — import this module, there is no REPL here")
}
