package bplustree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"coredb/storage/bufferpool"
	"coredb/storage/page"
)

// Comparator orders two keys; bytes.Compare is the default.
type Comparator func(a, b []byte) int

// Tree is a concurrent B+Tree index over one Buffer Pool Manager.
//
// rootMu is the "tree latch" from spec §4.D/§9: it serialises changes
// to the root pointer itself (initial root creation, a root split that
// allocates a new root, or a root collapse on delete). It is held only
// briefly around those pointer swaps — ordinary descents take rootMu
// for a read just long enough to snapshot the current root id, then
// rely entirely on per-page latches (crabbing) for the rest of the
// operation.
type Tree struct {
	pool *bufferpool.Manager
	log  *zap.Logger
	cmp  Comparator

	leafMaxSize     int
	internalMaxSize int

	rootMu sync.RWMutex
	rootID int64 // page.InvalidID if the tree is empty

	metaPageID int64 // page persisting rootID across restarts
}

// Option configures a Tree at construction time.
type Option func(*Tree)

// WithComparator overrides the default bytes.Compare key ordering.
func WithComparator(cmp Comparator) Option { return func(t *Tree) { t.cmp = cmp } }

// WithLeafMaxSize overrides the leaf fan-out.
func WithLeafMaxSize(n int) Option { return func(t *Tree) { t.leafMaxSize = n } }

// WithInternalMaxSize overrides the internal fan-out.
func WithInternalMaxSize(n int) Option { return func(t *Tree) { t.internalMaxSize = n } }

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option { return func(t *Tree) { t.log = l } }

// Open creates or reopens a B+Tree over pool. Page page.HeaderPageID
// (0) is reserved to persist the root pointer, per spec §6 ("page 0 is
// the header page").
func Open(pool *bufferpool.Manager, opts ...Option) (*Tree, error) {
	t := &Tree{
		pool:            pool,
		log:             zap.NewNop(),
		cmp:             bytes.Compare,
		leafMaxSize:     DefaultLeafMaxSize,
		internalMaxSize: DefaultInternalMaxSize,
		rootID:          page.InvalidID,
		metaPageID:      page.HeaderPageID,
	}
	for _, opt := range opts {
		opt(t)
	}

	// FetchPage never returns nil for an unallocated page — on a fresh
	// file it zero-fills and returns a valid page, so a fresh file can't
	// be told apart from one whose root happens to live at page 0 by
	// looking at the fetched page alone. DiskPageCount is the disk's
	// actual allocation count: zero means page 0 has genuinely never
	// been allocated, since AllocatePage always hands out id 0 first.
	if t.pool.DiskPageCount() == 0 {
		meta, err := t.pool.NewPage()
		if err != nil {
			return nil, err
		}
		if meta == nil {
			return nil, errBufferPoolExhausted
		}
		if meta.ID != t.metaPageID {
			t.pool.UnpinPage(meta.ID, false)
			return nil, fmt.Errorf("bplustree: expected fresh header page %d, got %d", t.metaPageID, meta.ID)
		}
		t.rootID = page.InvalidID
		t.pool.UnpinPage(meta.ID, true)
		if err := t.saveRoot(); err != nil {
			return nil, err
		}
		return t, nil
	}

	meta, err := t.pool.FetchPage(t.metaPageID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, errBufferPoolExhausted
	}
	meta.RLatch()
	t.rootID = int64(binary.LittleEndian.Uint64(meta.Data[0:8]))
	meta.RUnlatch()
	t.pool.UnpinPage(meta.ID, false)
	return t, nil
}

// saveRoot persists the current root id into the header page. Caller
// must hold rootMu for writing.
func (t *Tree) saveRoot() error {
	meta, err := t.pool.FetchPage(t.metaPageID)
	if err != nil {
		return err
	}
	if meta == nil {
		return errBufferPoolExhausted
	}
	meta.WLatch()
	binary.LittleEndian.PutUint64(meta.Data[0:8], uint64(t.rootID))
	meta.WUnlatch()
	t.pool.UnpinPage(meta.ID, true)
	return nil
}

// IsEmpty reports whether the tree currently has no entries.
func (t *Tree) IsEmpty() bool {
	t.rootMu.RLock()
	defer t.rootMu.RUnlock()
	return t.rootID == page.InvalidID
}

// Close flushes every dirty page belonging to the tree's pool.
func (t *Tree) Close() error {
	return t.pool.FlushAllPages()
}
