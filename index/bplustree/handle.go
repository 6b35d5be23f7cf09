package bplustree

import (
	"errors"
	"fmt"

	"coredb/storage/page"
)

var errBufferPoolExhausted = errors.New("bplustree: buffer pool exhausted")

// latchMode distinguishes a read-latched from a write-latched handle so
// release knows which half of the page's RWMutex to drop.
type latchMode int

const (
	latchRead latchMode = iota
	latchWrite
)

// handle pairs a pinned, latched page with its decoded node. Every
// latch acquisition corresponds to exactly one pinned page, and every
// release unpins with the correct dirty flag — the scoped-guard pattern
// spec §9 calls for.
type handle struct {
	pg   *page.Page
	node *node
	mode latchMode
	dirty bool
}

// fetch pins pageID, acquires the requested latch, and decodes its
// current contents.
func (t *Tree) fetch(pageID int64, mode latchMode) (*handle, error) {
	pg, err := t.pool.FetchPage(pageID)
	if err != nil {
		return nil, fmt.Errorf("bplustree: fetch page %d: %w", pageID, err)
	}
	if pg == nil {
		return nil, errBufferPoolExhausted
	}
	if mode == latchWrite {
		pg.WLatch()
	} else {
		pg.RLatch()
	}
	n, err := deserializeNode(pageID, &pg.Data)
	if err != nil {
		t.unlatch(pg, mode)
		t.pool.UnpinPage(pageID, false)
		return nil, err
	}
	return &handle{pg: pg, node: n, mode: mode}, nil
}

// allocate creates a brand new page, write-latches it, and returns a
// handle wrapping a freshly constructed (not-yet-serialized) node.
func (t *Tree) allocate(leaf bool) (*handle, error) {
	pg, err := t.pool.NewPage()
	if err != nil {
		return nil, err
	}
	if pg == nil {
		return nil, errBufferPoolExhausted
	}
	pg.WLatch()
	var n *node
	if leaf {
		n = newLeafNode(pg.ID)
	} else {
		n = newInternalNode(pg.ID)
	}
	return &handle{pg: pg, node: n, mode: latchWrite, dirty: true}, nil
}

// markDirty flags the handle's node as modified; it will be
// re-serialized on release.
func (h *handle) markDirty() { h.dirty = true }

func (t *Tree) unlatch(pg *page.Page, mode latchMode) {
	if mode == latchWrite {
		pg.WUnlatch()
	} else {
		pg.RUnlatch()
	}
}

// release serializes (if dirty and write-latched), unlatches, and
// unpins h. Safe to call once per handle.
func (t *Tree) release(h *handle) error {
	if h == nil {
		return nil
	}
	var serializeErr error
	if h.dirty && h.mode == latchWrite {
		serializeErr = serializeNode(h.node, &h.pg.Data)
	}
	t.unlatch(h.pg, h.mode)
	t.pool.UnpinPage(h.pg.ID, h.dirty)
	return serializeErr
}

// releaseAll releases every handle in stack, in order, ignoring
// individual errors beyond the first (all are best-effort unpins; a
// serialize failure on one ancestor must not stop the others from
// being released).
func (t *Tree) releaseAll(stack []*handle) error {
	var firstErr error
	for _, h := range stack {
		if err := t.release(h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
