// Package bufferpool implements the Buffer Pool Manager (spec §4.C): a
// fixed set of frames, a page-table mapping page-id to frame-id, a
// free-list of unused frames, and a Replacer used to pick eviction
// victims once the free-list is exhausted.
//
// Grounded in DaemonDB's storage_engine/bufferpool, restructured from
// a map-of-pages-with-LRU-access-order design into a frame-array design
// so that the Replacer (storage/replacer) owns eviction-candidate
// tracking exclusively, and access order is never touched on a cache
// hit — only pin/unpin drive replacer membership, per spec §4.B.
package bufferpool

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"coredb/internal/metrics"
	"coredb/storage/disk"
	"coredb/storage/page"
	"coredb/storage/replacer"
)

// ErrNoFramesAvailable names the every-frame-pinned condition. No
// function in this package returns it: FetchPage and NewPage report that
// condition as a nil Page with a nil error.
var ErrNoFramesAvailable = errors.New("bufferpool: no frames available")

// Manager is the Buffer Pool Manager.
type Manager struct {
	mu sync.Mutex

	frames   []*page.Page // index = frame-id
	pageTbl  map[int64]int  // page-id -> frame-id
	freeList []int          // free frame-ids, LIFO
	replacer *replacer.Replacer

	disk *disk.Manager
	log  *zap.Logger
	m    *metrics.Set
}

// New builds a Buffer Pool Manager with poolSize frames backed by d.
func New(poolSize int, d *disk.Manager, log *zap.Logger, m *metrics.Set) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.Noop()
	}
	free := make([]int, poolSize)
	for i := range free {
		free[i] = poolSize - 1 - i // pop from the back gives frame 0 first
	}
	return &Manager{
		frames:   make([]*page.Page, poolSize),
		pageTbl:  make(map[int64]int, poolSize),
		freeList: free,
		replacer: replacer.New(),
		disk:     d,
		log:      log,
		m:        m,
	}
}

// PoolSize returns the number of frames.
func (bp *Manager) PoolSize() int { return len(bp.frames) }

// DiskPageCount returns the number of page-ids ever allocated on the
// backing disk file. Callers use this to tell a genuinely fresh file
// (nothing allocated yet, not even page 0) apart from a reopened one.
func (bp *Manager) DiskPageCount() int64 { return bp.disk.PageCount() }

// FetchPage returns the page for id, pinned, loading it from disk if it
// is not already cached. Returns nil if the pool is full of pinned
// frames and none can be evicted.
func (bp *Manager) FetchPage(id int64) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frameID, ok := bp.pageTbl[id]; ok {
		pg := bp.frames[frameID]
		pg.PinCount++
		bp.replacer.Pin(frameID)
		bp.m.BufferHits.Inc()
		bp.log.Debug("bufferpool hit", zap.Int64("page_id", id), zap.Int("pin_count", pg.PinCount))
		return pg, nil
	}

	bp.m.BufferMisses.Inc()
	frameID, ok := bp.allocFrame()
	if !ok {
		bp.log.Debug("bufferpool fetch: no frames available", zap.Int64("page_id", id))
		return nil, nil
	}

	pg := page.New(id)
	if err := bp.disk.ReadPage(id, &pg.Data); err != nil {
		bp.freeList = append(bp.freeList, frameID)
		return nil, fmt.Errorf("fetch page %d: %w", id, err)
	}
	pg.PinCount = 1
	bp.frames[frameID] = pg
	bp.pageTbl[id] = frameID
	bp.log.Debug("bufferpool miss, loaded", zap.Int64("page_id", id), zap.Int("frame", frameID))
	return pg, nil
}

// NewPage allocates a fresh page-id on disk and a pinned, zero-filled
// frame for it. Returns nil if no frame is available.
func (bp *Manager) NewPage() (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.allocFrame()
	if !ok {
		bp.log.Debug("bufferpool new_page: no frames available")
		return nil, nil
	}

	id := bp.disk.AllocatePage()
	pg := page.New(id)
	pg.PinCount = 1
	pg.IsDirty = true
	bp.frames[frameID] = pg
	bp.pageTbl[id] = frameID
	bp.m.PagesAllocated.Inc()
	bp.log.Debug("bufferpool new page", zap.Int64("page_id", id), zap.Int("frame", frameID))
	return pg, nil
}

// allocFrame returns a frame-id ready to receive a new page image: a
// free frame if one exists, else an evicted replacer victim. The
// caller must already hold bp.mu.
func (bp *Manager) allocFrame() (int, bool) {
	if n := len(bp.freeList); n > 0 {
		frameID := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return frameID, true
	}

	frameID, ok := bp.replacer.Victim()
	if !ok {
		return 0, false
	}
	victim := bp.frames[frameID]
	if victim != nil {
		if victim.IsDirty {
			if err := bp.disk.WritePage(victim.ID, &victim.Data); err != nil {
				bp.log.Error("bufferpool: failed to flush victim on eviction",
					zap.Int64("page_id", victim.ID), zap.Error(err))
			}
			bp.m.BufferEvictions.Inc()
		}
		delete(bp.pageTbl, victim.ID)
	}
	bp.frames[frameID] = nil
	return frameID, true
}

// UnpinPage decrements the pin count for id, ORing isDirty into the
// page's dirty flag. Once the pin count reaches zero the frame becomes
// a replacer candidate. Returns false if id is not cached or is
// already unpinned.
func (bp *Manager) UnpinPage(id int64, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTbl[id]
	if !ok {
		return false
	}
	pg := bp.frames[frameID]
	if pg.PinCount <= 0 {
		return false
	}
	pg.PinCount--
	if isDirty {
		pg.IsDirty = true
	}
	if pg.PinCount == 0 {
		bp.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes id to disk unconditionally and clears its dirty
// flag. Returns false if id is not cached.
func (bp *Manager) FlushPage(id int64) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTbl[id]
	if !ok {
		return false
	}
	pg := bp.frames[frameID]
	if err := bp.disk.WritePage(pg.ID, &pg.Data); err != nil {
		bp.log.Error("bufferpool: flush failed", zap.Int64("page_id", id), zap.Error(err))
		return false
	}
	pg.IsDirty = false
	return true
}

// FlushAllPages writes every cached page to disk.
func (bp *Manager) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for id, frameID := range bp.pageTbl {
		pg := bp.frames[frameID]
		if err := bp.disk.WritePage(pg.ID, &pg.Data); err != nil {
			return fmt.Errorf("flush all: page %d: %w", id, err)
		}
		pg.IsDirty = false
	}
	return nil
}

// DeletePage evicts id from the pool and returns its frame to the free
// list. Fails (returns false) if the page is pinned.
func (bp *Manager) DeletePage(id int64) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTbl[id]
	if !ok {
		return true // not cached: nothing to do
	}
	pg := bp.frames[frameID]
	if pg.PinCount > 0 {
		return false
	}
	bp.replacer.Pin(frameID) // remove from replacer's evictable set, if present
	delete(bp.pageTbl, id)
	bp.frames[frameID] = nil
	bp.freeList = append(bp.freeList, frameID)
	return true
}

// Stats reports pin/dirty accounting for the testable properties in
// spec §8 items 1-2.
type Stats struct {
	Cached      int
	Pinned      int
	Dirty       int
	FreeFrames  int
	Evictable   int
}

// Stats returns a point-in-time snapshot of pool bookkeeping.
func (bp *Manager) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	s := Stats{
		Cached:     len(bp.pageTbl),
		FreeFrames: len(bp.freeList),
		Evictable:  bp.replacer.Size(),
	}
	for _, frameID := range bp.pageTbl {
		pg := bp.frames[frameID]
		if pg.PinCount > 0 {
			s.Pinned++
		}
		if pg.IsDirty {
			s.Dirty++
		}
	}
	return s
}
