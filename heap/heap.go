// Package heap's TableHeap owns a chain of heap pages in one Buffer
// Pool Manager and supports the three mutations the Transaction
// Manager's undo log needs to replay: insert, delete, update-in-place.
//
// Grounded in DaemonDB's storage_engine/access/heapfile_manager's
// manager/file split, reduced to a single heap per TableHeap instance
// (file-per-table management, catalog wiring, and WAL are owned by the
// external query layer per spec §1).
package heap

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"coredb/storage/bufferpool"
)

// TableHeap is an append-mostly collection of slotted pages backed by a
// Buffer Pool Manager.
type TableHeap struct {
	mu    sync.Mutex
	pool  *bufferpool.Manager
	log   *zap.Logger
	pages []int64 // page-ids belonging to this heap, in allocation order
}

// New creates an empty table heap over pool.
func New(pool *bufferpool.Manager, log *zap.Logger) *TableHeap {
	if log == nil {
		log = zap.NewNop()
	}
	return &TableHeap{pool: pool, log: log}
}

// Insert appends data as a new tuple and returns its RID.
func (h *TableHeap) Insert(data []byte) (RID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range h.pages {
		pg, err := h.pool.FetchPage(id)
		if err != nil {
			return RID{}, err
		}
		if pg == nil {
			continue
		}
		pg.WLatch()
		slot, err := insertRecord(pg, data)
		pg.WUnlatch()
		if err == nil {
			h.pool.UnpinPage(id, true)
			return RID{PageID: id, SlotNum: uint32(slot)}, nil
		}
		h.pool.UnpinPage(id, false)
	}

	pg, err := h.pool.NewPage()
	if err != nil {
		return RID{}, err
	}
	if pg == nil {
		return RID{}, fmt.Errorf("heap: insert: buffer pool exhausted")
	}
	pg.WLatch()
	initPage(pg)
	slot, err := insertRecord(pg, data)
	pg.WUnlatch()
	if err != nil {
		h.pool.UnpinPage(pg.ID, true)
		return RID{}, fmt.Errorf("heap: insert: record larger than a fresh page: %w", err)
	}
	h.pages = append(h.pages, pg.ID)
	h.pool.UnpinPage(pg.ID, true)
	return RID{PageID: pg.ID, SlotNum: uint32(slot)}, nil
}

// InsertAt re-inserts data at a specific RID, used to undo a delete
// during transaction rollback. The page must already belong to this
// heap and the slot must currently be a tombstone or unused.
func (h *TableHeap) InsertAt(rid RID, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pg, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	if pg == nil {
		return fmt.Errorf("heap: insertAt: page %d not available", rid.PageID)
	}
	pg.WLatch()
	defer pg.WUnlatch()

	slot := uint16(rid.SlotNum)
	if slot < slotCount(pg) {
		if _, length := readSlot(pg, slot); length != 0 {
			h.pool.UnpinPage(rid.PageID, false)
			return fmt.Errorf("heap: insertAt: slot %d already occupied", slot)
		}
	}
	recordLen := uint16(len(data))
	if freeSpace(pg) < int(recordLen) {
		h.pool.UnpinPage(rid.PageID, false)
		return fmt.Errorf("heap: insertAt: insufficient space for recovery insert")
	}
	offset := recordEndPtr(pg)
	copy(pg.Data[offset:], data)
	setRecordEndPtr(pg, offset+recordLen)
	writeSlot(pg, slot, offset, recordLen)
	if slot >= slotCount(pg) {
		setSlotCount(pg, slot+1)
		setSlotRegionStart(pg, slotRegionStart(pg)-slotSize)
	}
	setNumRows(pg, numRows(pg)+1)
	pg.IsDirty = true
	h.pool.UnpinPage(rid.PageID, true)
	return nil
}

// Get returns a copy of the tuple at rid.
func (h *TableHeap) Get(rid RID) ([]byte, error) {
	pg, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	if pg == nil {
		return nil, fmt.Errorf("heap: get: page %d not available", rid.PageID)
	}
	pg.RLatch()
	data, err := getRecord(pg, uint16(rid.SlotNum))
	pg.RUnlatch()
	h.pool.UnpinPage(rid.PageID, false)
	return data, err
}

// Delete tombstones the tuple at rid.
func (h *TableHeap) Delete(rid RID) error {
	pg, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	if pg == nil {
		return fmt.Errorf("heap: delete: page %d not available", rid.PageID)
	}
	pg.WLatch()
	err = deleteRecord(pg, uint16(rid.SlotNum))
	pg.WUnlatch()
	h.pool.UnpinPage(rid.PageID, err == nil)
	return err
}

// Update overwrites the tuple at rid. If the new data no longer fits in
// its original slot, Update tombstones the old slot and inserts data as
// a new tuple, returning the new RID (the caller's index entry must be
// updated to match).
func (h *TableHeap) Update(rid RID, data []byte) (RID, error) {
	pg, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return RID{}, err
	}
	if pg == nil {
		return RID{}, fmt.Errorf("heap: update: page %d not available", rid.PageID)
	}
	pg.WLatch()
	slot := uint16(rid.SlotNum)
	grows := false
	if slot < slotCount(pg) {
		_, length := readSlot(pg, slot)
		grows = length != 0 && len(data) > int(length)
	}
	var inPlace bool
	if !grows {
		inPlace, err = updateRecord(pg, slot, data)
	}
	pg.WUnlatch()
	h.pool.UnpinPage(rid.PageID, err == nil)
	if err != nil {
		return RID{}, err
	}
	if inPlace {
		return rid, nil
	}
	// Insert while the old slot is still live, so the tuple cannot land
	// back in it, then tombstone the old slot.
	newRID, err := h.Insert(data)
	if err != nil {
		return RID{}, err
	}
	return newRID, h.Delete(rid)
}

// Pages returns a copy of the page-ids belonging to this heap, in
// allocation order, for full-heap scans.
func (h *TableHeap) Pages() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.pages))
	copy(out, h.pages)
	return out
}

// Scan visits every live tuple in the heap in page/slot order, stopping
// early if fn returns false.
func (h *TableHeap) Scan(fn func(RID, []byte) bool) error {
	for _, id := range h.Pages() {
		pg, err := h.pool.FetchPage(id)
		if err != nil {
			return err
		}
		if pg == nil {
			continue
		}
		pg.RLatch()
		n := slotCount(pg)
		for slot := uint16(0); slot < n; slot++ {
			if _, length := readSlot(pg, slot); length == 0 {
				continue
			}
			data, err := getRecord(pg, slot)
			if err != nil {
				continue
			}
			rid := RID{PageID: id, SlotNum: uint32(slot)}
			if !fn(rid, data) {
				pg.RUnlatch()
				h.pool.UnpinPage(id, false)
				return nil
			}
		}
		pg.RUnlatch()
		h.pool.UnpinPage(id, false)
	}
	return nil
}
