package txn

import "coredb/heap"

// undoKind identifies which heap operation an undoRecord reverses.
type undoKind int

const (
	undoInsert undoKind = iota
	undoDelete
	undoUpdate
)

// undoRecord captures enough state to reverse one heap mutation. The
// write-set replays these in reverse order on abort, the logical-undo
// scheme DaemonDB's rollback_helpers.go sketches but never completes
// (its Abort left rollback implicit, relying on WAL recovery skipping
// uncommitted records).
type undoRecord struct {
	kind   undoKind
	heap   *heap.TableHeap
	rid    heap.RID
	before []byte // heap.TableHeap.Get(rid) at the time of the write, for delete/update undo
}

// RecordInsert notes that h.Insert produced rid, so that aborting can
// delete it back out.
func (t *Transaction) RecordInsert(h *heap.TableHeap, rid heap.RID) {
	t.writeSet = append(t.writeSet, undoRecord{kind: undoInsert, heap: h, rid: rid})
}

// RecordDelete notes that rid (holding before) is about to be deleted
// from h, so that aborting can re-insert it at the same slot.
func (t *Transaction) RecordDelete(h *heap.TableHeap, rid heap.RID, before []byte) {
	t.writeSet = append(t.writeSet, undoRecord{kind: undoDelete, heap: h, rid: rid, before: before})
}

// RecordUpdate notes that rid in h held before prior to an update, so
// that aborting can restore it. Callers must only call this for an
// update that stayed in place (h.Update returned the same rid); an
// update that grew past its slot and moved tombstones the original
// rid, and undo has no path back to a tombstoned slot — replaying
// undoUpdate against it fails with a clear "is a tombstone" error
// rather than corrupting data, but the row is not actually restored.
// Rolling back a moved update requires recording it as a delete of
// the old rid plus an insert of the new one instead.
func (t *Transaction) RecordUpdate(h *heap.TableHeap, rid heap.RID, before []byte) {
	t.writeSet = append(t.writeSet, undoRecord{kind: undoUpdate, heap: h, rid: rid, before: before})
}

// undo replays the write-set in reverse order, restoring every heap
// this transaction touched to its pre-transaction state. Errors from
// individual undo steps are collected but do not stop the replay —
// rollback must make a best effort across the whole write-set rather
// than abandon it partway through.
func (t *Transaction) undo() error {
	var firstErr error
	for i := len(t.writeSet) - 1; i >= 0; i-- {
		rec := t.writeSet[i]
		var err error
		switch rec.kind {
		case undoInsert:
			err = rec.heap.Delete(rec.rid)
		case undoDelete:
			err = rec.heap.InsertAt(rec.rid, rec.before)
		case undoUpdate:
			_, err = rec.heap.Update(rec.rid, rec.before)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.writeSet = nil
	return firstErr
}
