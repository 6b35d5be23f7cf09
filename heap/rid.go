// Package heap implements a minimal slotted-page table heap: just
// enough of a row store for the Transaction Manager's write-set replay
// (spec §4.F) and the B+Tree's value type (spec §3 "Record Identifier")
// to have something real to operate on. Schema, typed columns, and the
// SQL row format are out of scope (owned by the external query layer);
// rows here are opaque byte slices.
//
// Grounded in DaemonDB's storage_engine/access/heapfile_manager, reduced
// to drop the WAL/LSN and multi-file bookkeeping that package carries.
package heap

import (
	"encoding/binary"
	"fmt"
)

// RIDSize is the encoded size of a RID, per Encode.
const RIDSize = 12

// RID (Record Identifier) uniquely identifies a tuple: the page holding
// it and its slot within that page (spec §3).
type RID struct {
	PageID  int64
	SlotNum uint32
}

// String renders the RID as "pageID:slot", used by index dumps.
func (r RID) String() string { return fmt.Sprintf("%d:%d", r.PageID, r.SlotNum) }

// Encode serializes the RID as (PageID int64, SlotNum uint32), little-endian.
func (r RID) Encode() []byte {
	b := make([]byte, RIDSize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(r.PageID))
	binary.LittleEndian.PutUint32(b[8:12], r.SlotNum)
	return b
}

// DecodeRID parses the encoding produced by Encode.
func DecodeRID(b []byte) RID {
	return RID{
		PageID:  int64(binary.LittleEndian.Uint64(b[0:8])),
		SlotNum: binary.LittleEndian.Uint32(b[8:12]),
	}
}
