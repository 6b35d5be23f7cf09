package heap

import (
	"encoding/binary"
	"fmt"

	"coredb/storage/page"
)

// Slotted heap-page layout (little-endian), reduced from the teacher's
// WAL-aware heap page to the fields a standalone table heap still needs:
//
//	Offset  Size  Field
//	0       2     RecordEndPtr    — first free byte after the last record
//	2       2     SlotRegionStart — first byte of the slot directory
//	4       2     NumRows         — live records
//	6       2     NumRowsFree     — tombstoned slots
//	8       2     SlotCount       — total slot entries (live + tombstone)
//	10            headerSize
//
// Records grow forward from headerSize; the slot directory grows
// backward from page.Size. A slot is 4 bytes: Offset uint16, Length
// uint16 (Length == 0 marks a tombstone).
const (
	offRecordEndPtr    = 0
	offSlotRegionStart = 2
	offNumRows         = 4
	offNumRowsFree     = 6
	offSlotCount       = 8
	headerSize         = 10
	slotSize           = 4
)

// initPage stamps a fresh header into a zero-filled page.
func initPage(pg *page.Page) {
	binary.LittleEndian.PutUint16(pg.Data[offRecordEndPtr:], headerSize)
	binary.LittleEndian.PutUint16(pg.Data[offSlotRegionStart:], page.Size)
	binary.LittleEndian.PutUint16(pg.Data[offNumRows:], 0)
	binary.LittleEndian.PutUint16(pg.Data[offNumRowsFree:], 0)
	binary.LittleEndian.PutUint16(pg.Data[offSlotCount:], 0)
	pg.IsDirty = true
}

func recordEndPtr(pg *page.Page) uint16    { return binary.LittleEndian.Uint16(pg.Data[offRecordEndPtr:]) }
func slotRegionStart(pg *page.Page) uint16 { return binary.LittleEndian.Uint16(pg.Data[offSlotRegionStart:]) }
func numRows(pg *page.Page) uint16         { return binary.LittleEndian.Uint16(pg.Data[offNumRows:]) }
func numRowsFree(pg *page.Page) uint16     { return binary.LittleEndian.Uint16(pg.Data[offNumRowsFree:]) }
func slotCount(pg *page.Page) uint16       { return binary.LittleEndian.Uint16(pg.Data[offSlotCount:]) }

func setRecordEndPtr(pg *page.Page, v uint16)    { binary.LittleEndian.PutUint16(pg.Data[offRecordEndPtr:], v) }
func setSlotRegionStart(pg *page.Page, v uint16) { binary.LittleEndian.PutUint16(pg.Data[offSlotRegionStart:], v) }
func setNumRows(pg *page.Page, v uint16)         { binary.LittleEndian.PutUint16(pg.Data[offNumRows:], v) }
func setNumRowsFree(pg *page.Page, v uint16)     { binary.LittleEndian.PutUint16(pg.Data[offNumRowsFree:], v) }
func setSlotCount(pg *page.Page, v uint16)       { binary.LittleEndian.PutUint16(pg.Data[offSlotCount:], v) }

func freeSpace(pg *page.Page) int {
	return int(slotRegionStart(pg)) - int(recordEndPtr(pg))
}

func readSlot(pg *page.Page, idx uint16) (offset, length uint16) {
	base := int(page.Size) - int(idx+1)*slotSize
	offset = binary.LittleEndian.Uint16(pg.Data[base:])
	length = binary.LittleEndian.Uint16(pg.Data[base+2:])
	return
}

func writeSlot(pg *page.Page, idx uint16, offset, length uint16) {
	base := int(page.Size) - int(idx+1)*slotSize
	binary.LittleEndian.PutUint16(pg.Data[base:], offset)
	binary.LittleEndian.PutUint16(pg.Data[base+2:], length)
}

// insertRecord appends data to the page and returns its slot index.
func insertRecord(pg *page.Page, data []byte) (uint16, error) {
	recordLen := uint16(len(data))
	if recordLen == 0 {
		return 0, fmt.Errorf("heap: insertRecord: empty record")
	}
	if freeSpace(pg) < int(recordLen)+slotSize {
		return 0, fmt.Errorf("heap: insertRecord: need %d bytes, only %d available",
			recordLen, freeSpace(pg))
	}

	slotIdx := slotCount(pg)
	for i := uint16(0); i < slotCount(pg); i++ {
		if _, l := readSlot(pg, i); l == 0 {
			slotIdx = i
			break
		}
	}

	offset := recordEndPtr(pg)
	copy(pg.Data[offset:], data)
	setRecordEndPtr(pg, offset+recordLen)
	writeSlot(pg, slotIdx, offset, recordLen)

	if slotIdx == slotCount(pg) {
		setSlotRegionStart(pg, slotRegionStart(pg)-slotSize)
		setSlotCount(pg, slotCount(pg)+1)
	} else {
		setNumRowsFree(pg, numRowsFree(pg)-1)
	}
	setNumRows(pg, numRows(pg)+1)
	pg.IsDirty = true
	return slotIdx, nil
}

func getRecord(pg *page.Page, slotIdx uint16) ([]byte, error) {
	if slotIdx >= slotCount(pg) {
		return nil, fmt.Errorf("heap: getRecord: slot %d out of range", slotIdx)
	}
	offset, length := readSlot(pg, slotIdx)
	if length == 0 {
		return nil, fmt.Errorf("heap: getRecord: slot %d is a tombstone", slotIdx)
	}
	out := make([]byte, length)
	copy(out, pg.Data[offset:offset+length])
	return out, nil
}

func deleteRecord(pg *page.Page, slotIdx uint16) error {
	if slotIdx >= slotCount(pg) {
		return fmt.Errorf("heap: deleteRecord: slot %d out of range", slotIdx)
	}
	if _, length := readSlot(pg, slotIdx); length == 0 {
		return fmt.Errorf("heap: deleteRecord: slot %d already deleted", slotIdx)
	}
	writeSlot(pg, slotIdx, 0, 0)
	setNumRows(pg, numRows(pg)-1)
	setNumRowsFree(pg, numRowsFree(pg)+1)
	pg.IsDirty = true
	return nil
}

// updateRecord overwrites slotIdx in place if newData fits within the
// original allocation; otherwise it tombstones the slot and reports
// that the caller must re-insert elsewhere.
func updateRecord(pg *page.Page, slotIdx uint16, newData []byte) (inPlace bool, err error) {
	if slotIdx >= slotCount(pg) {
		return false, fmt.Errorf("heap: updateRecord: slot %d out of range", slotIdx)
	}
	offset, length := readSlot(pg, slotIdx)
	if length == 0 {
		return false, fmt.Errorf("heap: updateRecord: slot %d is a tombstone", slotIdx)
	}
	newLen := uint16(len(newData))
	if newLen <= length {
		copy(pg.Data[offset:], newData)
		writeSlot(pg, slotIdx, offset, newLen)
		pg.IsDirty = true
		return true, nil
	}
	if err := deleteRecord(pg, slotIdx); err != nil {
		return false, err
	}
	return false, nil
}
