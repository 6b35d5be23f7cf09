package heap

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredb/storage/bufferpool"
	"coredb/storage/disk"
)

func newTestHeap(t *testing.T) *TableHeap {
	t.Helper()
	d, err := disk.Open(filepath.Join(t.TempDir(), "heap.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Shutdown() })
	pool := bufferpool.New(8, d, nil, nil)
	return New(pool, nil)
}

func TestInsertGetDelete(t *testing.T) {
	h := newTestHeap(t)
	rid, err := h.Insert([]byte("hello"))
	require.NoError(t, err)

	got, err := h.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	require.NoError(t, h.Delete(rid))
	_, err = h.Get(rid)
	assert.Error(t, err)
}

func TestInsertSpillsToNewPage(t *testing.T) {
	h := newTestHeap(t)
	var rids []RID
	for i := 0; i < 500; i++ {
		rid, err := h.Insert([]byte(fmt.Sprintf("row-%04d", i)))
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	assert.Greater(t, len(h.Pages()), 1)

	for i, rid := range rids {
		got, err := h.Get(rid)
		require.NoError(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("row-%04d", i)), got)
	}
}

func TestUpdateInPlaceWhenItFits(t *testing.T) {
	h := newTestHeap(t)
	rid, err := h.Insert([]byte("aaaaaaaaaa"))
	require.NoError(t, err)

	newRID, err := h.Update(rid, []byte("bbbbbbbbbb"))
	require.NoError(t, err)
	assert.Equal(t, rid, newRID)

	got, err := h.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, []byte("bbbbbbbbbb"), got)
}

func TestUpdateMovesWhenGrown(t *testing.T) {
	h := newTestHeap(t)
	rid, err := h.Insert([]byte("short"))
	require.NoError(t, err)

	bigger := make([]byte, 4000)
	newRID, err := h.Update(rid, bigger)
	require.NoError(t, err)
	assert.NotEqual(t, rid, newRID)

	got, err := h.Get(newRID)
	require.NoError(t, err)
	assert.Equal(t, bigger, got)
}

func TestDeleteThenInsertAtReusesSlot(t *testing.T) {
	h := newTestHeap(t)
	rid, err := h.Insert([]byte("original"))
	require.NoError(t, err)
	require.NoError(t, h.Delete(rid))

	require.NoError(t, h.InsertAt(rid, []byte("restored")))
	got, err := h.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, []byte("restored"), got)
}

func TestScanVisitsAllLiveTuples(t *testing.T) {
	h := newTestHeap(t)
	const n = 50
	for i := 0; i < n; i++ {
		_, err := h.Insert([]byte(fmt.Sprintf("v%d", i)))
		require.NoError(t, err)
	}

	seen := 0
	err := h.Scan(func(rid RID, data []byte) bool {
		seen++
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, n, seen)
}

func TestRIDEncodeDecodeRoundTrips(t *testing.T) {
	rid := RID{PageID: 123456, SlotNum: 42}
	decoded := DecodeRID(rid.Encode())
	assert.Equal(t, rid, decoded)
}
