package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredb/storage/page"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Shutdown() })
	return m
}

func TestAllocatePageIsDenseAndStartsAtZero(t *testing.T) {
	m := openTestManager(t)
	for i := int64(0); i < 5; i++ {
		assert.Equal(t, i, m.AllocatePage())
	}
}

func TestReadPageBeforeWriteIsZeroFilled(t *testing.T) {
	m := openTestManager(t)
	id := m.AllocatePage()

	var buf [page.Size]byte
	for i := range buf {
		buf[i] = 0xAA
	}
	require.NoError(t, m.ReadPage(id, &buf))
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	m := openTestManager(t)
	id := m.AllocatePage()

	var want [page.Size]byte
	for i := range want {
		want[i] = byte(i % 251)
	}
	require.NoError(t, m.WritePage(id, &want))

	var got [page.Size]byte
	require.NoError(t, m.ReadPage(id, &got))
	assert.Equal(t, want, got)
}

func TestWritePastAllocatedExtentAdvancesNextID(t *testing.T) {
	m := openTestManager(t)
	var buf [page.Size]byte
	require.NoError(t, m.WritePage(3, &buf))
	assert.Equal(t, int64(4), m.AllocatePage())
}

func TestStatsCountReadsAndWrites(t *testing.T) {
	m := openTestManager(t)
	var buf [page.Size]byte
	id := m.AllocatePage()
	require.NoError(t, m.WritePage(id, &buf))
	require.NoError(t, m.ReadPage(id, &buf))

	reads, writes := m.Stats()
	assert.Equal(t, int64(1), reads)
	assert.Equal(t, int64(1), writes)
}

func TestReopenPicksUpExistingExtent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	m1, err := Open(path, nil)
	require.NoError(t, err)
	var buf [page.Size]byte
	require.NoError(t, m1.WritePage(2, &buf))
	require.NoError(t, m1.Shutdown())

	m2, err := Open(path, nil)
	require.NoError(t, err)
	defer m2.Shutdown()
	assert.Equal(t, int64(3), m2.AllocatePage())
}
