package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredb/heap"
	"coredb/index/bplustree"
	"coredb/storage/bufferpool"
	"coredb/storage/disk"
)

func newHeap(t *testing.T) *heap.TableHeap {
	t.Helper()
	d, err := disk.Open(filepath.Join(t.TempDir(), "cat.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Shutdown() })
	return heap.New(bufferpool.New(4, d, nil, nil), nil)
}

func newIndex(t *testing.T) *bplustree.Tree {
	t.Helper()
	d, err := disk.Open(filepath.Join(t.TempDir(), "idx.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Shutdown() })
	tree, err := bplustree.Open(bufferpool.New(4, d, nil, nil))
	require.NoError(t, err)
	return tree
}

func TestGetTableMissingReturnsNil(t *testing.T) {
	c := New()
	assert.Nil(t, c.GetTable("missing"))
}

func TestCreateAndGetTable(t *testing.T) {
	c := New()
	h := newHeap(t)
	info, err := c.CreateTable("users", h)
	require.NoError(t, err)
	assert.Same(t, h, info.Heap)
	assert.Same(t, info, c.GetTable("users"))
}

func TestCreateTableDuplicateErrors(t *testing.T) {
	c := New()
	_, err := c.CreateTable("users", newHeap(t))
	require.NoError(t, err)
	_, err = c.CreateTable("users", newHeap(t))
	assert.Error(t, err)
}

func TestDropTable(t *testing.T) {
	c := New()
	_, err := c.CreateTable("users", newHeap(t))
	require.NoError(t, err)
	assert.True(t, c.DropTable("users"))
	assert.Nil(t, c.GetTable("users"))
	assert.False(t, c.DropTable("users"))
}

func TestCreateAndGetIndex(t *testing.T) {
	c := New()
	_, err := c.CreateTable("users", newHeap(t))
	require.NoError(t, err)

	tree := newIndex(t)
	require.NoError(t, c.CreateIndex("users", "by_id", tree))
	assert.Same(t, tree, c.GetIndex("users", "by_id"))
	assert.Nil(t, c.GetIndex("users", "missing_index"))
	assert.Nil(t, c.GetIndex("missing_table", "by_id"))
}

func TestCreateIndexOnMissingTableErrors(t *testing.T) {
	c := New()
	err := c.CreateIndex("missing", "idx", newIndex(t))
	assert.Error(t, err)
}
