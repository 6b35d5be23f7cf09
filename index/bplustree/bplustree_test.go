package bplustree

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredb/storage/bufferpool"
	"coredb/storage/disk"
)

func newTestTree(t *testing.T, leafMax, internalMax int) *Tree {
	t.Helper()
	d, err := disk.Open(filepath.Join(t.TempDir(), "tree.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Shutdown() })
	pool := bufferpool.New(64, d, nil, nil)
	tree, err := Open(pool, WithLeafMaxSize(leafMax), WithInternalMaxSize(internalMax))
	require.NoError(t, err)
	return tree
}

func key(i int) []byte { return []byte(fmt.Sprintf("k%05d", i)) }
func val(i int) []byte { return []byte(fmt.Sprintf("v%05d", i)) }

func TestInsertAndGetValue(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := 0; i < 50; i++ {
		ok, err := tree.Insert(key(i), val(i))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	for i := 0; i < 50; i++ {
		v, found, err := tree.GetValue(key(i))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, val(i), v)
	}
	_, found, err := tree.GetValue(key(999))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInsertRejectsDuplicateKeys(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	ok, err := tree.Insert(key(1), val(1))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(key(1), val(2))
	require.NoError(t, err)
	assert.False(t, ok)

	v, found, err := tree.GetValue(key(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, val(1), v)
}

func TestIteratorYieldsKeysInOrder(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	order := []int{7, 1, 9, 3, 5, 0, 8, 2, 6, 4}
	for _, i := range order {
		_, err := tree.Insert(key(i), val(i))
		require.NoError(t, err)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Valid() {
		got = append(got, string(it.Key()))
		it.Next()
	}
	require.NoError(t, it.Err())

	want := make([]string, len(order))
	for i := range order {
		want[i] = string(key(i))
	}
	sort.Strings(want)
	assert.Equal(t, want, got)
}

// Mirrors the teacher's insert/delete round trip property: deleting
// every inserted key must leave the tree empty.
func TestDeleteEveryInsertedKeyEmptiesTree(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	const n = 200
	for i := 0; i < n; i++ {
		_, err := tree.Insert(key(i), val(i))
		require.NoError(t, err)
	}
	assert.False(t, tree.IsEmpty())

	for i := 0; i < n; i++ {
		require.NoError(t, tree.Delete(key(i)))
	}
	assert.True(t, tree.IsEmpty())

	for i := 0; i < n; i++ {
		_, found, err := tree.GetValue(key(i))
		require.NoError(t, err)
		assert.False(t, found)
	}
}

func TestDeleteAbsentKeyIsNoop(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	_, err := tree.Insert(key(1), val(1))
	require.NoError(t, err)

	require.NoError(t, tree.Delete(key(2)))

	v, found, err := tree.GetValue(key(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, val(1), v)
}

func TestDeleteTriggersRedistributeAndMerge(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	const n = 80
	for i := 0; i < n; i++ {
		_, err := tree.Insert(key(i), val(i))
		require.NoError(t, err)
	}

	// Delete every other key to force a mix of borrows and merges
	// across leaves, then verify the survivors are all still reachable.
	for i := 0; i < n; i += 2 {
		require.NoError(t, tree.Delete(key(i)))
	}
	for i := 0; i < n; i++ {
		_, found, err := tree.GetValue(key(i))
		require.NoError(t, err)
		if i%2 == 0 {
			assert.False(t, found, "key %d should have been deleted", i)
		} else {
			assert.True(t, found, "key %d should still be present", i)
		}
	}
}

func TestParallelInserts(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	const perWorker = 40
	const workers = 8

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := w*perWorker + i
				_, err := tree.Insert(key(id), val(id))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	for i := 0; i < workers*perWorker; i++ {
		v, found, err := tree.GetValue(key(i))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, val(i), v)
	}
}

func TestRootPointerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persist.db")

	d, err := disk.Open(path, nil)
	require.NoError(t, err)
	pool := bufferpool.New(32, d, nil, nil)
	tree, err := Open(pool, WithLeafMaxSize(4), WithInternalMaxSize(4))
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		_, err := tree.Insert(key(i), val(i))
		require.NoError(t, err)
	}
	require.NoError(t, tree.Close())
	require.NoError(t, d.Shutdown())

	d2, err := disk.Open(path, nil)
	require.NoError(t, err)
	defer d2.Shutdown()
	pool2 := bufferpool.New(32, d2, nil, nil)
	tree2, err := Open(pool2, WithLeafMaxSize(4), WithInternalMaxSize(4))
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		v, found, err := tree2.GetValue(key(i))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, val(i), v)
	}
}
