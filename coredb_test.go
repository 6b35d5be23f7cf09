package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineOpenCreateTableAndIndexRoundTrip(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	e, err := Open(cfg, nil, nil)
	require.NoError(t, err)
	defer e.Close()

	info, err := e.CreateTable("accounts")
	require.NoError(t, err)
	require.NotNil(t, info)

	rid, err := info.Heap.Insert([]byte("alice"))
	require.NoError(t, err)

	got, err := info.Heap.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), got)

	tree, err := e.CreateIndex("accounts", "by_name")
	require.NoError(t, err)
	inserted, err := tree.Insert([]byte("alice"), []byte("row-0"))
	require.NoError(t, err)
	assert.True(t, inserted)

	val, found, err := tree.GetValue([]byte("alice"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("row-0"), val)

	assert.Same(t, info, e.Catalog().GetTable("accounts"))
	assert.Same(t, tree, e.Catalog().GetIndex("accounts", "by_name"))
}

func TestEngineCreateTableTwiceErrors(t *testing.T) {
	e, err := Open(DefaultConfig(t.TempDir()), nil, nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.CreateTable("accounts")
	require.NoError(t, err)
	_, err = e.CreateTable("accounts")
	assert.Error(t, err)
}

func TestEngineTransactionCommitAndAbort(t *testing.T) {
	e, err := Open(DefaultConfig(t.TempDir()), nil, nil)
	require.NoError(t, err)
	defer e.Close()

	info, err := e.CreateTable("accounts")
	require.NoError(t, err)

	tr := e.Begin()
	rid, err := info.Heap.Insert([]byte("bob"))
	require.NoError(t, err)
	tr.RecordInsert(info.Heap, rid)
	require.NoError(t, e.Abort(tr))

	_, err = info.Heap.Get(rid)
	assert.Error(t, err)

	tr2 := e.Begin()
	require.NoError(t, e.Commit(tr2))
}

func TestWithCycleDetectionIntervalRejectsGarbage(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	WithCycleDetectionInterval("not-a-duration")(&cfg)
	_, err := Open(cfg, nil, nil)
	assert.Error(t, err)
}
