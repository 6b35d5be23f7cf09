// Package bplustree implements the B+Tree Index (spec §4.D): an
// ordered key->value index layered over a Buffer Pool Manager, with
// latch-crabbing concurrency control.
//
// Grounded in DaemonDB's storage_engine/access/indexfile_manager/bplustree,
// restructured from a whole-tree-mutex design into true per-page latch
// crabbing (spec §4.D/§9: "no tree-wide lock except the root-latch"),
// with duplicate-key rejection on insert and RID-shaped values, per
// spec §4.D and §3.
package bplustree

import "coredb/storage/page"

// Tunable defaults, overridable per tree via Options.
const (
	DefaultLeafMaxSize     = 32
	DefaultInternalMaxSize = 32
)

// node is the decoded, in-memory form of a B+Tree page.
type node struct {
	pageID   int64
	isLeaf   bool
	keys     [][]byte
	children []int64  // internal only, len(children) == len(keys)+1
	values   [][]byte // leaf only, len(values) == len(keys)
	next     int64    // leaf only; page.InvalidID if none
	parent   int64    // page.InvalidID if root
}

func newLeafNode(id int64) *node {
	return &node{pageID: id, isLeaf: true, next: page.InvalidID, parent: page.InvalidID}
}

func newInternalNode(id int64) *node {
	return &node{pageID: id, isLeaf: false, parent: page.InvalidID}
}

// minSize returns the minimum entry count (ceil(max/2)) a non-root node
// of this kind must hold without underflowing, per spec §3/§4.D.
func minSize(max int) int {
	return (max + 1) / 2
}

// safeForInsert reports whether one more entry fits without overflow.
func (n *node) safeForInsert(max int) bool {
	return len(n.keys) < max
}

// safeForDelete reports whether one fewer entry still satisfies the
// minimum occupancy, i.e. the node would not need to borrow or merge.
func (n *node) safeForDelete(max int) bool {
	return len(n.keys) > minSize(max)
}
