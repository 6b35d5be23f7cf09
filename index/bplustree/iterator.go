package bplustree

import "coredb/storage/page"

// Iterator performs a forward, ordered scan over the tree's leaves. It
// holds exactly one leaf pinned and read-latched at a time, advancing
// to the next leaf via the sibling chain maintained by splits — per
// spec §4.D's scan requirement that results come back in key order.
type Iterator struct {
	tree *Tree
	leaf *handle
	idx  int
	err  error
}

// Begin returns an iterator positioned at the tree's first entry.
func (t *Tree) Begin() (*Iterator, error) {
	return t.seek(nil)
}

// SeekGE returns an iterator positioned at the first entry whose key is
// >= key.
func (t *Tree) SeekGE(key []byte) (*Iterator, error) {
	return t.seek(key)
}

func (t *Tree) seek(key []byte) (*Iterator, error) {
	t.rootMu.RLock()
	rootID := t.rootID
	t.rootMu.RUnlock()
	if rootID == page.InvalidID {
		return &Iterator{tree: t}, nil
	}

	cur, err := t.fetch(rootID, latchRead)
	if err != nil {
		return nil, err
	}
	for !cur.node.isLeaf {
		var childIdx int
		if key == nil {
			childIdx = 0
		} else {
			childIdx = upperBound(cur.node.keys, key, t.cmp)
		}
		child, err := t.fetch(cur.node.children[childIdx], latchRead)
		if err != nil {
			t.release(cur)
			return nil, err
		}
		t.release(cur)
		cur = child
	}

	idx := 0
	if key != nil {
		idx = lowerBound(cur.node.keys, key, t.cmp)
	}
	for idx >= len(cur.node.keys) && cur.node.next != page.InvalidID {
		next, err := t.fetch(cur.node.next, latchRead)
		if err != nil {
			t.release(cur)
			return nil, err
		}
		t.release(cur)
		cur, idx = next, 0
	}
	return &Iterator{tree: t, leaf: cur, idx: idx}, nil
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return it.err == nil && it.leaf != nil && it.idx < len(it.leaf.node.keys)
}

// Err returns the first error encountered while advancing, if any.
func (it *Iterator) Err() error { return it.err }

// Key returns the key at the iterator's current position.
func (it *Iterator) Key() []byte { return it.leaf.node.keys[it.idx] }

// Value returns the value at the iterator's current position.
func (it *Iterator) Value() []byte { return it.leaf.node.values[it.idx] }

// Next advances the iterator, crossing into the next leaf via the
// sibling chain when the current leaf is exhausted.
func (it *Iterator) Next() {
	if !it.Valid() {
		return
	}
	it.idx++
	if it.idx < len(it.leaf.node.keys) {
		return
	}
	next := it.leaf.node.next
	if err := it.tree.release(it.leaf); err != nil {
		it.err = err
		it.leaf = nil
		return
	}
	it.leaf = nil
	if next == page.InvalidID {
		return
	}
	h, err := it.tree.fetch(next, latchRead)
	if err != nil {
		it.err = err
		return
	}
	it.leaf = h
	it.idx = 0
}

// Close releases the leaf currently pinned by the iterator, if any. Any
// iterator that returns false from Valid before reaching the end of the
// tree must still call Close.
func (it *Iterator) Close() error {
	if it.leaf == nil {
		return nil
	}
	h := it.leaf
	it.leaf = nil
	return it.tree.release(h)
}
