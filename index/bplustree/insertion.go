package bplustree

import "coredb/storage/page"

// Insert adds key->value. Returns false without modifying the tree if
// key is already present (spec §4.D: "no duplicate keys").
func (t *Tree) Insert(key, value []byte) (bool, error) {
	t.rootMu.RLock()
	rootID := t.rootID
	t.rootMu.RUnlock()

	if rootID == page.InvalidID {
		ok, err := t.insertIntoEmptyTree(key, value)
		if err != nil || ok {
			return ok, err
		}
		// Someone else created the root concurrently; fall through and
		// retry the normal path against the now-existing root.
		t.rootMu.RLock()
		rootID = t.rootID
		t.rootMu.RUnlock()
	}

	safe := func(n *node) bool {
		if n.isLeaf {
			return n.safeForInsert(t.leafMaxSize)
		}
		return n.safeForInsert(t.internalMaxSize)
	}

	stack, err := t.findLeafForWrite(rootID, key, safe)
	if err != nil {
		return false, err
	}

	leaf := stack[len(stack)-1]
	if binarySearch(leaf.node.keys, key, t.cmp) != -1 {
		t.releaseAll(stack)
		return false, nil
	}

	idx := lowerBound(leaf.node.keys, key, t.cmp)
	leaf.node.keys = insertAt(leaf.node.keys, idx, key)
	leaf.node.values = insertAt(leaf.node.values, idx, value)
	leaf.markDirty()

	if err := t.propagateSplit(stack); err != nil {
		return false, err
	}
	return true, nil
}

// insertIntoEmptyTree creates the first leaf/root under the tree latch.
// Returns ok=false (no error) if another writer beat us to it.
func (t *Tree) insertIntoEmptyTree(key, value []byte) (bool, error) {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()

	if t.rootID != page.InvalidID {
		return false, nil
	}

	h, err := t.allocate(true)
	if err != nil {
		return false, err
	}
	h.node.keys = [][]byte{key}
	h.node.values = [][]byte{value}
	h.markDirty()

	t.rootID = h.pg.ID
	if err := t.release(h); err != nil {
		return false, err
	}
	return true, t.saveRoot()
}
