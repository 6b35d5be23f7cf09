package bplustree

import "coredb/storage/page"

func maxSizeFor(n *node, leafMax, internalMax int) int {
	if n.isLeaf {
		return leafMax
	}
	return internalMax
}

// Delete removes key if present; a no-op otherwise. Underflowing nodes
// are first offered redistribution from the left sibling, then the
// right, and merged with a sibling only if neither can spare an entry
// — spec §4.D's coalesce/redistribute policy.
func (t *Tree) Delete(key []byte) error {
	t.rootMu.RLock()
	rootID := t.rootID
	t.rootMu.RUnlock()
	if rootID == page.InvalidID {
		return nil
	}

	safe := func(n *node) bool {
		return n.safeForDelete(maxSizeFor(n, t.leafMaxSize, t.internalMaxSize))
	}

	stack, err := t.findLeafForWrite(rootID, key, safe)
	if err != nil {
		return err
	}

	leaf := stack[len(stack)-1]
	idx := binarySearch(leaf.node.keys, key, t.cmp)
	if idx == -1 {
		t.releaseAll(stack)
		return nil
	}
	leaf.node.keys = removeAt(leaf.node.keys, idx)
	leaf.node.values = removeAt(leaf.node.values, idx)
	leaf.markDirty()

	return t.propagateUnderflow(stack)
}

// propagateUnderflow walks stack bottom-up, borrowing or merging to fix
// any underflow left by the removal, stopping once a level is no
// longer underflowing. The root is handled separately: it has no
// siblings, so it is only ever collapsed, never borrowed into.
func (t *Tree) propagateUnderflow(stack []*handle) error {
	i := len(stack) - 1
	for i > 0 {
		cur := stack[i]
		max := maxSizeFor(cur.node, t.leafMaxSize, t.internalMaxSize)
		if len(cur.node.keys) >= minSize(max) {
			break
		}

		parent := stack[i-1]
		childIdx := indexOfChild(parent.node, cur.pg.ID)

		var left, right *handle
		var err error
		if childIdx > 0 {
			left, err = t.fetch(parent.node.children[childIdx-1], latchWrite)
			if err != nil {
				t.releaseAll(stack[:i+1])
				return err
			}
		}
		if childIdx < len(parent.node.children)-1 {
			right, err = t.fetch(parent.node.children[childIdx+1], latchWrite)
			if err != nil {
				t.release(left)
				t.releaseAll(stack[:i+1])
				return err
			}
		}

		min := minSize(max)
		switch {
		case left != nil && len(left.node.keys) > min:
			borrowFromLeft(parent, childIdx, cur, left)
			t.release(left)
			t.release(right)
			return t.releaseAll(stack[:i+1])

		case right != nil && len(right.node.keys) > min:
			borrowFromRight(parent, childIdx, cur, right)
			t.release(left)
			t.release(right)
			return t.releaseAll(stack[:i+1])

		case left != nil:
			// left is the merge survivor, cur is absorbed into it and
			// discarded; both are fetched handles outside stack, so
			// both must be released here — neither is released
			// anywhere else. cur's page-id is freed back to the buffer
			// pool once its handle is released and its pin count has
			// dropped to zero.
			mergeNodes(parent, childIdx-1, left, cur)
			absorbedID := cur.pg.ID
			t.release(right)
			if err := t.release(cur); err != nil {
				t.release(left)
				t.releaseAll(stack[:i])
				return err
			}
			t.pool.DeletePage(absorbedID)
			if err := t.release(left); err != nil {
				t.releaseAll(stack[:i])
				return err
			}
			i--

		case right != nil:
			// cur is the merge survivor; right (absorbed, fetched
			// outside stack) is released and its page-id freed back to
			// the pool, then cur is released before moving up a level.
			mergeNodes(parent, childIdx, cur, right)
			absorbedID := right.pg.ID
			if err := t.release(right); err != nil {
				t.releaseAll(stack[:i+1])
				return err
			}
			t.pool.DeletePage(absorbedID)
			if err := t.release(cur); err != nil {
				t.releaseAll(stack[:i])
				return err
			}
			i--

		default:
			// Only child of the root parent with no siblings at all —
			// nothing to borrow or merge with; leave as-is.
			return t.releaseAll(stack[:i+1])
		}
	}

	// Every handle from stack[1] through stack[i] is still held — the
	// ancestors the loop above revisited without a borrow/merge branch
	// releasing them. collapseRootIfNeeded releases the rest of the
	// stack and resolves the root.
	return t.collapseRootIfNeeded(stack[:i+1])
}

// collapseRootIfNeeded releases every ancestor handle in stack above
// the root, then demotes the tree's root when a leaf root has emptied
// out (tree becomes empty) or an internal root has been reduced to a
// single child (that child is promoted to root). stack[0] is the
// topmost handle still held: the root, or else a node findLeafForWrite
// judged safe for delete, which keeps at least one key and so matches
// neither collapse case.
func (t *Tree) collapseRootIfNeeded(stack []*handle) error {
	if len(stack) > 1 {
		if err := t.releaseAll(stack[1:]); err != nil {
			t.release(stack[0])
			return err
		}
	}
	rootHandle := stack[0]

	t.rootMu.Lock()
	defer t.rootMu.Unlock()

	n := rootHandle.node
	switch {
	case n.isLeaf && len(n.keys) == 0:
		t.rootID = page.InvalidID
	case !n.isLeaf && len(n.keys) == 0 && len(n.children) == 1:
		t.rootID = n.children[0]
	default:
		return t.release(rootHandle)
	}
	if err := t.release(rootHandle); err != nil {
		return err
	}
	return t.saveRoot()
}

// borrowFromLeft moves one entry from left into cur (cur is the child
// at parent.children[childIdx]), updating the separator key at
// parent.keys[childIdx-1].
func borrowFromLeft(parent *handle, childIdx int, cur, left *handle) {
	if cur.node.isLeaf {
		lastKey := left.node.keys[len(left.node.keys)-1]
		lastVal := left.node.values[len(left.node.values)-1]
		left.node.keys = left.node.keys[:len(left.node.keys)-1]
		left.node.values = left.node.values[:len(left.node.values)-1]

		cur.node.keys = insertAt(cur.node.keys, 0, lastKey)
		cur.node.values = insertAt(cur.node.values, 0, lastVal)
		parent.node.keys[childIdx-1] = cur.node.keys[0]
	} else {
		sep := parent.node.keys[childIdx-1]
		lastKey := left.node.keys[len(left.node.keys)-1]
		lastChild := left.node.children[len(left.node.children)-1]
		left.node.keys = left.node.keys[:len(left.node.keys)-1]
		left.node.children = left.node.children[:len(left.node.children)-1]

		cur.node.keys = insertAt(cur.node.keys, 0, sep)
		cur.node.children = insertAt(cur.node.children, 0, lastChild)
		parent.node.keys[childIdx-1] = lastKey
	}
	left.markDirty()
	cur.markDirty()
	parent.markDirty()
}

// borrowFromRight is the mirror of borrowFromLeft.
func borrowFromRight(parent *handle, childIdx int, cur, right *handle) {
	if cur.node.isLeaf {
		firstKey := right.node.keys[0]
		firstVal := right.node.values[0]
		right.node.keys = right.node.keys[1:]
		right.node.values = right.node.values[1:]

		cur.node.keys = append(cur.node.keys, firstKey)
		cur.node.values = append(cur.node.values, firstVal)
		parent.node.keys[childIdx] = right.node.keys[0]
	} else {
		sep := parent.node.keys[childIdx]
		firstKey := right.node.keys[0]
		firstChild := right.node.children[0]
		right.node.keys = right.node.keys[1:]
		right.node.children = right.node.children[1:]

		cur.node.keys = append(cur.node.keys, sep)
		cur.node.children = append(cur.node.children, firstChild)
		parent.node.keys[childIdx] = firstKey
	}
	right.markDirty()
	cur.markDirty()
	parent.markDirty()
}

// mergeNodes merges right into left (both children of parent, right at
// parent.children[leftIdx+1]) and removes the now-absorbed separator
// and child pointer from parent. left is always the in-memory survivor
// after this call; the caller is responsible for releasing both left
// and right exactly once, whichever of the two was the node already
// held in its ancestor stack.
func mergeNodes(parent *handle, leftIdx int, left, right *handle) {
	if left.node.isLeaf {
		left.node.keys = append(left.node.keys, right.node.keys...)
		left.node.values = append(left.node.values, right.node.values...)
		left.node.next = right.node.next
	} else {
		sep := parent.node.keys[leftIdx]
		left.node.keys = append(left.node.keys, sep)
		left.node.keys = append(left.node.keys, right.node.keys...)
		left.node.children = append(left.node.children, right.node.children...)
	}
	parent.node.keys = removeAt(parent.node.keys, leftIdx)
	parent.node.children = removeAt(parent.node.children, leftIdx+1)

	left.markDirty()
	parent.markDirty()
}
