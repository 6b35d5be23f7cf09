package bplustree

import (
	"fmt"
	"io"

	"coredb/storage/page"
)

// Dump writes a breadth-first rendering of the tree's structure to w,
// one level per line — grounded in DaemonDB's inspect.go tree printer,
// intended for tests and debugging rather than production use.
func (t *Tree) Dump(w io.Writer) error {
	t.rootMu.RLock()
	rootID := t.rootID
	t.rootMu.RUnlock()

	if rootID == page.InvalidID {
		fmt.Fprintln(w, "(empty)")
		return nil
	}

	level := []int64{rootID}
	depth := 0
	for len(level) > 0 {
		fmt.Fprintf(w, "L%d:", depth)
		var next []int64
		for _, id := range level {
			h, err := t.fetch(id, latchRead)
			if err != nil {
				return err
			}
			if h.node.isLeaf {
				fmt.Fprintf(w, " [leaf#%d %v]", id, keysPreview(h.node.keys))
			} else {
				fmt.Fprintf(w, " [int#%d %v]", id, keysPreview(h.node.keys))
				next = append(next, h.node.children...)
			}
			if relErr := t.release(h); relErr != nil {
				return relErr
			}
		}
		fmt.Fprintln(w)
		level = next
		depth++
	}
	return nil
}

func keysPreview(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
