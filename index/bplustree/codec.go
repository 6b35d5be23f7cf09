package bplustree

import (
	"encoding/binary"
	"fmt"

	"coredb/storage/page"
)

// Page layout (little-endian), grounded in DaemonDB's node_to_index_page.go
// but simplified to a single global page-id space (one tree, one Buffer
// Pool Manager, one underlying file — spec §4.D does not require the
// multi-file/multi-tree catalog wiring the teacher's version carries):
//
//	offset  size  field
//	0       1     isLeaf
//	1       2     numKeys
//	3       8     parent   (page.InvalidID if root)
//	11      8     next     (leaf only; unused by internal nodes)
//	19            headerSize
//
// Followed by numKeys length-prefixed keys (uint16 length + bytes), then
// either numKeys+1 raw 8-byte child page-ids (internal) or numKeys
// length-prefixed values (leaf).
const headerSize = 19

func serializeNode(n *node, buf *[page.Size]byte) error {
	if n.isLeaf {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
	binary.LittleEndian.PutUint16(buf[1:], uint16(len(n.keys)))
	binary.LittleEndian.PutUint64(buf[3:], uint64(n.parent))
	binary.LittleEndian.PutUint64(buf[11:], uint64(n.next))

	off := headerSize
	for _, k := range n.keys {
		if off+2+len(k) > page.Size {
			return fmt.Errorf("bplustree: node %d overflows page on serialize", n.pageID)
		}
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(k)))
		off += 2
		copy(buf[off:], k)
		off += len(k)
	}

	if n.isLeaf {
		for _, v := range n.values {
			if off+2+len(v) > page.Size {
				return fmt.Errorf("bplustree: node %d overflows page on serialize", n.pageID)
			}
			binary.LittleEndian.PutUint16(buf[off:], uint16(len(v)))
			off += 2
			copy(buf[off:], v)
			off += len(v)
		}
	} else {
		for _, c := range n.children {
			if off+8 > page.Size {
				return fmt.Errorf("bplustree: node %d overflows page on serialize", n.pageID)
			}
			binary.LittleEndian.PutUint64(buf[off:], uint64(c))
			off += 8
		}
	}
	return nil
}

func deserializeNode(id int64, buf *[page.Size]byte) (*node, error) {
	n := &node{pageID: id}
	n.isLeaf = buf[0] == 1
	numKeys := int(binary.LittleEndian.Uint16(buf[1:]))
	n.parent = int64(binary.LittleEndian.Uint64(buf[3:]))
	n.next = int64(binary.LittleEndian.Uint64(buf[11:]))

	off := headerSize
	n.keys = make([][]byte, numKeys)
	for i := 0; i < numKeys; i++ {
		if off+2 > page.Size {
			return nil, fmt.Errorf("bplustree: node %d truncated key header", id)
		}
		l := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if off+l > page.Size {
			return nil, fmt.Errorf("bplustree: node %d truncated key data", id)
		}
		k := make([]byte, l)
		copy(k, buf[off:off+l])
		n.keys[i] = k
		off += l
	}

	if n.isLeaf {
		n.values = make([][]byte, numKeys)
		for i := 0; i < numKeys; i++ {
			l := int(binary.LittleEndian.Uint16(buf[off:]))
			off += 2
			v := make([]byte, l)
			copy(v, buf[off:off+l])
			n.values[i] = v
			off += l
		}
	} else {
		n.children = make([]int64, numKeys+1)
		for i := 0; i < numKeys+1; i++ {
			n.children[i] = int64(binary.LittleEndian.Uint64(buf[off:]))
			off += 8
		}
	}
	return n, nil
}
