package bplustree

// binarySearch returns the index of target in keys, or -1 if absent.
func binarySearch(keys [][]byte, target []byte, cmp Comparator) int {
	lo, hi := 0, len(keys)-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		switch c := cmp(keys[mid], target); {
		case c == 0:
			return mid
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1
}

// lowerBound returns the index of the first key >= target (len(keys)
// if none). For an internal node this is also the index of the child
// pointer to descend into.
func lowerBound(keys [][]byte, target []byte, cmp Comparator) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cmp(keys[mid], target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBound returns the index of the first key > target (len(keys) if
// none). For an internal node this is the index of the child pointer
// to descend into: separators are the minimum key of their right
// child (see split.go), so a target equal to a separator must descend
// right, not left — lowerBound would send it left instead.
func upperBound(keys [][]byte, target []byte, cmp Comparator) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cmp(keys[mid], target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func insertAt[T any](s []T, i int, v T) []T {
	s = append(s, v)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt[T any](s []T, i int) []T {
	return append(s[:i], s[i+1:]...)
}
