package idxtree

import "bytes"

// searchLeaf binary-searches the active entries of a leaf. With duplicate
// keys any one of the equal entries may be returned.
func searchLeaf(p *Page, key []byte) (int, bool) {
	lo, hi := 0, p.numEntries-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		switch c := bytes.Compare(p.entries[mid].key, key); {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1, false
}
