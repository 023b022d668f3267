package idxtree

import (
	"bytes"
	"fmt"
)

// leafInsertPos returns the slot a new key takes on a leaf: the first unused
// slot or the first active entry with a greater key. Equal keys are placed
// after the existing ones.
func leafInsertPos(p *Page, key []byte) int {
	for i := 0; i < p.maxEntries; i++ {
		if !p.entries[i].inUse || bytes.Compare(key, p.entries[i].key) < 0 {
			return i
		}
	}
	return p.numEntries
}

// insertAt places e at pos, shifting the active entries from pos one slot
// to the right. The page must have a free slot.
func (t *Tree) insertAt(p *Page, pos int, e Entry) {
	copy(p.entries[pos+1:p.numEntries+1], p.entries[pos:p.numEntries])
	p.entries[pos] = e
	p.numEntries++
	if !p.isLeaf {
		t.adopt(p, e.child)
	}
}

// insertInPlace adds a record to a leaf that still has room.
func (t *Tree) insertInPlace(p *Page, key []byte, loc RecordLocator) placement {
	pos := leafInsertPos(p, key)
	t.insertAt(p, pos, newLeafEntry(key, loc))
	return placement{page: p.id, slot: pos}
}

// insertSeparator links child into parent right after the entry at
// afterIdx (-1 for the front), keyed by the child's maximum key. Placing it
// by position keeps children in order even when neighbouring separators
// hold the same key.
func (t *Tree) insertSeparator(parent *Page, afterIdx int, child *Page) {
	t.insertAt(parent, afterIdx+1, newSeparatorEntry(child.maxKey(), child.id))
}

// locateSeparator finds the entry of parent that references child.
func locateSeparator(parent, child *Page) (int, error) {
	for i, e := range parent.active() {
		if e.child == child.id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: page %d is not referenced by its parent %d", ErrIndexCorruption, child.id, parent.id)
}

// adopt points a child's parent back-reference at p. The children of split
// pages were resolved by planSplit and a raised sibling was just allocated.
func (t *Tree) adopt(p *Page, child PageID) {
	if c, ok := t.store.pages[child]; ok {
		c.parent = p.id
	}
}
