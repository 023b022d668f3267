package idxtree

import (
	"bytes"
	"fmt"
)

// separatorRaise is a deferred update of a separator key, collected while
// descending for an insert whose key is above every key in the tree.
type separatorRaise struct {
	page  *Page
	index int
}

// childFor returns the index of the first active entry whose separator is
// >= key, or -1 when key is above every separator on the page.
func childFor(p *Page, key []byte) int {
	for i, e := range p.active() {
		if bytes.Compare(e.key, key) >= 0 {
			return i
		}
	}
	return -1
}

// descend walks from the root to the leaf responsible for key. It returns a
// nil page when key is above every separator of the root, which is a plain
// "not found". Running out of qualifying entries below the root cannot
// happen in a well-formed tree and is reported as corruption.
func (t *Tree) descend(key []byte) (*Page, error) {
	current, err := t.store.get(t.root)
	if err != nil {
		return nil, err
	}
	depth := 0
	for !current.isLeaf {
		if current.numEntries == 0 {
			return nil, fmt.Errorf("%w: non-leaf page %d at depth %d has no entries", ErrIndexCorruption, current.id, depth)
		}
		idx := childFor(current, key)
		if idx < 0 {
			if depth == 0 {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: non-leaf page %d at depth %d has no child for a key its parent routed to it",
				ErrIndexCorruption, current.id, depth)
		}
		if current, err = t.store.get(current.entries[idx].child); err != nil {
			return nil, err
		}
		depth++
	}
	return current, nil
}

// descendForInsert is descend for insertion. A key above every separator
// is routed through the last entry at each level; the separators on that
// path must then be raised to the new key, which the caller applies once
// the insertion is known to succeed.
func (t *Tree) descendForInsert(key []byte) (*Page, []separatorRaise, error) {
	current, err := t.store.get(t.root)
	if err != nil {
		return nil, nil, err
	}
	var raises []separatorRaise
	for !current.isLeaf {
		if current.numEntries == 0 {
			return nil, nil, fmt.Errorf("%w: non-leaf page %d has no entries", ErrIndexCorruption, current.id)
		}
		idx := childFor(current, key)
		if idx < 0 {
			if len(raises) == 0 && current.id != t.root {
				// Only a chain of raises starting at the root can route a
				// key past every separator.
				return nil, nil, fmt.Errorf("%w: non-leaf page %d has no child for a key its parent routed to it",
					ErrIndexCorruption, current.id)
			}
			idx = current.numEntries - 1
			raises = append(raises, separatorRaise{page: current, index: idx})
		}
		if current, err = t.store.get(current.entries[idx].child); err != nil {
			return nil, nil, err
		}
	}
	return current, raises, nil
}

func applyRaises(raises []separatorRaise, key []byte) {
	for _, r := range raises {
		r.page.entries[r.index].key = bytes.Clone(key)
	}
}
