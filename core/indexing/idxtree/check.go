package idxtree

import (
	"bytes"
	"fmt"
)

// Check walks the whole tree and verifies its structural invariants:
// sorted contiguous entries, page capacity, separator keys equal to the
// maximum key of their child, parent back-references, equal leaf depth,
// and that every stored page is reachable from the root.
func (t *Tree) Check() error {
	if t.destroyed {
		return ErrTreeDestroyed
	}
	c := checker{t: t, leafDepth: -1}
	if err := c.visit(t.root, InvalidPageID, 0); err != nil {
		return err
	}
	if c.pages != t.store.len() {
		return fmt.Errorf("%w: %d pages stored but %d reachable from root", ErrIndexCorruption, t.store.len(), c.pages)
	}
	if c.records != t.records {
		return fmt.Errorf("%w: %d records in leaves but %d added", ErrIndexCorruption, c.records, t.records)
	}
	return nil
}

type checker struct {
	t         *Tree
	leafDepth int
	pages     int
	records   int
}

func (c *checker) visit(id, parent PageID, depth int) error {
	p, err := c.t.store.get(id)
	if err != nil {
		return err
	}
	c.pages++
	if p.parent != parent {
		return fmt.Errorf("%w: page %d points to parent %d but is referenced from %d", ErrIndexCorruption, p.id, p.parent, parent)
	}
	if p.numEntries > p.maxEntries || len(p.entries) != p.maxEntries {
		return fmt.Errorf("%w: page %d holds %d entries in %d slots, capacity %d",
			ErrIndexCorruption, p.id, p.numEntries, len(p.entries), p.maxEntries)
	}
	for i, e := range p.entries {
		if e.inUse != (i < p.numEntries) {
			return fmt.Errorf("%w: page %d slot %d in-use flag breaks the active prefix", ErrIndexCorruption, p.id, i)
		}
		if !e.inUse {
			continue
		}
		if len(e.key) != int(c.t.cfg.KeySize) {
			return fmt.Errorf("%w: page %d slot %d has a %d byte key", ErrIndexCorruption, p.id, i, len(e.key))
		}
		if i > 0 && bytes.Compare(p.entries[i-1].key, e.key) > 0 {
			return fmt.Errorf("%w: page %d keys out of order at slot %d", ErrIndexCorruption, p.id, i)
		}
	}

	if p.isLeaf {
		if c.leafDepth == -1 {
			c.leafDepth = depth
		} else if c.leafDepth != depth {
			return fmt.Errorf("%w: leaf %d at depth %d, other leaves at depth %d", ErrIndexCorruption, p.id, depth, c.leafDepth)
		}
		c.records += p.numEntries
		return nil
	}

	if p.numEntries == 0 {
		return fmt.Errorf("%w: non-leaf page %d has no entries", ErrIndexCorruption, p.id)
	}
	for i, e := range p.active() {
		if err := c.visit(e.child, p.id, depth+1); err != nil {
			return err
		}
		child := c.t.store.pages[e.child]
		if !bytes.Equal(e.key, child.maxKey()) {
			return fmt.Errorf("%w: page %d separator %d is %x, child %d max key is %x",
				ErrIndexCorruption, p.id, i, e.key, child.id, child.maxKey())
		}
	}
	return nil
}
