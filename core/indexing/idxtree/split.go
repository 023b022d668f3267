package idxtree

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"
)

// placement is where a record ended up after an insert.
type placement struct {
	page PageID
	slot int
}

// planSplit checks, before anything is modified, that every page a split
// starting at p would touch is reachable from its parent, that the parent's
// separator agrees with the page, and that every child a split non-leaf page
// hands to its new sibling exists. Once this passes the split loop cannot
// fail half way.
func (t *Tree) planSplit(p *Page) error {
	for p.isFull() {
		if !p.isLeaf {
			for _, e := range p.active() {
				if _, err := t.store.get(e.child); err != nil {
					return err
				}
			}
		}
		if p.parent == InvalidPageID {
			if p.id != t.root {
				return fmt.Errorf("%w: page %d has no parent but is not the root", ErrIndexCorruption, p.id)
			}
			return nil
		}
		parent, err := t.store.get(p.parent)
		if err != nil {
			return err
		}
		idx, err := locateSeparator(parent, p)
		if err != nil {
			return err
		}
		if !bytes.Equal(parent.entries[idx].key, p.maxKey()) {
			return fmt.Errorf("%w: separator %x in page %d does not match max key %x of page %d",
				ErrIndexCorruption, parent.entries[idx].key, parent.id, p.maxKey(), p.id)
		}
		p = parent
	}
	return nil
}

// splitAndInsert adds a record to a full leaf. The leaf is split in two and
// the new right sibling is linked into the parent; a full parent is split
// the same way, up to growing a new root.
func (t *Tree) splitAndInsert(leaf *Page, key []byte, loc RecordLocator) (placement, error) {
	var placed placement
	page, pos, entry := leaf, leafInsertPos(leaf, key), newLeafEntry(key, loc)
	for {
		if !page.isFull() {
			t.insertAt(page, pos, entry)
			return placed, nil
		}

		parent, err := t.parentForSplit(page)
		if err != nil {
			return placed, err
		}
		sepIdx, err := locateSeparator(parent, page)
		if err != nil {
			return placed, err
		}

		leftCount, right := t.splitPage(page, pos, entry)
		if page.isLeaf {
			placed = placement{page: page.id, slot: pos}
			if pos >= leftCount {
				placed = placement{page: right.id, slot: pos - leftCount}
			}
		}
		// The reused left page lost its upper half, so its separator drops
		// to the new maximum. The right page inherits the old maximum.
		parent.entries[sepIdx].key = bytes.Clone(page.maxKey())
		t.splits++

		t.logger.Debug("split index page",
			zap.Uint64("page_id", uint64(page.id)),
			zap.Uint64("sibling_page_id", uint64(right.id)),
			zap.Uint64("parent_page_id", uint64(parent.id)),
			zap.Bool("leaf", page.isLeaf),
			zap.Int("left_entries", page.numEntries),
			zap.Int("right_entries", right.numEntries),
		)

		page, pos, entry = parent, sepIdx+1, newSeparatorEntry(right.maxKey(), right.id)
	}
}

// parentForSplit returns the page that will receive the new sibling's
// separator, growing a new root when the page being split is the root.
func (t *Tree) parentForSplit(p *Page) (*Page, error) {
	if p.parent != InvalidPageID {
		return t.store.get(p.parent)
	}
	root := t.store.createPage(false, InvalidPageID)
	t.insertSeparator(root, -1, p)
	t.root = root.id
	t.rootSplits++
	t.logger.Debug("grew new index root",
		zap.Uint64("root_page_id", uint64(root.id)),
		zap.Uint64("old_root_page_id", uint64(p.id)),
		zap.Int("height", t.height()),
	)
	return root, nil
}

// splitPage merges entry into the entries of the full page p at pos and
// divides the result left-biased: p keeps the first ceil(n/2) entries and a
// new sibling under the same parent takes the rest. It returns how many
// entries stayed on p together with the sibling.
func (t *Tree) splitPage(p *Page, pos int, entry Entry) (int, *Page) {
	candidates := make([]Entry, 0, p.numEntries+1)
	candidates = append(candidates, p.entries[:pos]...)
	candidates = append(candidates, entry)
	candidates = append(candidates, p.entries[pos:p.numEntries]...)

	leftCount := (len(candidates) + 1) / 2
	right := t.store.createPage(p.isLeaf, p.parent)
	p.setEntries(candidates[:leftCount])
	right.setEntries(candidates[leftCount:])

	if !p.isLeaf {
		for _, e := range p.active() {
			t.adopt(p, e.child)
		}
		for _, e := range right.active() {
			t.adopt(right, e.child)
		}
	}
	return leftCount, right
}
