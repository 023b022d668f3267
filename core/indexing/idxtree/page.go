package idxtree

import (
	"bytes"
	"math"
)

// --- Page Management ---

// PageID identifies a page inside a tree's page store. IDs are handed out
// in creation order and never reused.
type PageID uint64

// InvalidPageID marks an absent page, e.g. the parent of the root.
const InvalidPageID PageID = math.MaxUint64

const (
	// locatorSize is the encoded size of a RecordLocator (two uint32).
	locatorSize = 8
	// childRefSize is the encoded size of a child reference (a PageID).
	childRefSize = 8
)

// RecordLocator identifies a record in the table heap the index points into.
// The index never dereferences it.
type RecordLocator struct {
	PageNum uint32
	SlotNum uint32
}

// Entry is one slot of a page. Leaf entries carry a locator, non-leaf
// entries carry the id of a child page; which one is meaningful is decided
// by the owning page's leaf flag.
type Entry struct {
	inUse   bool
	key     []byte
	locator RecordLocator
	child   PageID
}

func newLeafEntry(key []byte, loc RecordLocator) Entry {
	return Entry{inUse: true, key: bytes.Clone(key), locator: loc, child: InvalidPageID}
}

func newSeparatorEntry(key []byte, child PageID) Entry {
	return Entry{inUse: true, key: bytes.Clone(key), child: child}
}

// Key returns the entry's key. The slice is owned by the tree.
func (e Entry) Key() []byte { return e.key }

// Page is a fixed-capacity, ordered container of entries. Active entries
// occupy entries[:numEntries] in ascending key order.
type Page struct {
	id          PageID
	isLeaf      bool
	payloadSize int
	maxEntries  int
	numEntries  int
	entries     []Entry
	parent      PageID // InvalidPageID for the root
}

func (p *Page) ID() PageID      { return p.id }
func (p *Page) IsLeaf() bool    { return p.isLeaf }
func (p *Page) NumEntries() int { return p.numEntries }
func (p *Page) MaxEntries() int { return p.maxEntries }
func (p *Page) Parent() PageID  { return p.parent }
func (p *Page) isFull() bool    { return p.numEntries >= p.maxEntries }

// active returns the in-use prefix of the entry slots.
func (p *Page) active() []Entry {
	return p.entries[:p.numEntries]
}

// maxKey returns the highest key on the page, or nil for an empty page.
func (p *Page) maxKey() []byte {
	if p.numEntries == 0 {
		return nil
	}
	return p.entries[p.numEntries-1].key
}

// setEntries replaces the page content with the given (sorted) entries and
// clears every slot past them.
func (p *Page) setEntries(src []Entry) {
	n := copy(p.entries, src)
	clear(p.entries[n:])
	p.numEntries = n
}

// pageCapacity computes how many entries of keySize+payloadSize bytes fit in
// a page of pageSize bytes.
func pageCapacity(pageSize, keySize uint32, payloadSize int) int {
	return int(pageSize) / (int(keySize) + payloadSize)
}
