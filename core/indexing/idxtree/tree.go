// Package idxtree implements an in-memory B+-tree secondary index that maps
// fixed-width byte keys to record locators in a table heap.
//
// Keys are compared as raw bytes, so integer keys should be encoded
// big-endian to sort numerically. Separator keys in non-leaf pages hold the
// maximum key of the child they reference. A Tree is not safe for
// concurrent use; wrap it (see core/indexmanager) when it is shared.
package idxtree

import (
	"fmt"

	"go.uber.org/zap"
)

// --- Configuration ---

const DefaultPageSize = 4096 // Bytes

// Config fixes the geometry of a tree at creation time.
type Config struct {
	// PageSize bounds how many entries a page holds, in bytes.
	PageSize uint32
	// KeySize is the width of every key, in bytes.
	KeySize uint32
}

// Option customizes a Tree.
type Option func(*Tree)

// WithLogger sets the logger used for split and corruption events.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tree) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMaxEntries pins the capacity of every page instead of deriving it from
// the page and key size.
func WithMaxEntries(n int) Option {
	return func(t *Tree) { t.maxEntries = n }
}

// --- Tree ---

// Tree is a handle to one index. The zero value is not usable; create trees
// with NewTree.
type Tree struct {
	cfg        Config
	maxEntries int // fixed capacity override, 0 when derived
	store      *pageStore
	root       PageID
	destroyed  bool
	records    int
	splits     uint64
	rootSplits uint64
	logger     *zap.Logger
}

// NewTree creates an empty tree: a single leaf root with no entries.
func NewTree(cfg Config, opts ...Option) (*Tree, error) {
	t := &Tree{cfg: cfg, root: InvalidPageID, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	if cfg.KeySize == 0 {
		return nil, fmt.Errorf("%w: key size must be positive", ErrInvalidConfiguration)
	}
	if cfg.PageSize == 0 {
		return nil, fmt.Errorf("%w: page size must be positive", ErrInvalidConfiguration)
	}

	leafCap := pageCapacity(cfg.PageSize, cfg.KeySize, locatorSize)
	nodeCap := pageCapacity(cfg.PageSize, cfg.KeySize, childRefSize)
	if t.maxEntries != 0 {
		leafCap, nodeCap = t.maxEntries, t.maxEntries
	}
	if leafCap < 2 || nodeCap < 2 {
		return nil, fmt.Errorf("%w: page size %d with key size %d gives %d leaf / %d non-leaf entries per page, need at least 2",
			ErrInvalidConfiguration, cfg.PageSize, cfg.KeySize, leafCap, nodeCap)
	}

	t.store = newPageStore(leafCap, nodeCap)
	t.root = t.store.createPage(true, InvalidPageID).id
	t.logger.Debug("created index tree",
		zap.Uint32("page_size", cfg.PageSize),
		zap.Uint32("key_size", cfg.KeySize),
		zap.Int("leaf_capacity", leafCap),
		zap.Int("node_capacity", nodeCap),
	)
	return t, nil
}

func (t *Tree) checkUsable(key []byte) error {
	if t.destroyed {
		return ErrTreeDestroyed
	}
	if len(key) != int(t.cfg.KeySize) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrKeySize, len(key), t.cfg.KeySize)
	}
	return nil
}

// AddRecord indexes a record under key. Duplicate keys are kept as separate
// entries, placed after the entries already holding that key.
func (t *Tree) AddRecord(key []byte, pageNum, slotNum uint32) error {
	if err := t.checkUsable(key); err != nil {
		return err
	}
	loc := RecordLocator{PageNum: pageNum, SlotNum: slotNum}

	leaf, raises, err := t.descendForInsert(key)
	if err != nil {
		t.logger.Error("index descent failed", zap.Binary("key", key), zap.Error(err))
		return err
	}

	var placed placement
	if !leaf.isFull() {
		applyRaises(raises, key)
		placed = t.insertInPlace(leaf, key, loc)
	} else {
		if err := t.planSplit(leaf); err != nil {
			t.logger.Error("index split rejected", zap.Uint64("page_id", uint64(leaf.id)), zap.Error(err))
			return err
		}
		applyRaises(raises, key)
		if placed, err = t.splitAndInsert(leaf, key, loc); err != nil {
			return err
		}
	}
	t.records++
	t.logger.Debug("added index record",
		zap.Binary("key", key),
		zap.Uint64("page_id", uint64(placed.page)),
		zap.Int("slot", placed.slot),
	)
	return nil
}

// FindRecord looks key up. A missing key is reported through the boolean,
// not as an error.
func (t *Tree) FindRecord(key []byte) (RecordLocator, bool, error) {
	if err := t.checkUsable(key); err != nil {
		return RecordLocator{}, false, err
	}
	leaf, err := t.descend(key)
	if err != nil {
		t.logger.Error("index descent failed", zap.Binary("key", key), zap.Error(err))
		return RecordLocator{}, false, err
	}
	if leaf == nil {
		return RecordLocator{}, false, nil
	}
	idx, ok := searchLeaf(leaf, key)
	if !ok {
		return RecordLocator{}, false, nil
	}
	return leaf.entries[idx].locator, true, nil
}

// Destroy releases every page in post-order and leaves the handle unusable.
func (t *Tree) Destroy() error {
	if t.destroyed {
		return ErrTreeDestroyed
	}
	err := t.releaseSubtree(t.root)
	if err == nil && t.store.len() != 0 {
		err = fmt.Errorf("%w: %d pages were not reachable from the root", ErrIndexCorruption, t.store.len())
	}
	// Orphans are dropped too; the handle is dead either way.
	clear(t.store.pages)
	t.root = InvalidPageID
	t.records = 0
	t.destroyed = true
	t.logger.Debug("destroyed index tree", zap.Error(err))
	return err
}

func (t *Tree) releaseSubtree(id PageID) error {
	p, err := t.store.get(id)
	if err != nil {
		return err
	}
	if !p.isLeaf {
		for _, e := range p.active() {
			if err := t.releaseSubtree(e.child); err != nil {
				return err
			}
		}
	}
	t.store.release(p)
	return nil
}

// --- Accessors ---

func (t *Tree) KeySize() uint32  { return t.cfg.KeySize }
func (t *Tree) PageSize() uint32 { return t.cfg.PageSize }

// Len returns the number of records in the tree.
func (t *Tree) Len() int { return t.records }

// RootID returns the id of the current root page.
func (t *Tree) RootID() PageID { return t.root }

// PageCount returns how many page ids have been handed out, including pages
// later released by Destroy.
func (t *Tree) PageCount() uint64 { return t.store.pageCounter }

// Page returns a read-only view of a page, for diagnostics.
func (t *Tree) Page(id PageID) (*Page, bool) {
	p, ok := t.store.pages[id]
	return p, ok
}

// Height returns the number of levels, 1 for a tree that is a single leaf.
func (t *Tree) Height() int { return t.height() }

func (t *Tree) height() int {
	h := 0
	for id := t.root; ; {
		p, ok := t.store.pages[id]
		if !ok {
			return h
		}
		h++
		if p.isLeaf || p.numEntries == 0 {
			return h
		}
		id = p.entries[0].child
	}
}

// Stats summarizes the shape of a tree.
type Stats struct {
	Height       int    `json:"height"`
	Records      int    `json:"records"`
	Pages        int    `json:"pages"`
	LeafPages    int    `json:"leaf_pages"`
	PageCounter  uint64 `json:"page_counter"`
	Splits       uint64 `json:"splits"`
	RootSplits   uint64 `json:"root_splits"`
	LeafCapacity int    `json:"leaf_capacity"`
	NodeCapacity int    `json:"node_capacity"`
	KeySize      uint32 `json:"key_size"`
	PageSize     uint32 `json:"page_size"`
}

// Splits returns how many page splits the tree has performed.
func (t *Tree) Splits() uint64 { return t.splits }

// Stats reports counters and the current shape of the tree. It visits
// every page.
func (t *Tree) Stats() Stats {
	s := Stats{
		Height:       t.height(),
		Records:      t.records,
		Pages:        t.store.len(),
		PageCounter:  t.store.pageCounter,
		Splits:       t.splits,
		RootSplits:   t.rootSplits,
		LeafCapacity: t.store.leafCap,
		NodeCapacity: t.store.nodeCap,
		KeySize:      t.cfg.KeySize,
		PageSize:     t.cfg.PageSize,
	}
	for _, p := range t.store.pages {
		if p.isLeaf {
			s.LeafPages++
		}
	}
	return s
}
