package idxtree

import "fmt"

// pageStore owns every page of one tree. Pages refer to each other by
// PageID, so parent/child links are lookups in this arena rather than
// pointers.
type pageStore struct {
	pages       map[PageID]*Page
	pageCounter uint64
	leafCap     int
	nodeCap     int
}

func newPageStore(leafCap, nodeCap int) *pageStore {
	return &pageStore{
		pages:   make(map[PageID]*Page),
		leafCap: leafCap,
		nodeCap: nodeCap,
	}
}

// createPage allocates an empty page with the next page id.
func (s *pageStore) createPage(isLeaf bool, parent PageID) *Page {
	capacity, payload := s.nodeCap, childRefSize
	if isLeaf {
		capacity, payload = s.leafCap, locatorSize
	}
	p := &Page{
		id:          PageID(s.pageCounter),
		isLeaf:      isLeaf,
		payloadSize: payload,
		maxEntries:  capacity,
		entries:     make([]Entry, capacity),
		parent:      parent,
	}
	s.pageCounter++
	s.pages[p.id] = p
	return p
}

// get resolves a page id. A missing page means a dangling reference.
func (s *pageStore) get(id PageID) (*Page, error) {
	p, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: page %d is not in the page store", ErrIndexCorruption, id)
	}
	return p, nil
}

// release drops a page and the buffers its entries own.
func (s *pageStore) release(p *Page) {
	clear(p.entries)
	p.entries = nil
	p.numEntries = 0
	delete(s.pages, p.id)
}

func (s *pageStore) len() int { return len(s.pages) }
