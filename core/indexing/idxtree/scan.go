package idxtree

// Scan calls fn for every record in key order, stopping early when fn
// returns false. The key passed to fn must not be modified or retained.
func (t *Tree) Scan(fn func(key []byte, loc RecordLocator) bool) error {
	if t.destroyed {
		return ErrTreeDestroyed
	}
	_, err := t.scanPage(t.root, fn)
	return err
}

func (t *Tree) scanPage(id PageID, fn func(key []byte, loc RecordLocator) bool) (bool, error) {
	p, err := t.store.get(id)
	if err != nil {
		return false, err
	}
	for _, e := range p.active() {
		if p.isLeaf {
			if !fn(e.key, e.locator) {
				return false, nil
			}
			continue
		}
		more, err := t.scanPage(e.child, fn)
		if err != nil || !more {
			return more, err
		}
	}
	return true, nil
}
