package idxtree

import (
	"fmt"
	"io"
)

// dumpWriter keeps the first write error so the dump code can stay linear.
type dumpWriter struct {
	w   io.Writer
	err error
}

func (d *dumpWriter) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

// Dump renders the tree root-to-leaf for debugging: every page with its
// id, leaf flag, entry count, capacity and payload size, then its entries.
// Keys are printed as hex in stored byte order. The layout is not stable.
func (t *Tree) Dump(w io.Writer) error {
	if t.destroyed {
		return ErrTreeDestroyed
	}
	d := &dumpWriter{w: w}
	d.printf("Index tree:\n")
	d.printf("\tPage size: %d\n", t.cfg.PageSize)
	d.printf("\tPage count: %d\n", t.store.pageCounter)
	d.printf("\tKey size: %d\n", t.cfg.KeySize)
	if err := t.dumpPage(d, t.root, 0); err != nil {
		return err
	}
	return d.err
}

func (t *Tree) dumpPage(d *dumpWriter, id PageID, level int) error {
	p, err := t.store.get(id)
	if err != nil {
		return err
	}
	d.printf("\nLevel %d - Page %d\n", level, p.id)
	d.printf("\tLeaf: %t\n", p.isLeaf)
	d.printf("\tNum entries: %d\n", p.numEntries)
	d.printf("\tMax entries: %d\n", p.maxEntries)
	d.printf("\tData size: %d\n", p.payloadSize)
	for i, e := range p.active() {
		d.printf("\tEntry %d:\n", i)
		d.printf("\t\t-Key: 0x%x\n", e.key)
		if p.isLeaf {
			d.printf("\t\t-Page num: %d\n", e.locator.PageNum)
			d.printf("\t\t-Slot num: %d\n", e.locator.SlotNum)
		} else {
			d.printf("\t\t-Child page-id: %d\n", e.child)
		}
	}
	if p.isLeaf {
		return nil
	}
	for _, e := range p.active() {
		if err := t.dumpPage(d, e.child, level+1); err != nil {
			return err
		}
	}
	return nil
}
