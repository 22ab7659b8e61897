package bplus

import (
	"errors"
	"fmt"

	mappedfile "PagedKV/storage_engine/mapped_file"
	"PagedKV/storage_engine/page"

	"go.uber.org/zap"
)

// Insert adds (key, value). Duplicate keys are kept: a repeated key is
// stored again after the existing copies rather than overwriting them.
//
// Full pages are split on the way down, before they are entered, so the
// branch receiving a promoted separator always has room for it.
func (t *BPlusTree) Insert(key, value []byte) (err error) {
	if err := t.checkRecord(key, value); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return mappedfile.ErrClosed
	}
	if t.readOnly {
		return ErrReadOnly
	}

	hp, hdr, err := t.pinHeader()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, hp.unpin())
	}()

	if hdr.Root() == page.InvalidIndex {
		if err := t.insertFirst(hdr, key, value); err != nil {
			return err
		}
	} else {
		if err := t.growIfFull(hdr); err != nil {
			return err
		}
		if err := t.insertFrom(hdr.Root(), key, value); err != nil {
			return err
		}
	}

	hdr.SetCount(hdr.Count() + 1)
	t.lookup.invalidate(key)
	return nil
}

func (t *BPlusTree) checkRecord(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(key) > t.layout.KeySize {
		return fmt.Errorf("%w: %d > %d", ErrKeyTooLarge, len(key), t.layout.KeySize)
	}
	if len(value) > t.layout.ValueSize {
		return fmt.Errorf("%w: %d > %d", ErrValueTooLarge, len(value), t.layout.ValueSize)
	}
	return nil
}

// insertFirst allocates the root leaf of an empty tree.
func (t *BPlusTree) insertFirst(hdr page.Header, key, value []byte) error {
	p, err := t.allocPage()
	if err != nil {
		return err
	}
	defer p.unpin()

	leaf := page.InitLeaf(p.buf, t.layout)
	if _, err := leaf.Insert(key, value); err != nil {
		return err
	}
	hdr.SetRoot(p.index)
	hdr.SetHeight(1)
	t.logger.Debug("created root leaf", zap.Uint64("page", uint64(p.index)))
	return nil
}

// growIfFull splits a full root and installs a new branch root above the two
// halves. This is the only place the tree gets taller.
func (t *BPlusTree) growIfFull(hdr page.Header) error {
	oldRoot := hdr.Root()
	rp, err := t.pinPage(oldRoot)
	if err != nil {
		return err
	}
	full, err := t.isFull(rp)
	rp.unpin()
	if err != nil || !full {
		return err
	}

	sep, sibling, err := t.splitChild(oldRoot)
	if err != nil {
		return err
	}

	np, err := t.allocPage()
	if err != nil {
		return err
	}
	defer np.unpin()

	root := page.InitBranch(np.buf, t.layout)
	if err := root.InsertAt(0, sep, oldRoot); err != nil {
		return err
	}
	root.SetRight(sibling)

	hdr.SetRoot(np.index)
	hdr.SetHeight(hdr.Height() + 1)
	t.stats.rootGrowths++
	t.logger.Debug("grew root",
		zap.Uint64("root", uint64(np.index)),
		zap.Uint64("left", uint64(oldRoot)),
		zap.Uint64("right", uint64(sibling)),
		zap.Int("height", hdr.Height()))
	return nil
}

// insertFrom walks from a non-full page down to the leaf that takes key,
// splitting every full child before stepping into it.
func (t *BPlusTree) insertFrom(index page.Index, key, value []byte) error {
	for {
		p, err := t.pinPage(index)
		if err != nil {
			return err
		}

		if page.KindOf(p.buf) == page.KindLeaf {
			leaf, err := t.asLeaf(p)
			if err == nil {
				_, err = leaf.Insert(key, value)
			}
			return errors.Join(err, p.unpin())
		}

		branch, err := t.asBranch(p)
		if err != nil {
			p.unpin()
			return err
		}
		next, err := t.descend(branch, p.index, key)
		p.unpin()
		if err != nil {
			return err
		}
		index = next
	}
}

// descend picks the child of branch that key belongs to. A full child is
// split first and the branch re-scanned, so the returned child has room.
func (t *BPlusTree) descend(branch page.Branch, index page.Index, key []byte) (page.Index, error) {
	child, slot := branch.Child(key)

	cp, err := t.pinPage(child)
	if err != nil {
		return 0, err
	}
	full, err := t.isFull(cp)
	cp.unpin()
	if err != nil {
		return 0, err
	}

	if full {
		sep, sibling, err := t.splitChild(child)
		if err != nil {
			return 0, err
		}
		if err := t.insertIntoParent(branch, slot, child, sep, sibling); err != nil {
			return 0, fmt.Errorf("promote into page %d: %w", index, err)
		}
		child, slot = branch.Child(key)
	}

	if slot < 0 {
		t.stats.rightDescents++
	} else {
		t.stats.leftDescents++
	}
	return child, nil
}

// splitChild splits the full page at index into itself and a new sibling
// and returns the separator for the parent.
func (t *BPlusTree) splitChild(index page.Index) ([]byte, page.Index, error) {
	p, err := t.pinPage(index)
	if err != nil {
		return nil, 0, err
	}
	defer p.unpin()

	if page.KindOf(p.buf) == page.KindLeaf {
		return t.splitLeaf(p)
	}
	return t.splitInternal(p)
}
