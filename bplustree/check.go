package bplus

import (
	"bytes"
	"fmt"

	mappedfile "PagedKV/storage_engine/mapped_file"
	"PagedKV/storage_engine/page"
)

// Check walks the whole tree and returns the first structural problem it
// finds, wrapped in ErrCorrupt:
//   - every page holds at most layout.Capacity() records, sorted by key
//   - every key lies inside the range its parent separators allow
//   - all leaves sit at depth Height()
//   - the leaf chain visits the leaves in key order, linked both ways
//   - the header count matches the records found
func (t *BPlusTree) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return mappedfile.ErrClosed
	}

	hp, hdr, err := t.pinHeader()
	if err != nil {
		return err
	}
	root, height, count := hdr.Root(), hdr.Height(), hdr.Count()
	hp.unpin()

	if root == page.InvalidIndex {
		if height != 0 || count != 0 {
			return fmt.Errorf("%w: empty tree with height %d count %d", ErrCorrupt, height, count)
		}
		return nil
	}

	c := &checker{tree: t, height: height, seen: make(map[page.Index]bool)}
	if err := c.walk(root, nil, nil, 1); err != nil {
		return err
	}
	if c.records != count {
		return fmt.Errorf("%w: header count %d, found %d records", ErrCorrupt, count, c.records)
	}
	return c.checkChain()
}

type checker struct {
	tree    *BPlusTree
	height  int
	seen    map[page.Index]bool
	records uint64
	leaves  []leafLinks
}

type leafLinks struct {
	index, prev, next page.Index
}

// walk checks the subtree at index; keys must fall in [lo, hi], nil meaning
// unbounded.
func (c *checker) walk(index page.Index, lo, hi []byte, depth int) error {
	if index == page.InvalidIndex || c.seen[index] {
		return fmt.Errorf("%w: page %d referenced twice or invalid", ErrCorrupt, index)
	}
	c.seen[index] = true

	p, err := c.tree.pinPage(index)
	if err != nil {
		return err
	}
	defer p.unpin()

	if page.KindOf(p.buf) == page.KindLeaf {
		leaf, err := c.tree.asLeaf(p)
		if err != nil {
			return err
		}
		if depth != c.height {
			return fmt.Errorf("%w: leaf %d at depth %d, height is %d", ErrCorrupt, index, depth, c.height)
		}
		n := leaf.Count()
		if n == 0 || n > leaf.Capacity() {
			return fmt.Errorf("%w: leaf %d holds %d records, capacity %d", ErrCorrupt, index, n, leaf.Capacity())
		}
		if err := checkKeys(index, n, leaf.Key, lo, hi); err != nil {
			return err
		}
		c.records += uint64(n)
		c.leaves = append(c.leaves, leafLinks{index: index, prev: leaf.Prev(), next: leaf.Next()})
		return nil
	}

	branch, err := c.tree.asBranch(p)
	if err != nil {
		return err
	}
	n := branch.Count()
	if n == 0 || n > branch.Capacity() {
		return fmt.Errorf("%w: branch %d holds %d records, capacity %d", ErrCorrupt, index, n, branch.Capacity())
	}
	if err := checkKeys(index, n, branch.Key, lo, hi); err != nil {
		return err
	}

	low := lo
	for i := 0; i < n; i++ {
		if err := c.walk(branch.Left(i), low, branch.Key(i), depth+1); err != nil {
			return err
		}
		low = branch.Key(i)
	}
	return c.walk(branch.Right(), low, hi, depth+1)
}

func checkKeys(index page.Index, n int, key func(int) []byte, lo, hi []byte) error {
	for i := 0; i < n; i++ {
		k := key(i)
		if i > 0 && bytes.Compare(key(i-1), k) > 0 {
			return fmt.Errorf("%w: page %d keys out of order at %d", ErrCorrupt, index, i)
		}
		if lo != nil && bytes.Compare(k, lo) < 0 {
			return fmt.Errorf("%w: page %d key %x below lower bound %x", ErrCorrupt, index, k, lo)
		}
		if hi != nil && bytes.Compare(k, hi) > 0 {
			return fmt.Errorf("%w: page %d key %x above upper bound %x", ErrCorrupt, index, k, hi)
		}
	}
	return nil
}

// checkChain compares the sibling links with the in-order leaf sequence.
func (c *checker) checkChain() error {
	for i, l := range c.leaves {
		wantPrev, wantNext := page.InvalidIndex, page.InvalidIndex
		if i > 0 {
			wantPrev = c.leaves[i-1].index
		}
		if i+1 < len(c.leaves) {
			wantNext = c.leaves[i+1].index
		}
		if l.prev != wantPrev || l.next != wantNext {
			return fmt.Errorf("%w: leaf %d links prev=%d next=%d, want %d/%d",
				ErrCorrupt, l.index, l.prev, l.next, wantPrev, wantNext)
		}
	}
	return nil
}
