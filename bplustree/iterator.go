package bplus

import (
	"bytes"
	"sort"

	mappedfile "PagedKV/storage_engine/mapped_file"
	"PagedKV/storage_engine/page"
)

// Iterator provides a forward-only range scan over the leaves.
// It copies one leaf at a time, so it holds no page between calls; inserts
// made while it is open may or may not be observed.
type Iterator struct {
	tree  *BPlusTree
	keys  [][]byte
	vals  [][]byte
	index int
	next  page.Index
	valid bool
	err   error
}

// SeekGE positions the iterator at the first key >= target.
func (t *BPlusTree) SeekGE(target []byte) (*Iterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, mappedfile.ErrClosed
	}

	it := &Iterator{tree: t}
	if err := it.seek(target); err != nil {
		return nil, err
	}
	return it, nil
}

// First positions the iterator at the smallest key.
func (t *BPlusTree) First() (*Iterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, mappedfile.ErrClosed
	}

	it := &Iterator{tree: t}
	leaf, ok, err := t.firstLeaf()
	if err != nil || !ok {
		return it, err
	}
	it.load(leaf)
	it.skipEmpty()
	return it, it.err
}

// seek assumes the tree lock is held.
func (it *Iterator) seek(target []byte) error {
	leaf, ok, err := it.tree.findLeaf(target)
	if err != nil || !ok {
		return err
	}
	it.load(leaf)
	it.index = sort.Search(len(it.keys), func(i int) bool {
		return bytes.Compare(it.keys[i], target) >= 0
	})
	it.skipEmpty()
	return it.err
}

// load copies the records of a pinned leaf and unpins it.
func (it *Iterator) load(p pinned) {
	defer p.unpin()
	leaf, err := it.tree.asLeaf(p)
	if err != nil {
		it.fail(err)
		return
	}
	n := leaf.Count()
	it.keys = make([][]byte, n)
	it.vals = make([][]byte, n)
	for i := 0; i < n; i++ {
		it.keys[i] = bytes.Clone(leaf.Key(i))
		it.vals[i] = bytes.Clone(leaf.Value(i))
	}
	it.index = 0
	it.next = leaf.Next()
	it.valid = true
}

// skipEmpty moves along the leaf chain until index points at a record.
func (it *Iterator) skipEmpty() {
	for it.valid && it.index >= len(it.keys) {
		if it.next == page.InvalidIndex {
			it.valid = false
			return
		}
		p, err := it.tree.pinPage(it.next)
		if err != nil {
			it.fail(err)
			return
		}
		it.load(p)
	}
}

func (it *Iterator) fail(err error) {
	it.err = err
	it.valid = false
	it.keys, it.vals = nil, nil
}

// Next advances the iterator. Returns false when exhausted.
func (it *Iterator) Next() bool {
	if !it.valid {
		return false
	}
	it.index++
	if it.index >= len(it.keys) {
		it.tree.mu.Lock()
		if it.tree.closed {
			it.tree.mu.Unlock()
			it.fail(mappedfile.ErrClosed)
			return false
		}
		it.skipEmpty()
		it.tree.mu.Unlock()
	}
	return it.valid
}

// Valid reports whether the iterator points at a record.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the current key.
func (it *Iterator) Key() []byte {
	if !it.valid {
		return nil
	}
	return it.keys[it.index]
}

// Value returns the current value.
func (it *Iterator) Value() []byte {
	if !it.valid {
		return nil
	}
	return it.vals[it.index]
}

// Err is the error that stopped the scan early, if any.
func (it *Iterator) Err() error { return it.err }

// Close ends the scan.
func (it *Iterator) Close() {
	it.valid = false
	it.keys, it.vals = nil, nil
}
