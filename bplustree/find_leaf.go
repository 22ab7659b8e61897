package bplus

import (
	"PagedKV/storage_engine/page"
)

// findLeaf follows the descent rule from the root to the leaf that would
// hold key. ok is false on an empty tree. Caller must unpin the leaf.
func (t *BPlusTree) findLeaf(key []byte) (p pinned, ok bool, err error) {
	return t.walkDown(func(b page.Branch) page.Index {
		child, _ := b.Child(key)
		return child
	})
}

// firstLeaf returns the leftmost leaf. Caller must unpin it.
func (t *BPlusTree) firstLeaf() (pinned, bool, error) {
	return t.walkDown(func(b page.Branch) page.Index {
		if b.Count() == 0 {
			return b.Right()
		}
		return b.Left(0)
	})
}

func (t *BPlusTree) walkDown(pick func(page.Branch) page.Index) (pinned, bool, error) {
	hp, hdr, err := t.pinHeader()
	if err != nil {
		return pinned{}, false, err
	}
	index := hdr.Root()
	hp.unpin()
	if index == page.InvalidIndex {
		return pinned{}, false, nil
	}

	for {
		p, err := t.pinPage(index)
		if err != nil {
			return pinned{}, false, err
		}
		if page.KindOf(p.buf) == page.KindLeaf {
			if _, err := t.asLeaf(p); err != nil {
				p.unpin()
				return pinned{}, false, err
			}
			return p, true, nil // caller must unpin
		}
		branch, err := t.asBranch(p)
		if err != nil {
			p.unpin()
			return pinned{}, false, err
		}
		index = pick(branch)
		p.unpin()
	}
}
