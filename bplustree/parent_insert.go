package bplus

import (
	"PagedKV/storage_engine/page"
)

// insertIntoParent records a split of the child at slot (-1 = right child).
// The child keeps the keys <= sep and the sibling took the rest, so the slot
// is repointed at the sibling and a new (sep -> child) record goes in front
// of it. The parent must not be full.
func (t *BPlusTree) insertIntoParent(parent page.Branch, slot int, child page.Index, sep []byte, sibling page.Index) error {
	pos := slot
	if slot < 0 {
		pos = parent.Count()
	}
	parent.SetChildAt(slot, sibling)
	return parent.InsertAt(pos, sep, child)
}
