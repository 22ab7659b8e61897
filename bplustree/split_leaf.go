package bplus

import (
	"PagedKV/storage_engine/page"

	"go.uber.org/zap"
)

// splitLeaf moves the upper half of a full leaf into a new sibling, splices
// the sibling into the leaf chain after it and returns the separator (the
// largest key left behind) with the sibling's index.
func (t *BPlusTree) splitLeaf(p pinned) ([]byte, page.Index, error) {
	leaf, err := t.asLeaf(p)
	if err != nil {
		return nil, 0, err
	}

	sp, err := t.allocPage()
	if err != nil {
		return nil, 0, err
	}
	defer sp.unpin()
	sibling := page.InitLeaf(sp.buf, t.layout)

	sep := leaf.Split(sibling)

	// leaf <-> sibling <-> old next
	next := leaf.Next()
	sibling.SetPrev(p.index)
	sibling.SetNext(next)
	leaf.SetNext(sp.index)
	if next != page.InvalidIndex {
		np, err := t.pinPage(next)
		if err != nil {
			return nil, 0, err
		}
		nextLeaf, err := t.asLeaf(np)
		if err == nil {
			nextLeaf.SetPrev(sp.index)
		}
		np.unpin()
		if err != nil {
			return nil, 0, err
		}
	}

	t.stats.leafSplits++
	t.logger.Debug("split leaf",
		zap.Uint64("page", uint64(p.index)),
		zap.Uint64("sibling", uint64(sp.index)),
		zap.Int("left", leaf.Count()),
		zap.Int("right", sibling.Count()))
	return sep, sp.index, nil
}
