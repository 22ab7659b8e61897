package bplus

import (
	"PagedKV/storage_engine/page"

	"go.uber.org/zap"
)

// splitInternal splits a full branch page and returns the promoted middle
// key with the new sibling's index.
func (t *BPlusTree) splitInternal(p pinned) ([]byte, page.Index, error) {
	branch, err := t.asBranch(p)
	if err != nil {
		return nil, 0, err
	}

	sp, err := t.allocPage()
	if err != nil {
		return nil, 0, err
	}
	defer sp.unpin()
	sibling := page.InitBranch(sp.buf, t.layout)

	// keys: branch keeps [0:mid) and adopts left[mid] as its right child,
	// promote key[mid], sibling gets (mid, end] and the old right child
	promote := branch.Split(sibling)

	t.stats.branchSplits++
	t.logger.Debug("split branch",
		zap.Uint64("page", uint64(p.index)),
		zap.Uint64("sibling", uint64(sp.index)),
		zap.Int("left", branch.Count()),
		zap.Int("right", sibling.Count()))
	return promote, sp.index, nil
}
