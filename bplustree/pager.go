package bplus

import (
	"fmt"

	mappedfile "PagedKV/storage_engine/mapped_file"
	"PagedKV/storage_engine/page"

	"go.uber.org/zap"
)

/*
Page access for the tree. Every page goes through the buffer pool; the tree
holds its own reference on a page only for the duration of one call and
unpins it before returning.
*/

// pinned is a page the tree is currently working on.
type pinned struct {
	index  page.Index
	handle *mappedfile.Page
	buf    []byte
	logger *zap.Logger
}

// unpin drops the tree's reference. A failed release is logged and returned;
// deferred callers only get the log line.
func (p pinned) unpin() error {
	if err := p.handle.Release(); err != nil {
		p.logger.Warn("unpin failed", zap.Uint64("page", uint64(p.index)), zap.Error(err))
		return err
	}
	return nil
}

// pinPage fetches index through the cache. Caller must unpin.
func (t *BPlusTree) pinPage(index page.Index) (pinned, error) {
	handle, err := t.cache.FetchPage(index)
	if err != nil {
		return pinned{}, err
	}
	buf, err := handle.Bytes()
	if err != nil {
		handle.Release()
		return pinned{}, err
	}
	return pinned{index: index, handle: handle, buf: buf, logger: t.logger}, nil
}

// allocPage appends a page to the file. Contents are zero; the caller formats
// it. Caller must unpin.
func (t *BPlusTree) allocPage() (pinned, error) {
	index, handle, err := t.cache.NewPage()
	if err != nil {
		return pinned{}, err
	}
	buf, err := handle.Bytes()
	if err != nil {
		handle.Release()
		return pinned{}, err
	}
	return pinned{index: index, handle: handle, buf: buf, logger: t.logger}, nil
}

func (t *BPlusTree) pinHeader() (pinned, page.Header, error) {
	p, err := t.pinPage(headerPage)
	if err != nil {
		return pinned{}, page.Header{}, err
	}
	hdr, err := page.AsHeader(p.buf)
	if err != nil {
		p.unpin()
		return pinned{}, page.Header{}, fmt.Errorf("%w: page 0: %v", ErrCorrupt, err)
	}
	return p, hdr, nil
}

func (t *BPlusTree) asLeaf(p pinned) (page.Leaf, error) {
	leaf, err := page.AsLeaf(p.buf, t.layout)
	if err != nil {
		return page.Leaf{}, fmt.Errorf("%w: page %d: %v", ErrCorrupt, p.index, err)
	}
	return leaf, nil
}

func (t *BPlusTree) asBranch(p pinned) (page.Branch, error) {
	branch, err := page.AsBranch(p.buf, t.layout)
	if err != nil {
		return page.Branch{}, fmt.Errorf("%w: page %d: %v", ErrCorrupt, p.index, err)
	}
	return branch, nil
}

// isFull reports whether the leaf or branch in p has no spare record.
func (t *BPlusTree) isFull(p pinned) (bool, error) {
	switch page.KindOf(p.buf) {
	case page.KindLeaf:
		leaf, err := t.asLeaf(p)
		return err == nil && leaf.Full(), err
	case page.KindBranch:
		branch, err := t.asBranch(p)
		return err == nil && branch.Full(), err
	default:
		return false, fmt.Errorf("%w: page %d has kind %s inside the tree", ErrCorrupt, p.index, page.KindOf(p.buf))
	}
}
