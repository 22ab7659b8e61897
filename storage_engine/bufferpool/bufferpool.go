package bufferpool

import (
	"errors"
	"fmt"

	mappedfile "PagedKV/storage_engine/mapped_file"
	"PagedKV/storage_engine/page"

	"go.uber.org/zap"
)

/*
This file is the main file of the bufferpool
The buffer pool works on LRU based caching mechanism
and holds a reference on every resident page so its mapping stays alive
if page not found in the cache, the provider maps it and it is added in the cache for future access

Pages are identified by page.Index
Eviction only drops the pool's reference; it never flushes. Durability is the
job of FlushAllPages / the file's Sync.
*/

var ErrBadCapacity = errors.New("bufferpool: capacity must be at least 1")

// NewBufferPool creates a new buffer pool with the given capacity
func NewBufferPool(capacity int, file Provider, logger *zap.Logger) (*BufferPool, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrBadCapacity, capacity)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BufferPool{
		entries:  make([]entry, 0, capacity),
		capacity: capacity,
		file:     file,
		logger:   logger.Named("bufferpool"),
	}, nil
}

// FetchPage returns the page at index, mapping it on a miss.
// The returned handle carries its own reference; the caller must Release it.
func (bp *BufferPool) FetchPage(index page.Index) (*mappedfile.Page, error) {
	if pos := bp.find(index); pos >= 0 {
		bp.hits++
		bp.logger.Debug("hit", zap.Uint64("page", uint64(index)))
		bp.moveToFront(pos)
		return bp.entries[0].handle.Retain(), nil
	}

	bp.misses++
	bp.logger.Debug("miss", zap.Uint64("page", uint64(index)))
	if err := bp.makeRoom(); err != nil {
		return nil, err
	}

	handle, err := bp.file.Get(index)
	if err != nil {
		return nil, fmt.Errorf("failed to load page %d: %w", index, err)
	}
	bp.pushFront(index, handle)
	return handle.Retain(), nil
}

// NewPage appends a page to the file and caches it. The contents are
// whatever the file holds there (zeros for fresh space); callers format it.
func (bp *BufferPool) NewPage() (page.Index, *mappedfile.Page, error) {
	if err := bp.makeRoom(); err != nil {
		return 0, nil, err
	}

	index, handle, err := bp.file.Append()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to allocate page: %w", err)
	}
	bp.logger.Debug("new page", zap.Uint64("page", uint64(index)))
	bp.pushFront(index, handle)
	return index, handle.Retain(), nil
}

// FlushAllPages synchronously writes every resident page back to the file.
func (bp *BufferPool) FlushAllPages() error {
	bp.logger.Debug("flush all", zap.Int("resident", len(bp.entries)))
	for _, e := range bp.entries {
		if err := e.handle.Flush(); err != nil {
			return fmt.Errorf("failed to flush page %d: %w", e.index, err)
		}
	}
	return nil
}

// Close drops every resident page. Handles held by callers stay valid until
// they are released or the file closes.
func (bp *BufferPool) Close() error {
	var firstErr error
	for _, e := range bp.entries {
		if err := e.handle.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	bp.entries = bp.entries[:0]
	return firstErr
}

// makeRoom evicts the least recently used page when the pool is full.
func (bp *BufferPool) makeRoom() error {
	if len(bp.entries) < bp.capacity {
		return nil
	}
	last := len(bp.entries) - 1
	victim := bp.entries[last]
	bp.entries = bp.entries[:last]
	bp.evictions++
	bp.logger.Debug("evict", zap.Uint64("page", uint64(victim.index)), zap.Int32("refs", victim.handle.Refs()))
	if err := victim.handle.Release(); err != nil {
		return fmt.Errorf("failed to evict page %d: %w", victim.index, err)
	}
	return nil
}
