package bufferpool

import (
	mappedfile "PagedKV/storage_engine/mapped_file"
	"PagedKV/storage_engine/page"

	"go.uber.org/zap"
)

// ############################################# BUFFER POOL #############################################

// BufferPool keeps a bounded set of mapped pages alive with LRU eviction.
// It is not safe for concurrent use; the tree above it serialises access.
type BufferPool struct {
	entries  []entry // most recently used first
	capacity int
	file     Provider
	logger   *zap.Logger

	hits      uint64
	misses    uint64
	evictions uint64
}

type entry struct {
	index  page.Index
	handle *mappedfile.Page
}

// Provider is the part of the mapped file the pool needs.
// *mappedfile.File implements it.
type Provider interface {
	Get(index page.Index) (*mappedfile.Page, error)
	Append() (page.Index, *mappedfile.Page, error)
}

// BufferPoolStats is a snapshot of the pool counters.
type BufferPoolStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Resident  int
	Capacity  int
}

// HitRate is hits over total lookups, 0 before the first lookup.
func (s BufferPoolStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
