package bufferpool

import (
	mappedfile "PagedKV/storage_engine/mapped_file"
	"PagedKV/storage_engine/page"
)

/*
This file holds helper functions for the bufferpool
*/

// Stats returns current buffer pool statistics
func (bp *BufferPool) Stats() BufferPoolStats {
	return BufferPoolStats{
		Hits:      bp.hits,
		Misses:    bp.misses,
		Evictions: bp.evictions,
		Resident:  len(bp.entries),
		Capacity:  bp.capacity,
	}
}

// Size returns the current number of pages in the buffer pool
func (bp *BufferPool) Size() int {
	return len(bp.entries)
}

// Capacity returns the maximum capacity of the buffer pool
func (bp *BufferPool) Capacity() int {
	return bp.capacity
}

// Contains reports whether index is resident, without touching recency.
func (bp *BufferPool) Contains(index page.Index) bool {
	return bp.find(index) >= 0
}

// Resident lists the resident page indexes, most recently used first.
func (bp *BufferPool) Resident() []page.Index {
	out := make([]page.Index, len(bp.entries))
	for i, e := range bp.entries {
		out[i] = e.index
	}
	return out
}

func (bp *BufferPool) find(index page.Index) int {
	for i, e := range bp.entries {
		if e.index == index {
			return i
		}
	}
	return -1
}

// moveToFront makes entry pos the most recently used
func (bp *BufferPool) moveToFront(pos int) {
	if pos == 0 {
		return
	}
	e := bp.entries[pos]
	copy(bp.entries[1:pos+1], bp.entries[:pos])
	bp.entries[0] = e
}

func (bp *BufferPool) pushFront(index page.Index, handle *mappedfile.Page) {
	bp.entries = append(bp.entries, entry{})
	copy(bp.entries[1:], bp.entries)
	bp.entries[0] = entry{index: index, handle: handle}
}
