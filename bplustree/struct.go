// Structure of the paged B+ Tree
/*
File
 ├── Page 0: header (root, height, count, layout, store id, checksum)
 ├── Branch pages (separator keys + left child indexes + right child)
 │      └── Child branch pages ...
 │             └── Leaf pages (keys + values + prev/next links)


- keys: sorted ascending order inside every page
- branch record i: child subtree holds keys <= key[i]; right holds the rest
- leaf pages linked with `prev`/`next` for range scans
- all leaf pages at same depth
- every page holds at most layout.Capacity() records

*/
package bplus

import (
	"errors"
	"sync"

	"PagedKV/storage_engine/bufferpool"
	mappedfile "PagedKV/storage_engine/mapped_file"
	"PagedKV/storage_engine/page"

	"go.uber.org/zap"
)

const (
	headerPage = page.Index(0)

	DefaultCachePages = 16
)

var (
	ErrKeyTooLarge    = errors.New("bplus: key larger than key size")
	ErrValueTooLarge  = errors.New("bplus: value larger than value size")
	ErrEmptyKey       = errors.New("bplus: empty key")
	ErrLayoutMismatch = errors.New("bplus: options conflict with the layout on disk")
	ErrCorrupt        = errors.New("bplus: corrupt tree")
	ErrNoStore        = errors.New("bplus: no store at path")
	ErrReadOnly       = mappedfile.ErrReadOnly
)

// Options configures Open. Zero values pick defaults; on an existing file the
// layout stored in the header is used and any non-zero layout field must
// match it.
type Options struct {
	PageSize       int // 0 = host page size
	KeySize        int // 0 = page.DefaultKeySize
	ValueSize      int // 0 = page.DefaultValueSize
	RecordsPerPage int // 0 = computed from the page geometry

	CachePages      int // resident mapped pages, 0 = DefaultCachePages
	LookupCacheSize int // Search cache entries, 0 disables it

	// ReadOnly opens an existing store without ever writing to it: no header
	// is formatted, Insert fails and Close does not sync.
	ReadOnly bool

	Logger *zap.Logger
}

type BPlusTree struct {
	file   *mappedfile.File
	cache  *bufferpool.BufferPool
	lookup *lookupCache
	layout page.Layout
	logger *zap.Logger
	stats  counters
	closed bool
	mu     sync.Mutex

	readOnly bool
}

// counters are bumped by the insert path.
type counters struct {
	leafSplits    uint64
	branchSplits  uint64
	rootGrowths   uint64
	leftDescents  uint64
	rightDescents uint64
}

// Stats is a snapshot of the tree and the layers below it.
type Stats struct {
	Count  uint64
	Height int
	Pages  uint64
	Bytes  int64

	LeafSplits   uint64
	BranchSplits uint64
	RootGrowths  uint64

	// Branch steps taken by inserts: a separator matched (left) or the walk
	// fell through to the right child.
	LeftDescents  uint64
	RightDescents uint64

	Cache        bufferpool.BufferPoolStats
	LookupHits   uint64
	LookupMisses uint64
}
