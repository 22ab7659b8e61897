package bplus

import (
	"errors"
	"fmt"

	"PagedKV/storage_engine/bufferpool"
	mappedfile "PagedKV/storage_engine/mapped_file"
	"PagedKV/storage_engine/page"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Open opens the store at path, creating it with a fresh header if the file
// is missing or empty. With opts.ReadOnly a missing or empty file is an
// ErrNoStore error instead.
func Open(path string, opts Options) (*BPlusTree, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("bplustree")

	prefix, err := mappedfile.ReadPrefix(path, page.HeaderSize)
	if err != nil {
		return nil, err
	}

	fresh := prefix == nil
	if fresh && opts.ReadOnly {
		return nil, fmt.Errorf("open %s: %w", path, ErrNoStore)
	}
	var layout page.Layout
	if fresh {
		layout = defaultLayout(opts)
	} else {
		layout, err = diskLayout(prefix, opts)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	file, err := mappedfile.Open(path, mappedfile.Options{
		PageSize: layout.PageSize,
		ReadOnly: opts.ReadOnly,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	cachePages := opts.CachePages
	if cachePages == 0 {
		cachePages = DefaultCachePages
	}
	cache, err := bufferpool.NewBufferPool(cachePages, file, logger)
	if err != nil {
		file.Close()
		return nil, err
	}

	lookup, err := newLookupCache(opts.LookupCacheSize)
	if err != nil {
		file.Close()
		return nil, err
	}

	t := &BPlusTree{
		file:     file,
		cache:    cache,
		lookup:   lookup,
		layout:   layout,
		logger:   logger,
		readOnly: opts.ReadOnly,
	}
	if err := t.loadHeader(fresh); err != nil {
		t.lookup.close()
		cache.Close()
		file.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	logger.Debug("opened", zap.String("path", path), zap.Bool("created", fresh), zap.Stringer("layout", layout))
	return t, nil
}

func defaultLayout(opts Options) page.Layout {
	l := page.Layout{
		PageSize:       opts.PageSize,
		KeySize:        opts.KeySize,
		ValueSize:      opts.ValueSize,
		RecordsPerPage: opts.RecordsPerPage,
	}
	if l.PageSize == 0 {
		l.PageSize = mappedfile.HostPageSize()
	}
	if l.KeySize == 0 {
		l.KeySize = page.DefaultKeySize
	}
	if l.ValueSize == 0 {
		l.ValueSize = page.DefaultValueSize
	}
	return l
}

// diskLayout reads the layout out of an existing header and checks that the
// explicitly requested options agree with it.
func diskLayout(prefix []byte, opts Options) (page.Layout, error) {
	hdr, err := page.ReadHeader(prefix)
	if err != nil {
		if errors.Is(err, page.ErrShortBuffer) || errors.Is(err, page.ErrWrongKind) {
			return page.Layout{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return page.Layout{}, err
	}
	l := hdr.Layout()
	mismatch := func(name string, want, got int) error {
		return fmt.Errorf("%w: %s is %d on disk, options ask for %d", ErrLayoutMismatch, name, got, want)
	}
	if opts.PageSize != 0 && opts.PageSize != l.PageSize {
		return page.Layout{}, mismatch("page size", opts.PageSize, l.PageSize)
	}
	if opts.KeySize != 0 && opts.KeySize != l.KeySize {
		return page.Layout{}, mismatch("key size", opts.KeySize, l.KeySize)
	}
	if opts.ValueSize != 0 && opts.ValueSize != l.ValueSize {
		return page.Layout{}, mismatch("value size", opts.ValueSize, l.ValueSize)
	}
	if opts.RecordsPerPage != 0 && opts.RecordsPerPage != l.RecordsPerPage {
		return page.Layout{}, mismatch("records per page", opts.RecordsPerPage, l.RecordsPerPage)
	}
	return l, nil
}

// loadHeader formats page 0 on a fresh file, or verifies it through the
// mapping on an existing one.
func (t *BPlusTree) loadHeader(fresh bool) error {
	p, err := t.pinPage(headerPage)
	if err != nil {
		return err
	}
	defer p.unpin()

	if fresh {
		hdr, err := page.InitHeader(p.buf, t.layout, uuid.New())
		if err != nil {
			return err
		}
		t.logger.Debug("initialised header", zap.Stringer("id", hdr.ID()))
		return nil
	}
	_, err = page.ReadHeader(p.buf)
	return err
}

// Sync flushes every mapped page and fsyncs the file.
func (t *BPlusTree) Sync() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return mappedfile.ErrClosed
	}
	return t.file.Sync()
}

// Close syncs, drops the cache and unmaps the file. Closing twice is a no-op.
// A read-only tree is not synced.
func (t *BPlusTree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var syncErr error
	if !t.readOnly {
		syncErr = t.file.Sync()
	}
	t.lookup.close()
	cacheErr := t.cache.Close()
	closeErr := t.file.Close()
	t.logger.Debug("closed", zap.String("path", t.file.Path()))
	return errors.Join(syncErr, cacheErr, closeErr)
}

func (t *BPlusTree) Layout() page.Layout { return t.layout }
func (t *BPlusTree) Path() string        { return t.file.Path() }

// Count is the number of records stored, duplicates included.
func (t *BPlusTree) Count() (uint64, error) {
	var n uint64
	err := t.readHeader(func(h page.Header) { n = h.Count() })
	return n, err
}

// Root is the index of the root page, page.InvalidIndex while empty.
func (t *BPlusTree) Root() (page.Index, error) {
	var root page.Index
	err := t.readHeader(func(h page.Header) { root = h.Root() })
	return root, err
}

// Height is the number of levels, 0 while empty and 1 for a lone leaf.
func (t *BPlusTree) Height() (int, error) {
	var height int
	err := t.readHeader(func(h page.Header) { height = h.Height() })
	return height, err
}

// ID is the store identity written at creation.
func (t *BPlusTree) ID() (uuid.UUID, error) {
	var id uuid.UUID
	err := t.readHeader(func(h page.Header) { id = h.ID() })
	return id, err
}

func (t *BPlusTree) readHeader(fn func(page.Header)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return mappedfile.ErrClosed
	}
	p, hdr, err := t.pinHeader()
	if err != nil {
		return err
	}
	defer p.unpin()
	fn(hdr)
	return nil
}

// Stats snapshots the tree counters together with cache statistics.
func (t *BPlusTree) Stats() (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Stats{}, mappedfile.ErrClosed
	}

	p, hdr, err := t.pinHeader()
	if err != nil {
		return Stats{}, err
	}
	defer p.unpin()

	s := Stats{
		Count:         hdr.Count(),
		Height:        hdr.Height(),
		Pages:         t.file.PageCount(),
		Bytes:         t.file.Size(),
		LeafSplits:    t.stats.leafSplits,
		BranchSplits:  t.stats.branchSplits,
		RootGrowths:   t.stats.rootGrowths,
		LeftDescents:  t.stats.leftDescents,
		RightDescents: t.stats.rightDescents,
		Cache:         t.cache.Stats(),
	}
	s.LookupHits, s.LookupMisses = t.lookup.metrics()
	return s, nil
}
