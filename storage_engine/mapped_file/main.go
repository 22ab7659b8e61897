package mappedfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"PagedKV/storage_engine/page"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

/*
This is the main file of the mapped file.
It owns:
The OS file descriptor of the store
Every live memory mapping handed out as a *Page
File growth (truncate to extend, the OS zero fills)

A page is mapped on demand, one page-sized MAP_SHARED region per Get, so two
handles over the same index see each other's writes. The bufferpool decides how
many of these mappings stay alive at once.
*/

// Options configures Open.
type Options struct {
	// PageSize must be a multiple of the host page size. Zero means the host
	// page size.
	PageSize int

	// ReadOnly maps pages PROT_READ and never grows, msyncs or fsyncs the
	// file. The file must already exist.
	ReadOnly bool

	Logger *zap.Logger
}

// File is a backing file exposed page by page through memory mappings.
type File struct {
	file     *os.File
	path     string
	pageSize int
	size     int64
	live     map[*Page]struct{}
	logger   *zap.Logger
	readOnly bool
	closed   bool
}

// HostPageSize is the virtual memory page size of this machine; mapping
// offsets must be a multiple of it.
func HostPageSize() int {
	return unix.Getpagesize()
}

// Open opens or creates the file at path.
func Open(path string, opts Options) (*File, error) {
	host := HostPageSize()
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = host
	}
	if pageSize < 0 || pageSize%host != 0 {
		return nil, fmt.Errorf("%w: %d is not a multiple of host page size %d", ErrBadPageSize, pageSize, host)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	flag := os.O_RDWR | os.O_CREATE
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, &IOError{Op: "stat", Path: path, Err: err}
	}

	f := &File{
		file:     file,
		path:     path,
		pageSize: pageSize,
		size:     stat.Size(),
		live:     make(map[*Page]struct{}),
		logger:   logger.Named("mappedfile"),
		readOnly: opts.ReadOnly,
	}
	f.logger.Debug("opened", zap.String("path", path), zap.Int("page_size", pageSize), zap.Int64("size", f.size))
	return f, nil
}

// ReadPrefix reads up to n bytes from the start of the file at path without
// mapping it. A missing or empty file yields (nil, nil). Used to learn the
// page size recorded in a header before the file is opened for mapping.
func ReadPrefix(path string, n int) ([]byte, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	buf := make([]byte, n)
	read, err := file.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	if read == 0 {
		return nil, nil
	}
	return buf[:read], nil
}

func (f *File) Path() string   { return f.path }
func (f *File) PageSize() int  { return f.pageSize }
func (f *File) ReadOnly() bool { return f.readOnly }

// Size is the current length of the backing file in bytes.
func (f *File) Size() int64 { return f.size }

// PageCount is the number of pages the file currently spans; a trailing
// partial page counts as one.
func (f *File) PageCount() uint64 {
	ps := int64(f.pageSize)
	return uint64((f.size + ps - 1) / ps)
}

// LiveMappings is the number of pages currently mapped.
func (f *File) LiveMappings() int { return len(f.live) }

// Get maps the page at index, growing the file first if it is too short.
// The returned handle holds one reference.
func (f *File) Get(index page.Index) (*Page, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if err := f.ensureSize(int64(index+1)*int64(f.pageSize), index); err != nil {
		return nil, err
	}
	return f.mapPage(index)
}

// Append extends the file by one page and maps it.
func (f *File) Append() (page.Index, *Page, error) {
	if f.closed {
		return 0, nil, ErrClosed
	}
	index := page.Index(f.PageCount())
	if err := f.ensureSize(int64(index+1)*int64(f.pageSize), index); err != nil {
		return 0, nil, err
	}
	p, err := f.mapPage(index)
	if err != nil {
		return 0, nil, err
	}
	return index, p, nil
}

func (f *File) ensureSize(want int64, index page.Index) error {
	if f.size >= want {
		return nil
	}
	if f.readOnly {
		return fmt.Errorf("%w: page %d is past the end of %s", ErrReadOnly, index, f.path)
	}
	if err := f.file.Truncate(want); err != nil {
		return &IOError{Op: "extend", Path: f.path, Index: index, Err: err}
	}
	f.logger.Debug("grew file", zap.Int64("from", f.size), zap.Int64("to", want))
	f.size = want
	return nil
}

func (f *File) mapPage(index page.Index) (*Page, error) {
	offset := int64(index) * int64(f.pageSize)
	prot := unix.PROT_READ | unix.PROT_WRITE
	if f.readOnly {
		prot = unix.PROT_READ
	}
	data, err := unix.Mmap(int(f.file.Fd()), offset, f.pageSize, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, &IOError{Op: "map", Path: f.path, Index: index, Err: err}
	}
	p := &Page{file: f, index: index, data: data, refs: 1}
	f.live[p] = struct{}{}
	return p, nil
}

func (f *File) unmap(p *Page) error {
	delete(f.live, p)
	data := p.data
	p.data = nil
	if err := unix.Munmap(data); err != nil {
		return &IOError{Op: "unmap", Path: f.path, Index: p.index, Err: err}
	}
	return nil
}

// Sync writes every live mapping back to the file and fsyncs it. It does
// nothing on a read-only file.
func (f *File) Sync() error {
	if f.closed {
		return ErrClosed
	}
	if f.readOnly {
		return nil
	}
	for p := range f.live {
		if err := p.Flush(); err != nil {
			return err
		}
	}
	if err := f.file.Sync(); err != nil {
		return &IOError{Op: "sync", Path: f.path, Err: err}
	}
	return nil
}

// Close unmaps every page still alive and closes the file. Handles that
// outlive Close report ErrClosed.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	var firstErr error
	for p := range f.live {
		if err := f.unmap(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = &IOError{Op: "close", Path: f.path, Err: err}
	}
	f.logger.Debug("closed", zap.String("path", f.path))
	return firstErr
}
