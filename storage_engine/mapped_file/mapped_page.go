package mappedfile

import (
	"PagedKV/storage_engine/page"

	"golang.org/x/sys/unix"
)

// Page is a reference-counted view of one mapped page. The mapping is
// released when the last reference goes away or when the File closes,
// whichever comes first; after that Bytes returns ErrClosed.
type Page struct {
	file  *File
	index page.Index
	data  []byte
	refs  int32
}

func (p *Page) Index() page.Index { return p.index }

// Bytes returns the mapped memory. Writes go straight to the shared mapping.
func (p *Page) Bytes() ([]byte, error) {
	if p.data == nil || p.file.closed {
		return nil, ErrClosed
	}
	return p.data, nil
}

// Retain adds a reference and returns p for chaining.
func (p *Page) Retain() *Page {
	p.refs++
	return p
}

// Refs is the current reference count.
func (p *Page) Refs() int32 { return p.refs }

// Release drops a reference, unmapping the page when none remain.
func (p *Page) Release() error {
	if p.refs <= 0 {
		return ErrClosed
	}
	p.refs--
	if p.refs > 0 || p.data == nil {
		return nil
	}
	return p.file.unmap(p)
}

// Flush synchronously writes the page back to the file. Pages of a read-only
// file are never dirty and are left alone.
func (p *Page) Flush() error {
	data, err := p.Bytes()
	if err != nil {
		return err
	}
	if p.file.readOnly {
		return nil
	}
	if err := unix.Msync(data, unix.MS_SYNC); err != nil {
		return &IOError{Op: "sync", Path: p.file.path, Index: p.index, Err: err}
	}
	return nil
}
