package mappedfile

import (
	"errors"
	"fmt"
	"syscall"

	"PagedKV/storage_engine/page"
)

var (
	// ErrClosed is returned when a page handle is used after it was released
	// or after its file was closed.
	ErrClosed = errors.New("mappedfile: file or page closed")

	ErrBadPageSize = errors.New("mappedfile: bad page size")

	// ErrReadOnly is returned when a file opened read-only would have to be
	// grown.
	ErrReadOnly = errors.New("mappedfile: file is read-only")
)

// IOError wraps a failed OS call with the operation and page it served.
type IOError struct {
	Op    string // open, stat, extend, map, unmap, sync, close, read
	Path  string
	Index page.Index
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("mappedfile: %s %s (page %d): %v", e.Op, e.Path, e.Index, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Errno returns the OS error code behind the failure, or 0 if the cause was
// not a system call error.
func (e *IOError) Errno() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}
