package page

import (
	"fmt"
	"math"
)

const (
	DefaultKeySize   = 32
	DefaultValueSize = 96

	// MinRecordsPerPage is the smallest fan-out that keeps the tree balanced:
	// a branch split promotes one separator and both halves must keep at
	// least one more.
	MinRecordsPerPage = 3
)

// Layout fixes the record geometry of a store. It is written into the file
// header on creation and read back on open.
type Layout struct {
	PageSize  int
	KeySize   int
	ValueSize int

	// RecordsPerPage pins the fan-out of leaf and branch pages below the
	// computed capacity. Zero means use Capacity().
	RecordsPerPage int
}

// Capacity is the number of fixed-size records that fit in a page after its
// header.
func Capacity(pageSize, headerSize, recordSize int) int {
	if recordSize <= 0 || pageSize <= headerSize {
		return 0
	}
	return (pageSize - headerSize) / recordSize
}

func (l Layout) LeafRecordSize() int {
	return slotSize(l.KeySize) + slotSize(l.ValueSize)
}

func (l Layout) BranchRecordSize() int {
	return slotSize(l.KeySize) + 8
}

func (l Layout) LeafCapacity() int {
	return Capacity(l.PageSize, LeafHeaderSize, l.LeafRecordSize())
}

func (l Layout) BranchCapacity() int {
	return Capacity(l.PageSize, BranchHeaderSize, l.BranchRecordSize())
}

// Capacity is the records_per_page bound applied to both leaf and branch
// pages.
func (l Layout) Capacity() int {
	if l.RecordsPerPage > 0 {
		return l.RecordsPerPage
	}
	return min(l.LeafCapacity(), l.BranchCapacity())
}

// Validate checks the layout can hold a header page and at least
// MinRecordsPerPage records of either kind.
func (l Layout) Validate() error {
	if l.KeySize <= 0 || l.KeySize > math.MaxUint16 {
		return fmt.Errorf("key size %d out of range [1..%d]", l.KeySize, math.MaxUint16)
	}
	if l.ValueSize < 0 || l.ValueSize > math.MaxUint16 {
		return fmt.Errorf("value size %d out of range [0..%d]", l.ValueSize, math.MaxUint16)
	}
	if l.PageSize < HeaderSize {
		return fmt.Errorf("%w: page size %d smaller than file header (%d)", ErrPageTooSmall, l.PageSize, HeaderSize)
	}
	computed := min(l.LeafCapacity(), l.BranchCapacity())
	if computed < MinRecordsPerPage {
		return fmt.Errorf("%w: page size %d fits %d records of %d bytes",
			ErrPageTooSmall, l.PageSize, computed, l.LeafRecordSize())
	}
	if l.RecordsPerPage != 0 && (l.RecordsPerPage < MinRecordsPerPage || l.RecordsPerPage > computed) {
		return fmt.Errorf("records per page %d out of range [%d..%d]", l.RecordsPerPage, MinRecordsPerPage, computed)
	}
	return nil
}

func (l Layout) String() string {
	return fmt.Sprintf("page=%d key=%d value=%d records=%d", l.PageSize, l.KeySize, l.ValueSize, l.Capacity())
}
