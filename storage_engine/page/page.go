package page

import (
	"encoding/binary"
	"errors"
	"fmt"
)

/*
This package holds the on-disk layout of every page kind the store writes.
Nothing here does I/O: each type wraps a page-sized byte slice (normally a
live mapping handed out by the mapped file) and reads/writes fields in place.

Every page starts with a one byte kind discriminator, so a raw buffer is only
ever viewed as a leaf, branch or header through the checked casts AsLeaf,
AsBranch and AsHeader.

All integers are little endian regardless of host.
*/

// Index is the zero-based position of a page inside the backing file.
// Page 0 is always the file header, so 0 doubles as "no page".
type Index uint64

const InvalidIndex Index = 0

// Kind identifies what a page holds. Stored at byte 0 of every page.
type Kind uint8

const (
	KindUnused Kind = iota // freshly extended, never initialised
	KindHeader
	KindLeaf
	KindBranch
)

func (k Kind) String() string {
	switch k {
	case KindUnused:
		return "unused"
	case KindHeader:
		return "header"
	case KindLeaf:
		return "leaf"
	case KindBranch:
		return "branch"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

var (
	ErrWrongKind    = errors.New("page: wrong page kind")
	ErrPageTooSmall = errors.New("page: page too small for three records")
	ErrPageFull     = errors.New("page: page full")
	ErrBadHeader    = errors.New("page: bad file header")
	ErrChecksum     = errors.New("page: header checksum mismatch")
	ErrShortBuffer  = errors.New("page: buffer shorter than page")
)

// KindOf reports the discriminator of a raw page buffer.
func KindOf(buf []byte) Kind {
	if len(buf) == 0 {
		return KindUnused
	}
	return Kind(buf[0])
}

func expectKind(buf []byte, want Kind) error {
	if got := KindOf(buf); got != want {
		return fmt.Errorf("%w: want %s, got %s", ErrWrongKind, want, got)
	}
	return nil
}

// Common node header, shared by leaf and branch pages:
//
//	[0]     kind
//	[1:4]   reserved
//	[4:8]   count   uint32
//	leaf:   [8:16] prev uint64, [16:24] next uint64
//	branch: [8:16] right uint64
const (
	kindOff  = 0
	countOff = 4

	leafPrevOff    = 8
	leafNextOff    = 16
	branchRightOff = 8

	LeafHeaderSize   = 24
	BranchHeaderSize = 16
)

func count(buf []byte) int {
	return int(binary.LittleEndian.Uint32(buf[countOff:]))
}

func setCount(buf []byte, n int) {
	binary.LittleEndian.PutUint32(buf[countOff:], uint32(n))
}

func getIndex(buf []byte, off int) Index {
	return Index(binary.LittleEndian.Uint64(buf[off:]))
}

func putIndex(buf []byte, off int, idx Index) {
	binary.LittleEndian.PutUint64(buf[off:], uint64(idx))
}

// Variable length data lives in a fixed-width slot: a uint16 length followed
// by width bytes. Unused tail bytes are zeroed so pages compare byte-for-byte.
const slotLenSize = 2

func slotSize(width int) int { return slotLenSize + width }

func readSlot(buf []byte, off int) []byte {
	n := int(binary.LittleEndian.Uint16(buf[off:]))
	start := off + slotLenSize
	return buf[start : start+n : start+n]
}

func writeSlot(buf []byte, off, width int, data []byte) {
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(data)))
	start := off + slotLenSize
	copy(buf[start:], data)
	clear(buf[start+len(data) : start+width])
}
