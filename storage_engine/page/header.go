package page

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// File header, page 0.
//
//	Offset  Size  Field
//	0       1     kind (KindHeader)
//	1       7     reserved
//	8       8     magic "PAGEDKV\x00"
//	16      4     format version
//	20      4     page size
//	24      4     key size
//	28      4     value size
//	32      4     records per page (0 = computed)
//	36      4     tree height (0 = empty)
//	40      8     root page
//	48      8     free page (reserved, always 0)
//	56      8     record count
//	64      16    store id
//	80      8     xxhash64 of bytes [0:80]
const (
	Magic                = "PAGEDKV\x00"
	FormatVersion uint32 = 1

	hdrMagicOff     = 8
	hdrVersionOff   = 16
	hdrPageSizeOff  = 20
	hdrKeySizeOff   = 24
	hdrValueSizeOff = 28
	hdrRecordsOff   = 32
	hdrHeightOff    = 36
	hdrRootOff      = 40
	hdrFreeOff      = 48
	hdrCountOff     = 56
	hdrIDOff        = 64
	hdrChecksumOff  = 80

	// HeaderSize is the number of meaningful bytes at the start of page 0.
	HeaderSize = 88
)

// Header views page 0. Every setter reseals the checksum, so the page is
// always self-consistent between calls.
type Header struct {
	buf []byte
}

// InitHeader formats buf as a fresh file header for layout l.
func InitHeader(buf []byte, l Layout, id uuid.UUID) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortBuffer
	}
	clear(buf[:HeaderSize])
	buf[kindOff] = byte(KindHeader)
	copy(buf[hdrMagicOff:hdrMagicOff+8], Magic)
	binary.LittleEndian.PutUint32(buf[hdrVersionOff:], FormatVersion)
	binary.LittleEndian.PutUint32(buf[hdrPageSizeOff:], uint32(l.PageSize))
	binary.LittleEndian.PutUint32(buf[hdrKeySizeOff:], uint32(l.KeySize))
	binary.LittleEndian.PutUint32(buf[hdrValueSizeOff:], uint32(l.ValueSize))
	binary.LittleEndian.PutUint32(buf[hdrRecordsOff:], uint32(l.RecordsPerPage))
	copy(buf[hdrIDOff:hdrIDOff+16], id[:])
	h := Header{buf: buf}
	h.Seal()
	return h, nil
}

// AsHeader checks the discriminator and wraps buf. It does not verify the
// checksum; call Verify for that.
func AsHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortBuffer
	}
	if err := expectKind(buf, KindHeader); err != nil {
		return Header{}, err
	}
	return Header{buf: buf}, nil
}

// ReadHeader wraps and fully validates a header buffer.
func ReadHeader(buf []byte) (Header, error) {
	h, err := AsHeader(buf)
	if err != nil {
		return Header{}, err
	}
	if err := h.Verify(); err != nil {
		return Header{}, err
	}
	return h, nil
}

func (h Header) checksum() uint64 {
	return xxhash.Sum64(h.buf[:hdrChecksumOff])
}

// Seal recomputes the checksum over the header fields.
func (h Header) Seal() {
	binary.LittleEndian.PutUint64(h.buf[hdrChecksumOff:], h.checksum())
}

// Verify checks magic, format version and checksum.
func (h Header) Verify() error {
	if magic := string(h.buf[hdrMagicOff : hdrMagicOff+8]); magic != Magic {
		return fmt.Errorf("%w: magic %q", ErrBadHeader, magic)
	}
	if v := binary.LittleEndian.Uint32(h.buf[hdrVersionOff:]); v != FormatVersion {
		return fmt.Errorf("%w: format version %d, this build reads %d", ErrBadHeader, v, FormatVersion)
	}
	stored := binary.LittleEndian.Uint64(h.buf[hdrChecksumOff:])
	if computed := h.checksum(); stored != computed {
		return fmt.Errorf("%w: stored=%016x computed=%016x", ErrChecksum, stored, computed)
	}
	return nil
}

func (h Header) Layout() Layout {
	return Layout{
		PageSize:       int(binary.LittleEndian.Uint32(h.buf[hdrPageSizeOff:])),
		KeySize:        int(binary.LittleEndian.Uint32(h.buf[hdrKeySizeOff:])),
		ValueSize:      int(binary.LittleEndian.Uint32(h.buf[hdrValueSizeOff:])),
		RecordsPerPage: int(binary.LittleEndian.Uint32(h.buf[hdrRecordsOff:])),
	}
}

func (h Header) ID() uuid.UUID {
	var id uuid.UUID
	copy(id[:], h.buf[hdrIDOff:hdrIDOff+16])
	return id
}

func (h Header) Root() Index { return getIndex(h.buf, hdrRootOff) }

func (h Header) SetRoot(idx Index) {
	putIndex(h.buf, hdrRootOff, idx)
	h.Seal()
}

// FreePage is reserved for a free list; nothing reclaims pages yet.
func (h Header) FreePage() Index { return getIndex(h.buf, hdrFreeOff) }

func (h Header) Count() uint64 {
	return binary.LittleEndian.Uint64(h.buf[hdrCountOff:])
}

func (h Header) SetCount(n uint64) {
	binary.LittleEndian.PutUint64(h.buf[hdrCountOff:], n)
	h.Seal()
}

func (h Header) Height() int {
	return int(binary.LittleEndian.Uint32(h.buf[hdrHeightOff:]))
}

func (h Header) SetHeight(n int) {
	binary.LittleEndian.PutUint32(h.buf[hdrHeightOff:], uint32(n))
	h.Seal()
}

func (h Header) Checksum() uint64 {
	return binary.LittleEndian.Uint64(h.buf[hdrChecksumOff:])
}
