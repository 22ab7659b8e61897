package page

import (
	"bytes"
	"sort"
)

// Leaf views a leaf page: sorted (key, value) records plus sibling links.
type Leaf struct {
	buf    []byte
	layout Layout
	cap    int
	rec    int
}

// InitLeaf formats buf as an empty leaf with no siblings.
func InitLeaf(buf []byte, l Layout) Leaf {
	clear(buf[:LeafHeaderSize])
	buf[kindOff] = byte(KindLeaf)
	return wrapLeaf(buf, l)
}

// AsLeaf wraps buf if it is a leaf page.
func AsLeaf(buf []byte, l Layout) (Leaf, error) {
	if len(buf) < l.PageSize {
		return Leaf{}, ErrShortBuffer
	}
	if err := expectKind(buf, KindLeaf); err != nil {
		return Leaf{}, err
	}
	return wrapLeaf(buf, l), nil
}

func wrapLeaf(buf []byte, l Layout) Leaf {
	return Leaf{buf: buf, layout: l, cap: l.Capacity(), rec: l.LeafRecordSize()}
}

func (p Leaf) Count() int    { return count(p.buf) }
func (p Leaf) Capacity() int { return p.cap }
func (p Leaf) Full() bool    { return p.Count() >= p.cap }

func (p Leaf) Prev() Index         { return getIndex(p.buf, leafPrevOff) }
func (p Leaf) SetPrev(idx Index)   { putIndex(p.buf, leafPrevOff, idx) }
func (p Leaf) Next() Index         { return getIndex(p.buf, leafNextOff) }
func (p Leaf) SetNext(idx Index)   { putIndex(p.buf, leafNextOff, idx) }
func (p Leaf) recordOff(i int) int { return LeafHeaderSize + i*p.rec }
func (p Leaf) valueOff(i int) int  { return p.recordOff(i) + slotSize(p.layout.KeySize) }
func (p Leaf) Key(i int) []byte    { return readSlot(p.buf, p.recordOff(i)) }
func (p Leaf) Value(i int) []byte  { return readSlot(p.buf, p.valueOff(i)) }

// Search returns the position of the first record with key >= target and
// whether that record's key equals target.
func (p Leaf) Search(key []byte) (int, bool) {
	n := p.Count()
	i := sort.Search(n, func(i int) bool { return bytes.Compare(p.Key(i), key) >= 0 })
	return i, i < n && bytes.Equal(p.Key(i), key)
}

func (p Leaf) upperBound(key []byte) int {
	n := p.Count()
	return sort.Search(n, func(i int) bool { return bytes.Compare(p.Key(i), key) > 0 })
}

// Insert places (key, value) after every record with a key <= key and
// returns its position. Equal keys are kept, in insertion order.
func (p Leaf) Insert(key, value []byte) (int, error) {
	n := p.Count()
	if n >= p.cap {
		return -1, ErrPageFull
	}
	pos := p.upperBound(key)
	copy(p.buf[p.recordOff(pos+1):p.recordOff(n+1)], p.buf[p.recordOff(pos):p.recordOff(n)])
	writeSlot(p.buf, p.recordOff(pos), p.layout.KeySize, key)
	writeSlot(p.buf, p.valueOff(pos), p.layout.ValueSize, value)
	setCount(p.buf, n+1)
	return pos, nil
}

// Split moves the upper half of the records, [n/2, n), into the empty
// sibling and returns a copy of the largest key left behind. Every key in p
// is <= the separator; every key in sibling is >= it. Sibling links are the
// caller's job.
func (p Leaf) Split(sibling Leaf) []byte {
	n := p.Count()
	mid := n / 2
	copy(sibling.buf[LeafHeaderSize:], p.buf[p.recordOff(mid):p.recordOff(n)])
	setCount(sibling.buf, n-mid)
	clear(p.buf[p.recordOff(mid):p.recordOff(n)])
	setCount(p.buf, mid)
	return bytes.Clone(p.Key(mid - 1))
}
