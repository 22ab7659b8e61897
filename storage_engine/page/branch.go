package page

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Branch views an internal page: sorted (separator, left child) records and
// an implicit rightmost child. Record i's subtree holds keys <= Key(i) (and
// > Key(i-1)); Right holds keys > the last separator.
type Branch struct {
	buf    []byte
	layout Layout
	cap    int
	rec    int
}

// InitBranch formats buf as an empty branch with no right child.
func InitBranch(buf []byte, l Layout) Branch {
	clear(buf[:BranchHeaderSize])
	buf[kindOff] = byte(KindBranch)
	return wrapBranch(buf, l)
}

// AsBranch wraps buf if it is a branch page.
func AsBranch(buf []byte, l Layout) (Branch, error) {
	if len(buf) < l.PageSize {
		return Branch{}, ErrShortBuffer
	}
	if err := expectKind(buf, KindBranch); err != nil {
		return Branch{}, err
	}
	return wrapBranch(buf, l), nil
}

func wrapBranch(buf []byte, l Layout) Branch {
	return Branch{buf: buf, layout: l, cap: l.Capacity(), rec: l.BranchRecordSize()}
}

func (p Branch) Count() int    { return count(p.buf) }
func (p Branch) Capacity() int { return p.cap }
func (p Branch) Full() bool    { return p.Count() >= p.cap }

func (p Branch) Right() Index       { return getIndex(p.buf, branchRightOff) }
func (p Branch) SetRight(idx Index) { putIndex(p.buf, branchRightOff, idx) }

func (p Branch) recordOff(i int) int { return BranchHeaderSize + i*p.rec }
func (p Branch) leftOff(i int) int   { return p.recordOff(i) + slotSize(p.layout.KeySize) }

func (p Branch) Key(i int) []byte { return readSlot(p.buf, p.recordOff(i)) }

func (p Branch) Left(i int) Index {
	return Index(binary.LittleEndian.Uint64(p.buf[p.leftOff(i):]))
}

func (p Branch) SetLeft(i int, idx Index) {
	binary.LittleEndian.PutUint64(p.buf[p.leftOff(i):], uint64(idx))
}

// Child applies the descent rule: the first record whose separator is >= key
// selects its left child. The returned slot is that record's position, or -1
// when no separator matches and the walk falls through to Right.
func (p Branch) Child(key []byte) (Index, int) {
	n := p.Count()
	i := sort.Search(n, func(i int) bool { return bytes.Compare(p.Key(i), key) >= 0 })
	if i == n {
		return p.Right(), -1
	}
	return p.Left(i), i
}

// ChildAt returns the child referenced by slot (-1 is Right).
func (p Branch) ChildAt(slot int) Index {
	if slot < 0 {
		return p.Right()
	}
	return p.Left(slot)
}

// SetChildAt repoints slot (-1 is Right).
func (p Branch) SetChildAt(slot int, idx Index) {
	if slot < 0 {
		p.SetRight(idx)
		return
	}
	p.SetLeft(slot, idx)
}

// InsertAt opens a record at pos, shifting later records right. Callers keep
// the separators sorted; the tree always inserts directly in front of the
// slot that held the child being split.
func (p Branch) InsertAt(pos int, key []byte, left Index) error {
	n := p.Count()
	if n >= p.cap {
		return ErrPageFull
	}
	if pos < 0 || pos > n {
		pos = n
	}
	copy(p.buf[p.recordOff(pos+1):p.recordOff(n+1)], p.buf[p.recordOff(pos):p.recordOff(n)])
	writeSlot(p.buf, p.recordOff(pos), p.layout.KeySize, key)
	p.SetLeft(pos, left)
	setCount(p.buf, n+1)
	return nil
}

// Split keeps records [0, m) with m = n/2, adopts Left(m) as its own right
// child, and hands records (m, n) plus the old right child to the empty
// sibling. Key(m) is returned as the separator to promote: it bounds p from
// above and sibling from below.
func (p Branch) Split(sibling Branch) []byte {
	n := p.Count()
	m := n / 2
	promote := bytes.Clone(p.Key(m))

	copy(sibling.buf[BranchHeaderSize:], p.buf[p.recordOff(m+1):p.recordOff(n)])
	setCount(sibling.buf, n-m-1)
	sibling.SetRight(p.Right())

	p.SetRight(p.Left(m))
	clear(p.buf[p.recordOff(m):p.recordOff(n)])
	setCount(p.buf, m)
	return promote
}
