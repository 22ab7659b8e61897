package bplus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mappedfile "PagedKV/storage_engine/mapped_file"
	"PagedKV/storage_engine/page"
)

func smallOptions(records int) Options {
	return Options{KeySize: 8, ValueSize: 16, RecordsPerPage: records, CachePages: 8}
}

func openTestTree(t *testing.T, opts Options) (*BPlusTree, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.dat")
	tree, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	t.Cleanup(func() { tree.Close() })
	return tree, path
}

func intKey(n int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func intValue(n int) []byte {
	return []byte(fmt.Sprintf("v%d", n))
}

func mustInsert(t *testing.T, tree *BPlusTree, n int) {
	t.Helper()
	if err := tree.Insert(intKey(n), intValue(n)); err != nil {
		t.Fatalf("Insert(%d): %v", n, err)
	}
}

// scanAll returns every key in iteration order.
func scanAll(t *testing.T, tree *BPlusTree) [][]byte {
	t.Helper()
	it, err := tree.First()
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	defer it.Close()
	var keys [][]byte
	for ok := it.Valid(); ok; ok = it.Next() {
		keys = append(keys, it.Key())
	}
	if it.Err() != nil {
		t.Fatalf("scan: %v", it.Err())
	}
	return keys
}

func rootKind(t *testing.T, tree *BPlusTree) page.Kind {
	t.Helper()
	root, err := tree.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	p, err := tree.pinPage(root)
	if err != nil {
		t.Fatalf("pin root: %v", err)
	}
	defer p.unpin()
	return page.KindOf(p.buf)
}

func rootIsFull(t *testing.T, tree *BPlusTree) bool {
	t.Helper()
	root, err := tree.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	p, err := tree.pinPage(root)
	if err != nil {
		t.Fatalf("pin root: %v", err)
	}
	defer p.unpin()
	full, err := tree.isFull(p)
	if err != nil {
		t.Fatalf("isFull: %v", err)
	}
	return full
}

// checkHeightBound fails the test if a tree holding n keys is taller than a
// B+ tree with two children per branch could be.
func checkHeightBound(t *testing.T, tree *BPlusTree, n int) {
	t.Helper()
	height, err := tree.Height()
	if err != nil {
		t.Fatalf("Height: %v", err)
	}
	limit := int(2*math.Log2(float64(n))) + 2
	if height > limit {
		t.Fatalf("height %d for %d keys, limit %d", height, n, limit)
	}
}

func TestEmptyTree(t *testing.T) {
	tree, _ := openTestTree(t, smallOptions(5))

	if root, _ := tree.Root(); root != page.InvalidIndex {
		t.Fatalf("empty tree root = %d", root)
	}
	if h, _ := tree.Height(); h != 0 {
		t.Fatalf("empty tree height = %d", h)
	}
	if _, found, err := tree.Search(intKey(1)); found || err != nil {
		t.Fatalf("Search on empty tree = %v, %v", found, err)
	}
	if keys := scanAll(t, tree); len(keys) != 0 {
		t.Fatalf("scan of empty tree returned %d keys", len(keys))
	}
	if err := tree.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestSequentialInsertBuildsMultiLevelTree(t *testing.T) {
	tree, _ := openTestTree(t, smallOptions(5))

	for i := 0; i < 6; i++ {
		mustInsert(t, tree, i)
	}
	if rootKind(t, tree) != page.KindBranch {
		t.Fatal("root should be a branch once more than 5 keys exist")
	}

	for i := 6; i < 10000; i++ {
		mustInsert(t, tree, i)
	}

	count, err := tree.Count()
	if err != nil || count != 10000 {
		t.Fatalf("Count = %d, %v, want 10000", count, err)
	}
	if height, _ := tree.Height(); height < 3 {
		t.Fatalf("height = %d, expected a multi-level tree", height)
	}
	if err := tree.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}

	keys := scanAll(t, tree)
	if len(keys) != 10000 {
		t.Fatalf("scan found %d keys, want 10000", len(keys))
	}
	for i, k := range keys {
		if !bytes.Equal(k, intKey(i)) {
			t.Fatalf("scan position %d holds %x", i, k)
		}
	}
	for _, i := range []int{0, 1, 4999, 9998, 9999} {
		v, found, err := tree.Search(intKey(i))
		if err != nil || !found || !bytes.Equal(v, intValue(i)) {
			t.Errorf("Search(%d) = %q, %v, %v", i, v, found, err)
		}
	}
	if _, found, _ := tree.Search(intKey(10000)); found {
		t.Error("Search found a key never inserted")
	}
}

func TestIncreasingKeysOnlyDescendRight(t *testing.T) {
	tree, _ := openTestTree(t, smallOptions(5))

	for i := 0; i < 2000; i++ {
		mustInsert(t, tree, i)
	}

	stats, err := tree.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.LeftDescents != 0 {
		t.Fatalf("increasing inserts took %d left descents", stats.LeftDescents)
	}
	if stats.RightDescents == 0 || stats.LeafSplits == 0 || stats.BranchSplits == 0 {
		t.Fatalf("expected right descents and splits, got %+v", stats)
	}
	if err := tree.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestDuplicateKeyKeptTwice(t *testing.T) {
	tree, _ := openTestTree(t, smallOptions(5))

	if err := tree.Insert([]byte("dup"), []byte("first")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert([]byte("dup"), []byte("second")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if count, _ := tree.Count(); count != 2 {
		t.Fatalf("Count = %d, want 2", count)
	}

	it, err := tree.SeekGE([]byte("dup"))
	if err != nil {
		t.Fatalf("SeekGE: %v", err)
	}
	var values []string
	for ok := it.Valid(); ok; ok = it.Next() {
		values = append(values, string(it.Value()))
	}
	if strings.Join(values, ",") != "first,second" {
		t.Fatalf("values = %v, want [first second]", values)
	}

	v, found, err := tree.Search([]byte("dup"))
	if err != nil || !found || string(v) != "first" {
		t.Fatalf("Search = %q, %v, %v", v, found, err)
	}
}

func TestManyDuplicatesAcrossSplits(t *testing.T) {
	tree, _ := openTestTree(t, smallOptions(3))

	for i := 0; i < 50; i++ {
		if err := tree.Insert(intKey(7), intValue(i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		mustInsert(t, tree, i)
	}
	if err := tree.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}

	dups := 0
	for _, k := range scanAll(t, tree) {
		if bytes.Equal(k, intKey(7)) {
			dups++
		}
	}
	if dups != 51 {
		t.Fatalf("found %d copies of key 7, want 51", dups)
	}
}

func TestRandomOrderKeepsInvariants(t *testing.T) {
	for _, records := range []int{3, 4, 7, 0} {
		t.Run(fmt.Sprintf("records=%d", records), func(t *testing.T) {
			tree, _ := openTestTree(t, smallOptions(records))
			rng := rand.New(rand.NewSource(int64(records) + 1))
			perm := rng.Perm(3000)

			for _, n := range perm {
				mustInsert(t, tree, n)
			}
			if err := tree.Check(); err != nil {
				t.Fatalf("Check: %v", err)
			}
			checkHeightBound(t, tree, len(perm))
			keys := scanAll(t, tree)
			if len(keys) != len(perm) {
				t.Fatalf("scan found %d keys, want %d", len(keys), len(perm))
			}
			for i := range keys {
				if !bytes.Equal(keys[i], intKey(i)) {
					t.Fatalf("scan position %d holds %x", i, keys[i])
				}
			}
			for _, n := range perm[:200] {
				if v, found, err := tree.Search(intKey(n)); err != nil || !found || !bytes.Equal(v, intValue(n)) {
					t.Fatalf("Search(%d) = %q, %v, %v", n, v, found, err)
				}
			}
		})
	}
}

func TestHeightGrowsOnlyWhenRootIsFull(t *testing.T) {
	tree, _ := openTestTree(t, smallOptions(4))
	rng := rand.New(rand.NewSource(42))

	prevHeight := 0
	var prevGrowths uint64
	for i, n := range rng.Perm(1500) {
		var rootFull bool
		if i > 0 {
			rootFull = rootIsFull(t, tree)
		}

		mustInsert(t, tree, n)

		stats, err := tree.Stats()
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.RootGrowths > prevGrowths && rootIsFull(t, tree) {
			t.Fatalf("root is full right after it grew at insert %d", i)
		}
		prevGrowths = stats.RootGrowths

		height, _ := tree.Height()
		switch {
		case height < prevHeight:
			t.Fatalf("height shrank from %d to %d", prevHeight, height)
		case height > prevHeight+1:
			t.Fatalf("height jumped from %d to %d", prevHeight, height)
		case height == prevHeight+1 && i > 0 && !rootFull:
			t.Fatalf("height grew at insert %d although the root had room", i)
		case height == prevHeight && rootFull:
			t.Fatalf("root was full at insert %d but did not grow", i)
		}
		prevHeight = height
	}

	stats, _ := tree.Stats()
	if int(stats.RootGrowths) != prevHeight-1 {
		t.Fatalf("root growths = %d, height = %d", stats.RootGrowths, prevHeight)
	}
}

func TestSiblingLinks(t *testing.T) {
	tree, _ := openTestTree(t, smallOptions(3))
	for i := 100; i > 0; i-- {
		mustInsert(t, tree, i)
	}

	leaf, ok, err := tree.firstLeaf()
	if err != nil || !ok {
		t.Fatalf("firstLeaf: %v", err)
	}
	prev := page.InvalidIndex
	var last []byte
	leaves := 0
	for {
		l, err := tree.asLeaf(leaf)
		if err != nil {
			t.Fatalf("asLeaf: %v", err)
		}
		if l.Prev() != prev {
			t.Fatalf("leaf %d prev = %d, want %d", leaf.index, l.Prev(), prev)
		}
		if last != nil && bytes.Compare(last, l.Key(0)) > 0 {
			t.Fatalf("leaf %d starts below the previous leaf", leaf.index)
		}
		last = bytes.Clone(l.Key(l.Count() - 1))
		leaves++
		prev = leaf.index
		next := l.Next()
		leaf.unpin()
		if next == page.InvalidIndex {
			break
		}
		if leaf, err = tree.pinPage(next); err != nil {
			t.Fatalf("pin: %v", err)
		}
	}
	if leaves < 100/3 {
		t.Fatalf("walked %d leaves", leaves)
	}
	checkHeightBound(t, tree, 100)
}

func TestDescendingKeysStayBalanced(t *testing.T) {
	const n = 2000
	tree, _ := openTestTree(t, smallOptions(page.MinRecordsPerPage))
	for i := n; i > 0; i-- {
		mustInsert(t, tree, i)
	}
	if err := tree.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	checkHeightBound(t, tree, n)

	stats, err := tree.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	// Every leaf holds at least one record, so pages stay linear in n.
	if stats.Pages > 2*n+1 {
		t.Fatalf("%d pages for %d keys", stats.Pages, n)
	}
}

func TestPinOfTwoRecordsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.dat")
	if _, err := Open(path, smallOptions(2)); err == nil {
		t.Fatal("Open with two records per page succeeded")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("rejected Open left a file behind: %v", err)
	}
}

func TestReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.dat")
	tree, err := Open(path, smallOptions(5))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 500; i++ {
		mustInsert(t, tree, i*3)
	}
	root, _ := tree.Root()
	count, _ := tree.Count()
	id, _ := tree.ID()
	before := scanAll(t, tree)
	if err := tree.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tree, err = Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer tree.Close()

	if tree.Layout() != smallOptionsLayout(5) {
		t.Fatalf("layout after reopen = %+v", tree.Layout())
	}
	if r, _ := tree.Root(); r != root {
		t.Fatalf("root = %d, want %d", r, root)
	}
	if c, _ := tree.Count(); c != count {
		t.Fatalf("count = %d, want %d", c, count)
	}
	if got, _ := tree.ID(); got != id {
		t.Fatalf("id = %s, want %s", got, id)
	}
	after := scanAll(t, tree)
	if len(after) != len(before) {
		t.Fatalf("records after reopen = %d, want %d", len(after), len(before))
	}
	for i := range before {
		if !bytes.Equal(before[i], after[i]) {
			t.Fatalf("record %d differs after reopen", i)
		}
	}

	mustInsert(t, tree, 1)
	if err := tree.Check(); err != nil {
		t.Fatalf("Check after reopen and insert: %v", err)
	}
}

func smallOptionsLayout(records int) page.Layout {
	return page.Layout{PageSize: mappedfile.HostPageSize(), KeySize: 8, ValueSize: 16, RecordsPerPage: records}
}

func TestReopenWithConflictingLayout(t *testing.T) {
	tree, path := openTestTree(t, smallOptions(5))
	mustInsert(t, tree, 1)
	tree.Close()

	if _, err := Open(path, Options{KeySize: 16}); !errors.Is(err, ErrLayoutMismatch) {
		t.Fatalf("Open with other key size = %v, want ErrLayoutMismatch", err)
	}
	reopened, err := Open(path, Options{KeySize: 8, RecordsPerPage: 5})
	if err != nil {
		t.Fatalf("Open with matching options: %v", err)
	}
	reopened.Close()
}

func TestCorruptHeaderRejected(t *testing.T) {
	tree, path := openTestTree(t, smallOptions(5))
	mustInsert(t, tree, 1)
	tree.Close()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, 60); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	if _, err := Open(path, Options{}); !errors.Is(err, page.ErrChecksum) {
		t.Fatalf("Open corrupted file = %v, want ErrChecksum", err)
	}
}

func TestRecordSizeErrors(t *testing.T) {
	tree, _ := openTestTree(t, smallOptions(5))

	tests := []struct {
		name       string
		key, value []byte
		want       error
	}{
		{"empty key", nil, []byte("v"), ErrEmptyKey},
		{"key too large", make([]byte, 9), nil, ErrKeyTooLarge},
		{"value too large", []byte("k"), make([]byte, 17), ErrValueTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tree.Insert(tc.key, tc.value); !errors.Is(err, tc.want) {
				t.Fatalf("Insert = %v, want %v", err, tc.want)
			}
		})
	}
	if count, _ := tree.Count(); count != 0 {
		t.Fatalf("rejected inserts changed count to %d", count)
	}
	if err := tree.Insert(make([]byte, 8), make([]byte, 16)); err != nil {
		t.Fatalf("full-width record: %v", err)
	}
}

func TestSeekGE(t *testing.T) {
	tree, _ := openTestTree(t, smallOptions(4))
	for i := 0; i < 200; i += 2 {
		mustInsert(t, tree, i)
	}

	it, err := tree.SeekGE(intKey(51))
	if err != nil {
		t.Fatalf("SeekGE: %v", err)
	}
	for want := 52; want < 60; want += 2 {
		if !it.Valid() || !bytes.Equal(it.Key(), intKey(want)) {
			t.Fatalf("iterator at %x, want %d", it.Key(), want)
		}
		it.Next()
	}
	it.Close()
	if it.Valid() {
		t.Fatal("iterator valid after Close")
	}

	it, err = tree.SeekGE(intKey(1000))
	if err != nil {
		t.Fatalf("SeekGE past the end: %v", err)
	}
	if it.Valid() {
		t.Fatalf("SeekGE past the end positioned at %x", it.Key())
	}
}

func TestLookupCache(t *testing.T) {
	opts := smallOptions(5)
	opts.LookupCacheSize = 128
	tree, _ := openTestTree(t, opts)
	for i := 0; i < 50; i++ {
		mustInsert(t, tree, i)
	}

	for round := 0; round < 2; round++ {
		v, found, err := tree.Search(intKey(10))
		if err != nil || !found || !bytes.Equal(v, intValue(10)) {
			t.Fatalf("Search round %d = %q, %v, %v", round, v, found, err)
		}
	}
	stats, _ := tree.Stats()
	if stats.LookupHits == 0 {
		t.Fatalf("expected a lookup cache hit, stats %+v", stats)
	}

	// a miss must not be cached as absent
	if _, found, _ := tree.Search(intKey(500)); found {
		t.Fatal("found key 500 before inserting it")
	}
	mustInsert(t, tree, 500)
	if v, found, _ := tree.Search(intKey(500)); !found || !bytes.Equal(v, intValue(500)) {
		t.Fatalf("Search after insert = %q, %v", v, found)
	}
}

func TestTinyCacheStillWorks(t *testing.T) {
	opts := smallOptions(4)
	opts.CachePages = 1
	tree, path := openTestTree(t, opts)

	for i := 0; i < 600; i++ {
		mustInsert(t, tree, (i*7919)%600)
	}
	if err := tree.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	stats, _ := tree.Stats()
	if stats.Cache.Evictions == 0 || stats.Cache.Resident > 1 {
		t.Fatalf("cache stats = %+v", stats.Cache)
	}
	if err := tree.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stat, err := os.Stat(path); err != nil || stat.Size() != stats.Bytes {
		t.Fatalf("file size %v, stats bytes %d", stat, stats.Bytes)
	}
}

func TestUseAfterClose(t *testing.T) {
	tree, _ := openTestTree(t, smallOptions(5))
	mustInsert(t, tree, 1)
	if err := tree.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tree.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := tree.Insert(intKey(2), nil); !errors.Is(err, mappedfile.ErrClosed) {
		t.Fatalf("Insert after Close = %v", err)
	}
	if _, _, err := tree.Search(intKey(1)); !errors.Is(err, mappedfile.ErrClosed) {
		t.Fatalf("Search after Close = %v", err)
	}
}

func TestInspectFile(t *testing.T) {
	tree, path := openTestTree(t, smallOptions(5))
	for i := 0; i < 40; i++ {
		if err := tree.Insert([]byte(fmt.Sprintf("key%03d", i)), []byte("val")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	tree.Close()

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	statBefore, _ := os.Stat(path)

	var out bytes.Buffer
	if err := InspectFileTo(&out, path); err != nil {
		t.Fatalf("InspectFileTo: %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	statAfter, _ := os.Stat(path)
	if !bytes.Equal(before, after) || !statAfter.ModTime().Equal(statBefore.ModTime()) {
		t.Fatal("inspecting the store modified it")
	}
	dump := out.String()
	for _, want := range []string{"Page 0 (header)", "count=40", "BRANCH", "LEAF", `"key017" -> "val"`} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump missing %q:\n%s", want, dump)
		}
	}

	if err := InspectFileTo(&out, filepath.Join(t.TempDir(), "missing.dat")); err == nil {
		t.Fatal("inspecting a missing file should fail")
	}
}

func TestInspectEmptyFileLeavesItEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.dat")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("create: %v", err)
	}
	var out bytes.Buffer
	if err := InspectFileTo(&out, path); !errors.Is(err, ErrNoStore) {
		t.Fatalf("InspectFileTo(empty) = %v, want ErrNoStore", err)
	}
	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.Size() != 0 {
		t.Fatalf("empty file grew to %d bytes", stat.Size())
	}
}

func TestReadOnlyOpen(t *testing.T) {
	tree, path := openTestTree(t, smallOptions(5))
	for i := 0; i < 50; i++ {
		mustInsert(t, tree, i)
	}
	tree.Close()

	if _, err := Open(filepath.Join(t.TempDir(), "none.dat"), Options{ReadOnly: true}); !errors.Is(err, ErrNoStore) {
		t.Fatalf("read-only Open of a missing file = %v, want ErrNoStore", err)
	}

	ro, err := Open(path, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("read-only Open: %v", err)
	}
	defer ro.Close()
	if v, found, err := ro.Search(intKey(17)); err != nil || !found || !bytes.Equal(v, intValue(17)) {
		t.Fatalf("Search(17) = %q, %v, %v", v, found, err)
	}
	if err := ro.Insert(intKey(99), intValue(99)); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Insert on read-only tree = %v, want ErrReadOnly", err)
	}
	if err := ro.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if n, _ := ro.Count(); n != 50 {
		t.Fatalf("Count = %d, want 50", n)
	}
}
