package bufferpool

import (
	"errors"
	"path/filepath"
	"testing"

	mappedfile "PagedKV/storage_engine/mapped_file"
	"PagedKV/storage_engine/page"
)

func newTestPool(t *testing.T, capacity int) (*BufferPool, *mappedfile.File) {
	t.Helper()
	file, err := mappedfile.Open(filepath.Join(t.TempDir(), "pool.dat"), mappedfile.Options{})
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	t.Cleanup(func() { file.Close() })

	bp, err := NewBufferPool(capacity, file, nil)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	return bp, file
}

func fetch(t *testing.T, bp *BufferPool, index page.Index) {
	t.Helper()
	p, err := bp.FetchPage(index)
	if err != nil {
		t.Fatalf("FetchPage(%d): %v", index, err)
	}
	p.Release()
}

func TestBadCapacity(t *testing.T) {
	if _, err := NewBufferPool(0, nil, nil); !errors.Is(err, ErrBadCapacity) {
		t.Fatalf("expected ErrBadCapacity, got %v", err)
	}
}

func TestFetchHitAndMiss(t *testing.T) {
	bp, _ := newTestPool(t, 3)

	fetch(t, bp, 1)
	fetch(t, bp, 1)
	fetch(t, bp, 2)

	stats := bp.Stats()
	if stats.Hits != 1 || stats.Misses != 2 || stats.Resident != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.HitRate() < 0.33 || stats.HitRate() > 0.34 {
		t.Fatalf("HitRate = %f", stats.HitRate())
	}
}

func TestLRUEviction(t *testing.T) {
	bp, _ := newTestPool(t, 3)

	fetch(t, bp, 1)
	fetch(t, bp, 2)
	fetch(t, bp, 3)
	fetch(t, bp, 1) // 1 becomes most recent, 2 is now the oldest
	fetch(t, bp, 4)

	if bp.Contains(2) {
		t.Error("page 2 should have been evicted")
	}
	for _, idx := range []page.Index{1, 3, 4} {
		if !bp.Contains(idx) {
			t.Errorf("page %d should be resident", idx)
		}
	}
	want := []page.Index{4, 1, 3}
	got := bp.Resident()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recency order = %v, want %v", got, want)
		}
	}
	if bp.Size() > bp.Capacity() {
		t.Fatalf("resident %d exceeds capacity %d", bp.Size(), bp.Capacity())
	}
	if bp.Stats().Evictions != 1 {
		t.Fatalf("evictions = %d, want 1", bp.Stats().Evictions)
	}
}

func TestEvictionKeepsCallerHandle(t *testing.T) {
	bp, file := newTestPool(t, 1)

	held, err := bp.FetchPage(0)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	defer held.Release()

	fetch(t, bp, 1)
	if bp.Contains(0) {
		t.Fatal("page 0 should have been evicted")
	}

	data, err := held.Bytes()
	if err != nil {
		t.Fatalf("held handle unusable after eviction: %v", err)
	}
	data[0] = 7
	if file.LiveMappings() != 2 {
		t.Fatalf("live mappings = %d, want 2", file.LiveMappings())
	}

	again, err := bp.FetchPage(0)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	defer again.Release()
	data, _ = again.Bytes()
	if data[0] != 7 {
		t.Fatal("write through evicted handle lost")
	}
}

func TestNewPage(t *testing.T) {
	bp, file := newTestPool(t, 2)

	for want := 0; want < 3; want++ {
		idx, p, err := bp.NewPage()
		if err != nil {
			t.Fatalf("NewPage: %v", err)
		}
		if int(idx) != want {
			t.Fatalf("NewPage index = %d, want %d", idx, want)
		}
		p.Release()
	}
	if file.PageCount() != 3 || bp.Size() != 2 {
		t.Fatalf("page count %d, resident %d", file.PageCount(), bp.Size())
	}
}

func TestFlushAndClose(t *testing.T) {
	bp, file := newTestPool(t, 4)
	fetch(t, bp, 0)
	fetch(t, bp, 1)

	if err := bp.FlushAllPages(); err != nil {
		t.Fatalf("FlushAllPages: %v", err)
	}
	if err := bp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if bp.Size() != 0 || file.LiveMappings() != 0 {
		t.Fatalf("after close: resident %d, live %d", bp.Size(), file.LiveMappings())
	}
}
