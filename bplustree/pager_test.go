package bplus

import (
	"errors"
	"path/filepath"
	"testing"

	mappedfile "PagedKV/storage_engine/mapped_file"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestUnpinReportsReleaseFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	f, err := mappedfile.Open(filepath.Join(t.TempDir(), "pages.dat"), mappedfile.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	handle, err := f.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := handle.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	p := pinned{index: 0, handle: handle, logger: zap.New(core)}
	if err := p.unpin(); !errors.Is(err, mappedfile.ErrClosed) {
		t.Fatalf("unpin of a released page = %v, want ErrClosed", err)
	}
	entries := logs.FilterMessage("unpin failed").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d unpin warnings, want 1", len(entries))
	}
	if entries[0].ContextMap()["page"] != uint64(0) {
		t.Fatalf("warning fields = %v", entries[0].ContextMap())
	}
}

func TestUnpinQuietOnSuccess(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tree, _ := openTestTree(t, Options{Logger: zap.New(core)})

	p, err := tree.pinPage(headerPage)
	if err != nil {
		t.Fatalf("pinPage: %v", err)
	}
	if err := p.unpin(); err != nil {
		t.Fatalf("unpin: %v", err)
	}
	if logs.Len() != 0 {
		t.Fatalf("unexpected warnings: %v", logs.All())
	}
}
