package frontend

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/akarasulu/cachefs/cache/backend"
	"github.com/akarasulu/cachefs/cache/block"
	"github.com/akarasulu/cachefs/cache/meta"
)

// fakeBackend is an in-memory backend.Adapter for exercising frontend
// scenarios without a network dependency.
type fakeBackend struct {
	files map[string]string
	stats map[string]backend.Stat
	dirs  map[string][]backend.DirEntry
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		files: map[string]string{},
		stats: map[string]backend.Stat{},
		dirs:  map[string][]backend.DirEntry{},
	}
}

func (b *fakeBackend) Stat(ctx context.Context, path string) (backend.Stat, error) {
	st, ok := b.stats[path]
	if !ok {
		return backend.Stat{}, backend.ErrNotExist
	}
	return st, nil
}

func (b *fakeBackend) ReadRange(ctx context.Context, path string, offset, size int64) (io.ReadCloser, error) {
	content, ok := b.files[path]
	if !ok {
		return nil, backend.ErrNotExist
	}
	end := offset + size
	if end > int64(len(content)) {
		end = int64(len(content))
	}
	if offset > int64(len(content)) {
		offset = int64(len(content))
	}
	return io.NopCloser(bytes.NewReader([]byte(content[offset:end]))), nil
}

func (b *fakeBackend) Readdir(ctx context.Context, path string) ([]backend.DirEntry, error) {
	entries, ok := b.dirs[path]
	if !ok {
		return nil, backend.ErrNotExist
	}
	return entries, nil
}

func newTestFS(t *testing.T, blockSize int64, adapter backend.Adapter) *FS {
	t.Helper()
	dir := t.TempDir()

	bs, err := block.New(filepath.Join(dir, "blocks"), block.WithBlockSize(blockSize))
	if err != nil {
		t.Fatalf("block.New: %v", err)
	}
	ms, err := meta.New(filepath.Join(dir, "metadata.db"))
	if err != nil {
		t.Fatalf("meta.New: %v", err)
	}
	t.Cleanup(func() { ms.Close() })

	return New(bs, ms, adapter)
}

// TestReadMissThenHit confirms a getattr miss populates metadata,
// then a read populates the missing blocks from the backend.
func TestReadMissThenHit(t *testing.T) {
	b := newFakeBackend()
	b.files["/a"] = "abcdefgh"
	b.stats["/a"] = backend.Stat{Size: 8, Mtime: 100}

	fs := newTestFS(t, 4, b)
	ctx := context.Background()

	rec, err := fs.Getattr(ctx, "/a")
	if err != nil {
		t.Fatalf("Getattr: %v", err)
	}
	if rec.Size != 8 || rec.Mtime != 100 {
		t.Fatalf("Getattr: got %+v", rec)
	}

	buf := make([]byte, 8)
	n, err := fs.Read(ctx, "/a", buf, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 8 || string(buf) != "abcdefgh" {
		t.Fatalf("Read: got %q (%d bytes)", buf[:n], n)
	}

	// A second read must be served entirely from the cache: remove the
	// backend file and confirm the cached bytes still come back.
	delete(b.files, "/a")
	buf2 := make([]byte, 8)
	n2, err := fs.Read(ctx, "/a", buf2, 0)
	if err != nil {
		t.Fatalf("Read (cached): %v", err)
	}
	if n2 != 8 || string(buf2) != "abcdefgh" {
		t.Fatalf("Read (cached): got %q", buf2[:n2])
	}
}

// TestOpenInvalidatesOnCoherencyMismatch confirms a changed backend
// mtime/size invalidates both metadata and blocks on Open.
func TestOpenInvalidatesOnCoherencyMismatch(t *testing.T) {
	b := newFakeBackend()
	b.files["/a"] = "abcdefgh"
	b.stats["/a"] = backend.Stat{Size: 8, Mtime: 100}

	fs := newTestFS(t, 4, b)
	ctx := context.Background()

	if _, err := fs.Getattr(ctx, "/a"); err != nil {
		t.Fatalf("Getattr: %v", err)
	}
	buf := make([]byte, 8)
	if _, err := fs.Read(ctx, "/a", buf, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}

	b.files["/a"] = "wxyz"
	b.stats["/a"] = backend.Stat{Size: 4, Mtime: 200}

	if err := fs.Open(ctx, "/a"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if fs.blocks.Exists("/a", 0) {
		t.Fatalf("Exists: expected block 0 to be invalidated after coherency mismatch")
	}

	buf2 := make([]byte, 4)
	n, err := fs.Read(ctx, "/a", buf2, 0)
	if err != nil {
		t.Fatalf("Read after invalidation: %v", err)
	}
	if string(buf2[:n]) != "wxyz" {
		t.Fatalf("Read after invalidation: got %q, want %q", buf2[:n], "wxyz")
	}
}

// TestGetattrNegativeEntry confirms a backend miss records a negative
// metadata entry instead of an error.
func TestGetattrNegativeEntry(t *testing.T) {
	b := newFakeBackend()
	fs := newTestFS(t, 4, b)
	ctx := context.Background()

	_, err := fs.Getattr(ctx, "/missing")
	if err != backend.ErrNotExist {
		t.Fatalf("Getattr: got %v, want backend.ErrNotExist", err)
	}

	rec, fresh, found, lerr := fs.metas.Lookup("/missing")
	if lerr != nil || !found {
		t.Fatalf("Lookup: found=%v err=%v", found, lerr)
	}
	if rec.Type != meta.EntryNegative {
		t.Fatalf("Lookup: Type = %v, want EntryNegative", rec.Type)
	}
	if !fresh {
		t.Fatalf("Lookup: expected the negative entry to be fresh immediately")
	}
}

// TestReaddirPopulatesFromBackend confirms a readdir miss is
// populated from the backend and cached.
func TestReaddirPopulatesFromBackend(t *testing.T) {
	b := newFakeBackend()
	b.stats["/dir"] = backend.Stat{IsDir: true, Mtime: 50}
	b.dirs["/dir"] = []backend.DirEntry{
		{Name: "a.txt", IsDir: false},
		{Name: "sub", IsDir: true},
	}

	fs := newTestFS(t, 4, b)
	ctx := context.Background()

	entries, err := fs.Readdir(ctx, "/dir")
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Readdir: got %d entries, want 2", len(entries))
	}

	// A second call should be served from the cache without the
	// backend being consulted again.
	delete(b.dirs, "/dir")
	entries2, err := fs.Readdir(ctx, "/dir")
	if err != nil {
		t.Fatalf("Readdir (cached): %v", err)
	}
	if len(entries2) != 2 {
		t.Fatalf("Readdir (cached): got %d entries, want 2", len(entries2))
	}
}

// TestInvalidateRemovesEverything confirms an out-of-band Invalidate
// notification drops both cached metadata and cached blocks.
func TestInvalidateRemovesEverything(t *testing.T) {
	b := newFakeBackend()
	b.files["/a"] = "abcdefgh"
	b.stats["/a"] = backend.Stat{Size: 8, Mtime: 100}

	fs := newTestFS(t, 4, b)
	ctx := context.Background()

	if _, err := fs.Getattr(ctx, "/a"); err != nil {
		t.Fatalf("Getattr: %v", err)
	}
	buf := make([]byte, 8)
	if _, err := fs.Read(ctx, "/a", buf, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if err := fs.Invalidate("/a"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if fs.blocks.Exists("/a", 0) || fs.blocks.Exists("/a", 1) {
		t.Fatalf("Exists: expected all blocks to be invalidated")
	}
	_, _, found, err := fs.metas.Lookup("/a")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found {
		t.Fatalf("Lookup: expected metadata to be invalidated")
	}
}
