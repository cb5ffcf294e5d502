package block

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/akarasulu/cachefs/metric"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	path := "/some/file.bin"
	payload := []byte("the quick brown fox jumps over the lazy dog")

	if err := s.Write(path, 0, payload, int64(len(payload))); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !s.Exists(path, 0) {
		t.Fatalf("Exists: expected block to exist after Write")
	}

	buf := make([]byte, len(payload))
	n, found, err := s.Read(path, 0, buf, int64(len(payload)), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !found {
		t.Fatalf("Read: expected found=true for a just-written block")
	}
	if n != len(payload) {
		t.Fatalf("Read: expected %d bytes, got %d", len(payload), n)
	}
	if !bytes.Equal(buf, payload) {
		t.Fatalf("Read: got %q, want %q", buf, payload)
	}
}

func TestReadPartialOffset(t *testing.T) {
	s := newTestStore(t)

	path := "/some/file.bin"
	payload := []byte("0123456789")
	if err := s.Write(path, 0, payload, int64(len(payload))); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 4)
	n, found, err := s.Read(path, 0, buf, 4, 3)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !found {
		t.Fatalf("Read: expected found=true")
	}
	if n != 4 || string(buf[:n]) != "3456" {
		t.Fatalf("Read: got %q, want %q", buf[:n], "3456")
	}
}

func TestReadMissingBlock(t *testing.T) {
	s := newTestStore(t)

	buf := make([]byte, 10)
	n, found, err := s.Read("/nope", 0, buf, 10, 0)
	if err != nil {
		t.Fatalf("Read: expected a miss, not an error, got %v", err)
	}
	if found {
		t.Fatalf("Read: expected found=false for a missing block")
	}
	if n != 0 {
		t.Fatalf("Read: expected n=0 for a missing block, got %d", n)
	}
}

func TestWriteOverwritesBlock(t *testing.T) {
	s := newTestStore(t)

	path := "/some/file.bin"
	if err := s.Write(path, 0, []byte("first-version"), 13); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(path, 0, []byte("second-version-longer"), 21); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 21)
	n, found, err := s.Read(path, 0, buf, 21, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !found {
		t.Fatalf("Read: expected found=true after overwrite")
	}
	if string(buf[:n]) != "second-version-longer" {
		t.Fatalf("Read: got %q after overwrite", buf[:n])
	}
}

func TestByteBudgetEvictsToLowWaterMark(t *testing.T) {
	blockSize := int64(16)
	maxSize := int64(1000)
	s := newTestStore(t, WithBlockSize(blockSize), WithMaxCacheSize(maxSize))

	payload := bytes.Repeat([]byte{'x'}, int(blockSize))

	for i := 0; i < 30; i++ {
		path := fmt.Sprintf("/file-%02d.bin", i)
		if err := s.Write(path, 0, payload, blockSize); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
		// Ensure distinct atimes for a deterministic eviction order.
		time.Sleep(time.Millisecond)
	}

	current, max := s.Stats()
	if max != maxSize {
		t.Fatalf("Stats: max = %d, want %d", max, maxSize)
	}
	if current > maxSize {
		t.Fatalf("Stats: current = %d exceeds max %d after eviction", current, maxSize)
	}

	want := lowWaterMark(maxSize)
	if current > want {
		t.Fatalf("Stats: current = %d, want <= low water mark %d", current, want)
	}
}

func TestEvictionRemovesOldestFirst(t *testing.T) {
	blockSize := int64(16)
	maxSize := int64(64) // room for only one block once its header is counted
	s := newTestStore(t, WithBlockSize(blockSize), WithMaxCacheSize(maxSize))

	payload := bytes.Repeat([]byte{'x'}, int(blockSize))

	oldest := "/oldest.bin"
	if err := s.Write(oldest, 0, payload, blockSize); err != nil {
		t.Fatalf("Write: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	for i := 0; i < 10; i++ {
		path := fmt.Sprintf("/newer-%02d.bin", i)
		if err := s.Write(path, 0, payload, blockSize); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
		time.Sleep(time.Millisecond)
	}

	if s.Exists(oldest, 0) {
		t.Fatalf("Exists: expected the oldest block to have been evicted")
	}
}

func TestInvalidateRangeRemovesCoveredBlocks(t *testing.T) {
	blockSize := int64(10)
	s := newTestStore(t, WithBlockSize(blockSize))

	path := "/multi-block.bin"
	for i := int64(0); i < 5; i++ {
		if err := s.Write(path, i, bytes.Repeat([]byte{'a'}, int(blockSize)), blockSize); err != nil {
			t.Fatalf("Write block %d: %v", i, err)
		}
	}

	// Offsets 15-25 span blocks 1 and 2.
	if err := s.InvalidateRange(path, 15, 10); err != nil {
		t.Fatalf("InvalidateRange: %v", err)
	}

	if s.Exists(path, 0) == false {
		t.Fatalf("Exists: block 0 should survive InvalidateRange")
	}
	if s.Exists(path, 1) {
		t.Fatalf("Exists: block 1 should have been invalidated")
	}
	if s.Exists(path, 2) {
		t.Fatalf("Exists: block 2 should have been invalidated")
	}
	if s.Exists(path, 3) == false {
		t.Fatalf("Exists: block 3 should survive InvalidateRange")
	}
}

func TestInvalidateFileRemovesAllBlocks(t *testing.T) {
	s := newTestStore(t, WithBlockSize(8))

	path := "/whole-file.bin"
	for i := int64(0); i < 4; i++ {
		if err := s.Write(path, i, bytes.Repeat([]byte{'z'}, 8), 8); err != nil {
			t.Fatalf("Write block %d: %v", i, err)
		}
	}

	if err := s.InvalidateFile(path); err != nil {
		t.Fatalf("InvalidateFile: %v", err)
	}

	for i := int64(0); i < 4; i++ {
		if s.Exists(path, i) {
			t.Fatalf("Exists: block %d should have been removed", i)
		}
	}
}

func TestInvalidateFileLeavesOtherPathsAlone(t *testing.T) {
	s := newTestStore(t, WithBlockSize(8))

	a, b := "/file-a.bin", "/file-b.bin"
	if err := s.Write(a, 0, bytes.Repeat([]byte{'a'}, 8), 8); err != nil {
		t.Fatalf("Write a: %v", err)
	}
	if err := s.Write(b, 0, bytes.Repeat([]byte{'b'}, 8), 8); err != nil {
		t.Fatalf("Write b: %v", err)
	}

	if err := s.InvalidateFile(a); err != nil {
		t.Fatalf("InvalidateFile: %v", err)
	}

	if s.Exists(a, 0) {
		t.Fatalf("Exists: %s should have been invalidated", a)
	}
	if !s.Exists(b, 0) {
		t.Fatalf("Exists: %s should be unaffected by invalidating %s", b, a)
	}
}

func TestVerifyOwner(t *testing.T) {
	s := newTestStore(t)

	path := "/owned.bin"
	if err := s.Write(path, 0, []byte("payload"), 7); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ok, found, err := s.VerifyOwner(path, 0)
	if err != nil {
		t.Fatalf("VerifyOwner: %v", err)
	}
	if !found {
		t.Fatalf("VerifyOwner: expected found=true for a just-written block")
	}
	if !ok {
		t.Fatalf("VerifyOwner: expected true for the path that wrote the block")
	}
}

func TestVerifyOwnerMissingBlock(t *testing.T) {
	s := newTestStore(t)

	ok, found, err := s.VerifyOwner("/nope.bin", 0)
	if err != nil {
		t.Fatalf("VerifyOwner: expected a miss, not an error, got %v", err)
	}
	if found {
		t.Fatalf("VerifyOwner: expected found=false for a missing block")
	}
	if ok {
		t.Fatalf("VerifyOwner: expected ownerMatches=false for a missing block")
	}
}

func TestStartupAccountingRescansExistingBlocks(t *testing.T) {
	dir := t.TempDir()

	s1 := newStoreAt(t, dir)
	path := "/persisted.bin"
	if err := s1.Write(path, 0, []byte("0123456789"), 10); err != nil {
		t.Fatalf("Write: %v", err)
	}
	wantSize, _ := s1.Stats()

	s2 := newStoreAt(t, dir)
	gotSize, _ := s2.Stats()
	if gotSize != wantSize {
		t.Fatalf("Stats after restart: got %d, want %d", gotSize, wantSize)
	}
	if !s2.Exists(path, 0) {
		t.Fatalf("Exists: expected %s to survive a restart", path)
	}
}

func newStoreAt(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRejectsEmptyCacheRoot(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("New: expected an error for an empty cache root")
	}
}

func TestWriteCreatesBucketDirectories(t *testing.T) {
	s := newTestStore(t)

	path := "/bucketed.bin"
	if err := s.Write(path, 0, []byte("abc"), 3); err != nil {
		t.Fatalf("Write: %v", err)
	}

	p := blockPath(s.blocksDir, path, 0)
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected block file to exist at %s: %v", p, err)
	}
}

type countingCounter struct{ n float64 }

func (c *countingCounter) Inc()              { c.n++ }
func (c *countingCounter) Add(value float64) { c.n += value }

type countingGauge struct{ v float64 }

func (g *countingGauge) Set(value float64) { g.v = value }

type countingCollector struct {
	counters map[string]*countingCounter
	gauges   map[string]*countingGauge
}

func newCountingCollector() *countingCollector {
	return &countingCollector{counters: map[string]*countingCounter{}, gauges: map[string]*countingGauge{}}
}

func (c *countingCollector) NewCounter(name string) metric.Counter {
	ctr := &countingCounter{}
	c.counters[name] = ctr
	return ctr
}

func (c *countingCollector) NewGuage(name string) metric.Gauge {
	g := &countingGauge{}
	c.gauges[name] = g
	return g
}

func TestWithMetricCollectorReportsHitsAndMisses(t *testing.T) {
	collector := newCountingCollector()
	s := newTestStore(t, WithMetricCollector(collector))

	if _, _, err := s.Read("/missing", 0, make([]byte, 4), 4, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := s.Write("/a", 0, []byte("data"), 4); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, _, err := s.Read("/a", 0, make([]byte, 4), 4, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got := collector.counters["cachefs_block_cache_misses_total"].n; got != 1 {
		t.Fatalf("misses counter = %v, want 1", got)
	}
	if got := collector.counters["cachefs_block_cache_hits_total"].n; got != 1 {
		t.Fatalf("hits counter = %v, want 1", got)
	}
	if got := collector.gauges["cachefs_block_cache_size_bytes"].v; got == 0 {
		t.Fatalf("size gauge = %v, want nonzero after a write", got)
	}
}
