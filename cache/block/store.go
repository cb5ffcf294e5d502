// Package block implements the block data cache: fixed-size chunks of
// file contents keyed by (path, block index), stored on the local
// filesystem under a hash-partitioned directory tree with size-bounded
// LRU eviction.
//
// A DJB2 hash of the path selects a two-level directory fan-out, blocks
// are written whole, and eviction walks the tree sorting by atime.
package block

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/akarasulu/cachefs/metric"
	"github.com/akarasulu/cachefs/utils/tempfile"
)

// DefaultBlockSize is used when a Store is constructed with
// WithBlockSize(0) or no size option at all.
const DefaultBlockSize = 262144

// dirMode and fileMode: parent directories are created 0700, block
// files 0600.
const (
	dirMode  = 0700
	fileMode = 0600
)

// Store is a filesystem-based, size-bounded LRU cache of file blocks.
// It is safe for concurrent use.
type Store struct {
	cacheRoot string
	blocksDir string

	blockSize int64
	maxSize   int64

	debug  bool
	logger *log.Logger

	tfc *tempfile.Creator

	metrics *storeMetrics

	mu          sync.Mutex
	currentSize int64
}

// New returns a Store rooted at cacheRoot/blocks. cacheRoot is created
// if it does not already exist. On construction the store walks its
// entire tree once to recompute currentSize from on-disk reality,
// rather than trusting a persisted counter that could have gone stale.
func New(cacheRoot string, opts ...Option) (*Store, error) {
	if cacheRoot == "" {
		return nil, inputError("new", "empty cache_root")
	}

	s := &Store{
		cacheRoot: cacheRoot,
		blockSize: DefaultBlockSize,
		logger:    log.Default(),
		tfc:       tempfile.NewCreator(),
	}

	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	if s.metrics == nil {
		s.metrics = newStoreMetrics(metric.NoOp())
	}

	s.blocksDir = filepath.Join(cacheRoot, "blocks")
	if err := os.MkdirAll(s.blocksDir, dirMode); err != nil {
		return nil, ioError("mkdir blocks dir", err)
	}

	s.metrics.cacheMaxSizeBytes.Set(float64(s.maxSize))

	size, err := scanTotalSize(s.blocksDir)
	if err != nil {
		return nil, ioError("scan existing blocks", err)
	}
	s.currentSize = size
	s.metrics.cacheSizeBytes.Set(float64(s.currentSize))

	s.logf("initialized at %s (block_size=%d max_size=%d current=%d)",
		s.blocksDir, s.blockSize, s.maxSize, s.currentSize)

	return s, nil
}

func (s *Store) logf(format string, args ...interface{}) {
	if s.debug && s.logger != nil {
		s.logger.Printf("block: "+format, args...)
	}
}

// Exists reports whether the block (path, idx) is present and stat-able.
func (s *Store) Exists(path string, idx int64) bool {
	if path == "" {
		return false
	}
	p := blockPath(s.blocksDir, path, idx)
	_, err := os.Stat(p)
	return err == nil
}

// Read performs a positional read of up to size bytes at offset within
// the block (path, idx), copying into buf. found is false when no
// block is cached for (path, idx) — a miss, not a failure. A short read
// (n < size, found true) is legitimate when offset+size runs past the
// end of the stored block, as happens for the last block of a file.
// Every successful read updates the block file's atime, which the
// eviction scan depends on for LRU ordering.
func (s *Store) Read(path string, idx int64, buf []byte, size int64, offset int64) (n int, found bool, err error) {
	if path == "" || buf == nil {
		return 0, false, inputError("block read", "nil path or buffer")
	}
	if offset < 0 || size < 0 {
		return 0, false, inputError("block read", "negative size or offset")
	}

	p := blockPath(s.blocksDir, path, idx)
	f, err := os.Open(p)
	if err != nil {
		s.metrics.cacheMisses.Inc()
		return 0, false, nil
	}
	defer f.Close()

	hlen := headerLen(path)
	if _, err := f.Seek(hlen+offset, io.SeekStart); err != nil {
		return 0, false, ioError("seek", err)
	}

	want := size
	if int64(len(buf)) < want {
		want = int64(len(buf))
	}

	n, err = f.Read(buf[:want])
	if err != nil && err != io.EOF {
		return n, false, ioError("read", err)
	}

	s.metrics.cacheHits.Inc()
	s.logf("read %d bytes from %s block %d", n, path, idx)
	return n, true, nil
}

// Write stores buf[0:size] as block (path, idx), replacing any prior
// contents. The write lands in a temp file that is renamed into place,
// so a concurrent Read never observes a partial block. On success the
// block file's on-disk size (header plus size) is added to currentSize;
// if that overshoots the byte budget,
// eviction runs synchronously before Write returns.
func (s *Store) Write(path string, idx int64, buf []byte, size int64) error {
	if path == "" || buf == nil {
		return inputError("block write", "nil path or buffer")
	}
	if size < 0 || size > int64(len(buf)) {
		return inputError("block write", "invalid size")
	}

	p := blockPath(s.blocksDir, path, idx)
	if err := os.MkdirAll(filepath.Dir(p), dirMode); err != nil {
		return ioError("mkdir", err)
	}

	header, err := encodeHeader(path)
	if err != nil {
		return inputError("block write", err.Error())
	}

	tf, _, err := s.tfc.Create(p, false)
	if err != nil {
		return ioError("create temp file", err)
	}
	removeTemp := true
	defer func() {
		if removeTemp {
			os.Remove(tf.Name())
		}
	}()

	if _, err := tf.Write(header); err != nil {
		tf.Close()
		return ioError("write header", err)
	}
	if _, err := tf.Write(buf[:size]); err != nil {
		tf.Close()
		return ioError("write payload", err)
	}
	if err := tf.Close(); err != nil {
		return ioError("close temp file", err)
	}

	if err := os.Chmod(tf.Name(), fileMode); err != nil {
		return ioError("chmod", err)
	}
	if err := os.Rename(tf.Name(), p); err != nil {
		return ioError("rename", err)
	}
	removeTemp = false

	storedSize := int64(len(header)) + size

	s.mu.Lock()
	s.currentSize += storedSize
	overshoot := s.maxSize > 0 && s.currentSize > s.maxSize
	var target int64
	if overshoot {
		target = lowWaterMark(s.maxSize)
	}
	s.mu.Unlock()

	s.metrics.cacheSizeBytes.Set(float64(s.currentSize))
	s.logf("wrote %d bytes to %s block %d (cache: %d/%d)", size, path, idx, s.currentSize, s.maxSize)

	if overshoot {
		if err := s.evict(target); err != nil {
			// Eviction failures are not surfaced to the writer: the
			// write already succeeded.
			s.logf("eviction error: %v", err)
		}
	}

	return nil
}

// lowWaterMark is the eviction target, floor(0.9 * maxSize).
func lowWaterMark(maxSize int64) int64 {
	return (maxSize * 9) / 10
}

// InvalidateRange removes every block of path whose index falls in
// [start, end] where start = floor(startOffset/block_size) and
// end = floor((startOffset+length)/block_size).
func (s *Store) InvalidateRange(path string, startOffset, length int64) error {
	if path == "" {
		return inputError("invalidate range", "empty path")
	}
	if startOffset < 0 || length < 0 {
		return inputError("invalidate range", "negative offset or length")
	}

	startBlock := startOffset / s.blockSize
	endBlock := (startOffset + length) / s.blockSize

	var freed int64
	for idx := startBlock; idx <= endBlock; idx++ {
		p := blockPath(s.blocksDir, path, idx)
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		if err := os.Remove(p); err != nil {
			continue
		}
		freed += fi.Size()
	}

	if freed > 0 {
		s.mu.Lock()
		s.currentSize -= freed
		s.mu.Unlock()
		s.metrics.cacheSizeBytes.Set(float64(s.currentSize))
	}

	s.logf("invalidated blocks %d-%d for %s", startBlock, endBlock, path)
	return nil
}

// InvalidateFile removes every block belonging to path by scanning its
// hash bucket directory for files sharing its hash prefix. Because
// distinct paths can share a hash bucket and even a hash prefix on a
// collision, each candidate's header is consulted via ownerOf before
// it is removed.
func (s *Store) InvalidateFile(path string) error {
	if path == "" {
		return inputError("invalidate file", "empty path")
	}

	h := djb2(path)
	xx, yy := bucketDirs(h)
	bucketDir := filepath.Join(s.blocksDir, xx, yy)
	prefix := hashPrefix(path)

	entries, err := os.ReadDir(bucketDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ioError("readdir bucket", err)
	}

	var freed int64
	for _, e := range entries {
		name := e.Name()
		if len(name) == 0 || name[0] == '.' {
			continue
		}
		if !hasPrefix(name, prefix) {
			continue
		}

		full := filepath.Join(bucketDir, name)
		owner, ok := ownerOf(full)
		if ok && owner != path {
			// Hash-prefix collision with a different path; leave it.
			continue
		}

		fi, err := os.Stat(full)
		if err != nil {
			continue
		}
		if err := os.Remove(full); err != nil {
			continue
		}
		freed += fi.Size()
	}

	if freed > 0 {
		s.mu.Lock()
		s.currentSize -= freed
		s.mu.Unlock()
		s.metrics.cacheSizeBytes.Set(float64(s.currentSize))
	}

	s.logf("invalidated all blocks for %s", path)
	return nil
}

// VerifyOwner reports whether the stored block (path, idx) carries a
// header claiming it was written for path. found is false when no
// block is cached for (path, idx) at all — a miss, not a failure. A
// false ownerMatches with found true means another path's write
// aliased this file's hash bucket and index.
func (s *Store) VerifyOwner(path string, idx int64) (ownerMatches bool, found bool, err error) {
	p := blockPath(s.blocksDir, path, idx)
	owner, ok := ownerOf(p)
	if !ok {
		return false, false, nil
	}
	return owner == path, true, nil
}

func ownerOf(blockFile string) (string, bool) {
	f, err := os.Open(blockFile)
	if err != nil {
		return "", false
	}
	defer f.Close()
	owner, err := readHeaderOwner(f)
	if err != nil {
		return "", false
	}
	return owner, true
}

func hasPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

// Stats returns the current and configured maximum size of the store
// in bytes. A max of 0 means unbounded.
func (s *Store) Stats() (current, max int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSize, s.maxSize
}

// BlockSize returns the configured block size in bytes.
func (s *Store) BlockSize() int64 {
	return s.blockSize
}
