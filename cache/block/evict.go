package block

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/djherbis/atime"
)

// scanTotalSize walks blocksDir once and sums the size of every
// regular file found, used to seed currentSize at startup without
// trusting any persisted counter that could have gone stale.
func scanTotalSize(blocksDir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(blocksDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(d.Name()) > 0 && d.Name()[0] == '.' {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		total += fi.Size()
		return nil
	})
	return total, err
}

type blockEntry struct {
	path string
	size int64
	at   int64
}

// evict walks the entire blocks tree, sorts every block file by atime
// ascending, and unlinks the oldest ones until currentSize drops to
// target: a full scan plus sort rather than an in-memory LRU list,
// trading write-path bookkeeping for a simple stateless eviction pass.
func (s *Store) evict(target int64) error {
	var entries []blockEntry

	err := filepath.WalkDir(s.blocksDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(d.Name()) > 0 && d.Name()[0] == '.' {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		at := atime.Get(fi)
		entries = append(entries, blockEntry{path: p, size: fi.Size(), at: at.UnixNano()})
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].at < entries[j].at })

	s.mu.Lock()
	current := s.currentSize
	s.mu.Unlock()

	var freedBytes int64
	var freedBlocks int64
	for _, e := range entries {
		if current-freedBytes <= target {
			break
		}
		if err := os.Remove(e.path); err != nil {
			continue
		}
		freedBytes += e.size
		freedBlocks++
	}

	if freedBlocks == 0 {
		return nil
	}

	s.mu.Lock()
	s.currentSize -= freedBytes
	s.mu.Unlock()

	s.metrics.cacheSizeBytes.Set(float64(s.currentSize))
	s.metrics.cacheEvictedBytes.Add(float64(freedBytes))
	s.metrics.cacheEvictedBlocks.Add(float64(freedBlocks))

	s.logf("evicted %d blocks (%d bytes), target=%d current=%d", freedBlocks, freedBytes, target, s.currentSize)
	return nil
}
