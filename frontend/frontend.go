// Package frontend wires getattr/open/read/readdir and invalidation
// notifications through the three core cache components (cache/block,
// cache/meta, cache/coherency) and a backend.Adapter. It is
// deliberately thin: all of the caching policy lives in the
// collaborators it calls.
package frontend

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/akarasulu/cachefs/cache/backend"
	"github.com/akarasulu/cachefs/cache/block"
	"github.com/akarasulu/cachefs/cache/coherency"
	"github.com/akarasulu/cachefs/cache/meta"
)

// FS glues the block store, metadata store, coherency arbiter, and a
// backend.Adapter into a single read path.
type FS struct {
	blocks  *block.Store
	metas   *meta.Store
	backend backend.Adapter
	logger  *log.Logger
	debug   bool
}

// Option configures an FS.
type Option func(*FS)

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(f *FS) { f.logger = l }
}

// WithDebug toggles access logging.
func WithDebug(debug bool) Option {
	return func(f *FS) { f.debug = debug }
}

// New returns an FS backed by the given block store, metadata store,
// and backend adapter.
func New(blocks *block.Store, metas *meta.Store, adapter backend.Adapter, opts ...Option) *FS {
	f := &FS{blocks: blocks, metas: metas, backend: adapter, logger: log.Default()}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *FS) logf(format string, args ...interface{}) {
	if f.debug {
		f.logger.Printf("frontend: "+format, args...)
	}
}

// Getattr looks up cached attributes for path; on a miss or a stale
// hit, it fetches a fresh backend stat and stores it (or stores a
// negative entry on backend.ErrNotExist).
func (f *FS) Getattr(ctx context.Context, path string) (meta.Record, error) {
	rec, fresh, found, err := f.metas.Lookup(path)
	if err != nil {
		return meta.Record{}, err
	}
	if found && fresh {
		f.logf("getattr %s: fresh cache hit", path)
		return rec, nil
	}

	st, err := f.backend.Stat(ctx, path)
	if err != nil {
		if err == backend.ErrNotExist {
			if serr := f.metas.StoreNegative(path); serr != nil {
				return meta.Record{}, serr
			}
			f.logf("getattr %s: backend confirms absent", path)
			return meta.Record{}, backend.ErrNotExist
		}
		return meta.Record{}, fmt.Errorf("frontend: getattr %s: %w", path, err)
	}

	if serr := f.metas.Store(path, toMetaStat(st)); serr != nil {
		return meta.Record{}, serr
	}

	rec, _, _, err = f.metas.Lookup(path)
	if err != nil {
		return meta.Record{}, err
	}
	f.logf("getattr %s: refreshed from backend", path)
	return rec, nil
}

// Open reconciles the cache against a freshly fetched backend stat
// before any bytes are served, invalidating stale metadata and blocks.
func (f *FS) Open(ctx context.Context, path string) error {
	st, err := f.backend.Stat(ctx, path)
	if err != nil {
		return fmt.Errorf("frontend: open %s: stat backend: %w", path, err)
	}
	return coherency.CheckAndInvalidate(f.metas, f.blocks, path, toMetaStat(st))
}

// Read serves from the block store, populating any missing blocks
// from the backend on a miss.
func (f *FS) Read(ctx context.Context, path string, buf []byte, offset int64) (int, error) {
	blockSize := f.blocks.BlockSize()
	total := 0

	for total < len(buf) {
		absOffset := offset + int64(total)
		idx := absOffset / blockSize
		blockOffset := absOffset % blockSize
		want := int64(len(buf)-total)
		if want > blockSize-blockOffset {
			want = blockSize - blockOffset
		}

		n, found, err := f.blocks.Read(path, idx, buf[total:total+int(want)], want, blockOffset)
		if err != nil {
			return total, fmt.Errorf("frontend: read %s: %w", path, err)
		}
		if !found {
			if err := f.populateBlock(ctx, path, idx, blockSize); err != nil {
				return total, err
			}
			n, found, err = f.blocks.Read(path, idx, buf[total:total+int(want)], want, blockOffset)
			if err != nil {
				return total, fmt.Errorf("frontend: read %s: %w", path, err)
			}
			if !found {
				return total, fmt.Errorf("frontend: read %s: block %d missing after populate", path, idx)
			}
		}

		total += n
		if int64(n) < want {
			// Short read: end of file reached within this block.
			break
		}
	}

	f.logf("read %s: served %d bytes from offset %d", path, total, offset)
	return total, nil
}

func (f *FS) populateBlock(ctx context.Context, path string, idx, blockSize int64) error {
	rc, err := f.backend.ReadRange(ctx, path, idx*blockSize, blockSize)
	if err != nil {
		return fmt.Errorf("frontend: populate %s block %d: %w", path, idx, err)
	}
	defer rc.Close()

	buf := make([]byte, blockSize)
	n, err := io.ReadFull(rc, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("frontend: populate %s block %d: %w", path, idx, err)
	}

	if err := f.blocks.Write(path, idx, buf[:n], int64(n)); err != nil {
		return fmt.Errorf("frontend: populate %s block %d: %w", path, idx, err)
	}
	f.logf("populated %s block %d (%d bytes) from backend", path, idx, n)
	return nil
}

// Readdir looks up a cached directory listing; on a miss, it
// enumerates the backend and caches the result.
func (f *FS) Readdir(ctx context.Context, path string) ([]meta.DirEntry, error) {
	entries, _, fresh, found, err := f.metas.DirLookup(path)
	if err != nil {
		return nil, err
	}
	if found && fresh {
		f.logf("readdir %s: fresh cache hit", path)
		return entries, nil
	}

	backendEntries, err := f.backend.Readdir(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("frontend: readdir %s: %w", path, err)
	}

	dirStat, err := f.backend.Stat(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("frontend: readdir %s: stat dir: %w", path, err)
	}

	converted := make([]meta.DirEntry, len(backendEntries))
	for i, e := range backendEntries {
		t := meta.EntryFile
		if e.IsDir {
			t = meta.EntryDir
		}
		converted[i] = meta.DirEntry{Name: e.Name, Type: t}
	}

	if err := f.metas.DirStore(path, converted, dirStat.Mtime); err != nil {
		return nil, err
	}
	f.logf("readdir %s: refreshed %d entries from backend", path, len(converted))
	return converted, nil
}

// Invalidate notifies the cache that path changed out-of-band: it
// invalidates metadata and every cached block for path.
func (f *FS) Invalidate(path string) error {
	if err := f.metas.Invalidate(path); err != nil {
		return err
	}
	if err := f.blocks.InvalidateFile(path); err != nil {
		return err
	}
	f.logf("invalidated %s", path)
	return nil
}

// InvalidateDir notifies the cache that a directory's listing changed
// out-of-band.
func (f *FS) InvalidateDir(path string) error {
	if err := f.metas.DirInvalidate(path); err != nil {
		return err
	}
	f.logf("invalidated directory listing for %s", path)
	return nil
}

func toMetaStat(st backend.Stat) meta.Stat {
	return meta.Stat{
		Size:  st.Size,
		Mtime: st.Mtime,
		Ctime: st.Ctime,
		Mode:  st.Mode,
		UID:   st.UID,
		GID:   st.GID,
		Ino:   st.Ino,
		IsDir: st.IsDir,
	}
}
