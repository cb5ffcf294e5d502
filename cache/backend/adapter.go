// Package backend defines the adapter collaborator a frontend asks for
// a fresh attribute snapshot, a byte range, or a directory listing, so
// it can populate the metadata and block caches. CacheFS's core
// (cache/block, cache/meta, cache/coherency) never imports this
// package directly; a frontend wires an Adapter implementation in.
package backend

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned by Stat, ReadRange and Readdir when the
// backend confirms a path does not exist, distinguishing a definitive
// ENOENT from a transient failure.
var ErrNotExist = errors.New("backend: no such file or directory")

// Stat is the attribute snapshot a backend reports for a path. It
// supplies the meta.Stat and coherency comparison inputs. UID, GID and
// Ino are zero when a backend has no notion of ownership or inode
// numbers; callers should not treat a zero value as meaningful on its
// own.
type Stat struct {
	Size  int64
	Mtime int64
	Ctime int64
	Mode  uint32
	UID   uint32
	GID   uint32
	Ino   uint64
	IsDir bool
}

// DirEntry is one member of a backend directory listing.
type DirEntry struct {
	Name  string
	IsDir bool
}

// Adapter is the minimal surface a backend must expose for CacheFS to
// populate its caches: stat a path, read a byte range of a file, and
// enumerate a directory.
type Adapter interface {
	Stat(ctx context.Context, path string) (Stat, error)
	ReadRange(ctx context.Context, path string, offset, size int64) (io.ReadCloser, error)
	Readdir(ctx context.Context, path string) ([]DirEntry, error)
}
