// Package meta implements the metadata cache: per-path attribute
// snapshots and directory listings served with a TTL, persisted in an
// embedded key-value store so a restart doesn't require a cold refetch
// from the backend.
//
// Two logical tables make up the store: "metadata" (one row per path)
// and "dir_entries" (one row per directory entry), both governed by a
// cached_at/valid_until pair that determines freshness.
package meta

import "time"

// EntryType classifies a cached path.
type EntryType int

const (
	EntryFile     EntryType = 1
	EntryDir      EntryType = 2
	EntryNegative EntryType = 3
)

func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "file"
	case EntryDir:
		return "dir"
	case EntryNegative:
		return "negative"
	default:
		return "unknown"
	}
}

// Record is a per-path attribute snapshot. A Record with Type ==
// EntryNegative records that the backend confirmed no entry exists at
// the path.
type Record struct {
	Type       EntryType
	Size       int64
	Mtime      int64
	Ctime      int64
	Mode       uint32
	UID        uint32
	GID        uint32
	Ino        uint64
	CachedAt   int64
	ValidUntil int64
}

// Fresh reports whether the record is still valid at t, per the
// invariant "fresh iff now < valid_until".
func (r Record) Fresh(t time.Time) bool {
	return t.Unix() < r.ValidUntil
}

// Stat is the backend-attribute input to Store; it mirrors the subset
// of a POSIX stat(2) result the metadata cache persists.
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

// DirEntry is one member of a cached directory listing.
type DirEntry struct {
	Name string
	Type EntryType
}
