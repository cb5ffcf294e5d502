// Package coherency implements the arbiter that reconciles cached
// metadata and block data against a fresh backend attribute snapshot.
//
// It is deliberately stateless: every function here takes the block
// and metadata stores it acts on as arguments rather than owning them,
// so it has no lifecycle of its own and no internal locking to get
// wrong.
package coherency

import "github.com/akarasulu/cachefs/cache/meta"

// BlockInvalidator is the subset of the block store the arbiter needs:
// the ability to drop every cached block for a path. cache/block.Store
// satisfies this.
type BlockInvalidator interface {
	InvalidateFile(path string) error
}

// MetaInvalidator is the subset of the metadata store the arbiter
// needs. cache/meta.Store satisfies this.
type MetaInvalidator interface {
	Invalidate(path string) error
}

// ValidateMeta reports whether a cached record still agrees with a
// backend snapshot. Agreement is defined purely by mtime and size;
// freshness (TTL) is orthogonal and is not consulted here: TTL governs
// whether coherency needs to run at all, not whether the cache agrees
// with a snapshot once it does run.
func ValidateMeta(cached meta.Record, backend meta.Stat) bool {
	return cached.Mtime == backend.Mtime && cached.Size == backend.Size
}

// ValidateDir reports whether a cached directory listing's recorded
// mtime still agrees with the backend directory's current mtime.
func ValidateDir(cachedDirMtime int64, backendDirMtime int64) bool {
	return cachedDirMtime == backendDirMtime
}

// CheckAndInvalidate looks up path in metaStore; if a record exists
// and no longer agrees with backend, it invalidates both the metadata
// record and (when blockStore is non-nil) every cached block for path.
// It is idempotent: calling it repeatedly with the same inputs after
// the first invalidation is a no-op, since the second metaStore.Lookup
// finds nothing. A cache miss (no cached record at all) is not an
// error; there is nothing to reconcile.
func CheckAndInvalidate(metaStore interface {
	Lookup(path string) (meta.Record, bool, bool, error)
	MetaInvalidator
}, blockStore BlockInvalidator, path string, backend meta.Stat) error {
	cached, _, found, err := metaStore.Lookup(path)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if ValidateMeta(cached, backend) {
		return nil
	}

	if err := metaStore.Invalidate(path); err != nil {
		return err
	}
	if blockStore != nil {
		if err := blockStore.InvalidateFile(path); err != nil {
			return err
		}
	}
	return nil
}
