package meta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/akarasulu/cachefs/metric"
)

var (
	metadataBucket   = []byte("metadata")
	dirEntriesBucket = []byte("dir_entries")
)

const dirKeySep = '\x00'

// Store is a persistent, TTL-governed cache of per-path attributes and
// directory listings, backed by an embedded bbolt database file. It is
// safe for concurrent use; bbolt serializes writers internally.
type Store struct {
	db *bbolt.DB

	metaTTL time.Duration
	dirTTL  time.Duration
	negTTL  time.Duration

	debug  bool
	logger *log.Logger

	metrics *storeMetrics

	now func() time.Time
}

// New opens (creating if necessary) a metadata store at dbPath.
func New(dbPath string, opts ...Option) (*Store, error) {
	if dbPath == "" {
		return nil, inputError("new", "empty db path")
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, storageError("open", err)
	}

	s := &Store{
		db:      db,
		metaTTL: 60 * time.Second,
		dirTTL:  30 * time.Second,
		negTTL:  DefaultNegativeTTL,
		logger:  log.Default(),
		now:     time.Now,
	}

	for _, o := range opts {
		if err := o(s); err != nil {
			db.Close()
			return nil, err
		}
	}

	if s.metrics == nil {
		s.metrics = newStoreMetrics(metric.NoOp())
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(metadataBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(dirEntriesBucket); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, storageError("init buckets", err)
	}

	s.logf("initialized at %s (meta_ttl=%s dir_ttl=%s neg_ttl=%s)", dbPath, s.metaTTL, s.dirTTL, s.negTTL)
	return s, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) logf(format string, args ...interface{}) {
	if s.debug && s.logger != nil {
		s.logger.Printf("meta: "+format, args...)
	}
}

// Lookup returns the record cached for path, if any. found is false
// when no record exists at all; fresh reflects now < valid_until and
// is only meaningful when found is true. A stale hit still returns the
// record — it is up to the caller to decide whether to use it or
// refresh it.
func (s *Store) Lookup(path string) (rec Record, fresh bool, found bool, err error) {
	if path == "" {
		return Record{}, false, false, inputError("meta", "empty path")
	}

	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(metadataBucket).Get([]byte(path))
		if v == nil {
			return nil
		}
		if jerr := json.Unmarshal(v, &rec); jerr != nil {
			return jerr
		}
		found = true
		return nil
	})
	if err != nil {
		return Record{}, false, false, storageError("lookup", err)
	}
	if found {
		s.metrics.lookupHits.Inc()
		fresh = rec.Fresh(s.now())
	} else {
		s.metrics.lookupMisses.Inc()
	}
	return rec, fresh, found, nil
}

// Store upserts a positive record for path from a freshly-fetched
// backend stat. cached_at is set to now, valid_until to now + meta_ttl.
func (s *Store) Store(path string, st Stat) error {
	if path == "" {
		return inputError("meta", "empty path")
	}

	now := s.now().Unix()
	entryType := EntryFile
	if st.IsDir {
		entryType = EntryDir
	}

	rec := Record{
		Type:       entryType,
		Size:       st.Size,
		Mtime:      st.Mtime,
		Ctime:      st.Ctime,
		Mode:       st.Mode,
		UID:        st.UID,
		GID:        st.GID,
		Ino:        st.Ino,
		CachedAt:   now,
		ValidUntil: now + int64(s.metaTTL/time.Second),
	}

	return s.putRecord(path, rec)
}

// StoreNegative records that the backend confirmed no entry exists at
// path. Its TTL is the fixed, short negTTL rather than meta_ttl, so a
// path that later starts existing is noticed quickly.
func (s *Store) StoreNegative(path string) error {
	if path == "" {
		return inputError("meta", "empty path")
	}

	now := s.now().Unix()
	rec := Record{
		Type:       EntryNegative,
		CachedAt:   now,
		ValidUntil: now + int64(s.negTTL/time.Second),
	}
	return s.putRecord(path, rec)
}

func (s *Store) putRecord(path string, rec Record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return storageError("marshal", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metadataBucket).Put([]byte(path), buf)
	})
	if err != nil {
		return storageError("store", err)
	}

	s.logf("stored %s entry for %s", rec.Type, path)
	return nil
}

// Invalidate removes any cached record for path.
func (s *Store) Invalidate(path string) error {
	if path == "" {
		return inputError("meta", "empty path")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metadataBucket).Delete([]byte(path))
	})
	if err != nil {
		return storageError("invalidate", err)
	}

	s.logf("invalidated metadata for %s", path)
	return nil
}

type dirEntryRecord struct {
	Type       EntryType
	DirMtime   int64
	CachedAt   int64
	ValidUntil int64
	Generation string
}

func dirEntryKey(dirPath, entryName string) []byte {
	buf := make([]byte, 0, len(dirPath)+1+len(entryName))
	buf = append(buf, dirPath...)
	buf = append(buf, dirKeySep)
	buf = append(buf, entryName...)
	return buf
}

func dirKeyPrefix(dirPath string) []byte {
	buf := make([]byte, 0, len(dirPath)+1)
	buf = append(buf, dirPath...)
	buf = append(buf, dirKeySep)
	return buf
}

// DirLookup returns the cached listing for a directory path, in
// ascending entry-name order (the iteration order of a bbolt cursor
// over lexicographically-keyed entries). found is false when nothing
// is cached; the full listing is always present or none of it is,
// because DirStore writes the whole listing in one transaction. fresh
// and dirMtime are derived from the first entry, since DirStore gives
// every row in a listing the same valid_until and dir_mtime.
func (s *Store) DirLookup(path string) (entries []DirEntry, dirMtime int64, fresh bool, found bool, err error) {
	if path == "" {
		return nil, 0, false, false, inputError("meta", "empty path")
	}

	prefix := dirKeyPrefix(path)

	err = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(dirEntriesBucket).Cursor()
		first := true
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec dirEntryRecord
			if jerr := json.Unmarshal(v, &rec); jerr != nil {
				return jerr
			}
			name := string(k[len(prefix):])
			entries = append(entries, DirEntry{Name: name, Type: rec.Type})
			if first {
				dirMtime = rec.DirMtime
				fresh = s.now().Unix() < rec.ValidUntil
				first = false
			}
		}
		found = len(entries) > 0
		return nil
	})
	if err != nil {
		return nil, 0, false, false, storageError("dir lookup", err)
	}
	if found {
		s.metrics.dirLookupHits.Inc()
	} else {
		s.metrics.dirLookupMiss.Inc()
	}
	return entries, dirMtime, fresh, found, nil
}

// DirGeneration returns the generation tag of the listing currently
// cached for path, without reading the listing itself. Every DirStore
// call stamps its rows with a fresh, random generation: bbolt's
// transaction snapshot already guarantees a DirLookup never observes a
// half-replaced listing, but a caller holding a listing across two
// separate DirLookup calls can use DirGeneration to cheaply notice
// that a concurrent DirStore replaced it in between, without
// re-reading and diffing every entry.
func (s *Store) DirGeneration(path string) (generation string, found bool, err error) {
	if path == "" {
		return "", false, inputError("meta", "empty path")
	}

	prefix := dirKeyPrefix(path)
	err = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(dirEntriesBucket).Cursor()
		k, v := c.Seek(prefix)
		if k == nil || !bytes.HasPrefix(k, prefix) {
			return nil
		}
		var rec dirEntryRecord
		if jerr := json.Unmarshal(v, &rec); jerr != nil {
			return jerr
		}
		generation = rec.Generation
		found = true
		return nil
	})
	if err != nil {
		return "", false, storageError("dir generation", err)
	}
	return generation, found, nil
}

// DirStore atomically replaces the cached listing for path: every
// existing dir_entries row for path is deleted and the new set
// inserted in a single bbolt transaction, so a concurrent DirLookup
// never observes a half-replaced listing. Every inserted row shares
// one cached_at/valid_until pair.
func (s *Store) DirStore(path string, entries []DirEntry, dirMtime int64) error {
	if path == "" {
		return inputError("meta", "empty path")
	}
	if entries == nil {
		return inputError("dir store", "nil entries")
	}

	now := s.now().Unix()
	validUntil := now + int64(s.dirTTL/time.Second)
	generation := uuid.New().String()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(dirEntriesBucket)
		if err := deleteDirPrefix(b, path); err != nil {
			return err
		}

		rec := dirEntryRecord{DirMtime: dirMtime, CachedAt: now, ValidUntil: validUntil, Generation: generation}
		for _, e := range entries {
			rec.Type = e.Type
			buf, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put(dirEntryKey(path, e.Name), buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageError("dir store", err)
	}

	s.logf("stored %d dir entries for %s", len(entries), path)
	return nil
}

// DirInvalidate removes every cached dir_entries row for path.
func (s *Store) DirInvalidate(path string) error {
	if path == "" {
		return inputError("meta", "empty path")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return deleteDirPrefix(tx.Bucket(dirEntriesBucket), path)
	})
	if err != nil {
		return storageError("dir invalidate", err)
	}

	s.logf("invalidated dir listing for %s", path)
	return nil
}

func deleteDirPrefix(b *bbolt.Bucket, path string) error {
	prefix := dirKeyPrefix(path)
	c := b.Cursor()

	var keys [][]byte
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return fmt.Errorf("delete %q: %w", k, err)
		}
	}
	return nil
}
