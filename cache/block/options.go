package block

import (
	"fmt"
	"log"

	"github.com/akarasulu/cachefs/metric"
)

// Option configures a Store at construction time.
type Option func(*Store) error

// WithBlockSize overrides the default block size (262144 bytes).
func WithBlockSize(size int64) Option {
	return func(s *Store) error {
		if size < 0 {
			return fmt.Errorf("block: invalid block size: %d", size)
		}
		if size == 0 {
			size = DefaultBlockSize
		}
		s.blockSize = size
		return nil
	}
}

// WithMaxCacheSize bounds the store to size bytes of blocks on disk.
// Zero (the default) means unbounded.
func WithMaxCacheSize(size int64) Option {
	return func(s *Store) error {
		if size < 0 {
			return fmt.Errorf("block: invalid max cache size: %d", size)
		}
		s.maxSize = size
		return nil
	}
}

// WithDebug turns on logging for mutating and evicting operations.
func WithDebug(debug bool) Option {
	return func(s *Store) error {
		s.debug = debug
		return nil
	}
}

// WithLogger sets the logger used when debug is enabled. Defaults to
// log.Default().
func WithLogger(l *log.Logger) Option {
	return func(s *Store) error {
		s.logger = l
		return nil
	}
}

// WithMetricCollector issues the store's size/hit/eviction metrics
// through c instead of discarding them. Defaults to metric.NoOp(), so
// a Store built without this option registers no metrics at all.
func WithMetricCollector(c metric.Collector) Option {
	return func(s *Store) error {
		s.metrics = newStoreMetrics(c)
		return nil
	}
}
