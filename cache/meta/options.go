package meta

import (
	"fmt"
	"log"
	"time"

	"github.com/akarasulu/cachefs/metric"
)

// DefaultNegativeTTL is the fixed TTL applied to negative entries,
// deliberately short so a path that starts existing is noticed quickly.
const DefaultNegativeTTL = 2 * time.Second

// Option configures a Store at construction time.
type Option func(*Store) error

// WithMetaTTL sets the freshness window for positive metadata entries.
func WithMetaTTL(d time.Duration) Option {
	return func(s *Store) error {
		if d <= 0 {
			return fmt.Errorf("meta: invalid meta_ttl: %s", d)
		}
		s.metaTTL = d
		return nil
	}
}

// WithDirTTL sets the freshness window for cached directory listings.
func WithDirTTL(d time.Duration) Option {
	return func(s *Store) error {
		if d <= 0 {
			return fmt.Errorf("meta: invalid dir_ttl: %s", d)
		}
		s.dirTTL = d
		return nil
	}
}

// WithNegativeTTL overrides DefaultNegativeTTL.
func WithNegativeTTL(d time.Duration) Option {
	return func(s *Store) error {
		if d <= 0 {
			return fmt.Errorf("meta: invalid negative ttl: %s", d)
		}
		s.negTTL = d
		return nil
	}
}

// WithDebug turns on structured logging for store/invalidate operations.
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

// WithMetricCollector issues the store's lookup-hit/miss metrics
// through c instead of discarding them. Defaults to metric.NoOp().
func WithMetricCollector(c metric.Collector) Option {
	return func(s *Store) error {
		s.metrics = newStoreMetrics(c)
		return nil
	}
}
