package meta

import "github.com/akarasulu/cachefs/metric"

// storeMetrics holds the lookup counters a Store reports, built from a
// metric.Collector so each Store instance gets independently named
// metrics.
type storeMetrics struct {
	lookupHits    metric.Counter
	lookupMisses  metric.Counter
	dirLookupHits metric.Counter
	dirLookupMiss metric.Counter
}

func newStoreMetrics(c metric.Collector) *storeMetrics {
	return &storeMetrics{
		lookupHits:    c.NewCounter("cachefs_meta_lookup_hits_total"),
		lookupMisses:  c.NewCounter("cachefs_meta_lookup_misses_total"),
		dirLookupHits: c.NewCounter("cachefs_meta_dir_lookup_hits_total"),
		dirLookupMiss: c.NewCounter("cachefs_meta_dir_lookup_misses_total"),
	}
}
