package block

import "github.com/akarasulu/cachefs/metric"

// storeMetrics holds the handful of gauges and counters a Store
// reports. Built from a metric.Collector so that each Store instance
// gets independently named metrics instead of fighting over
// package-level registrations.
type storeMetrics struct {
	cacheSizeBytes     metric.Gauge
	cacheMaxSizeBytes  metric.Gauge
	cacheEvictedBytes  metric.Counter
	cacheEvictedBlocks metric.Counter
	cacheHits          metric.Counter
	cacheMisses        metric.Counter
}

func newStoreMetrics(c metric.Collector) *storeMetrics {
	return &storeMetrics{
		cacheSizeBytes:     c.NewGuage("cachefs_block_cache_size_bytes"),
		cacheMaxSizeBytes:  c.NewGuage("cachefs_block_cache_size_bytes_limit"),
		cacheEvictedBytes:  c.NewCounter("cachefs_block_cache_evicted_bytes_total"),
		cacheEvictedBlocks: c.NewCounter("cachefs_block_cache_evicted_blocks_total"),
		cacheHits:          c.NewCounter("cachefs_block_cache_hits_total"),
		cacheMisses:        c.NewCounter("cachefs_block_cache_misses_total"),
	}
}
