package voxel

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeLabel = "mode"
	opLabel   = "op"
)

var (
	lockWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voxel_lock_wait_seconds",
		Help:    "Time spent waiting for a region lock.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{
		modeLabel,
	})

	lockTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxel_lock_timeouts_total",
		Help: "Region lock requests that gave up.",
	}, []string{
		modeLabel,
	})

	cacheLeafOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxel_cache_leaf_ops_total",
		Help: "Leaves subdivided, cached, evicted or cleared by the cache manager.",
	}, []string{
		opLabel,
	})

	cachedLeafCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxel_cached_leaves",
		Help: "Leaves holding generator data after the last cache pass.",
	})

	generatorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxel_generator_failures_total",
		Help: "Errors returned by generators.",
	})

	compactedNodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxel_compacted_nodes_total",
		Help: "Octree nodes removed by compaction.",
	})
)

func instrumentLockWait(mode LockMode, start time.Time) {
	lockWaitSeconds.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
}
