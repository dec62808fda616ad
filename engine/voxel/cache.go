package voxel

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/memmaker/voxelstore/engine/util"
	"github.com/pkg/errors"
)

type CacheOptions struct {
	// LockTimeout bounds how long a pass waits for its write lock.
	LockTimeout time.Duration
	// Scheduler runs the passes started by Run. Nil runs them on Run's goroutine.
	Scheduler TaskScheduler
	// Priority of scheduled passes.
	Priority int
}

// TaskScheduler is a work queue that runs fn at some point on another goroutine.
type TaskScheduler interface {
	Go(priority int, name string, fn func(ctx context.Context) error)
}

// CacheStats reports what one CacheMostUsed pass did.
type CacheStats struct {
	Subdivided  int
	Cached      int
	Evicted     int
	TotalCached int
	// Failed counts leaves the generator could not fill; they keep their state.
	Failed int
}

// CacheManager materialises frequently read leaves and evicts cold ones.
// It only ever touches generator data; edited channels are left alone.
type CacheManager struct {
	vol       *Volume
	timeout   time.Duration
	scheduler TaskScheduler
	priority  int
	running   atomic.Bool
}

func NewCacheManager(vol *Volume, opts CacheOptions) *CacheManager {
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = vol.lockTimeout
	}
	return &CacheManager{vol: vol, timeout: timeout, scheduler: opts.Scheduler, priority: opts.Priority}
}

func (c *CacheManager) lock(ctx context.Context, b Bounds) (*RegionLock, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.vol.Lock(ctx, LockWrite, b)
}

// CacheMostUsed subdivides hot coarse nodes one level, fills hot leaves from
// the generator and evicts the least recently hot leaves beyond budget.
// When the write lock cannot be taken the pass does nothing.
func (c *CacheManager) CacheMostUsed(ctx context.Context, threshold uint32, budget int) (CacheStats, error) {
	var stats CacheStats
	if threshold == 0 {
		threshold = 1
	}
	if budget < 0 {
		budget = 0
	}
	v := c.vol
	lock, err := c.lock(ctx, v.bounds)
	if err != nil {
		return stats, errors.Wrap(err, "cache pass")
	}
	defer lock.Unlock()
	v.tick.Add(1)

	var candidates []*octreeNode
	v.treeMu.Lock()
	var hot []nodeIndex
	v.tree.visitChildless(v.bounds, func(i nodeIndex, n *octreeNode) bool {
		if n.hits.Load() >= threshold {
			hot = append(hot, i)
		}
		return true
	})
	for _, i := range hot {
		n := v.tree.get(i)
		if !n.isLeaf() {
			v.tree.subdivide(i)
			stats.Subdivided++
			continue
		}
		if cacheable(&n.density) || cacheable(&n.material) {
			candidates = append(candidates, n)
		}
	}
	v.treeMu.Unlock()

	for _, n := range candidates {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := c.fill(n, AllChannels); err != nil {
			stats.Failed++
			util.LogCacheWarning("leaf %v not cached: %v", n.min, err)
			continue
		}
		stats.Cached++
	}

	stats.Evicted, stats.TotalCached = c.evictOverBudget(budget)

	cacheLeafOps.WithLabelValues("subdivided").Add(float64(stats.Subdivided))
	cacheLeafOps.WithLabelValues("cached").Add(float64(stats.Cached))
	cacheLeafOps.WithLabelValues("evicted").Add(float64(stats.Evicted))
	cachedLeafCount.Set(float64(stats.TotalCached))
	util.LogCacheInfo("pass: subdivided %d, cached %d, evicted %d, total %d", stats.Subdivided, stats.Cached, stats.Evicted, stats.TotalCached)
	return stats, nil
}

func cacheable[T float32 | Material](c *channel[T]) bool {
	return c.state == Empty || (c.state == Single && !c.edited)
}

// fill turns the cacheable selected channels of a leaf into Cached arrays.
// The caller holds a write lock over the leaf.
func (c *CacheManager) fill(n *octreeNode, ch Channels) error {
	v := c.vol
	wantD := ch.Has(DensityChannel) && cacheable(&n.density)
	wantM := ch.Has(MaterialChannel) && cacheable(&n.material)
	if !wantD && !wantM {
		return nil
	}
	var genD []float32
	var genM []Material
	if (wantD && n.density.state == Empty) || (wantM && n.material.state == Empty) {
		var err error
		genD, genM, err = v.generateLeaf(n)
		if err != nil {
			return err
		}
	}
	v.treeMu.Lock()
	defer v.treeMu.Unlock()
	if wantD {
		n.density = channel[float32]{state: Cached, data: arrayFrom(&n.density, genD, v.leafVoxels())}
	}
	if wantM {
		n.material = channel[Material]{state: Cached, data: arrayFrom(&n.material, genM, v.leafVoxels())}
	}
	return nil
}

func (c *CacheManager) evictOverBudget(budget int) (evicted, total int) {
	v := c.vol
	v.treeMu.Lock()
	defer v.treeMu.Unlock()
	var cached []*octreeNode
	v.tree.visitChildless(v.bounds, func(_ nodeIndex, n *octreeNode) bool {
		if n.isCached() {
			cached = append(cached, n)
		}
		return true
	})
	if len(cached) <= budget {
		return 0, len(cached)
	}
	sort.Slice(cached, func(i, j int) bool {
		ri, rj := cached[i].recent.Load(), cached[j].recent.Load()
		if ri != rj {
			return ri < rj
		}
		return cached[i].hits.Load() < cached[j].hits.Load()
	})
	for _, n := range cached[:len(cached)-budget] {
		evictLeaf(n)
		evicted++
	}
	return evicted, budget
}

func evictLeaf(n *octreeNode) {
	if n.density.state == Cached {
		n.density.clear()
	}
	if n.material.state == Cached {
		n.material.clear()
	}
	n.hits.Store(0)
}

// CacheBounds forces the selected channels of every leaf in b into the cache.
func (c *CacheManager) CacheBounds(ctx context.Context, b Bounds, values, materials bool) error {
	v := c.vol
	if !b.IsValid() || !v.bounds.ContainsBounds(b) {
		return invalidBounds("cache %v in volume %v", b, v.bounds)
	}
	var ch Channels
	if values {
		ch |= DensityChannel
	}
	if materials {
		ch |= MaterialChannel
	}
	if ch == 0 {
		return nil
	}
	lock, err := c.lock(ctx, b)
	if err != nil {
		return errors.Wrap(err, "cache bounds")
	}
	defer lock.Unlock()

	count := 0
	for _, n := range v.leavesFor(b) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.fill(n, ch); err != nil {
			return err
		}
		count++
	}
	cacheLeafOps.WithLabelValues("cached").Add(float64(count))
	util.LogCacheInfo("cached %d leaves in %v", count, b)
	return nil
}

// ClearCache evicts every cached leaf that does not intersect one of preserve.
func (c *CacheManager) ClearCache(ctx context.Context, preserve []Bounds) (int, error) {
	v := c.vol
	lock, err := c.lock(ctx, v.bounds)
	if err != nil {
		return 0, errors.Wrap(err, "clear cache")
	}
	defer lock.Unlock()

	v.treeMu.Lock()
	defer v.treeMu.Unlock()
	cleared := 0
	v.tree.visitChildless(v.bounds, func(_ nodeIndex, n *octreeNode) bool {
		if !n.isCached() {
			return true
		}
		leaf := n.bounds(v.leafSize)
		for _, keep := range preserve {
			if keep.Intersects(leaf) {
				return true
			}
		}
		evictLeaf(n)
		cleared++
		return true
	})
	cacheLeafOps.WithLabelValues("cleared").Add(float64(cleared))
	util.LogCacheInfo("cleared %d leaves, %d regions preserved", cleared, len(preserve))
	return cleared, nil
}

// Run starts a pass every interval until ctx ends. A pass is skipped while
// the previous one is still running.
func (c *CacheManager) Run(ctx context.Context, interval time.Duration, threshold uint32, budget int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.running.CompareAndSwap(false, true) {
				continue
			}
			pass := func(ctx context.Context) error {
				defer c.running.Store(false)
				return c.pass(ctx, threshold, budget)
			}
			if c.scheduler != nil {
				c.scheduler.Go(c.priority, "cache-pass", pass)
				continue
			}
			if err := pass(ctx); err != nil && ctx.Err() != nil {
				return
			}
		}
	}
}

func (c *CacheManager) pass(ctx context.Context, threshold uint32, budget int) error {
	_, err := c.CacheMostUsed(ctx, threshold, budget)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrLockTimeout) {
		util.LogCacheWarning("skipped pass: %v", err)
	} else if ctx.Err() == nil {
		util.LogCacheWarning("pass failed: %v", err)
	}
	return err
}
