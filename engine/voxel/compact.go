package voxel

import (
	"context"

	"github.com/memmaker/voxelstore/engine/util"
	"github.com/pkg/errors"
)

// Compact replaces uniform leaf arrays by single values and merges parents
// whose eight children hold identical uniform content. Edited children only
// merge with edited siblings of the same value. Returns the number of nodes removed.
func (v *Volume) Compact(ctx context.Context) (int, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.lockTimeout)
		defer cancel()
	}
	lock, err := v.Lock(ctx, LockWrite, v.bounds)
	if err != nil {
		return 0, errors.Wrap(err, "compact")
	}
	defer lock.Unlock()

	v.treeMu.Lock()
	deleted := v.compactNode(rootNode)
	v.treeMu.Unlock()

	compactedNodes.Add(float64(deleted))
	util.LogVoxelDebug("compaction removed %d nodes", deleted)
	return deleted, nil
}

func (v *Volume) compactNode(i nodeIndex) int {
	n := v.tree.get(i)
	if !n.hasChildren() {
		if n.isLeaf() {
			compress(&n.density)
			compress(&n.material)
		}
		return 0
	}
	deleted := 0
	for slot := 0; slot < 8; slot++ {
		deleted += v.compactNode(n.children + nodeIndex(slot))
	}
	first := v.tree.get(n.children)
	var recent uint64
	for slot := 0; slot < 8; slot++ {
		c := v.tree.get(n.children + nodeIndex(slot))
		if c.hasChildren() || !c.density.sameUniform(&first.density) || !c.material.sameUniform(&first.material) {
			return deleted
		}
		recent = max(recent, c.recent.Load())
	}
	n.density = channel[float32]{state: first.density.state, value: first.density.value, edited: first.density.edited}
	n.material = channel[Material]{state: first.material.state, value: first.material.value, edited: first.material.edited}
	n.recent.Store(recent)
	n.hits.Store(0)
	v.tree.collapse(i)
	return deleted + 8
}

func compress[T float32 | Material](c *channel[T]) {
	if !c.hasArray() {
		return
	}
	if value, ok := c.uniformArray(); ok {
		*c = channel[T]{state: Single, value: value, edited: c.state == Dirty}
	}
}

// VolumeStats is a snapshot of the octree shape.
type VolumeStats struct {
	Nodes     int
	Childless int
	Leaves    int
	Single    int
	Cached    int
	Dirty     int
	Bytes     int
}

func (v *Volume) Stats() VolumeStats {
	v.treeMu.RLock()
	defer v.treeMu.RUnlock()
	s := VolumeStats{Nodes: v.tree.liveNodes()}
	v.tree.visitChildless(v.bounds, func(_ nodeIndex, n *octreeNode) bool {
		s.Childless++
		if n.isLeaf() {
			s.Leaves++
		}
		if n.density.state == Single || n.material.state == Single {
			s.Single++
		}
		if n.isCached() {
			s.Cached++
		}
		if n.density.state == Dirty || n.material.state == Dirty {
			s.Dirty++
		}
		s.Bytes += n.density.bytes() + n.material.bytes()
		return true
	})
	return s
}
