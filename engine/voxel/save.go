package voxel

import (
	"context"

	"github.com/memmaker/voxelstore/engine/util"
	"github.com/pkg/errors"
)

// ChannelSave holds one edited channel: a single value or a dense array.
type ChannelSave[T float32 | Material] struct {
	Uniform bool
	Value   T
	Values  []T
}

// NodeSave is the edited content of one childless node.
// A nil channel was never edited there.
type NodeSave struct {
	Min      Int3
	Depth    uint8
	Density  *ChannelSave[float32]
	Material *ChannelSave[Material]
}

// VolumeSave is an in-memory dump of every edited voxel of a volume.
type VolumeSave struct {
	Depth    int
	LeafSize int32
	Nodes    []NodeSave
}

func saveChannel[T float32 | Material](c *channel[T]) *ChannelSave[T] {
	switch {
	case c.state == Dirty:
		values := make([]T, len(c.data))
		copy(values, c.data)
		return &ChannelSave[T]{Values: values}
	case c.state == Single && c.edited:
		return &ChannelSave[T]{Uniform: true, Value: c.value}
	}
	return nil
}

func loadChannel[T float32 | Material](s *ChannelSave[T]) channel[T] {
	if s.Uniform {
		return channel[T]{state: Single, value: s.Value, edited: true}
	}
	values := make([]T, len(s.Values))
	copy(values, s.Values)
	return channel[T]{state: Dirty, data: values}
}

// GetSave collects the edited channels of the whole volume.
func (v *Volume) GetSave(ctx context.Context) (*VolumeSave, error) {
	acc, err := v.Access(ctx, LockRead, v.bounds)
	if err != nil {
		return nil, errors.Wrap(err, "save")
	}
	defer acc.Release()

	save := &VolumeSave{Depth: v.depth, LeafSize: v.leafSize}
	v.treeMu.RLock()
	v.tree.visitChildless(v.bounds, func(_ nodeIndex, n *octreeNode) bool {
		d, m := saveChannel(&n.density), saveChannel(&n.material)
		if d != nil || m != nil {
			save.Nodes = append(save.Nodes, NodeSave{Min: n.min, Depth: n.depth, Density: d, Material: m})
		}
		return true
	})
	v.treeMu.RUnlock()
	util.LogIOInfo("saved %d edited nodes", len(save.Nodes))
	return save, nil
}

func (v *Volume) validateSave(save *VolumeSave) error {
	if save.Depth != v.depth || save.LeafSize != v.leafSize {
		return errors.Errorf("voxel: save for depth %d leaf %d does not fit volume depth %d leaf %d",
			save.Depth, save.LeafSize, v.depth, v.leafSize)
	}
	for _, n := range save.Nodes {
		size := v.leafSize << n.Depth
		area := BoundsFromSize(n.Min, size)
		if int(n.Depth) > v.depth || !v.bounds.ContainsBounds(area) || n.Min.Sub(v.bounds.Min) != n.Min.Sub(v.bounds.Min).FloorDiv(size).Mul(size) {
			return invalidBounds("saved node %v depth %d", n.Min, n.Depth)
		}
		dense := (n.Density != nil && !n.Density.Uniform) || (n.Material != nil && !n.Material.Uniform)
		if dense && n.Depth != 0 {
			return errors.Errorf("voxel: dense channel saved above leaf level at %v", n.Min)
		}
		if n.Density != nil && !n.Density.Uniform && len(n.Density.Values) != v.leafVoxels() {
			return errors.Errorf("voxel: saved density at %v has %d values", n.Min, len(n.Density.Values))
		}
		if n.Material != nil && !n.Material.Uniform && len(n.Material.Values) != v.leafVoxels() {
			return errors.Errorf("voxel: saved materials at %v have %d values", n.Min, len(n.Material.Values))
		}
	}
	return nil
}

// LoadFromSave drops every current edit and applies the saved ones.
// An invalid save leaves the volume untouched.
func (v *Volume) LoadFromSave(ctx context.Context, save *VolumeSave) error {
	if err := v.validateSave(save); err != nil {
		return err
	}
	lock, err := v.Lock(ctx, LockWrite, v.bounds)
	if err != nil {
		return errors.Wrap(err, "load")
	}
	defer lock.Unlock()

	v.treeMu.Lock()
	defer v.treeMu.Unlock()
	v.tree.visitChildless(v.bounds, func(_ nodeIndex, n *octreeNode) bool {
		if n.density.isEdited() {
			n.density.clear()
		}
		if n.material.isEdited() {
			n.material.clear()
		}
		return true
	})
	for _, s := range save.Nodes {
		n := v.tree.findAtDepth(s.Min, s.Depth)
		if s.Density != nil {
			n.density = loadChannel(s.Density)
		}
		if s.Material != nil {
			n.material = loadChannel(s.Material)
		}
	}
	util.LogIOInfo("loaded %d edited nodes", len(save.Nodes))
	return nil
}
