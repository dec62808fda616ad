package voxel

import (
	"context"
	"math/bits"
	"sync"
	"sync/atomic"
	"time"

	"github.com/memmaker/voxelstore/engine/util"
	"github.com/pkg/errors"
)

const (
	MinLeafSize = 4
	MaxLeafSize = 64
	MaxDepth    = 20

	DefaultLockTimeout = 2 * time.Second
)

type VolumeOptions struct {
	// Depth is the number of octree levels above the leaves.
	Depth int
	// LeafSize is the edge length of a leaf in voxels, a power of two.
	LeafSize int32
	// Generator supplies every voxel that was never edited.
	Generator Generator
	// SkipLockChecks turns off the covering-lock assertion on every access.
	SkipLockChecks bool
	// LockTimeout is used by WithLock when the context has no deadline.
	LockTimeout time.Duration
}

// Volume is a sparse octree of voxels backed by a generator.
// All access goes through region locks; see Lock, LockTry and WithLock.
type Volume struct {
	depth       int
	leafSize    int32
	bounds      Bounds
	gen         Generator
	locks       *lockManager
	checks      bool
	lockTimeout time.Duration

	// treeMu guards the arena structure. Leaf contents are guarded by region locks.
	treeMu sync.RWMutex
	tree   *arena

	tick atomic.Uint64
}

func NewVolume(opts VolumeOptions) (*Volume, error) {
	if opts.Generator == nil {
		return nil, errors.New("voxel: volume needs a generator")
	}
	if opts.LeafSize < MinLeafSize || opts.LeafSize > MaxLeafSize || bits.OnesCount32(uint32(opts.LeafSize)) != 1 {
		return nil, errors.Errorf("voxel: leaf size %d must be a power of two in [%d, %d]", opts.LeafSize, MinLeafSize, MaxLeafSize)
	}
	if opts.Depth < 0 || opts.Depth > MaxDepth || int64(opts.LeafSize)<<opts.Depth > 1<<30 {
		return nil, errors.Errorf("voxel: depth %d out of range for leaf size %d", opts.Depth, opts.LeafSize)
	}
	size := opts.LeafSize << opts.Depth
	rootMin := Splat(-size / 2)
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	v := &Volume{
		depth:       opts.Depth,
		leafSize:    opts.LeafSize,
		bounds:      BoundsFromSize(rootMin, size),
		gen:         opts.Generator,
		locks:       newLockManager(opts.LeafSize),
		checks:      !opts.SkipLockChecks,
		lockTimeout: timeout,
		tree:        newArena(opts.LeafSize, rootMin, uint8(opts.Depth)),
	}
	util.LogVoxelInfo("created volume %v, depth %d, leaf size %d", v.bounds, v.depth, v.leafSize)
	return v, nil
}

func (v *Volume) Bounds() Bounds {
	return v.bounds
}

func (v *Volume) Depth() int {
	return v.depth
}

func (v *Volume) LeafSize() int32 {
	return v.leafSize
}

func (v *Volume) Generator() Generator {
	return v.gen
}

// Lock blocks until a lock over b is granted or ctx ends.
func (v *Volume) Lock(ctx context.Context, mode LockMode, b Bounds) (*RegionLock, error) {
	if !b.IsValid() {
		return nil, invalidBounds("lock %v", b)
	}
	return v.locks.acquire(ctx, mode, b)
}

// LockTry gives up with ErrLockTimeout after timeout.
func (v *Volume) LockTry(mode LockMode, b Bounds, timeout time.Duration) (*RegionLock, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return v.Lock(ctx, mode, b)
}

// WithLock runs fn with an accessor over b and releases the lock on every exit path.
func (v *Volume) WithLock(ctx context.Context, mode LockMode, b Bounds, fn func(acc *Accessor) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.lockTimeout)
		defer cancel()
	}
	acc, err := v.Access(ctx, mode, b)
	if err != nil {
		return err
	}
	defer acc.Release()
	return fn(acc)
}

func (v *Volume) requireLock(mode LockMode, b Bounds) {
	if v.checks && !v.locks.covers(mode, b) {
		violation("%s access to %v without a covering lock", mode, b)
	}
}

// sample asks the generator for one voxel.
func (v *Volume) sample(pos Int3, lod int) (float32, Material, error) {
	d, m, err := v.gen.Sample(pos, lod)
	if err != nil {
		generatorFailures.Inc()
		return DefaultDensity, DefaultMaterial, generatorFailure(Bounds{pos, pos.Add(Splat(1))}, err)
	}
	return ClampDensity(d), m, nil
}

func (v *Volume) leafIndex(n *octreeNode, pos Int3) int {
	local := pos.Sub(n.min)
	return int(local.X + v.leafSize*(local.Y+v.leafSize*local.Z))
}

// Get returns the voxel at pos. A read lock must cover pos.
func (v *Volume) Get(pos Int3, lod int) (float32, Material, error) {
	if !v.bounds.Contains(pos) {
		return DefaultDensity, DefaultMaterial, invalidBounds("position %v outside %v", pos, v.bounds)
	}
	v.requireLock(LockRead, Bounds{pos, pos.Add(Splat(1))})
	return v.get(pos, lod)
}

func (v *Volume) get(pos Int3, lod int) (float32, Material, error) {
	v.treeMu.RLock()
	_, n := v.tree.findChildless(pos)
	n.touch(v.tick.Load())
	d, dOk := readChannel(&n.density, v, n, pos)
	m, mOk := readChannel(&n.material, v, n, pos)
	v.treeMu.RUnlock()
	if dOk && mOk {
		return d, m, nil
	}
	gd, gm, err := v.sample(pos, lod)
	if err != nil {
		return DefaultDensity, DefaultMaterial, err
	}
	if !dOk {
		d = gd
	}
	if !mOk {
		m = gm
	}
	return d, m, nil
}

func readChannel[T float32 | Material](c *channel[T], v *Volume, n *octreeNode, pos Int3) (T, bool) {
	switch c.state {
	case Single:
		return c.value, true
	case Cached, Dirty:
		return c.data[v.leafIndex(n, pos)], true
	}
	var zero T
	return zero, false
}

// Set writes both channels of one voxel. A write lock must cover pos.
func (v *Volume) Set(pos Int3, vox Voxel) error {
	return v.SetRegion(Bounds{pos, pos.Add(Splat(1))}, AllChannels, func(_ Int3, current *Voxel) {
		*current = vox
	})
}

func (v *Volume) SetDensity(pos Int3, density float32) error {
	return v.SetRegion(Bounds{pos, pos.Add(Splat(1))}, DensityChannel, func(_ Int3, current *Voxel) {
		current.Density = density
	})
}

func (v *Volume) SetMaterial(pos Int3, material Material) error {
	return v.SetRegion(Bounds{pos, pos.Add(Splat(1))}, MaterialChannel, func(_ Int3, current *Voxel) {
		current.Material = material
	})
}

type pendingLeaf struct {
	node      *octreeNode
	densities []float32
	materials []Material
}

// SetRegion calls fn for every voxel in b and stores the selected channels.
// Either every touched leaf is updated or, on a generator failure, none is.
func (v *Volume) SetRegion(b Bounds, ch Channels, fn func(pos Int3, vox *Voxel)) error {
	if !b.IsValid() || !v.bounds.ContainsBounds(b) {
		return invalidBounds("edit %v in volume %v", b, v.bounds)
	}
	if ch == 0 {
		return nil
	}
	v.requireLock(LockWrite, b)

	leaves := v.leavesFor(b)
	pending := make([]pendingLeaf, 0, len(leaves))
	for _, n := range leaves {
		p := pendingLeaf{node: n}
		var err error
		p.densities, p.materials, err = v.writableArrays(n, ch)
		if err != nil {
			return err
		}
		pending = append(pending, p)
	}

	for _, p := range pending {
		n := p.node
		area := n.bounds(v.leafSize).Intersection(b)
		for z := area.Min.Z; z < area.Max.Z; z++ {
			for y := area.Min.Y; y < area.Max.Y; y++ {
				for x := area.Min.X; x < area.Max.X; x++ {
					pos := Int3{x, y, z}
					idx := v.leafIndex(n, pos)
					vox, err := v.currentVoxel(n, p, idx, pos)
					if err != nil {
						return err
					}
					fn(pos, &vox)
					if p.densities != nil {
						p.densities[idx] = ClampDensity(vox.Density)
					}
					if p.materials != nil {
						p.materials[idx] = vox.Material
					}
				}
			}
		}
	}

	v.treeMu.Lock()
	defer v.treeMu.Unlock()
	for _, p := range pending {
		if p.densities != nil {
			p.node.density = channel[float32]{state: Dirty, data: p.densities}
		}
		if p.materials != nil {
			p.node.material = channel[Material]{state: Dirty, data: p.materials}
		}
	}
	return nil
}

// currentVoxel reads a voxel while an edit is being prepared.
func (v *Volume) currentVoxel(n *octreeNode, p pendingLeaf, idx int, pos Int3) (Voxel, error) {
	var vox Voxel
	dOk, mOk := false, false
	if p.densities != nil {
		vox.Density, dOk = p.densities[idx], true
	} else if d, ok := readChannel(&n.density, v, n, pos); ok {
		vox.Density, dOk = d, true
	}
	if p.materials != nil {
		vox.Material, mOk = p.materials[idx], true
	} else if m, ok := readChannel(&n.material, v, n, pos); ok {
		vox.Material, mOk = m, true
	}
	if dOk && mOk {
		return vox, nil
	}
	d, m, err := v.sample(pos, 0)
	if err != nil {
		return vox, err
	}
	if !dOk {
		vox.Density = d
	}
	if !mOk {
		vox.Material = m
	}
	return vox, nil
}

// leavesFor subdivides down to every depth-0 leaf intersecting b.
func (v *Volume) leavesFor(b Bounds) []*octreeNode {
	aligned := b.Align(v.leafSize)
	v.treeMu.Lock()
	defer v.treeMu.Unlock()
	var leaves []*octreeNode
	for z := aligned.Min.Z; z < aligned.Max.Z; z += v.leafSize {
		for y := aligned.Min.Y; y < aligned.Max.Y; y += v.leafSize {
			for x := aligned.Min.X; x < aligned.Max.X; x += v.leafSize {
				_, n := v.tree.findLeaf(Int3{x, y, z})
				leaves = append(leaves, n)
			}
		}
	}
	return leaves
}

// writableArrays returns private copies of the selected channels of a leaf,
// filled with their current content. Nothing is stored on the leaf.
func (v *Volume) writableArrays(n *octreeNode, ch Channels) ([]float32, []Material, error) {
	var densities []float32
	var materials []Material
	needGen := (ch.Has(DensityChannel) && n.density.state == Empty) ||
		(ch.Has(MaterialChannel) && n.material.state == Empty)
	var genD []float32
	var genM []Material
	if needGen {
		var err error
		genD, genM, err = v.generateLeaf(n)
		if err != nil {
			return nil, nil, err
		}
	}
	if ch.Has(DensityChannel) {
		densities = arrayFrom(&n.density, genD, v.leafVoxels())
	}
	if ch.Has(MaterialChannel) {
		materials = arrayFrom(&n.material, genM, v.leafVoxels())
	}
	return densities, materials, nil
}

func arrayFrom[T float32 | Material](c *channel[T], generated []T, count int) []T {
	switch c.state {
	case Single:
		out := make([]T, count)
		for i := range out {
			out[i] = c.value
		}
		return out
	case Cached, Dirty:
		out := make([]T, count)
		copy(out, c.data)
		return out
	}
	return generated
}

func (v *Volume) leafVoxels() int {
	return int(v.leafSize * v.leafSize * v.leafSize)
}

// generateLeaf samples the generator for every voxel of a leaf.
func (v *Volume) generateLeaf(n *octreeNode) ([]float32, []Material, error) {
	area := n.bounds(v.leafSize)
	if err := v.gen.InitArea(area, 0); err != nil {
		generatorFailures.Inc()
		return nil, nil, generatorFailure(area, err)
	}
	densities := make([]float32, v.leafVoxels())
	materials := make([]Material, v.leafVoxels())
	i := 0
	for z := area.Min.Z; z < area.Max.Z; z++ {
		for y := area.Min.Y; y < area.Max.Y; y++ {
			for x := area.Min.X; x < area.Max.X; x++ {
				d, m, err := v.sample(Int3{x, y, z}, 0)
				if err != nil {
					return nil, nil, err
				}
				densities[i] = d
				materials[i] = m
				i++
			}
		}
	}
	return densities, materials, nil
}
