package voxel

import (
	"context"
)

// Accessor is a lock-scoped view of a volume. Every call must stay inside
// the bounds it was opened with.
type Accessor struct {
	vol  *Volume
	lock *RegionLock
}

// Access acquires a lock over b and returns a view bound to it.
func (v *Volume) Access(ctx context.Context, mode LockMode, b Bounds) (*Accessor, error) {
	lock, err := v.Lock(ctx, mode, b)
	if err != nil {
		return nil, err
	}
	return &Accessor{vol: v, lock: lock}, nil
}

func (a *Accessor) Volume() *Volume {
	return a.vol
}

func (a *Accessor) Bounds() Bounds {
	return a.lock.Bounds()
}

func (a *Accessor) Mode() LockMode {
	return a.lock.Mode()
}

// Release frees the underlying lock. The accessor must not be used afterwards.
func (a *Accessor) Release() {
	a.lock.Unlock()
}

func (a *Accessor) require(mode LockMode, b Bounds) {
	if a.lock.released.Load() {
		violation("use of released accessor on %v", a.lock.Bounds())
	}
	if mode == LockWrite && a.lock.Mode() != LockWrite {
		violation("write through read accessor on %v", b)
	}
	if !a.lock.Bounds().ContainsBounds(b) {
		violation("access to %v outside accessor %v", b, a.lock.Bounds())
	}
}

func (a *Accessor) Get(pos Int3, lod int) (float32, Material, error) {
	a.require(LockRead, Bounds{pos, pos.Add(Splat(1))})
	return a.vol.Get(pos, lod)
}

func (a *Accessor) Set(pos Int3, vox Voxel) error {
	a.require(LockWrite, Bounds{pos, pos.Add(Splat(1))})
	return a.vol.Set(pos, vox)
}

func (a *Accessor) SetRegion(b Bounds, ch Channels, fn func(pos Int3, vox *Voxel)) error {
	a.require(LockWrite, b)
	return a.vol.SetRegion(b, ch, fn)
}

func (a *Accessor) IsEmpty(b Bounds, lod int) (bool, error) {
	a.require(LockRead, b)
	return a.vol.IsEmpty(b, lod)
}

func (a *Accessor) IsFull(b Bounds, lod int) (bool, error) {
	a.require(LockRead, b)
	return a.vol.IsFull(b, lod)
}

// Grid is a dense block of samples taken every Step voxels from Origin.
type Grid struct {
	Origin Int3
	Dims   Int3
	Step   int32

	densities []float32
	materials []Material
}

func (g *Grid) index(i, j, k int32) int {
	return int(i + g.Dims.X*(j+g.Dims.Y*k))
}

func (g *Grid) Density(i, j, k int32) float32 {
	return g.densities[g.index(i, j, k)]
}

func (g *Grid) Material(i, j, k int32) Material {
	return g.materials[g.index(i, j, k)]
}

func (g *Grid) Solid(i, j, k int32) bool {
	return IsSolid(g.densities[g.index(i, j, k)])
}

// Position maps grid indices to world coordinates.
func (g *Grid) Position(i, j, k int32) Int3 {
	return g.Origin.Add(Int3{i, j, k}.Mul(g.Step))
}

// ReadGrid samples dims points per axis starting at origin, step voxels apart.
// Points in the one step halo around the world read as air; grids reaching
// further out are rejected. Every node touched is counted once.
func (a *Accessor) ReadGrid(origin, dims Int3, step int32, lod int) (*Grid, error) {
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 || step <= 0 {
		return nil, invalidBounds("grid %v x%d", dims, step)
	}
	span := Bounds{Min: origin, Max: origin.Add(dims.Sub(Splat(1)).Mul(step)).Add(Splat(1))}
	if err := a.vol.checkQuery(span, step); err != nil {
		return nil, err
	}
	a.require(LockRead, span)

	v := a.vol
	g := &Grid{
		Origin:    origin,
		Dims:      dims,
		Step:      step,
		densities: make([]float32, dims.X*dims.Y*dims.Z),
		materials: make([]Material, dims.X*dims.Y*dims.Z),
	}

	type miss struct {
		idx          int
		pos          Int3
		needD, needM bool
	}
	var misses []miss
	touched := make(map[*octreeNode]struct{})
	tick := v.tick.Load()

	v.treeMu.RLock()
	var last *octreeNode
	var lastBounds Bounds
	for k := int32(0); k < dims.Z; k++ {
		for j := int32(0); j < dims.Y; j++ {
			for i := int32(0); i < dims.X; i++ {
				idx := g.index(i, j, k)
				pos := g.Position(i, j, k)
				if !v.bounds.Contains(pos) {
					g.densities[idx] = DefaultDensity
					g.materials[idx] = DefaultMaterial
					continue
				}
				if last == nil || !lastBounds.Contains(pos) {
					_, last = v.tree.findChildless(pos)
					lastBounds = last.bounds(v.leafSize)
					if _, seen := touched[last]; !seen {
						touched[last] = struct{}{}
						last.touch(tick)
					}
				}
				d, dOk := readChannel(&last.density, v, last, pos)
				m, mOk := readChannel(&last.material, v, last, pos)
				g.densities[idx] = d
				g.materials[idx] = m
				if !dOk || !mOk {
					misses = append(misses, miss{idx: idx, pos: pos, needD: !dOk, needM: !mOk})
				}
			}
		}
	}
	v.treeMu.RUnlock()

	if len(misses) == 0 {
		return g, nil
	}
	if err := v.gen.InitArea(span.Intersection(v.bounds), lod); err != nil {
		generatorFailures.Inc()
		return nil, generatorFailure(span, err)
	}
	for _, m := range misses {
		d, mat, err := v.sample(m.pos, lod)
		if err != nil {
			return nil, err
		}
		if m.needD {
			g.densities[m.idx] = d
		}
		if m.needM {
			g.materials[m.idx] = mat
		}
	}
	return g, nil
}
