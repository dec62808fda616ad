package voxel

// latticeStart returns the first multiple of step that is >= lo.
func latticeStart(lo, step int32) int32 {
	return floorDiv(lo+step-1, step) * step
}

func hasLatticePoint(b Bounds, step int32) bool {
	return latticeStart(b.Min.X, step) < b.Max.X &&
		latticeStart(b.Min.Y, step) < b.Max.Y &&
		latticeStart(b.Min.Z, step) < b.Max.Z
}

// forLattice visits the multiples of step inside b until fn returns false.
func forLattice(b Bounds, step int32, fn func(p Int3) bool) bool {
	for z := latticeStart(b.Min.Z, step); z < b.Max.Z; z += step {
		for y := latticeStart(b.Min.Y, step); y < b.Max.Y; y += step {
			for x := latticeStart(b.Min.X, step); x < b.Max.X; x += step {
				if !fn(Int3{x, y, z}) {
					return false
				}
			}
		}
	}
	return true
}

// checkQuery accepts boxes that overlap the world and leave it by at most one
// lattice step on any side. That band is the halo read around chunks on the
// world's edge; it reads as air.
func (v *Volume) checkQuery(b Bounds, step int32) error {
	halo := Bounds{Min: v.bounds.Min.Sub(Splat(step)), Max: v.bounds.Max.Add(Splat(step))}
	if !b.IsValid() || !b.Intersects(v.bounds) || !halo.ContainsBounds(b) {
		return invalidBounds("query %v in volume %v", b, v.bounds)
	}
	return nil
}

// IsEmpty reports whether every density on the 2^lod lattice inside b equals
// the far-field default. Nothing is materialised.
func (v *Volume) IsEmpty(b Bounds, lod int) (bool, error) {
	return v.isUniform(b, lod, DefaultDensity)
}

// IsFull reports whether every density on the 2^lod lattice inside b is fully solid.
// A box reaching into the halo is never full.
func (v *Volume) IsFull(b Bounds, lod int) (bool, error) {
	if !v.bounds.ContainsBounds(b) {
		return false, v.checkQuery(b, int32(1)<<lod)
	}
	return v.isUniform(b, lod, FullDensity)
}

type rangeItem struct {
	area  Bounds
	node  *octreeNode
	state ChannelState
	value float32
	data  []float32
}

func (v *Volume) isUniform(b Bounds, lod int, target float32) (bool, error) {
	step := int32(1) << lod
	if err := v.checkQuery(b, step); err != nil {
		return false, err
	}
	v.requireLock(LockRead, b)
	clip := b.Intersection(v.bounds)

	var items []rangeItem
	v.treeMu.RLock()
	v.tree.visitChildless(clip, func(_ nodeIndex, n *octreeNode) bool {
		items = append(items, rangeItem{
			area:  n.bounds(v.leafSize).Intersection(clip),
			node:  n,
			state: n.density.state,
			value: n.density.value,
			data:  n.density.data,
		})
		return true
	})
	v.treeMu.RUnlock()

	for _, it := range items {
		if !hasLatticePoint(it.area, step) {
			continue
		}
		switch it.state {
		case Single:
			if it.value != target {
				return false, nil
			}
		case Cached, Dirty:
			uniform := forLattice(it.area, step, func(p Int3) bool {
				return it.data[v.leafIndex(it.node, p)] == target
			})
			if !uniform {
				return false, nil
			}
		default:
			uniform, err := v.generatorUniform(it.area, lod, step, target)
			if err != nil || !uniform {
				return false, err
			}
		}
	}
	return true, nil
}

func (v *Volume) generatorUniform(area Bounds, lod int, step int32, target float32) (bool, error) {
	if rg, ok := v.gen.(RangeGenerator); ok {
		if lo, hi, known := rg.DensityRange(area, lod); known {
			lo, hi = ClampDensity(lo), ClampDensity(hi)
			if lo == target && hi == target {
				return true, nil
			}
			if hi < target || lo > target {
				return false, nil
			}
		}
	}
	if err := v.gen.InitArea(area, lod); err != nil {
		generatorFailures.Inc()
		return false, generatorFailure(area, err)
	}
	var sampleErr error
	uniform := forLattice(area, step, func(p Int3) bool {
		d, _, err := v.sample(p, lod)
		if err != nil {
			sampleErr = err
			return false
		}
		return d == target
	})
	if sampleErr != nil {
		return false, sampleErr
	}
	return uniform, nil
}
