package voxel

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// RayHit describes the first solid voxel a ray entered.
type RayHit struct {
	Hit      bool
	Distance float64
	Point    mgl32.Vec3
	Voxel    Int3
	// Previous is the last empty voxel before Voxel; placing a block there
	// puts it against the hit face.
	Previous Int3
	// Normal points out of the hit face. Zero when the ray started inside matter.
	Normal   Int3
	Material Material
}

// Raycast walks the voxels between start and end at full resolution and
// stops at the first solid one. Cells outside the accessor end the walk.
func (a *Accessor) Raycast(start, end mgl32.Vec3) (RayHit, error) {
	// adapted from: https://github.com/fenomas/fast-voxel-raycast/blob/master/index.js
	ray := end.Sub(start)
	maxLen := float64(ray.Len())
	if maxLen == 0 {
		return RayHit{}, nil
	}
	dir := ray.Normalize()

	cell := Int3{
		X: int32(math.Floor(float64(start.X()))),
		Y: int32(math.Floor(float64(start.Y()))),
		Z: int32(math.Floor(float64(start.Z()))),
	}
	var step Int3
	var tDelta, tMax [3]float64
	for axis := 0; axis < 3; axis++ {
		d := float64(dir[axis])
		s := float64(start[axis])
		c := float64(cell.Axis(axis))
		switch {
		case d > 0:
			step = step.WithAxis(axis, 1)
			tDelta[axis] = 1 / d
			tMax[axis] = (c + 1 - s) * tDelta[axis]
		case d < 0:
			step = step.WithAxis(axis, -1)
			tDelta[axis] = -1 / d
			tMax[axis] = (s - c) * tDelta[axis]
		default:
			tDelta[axis] = math.Inf(1)
			tMax[axis] = math.Inf(1)
		}
	}

	bounds := a.Bounds()
	t := 0.0
	stepped := -1
	for t <= maxLen {
		if !bounds.Contains(cell) {
			return RayHit{}, nil
		}
		d, m, err := a.Get(cell, 0)
		if err != nil {
			return RayHit{}, err
		}
		if IsSolid(d) {
			hit := RayHit{
				Hit:      true,
				Distance: t,
				Point:    start.Add(dir.Mul(float32(t))),
				Voxel:    cell,
				Previous: cell,
				Material: m,
			}
			if stepped >= 0 {
				back := -step.Axis(stepped)
				hit.Normal = hit.Normal.WithAxis(stepped, back)
				hit.Previous = cell.Add(hit.Normal)
			}
			return hit, nil
		}

		stepped = 0
		if tMax[1] < tMax[stepped] {
			stepped = 1
		}
		if tMax[2] < tMax[stepped] {
			stepped = 2
		}
		t = tMax[stepped]
		tMax[stepped] += tDelta[stepped]
		cell = cell.WithAxis(stepped, cell.Axis(stepped)+step.Axis(stepped))
	}
	return RayHit{}, nil
}
