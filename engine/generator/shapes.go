package generator

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/memmaker/voxelstore/engine/voxel"
)

// Sphere is a solid ball; its density is the clamped signed distance to the surface.
type Sphere struct {
	Center   mgl32.Vec3
	Radius   float32
	Material voxel.Material
}

func (s Sphere) Sample(pos voxel.Int3, _ int) (float32, voxel.Material, error) {
	d := pos.ToVec3().Sub(s.Center).Len() - s.Radius
	if voxel.IsSolid(d) {
		return voxel.ClampDensity(d), s.Material, nil
	}
	return voxel.ClampDensity(d), voxel.DefaultMaterial, nil
}

func (s Sphere) InitArea(voxel.Bounds, int) error {
	return nil
}

// DensityRange uses the nearest and farthest voxel of b from the centre.
func (s Sphere) DensityRange(b voxel.Bounds, _ int) (float32, float32, bool) {
	var near, far float64
	for axis := 0; axis < 3; axis++ {
		c := float64(s.Center[axis])
		lo := float64(b.Min.Axis(axis))
		hi := float64(b.Max.Axis(axis) - 1)
		nearest := math.Max(lo, math.Min(c, hi))
		near += (nearest - c) * (nearest - c)
		farthest := math.Max(math.Abs(lo-c), math.Abs(hi-c))
		far += farthest * farthest
	}
	r := float64(s.Radius)
	return float32(math.Sqrt(near) - r), float32(math.Sqrt(far) - r), true
}

// Plane is solid below Height along Axis.
type Plane struct {
	Axis     int
	Height   float32
	Material voxel.Material
}

func (p Plane) Sample(pos voxel.Int3, _ int) (float32, voxel.Material, error) {
	d := float32(pos.Axis(p.Axis)) - p.Height
	if voxel.IsSolid(d) {
		return voxel.ClampDensity(d), p.Material, nil
	}
	return voxel.ClampDensity(d), voxel.DefaultMaterial, nil
}

func (p Plane) InitArea(voxel.Bounds, int) error {
	return nil
}

func (p Plane) DensityRange(b voxel.Bounds, _ int) (float32, float32, bool) {
	return float32(b.Min.Axis(p.Axis)) - p.Height, float32(b.Max.Axis(p.Axis)-1) - p.Height, true
}

// Box is solid inside Bounds and air elsewhere.
type Box struct {
	Bounds   voxel.Bounds
	Material voxel.Material
}

func (b Box) Sample(pos voxel.Int3, _ int) (float32, voxel.Material, error) {
	if b.Bounds.Contains(pos) {
		return voxel.FullDensity, b.Material, nil
	}
	return voxel.DefaultDensity, voxel.DefaultMaterial, nil
}

func (b Box) InitArea(voxel.Bounds, int) error {
	return nil
}

func (b Box) DensityRange(area voxel.Bounds, _ int) (float32, float32, bool) {
	switch {
	case !b.Bounds.Intersects(area):
		return voxel.DefaultDensity, voxel.DefaultDensity, true
	case b.Bounds.ContainsBounds(area):
		return voxel.FullDensity, voxel.FullDensity, true
	}
	return voxel.FullDensity, voxel.DefaultDensity, true
}

// Constant returns the same voxel everywhere.
type Constant struct {
	Density  float32
	Material voxel.Material
}

// Air is the empty world.
var Air = Constant{Density: voxel.DefaultDensity}

func (c Constant) Sample(voxel.Int3, int) (float32, voxel.Material, error) {
	return c.Density, c.Material, nil
}

func (c Constant) InitArea(voxel.Bounds, int) error {
	return nil
}

func (c Constant) DensityRange(voxel.Bounds, int) (float32, float32, bool) {
	return c.Density, c.Density, true
}

// Func adapts a plain function to the Generator contract.
type Func func(pos voxel.Int3) (float32, voxel.Material)

func (f Func) Sample(pos voxel.Int3, _ int) (float32, voxel.Material, error) {
	d, m := f(pos)
	return d, m, nil
}

func (f Func) InitArea(voxel.Bounds, int) error {
	return nil
}
