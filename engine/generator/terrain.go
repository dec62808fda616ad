package generator

import (
	"github.com/memmaker/voxelstore/engine/voxel"
	"github.com/ojrac/opensimplex-go"
)

// Terrain materials.
const (
	MaterialStone voxel.Material = 1
	MaterialDirt  voxel.Material = 2
	MaterialGrass voxel.Material = 3
)

type TerrainOptions struct {
	Seed int64
	// Scale is the noise frequency per voxel.
	Scale float64
	// BaseHeight is the average surface level.
	BaseHeight float64
	// Amplitude is how far the noise moves the surface, in voxels.
	Amplitude   float64
	Octaves     int
	Persistence float64
	Lacunarity  float64
}

func DefaultTerrainOptions() TerrainOptions {
	return TerrainOptions{
		Seed:        32,
		Scale:       1.0 / 64.0,
		BaseHeight:  0,
		Amplitude:   24,
		Octaves:     4,
		Persistence: 0.5,
		Lacunarity:  2.0,
	}
}

// Terrain is a 3D density field: a height gradient perturbed by fractal
// simplex noise, which gives overhangs and floating rocks.
type Terrain struct {
	opts  TerrainOptions
	noise opensimplex.Noise
}

func NewTerrain(opts TerrainOptions) *Terrain {
	if opts.Octaves < 1 {
		opts.Octaves = 1
	}
	return &Terrain{opts: opts, noise: opensimplex.New(opts.Seed)}
}

// fbm returns fractal noise roughly in [-1, 1].
func (t *Terrain) fbm(x, y, z float64) float64 {
	total, amplitude, frequency, norm := 0.0, 1.0, 1.0, 0.0
	for i := 0; i < t.opts.Octaves; i++ {
		total += t.noise.Eval3(x*frequency, y*frequency, z*frequency) * amplitude
		norm += amplitude
		amplitude *= t.opts.Persistence
		frequency *= t.opts.Lacunarity
	}
	return total / norm
}

func (t *Terrain) density(pos voxel.Int3) float64 {
	s := t.opts.Scale
	n := t.fbm(float64(pos.X)*s, float64(pos.Y)*s, float64(pos.Z)*s)
	return float64(pos.Y) - t.opts.BaseHeight - n*t.opts.Amplitude
}

func (t *Terrain) Sample(pos voxel.Int3, _ int) (float32, voxel.Material, error) {
	d := t.density(pos)
	switch {
	case d > 0:
		return voxel.ClampDensity(float32(d)), voxel.DefaultMaterial, nil
	case d > -1.5:
		return voxel.ClampDensity(float32(d)), MaterialGrass, nil
	case d > -4:
		return voxel.ClampDensity(float32(d)), MaterialDirt, nil
	}
	return voxel.FullDensity, MaterialStone, nil
}

func (t *Terrain) InitArea(voxel.Bounds, int) error {
	return nil
}

// DensityRange only depends on height since the noise term is bounded by Amplitude.
func (t *Terrain) DensityRange(b voxel.Bounds, _ int) (float32, float32, bool) {
	lo := float64(b.Min.Y) - t.opts.BaseHeight - t.opts.Amplitude
	hi := float64(b.Max.Y-1) - t.opts.BaseHeight + t.opts.Amplitude
	return float32(lo), float32(hi), true
}
