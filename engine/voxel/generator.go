package voxel

// Material is an index into the material palette.
type Material uint16

const (
	// DefaultDensity is the far-field value: air.
	DefaultDensity float32 = 1
	// FullDensity is the value of a voxel deep inside solid matter.
	FullDensity float32 = -1

	DefaultMaterial Material = 0
)

// Voxel is one sample of both channels.
type Voxel struct {
	Density  float32
	Material Material
}

// IsSolid reports whether a density counts as matter.
func IsSolid(density float32) bool {
	return density <= 0
}

// ClampDensity limits a density to [-1, 1].
func ClampDensity(d float32) float32 {
	if d > DefaultDensity {
		return DefaultDensity
	}
	if d < FullDensity {
		return FullDensity
	}
	return d
}

// Generator supplies the values of voxels that were never edited.
//
// Sample must return the same value for a position regardless of lod; lod is
// only a hint that coarser sampling is going on. Values outside [-1, 1] are clamped.
type Generator interface {
	Sample(pos Int3, lod int) (float32, Material, error)
	// InitArea is called once before a batch of samples inside bounds.
	InitArea(bounds Bounds, lod int) error
}

// RangeGenerator can bound its densities over a box without sampling it.
// ok=false means the generator cannot tell.
type RangeGenerator interface {
	Generator
	DensityRange(bounds Bounds, lod int) (lo, hi float32, ok bool)
}

// Channels selects which per-leaf channels an operation touches.
type Channels uint8

const (
	DensityChannel Channels = 1 << iota
	MaterialChannel

	AllChannels = DensityChannel | MaterialChannel
)

func (c Channels) Has(other Channels) bool {
	return c&other != 0
}
