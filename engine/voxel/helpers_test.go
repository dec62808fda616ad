package voxel

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// planeGen is solid at and below height on the y axis.
type planeGen struct {
	height   float32
	material Material
}

func (g planeGen) Sample(pos Int3, _ int) (float32, Material, error) {
	d := float32(pos.Y) - g.height
	if IsSolid(d) {
		return d, g.material, nil
	}
	return d, DefaultMaterial, nil
}

func (planeGen) InitArea(Bounds, int) error {
	return nil
}

// ballGen is a sphere around the origin without a range hint.
type ballGen struct {
	radius   float64
	material Material
	samples  atomic.Int64
}

func (g *ballGen) Sample(pos Int3, _ int) (float32, Material, error) {
	g.samples.Add(1)
	x, y, z := float64(pos.X), float64(pos.Y), float64(pos.Z)
	d := float32(math.Sqrt(x*x+y*y+z*z) - g.radius)
	if IsSolid(d) {
		return d, g.material, nil
	}
	return d, DefaultMaterial, nil
}

func (*ballGen) InitArea(Bounds, int) error {
	return nil
}

var errBrokenGenerator = errors.New("broken generator")

// failingGen fails for every position inside bad once armed.
type failingGen struct {
	inner Generator
	bad   Bounds
	armed atomic.Bool
}

func (g *failingGen) Sample(pos Int3, lod int) (float32, Material, error) {
	if g.armed.Load() && g.bad.Contains(pos) {
		return 0, 0, errBrokenGenerator
	}
	return g.inner.Sample(pos, lod)
}

func (g *failingGen) InitArea(b Bounds, lod int) error {
	return g.inner.InitArea(b, lod)
}

func newTestVolume(t testing.TB, depth int, leafSize int32, gen Generator) *Volume {
	t.Helper()
	vol, err := NewVolume(VolumeOptions{Depth: depth, LeafSize: leafSize, Generator: gen})
	require.NoError(t, err)
	return vol
}

// readAll returns every voxel of b, read under one read lock.
func readAll(t testing.TB, vol *Volume, b Bounds) []Voxel {
	t.Helper()
	var out []Voxel
	err := vol.WithLock(context.Background(), LockRead, b, func(acc *Accessor) error {
		grid, err := acc.ReadGrid(b.Min, b.Size(), 1, 0)
		if err != nil {
			return err
		}
		for k := int32(0); k < grid.Dims.Z; k++ {
			for j := int32(0); j < grid.Dims.Y; j++ {
				for i := int32(0); i < grid.Dims.X; i++ {
					out = append(out, Voxel{Density: grid.Density(i, j, k), Material: grid.Material(i, j, k)})
				}
			}
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func requireViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a concurrency violation")
		err, ok := r.(error)
		require.True(t, ok)
		require.ErrorIs(t, err, ErrConcurrencyViolation)
	}()
	fn()
}
