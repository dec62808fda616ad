package voxel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewVolumeValidatesOptions(t *testing.T) {
	gen := planeGen{}
	tests := map[string]VolumeOptions{
		"no generator":       {Depth: 2, LeafSize: 8},
		"leaf too small":     {Depth: 2, LeafSize: 2, Generator: gen},
		"leaf not pow2":      {Depth: 2, LeafSize: 12, Generator: gen},
		"leaf too large":     {Depth: 2, LeafSize: 128, Generator: gen},
		"negative depth":     {Depth: -1, LeafSize: 8, Generator: gen},
		"depth out of range": {Depth: MaxDepth + 1, LeafSize: 4, Generator: gen},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewVolume(opts)
			require.Error(t, err)
		})
	}
}

func TestVolumeBoundsAreCentred(t *testing.T) {
	vol := newTestVolume(t, 3, 8, planeGen{})
	require.Equal(t, Bounds{Min: Splat(-32), Max: Splat(32)}, vol.Bounds())
	require.Equal(t, 3, vol.Depth())
	require.Equal(t, int32(8), vol.LeafSize())
}

func TestUntouchedRegionReadsGenerator(t *testing.T) {
	gen := planeGen{height: 2.5, material: 4}
	vol := newTestVolume(t, 3, 8, gen)
	b := Bounds{Min: Splat(-12), Max: Splat(12)}

	err := vol.WithLock(context.Background(), LockRead, b, func(acc *Accessor) error {
		for y := int32(-12); y < 12; y++ {
			pos := Int3{3, y, -5}
			d, m, err := acc.Get(pos, 0)
			require.NoError(t, err)
			wantD, wantM, _ := gen.Sample(pos, 0)
			require.Equal(t, ClampDensity(wantD), d, "density at %v", pos)
			require.Equal(t, wantM, m, "material at %v", pos)
		}
		return nil
	})
	require.NoError(t, err)

	readAll(t, vol, b)
	stats := vol.Stats()
	require.Equal(t, 1, stats.Nodes, "reads must not materialise nodes")
	require.Zero(t, stats.Cached)
	require.Zero(t, stats.Dirty)
}

func TestSetGetRoundTrip(t *testing.T) {
	vol := newTestVolume(t, 3, 8, planeGen{})
	ctx := context.Background()
	pos := Int3{5, 9, -7}

	err := vol.WithLock(ctx, LockWrite, Bounds{pos, pos.Add(Splat(1))}, func(acc *Accessor) error {
		return acc.Set(pos, Voxel{Density: -0.25, Material: 9})
	})
	require.NoError(t, err)

	err = vol.WithLock(ctx, LockRead, Bounds{pos, pos.Add(Splat(1))}, func(acc *Accessor) error {
		d, m, err := acc.Get(pos, 0)
		require.NoError(t, err)
		require.Equal(t, float32(-0.25), d)
		require.Equal(t, Material(9), m)

		// the lod argument is only a hint
		d, _, err = acc.Get(pos, 3)
		require.NoError(t, err)
		require.Equal(t, float32(-0.25), d)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, vol.Stats().Dirty)
}

func TestSetClampsDensity(t *testing.T) {
	vol := newTestVolume(t, 1, 8, planeGen{})
	pos := Int3{}
	b := Bounds{pos, pos.Add(Splat(1))}
	require.NoError(t, vol.WithLock(context.Background(), LockWrite, b, func(acc *Accessor) error {
		return acc.Set(pos, Voxel{Density: -40, Material: 1})
	}))
	require.NoError(t, vol.WithLock(context.Background(), LockRead, b, func(acc *Accessor) error {
		d, _, err := acc.Get(pos, 0)
		require.Equal(t, FullDensity, d)
		return err
	}))
}

func TestSetChannelsSeparately(t *testing.T) {
	gen := planeGen{height: 0, material: 2}
	vol := newTestVolume(t, 2, 8, gen)
	pos := Int3{1, -3, 1}
	b := Bounds{pos, pos.Add(Splat(1))}

	require.NoError(t, vol.WithLock(context.Background(), LockWrite, b, func(acc *Accessor) error {
		return acc.Volume().SetMaterial(pos, 7)
	}))
	require.NoError(t, vol.WithLock(context.Background(), LockRead, b, func(acc *Accessor) error {
		d, m, err := acc.Get(pos, 0)
		require.Equal(t, float32(-1), d, "density still comes from the generator")
		require.Equal(t, Material(7), m)
		return err
	}))
}

func TestSetRegionSpansLeaves(t *testing.T) {
	vol := newTestVolume(t, 3, 8, planeGen{height: -100})
	b := Bounds{Min: Int3{-4, -4, -4}, Max: Int3{4, 4, 4}}

	require.NoError(t, vol.WithLock(context.Background(), LockWrite, b, func(acc *Accessor) error {
		return acc.SetRegion(b, AllChannels, func(pos Int3, vox *Voxel) {
			vox.Density = -1
			vox.Material = Material(1 + pos.X&1)
		})
	}))

	require.Equal(t, 8, vol.Stats().Dirty)
	got := readAll(t, vol, b)
	i := 0
	for z := b.Min.Z; z < b.Max.Z; z++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				require.Equal(t, Voxel{Density: -1, Material: Material(1 + x&1)}, got[i])
				i++
			}
		}
	}
}

func TestSetRegionOutsideWorld(t *testing.T) {
	vol := newTestVolume(t, 1, 8, planeGen{})
	b := Bounds{Min: Splat(4), Max: Splat(12)}
	lock, err := vol.Lock(context.Background(), LockWrite, b)
	require.NoError(t, err)
	defer lock.Unlock()
	err = vol.SetRegion(b, AllChannels, func(Int3, *Voxel) {})
	require.ErrorIs(t, err, ErrInvalidBounds)
}

func TestGetOutsideWorld(t *testing.T) {
	vol := newTestVolume(t, 1, 8, planeGen{})
	_, _, err := vol.Get(Int3{8, 0, 0}, 0)
	require.ErrorIs(t, err, ErrInvalidBounds)
}

func TestAccessWithoutLockPanics(t *testing.T) {
	vol := newTestVolume(t, 2, 8, planeGen{})
	requireViolation(t, func() {
		_, _, _ = vol.Get(Int3{1, 1, 1}, 0)
	})
	requireViolation(t, func() {
		_ = vol.Set(Int3{1, 1, 1}, Voxel{})
	})

	lock, err := vol.Lock(context.Background(), LockRead, Bounds{Min: Splat(0), Max: Splat(4)})
	require.NoError(t, err)
	requireViolation(t, func() {
		_ = vol.Set(Int3{1, 1, 1}, Voxel{})
	})
	lock.Unlock()
}

func TestAccessorEnforcesScope(t *testing.T) {
	vol := newTestVolume(t, 2, 8, planeGen{})
	ctx := context.Background()

	acc, err := vol.Access(ctx, LockRead, Bounds{Min: Splat(0), Max: Splat(4)})
	require.NoError(t, err)
	requireViolation(t, func() {
		_, _, _ = acc.Get(Int3{5, 0, 0}, 0)
	})
	requireViolation(t, func() {
		_ = acc.Set(Int3{1, 0, 0}, Voxel{})
	})
	acc.Release()
	requireViolation(t, func() {
		_, _, _ = acc.Get(Int3{1, 0, 0}, 0)
	})
	// releasing twice is harmless
	acc.Release()
}

func TestSkipLockChecks(t *testing.T) {
	vol, err := NewVolume(VolumeOptions{Depth: 1, LeafSize: 8, Generator: planeGen{}, SkipLockChecks: true})
	require.NoError(t, err)
	require.NoError(t, vol.Set(Int3{1, 1, 1}, Voxel{Density: -1, Material: 3}))
	_, m, err := vol.Get(Int3{1, 1, 1}, 0)
	require.NoError(t, err)
	require.Equal(t, Material(3), m)
}

func TestGeneratorFailureLeavesStateUnchanged(t *testing.T) {
	gen := &failingGen{inner: planeGen{}, bad: Bounds{Min: Int3{0, -8, -8}, Max: Int3{8, 8, 8}}}
	vol := newTestVolume(t, 1, 8, gen)
	ctx := context.Background()
	b := Bounds{Min: Int3{-8, -8, -8}, Max: Int3{8, 0, 0}}

	gen.armed.Store(true)
	err := vol.WithLock(ctx, LockWrite, b, func(acc *Accessor) error {
		return acc.SetRegion(b, AllChannels, func(_ Int3, vox *Voxel) {
			vox.Density = 0.5
		})
	})
	require.ErrorIs(t, err, ErrGeneratorFailure)
	require.ErrorIs(t, err, errBrokenGenerator)
	var genErr *GeneratorError
	require.ErrorAs(t, err, &genErr)
	require.True(t, gen.bad.Intersects(genErr.Bounds))
	require.Zero(t, vol.Stats().Dirty, "no leaf may be half edited")

	err = vol.WithLock(ctx, LockRead, b, func(acc *Accessor) error {
		_, _, err := acc.Get(Int3{1, -1, -1}, 0)
		return err
	})
	require.ErrorIs(t, err, ErrGeneratorFailure)

	gen.armed.Store(false)
	for _, vox := range readAll(t, vol, b) {
		require.Equal(t, FullDensity, vox.Density, "the failed edit must not show up")
	}
}

func TestIsEmptyAndIsFull(t *testing.T) {
	vol := newTestVolume(t, 3, 8, planeGen{height: 0, material: 1})

	tests := []struct {
		name        string
		b           Bounds
		lod         int
		empty, full bool
	}{
		{"far above", Bounds{Min: Int3{-8, 4, -8}, Max: Int3{8, 12, 8}}, 0, true, false},
		{"far below", Bounds{Min: Int3{-8, -12, -8}, Max: Int3{8, -2, 8}}, 0, false, true},
		{"straddling", Bounds{Min: Int3{-8, -4, -8}, Max: Int3{8, 4, 8}}, 0, false, false},
		{"near surface", Bounds{Min: Int3{0, 1, 0}, Max: Int3{4, 2, 4}}, 0, true, false},
		{"coarse lattice skips the surface", Bounds{Min: Int3{0, -1, 0}, Max: Int3{4, 1, 4}}, 1, false, false},
		{"halo above the world", Bounds{Min: Int3{-8, 8, -8}, Max: Int3{8, 33, 8}}, 0, true, false},
		{"coarse halo above the world", Bounds{Min: Int3{-8, 8, -8}, Max: Int3{8, 34, 8}}, 1, true, false},
		{"halo below the world", Bounds{Min: Int3{-8, -33, -8}, Max: Int3{8, -8, 8}}, 0, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lock, err := vol.Lock(context.Background(), LockRead, tc.b)
			require.NoError(t, err)
			defer lock.Unlock()
			empty, err := vol.IsEmpty(tc.b, tc.lod)
			require.NoError(t, err)
			require.Equal(t, tc.empty, empty, "empty")
			full, err := vol.IsFull(tc.b, tc.lod)
			require.NoError(t, err)
			require.Equal(t, tc.full, full, "full")
		})
	}
}

func TestIsEmptySeesEdits(t *testing.T) {
	vol := newTestVolume(t, 2, 8, planeGen{height: -100})
	b := Bounds{Min: Splat(0), Max: Splat(8)}
	require.NoError(t, vol.WithLock(context.Background(), LockWrite, b, func(acc *Accessor) error {
		empty, err := acc.IsEmpty(b, 0)
		require.NoError(t, err)
		require.True(t, empty)
		require.NoError(t, acc.Set(Int3{3, 3, 3}, Voxel{Density: -1, Material: 1}))
		empty, err = acc.IsEmpty(b, 0)
		require.NoError(t, err)
		require.False(t, empty)
		return nil
	}))
}

func TestIsEmptyRejectsDisjointBounds(t *testing.T) {
	vol := newTestVolume(t, 1, 8, planeGen{})
	_, err := vol.IsEmpty(Bounds{Min: Splat(100), Max: Splat(104)}, 0)
	require.ErrorIs(t, err, ErrInvalidBounds)
}

func TestQueriesBeyondTheHaloAreRejected(t *testing.T) {
	vol := newTestVolume(t, 3, 8, planeGen{height: 0, material: 1})
	tests := []struct {
		name string
		b    Bounds
		lod  int
	}{
		{"far above", Bounds{Min: Int3{-8, 8, -8}, Max: Int3{8, 48, 8}}, 0},
		{"two steps below", Bounds{Min: Int3{-8, -34, -8}, Max: Int3{8, -8, 8}}, 0},
		{"beyond the coarse halo", Bounds{Min: Int3{-8, 8, -8}, Max: Int3{8, 35, 8}}, 1},
		{"inverted", Bounds{Min: Splat(4), Max: Splat(-4)}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := vol.IsEmpty(tc.b, tc.lod)
			require.ErrorIs(t, err, ErrInvalidBounds)
			_, err = vol.IsFull(tc.b, tc.lod)
			require.ErrorIs(t, err, ErrInvalidBounds)
		})
	}
}

func TestReadGridHalo(t *testing.T) {
	vol := newTestVolume(t, 1, 8, planeGen{height: 0, material: 1})
	b := Bounds{Min: Splat(-10), Max: Splat(11)}
	require.NoError(t, vol.WithLock(context.Background(), LockRead, b, func(acc *Accessor) error {
		grid, err := acc.ReadGrid(Splat(-10), Splat(10), 2, 1)
		require.NoError(t, err)
		require.Equal(t, DefaultDensity, grid.Density(0, 9, 0), "halo reads as air")
		require.Equal(t, FullDensity, grid.Density(1, 1, 1))

		_, err = acc.ReadGrid(Splat(-10), Splat(11), 2, 1)
		require.ErrorIs(t, err, ErrInvalidBounds, "two steps past the world")
		_, err = acc.ReadGrid(Splat(-10), Splat(10), 1, 0)
		require.ErrorIs(t, err, ErrInvalidBounds)
		return nil
	}))
}

func TestReadGridMatchesGet(t *testing.T) {
	gen := &ballGen{radius: 11, material: 2}
	vol := newTestVolume(t, 3, 8, gen)
	b := Bounds{Min: Splat(-16), Max: Splat(17)}
	ctx := context.Background()

	require.NoError(t, vol.WithLock(ctx, LockWrite, b, func(acc *Accessor) error {
		return acc.Set(Int3{2, 2, 2}, Voxel{Density: 0.5, Material: 0})
	}))
	require.NoError(t, vol.WithLock(ctx, LockRead, b, func(acc *Accessor) error {
		grid, err := acc.ReadGrid(Int3{-16, -16, -16}, Splat(9), 4, 2)
		require.NoError(t, err)
		for k := int32(0); k < 9; k++ {
			for j := int32(0); j < 9; j++ {
				for i := int32(0); i < 9; i++ {
					pos := grid.Position(i, j, k)
					d, m, err := acc.Get(pos, 2)
					require.NoError(t, err)
					require.Equal(t, d, grid.Density(i, j, k), "at %v", pos)
					require.Equal(t, m, grid.Material(i, j, k), "at %v", pos)
				}
			}
		}
		return nil
	}))
}
