package voxel

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func raycast(t *testing.T, vol *Volume, start, end mgl32.Vec3) RayHit {
	t.Helper()
	var hit RayHit
	err := vol.WithLock(context.Background(), LockRead, vol.Bounds(), func(acc *Accessor) error {
		var err error
		hit, err = acc.Raycast(start, end)
		return err
	})
	require.NoError(t, err)
	return hit
}

func TestRaycastHitsGround(t *testing.T) {
	vol := newTestVolume(t, 2, 8, planeGen{height: 0, material: 4})

	hit := raycast(t, vol, mgl32.Vec3{0.5, 5.5, 0.5}, mgl32.Vec3{0.5, -5, 0.5})
	require.True(t, hit.Hit)
	require.Equal(t, Int3{0, 0, 0}, hit.Voxel)
	require.Equal(t, Int3{0, 1, 0}, hit.Previous)
	require.Equal(t, Int3{0, 1, 0}, hit.Normal)
	require.InDelta(t, 4.5, hit.Distance, 1e-5)
	require.InDelta(t, 1.0, hit.Point.Y(), 1e-5)
	require.Equal(t, Material(4), hit.Material)
}

func TestRaycastMisses(t *testing.T) {
	vol := newTestVolume(t, 2, 8, planeGen{height: 0, material: 4})

	require.False(t, raycast(t, vol, mgl32.Vec3{0.5, 5.5, 0.5}, mgl32.Vec3{0.5, 12, 0.5}).Hit)
	require.False(t, raycast(t, vol, mgl32.Vec3{0.5, 5.5, 0.5}, mgl32.Vec3{0.5, 40, 0.5}).Hit)
	require.False(t, raycast(t, vol, mgl32.Vec3{0.5, 5.5, 0.5}, mgl32.Vec3{0.5, 5.5, 0.5}).Hit)
}

func TestRaycastStartingInsideMatter(t *testing.T) {
	vol := newTestVolume(t, 2, 8, planeGen{height: 0, material: 4})

	hit := raycast(t, vol, mgl32.Vec3{0.5, -3.5, 0.5}, mgl32.Vec3{0.5, 3, 0.5})
	require.True(t, hit.Hit)
	require.Zero(t, hit.Distance)
	require.Equal(t, Int3{}, hit.Normal)
	require.Equal(t, hit.Voxel, hit.Previous)
}

func TestRaycastSeesEdits(t *testing.T) {
	vol := newTestVolume(t, 2, 8, planeGen{height: -10, material: 4})
	block := Int3{3, 2, 1}
	err := vol.WithLock(context.Background(), LockWrite, Bounds{block, block.Add(Splat(1))}, func(acc *Accessor) error {
		return acc.Set(block, Voxel{Density: -1, Material: 9})
	})
	require.NoError(t, err)

	hit := raycast(t, vol, mgl32.Vec3{0.5, 2.5, 1.5}, mgl32.Vec3{10.5, 2.5, 1.5})
	require.True(t, hit.Hit)
	require.Equal(t, block, hit.Voxel)
	require.Equal(t, Int3{-1, 0, 0}, hit.Normal)
	require.Equal(t, Int3{2, 2, 1}, hit.Previous)
	require.InDelta(t, 2.5, hit.Distance, 1e-5)
	require.Equal(t, Material(9), hit.Material)

	hit = raycast(t, vol, mgl32.Vec3{10.5, 2.5, 1.5}, mgl32.Vec3{0.5, 2.5, 1.5})
	require.True(t, hit.Hit)
	require.Equal(t, Int3{1, 0, 0}, hit.Normal)
	require.Equal(t, Int3{4, 2, 1}, hit.Previous)
}
