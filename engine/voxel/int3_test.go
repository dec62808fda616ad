package voxel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloorDivRoundsDown(t *testing.T) {
	require.Equal(t, Int3{-1, 0, 1}, Int3{-1, 7, 8}.FloorDiv(8))
	require.Equal(t, Int3{-2, -1, -1}, Int3{-9, -8, -1}.FloorDiv(8))
}

func TestBoundsAlign(t *testing.T) {
	b := Bounds{Min: Int3{-3, 0, 9}, Max: Int3{1, 8, 17}}
	require.Equal(t, Bounds{Min: Int3{-8, 0, 8}, Max: Int3{8, 8, 24}}, b.Align(8))
	require.Equal(t, b, b.Align(1))
}

func TestBoundsSetOperations(t *testing.T) {
	a := Bounds{Min: Splat(0), Max: Splat(4)}
	b := Bounds{Min: Splat(2), Max: Splat(6)}
	c := Bounds{Min: Splat(4), Max: Splat(5)}

	require.True(t, a.Intersects(b))
	require.False(t, a.Intersects(c), "touching boxes do not intersect")
	require.Equal(t, Bounds{Min: Splat(2), Max: Splat(4)}, a.Intersection(b))
	require.Equal(t, Bounds{Min: Splat(0), Max: Splat(6)}, a.Union(b))
	require.True(t, b.ContainsBounds(c))
	require.False(t, a.ContainsBounds(b))
	require.True(t, a.Contains(Splat(3)))
	require.False(t, a.Contains(Splat(4)))
	require.Equal(t, int64(64), a.Volume())
	require.Equal(t, Bounds{Min: Splat(-1), Max: Splat(5)}, a.Extend(1))
	require.False(t, Bounds{Min: Splat(1), Max: Int3{2, 1, 2}}.IsValid())
}

func TestInt3Helpers(t *testing.T) {
	p := Int3{1, -2, 3}
	require.Equal(t, int32(-2), p.Axis(1))
	require.Equal(t, Int3{1, 9, 3}, p.WithAxis(1, 9))
	require.Equal(t, int32(6), ManhattanDistance3(p, Int3{}))
	require.Equal(t, Int3{2, -4, 6}, p.Mul(2))
	require.Equal(t, Int3{1, -2, 1}, p.Min(Splat(1)))
}
