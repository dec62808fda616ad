package mesher

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/memmaker/voxelstore/engine/voxel"
	"github.com/stretchr/testify/require"
)

func newVolume(t testing.TB, depth int, leafSize int32, gen voxel.Generator) *voxel.Volume {
	t.Helper()
	vol, err := voxel.NewVolume(voxel.VolumeOptions{Depth: depth, LeafSize: leafSize, Generator: gen})
	require.NoError(t, err)
	return vol
}

// extract meshes one chunk under a read lock over its padded bounds.
func extract(t testing.TB, vol *voxel.Volume, m Mesher, req Request) *Mesh {
	t.Helper()
	var mesh *Mesh
	err := vol.WithLock(context.Background(), voxel.LockRead, req.AccessBounds(), func(acc *voxel.Accessor) error {
		var err error
		mesh, err = m.Extract(acc, req)
		return err
	})
	require.NoError(t, err)
	return mesh
}

func triangle(m *Mesh, i int) (a, b, c Vertex) {
	return m.Vertices[m.Indices[3*i]], m.Vertices[m.Indices[3*i+1]], m.Vertices[m.Indices[3*i+2]]
}

// requireFrontFacing checks that every triangle winds counter-clockwise
// around the normals of its vertices.
func requireFrontFacing(t *testing.T, m *Mesh) {
	t.Helper()
	for i := 0; i < m.TriangleCount(); i++ {
		a, b, c := triangle(m, i)
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		if n.Len() < 1e-6 {
			continue
		}
		normal := a.Normal.Add(b.Normal).Add(c.Normal)
		require.Greater(t, n.Dot(normal), float32(0), "triangle %d at %v", i, a.Position)
	}
}

func requireVec(t *testing.T, expected, actual mgl32.Vec3) {
	t.Helper()
	require.InDeltaSlice(t, expected[:], actual[:], 1e-4)
}
