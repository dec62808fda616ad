package mesher

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/memmaker/voxelstore/engine/voxel"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{Cubic, GreedyCubic, SurfaceNets} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, parsed)
	}
	_, err := ParseKind("marching-cubes")
	require.Error(t, err)

	policy, err := ParseMaterialPolicy("")
	require.NoError(t, err)
	require.Equal(t, MaterialSplit, policy)
	policy, err = ParseMaterialPolicy("origin")
	require.NoError(t, err)
	require.Equal(t, MaterialOrigin, policy)
	_, err = ParseMaterialPolicy("blend")
	require.Error(t, err)
}

func TestRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"smallest", Request{Size: MinChunkSize}, true},
		{"largest", Request{Size: MaxChunkSize, LOD: 2, Origin: voxel.Splat(-8)}, true},
		{"zero size", Request{}, false},
		{"too large", Request{Size: MaxChunkSize + 1}, false},
		{"negative lod", Request{Size: 8, LOD: -1}, false},
		{"off lattice", Request{Size: 8, LOD: 1, Origin: voxel.Int3{X: 1}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, voxel.ErrInvalidBounds)
			}
		})
	}
}

func TestRequestBounds(t *testing.T) {
	req := Request{Origin: voxel.Int3{X: -8}, Size: 4, LOD: 1}
	require.Equal(t, int32(2), req.Step())
	require.Equal(t, voxel.Bounds{Min: voxel.Int3{X: -8}, Max: voxel.Int3{X: 0, Y: 8, Z: 8}}, req.Bounds())
	require.Equal(t, voxel.Bounds{Min: voxel.Int3{X: -10, Y: -2, Z: -2}, Max: voxel.Int3{X: 2, Y: 10, Z: 10}}, req.AccessBounds())
}

func TestFaces(t *testing.T) {
	for i, f := range AllFaces {
		require.Equal(t, FaceType(i), f)
		require.Equal(t, f, FaceFor(f.Axis(), f.Positive()))
		require.Equal(t, f.Offset().Mul(-1), f.Opposite().Offset())
	}
	mask := TransitionMask(0).With(YN).With(ZP)
	require.Equal(t, TransitionMask(0b011000), mask)
	require.True(t, mask.Has(ZP))
	require.False(t, mask.Has(XP))
}

func TestExtractRejectsBadRequests(t *testing.T) {
	vol := newVolume(t, 1, 16, cube)
	acc, err := vol.Access(context.Background(), voxel.LockRead, vol.Bounds())
	require.NoError(t, err)
	defer acc.Release()

	_, err = New(GreedyCubic, Options{}).Extract(acc, Request{Size: 100})
	require.ErrorIs(t, err, voxel.ErrInvalidBounds)
	_, err = New(Kind(9), Options{}).Extract(acc, Request{Size: 4})
	require.Error(t, err)
}

func TestGLTFRoundTrip(t *testing.T) {
	vol := newVolume(t, 2, 16, ground)
	nets := extract(t, vol, New(SurfaceNets, Options{}), Request{Size: 8})
	blocks := extract(t, vol, New(GreedyCubic, Options{}), Request{Size: 8})

	var buf bytes.Buffer
	require.NoError(t, EncodeGLTF(&buf, nets, &Mesh{}, blocks))
	decoded, err := DecodeGLTF(&buf)
	require.NoError(t, err)
	require.Len(t, decoded, 2, "empty meshes are not written")

	for i, want := range []*Mesh{nets, blocks} {
		got := decoded[i]
		require.Equal(t, want.Indices, got.Indices)
		require.Len(t, got.Vertices, len(want.Vertices))
		for j := range want.Vertices {
			require.Equal(t, want.Vertices[j].Position, got.Vertices[j].Position)
			require.Equal(t, want.Vertices[j].Normal, got.Vertices[j].Normal)
		}
	}
}

func TestExportGLTF(t *testing.T) {
	vol := newVolume(t, 1, 16, cube)
	mesh := extract(t, vol, New(Cubic, Options{}), Request{Size: 8})
	path := filepath.Join(t.TempDir(), "cube.glb")
	require.NoError(t, ExportGLTF(path, mesh))
	require.FileExists(t, path)
}
