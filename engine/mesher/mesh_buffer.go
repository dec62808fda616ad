package mesher

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/memmaker/voxelstore/engine/voxel"
)

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	// MorphPosition is where the vertex sits at the next coarser LOD.
	MorphPosition mgl32.Vec3
	Material      voxel.Material
}

// Box is an axis aligned collision box in world coordinates.
type Box struct {
	Min, Max mgl32.Vec3
}

func (b Box) Extents() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Mesh is an indexed triangle list. Front faces are counter-clockwise.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
	Boxes    []Box
}

func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Indices) == 0
}

func (m *Mesh) TriangleCount() int {
	if m == nil {
		return 0
	}
	return len(m.Indices) / 3
}

// MeshBuffer collects quads and triangles for one chunk.
type MeshBuffer struct {
	vertices  []Vertex
	indices   []uint32
	quadCount int
}

func NewMeshBuffer() *MeshBuffer {
	return &MeshBuffer{}
}

func (m *MeshBuffer) TriangleCount() int {
	return len(m.indices) / 3
}

func (m *MeshBuffer) QuadCount() int {
	return m.quadCount
}

func (m *MeshBuffer) Reset() {
	m.vertices = m.vertices[:0]
	m.indices = m.indices[:0]
	m.quadCount = 0
}

func (m *MeshBuffer) AddVertex(v Vertex) uint32 {
	m.vertices = append(m.vertices, v)
	return uint32(len(m.vertices) - 1)
}

// AppendQuad adds a flat quad. The corners go counter-clockwise around the
// positive axis of the face (bl, br, tr, tl in the face's u/v plane);
// negative faces are wound the other way round.
func (m *MeshBuffer) AppendQuad(bl, br, tr, tl mgl32.Vec3, face FaceType, material voxel.Material) {
	normal := face.Normal()
	base := uint32(len(m.vertices))
	for _, p := range [4]mgl32.Vec3{bl, br, tr, tl} {
		m.vertices = append(m.vertices, Vertex{Position: p, Normal: normal, MorphPosition: p, Material: material})
	}
	reverseOrder := face%2 == 1
	if reverseOrder {
		m.indices = append(m.indices, base, base+2, base+1, base, base+3, base+2)
	} else {
		m.indices = append(m.indices, base, base+1, base+2, base, base+2, base+3)
	}
	m.quadCount++
}

// AppendIndexedQuad connects four existing vertices, counter-clockwise as given.
func (m *MeshBuffer) AppendIndexedQuad(a, b, c, d uint32) {
	m.indices = append(m.indices, a, b, c, a, c, d)
	m.quadCount++
}

// Mesh copies the buffer out.
func (m *MeshBuffer) Mesh() *Mesh {
	out := &Mesh{
		Vertices: make([]Vertex, len(m.vertices)),
		Indices:  make([]uint32, len(m.indices)),
	}
	copy(out.Vertices, m.vertices)
	copy(out.Indices, m.indices)
	return out
}
