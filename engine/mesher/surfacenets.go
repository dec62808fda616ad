package mesher

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/memmaker/voxelstore/engine/voxel"
)

// quadCase describes the edges leaving the lower corner of a cell that cross
// the surface. Bit 0 of the index is the lower corner, bits 1 to 3 its +x, +y
// and +z neighbours. Edge bits are x=1, y=2, z=4. inside is set when the lower
// corner is solid, which makes the quads face along the positive axis.
type quadCase struct {
	edges  uint8
	inside bool
}

var quadCases = [16]quadCase{
	{0, false}, {7, true}, {1, false}, {6, true},
	{2, false}, {5, true}, {3, false}, {4, true},
	{4, false}, {3, true}, {5, false}, {2, true},
	{6, false}, {1, true}, {7, false}, {0, true},
}

const noCrossing = -1

// netsChunk holds the padded samples of a chunk. Sample coordinates run from
// -1 to N on every axis; cell c spans samples c to c+1.
type netsChunk struct {
	acc  *voxel.Accessor
	req  Request
	grid *voxel.Grid
	size int32
	step int32

	// parity of the chunk origin on the lattice of the next coarser lod
	parity voxel.Int3

	// stitched is set when faces towards finer neighbours get caps
	stitched bool

	cross []float32
	verts []int32
	buf   *MeshBuffer
}

func newNetsChunk(acc *voxel.Accessor, req Request, grid *voxel.Grid) *netsChunk {
	step := req.Step()
	samples := req.Size + 2
	cells := req.Size + 1
	n := &netsChunk{
		acc:      acc,
		req:      req,
		grid:     grid,
		size:     req.Size,
		step:     step,
		cross:    make([]float32, 3*samples*samples*samples),
		verts:    make([]int32, cells*cells*cells),
		buf:      NewMeshBuffer(),
		parity:   req.Origin.FloorDiv(step),
		stitched: stitches(req),
	}
	for i := range n.verts {
		n.verts[i] = -1
	}
	for a := 0; a < 3; a++ {
		n.parity = n.parity.WithAxis(a, n.parity.Axis(a)&1)
	}
	return n
}

func (n *netsChunk) inGrid(c voxel.Int3) bool {
	return c.X >= -1 && c.Y >= -1 && c.Z >= -1 && c.X <= n.size && c.Y <= n.size && c.Z <= n.size
}

func (n *netsChunk) sampleIndex(c voxel.Int3) int {
	s := n.size + 2
	return int((c.X + 1) + s*((c.Y+1)+s*(c.Z+1)))
}

func (n *netsChunk) cellIndex(c voxel.Int3) int {
	s := n.size + 1
	return int((c.X + 1) + s*((c.Y+1)+s*(c.Z+1)))
}

func (n *netsChunk) density(c voxel.Int3) float32 {
	return n.grid.Density(c.X+1, c.Y+1, c.Z+1)
}

func (n *netsChunk) solid(c voxel.Int3) bool {
	return n.grid.Solid(c.X+1, c.Y+1, c.Z+1)
}

func (n *netsChunk) world(c voxel.Int3) voxel.Int3 {
	return n.req.Origin.Add(c.Mul(n.step))
}

func (n *netsChunk) crossing(c voxel.Int3, axis int) float32 {
	return n.cross[3*n.sampleIndex(c)+axis]
}

// sampleWorld reads one voxel; anything outside the volume is air.
func sampleWorld(acc *voxel.Accessor, pos voxel.Int3, lod int) (float32, voxel.Material, error) {
	if !acc.Volume().Bounds().Contains(pos) {
		return voxel.DefaultDensity, voxel.DefaultMaterial, nil
	}
	return acc.Get(pos, lod)
}

// stitches reports whether the request has faces towards a finer neighbour.
// At lod 0 there is no finer neighbour and the mask is ignored.
func stitches(req Request) bool {
	return req.LOD > 0 && req.TransitionMask != 0
}

func extractSurfaceNets(acc *voxel.Accessor, req Request) (*Mesh, error) {
	uniform, err := skipUniform(acc, req)
	if err != nil {
		return nil, err
	}
	if uniform && !stitches(req) {
		return &Mesh{}, nil
	}
	grid, err := readPadded(acc, req)
	if err != nil {
		return nil, err
	}
	n := newNetsChunk(acc, req, grid)
	if !uniform {
		if err := n.computeCrossings(); err != nil {
			return nil, err
		}
		n.polygonize()
	}
	if n.stitched {
		for _, face := range AllFaces {
			if !req.TransitionMask.Has(face) {
				continue
			}
			if err := n.stitch(face); err != nil {
				return nil, err
			}
		}
	}
	mesh := n.buf.Mesh()
	if req.WantCollision {
		mesh.Boxes = newBlockChunk(req, grid).collisionBoxes()
	}
	return mesh, nil
}

// computeCrossings stores the zero crossing of every sign changing edge as a
// fraction of the edge, refined against the finest data.
func (n *netsChunk) computeCrossings() error {
	for z := int32(-1); z <= n.size; z++ {
		for y := int32(-1); y <= n.size; y++ {
			for x := int32(-1); x <= n.size; x++ {
				c := voxel.Int3{X: x, Y: y, Z: z}
				base := 3 * n.sampleIndex(c)
				for a := 0; a < 3; a++ {
					n.cross[base+a] = noCrossing
					next := c.Add(voxel.Int3{}.WithAxis(a, 1))
					if !n.inGrid(next) || n.solid(c) == n.solid(next) {
						continue
					}
					t, err := n.refine(c, a)
					if err != nil {
						return err
					}
					n.cross[base+a] = t
				}
			}
		}
	}
	return nil
}

// refine halves the edge lod times, keeping the half that still changes sign,
// then interpolates linearly inside the last interval.
func (n *netsChunk) refine(c voxel.Int3, axis int) (float32, error) {
	d0 := n.density(c)
	d1 := n.density(c.Add(voxel.Int3{}.WithAxis(axis, 1)))
	start := n.world(c)
	lo, hi := int32(0), n.step
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		dm, _, err := sampleWorld(n.acc, start.Add(voxel.Int3{}.WithAxis(axis, mid)), 0)
		if err != nil {
			return 0, err
		}
		if voxel.IsSolid(dm) == voxel.IsSolid(d0) {
			lo, d0 = mid, dm
		} else {
			hi, d1 = mid, dm
		}
	}
	t := (float32(lo) + d0/(d0-d1)*float32(hi-lo)) / float32(n.step)
	return mgl32.Clamp(t, 0, 1), nil
}

// polygonize emits the quads of every edge owned by this chunk, that is every
// edge starting at a sample in [0, N).
func (n *netsChunk) polygonize() {
	for z := int32(0); z < n.size; z++ {
		for y := int32(0); y < n.size; y++ {
			for x := int32(0); x < n.size; x++ {
				c := voxel.Int3{X: x, Y: y, Z: z}
				idx := 0
				if n.solid(c) {
					idx |= 1
				}
				for a := 0; a < 3; a++ {
					if n.solid(c.Add(voxel.Int3{}.WithAxis(a, 1))) {
						idx |= 2 << a
					}
				}
				qc := quadCases[idx]
				if qc.edges == 0 {
					continue
				}
				for a := 0; a < 3; a++ {
					if qc.edges&(1<<a) == 0 {
						continue
					}
					eu := voxel.Int3{}.WithAxis((a+1)%3, 1)
					ev := voxel.Int3{}.WithAxis((a+2)%3, 1)
					q0 := n.vertex(c.Sub(eu).Sub(ev))
					q1 := n.vertex(c.Sub(ev))
					q2 := n.vertex(c)
					q3 := n.vertex(c.Sub(eu))
					if qc.inside {
						n.buf.AppendIndexedQuad(q0, q1, q2, q3)
					} else {
						n.buf.AppendIndexedQuad(q0, q3, q2, q1)
					}
				}
			}
		}
	}
}

// vertex returns the dual vertex of cell c, creating it on first use.
func (n *netsChunk) vertex(c voxel.Int3) uint32 {
	idx := n.cellIndex(c)
	if v := n.verts[idx]; v >= 0 {
		return uint32(v)
	}

	var sum mgl32.Vec3
	count := 0
	for a := 0; a < 3; a++ {
		eu := voxel.Int3{}.WithAxis((a+1)%3, 1)
		ev := voxel.Int3{}.WithAxis((a+2)%3, 1)
		for _, off := range [4]voxel.Int3{{}, eu, ev, eu.Add(ev)} {
			s := c.Add(off)
			t := n.crossing(s, a)
			if t == noCrossing {
				continue
			}
			p := n.world(s).ToVec3()
			p[a] += t * float32(n.step)
			sum = sum.Add(p)
			count++
		}
	}
	var pos mgl32.Vec3
	if count == 0 {
		pos = n.world(c).ToVec3().Add(mgl32.Vec3{0.5, 0.5, 0.5}.Mul(float32(n.step)))
	} else {
		pos = sum.Mul(1 / float32(count))
	}

	var grad mgl32.Vec3
	var material voxel.Material
	materialSet := false
	for k := 0; k < 8; k++ {
		corner := c.Add(voxel.Int3{X: int32(k & 1), Y: int32(k >> 1 & 1), Z: int32(k >> 2 & 1)})
		d := n.density(corner)
		for a := 0; a < 3; a++ {
			if k>>a&1 == 1 {
				grad[a] += d
			} else {
				grad[a] -= d
			}
		}
		if !materialSet && voxel.IsSolid(d) {
			material = n.grid.Material(corner.X+1, corner.Y+1, corner.Z+1)
			materialSet = true
		}
	}
	normal := mgl32.Vec3{0, 1, 0}
	if grad.Len() > 1e-6 {
		normal = grad.Normalize()
	}

	pos, morph := n.snapToSeams(c, pos, n.morph(c, pos))
	v := n.buf.AddVertex(Vertex{
		Position:      pos,
		Normal:        normal,
		MorphPosition: morph,
		Material:      material,
	})
	n.verts[idx] = int32(v)
	return v
}

// morph places the vertex where the enclosing cell of the next coarser lod
// would put it. Parent edges take their crossing from the half that changes
// sign. Cells whose parent leaves the padded grid keep their own position.
func (n *netsChunk) morph(c voxel.Int3, fallback mgl32.Vec3) mgl32.Vec3 {
	var pc voxel.Int3
	for a := 0; a < 3; a++ {
		v := c.Axis(a)
		pc = pc.WithAxis(a, v-((v+n.parity.Axis(a))&1))
	}
	if !n.inGrid(pc) || !n.inGrid(pc.Add(voxel.Splat(2))) {
		return fallback
	}

	var sum mgl32.Vec3
	count := 0
	for a := 0; a < 3; a++ {
		ea := voxel.Int3{}.WithAxis(a, 1)
		eu := voxel.Int3{}.WithAxis((a+1)%3, 2)
		ev := voxel.Int3{}.WithAxis((a+2)%3, 2)
		for _, off := range [4]voxel.Int3{{}, eu, ev, eu.Add(ev)} {
			s0 := pc.Add(off)
			s1 := s0.Add(ea)
			s2 := s1.Add(ea)
			if n.solid(s0) == n.solid(s2) {
				continue
			}
			var t float32
			if n.solid(s1) == n.solid(s0) {
				t = (1 + n.crossing(s1, a)) / 2
			} else {
				t = n.crossing(s0, a) / 2
			}
			p := n.world(s0).ToVec3()
			p[a] += t * float32(2*n.step)
			sum = sum.Add(p)
			count++
		}
	}
	if count == 0 {
		return fallback
	}
	return sum.Mul(1 / float32(count))
}

// snapToSeams moves the vertices of boundary cells on stitched faces to
// plane - step/4 on the face axis. That is where the finer neighbour puts the
// vertices of its own boundary cells, so both surfaces end on the same line.
func (n *netsChunk) snapToSeams(c voxel.Int3, pos, morph mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	if !n.stitched {
		return pos, morph
	}
	for _, face := range AllFaces {
		if !n.req.TransitionMask.Has(face) {
			continue
		}
		a := face.Axis()
		boundary := int32(-1)
		plane := n.req.Origin.Axis(a)
		if face.Positive() {
			boundary = n.size - 1
			plane += n.size * n.step
		}
		if c.Axis(a) != boundary {
			continue
		}
		seam := float32(plane) - float32(n.step)/4
		pos[a] = seam
		morph[a] = seam
	}
	return pos, morph
}

// stitch caps the seam towards a neighbour one lod finer. Each coarse voxel
// just inside the face is compared with the four fine voxels across it.
func (n *netsChunk) stitch(face FaceType) error {
	a := face.Axis()
	u := (a + 1) % 3
	v := (a + 2) % 3
	s := n.step
	half := s / 2
	origin := n.req.Origin
	fineLOD := n.req.LOD - 1

	inner := int32(0)
	plane := origin.Axis(a)
	fine := plane - half
	if face.Positive() {
		inner = n.size - 1
		plane = origin.Axis(a) + n.size*s
		fine = plane
	}

	quad := func(u0, v0, w int32, f FaceType, material voxel.Material) {
		corner := func(du, dv int32) mgl32.Vec3 {
			return voxel.Int3{}.WithAxis(a, plane).WithAxis(u, u0+du).WithAxis(v, v0+dv).ToVec3()
		}
		n.buf.AppendQuad(corner(0, 0), corner(w, 0), corner(w, w), corner(0, w), f, material)
	}

	type fineVoxel struct {
		solid    bool
		material voxel.Material
	}
	for j := int32(0); j < n.size; j++ {
		for k := int32(0); k < n.size; k++ {
			cs := voxel.Int3{}.WithAxis(a, inner).WithAxis(u, j).WithAxis(v, k)
			u0 := origin.Axis(u) + j*s
			v0 := origin.Axis(v) + k*s

			var cells [4]fineVoxel
			full := 0
			for i := range cells {
				du := int32(i&1) * half
				dv := int32(i>>1) * half
				pos := voxel.Int3{}.WithAxis(a, fine).WithAxis(u, u0+du).WithAxis(v, v0+dv)
				d, m, err := sampleWorld(n.acc, pos, fineLOD)
				if err != nil {
					return err
				}
				cells[i] = fineVoxel{solid: voxel.IsSolid(d), material: m}
				if cells[i].solid {
					full++
				}
			}

			if n.solid(cs) {
				if full < 4 {
					quad(u0, v0, s, face, n.grid.Material(cs.X+1, cs.Y+1, cs.Z+1))
				}
				continue
			}
			for i, cell := range cells {
				if cell.solid {
					quad(u0+int32(i&1)*half, v0+int32(i>>1)*half, half, face.Opposite(), cell.material)
				}
			}
		}
	}
	return nil
}
