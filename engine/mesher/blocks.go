package mesher

import (
	"math/bits"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/memmaker/voxelstore/engine/voxel"
)

type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) get(i int) bool {
	return b[i>>6]&(1<<(uint(i)&63)) != 0
}

func (b bitset) set(i int) {
	b[i>>6] |= 1 << (uint(i) & 63)
}

// blockChunk holds the occupancy of a padded chunk and its visible faces.
type blockChunk struct {
	req     Request
	grid    *voxel.Grid
	n       int32
	occ     bitset
	visible [6]bitset
}

func newBlockChunk(req Request, grid *voxel.Grid) *blockChunk {
	n := req.Size
	p := n + 2
	c := &blockChunk{req: req, grid: grid, n: n, occ: newBitset(int(p * p * p))}
	for z := int32(0); z < p; z++ {
		for y := int32(0); y < p; y++ {
			for x := int32(0); x < p; x++ {
				if grid.Solid(x, y, z) {
					c.occ.set(c.padIndex(voxel.Int3{X: x, Y: y, Z: z}))
				}
			}
		}
	}
	for _, face := range AllFaces {
		visible := newBitset(int(n * n * n))
		offset := face.Offset()
		for z := int32(0); z < n; z++ {
			for y := int32(0); y < n; y++ {
				for x := int32(0); x < n; x++ {
					pos := voxel.Int3{X: x, Y: y, Z: z}
					if c.solid(pos) && !c.solid(pos.Add(offset)) {
						visible.set(c.innerIndex(pos))
					}
				}
			}
		}
		c.visible[face] = visible
	}
	return c
}

// padIndex takes padded coordinates in [0, n+2).
func (c *blockChunk) padIndex(p voxel.Int3) int {
	s := c.n + 2
	return int(p.X + s*(p.Y+s*p.Z))
}

func (c *blockChunk) innerIndex(p voxel.Int3) int {
	return int(p.X + c.n*(p.Y+c.n*p.Z))
}

// solid takes chunk coordinates in [-1, n].
func (c *blockChunk) solid(p voxel.Int3) bool {
	return c.occ.get(c.padIndex(p.Add(voxel.Splat(1))))
}

func (c *blockChunk) material(p voxel.Int3) voxel.Material {
	return c.grid.Material(p.X+1, p.Y+1, p.Z+1)
}

// corner converts chunk coordinates of a voxel corner to world space.
func (c *blockChunk) corner(p voxel.Int3) mgl32.Vec3 {
	return c.req.Origin.Add(p.Mul(c.req.Step())).ToVec3()
}

func extractBlocks(acc *voxel.Accessor, req Request, greedy bool, opts Options) (*Mesh, error) {
	skip, err := skipUniform(acc, req)
	if err != nil {
		return nil, err
	}
	if skip {
		return &Mesh{}, nil
	}
	grid, err := readPadded(acc, req)
	if err != nil {
		return nil, err
	}
	c := newBlockChunk(req, grid)
	buf := NewMeshBuffer()
	for _, face := range AllFaces {
		c.meshFace(buf, face, greedy, opts.Policy)
	}
	mesh := buf.Mesh()
	if req.WantCollision {
		mesh.Boxes = c.collisionBoxes()
	}
	return mesh, nil
}

// meshFace runs one face direction layer by layer. Each layer is a stack of
// 64 bit rows along u; merging eats bits until the layer is empty.
func (c *blockChunk) meshFace(buf *MeshBuffer, face FaceType, greedy bool, policy MaterialPolicy) {
	n := c.n
	d := face.Axis()
	u := (d + 1) % 3
	v := (d + 2) % 3
	rows := make([]uint64, n)

	at := func(layer, i, j int32) voxel.Int3 {
		return voxel.Int3{}.WithAxis(d, layer).WithAxis(u, i).WithAxis(v, j)
	}
	sameMaterial := func(a, b voxel.Int3) bool {
		return policy == MaterialOrigin || c.material(a) == c.material(b)
	}

	for layer := int32(0); layer < n; layer++ {
		empty := true
		for j := int32(0); j < n; j++ {
			rows[j] = 0
			for i := int32(0); i < n; i++ {
				if c.visible[face].get(c.innerIndex(at(layer, i, j))) {
					rows[j] |= 1 << uint(i)
					empty = false
				}
			}
		}
		if empty {
			continue
		}

		plane := layer
		if face.Positive() {
			plane++
		}
		for j := int32(0); j < n; j++ {
			for rows[j] != 0 {
				i := int32(bits.TrailingZeros64(rows[j]))
				origin := at(layer, i, j)
				w, h := int32(1), int32(1)
				if greedy {
					for i+w < n && rows[j]&(1<<uint(i+w)) != 0 && sameMaterial(origin, at(layer, i+w, j)) {
						w++
					}
					mask := (uint64(1)<<uint(w) - 1) << uint(i)
					for j+h < n && rows[j+h]&mask == mask && c.rowMatches(origin, layer, i, w, j+h, at, sameMaterial) {
						h++
					}
					for k := j; k < j+h; k++ {
						rows[k] &^= mask
					}
				} else {
					rows[j] &^= 1 << uint(i)
				}

				bl := voxel.Int3{}.WithAxis(d, plane).WithAxis(u, i).WithAxis(v, j)
				br := bl.WithAxis(u, i+w)
				tr := br.WithAxis(v, j+h)
				tl := bl.WithAxis(v, j+h)
				buf.AppendQuad(c.corner(bl), c.corner(br), c.corner(tr), c.corner(tl), face, c.material(origin))
			}
		}
	}
}

func (c *blockChunk) rowMatches(origin voxel.Int3, layer, i, w, j int32, at func(layer, i, j int32) voxel.Int3, same func(a, b voxel.Int3) bool) bool {
	for k := i; k < i+w; k++ {
		if !same(origin, at(layer, k, j)) {
			return false
		}
	}
	return true
}

// collisionBoxes greedily packs the solid voxels of the chunk into boxes,
// growing along x, then y, then z, and drops boxes that are buried on all sides.
func (c *blockChunk) collisionBoxes() []Box {
	n := c.n
	used := newBitset(int(n * n * n))
	free := func(p voxel.Int3) bool {
		return c.solid(p) && !used.get(c.innerIndex(p))
	}
	freeBox := func(min, size voxel.Int3) bool {
		for z := min.Z; z < min.Z+size.Z; z++ {
			for y := min.Y; y < min.Y+size.Y; y++ {
				for x := min.X; x < min.X+size.X; x++ {
					if !free(voxel.Int3{X: x, Y: y, Z: z}) {
						return false
					}
				}
			}
		}
		return true
	}

	var boxes []Box
	for z := int32(0); z < n; z++ {
		for y := int32(0); y < n; y++ {
			for x := int32(0); x < n; x++ {
				min := voxel.Int3{X: x, Y: y, Z: z}
				if !free(min) {
					continue
				}
				size := voxel.Int3{X: 1, Y: 1, Z: 1}
				for min.X+size.X < n && free(min.Add(voxel.Int3{X: size.X})) {
					size.X++
				}
				for min.Y+size.Y < n && freeBox(min.Add(voxel.Int3{Y: size.Y}), voxel.Int3{X: size.X, Y: 1, Z: 1}) {
					size.Y++
				}
				for min.Z+size.Z < n && freeBox(min.Add(voxel.Int3{Z: size.Z}), voxel.Int3{X: size.X, Y: size.Y, Z: 1}) {
					size.Z++
				}
				for bz := min.Z; bz < min.Z+size.Z; bz++ {
					for by := min.Y; by < min.Y+size.Y; by++ {
						for bx := min.X; bx < min.X+size.X; bx++ {
							used.set(c.innerIndex(voxel.Int3{X: bx, Y: by, Z: bz}))
						}
					}
				}
				if c.buried(min, size) {
					continue
				}
				boxes = append(boxes, Box{Min: c.corner(min), Max: c.corner(min.Add(size))})
			}
		}
	}
	return boxes
}

// buried reports whether every voxel touching a face of the box is solid.
func (c *blockChunk) buried(min, size voxel.Int3) bool {
	for axis := 0; axis < 3; axis++ {
		u := (axis + 1) % 3
		v := (axis + 2) % 3
		for _, layer := range [2]int32{min.Axis(axis) - 1, min.Axis(axis) + size.Axis(axis)} {
			for i := min.Axis(u); i < min.Axis(u)+size.Axis(u); i++ {
				for j := min.Axis(v); j < min.Axis(v)+size.Axis(v); j++ {
					p := voxel.Int3{}.WithAxis(axis, layer).WithAxis(u, i).WithAxis(v, j)
					if !c.solid(p) {
						return false
					}
				}
			}
		}
	}
	return true
}
