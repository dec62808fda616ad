package mesher

import (
	"io"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/memmaker/voxelstore/engine/util"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// buildDocument puts every non-empty mesh into its own node.
func buildDocument(meshes []*Mesh) *gltf.Document {
	doc := gltf.NewDocument()
	for i, m := range meshes {
		if m.IsEmpty() {
			continue
		}
		positions := make([][3]float32, len(m.Vertices))
		normals := make([][3]float32, len(m.Vertices))
		for j, v := range m.Vertices {
			positions[j] = v.Position
			normals[j] = v.Normal
		}
		indices := make([]uint32, len(m.Indices))
		copy(indices, m.Indices)

		doc.Meshes = append(doc.Meshes, &gltf.Mesh{
			Name: "chunk",
			Primitives: []*gltf.Primitive{{
				Indices: gltf.Index(modeler.WriteIndices(doc, indices)),
				Attributes: map[string]uint32{
					"POSITION": modeler.WritePosition(doc, positions),
					"NORMAL":   modeler.WriteNormal(doc, normals),
				},
				Mode: gltf.PrimitiveTriangles,
			}},
		})
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Name: "chunk",
			Mesh: gltf.Index(uint32(len(doc.Meshes) - 1)),
		})
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
		util.LogIODebug("gltf: mesh %d has %d vertices", i, len(m.Vertices))
	}
	return doc
}

// EncodeGLTF writes the meshes as one binary glTF document.
func EncodeGLTF(w io.Writer, meshes ...*Mesh) error {
	if err := gltf.NewEncoder(w).Encode(buildDocument(meshes)); err != nil {
		return errors.Wrap(err, "encode gltf")
	}
	return nil
}

// ExportGLTF saves the meshes to a .glb file.
func ExportGLTF(filename string, meshes ...*Mesh) error {
	if err := gltf.SaveBinary(buildDocument(meshes), filename); err != nil {
		return errors.Wrapf(err, "save %s", filename)
	}
	util.LogIOInfo("exported %d meshes to %s", len(meshes), filename)
	return nil
}

// DecodeGLTF reads back triangle meshes written by EncodeGLTF. Only positions,
// normals and indices survive the trip.
func DecodeGLTF(r io.Reader) ([]*Mesh, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, errors.Wrap(err, "decode gltf")
	}
	var result []*Mesh
	for meshIndex, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				util.LogIOError("gltf: mesh %d has a non triangle primitive", meshIndex)
				continue
			}
			m, err := readPrimitive(doc, prim)
			if err != nil {
				return nil, errors.Wrapf(err, "mesh %d", meshIndex)
			}
			result = append(result, m)
		}
	}
	return result, nil
}

func readPrimitive(doc *gltf.Document, prim *gltf.Primitive) (*Mesh, error) {
	posIndex, ok := prim.Attributes["POSITION"]
	if !ok || prim.Indices == nil {
		return nil, errors.New("primitive without positions or indices")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIndex], nil)
	if err != nil {
		return nil, err
	}
	var normals [][3]float32
	if normIndex, ok := prim.Attributes["NORMAL"]; ok {
		if normals, err = modeler.ReadNormal(doc, doc.Accessors[normIndex], nil); err != nil {
			return nil, err
		}
	}
	indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
	if err != nil {
		return nil, err
	}

	m := &Mesh{Vertices: make([]Vertex, len(positions)), Indices: indices}
	for i, p := range positions {
		v := Vertex{Position: mgl32.Vec3(p), MorphPosition: mgl32.Vec3(p)}
		if i < len(normals) {
			v.Normal = mgl32.Vec3(normals[i])
		}
		m.Vertices[i] = v
	}
	return m, nil
}
