package generator

import (
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/Tnze/go-mc/nbt"
	"github.com/memmaker/voxelstore/engine/util"
	"github.com/memmaker/voxelstore/engine/voxel"
	"github.com/pkg/errors"
)

// Amulet ".construction" files: an 8 byte magic, gzipped NBT sections, a
// gzipped NBT metadata block, its offset as int32 and the magic again.

const constructionMagic = "constrct"

type sectionBlockInfo struct {
	BlocksArrayType byte `nbt:"blocks_array_type"`
}

type byteSection struct {
	Blocks []byte `nbt:"blocks"`
}

type intSection struct {
	Blocks []int32 `nbt:"blocks"`
}

type constructionMetadata struct {
	SectionIndexTable []byte             `nbt:"section_index_table"`
	SectionVersion    byte               `nbt:"section_version"`
	BlockPalette      []*BlockDefinition `nbt:"block_palette"`
	CreatedWith       string             `nbt:"created_with"`
}

type BlockDefinition struct {
	Name      string         `nbt:"blockname"`
	Namespace string         `nbt:"namespace"`
	Props     map[string]any `nbt:"properties"`
}

func (b *BlockDefinition) IsAir() bool {
	return b == nil || b.Name == "air" || b.Name == "cave_air" || b.Name == "void_air"
}

type Construction struct {
	Sections []*ConstructionSection
}

type ConstructionSection struct {
	Min    voxel.Int3
	Shape  voxel.Int3
	Blocks []*BlockDefinition
}

// sectionIndex is one 23 byte entry of the section table: min xyz (3x int32),
// shape xyz (3x uint8), data offset and length (2x uint32), little endian.
type sectionIndex struct {
	Min    voxel.Int3
	Shape  voxel.Int3
	Offset uint32
	Size   uint32
}

const sectionIndexSize = 23

func decodeSectionTable(table []byte) []sectionIndex {
	count := len(table) / sectionIndexSize
	sections := make([]sectionIndex, count)
	for i := range sections {
		entry := table[i*sectionIndexSize : (i+1)*sectionIndexSize]
		sections[i] = sectionIndex{
			Min: voxel.Int3{
				X: int32(binary.LittleEndian.Uint32(entry[0:4])),
				Y: int32(binary.LittleEndian.Uint32(entry[4:8])),
				Z: int32(binary.LittleEndian.Uint32(entry[8:12])),
			},
			Shape:  voxel.Int3{X: int32(entry[12]), Y: int32(entry[13]), Z: int32(entry[14])},
			Offset: binary.LittleEndian.Uint32(entry[15:19]),
			Size:   binary.LittleEndian.Uint32(entry[19:23]),
		}
	}
	return sections
}

// LoadConstruction reads an Amulet construction file.
func LoadConstruction(filename string) (*Construction, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open construction")
	}
	defer file.Close()
	c, err := ReadConstruction(file)
	if err != nil {
		return nil, errors.Wrapf(err, "construction %s", filename)
	}
	util.LogIOInfo("loaded construction %s with %d sections", filename, len(c.Sections))
	return c, nil
}

func ReadConstruction(r io.ReadSeeker) (*Construction, error) {
	var magic [8]byte
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, errors.Wrap(err, "read magic")
	}
	if string(magic[:]) != constructionMagic {
		return nil, errors.New("invalid magic number")
	}
	if _, err := r.Seek(-int64(len(constructionMagic)), io.SeekEnd); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, errors.Wrap(err, "read trailing magic")
	}
	if string(magic[:]) != constructionMagic {
		return nil, errors.New("invalid trailing magic number")
	}
	if _, err := r.Seek(-int64(len(constructionMagic))-4, io.SeekEnd); err != nil {
		return nil, err
	}
	var metadataOffset int32
	if err := binary.Read(r, binary.BigEndian, &metadataOffset); err != nil {
		return nil, errors.Wrap(err, "read metadata offset")
	}

	var meta constructionMetadata
	if err := decodeAt(r, int64(metadataOffset), &meta); err != nil {
		return nil, errors.Wrap(err, "metadata")
	}

	table := decodeSectionTable(meta.SectionIndexTable)
	c := &Construction{Sections: make([]*ConstructionSection, 0, len(table))}
	for _, entry := range table {
		var info sectionBlockInfo
		if err := decodeAt(r, int64(entry.Offset), &info); err != nil {
			return nil, errors.Wrapf(err, "section at %v", entry.Min)
		}
		var blocks []*BlockDefinition
		var err error
		switch info.BlocksArrayType {
		case 7:
			var s byteSection
			if err = decodeAt(r, int64(entry.Offset), &s); err == nil {
				blocks, err = decodeBlocks(s.Blocks, meta.BlockPalette)
			}
		case 11:
			var s intSection
			if err = decodeAt(r, int64(entry.Offset), &s); err == nil {
				blocks, err = decodeBlocks(s.Blocks, meta.BlockPalette)
			}
		default:
			// sections without block data only carry entities
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "section at %v", entry.Min)
		}
		if want := int(entry.Shape.X * entry.Shape.Y * entry.Shape.Z); len(blocks) != want {
			return nil, errors.Errorf("section at %v has %d blocks, shape needs %d", entry.Min, len(blocks), want)
		}
		c.Sections = append(c.Sections, &ConstructionSection{Min: entry.Min, Shape: entry.Shape, Blocks: blocks})
	}
	return c, nil
}

func decodeAt(r io.ReadSeeker, offset int64, v any) error {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()
	_, err = nbt.NewDecoder(gz).Decode(v)
	return err
}

func decodeBlocks[T int32 | byte](blocks []T, palette []*BlockDefinition) ([]*BlockDefinition, error) {
	result := make([]*BlockDefinition, len(blocks))
	for i, b := range blocks {
		if int(b) < 0 || int(b) >= len(palette) {
			return nil, errors.Errorf("palette index %d out of range", b)
		}
		result[i] = palette[b]
	}
	return result, nil
}

// Bounds returns the box covered by all sections.
func (c *Construction) Bounds() voxel.Bounds {
	min := voxel.Splat(math.MaxInt32)
	max := voxel.Splat(math.MinInt32)
	for _, s := range c.Sections {
		min = min.Min(s.Min)
		max = max.Max(s.Min.Add(s.Shape))
	}
	return voxel.Bounds{Min: min, Max: max}
}

// Palette assigns materials to block names. Unknown names get the next free index.
type Palette struct {
	materials map[string]voxel.Material
	next      voxel.Material
}

func NewPalette(known map[string]voxel.Material) *Palette {
	p := &Palette{materials: make(map[string]voxel.Material), next: 1}
	for name, m := range known {
		p.materials[name] = m
		if m >= p.next {
			p.next = m + 1
		}
	}
	return p
}

func (p *Palette) Material(name string) voxel.Material {
	if m, ok := p.materials[name]; ok {
		return m
	}
	m := p.next
	p.materials[name] = m
	p.next++
	return m
}

func (p *Palette) Names() map[string]voxel.Material {
	return p.materials
}

// ConstructionGenerator places a construction with its minimum corner at Origin.
// Non-air blocks are fully solid.
type ConstructionGenerator struct {
	origin voxel.Int3
	bounds voxel.Bounds
	blocks map[voxel.Int3]voxel.Material
}

func NewConstructionGenerator(c *Construction, origin voxel.Int3, palette *Palette) *ConstructionGenerator {
	g := &ConstructionGenerator{origin: origin, blocks: make(map[voxel.Int3]voxel.Material)}
	if len(c.Sections) == 0 {
		return g
	}
	src := c.Bounds()
	offset := origin.Sub(src.Min)
	g.bounds = voxel.Bounds{Min: origin, Max: src.Max.Add(offset)}
	for _, s := range c.Sections {
		i := 0
		for x := int32(0); x < s.Shape.X; x++ {
			for y := int32(0); y < s.Shape.Y; y++ {
				for z := int32(0); z < s.Shape.Z; z++ {
					block := s.Blocks[i]
					i++
					if block.IsAir() {
						continue
					}
					pos := s.Min.Add(voxel.Int3{X: x, Y: y, Z: z}).Add(offset)
					g.blocks[pos] = palette.Material(block.Name)
				}
			}
		}
	}
	util.LogVoxelInfo("construction generator: %d solid blocks in %v", len(g.blocks), g.bounds)
	return g
}

func (g *ConstructionGenerator) Bounds() voxel.Bounds {
	return g.bounds
}

func (g *ConstructionGenerator) Sample(pos voxel.Int3, _ int) (float32, voxel.Material, error) {
	if m, ok := g.blocks[pos]; ok {
		return voxel.FullDensity, m, nil
	}
	return voxel.DefaultDensity, voxel.DefaultMaterial, nil
}

func (g *ConstructionGenerator) InitArea(voxel.Bounds, int) error {
	return nil
}

func (g *ConstructionGenerator) DensityRange(b voxel.Bounds, _ int) (float32, float32, bool) {
	if !g.bounds.IsValid() || !g.bounds.Intersects(b) {
		return voxel.DefaultDensity, voxel.DefaultDensity, true
	}
	return voxel.FullDensity, voxel.DefaultDensity, true
}
