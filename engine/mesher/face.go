package mesher

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/memmaker/voxelstore/engine/voxel"
)

// FaceType is one of the six axis directions. Even values point along the
// positive axis, odd values along the negative one.
type FaceType int32

const (
	XP FaceType = iota
	XN
	YP
	YN
	ZP
	ZN
)

var AllFaces = [6]FaceType{XP, XN, YP, YN, ZP, ZN}

func FaceFor(axis int, positive bool) FaceType {
	f := FaceType(axis * 2)
	if !positive {
		f++
	}
	return f
}

func (f FaceType) Axis() int {
	return int(f) / 2
}

func (f FaceType) Positive() bool {
	return f%2 == 0
}

func (f FaceType) Opposite() FaceType {
	return f ^ 1
}

// Offset is the unit step towards the neighbour on this face.
func (f FaceType) Offset() voxel.Int3 {
	sign := int32(1)
	if !f.Positive() {
		sign = -1
	}
	return voxel.Int3{}.WithAxis(f.Axis(), sign)
}

func (f FaceType) Normal() mgl32.Vec3 {
	return f.Offset().ToVec3()
}

func (f FaceType) String() string {
	return [...]string{"+x", "-x", "+y", "-y", "+z", "-z"}[f]
}

// TransitionMask marks faces whose neighbour chunk is one LOD finer.
// Bit i belongs to FaceType i.
type TransitionMask uint8

func (m TransitionMask) Has(f FaceType) bool {
	return m&(1<<uint(f)) != 0
}

func (m TransitionMask) With(f FaceType) TransitionMask {
	return m | 1<<uint(f)
}
