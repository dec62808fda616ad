package voxel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

type Int3 struct {
	X, Y, Z int32
}

func NewInt3(x, y, z int32) Int3 {
	return Int3{X: x, Y: y, Z: z}
}

// Splat returns an Int3 with all components set to v.
func Splat(v int32) Int3 {
	return Int3{v, v, v}
}

func (i Int3) Add(other Int3) Int3 {
	return Int3{i.X + other.X, i.Y + other.Y, i.Z + other.Z}
}

func (i Int3) Sub(other Int3) Int3 {
	return Int3{i.X - other.X, i.Y - other.Y, i.Z - other.Z}
}

func (i Int3) Mul(factor int32) Int3 {
	i.X *= factor
	i.Y *= factor
	i.Z *= factor
	return i
}

// FloorDiv divides every component rounding towards negative infinity.
func (i Int3) FloorDiv(divisor int32) Int3 {
	return Int3{floorDiv(i.X, divisor), floorDiv(i.Y, divisor), floorDiv(i.Z, divisor)}
}

func (i Int3) Min(other Int3) Int3 {
	return Int3{min(i.X, other.X), min(i.Y, other.Y), min(i.Z, other.Z)}
}

func (i Int3) Max(other Int3) Int3 {
	return Int3{max(i.X, other.X), max(i.Y, other.Y), max(i.Z, other.Z)}
}

// Axis returns the component for axis 0 (X), 1 (Y) or 2 (Z).
func (i Int3) Axis(axis int) int32 {
	switch axis {
	case 0:
		return i.X
	case 1:
		return i.Y
	}
	return i.Z
}

func (i Int3) WithAxis(axis int, value int32) Int3 {
	switch axis {
	case 0:
		i.X = value
	case 1:
		i.Y = value
	default:
		i.Z = value
	}
	return i
}

func (i Int3) AllLess(other Int3) bool {
	return i.X < other.X && i.Y < other.Y && i.Z < other.Z
}

func (i Int3) ToVec3() mgl32.Vec3 {
	return mgl32.Vec3{float32(i.X), float32(i.Y), float32(i.Z)}
}

func (i Int3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", i.X, i.Y, i.Z)
}

func ManhattanDistance3(a, b Int3) int32 {
	return Abs(a.X-b.X) + Abs(a.Y-b.Y) + Abs(a.Z-b.Z)
}

func Abs(i int32) int32 {
	if i < 0 {
		return -i
	}
	return i
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Bounds is the half-open box [Min, Max).
type Bounds struct {
	Min, Max Int3
}

func NewBounds(min, max Int3) Bounds {
	return Bounds{Min: min, Max: max}
}

// BoundsFromSize returns the box starting at min with the given extent on every axis.
func BoundsFromSize(min Int3, size int32) Bounds {
	return Bounds{Min: min, Max: min.Add(Splat(size))}
}

func (b Bounds) IsValid() bool {
	return b.Min.AllLess(b.Max)
}

func (b Bounds) Size() Int3 {
	return b.Max.Sub(b.Min)
}

func (b Bounds) Volume() int64 {
	s := b.Size()
	return int64(s.X) * int64(s.Y) * int64(s.Z)
}

func (b Bounds) Contains(p Int3) bool {
	return p.X >= b.Min.X && p.Y >= b.Min.Y && p.Z >= b.Min.Z &&
		p.X < b.Max.X && p.Y < b.Max.Y && p.Z < b.Max.Z
}

func (b Bounds) ContainsBounds(other Bounds) bool {
	return other.Min.X >= b.Min.X && other.Min.Y >= b.Min.Y && other.Min.Z >= b.Min.Z &&
		other.Max.X <= b.Max.X && other.Max.Y <= b.Max.Y && other.Max.Z <= b.Max.Z
}

func (b Bounds) Intersects(other Bounds) bool {
	return b.Min.X < other.Max.X && other.Min.X < b.Max.X &&
		b.Min.Y < other.Max.Y && other.Min.Y < b.Max.Y &&
		b.Min.Z < other.Max.Z && other.Min.Z < b.Max.Z
}

// Intersection is only meaningful when Intersects is true.
func (b Bounds) Intersection(other Bounds) Bounds {
	return Bounds{Min: b.Min.Max(other.Min), Max: b.Max.Min(other.Max)}
}

func (b Bounds) Union(other Bounds) Bounds {
	return Bounds{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// Extend grows the box by n on every side.
func (b Bounds) Extend(n int32) Bounds {
	return Bounds{Min: b.Min.Sub(Splat(n)), Max: b.Max.Add(Splat(n))}
}

// Align widens the box outwards to multiples of step.
func (b Bounds) Align(step int32) Bounds {
	min := b.Min.FloorDiv(step).Mul(step)
	max := b.Max.Add(Splat(step - 1)).FloorDiv(step).Mul(step)
	return Bounds{Min: min, Max: max}
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%v..%v)", b.Min, b.Max)
}
