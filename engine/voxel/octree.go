package voxel

import (
	"sync/atomic"
	"unsafe"
)

// ChannelState says where the values of one channel of a node come from.
type ChannelState uint8

const (
	// Empty nodes store nothing and defer to the generator.
	Empty ChannelState = iota
	// Single nodes hold one value for every voxel.
	Single
	// Cached leaves hold a generator snapshot that may be evicted.
	Cached
	// Dirty leaves hold edited values that are never evicted.
	Dirty
)

func (s ChannelState) String() string {
	switch s {
	case Single:
		return "single"
	case Cached:
		return "cached"
	case Dirty:
		return "dirty"
	}
	return "empty"
}

type channel[T float32 | Material] struct {
	state ChannelState
	value T
	// edited marks a Single that came from edited data.
	edited bool
	data   []T
}

func (c *channel[T]) hasArray() bool {
	return c.state == Cached || c.state == Dirty
}

// isEdited reports whether the channel holds user data that must survive eviction.
func (c *channel[T]) isEdited() bool {
	return c.state == Dirty || (c.state == Single && c.edited)
}

// uniformArray reports whether every stored value is equal.
func (c *channel[T]) uniformArray() (T, bool) {
	var zero T
	if len(c.data) == 0 {
		return zero, false
	}
	first := c.data[0]
	for _, v := range c.data[1:] {
		if v != first {
			return zero, false
		}
	}
	return first, true
}

// sameUniform reports whether two array-less channels describe the same content.
func (c *channel[T]) sameUniform(o *channel[T]) bool {
	if c.hasArray() || o.hasArray() || c.state != o.state {
		return false
	}
	if c.state == Single {
		return c.value == o.value && c.edited == o.edited
	}
	return true
}

func (c *channel[T]) clear() {
	var zero T
	c.state = Empty
	c.value = zero
	c.edited = false
	c.data = nil
}

func (c *channel[T]) bytes() int {
	var zero T
	return len(c.data) * int(unsafe.Sizeof(zero))
}

type nodeIndex int32

const noNode nodeIndex = -1

// octreeNode covers leafSize<<depth voxels per axis starting at min.
// Children are eight consecutive arena slots, ordered x, then y, then z bit.
type octreeNode struct {
	min      Int3
	depth    uint8
	children nodeIndex

	density  channel[float32]
	material channel[Material]

	hits   atomic.Uint32
	recent atomic.Uint64
}

func (n *octreeNode) isLeaf() bool {
	return n.depth == 0
}

func (n *octreeNode) hasChildren() bool {
	return n.children != noNode
}

func (n *octreeNode) size(leafSize int32) int32 {
	return leafSize << n.depth
}

func (n *octreeNode) bounds(leafSize int32) Bounds {
	return BoundsFromSize(n.min, n.size(leafSize))
}

func (n *octreeNode) isCached() bool {
	return n.density.state == Cached || n.material.state == Cached
}

func (n *octreeNode) isEdited() bool {
	return n.density.isEdited() || n.material.isEdited()
}

func (n *octreeNode) touch(tick uint64) {
	n.hits.Add(1)
	n.recent.Store(tick)
}

// childSlot returns the octant of pos inside a node of the given size.
func childSlot(n *octreeNode, pos Int3, half int32) int {
	slot := 0
	if pos.X >= n.min.X+half {
		slot |= 1
	}
	if pos.Y >= n.min.Y+half {
		slot |= 2
	}
	if pos.Z >= n.min.Z+half {
		slot |= 4
	}
	return slot
}

// arena owns every node of one volume. Nodes refer to each other by index only.
type arena struct {
	nodes    []*octreeNode
	free     []nodeIndex
	leafSize int32
}

func newArena(leafSize int32, rootMin Int3, depth uint8) *arena {
	a := &arena{leafSize: leafSize}
	a.nodes = append(a.nodes, &octreeNode{min: rootMin, depth: depth, children: noNode})
	return a
}

const rootNode nodeIndex = 0

func (a *arena) get(i nodeIndex) *octreeNode {
	return a.nodes[i]
}

// subdivide gives a childless parent eight children that inherit its uniform state.
func (a *arena) subdivide(i nodeIndex) nodeIndex {
	parent := a.nodes[i]
	if parent.hasChildren() || parent.isLeaf() {
		return parent.children
	}
	var first nodeIndex
	if n := len(a.free); n > 0 {
		first = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		first = nodeIndex(len(a.nodes))
		for k := 0; k < 8; k++ {
			a.nodes = append(a.nodes, nil)
		}
	}
	half := parent.size(a.leafSize) / 2
	for slot := 0; slot < 8; slot++ {
		offset := Int3{int32(slot & 1), int32(slot >> 1 & 1), int32(slot >> 2 & 1)}.Mul(half)
		child := &octreeNode{
			min:      parent.min.Add(offset),
			depth:    parent.depth - 1,
			children: noNode,
			density:  channel[float32]{state: parent.density.state, value: parent.density.value, edited: parent.density.edited},
			material: channel[Material]{state: parent.material.state, value: parent.material.value, edited: parent.material.edited},
		}
		child.recent.Store(parent.recent.Load())
		a.nodes[first+nodeIndex(slot)] = child
	}
	parent.children = first
	parent.density.clear()
	parent.material.clear()
	parent.hits.Store(0)
	return first
}

// collapse removes the children of i. The caller has set the parent's state.
func (a *arena) collapse(i nodeIndex) {
	parent := a.nodes[i]
	first := parent.children
	for slot := 0; slot < 8; slot++ {
		a.nodes[first+nodeIndex(slot)] = nil
	}
	a.free = append(a.free, first)
	parent.children = noNode
}

// findChildless descends to the deepest existing node covering pos.
func (a *arena) findChildless(pos Int3) (nodeIndex, *octreeNode) {
	i := rootNode
	n := a.nodes[i]
	for n.hasChildren() {
		i = n.children + nodeIndex(childSlot(n, pos, n.size(a.leafSize)/2))
		n = a.nodes[i]
	}
	return i, n
}

// findLeaf descends to the depth-0 leaf covering pos, subdividing on the way.
func (a *arena) findLeaf(pos Int3) (nodeIndex, *octreeNode) {
	i := rootNode
	n := a.nodes[i]
	for !n.isLeaf() {
		if !n.hasChildren() {
			a.subdivide(i)
		}
		i = n.children + nodeIndex(childSlot(n, pos, n.size(a.leafSize)/2))
		n = a.nodes[i]
	}
	return i, n
}

// visitChildless calls fn for every childless node intersecting b.
func (a *arena) visitChildless(b Bounds, fn func(i nodeIndex, n *octreeNode) bool) bool {
	return a.visit(rootNode, b, fn)
}

func (a *arena) visit(i nodeIndex, b Bounds, fn func(i nodeIndex, n *octreeNode) bool) bool {
	n := a.nodes[i]
	if !n.bounds(a.leafSize).Intersects(b) {
		return true
	}
	if !n.hasChildren() {
		return fn(i, n)
	}
	for slot := 0; slot < 8; slot++ {
		if !a.visit(n.children+nodeIndex(slot), b, fn) {
			return false
		}
	}
	return true
}

func (a *arena) liveNodes() int {
	count := 0
	for _, n := range a.nodes {
		if n != nil {
			count++
		}
	}
	return count
}

// findAtDepth returns the node of the given depth covering pos, subdividing
// on the way. Existing children below it are dropped.
func (a *arena) findAtDepth(pos Int3, depth uint8) *octreeNode {
	i := rootNode
	n := a.nodes[i]
	for n.depth > depth {
		if !n.hasChildren() {
			a.subdivide(i)
		}
		i = n.children + nodeIndex(childSlot(n, pos, n.size(a.leafSize)/2))
		n = a.nodes[i]
	}
	if n.hasChildren() {
		a.dropSubtree(i)
	}
	return n
}

func (a *arena) dropSubtree(i nodeIndex) {
	n := a.nodes[i]
	if !n.hasChildren() {
		return
	}
	for slot := 0; slot < 8; slot++ {
		a.dropSubtree(n.children + nodeIndex(slot))
	}
	a.collapse(i)
}
