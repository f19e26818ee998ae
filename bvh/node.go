package bvh

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/achilleasa/rtstack/bitfield"
	"github.com/achilleasa/rtstack/types"
)

const (
	// Maximum number of children referenced by an internal node.
	NumChildren = 6

	InternalNodeSize = 64

	// Quantized child bounds use 8 bits per plane.
	quantBits = 8
	quantMax  = 1<<quantBits - 1
)

// Internal nodes are 64 bytes:
//
//	[ 0..12) origin (lower corner of the quantization grid), 3 x float32
//	[12..16) childOffset, signed, in 64 byte blocks relative to the node
//	[16]     nodeType
//	[17]     reserved
//	[18..21) exponent per axis, int8
//	[21]     nodeMask
//	[22..28) childData per child: blockIncr:2 | startPrim:4
//	[28..64) quantized bounds: lower x, upper x, lower y, upper y, lower z, upper z; 6 bytes each
const (
	nodeOriginOffset      = 0
	nodeChildOffsetOffset = 12
	nodeTypeOffset        = 16
	nodeExpOffset         = 18
	nodeMaskOffset        = 21
	nodeChildDataOffset   = 22
	nodeBoundsOffset      = 28
)

const _ uint = InternalNodeSize - (nodeBoundsOffset + 2*3*NumChildren)
const _ uint = (nodeBoundsOffset + 2*3*NumChildren) - InternalNodeSize

var (
	childBlockIncr = bitfield.Field{Name: "blockIncr", Size: 1, Shift: 0, Width: 2}
	childStartPrim = bitfield.Field{Name: "startPrim", Size: 1, Shift: 2, Width: 4}
)

// ChildData describes the size and start primitive (or, for mixed nodes, the
// type) of one child.
type ChildData uint8

// MakeChildData packs a child descriptor. blockIncr counts the 64 byte blocks
// the child occupies (1-3).
func MakeChildData(blockIncr, startPrim uint8) ChildData {
	var d uint8
	d = bitfield.Insert(d, childBlockIncr.Shift, childBlockIncr.Width, blockIncr)
	d = bitfield.Insert(d, childStartPrim.Shift, childStartPrim.Width, startPrim)
	return ChildData(d)
}

func (d ChildData) BlockIncr() uint8 {
	return bitfield.Extract(uint8(d), childBlockIncr.Shift, childBlockIncr.Width)
}

func (d ChildData) StartPrim() uint8 {
	return bitfield.Extract(uint8(d), childStartPrim.Shift, childStartPrim.Width)
}

// An InternalNode references up to 6 children stored contiguously starting
// at ChildOffset. Child bounds are quantized against a shared grid defined by
// Origin and a power of two step per axis.
type InternalNode struct {
	Origin      types.Vec3
	ChildOffset int32
	NodeType    NodeType
	Exp         [3]int8
	NodeMask    uint8
	ChildData   [NumChildren]ChildData

	// Quantized child planes indexed by [axis][child].
	Lower [3][NumChildren]uint8
	Upper [3][NumChildren]uint8
}

// Returns the encoded record size.
func (n *InternalNode) SizeBytes() int {
	return InternalNodeSize
}

// MarshalBytes encodes the node into dst and returns the remainder of dst.
func (n *InternalNode) MarshalBytes(dst []byte) []byte {
	_ = dst[InternalNodeSize-1]
	le := binary.LittleEndian

	for i := 0; i < 3; i++ {
		le.PutUint32(dst[nodeOriginOffset+4*i:], math.Float32bits(n.Origin[i]))
		dst[nodeExpOffset+i] = uint8(n.Exp[i])
	}
	le.PutUint32(dst[nodeChildOffsetOffset:], uint32(n.ChildOffset))
	dst[nodeTypeOffset] = uint8(n.NodeType)
	dst[nodeTypeOffset+1] = 0
	dst[nodeMaskOffset] = n.NodeMask
	for i := 0; i < NumChildren; i++ {
		dst[nodeChildDataOffset+i] = uint8(n.ChildData[i])
	}
	for axis := 0; axis < 3; axis++ {
		lo := nodeBoundsOffset + 2*axis*NumChildren
		hi := lo + NumChildren
		copy(dst[lo:hi], n.Lower[axis][:])
		copy(dst[hi:hi+NumChildren], n.Upper[axis][:])
	}

	return dst[InternalNodeSize:]
}

// UnmarshalBytes decodes the node from src and returns the remainder of src.
func (n *InternalNode) UnmarshalBytes(src []byte) []byte {
	_ = src[InternalNodeSize-1]
	le := binary.LittleEndian

	for i := 0; i < 3; i++ {
		n.Origin[i] = math.Float32frombits(le.Uint32(src[nodeOriginOffset+4*i:]))
		n.Exp[i] = int8(src[nodeExpOffset+i])
	}
	n.ChildOffset = int32(le.Uint32(src[nodeChildOffsetOffset:]))
	n.NodeType = NodeType(src[nodeTypeOffset] & (1<<nodeTypeBits - 1))
	n.NodeMask = src[nodeMaskOffset]
	for i := 0; i < NumChildren; i++ {
		n.ChildData[i] = ChildData(src[nodeChildDataOffset+i])
	}
	for axis := 0; axis < 3; axis++ {
		lo := nodeBoundsOffset + 2*axis*NumChildren
		hi := lo + NumChildren
		copy(n.Lower[axis][:], src[lo:hi])
		copy(n.Upper[axis][:], src[hi:hi+NumChildren])
	}

	return src[InternalNodeSize:]
}

// ChildValid reports whether child slot i is in use. Unused slots are
// encoded with lower x > upper x.
func (n *InternalNode) ChildValid(i int) bool {
	return n.Lower[0][i] <= n.Upper[0][i]
}

// NumValidChildren counts the used child slots; used slots come first.
func (n *InternalNode) NumValidChildren() int {
	count := 0
	for i := 0; i < NumChildren && n.ChildValid(i); i++ {
		count++
	}
	return count
}

// ChildType resolves the type of child i. For mixed nodes the type is taken
// from the child descriptor, otherwise all children share the node type.
func (n *InternalNode) ChildType(i int) NodeType {
	if n.NodeType == NodeTypeMixed {
		return NodeType(n.ChildData[i].StartPrim() & (1<<nodeTypeBits - 1))
	}
	return n.NodeType
}

// ChildBlockOffset returns the offset of child i, in 64 byte blocks,
// relative to the node.
func (n *InternalNode) ChildBlockOffset(i int) int64 {
	offset := int64(n.ChildOffset)
	for j := 0; j < i; j++ {
		offset += int64(n.ChildData[j].BlockIncr())
	}
	return offset
}

// ChildAddress returns the byte address of child i given the node address.
func (n *InternalNode) ChildAddress(i int, nodeAddr uint64) uint64 {
	return nodeAddr + uint64(n.ChildBlockOffset(i)*BlockSize)
}

// ChildBounds dequantizes the bounding box of child i.
func (n *InternalNode) ChildBounds(i int) [2]types.Vec3 {
	var bbox [2]types.Vec3
	for axis := 0; axis < 3; axis++ {
		bbox[0][axis] = n.dequantize(axis, n.Lower[axis][i])
		bbox[1][axis] = n.dequantize(axis, n.Upper[axis][i])
	}
	return bbox
}

func (n *InternalNode) dequantize(axis int, q uint8) float32 {
	return n.Origin[axis] + float32(math.Ldexp(float64(q), int(n.Exp[axis])-quantBits))
}

// SetChildren quantizes the supplied child bounds and descriptors into the
// node. Quantization is conservative: the decoded box of every child
// encloses its source box. Unused slots are marked invalid.
func (n *InternalNode) SetChildren(bounds [][2]types.Vec3, data []ChildData) {
	if len(bounds) == 0 || len(bounds) > NumChildren || len(bounds) != len(data) {
		panic(fmt.Sprintf("bvh: cannot set %d children with %d descriptors on an internal node", len(bounds), len(data)))
	}

	parent := types.EmptyBBox()
	for _, b := range bounds {
		parent = types.UnionBBox(parent, b)
	}

	n.Origin = parent[0]
	for axis := 0; axis < 3; axis++ {
		n.Exp[axis] = n.gridExponent(axis, parent[1][axis])
	}

	for i := 0; i < NumChildren; i++ {
		if i >= len(bounds) {
			n.ChildData[i] = 0
			for axis := 0; axis < 3; axis++ {
				n.Lower[axis][i] = 0x80
				n.Upper[axis][i] = 0x00
			}
			continue
		}

		n.ChildData[i] = data[i]
		for axis := 0; axis < 3; axis++ {
			n.Lower[axis][i] = n.quantizeDown(axis, bounds[i][0][axis])
			n.Upper[axis][i] = n.quantizeUp(axis, bounds[i][1][axis])
		}
	}
}

// Pick the smallest exponent whose grid still reaches the upper bound.
func (n *InternalNode) gridExponent(axis int, upper float32) int8 {
	extent := float64(upper) - float64(n.Origin[axis])
	exp := math.MinInt8
	if extent > 0 {
		exp = int(math.Ceil(math.Log2(extent/quantMax))) + quantBits
		if exp < math.MinInt8 {
			exp = math.MinInt8
		}
	}

	// Float rounding of origin + 255*step may fall short of the bound.
	for ; exp < math.MaxInt8; exp++ {
		n.Exp[axis] = int8(exp)
		if n.dequantize(axis, quantMax) >= upper {
			break
		}
	}
	return int8(exp)
}

func (n *InternalNode) quantizeDown(axis int, v float32) uint8 {
	step := math.Ldexp(1, int(n.Exp[axis])-quantBits)
	q := int(math.Floor((float64(v) - float64(n.Origin[axis])) / step))
	q = clampQuant(q)
	for q > 0 && n.dequantize(axis, uint8(q)) > v {
		q--
	}
	return uint8(q)
}

func (n *InternalNode) quantizeUp(axis int, v float32) uint8 {
	step := math.Ldexp(1, int(n.Exp[axis])-quantBits)
	q := int(math.Ceil((float64(v) - float64(n.Origin[axis])) / step))
	q = clampQuant(q)
	for q < quantMax && n.dequantize(axis, uint8(q)) < v {
		q++
	}
	return uint8(q)
}

func clampQuant(q int) int {
	switch {
	case q < 0:
		return 0
	case q > quantMax:
		return quantMax
	}
	return q
}
