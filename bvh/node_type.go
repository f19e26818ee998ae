package bvh

import "fmt"

// NodeType is the 3-bit tag stored by a parent node (and by hit records) to
// describe what a child pointer refers to. Leaves do not carry their own type.
type NodeType uint8

const (
	// A node whose children have different types; each child's type is then
	// stored in the startPrim bits of its child descriptor.
	NodeTypeMixed NodeType = 0x0

	NodeTypeInternal   NodeType = 0x0
	NodeTypeInstance   NodeType = 0x1
	NodeTypeProcedural NodeType = 0x3
	NodeTypeQuad       NodeType = 0x4
	NodeTypeMeshlet    NodeType = 0x5
	NodeTypeInvalid    NodeType = 0x7

	nodeTypeBits = 3
)

// Size of one addressable block of BVH memory.
const BlockSize = 64

// Implements Stringer.
func (t NodeType) String() string {
	switch t {
	case NodeTypeInternal:
		return "internal"
	case NodeTypeInstance:
		return "instance"
	case NodeTypeProcedural:
		return "procedural"
	case NodeTypeQuad:
		return "quad"
	case NodeTypeMeshlet:
		return "meshlet"
	case NodeTypeInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("nodeType(%d)", uint8(t))
	}
}

// IsLeaf reports whether the tag refers to leaf data.
func (t NodeType) IsLeaf() bool {
	switch t {
	case NodeTypeInstance, NodeTypeProcedural, NodeTypeQuad, NodeTypeMeshlet:
		return true
	}
	return false
}

// Blocks returns the number of 64 byte blocks occupied by a single record of
// this type. Every non-instance leaf shares one size class.
func (t NodeType) Blocks() int {
	switch t {
	case NodeTypeInstance:
		return InstanceLeafSize / BlockSize
	case NodeTypeInternal, NodeTypeProcedural, NodeTypeQuad, NodeTypeMeshlet:
		return 1
	default:
		panic(fmt.Sprintf("bvh: node type %s has no size", t))
	}
}
