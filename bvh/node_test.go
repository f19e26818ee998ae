package bvh

import (
	"testing"

	"github.com/achilleasa/rtstack/types"
)

func TestChildData(t *testing.T) {
	d := MakeChildData(3, 0xF)
	if d.BlockIncr() != 3 || d.StartPrim() != 0xF {
		t.Fatalf("expected blockIncr 3 and startPrim 15; got %d and %d", d.BlockIncr(), d.StartPrim())
	}
	if uint8(d)&0xC0 != 0 {
		t.Fatalf("expected top 2 bits of child data to be clear; got 0x%02x", uint8(d))
	}
}

func TestInternalNodeRoundTrip(t *testing.T) {
	bounds := [][2]types.Vec3{
		{{-1, -1, -1}, {0, 0, 0}},
		{{0.25, -3, 2}, {4, 1, 2.5}},
		{{10, 10, 10}, {10, 10, 10}},
	}
	data := []ChildData{MakeChildData(1, 0), MakeChildData(2, 0), MakeChildData(1, 0)}

	var node InternalNode
	node.ChildOffset = -5
	node.NodeType = NodeTypeProcedural
	node.NodeMask = 0xA5
	node.SetChildren(bounds, data)

	buf := make([]byte, InternalNodeSize+8)
	if rest := node.MarshalBytes(buf); len(rest) != 8 {
		t.Fatalf("expected marshal to consume %d bytes; %d left", InternalNodeSize, len(rest))
	}

	var decoded InternalNode
	decoded.UnmarshalBytes(buf)
	if decoded != node {
		t.Fatalf("expected decoded node to match\n%+v\ngot\n%+v", node, decoded)
	}

	if decoded.NumValidChildren() != 3 {
		t.Fatalf("expected 3 valid children; got %d", decoded.NumValidChildren())
	}
	for i := 3; i < NumChildren; i++ {
		if decoded.ChildValid(i) {
			t.Fatalf("expected child %d to be invalid", i)
		}
	}

	expOffsets := []int64{-5, -4, -2}
	for i, exp := range expOffsets {
		if got := decoded.ChildBlockOffset(i); got != exp {
			t.Fatalf("expected child %d block offset %d; got %d", i, exp, got)
		}
	}
	if addr := decoded.ChildAddress(2, 0x10000); addr != 0x10000-2*BlockSize {
		t.Fatalf("expected child 2 address 0x%x; got 0x%x", 0x10000-2*BlockSize, addr)
	}
}

func TestInternalNodeQuantizationIsConservative(t *testing.T) {
	type spec struct {
		bounds [][2]types.Vec3
	}
	specs := []spec{
		{[][2]types.Vec3{{{0, 0, 0}, {1, 1, 1}}}},
		{[][2]types.Vec3{{{-1e4, 3, 7}, {-9e3, 3.5, 7.1}}, {{1e3, -20, 0}, {1e4, 20, 1e-3}}}},
		{[][2]types.Vec3{
			{{0.1, 0.2, 0.3}, {0.11, 0.21, 0.31}},
			{{0.5, 0.5, 0.5}, {0.7, 0.9, 0.6}},
			{{-0.3, 0.01, 0.4}, {0.0, 0.02, 0.41}},
			{{0.99, 0.99, 0.99}, {1.01, 1.01, 1.01}},
			{{0.2, 0.2, 0.2}, {0.2, 0.2, 0.2}},
			{{0.3, -0.6, 0.1}, {0.33, -0.5, 0.2}},
		}},
		// Flat along one axis
		{[][2]types.Vec3{{{1, 5, 1}, {2, 5, 2}}, {{3, 5, 3}, {4, 5, 4}}}},
	}

	for index, s := range specs {
		var node InternalNode
		data := make([]ChildData, len(s.bounds))
		node.SetChildren(s.bounds, data)

		for i, src := range s.bounds {
			got := node.ChildBounds(i)
			for axis := 0; axis < 3; axis++ {
				if got[0][axis] > src[0][axis] || got[1][axis] < src[1][axis] {
					t.Fatalf("[spec %d] child %d axis %d: expected decoded bounds [%v, %v] to enclose [%v, %v]", index, i, axis, got[0][axis], got[1][axis], src[0][axis], src[1][axis])
				}
			}
		}
	}
}

func TestInternalNodeMixedChildTypes(t *testing.T) {
	node := InternalNode{NodeType: NodeTypeMixed}
	node.ChildData[0] = MakeChildData(1, uint8(NodeTypeInternal))
	node.ChildData[1] = MakeChildData(1, uint8(NodeTypeQuad))
	node.ChildData[2] = MakeChildData(2, uint8(NodeTypeInstance))

	expTypes := []NodeType{NodeTypeInternal, NodeTypeQuad, NodeTypeInstance}
	for i, exp := range expTypes {
		if got := node.ChildType(i); got != exp {
			t.Fatalf("expected child %d type %s; got %s", i, exp, got)
		}
	}

	node.NodeType = NodeTypeMeshlet
	if got := node.ChildType(1); got != NodeTypeMeshlet {
		t.Fatalf("expected non-mixed node to report its own type; got %s", got)
	}
}

func TestSetChildrenPanicsOnBadCount(t *testing.T) {
	defer func() {
		if err := recover(); err == nil {
			t.Fatal("expected SetChildren with 7 children to panic")
		}
	}()

	var node InternalNode
	node.SetChildren(make([][2]types.Vec3, 7), make([]ChildData, 7))
}

func TestNodeTypeBlocks(t *testing.T) {
	if NodeTypeInstance.Blocks() != 2 {
		t.Fatalf("expected instance leaves to span 2 blocks; got %d", NodeTypeInstance.Blocks())
	}
	for _, nt := range []NodeType{NodeTypeInternal, NodeTypeQuad, NodeTypeProcedural, NodeTypeMeshlet} {
		if nt.Blocks() != 1 {
			t.Fatalf("expected %s to span 1 block; got %d", nt, nt.Blocks())
		}
	}
	if NodeTypeInternal.IsLeaf() || !NodeTypeQuad.IsLeaf() || NodeTypeInvalid.IsLeaf() {
		t.Fatal("IsLeaf returned unexpected results")
	}
}
