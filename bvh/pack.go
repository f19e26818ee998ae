package bvh

import (
	"errors"
	"fmt"
	"sort"

	"github.com/achilleasa/rtstack/log"
	"github.com/achilleasa/rtstack/types"
)

// Procedural leaves are addressed through a 2-bit blockIncr, so a single
// leaf can span at most 3 blocks.
const (
	maxLeafBlocks = 3
	MaxLeafPrims  = maxLeafBlocks * MaxProceduralPrims
)

var (
	ErrEmptyTree = errors.New("bvh: cannot pack an empty tree")
)

// Packed is a BVH encoded as contiguous 64 byte blocks. The root internal
// node occupies block 0.
type Packed struct {
	Data []byte

	InternalNodes int
	LeafBlocks    int
	Leaves        int
}

// Blocks returns the number of 64 byte blocks in the packed buffer.
func (p *Packed) Blocks() int {
	return len(p.Data) / BlockSize
}

// Intermediate n-ary node used while collapsing the binary tree.
type packNode struct {
	bbox     [2]types.Vec3
	children []*packNode
	prims    []uint32
}

func (n *packNode) isLeaf() bool {
	return n.children == nil
}

func (n *packNode) nodeType() NodeType {
	if n.isLeaf() {
		return NodeTypeProcedural
	}
	return NodeTypeInternal
}

func (n *packNode) blocks() int {
	if n.isLeaf() {
		return (len(n.prims) + MaxProceduralPrims - 1) / MaxProceduralPrims
	}
	return 1
}

type packer struct {
	logger log.Logger
	tree   *Tree
	desc   PrimLeafDesc
	out    *Packed
	next   int
}

// Pack collapses a binary tree built by Build into 6-wide quantized internal
// nodes. Build leaves are stored as procedural leaves using desc as their
// descriptor; leaves holding more than MaxLeafPrims primitives are split.
func Pack(tree *Tree, desc PrimLeafDesc) (*Packed, error) {
	if tree == nil || len(tree.Nodes) == 0 || len(tree.Volumes) == 0 {
		return nil, ErrEmptyTree
	}

	p := &packer{
		logger: log.New("bvh packer"),
		tree:   tree,
		desc:   desc,
		out:    &Packed{},
	}
	p.desc.GeomType = GeomTypeProcedural

	root := p.convert(0)
	if root.isLeaf() {
		root = &packNode{bbox: root.bbox, children: []*packNode{root}}
	}

	p.reserve(1)
	if err := p.emit(root, 0); err != nil {
		return nil, err
	}

	p.logger.Debugf(
		"packed BVH: %d blocks, internal nodes: %d, leaves: %d (%d blocks)",
		p.out.Blocks(), p.out.InternalNodes, p.out.Leaves, p.out.LeafBlocks,
	)
	return p.out, nil
}

// Convert the binary build node at index into a pack node.
func (p *packer) convert(index int) *packNode {
	src := &p.tree.Nodes[index]
	if !src.IsLeaf() {
		return &packNode{
			bbox:     src.BBox,
			children: []*packNode{p.convert(src.Left), p.convert(src.Right)},
		}
	}

	prims := make([]uint32, len(src.Items))
	for i, item := range src.Items {
		prims[i] = uint32(item)
	}
	return p.leaf(prims)
}

func (p *packer) leaf(prims []uint32) *packNode {
	bbox := types.EmptyBBox()
	for _, prim := range prims {
		bbox = types.UnionBBox(bbox, p.tree.Volumes[prim].BBox())
	}

	if len(prims) <= MaxLeafPrims {
		return &packNode{bbox: bbox, prims: prims}
	}

	half := len(prims) / 2
	return &packNode{
		bbox:     bbox,
		children: []*packNode{p.leaf(prims[:half]), p.leaf(prims[half:])},
	}
}

// Pull grandchildren up until the node has NumChildren children or only
// leaves are left. The internal child with the largest area is opened first.
func collapse(n *packNode) []*packNode {
	children := append([]*packNode(nil), n.children...)
	for {
		best := -1
		for i, child := range children {
			if child.isLeaf() || len(children)-1+len(child.children) > NumChildren {
				continue
			}
			if best < 0 || types.HalfArea(child.bbox) > types.HalfArea(children[best].bbox) {
				best = i
			}
		}
		if best < 0 {
			break
		}

		opened := children[best]
		children = append(children[:best], append(append([]*packNode(nil), opened.children...), children[best+1:]...)...)
	}

	// Keep children of the same kind together; leaves first.
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].isLeaf() && !children[j].isLeaf()
	})
	return children
}

func (p *packer) reserve(blocks int) int {
	start := p.next
	p.next += blocks
	need := p.next * BlockSize
	if need > cap(p.out.Data) {
		grown := make([]byte, need, 2*need)
		copy(grown, p.out.Data)
		p.out.Data = grown
	}
	p.out.Data = p.out.Data[:need]
	return start
}

// Encode n as an internal node at block nodeBlock.
func (p *packer) emit(n *packNode, nodeBlock int) error {
	children := collapse(n)

	childBlocks := 0
	nodeType := children[0].nodeType()
	bounds := make([][2]types.Vec3, len(children))
	for i, child := range children {
		childBlocks += child.blocks()
		bounds[i] = child.bbox
		if child.nodeType() != nodeType {
			nodeType = NodeTypeMixed
		}
	}

	data := make([]ChildData, len(children))
	for i, child := range children {
		var startPrim uint8
		if nodeType == NodeTypeMixed {
			startPrim = uint8(child.nodeType())
		}
		data[i] = MakeChildData(uint8(child.blocks()), startPrim)
	}

	firstChild := p.reserve(childBlocks)
	node := InternalNode{
		ChildOffset: int32(firstChild - nodeBlock),
		NodeType:    nodeType,
		NodeMask:    0xFF,
	}
	node.SetChildren(bounds, data)
	node.MarshalBytes(p.out.Data[nodeBlock*BlockSize:])
	p.out.InternalNodes++

	block := firstChild
	for _, child := range children {
		if child.isLeaf() {
			p.emitLeaf(child, block)
		} else if err := p.emit(child, block); err != nil {
			return err
		}
		block += child.blocks()
	}

	if block != firstChild+childBlocks {
		return fmt.Errorf("bvh: node at block %d wrote %d child blocks; expected %d", nodeBlock, block-firstChild, childBlocks)
	}
	return nil
}

// Encode a procedural leaf, 13 primitives per block. The last flag is only
// raised on the final primitive of the final block.
func (p *packer) emitLeaf(n *packNode, firstBlock int) {
	for b := 0; b < n.blocks(); b++ {
		chunk := n.prims[b*MaxProceduralPrims:]
		if len(chunk) > MaxProceduralPrims {
			chunk = chunk[:MaxProceduralPrims]
		}

		leaf := ProceduralLeaf{
			Desc:          p.desc,
			NumPrimitives: uint8(len(chunk)),
		}
		copy(leaf.PrimIndex[:], chunk)
		if b == n.blocks()-1 {
			leaf.Last = 1 << uint(len(chunk)-1)
		}
		leaf.MarshalBytes(p.out.Data[(firstBlock+b)*BlockSize:])
		p.out.LeafBlocks++
	}
	p.out.Leaves++
}
