package bvh

import (
	"errors"
	"fmt"

	"github.com/achilleasa/rtstack/types"
)

var (
	ErrUnsupportedChild = errors.New("bvh: walk does not support child type")
	ErrOutOfBounds      = errors.New("bvh: block address outside of buffer")
	ErrMalformedTree    = errors.New("bvh: internal node graph is not a tree")
)

// WalkStats summarizes a walk over a packed BVH.
type WalkStats struct {
	InternalNodes int
	Leaves        int
	Primitives    int
	MaxDepth      int
}

// A WalkFunc receives every primitive reachable from the root together with
// the dequantized bounds that the parent node stores for its leaf.
type WalkFunc func(primIndex uint32, kind NodeType, bounds [2]types.Vec3)

type walkEntry struct {
	block int64
	depth int
}

// Walk decodes a packed BVH starting from the internal node at block 0 and
// reports every primitive stored in quad, procedural and meshlet leaves.
// Instance leaves are not followed. Internal children must be stored after
// their parent and the walk visits at most one internal node per block.
func Walk(data []byte, fn WalkFunc) (*WalkStats, error) {
	stats := &WalkStats{}
	numBlocks := int64(len(data) / BlockSize)
	stack := []walkEntry{{block: 0}}

	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if entry.block < 0 || entry.block >= numBlocks {
			return nil, fmt.Errorf("%w: internal node at block %d", ErrOutOfBounds, entry.block)
		}

		var node InternalNode
		node.UnmarshalBytes(data[entry.block*BlockSize:])
		stats.InternalNodes++
		if int64(stats.InternalNodes) > numBlocks {
			return nil, fmt.Errorf("%w: visited more internal nodes than the %d blocks in the buffer", ErrMalformedTree, numBlocks)
		}
		if entry.depth > stats.MaxDepth {
			stats.MaxDepth = entry.depth
		}

		for i := 0; i < node.NumValidChildren(); i++ {
			childBlock := entry.block + node.ChildBlockOffset(i)
			kind := node.ChildType(i)
			blocks := int64(node.ChildData[i].BlockIncr())
			if childBlock < 0 || childBlock+blocks > numBlocks {
				return nil, fmt.Errorf("%w: %s child %d of node at block %d", ErrOutOfBounds, kind, i, entry.block)
			}

			if kind == NodeTypeInternal {
				if childBlock <= entry.block {
					return nil, fmt.Errorf("%w: child %d of node at block %d points back to block %d", ErrMalformedTree, i, entry.block, childBlock)
				}
				stack = append(stack, walkEntry{block: childBlock, depth: entry.depth + 1})
				continue
			}

			bounds := node.ChildBounds(i)
			leafData := data[childBlock*BlockSize : (childBlock+blocks)*BlockSize]
			count, err := walkLeaf(leafData, kind, bounds, fn)
			if err != nil {
				return nil, fmt.Errorf("leaf at block %d: %w", childBlock, err)
			}
			stats.Leaves++
			stats.Primitives += count
		}
	}

	return stats, nil
}

func walkLeaf(data []byte, kind NodeType, bounds [2]types.Vec3, fn WalkFunc) (int, error) {
	switch kind {
	case NodeTypeProcedural:
		count := 0
		for len(data) >= ProceduralLeafSize {
			var leaf ProceduralLeaf
			data = leaf.UnmarshalBytes(data)
			for i, prim := range leaf.Primitives() {
				fn(prim, kind, bounds)
				count++
				if leaf.IsLast(i) {
					return count, nil
				}
			}
		}
		return count, errors.New("bvh: procedural leaf has no last primitive")
	case NodeTypeQuad:
		var leaf QuadLeaf
		leaf.UnmarshalBytes(data)
		fn(leaf.PrimIndex0, kind, bounds)
		fn(leaf.PrimIndex1(), kind, bounds)
		return 2, nil
	case NodeTypeMeshlet:
		var leaf CompressedMeshlet
		leaf.UnmarshalBytes(data)
		for k := 0; k < leaf.NumTriangles(); k++ {
			fn(leaf.PrimIndexBase+uint32(k), kind, bounds)
		}
		return leaf.NumTriangles(), nil
	default:
		return 0, fmt.Errorf("%w %s", ErrUnsupportedChild, kind)
	}
}
