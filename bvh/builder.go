package bvh

import (
	"math"
	"time"

	"github.com/achilleasa/rtstack/log"
	"github.com/achilleasa/rtstack/types"
)

type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis

	// The BVH builder will not attempt to calculate split candidates
	// if the node bbox along an axis is less than this threshold.
	minSideLength float32 = 1e-3

	// If the split step (calculated as side length / (1024 * depth+1))
	// is less than this threshold the BVH builder will not evaluate
	// split candidates.
	minSplitStep float32 = 1e-5
)

var (
	// A split scoring strategy that uses the surface area heuristic (SAH).
	SurfaceAreaHeuristic = surfaceAreaHeuristic{}
)

// The BoundedVolume interface is implemented by all primitives that can be
// partitioned by the bvh builder.
type BoundedVolume interface {
	BBox() [2]types.Vec3
	Center() types.Vec3
}

// A split scoring strategy.
type ScoreStrategy interface {
	// Calculate a score for splitting workList at splitPoint along a particular Axis.
	ScoreSplit(workList []BoundedVolume, splitAxis Axis, splitPoint float32) (leftCount, rightCount int, score float32)

	// Calculate a score for all items in workList.
	ScorePartition(workList []BoundedVolume) (score float32)
}

// A node of the binary tree produced by Build. Leaves have no children and
// list the work list indices of the primitives they contain; the index of a
// primitive in the work list doubles as its primitive index.
type BuildNode struct {
	BBox        [2]types.Vec3
	Left, Right int
	Items       []int
}

// IsLeaf returns true if this node holds primitives.
func (n *BuildNode) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a binary BVH stored as a contiguous node list. The root is always
// at index 0.
type Tree struct {
	Nodes   []BuildNode
	Volumes []BoundedVolume

	MaxDepth int
	Leaves   int
}

type splitScore struct {
	axis       Axis
	splitPoint float32

	leftCount, rightCount int
	score                 float32
}

type stats struct {
	partitionedItems int
	totalItems       int
	nodes            int
	leafs            int
	maxDepth         int
}

type builder struct {
	logger log.Logger

	volumes []BoundedVolume
	nodes   []BuildNode

	// The minimum number of items that are required for creating a leaf.
	minLeafItems int

	// A channel for receiving score results.
	scoreChan chan splitScore

	// The split scoring strategy to use.
	scoreStrategy ScoreStrategy

	// Stats
	stats stats
}

// Construct a BVH from a set of bounded volumes.
//
// The minLeafItems param should be used to specified the minimum number of
// items that can form a leaf. The BVH builder will automatically generate leafs
// if the incoming work length is <= minLeafItems.
func Build(workList []BoundedVolume, minLeafItems int, scoreStrategy ScoreStrategy) *Tree {
	if minLeafItems < 1 {
		minLeafItems = 1
	}

	b := &builder{
		logger:        log.New("bvh builder"),
		volumes:       workList,
		nodes:         make([]BuildNode, 0, 2*len(workList)),
		minLeafItems:  minLeafItems,
		scoreChan:     make(chan splitScore),
		scoreStrategy: scoreStrategy,
		stats: stats{
			totalItems: len(workList),
		},
	}

	items := make([]int, len(workList))
	for i := range items {
		items[i] = i
	}

	start := time.Now()
	b.partition(items, 0)
	b.logger.Debugf(
		"BVH tree build time: %d ms, maxDepth: %d, nodes: %d, leafs: %d, items: %d/%d",
		time.Since(start).Nanoseconds()/1e6,
		b.stats.maxDepth, b.stats.nodes, b.stats.leafs,
		b.stats.partitionedItems, b.stats.totalItems,
	)

	return &Tree{
		Nodes:    b.nodes,
		Volumes:  workList,
		MaxDepth: b.stats.maxDepth,
		Leaves:   b.stats.leafs,
	}
}

// Partition worklist and return node index.
func (b *builder) partition(workList []int, depth int) int {
	if depth > b.stats.maxDepth {
		b.stats.maxDepth = depth
	}

	items := make([]BoundedVolume, len(workList))
	node := BuildNode{BBox: types.EmptyBBox(), Left: -1, Right: -1}
	for i, index := range workList {
		items[i] = b.volumes[index]
		node.BBox = types.UnionBBox(node.BBox, items[i].BBox())
	}

	// Do we have enough items for partitioning? If not create a leaf
	if len(workList) <= b.minLeafItems {
		return b.createLeaf(&node, workList)
	}

	// Calc current node score
	var bestScore float32 = b.scoreStrategy.ScorePartition(items)
	var bestSplit *splitScore = nil

	// Try partioning along each axis and select the split with best score
	pendingScores := 0

	// Run axis split tests in parallel
	side := node.BBox[1].Sub(node.BBox[0])
	for axis := XAxis; axis <= ZAxis; axis++ {
		// Skip axis if bbox dimension is too small
		if side[axis] < minSideLength {
			continue
		}

		// We want the split steps to become more granular the deeper we go
		splitStep := side[axis] / (1024.0 / float32(depth+1))
		if splitStep < minSplitStep {
			continue
		}

		for splitPoint := node.BBox[0][axis]; splitPoint < node.BBox[1][axis]; splitPoint += splitStep {
			pendingScores++
			go func(axis Axis, splitPoint float32) {
				lCount, rCount, score := b.scoreStrategy.ScoreSplit(items, axis, splitPoint)
				b.scoreChan <- splitScore{
					axis:       axis,
					splitPoint: splitPoint,

					leftCount:  lCount,
					rightCount: rCount,
					score:      score,
				}
			}(axis, splitPoint)
		}
	}

	// Process all scores and pick the best split. Ties are broken by axis
	// and split point so the tree shape does not depend on scheduling.
	for ; pendingScores > 0; pendingScores-- {
		candidate := <-b.scoreChan
		if candidate.score < bestScore || (bestSplit != nil && candidate.score == bestScore && candidate.before(bestSplit)) {
			bestScore = candidate.score
			bestSplit = &candidate
		}
	}

	// If we can't find a split that improves the current node score create a leaf
	if bestSplit == nil {
		return b.createLeaf(&node, workList)
	}

	// split work list into two sets
	leftWorkList := make([]int, 0, bestSplit.leftCount)
	rightWorkList := make([]int, 0, bestSplit.rightCount)
	for i, item := range items {
		if item.Center()[bestSplit.axis] < bestSplit.splitPoint {
			leftWorkList = append(leftWorkList, workList[i])
		} else {
			rightWorkList = append(rightWorkList, workList[i])
		}
	}

	// Add node to list
	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, node)
	b.stats.nodes++

	// Partition children and update node indices
	leftNodeIndex := b.partition(leftWorkList, depth+1)
	rightNodeIndex := b.partition(rightWorkList, depth+1)
	b.nodes[nodeIndex].Left = leftNodeIndex
	b.nodes[nodeIndex].Right = rightNodeIndex

	return nodeIndex
}

func (s *splitScore) before(other *splitScore) bool {
	if s.axis != other.axis {
		return s.axis < other.axis
	}
	return s.splitPoint < other.splitPoint
}

// Setup the given node item as a leaf node containing all items in the work list.
// Returns the index to the node in the bvh node array.
func (b *builder) createLeaf(node *BuildNode, workList []int) int {
	node.Items = workList

	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, *node)

	b.stats.leafs++
	b.stats.partitionedItems += len(workList)

	return nodeIndex
}

// A score implementation that uses surface area heuristic for calculating split scores.
type surfaceAreaHeuristic struct{}

// Score a BVH split based on the surface area heuristic. The SAH calculates
// the split score using the formula (lower score is better):
//
// left count * left BBOX area + rightCount * right BBOX area.
//
// SAH avoids splits that generate empty partitions by assigning the worst
// possible score (MaxFloat32) when it enounters such cases.
func (h surfaceAreaHeuristic) ScoreSplit(workList []BoundedVolume, axis Axis, splitPoint float32) (leftCount, rightCount int, score float32) {
	left := types.EmptyBBox()
	right := types.EmptyBBox()

	for _, item := range workList {
		if item.Center()[axis] < splitPoint {
			leftCount++
			left = types.UnionBBox(left, item.BBox())
		} else {
			rightCount++
			right = types.UnionBBox(right, item.BBox())
		}
	}

	// Make sure that we don't generate empty partitions
	if leftCount == 0 || rightCount == 0 {
		return leftCount, rightCount, math.MaxFloat32
	}

	score = float32(leftCount)*types.HalfArea(left) + float32(rightCount)*types.HalfArea(right)
	return leftCount, rightCount, score
}

// Calculate score for a partitioned workList using formula:
// count * BBOX area
//
// If the workList is empty, then this method returns the worst possible
// score (MaxFloat32).
func (h surfaceAreaHeuristic) ScorePartition(workList []BoundedVolume) (score float32) {
	if len(workList) == 0 {
		return math.MaxFloat32
	}

	bbox := types.EmptyBBox()
	for _, item := range workList {
		bbox = types.UnionBBox(bbox, item.BBox())
	}

	return float32(len(workList)) * types.HalfArea(bbox)
}

// Primitive is a BoundedVolume described by an explicit bounding box.
type Primitive struct {
	Bounds [2]types.Vec3
}

// NewPrimitive creates a primitive enclosing the supplied points.
func NewPrimitive(points ...types.Vec3) *Primitive {
	p := &Primitive{Bounds: types.EmptyBBox()}
	for _, pt := range points {
		p.Bounds = types.UnionBBox(p.Bounds, [2]types.Vec3{pt, pt})
	}
	return p
}

func (p *Primitive) BBox() [2]types.Vec3 {
	return p.Bounds
}

func (p *Primitive) Center() types.Vec3 {
	return p.Bounds[0].Add(p.Bounds[1]).Mul(0.5)
}
