package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/achilleasa/rtstack/bvh"
	"github.com/achilleasa/rtstack/types"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Build, pack and walk a BVH over a random set of boxes.
func BVHDemo(ctx *cli.Context) error {
	setupLogging(ctx)

	numPrims := ctx.Int("prims")
	if numPrims <= 0 {
		return errors.New("the number of primitives must be positive")
	}

	rng := rand.New(rand.NewSource(ctx.Int64("seed")))
	itemList := make([]bvh.BoundedVolume, numPrims)
	for i := range itemList {
		lo := types.Vec3{rng.Float32() * 100, rng.Float32() * 100, rng.Float32() * 100}
		ext := types.Vec3{rng.Float32() * 2, rng.Float32() * 2, rng.Float32() * 2}
		itemList[i] = bvh.NewPrimitive(lo, lo.Add(ext))
	}

	start := time.Now()
	tree := bvh.Build(itemList, ctx.Int("leaf-items"), bvh.SurfaceAreaHeuristic)
	buildTime := time.Since(start)

	start = time.Now()
	packed, err := bvh.Pack(tree, bvh.PrimLeafDesc{GeomMask: 0xFF, GeomType: bvh.GeomTypeProcedural})
	if err != nil {
		return err
	}
	packTime := time.Since(start)

	visited := make([]int, numPrims)
	stats, err := bvh.Walk(packed.Data, func(prim uint32, _ bvh.NodeType, _ [2]types.Vec3) {
		visited[prim]++
	})
	if err != nil {
		return err
	}
	for prim, count := range visited {
		if count != 1 {
			return fmt.Errorf("primitive %d reached %d times", prim, count)
		}
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Stage", "Nodes", "Leaves", "Depth", "Time"})
	table.Append([]string{"build (binary)", fmt.Sprintf("%d", len(tree.Nodes)), fmt.Sprintf("%d", tree.Leaves), fmt.Sprintf("%d", tree.MaxDepth), buildTime.String()})
	table.Append([]string{"pack (6-wide)", fmt.Sprintf("%d", packed.InternalNodes), fmt.Sprintf("%d", packed.Leaves), fmt.Sprintf("%d", stats.MaxDepth), packTime.String()})
	table.SetFooter([]string{"Blocks", fmt.Sprintf("%d", packed.Blocks()), fmt.Sprintf("%d", packed.LeafBlocks), " ", fmt.Sprintf("%d bytes", len(packed.Data))})
	table.Render()

	logger.Noticef("packed %d primitives\n%s", stats.Primitives, buf.String())
	return nil
}
