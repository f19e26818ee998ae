package cmd

import (
	"bytes"
	"fmt"

	"github.com/achilleasa/rtstack/bitfield"
	"github.com/achilleasa/rtstack/hotzone"
	"github.com/achilleasa/rtstack/hwgen"
	"github.com/achilleasa/rtstack/rtstack"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Display the bit layout of the records used by a hardware generation.
func ShowLayout(ctx *cli.Context) error {
	setupLogging(ctx)

	gen, err := hwgen.ParseGeneration(ctx.String("gen"))
	if err != nil {
		return err
	}

	hit := rtstack.HitLayout(gen)
	ray := rtstack.RayLayout(gen)
	variant, err := hotzone.ParseVariant(ctx.String("hotzone"))
	if err != nil {
		return err
	}

	logger.Noticef("%s hit record (%d bytes)\n%s", gen, rtstack.HitRecordSize, fieldTable(hit.All()))
	logger.Noticef("%s ray record (%d bytes)\n%s", gen, rtstack.RayRecordSize, fieldTable(append(ray.All(), ray.RayFlagsAlias, ray.ShaderRayFlagsAlias)))
	logger.Noticef("traversal stack entry (%d bytes, legacy: %t)\n%s", rtstack.TraversalStackEntrySize, ctx.Bool("legacy"), fieldTable(rtstack.TraversalLayout(ctx.Bool("legacy"))))
	logger.Noticef("hot zone record %s (%d bytes)\n%s", variant, hotzone.RecordSize, fieldTable(hotzone.Fields(variant)))

	levels := ctx.Int("levels")
	logger.Noticef("stack container (%d BVH levels)\n%s", levels, containerTable(levels))
	return nil
}

func fieldTable(fields []bitfield.Field) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Field", "Byte offset", "Word", "Bits", "Width"})
	for _, f := range fields {
		if !f.Present() {
			continue
		}
		lo, hi := f.Span()
		table.Append([]string{
			f.Name,
			fmt.Sprintf("%d", f.Offset),
			fmt.Sprintf("u%d", 8*f.Size),
			fmt.Sprintf("[%d, %d)", lo, hi),
			fmt.Sprintf("%d", f.Width),
		})
	}
	table.Render()
	return buf.String()
}

func containerTable(levels int) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Record", "Offset", "Size"})
	table.Append([]string{"committed hit", fmt.Sprintf("%d", rtstack.CommittedHitOffset), fmt.Sprintf("%d", rtstack.HitRecordSize)})
	table.Append([]string{"potential hit", fmt.Sprintf("%d", rtstack.PotentialHitOffset), fmt.Sprintf("%d", rtstack.HitRecordSize)})
	for level := 0; level < levels; level++ {
		table.Append([]string{fmt.Sprintf("ray%d", level), fmt.Sprintf("%d", rtstack.RayOffset(level)), fmt.Sprintf("%d", rtstack.RayRecordSize)})
	}
	for level := 0; level < levels; level++ {
		table.Append([]string{fmt.Sprintf("trav stack %d", level), fmt.Sprintf("%d", rtstack.TraversalEntryOffset(levels, level)), fmt.Sprintf("%d", rtstack.TraversalStackEntrySize)})
	}
	table.SetFooter([]string{"Total", " ", fmt.Sprintf("%d", rtstack.StackSize(rtstack.SyncStack, levels))})
	table.Render()
	return buf.String()
}
