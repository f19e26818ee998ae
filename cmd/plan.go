package cmd

import (
	"fmt"

	"github.com/achilleasa/rtstack/hotzone"
	"github.com/achilleasa/rtstack/hwgen"
	"github.com/achilleasa/rtstack/memory"
	"github.com/gogpu/gputypes"
	"github.com/urfave/cli"
)

// Plan the ray tracing allocation for a dispatch.
func PlanMemory(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := planOptions(ctx)
	if err != nil {
		return err
	}

	plan, err := memory.NewPlan(opts)
	if err != nil {
		return err
	}

	logger.Noticef("memory plan (%s, hot zone %s)\n%s", opts.Generation, plan.HotZoneVariant(), plan.Stats())

	limits := gputypes.DefaultLimits()
	if maxSize := ctx.Uint64("max-buffer-size"); maxSize != 0 {
		limits.MaxBufferSize = maxSize
		limits.MaxStorageBufferBindingSize = maxSize
	}
	if err = plan.CheckLimits(limits); err != nil {
		logger.Warning(err)
	}

	if ctx.Bool("threads") {
		dss, id := uint32(ctx.Uint("dss-index")), uint32(ctx.Uint("stack-id"))
		logger.Noticef("thread (%d, %d): hot zone 0x%08x, sync 0x%08x, async 0x%08x, sw 0x%08x",
			dss, id,
			plan.HotZoneOffset(dss, id),
			plan.SyncStackOffset(dss, id%opts.SIMDLanesPerDSS),
			plan.AsyncStackOffset(dss, id),
			plan.SWStackOffset(dss, id),
		)
	}

	return nil
}

func planOptions(ctx *cli.Context) (memory.Options, error) {
	gen, err := hwgen.ParseGeneration(ctx.String("gen"))
	if err != nil {
		return memory.Options{}, err
	}

	opts := memory.Options{
		Generation:      gen,
		MaxBVHLevels:    ctx.Int("levels"),
		DSSCount:        uint32(ctx.Uint("dss")),
		StacksPerDSS:    uint32(ctx.Uint("stacks-per-dss")),
		SIMDLanesPerDSS: uint32(ctx.Uint("lanes-per-dss")),
		SWStackSize:     uint32(ctx.Uint("sw-stack-size")),
		BitCompression:  ctx.Bool("bit-compression"),
	}

	if name := ctx.String("hotzone"); name != "" {
		if opts.HotZoneVariant, err = hotzone.ParseVariant(name); err != nil {
			return opts, err
		}
	}

	dims := ctx.IntSlice("dispatch")
	if len(dims) != 0 && len(dims) != 3 {
		return opts, fmt.Errorf("expected 3 dispatch dimensions; got %d", len(dims))
	}
	for i, d := range dims {
		opts.DispatchDims[i] = uint32(d)
	}

	return opts, nil
}
