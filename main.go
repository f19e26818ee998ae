package main

import (
	"os"

	"github.com/achilleasa/rtstack/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	genFlag := cli.StringFlag{
		Name:   "gen",
		Value:  "xe3",
		Usage:  "hardware generation (xe, xe3)",
		EnvVar: "RTSTACK_GEN",
	}

	app := cli.NewApp()
	app.Name = "rtstack"
	app.Usage = "inspect the ray tracing memory layout"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "layout",
			Usage: "display record bit layouts",
			Description: `
Print the field table of the hit, ray, traversal stack and hot zone records
for a hardware generation together with the stack container offsets.`,
			Flags: []cli.Flag{
				genFlag,
				cli.IntFlag{
					Name:  "levels",
					Value: 2,
					Usage: "BVH levels of the displayed stack container",
				},
				cli.BoolFlag{
					Name:  "legacy",
					Usage: "display the legacy traversal stack encoding",
				},
				cli.StringFlag{
					Name:  "hotzone",
					Value: "v1",
					Usage: "hot zone variant (v1, v2, v3)",
				},
			},
			Action: cmd.ShowLayout,
		},
		{
			Name:  "plan",
			Usage: "size and carve the ray tracing allocation for a dispatch",
			Description: `
Compute the four memory regions (hot zones, sync stacks, async stacks and
software stacks) of a dispatch and check the allocation against the
device limits.`,
			Flags: []cli.Flag{
				genFlag,
				cli.IntFlag{
					Name:   "levels",
					Value:  2,
					Usage:  "max BVH levels",
					EnvVar: "RTSTACK_BVH_LEVELS",
				},
				cli.UintFlag{
					Name:   "dss",
					Value:  32,
					Usage:  "number of DSS",
					EnvVar: "RTSTACK_DSS",
				},
				cli.UintFlag{
					Name:   "stacks-per-dss",
					Value:  2048,
					Usage:  "async stacks per DSS",
					EnvVar: "RTSTACK_STACKS_PER_DSS",
				},
				cli.UintFlag{
					Name:   "lanes-per-dss",
					Value:  2048,
					Usage:  "SIMD lanes per DSS",
					EnvVar: "RTSTACK_LANES_PER_DSS",
				},
				cli.UintFlag{
					Name:   "sw-stack-size",
					Value:  136,
					Usage:  "per-thread software stack size in bytes",
					EnvVar: "RTSTACK_SW_STACK_SIZE",
				},
				cli.StringFlag{
					Name:   "hotzone",
					Usage:  "force a hot zone variant (v1, v2, v3)",
					EnvVar: "RTSTACK_HOTZONE",
				},
				cli.BoolFlag{
					Name:   "bit-compression",
					Usage:  "allow the bit-compressed hot zone encoding",
					EnvVar: "RTSTACK_BIT_COMPRESSION",
				},
				cli.IntSliceFlag{
					Name:  "dispatch",
					Value: &cli.IntSlice{},
					Usage: "dispatch dimensions; pass three times for x, y and z",
				},
				cli.Uint64Flag{
					Name:  "max-buffer-size",
					Usage: "override the device buffer size limit",
				},
				cli.BoolFlag{
					Name:  "threads",
					Usage: "display the per-thread offsets of one stack",
				},
				cli.UintFlag{
					Name:  "dss-index",
					Usage: "DSS of the stack displayed with --threads",
				},
				cli.UintFlag{
					Name:  "stack-id",
					Usage: "stack displayed with --threads",
				},
			},
			Action: cmd.PlanMemory,
		},
		{
			Name:   "hotzone",
			Usage:  "encode and decode hot zone records",
			Action: nil,
			Subcommands: []cli.Command{
				{
					Name:      "encode",
					Usage:     "encode a dispatch index",
					ArgsUsage: "x y z",
					Flags: []cli.Flag{
						cli.StringFlag{
							Name:  "variant",
							Value: "v1",
							Usage: "hot zone variant (v1, v2, v3)",
						},
						cli.UintFlag{
							Name:  "stack-offset",
							Usage: "stack offset stored in the record",
						},
						cli.BoolFlag{
							Name:  "done",
							Usage: "set the completion flag (v3 only)",
						},
					},
					Action: cmd.EncodeHotZone,
				},
				{
					Name:      "decode",
					Usage:     "decode a hex encoded record",
					ArgsUsage: "record_hex",
					Flags: []cli.Flag{
						cli.StringFlag{
							Name:  "variant",
							Value: "v1",
							Usage: "hot zone variant (v1, v2, v3)",
						},
					},
					Action: cmd.DecodeHotZone,
				},
			},
		},
		{
			Name:  "bvh-demo",
			Usage: "build, pack and walk a BVH over random boxes",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "prims",
					Value: 10000,
					Usage: "number of primitives",
				},
				cli.IntFlag{
					Name:  "leaf-items",
					Value: 4,
					Usage: "min items per leaf",
				},
				cli.Int64Flag{
					Name:  "seed",
					Value: 1,
					Usage: "random seed",
				},
			},
			Action: cmd.BVHDemo,
		},
	}

	app.Run(os.Args)
}
