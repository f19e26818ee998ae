package memory

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/achilleasa/rtstack/hotzone"
	"github.com/achilleasa/rtstack/log"
	"github.com/gogpu/gputypes"
	"github.com/olekukonko/tablewriter"
)

// RegionKind identifies one of the four regions of the allocation.
type RegionKind int

const (
	HotZones RegionKind = iota
	SyncStacks
	AsyncStacks
	SWStacks

	numRegions
)

// Implements Stringer.
func (k RegionKind) String() string {
	switch k {
	case HotZones:
		return "hot zones"
	case SyncStacks:
		return "sync stacks"
	case AsyncStacks:
		return "async stacks"
	case SWStacks:
		return "sw stacks"
	default:
		return fmt.Sprintf("region(%d)", int(k))
	}
}

// Region is a byte range of the allocation together with the per-thread
// slot size it is divided into.
type Region struct {
	Kind     RegionKind
	Offset   uint64
	Size     uint64
	SlotSize uint64
	Slots    uint64
}

// End returns the first byte past the region.
func (r Region) End() uint64 {
	return r.Offset + r.Size
}

// Plan is the layout of the allocation for one dispatch.
type Plan struct {
	opts    Options
	variant hotzone.Variant
	regions [numRegions]Region
	size    uint64
}

// NewPlan validates opts and lays out the allocation.
func NewPlan(opts Options) (*Plan, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	p := &Plan{
		opts:    opts,
		variant: opts.hotZoneVariant(),
	}

	var (
		dss    = uint64(opts.DSSCount)
		stacks = uint64(opts.StacksPerDSS)
		lanes  = uint64(opts.SIMDLanesPerDSS)
	)
	slotSizes := [numRegions]uint64{
		HotZones:    hotzone.RecordSize,
		SyncStacks:  SyncStackSize(),
		AsyncStacks: StackHeaderSize(opts.MaxBVHLevels),
		SWStacks:    uint64(opts.SWStackSize),
	}
	sizes := regionSizes(slotSizes[HotZones], slotSizes[SyncStacks], slotSizes[AsyncStacks], slotSizes[SWStacks], dss, stacks, lanes)

	var offset uint64
	for kind := range numRegions {
		slots := dss * stacks
		if kind == SyncStacks {
			slots = dss * lanes
		}
		p.regions[kind] = Region{
			Kind:     kind,
			Offset:   offset,
			Size:     sizes[kind],
			SlotSize: slotSizes[kind],
			Slots:    slots,
		}
		offset += sizes[kind]
	}
	p.size = offset

	logger.Debugf("planned %d bytes for %s (bvh levels: %d, dss: %d, stacks/dss: %d, lanes/dss: %d, hot zone: %s)",
		p.size, opts.Generation, opts.MaxBVHLevels, dss, stacks, lanes, p.variant)
	return p, nil
}

var logger = log.New("planner")

// Size returns the total allocation size.
func (p *Plan) Size() uint64 {
	return p.size
}

// Options returns the options the plan was created from.
func (p *Plan) Options() Options {
	return p.opts
}

// HotZoneVariant returns the hot zone encoding used by the dispatch.
func (p *Plan) HotZoneVariant() hotzone.Variant {
	return p.variant
}

// Region returns the placement of a region.
func (p *Plan) Region(kind RegionKind) Region {
	return p.regions[kind]
}

// Regions returns every region in allocation order.
func (p *Plan) Regions() []Region {
	return append([]Region(nil), p.regions[:]...)
}

// RTMemBasePtr returns the offset of the pointer handed to the hardware.
func (p *Plan) RTMemBasePtr() uint64 {
	return p.regions[AsyncStacks].Offset
}

func (p *Plan) stackIndex(dss, id, perDSS uint32, what string) uint64 {
	if dss >= p.opts.DSSCount || id >= perDSS {
		panic(fmt.Sprintf("memory: %s (%d, %d) outside of %d x %d", what, dss, id, p.opts.DSSCount, perDSS))
	}
	return uint64(dss)*uint64(perDSS) + uint64(id)
}

// HotZoneOffset returns the offset of the hot zone record of a stack.
func (p *Plan) HotZoneOffset(dss, stackID uint32) uint64 {
	r := p.regions[HotZones]
	return r.Offset + p.stackIndex(dss, stackID, p.opts.StacksPerDSS, "stack")*r.SlotSize
}

// SyncStackOffset returns the offset of the sync stack of a SIMD lane. Sync
// stacks grow downwards from the base pointer.
func (p *Plan) SyncStackOffset(dss, lane uint32) uint64 {
	r := p.regions[SyncStacks]
	return p.RTMemBasePtr() - (p.stackIndex(dss, lane, p.opts.SIMDLanesPerDSS, "lane")+1)*r.SlotSize
}

// AsyncStackOffset returns the offset of an async stack.
func (p *Plan) AsyncStackOffset(dss, stackID uint32) uint64 {
	r := p.regions[AsyncStacks]
	return p.RTMemBasePtr() + p.stackIndex(dss, stackID, p.opts.StacksPerDSS, "stack")*r.SlotSize
}

// SWStackOffset returns the offset of the software stack of a stack.
func (p *Plan) SWStackOffset(dss, stackID uint32) uint64 {
	r := p.regions[SWStacks]
	return r.Offset + p.stackIndex(dss, stackID, p.opts.StacksPerDSS, "stack")*r.SlotSize
}

// Descriptor returns a storage buffer descriptor for the allocation.
func (p *Plan) Descriptor(label string) gputypes.BufferDescriptor {
	return gputypes.BufferDescriptor{
		Label: label,
		Size:  p.size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	}
}

// CheckLimits reports whether the allocation can be created and bound as a
// single storage buffer on a device with the given limits.
func (p *Plan) CheckLimits(limits gputypes.Limits) error {
	if p.size > limits.MaxBufferSize {
		return fmt.Errorf("%w: %d bytes > max buffer size %d", ErrExceedsLimits, p.size, limits.MaxBufferSize)
	}
	if p.size > limits.MaxStorageBufferBindingSize {
		return fmt.Errorf("%w: %d bytes > max storage binding size %d", ErrExceedsLimits, p.size, limits.MaxStorageBufferBindingSize)
	}
	return nil
}

// Build a tabular representation of the plan.
func (p *Plan) Stats() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Region", "Offset", "Slot size", "Slots", "Size"})
	for _, r := range p.regions {
		table.Append([]string{
			r.Kind.String(),
			fmt.Sprintf("0x%08x", r.Offset),
			fmt.Sprintf("%d", r.SlotSize),
			fmt.Sprintf("%d", r.Slots),
			fmtSize(r.Size),
		})
	}
	table.Append([]string{" ", " ", " ", " ", " "})
	table.Append([]string{"base ptr", fmt.Sprintf("0x%08x", p.RTMemBasePtr()), "", "", ""})
	table.SetFooter([]string{"Total", " ", " ", " ", strings.TrimLeft(fmtSize(p.size), " ")})

	table.Render()
	return buf.String()
}

// Format a byte count with the appropriate byte/kb/mb unit.
func fmtSize(totalBytes uint64) string {
	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", totalBytes)
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", float64(totalBytes)/1e3)
	}
	return fmt.Sprintf("%5.1f mb", float64(totalBytes)/1e6)
}
