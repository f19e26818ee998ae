// Package memory sizes and carves the single allocation that backs a ray
// tracing dispatch. The allocation holds four regions, always in this order:
//
//	hot zones | sync stacks | async stacks | software stacks
//
// The base pointer handed to the hardware points at the async stacks. Sync
// stacks are addressed downwards from it and async stacks upwards.
package memory

import (
	"fmt"

	"github.com/achilleasa/rtstack/hwgen"
	"github.com/achilleasa/rtstack/rtstack"
	"golang.org/x/exp/constraints"
)

// Align rounds v up to the next multiple of alignment.
func Align[T constraints.Integer](v, alignment T) T {
	return (v + alignment - 1) / alignment * alignment
}

// Aligned async stack sizes indexed by BVH depth - 1.
var stackHeaderSizes = [hwgen.MaxBVHLevels]uint64{256, 256, 384, 512, 640, 640, 768, 896}

func init() {
	for i, size := range stackHeaderSizes {
		exp := Align(uint64(rtstack.StackSize(rtstack.SyncStack, i+1)), hwgen.StackAlign)
		if size != exp {
			panic(fmt.Sprintf("memory: stack header size for %d BVH levels is %d; layout requires %d", i+1, size, exp))
		}
	}
}

// StackHeaderSize returns the aligned per-thread stack size for a BVH depth
// in [1, hwgen.MaxBVHLevels]. Other depths are a caller defect and panic.
func StackHeaderSize(maxBVHLevels int) uint64 {
	if maxBVHLevels < 1 || maxBVHLevels > hwgen.MaxBVHLevels {
		panic(fmt.Sprintf("memory: BVH depth %d outside of [1, %d]", maxBVHLevels, hwgen.MaxBVHLevels))
	}
	return stackHeaderSizes[maxBVHLevels-1]
}

// SyncStackSize returns the per-lane sync stack size. It is the same for
// every generation.
func SyncStackSize() uint64 {
	return rtstack.SyncStackContainerSize
}

// regionSizes returns the aligned size of each region in allocation order.
// AllocSize and RegionOffsets are both derived from it.
func regionSizes(hotZoneSz, syncSz, asyncSz, swSz, dssCount, stacksPerDSS, simdLanesPerDSS uint64) [numRegions]uint64 {
	return [numRegions]uint64{
		HotZones:    Align(hotZoneSz*dssCount*stacksPerDSS, hwgen.StackAlign),
		SyncStacks:  Align(syncSz*dssCount*simdLanesPerDSS, hwgen.StackAlign),
		AsyncStacks: Align(asyncSz*dssCount*stacksPerDSS, hwgen.StackAlign),
		SWStacks:    Align(swSz*dssCount*stacksPerDSS, hwgen.StackAlign),
	}
}

// AllocSize returns the size of the allocation. Each region is aligned
// before being added so every region boundary is aligned.
func AllocSize(hotZoneSz, syncSz, asyncSz, swSz, dssCount, stacksPerDSS, simdLanesPerDSS uint64) uint64 {
	var total uint64
	for _, size := range regionSizes(hotZoneSz, syncSz, asyncSz, swSz, dssCount, stacksPerDSS, simdLanesPerDSS) {
		total += size
	}
	return total
}

// RegionOffsets returns the start of the hot zone, async stack and software
// stack regions. The sync stacks start right after the hot zones.
func RegionOffsets(hotZoneSz, syncSz, asyncSz, swSz, dssCount, stacksPerDSS, simdLanesPerDSS uint64) (hotZoneOffset, asyncOffset, swStackOffset uint64) {
	sizes := regionSizes(hotZoneSz, syncSz, asyncSz, swSz, dssCount, stacksPerDSS, simdLanesPerDSS)
	asyncOffset = sizes[HotZones] + sizes[SyncStacks]
	swStackOffset = asyncOffset + sizes[AsyncStacks]
	return 0, asyncOffset, swStackOffset
}
