// Package rtstack implements the per-ray memory records shared by the
// traversal hardware and compiled shaders: hit records, ray records,
// traversal stack spill slots and the stack container that groups them.
//
// Every record is a fixed size little-endian blob. Field placement differs
// between hardware generations but record sizes and the container offsets
// do not.
package rtstack

import (
	"fmt"

	"github.com/achilleasa/rtstack/hwgen"
)

const (
	HitRecordSize           = 32
	RayRecordSize           = 64
	TraversalStackEntrySize = 32

	// Container offsets. Rays and traversal entries repeat once per BVH
	// level; the offsets below are for the 2-level sync stack.
	CommittedHitOffset = 0
	PotentialHitOffset = CommittedHitOffset + HitRecordSize
	Ray0Offset         = PotentialHitOffset + HitRecordSize
	Ray1Offset         = Ray0Offset + RayRecordSize
	TravStackOffset    = Ray0Offset + hwgen.SyncStackBVHLevels*RayRecordSize

	SyncStackContainerSize   = TravStackOffset + hwgen.SyncStackBVHLevels*TraversalStackEntrySize
	ShadowStackContainerSize = TravStackOffset
)

// Layout assertions; any change here is an ABI break.
const (
	_ uint = Ray0Offset - 64
	_ uint = 64 - Ray0Offset
	_ uint = Ray1Offset - 128
	_ uint = 128 - Ray1Offset
	_ uint = TravStackOffset - 192
	_ uint = 192 - TravStackOffset
	_ uint = SyncStackContainerSize - 256
	_ uint = 256 - SyncStackContainerSize
	_ uint = ShadowStackContainerSize - 192
	_ uint = 192 - ShadowStackContainerSize
)

// Variant selects the container flavor. Shadow stacks serve rays that never
// resume traversal and therefore carry no traversal stack.
type Variant uint8

const (
	SyncStack Variant = iota
	ShadowStack
)

// Implements Stringer.
func (v Variant) String() string {
	switch v {
	case SyncStack:
		return "sync"
	case ShadowStack:
		return "shadow"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

func mustBeValidLevels(levels int) {
	if levels < 1 || levels > hwgen.MaxBVHLevels {
		panic(fmt.Sprintf("rtstack: BVH level count %d outside of [1, %d]", levels, hwgen.MaxBVHLevels))
	}
}

// StackSize returns the container size for the given variant and BVH depth:
// two hit records, one ray per level and, for sync stacks, one traversal
// stack entry per level.
func StackSize(variant Variant, levels int) int {
	mustBeValidLevels(levels)

	size := 2*HitRecordSize + levels*RayRecordSize
	switch variant {
	case SyncStack:
		return size + levels*TraversalStackEntrySize
	case ShadowStack:
		return size
	default:
		panic(fmt.Sprintf("rtstack: unknown stack variant %d", uint8(variant)))
	}
}

// RayOffset returns the container offset of the ray for a BVH level.
func RayOffset(level int) int {
	return Ray0Offset + level*RayRecordSize
}

// TraversalEntryOffset returns the container offset of the traversal stack
// entry for a BVH level in a container with the given depth.
func TraversalEntryOffset(levels, level int) int {
	return Ray0Offset + levels*RayRecordSize + level*TraversalStackEntrySize
}
