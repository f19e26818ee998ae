// Package hwgen enumerates the hardware generations whose ray tracing memory
// layout is described by this module, together with the ABI constants that
// every generation shares.
package hwgen

import (
	"fmt"
	"strings"
)

// Generation selects the bit assignments used by the record codecs. The set
// is closed: codecs panic when handed a value outside of it.
type Generation uint8

const (
	// Xe is the legacy layout: float barycentrics and canonical (sign
	// extended) compact leaf pointers.
	Xe Generation = iota

	// Xe3 stores barycentrics as unorm24 and zero-extends compact pointers.
	Xe3

	numGenerations
)

// ABI constants shared by all generations.
const (
	// Alignment applied to every stack size and memory region boundary.
	StackAlign = 128

	// Compact leaf pointers count 64 byte blocks.
	LeafGranularity = 64

	// Hit group record pointers count 16 byte units.
	HitGroupRecordGranularity = 16

	// Smallest write the hardware issues against a hot zone.
	HotZoneWriteGranularity = 16

	CacheLineSize = 64

	// Deepest instancing supported by the stack size table.
	MaxBVHLevels = 8

	// The only BVH depth the sync stack is laid out for.
	SyncStackBVHLevels = 2
)

// All returns every supported generation in declaration order.
func All() []Generation {
	out := make([]Generation, 0, numGenerations)
	for g := Xe; g < numGenerations; g++ {
		out = append(out, g)
	}
	return out
}

// Valid reports whether g belongs to the supported set.
func (g Generation) Valid() bool {
	return g < numGenerations
}

// Implements Stringer.
func (g Generation) String() string {
	switch g {
	case Xe:
		return "xe"
	case Xe3:
		return "xe3"
	default:
		return fmt.Sprintf("generation(%d)", uint8(g))
	}
}

// MustBeValid panics if g is not a supported generation.
func (g Generation) MustBeValid() {
	if !g.Valid() {
		panic(fmt.Sprintf("hwgen: unsupported hardware generation %d", uint8(g)))
	}
}

// ParseGeneration maps a generation name (as returned by String) back to its value.
func ParseGeneration(name string) (Generation, error) {
	for _, g := range All() {
		if strings.EqualFold(name, g.String()) {
			return g, nil
		}
	}

	return 0, fmt.Errorf("hwgen: unknown hardware generation %q", name)
}
