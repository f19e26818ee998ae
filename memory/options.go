package memory

import (
	"errors"
	"fmt"

	"github.com/achilleasa/rtstack/hotzone"
	"github.com/achilleasa/rtstack/hwgen"
)

var (
	ErrInvalidOptions = errors.New("memory: invalid dispatch options")
	ErrExceedsLimits  = errors.New("memory: allocation exceeds device limits")
)

// Options describes a dispatch.
type Options struct {
	Generation hwgen.Generation

	// Deepest instancing level the async stacks must hold.
	MaxBVHLevels int

	// Hardware partitioning.
	DSSCount        uint32
	StacksPerDSS    uint32
	SIMDLanesPerDSS uint32

	// Per-thread software stack size in bytes. May be zero.
	SWStackSize uint32

	// Hot zone encoding. When zero, it is selected from BitCompression
	// and DispatchDims.
	HotZoneVariant hotzone.Variant
	BitCompression bool
	DispatchDims   [3]uint32
}

// Validate checks that the options describe a dispatch that can be planned.
func (o *Options) Validate() error {
	if !o.Generation.Valid() {
		return fmt.Errorf("%w: unsupported hardware generation %d", ErrInvalidOptions, uint8(o.Generation))
	}
	if o.MaxBVHLevels < 1 || o.MaxBVHLevels > hwgen.MaxBVHLevels {
		return fmt.Errorf("%w: BVH depth %d outside of [1, %d]", ErrInvalidOptions, o.MaxBVHLevels, hwgen.MaxBVHLevels)
	}
	if o.DSSCount == 0 || o.StacksPerDSS == 0 || o.SIMDLanesPerDSS == 0 {
		return fmt.Errorf("%w: DSS count, stacks per DSS and SIMD lanes per DSS must be non-zero", ErrInvalidOptions)
	}
	if o.SWStackSize%8 != 0 {
		return fmt.Errorf("%w: software stack size %d is not a multiple of 8", ErrInvalidOptions, o.SWStackSize)
	}

	switch o.HotZoneVariant {
	case 0, hotzone.V1, hotzone.V2, hotzone.V3:
	default:
		return fmt.Errorf("%w: unknown hot zone variant %d", ErrInvalidOptions, uint8(o.HotZoneVariant))
	}
	if o.HotZoneVariant == hotzone.V1 && !o.BitCompression {
		return fmt.Errorf("%w: hot zone variant v1 requires bit compression", ErrInvalidOptions)
	}

	return nil
}

func (o *Options) hotZoneVariant() hotzone.Variant {
	if o.HotZoneVariant != 0 {
		return o.HotZoneVariant
	}
	return hotzone.SelectVariant(o.BitCompression, o.DispatchDims)
}
