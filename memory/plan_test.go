package memory

import (
	"errors"
	"strings"
	"testing"
	"unsafe"

	"github.com/achilleasa/rtstack/hotzone"
	"github.com/achilleasa/rtstack/hwgen"
	"github.com/achilleasa/rtstack/rtstack"
	"github.com/gogpu/gputypes"
)

type sizingArgs struct {
	hotZoneSz, syncSz, asyncSz, swSz, dssCount, stacksPerDSS, simdLanesPerDSS uint64
}

func (a sizingArgs) alloc() uint64 {
	return AllocSize(a.hotZoneSz, a.syncSz, a.asyncSz, a.swSz, a.dssCount, a.stacksPerDSS, a.simdLanesPerDSS)
}

func (a sizingArgs) offsets() (uint64, uint64, uint64) {
	return RegionOffsets(a.hotZoneSz, a.syncSz, a.asyncSz, a.swSz, a.dssCount, a.stacksPerDSS, a.simdLanesPerDSS)
}

// The scenario allocation expressed as a plain struct with one array per
// region.
type referenceAlloc struct {
	hotZones    [8 * 32 * 2048]byte
	syncStacks  [256 * 32 * 2048]byte
	asyncStacks [256 * 32 * 2048]byte
	swStacks    [136 * 32 * 2048]byte
}

func TestAllocSizeMatchesReference(t *testing.T) {
	args := sizingArgs{8, 256, 256, 136, 32, 2048, 2048}

	var ref *referenceAlloc
	if got, exp := args.alloc(), uint64(unsafe.Sizeof(*ref)); got != exp {
		t.Fatalf("expected alloc size %d; got %d", exp, got)
	}
	if args.alloc() != 42991616 {
		t.Fatalf("expected alloc size 42991616; got %d", args.alloc())
	}

	hotZoneOffset, asyncOffset, swOffset := args.offsets()
	if hotZoneOffset != 0 {
		t.Fatalf("expected hot zone offset 0; got %d", hotZoneOffset)
	}
	if exp := uint64(unsafe.Offsetof(ref.asyncStacks)); asyncOffset != exp {
		t.Fatalf("expected async offset %d; got %d", exp, asyncOffset)
	}
	if exp := uint64(unsafe.Offsetof(ref.swStacks)); swOffset != exp {
		t.Fatalf("expected sw stack offset %d; got %d", exp, swOffset)
	}
}

func TestRegionOffsetsAgreeWithAllocSize(t *testing.T) {
	specs := []sizingArgs{
		{8, 256, 256, 136, 32, 2048, 2048},
		{16, 256, 896, 0, 1, 1, 1},
		{16, 256, 384, 24, 3, 7, 5},
		{1, 1, 1, 1, 1, 1, 1},
		{16, 256, 640, 1000, 6, 33, 129},
	}

	for index, s := range specs {
		hotZoneOffset, asyncOffset, swOffset := s.offsets()
		if hotZoneOffset != 0 {
			t.Fatalf("[spec %d] expected hot zone offset 0; got %d", index, hotZoneOffset)
		}

		head := Align(s.hotZoneSz*s.dssCount*s.stacksPerDSS, hwgen.StackAlign) +
			Align(s.syncSz*s.dssCount*s.simdLanesPerDSS, hwgen.StackAlign)
		if asyncOffset != head {
			t.Fatalf("[spec %d] expected async offset %d; got %d", index, head, asyncOffset)
		}
		if got := swOffset + Align(s.swSz*s.dssCount*s.stacksPerDSS, hwgen.StackAlign); got != s.alloc() {
			t.Fatalf("[spec %d] expected sw stack end %d to match alloc size %d", index, got, s.alloc())
		}

		for _, off := range []uint64{asyncOffset, swOffset, s.alloc()} {
			if off%hwgen.StackAlign != 0 {
				t.Fatalf("[spec %d] expected offset %d to be %d byte aligned", index, off, hwgen.StackAlign)
			}
		}
	}
}

func TestStackHeaderSize(t *testing.T) {
	if got, exp := StackHeaderSize(2), Align(uint64(rtstack.StackSize(rtstack.SyncStack, 2)), hwgen.StackAlign); got != exp {
		t.Fatalf("expected stack header size %d; got %d", exp, got)
	}
	if StackHeaderSize(1) != 256 || StackHeaderSize(8) != 896 {
		t.Fatalf("unexpected stack header sizes %d, %d", StackHeaderSize(1), StackHeaderSize(8))
	}

	for _, levels := range []int{0, hwgen.MaxBVHLevels + 1} {
		func() {
			defer func() {
				if err := recover(); err == nil {
					t.Fatalf("expected StackHeaderSize(%d) to panic", levels)
				}
			}()
			StackHeaderSize(levels)
		}()
	}

	for _, gen := range hwgen.All() {
		if got := len(rtstack.NewStack(gen, rtstack.SyncStack, hwgen.SyncStackBVHLevels).Bytes()); uint64(got) != SyncStackSize() {
			t.Fatalf("[%s] expected sync stack size %d; got %d", gen, SyncStackSize(), got)
		}
	}
}

func TestAlign(t *testing.T) {
	type spec struct {
		v, alignment, exp int
	}
	specs := []spec{
		{0, 128, 0},
		{1, 128, 128},
		{128, 128, 128},
		{129, 128, 256},
		{7, 8, 8},
	}
	for index, s := range specs {
		if got := Align(s.v, s.alignment); got != s.exp {
			t.Fatalf("[spec %d] expected %d; got %d", index, s.exp, got)
		}
	}
}

func testOptions() Options {
	return Options{
		Generation:      hwgen.Xe3,
		MaxBVHLevels:    2,
		DSSCount:        4,
		StacksPerDSS:    64,
		SIMDLanesPerDSS: 32,
		SWStackSize:     136,
		BitCompression:  true,
		DispatchDims:    [3]uint32{256, 256, 1},
	}
}

func TestNewPlan(t *testing.T) {
	opts := testOptions()
	p, err := NewPlan(opts)
	if err != nil {
		t.Fatal(err)
	}

	exp := AllocSize(hotzone.RecordSize, SyncStackSize(), StackHeaderSize(2), 136, 4, 64, 32)
	if p.Size() != exp {
		t.Fatalf("expected plan size %d; got %d", exp, p.Size())
	}
	_, asyncOffset, swOffset := RegionOffsets(hotzone.RecordSize, SyncStackSize(), StackHeaderSize(2), 136, 4, 64, 32)
	if p.RTMemBasePtr() != asyncOffset || p.Region(SWStacks).Offset != swOffset {
		t.Fatalf("expected base ptr %d and sw offset %d; got %d and %d", asyncOffset, swOffset, p.RTMemBasePtr(), p.Region(SWStacks).Offset)
	}
	if p.HotZoneVariant() != hotzone.V1 {
		t.Fatalf("expected hot zone variant v1; got %s", p.HotZoneVariant())
	}

	regions := p.Regions()
	if len(regions) != 4 || regions[0].Offset != 0 || regions[3].End() != p.Size() {
		t.Fatalf("unexpected regions %+v", regions)
	}
	for i := 1; i < len(regions); i++ {
		if regions[i].Offset != regions[i-1].End() {
			t.Fatalf("expected region %s to start at %d; got %d", regions[i].Kind, regions[i-1].End(), regions[i].Offset)
		}
		if regions[i].Size < regions[i].SlotSize*regions[i].Slots {
			t.Fatalf("expected region %s to hold %d slots", regions[i].Kind, regions[i].Slots)
		}
	}

	desc := p.Descriptor("rt memory")
	if desc.Size != p.Size() || desc.Usage != gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst {
		t.Fatalf("unexpected descriptor %+v", desc)
	}

	if stats := p.Stats(); !strings.Contains(stats, "async stacks") || !strings.Contains(stats, "Total") {
		t.Fatalf("unexpected stats output:\n%s", stats)
	}

	opts.BitCompression = false
	if p, err = NewPlan(opts); err != nil || p.HotZoneVariant() != hotzone.V2 {
		t.Fatalf("expected v2 without bit compression; got %v (%v)", p, err)
	}
}

func TestPerThreadOffsetsStayInRegion(t *testing.T) {
	opts := testOptions()
	p, err := NewPlan(opts)
	if err != nil {
		t.Fatal(err)
	}

	within := func(kind RegionKind, off uint64) {
		r := p.Region(kind)
		if off < r.Offset || off+r.SlotSize > r.End() {
			t.Fatalf("expected %s slot at %d to lie in [%d, %d)", kind, off, r.Offset, r.End())
		}
	}

	seen := map[uint64]bool{}
	for dss := uint32(0); dss < opts.DSSCount; dss++ {
		for lane := uint32(0); lane < opts.SIMDLanesPerDSS; lane++ {
			off := p.SyncStackOffset(dss, lane)
			within(SyncStacks, off)
			if seen[off] {
				t.Fatalf("sync stack offset %d assigned twice", off)
			}
			seen[off] = true
		}
		for id := uint32(0); id < opts.StacksPerDSS; id++ {
			within(HotZones, p.HotZoneOffset(dss, id))
			within(AsyncStacks, p.AsyncStackOffset(dss, id))
			within(SWStacks, p.SWStackOffset(dss, id))
		}
	}

	if got := p.SyncStackOffset(0, 0); got != p.RTMemBasePtr()-SyncStackSize() {
		t.Fatalf("expected first sync stack right below the base pointer; got %d", got)
	}
	if got := p.AsyncStackOffset(0, 0); got != p.RTMemBasePtr() {
		t.Fatalf("expected first async stack at the base pointer; got %d", got)
	}

	defer func() {
		if err := recover(); err == nil {
			t.Fatal("expected out of range lane to panic")
		}
	}()
	p.SyncStackOffset(0, opts.SIMDLanesPerDSS)
}

func TestOptionsValidate(t *testing.T) {
	specs := []func(*Options){
		func(o *Options) { o.Generation = hwgen.Generation(9) },
		func(o *Options) { o.MaxBVHLevels = 0 },
		func(o *Options) { o.MaxBVHLevels = hwgen.MaxBVHLevels + 1 },
		func(o *Options) { o.DSSCount = 0 },
		func(o *Options) { o.SIMDLanesPerDSS = 0 },
		func(o *Options) { o.SWStackSize = 13 },
		func(o *Options) { o.HotZoneVariant = hotzone.Variant(7) },
		func(o *Options) { o.HotZoneVariant, o.BitCompression = hotzone.V1, false },
	}

	for index, mutate := range specs {
		opts := testOptions()
		mutate(&opts)
		if _, err := NewPlan(opts); !errors.Is(err, ErrInvalidOptions) {
			t.Fatalf("[spec %d] expected ErrInvalidOptions; got %v", index, err)
		}
	}
}

func TestCheckLimits(t *testing.T) {
	opts := testOptions()
	p, err := NewPlan(opts)
	if err != nil {
		t.Fatal(err)
	}

	limits := gputypes.DefaultLimits()
	if err := p.CheckLimits(limits); err != nil {
		t.Fatal(err)
	}

	limits.MaxStorageBufferBindingSize = p.Size() - 1
	if err := p.CheckLimits(limits); !errors.Is(err, ErrExceedsLimits) {
		t.Fatalf("expected ErrExceedsLimits; got %v", err)
	}
	limits = gputypes.DefaultLimits()
	limits.MaxBufferSize = p.Size() - 1
	if err := p.CheckLimits(limits); !errors.Is(err, ErrExceedsLimits) {
		t.Fatalf("expected ErrExceedsLimits; got %v", err)
	}
}
