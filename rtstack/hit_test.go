package rtstack

import (
	"bytes"
	"math"
	"testing"

	"github.com/achilleasa/rtstack/bitfield"
	"github.com/achilleasa/rtstack/bvh"
	"github.com/achilleasa/rtstack/hwgen"
)

func sampleHit() HitRecord {
	return HitRecord{
		T:               12.5,
		U:               0.25,
		V:               0.625,
		PrimIndexDelta:  0x7F,
		LeafNodeSubType: 0x9,
		Valid:           true,
		LeafType:        bvh.NodeTypeQuad,
		PrimLeafIndex:   0xA,
		BVHLevel:        1,
		FrontFace:       true,
		Done:            false,
		PrimLeafPtr:     0x123456789,
		InstLeafPtr:     0x3FFFFFFFFFF,
		HitGroupRecPtr:  0xABCDE012345,
	}
}

func TestRecordSizes(t *testing.T) {
	for _, gen := range hwgen.All() {
		s := NewStack(gen, SyncStack, hwgen.SyncStackBVHLevels)
		if len(s.Bytes()) != 256 {
			t.Fatalf("[%s] expected 2-level sync stack to be 256 bytes; got %d", gen, len(s.Bytes()))
		}

		hit := HitLayout(gen)
		for _, f := range hit.All() {
			if _, hi := f.Span(); hi > 8*HitRecordSize {
				t.Fatalf("[%s] hit field %s ends at bit %d", gen, f.Name, hi)
			}
		}
		ray := RayLayout(gen)
		for _, f := range ray.All() {
			if _, hi := f.Span(); hi > 8*RayRecordSize {
				t.Fatalf("[%s] ray field %s ends at bit %d", gen, f.Name, hi)
			}
		}
	}

	type spec struct {
		got, exp int
	}
	specs := []spec{
		{HitRecordSize, 32},
		{RayRecordSize, 64},
		{TraversalStackEntrySize, 32},
		{CommittedHitOffset, 0},
		{PotentialHitOffset, 32},
		{Ray0Offset, 64},
		{Ray1Offset, 128},
		{TravStackOffset, 192},
		{RayOffset(1), 128},
		{TraversalEntryOffset(2, 0), 192},
		{TraversalEntryOffset(2, 1), 224},
		{StackSize(SyncStack, 2), 256},
		{StackSize(ShadowStack, 2), 192},
		{StackSize(SyncStack, 1), 160},
		{StackSize(SyncStack, 8), 832},
	}
	for index, s := range specs {
		if s.got != s.exp {
			t.Fatalf("[spec %d] expected %d; got %d", index, s.exp, s.got)
		}
	}
}

func TestStackSizePanicsOnBadLevels(t *testing.T) {
	for _, levels := range []int{0, hwgen.MaxBVHLevels + 1} {
		func() {
			defer func() {
				if err := recover(); err == nil {
					t.Fatalf("expected StackSize(%d) to panic", levels)
				}
			}()
			StackSize(SyncStack, levels)
		}()
	}
}

func TestHitRoundTripXe(t *testing.T) {
	h := sampleHit()
	h.LeafNodeSubType = 0

	buf := make([]byte, HitRecordSize)
	EncodeHit(hwgen.Xe, &h, buf)
	if got := DecodeHit(hwgen.Xe, buf); got != h {
		t.Fatalf("expected %+v; got %+v", h, got)
	}

	// Float barycentrics live in dwords 1 and 2
	if math.Float32frombits(uint32(buf[4])|uint32(buf[5])<<8|uint32(buf[6])<<16|uint32(buf[7])<<24) != 0.25 {
		t.Fatalf("expected u to be stored as float32 at offset 4; got % x", buf[4:8])
	}
	// valid is bit 16 of the dword at offset 12
	if buf[14]&1 != 1 {
		t.Fatalf("expected valid bit at byte 14; got % x", buf[12:16])
	}

	// Xe has no leaf node sub type
	h.LeafNodeSubType = 0xF
	EncodeHit(hwgen.Xe, &h, buf)
	if got := DecodeHit(hwgen.Xe, buf); got.LeafNodeSubType != 0 {
		t.Fatalf("expected leaf node sub type to be dropped; got %d", got.LeafNodeSubType)
	}
}

func TestHitRoundTripXe3(t *testing.T) {
	h := sampleHit()

	buf := make([]byte, HitRecordSize)
	EncodeHit(hwgen.Xe3, &h, buf)
	got := DecodeHit(hwgen.Xe3, buf)

	const tolerance = 1.0 / bitfield.Unorm24Max
	if math.Abs(float64(got.U-h.U)) > tolerance || math.Abs(float64(got.V-h.V)) > tolerance {
		t.Fatalf("expected barycentrics (%v, %v); got (%v, %v)", h.U, h.V, got.U, got.V)
	}
	got.U, got.V = h.U, h.V
	if got != h {
		t.Fatalf("expected %+v; got %+v", h, got)
	}

	// valid is bit 0 of the dword at offset 12 and primIndexDelta the top
	// byte of the u dword
	if buf[12]&1 != 1 {
		t.Fatalf("expected valid bit at byte 12; got % x", buf[12:16])
	}
	if buf[7] != 0x7F {
		t.Fatalf("expected primIndexDelta in byte 7; got 0x%02x", buf[7])
	}

	// Only 8 bits of primIndexDelta survive
	h.PrimIndexDelta = 0x1FF
	EncodeHit(hwgen.Xe3, &h, buf)
	if got := DecodeHit(hwgen.Xe3, buf); got.PrimIndexDelta != 0xFF {
		t.Fatalf("expected primIndexDelta to be truncated to 0xff; got 0x%x", got.PrimIndexDelta)
	}
}

func TestBarycentric(t *testing.T) {
	for _, gen := range hwgen.All() {
		s := NewStack(gen, SyncStack, 2)
		h := sampleHit()
		s.SetHit(true, h)
		h.U, h.V = 1.0/3.0, 1
		s.SetHit(false, h)

		type spec struct {
			idx       int
			committed bool
			exp       float32
		}
		specs := []spec{
			{0, true, 0.25},
			{1, true, 0.625},
			{0, false, 1.0 / 3.0},
			{1, false, 1},
		}
		for index, sp := range specs {
			got := s.Barycentric(sp.idx, sp.committed)
			if diff := math.Abs(float64(got) - float64(sp.exp)); diff > 1.0/bitfield.Unorm24Max {
				t.Fatalf("[%s spec %d] expected %v; got %v", gen, index, sp.exp, got)
			}
			if gen == hwgen.Xe && got != sp.exp {
				t.Fatalf("[%s spec %d] expected exact float barycentric %v; got %v", gen, index, sp.exp, got)
			}
		}
	}
}

func TestLeafPointerCanonicalization(t *testing.T) {
	type spec struct {
		gen            hwgen.Generation
		compact        uint64
		hitGroup       uint64
		expLeaf        uint64
		expHitGroupRec uint64
	}
	specs := []spec{
		{hwgen.Xe, 0x1, 0x1, 0x40, 0x10},
		{hwgen.Xe3, 0x1, 0x1, 0x40, 0x10},
		// Bit 41 (leaf) and bit 43 (hit group) set: Xe sign extends
		{hwgen.Xe, 1 << 41, 1 << 43, 0xFFFF800000000000, 0xFFFF800000000000},
		{hwgen.Xe3, 1 << 41, 1 << 43, 0x0000800000000000, 0x0000800000000000},
		{hwgen.Xe, 0x3FFFFFFFFFF, 0xFFFFFFFFFFF, 0xFFFFFFFFFFFFFFC0, 0xFFFFFFFFFFFFFFF0},
		{hwgen.Xe3, 0x3FFFFFFFFFF, 0xFFFFFFFFFFF, 0x0000FFFFFFFFFFC0, 0x0000FFFFFFFFFFF0},
	}

	for index, sp := range specs {
		s := NewStack(sp.gen, SyncStack, 2)
		s.SetHit(false, HitRecord{PrimLeafPtr: sp.compact, InstLeafPtr: sp.compact, HitGroupRecPtr: sp.hitGroup})

		if got := s.PrimLeafPtr(false); got != sp.expLeaf {
			t.Fatalf("[spec %d] expected prim leaf address 0x%x; got 0x%x", index, sp.expLeaf, got)
		}
		if got := s.InstLeafPtr(false); got != sp.expLeaf {
			t.Fatalf("[spec %d] expected inst leaf address 0x%x; got 0x%x", index, sp.expLeaf, got)
		}
		if got := s.HitGroupRecPtr(false); got != sp.expHitGroupRec {
			t.Fatalf("[spec %d] expected hit group record address 0x%x; got 0x%x", index, sp.expHitGroupRec, got)
		}
		if s.PrimLeafPtr(true) != 0 {
			t.Fatalf("[spec %d] expected committed hit to be untouched", index)
		}
	}
}

func TestCommitPotentialHitIsIdempotent(t *testing.T) {
	for _, gen := range hwgen.All() {
		s := NewStack(gen, SyncStack, 2)
		s.SetHit(true, HitRecord{T: 100, Done: true})
		s.SetHit(false, sampleHit())

		s.CommitPotentialHit()
		once := append([]byte(nil), s.Bytes()[CommittedHitOffset:CommittedHitOffset+HitRecordSize]...)
		if s.Hit(true) != s.Hit(false) {
			t.Fatalf("[%s] expected committed hit %+v to match potential hit %+v", gen, s.Hit(true), s.Hit(false))
		}

		s.CommitPotentialHit()
		twice := s.Bytes()[CommittedHitOffset : CommittedHitOffset+HitRecordSize]
		if !bytes.Equal(once, twice) {
			t.Fatalf("[%s] expected second commit to leave the committed hit unchanged\n% x\n% x", gen, once, twice)
		}
	}
}
