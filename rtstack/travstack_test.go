package rtstack

import (
	"encoding/binary"
	"testing"

	"github.com/achilleasa/rtstack/bvh"
)

func sampleEntry() TraversalStackEntry {
	return TraversalStackEntry{
		Slots: [TraversalStackSlots]TraversalSlot{
			{Offset: 1, LastChild: false, NodeType: bvh.NodeTypeInternal, CurPrim: 0, ParentOffset: -1},
			{Offset: -(1 << 26), LastChild: true, NodeType: bvh.NodeTypeQuad, CurPrim: 15, ParentOffset: 1<<25 - 1},
			{Offset: 1<<26 - 1, LastChild: false, NodeType: bvh.NodeTypeInvalid, CurPrim: 7, ParentOffset: -(1 << 25)},
			{Offset: -42, LastChild: true, NodeType: bvh.NodeTypeInstance, CurPrim: 1, ParentOffset: 0},
		},
	}
}

func TestTraversalEntryCanonicalLayout(t *testing.T) {
	e := sampleEntry()
	buf := make([]byte, TraversalStackEntrySize)
	if rest := e.MarshalBytes(buf); len(rest) != 0 {
		t.Fatalf("expected marshal to consume %d bytes; %d left", TraversalStackEntrySize, len(rest))
	}

	var decoded TraversalStackEntry
	decoded.UnmarshalBytes(buf)
	if decoded != e {
		t.Fatalf("expected %+v; got %+v", e, decoded)
	}

	// Slot 3: offset -42 in bits 0..26, lastChild bit 27, nodeType bits 28..30
	qword := binary.LittleEndian.Uint64(buf[24:])
	if qword&(1<<27-1) != (1<<27)-42 {
		t.Fatalf("expected slot 3 offset bits 0x%x; got 0x%x", (1<<27)-42, qword&(1<<27-1))
	}
	if (qword>>27)&1 != 1 || (qword>>28)&7 != uint64(bvh.NodeTypeInstance) || (qword>>31)&0xF != 1 {
		t.Fatalf("unexpected slot 3 encoding 0x%016x", qword)
	}
	if qword>>61 != 0 {
		t.Fatalf("expected slot 3 padding to be clear; got 0x%016x", qword)
	}
}

func TestTraversalEntryLegacyLayout(t *testing.T) {
	e := sampleEntry()
	buf := make([]byte, TraversalStackEntrySize)
	e.MarshalLegacyBytes(buf)

	var decoded TraversalStackEntry
	decoded.UnmarshalLegacyBytes(buf)
	if decoded != e {
		t.Fatalf("expected %+v; got %+v", e, decoded)
	}

	// parentOffset and curPrim of slot 1 share the dword at 20
	dword := binary.LittleEndian.Uint32(buf[20:])
	if dword&(1<<26-1) != 1<<25-1 || (dword>>26)&0xF != 15 {
		t.Fatalf("unexpected legacy slot 1 high dword 0x%08x", dword)
	}

	// Converting to the canonical layout preserves every slot
	ConvertLegacy(buf)
	var canonical TraversalStackEntry
	canonical.UnmarshalBytes(buf)
	if canonical != e {
		t.Fatalf("expected converted entry %+v; got %+v", e, canonical)
	}

	expBuf := make([]byte, TraversalStackEntrySize)
	e.MarshalBytes(expBuf)
	for i := range buf {
		if buf[i] != expBuf[i] {
			t.Fatalf("expected converted bytes % x; got % x", expBuf, buf)
		}
	}
}

func TestTraversalEntryChildAddress(t *testing.T) {
	e := sampleEntry()

	type spec struct {
		slot int
		base uint64
		exp  uint64
	}
	specs := []spec{
		{0, 0x1000, 0x1040},
		{3, 0x1000, 0x1000 - 42*64},
		{1, 0x100000000, 0x100000000 - (1<<26)*64},
	}
	for index, s := range specs {
		if got := e.ChildAddress(s.slot, s.base); got != s.exp {
			t.Fatalf("[spec %d] expected 0x%x; got 0x%x", index, s.exp, got)
		}
	}
}
