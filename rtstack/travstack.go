package rtstack

import (
	"fmt"

	"github.com/achilleasa/rtstack/bitfield"
	"github.com/achilleasa/rtstack/bvh"
)

// Number of in-flight children a traversal stack entry can hold.
const TraversalStackSlots = 4

// TraversalSlot is one spilled child reference. Offsets count 64 byte
// blocks and may be negative.
type TraversalSlot struct {
	Offset       int32
	LastChild    bool
	NodeType     bvh.NodeType
	CurPrim      uint8
	ParentOffset int32
}

// TraversalStackEntry holds the state needed to resume traversal at one BVH
// level.
//
// The bytes have two historical encodings. The canonical one keeps each
// slot in its own qword; the legacy one stores offset, lastChild and
// nodeType of every slot in the first four dwords and parentOffset plus
// curPrim in the next four.
type TraversalStackEntry struct {
	Slots [TraversalStackSlots]TraversalSlot
}

type slotFields struct {
	offset, lastChild, nodeType, curPrim, parentOffset bitfield.Field
}

func (s slotFields) all() []bitfield.Field {
	return []bitfield.Field{s.offset, s.lastChild, s.nodeType, s.curPrim, s.parentOffset}
}

func canonicalSlot(i int) slotFields {
	off := 8 * i
	return slotFields{
		offset:       bitfield.Field{Name: fmt.Sprintf("slot%d.offset", i), Offset: off, Size: 8, Shift: 0, Width: 27},
		lastChild:    bitfield.Field{Name: fmt.Sprintf("slot%d.lastChild", i), Offset: off, Size: 8, Shift: 27, Width: 1},
		nodeType:     bitfield.Field{Name: fmt.Sprintf("slot%d.nodeType", i), Offset: off, Size: 8, Shift: 28, Width: 3},
		curPrim:      bitfield.Field{Name: fmt.Sprintf("slot%d.curPrim", i), Offset: off, Size: 8, Shift: 31, Width: 4},
		parentOffset: bitfield.Field{Name: fmt.Sprintf("slot%d.parentOffset", i), Offset: off, Size: 8, Shift: 35, Width: 26},
	}
}

func legacySlot(i int) slotFields {
	lo := 4 * i
	hi := 4*TraversalStackSlots + 4*i
	return slotFields{
		offset:       bitfield.Field{Name: fmt.Sprintf("slot%d.offset", i), Offset: lo, Size: 4, Shift: 0, Width: 27},
		lastChild:    bitfield.Field{Name: fmt.Sprintf("slot%d.lastChild", i), Offset: lo, Size: 4, Shift: 27, Width: 1},
		nodeType:     bitfield.Field{Name: fmt.Sprintf("slot%d.nodeType", i), Offset: lo, Size: 4, Shift: 28, Width: 3},
		parentOffset: bitfield.Field{Name: fmt.Sprintf("slot%d.parentOffset", i), Offset: hi, Size: 4, Shift: 0, Width: 26},
		curPrim:      bitfield.Field{Name: fmt.Sprintf("slot%d.curPrim", i), Offset: hi, Size: 4, Shift: 26, Width: 4},
	}
}

var canonicalSlots, legacySlots = slotTables()

func slotTables() (canonical, legacy [TraversalStackSlots]slotFields) {
	for i := 0; i < TraversalStackSlots; i++ {
		canonical[i] = canonicalSlot(i)
		legacy[i] = legacySlot(i)
	}
	return canonical, legacy
}

// TraversalLayout returns the field descriptors of the canonical or the
// legacy traversal entry encoding.
func TraversalLayout(legacy bool) []bitfield.Field {
	slots := canonicalSlots
	if legacy {
		slots = legacySlots
	}
	var out []bitfield.Field
	for _, s := range slots {
		out = append(out, s.all()...)
	}
	return out
}

func (e *TraversalStackEntry) SizeBytes() int {
	return TraversalStackEntrySize
}

// MarshalBytes encodes the entry using the canonical layout and returns the
// remainder of dst.
func (e *TraversalStackEntry) MarshalBytes(dst []byte) []byte {
	return e.marshal(dst, &canonicalSlots)
}

// UnmarshalBytes decodes a canonical entry and returns the remainder of src.
func (e *TraversalStackEntry) UnmarshalBytes(src []byte) []byte {
	return e.unmarshal(src, &canonicalSlots)
}

// MarshalLegacyBytes encodes the entry using the legacy split layout.
func (e *TraversalStackEntry) MarshalLegacyBytes(dst []byte) []byte {
	return e.marshal(dst, &legacySlots)
}

// UnmarshalLegacyBytes decodes an entry stored in the legacy split layout.
func (e *TraversalStackEntry) UnmarshalLegacyBytes(src []byte) []byte {
	return e.unmarshal(src, &legacySlots)
}

func (e *TraversalStackEntry) marshal(dst []byte, layout *[TraversalStackSlots]slotFields) []byte {
	_ = dst[TraversalStackEntrySize-1]
	clear(dst[:TraversalStackEntrySize])

	for i, f := range layout {
		slot := &e.Slots[i]
		f.offset.PutSigned(dst, int64(slot.Offset))
		f.lastChild.PutBool(dst, slot.LastChild)
		f.nodeType.Put(dst, uint64(slot.NodeType))
		f.curPrim.Put(dst, uint64(slot.CurPrim))
		f.parentOffset.PutSigned(dst, int64(slot.ParentOffset))
	}
	return dst[TraversalStackEntrySize:]
}

func (e *TraversalStackEntry) unmarshal(src []byte, layout *[TraversalStackSlots]slotFields) []byte {
	_ = src[TraversalStackEntrySize-1]

	for i, f := range layout {
		e.Slots[i] = TraversalSlot{
			Offset:       int32(f.offset.GetSigned(src)),
			LastChild:    f.lastChild.GetBool(src),
			NodeType:     bvh.NodeType(f.nodeType.Get(src)),
			CurPrim:      uint8(f.curPrim.Get(src)),
			ParentOffset: int32(f.parentOffset.GetSigned(src)),
		}
	}
	return src[TraversalStackEntrySize:]
}

// ChildAddress returns the byte address referenced by a slot, relative to
// the address of the node that spilled it.
func (e *TraversalStackEntry) ChildAddress(slot int, nodeAddr uint64) uint64 {
	return nodeAddr + uint64(int64(e.Slots[slot].Offset)*bvh.BlockSize)
}

// ConvertLegacy rewrites a legacy encoded entry in place using the canonical
// layout.
func ConvertLegacy(buf []byte) {
	var e TraversalStackEntry
	e.UnmarshalLegacyBytes(buf)
	e.MarshalBytes(buf)
}
