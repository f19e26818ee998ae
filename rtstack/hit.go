package rtstack

import (
	"github.com/achilleasa/rtstack/bitfield"
	"github.com/achilleasa/rtstack/bvh"
	"github.com/achilleasa/rtstack/hwgen"
)

// HitFields locates every hit record field for one generation. Fields that a
// generation lacks have a zero width.
type HitFields struct {
	T, U, V         bitfield.Field
	PrimIndexDelta  bitfield.Field
	LeafNodeSubType bitfield.Field
	Valid           bitfield.Field
	LeafType        bitfield.Field
	PrimLeafIndex   bitfield.Field
	BVHLevel        bitfield.Field
	FrontFace       bitfield.Field
	Done            bitfield.Field
	PrimLeafPtr     bitfield.Field
	InstLeafPtr     bitfield.Field
	HitGroupRecPtr  bitfield.Split

	// Barycentrics are stored as 24-bit unorm instead of float32.
	UnormBarycentrics bool

	// Compact pointers are sign extended before scaling.
	CanonicalPointers bool
}

// All returns every field, split pieces included.
func (f *HitFields) All() []bitfield.Field {
	out := []bitfield.Field{
		f.T, f.U, f.V, f.PrimIndexDelta, f.LeafNodeSubType, f.Valid, f.LeafType,
		f.PrimLeafIndex, f.BVHLevel, f.FrontFace, f.Done, f.PrimLeafPtr, f.InstLeafPtr,
	}
	return append(out, f.HitGroupRecPtr...)
}

// Scratch returns the fields reset when a new trace starts: everything but
// the hit distance and barycentrics.
func (f *HitFields) Scratch() []bitfield.Field {
	out := []bitfield.Field{
		f.PrimIndexDelta, f.LeafNodeSubType, f.Valid, f.LeafType, f.PrimLeafIndex,
		f.BVHLevel, f.FrontFace, f.Done, f.PrimLeafPtr, f.InstLeafPtr,
	}
	return append(out, f.HitGroupRecPtr...)
}

// Both generations share the pointer qwords at 16 and 24.
var (
	hitPrimLeafPtr = bitfield.Field{Name: "primLeafPtr", Offset: 16, Size: 8, Shift: 0, Width: 42}
	hitInstLeafPtr = bitfield.Field{Name: "instLeafPtr", Offset: 24, Size: 8, Shift: 0, Width: 42}
	hitGroupRecPtr = bitfield.Split{
		{Name: "hitGroupRecPtr0", Offset: 16, Size: 8, Shift: 42, Width: 22},
		{Name: "hitGroupRecPtr1", Offset: 24, Size: 8, Shift: 42, Width: 22},
	}
)

var hitLayouts = [...]HitFields{
	hwgen.Xe: {
		T:              bitfield.Field{Name: "t", Offset: 0, Size: 4, Width: 32},
		U:              bitfield.Field{Name: "u", Offset: 4, Size: 4, Width: 32},
		V:              bitfield.Field{Name: "v", Offset: 8, Size: 4, Width: 32},
		PrimIndexDelta: bitfield.Field{Name: "primIndexDelta", Offset: 12, Size: 4, Shift: 0, Width: 16},
		Valid:          bitfield.Field{Name: "valid", Offset: 12, Size: 4, Shift: 16, Width: 1},
		LeafType:       bitfield.Field{Name: "leafType", Offset: 12, Size: 4, Shift: 17, Width: 3},
		PrimLeafIndex:  bitfield.Field{Name: "primLeafIndex", Offset: 12, Size: 4, Shift: 20, Width: 4},
		BVHLevel:       bitfield.Field{Name: "bvhLevel", Offset: 12, Size: 4, Shift: 24, Width: 3},
		FrontFace:      bitfield.Field{Name: "frontFace", Offset: 12, Size: 4, Shift: 27, Width: 1},
		Done:           bitfield.Field{Name: "done", Offset: 12, Size: 4, Shift: 28, Width: 1},
		PrimLeafPtr:    hitPrimLeafPtr,
		InstLeafPtr:    hitInstLeafPtr,
		HitGroupRecPtr: hitGroupRecPtr,

		CanonicalPointers: true,
	},
	hwgen.Xe3: {
		T:               bitfield.Field{Name: "t", Offset: 0, Size: 4, Width: 32},
		U:               bitfield.Field{Name: "u", Offset: 4, Size: 4, Shift: 0, Width: 24},
		PrimIndexDelta:  bitfield.Field{Name: "primIndexDelta", Offset: 4, Size: 4, Shift: 24, Width: 8},
		V:               bitfield.Field{Name: "v", Offset: 8, Size: 4, Shift: 0, Width: 24},
		LeafNodeSubType: bitfield.Field{Name: "leafNodeSubType", Offset: 8, Size: 4, Shift: 24, Width: 4},
		Valid:           bitfield.Field{Name: "valid", Offset: 12, Size: 4, Shift: 0, Width: 1},
		LeafType:        bitfield.Field{Name: "leafType", Offset: 12, Size: 4, Shift: 1, Width: 3},
		PrimLeafIndex:   bitfield.Field{Name: "primLeafIndex", Offset: 12, Size: 4, Shift: 4, Width: 4},
		BVHLevel:        bitfield.Field{Name: "bvhLevel", Offset: 12, Size: 4, Shift: 8, Width: 3},
		FrontFace:       bitfield.Field{Name: "frontFace", Offset: 12, Size: 4, Shift: 11, Width: 1},
		Done:            bitfield.Field{Name: "done", Offset: 12, Size: 4, Shift: 12, Width: 1},
		PrimLeafPtr:     hitPrimLeafPtr,
		InstLeafPtr:     hitInstLeafPtr,
		HitGroupRecPtr:  hitGroupRecPtr,

		UnormBarycentrics: true,
	},
}

// HitLayout returns the hit record field table for a generation.
func HitLayout(gen hwgen.Generation) HitFields {
	return *hitLayout(gen)
}

func hitLayout(gen hwgen.Generation) *HitFields {
	gen.MustBeValid()
	return &hitLayouts[gen]
}

// HitRecord is the decoded form of a committed or potential hit. Pointer
// fields hold the raw compact values; use the Stack accessors or the
// HitFields helpers to obtain byte addresses.
type HitRecord struct {
	T, U, V         float32
	PrimIndexDelta  uint32
	LeafNodeSubType uint8
	Valid           bool
	LeafType        bvh.NodeType
	PrimLeafIndex   uint8
	BVHLevel        uint8
	FrontFace       bool
	Done            bool
	PrimLeafPtr     uint64
	InstLeafPtr     uint64
	HitGroupRecPtr  uint64
}

// EncodeHit writes h into the first HitRecordSize bytes of dst using the
// generation's layout. Padding bits are cleared.
func EncodeHit(gen hwgen.Generation, h *HitRecord, dst []byte) {
	f := hitLayout(gen)
	_ = dst[HitRecordSize-1]
	clear(dst[:HitRecordSize])

	f.T.PutFloat32(dst, h.T)
	f.putBarycentric(dst, f.U, h.U)
	f.putBarycentric(dst, f.V, h.V)
	f.PrimIndexDelta.Put(dst, uint64(h.PrimIndexDelta))
	f.LeafNodeSubType.Put(dst, uint64(h.LeafNodeSubType))
	f.Valid.PutBool(dst, h.Valid)
	f.LeafType.Put(dst, uint64(h.LeafType))
	f.PrimLeafIndex.Put(dst, uint64(h.PrimLeafIndex))
	f.BVHLevel.Put(dst, uint64(h.BVHLevel))
	f.FrontFace.PutBool(dst, h.FrontFace)
	f.Done.PutBool(dst, h.Done)
	f.PrimLeafPtr.Put(dst, h.PrimLeafPtr)
	f.InstLeafPtr.Put(dst, h.InstLeafPtr)
	f.HitGroupRecPtr.Put(dst, h.HitGroupRecPtr)
}

// DecodeHit reads a hit record from the first HitRecordSize bytes of src.
func DecodeHit(gen hwgen.Generation, src []byte) HitRecord {
	f := hitLayout(gen)
	_ = src[HitRecordSize-1]

	return HitRecord{
		T:               f.T.GetFloat32(src),
		U:               f.barycentric(src, f.U),
		V:               f.barycentric(src, f.V),
		PrimIndexDelta:  uint32(f.PrimIndexDelta.Get(src)),
		LeafNodeSubType: uint8(f.LeafNodeSubType.Get(src)),
		Valid:           f.Valid.GetBool(src),
		LeafType:        bvh.NodeType(f.LeafType.Get(src)),
		PrimLeafIndex:   uint8(f.PrimLeafIndex.Get(src)),
		BVHLevel:        uint8(f.BVHLevel.Get(src)),
		FrontFace:       f.FrontFace.GetBool(src),
		Done:            f.Done.GetBool(src),
		PrimLeafPtr:     f.PrimLeafPtr.Get(src),
		InstLeafPtr:     f.InstLeafPtr.Get(src),
		HitGroupRecPtr:  f.HitGroupRecPtr.Get(src),
	}
}

func (f *HitFields) barycentric(src []byte, field bitfield.Field) float32 {
	if f.UnormBarycentrics {
		return bitfield.DecodeUnorm24(uint32(field.Get(src)))
	}
	return field.GetFloat32(src)
}

func (f *HitFields) putBarycentric(dst []byte, field bitfield.Field, v float32) {
	if f.UnormBarycentrics {
		field.Put(dst, uint64(bitfield.EncodeUnorm24(v)))
		return
	}
	field.PutFloat32(dst, v)
}

// LeafAddress converts a compact leaf pointer into a byte address.
func (f *HitFields) LeafAddress(compact uint64) uint64 {
	return f.scale(compact, f.PrimLeafPtr.Width, hwgen.LeafGranularity)
}

// HitGroupRecordAddress converts a compact hit group record pointer into a
// byte address.
func (f *HitFields) HitGroupRecordAddress(compact uint64) uint64 {
	return f.scale(compact, f.HitGroupRecPtr.Width(), hwgen.HitGroupRecordGranularity)
}

func (f *HitFields) scale(compact uint64, width uint, granularity uint64) uint64 {
	if f.CanonicalPointers {
		return uint64(bitfield.SignExtend(compact, width)) * granularity
	}
	return bitfield.Extract(compact, 0, width) * granularity
}
