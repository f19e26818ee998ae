package rtstack

import (
	"github.com/achilleasa/rtstack/bitfield"
	"github.com/achilleasa/rtstack/hwgen"
	"github.com/achilleasa/rtstack/types"
)

// RayFields locates every ray record field for one generation.
type RayFields struct {
	Org, Dir    [3]bitfield.Field
	TNear, TFar bitfield.Field

	RootNodePtr           bitfield.Field
	RayFlags              bitfield.Field
	HitGroupSRBasePtr     bitfield.Field
	HitGroupSRStride      bitfield.Field
	MissSRPtr             bitfield.Field
	ShaderIndexMultiplier bitfield.Field
	MissShaderIndex       bitfield.Field
	InstLeafPtr           bitfield.Field
	RayMask               bitfield.Field
	ComparisonValue       bitfield.Field
	ComparisonMode        bitfield.Field

	// 16-bit views over bits that also belong to a wider field. RayFlagsAlias
	// covers RayFlags; ShaderRayFlagsAlias reuses the low bits of
	// InstLeafPtr, which the world space ray never needs.
	RayFlagsAlias       bitfield.Field
	ShaderRayFlagsAlias bitfield.Field
}

// All returns every field except the aliases.
func (f *RayFields) All() []bitfield.Field {
	out := make([]bitfield.Field, 0, 19)
	out = append(out, f.Org[:]...)
	out = append(out, f.Dir[:]...)
	return append(out,
		f.TNear, f.TFar, f.RootNodePtr, f.RayFlags, f.HitGroupSRBasePtr, f.HitGroupSRStride,
		f.MissSRPtr, f.ShaderIndexMultiplier, f.MissShaderIndex, f.InstLeafPtr, f.RayMask,
		f.ComparisonValue, f.ComparisonMode,
	)
}

func floatField(name string, offset int) bitfield.Field {
	return bitfield.Field{Name: name, Offset: offset, Size: 4, Width: 32}
}

func newRayFields() RayFields {
	return RayFields{
		Org:   [3]bitfield.Field{floatField("org.x", 0), floatField("org.y", 4), floatField("org.z", 8)},
		Dir:   [3]bitfield.Field{floatField("dir.x", 12), floatField("dir.y", 16), floatField("dir.z", 20)},
		TNear: floatField("tnear", 24),
		TFar:  floatField("tfar", 28),

		RootNodePtr:       bitfield.Field{Name: "rootNodePtr", Offset: 32, Size: 8, Shift: 0, Width: 48},
		RayFlags:          bitfield.Field{Name: "rayFlags", Offset: 32, Size: 8, Shift: 48, Width: 16},
		HitGroupSRBasePtr: bitfield.Field{Name: "hitGroupSRBasePtr", Offset: 40, Size: 8, Shift: 0, Width: 48},
		HitGroupSRStride:  bitfield.Field{Name: "hitGroupSRStride", Offset: 40, Size: 8, Shift: 48, Width: 16},
		MissSRPtr:         bitfield.Field{Name: "missSRPtr", Offset: 48, Size: 8, Shift: 0, Width: 48},
		InstLeafPtr:       bitfield.Field{Name: "instLeafPtr", Offset: 56, Size: 8, Shift: 0, Width: 48},
		RayMask:           bitfield.Field{Name: "rayMask", Offset: 56, Size: 8, Shift: 48, Width: 8},

		RayFlagsAlias:       bitfield.Field{Name: "rayFlags16", Offset: 38, Size: 2, Width: 16},
		ShaderRayFlagsAlias: bitfield.Field{Name: "shaderRayFlags", Offset: 56, Size: 2, Width: 16},
	}
}

var rayLayouts = func() [2]RayFields {
	xe := newRayFields()
	xe.ShaderIndexMultiplier = bitfield.Field{Name: "shaderIndexMultiplier", Offset: 48, Size: 8, Shift: 56, Width: 8}

	xe3 := newRayFields()
	xe3.MissShaderIndex = bitfield.Field{Name: "missShaderIndex", Offset: 48, Size: 8, Shift: 48, Width: 16}
	xe3.ComparisonValue = bitfield.Field{Name: "comparisonValue", Offset: 56, Size: 8, Shift: 56, Width: 7}
	xe3.ComparisonMode = bitfield.Field{Name: "comparisonMode", Offset: 56, Size: 8, Shift: 63, Width: 1}

	var out [2]RayFields
	out[hwgen.Xe] = xe
	out[hwgen.Xe3] = xe3
	return out
}()

// RayLayout returns the ray record field table for a generation.
func RayLayout(gen hwgen.Generation) RayFields {
	return *rayLayout(gen)
}

func rayLayout(gen hwgen.Generation) *RayFields {
	gen.MustBeValid()
	return &rayLayouts[gen]
}

// RayRecord is the decoded form of a ray. Pointers are returned as
// canonical (sign extended) 64-bit addresses.
type RayRecord struct {
	Org, Dir    types.Vec3
	TNear, TFar float32

	RootNodePtr           uint64
	RayFlags              uint16
	HitGroupSRBasePtr     uint64
	HitGroupSRStride      uint16
	MissSRPtr             uint64
	ShaderIndexMultiplier uint8
	MissShaderIndex       uint16
	InstLeafPtr           uint64
	RayMask               uint8
	ComparisonValue       uint8
	ComparisonMode        bool
}

// EncodeRay writes r into the first RayRecordSize bytes of dst. Fields the
// generation does not have are dropped.
func EncodeRay(gen hwgen.Generation, r *RayRecord, dst []byte) {
	f := rayLayout(gen)
	_ = dst[RayRecordSize-1]
	clear(dst[:RayRecordSize])

	for i := 0; i < 3; i++ {
		f.Org[i].PutFloat32(dst, r.Org[i])
		f.Dir[i].PutFloat32(dst, r.Dir[i])
	}
	f.TNear.PutFloat32(dst, r.TNear)
	f.TFar.PutFloat32(dst, r.TFar)
	f.RootNodePtr.Put(dst, r.RootNodePtr)
	f.RayFlags.Put(dst, uint64(r.RayFlags))
	f.HitGroupSRBasePtr.Put(dst, r.HitGroupSRBasePtr)
	f.HitGroupSRStride.Put(dst, uint64(r.HitGroupSRStride))
	f.MissSRPtr.Put(dst, r.MissSRPtr)
	f.ShaderIndexMultiplier.Put(dst, uint64(r.ShaderIndexMultiplier))
	f.MissShaderIndex.Put(dst, uint64(r.MissShaderIndex))
	f.InstLeafPtr.Put(dst, r.InstLeafPtr)
	f.RayMask.Put(dst, uint64(r.RayMask))
	f.ComparisonValue.Put(dst, uint64(r.ComparisonValue))
	f.ComparisonMode.PutBool(dst, r.ComparisonMode)
}

// DecodeRay reads a ray record from the first RayRecordSize bytes of src.
func DecodeRay(gen hwgen.Generation, src []byte) RayRecord {
	f := rayLayout(gen)
	_ = src[RayRecordSize-1]

	var r RayRecord
	for i := 0; i < 3; i++ {
		r.Org[i] = f.Org[i].GetFloat32(src)
		r.Dir[i] = f.Dir[i].GetFloat32(src)
	}
	r.TNear = f.TNear.GetFloat32(src)
	r.TFar = f.TFar.GetFloat32(src)
	r.RootNodePtr = uint64(f.RootNodePtr.GetSigned(src))
	r.RayFlags = uint16(f.RayFlags.Get(src))
	r.HitGroupSRBasePtr = uint64(f.HitGroupSRBasePtr.GetSigned(src))
	r.HitGroupSRStride = uint16(f.HitGroupSRStride.Get(src))
	r.MissSRPtr = uint64(f.MissSRPtr.GetSigned(src))
	r.ShaderIndexMultiplier = uint8(f.ShaderIndexMultiplier.Get(src))
	r.MissShaderIndex = uint16(f.MissShaderIndex.Get(src))
	r.InstLeafPtr = uint64(f.InstLeafPtr.GetSigned(src))
	r.RayMask = uint8(f.RayMask.Get(src))
	r.ComparisonValue = uint8(f.ComparisonValue.Get(src))
	r.ComparisonMode = f.ComparisonMode.GetBool(src)
	return r
}
