package bvh

import (
	"encoding/binary"
	"math"

	"github.com/achilleasa/rtstack/bitfield"
	"github.com/achilleasa/rtstack/types"
)

// Leaf record sizes. Every non-instance leaf shares one size class so a
// single block allocator can serve them all.
const (
	PrimLeafDescSize   = 8
	QuadLeafSize       = 64
	ProceduralLeafSize = 64
	MeshletSize        = 64
	InstanceLeafSize   = 2 * BlockSize

	// Maximum primitives referenced by a single procedural leaf block.
	MaxProceduralPrims = 13
)

const (
	_ uint = BlockSize - QuadLeafSize
	_ uint = QuadLeafSize - BlockSize
	_ uint = ProceduralLeafSize - QuadLeafSize
	_ uint = QuadLeafSize - ProceduralLeafSize
	_ uint = MeshletSize - QuadLeafSize
	_ uint = QuadLeafSize - MeshletSize
)

// Geometry kinds stored in the leaf descriptor type bit.
const (
	GeomTypeTriangles  uint8 = 0
	GeomTypeProcedural uint8 = 1
)

var (
	descShaderIndex = bitfield.Field{Name: "shaderIndex", Offset: 0, Size: 4, Shift: 0, Width: 24}
	descGeomMask    = bitfield.Field{Name: "geomMask", Offset: 0, Size: 4, Shift: 24, Width: 8}
	descGeomIndex   = bitfield.Field{Name: "geomIndex", Offset: 4, Size: 4, Shift: 0, Width: 29}
	descGeomType    = bitfield.Field{Name: "type", Offset: 4, Size: 4, Shift: 29, Width: 1}
	descGeomFlags   = bitfield.Field{Name: "geomFlags", Offset: 4, Size: 4, Shift: 30, Width: 2}
)

// PrimLeafDesc is the 8 byte header shared by quad, procedural and meshlet leaves.
type PrimLeafDesc struct {
	ShaderIndex uint32
	GeomMask    uint8
	GeomIndex   uint32
	GeomType    uint8
	GeomFlags   uint8
}

func (d *PrimLeafDesc) marshal(dst []byte) {
	binary.LittleEndian.PutUint64(dst, 0)
	descShaderIndex.Put(dst, uint64(d.ShaderIndex))
	descGeomMask.Put(dst, uint64(d.GeomMask))
	descGeomIndex.Put(dst, uint64(d.GeomIndex))
	descGeomType.Put(dst, uint64(d.GeomType))
	descGeomFlags.Put(dst, uint64(d.GeomFlags))
}

func (d *PrimLeafDesc) unmarshal(src []byte) {
	d.ShaderIndex = uint32(descShaderIndex.Get(src))
	d.GeomMask = uint8(descGeomMask.Get(src))
	d.GeomIndex = uint32(descGeomIndex.Get(src))
	d.GeomType = uint8(descGeomType.Get(src))
	d.GeomFlags = uint8(descGeomFlags.Get(src))
}

// Quad leaf layout (64 bytes):
//
//	[ 0.. 8) leaf descriptor
//	[ 8..12) primIndex0
//	[12..16) primIndex1Delta:16 | j0:2 | j1:2 | j2:2 | last:1 | pad:9
//	[16..64) 4 vertices, 3 x float32 each
var (
	quadPrimIndex0 = bitfield.Field{Name: "primIndex0", Offset: 8, Size: 4, Shift: 0, Width: 32}
	quadPrimDelta  = bitfield.Field{Name: "primIndex1Delta", Offset: 12, Size: 4, Shift: 0, Width: 16}
	quadJ          = [3]bitfield.Field{
		{Name: "j0", Offset: 12, Size: 4, Shift: 16, Width: 2},
		{Name: "j1", Offset: 12, Size: 4, Shift: 18, Width: 2},
		{Name: "j2", Offset: 12, Size: 4, Shift: 20, Width: 2},
	}
	quadLast = bitfield.Field{Name: "last", Offset: 12, Size: 4, Shift: 22, Width: 1}
)

const quadVertexOffset = 16

// A QuadLeaf stores two triangles sharing vertices. Triangle 0 uses vertices
// 0, 1, 2; triangle 1 picks its vertices through the J selectors. The second
// primitive index is delta encoded against the first.
type QuadLeaf struct {
	Desc            PrimLeafDesc
	PrimIndex0      uint32
	PrimIndex1Delta uint16
	J               [3]uint8
	Last            bool
	Vertices        [4]types.Vec3
}

func (l *QuadLeaf) SizeBytes() int {
	return QuadLeafSize
}

// PrimIndex1 returns the primitive index of the second triangle.
func (l *QuadLeaf) PrimIndex1() uint32 {
	return l.PrimIndex0 + uint32(l.PrimIndex1Delta)
}

// Triangle returns the vertices of triangle 0 or 1.
func (l *QuadLeaf) Triangle(i int) [3]types.Vec3 {
	if i == 0 {
		return [3]types.Vec3{l.Vertices[0], l.Vertices[1], l.Vertices[2]}
	}
	return [3]types.Vec3{l.Vertices[l.J[0]&3], l.Vertices[l.J[1]&3], l.Vertices[l.J[2]&3]}
}

func (l *QuadLeaf) MarshalBytes(dst []byte) []byte {
	_ = dst[QuadLeafSize-1]
	l.Desc.marshal(dst)
	binary.LittleEndian.PutUint32(dst[12:], 0)
	quadPrimIndex0.Put(dst, uint64(l.PrimIndex0))
	quadPrimDelta.Put(dst, uint64(l.PrimIndex1Delta))
	for i, f := range quadJ {
		f.Put(dst, uint64(l.J[i]))
	}
	quadLast.PutBool(dst, l.Last)
	putVertices(dst[quadVertexOffset:], l.Vertices[:])
	return dst[QuadLeafSize:]
}

func (l *QuadLeaf) UnmarshalBytes(src []byte) []byte {
	_ = src[QuadLeafSize-1]
	l.Desc.unmarshal(src)
	l.PrimIndex0 = uint32(quadPrimIndex0.Get(src))
	l.PrimIndex1Delta = uint16(quadPrimDelta.Get(src))
	for i, f := range quadJ {
		l.J[i] = uint8(f.Get(src))
	}
	l.Last = quadLast.GetBool(src)
	getVertices(src[quadVertexOffset:], l.Vertices[:])
	return src[QuadLeafSize:]
}

// Procedural leaf layout (64 bytes):
//
//	[ 0.. 8) leaf descriptor
//	[ 8..12) numPrimitives:4 | pad:15 | last:13
//	[12..64) 13 primitive indices
var (
	procNumPrims = bitfield.Field{Name: "numPrimitives", Offset: 8, Size: 4, Shift: 0, Width: 4}
	procLast     = bitfield.Field{Name: "last", Offset: 8, Size: 4, Shift: 19, Width: MaxProceduralPrims}
)

const procPrimIndexOffset = 12

// A ProceduralLeaf lists up to 13 primitive indices of a procedural
// geometry. A leaf may span several consecutive blocks; bit i of Last marks
// primitive i as the final primitive of the whole leaf.
type ProceduralLeaf struct {
	Desc          PrimLeafDesc
	NumPrimitives uint8
	Last          uint16
	PrimIndex     [MaxProceduralPrims]uint32
}

func (l *ProceduralLeaf) SizeBytes() int {
	return ProceduralLeafSize
}

// IsLast reports whether primitive i terminates the leaf.
func (l *ProceduralLeaf) IsLast(i int) bool {
	return l.Last&(1<<uint(i)) != 0
}

// Primitives returns the primitive indices stored in this block.
func (l *ProceduralLeaf) Primitives() []uint32 {
	n := int(l.NumPrimitives)
	if n > MaxProceduralPrims {
		n = MaxProceduralPrims
	}
	return l.PrimIndex[:n]
}

func (l *ProceduralLeaf) MarshalBytes(dst []byte) []byte {
	_ = dst[ProceduralLeafSize-1]
	l.Desc.marshal(dst)
	binary.LittleEndian.PutUint32(dst[8:], 0)
	procNumPrims.Put(dst, uint64(l.NumPrimitives))
	procLast.Put(dst, uint64(l.Last))
	for i, idx := range l.PrimIndex {
		binary.LittleEndian.PutUint32(dst[procPrimIndexOffset+4*i:], idx)
	}
	return dst[ProceduralLeafSize:]
}

func (l *ProceduralLeaf) UnmarshalBytes(src []byte) []byte {
	_ = src[ProceduralLeafSize-1]
	l.Desc.unmarshal(src)
	l.NumPrimitives = uint8(procNumPrims.Get(src))
	l.Last = uint16(procLast.Get(src))
	for i := range l.PrimIndex {
		l.PrimIndex[i] = binary.LittleEndian.Uint32(src[procPrimIndexOffset+4*i:])
	}
	return src[ProceduralLeafSize:]
}

// Instance leaf layout (128 bytes). Half 0 holds what traversal needs to
// enter the instance, half 1 what is only read at shading time.
//
//	half 0
//	[ 0.. 4) shaderIndex:24 | geomMask:8
//	[ 4.. 8) instanceContributionToHitGroupIndex:24 | pad:5 | disableOpacityCull:1 | opaqueCull:1 | pad:1
//	[ 8..16) startNodePtr:48 | instFlags:8 | pad:8
//	[16..52) world to object linear transform, 3 columns
//	[52..64) object to world translation
//	half 1
//	[64..72) bvhPtr
//	[72..76) instanceID
//	[76..80) instanceIndex
//	[80..116) object to world linear transform, 3 columns
//	[116..128) world to object translation
var (
	instShaderIndex        = bitfield.Field{Name: "shaderIndex", Offset: 0, Size: 4, Shift: 0, Width: 24}
	instGeomMask           = bitfield.Field{Name: "geomMask", Offset: 0, Size: 4, Shift: 24, Width: 8}
	instHitGroupContrib    = bitfield.Field{Name: "instanceContributionToHitGroupIndex", Offset: 4, Size: 4, Shift: 0, Width: 24}
	instDisableOpacityCull = bitfield.Field{Name: "disableOpacityCull", Offset: 4, Size: 4, Shift: 29, Width: 1}
	instOpaqueCull         = bitfield.Field{Name: "opaqueCull", Offset: 4, Size: 4, Shift: 30, Width: 1}
	instStartNodePtr       = bitfield.Field{Name: "startNodePtr", Offset: 8, Size: 8, Shift: 0, Width: 48}
	instFlags              = bitfield.Field{Name: "instFlags", Offset: 8, Size: 8, Shift: 48, Width: 8}
)

const (
	instWorldToObjOffset  = 16
	instObjToWorldPOffset = 52
	instBVHPtrOffset      = 64
	instIDOffset          = 72
	instIndexOffset       = 76
	instObjToWorldOffset  = 80
	instWorldToObjPOffset = 116
)

type InstanceLeaf struct {
	// Half 0: traversal.
	ShaderIndex                         uint32
	GeomMask                            uint8
	InstanceContributionToHitGroupIndex uint32
	DisableOpacityCull                  bool
	OpaqueCull                          bool
	StartNodePtr                        uint64
	InstFlags                           uint8
	WorldToObject                       types.Mat3
	ObjectToWorldTranslation            types.Vec3

	// Half 1: shading.
	BVHPtr                   uint64
	InstanceID               uint32
	InstanceIndex            uint32
	ObjectToWorld            types.Mat3
	WorldToObjectTranslation types.Vec3
}

func (l *InstanceLeaf) SizeBytes() int {
	return InstanceLeafSize
}

// ObjectRay transforms a world space ray into the instance's object space.
// Only half 0 is read.
func (l *InstanceLeaf) ObjectRay(org, dir types.Vec3) (types.Vec3, types.Vec3) {
	return l.WorldToObject.MulVec3(org.Sub(l.ObjectToWorldTranslation)), l.WorldToObject.MulVec3(dir)
}

func (l *InstanceLeaf) MarshalBytes(dst []byte) []byte {
	_ = dst[InstanceLeafSize-1]
	le := binary.LittleEndian

	le.PutUint64(dst[0:], 0)
	le.PutUint64(dst[8:], 0)
	instShaderIndex.Put(dst, uint64(l.ShaderIndex))
	instGeomMask.Put(dst, uint64(l.GeomMask))
	instHitGroupContrib.Put(dst, uint64(l.InstanceContributionToHitGroupIndex))
	instDisableOpacityCull.PutBool(dst, l.DisableOpacityCull)
	instOpaqueCull.PutBool(dst, l.OpaqueCull)
	instStartNodePtr.Put(dst, l.StartNodePtr)
	instFlags.Put(dst, uint64(l.InstFlags))
	putVertices(dst[instWorldToObjOffset:], l.WorldToObject[:])
	putVertices(dst[instObjToWorldPOffset:], []types.Vec3{l.ObjectToWorldTranslation})

	le.PutUint64(dst[instBVHPtrOffset:], l.BVHPtr)
	le.PutUint32(dst[instIDOffset:], l.InstanceID)
	le.PutUint32(dst[instIndexOffset:], l.InstanceIndex)
	putVertices(dst[instObjToWorldOffset:], l.ObjectToWorld[:])
	putVertices(dst[instWorldToObjPOffset:], []types.Vec3{l.WorldToObjectTranslation})

	return dst[InstanceLeafSize:]
}

func (l *InstanceLeaf) UnmarshalBytes(src []byte) []byte {
	_ = src[InstanceLeafSize-1]
	le := binary.LittleEndian

	l.ShaderIndex = uint32(instShaderIndex.Get(src))
	l.GeomMask = uint8(instGeomMask.Get(src))
	l.InstanceContributionToHitGroupIndex = uint32(instHitGroupContrib.Get(src))
	l.DisableOpacityCull = instDisableOpacityCull.GetBool(src)
	l.OpaqueCull = instOpaqueCull.GetBool(src)
	l.StartNodePtr = uint64(instStartNodePtr.GetSigned(src))
	l.InstFlags = uint8(instFlags.Get(src))
	getVertices(src[instWorldToObjOffset:], l.WorldToObject[:])
	var p [1]types.Vec3
	getVertices(src[instObjToWorldPOffset:], p[:])
	l.ObjectToWorldTranslation = p[0]

	l.BVHPtr = le.Uint64(src[instBVHPtrOffset:])
	l.InstanceID = le.Uint32(src[instIDOffset:])
	l.InstanceIndex = le.Uint32(src[instIndexOffset:])
	getVertices(src[instObjToWorldOffset:], l.ObjectToWorld[:])
	getVertices(src[instWorldToObjPOffset:], p[:])
	l.WorldToObjectTranslation = p[0]

	return src[InstanceLeafSize:]
}

func putVertices(dst []byte, verts []types.Vec3) {
	for i, v := range verts {
		for c := 0; c < 3; c++ {
			binary.LittleEndian.PutUint32(dst[12*i+4*c:], math.Float32bits(v[c]))
		}
	}
}

func getVertices(src []byte, verts []types.Vec3) {
	for i := range verts {
		for c := 0; c < 3; c++ {
			verts[i][c] = math.Float32frombits(binary.LittleEndian.Uint32(src[12*i+4*c:]))
		}
	}
}
