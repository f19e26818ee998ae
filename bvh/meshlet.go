package bvh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/achilleasa/rtstack/bitfield"
	"github.com/achilleasa/rtstack/types"
)

var (
	ErrMeshletCapacity = errors.New("bvh: meshlet vertex deltas do not fit the 256-bit stream")
	ErrMeshletVertices = errors.New("bvh: meshlet needs between 3 and 63 vertices")
	ErrMeshletScale    = errors.New("bvh: meshlet scale must be positive")
)

// Compressed meshlet layout (64 bytes):
//
//	[ 0.. 8) leaf descriptor
//	[ 8..12) primIndexBase
//	[12..16) numVertices:6 | deltaBits:5 | last:1 | pad:20
//	[16..28) origin, 3 x float32
//	[28..32) scale
//	[32..64) vertex delta bit stream
var (
	meshPrimBase    = bitfield.Field{Name: "primIndexBase", Offset: 8, Size: 4, Shift: 0, Width: 32}
	meshNumVertices = bitfield.Field{Name: "numVertices", Offset: 12, Size: 4, Shift: 0, Width: 6}
	meshDeltaBits   = bitfield.Field{Name: "deltaBits", Offset: 12, Size: 4, Shift: 6, Width: 5}
	meshLast        = bitfield.Field{Name: "last", Offset: 12, Size: 4, Shift: 11, Width: 1}
	meshScale       = bitfield.Field{Name: "scale", Offset: 28, Size: 4, Shift: 0, Width: 32}
)

const (
	meshOriginOffset = 16
	meshStreamOffset = 32
	meshStreamBytes  = MeshletSize - meshStreamOffset
	meshStreamBits   = 8 * meshStreamBytes

	maxMeshletVertices = 1<<6 - 1
	maxDeltaBits       = 1<<5 - 1
)

// A CompressedMeshlet stores a triangle fan. Vertices are snapped to a grid
// with spacing Scale anchored at Origin (the first vertex); every following
// vertex is stored as a signed per-axis delta from its predecessor. Triangle
// k is (v0, v[k+1], v[k+2]) with primitive index PrimIndexBase+k.
type CompressedMeshlet struct {
	Desc          PrimLeafDesc
	PrimIndexBase uint32
	NumVertices   uint8
	DeltaBits     uint8
	Last          bool
	Origin        types.Vec3
	Scale         float32
	Stream        [meshStreamBytes]byte
}

// NewCompressedMeshlet quantizes a triangle fan. Vertices are rounded to the
// nearest grid point; ErrMeshletCapacity is returned when the deltas need
// more bits than the stream holds.
func NewCompressedMeshlet(desc PrimLeafDesc, primIndexBase uint32, verts []types.Vec3, scale float32) (*CompressedMeshlet, error) {
	if len(verts) < 3 || len(verts) > maxMeshletVertices {
		return nil, ErrMeshletVertices
	}
	if !(scale > 0) {
		return nil, ErrMeshletScale
	}

	m := &CompressedMeshlet{
		Desc:          desc,
		PrimIndexBase: primIndexBase,
		NumVertices:   uint8(len(verts)),
		Origin:        verts[0],
		Scale:         scale,
	}

	deltas := make([]int64, 0, 3*(len(verts)-1))
	var prev [3]int64
	for _, v := range verts[1:] {
		for axis := 0; axis < 3; axis++ {
			q := int64(math.Round(float64(v[axis]-m.Origin[axis]) / float64(scale)))
			deltas = append(deltas, q-prev[axis])
			prev[axis] = q
		}
	}

	var width uint = 1
	for _, d := range deltas {
		if w := signedBits(d); w > width {
			width = w
		}
	}
	if width > maxDeltaBits || uint(len(deltas))*width > meshStreamBits {
		return nil, fmt.Errorf("%w: %d vertices need %d bits per delta", ErrMeshletCapacity, len(verts), width)
	}

	m.DeltaBits = uint8(width)
	for i, d := range deltas {
		writeBits(m.Stream[:], uint(i)*width, width, uint64(d))
	}
	return m, nil
}

// Number of bits required to hold v as a two's complement value.
func signedBits(v int64) uint {
	if v < 0 {
		v = ^v
	}
	for w := uint(1); w < 64; w++ {
		if v < 1<<(w-1) {
			return w
		}
	}
	return 64
}

func (m *CompressedMeshlet) SizeBytes() int {
	return MeshletSize
}

// NumTriangles returns the number of fan triangles.
func (m *CompressedMeshlet) NumTriangles() int {
	if m.NumVertices < 3 {
		return 0
	}
	return int(m.NumVertices) - 2
}

// Vertices decodes all fan vertices.
func (m *CompressedMeshlet) Vertices() []types.Vec3 {
	if m.NumVertices == 0 {
		return nil
	}

	out := make([]types.Vec3, m.NumVertices)
	out[0] = m.Origin
	width := uint(m.DeltaBits)
	var q [3]int64
	for i := 1; i < int(m.NumVertices); i++ {
		for axis := 0; axis < 3; axis++ {
			pos := uint(3*(i-1)+axis) * width
			q[axis] += bitfield.SignExtend(readBits(m.Stream[:], pos, width), width)
			out[i][axis] = m.Origin[axis] + float32(q[axis])*m.Scale
		}
	}
	return out
}

// Triangle returns the primitive index and vertices of fan triangle k.
func (m *CompressedMeshlet) Triangle(k int) (uint32, [3]types.Vec3) {
	if k < 0 || k >= m.NumTriangles() {
		panic(fmt.Sprintf("bvh: meshlet triangle %d out of range [0, %d)", k, m.NumTriangles()))
	}
	v := m.Vertices()
	return m.PrimIndexBase + uint32(k), [3]types.Vec3{v[0], v[k+1], v[k+2]}
}

func (m *CompressedMeshlet) MarshalBytes(dst []byte) []byte {
	_ = dst[MeshletSize-1]
	m.Desc.marshal(dst)
	binary.LittleEndian.PutUint32(dst[12:], 0)
	meshPrimBase.Put(dst, uint64(m.PrimIndexBase))
	meshNumVertices.Put(dst, uint64(m.NumVertices))
	meshDeltaBits.Put(dst, uint64(m.DeltaBits))
	meshLast.PutBool(dst, m.Last)
	putVertices(dst[meshOriginOffset:], []types.Vec3{m.Origin})
	meshScale.PutFloat32(dst, m.Scale)
	copy(dst[meshStreamOffset:MeshletSize], m.Stream[:])
	return dst[MeshletSize:]
}

func (m *CompressedMeshlet) UnmarshalBytes(src []byte) []byte {
	_ = src[MeshletSize-1]
	m.Desc.unmarshal(src)
	m.PrimIndexBase = uint32(meshPrimBase.Get(src))
	m.NumVertices = uint8(meshNumVertices.Get(src))
	m.DeltaBits = uint8(meshDeltaBits.Get(src))
	m.Last = meshLast.GetBool(src)
	var origin [1]types.Vec3
	getVertices(src[meshOriginOffset:], origin[:])
	m.Origin = origin[0]
	m.Scale = meshScale.GetFloat32(src)
	copy(m.Stream[:], src[meshStreamOffset:MeshletSize])
	return src[MeshletSize:]
}

// Bit streams are little-endian: bit pos lives in byte pos/8 at bit pos%8.
func writeBits(stream []byte, pos, width uint, v uint64) {
	for i := uint(0); i < width; i++ {
		b := pos + i
		stream[b/8] = bitfield.Insert(stream[b/8], b%8, 1, uint8(v>>i))
	}
}

func readBits(stream []byte, pos, width uint) uint64 {
	var v uint64
	for i := uint(0); i < width; i++ {
		b := pos + i
		v |= uint64(bitfield.Extract(stream[b/8], b%8, 1)) << i
	}
	return v
}
