package rtstack

import (
	"fmt"

	"github.com/achilleasa/rtstack/bitfield"
	"github.com/achilleasa/rtstack/hwgen"
)

// Stack is a view over one stack container. It does not own its memory and
// is not safe for concurrent use.
type Stack struct {
	gen     hwgen.Generation
	variant Variant
	levels  int
	buf     []byte

	hit *HitFields
	ray *RayFields
}

// NewStack allocates a zeroed stack container.
func NewStack(gen hwgen.Generation, variant Variant, levels int) *Stack {
	return StackAt(gen, variant, levels, make([]byte, StackSize(variant, levels)))
}

// StackAt returns a view over a container stored at the start of buf.
func StackAt(gen hwgen.Generation, variant Variant, levels int, buf []byte) *Stack {
	size := StackSize(variant, levels)
	if len(buf) < size {
		panic(fmt.Sprintf("rtstack: %d byte buffer cannot hold a %d byte %s stack", len(buf), size, variant))
	}

	return &Stack{
		gen:     gen,
		variant: variant,
		levels:  levels,
		buf:     buf[:size],
		hit:     hitLayout(gen),
		ray:     rayLayout(gen),
	}
}

// Generation returns the hardware generation whose layouts the stack uses.
func (s *Stack) Generation() hwgen.Generation {
	return s.gen
}

// Variant returns whether the container is a sync or an async stack.
func (s *Stack) Variant() Variant {
	return s.variant
}

// Levels returns the number of BVH levels the container holds.
func (s *Stack) Levels() int {
	return s.levels
}

// Bytes returns the underlying container bytes.
func (s *Stack) Bytes() []byte {
	return s.buf
}

func (s *Stack) hitBytes(committed bool) []byte {
	if committed {
		return s.buf[CommittedHitOffset : CommittedHitOffset+HitRecordSize]
	}
	return s.buf[PotentialHitOffset : PotentialHitOffset+HitRecordSize]
}

func (s *Stack) rayBytes(level int) []byte {
	if level < 0 || level >= s.levels {
		panic(fmt.Sprintf("rtstack: ray level %d outside of [0, %d)", level, s.levels))
	}
	off := RayOffset(level)
	return s.buf[off : off+RayRecordSize]
}

func (s *Stack) traversalBytes(level int) []byte {
	if s.variant != SyncStack {
		panic(fmt.Sprintf("rtstack: %s stacks have no traversal stack", s.variant))
	}
	if level < 0 || level >= s.levels {
		panic(fmt.Sprintf("rtstack: traversal level %d outside of [0, %d)", level, s.levels))
	}
	off := TraversalEntryOffset(s.levels, level)
	return s.buf[off : off+TraversalStackEntrySize]
}

// Hit decodes the committed or potential hit.
func (s *Stack) Hit(committed bool) HitRecord {
	return DecodeHit(s.gen, s.hitBytes(committed))
}

// SetHit encodes the committed or potential hit.
func (s *Stack) SetHit(committed bool, h HitRecord) {
	EncodeHit(s.gen, &h, s.hitBytes(committed))
}

// Ray decodes the ray for a BVH level; level 0 is the world space ray.
func (s *Stack) Ray(level int) RayRecord {
	return DecodeRay(s.gen, s.rayBytes(level))
}

// SetRay encodes the ray for a BVH level.
func (s *Stack) SetRay(level int, r RayRecord) {
	EncodeRay(s.gen, &r, s.rayBytes(level))
}

// TraversalEntry decodes the traversal stack entry for a BVH level.
func (s *Stack) TraversalEntry(level int) TraversalStackEntry {
	var e TraversalStackEntry
	e.UnmarshalBytes(s.traversalBytes(level))
	return e
}

// SetTraversalEntry encodes the traversal stack entry for a BVH level.
func (s *Stack) SetTraversalEntry(level int, e TraversalStackEntry) {
	e.MarshalBytes(s.traversalBytes(level))
}

// Barycentric returns barycentric coordinate idx (0 = u, 1 = v) of a hit.
func (s *Stack) Barycentric(idx int, committed bool) float32 {
	field := s.hit.U
	if idx != 0 {
		field = s.hit.V
	}
	return s.hit.barycentric(s.hitBytes(committed), field)
}

// PrimLeafPtr returns the byte address of the primitive leaf of a hit.
func (s *Stack) PrimLeafPtr(committed bool) uint64 {
	return s.hit.LeafAddress(s.hit.PrimLeafPtr.Get(s.hitBytes(committed)))
}

// InstLeafPtr returns the byte address of the instance leaf of a hit.
func (s *Stack) InstLeafPtr(committed bool) uint64 {
	return s.hit.LeafAddress(s.hit.InstLeafPtr.Get(s.hitBytes(committed)))
}

// HitGroupRecPtr returns the byte address of the hit group record of a hit.
func (s *Stack) HitGroupRecPtr(committed bool) uint64 {
	return s.hit.HitGroupRecordAddress(s.hit.HitGroupRecPtr.Get(s.hitBytes(committed)))
}

// CommitPotentialHit copies the potential hit onto the committed hit.
func (s *Stack) CommitPotentialHit() {
	committed, potential := s.hitBytes(true), s.hitBytes(false)

	// Xe3 records are moved as whole words; Xe copies field by field.
	if s.gen == hwgen.Xe3 {
		copy(committed, potential)
		return
	}

	for _, f := range s.hit.All() {
		f.Put(committed, f.Get(potential))
	}
}

// WorldRayOrigin returns component dim of the world space ray origin.
func (s *Stack) WorldRayOrigin(dim int) float32 {
	return s.ray.Org[dim].GetFloat32(s.rayBytes(0))
}

// WorldRayDirection returns component dim of the world space ray direction.
func (s *Stack) WorldRayDirection(dim int) float32 {
	return s.ray.Dir[dim].GetFloat32(s.rayBytes(0))
}

// ObjectRayOrigin returns component dim of the ray that was active when the
// selected hit was found: the world ray for top level hits, the instance
// (object space) ray otherwise.
func (s *Stack) ObjectRayOrigin(dim int, committed bool) float32 {
	return s.ray.Org[dim].GetFloat32(s.currentRay(committed))
}

// ObjectRayDirection is the direction counterpart of ObjectRayOrigin.
func (s *Stack) ObjectRayDirection(dim int, committed bool) float32 {
	return s.ray.Dir[dim].GetFloat32(s.currentRay(committed))
}

func (s *Stack) currentRay(committed bool) []byte {
	if s.hit.BVHLevel.Get(s.hitBytes(committed)) == 0 || s.levels < 2 {
		return s.rayBytes(0)
	}
	return s.rayBytes(1)
}

// RayFlags reads the world ray flags through their 16-bit alias.
func (s *Stack) RayFlags() uint16 {
	return uint16(s.ray.RayFlagsAlias.Get(s.rayBytes(0)))
}

// SetRayFlags writes the world ray flags through their 16-bit alias.
func (s *Stack) SetRayFlags(flags uint16) {
	s.ray.RayFlagsAlias.Put(s.rayBytes(0), uint64(flags))
}

// ShaderRayFlags returns the flags the shader passed to the trace call
// before any merging.
func (s *Stack) ShaderRayFlags() uint16 {
	return uint16(s.ray.ShaderRayFlagsAlias.Get(s.rayBytes(0)))
}

// TraceRayParams carries the arguments of a trace call.
type TraceRayParams struct {
	// Origin xyz, direction xyz, tnear, tfar.
	RayInfo [8]float32

	RootNodePtr     uint64
	RayFlags        uint16
	InstanceMask    uint8
	ComparisonValue uint8

	// Initial committed hit distance.
	TMax float32

	// OR the incoming flags with the flags already stored in the world ray.
	MergeFlags bool

	InitialDone bool
}

// InitTraceRay prepares the container for a new trace: the world ray is
// populated from p and both hit records lose their traversal state.
func (s *Stack) InitTraceRay(p TraceRayParams) {
	ray0 := s.rayBytes(0)
	f := s.ray

	for i := 0; i < 3; i++ {
		f.Org[i].PutFloat32(ray0, p.RayInfo[i])
		f.Dir[i].PutFloat32(ray0, p.RayInfo[3+i])
	}
	f.TNear.PutFloat32(ray0, p.RayInfo[6])
	f.TFar.PutFloat32(ray0, p.RayInfo[7])

	flags := p.RayFlags
	if p.MergeFlags {
		flags |= uint16(f.RayFlags.Get(ray0))
	}
	f.RootNodePtr.Put(ray0, p.RootNodePtr)
	f.RayFlags.Put(ray0, uint64(flags))
	f.RayMask.Put(ray0, uint64(p.InstanceMask))
	f.ComparisonValue.Put(ray0, uint64(p.ComparisonValue))
	f.ShaderRayFlagsAlias.Put(ray0, uint64(p.RayFlags))

	for _, committed := range []bool{true, false} {
		clearFields(s.hitBytes(committed), s.hit.Scratch())
	}
	s.hit.T.PutFloat32(s.hitBytes(true), p.TMax)
	s.hit.Done.PutBool(s.hitBytes(false), p.InitialDone)
}

func clearFields(b []byte, fields []bitfield.Field) {
	for _, f := range fields {
		f.Put(b, 0)
	}
}
