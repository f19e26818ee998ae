// Package hotzone encodes the small per-thread records that stay resident in
// cache for the lifetime of a dispatch. A record tracks the thread's stack
// offset and dispatch index; three encodings exist, all 16 bytes long.
package hotzone

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/achilleasa/rtstack/bitfield"
	"github.com/achilleasa/rtstack/hwgen"
)

// RecordSize is the size of a hot zone record for every variant.
const RecordSize = 16

const _ uint = 0 - RecordSize%hwgen.HotZoneWriteGranularity

// Largest dispatch (x * y * z) whose indices are guaranteed to fit the
// packed v1 encoding.
const MaxPackedDispatchSize = 1 << 30

var (
	ErrDispatchIndexOverflow = errors.New("hotzone: dispatch index does not fit the packed encoding")
	ErrStackOffsetRange      = errors.New("hotzone: stack offset does not fit the record")
)

// Variant selects a hot zone encoding.
type Variant uint8

const (
	// V1 packs the dispatch index into 32 bits and records the bits used
	// per dimension in a 16-bit budge word.
	V1 Variant = iota + 1

	// V2 stores the dispatch index as three plain dwords.
	V2

	// V3 extends V2 with a completion flag.
	V3
)

// Implements Stringer.
func (v Variant) String() string {
	switch v {
	case V1, V2, V3:
		return fmt.Sprintf("v%d", uint8(v))
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// ParseVariant maps "v1", "v2" or "v3" to a Variant.
func ParseVariant(name string) (Variant, error) {
	for _, v := range []Variant{V1, V2, V3} {
		if v.String() == name {
			return v, nil
		}
	}
	return 0, fmt.Errorf("hotzone: unknown variant %q", name)
}

type layout struct {
	stackOffset bitfield.Field
	budge       [3]bitfield.Field
	packed      bitfield.Field
	index       [3]bitfield.Field
	done        bitfield.Field
}

func (l *layout) fields() []bitfield.Field {
	out := []bitfield.Field{l.stackOffset, l.packed, l.done}
	out = append(out, l.budge[:]...)
	return append(out, l.index[:]...)
}

func plainIndex() [3]bitfield.Field {
	return [3]bitfield.Field{
		{Name: "dispatchIndex.x", Offset: 4, Size: 4, Width: 32},
		{Name: "dispatchIndex.y", Offset: 8, Size: 4, Width: 32},
		{Name: "dispatchIndex.z", Offset: 12, Size: 4, Width: 32},
	}
}

var layouts = map[Variant]*layout{
	V1: {
		stackOffset: bitfield.Field{Name: "stackOffset", Offset: 0, Size: 2, Width: 16},
		budge: [3]bitfield.Field{
			{Name: "budge.x", Offset: 2, Size: 2, Shift: 0, Width: 5},
			{Name: "budge.y", Offset: 2, Size: 2, Shift: 5, Width: 5},
			{Name: "budge.z", Offset: 2, Size: 2, Shift: 10, Width: 5},
		},
		packed: bitfield.Field{Name: "packedDispatchIndex", Offset: 4, Size: 4, Width: 32},
	},
	V2: {
		stackOffset: bitfield.Field{Name: "stackOffset", Offset: 0, Size: 4, Width: 32},
		index:       plainIndex(),
	},
	V3: {
		stackOffset: bitfield.Field{Name: "stackOffset", Offset: 0, Size: 2, Width: 16},
		done:        bitfield.Field{Name: "done", Offset: 2, Size: 2, Shift: 0, Width: 1},
		index:       plainIndex(),
	},
}

func init() {
	for v, l := range layouts {
		if err := bitfield.CheckDisjoint(RecordSize, l.fields()...); err != nil {
			panic(fmt.Sprintf("hotzone: %s layout: %v", v, err))
		}
	}
}

func layoutFor(v Variant) *layout {
	l, ok := layouts[v]
	if !ok {
		panic(fmt.Sprintf("hotzone: unsupported variant %d", uint8(v)))
	}
	return l
}

// Fields returns the field descriptors of a variant.
func Fields(v Variant) []bitfield.Field {
	var out []bitfield.Field
	for _, f := range layoutFor(v).fields() {
		if f.Present() {
			out = append(out, f)
		}
	}
	return out
}

// Record is the decoded form of a hot zone entry. Done is only stored by V3.
type Record struct {
	StackOffset   uint32
	DispatchIndex [3]uint32
	Done          bool
}

// Encode writes r into the first RecordSize bytes of dst. V1 fails with
// ErrDispatchIndexOverflow when the indices need more than 32 bits in total.
func Encode(v Variant, r Record, dst []byte) error {
	l := layoutFor(v)
	_ = dst[RecordSize-1]

	if uint64(r.StackOffset) > l.stackOffset.Mask() {
		return fmt.Errorf("%w: offset %d exceeds %d bits", ErrStackOffsetRange, r.StackOffset, l.stackOffset.Width)
	}

	if !l.packed.Present() {
		clear(dst[:RecordSize])
		l.stackOffset.Put(dst, uint64(r.StackOffset))
		l.done.PutBool(dst, r.Done)
		for i, f := range l.index {
			f.Put(dst, uint64(r.DispatchIndex[i]))
		}
		return nil
	}

	var (
		packed uint64
		shift  uint
	)
	budge := [3]uint{}
	for i, value := range r.DispatchIndex {
		used := uint(bits.Len32(value))
		if used > uint(l.budge[i].Mask()>>l.budge[i].Shift) || shift+used > l.packed.Width {
			return fmt.Errorf("%w: index (%d, %d, %d)", ErrDispatchIndexOverflow, r.DispatchIndex[0], r.DispatchIndex[1], r.DispatchIndex[2])
		}
		packed |= uint64(value) << shift
		budge[i] = used
		shift += used
	}

	clear(dst[:RecordSize])
	l.stackOffset.Put(dst, uint64(r.StackOffset))
	for i, f := range l.budge {
		f.Put(dst, uint64(budge[i]))
	}
	l.packed.Put(dst, packed)
	return nil
}

// Decode reads a record from the first RecordSize bytes of src.
func Decode(v Variant, src []byte) Record {
	l := layoutFor(v)
	_ = src[RecordSize-1]

	r := Record{
		StackOffset: uint32(l.stackOffset.Get(src)),
		Done:        l.done.GetBool(src),
	}
	for dim := range r.DispatchIndex {
		r.DispatchIndex[dim] = DispatchIndex(v, src, dim)
	}
	return r
}

// DispatchIndex decodes a single dispatch index component.
func DispatchIndex(v Variant, src []byte, dim int) uint32 {
	l := layoutFor(v)
	if !l.packed.Present() {
		return uint32(l.index[dim].Get(src))
	}

	var prior uint
	for i := 0; i < dim; i++ {
		prior += uint(l.budge[i].Get(src))
	}
	width := uint(l.budge[dim].Get(src))
	return uint32(bitfield.Extract(l.packed.Get(src), prior, width))
}

// SelectVariant picks the encoding for a dispatch. The packed encoding is
// only used when bit compression is enabled and the dispatch is small enough
// for its indices to always fit; otherwise the plain encoding is used.
func SelectVariant(compression bool, dims [3]uint32) Variant {
	if compression && dispatchSize(dims) <= MaxPackedDispatchSize {
		return V1
	}
	return V2
}

func dispatchSize(dims [3]uint32) uint64 {
	size := uint64(1)
	for _, d := range dims {
		hi, lo := bits.Mul64(size, uint64(d))
		if hi != 0 {
			return ^uint64(0)
		}
		size = lo
	}
	return size
}
