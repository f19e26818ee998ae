// Package bitfield describes hardware bitfields as explicit (offset, shift,
// width) descriptors over little-endian words instead of relying on packed
// struct layouts.
package bitfield

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"sort"

	"golang.org/x/exp/constraints"
)

// Field locates a bit range inside a little-endian word of a record.
//
// A zero Width marks a field that does not exist in a particular layout;
// reading it yields 0 and writing it is a no-op. This lets generations with
// different field lists share one accessor table.
type Field struct {
	Name string

	// Byte offset of the containing word, relative to the record start.
	Offset int

	// Containing word size in bytes: 2, 4 or 8.
	Size int

	Shift uint
	Width uint
}

// Extract returns width bits of word starting at shift.
func Extract[T constraints.Unsigned](word T, shift, width uint) T {
	if width == 0 {
		return 0
	}
	return (word >> shift) & mask[T](width)
}

// Insert replaces width bits of word starting at shift with the low bits of v.
func Insert[T constraints.Unsigned](word T, shift, width uint, v T) T {
	if width == 0 {
		return word
	}
	m := mask[T](width)
	return word&^(m<<shift) | (v&m)<<shift
}

func mask[T constraints.Unsigned](width uint) T {
	all := ^T(0)
	wordBits := uint(bits.Len64(uint64(all)))
	if width >= wordBits {
		return all
	}
	return all >> (wordBits - width)
}

// SignExtend interprets the low width bits of v as a two's complement value.
func SignExtend(v uint64, width uint) int64 {
	if width == 0 {
		return 0
	}
	shift := 64 - width
	return int64(v<<shift) >> shift
}

// Present reports whether the field exists in its layout.
func (f Field) Present() bool {
	return f.Width != 0
}

// Mask returns the field mask, already shifted into position.
func (f Field) Mask() uint64 {
	return mask[uint64](f.Width) << f.Shift
}

// Span returns the half-open range of absolute bit positions covered by the field.
func (f Field) Span() (lo, hi int) {
	lo = f.Offset*8 + int(f.Shift)
	return lo, lo + int(f.Width)
}

// Get reads the field from a record buffer.
func (f Field) Get(b []byte) uint64 {
	if f.Width == 0 {
		return 0
	}

	switch f.Size {
	case 2:
		return uint64(Extract(binary.LittleEndian.Uint16(b[f.Offset:]), f.Shift, f.Width))
	case 4:
		return uint64(Extract(binary.LittleEndian.Uint32(b[f.Offset:]), f.Shift, f.Width))
	case 8:
		return Extract(binary.LittleEndian.Uint64(b[f.Offset:]), f.Shift, f.Width)
	default:
		panic(fmt.Sprintf("bitfield: field %s has unsupported word size %d", f.Name, f.Size))
	}
}

// Put writes the low Width bits of v into the record buffer, leaving all
// other bits of the containing word untouched.
func (f Field) Put(b []byte, v uint64) {
	if f.Width == 0 {
		return
	}

	switch f.Size {
	case 2:
		w := binary.LittleEndian.Uint16(b[f.Offset:])
		binary.LittleEndian.PutUint16(b[f.Offset:], Insert(w, f.Shift, f.Width, uint16(v)))
	case 4:
		w := binary.LittleEndian.Uint32(b[f.Offset:])
		binary.LittleEndian.PutUint32(b[f.Offset:], Insert(w, f.Shift, f.Width, uint32(v)))
	case 8:
		w := binary.LittleEndian.Uint64(b[f.Offset:])
		binary.LittleEndian.PutUint64(b[f.Offset:], Insert(w, f.Shift, f.Width, v))
	default:
		panic(fmt.Sprintf("bitfield: field %s has unsupported word size %d", f.Name, f.Size))
	}
}

// GetSigned reads the field as a two's complement value.
func (f Field) GetSigned(b []byte) int64 {
	return SignExtend(f.Get(b), f.Width)
}

// PutSigned writes a two's complement value, truncated to the field width.
func (f Field) PutSigned(b []byte, v int64) {
	f.Put(b, uint64(v))
}

// GetBool reads a single bit field.
func (f Field) GetBool(b []byte) bool {
	return f.Get(b) != 0
}

// PutBool writes a single bit field.
func (f Field) PutBool(b []byte, v bool) {
	var bit uint64
	if v {
		bit = 1
	}
	f.Put(b, bit)
}

// GetFloat32 reads a 32-bit field holding an IEEE-754 float.
func (f Field) GetFloat32(b []byte) float32 {
	return math.Float32frombits(uint32(f.Get(b)))
}

// PutFloat32 writes an IEEE-754 float into a 32-bit field.
func (f Field) PutFloat32(b []byte, v float32) {
	f.Put(b, uint64(math.Float32bits(v)))
}

// Split is a value scattered over several fields, least significant piece first.
type Split []Field

// Width returns the total number of bits stored by all pieces.
func (s Split) Width() uint {
	var width uint
	for _, f := range s {
		width += f.Width
	}
	return width
}

// Get reassembles the value from its pieces.
func (s Split) Get(b []byte) uint64 {
	var (
		v     uint64
		shift uint
	)
	for _, f := range s {
		v |= f.Get(b) << shift
		shift += f.Width
	}
	return v
}

// Put scatters v over the pieces.
func (s Split) Put(b []byte, v uint64) {
	for _, f := range s {
		f.Put(b, v)
		v >>= f.Width
	}
}

// CheckDisjoint verifies that every present field lies inside a record of
// the given size, uses a naturally aligned word and does not share any bit
// with another field.
func CheckDisjoint(recordSize int, fields ...Field) error {
	type span struct {
		lo, hi int
		name   string
	}

	spans := make([]span, 0, len(fields))
	for _, f := range fields {
		if !f.Present() {
			continue
		}

		switch f.Size {
		case 2, 4, 8:
		default:
			return fmt.Errorf("bitfield: field %s has unsupported word size %d", f.Name, f.Size)
		}
		if f.Offset%f.Size != 0 {
			return fmt.Errorf("bitfield: field %s word at offset %d is not %d byte aligned", f.Name, f.Offset, f.Size)
		}
		if f.Shift+f.Width > uint(f.Size*8) {
			return fmt.Errorf("bitfield: field %s (shift %d, width %d) overflows its %d byte word", f.Name, f.Shift, f.Width, f.Size)
		}
		if f.Offset < 0 || f.Offset+f.Size > recordSize {
			return fmt.Errorf("bitfield: field %s word at offset %d exceeds the %d byte record", f.Name, f.Offset, recordSize)
		}

		lo, hi := f.Span()
		spans = append(spans, span{lo, hi, f.Name})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })
	for i := 1; i < len(spans); i++ {
		if spans[i].lo < spans[i-1].hi {
			return fmt.Errorf("bitfield: field %s overlaps field %s", spans[i].name, spans[i-1].name)
		}
	}

	return nil
}
