package hotzone

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestPackedRoundTrip(t *testing.T) {
	dimSpecs := [][3]uint32{
		{1024, 1024, 1024},
		{1 << 30, 1, 1},
		{1, 1, 1 << 30},
		{3, 5, 7},
		{65535, 16384, 1},
		{1000, 1000, 1000},
	}

	buf := make([]byte, RecordSize)
	for index, dims := range dimSpecs {
		if SelectVariant(true, dims) != V1 {
			t.Fatalf("[spec %d] expected dims %v to select v1", index, dims)
		}

		var candidates [3][]uint32
		for d := 0; d < 3; d++ {
			candidates[d] = []uint32{0, dims[d] / 2, dims[d] - 1}
		}
		for _, x := range candidates[0] {
			for _, y := range candidates[1] {
				for _, z := range candidates[2] {
					in := Record{StackOffset: 0xFFFF, DispatchIndex: [3]uint32{x, y, z}}
					if err := Encode(V1, in, buf); err != nil {
						t.Fatalf("[spec %d] encoding %v: %v", index, in.DispatchIndex, err)
					}
					for dim := 0; dim < 3; dim++ {
						if got := DispatchIndex(V1, buf, dim); got != in.DispatchIndex[dim] {
							t.Fatalf("[spec %d] expected index[%d] of %v to decode to %d; got %d", index, dim, in.DispatchIndex, in.DispatchIndex[dim], got)
						}
					}
					if out := Decode(V1, buf); out != in {
						t.Fatalf("[spec %d] expected %+v; got %+v", index, in, out)
					}
				}
			}
		}
	}
}

func TestPackedEncoding(t *testing.T) {
	buf := make([]byte, RecordSize)
	if err := Encode(V1, Record{StackOffset: 0x1234, DispatchIndex: [3]uint32{5, 0, 3}}, buf); err != nil {
		t.Fatal(err)
	}

	// x uses 3 bits, y none, z 2 bits starting at bit 3
	if got := binary.LittleEndian.Uint16(buf[0:]); got != 0x1234 {
		t.Fatalf("expected stack offset 0x1234; got 0x%x", got)
	}
	if got := binary.LittleEndian.Uint16(buf[2:]); got != 3|0<<5|2<<10 {
		t.Fatalf("expected budge with x=3, y=0 and z=2 used bits (0x%x); got 0x%x", 3|0<<5|2<<10, got)
	}
	if got := binary.LittleEndian.Uint32(buf[4:]); got != 5|3<<3 {
		t.Fatalf("expected packed index 0x%x; got 0x%x", 5|3<<3, got)
	}
	for _, b := range buf[8:] {
		if b != 0 {
			t.Fatalf("expected reserved bytes to be clear; got % x", buf)
		}
	}
}

func TestPackedEncodingErrors(t *testing.T) {
	buf := make([]byte, RecordSize)

	type spec struct {
		record Record
		expErr error
	}
	specs := []spec{
		// 31 + 1 + 1 bits
		{Record{DispatchIndex: [3]uint32{1 << 30, 1, 1}}, ErrDispatchIndexOverflow},
		// A single 32-bit value cannot be described by a 5-bit budge
		{Record{DispatchIndex: [3]uint32{1 << 31, 0, 0}}, ErrDispatchIndexOverflow},
		{Record{StackOffset: 1 << 16}, ErrStackOffsetRange},
	}
	for index, s := range specs {
		if err := Encode(V1, s.record, buf); !errors.Is(err, s.expErr) {
			t.Fatalf("[spec %d] expected error %v; got %v", index, s.expErr, err)
		}
	}

	if err := Encode(V3, Record{StackOffset: 1 << 16}, buf); !errors.Is(err, ErrStackOffsetRange) {
		t.Fatalf("expected v3 to reject a 17-bit stack offset; got %v", err)
	}
	if err := Encode(V2, Record{StackOffset: 1 << 16}, buf); err != nil {
		t.Fatalf("expected v2 to accept a 17-bit stack offset; got %v", err)
	}
}

func TestPlainVariants(t *testing.T) {
	buf := make([]byte, RecordSize)

	in := Record{StackOffset: 0xABCDEF, DispatchIndex: [3]uint32{0xFFFFFFFF, 7, 1 << 31}, Done: true}
	if err := Encode(V2, in, buf); err != nil {
		t.Fatal(err)
	}
	exp := in
	exp.Done = false
	if out := Decode(V2, buf); out != exp {
		t.Fatalf("expected %+v; got %+v", exp, out)
	}
	if binary.LittleEndian.Uint32(buf[12:]) != 1<<31 {
		t.Fatalf("expected z index at offset 12; got % x", buf)
	}

	in.StackOffset = 0x0800
	if err := Encode(V3, in, buf); err != nil {
		t.Fatal(err)
	}
	if out := Decode(V3, buf); out != in {
		t.Fatalf("expected %+v; got %+v", in, out)
	}
	if binary.LittleEndian.Uint16(buf[2:]) != 1 {
		t.Fatalf("expected done flag in bit 0 of the flags word; got % x", buf[2:4])
	}
}

func TestSelectVariant(t *testing.T) {
	type spec struct {
		compression bool
		dims        [3]uint32
		exp         Variant
	}
	specs := []spec{
		{true, [3]uint32{1024, 1024, 1024}, V1},
		{true, [3]uint32{1024, 1024, 1025}, V2},
		{false, [3]uint32{1, 1, 1}, V2},
		{true, [3]uint32{0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF}, V2},
		{true, [3]uint32{0, 0xFFFFFFFF, 0xFFFFFFFF}, V1},
	}
	for index, s := range specs {
		if got := SelectVariant(s.compression, s.dims); got != s.exp {
			t.Fatalf("[spec %d] expected %s; got %s", index, s.exp, got)
		}
	}
}

func TestParseVariant(t *testing.T) {
	for _, v := range []Variant{V1, V2, V3} {
		got, err := ParseVariant(v.String())
		if err != nil || got != v {
			t.Fatalf("expected %s; got %s (%v)", v, got, err)
		}
	}
	if _, err := ParseVariant("v4"); err == nil {
		t.Fatal("expected unknown variant to be rejected")
	}
	if len(Fields(V1)) != 5 || len(Fields(V2)) != 4 || len(Fields(V3)) != 5 {
		t.Fatalf("unexpected field counts %d/%d/%d", len(Fields(V1)), len(Fields(V2)), len(Fields(V3)))
	}
}
