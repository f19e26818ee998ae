package types

import "testing"

func TestBBoxHelpers(t *testing.T) {
	bbox := EmptyBBox()
	bbox = UnionBBox(bbox, [2]Vec3{{-1, 0, 2}, {1, 1, 3}})
	bbox = UnionBBox(bbox, [2]Vec3{{0, -2, 0}, {0.5, 0, 1}})

	expBBox := [2]Vec3{{-1, -2, 0}, {1, 1, 3}}
	if bbox != expBBox {
		t.Fatalf("expected bbox to be %v; got %v", expBBox, bbox)
	}

	// side = {2, 3, 3} -> 6 + 9 + 6
	var expArea float32 = 21
	if area := HalfArea(bbox); area != expArea {
		t.Fatalf("expected half area to be %f; got %f", expArea, area)
	}
}

func TestMat3MulVec3(t *testing.T) {
	m := Mat3{{0, 1, 0}, {-1, 0, 0}, {0, 0, 2}}
	out := m.MulVec3(XYZ(1, 2, 3))

	expOut := XYZ(-2, 1, 6)
	if out != expOut {
		t.Fatalf("expected %v; got %v", expOut, out)
	}

	if out = Mat3Ident().MulVec3(expOut); out != expOut {
		t.Fatalf("expected identity transform to return %v; got %v", expOut, out)
	}
}
