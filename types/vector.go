package types

import (
	"math"

	"golang.org/x/image/math/f32"
)

type Vec3 f32.Vec3

// A 3x3 matrix stored as three column vectors. Instance leaves store their
// linear transforms this way so each column can be written as 3 floats.
type Mat3 [3]Vec3

// Define a 3 component vector.
func XYZ(x, y, z float32) Vec3 {
	return Vec3{x, y, z}
}

// Add a vector.
func (v Vec3) Add(v2 Vec3) Vec3 {
	return Vec3{v[0] + v2[0], v[1] + v2[1], v[2] + v2[2]}
}

// Subtract a vector.
func (v Vec3) Sub(v2 Vec3) Vec3 {
	return Vec3{v[0] - v2[0], v[1] - v2[1], v[2] - v2[2]}
}

// Multiply a 3 component vector with a scalar.
func (v Vec3) Mul(s float32) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Calculate dot product of 2 vectors
func (v Vec3) Dot(v2 Vec3) float32 {
	return v[0]*v2[0] + v[1]*v2[1] + v[2]*v2[2]
}

// Calculate cross product of 2 vectors.
func (v Vec3) Cross(v2 Vec3) Vec3 {
	return Vec3{v[1]*v2[2] - v[2]*v2[1], v[2]*v2[0] - v[0]*v2[2], v[0]*v2[1] - v[1]*v2[0]}
}

// Get 3 component vector length.
func (v Vec3) Len() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Calc min component from two vectors
func MinVec3(v1, v2 Vec3) Vec3 {
	out := v1
	for i := 0; i < 3; i++ {
		if v2[i] < out[i] {
			out[i] = v2[i]
		}
	}
	return out
}

// Calc max component from two vectors
func MaxVec3(v1, v2 Vec3) Vec3 {
	out := v1
	for i := 0; i < 3; i++ {
		if v2[i] > out[i] {
			out[i] = v2[i]
		}
	}
	return out
}

// Create an empty bounding box that any Union call will replace.
func EmptyBBox() [2]Vec3 {
	return [2]Vec3{
		{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Grow bbox so it also encloses other.
func UnionBBox(bbox, other [2]Vec3) [2]Vec3 {
	return [2]Vec3{MinVec3(bbox[0], other[0]), MaxVec3(bbox[1], other[1])}
}

// Half the surface area of a bounding box.
func HalfArea(bbox [2]Vec3) float32 {
	side := bbox[1].Sub(bbox[0])
	return side[0]*side[1] + side[1]*side[2] + side[0]*side[2]
}

// Identity matrix.
func Mat3Ident() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Multiply matrix with a column vector.
func (m Mat3) MulVec3(v Vec3) Vec3 {
	return m[0].Mul(v[0]).Add(m[1].Mul(v[1])).Add(m[2].Mul(v[2]))
}
