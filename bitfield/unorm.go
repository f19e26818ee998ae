package bitfield

// Largest value of a 24-bit unsigned normalized integer; it decodes to 1.0.
const Unorm24Max = 0x00FFFFFF

// EncodeUnorm24 converts a value in [0, 1] to 24-bit fixed point, rounding
// to the nearest step. Values outside the range are clamped.
func EncodeUnorm24(f float32) uint32 {
	switch {
	case !(f > 0): // also catches NaN
		return 0
	case f >= 1:
		return Unorm24Max
	}
	return uint32(float64(f)*Unorm24Max + 0.5)
}

// DecodeUnorm24 returns raw * (1/0x00FFFFFF) computed in single precision.
// Bits above the low 24 are ignored.
func DecodeUnorm24(raw uint32) float32 {
	return float32(raw&Unorm24Max) * float32(1.0/Unorm24Max)
}
