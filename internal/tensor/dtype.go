package tensor

import (
	"strings"

	"diffai/internal/errors"
)

// DType identifies the element type of a tensor buffer.
type DType string

const (
	// F64 is a 64-bit IEEE 754 float
	F64 DType = "f64"
	// F32 is a 32-bit IEEE 754 float
	F32 DType = "f32"
	// F16 is a 16-bit IEEE 754 half-precision float (widened to f64)
	F16 DType = "f16"
	// BF16 is a 16-bit brain float (widened to f64)
	BF16 DType = "bf16"
	// I64 is a 64-bit signed integer
	I64 DType = "i64"
	// U32 is a 32-bit unsigned integer
	U32 DType = "u32"
	// U8 is an 8-bit unsigned integer
	U8 DType = "u8"
	// C64 is a complex number of two 32-bit floats
	C64 DType = "complex64"
	// C128 is a complex number of two 64-bit floats
	C128 DType = "complex128"
)

// dtypeWidths maps each dtype to its per-element byte width.
// A complex element counts as one element of two underlying scalars.
var dtypeWidths = map[DType]int64{
	F64:  8,
	F32:  4,
	F16:  2,
	BF16: 2,
	I64:  8,
	U32:  4,
	U8:   1,
	C64:  8,
	C128: 16,
}

// Width returns the per-element byte width, or an UnsupportedDtype error.
func (d DType) Width() (int64, error) {
	w, ok := dtypeWidths[d]
	if !ok {
		return 0, errors.Newf(errors.StatsUnsupportedDtype, "unsupported dtype %q", string(d))
	}
	return w, nil
}

// IsComplex reports whether each element maps to two underlying scalars.
func (d DType) IsComplex() bool {
	return d == C64 || d == C128
}

// String returns the stable dtype label carried in statistics records.
func (d DType) String() string {
	return string(d)
}

// ParseDType normalizes numpy ("<f4") and torch ("float32") dtype tags
// to the canonical enumeration. Single-letter width suffixes follow the
// numpy array-protocol convention, so "i8" is an eight-byte integer.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimLeft(s, "<>=|")) {
	case "f64", "float64", "double", "f8":
		return F64, nil
	case "f32", "float32", "float", "f4":
		return F32, nil
	case "f16", "float16", "half", "f2":
		return F16, nil
	case "bf16", "bfloat16":
		return BF16, nil
	case "i64", "int64", "long", "i8":
		return I64, nil
	case "u32", "uint32", "u4":
		return U32, nil
	case "u8", "uint8", "u1":
		return U8, nil
	case "complex64", "c64", "c8":
		return C64, nil
	case "complex128", "c128", "c16":
		return C128, nil
	}
	return "", errors.Newf(errors.StatsUnsupportedDtype, "unsupported dtype %q", s)
}
