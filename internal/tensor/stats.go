package tensor

import (
	"encoding/binary"
	"math"

	"diffai/internal/errors"
)

// chunkElements bounds how many elements are decoded per pass so peak
// memory stays O(chunk) regardless of tensor size.
const chunkElements = 65536

// Stats holds the summary statistics derived from one tensor handle.
// Std is the population standard deviation, not sample.
type Stats struct {
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Shape       []int64 `json:"shape"`
	DType       string  `json:"dtype"`
	TotalParams int64   `json:"total_params"`
}

// welford accumulates mean and variance in a single numerically stable
// pass (running count, running mean, running sum of squared deviations).
type welford struct {
	count int64
	mean  float64
	m2    float64
	min   float64
	max   float64
}

func newWelford() *welford {
	return &welford{min: math.NaN(), max: math.NaN()}
}

func (w *welford) add(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (x - w.mean)

	// math.Min/Max propagate NaN, surfacing contamination instead of
	// hiding it. The first sample seeds both bounds.
	if w.count == 1 {
		w.min = x
		w.max = x
		return
	}
	w.min = math.Min(w.min, x)
	w.max = math.Max(w.max, x)
}

func (w *welford) std() float64 {
	if w.count == 0 {
		return math.NaN()
	}
	return math.Sqrt(w.m2 / float64(w.count))
}

// ComputeStats streams the handle's buffer in fixed-size chunks and
// returns its summary statistics. An empty tensor yields all-NaN
// statistics without erroring. Integer and half-precision dtypes are
// widened to f64; complex dtypes accumulate over element magnitudes.
func ComputeStats(h *Handle) (*Stats, error) {
	width, err := h.DType.Width()
	if err != nil {
		return nil, err
	}

	count := h.ElementCount()
	if int64(len(h.data)) != count*width {
		return nil, errors.Newf(errors.StatsMisaligned,
			"tensor %q: buffer is %d bytes, want %d (%d elements x %d bytes)",
			h.Name, len(h.data), count*width, count, width)
	}

	shape := make([]int64, len(h.Shape))
	copy(shape, h.Shape)

	if count == 0 {
		return &Stats{
			Mean:        math.NaN(),
			Std:         math.NaN(),
			Min:         math.NaN(),
			Max:         math.NaN(),
			Shape:       shape,
			DType:       h.DType.String(),
			TotalParams: 0,
		}, nil
	}

	acc := newWelford()
	for start := int64(0); start < count; start += chunkElements {
		end := start + chunkElements
		if end > count {
			end = count
		}
		chunk := h.data[start*width : end*width]
		accumulateChunk(acc, chunk, h.DType, width)
	}

	return &Stats{
		Mean:        acc.mean,
		Std:         acc.std(),
		Min:         acc.min,
		Max:         acc.max,
		Shape:       shape,
		DType:       h.DType.String(),
		TotalParams: count,
	}, nil
}

// accumulateChunk decodes one chunk of raw little-endian elements and
// feeds them to the accumulator.
func accumulateChunk(acc *welford, chunk []byte, dtype DType, width int64) {
	n := int64(len(chunk)) / width
	for i := int64(0); i < n; i++ {
		raw := chunk[i*width : (i+1)*width]
		acc.add(decodeElement(raw, dtype))
	}
}

func decodeElement(raw []byte, dtype DType) float64 {
	switch dtype {
	case F64:
		return math.Float64frombits(binary.LittleEndian.Uint64(raw))
	case F32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
	case F16:
		return float16ToFloat64(binary.LittleEndian.Uint16(raw))
	case BF16:
		return bfloat16ToFloat64(binary.LittleEndian.Uint16(raw))
	case I64:
		return float64(int64(binary.LittleEndian.Uint64(raw)))
	case U32:
		return float64(binary.LittleEndian.Uint32(raw))
	case U8:
		return float64(raw[0])
	case C64:
		re := float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[0:4])))
		im := float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4:8])))
		return math.Hypot(re, im)
	case C128:
		re := math.Float64frombits(binary.LittleEndian.Uint64(raw[0:8]))
		im := math.Float64frombits(binary.LittleEndian.Uint64(raw[8:16]))
		return math.Hypot(re, im)
	}
	return math.NaN()
}

// float16ToFloat64 widens an IEEE 754 half-precision value.
func float16ToFloat64(bits uint16) float64 {
	sign := uint64(bits>>15) & 1
	exp := uint64(bits>>10) & 0x1f
	frac := uint64(bits) & 0x3ff

	var f64bits uint64
	switch {
	case exp == 0 && frac == 0:
		f64bits = sign << 63
	case exp == 0:
		// Subnormal: renormalize into the f64 exponent range.
		e := int64(-14)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		f64bits = sign<<63 | uint64(e+1023)<<52 | frac<<42
	case exp == 0x1f && frac == 0:
		f64bits = sign<<63 | 0x7ff<<52 // Inf
	case exp == 0x1f:
		f64bits = sign<<63 | 0x7ff<<52 | frac<<42 // NaN
	default:
		f64bits = sign<<63 | (exp-15+1023)<<52 | frac<<42
	}
	return math.Float64frombits(f64bits)
}

// bfloat16ToFloat64 widens a brain float, which is the top half of an f32.
func bfloat16ToFloat64(bits uint16) float64 {
	return float64(math.Float32frombits(uint32(bits) << 16))
}
