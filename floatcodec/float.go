// Package floatcodec implements the float64 array codec: per-element
// special-value side-channel, sign bitmap, configurable-precision
// exponent/mantissa packing, and three exponent-correlation modes.
//
// Wire format (spec §3.6/§4.6/§6): a byte-exact 4-byte header
// `[precision][exp_bits][mant_bits][mode]`, a special-value bitmap
// (one bit per element, MSB-first within each byte), the special
// elements' raw float64 bits stored verbatim in encounter order, a
// sign bitmap over the remaining (normal) elements, the exponent
// stream (shape depends on mode), and the truncated mantissas packed
// tightly at mant_bits each via the bitstream package.
package floatcodec

import (
	"math"

	"github.com/tsdbkit/codec/bitstream"
	"github.com/tsdbkit/codec/endian"
	"github.com/tsdbkit/codec/errs"
	"github.com/tsdbkit/codec/internal/pool"
	"github.com/tsdbkit/codec/varint"
)

// Precision selects the mantissa bit width an element is stored at.
// Its exponent width is recorded in the header, but exponents are
// written as full 11-bit biased values at every precision. FULL
// matches IEEE-754 binary64 exactly and round-trips every finite value
// bit-for-bit.
type Precision byte

const (
	Full Precision = iota
	High
	Medium
	Low
)

// precisionBits maps each Precision to its (exp_bits, mant_bits) pair.
var precisionBits = [...][2]int{
	Full:   {11, 52},
	High:   {8, 23},
	Medium: {8, 10},
	Low:    {5, 4},
}

func (p Precision) expBits() int  { return precisionBits[p][0] }
func (p Precision) mantBits() int { return precisionBits[p][1] }

// Mode selects how successive elements' exponents are correlated on
// the wire.
type Mode byte

const (
	Independent Mode = iota
	CommonExponent
	DeltaExponent
)

const headerLen = 4

const (
	biasedExpMax  = 0x7FF
	mantissaBits  = 52
	doubleSignBit = 63
)

// SelectPrecision returns the coarsest (smallest mant_bits) precision
// whose maximum relative error, 2^(-mant_bits), does not exceed
// maxRelError. FULL is always a safe fallback since it is exact (error
// 0), so this never fails to find a usable precision (spec §9's
// "precision selection failure" kind: selects FULL rather than erroring).
func SelectPrecision(maxRelError float64) Precision {
	for _, p := range [...]Precision{Low, Medium, High} {
		if math.Pow(2, -float64(p.mantBits())) <= maxRelError {
			return p
		}
	}

	return Full
}

// classify reports whether v must be routed to the special-value
// side-channel: NaN, ±Inf, ±0, or a subnormal magnitude.
func classify(v float64) bool {
	bits := math.Float64bits(v)
	expBits := (bits >> mantissaBits) & biasedExpMax

	return expBits == 0 || expBits == biasedExpMax
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// biasedExponent returns the raw 11-bit biased exponent field of a
// normal float64.
func biasedExponent(v float64) uint64 {
	return (math.Float64bits(v) >> mantissaBits) & biasedExpMax
}

func signOf(v float64) uint64 {
	if math.Float64bits(v)>>doubleSignBit != 0 {
		return 1
	}

	return 0
}

// setBitmapBit sets bit i (MSB-first within its byte) in a bitmap
// sized for n bits.
func setBitmapBit(bitmap []byte, i int) {
	bitmap[i/8] |= 1 << uint(7-i%8)
}

func getBitmapBit(bitmap []byte, i int) bool {
	return bitmap[i/8]&(1<<uint(7-i%8)) != 0
}

func bitmapBytes(n int) int {
	return (n + 7) / 8
}

// Encode writes values to dst using the given precision and exponent
// mode, returning the number of bytes written.
func Encode(dst []byte, values []float64, precision Precision, mode Mode) (int, error) {
	if len(dst) < headerLen {
		return 0, errs.ErrShortBuffer
	}
	dst[0] = byte(precision)
	dst[1] = byte(precision.expBits())
	dst[2] = byte(precision.mantBits())
	dst[3] = byte(mode)
	offset := headerLen

	n := len(values)
	specialBitmapLen := bitmapBytes(n)
	if len(dst[offset:]) < specialBitmapLen {
		return offset, errs.ErrShortBuffer
	}
	specialBitmap := dst[offset : offset+specialBitmapLen]
	for i := range specialBitmap {
		specialBitmap[i] = 0
	}
	offset += specialBitmapLen

	normalIdx := make([]int, 0, n)
	for i, v := range values {
		if classify(v) {
			setBitmapBit(specialBitmap, i)
		} else {
			normalIdx = append(normalIdx, i)
		}
	}

	for i, v := range values {
		if !getBitmapBit(specialBitmap, i) {
			continue
		}
		if len(dst[offset:]) < 8 {
			return offset, errs.ErrShortBuffer
		}
		endian.GetLittleEndianEngine().PutUint64(dst[offset:], math.Float64bits(v))
		offset += 8
	}

	normalCount := len(normalIdx)
	signBitmapLen := bitmapBytes(normalCount)
	if len(dst[offset:]) < signBitmapLen {
		return offset, errs.ErrShortBuffer
	}
	signBitmap := dst[offset : offset+signBitmapLen]
	for i := range signBitmap {
		signBitmap[i] = 0
	}
	for j, idx := range normalIdx {
		if signOf(values[idx]) == 1 {
			setBitmapBit(signBitmap, j)
		}
	}
	offset += signBitmapLen

	n2, err := encodeExponents(dst[offset:], values, normalIdx, mode)
	if err != nil {
		return offset, err
	}
	offset += n2

	n3, err := encodeMantissas(dst[offset:], values, normalIdx, precision.mantBits())
	if err != nil {
		return offset, err
	}
	offset += n3

	return offset, nil
}

func encodeExponents(dst []byte, values []float64, normalIdx []int, mode Mode) (int, error) {
	offset := 0

	switch mode {
	case Independent:
		for _, idx := range normalIdx {
			n, err := varint.Put(dst[offset:], biasedExponent(values[idx]))
			if err != nil {
				return offset, err
			}
			offset += n
		}
	case CommonExponent:
		if len(normalIdx) == 0 {
			return offset, nil
		}
		base := biasedExponent(values[normalIdx[0]])
		n, err := varint.Put(dst[offset:], base)
		if err != nil {
			return offset, err
		}
		offset += n

		for _, idx := range normalIdx {
			delta := int64(biasedExponent(values[idx])) - int64(base)
			n, err := varint.Put(dst[offset:], zigzagEncode(delta))
			if err != nil {
				return offset, err
			}
			offset += n
		}
	case DeltaExponent:
		if len(normalIdx) == 0 {
			return offset, nil
		}
		prev := biasedExponent(values[normalIdx[0]])
		n, err := varint.Put(dst[offset:], prev)
		if err != nil {
			return offset, err
		}
		offset += n

		for _, idx := range normalIdx[1:] {
			cur := biasedExponent(values[idx])
			n, err := varint.Put(dst[offset:], zigzagEncode(int64(cur)-int64(prev)))
			if err != nil {
				return offset, err
			}
			offset += n
			prev = cur
		}
	}

	return offset, nil
}

func encodeMantissas(dst []byte, values []float64, normalIdx []int, mantBits int) (int, error) {
	count := len(normalIdx)
	if count == 0 {
		return 0, nil
	}

	nWords := bitstream.WordsNeeded(count * mantBits)
	words, cleanup := pool.GetUint64Slice(nWords)
	defer cleanup()
	for i := range words {
		words[i] = 0
	}

	for j, idx := range normalIdx {
		raw := math.Float64bits(values[idx]) & (uint64(1)<<mantissaBits - 1)
		truncated := raw >> uint(mantissaBits-mantBits)
		if err := bitstream.Set(words, j*mantBits, mantBits, truncated); err != nil {
			return 0, err
		}
	}

	need := nWords * 8
	if len(dst) < need {
		return 0, errs.ErrShortBuffer
	}
	eng := endian.GetLittleEndianEngine()
	for i, w := range words {
		eng.PutUint64(dst[i*8:], w)
	}

	return need, nil
}

// Decode reconstructs n float64 values from src, returning them and
// the number of bytes consumed.
func Decode(src []byte, n int) ([]float64, int, error) {
	if len(src) < headerLen {
		return nil, 0, errs.ErrShortBuffer
	}
	mantBits := int(src[2])
	mode := Mode(src[3])
	offset := headerLen

	specialBitmapLen := bitmapBytes(n)
	if len(src[offset:]) < specialBitmapLen {
		return nil, 0, errs.ErrShortBuffer
	}
	specialBitmap := src[offset : offset+specialBitmapLen]
	offset += specialBitmapLen

	out := make([]float64, n)
	normalIdx := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if getBitmapBit(specialBitmap, i) {
			if len(src[offset:]) < 8 {
				return nil, 0, errs.ErrShortBuffer
			}
			out[i] = math.Float64frombits(endian.GetLittleEndianEngine().Uint64(src[offset:]))
			offset += 8
		} else {
			normalIdx = append(normalIdx, i)
		}
	}

	normalCount := len(normalIdx)
	signBitmapLen := bitmapBytes(normalCount)
	if len(src[offset:]) < signBitmapLen {
		return nil, 0, errs.ErrShortBuffer
	}
	signBitmap := src[offset : offset+signBitmapLen]
	offset += signBitmapLen

	exponents, n2, err := decodeExponents(src[offset:], normalCount, mode)
	if err != nil {
		return nil, 0, err
	}
	offset += n2

	mantissas, n3, err := decodeMantissas(src[offset:], normalCount, mantBits)
	if err != nil {
		return nil, 0, err
	}
	offset += n3

	for j, idx := range normalIdx {
		sign := uint64(0)
		if getBitmapBit(signBitmap, j) {
			sign = 1
		}
		mant := mantissas[j] << uint(mantissaBits-mantBits)
		bits := sign<<doubleSignBit | exponents[j]<<mantissaBits | mant
		out[idx] = math.Float64frombits(bits)
	}

	return out, offset, nil
}

func decodeExponents(src []byte, count int, mode Mode) ([]uint64, int, error) {
	out := make([]uint64, count)
	offset := 0
	if count == 0 {
		return out, 0, nil
	}

	switch mode {
	case Independent:
		for i := 0; i < count; i++ {
			var v uint64
			n := varint.Get(src[offset:], &v)
			if n == 0 {
				return nil, offset, errs.ErrShortBuffer
			}
			out[i] = v
			offset += n
		}
	case CommonExponent:
		var base uint64
		n := varint.Get(src[offset:], &base)
		if n == 0 {
			return nil, offset, errs.ErrShortBuffer
		}
		offset += n

		for i := 0; i < count; i++ {
			var d uint64
			n := varint.Get(src[offset:], &d)
			if n == 0 {
				return nil, offset, errs.ErrShortBuffer
			}
			offset += n
			out[i] = uint64(int64(base) + zigzagDecode(d))
		}
	case DeltaExponent:
		var first uint64
		n := varint.Get(src[offset:], &first)
		if n == 0 {
			return nil, offset, errs.ErrShortBuffer
		}
		offset += n
		out[0] = first
		prev := first

		for i := 1; i < count; i++ {
			var d uint64
			n := varint.Get(src[offset:], &d)
			if n == 0 {
				return nil, offset, errs.ErrShortBuffer
			}
			offset += n
			cur := uint64(int64(prev) + zigzagDecode(d))
			out[i] = cur
			prev = cur
		}
	}

	return out, offset, nil
}

func decodeMantissas(src []byte, count, mantBits int) ([]uint64, int, error) {
	out := make([]uint64, count)
	if count == 0 {
		return out, 0, nil
	}

	nWords := bitstream.WordsNeeded(count * mantBits)
	need := nWords * 8
	if len(src) < need {
		return nil, 0, errs.ErrShortBuffer
	}

	words, cleanup := pool.GetUint64Slice(nWords)
	defer cleanup()
	eng := endian.GetLittleEndianEngine()
	for i := 0; i < nWords; i++ {
		words[i] = eng.Uint64(src[i*8:])
	}

	for j := 0; j < count; j++ {
		v, err := bitstream.Get(words, j*mantBits, mantBits)
		if err != nil {
			return nil, 0, err
		}
		out[j] = v
	}

	return out, need, nil
}

// EncodedSize returns the exact byte length Encode would produce for
// values at the given precision and mode.
func EncodedSize(values []float64, precision Precision, mode Mode) int {
	n := len(values)
	size := headerLen + bitmapBytes(n)

	normalCount := 0
	for _, v := range values {
		if classify(v) {
			size += 8
		} else {
			normalCount++
		}
	}
	size += bitmapBytes(normalCount)

	switch mode {
	case Independent:
		for _, v := range values {
			if !classify(v) {
				size += varint.Len(biasedExponent(v))
			}
		}
	case CommonExponent:
		base, haveBase := uint64(0), false
		for _, v := range values {
			if classify(v) {
				continue
			}
			exp := biasedExponent(v)
			if !haveBase {
				base = exp
				haveBase = true
				size += varint.Len(base)
			}
			size += varint.Len(zigzagEncode(int64(exp) - int64(base)))
		}
	case DeltaExponent:
		first := true
		prev := uint64(0)
		for _, v := range values {
			if classify(v) {
				continue
			}
			exp := biasedExponent(v)
			if first {
				size += varint.Len(exp)
				first = false
			} else {
				size += varint.Len(zigzagEncode(int64(exp) - int64(prev)))
			}
			prev = exp
		}
	}

	mantBits := precision.mantBits()
	size += bitstream.WordsNeeded(normalCount*mantBits) * 8

	return size
}
