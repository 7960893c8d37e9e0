// Package bitpack implements the BP128 block codec: fixed-size groups
// of 128 unsigned integers packed at a uniform per-block bit width,
// plus a delta variant for sorted (or near-sorted) sequences.
//
// Unlike bitstream's MSB-first-within-a-64-bit-slot convention, BP128's
// wire format packs bits LSB-first within each byte (spec §6) — the
// classic bit-cursor layout SIMD bit-packers (Lemire's SIMD-BP128,
// Parquet/Arrow RLE bit-packing) use so that unpacking can shift and
// mask lanes in parallel. Because this differs from bitstream's slot
// convention, BP128 packs its body with its own small bit-cursor
// helper (below) rather than through the bitstream package; see
// DESIGN.md for the reasoning.
package bitpack

import (
	"math/bits"

	"github.com/tsdbkit/codec/errs"
	"github.com/tsdbkit/codec/varint"
)

// BlockSize is the number of elements in one BP128 block.
const BlockSize = 128

// partialFlag marks the header byte of a block that holds fewer than
// BlockSize elements (always the last block of an array).
const partialFlag = 0x80

const widthMask = 0x7F

// Unsigned is the element type constraint for BP128: 32-bit blocks and
// 64-bit blocks share the same packing logic.
type Unsigned interface {
	~uint32 | ~uint64
}

// maxBitWidth returns the number of bits needed to represent the
// largest value in v (0 if v is empty or all zero).
func maxBitWidth[T Unsigned](v []T) int {
	var maxVal uint64
	for _, x := range v {
		if u := uint64(x); u > maxVal {
			maxVal = u
		}
	}

	return bits.Len64(maxVal)
}

// bodyBytes returns the number of bytes needed to hold count values of
// width bits each.
func bodyBytes(width, count int) int {
	return (width*count + 7) / 8
}

// packBits writes the low width bits of v into dst starting at bit
// cursor *pos (LSB-first within each byte), and advances *pos.
func packBits(dst []byte, pos *int, v uint64, width int) {
	p := *pos
	for i := 0; i < width; i++ {
		if v&(uint64(1)<<uint(i)) != 0 {
			byteIdx := (p + i) / 8
			bitIdx := uint((p + i) % 8)
			dst[byteIdx] |= 1 << bitIdx
		}
	}
	*pos = p + width
}

// unpackBits reads width bits from src starting at bit cursor *pos and
// advances *pos.
func unpackBits(src []byte, pos *int, width int) uint64 {
	p := *pos
	var v uint64
	for i := 0; i < width; i++ {
		byteIdx := (p + i) / 8
		bitIdx := uint((p + i) % 8)
		if src[byteIdx]&(1<<bitIdx) != 0 {
			v |= uint64(1) << uint(i)
		}
	}
	*pos = p + width

	return v
}

// encodeValues packs count values (width bits each, LSB-first) from
// get(i) into dst, which must already have capacity for bodyBytes(width, count).
func encodeValues(dst []byte, width, count int, get func(i int) uint64) {
	if width == 0 {
		return
	}

	pos := 0
	for i := 0; i < count; i++ {
		packBits(dst, &pos, get(i), width)
	}
}

// decodeValues unpacks count values (width bits each) from src into
// set(i, v).
func decodeValues(src []byte, width, count int, set func(i int, v uint64)) {
	if width == 0 {
		for i := 0; i < count; i++ {
			set(i, 0)
		}

		return
	}

	pos := 0
	for i := 0; i < count; i++ {
		set(i, unpackBits(src, &pos, width))
	}
}

// EncodeBlock packs a full 128-element block into dst: a 1-byte header
// (bit width, partial flag clear) followed by the packed body. It
// returns the number of bytes written.
func EncodeBlock[T Unsigned](dst []byte, v *[BlockSize]T) (int, error) {
	width := maxBitWidth(v[:])
	need := 1 + bodyBytes(width, BlockSize)
	if len(dst) < need {
		return 0, errs.ErrShortBuffer
	}

	dst[0] = byte(width) & widthMask
	encodeValues(dst[1:need], width, BlockSize, func(i int) uint64 { return uint64(v[i]) })

	return need, nil
}

// DecodeBlock unpacks a full 128-element block from src into out.
func DecodeBlock[T Unsigned](src []byte, out *[BlockSize]T) (int, error) {
	if len(src) < 1 {
		return 0, errs.ErrShortBuffer
	}

	header := src[0]
	width := int(header & widthMask)
	need := 1 + bodyBytes(width, BlockSize)
	if len(src) < need {
		return 0, errs.ErrShortBuffer
	}

	decodeValues(src[1:need], width, BlockSize, func(i int, val uint64) { out[i] = T(val) })

	return need, nil
}

// DeltaEncodeBlock stores the first differences of v relative to prev
// (prev threaded from the caller, typically the last value of the
// previous block) as a full 128-element block. It returns the bytes
// written and the new prev (v[127]) to thread into the next call.
func DeltaEncodeBlock[T Unsigned](dst []byte, v *[BlockSize]T, prev T) (int, T, error) {
	var deltas [BlockSize]T
	p := prev
	for i, x := range v {
		deltas[i] = x - p
		p = x
	}

	n, err := EncodeBlock(dst, &deltas)

	return n, p, err
}

// DeltaDecodeBlock reconstructs a full 128-element block via inclusive
// prefix-sum over the decoded deltas, starting from prev. It returns
// the bytes read and the new prev (out[127]).
func DeltaDecodeBlock[T Unsigned](src []byte, out *[BlockSize]T, prev T) (int, T, error) {
	var deltas [BlockSize]T

	n, err := DecodeBlock(src, &deltas)
	if err != nil {
		return 0, prev, err
	}

	p := prev
	for i, d := range deltas {
		p = p + d
		out[i] = p
	}

	return n, p, nil
}

func asArray[T Unsigned](v []T) *[BlockSize]T {
	return (*[BlockSize]T)(v)
}

// EncodeArray packs values into dst as a sequence of full BP128 blocks
// followed by an optional partial tail block (header top bit set, a
// following count byte in 1..127, then the packed remainder). The
// partial block, if present, is always last.
func EncodeArray[T Unsigned](dst []byte, values []T) (int, error) {
	offset := 0
	full := len(values) / BlockSize
	rem := len(values) % BlockSize

	for b := 0; b < full; b++ {
		block := values[b*BlockSize : (b+1)*BlockSize]
		n, err := EncodeBlock(dst[offset:], asArray(block))
		if err != nil {
			return offset, err
		}
		offset += n
	}

	if rem > 0 {
		width := maxBitWidth(values[full*BlockSize:])
		need := 2 + bodyBytes(width, rem)
		if len(dst[offset:]) < need {
			return offset, errs.ErrShortBuffer
		}

		dst[offset] = byte(width)&widthMask | partialFlag
		dst[offset+1] = byte(rem)
		tail := values[full*BlockSize:]
		encodeValues(dst[offset+2:offset+need], width, rem, func(i int) uint64 { return uint64(tail[i]) })
		offset += need
	}

	return offset, nil
}

// DecodeArray decodes n values from src, written by EncodeArray.
func DecodeArray[T Unsigned](src []byte, n int) ([]T, int, error) {
	out := make([]T, n)
	offset := 0
	decoded := 0

	for decoded < n {
		if len(src[offset:]) < 1 {
			return nil, offset, errs.ErrShortBuffer
		}

		header := src[offset]
		width := int(header & widthMask)

		if header&partialFlag != 0 {
			if len(src[offset:]) < 2 {
				return nil, offset, errs.ErrShortBuffer
			}
			count := int(src[offset+1])
			need := 2 + bodyBytes(width, count)
			if len(src[offset:]) < need {
				return nil, offset, errs.ErrShortBuffer
			}

			decodeValues(src[offset+2:offset+need], width, count, func(i int, v uint64) { out[decoded+i] = T(v) })
			offset += need
			decoded += count

			continue
		}

		need := 1 + bodyBytes(width, BlockSize)
		if len(src[offset:]) < need {
			return nil, offset, errs.ErrShortBuffer
		}

		decodeValues(src[offset+1:offset+need], width, BlockSize, func(i int, v uint64) { out[decoded+i] = T(v) })
		offset += need
		decoded += BlockSize
	}

	return out, offset, nil
}

// DeltaEncodeArray writes the first value of values as a tagged varint
// (so decode can seed prev without external metadata), then packs the
// remaining values as delta blocks threading prev forward.
func DeltaEncodeArray[T Unsigned](dst []byte, values []T) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}

	n, err := varint.Put(dst, uint64(values[0]))
	if err != nil {
		return 0, err
	}
	offset := n

	rest := values[1:]
	prev := values[0]
	full := len(rest) / BlockSize
	remCount := len(rest) % BlockSize

	for b := 0; b < full; b++ {
		block := rest[b*BlockSize : (b+1)*BlockSize]
		written, newPrev, err := DeltaEncodeBlock(dst[offset:], asArray(block), prev)
		if err != nil {
			return offset, err
		}
		offset += written
		prev = newPrev
	}

	if remCount > 0 {
		tail := rest[full*BlockSize:]
		var deltas [BlockSize]T
		p := prev
		for i, x := range tail {
			deltas[i] = x - p
			p = x
		}

		width := maxBitWidth(deltas[:remCount])
		need := 2 + bodyBytes(width, remCount)
		if len(dst[offset:]) < need {
			return offset, errs.ErrShortBuffer
		}

		dst[offset] = byte(width)&widthMask | partialFlag
		dst[offset+1] = byte(remCount)
		encodeValues(dst[offset+2:offset+need], width, remCount, func(i int) uint64 { return uint64(deltas[i]) })
		offset += need
	}

	return offset, nil
}

// DeltaDecodeArray decodes n values written by DeltaEncodeArray.
func DeltaDecodeArray[T Unsigned](src []byte, n int) ([]T, int, error) {
	out := make([]T, n)
	if n == 0 {
		return out, 0, nil
	}

	var first uint64
	consumed := varint.Get(src, &first)
	if consumed == 0 {
		return nil, 0, errs.ErrShortBuffer
	}
	out[0] = T(first)
	offset := consumed

	prev := out[0]
	decoded := 1

	for decoded < n {
		if len(src[offset:]) < 1 {
			return nil, offset, errs.ErrShortBuffer
		}

		header := src[offset]
		width := int(header & widthMask)

		if header&partialFlag != 0 {
			if len(src[offset:]) < 2 {
				return nil, offset, errs.ErrShortBuffer
			}
			count := int(src[offset+1])
			need := 2 + bodyBytes(width, count)
			if len(src[offset:]) < need {
				return nil, offset, errs.ErrShortBuffer
			}

			p := prev
			decodeValues(src[offset+2:offset+need], width, count, func(i int, d uint64) {
				p = p + T(d)
				out[decoded+i] = p
			})
			prev = p
			offset += need
			decoded += count

			continue
		}

		need := 1 + bodyBytes(width, BlockSize)
		if len(src[offset:]) < need {
			return nil, offset, errs.ErrShortBuffer
		}

		p := prev
		decodeValues(src[offset+1:offset+need], width, BlockSize, func(i int, d uint64) {
			p = p + T(d)
			out[decoded+i] = p
		})
		prev = p
		offset += need
		decoded += BlockSize
	}

	return out, offset, nil
}

// IsSorted reports whether values is non-decreasing, the precondition
// under which delta encoding is guaranteed to pack tightly.
func IsSorted[T Unsigned](values []T) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}

	return true
}

// IsBeneficial reports whether delta-encoding values would need fewer
// bits per block than plain encoding, a cheap heuristic callers use to
// pick between EncodeArray and DeltaEncodeArray.
func IsBeneficial[T Unsigned](values []T) bool {
	if len(values) < 2 {
		return false
	}

	rawWidth := maxBitWidth(values)

	deltas := make([]T, len(values)-1)
	for i := 1; i < len(values); i++ {
		deltas[i-1] = values[i] - values[i-1]
	}
	deltaWidth := maxBitWidth(deltas)

	return deltaWidth < rawWidth
}
