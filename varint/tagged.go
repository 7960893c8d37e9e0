// Package varint implements the tagged (self-describing) variable-length
// unsigned integer codec and its fixed-width sibling.
//
// The tagged codec (Put/Get/Len/PeekLen/AddInPlace) stores a uint64 in
// 1 to 9 bytes such that the first byte alone discloses the encoded
// width, and byte-wise comparison of two encodings preserves numeric
// order. It is the leaf the higher codecs in this module (bitpack,
// forcodec, rle, floatcodec, bitmap) build cardinality, header and
// run-length fields on top of.
//
// The external fixed-width codec (PutFixed/GetFixed) stores a uint64 in
// a caller-chosen number of little-endian bytes with no discriminator;
// it backs FOR offsets and bitmap ARRAY values and RUNS pairs, where the
// width is already known from surrounding metadata. Its big-endian
// sibling (PutFixedBE/GetFixedBE) backs the matrix dimension headers.
package varint

import "github.com/tsdbkit/codec/errs"

// Width bounds per row of the tagged encoding table.
const (
	width1Max = 240
	width2Max = 2287
	width3Max = 67823
	width4Max = 1<<24 - 1
	width5Max = 1<<32 - 1
	width6Max = 1<<40 - 1
	width7Max = 1<<48 - 1
	width8Max = 1<<56 - 1

	width2Base = 240
	width3Base = 2288

	width3A0 = 249
	width4A0 = 250
	width5A0 = 251
	width6A0 = 252
	width7A0 = 253
	width8A0 = 254
	width9A0 = 255
)

// Len returns the number of bytes Put would write to encode v: the
// minimal tagged-varint width for v, per spec's encoding table.
func Len(v uint64) int {
	switch {
	case v <= width1Max:
		return 1
	case v <= width2Max:
		return 2
	case v <= width3Max:
		return 3
	case v <= width4Max:
		return 4
	case v <= width5Max:
		return 5
	case v <= width6Max:
		return 6
	case v <= width7Max:
		return 7
	case v <= width8Max:
		return 8
	default:
		return 9
	}
}

// PeekLen returns the encoded width of a tagged varint from its first
// byte alone, without needing the rest of the encoding.
func PeekLen(a0 byte) int {
	switch {
	case a0 <= width1Max:
		return 1
	case a0 < width3A0:
		return 2
	case a0 == width3A0:
		return 3
	case a0 == width4A0:
		return 4
	case a0 == width5A0:
		return 5
	case a0 == width6A0:
		return 6
	case a0 == width7A0:
		return 7
	case a0 == width8A0:
		return 8
	default:
		return 9
	}
}

// encodable reports whether v can be stored at exactly width bytes
// using that row's formula (rows 1-3 are offset-windowed and so have a
// lower bound as well as an upper one; rows 4-9 store v directly and
// so accept any value up to their upper bound).
func encodable(v uint64, width int) bool {
	switch width {
	case 1:
		return v <= width1Max
	case 2:
		return v > width1Max && v <= width2Max
	case 3:
		return v > width2Max && v <= width3Max
	case 4:
		return v <= width4Max
	case 5:
		return v <= width5Max
	case 6:
		return v <= width6Max
	case 7:
		return v <= width7Max
	case 8:
		return v <= width8Max
	case 9:
		return true
	default:
		return false
	}
}

// PutFixedWidth writes v into dst using exactly width bytes (1..9),
// per the row formula for that width, regardless of whether width is
// v's minimal encoding. It returns errs.ErrValueTooWide if v does not
// fall in the numeric range that width's formula can represent without
// wraparound (spec calls this "undefined behaviour"; this
// implementation reports it instead of writing corrupt bytes).
func PutFixedWidth(dst []byte, v uint64, width int) (int, error) {
	if width < 1 || width > 9 {
		return 0, errs.ErrValueTooWide
	}
	if !encodable(v, width) {
		return 0, errs.ErrValueTooWide
	}
	if len(dst) < width {
		return 0, errs.ErrShortBuffer
	}

	switch width {
	case 1:
		dst[0] = byte(v)
	case 2:
		d := v - width2Base
		dst[0] = byte(d/256) + 241
		dst[1] = byte(d % 256)
	case 3:
		d := v - width3Base
		dst[0] = width3A0
		dst[1] = byte(d >> 8)
		dst[2] = byte(d)
	default:
		a0 := byte(width + 246) // 4->250 ... 9->255
		dst[0] = a0
		tailLen := width - 1
		for i := 0; i < tailLen; i++ {
			shift := uint(tailLen-1-i) * 8
			dst[1+i] = byte(v >> shift)
		}
	}

	return width, nil
}

// Put writes v to dst using its minimal tagged-varint encoding and
// returns the number of bytes written.
func Put(dst []byte, v uint64) (int, error) {
	return PutFixedWidth(dst, v, Len(v))
}

// Append encodes v minimally and appends it to dst, returning the
// grown slice. This is the idiomatic Go append-style counterpart to
// Put for callers building up an encode buffer incrementally.
func Append(dst []byte, v uint64) []byte {
	width := Len(v)
	start := len(dst)
	dst = append(dst, make([]byte, width)...)
	// PutFixedWidth cannot fail here: width is v's own minimal width.
	_, _ = PutFixedWidth(dst[start:], v, width)

	return dst
}

// Get decodes a tagged varint from the front of src into out. It
// returns the number of bytes consumed, or 0 if src does not contain
// enough bytes to satisfy the width its first byte declares (the
// short-buffer failure of spec §7).
func Get(src []byte, out *uint64) int {
	if len(src) == 0 {
		return 0
	}

	width := PeekLen(src[0])
	if len(src) < width {
		return 0
	}

	a0 := src[0]
	var v uint64

	switch width {
	case 1:
		v = uint64(a0)
	case 2:
		v = uint64(a0-241)*256 + uint64(src[1]) + width2Base
	case 3:
		v = width3Base + (uint64(src[1])<<8 | uint64(src[2]))
	default:
		tailLen := width - 1
		for i := 0; i < tailLen; i++ {
			v = v<<8 | uint64(src[1+i])
		}
	}

	*out = v

	return width
}

// AddInPlace reads the tagged varint at the front of dst, adds the
// signed delta, and writes the result back.
//
// If the updated value still fits in dst's existing width, it is
// rewritten in place (same byte count, dst unchanged in length) and
// AddInPlace returns (dst[:oldWidth], oldWidth, nil).
//
// If the updated value needs more bytes than dst's existing width:
//   - with allowGrow false, dst is left untouched and AddInPlace
//     returns (nil, newWidth, errs.ErrOverflow) so the caller can
//     allocate a bigger buffer and retry via Put.
//   - with allowGrow true and cap(dst) large enough to hold newWidth
//     bytes, dst is extended and rewritten in place.
//   - with allowGrow true but insufficient capacity, AddInPlace
//     returns (nil, newWidth, errs.ErrShortBuffer).
//
// An update that would take the stored value negative (the contract
// is unsigned) also reports errs.ErrOverflow without mutating dst.
func AddInPlace(dst []byte, delta int64, allowGrow bool) ([]byte, int, error) {
	if len(dst) == 0 {
		return nil, 0, errs.ErrShortBuffer
	}

	oldWidth := PeekLen(dst[0])
	if len(dst) < oldWidth {
		return nil, 0, errs.ErrShortBuffer
	}

	var cur uint64
	if n := Get(dst[:oldWidth], &cur); n == 0 {
		return nil, 0, errs.ErrShortBuffer
	}

	newVal, ok := applyDelta(cur, delta)
	if !ok {
		return nil, 0, errs.ErrOverflow
	}

	newWidth := Len(newVal)

	if newWidth <= oldWidth && encodable(newVal, oldWidth) {
		if _, err := PutFixedWidth(dst[:oldWidth], newVal, oldWidth); err != nil {
			return nil, 0, err
		}

		return dst[:oldWidth], oldWidth, nil
	}

	if !allowGrow {
		return nil, newWidth, errs.ErrOverflow
	}

	if cap(dst) < newWidth {
		return nil, newWidth, errs.ErrShortBuffer
	}

	grown := dst[:newWidth]
	if _, err := PutFixedWidth(grown, newVal, newWidth); err != nil {
		return nil, newWidth, err
	}

	return grown, newWidth, nil
}

// applyDelta adds a signed delta to an unsigned stored value, failing
// on underflow below zero or overflow above 2^64-1.
func applyDelta(cur uint64, delta int64) (uint64, bool) {
	if delta >= 0 {
		d := uint64(delta)
		newVal := cur + d
		if newVal < cur { // wrapped past MaxUint64
			return 0, false
		}

		return newVal, true
	}

	mag := uint64(-delta)
	if mag > cur {
		return 0, false
	}

	return cur - mag, true
}
