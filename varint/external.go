package varint

import "github.com/tsdbkit/codec/errs"

// MaxFixedWidth is the largest width PutFixed/GetFixed support. The
// external fixed-width codec never needs the 9-byte tagged-varint
// overflow case: every consumer (FOR offsets, bitmap ARRAY values and
// RUNS pairs, dimension headers) already knows its width from
// surrounding metadata and that width is always derived from a
// caller-supplied magnitude that fits in 8 bytes.
const MaxFixedWidth = 8

// PutFixed writes v into dst using exactly width little-endian bytes
// (width in 1..8), with no discriminator byte. It returns
// errs.ErrValueTooWide if v does not fit in width bytes.
func PutFixed(dst []byte, v uint64, width int) (int, error) {
	if width < 1 || width > MaxFixedWidth {
		return 0, errs.ErrValueTooWide
	}
	if width < MaxFixedWidth && v>>(uint(width)*8) != 0 {
		return 0, errs.ErrValueTooWide
	}
	if len(dst) < width {
		return 0, errs.ErrShortBuffer
	}

	for i := 0; i < width; i++ {
		dst[i] = byte(v >> (uint(i) * 8))
	}

	return width, nil
}

// GetFixed reads a width-byte little-endian unsigned integer from src.
func GetFixed(src []byte, width int) (uint64, error) {
	if width < 1 || width > MaxFixedWidth {
		return 0, errs.ErrValueTooWide
	}
	if len(src) < width {
		return 0, errs.ErrShortBuffer
	}

	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(src[i]) << (uint(i) * 8)
	}

	return v, nil
}

// PutFixedBE writes v into dst using exactly width big-endian bytes
// (width in 1..8), with no discriminator byte. It returns
// errs.ErrValueTooWide if v does not fit in width bytes. This is the
// big-endian sibling of PutFixed, used where the wire format demands
// most-significant-byte-first order (dimension matrix row/col headers,
// spec §3.8/§6) rather than the little-endian default.
func PutFixedBE(dst []byte, v uint64, width int) (int, error) {
	if width < 1 || width > MaxFixedWidth {
		return 0, errs.ErrValueTooWide
	}
	if width < MaxFixedWidth && v>>(uint(width)*8) != 0 {
		return 0, errs.ErrValueTooWide
	}
	if len(dst) < width {
		return 0, errs.ErrShortBuffer
	}

	for i := 0; i < width; i++ {
		dst[width-1-i] = byte(v >> (uint(i) * 8))
	}

	return width, nil
}

// GetFixedBE reads a width-byte big-endian unsigned integer from src,
// the big-endian sibling of GetFixed.
func GetFixedBE(src []byte, width int) (uint64, error) {
	if width < 1 || width > MaxFixedWidth {
		return 0, errs.ErrValueTooWide
	}
	if len(src) < width {
		return 0, errs.ErrShortBuffer
	}

	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(src[width-1-i]) << (uint(i) * 8)
	}

	return v, nil
}

// FixedWidthFor returns the smallest byte width in 1..8 that can hold
// maxValue without truncation, the width-derivation rule the matrix
// dimension headers use. FOR offsets instead take the smallest of 1, 2,
// 4 or 8 bytes, and bitmap RUNS pairs use fixed 2- and 4-byte fields.
func FixedWidthFor(maxValue uint64) int {
	for w := 1; w < MaxFixedWidth; w++ {
		if maxValue>>(uint(w)*8) == 0 {
			return w
		}
	}

	return MaxFixedWidth
}
