// Package bitstream reads and writes arbitrary-width bit fields into a
// buffer of native machine words.
//
// The floatcodec, packedarray and matrix packages bottom out here
// (bitpack keeps its own LSB-first packer): a bit field of width W (1..64) is addressed
// by its absolute bit offset into a []uint64 word array and packed
// MSB-first within each 64-bit slot, i.e. a value V of width W at
// offset O occupies
//
//	(slot >> (64 - (O mod 64) - W)) & ((1<<W)-1)
//
// within word O/64. This detail is wire-critical: it must be preserved
// bit-exactly for the persisted container formats in the rest of the
// suite to stay interoperable.
package bitstream

import "github.com/tsdbkit/codec/errs"

// BitsPerSlot is the width of one storage word.
const BitsPerSlot = 64

// mask64 returns the low-order width-bit mask. width must be in 1..64;
// callers are expected to have validated this already.
func mask64(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}

	return (uint64(1) << uint(width)) - 1
}

// Set writes value, using its low width bits, at absolute bit offset
// startBit into dst. Bits of dst outside the [startBit, startBit+width)
// range are left untouched.
//
// Returns errs.ErrValueTooWide if value has bits set above width, and
// errs.ErrIndexOutOfRange if the field would read past the end of dst.
func Set(dst []uint64, startBit, width int, value uint64) error {
	if width < 1 || width > 64 {
		return errs.ErrValueTooWide
	}
	if value&^mask64(width) != 0 {
		return errs.ErrValueTooWide
	}

	wordIdx := startBit / BitsPerSlot
	bitOff := startBit % BitsPerSlot
	if wordIdx < 0 || wordIdx >= len(dst) {
		return errs.ErrIndexOutOfRange
	}

	if bitOff+width <= BitsPerSlot {
		shift := uint(BitsPerSlot - bitOff - width)
		m := mask64(width) << shift
		dst[wordIdx] = (dst[wordIdx] &^ m) | (value << shift)

		return nil
	}

	// Straddles into the next word. Since width<=64 and bitOff<=63, the
	// field spans exactly two words.
	if wordIdx+1 >= len(dst) {
		return errs.ErrIndexOutOfRange
	}

	firstBits := BitsPerSlot - bitOff
	remBits := width - firstBits

	hi := value >> uint(remBits)
	dst[wordIdx] = (dst[wordIdx] &^ mask64(firstBits)) | hi

	shift2 := uint(BitsPerSlot - remBits)
	lo := value & mask64(remBits)
	dst[wordIdx+1] = (dst[wordIdx+1] &^ (mask64(remBits) << shift2)) | (lo << shift2)

	return nil
}

// Get reads width bits at absolute bit offset startBit from src.
func Get(src []uint64, startBit, width int) (uint64, error) {
	if width < 1 || width > 64 {
		return 0, errs.ErrValueTooWide
	}

	wordIdx := startBit / BitsPerSlot
	bitOff := startBit % BitsPerSlot
	if wordIdx < 0 || wordIdx >= len(src) {
		return 0, errs.ErrIndexOutOfRange
	}

	if bitOff+width <= BitsPerSlot {
		shift := uint(BitsPerSlot - bitOff - width)

		return (src[wordIdx] >> shift) & mask64(width), nil
	}

	if wordIdx+1 >= len(src) {
		return 0, errs.ErrIndexOutOfRange
	}

	firstBits := BitsPerSlot - bitOff
	remBits := width - firstBits

	hi := src[wordIdx] & mask64(firstBits)
	shift2 := uint(BitsPerSlot - remBits)
	lo := (src[wordIdx+1] >> shift2) & mask64(remBits)

	return (hi << uint(remBits)) | lo, nil
}

// EncodeSigned converts a signed value into its width-bit sign-magnitude
// storage form: the sign occupies bit width-1, the magnitude the lower
// width-1 bits. It returns errs.ErrValueTooWide if the magnitude does
// not fit in width-1 bits.
func EncodeSigned(value int64, width int) (uint64, error) {
	if width < 2 || width > 64 {
		return 0, errs.ErrValueTooWide
	}

	var mag uint64
	var sign uint64
	if value < 0 {
		sign = uint64(1) << uint(width-1)
		mag = uint64(-value)
	} else {
		mag = uint64(value)
	}

	if mag&^mask64(width-1) != 0 {
		return 0, errs.ErrValueTooWide
	}

	return sign | mag, nil
}

// DecodeSigned inverts EncodeSigned.
func DecodeSigned(stored uint64, width int) int64 {
	signBit := (stored >> uint(width-1)) & 1
	mag := int64(stored & mask64(width-1))
	if signBit == 1 {
		return -mag
	}

	return mag
}

// SetSigned writes a signed value at startBit using width bits of
// sign-magnitude storage (see EncodeSigned).
func SetSigned(dst []uint64, startBit, width int, value int64) error {
	stored, err := EncodeSigned(value, width)
	if err != nil {
		return err
	}

	return Set(dst, startBit, width, stored)
}

// GetSigned reads a signed value previously written by SetSigned.
func GetSigned(src []uint64, startBit, width int) (int64, error) {
	stored, err := Get(src, startBit, width)
	if err != nil {
		return 0, err
	}

	return DecodeSigned(stored, width), nil
}

// WordsNeeded returns the number of uint64 words required to hold
// nBits bits starting at bit offset 0.
func WordsNeeded(nBits int) int {
	if nBits <= 0 {
		return 0
	}

	return (nBits + BitsPerSlot - 1) / BitsPerSlot
}
