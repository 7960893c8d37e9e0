// Package rle implements run-length encoding over tagged varints: each
// maximal run of equal values is stored as a (run_length, value) pair.
//
// Two wire framings exist (spec §4.5). The no-header framing (Encode/
// Decode) terminates on the first zero-length marker, so it can be
// embedded inline without a separately stored element count. The
// header framing (EncodeWithHeader/DecodeWithHeader) prefixes a tagged
// varint count of runs and stops once that many runs are read,
// avoiding the need for a terminator byte.
package rle

import (
	"github.com/tsdbkit/codec/errs"
	"github.com/tsdbkit/codec/varint"
)

// Analyse scans values once, returning the run count, the exact
// no-header encoded size, and whether RLE is beneficial (strictly
// smaller than storing every value as its own minimal tagged varint).
func Analyse(values []uint64) (runs int, encodedSize int, beneficial bool) {
	rawSize := 0
	i := 0
	for i < len(values) {
		v := values[i]
		runLen := 1
		for i+runLen < len(values) && values[i+runLen] == v {
			runLen++
		}

		runs++
		encodedSize += varint.Len(uint64(runLen)) + varint.Len(v)
		rawSize += runLen * varint.Len(v)

		i += runLen
	}

	return runs, encodedSize, encodedSize < rawSize
}

// Encode writes values to dst as a sequence of (run_length, value)
// tagged-varint pairs with no header, returning the bytes written.
// Decode stops at a zero-length marker, so the wire form never needs a
// separately carried count; Encode itself never writes one.
func Encode(dst []byte, values []uint64) (int, error) {
	offset := 0
	i := 0
	for i < len(values) {
		v := values[i]
		runLen := 1
		for i+runLen < len(values) && values[i+runLen] == v {
			runLen++
		}

		n, err := varint.Put(dst[offset:], uint64(runLen))
		if err != nil {
			return offset, err
		}
		offset += n

		n, err = varint.Put(dst[offset:], v)
		if err != nil {
			return offset, err
		}
		offset += n

		i += runLen
	}

	return offset, nil
}

// Decode reads (run_length, value) pairs from src until a zero-length
// marker or the source is exhausted, returning the expanded values and
// the number of bytes consumed (the zero marker, if present, is not
// counted as consumed).
func Decode(src []byte) ([]uint64, int, error) {
	var out []uint64
	offset := 0

	for offset < len(src) {
		var runLen uint64
		n := varint.Get(src[offset:], &runLen)
		if n == 0 {
			return nil, offset, errs.ErrShortBuffer
		}
		if runLen == 0 {
			break
		}
		offset += n

		var v uint64
		n = varint.Get(src[offset:], &v)
		if n == 0 {
			return nil, offset, errs.ErrShortBuffer
		}
		offset += n

		for j := uint64(0); j < runLen; j++ {
			out = append(out, v)
		}
	}

	return out, offset, nil
}

// EncodeWithHeader writes a tagged-varint run count followed by the
// same (run_length, value) pairs Encode produces, so a decoder can
// stop after the declared number of runs instead of relying on a
// terminator.
func EncodeWithHeader(dst []byte, values []uint64) (int, error) {
	runs, _, _ := Analyse(values)

	n, err := varint.Put(dst, uint64(runs))
	if err != nil {
		return 0, err
	}
	offset := n

	body, err := Encode(dst[offset:], values)
	offset += body

	return offset, err
}

// DecodeWithHeader reads the run count header written by
// EncodeWithHeader and decodes exactly that many runs.
func DecodeWithHeader(src []byte) ([]uint64, int, error) {
	var runs uint64
	n := varint.Get(src, &runs)
	if n == 0 {
		return nil, 0, errs.ErrShortBuffer
	}
	offset := n

	var out []uint64
	for r := uint64(0); r < runs; r++ {
		var runLen uint64
		k := varint.Get(src[offset:], &runLen)
		if k == 0 {
			return nil, offset, errs.ErrShortBuffer
		}
		offset += k

		var v uint64
		k = varint.Get(src[offset:], &v)
		if k == 0 {
			return nil, offset, errs.ErrShortBuffer
		}
		offset += k

		for j := uint64(0); j < runLen; j++ {
			out = append(out, v)
		}
	}

	return out, offset, nil
}

// GetAt returns the value at logical index idx within a no-header
// RLE-encoded stream, walking runs and accumulating positions until
// idx is covered. Per spec §9's retained-behaviour decision, an
// out-of-range index reports (0, false) rather than an error.
func GetAt(src []byte, idx int) (uint64, bool) {
	if idx < 0 {
		return 0, false
	}

	offset := 0
	pos := 0

	for offset < len(src) {
		var runLen uint64
		n := varint.Get(src[offset:], &runLen)
		if n == 0 || runLen == 0 {
			return 0, false
		}
		offset += n

		var v uint64
		n = varint.Get(src[offset:], &v)
		if n == 0 {
			return 0, false
		}
		offset += n

		if idx < pos+int(runLen) {
			return v, true
		}
		pos += int(runLen)
	}

	return 0, false
}
