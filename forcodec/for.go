// Package forcodec implements Frame-of-Reference (FOR) encoding: every
// element of an array is stored as a fixed-width offset from the
// array's minimum value.
//
// Wire format (spec §3.4): [min:tagged varint][offset_width:1 byte]
// [count:tagged varint][offsets: count * offset_width bytes]. The
// header is always re-derived from the decoded min/count tagged-varint
// widths rather than trusted from a stored size field, so an encoder
// that always writes minimally (this one does) never disagrees with a
// decoder re-deriving the header length (spec §9 Open Question).
package forcodec

import (
	"github.com/tsdbkit/codec/errs"
	"github.com/tsdbkit/codec/varint"
)

// Analyse scans values once and returns the minimum, maximum, range
// (max-min) and the offset width needed to store that range.
//
// offsetWidth is chosen from the power-of-two byte widths {1, 2, 4, 8}
// per spec §4.4, the smallest that can hold rng without truncation.
func Analyse(values []uint64) (minV, maxV, rng uint64, offsetWidth int) {
	if len(values) == 0 {
		return 0, 0, 0, 1
	}

	minV, maxV = values[0], values[0]
	for _, v := range values[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	rng = maxV - minV

	return minV, maxV, rng, powerOfTwoWidthFor(rng)
}

// powerOfTwoWidthFor returns the smallest of {1, 2, 4, 8} bytes that
// can hold maxValue.
func powerOfTwoWidthFor(maxValue uint64) int {
	for _, w := range [...]int{1, 2, 4, 8} {
		if w == 8 || maxValue>>(uint(w)*8) == 0 {
			return w
		}
	}

	return 8
}

// headerLen returns the byte length of a header for the given min and
// count, matching exactly what Encode writes.
func headerLen(minV uint64, count int) int {
	return varint.Len(minV) + 1 + varint.Len(uint64(count))
}

// Encode writes the FOR-encoded form of values to dst and returns the
// number of bytes written.
func Encode(dst []byte, values []uint64) (int, error) {
	minV, _, _, width := Analyse(values)

	n, err := varint.Put(dst, minV)
	if err != nil {
		return 0, err
	}
	offset := n

	if len(dst[offset:]) < 1 {
		return offset, errs.ErrShortBuffer
	}
	dst[offset] = byte(width)
	offset++

	n, err = varint.Put(dst[offset:], uint64(len(values)))
	if err != nil {
		return offset, err
	}
	offset += n

	need := len(values) * width
	if len(dst[offset:]) < need {
		return offset, errs.ErrShortBuffer
	}

	for _, v := range values {
		w, err := varint.PutFixed(dst[offset:], v-minV, width)
		if err != nil {
			return offset, err
		}
		offset += w
	}

	return offset, nil
}

// header holds the parsed fixed fields of a FOR-encoded array.
type header struct {
	min     uint64
	width   int
	count   int
	dataOff int
}

// parseHeader decodes the header of a FOR-encoded array.
func parseHeader(src []byte) (header, error) {
	var h header

	var minV uint64
	n := varint.Get(src, &minV)
	if n == 0 {
		return h, errs.ErrShortBuffer
	}
	h.min = minV
	offset := n

	if len(src[offset:]) < 1 {
		return h, errs.ErrShortBuffer
	}
	h.width = int(src[offset])
	offset++

	var count uint64
	n = varint.Get(src[offset:], &count)
	if n == 0 {
		return h, errs.ErrShortBuffer
	}
	h.count = int(count)
	offset += n

	h.dataOff = offset

	return h, nil
}

// Decode fully decodes a FOR-encoded array, returning the values, the
// number of bytes consumed, and any error.
func Decode(src []byte) ([]uint64, int, error) {
	h, err := parseHeader(src)
	if err != nil {
		return nil, 0, err
	}

	need := h.dataOff + h.count*h.width
	if len(src) < need {
		return nil, 0, errs.ErrShortBuffer
	}

	out := make([]uint64, h.count)
	for i := 0; i < h.count; i++ {
		off, err := varint.GetFixed(src[h.dataOff+i*h.width:], h.width)
		if err != nil {
			return nil, 0, err
		}
		out[i] = h.min + off
	}

	return out, need, nil
}

// GetAt performs O(1) random access into a FOR-encoded array, parsing
// the header once and reading only the requested offset.
func GetAt(src []byte, i int) (uint64, error) {
	h, err := parseHeader(src)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= h.count {
		return 0, errs.ErrIndexOutOfRange
	}

	off, err := varint.GetFixed(src[h.dataOff+i*h.width:], h.width)
	if err != nil {
		return 0, err
	}

	return h.min + off, nil
}

// DecodeBlock decodes the half-open range [start, start+blockSize) of
// a FOR-encoded array into out, which must have length >= blockSize.
func DecodeBlock(src []byte, start, blockSize int, out []uint64) error {
	h, err := parseHeader(src)
	if err != nil {
		return err
	}
	if start < 0 || blockSize < 0 || start+blockSize > h.count {
		return errs.ErrIndexOutOfRange
	}
	if len(out) < blockSize {
		return errs.ErrShortBuffer
	}

	base := h.dataOff + start*h.width
	for i := 0; i < blockSize; i++ {
		off, err := varint.GetFixed(src[base+i*h.width:], h.width)
		if err != nil {
			return err
		}
		out[i] = h.min + off
	}

	return nil
}

// EncodedSize returns the exact byte length Encode would produce for
// values, without performing the encode.
func EncodedSize(values []uint64) int {
	minV, _, _, width := Analyse(values)

	return headerLen(minV, len(values)) + len(values)*width
}
