// Package matrix implements the dimension matrix: a dense 2-D array of
// fixed-width cells addressed by row*cols+col, with two alternative
// header encodings (a width-tagged row/col pair, and a fused packed
// word) per spec §3.8/§4.8.
package matrix

import (
	"math"

	"github.com/tsdbkit/codec/bitstream"
	"github.com/tsdbkit/codec/endian"
	"github.com/tsdbkit/codec/errs"
	"github.com/tsdbkit/codec/packedarray"
	"github.com/tsdbkit/codec/varint"
)

// Dimensions is the dimension_pair opaque handle: the row and col
// magnitudes plus the byte width each needed (derived via
// varint.FixedWidthFor) and therefore the total header length. Rows
// of 0 mark a vector: only cols is carried on the wire and every cell
// access uses an implicit row 0.
type Dimensions struct {
	Rows, Cols         uint64
	RowWidth, ColWidth int
}

// NewDimensions derives the pair handle for a rows x cols matrix.
// rows == 0 marks a vector of length cols.
func NewDimensions(rows, cols uint64) Dimensions {
	var rowWidth int
	if rows != 0 {
		rowWidth = varint.FixedWidthFor(rows)
	}

	return Dimensions{Rows: rows, Cols: cols, RowWidth: rowWidth, ColWidth: varint.FixedWidthFor(cols)}
}

// HeaderLen returns the number of header bytes EncodeHeader writes:
// one width-tag byte per dimension plus the dimension values
// themselves.
func (d Dimensions) HeaderLen() int {
	return 2 + d.RowWidth + d.ColWidth
}

// effRows returns the row count to use in cell addressing: 1 for a
// vector (Rows == 0), Rows otherwise.
func (d Dimensions) effRows() uint64 {
	if d.Rows == 0 {
		return 1
	}

	return d.Rows
}

// EncodeHeader writes d's width tags and dimension values to dst.
func (d Dimensions) EncodeHeader(dst []byte) (int, error) {
	if len(dst) < d.HeaderLen() {
		return 0, errs.ErrShortBuffer
	}
	dst[0] = byte(d.RowWidth)
	dst[1] = byte(d.ColWidth)
	offset := 2

	if d.RowWidth > 0 {
		n, err := varint.PutFixedBE(dst[offset:], d.Rows, d.RowWidth)
		if err != nil {
			return 0, err
		}
		offset += n
	}

	n, err := varint.PutFixedBE(dst[offset:], d.Cols, d.ColWidth)
	if err != nil {
		return 0, err
	}
	offset += n

	return offset, nil
}

// DecodeDimensions reads a pair handle previously written by EncodeHeader.
func DecodeDimensions(src []byte) (Dimensions, int, error) {
	if len(src) < 2 {
		return Dimensions{}, 0, errs.ErrShortBuffer
	}
	rowWidth := int(src[0])
	colWidth := int(src[1])
	offset := 2

	var rows uint64
	if rowWidth > 0 {
		v, err := varint.GetFixedBE(src[offset:], rowWidth)
		if err != nil {
			return Dimensions{}, 0, err
		}
		rows = v
		offset += rowWidth
	}

	cols, err := varint.GetFixedBE(src[offset:], colWidth)
	if err != nil {
		return Dimensions{}, 0, err
	}
	offset += colWidth

	return Dimensions{Rows: rows, Cols: cols, RowWidth: rowWidth, ColWidth: colWidth}, offset, nil
}

// PackedDimensions is the dimension_packed alternative: row and col
// fused into a single 64-bit word, row shifted left by 4*K bits and
// OR-ed with col. K is the smallest value with 2^(4K) exceeding both
// row and col, and travels out-of-band as a one-byte tag.
type PackedDimensions struct {
	K    uint8
	Word uint64
}

// NewPackedDimensions fuses rows and cols into a packed handle.
func NewPackedDimensions(rows, cols uint64) (PackedDimensions, error) {
	max := rows
	if cols > max {
		max = cols
	}

	for k := uint8(1); k <= 16; k++ {
		if max < uint64(1)<<(4*uint(k)) {
			return PackedDimensions{K: k, Word: rows<<(4*uint(k)) | cols}, nil
		}
	}

	return PackedDimensions{}, errs.ErrValueTooWide
}

// Rows extracts the row coordinate from the packed word.
func (p PackedDimensions) Rows() uint64 { return p.Word >> (4 * uint(p.K)) }

// Cols extracts the col coordinate from the packed word.
func (p PackedDimensions) Cols() uint64 {
	return p.Word & (uint64(1)<<(4*uint(p.K)) - 1)
}

// Encode writes the K tag byte followed by the 8-byte packed word.
func (p PackedDimensions) Encode(dst []byte) (int, error) {
	if len(dst) < 9 {
		return 0, errs.ErrShortBuffer
	}
	dst[0] = p.K
	endian.GetLittleEndianEngine().PutUint64(dst[1:], p.Word)

	return 9, nil
}

// DecodePackedDimensions inverts Encode.
func DecodePackedDimensions(src []byte) (PackedDimensions, int, error) {
	if len(src) < 9 {
		return PackedDimensions{}, 0, errs.ErrShortBuffer
	}

	return PackedDimensions{K: src[0], Word: endian.GetLittleEndianEngine().Uint64(src[1:])}, 9, nil
}

// Matrix is a dense rows x cols array of fixed-width cells, backed by
// a bitstream word buffer. Cell width is fixed at construction; the
// bit, N-byte unsigned and float32/float64/float16 accessor families
// reject calls against a matrix configured for a different width. The
// signed accessors take no width and use the matrix's cell width.
type Matrix struct {
	dim      Dimensions
	cellBits int
	body     []uint64
}

// New allocates a rows x cols matrix with cellBits-wide cells.
// cellBits must be 1 (boolean), 8*N for N in 1..8 (unsigned/signed),
// or one of 16/32/64 (float16/float32/float64).
func New(rows, cols uint64, cellBits int) (*Matrix, error) {
	if cellBits < 1 || cellBits > 64 {
		return nil, errs.ErrValueTooWide
	}

	dim := NewDimensions(rows, cols)
	nCells := dim.effRows() * cols
	body := make([]uint64, bitstream.WordsNeeded(int(nCells)*cellBits))

	return &Matrix{dim: dim, cellBits: cellBits, body: body}, nil
}

// Rows reports the effective row count (1 for a vector matrix).
func (m *Matrix) Rows() uint64 { return m.dim.effRows() }

// Cols reports the column count.
func (m *Matrix) Cols() uint64 { return m.dim.Cols }

// cellIndex returns row*cols+col, the slot index packedarray's
// Set/Get address cells by (each cellBits wide).
func (m *Matrix) cellIndex(row, col uint64) (int, error) {
	if col >= m.dim.Cols || row >= m.dim.effRows() {
		return 0, errs.ErrIndexOutOfRange
	}

	return int(row*m.dim.Cols + col), nil
}

// cellOffset returns the absolute bit offset of a cell, for the
// accessor families packedarray has no equivalent for (signed
// sign-magnitude cells, float cells).
func (m *Matrix) cellOffset(row, col uint64) (int, error) {
	idx, err := m.cellIndex(row, col)
	if err != nil {
		return 0, err
	}

	return idx * m.cellBits, nil
}

// SetBit writes a single boolean cell.
func (m *Matrix) SetBit(row, col uint64, v bool) error {
	if m.cellBits != 1 {
		return errs.ErrValueTooWide
	}
	idx, err := m.cellIndex(row, col)
	if err != nil {
		return err
	}

	var stored uint64
	if v {
		stored = 1
	}

	return packedarray.Set(m.body, idx, 1, stored)
}

// GetBit reads a single boolean cell.
func (m *Matrix) GetBit(row, col uint64) (bool, error) {
	if m.cellBits != 1 {
		return false, errs.ErrValueTooWide
	}
	idx, err := m.cellIndex(row, col)
	if err != nil {
		return false, err
	}
	v, err := packedarray.Get(m.body, idx, 1)
	if err != nil {
		return false, err
	}

	return v != 0, nil
}

// ToggleBit flips a single boolean cell.
func (m *Matrix) ToggleBit(row, col uint64) error {
	cur, err := m.GetBit(row, col)
	if err != nil {
		return err
	}

	return m.SetBit(row, col, !cur)
}

// SetUnsigned writes v into a cell configured for widthBytes*8 bits.
func (m *Matrix) SetUnsigned(row, col uint64, v uint64, widthBytes int) error {
	if widthBytes < 1 || widthBytes > 8 || widthBytes*8 != m.cellBits {
		return errs.ErrValueTooWide
	}
	idx, err := m.cellIndex(row, col)
	if err != nil {
		return err
	}

	return packedarray.Set(m.body, idx, m.cellBits, v)
}

// GetUnsigned reads a widthBytes*8-bit unsigned cell.
func (m *Matrix) GetUnsigned(row, col uint64, widthBytes int) (uint64, error) {
	if widthBytes < 1 || widthBytes > 8 || widthBytes*8 != m.cellBits {
		return 0, errs.ErrValueTooWide
	}
	idx, err := m.cellIndex(row, col)
	if err != nil {
		return 0, err
	}

	return packedarray.Get(m.body, idx, m.cellBits)
}

// SetSigned writes v using the §4.1 sign-at-bit-(cellBits-1) convention.
func (m *Matrix) SetSigned(row, col uint64, v int64) error {
	off, err := m.cellOffset(row, col)
	if err != nil {
		return err
	}

	return bitstream.SetSigned(m.body, off, m.cellBits, v)
}

// GetSigned reads a signed cell written by SetSigned.
func (m *Matrix) GetSigned(row, col uint64) (int64, error) {
	off, err := m.cellOffset(row, col)
	if err != nil {
		return 0, err
	}

	return bitstream.GetSigned(m.body, off, m.cellBits)
}

// SetFloat writes a 32-bit float cell.
func (m *Matrix) SetFloat(row, col uint64, v float32) error {
	if m.cellBits != 32 {
		return errs.ErrValueTooWide
	}
	off, err := m.cellOffset(row, col)
	if err != nil {
		return err
	}

	return bitstream.Set(m.body, off, 32, uint64(math.Float32bits(v)))
}

// GetFloat reads a 32-bit float cell.
func (m *Matrix) GetFloat(row, col uint64) (float32, error) {
	if m.cellBits != 32 {
		return 0, errs.ErrValueTooWide
	}
	off, err := m.cellOffset(row, col)
	if err != nil {
		return 0, err
	}
	v, err := bitstream.Get(m.body, off, 32)
	if err != nil {
		return 0, err
	}

	return math.Float32frombits(uint32(v)), nil
}

// SetDouble writes a 64-bit float cell.
func (m *Matrix) SetDouble(row, col uint64, v float64) error {
	if m.cellBits != 64 {
		return errs.ErrValueTooWide
	}
	off, err := m.cellOffset(row, col)
	if err != nil {
		return err
	}

	return bitstream.Set(m.body, off, 64, math.Float64bits(v))
}

// GetDouble reads a 64-bit float cell.
func (m *Matrix) GetDouble(row, col uint64) (float64, error) {
	if m.cellBits != 64 {
		return 0, errs.ErrValueTooWide
	}
	off, err := m.cellOffset(row, col)
	if err != nil {
		return 0, err
	}
	v, err := bitstream.Get(m.body, off, 64)
	if err != nil {
		return 0, err
	}

	return math.Float64frombits(v), nil
}

// SetFloatHalf stores v as an IEEE-754 binary16 cell. This module has
// no hardware FP16 conversion path available, so the conversion is
// always the software fallback spec §4.8 allows.
func (m *Matrix) SetFloatHalf(row, col uint64, v float32) error {
	if m.cellBits != 16 {
		return errs.ErrValueTooWide
	}
	off, err := m.cellOffset(row, col)
	if err != nil {
		return err
	}

	return bitstream.Set(m.body, off, 16, uint64(float32ToHalf(v)))
}

// GetFloatHalf reads a binary16 cell back as a float32.
func (m *Matrix) GetFloatHalf(row, col uint64) (float32, error) {
	if m.cellBits != 16 {
		return 0, errs.ErrValueTooWide
	}
	off, err := m.cellOffset(row, col)
	if err != nil {
		return 0, err
	}
	v, err := bitstream.Get(m.body, off, 16)
	if err != nil {
		return 0, err
	}

	return halfToFloat32(uint16(v)), nil
}

// float32ToHalf performs a round-to-nearest-even software conversion
// from float32 to IEEE-754 binary16.
func float32ToHalf(v float32) uint16 {
	bits := math.Float32bits(v)
	sign := uint16((bits >> 16) & 0x8000)
	exp := int32((bits>>23)&0xFF) - 127 + 15
	mant := bits & 0x7FFFFF

	switch {
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint(14 - exp)
		h := mant >> shift
		if rem, half := mant&(1<<shift-1), uint32(1)<<(shift-1); rem > half || (rem == half && h&1 != 0) {
			h++
		}

		return sign | uint16(h)
	case exp >= 0x1F:
		if mant != 0 {
			return sign | 0x7E00 // quiet NaN
		}

		return sign | 0x7C00 // Inf
	default:
		h := uint32(exp)<<10 | mant>>13
		if rem := mant & 0x1FFF; rem > 0x1000 || (rem == 0x1000 && h&1 != 0) {
			h++ // a carry out of the mantissa rounds up to the next exponent or Inf
		}

		return sign | uint16(h)
	}
}

// halfToFloat32 inverts float32ToHalf.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1F
	mant := uint32(h & 0x3FF)

	switch {
	case exp == 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: normalise by shifting until the implicit bit appears.
		e := int32(-1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3FF
		bits := sign | uint32(int32(127-14+1+e))<<23 | mant<<13

		return math.Float32frombits(bits)
	case exp == 0x1F:
		bits := sign | 0xFF<<23 | mant<<13

		return math.Float32frombits(bits)
	default:
		bits := sign | (exp-15+127)<<23 | mant<<13

		return math.Float32frombits(bits)
	}
}

// Clone returns a deep copy of m.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{dim: m.dim, cellBits: m.cellBits, body: append([]uint64(nil), m.body...)}
}

// Optimize is a no-op: a dense matrix's body is already maximally
// compact for its configured cell width, so there is no denser
// variant to repack into (unlike bitmap's adaptive containers).
func (m *Matrix) Optimize() {}

// Free releases m's backing buffer.
func (m *Matrix) Free() { m.body = nil }

// Encode writes m's dimension header, cell-width byte, and body to dst.
func (m *Matrix) Encode(dst []byte) (int, error) {
	offset, err := m.dim.EncodeHeader(dst)
	if err != nil {
		return 0, err
	}

	if len(dst[offset:]) < 1 {
		return 0, errs.ErrShortBuffer
	}
	dst[offset] = byte(m.cellBits)
	offset++

	bodyBytes := len(m.body) * 8
	if len(dst[offset:]) < bodyBytes {
		return 0, errs.ErrShortBuffer
	}
	eng := endian.GetLittleEndianEngine()
	for i, w := range m.body {
		eng.PutUint64(dst[offset+i*8:], w)
	}
	offset += bodyBytes

	return offset, nil
}

// Decode reconstructs a matrix previously written by Encode.
func Decode(src []byte) (*Matrix, int, error) {
	dim, offset, err := DecodeDimensions(src)
	if err != nil {
		return nil, 0, err
	}

	if len(src[offset:]) < 1 {
		return nil, 0, errs.ErrShortBuffer
	}
	cellBits := int(src[offset])
	offset++

	nCells := dim.effRows() * dim.Cols
	nWords := bitstream.WordsNeeded(int(nCells) * cellBits)
	bodyBytes := nWords * 8
	if len(src[offset:]) < bodyBytes {
		return nil, 0, errs.ErrShortBuffer
	}

	body := make([]uint64, nWords)
	eng := endian.GetLittleEndianEngine()
	for i := range body {
		body[i] = eng.Uint64(src[offset+i*8:])
	}
	offset += bodyBytes

	return &Matrix{dim: dim, cellBits: cellBits, body: body}, offset, nil
}
