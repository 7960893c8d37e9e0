// Package bitmap implements a roaring-style adaptive bitmap over the
// 16-bit value domain [0, 65535]: a sorted ARRAY for low cardinality,
// a fixed 8192-byte BITMAP for high cardinality, and a run-length
// RUNS container for highly clustered data, switching between them
// lazily on Add, Remove, and the explicit Optimize call (spec §3.7/
// §4.7).
package bitmap

import (
	"math/bits"
	"sort"

	"github.com/tsdbkit/codec/endian"
	"github.com/tsdbkit/codec/errs"
	"github.com/tsdbkit/codec/internal/pool"
	"github.com/tsdbkit/codec/varint"
)

// containerType discriminates the three wire/runtime variants.
type containerType byte

const (
	arrayType  containerType = 0
	bitmapType containerType = 1
	runsType   containerType = 2
)

// arrayMaxCardinality is the cardinality above which ARRAY yields to
// BITMAP (spec §3.7: "cardinality ≤ 4096").
const arrayMaxCardinality = 4096

// bitmapWords is the number of uint64 words backing a BITMAP
// container (1024 * 8 = 8192 bytes, covering values 0..65535).
const bitmapWords = 1024

const bitmapByteSize = bitmapWords * 8

// run is a [start, length) pair: values start, start+1, ..., start+length-1.
// length is uint32 (not uint16) because a run can span the entire
// 16-bit value domain (start=0, length=65536), which overflows a
// uint16 counter to 0.
type run struct {
	start  uint16
	length uint32
}

// Bitmap is an adaptive set of uint16 values.
type Bitmap struct {
	variant     containerType
	cardinality int

	array []uint16 // sorted, strictly increasing (ARRAY variant)
	words []uint64 // bitmapWords words (BITMAP variant)
	runs  []run    // sorted, non-overlapping, non-adjacent (RUNS variant)
}

// New returns an empty bitmap, initially in the ARRAY variant.
func New() *Bitmap {
	return &Bitmap{variant: arrayType}
}

// Cardinality returns the number of distinct values currently set,
// which holds regardless of the active variant (spec §3.7 invariant ii).
func (b *Bitmap) Cardinality() int { return b.cardinality }

// Contains reports whether v is a member of b.
func (b *Bitmap) Contains(v uint16) bool {
	switch b.variant {
	case arrayType:
		i := sort.Search(len(b.array), func(i int) bool { return b.array[i] >= v })

		return i < len(b.array) && b.array[i] == v
	case bitmapType:
		return b.words[v>>6]&(uint64(1)<<(v&63)) != 0
	case runsType:
		i := sort.Search(len(b.runs), func(i int) bool { return b.runs[i].start > v })
		if i == 0 {
			return false
		}
		r := b.runs[i-1]

		return uint32(v) < uint32(r.start)+r.length
	default:
		return false
	}
}

// Add inserts v, returning true iff v was not already present. Add is
// idempotent.
func (b *Bitmap) Add(v uint16) bool {
	if b.variant == runsType {
		b.convertRunsToBitmap()
	}

	var changed bool
	switch b.variant {
	case arrayType:
		i := sort.Search(len(b.array), func(i int) bool { return b.array[i] >= v })
		if i < len(b.array) && b.array[i] == v {
			changed = false
		} else {
			b.array = append(b.array, 0)
			copy(b.array[i+1:], b.array[i:])
			b.array[i] = v
			changed = true
		}
	case bitmapType:
		mask := uint64(1) << (v & 63)
		if b.words[v>>6]&mask != 0 {
			changed = false
		} else {
			b.words[v>>6] |= mask
			changed = true
		}
	}

	if changed {
		b.cardinality++
		b.adaptCardinality()
	}

	return changed
}

// Remove deletes v, returning true iff v was present.
func (b *Bitmap) Remove(v uint16) bool {
	if b.variant == runsType {
		b.convertRunsToBitmap()
	}

	var changed bool
	switch b.variant {
	case arrayType:
		i := sort.Search(len(b.array), func(i int) bool { return b.array[i] >= v })
		if i < len(b.array) && b.array[i] == v {
			b.array = append(b.array[:i], b.array[i+1:]...)
			changed = true
		}
	case bitmapType:
		mask := uint64(1) << (v & 63)
		if b.words[v>>6]&mask != 0 {
			b.words[v>>6] &^= mask
			changed = true
		}
	}

	if changed {
		b.cardinality--
		b.adaptCardinality()
	}

	return changed
}

// ToSlice returns every member of b in ascending order.
func (b *Bitmap) ToSlice() []uint16 {
	out := make([]uint16, 0, b.cardinality)

	switch b.variant {
	case arrayType:
		out = append(out, b.array...)
	case bitmapType:
		for w := 0; w < bitmapWords; w++ {
			word := b.words[w]
			for word != 0 {
				bit := bits.TrailingZeros64(word)
				out = append(out, uint16(w*64+bit))
				word &= word - 1
			}
		}
	case runsType:
		for _, r := range b.runs {
			for i := uint32(0); i < r.length; i++ {
				out = append(out, r.start+uint16(i))
			}
		}
	}

	return out
}

// Iterator is an ascending, non-restartable traversal of a bitmap's
// members. NewIterator copies every member into the iterator up front,
// so values are not produced lazily and later changes to the bitmap are
// not seen. Obtain a fresh one via NewIterator to iterate again.
type Iterator struct {
	values []uint16
	pos    int
}

// NewIterator returns an iterator over b's current members.
func (b *Bitmap) NewIterator() *Iterator {
	return &Iterator{values: b.ToSlice()}
}

// Next returns the next value in ascending order, or (0, false) once
// exhausted.
func (it *Iterator) Next() (uint16, bool) {
	if it.pos >= len(it.values) {
		return 0, false
	}
	v := it.values[it.pos]
	it.pos++

	return v, true
}

// Clone returns a deep copy of b.
func (b *Bitmap) Clone() *Bitmap {
	clone := &Bitmap{variant: b.variant, cardinality: b.cardinality}
	if b.array != nil {
		clone.array = append([]uint16(nil), b.array...)
	}
	if b.words != nil {
		clone.words = append([]uint64(nil), b.words...)
	}
	if b.runs != nil {
		clone.runs = append([]run(nil), b.runs...)
	}

	return clone
}

// Optimize re-evaluates whether b's current variant is the most
// compact representation for its cardinality and run density,
// converting if not.
func (b *Bitmap) Optimize() {
	b.adapt()
}

// Free releases b's backing buffers. Go's garbage collector reclaims
// memory on its own, but the core's lifecycle contract (every
// allocation paired with an explicit release) still bounds peak memory
// by dropping references immediately rather than waiting on the
// collector to notice the bitmap is unreachable.
func (b *Bitmap) Free() {
	b.array = nil
	b.words = nil
	b.runs = nil
	b.cardinality = 0
}

func newFromSorted(values []uint16) *Bitmap {
	b := &Bitmap{variant: arrayType, array: values, cardinality: len(values)}
	b.adapt()

	return b
}

// adaptCardinality applies only the ARRAY<->BITMAP transition the
// spec §4.7 diagram drives directly off Add/Remove's cardinality
// threshold. The BITMAP<->RUNS transition is driven by run density,
// not cardinality, and is reconsidered only via the explicit adapt
// (Optimize, construction from decoded/combined data) — not on every
// mutation — so a long contiguous insertion run (e.g. S5's add
// 0..4999) lands in BITMAP rather than immediately hopping to RUNS.
func (b *Bitmap) adaptCardinality() {
	if b.variant == arrayType && b.cardinality > arrayMaxCardinality {
		b.convertArrayToBitmap()
	} else if b.variant == bitmapType && b.cardinality <= arrayMaxCardinality {
		b.convertBitmapToArray()
	}
}

// adapt converts b to the most compact variant for its current
// cardinality and run density (spec §4.7 state machine). It is called
// from Optimize and whenever a bitmap is freshly constructed from a
// sorted value set (decode, set algebra results), where reconsidering
// RUNS is always appropriate.
func (b *Bitmap) adapt() {
	b.adaptCardinality()

	if b.variant != runsType && b.runsBeneficial() {
		b.convertToRuns()

		return
	}

	if b.variant == runsType && !b.runsBeneficial() {
		b.convertRunsToBitmap()
		if b.cardinality <= arrayMaxCardinality {
			b.convertBitmapToArray()
		}
	}
}

func (b *Bitmap) countRuns() int {
	values := b.ToSlice()
	if len(values) == 0 {
		return 0
	}

	runs := 1
	for i := 1; i < len(values); i++ {
		if values[i] != values[i-1]+1 {
			runs++
		}
	}

	return runs
}

// runsBeneficial reports whether a RUNS encoding of b's current
// membership would be smaller than both ARRAY and BITMAP (spec §4.7:
// "switch when that beats both ARRAY (2·cardinality) and BITMAP (8192)").
// Each run pair is stored as a 2-byte start plus a 4-byte length (see
// run.length), so a run costs 6 bytes on the wire.
func (b *Bitmap) runsBeneficial() bool {
	numRuns := b.countRuns()
	runBytes := numRuns * 6

	return runBytes < 2*b.cardinality && runBytes < bitmapByteSize
}

func (b *Bitmap) convertArrayToBitmap() {
	words := make([]uint64, bitmapWords)
	for _, v := range b.array {
		words[v>>6] |= uint64(1) << (v & 63)
	}
	b.variant = bitmapType
	b.words = words
	b.array = nil
}

func (b *Bitmap) convertBitmapToArray() {
	b.variant = arrayType
	b.array = b.ToSlice()
	b.words = nil
}

// convertToRuns rebuilds b as the RUNS variant from its current
// membership, regardless of whether b was previously ARRAY or BITMAP.
func (b *Bitmap) convertToRuns() {
	values := b.ToSlice()
	var runs []run
	i := 0
	for i < len(values) {
		start := values[i]
		length := 1
		for i+length < len(values) && values[i+length] == start+uint16(length) {
			length++
		}
		runs = append(runs, run{start: start, length: uint32(length)})
		i += length
	}
	b.variant = runsType
	b.runs = runs
	b.words = nil
	b.array = nil
}

func (b *Bitmap) convertRunsToBitmap() {
	words := make([]uint64, bitmapWords)
	for _, r := range b.runs {
		for i := uint32(0); i < r.length; i++ {
			v := r.start + uint16(i)
			words[v>>6] |= uint64(1) << (v & 63)
		}
	}
	b.variant = bitmapType
	b.words = words
	b.runs = nil
}

// And returns a newly allocated bitmap containing values present in
// both a and b. a and b are left unmodified.
func And(a, b *Bitmap) (*Bitmap, error) {
	av, bv := a.ToSlice(), b.ToSlice()
	out := make([]uint16, 0, min(len(av), len(bv)))

	i, j := 0, 0
	for i < len(av) && j < len(bv) {
		switch {
		case av[i] == bv[j]:
			out = append(out, av[i])
			i++
			j++
		case av[i] < bv[j]:
			i++
		default:
			j++
		}
	}

	return newFromSorted(out), nil
}

// Or returns a newly allocated bitmap containing values present in
// either a or b.
func Or(a, b *Bitmap) (*Bitmap, error) {
	av, bv := a.ToSlice(), b.ToSlice()
	out := make([]uint16, 0, len(av)+len(bv))

	i, j := 0, 0
	for i < len(av) && j < len(bv) {
		switch {
		case av[i] == bv[j]:
			out = append(out, av[i])
			i++
			j++
		case av[i] < bv[j]:
			out = append(out, av[i])
			i++
		default:
			out = append(out, bv[j])
			j++
		}
	}
	out = append(out, av[i:]...)
	out = append(out, bv[j:]...)

	return newFromSorted(out), nil
}

// Xor returns a newly allocated bitmap containing values present in
// exactly one of a or b.
func Xor(a, b *Bitmap) (*Bitmap, error) {
	av, bv := a.ToSlice(), b.ToSlice()
	out := make([]uint16, 0, len(av)+len(bv))

	i, j := 0, 0
	for i < len(av) && j < len(bv) {
		switch {
		case av[i] == bv[j]:
			i++
			j++
		case av[i] < bv[j]:
			out = append(out, av[i])
			i++
		default:
			out = append(out, bv[j])
			j++
		}
	}
	out = append(out, av[i:]...)
	out = append(out, bv[j:]...)

	return newFromSorted(out), nil
}

// AndNot returns a newly allocated bitmap containing values present in
// a but not in b. Unlike And/Or/Xor, AndNot is not commutative.
func AndNot(a, b *Bitmap) (*Bitmap, error) {
	av, bv := a.ToSlice(), b.ToSlice()
	out := make([]uint16, 0, len(av))

	i, j := 0, 0
	for i < len(av) {
		for j < len(bv) && bv[j] < av[i] {
			j++
		}
		if j < len(bv) && bv[j] == av[i] {
			i++

			continue
		}
		out = append(out, av[i])
		i++
	}

	return newFromSorted(out), nil
}

// Encode writes b to dst: a container-type byte, a tagged-varint
// cardinality, then the variant-specific payload (spec §6). It
// returns the number of bytes written.
func (b *Bitmap) Encode(dst []byte) (int, error) {
	if len(dst) < 1 {
		return 0, errs.ErrShortBuffer
	}
	dst[0] = byte(b.variant)
	offset := 1

	n, err := varint.Put(dst[offset:], uint64(b.cardinality))
	if err != nil {
		return offset, err
	}
	offset += n

	switch b.variant {
	case arrayType:
		for _, v := range b.array {
			n, err := varint.PutFixed(dst[offset:], uint64(v), 2)
			if err != nil {
				return offset, err
			}
			offset += n
		}
	case bitmapType:
		if len(dst[offset:]) < bitmapByteSize {
			return offset, errs.ErrShortBuffer
		}
		eng := endian.GetLittleEndianEngine()
		for i, w := range b.words {
			eng.PutUint64(dst[offset+i*8:], w)
		}
		offset += bitmapByteSize
	case runsType:
		for _, r := range b.runs {
			n, err := varint.PutFixed(dst[offset:], uint64(r.start), 2)
			if err != nil {
				return offset, err
			}
			offset += n

			n, err = varint.PutFixed(dst[offset:], uint64(r.length), 4)
			if err != nil {
				return offset, err
			}
			offset += n
		}
	}

	return offset, nil
}

// Decode reconstructs a bitmap from src, choosing the most compact
// runtime variant for the decoded membership rather than necessarily
// preserving the variant it was encoded with (spec §4.7). It returns
// the new bitmap and the number of bytes consumed.
func Decode(src []byte) (*Bitmap, int, error) {
	if len(src) < 1 {
		return nil, 0, errs.ErrShortBuffer
	}
	variant := containerType(src[0])
	offset := 1

	var card uint64
	n := varint.Get(src[offset:], &card)
	if n == 0 {
		return nil, 0, errs.ErrShortBuffer
	}
	offset += n
	cardinality := int(card)

	switch variant {
	case arrayType:
		values := make([]uint16, cardinality)
		for i := range values {
			v, err := varint.GetFixed(src[offset:], 2)
			if err != nil {
				return nil, 0, err
			}
			values[i] = uint16(v)
			offset += 2
		}

		return newFromSorted(values), offset, nil

	case bitmapType:
		if len(src[offset:]) < bitmapByteSize {
			return nil, 0, errs.ErrShortBuffer
		}
		words, cleanup := pool.GetUint64Slice(bitmapWords)
		defer cleanup()
		eng := endian.GetLittleEndianEngine()
		for i := 0; i < bitmapWords; i++ {
			words[i] = eng.Uint64(src[offset+i*8:])
		}
		offset += bitmapByteSize

		b := &Bitmap{variant: bitmapType, words: append([]uint64(nil), words...), cardinality: cardinality}
		b.adapt()

		return b, offset, nil

	case runsType:
		var values []uint16
		for len(values) < cardinality {
			start, err := varint.GetFixed(src[offset:], 2)
			if err != nil {
				return nil, 0, err
			}
			offset += 2

			length, err := varint.GetFixed(src[offset:], 4)
			if err != nil {
				return nil, 0, err
			}
			offset += 4

			for i := uint64(0); i < length; i++ {
				values = append(values, uint16(start+i))
			}
		}

		return newFromSorted(values), offset, nil

	default:
		return nil, 0, errs.ErrInvalidContainerType
	}
}
