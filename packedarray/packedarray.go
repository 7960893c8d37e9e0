// Package packedarray implements a bit-packed K-valued array: each
// slot holds an unsigned value of a fixed width K (1..64 bits), backed
// by a []uint64 word buffer via the bitstream package, plus an ordered
// binary search (Member) matching the historically bug-prone boundary
// semantics called out in spec §4.9.
package packedarray

import "github.com/tsdbkit/codec/bitstream"

// WordsFor returns the number of uint64 words needed to hold n slots
// of width bits each.
func WordsFor(n, width int) int {
	return bitstream.WordsNeeded(n * width)
}

// Set writes v into slot i of arr (width bits wide).
func Set(arr []uint64, i, width int, v uint64) error {
	return bitstream.Set(arr, i*width, width, v)
}

// Get reads slot i of arr (width bits wide).
func Get(arr []uint64, i, width int) (uint64, error) {
	return bitstream.Get(arr, i*width, width)
}

// Member performs a binary search for v over the first length slots of
// arr, each width bits wide, assuming the slots are sorted
// non-decreasing. It returns the index of the first matching slot and
// true, or (0, false) if v is not present.
//
// Boundary conditions all report "not found" rather than an adjacent
// index: an empty array, a value below the first element, a value
// above the last element, and a would-be insertion point equal to
// length. These are the boundary cases spec §4.9 calls out as the root
// of historical bugs, and they are preserved exactly here.
func Member(arr []uint64, length, width int, v uint64) (int, bool) {
	if length == 0 {
		return 0, false
	}

	lo, hi := 0, length
	for lo < hi {
		mid := lo + (hi-lo)/2

		got, err := Get(arr, mid, width)
		if err != nil {
			return 0, false
		}

		if got < v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if lo == length {
		return 0, false
	}

	got, err := Get(arr, lo, width)
	if err != nil || got != v {
		return 0, false
	}

	return lo, true
}

// InsertSorted inserts v into arr (which must have room for length+1
// slots) at the position that keeps the first length+1 slots sorted
// non-decreasing, shifting later elements up by one. It returns the
// index v was inserted at.
func InsertSorted(arr []uint64, length, width int, v uint64) (int, error) {
	lo, hi := 0, length
	for lo < hi {
		mid := lo + (hi-lo)/2

		got, err := Get(arr, mid, width)
		if err != nil {
			return 0, err
		}

		if got < v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	for i := length; i > lo; i-- {
		prev, err := Get(arr, i-1, width)
		if err != nil {
			return 0, err
		}
		if err := Set(arr, i, width, prev); err != nil {
			return 0, err
		}
	}

	if err := Set(arr, lo, width, v); err != nil {
		return 0, err
	}

	return lo, nil
}

// DeleteMember removes the slot at index i from the first length
// slots of arr, shifting later elements down by one.
func DeleteMember(arr []uint64, length, width, i int) error {
	if i < 0 || i >= length {
		return nil
	}

	for j := i; j < length-1; j++ {
		next, err := Get(arr, j+1, width)
		if err != nil {
			return err
		}
		if err := Set(arr, j, width, next); err != nil {
			return err
		}
	}

	return Set(arr, length-1, width, 0)
}
