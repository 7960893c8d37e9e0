// Package errs defines the sentinel errors shared by the codec packages.
//
// The codec packages report failures through these values rather than
// panicking, so callers can use errors.Is to branch on the failure kind:
// short-buffer, overflow, allocation, and contract-violation failures.
// The compress package's codecs are the exception: they return their own
// formatted errors.
package errs

import "errors"

var (
	// ErrShortBuffer is returned when a decode call does not have enough
	// bytes available to satisfy the length a header or prefix declares.
	ErrShortBuffer = errors.New("codec: short buffer")

	// ErrInvalidHeaderSize is returned when a fixed-size header slice is
	// not exactly the expected length.
	ErrInvalidHeaderSize = errors.New("codec: invalid header size")

	// ErrInvalidHeaderFlags is returned when a parsed header fails
	// validation (bad magic, unknown encoding, or an encoding other than
	// the one requested). An unknown compression type is reported by the
	// compress package's own error instead.
	ErrInvalidHeaderFlags = errors.New("codec: invalid header flags")

	// ErrOverflow is returned when an in-place arithmetic update would
	// require more bytes than the caller's buffer currently reserves.
	ErrOverflow = errors.New("codec: value overflows reserved width")

	// ErrValueTooWide is returned at encode time when a value does not
	// fit in a caller-declared fixed width.
	ErrValueTooWide = errors.New("codec: value too wide for declared width")

	// ErrAllocation is returned by the snapshot package when a container
	// still reports a short buffer after its encode buffer has been grown
	// to 1 GiB.
	ErrAllocation = errors.New("codec: allocation failed")

	// ErrIndexOutOfRange is returned by forcodec's GetAt and DecodeBlock,
	// by matrix cell accessors and by bitstream field reads and writes
	// when the requested index or bit range is outside the valid domain.
	ErrIndexOutOfRange = errors.New("codec: index out of range")

	// ErrUnsortedInput names a broken sorted-sequence contract. No
	// package in this module returns it: delta block encoding and RUNS
	// container construction do not check the order of their input.
	ErrUnsortedInput = errors.New("codec: input is not sorted")

	// ErrInvalidContainerType is returned when decoding a container
	// whose leading type discriminator byte is not one of the known
	// variants.
	ErrInvalidContainerType = errors.New("codec: invalid container type")

	// ErrPrecisionUnreachable names a target error bound that FULL
	// precision cannot satisfy. No package in this module returns it:
	// floatcodec.SelectPrecision falls back to FULL instead.
	ErrPrecisionUnreachable = errors.New("codec: requested precision unreachable")

	// ErrInvalidCompression names an unknown compression type. The
	// compress package's CreateCodec and GetCodec do not return it; they
	// report unknown types with their own formatted errors.
	ErrInvalidCompression = errors.New("codec: invalid compression type")

	// ErrChecksumMismatch is returned when a container footer checksum
	// does not match the recomputed checksum of the payload.
	ErrChecksumMismatch = errors.New("codec: checksum mismatch")
)
