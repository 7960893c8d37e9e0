// Package snapshot persists a whole bitmap.Bitmap or matrix.Matrix to a
// single self-describing blob: a fixed header (magic, container kind,
// compression type, payload length), an optionally compressed payload,
// and an xxHash64 checksum footer over header+payload.
package snapshot

import (
	"errors"

	"github.com/tsdbkit/codec/bitmap"
	"github.com/tsdbkit/codec/compress"
	"github.com/tsdbkit/codec/endian"
	"github.com/tsdbkit/codec/errs"
	"github.com/tsdbkit/codec/format"
	"github.com/tsdbkit/codec/internal/hash"
	"github.com/tsdbkit/codec/internal/options"
	"github.com/tsdbkit/codec/matrix"
)

const (
	magic      = uint16(0xC0DE)
	headerSize = 8 // magic(2) + encoding(1) + compression(1) + payloadLen(4)
	footerSize = 8 // xxHash64 checksum over header+payload
)

// Config holds Save-time settings, built from functional Options.
type Config struct {
	compression format.CompressionType
}

func defaultConfig() *Config {
	return &Config{compression: format.CompressionNone}
}

// Option configures a Save call.
type Option = options.Option[*Config]

// WithCompression selects the outer compression codec applied to the
// encoded container payload before the checksum footer is computed.
func WithCompression(c format.CompressionType) Option {
	return options.NoError[*Config](func(cfg *Config) { cfg.compression = c })
}

type header struct {
	encoding    format.EncodingType
	compression format.CompressionType
	payloadLen  uint32
}

func (h header) bytes() []byte {
	b := make([]byte, headerSize)
	eng := endian.GetLittleEndianEngine()
	eng.PutUint16(b[0:2], magic)
	b[2] = byte(h.encoding)
	b[3] = byte(h.compression)
	eng.PutUint32(b[4:8], h.payloadLen)

	return b
}

func parseHeader(data []byte) (header, error) {
	if len(data) != headerSize {
		return header{}, errs.ErrInvalidHeaderSize
	}

	eng := endian.GetLittleEndianEngine()
	if eng.Uint16(data[0:2]) != magic {
		return header{}, errs.ErrInvalidHeaderFlags
	}

	h := header{
		encoding:    format.EncodingType(data[2]),
		compression: format.CompressionType(data[3]),
		payloadLen:  eng.Uint32(data[4:8]),
	}

	if h.encoding != format.TypeBitmap && h.encoding != format.TypeMatrix {
		return header{}, errs.ErrInvalidHeaderFlags
	}

	return h, nil
}

// encodeGrowing retries encode against successively larger buffers
// until it stops reporting errs.ErrShortBuffer, since bitmap.Bitmap
// and matrix.Matrix don't expose their own worst-case encoded size.
func encodeGrowing(encode func(dst []byte) (int, error)) ([]byte, error) {
	for size := 256; size <= 1<<30; size *= 2 {
		dst := make([]byte, size)

		n, err := encode(dst)
		if err == nil {
			return dst[:n], nil
		}
		if !errors.Is(err, errs.ErrShortBuffer) {
			return nil, err
		}
	}

	return nil, errs.ErrAllocation
}

func save(kind format.EncodingType, raw []byte, cfg *Config) ([]byte, error) {
	codec, err := compress.GetCodec(cfg.compression)
	if err != nil {
		return nil, err
	}

	payload, err := codec.Compress(raw)
	if err != nil {
		return nil, err
	}

	h := header{encoding: kind, compression: cfg.compression, payloadLen: uint32(len(payload))}

	out := make([]byte, 0, headerSize+len(payload)+footerSize)
	out = append(out, h.bytes()...)
	out = append(out, payload...)

	footer := make([]byte, footerSize)
	endian.GetLittleEndianEngine().PutUint64(footer, hash.Checksum(out))
	out = append(out, footer...)

	return out, nil
}

func load(want format.EncodingType, src []byte) ([]byte, error) {
	if len(src) < headerSize+footerSize {
		return nil, errs.ErrShortBuffer
	}

	h, err := parseHeader(src[:headerSize])
	if err != nil {
		return nil, err
	}
	if h.encoding != want {
		return nil, errs.ErrInvalidHeaderFlags
	}

	body := src[:len(src)-footerSize]
	wantChecksum := endian.GetLittleEndianEngine().Uint64(src[len(src)-footerSize:])
	if hash.Checksum(body) != wantChecksum {
		return nil, errs.ErrChecksumMismatch
	}

	payload := src[headerSize : len(src)-footerSize]
	if uint32(len(payload)) != h.payloadLen {
		return nil, errs.ErrInvalidHeaderSize
	}

	codec, err := compress.GetCodec(h.compression)
	if err != nil {
		return nil, err
	}

	return codec.Decompress(payload)
}

// SaveBitmap encodes b and wraps it in a snapshot blob.
func SaveBitmap(b *bitmap.Bitmap, opts ...Option) ([]byte, error) {
	cfg := defaultConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	raw, err := encodeGrowing(b.Encode)
	if err != nil {
		return nil, err
	}

	return save(format.TypeBitmap, raw, cfg)
}

// LoadBitmap reconstructs a bitmap.Bitmap from a snapshot blob
// previously produced by SaveBitmap.
func LoadBitmap(src []byte) (*bitmap.Bitmap, error) {
	payload, err := load(format.TypeBitmap, src)
	if err != nil {
		return nil, err
	}

	b, _, err := bitmap.Decode(payload)

	return b, err
}

// SaveMatrix encodes m and wraps it in a snapshot blob.
func SaveMatrix(m *matrix.Matrix, opts ...Option) ([]byte, error) {
	cfg := defaultConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	raw, err := encodeGrowing(m.Encode)
	if err != nil {
		return nil, err
	}

	return save(format.TypeMatrix, raw, cfg)
}

// LoadMatrix reconstructs a matrix.Matrix from a snapshot blob
// previously produced by SaveMatrix.
func LoadMatrix(src []byte) (*matrix.Matrix, error) {
	payload, err := load(format.TypeMatrix, src)
	if err != nil {
		return nil, err
	}

	m, _, err := matrix.Decode(payload)

	return m, err
}
