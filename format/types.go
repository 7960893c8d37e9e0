package format

type (
	// EncodingType discriminates the container kind a snapshot holds.
	EncodingType    uint8
	CompressionType uint8
)

const (
	TypeBitmap EncodingType = 0x1 // TypeBitmap marks a persisted bitmap.Bitmap snapshot.
	TypeMatrix EncodingType = 0x2 // TypeMatrix marks a persisted matrix.Matrix snapshot.

	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.

)

func (e EncodingType) String() string {
	switch e {
	case TypeBitmap:
		return "Bitmap"
	case TypeMatrix:
		return "Matrix"
	default:
		return "Unknown"
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}
