package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsdbkit/codec/bitmap"
	"github.com/tsdbkit/codec/format"
	"github.com/tsdbkit/codec/matrix"
)

func sampleBitmap() *bitmap.Bitmap {
	b := bitmap.New()
	for _, v := range []uint16{1, 2, 3, 1000, 5000, 65535} {
		b.Add(v)
	}

	return b
}

func TestSaveLoadBitmapRoundTrip(t *testing.T) {
	want := sampleBitmap()

	blob, err := SaveBitmap(want)
	require.NoError(t, err)

	got, err := LoadBitmap(blob)
	require.NoError(t, err)
	require.Equal(t, want.ToSlice(), got.ToSlice())
}

func TestSaveLoadBitmapWithCompression(t *testing.T) {
	for _, c := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			want := sampleBitmap()

			blob, err := SaveBitmap(want, WithCompression(c))
			require.NoError(t, err)

			got, err := LoadBitmap(blob)
			require.NoError(t, err)
			require.Equal(t, want.ToSlice(), got.ToSlice())
		})
	}
}

func TestSaveLoadMatrixRoundTrip(t *testing.T) {
	m, err := matrix.New(4, 4, 32)
	require.NoError(t, err)
	require.NoError(t, m.SetUnsigned(0, 0, 42, 4))
	require.NoError(t, m.SetUnsigned(3, 3, 7, 4))

	blob, err := SaveMatrix(m)
	require.NoError(t, err)

	got, err := LoadMatrix(blob)
	require.NoError(t, err)

	v, err := got.GetUnsigned(0, 0, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)

	v, err = got.GetUnsigned(3, 3, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(7), v)
}

func TestLoadBitmapRejectsMatrixBlob(t *testing.T) {
	m, err := matrix.New(1, 1, 8)
	require.NoError(t, err)

	blob, err := SaveMatrix(m)
	require.NoError(t, err)

	_, err = LoadBitmap(blob)
	require.Error(t, err)
}

func TestLoadRejectsCorruptChecksum(t *testing.T) {
	blob, err := SaveBitmap(sampleBitmap())
	require.NoError(t, err)

	corrupt := append([]byte(nil), blob...)
	corrupt[len(corrupt)-1] ^= 0xFF

	_, err = LoadBitmap(corrupt)
	require.Error(t, err)
}

func TestLoadRejectsShortBuffer(t *testing.T) {
	_, err := LoadBitmap([]byte{0x01, 0x02})
	require.Error(t, err)
}
