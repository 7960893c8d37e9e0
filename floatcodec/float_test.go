package floatcodec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFullPrecisionRoundTripExact(t *testing.T) {
	values := []float64{
		0, -0.0, 1, -1, 3.14159265358979, math.MaxFloat64, -math.MaxFloat64,
		1e-300, -1e-300, 123456789.987654321,
	}

	for _, mode := range []Mode{Independent, CommonExponent, DeltaExponent} {
		dst := make([]byte, 4096)
		n, err := Encode(dst, values, Full, mode)
		require.NoError(t, err)
		require.Equal(t, EncodedSize(values, Full, mode), n)

		out, consumed, err := Decode(dst[:n], len(values))
		require.NoError(t, err)
		require.Equal(t, n, consumed)

		for i, v := range values {
			require.Equal(t, math.Float64bits(v), math.Float64bits(out[i]), "mode=%v idx=%d", mode, i)
		}
	}
}

func TestNegativeZeroSignPreserved(t *testing.T) {
	values := []float64{math.Copysign(0, -1)}

	dst := make([]byte, 64)
	n, err := Encode(dst, values, Full, Independent)
	require.NoError(t, err)

	out, _, err := Decode(dst[:n], 1)
	require.NoError(t, err)
	require.True(t, math.Signbit(out[0]))
}

func TestSpecialValuesRoundTrip(t *testing.T) {
	values := []float64{
		math.NaN(), math.Inf(1), math.Inf(-1), 0, math.Copysign(0, -1),
		math.SmallestNonzeroFloat64, 42.5,
	}

	dst := make([]byte, 4096)
	n, err := Encode(dst, values, High, Independent)
	require.NoError(t, err)

	out, _, err := Decode(dst[:n], len(values))
	require.NoError(t, err)

	require.True(t, math.IsNaN(out[0]))
	require.True(t, math.IsInf(out[1], 1))
	require.True(t, math.IsInf(out[2], -1))
	require.Equal(t, float64(0), out[3])
	require.True(t, math.Signbit(out[4]))
	require.Equal(t, math.SmallestNonzeroFloat64, out[5])
	require.Equal(t, 42.5, out[6])
}

func TestBoundedErrorForLowerPrecisions(t *testing.T) {
	values := []float64{1.0, 2.5, 100.125, 9999.9999, 0.0001}

	for _, p := range []Precision{High, Medium, Low} {
		dst := make([]byte, 4096)
		n, err := Encode(dst, values, p, Independent)
		require.NoError(t, err)

		out, _, err := Decode(dst[:n], len(values))
		require.NoError(t, err)

		maxErr := math.Pow(2, -float64(p.mantBits()))
		for i, v := range values {
			relErr := math.Abs(out[i]-v) / math.Abs(v)
			require.LessOrEqual(t, relErr, maxErr, "precision=%v idx=%d", p, i)
		}
	}
}

func TestSelectPrecision(t *testing.T) {
	require.Equal(t, Low, SelectPrecision(0.1))
	require.Equal(t, Medium, SelectPrecision(0.001))
	require.Equal(t, High, SelectPrecision(2e-7))
	require.Equal(t, Full, SelectPrecision(1e-18))
}

func TestCommonAndDeltaExponentModes(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 100.0 + float64(i)*0.25
	}

	for _, mode := range []Mode{CommonExponent, DeltaExponent} {
		dst := make([]byte, 4096)
		n, err := Encode(dst, values, Full, mode)
		require.NoError(t, err)

		out, consumed, err := Decode(dst[:n], len(values))
		require.NoError(t, err)
		require.Equal(t, n, consumed)
		require.Equal(t, values, out)
	}
}

func TestEmptyArray(t *testing.T) {
	dst := make([]byte, 16)
	n, err := Encode(dst, nil, Full, Independent)
	require.NoError(t, err)

	out, consumed, err := Decode(dst[:n], 0)
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	require.Empty(t, out)
}

func TestHeaderBytesExact(t *testing.T) {
	dst := make([]byte, 64)
	_, err := Encode(dst, []float64{1}, High, DeltaExponent)
	require.NoError(t, err)

	require.Equal(t, byte(High), dst[0])
	require.Equal(t, byte(8), dst[1])
	require.Equal(t, byte(23), dst[2])
	require.Equal(t, byte(DeltaExponent), dst[3])
}

func TestShortBufferOnEncode(t *testing.T) {
	dst := make([]byte, 2)
	_, err := Encode(dst, []float64{1, 2, 3}, Full, Independent)
	require.Error(t, err)
}
