package fmtconv

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestS16RoundTripPreservesValue(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := int16(rapid.IntRange(-32768, 32767).Draw(t, "v"))
		in := encodeS16([]int16{v})
		f := decodeToFloat32(S16LE, in, 1, nil)
		out := make([]byte, 2)
		encodeFromFloat32(S16LE, f, out)
		require.Equal(t, in, out)
	})
}

func TestU8FullScaleDecodesToUnitRange(t *testing.T) {
	f := decodeToFloat32(U8, []byte{0, 255, 128}, 3, nil)
	require.InDelta(t, -1.0, f[0], 0.01)
	require.InDelta(t, 1.0, f[1], 0.01)
	require.InDelta(t, 0.0, f[2], 0.01)
}

func TestEncodeClipsOutOfRangeFloat(t *testing.T) {
	out := make([]byte, 2)
	encodeFromFloat32(S16LE, []float32{2.0}, out)
	got := decodeS16(out, 1)[0]
	require.Equal(t, int16(32767), got)

	encodeFromFloat32(S16LE, []float32{-2.0}, out)
	got = decodeS16(out, 1)[0]
	require.Equal(t, int16(-32768), got)
}

func TestS24Packed3ByteRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := int32(rapid.IntRange(-8388608, 8388607).Draw(t, "v"))
		in := []byte{byte(v), byte(v >> 8), byte(v >> 16)}
		f := decodeToFloat32(S24LE3Packed, in, 1, nil)
		out := make([]byte, 3)
		encodeFromFloat32(S24LE3Packed, f, out)
		require.Equal(t, in, out)
	})
}

func TestF32PassesThroughUnchanged(t *testing.T) {
	in := []float32{0.5, -0.25, 0.999}
	buf := decodeToFloat32(F32LE, floatBytes(in), len(in), nil)
	for i := range in {
		require.InDelta(t, float64(in[i]), float64(buf[i]), 1e-6)
	}
}

func floatBytes(in []float32) []byte {
	out := make([]byte, 0, len(in)*4)
	tmp := make([]byte, 4)
	for _, v := range in {
		encodeFromFloat32(F32LE, []float32{v}, tmp)
		out = append(out, tmp...)
	}
	return out
}
