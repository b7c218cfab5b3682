package fmtconv

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func s16Format(rate, ch int) Format {
	return Format{SampleFormat: S16LE, RateHz: rate, NumChannels: ch, ChannelLayout: UnsetLayout}
}

func encodeS16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func decodeS16(b []byte, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// Invariant 5: identical in/out formats degenerate to a byte-for-byte
// copy with zero active conversion stages.
func TestIdentityConverterIsMemcpy(t *testing.T) {
	f := s16Format(48000, 2)
	conv, err := Create(f, f, 512)
	require.NoError(t, err)
	require.Equal(t, 0, conv.NumConverters())

	in := encodeS16([]int16{100, -200, 300, -400})
	out := make([]byte, len(in))
	n, err := conv.Convert(in, 2, out)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, in, out)
}

// Invariant 6: a full-scale sine on both channels of a stereo→mono
// mixdown must saturate (clip), not wrap, since the mix is a sum.
func TestStereoToMonoClipsNotWraps(t *testing.T) {
	conv, err := Create(s16Format(48000, 2), s16Format(48000, 1), 8)
	require.NoError(t, err)

	in := encodeS16([]int16{32767, 32767})
	out := make([]byte, 2)
	n, err := conv.Convert(in, 1, out)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got := decodeS16(out, 1)[0]
	require.Equal(t, int16(32767), got, "sum of two full-scale samples must clip to max, not wrap negative")
}

func TestMonoToStereoDuplicatesChannel(t *testing.T) {
	conv, err := Create(s16Format(48000, 1), s16Format(48000, 2), 8)
	require.NoError(t, err)

	in := encodeS16([]int16{1000, -1000})
	out := make([]byte, 8)
	n, err := conv.Convert(in, 2, out)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got := decodeS16(out, 4)
	require.Equal(t, []int16{1000, 1000, -1000, -1000}, got)
}

func TestConvertRejectsFramesOverMax(t *testing.T) {
	conv, err := Create(s16Format(48000, 1), s16Format(48000, 2), 4)
	require.NoError(t, err)
	_, err = conv.Convert(make([]byte, 100), 5, make([]byte, 100))
	require.ErrorIs(t, err, ErrFramesExceedMax)
}

func TestConvertRejectsUndersizedBuffers(t *testing.T) {
	conv, err := Create(s16Format(48000, 1), s16Format(48000, 1), 16)
	require.NoError(t, err)
	_, err = conv.Convert(make([]byte, 2), 4, make([]byte, 8))
	require.ErrorIs(t, err, ErrBufferTooSmall)
}

// Invariant 1 (the frames/time half): resampling a clean ratio and
// converting the frame count back should land within one frame of the
// original, matching the documented off-by-one tolerance.
func TestFrameConversionRoundTripsWithinOneFrame(t *testing.T) {
	conv, err := Create(s16Format(44100, 2), s16Format(48000, 2), 4096)
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 4000).Draw(t, "n")
		out := conv.InFramesToOut(n)
		back := conv.OutFramesToIn(out)
		diff := back - n
		require.LessOrEqual(t, diff, 1)
		require.GreaterOrEqual(t, diff, -1)
	})
}

func TestResampleProducesNonEmptyOutput(t *testing.T) {
	conv, err := Create(s16Format(44100, 1), s16Format(48000, 1), 4096)
	require.NoError(t, err)
	require.Equal(t, 1, conv.NumConverters())

	frames := 1000
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = int16(10000 * math.Sin(float64(i)*0.05))
	}
	in := encodeS16(samples)
	out := make([]byte, conv.InFramesToOut(frames)*4)

	n, err := conv.Convert(in, frames, out)
	require.NoError(t, err)
	require.Greater(t, n, 0)
}
