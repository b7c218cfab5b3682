// Package fmtconv implements the sample-format, channel-count,
// channel-layout, and resample conversion pipeline threaded between
// client streams and device buffers.
package fmtconv

// SampleFormat enumerates the PCM sample encodings a stream or device
// may declare.
type SampleFormat int

const (
	U8 SampleFormat = iota
	S16LE
	S24LE3Packed // 3 bytes per sample, packed
	S24LE        // 24 bits of data in a 4-byte container
	S32LE
	F32LE
)

// SampleBytes returns the number of bytes one sample occupies on the
// wire in this format.
func (f SampleFormat) SampleBytes() int {
	switch f {
	case U8:
		return 1
	case S16LE:
		return 2
	case S24LE3Packed:
		return 3
	case S24LE, S32LE, F32LE:
		return 4
	default:
		return 0
	}
}

// Channel position indices into a Format's ChannelLayout, matching the
// 11 semantic positions spec §3 enumerates.
const (
	ChFL = iota
	ChFR
	ChRL
	ChRR
	ChFC
	ChLFE
	ChSL
	ChSR
	ChRC
	ChFLC
	ChFRC
	numChannelPositions
)

// Layout maps semantic channel positions to physical channel indices,
// or -1 where a position is absent from this format's channel set.
type Layout [numChannelPositions]int8

// UnsetLayout is a layout with every position absent. Formats that don't
// care about channel-layout-aware mixdowns (e.g. plain stereo) may leave
// their layout at UnsetLayout.
var UnsetLayout = Layout{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}

// StereoLayout maps FL, FR to channel 0, 1 and leaves everything else
// unset — the layout most callers constructing a plain stereo Format
// want.
var StereoLayout = func() Layout {
	l := UnsetLayout
	l[ChFL] = 0
	l[ChFR] = 1
	return l
}()

// Format is the tuple {sample_format, rate_hz, num_channels,
// channel_layout} spec §3 defines audio data by.
type Format struct {
	SampleFormat SampleFormat
	RateHz       int
	NumChannels  int
	ChannelLayout Layout
}

// FrameBytes returns sample_bytes(sample_format) * num_channels.
func (f Format) FrameBytes() int {
	return f.SampleFormat.SampleBytes() * f.NumChannels
}
