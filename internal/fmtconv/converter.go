package fmtconv

import (
	"errors"
	"math"

	"github.com/oov/audio/resampler"
)

// DefaultQuality is the resample quality used unless a caller overrides
// it with WithQuality. It favors low latency over fidelity, matching
// spec §4.2's documented default of "lowest usable quality" for the
// common stream case.
const DefaultQuality = 1

var (
	// ErrFramesExceedMax is returned when a Convert call is asked to
	// process more frames than the converter was created for.
	ErrFramesExceedMax = errors.New("fmtconv: frame count exceeds converter's max_frames")
	// ErrBufferTooSmall is returned when a caller-supplied buffer cannot
	// hold the frames it claims to carry.
	ErrBufferTooSmall = errors.New("fmtconv: buffer too small for frame count")
)

type options struct {
	quality int
}

// Option configures a Converter at Create time.
type Option func(*options)

// WithQuality overrides the resample quality level. Higher values trade
// CPU for fidelity; callers servicing pro-audio or voice-communication
// streams may want a higher quality than the playback default.
func WithQuality(level int) Option {
	return func(o *options) { o.quality = level }
}

// Converter is a reusable handle transforming PCM chunks from one
// Format to another through up to four stages: sample-format widening,
// channel-count mixdown, channel-layout matrix, and resample.
type Converter struct {
	in, out Format

	maxFrames int
	identity  bool

	needsChannelMix   bool
	needsLayoutMatrix bool
	needsResample     bool

	layoutMatrix [][]float32
	resamplerSt  *resampler.Resampler

	numConverters int
}

// Create builds a converter from in to out, sized for up to maxFrames
// frames per Convert call. When in and out are identical the converter
// degenerates to a memcpy and NumConverters reports 0, per invariant 5.
func Create(in, out Format, maxFrames int, opts ...Option) (*Converter, error) {
	cfg := options{quality: DefaultQuality}
	for _, o := range opts {
		o(&cfg)
	}

	c := &Converter{in: in, out: out, maxFrames: maxFrames}
	if in == out {
		c.identity = true
		return c, nil
	}

	if in.NumChannels != out.NumChannels {
		c.needsChannelMix = true
		c.numConverters++
	} else if in.ChannelLayout != out.ChannelLayout {
		c.needsLayoutMatrix = true
		c.layoutMatrix = identityMatrix(in.NumChannels, in.ChannelLayout, out.ChannelLayout)
		c.numConverters++
	}

	if in.RateHz != out.RateHz {
		c.needsResample = true
		c.resamplerSt = resampler.New(out.NumChannels, in.RateHz, out.RateHz, cfg.quality)
		c.numConverters++
	}

	return c, nil
}

// NumConverters reports how many of the optional stages (channel
// mixdown/layout matrix, resample) are active for this conversion.
func (c *Converter) NumConverters() int {
	return c.numConverters
}

// Convert transforms inFrames frames of in (in the converter's input
// format) into out (in the converter's output format), returning the
// number of frames actually produced.
func (c *Converter) Convert(in []byte, inFrames int, out []byte) (int, error) {
	if inFrames > c.maxFrames {
		return 0, ErrFramesExceedMax
	}

	if c.identity {
		n := inFrames * c.in.FrameBytes()
		if len(in) < n || len(out) < n {
			return 0, ErrBufferTooSmall
		}
		copy(out[:n], in[:n])
		return inFrames, nil
	}

	numSamples := inFrames * c.in.NumChannels
	if len(in) < numSamples*c.in.SampleFormat.SampleBytes() {
		return 0, ErrBufferTooSmall
	}

	buf := decodeToFloat32(c.in.SampleFormat, in, numSamples, make([]float32, 0, numSamples))

	frames := inFrames
	switch {
	case c.needsChannelMix:
		buf = channelMix(buf, frames, c.in.NumChannels, c.out.NumChannels, c.in.ChannelLayout, c.out.ChannelLayout)
	case c.needsLayoutMatrix:
		buf = applyLayoutMatrix(buf, frames, c.in.NumChannels, c.layoutMatrix)
	}

	if c.needsResample {
		buf, frames = c.resample(buf, frames)
	}

	outBytes := frames * c.out.FrameBytes()
	if len(out) < outBytes {
		return 0, ErrBufferTooSmall
	}
	encodeFromFloat32(c.out.SampleFormat, buf[:frames*c.out.NumChannels], out)
	return frames, nil
}

// resample runs the interleaved buffer through the per-channel
// resampler state, de-interleaving and re-interleaving around it since
// the resampler primitive processes one channel's planar samples at a
// time.
func (c *Converter) resample(in []float32, frames int) ([]float32, int) {
	ch := c.out.NumChannels
	planarIn := make([][]float32, ch)
	for k := range planarIn {
		planarIn[k] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for k := 0; k < ch; k++ {
			planarIn[k][i] = in[i*ch+k]
		}
	}

	maxOut := frames*2 + 16
	planarOut := make([][]float32, ch)
	written := 0
	for k := 0; k < ch; k++ {
		planarOut[k] = make([]float32, maxOut)
		_, w := c.resamplerSt.ProcessFloat32(k, planarIn[k], planarOut[k])
		written = w
	}

	out := make([]float32, written*ch)
	for i := 0; i < written; i++ {
		for k := 0; k < ch; k++ {
			out[i*ch+k] = planarOut[k][i]
		}
	}
	return out, written
}

// InFramesToOut estimates how many output frames n input frames produce.
// Exact for a pure rate change; an upper bound once any lossy stage
// (channel mixdown with a non-power-of-two ratio) is also active.
func (c *Converter) InFramesToOut(n int) int {
	if c.in.RateHz == c.out.RateHz {
		return n
	}
	return int(math.Round(float64(n) * float64(c.out.RateHz) / float64(c.in.RateHz)))
}

// OutFramesToIn is InFramesToOut's inverse.
func (c *Converter) OutFramesToIn(n int) int {
	if c.in.RateHz == c.out.RateHz {
		return n
	}
	return int(math.Round(float64(n) * float64(c.in.RateHz) / float64(c.out.RateHz)))
}
