package iodev

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crosaudio/crasd/internal/fmtconv"
	"github.com/crosaudio/crasd/internal/ringbuffer"
	"github.com/crosaudio/crasd/internal/stream"
	"github.com/crosaudio/crasd/internal/streamid"
)

type fakeBackend struct {
	formats SupportedFormats

	opened     bool
	frameBytes int

	queuedFrames    int32
	framesQueuedErr error
	getBufErr       error

	buf      []byte
	putCalls []int
}

func (f *fakeBackend) UpdateSupportedFormats() (SupportedFormats, error) { return f.formats, nil }
func (f *fakeBackend) OpenDev(format fmtconv.Format) error {
	f.opened = true
	f.frameBytes = format.FrameBytes()
	return nil
}
func (f *fakeBackend) ConfigureDev(format fmtconv.Format) error { return nil }
func (f *fakeBackend) CloseDev() error                          { f.opened = false; return nil }
func (f *fakeBackend) FramesQueued(now time.Time) (int32, time.Time, error) {
	if f.framesQueuedErr != nil {
		return 0, now, f.framesQueuedErr
	}
	return f.queuedFrames, now, nil
}
func (f *fakeBackend) DelayFrames() (int32, error) { return 0, nil }
func (f *fakeBackend) GetBuffer(numFrames int) ([]byte, error) {
	if f.getBufErr != nil {
		return nil, f.getBufErr
	}
	f.buf = make([]byte, numFrames*f.frameBytes)
	return f.buf, nil
}
func (f *fakeBackend) PutBuffer(nwritten int) error {
	f.putCalls = append(f.putCalls, nwritten)
	return nil
}

func stereoS16() fmtconv.Format {
	return fmtconv.Format{SampleFormat: fmtconv.S16LE, RateHz: 48000, NumChannels: 2, ChannelLayout: fmtconv.StereoLayout}
}

func TestOpenSelectsCompatibleFormat(t *testing.T) {
	backend := &fakeBackend{formats: SupportedFormats{
		Rates:         []int{44100, 48000},
		ChannelCounts: []int{2},
		SampleFormats: []fmtconv.SampleFormat{fmtconv.S16LE},
	}}
	d := New(0, "test", DirOutput, backend)
	d.BufferSize = 4096
	err := d.Open(stereoS16())
	require.NoError(t, err)
	require.Equal(t, StateOpen, d.State())
	require.Equal(t, 48000, d.Format.RateHz)
	require.True(t, backend.opened)
}

func TestOpenFailsWhenNoCompatibleChannelCount(t *testing.T) {
	backend := &fakeBackend{formats: SupportedFormats{
		Rates:         []int{48000},
		ChannelCounts: nil,
		SampleFormats: []fmtconv.SampleFormat{fmtconv.S16LE},
	}}
	d := New(0, "test", DirOutput, backend)
	err := d.Open(stereoS16())
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func encodeS16Frames(frames [][2]int16) []byte {
	out := make([]byte, len(frames)*4)
	for i, f := range frames {
		binary.LittleEndian.PutUint16(out[i*4:], uint16(f[0]))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(f[1]))
	}
	return out
}

func decodeS16Frames(b []byte, n int) [][2]int16 {
	out := make([][2]int16, n)
	for i := range out {
		out[i][0] = int16(binary.LittleEndian.Uint16(b[i*4:]))
		out[i][1] = int16(binary.LittleEndian.Uint16(b[i*4+2:]))
	}
	return out
}

func newAttachedStream(t *testing.T, d *Device, clientID, nonce uint16, format fmtconv.Format, capacityFrames int) *stream.DevStream {
	t.Helper()
	s := stream.New(streamid.NewStream(clientID, nonce), stream.DirOutput, format, uint32(capacityFrames), 480)
	ds, err := stream.NewDevStream(s, d.Info.Idx, d.Format, 4096)
	require.NoError(t, err)
	ring, err := ringbuffer.New(capacityFrames, format.FrameBytes())
	require.NoError(t, err)
	ds.Buffer.Ring = ring
	require.NoError(t, d.AttachStream(ds))
	return ds
}

func TestMixOutputSumsStreamsWithVolumeScaling(t *testing.T) {
	backend := &fakeBackend{
		formats: SupportedFormats{Rates: []int{48000}, ChannelCounts: []int{2}, SampleFormats: []fmtconv.SampleFormat{fmtconv.S16LE}},
	}
	d := New(0, "test", DirOutput, backend)
	d.BufferSize = 4096
	require.NoError(t, d.Open(stereoS16()))
	d.state = StateNormalRun

	ds := newAttachedStream(t, d, 1, 1, stereoS16(), 256)
	ds.VolumeScaler = 0.5

	in := encodeS16Frames([][2]int16{{2000, -2000}, {4000, -4000}})
	area, n := ds.Buffer.Ring.WriteClaim(2)
	require.Equal(t, 2, n)
	copy(area, in)
	ds.Buffer.Ring.CommitWrite(2)

	result, err := d.RunOutputCycle(time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, result.FramesMixed)

	out := decodeS16Frames(backend.buf, 2)
	require.Equal(t, int16(1000), out[0][0])
	require.Equal(t, int16(-1000), out[0][1])
	require.Equal(t, int16(2000), out[1][0])
	require.Equal(t, int16(-2000), out[1][1])
}

func TestRunOutputCycleEntersNoStreamRunWithoutData(t *testing.T) {
	backend := &fakeBackend{
		formats: SupportedFormats{Rates: []int{48000}, ChannelCounts: []int{2}, SampleFormats: []fmtconv.SampleFormat{fmtconv.S16LE}},
	}
	d := New(0, "test", DirOutput, backend)
	d.BufferSize = 4096
	d.MinCbLevel = 480
	require.NoError(t, d.Open(stereoS16()))
	d.state = StateNormalRun

	result, err := d.RunOutputCycle(time.Now())
	require.NoError(t, err)
	require.True(t, result.EnteredNoStreamRun)
	require.Equal(t, StateNoStreamRun, d.State())
}

func TestRunOutputCycleHandlesSevereUnderrun(t *testing.T) {
	backend := &fakeBackend{
		formats:         SupportedFormats{Rates: []int{48000}, ChannelCounts: []int{2}, SampleFormats: []fmtconv.SampleFormat{fmtconv.S16LE}},
		framesQueuedErr: errors.New("EPIPE"),
	}
	d := New(0, "test", DirOutput, backend)
	d.BufferSize = 4096
	require.NoError(t, d.Open(stereoS16()))

	result, err := d.RunOutputCycle(time.Now())
	require.NoError(t, err)
	require.True(t, result.Reset)
	require.Equal(t, uint64(1), d.NumReset)
	require.Equal(t, uint64(1), d.SevereUnderruns())
}

func TestLoopbackTapsSeeDistinctMixStages(t *testing.T) {
	backend := &fakeBackend{
		formats: SupportedFormats{Rates: []int{48000}, ChannelCounts: []int{2}, SampleFormats: []fmtconv.SampleFormat{fmtconv.S16LE}},
	}
	d := New(0, "test", DirOutput, backend)
	d.BufferSize = 4096
	require.NoError(t, d.Open(stereoS16()))
	d.state = StateNormalRun

	ds := newAttachedStream(t, d, 1, 1, stereoS16(), 256)
	in := encodeS16Frames([][2]int16{{2000, -2000}})
	area, n := ds.Buffer.Ring.WriteClaim(1)
	require.Equal(t, 1, n)
	copy(area, in)
	ds.Buffer.Ring.CommitWrite(1)

	pre := make(chan []float32, 1)
	post := make(chan []float32, 1)
	d.AddLoopback(PreDSP, pre)
	d.AddLoopback(PostDSP, post)

	result, err := d.RunOutputCycle(time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, result.FramesMixed)

	require.Len(t, pre, 1)
	require.Len(t, post, 1)

	d.RemoveLoopback(PreDSP, pre)
	require.Empty(t, d.preDSPLoopbacks)
}

func TestResampledMonoStreamAccumulatesExpectedFrameCount(t *testing.T) {
	backend := &fakeBackend{
		formats: SupportedFormats{Rates: []int{48000}, ChannelCounts: []int{2}, SampleFormats: []fmtconv.SampleFormat{fmtconv.S16LE}},
	}
	d := New(0, "test", DirOutput, backend)
	d.BufferSize = 256
	require.NoError(t, d.Open(stereoS16()))
	d.state = StateNormalRun

	monoFormat := fmtconv.Format{SampleFormat: fmtconv.S16LE, RateHz: 44100, NumChannels: 1, ChannelLayout: fmtconv.UnsetLayout}
	ds := newAttachedStream(t, d, 1, 1, monoFormat, 4096)

	frames := make([][1]int16, 4096)
	for i := range frames {
		frames[i][0] = int16(16000 * math.Sin(2*math.Pi*1000*float64(i)/44100))
	}
	in := make([]byte, len(frames)*2)
	for i, f := range frames {
		binary.LittleEndian.PutUint16(in[i*2:], uint16(f[0]))
	}
	area, n := ds.Buffer.Ring.WriteClaim(len(frames))
	require.Equal(t, len(frames), n)
	copy(area, in)
	ds.Buffer.Ring.CommitWrite(len(frames))

	total := 0
	for i := 0; i < 5; i++ {
		result, err := d.RunOutputCycle(time.Now())
		require.NoError(t, err)
		total += result.FramesMixed
	}

	require.GreaterOrEqual(t, total, 1279)
	require.LessOrEqual(t, total, 1281)
}

func TestMixOutputAppliesGlobalVolumeScaler(t *testing.T) {
	backend := &fakeBackend{
		formats: SupportedFormats{Rates: []int{48000}, ChannelCounts: []int{2}, SampleFormats: []fmtconv.SampleFormat{fmtconv.S16LE}},
	}
	d := New(0, "test", DirOutput, backend, WithGlobalVolumeScaler(func() float32 { return 0.5 }))
	d.BufferSize = 4096
	require.NoError(t, d.Open(stereoS16()))
	d.state = StateNormalRun

	ds := newAttachedStream(t, d, 1, 1, stereoS16(), 256)
	ds.VolumeScaler = 0.5

	in := encodeS16Frames([][2]int16{{2000, -2000}})
	area, n := ds.Buffer.Ring.WriteClaim(1)
	require.Equal(t, 1, n)
	copy(area, in)
	ds.Buffer.Ring.CommitWrite(1)

	result, err := d.RunOutputCycle(time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, result.FramesMixed)

	out := decodeS16Frames(backend.buf, 1)
	// per-stream 0.5 x global 0.5 = 0.25 of the 2000 source sample.
	require.Equal(t, int16(500), out[0][0])
	require.Equal(t, int16(-500), out[0][1])
}

func TestMixOutputAdvancesByMinimumAcrossStreams(t *testing.T) {
	backend := &fakeBackend{
		formats: SupportedFormats{Rates: []int{48000}, ChannelCounts: []int{2}, SampleFormats: []fmtconv.SampleFormat{fmtconv.S16LE}},
	}
	d := New(0, "test", DirOutput, backend)
	d.BufferSize = 4096
	require.NoError(t, d.Open(stereoS16()))
	d.state = StateNormalRun

	slow := newAttachedStream(t, d, 1, 1, stereoS16(), 256)
	fast := newAttachedStream(t, d, 1, 2, stereoS16(), 256)

	slowIn := encodeS16Frames([][2]int16{{1000, -1000}})
	area, n := slow.Buffer.Ring.WriteClaim(1)
	require.Equal(t, 1, n)
	copy(area, slowIn)
	slow.Buffer.Ring.CommitWrite(1)

	fastIn := encodeS16Frames([][2]int16{{1000, -1000}, {2000, -2000}, {3000, -3000}})
	area, n = fast.Buffer.Ring.WriteClaim(3)
	require.Equal(t, 3, n)
	copy(area, fastIn)
	fast.Buffer.Ring.CommitWrite(3)

	result, err := d.RunOutputCycle(time.Now())
	require.NoError(t, err)
	// the device can only advance as far as the slowest stream kept up,
	// even though the faster stream had 3 frames ready.
	require.Equal(t, 1, result.FramesMixed)
}

func TestRunInputCycleRecordsOverrunWhenRingCannotAcceptAllFrames(t *testing.T) {
	backend := &fakeBackend{
		formats:      SupportedFormats{Rates: []int{48000}, ChannelCounts: []int{2}, SampleFormats: []fmtconv.SampleFormat{fmtconv.S16LE}},
		queuedFrames: 4,
	}
	d := New(0, "test", DirInput, backend)
	d.BufferSize = 4096
	require.NoError(t, d.Open(stereoS16()))

	ds := newAttachedStream(t, d, 1, 1, stereoS16(), 2)

	_, err := d.RunInputCycle(time.Now())
	require.NoError(t, err)
	require.Equal(t, uint64(1), d.SamplesDropped())
	require.LessOrEqual(t, ds.Buffer.Ring.Readable(), 2)
}

func TestDeviceOverrunLatchFiresOnlyOnce(t *testing.T) {
	d := &Device{BufferSize: 1000, LargestCbLevel: 100}
	isOverrun, first := d.CheckDeviceOverrun(1000)
	require.True(t, isOverrun)
	require.True(t, first)

	isOverrun, first = d.CheckDeviceOverrun(1000)
	require.True(t, isOverrun)
	require.False(t, first, "second observation at the same level must not re-fire")
}

func TestDeviceOverrunLatchResetsOnClear(t *testing.T) {
	d := &Device{BufferSize: 1000, LargestCbLevel: 100}
	d.CheckDeviceOverrun(1000)
	d.ClearDeviceOverrunLatch()
	_, first := d.CheckDeviceOverrun(1000)
	require.True(t, first)
}

func TestResetRequestRateLimitedByTokenBucket(t *testing.T) {
	d := New(0, "test", DirOutput, &fakeBackend{})
	now := time.Now()
	granted := 0
	for i := 0; i < 10; i++ {
		if d.ResetRequest(now) {
			granted++
		}
		d.resetBucket.clearPending()
	}
	require.LessOrEqual(t, granted, maxResetTries)
	require.Greater(t, granted, 0)
}
