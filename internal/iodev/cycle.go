package iodev

import (
	"log/slog"
	"time"

	"github.com/crosaudio/crasd/internal/fmtconv"
	"github.com/crosaudio/crasd/internal/ramp"
)

// normalRunWakeMs and noStreamWakeMs are the wake-up horizons spec.md
// names for, respectively, a device with streams attached but nothing
// ready to mix, and a device with no streams attached at all.
const (
	normalRunWakeMs = 1.0
	noStreamWakeMs  = 5.0
)

// MixResult reports what RunOutputCycle did on one pass.
type MixResult struct {
	FramesMixed       int
	EnteredNoStreamRun bool
	LeftNoStreamRun    bool
	Reset              bool
}

// RunOutputCycle runs one iteration of the output half of the audio
// loop (spec §4.4 "the audio loop", output branch): query hardware
// level, update the rate estimate, pull and mix streams or pad silence,
// and publish the result to the backend.
func (d *Device) RunOutputCycle(now time.Time) (MixResult, error) {
	queued, tstamp, err := d.Backend.FramesQueued(now)
	if err != nil {
		d.handleSevereUnderrun(now)
		return MixResult{Reset: true}, nil
	}
	if uint32(queued) > d.HighestHwLevel {
		d.HighestHwLevel = uint32(queued)
	}
	if isOverrun, first := d.CheckDeviceOverrun(queued); isOverrun && first {
		slog.Warn("device overrun", "device", d.Info.Name, "hwLevel", queued, "bufferSize", d.BufferSize)
	}
	d.RateEst.Check(uint32(queued), tstamp)

	writeLimit := d.BufferSize - int(queued)
	if writeLimit < 0 {
		writeLimit = 0
	}

	hasData := d.HasStreamsWithData()

	if d.state == StateNormalRun && writeLimit > 0 && hasData {
		mixed, err := d.mixOutput(writeLimit)
		if err != nil {
			return MixResult{}, err
		}
		if mixed == 0 && queued <= 0 {
			d.handleUnderrun(now)
		}
		d.RateEst.AddFrames(int64(mixed))
		return MixResult{FramesMixed: mixed}, nil
	}

	if !hasData {
		result := MixResult{}
		if d.state != StateNoStreamRun {
			if ns, ok := d.Backend.(NoStreamer); ok {
				_ = ns.NoStream(true)
			}
			d.state = StateNoStreamRun
			result.EnteredNoStreamRun = true
		}
		padFrames := int(2 * d.MinCbLevel)
		if padFrames > writeLimit {
			padFrames = writeLimit
		}
		if padFrames > 0 {
			if n, err := d.padSilence(padFrames); err == nil {
				result.FramesMixed = n
			}
		}
		return result, nil
	}

	if d.state == StateNoStreamRun {
		if ns, ok := d.Backend.(NoStreamer); ok {
			_ = ns.NoStream(false)
		}
		d.state = StateNormalRun
		_ = d.Ramp.StartRequest(ramp.UpStartPlayback, d.Format.RateHz, 0, 1, nil)
		return MixResult{LeftNoStreamRun: true}, nil
	}

	return MixResult{}, nil
}

// padSilence writes frames frames of zeros to the backend, the
// no-stream-run and underrun fallback when a device has nothing real to
// play.
func (d *Device) padSilence(frames int) (int, error) {
	area, err := d.Backend.GetBuffer(frames)
	if err != nil {
		return 0, err
	}
	for i := range area {
		area[i] = 0
	}
	n := len(area) / d.Format.FrameBytes()
	if err := d.Backend.PutBuffer(n); err != nil {
		return 0, err
	}
	return n, nil
}

// mixOutput pulls from every attached dev-stream through its converter,
// mixes with add-and-clip into the device's working buffer, applies the
// active ramp, and publishes the result. Per spec §4.3/§4.4, the amount
// actually published is not the longest single stream's contribution
// but buffershare.Table.AllStreamsWritten's min-across-streams-clipped-
// to-write_limit advance: a stream that overshot writeLimit is logged
// and its excess silently dropped rather than let it drag the whole
// device's write point past what every other stream has kept up with.
func (d *Device) mixOutput(writeLimit int) (int, error) {
	area, err := d.Backend.GetBuffer(writeLimit)
	if err != nil {
		return 0, err
	}
	frameBytes := d.Format.FrameBytes()
	avail := len(area) / frameBytes
	if avail <= 0 {
		return 0, nil
	}

	acc := make([]float32, avail*d.Format.NumChannels)
	scratch := make([]byte, avail*frameBytes)
	globalScaler := d.globalVolumeScaler()

	anyMixed := false
	for _, ds := range d.Streams {
		if ds.Buffer.Ring == nil {
			continue
		}
		readable := ds.Buffer.Ring.Readable()
		want := avail
		if ds.Converter != nil {
			want = ds.Converter.OutFramesToIn(avail)
		}
		if want > readable {
			want = readable
		}
		if want <= 0 {
			continue
		}

		claimed, nFrames := ds.Buffer.Ring.ReadClaim(want)
		if nFrames <= 0 {
			continue
		}

		outFrames := nFrames
		if ds.Converter != nil {
			outFrames, err = ds.Converter.Convert(claimed, nFrames, scratch)
			if err != nil {
				ds.Buffer.Ring.CommitRead(nFrames)
				continue
			}
		} else {
			copy(scratch[:nFrames*frameBytes], claimed)
		}
		ds.Buffer.Ring.CommitRead(nFrames)

		if outFrames > avail {
			outFrames = avail
		}
		fmtconv.MixInto(d.Format.SampleFormat, scratch[:outFrames*frameBytes], outFrames, ds.VolumeScaler*globalScaler, acc[:outFrames*d.Format.NumChannels])
		// offset_update counts the device-domain frame count this stream
		// contributed this cycle, not the input-domain frames it read,
		// so minimum_offset() compares like units across streams with
		// different converters.
		d.BufSt.OffsetUpdate(uint32(ds.StreamID), uint32(outFrames))
		anyMixed = true
	}

	if !anyMixed {
		return 0, nil
	}

	advanced, breached := d.BufSt.AllStreamsWritten(uint32(writeLimit))
	for _, id := range breached {
		slog.Warn("offset-exceeds-available", "device", d.Info.Name, "stream", id, "writeLimit", writeLimit)
	}
	mixedFrames := int(advanced)
	if mixedFrames == 0 {
		return 0, nil
	}
	if mixedFrames > avail {
		mixedFrames = avail
	}

	d.tee(PreDSP, acc[:mixedFrames*d.Format.NumChannels])

	if action := d.Ramp.CurrentAction(); action.Type == ramp.ActionPartial {
		applyRamp(acc, d.Format.NumChannels, mixedFrames, action)
		_ = d.Ramp.UpdateRampedFrames(mixedFrames)
	}

	fmtconv.Finalize(d.Format.SampleFormat, acc[:mixedFrames*d.Format.NumChannels], scratch[:mixedFrames*frameBytes])
	copy(area, scratch[:mixedFrames*frameBytes])

	d.tee(PostDSP, acc[:mixedFrames*d.Format.NumChannels])

	if err := d.Backend.PutBuffer(mixedFrames); err != nil {
		return 0, err
	}
	return mixedFrames, nil
}

// applyRamp multiplies the linear scaler trajectory f(t) = scaler + t*Δ,
// clipped at target, across the mixed accumulator in place, one scaler
// value per frame.
func applyRamp(acc []float32, channels, frames int, action ramp.Action) {
	for i := 0; i < frames; i++ {
		s := action.Scaler + float64(i)*action.Increment
		if action.Increment >= 0 {
			if s > action.Target {
				s = action.Target
			}
		} else if s < action.Target {
			s = action.Target
		}
		fs := float32(s)
		for c := 0; c < channels; c++ {
			acc[i*channels+c] *= fs
		}
	}
}
