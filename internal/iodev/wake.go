package iodev

import "time"

// msToFrames converts a millisecond horizon to a frame count at rate
// frames/sec.
func msToFrames(ms, rate float64) int {
	return int(ms / 1000 * rate)
}

// targetFrames implements the three wake-scheduling cases spec §4.4
// names: streams with data ready wake at min_cb_level; streams with no
// data ready wake after ~1ms; no streams at all wake after ~5ms, floored
// by min_cb_level so an already-near-empty buffer doesn't busy-wake.
func (d *Device) targetFrames(hwLevel int32, rate float64) int32 {
	switch {
	case len(d.Streams) > 0 && d.HasStreamsWithData():
		return int32(d.MinCbLevel)
	case len(d.Streams) > 0:
		return hwLevel - int32(msToFrames(normalRunWakeMs, rate))
	default:
		target := hwLevel - int32(msToFrames(noStreamWakeMs, rate))
		if floor := int32(d.MinCbLevel); target < floor {
			target = floor
		}
		return target
	}
}

// FramesToPlayInSleep reports how many frames must still drain before
// this device needs servicing again, and the hardware timestamp the
// measurement was taken at. A backend implementing SleepEstimator
// overrides this entirely.
func (d *Device) FramesToPlayInSleep(now time.Time) (frames int32, hwTstamp time.Time, err error) {
	if se, ok := d.Backend.(SleepEstimator); ok {
		return se.FramesToPlayInSleep()
	}

	hwLevel, tstamp, err := d.Backend.FramesQueued(now)
	if err != nil {
		return 0, time.Time{}, err
	}

	rate := d.RateEst.EstimatedRate()
	if rate <= 0 {
		rate = float64(d.Format.RateHz)
	}

	target := d.targetFrames(hwLevel, rate)
	framesUntilWake := hwLevel - target + int32(d.sleepCorrectionFrames)
	if framesUntilWake < 0 {
		framesUntilWake = 0
	}
	return framesUntilWake, tstamp, nil
}

// NextWakeDeadline converts FramesToPlayInSleep's frame count into a
// wall-clock deadline the audio thread's scheduler can select() on.
func (d *Device) NextWakeDeadline(now time.Time) (time.Time, error) {
	frames, tstamp, err := d.FramesToPlayInSleep(now)
	if err != nil {
		return time.Time{}, err
	}
	rate := d.RateEst.EstimatedRate()
	if rate <= 0 {
		rate = float64(d.Format.RateHz)
	}
	dur := time.Duration(float64(frames) / rate * float64(time.Second))
	return tstamp.Add(dur), nil
}

// RecordWakeSkew adjusts sleep_correction_frames after a cycle: a
// positive skew (the device woke with fewer frames ready than the
// schedule predicted, i.e. too early) increases the correction so the
// next sleep is longer; a negative skew (woke late, hw_level already
// above target) decreases it.
func (d *Device) RecordWakeSkew(predictedFrames, observedFrames int32) {
	d.sleepCorrectionFrames += int(predictedFrames - observedFrames)
}
