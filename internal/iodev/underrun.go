package iodev

import "time"

// handleUnderrun accounts for an output buffer that drained while
// streams were attached. A backend implementing OutputUnderrunner
// handles the underrun itself (e.g. repeating the last hardware
// period); otherwise the generic fallback fills min_cb_level frames of
// silence.
func (d *Device) handleUnderrun(now time.Time) {
	d.NumUnderruns++
	if ou, ok := d.Backend.(OutputUnderrunner); ok {
		_ = ou.OutputUnderrun()
		return
	}
	_, _ = d.padSilence(int(d.MinCbLevel))
}

// handleSevereUnderrun accounts for a backend-reported EPIPE-class
// underrun (frames_queued returning negative/error) and escalates it as
// a reset request, rate-limited by the device's token bucket.
func (d *Device) handleSevereUnderrun(now time.Time) bool {
	d.NumSevereUnderruns++
	if c, ok := d.Backend.(SevereUnderrunCounter); ok {
		_ = c.GetNumSevereUnderruns()
	}
	return d.ResetRequest(now)
}

// RecordOverrun accounts for an input device producing faster than the
// core drains it; the caller is responsible for actually discarding the
// oldest frames (advancing the ring's read counter past them).
func (d *Device) RecordOverrun() {
	d.NumSamplesDropped++
}

// CheckDeviceOverrun implements spec §4.4's device-overrun detection:
// hardware level pinned at buffer_size while 3×largest_cb_level is still
// below buffer_size. isOverrun reports whether the condition holds right
// now; firstObservation reports whether this is the first cycle this
// exact hwLevel was seen in that condition, the signal for emitting a
// one-shot "device overrun" event rather than one per cycle.
func (d *Device) CheckDeviceOverrun(hwLevel int32) (isOverrun, firstObservation bool) {
	if int(hwLevel) != d.BufferSize {
		return false, false
	}
	if 3*int(d.LargestCbLevel) >= d.BufferSize {
		return false, false
	}
	if d.deviceOverrunLatch == nil {
		d.deviceOverrunLatch = make(map[uint32]bool)
	}
	if !d.deviceOverrunLatch[uint32(hwLevel)] {
		d.deviceOverrunLatch[uint32(hwLevel)] = true
		return true, true
	}
	return true, false
}

// ClearDeviceOverrunLatch resets the first-observation latch, called on
// reopen so a recurring overrun at the same level is reported again
// after a device cycles through close/reopen.
func (d *Device) ClearDeviceOverrunLatch() {
	d.deviceOverrunLatch = make(map[uint32]bool)
}
