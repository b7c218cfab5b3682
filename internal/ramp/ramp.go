// Package ramp implements the linear scalar fade used to mute, unmute,
// start, and stop device playback without discontinuities.
package ramp

import (
	"errors"
	"time"
)

// ErrInactive is returned by UpdateRampedFrames when no ramp is running.
var ErrInactive = errors.New("ramp: no ramp is active")

// ActionType classifies the scaler trajectory a caller should apply to
// the current mixing cycle.
type ActionType int

const (
	// ActionNone means no scaling is in effect; apply a scaler of 1.
	ActionNone ActionType = iota
	// ActionPartial means scale sample-by-sample starting at Scaler and
	// adding Increment per frame.
	ActionPartial
	// ActionInvalid reports an internal bookkeeping error.
	ActionInvalid
)

// Action is a snapshot of what a caller should do with the current
// mixing cycle's samples.
type Action struct {
	Type      ActionType
	Scaler    float64
	Increment float64
	Target    float64
}

// Ramp tracks a single in-flight linear fade for one device.
type Ramp struct {
	active         bool
	rampedFrames   int
	durationFrames int
	increment      float64
	startScaler    float64
	target         float64
	onDone         func()
}

// New returns a ramp in its reset (inactive, unity-scaler) state.
func New() *Ramp {
	r := &Ramp{}
	r.Reset()
	return r
}

// Reset cancels any in-flight ramp and returns to unity scaling.
func (r *Ramp) Reset() {
	r.active = false
	r.rampedFrames = 0
	r.durationFrames = 0
	r.increment = 0
	r.startScaler = 1
	r.target = 1
	r.onDone = nil
}

// Start begins a ramp from "from" to "to" over durationFrames frames.
// muteRamp controls how this ramp composes with one already in flight:
// a mute ramp matches the current scaler exactly (so mute/unmute
// transitions never jump); a non-mute (volume) ramp multiplies "from"
// onto the current scaler so stacked volume changes stay continuous.
// cb, if non-nil, runs once the ramp completes naturally via
// UpdateRampedFrames.
func (r *Ramp) Start(muteRamp bool, from, to float64, durationFrames int, cb func()) error {
	// from == to != 0 describes a no-op hold at a stable non-zero level;
	// nothing to ramp.
	if from == to && from != 0 {
		return nil
	}

	action := r.CurrentAction()
	if action.Type == ActionInvalid {
		return ErrInactive
	}

	r.active = true
	if action.Type == ActionNone {
		r.startScaler = from
	} else {
		r.startScaler = action.Scaler
		if !muteRamp {
			r.startScaler *= from
		}
	}
	if durationFrames <= 0 {
		durationFrames = 1
	}
	r.increment = (to - r.startScaler) / float64(durationFrames)
	r.target = to
	r.rampedFrames = 0
	r.durationFrames = durationFrames
	r.onDone = cb
	return nil
}

// CurrentAction reports the scaler trajectory for the current cycle
// without advancing it.
func (r *Ramp) CurrentAction() Action {
	if r.rampedFrames < 0 {
		return Action{Type: ActionInvalid, Scaler: 1, Increment: 0, Target: 1}
	}
	if r.active {
		return Action{
			Type:      ActionPartial,
			Scaler:    r.startScaler + float64(r.rampedFrames)*r.increment,
			Increment: r.increment,
			Target:    r.target,
		}
	}
	return Action{Type: ActionNone, Scaler: 1, Increment: 0, Target: 1}
}

// UpdateRampedFrames advances the ramp by numFrames frames mixed this
// cycle. Once the ramp's duration is reached it deactivates and, if set,
// invokes the on-done callback exactly once.
func (r *Ramp) UpdateRampedFrames(numFrames int) error {
	if !r.active {
		return ErrInactive
	}
	r.rampedFrames += numFrames
	if r.rampedFrames >= r.durationFrames {
		r.active = false
		if r.onDone != nil {
			r.onDone()
		}
	}
	return nil
}

// Kind enumerates the request shapes named in the ramping table: which
// scaler range and duration to ramp over, and whether the ramp composes
// by matching (mute ramps) or multiplying (volume ramps) onto whatever
// scaler is already in flight.
type Kind int

const (
	UpUnmute Kind = iota
	UpStartPlayback
	DownMute
	ResumeMute
	SwitchMute
	VolumeChange
)

func (k Kind) muteRamp() bool {
	return k != VolumeChange
}

// durationFrames converts a wall-clock duration to frames at sampleRate.
func durationFrames(sampleRate int, d time.Duration) int {
	frames := int(d.Seconds() * float64(sampleRate))
	if frames <= 0 {
		frames = 1
	}
	return frames
}

// params resolves a request Kind to the (from, to, durationFrames)
// triple Start needs. oldScaler/newScaler are only consulted for
// VolumeChange, where the ramp must start at old/new so effective
// volume stays continuous across the change.
func (k Kind) params(sampleRate int, oldScaler, newScaler float64) (from, to float64, duration int) {
	switch k {
	case UpUnmute:
		return 0, 1, durationFrames(sampleRate, 500*time.Millisecond)
	case UpStartPlayback:
		return 0, 1, durationFrames(sampleRate, 10*time.Millisecond)
	case DownMute:
		return 1, 0, durationFrames(sampleRate, 100*time.Millisecond)
	case ResumeMute:
		return 0, 0, durationFrames(sampleRate, time.Second)
	case SwitchMute:
		return 0, 0, durationFrames(sampleRate, 500*time.Millisecond)
	case VolumeChange:
		if newScaler == 0 {
			newScaler = 1
		}
		return oldScaler / newScaler, 1, durationFrames(sampleRate, 100*time.Millisecond)
	default:
		return 0, 1, durationFrames(sampleRate, 100*time.Millisecond)
	}
}

// StartRequest starts the ramp shape named by kind at sampleRate,
// composing with whatever ramp is already in flight per Start's rules.
func (r *Ramp) StartRequest(kind Kind, sampleRate int, oldScaler, newScaler float64, onDone func()) error {
	from, to, duration := kind.params(sampleRate, oldScaler, newScaler)
	return r.Start(kind.muteRamp(), from, to, duration, onDone)
}
