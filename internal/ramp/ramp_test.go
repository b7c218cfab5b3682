package ramp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestUpRampReachesTarget encodes invariant 7: after duration_frames
// samples through an UP ramp starting at 0, the multiplier is exactly
// target; for a DOWN ramp, exactly 0.
func TestUpRampReachesTarget(t *testing.T) {
	r := New()
	require.NoError(t, r.Start(true, 0, 1, 1000, nil))
	require.NoError(t, r.UpdateRampedFrames(1000))
	require.Equal(t, ActionNone, r.CurrentAction().Type)
}

func TestDownRampReachesZero(t *testing.T) {
	r := New()
	require.NoError(t, r.Start(true, 1, 0, 1000, nil))
	for i := 0; i < 9; i++ {
		require.NoError(t, r.UpdateRampedFrames(100))
	}
	action := r.CurrentAction()
	require.InDelta(t, 0.1, action.Scaler, 1e-9)
	require.NoError(t, r.UpdateRampedFrames(100))
	require.Equal(t, ActionNone, r.CurrentAction().Type)
}

func TestOnDoneCallsOnceAtCompletion(t *testing.T) {
	calls := 0
	r := New()
	require.NoError(t, r.Start(true, 0, 1, 10, func() { calls++ }))
	require.NoError(t, r.UpdateRampedFrames(5))
	require.Equal(t, 0, calls)
	require.NoError(t, r.UpdateRampedFrames(5))
	require.Equal(t, 1, calls)
}

// TestRampComposition encodes scenario S5: an unmute ramp at the halfway
// point, interrupted by a mute ramp, continues from the interrupted
// scaler rather than restarting from 1.
func TestRampComposition(t *testing.T) {
	const sampleRate = 48000
	r := New()
	require.NoError(t, r.StartRequest(UpUnmute, sampleRate, 0, 0, nil))
	require.NoError(t, r.UpdateRampedFrames(12000)) // half of 24000-frame duration

	halfway := r.CurrentAction()
	require.InDelta(t, 0.5, halfway.Scaler, 1e-9)

	require.NoError(t, r.StartRequest(DownMute, sampleRate, 0, 0, nil))
	afterSwitch := r.CurrentAction()
	require.InDelta(t, 0.5, afterSwitch.Scaler, 1e-9)

	// DownMute at 48kHz is 100ms = 4800 frames; after that it must reach 0.
	require.NoError(t, r.UpdateRampedFrames(4800))
	require.Equal(t, ActionNone, r.CurrentAction().Type)
}

func TestVolumeChangeStacksOntoCurrentScaler(t *testing.T) {
	const sampleRate = 48000
	r := New()
	require.NoError(t, r.StartRequest(VolumeChange, sampleRate, 0.5, 1.0, nil))
	action := r.CurrentAction()
	require.InDelta(t, 0.5, action.Scaler, 1e-9)
}

func TestUpdateRampedFramesWithoutActiveRampErrors(t *testing.T) {
	r := New()
	require.ErrorIs(t, r.UpdateRampedFrames(10), ErrInactive)
}
