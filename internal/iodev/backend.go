package iodev

import (
	"time"

	"github.com/crosaudio/crasd/internal/fmtconv"
)

// SupportedFormats is what UpdateSupportedFormats reports: the set of
// rates, channel counts, and sample formats the hardware can run at.
// Format selection on open picks one value from each list independently.
type SupportedFormats struct {
	Rates         []int
	ChannelCounts []int
	SampleFormats []fmtconv.SampleFormat
}

// Backend is the capability set every device backend must implement.
// Optional capabilities (start, no_stream, volume control, and so on)
// are expressed as separate single-method interfaces a Device type-
// asserts for, the idiomatic Go replacement for a struct of nullable
// function pointers.
type Backend interface {
	UpdateSupportedFormats() (SupportedFormats, error)
	OpenDev(format fmtconv.Format) error
	ConfigureDev(format fmtconv.Format) error
	CloseDev() error

	// FramesQueued reports frames currently queued in the hardware ring
	// and the timestamp they were measured at. ErrSevereUnderrun signals
	// the backend-level equivalent of -EPIPE: a reset condition.
	FramesQueued(now time.Time) (frames int32, tstamp time.Time, err error)
	DelayFrames() (int32, error)

	// GetBuffer claims up to numFrames frames of hardware buffer to fill
	// (output) or drain (input). PutBuffer publishes nwritten frames of
	// it back to the hardware.
	GetBuffer(numFrames int) (area []byte, err error)
	PutBuffer(nwritten int) error
}

// Starter is implemented by backends that require an explicit start
// call; backends without it auto-start on open for output devices.
type Starter interface {
	Start() error
}

// CanStarter reports whether the device is currently able to start.
type CanStarter interface {
	CanStart() bool
}

// FreeRunner reports whether the backend is self-clocking and does not
// need software wake-up scheduling.
type FreeRunner interface {
	IsFreeRunning() bool
}

// BufferFlusher discards any buffered hardware frames.
type BufferFlusher interface {
	FlushBuffer() error
}

// OutputUnderrunner lets an output backend handle underrun itself
// (e.g. by instructing the hardware to repeat its last period) instead
// of the generic zero-fill fallback.
type OutputUnderrunner interface {
	OutputUnderrun() error
}

// NoStreamer enters or leaves the no-stream run state, output-only.
type NoStreamer interface {
	NoStream(enable bool) error
}

// NodeUpdater is notified when the active node or channel layout
// changes.
type NodeUpdater interface {
	UpdateActiveNode(nodeIdx uint32) error
	UpdateChannelLayout() error
}

// VolumeController lets a backend apply hardware volume/mute directly
// rather than relying purely on software scaling.
type VolumeController interface {
	SetVolume(vol float32) error
	SetMute(mute bool) error
}

// SevereUnderrunCounter reports a backend-tracked count of severe
// (EPIPE-class) underruns, independent of the generic counter Device
// maintains.
type SevereUnderrunCounter interface {
	GetNumSevereUnderruns() uint32
}

// ValidFramesGetter reports how many frames in the hardware buffer are
// actually valid audio rather than padding.
type ValidFramesGetter interface {
	GetValidFrames() (int32, error)
}

// SleepEstimator lets a backend override the generic wake-up scheduling
// formula entirely.
type SleepEstimator interface {
	FramesToPlayInSleep() (frames int32, hwTstamp time.Time, err error)
}

// NoiseCancellationSupporter reports whether the backend can run noise
// cancellation in hardware/firmware.
type NoiseCancellationSupporter interface {
	SupportNoiseCancellation() bool
}

// RTCProcController toggles and reports backend-side real-time
// communication processing (AEC/NS/AGC bundles some hardware runs
// itself).
type RTCProcController interface {
	SetRTCProcEnabled(bool) error
	GetRTCProcEnabled() bool
}

// DevGroupGetter reports the hardware group this device shares a codec
// or bus with, used to avoid double-processing shared DSP.
type DevGroupGetter interface {
	GetDevGroup() string
}

// AttachAdvisor lets a backend veto or approve attaching a particular
// stream before the core does so.
type AttachAdvisor interface {
	ShouldAttachStream() bool
}

// UseCaseGetter reports the backend's current hardware use-case tag
// (e.g. a codec's low-power mode name).
type UseCaseGetter interface {
	GetUseCase() string
}

// HTimestampGetter reports the hardware's own notion of "now" for a
// backend whose clock does not track the host's monotonic clock
// closely enough for the generic wake-up math.
type HTimestampGetter interface {
	GetHTimestamp() (time.Time, error)
}
