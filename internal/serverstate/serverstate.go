// Package serverstate holds the fields of spec §6's shared-memory
// server state: the grab-bag of volume, mute, device, node, and client
// bookkeeping the audio thread reads lock-free and only the main thread
// writes. The byte offsets spec §6 documents as ABI are recorded in
// layout.go as metadata for a future wire/shm transport layer; this
// package's own contract is field name, order, and the update_count
// bracket protocol, not a byte-for-byte memory image (see DESIGN.md).
package serverstate

import (
	"sync/atomic"
	"time"
)

// IODevInfo mirrors one entry of output_devs/input_devs.
type IODevInfo struct {
	Idx      uint32
	Name     string
	Priority uint32
	Plugged  bool
}

// IONodeInfo mirrors one entry of output_nodes/input_nodes.
type IONodeInfo struct {
	IdxHigh uint32 // device index half of the node id
	IdxLow  uint32 // node index half of the node id
	Type    string
	Volume  uint32
	Active  bool
}

// ClientInfo mirrors one entry of client_info.
type ClientInfo struct {
	ID  uint32
	PID int32
	UID uint32
	GID uint32
}

const (
	maxDevs    = 20
	maxNodes   = 20
	maxClients = 20
	numClientTypes = 12
)

// StateVersion is the current layout version spec §6 names.
const StateVersion = 2

// State is the server-wide shared state. The zero value is not usable;
// construct with New.
type State struct {
	StateVersion uint32

	Volume        uint32
	MinVolumeDBFS int32
	MaxVolumeDBFS int32

	Mute       int32
	UserMute   int32
	MuteLocked int32
	Suspended  int32

	CaptureGain       int32
	CaptureMute       int32
	CaptureMuteLocked int32

	NumStreamsAttached uint32

	NumOutputDevs uint32
	NumInputDevs  uint32
	OutputDevs    [maxDevs]IODevInfo
	InputDevs     [maxDevs]IODevInfo

	NumOutputNodes uint32
	NumInputNodes  uint32
	OutputNodes    [maxNodes]IONodeInfo
	InputNodes     [maxNodes]IONodeInfo

	NumAttachedClients uint32
	ClientInfoList     [maxClients]ClientInfo

	updateCount atomic.Uint32

	NumActiveStreams      [4]uint32
	LastActiveStreamTime  time.Time

	DefaultOutputBufferSize int32

	NonEmptyStatus int32
	AECSupported   int32
	AECGroupID     int32

	NumInputStreamsWithPermission [numClientTypes]uint32
}

// New returns a State at the current layout version with every other
// field zeroed.
func New() *State {
	return &State{StateVersion: StateVersion}
}

// UpdateCount returns the current update_count value. An odd value
// means a main-thread write is in progress; a reader that observes an
// odd value, or a value that changed between the start and end of its
// own read, must retry.
func (s *State) UpdateCount() uint32 {
	return s.updateCount.Load()
}

// BeginUpdate increments update_count to the next odd value, signaling
// readers that a write is starting. Only the main thread may call this.
func (s *State) BeginUpdate() {
	s.updateCount.Add(1)
}

// EndUpdate increments update_count to the next even value, signaling
// readers that the write completed. Only the main thread may call this,
// and only after a matching BeginUpdate.
func (s *State) EndUpdate() {
	s.updateCount.Add(1)
}

// Update runs fn under the BeginUpdate/EndUpdate bracket, guaranteeing
// the bracket is always closed even if fn panics.
func (s *State) Update(fn func(*State)) {
	s.BeginUpdate()
	defer s.EndUpdate()
	fn(s)
}

// GlobalVolumeScaler reads Volume under the update_count retry protocol
// and converts spec §6's 0-100 scale to the [0,1] multiplier the mixing
// path applies alongside each stream's own volume_scaler (spec §4.4:
// "volume_scaler × global_software_volume_scalar").
func GlobalVolumeScaler(s *State) float32 {
	var vol uint32
	ReadSnapshot(s, func(st *State) { vol = st.Volume })
	return float32(vol) / 100
}

// ReadSnapshot copies every field a reader cares about while retrying
// against update_count's odd/changed-value protocol, returning a
// consistent snapshot.
func ReadSnapshot(s *State, read func(*State)) {
	for {
		before := s.UpdateCount()
		if before%2 != 0 {
			continue
		}
		read(s)
		after := s.UpdateCount()
		if after == before {
			return
		}
	}
}
