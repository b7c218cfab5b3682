package iodev

// Point names where in the output cycle a loopback tap sits relative to
// the device's DSP stage (ramp/volume trajectory application): PreDSP
// sees the raw stream mix, PostDSP sees it after ramping, matching the
// two tap points the original core's loopback list offers.
type Point int

const (
	PreDSP Point = iota
	PostDSP
)

// AddLoopback registers a receiver that gets a copy of every mixed
// output cycle's float32 samples at the given tap point. Grounded on
// the pack's broadcast-tee pattern: a single writer (the mixing cycle)
// fans a copied slice out to any number of passive receivers, never the
// raw accumulator, so a slow or misbehaving receiver can't corrupt the
// next cycle's mix.
func (d *Device) AddLoopback(point Point, ch chan<- []float32) {
	switch point {
	case PreDSP:
		d.preDSPLoopbacks = append(d.preDSPLoopbacks, ch)
	case PostDSP:
		d.Loopbacks = append(d.Loopbacks, ch)
	}
}

// RemoveLoopback drops a previously registered receiver from the given
// tap point.
func (d *Device) RemoveLoopback(point Point, ch chan<- []float32) {
	switch point {
	case PreDSP:
		d.preDSPLoopbacks = removeLoopback(d.preDSPLoopbacks, ch)
	case PostDSP:
		d.Loopbacks = removeLoopback(d.Loopbacks, ch)
	}
}

func removeLoopback(taps []chan<- []float32, ch chan<- []float32) []chan<- []float32 {
	for i, c := range taps {
		if c == ch {
			return append(taps[:i], taps[i+1:]...)
		}
	}
	return taps
}

// tee broadcasts a copy of samples to every receiver registered at
// point via a non-blocking send; a receiver that isn't keeping up drops
// the cycle rather than stalling the audio thread.
func (d *Device) tee(point Point, samples []float32) {
	var taps []chan<- []float32
	switch point {
	case PreDSP:
		taps = d.preDSPLoopbacks
	case PostDSP:
		taps = d.Loopbacks
	}
	if len(taps) == 0 {
		return
	}
	cp := make([]float32, len(samples))
	copy(cp, samples)
	for _, out := range taps {
		select {
		case out <- cp:
		default:
		}
	}
}
