package fmtconv

// MixInto decodes an interleaved buffer of frames frames in format,
// scales every sample by scaler, and accumulates ("add-and-clip", with
// the clip deferred to Finalize) into acc, which must already hold
// frames*NumChannels(format) float32 accumulator slots. This is the
// device working-buffer mixdown spec §4.4 describes: per-stream
// volume_scaler × global_software_volume_scalar applied before the sum.
func MixInto(format SampleFormat, in []byte, frames int, scaler float32, acc []float32) {
	n := frames * samplesPerFrameHint(acc, frames)
	if n > len(acc) {
		n = len(acc)
	}
	decoded := decodeToFloat32(format, in, n, make([]float32, 0, n))
	for i, v := range decoded {
		acc[i] += v * scaler
	}
}

// samplesPerFrameHint recovers the channel count MixInto needs from the
// accumulator's total length and the frame count, so callers don't have
// to pass the channel count redundantly.
func samplesPerFrameHint(acc []float32, frames int) int {
	if frames <= 0 {
		return 0
	}
	return len(acc) / frames
}

// Finalize narrows a float32 accumulator built by one or more MixInto
// calls back to the wire format, clipping on write.
func Finalize(format SampleFormat, acc []float32, out []byte) {
	encodeFromFloat32(format, acc, out)
}
