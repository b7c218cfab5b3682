// Package ringbuffer implements the fixed-capacity, power-of-two frame
// ring used both as the device hardware buffer and as the shared-memory
// representation handed to clients. It is lock-free for the
// single-writer/single-reader case: the writer only ever advances the
// write counter, the reader only ever advances the read counter, and
// every derived byte offset is bounds-checked before use because the
// two sides of a client-facing ring must never trust each other's raw
// indices for memory safety.
package ringbuffer

import (
	"errors"
	"sync/atomic"
)

// ErrCapacityNotPowerOfTwo is returned by New when capacityFrames isn't
// a power of two, which the masking arithmetic below requires.
var ErrCapacityNotPowerOfTwo = errors.New("ringbuffer: capacity must be a power of two")

// Buffer is a fixed-capacity ring of audio frames. Writer and reader
// counters are 32-bit, incremented modulo 2*capacity so that wraparound
// is detectable without a separate "full" flag.
type Buffer struct {
	capacity   uint32 // N, power of two
	frameBytes uint32
	data       []byte

	writer atomic.Uint32
	reader atomic.Uint32
}

// New allocates a ring holding capacityFrames frames of frameBytes each.
// capacityFrames must be a power of two.
func New(capacityFrames int, frameBytes int) (*Buffer, error) {
	if capacityFrames <= 0 || capacityFrames&(capacityFrames-1) != 0 {
		return nil, ErrCapacityNotPowerOfTwo
	}
	return &Buffer{
		capacity:   uint32(capacityFrames),
		frameBytes: uint32(frameBytes),
		data:       make([]byte, capacityFrames*frameBytes),
	}, nil
}

// CapacityFrames returns N, the ring's fixed frame capacity.
func (b *Buffer) CapacityFrames() int { return int(b.capacity) }

// FrameBytes returns the size in bytes of one frame.
func (b *Buffer) FrameBytes() int { return int(b.frameBytes) }

// modDiff computes (a - b) taken modulo 2*capacity, the wraparound
// arithmetic the mod-2N counters require.
func (b *Buffer) modDiff(a, c uint32) uint32 {
	mod2n := 2 * b.capacity
	return (a - c + mod2n) % mod2n
}

// Readable returns the number of frames available to read.
func (b *Buffer) Readable() int {
	return int(b.modDiff(b.writer.Load(), b.reader.Load()))
}

// Writable returns the number of frames available to write.
func (b *Buffer) Writable() int {
	return int(b.capacity) - b.Readable()
}

// phys masks a mod-2N counter down to a byte offset within data. Because
// 2N is a multiple of N, `counter mod N` is the same whether counter was
// taken mod 2N or is a raw free-running value, so this is safe to apply
// to any counter, trusted or not.
func (b *Buffer) phys(counter uint32) uint32 {
	return counter & (b.capacity - 1)
}

// WriteClaim returns a byte slice of up to want frames at the current
// write position, clamped to what's writable and to the contiguous run
// before the ring wraps. The caller fills the returned slice and then
// calls CommitWrite with however many frames it actually wrote. Only the
// single writer goroutine may call WriteClaim/CommitWrite.
func (b *Buffer) WriteClaim(want int) (area []byte, frames int) {
	if want < 0 {
		want = 0
	}
	if w := b.Writable(); want > w {
		want = w
	}
	widx := b.writer.Load()
	phys := b.phys(widx)
	if contiguous := int(b.capacity - phys); want > contiguous {
		want = contiguous
	}
	start := int(phys) * int(b.frameBytes)
	end := start + want*int(b.frameBytes)
	if want <= 0 || start < 0 || end > len(b.data) {
		return nil, 0
	}
	return b.data[start:end], want
}

// CommitWrite advances the write counter by n frames, publishing them to
// the reader. n must be ≤ the frames most recently returned by
// WriteClaim and not yet committed.
func (b *Buffer) CommitWrite(n int) {
	if n <= 0 {
		return
	}
	mod2n := 2 * b.capacity
	b.writer.Store((b.writer.Load() + uint32(n)) % mod2n)
}

// ReadClaim returns a byte slice of up to want frames at the current
// read position, clamped to what's readable and to the contiguous run
// before the ring wraps. Only the single reader goroutine may call
// ReadClaim/CommitRead.
func (b *Buffer) ReadClaim(want int) (area []byte, frames int) {
	if want < 0 {
		want = 0
	}
	if r := b.Readable(); want > r {
		want = r
	}
	ridx := b.reader.Load()
	phys := b.phys(ridx)
	if contiguous := int(b.capacity - phys); want > contiguous {
		want = contiguous
	}
	start := int(phys) * int(b.frameBytes)
	end := start + want*int(b.frameBytes)
	if want <= 0 || start < 0 || end > len(b.data) {
		return nil, 0
	}
	return b.data[start:end], want
}

// CommitRead advances the read counter by n frames, reclaiming their
// space for the writer. n must be ≤ the frames most recently returned by
// ReadClaim and not yet committed.
func (b *Buffer) CommitRead(n int) {
	if n <= 0 {
		return
	}
	mod2n := 2 * b.capacity
	b.reader.Store((b.reader.Load() + uint32(n)) % mod2n)
}

// ClampedOffset masks an externally supplied (and therefore untrusted)
// frame counter — e.g. one a client wrote into shared memory — down to
// a valid physical frame offset, and clamps frames so the derived byte
// range never exceeds the ring's backing storage regardless of what the
// counter claims. Callers crossing the client/server trust boundary
// must go through this rather than indexing data directly.
func (b *Buffer) ClampedOffset(counter uint32, frames int) (offsetFrames int, clampedFrames int) {
	off := int(b.phys(counter))
	if frames < 0 {
		frames = 0
	}
	if max := int(b.capacity) - off; frames > max {
		frames = max
	}
	return off, frames
}
