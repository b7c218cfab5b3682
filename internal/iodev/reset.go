package iodev

import "time"

// maxResetTries and resetRefillPeriod implement spec.md's token-bucket
// rate limit on device reset requests: capacity 5, refilling at 5 per
// 5 seconds.
const (
	maxResetTries      = 5
	resetRefillPeriod  = 5 * time.Second
)

// tokenBucket rate-limits reset requests per device. Only one reset may
// be pending at a time; the pending flag clears on the next open.
type tokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	pending    bool
}

func newTokenBucket(capacity int, period time.Duration) tokenBucket {
	return tokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(capacity) / period.Seconds(),
	}
}

func (b *tokenBucket) refill(now time.Time) {
	if b.lastRefill.IsZero() {
		b.lastRefill = now
		return
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

func (b *tokenBucket) clearPending() {
	b.pending = false
}

// allow reports whether a reset request at time now is granted: it must
// not already have a pending reset, and the bucket must hold at least
// one token. A request that would overshoot the bucket's capacity (i.e.
// there is no token available) is silently ignored, matching spec.md's
// documented behavior, and does not set pending.
func (b *tokenBucket) allow(now time.Time) bool {
	if b.pending {
		return false
	}
	b.refill(now)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	b.pending = true
	return true
}

// ResetRequest evaluates the device's reset-request rate limiter at now
// and, if granted, records the reset for statistics. ok reports whether
// the reset was granted (and should be escalated to the main thread as
// a RESET_DEVICE message).
func (d *Device) ResetRequest(now time.Time) (ok bool) {
	if !d.resetBucket.allow(now) {
		return false
	}
	d.NumReset++
	d.LastResetTimeRef = now
	return true
}
