// Package metrics implements the lock-free latency ring buffer and
// atomic counters of §4.G, a background percentile refresher, a process
// resource sampler, and a Prometheus exposition surface.
package metrics

import "sync/atomic"

// Ring is a fixed-size, power-of-two ring buffer of latency samples in
// microseconds. Record is O(1) and wait-free: an atomic fetch-add claims
// a slot, then an atomic store writes the sample — no lock is ever taken
// on the hot path.
type Ring struct {
	mask     uint64
	samples  []uint64
	writeIdx uint64
	count    uint64
}

// NewRing creates a ring buffer sized to the next power of two ≥ size, so
// index reduction is a bitmask rather than a modulo.
func NewRing(size int) *Ring {
	n := nextPowerOfTwo(size)
	return &Ring{
		mask:    uint64(n - 1),
		samples: make([]uint64, n),
	}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Record stores a latency sample, overwriting the oldest entry once the
// buffer has wrapped.
func (r *Ring) Record(microseconds uint64) {
	idx := atomic.AddUint64(&r.writeIdx, 1) - 1
	atomic.StoreUint64(&r.samples[idx&r.mask], microseconds)
	atomic.AddUint64(&r.count, 1)
}

// Count returns the total number of samples ever recorded (may exceed the
// buffer's capacity once it has wrapped).
func (r *Ring) Count() uint64 {
	return atomic.LoadUint64(&r.count)
}

// Snapshot copies up to len(scratch) live samples into scratch and
// returns the filled prefix. scratch is caller-owned and preallocated
// once at startup so the refresh path never allocates.
func (r *Ring) Snapshot(scratch []uint64) []uint64 {
	total := r.Count()
	n := len(r.samples)
	live := n
	if total < uint64(n) {
		live = int(total)
	}
	if live > len(scratch) {
		live = len(scratch)
	}
	for i := 0; i < live; i++ {
		scratch[i] = atomic.LoadUint64(&r.samples[i])
	}
	return scratch[:live]
}
