package quorumlog

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// readResult classifies the outcome of ring.tryRead.
type readResult int

const (
	readOK            readResult = iota
	readNotYetWritten            // sequence >= write sequence, reader is caught up
	readEvicted                  // slot moved past the sequence or reached quorum
)

// ring is the fixed-capacity slot storage. It owns the write sequence.
// Capacity is any positive integer, slots are addressed by seq % capacity.
type ring struct {
	// Optional padding to avoid false sharing between hot fields.
	_        cpu.CacheLinePad
	capacity uint64
	quorum   uint32
	slots    []slot
	_        cpu.CacheLinePad
	writeSeq atomic.Uint64 // next sequence to assign, updated by the single writer
	_        cpu.CacheLinePad
}

func newRing(quorum uint32, capacity uint64) *ring {
	if capacity == 0 {
		panic("capacity must be > 0")
	}
	if quorum == 0 {
		panic("quorum must be > 0")
	}

	return &ring{
		capacity: capacity,
		quorum:   quorum,
		slots:    make([]slot, capacity),
	}
}

// write installs payload at the next sequence and returns that sequence along
// with the displaced entry (nil when the slot was never written).
// The slot is overwritten unconditionally regardless of its consumption state.
// IMPORTANT: must be called from a single writer goroutine.
func (r *ring) write(payload []byte, digest Digest) (uint64, *entry) {
	seq := r.writeSeq.Load()
	e := &entry{
		seq:     seq,
		payload: payload,
		digest:  digest,
		quorum:  r.quorum,
	}

	prev := r.slots[seq%r.capacity].cur.Swap(e)
	// Publish only after the entry is installed: a reader that observes
	// writeSeq > seq is guaranteed to find generation seq or a later one.
	r.writeSeq.Store(seq + 1)

	return seq, prev
}

// writable reports whether the next write would only displace an empty or
// fully consumed slot.
func (r *ring) writable() bool {
	seq := r.writeSeq.Load()
	e := r.slots[seq%r.capacity].cur.Load()
	return e == nil || e.evictable()
}

// tryRead resolves seq against the ring.
func (r *ring) tryRead(seq uint64) (*entry, readResult) {
	if seq >= r.writeSeq.Load() {
		return nil, readNotYetWritten
	}

	e := r.slots[seq%r.capacity].cur.Load()
	if e == nil || e.seq != seq || e.evictable() {
		// the buffer wrapped past seq, or quorum already retired it
		return nil, readEvicted
	}

	return e, readOK
}

// markConsumed increments the consumption count of generation seq and returns
// the updated count. It is a no-op returning (count, false) when the slot has
// already moved past seq or the entry is already at quorum.
func (r *ring) markConsumed(seq uint64) (uint32, bool) {
	e := r.slots[seq%r.capacity].cur.Load()
	if e == nil || e.seq != seq {
		return 0, false
	}

	for {
		c := e.consumed.Load()
		if c >= e.quorum {
			return c, false
		}
		if e.consumed.CompareAndSwap(c, c+1) {
			return c + 1, true
		}
	}
}

// lowerBound returns the oldest sequence the ring can still hold.
func (r *ring) lowerBound() uint64 {
	w := r.writeSeq.Load()
	if w <= r.capacity {
		return 0
	}
	return w - r.capacity
}

// retained counts slots holding a message below quorum.
func (r *ring) retained() int {
	n := 0
	for i := range r.slots {
		if e := r.slots[i].cur.Load(); e != nil && !e.evictable() {
			n++
		}
	}
	return n
}

// consumedAt returns the consumption count of generation seq, if still held.
func (r *ring) consumedAt(seq uint64) (uint32, bool) {
	e := r.slots[seq%r.capacity].cur.Load()
	if e == nil || e.seq != seq {
		return 0, false
	}
	return e.consumed.Load(), true
}
