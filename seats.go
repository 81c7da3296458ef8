package quorumlog

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Original algorithm by Dmitry Vyukov
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue

const goschedEvery = 64 // reduce runtime.Gosched() frequency in hot loops

type seatSlot struct {
	seq  atomic.Uint64 // sequence number (controls visibility and slot ownership)
	seat int
}

// seatPool is a bounded lock-free free list of reader seat indices.
// Acquire hands out a free seat, Release returns it. Every seat is in the
// pool exactly once unless it is held by a registered reader.
type seatPool struct {
	_        cpu.CacheLinePad
	capacity uint64
	slots    []seatSlot
	_        cpu.CacheLinePad
	enqueue  atomic.Uint64 // logical tail index (releasers)
	_        cpu.CacheLinePad
	dequeue  atomic.Uint64 // logical head index (acquirers)
	_        cpu.CacheLinePad
}

// newSeatPool creates a pool holding seats 0..n-1.
func newSeatPool(n uint64) *seatPool {
	if n == 0 {
		panic("seat count must be > 0")
	}

	slots := make([]seatSlot, n)
	for i := uint64(0); i < n; i++ {
		// initial sequence for each slot matches its index
		slots[i].seq.Store(i)
	}

	p := &seatPool{
		capacity: n,
		slots:    slots,
	}

	for i := 0; i < int(n); i++ {
		if !p.push(i) {
			panic("unreached")
		}
	}

	return p
}

// Acquire takes a free seat.
// Returns (0, false) if every seat is held.
// Safe to call concurrently from many goroutines.
func (p *seatPool) Acquire() (int, bool) {
	var spins uint32
	for {
		pos := p.dequeue.Load()
		s := &p.slots[pos%p.capacity]

		seq := s.seq.Load()
		diff := int64(seq) - int64(pos+1)

		if diff == 0 {
			if !p.dequeue.CompareAndSwap(pos, pos+1) {
				// Another acquirer won this slot, retry.
				spins++
				if spins%goschedEvery == 0 {
					runtime.Gosched()
				}
				continue
			}

			seat := s.seat
			// Free the slot for the next cycle:
			// next time this physical slot will be used at pos+capacity.
			s.seq.Store(pos + p.capacity)

			return seat, true
		}

		if diff < 0 {
			// no free seat
			return 0, false
		}

		// diff > 0 => a releaser is not done yet or intermediate state.
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// Release returns a seat to the pool.
// Note: Release for one seat should be called once per Acquire.
func (p *seatPool) Release(seat int) {
	if !p.push(seat) {
		panic("unreached")
	}
}

func (p *seatPool) push(seat int) bool {
	var spins uint32
	for {
		pos := p.enqueue.Load()
		s := &p.slots[pos%p.capacity]

		seq := s.seq.Load()
		diff := int64(seq) - int64(pos)

		if diff == 0 {
			if p.enqueue.CompareAndSwap(pos, pos+1) {
				s.seat = seat
				// Publish the value: seq = pos+1
				s.seq.Store(pos + 1)
				return true
			}
			spins++
			if spins%goschedEvery == 0 {
				runtime.Gosched()
			}
		} else if diff < 0 {
			// more releases than seats
			return false
		} else {
			// diff > 0 => this slot still belongs to a previous cycle.
			spins++
			if spins%goschedEvery == 0 {
				runtime.Gosched()
			}
		}
	}
}
