package quorumlog

import (
	"sync"
	"sync/atomic"
)

// ReaderID identifies a reader. Reads from the same identity share one
// cursor; each distinct identity counts once toward a message's quorum.
type ReaderID string

// cursor is a reader's private position in the log.
type cursor struct {
	id   ReaderID
	seat int
	next atomic.Uint64 // next sequence this reader expects to consume
}

// claim moves the cursor from pos to next. It fails if another goroutine
// using the same identity moved it first.
func (c *cursor) claim(pos, next uint64) bool {
	return c.next.CompareAndSwap(pos, next)
}

// registry maps reader identities to cursors and caps the number of distinct
// identities at the seat count. Lookups of registered readers are lock-free;
// registration and removal are serialized by mu so a seat is only taken
// for an identity that is not registered yet.
type registry struct {
	mu      sync.Mutex
	seats   *seatPool
	cursors sync.Map // ReaderID -> *cursor
	count   atomic.Int64
}

func newRegistry(seats uint64) *registry {
	return &registry{seats: newSeatPool(seats)}
}

// lookup returns the cursor of an already registered reader.
func (r *registry) lookup(id ReaderID) (*cursor, bool) {
	v, ok := r.cursors.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*cursor), true
}

// cursorFor returns the cursor for id, registering it at position start()
// if it is new. It fails with ErrTooManyReaders once every seat is taken by
// other identities.
func (r *registry) cursorFor(id ReaderID, start func() uint64) (*cursor, bool, error) {
	if c, ok := r.lookup(id); ok {
		return c, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// another goroutine may have registered id while we waited
	if c, ok := r.lookup(id); ok {
		return c, false, nil
	}

	seat, ok := r.seats.Acquire()
	if !ok {
		return nil, false, ErrTooManyReaders
	}

	c := &cursor{id: id, seat: seat}
	c.next.Store(start())
	r.cursors.Store(id, c)
	r.count.Add(1)

	return c, true, nil
}

// remove drops id and frees its seat.
func (r *registry) remove(id ReaderID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.cursors.LoadAndDelete(id)
	if !ok {
		return false
	}
	r.count.Add(-1)
	r.seats.Release(v.(*cursor).seat)
	return true
}

// len returns the number of registered readers.
func (r *registry) len() int {
	return int(r.count.Load())
}
