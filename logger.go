package quorumlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
)

var (
	ErrTooManyReaders = fmt.Errorf("too many readers")
	ErrMessageEvicted = fmt.Errorf("message evicted")
	ErrBufferFull     = fmt.Errorf("buffer is full")
)

// EvictedError reports that a reader's next message was overwritten before
// the reader got to it. The reader's cursor has already been moved to Next.
type EvictedError struct {
	Reader   ReaderID
	Sequence uint64 // first sequence the reader missed
	Next     uint64 // sequence the reader resumes at
}

func (e *EvictedError) Error() string {
	return fmt.Sprintf("reader %q: message %d evicted, %d missed, resuming at %d",
		e.Reader, e.Sequence, e.Missed(), e.Next)
}

// Missed returns the number of sequences skipped.
func (e *EvictedError) Missed() uint64 {
	return e.Next - e.Sequence
}

func (e *EvictedError) Unwrap() error {
	return ErrMessageEvicted
}

// Message is a message returned by Read. Payload is a private copy.
type Message struct {
	Sequence uint64
	Payload  []byte
	Digest   Digest
	Valid    bool // Payload matches Digest
}

// Logger is the log: one slot ring shared by a single writer and up to
// quorum readers, each with an independent cursor.
type Logger struct {
	ring    *ring
	readers *registry
	signer  *signer

	policy Policy
	start  Start
	log    *slog.Logger

	stats counters
}

// New creates a Logger retaining up to capacity messages, each until quorum
// distinct readers consumed it. At most quorum distinct readers may register.
// Panics if quorum or capacity is not positive, or quorum exceeds
// math.MaxUint32.
func New(quorum, capacity int, opts ...Option) *Logger {
	if quorum <= 0 {
		panic("quorum must be > 0")
	}
	if uint64(quorum) > math.MaxUint32 {
		panic("quorum must be <= math.MaxUint32")
	}
	if capacity <= 0 {
		panic("capacity must be > 0")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.New(slog.DiscardHandler)
	}

	return &Logger{
		ring:    newRing(uint32(quorum), uint64(capacity)),
		readers: newRegistry(uint64(quorum)),
		signer:  newSigner(o.key),
		policy:  o.policy,
		start:   o.start,
		log:     o.log,
	}
}

// Write appends payload and returns its sequence. The payload is copied.
// Under PolicyOverwrite Write always succeeds, displacing the oldest message
// even if it has not reached quorum. Under PolicyBackpressure it returns
// ErrBufferFull instead.
// IMPORTANT: must be called from a single writer goroutine.
func (l *Logger) Write(payload []byte) (uint64, error) {
	if l.policy == PolicyBackpressure && !l.ring.writable() {
		atomic.AddUint64(&l.stats.writesRejected, 1)
		l.log.Debug("buffer is full", "sequence", l.ring.writeSeq.Load())
		return 0, ErrBufferFull
	}

	buf := append([]byte(nil), payload...)
	seq, prev := l.ring.write(buf, l.signer.sum(buf))
	atomic.AddUint64(&l.stats.writes, 1)

	if prev != nil && !prev.evictable() {
		atomic.AddUint64(&l.stats.dropped, 1)
		l.log.Warn("message dropped before quorum",
			"sequence", prev.seq,
			"consumed", prev.consumed.Load(),
			"quorum", prev.quorum,
		)
	}

	return seq, nil
}

// Read returns the next message for reader id.
//
// ok is false with a nil error when the reader is caught up with the writer;
// the call has no effect and may be retried. A new identity is registered on
// its first Read; once quorum identities are registered any other identity
// gets ErrTooManyReaders. If the reader's next message was overwritten, Read
// returns an *EvictedError and moves the cursor past the gap, so the next
// call returns the oldest message still held.
func (l *Logger) Read(id ReaderID) (Message, bool, error) {
	c, created, err := l.readers.cursorFor(id, l.startPosition)
	if err != nil {
		atomic.AddUint64(&l.stats.tooManyReaders, 1)
		l.log.Warn("too many readers", "reader", string(id), "quorum", l.ring.quorum)
		return Message{}, false, err
	}
	if created {
		l.log.Debug("reader registered", "reader", string(id), "seat", c.seat, "next", c.next.Load())
	}

	for {
		seq := c.next.Load()
		e, res := l.ring.tryRead(seq)

		switch res {
		case readNotYetWritten:
			atomic.AddUint64(&l.stats.empty, 1)
			return Message{}, false, nil

		case readEvicted:
			next := max(seq+1, l.ring.lowerBound())
			if !c.claim(seq, next) {
				continue
			}
			atomic.AddUint64(&l.stats.evicted, 1)
			l.log.Debug("message evicted", "reader", string(id), "sequence", seq, "next", next)
			return Message{}, false, &EvictedError{Reader: id, Sequence: seq, Next: next}
		}

		if !c.claim(seq, seq+1) {
			// the same identity is being read from another goroutine
			continue
		}

		if count, ok := l.ring.markConsumed(seq); ok && count == e.quorum {
			atomic.AddUint64(&l.stats.fullyConsumed, 1)
			l.log.Debug("message fully consumed", "sequence", seq, "quorum", e.quorum)
		}
		atomic.AddUint64(&l.stats.reads, 1)

		return l.message(e), true, nil
	}
}

func (l *Logger) message(e *entry) Message {
	m := Message{
		Sequence: e.seq,
		Payload:  append([]byte(nil), e.payload...),
		Digest:   e.digest,
	}
	m.Valid = l.signer.verify(m.Payload, m.Digest)
	if !m.Valid {
		atomic.AddUint64(&l.stats.invalid, 1)
		l.log.Error("message digest mismatch", "sequence", e.seq)
	}
	return m
}

func (l *Logger) startPosition() uint64 {
	if l.start == StartLatest {
		return l.ring.writeSeq.Load()
	}
	return l.ring.lowerBound()
}

// ReadWait is Read that waits while the reader is caught up, polling with a
// jittered backoff until a message arrives or ctx is done.
// Errors from Read are returned as is.
func (l *Logger) ReadWait(ctx context.Context, id ReaderID) (Message, error) {
	var b backoff
	for {
		m, ok, err := l.Read(id)
		if err != nil || ok {
			return m, err
		}
		if err := b.wait(ctx); err != nil {
			return Message{}, err
		}
	}
}

// WriteWait is Write that waits while the buffer is full, polling with a
// jittered backoff until the next slot reaches quorum or ctx is done.
// Under PolicyOverwrite it never waits.
// IMPORTANT: must be called from a single writer goroutine.
func (l *Logger) WriteWait(ctx context.Context, payload []byte) (uint64, error) {
	var b backoff
	for {
		seq, err := l.Write(payload)
		if !errors.Is(err, ErrBufferFull) {
			return seq, err
		}
		if err := b.wait(ctx); err != nil {
			return 0, err
		}
	}
}

// Deregister removes reader id and frees its seat for another identity.
// A later Read by id registers it again as a new reader.
func (l *Logger) Deregister(id ReaderID) bool {
	if !l.readers.remove(id) {
		return false
	}
	l.log.Debug("reader deregistered", "reader", string(id))
	return true
}

// Cursor returns the next sequence reader id will consume.
func (l *Logger) Cursor(id ReaderID) (uint64, bool) {
	c, ok := l.readers.lookup(id)
	if !ok {
		return 0, false
	}
	return c.next.Load(), true
}

// Consumed returns how many distinct readers consumed message seq, or false
// if the message is no longer held.
func (l *Logger) Consumed(seq uint64) (int, bool) {
	c, ok := l.ring.consumedAt(seq)
	return int(c), ok
}

// Sequence returns the next sequence to be written.
func (l *Logger) Sequence() uint64 {
	return l.ring.writeSeq.Load()
}

// Retained returns the number of held messages that have not reached quorum.
func (l *Logger) Retained() int {
	return l.ring.retained()
}

// Capacity returns the fixed number of slots.
func (l *Logger) Capacity() int {
	return int(l.ring.capacity)
}

// Quorum returns the retention threshold and maximum reader count.
func (l *Logger) Quorum() int {
	return int(l.ring.quorum)
}

// Readers returns the number of registered readers.
func (l *Logger) Readers() int {
	return l.readers.len()
}
