package quorumlog

import "sync/atomic"

type counters struct {
	writes         uint64
	writesRejected uint64
	dropped        uint64

	reads          uint64
	empty          uint64
	evicted        uint64
	tooManyReaders uint64
	fullyConsumed  uint64
	invalid        uint64
}

// Stats is a point-in-time snapshot of a Logger's counters.
type Stats struct {
	Writes         uint64 // successful writes
	WritesRejected uint64 // writes refused with ErrBufferFull
	Dropped        uint64 // messages overwritten before reaching quorum

	Reads          uint64 // messages returned to readers
	Empty          uint64 // reads that found the reader caught up; the only state an empty read changes
	Evicted        uint64 // reads that hit an evicted message
	TooManyReaders uint64 // reads refused with ErrTooManyReaders
	FullyConsumed  uint64 // messages that reached quorum
	Invalid        uint64 // messages that failed digest verification

	Readers       int    // registered readers
	WriteSequence uint64 // next sequence to be written
}

// Stats retrieves the current statistics of the Logger.
func (l *Logger) Stats() Stats {
	return Stats{
		Writes:         atomic.LoadUint64(&l.stats.writes),
		WritesRejected: atomic.LoadUint64(&l.stats.writesRejected),
		Dropped:        atomic.LoadUint64(&l.stats.dropped),
		Reads:          atomic.LoadUint64(&l.stats.reads),
		Empty:          atomic.LoadUint64(&l.stats.empty),
		Evicted:        atomic.LoadUint64(&l.stats.evicted),
		TooManyReaders: atomic.LoadUint64(&l.stats.tooManyReaders),
		FullyConsumed:  atomic.LoadUint64(&l.stats.fullyConsumed),
		Invalid:        atomic.LoadUint64(&l.stats.invalid),
		Readers:        l.readers.len(),
		WriteSequence:  l.ring.writeSeq.Load(),
	}
}
