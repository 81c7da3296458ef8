// Package quorumlog is a bounded, in-memory, single-writer multi-reader log.
//
// A producer appends messages with Write and up to quorum independent readers
// consume them with Read, each at its own pace. A message is retained until
// quorum distinct readers have observed it. Under capacity pressure the
// default policy overwrites the oldest slot anyway, and readers that were
// still behind it see ErrMessageEvicted.
package quorumlog

import "sync/atomic"

// entry is one generation of a slot: everything except consumed is immutable
// once the entry is published, so readers may copy the payload without
// synchronizing with the writer.
type entry struct {
	seq      uint64        // logical sequence assigned at write time
	payload  []byte        // private copy of the written bytes
	digest   Digest        // keyed digest of payload
	quorum   uint32        // retention threshold active at write time
	consumed atomic.Uint32 // distinct readers that consumed this generation
}

// evictable reports whether the entry reached its quorum.
func (e *entry) evictable() bool {
	return e.consumed.Load() >= e.quorum
}

// slot holds the current generation published at index seq % capacity.
// The (sequence, count) pair lives in one entry, so a count can never be
// attributed to a later generation of the same slot.
type slot struct {
	cur atomic.Pointer[entry]
}
