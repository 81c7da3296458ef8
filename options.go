package quorumlog

import (
	"fmt"
	"log/slog"
)

// Policy decides what Write does when the next slot still holds a message
// below quorum.
type Policy int

const (
	// PolicyOverwrite drops the oldest message early. Write never fails.
	PolicyOverwrite Policy = iota
	// PolicyBackpressure rejects the write with ErrBufferFull until the
	// occupant reaches quorum. Use WriteWait to block instead.
	PolicyBackpressure
)

func (p Policy) String() string {
	switch p {
	case PolicyOverwrite:
		return "overwrite"
	case PolicyBackpressure:
		return "backpressure"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts "overwrite" or "backpressure" into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "overwrite", "":
		return PolicyOverwrite, nil
	case "backpressure":
		return PolicyBackpressure, nil
	}
	return 0, fmt.Errorf("unknown write policy %q", s)
}

// Start decides where a newly registered reader begins.
type Start int

const (
	// StartOldest positions a new reader at the oldest retained message.
	StartOldest Start = iota
	// StartLatest positions a new reader at the next message to be written.
	StartLatest
)

func (s Start) String() string {
	switch s {
	case StartOldest:
		return "oldest"
	case StartLatest:
		return "latest"
	default:
		return fmt.Sprintf("Start(%d)", int(s))
	}
}

// ParseStart converts "oldest" or "latest" into a Start.
func ParseStart(s string) (Start, error) {
	switch s {
	case "oldest", "":
		return StartOldest, nil
	case "latest":
		return StartLatest, nil
	}
	return 0, fmt.Errorf("unknown start position %q", s)
}

// Option configures a Logger.
type Option func(*options)

type options struct {
	policy Policy
	start  Start
	key    []byte
	log    *slog.Logger
}

// WithPolicy sets the write policy. Default PolicyOverwrite.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithStart sets where new readers begin. Default StartOldest.
func WithStart(s Start) Option {
	return func(o *options) { o.start = s }
}

// WithKey sets the KeySize-byte digest key. By default a random key is
// generated per Logger.
func WithKey(key []byte) Option {
	return func(o *options) { o.key = key }
}

// WithSlog routes diagnostics to l. By default they are discarded.
func WithSlog(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}
