package quorumlog

import (
	"context"
	"runtime"
	"time"

	"github.com/valyala/fastrand"
)

const (
	minBackoff = 50 * time.Microsecond
	maxBackoff = 10 * time.Millisecond
)

// backoff spins with runtime.Gosched for goschedEvery rounds, then sleeps
// with exponentially growing, randomly jittered delays. The zero value is
// ready to use.
type backoff struct {
	spins uint32
	delay time.Duration
}

// wait pauses once and returns ctx.Err() if ctx is done.
func (b *backoff) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if b.spins < goschedEvery {
		b.spins++
		runtime.Gosched()
		return nil
	}

	if b.delay == 0 {
		b.delay = minBackoff
	} else if b.delay < maxBackoff {
		b.delay *= 2
		if b.delay > maxBackoff {
			b.delay = maxBackoff
		}
	}

	// jitter over [delay/2, delay]
	half := b.delay / 2
	d := half + time.Duration(fastrand.Uint32n(uint32(half)+1))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
