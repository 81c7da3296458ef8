package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/valyala/fastrand"

	"github.com/aradilov/quorumlog"
)

// verifyBatch is how many receipts a reader buffers before checking them.
const verifyBatch = 32

// ReaderReport summarizes what one reader goroutine observed.
type ReaderReport struct {
	ID         quorumlog.ReaderID
	Received   int
	Missed     uint64
	Invalid    int
	OutOfOrder int
	Rejected   bool // refused with ErrTooManyReaders

	last uint64
}

// Report is the outcome of a simulation run.
type Report struct {
	Readers []ReaderReport
	Stats   quorumlog.Stats
}

// simulate runs one writer and cfg.Readers readers against a fresh log.
func simulate(ctx context.Context, cfg Config, logger *slog.Logger) (Report, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	l := quorumlog.New(cfg.Quorum, cfg.Capacity, cfg.Options(logger)...)
	target := uint64(cfg.Messages)

	reports := make([]ReaderReport, cfg.Readers)
	readerErrs := make([]error, cfg.Readers)

	var wg sync.WaitGroup
	wg.Add(cfg.Readers)
	for i := 0; i < cfg.Readers; i++ {
		go func(i int) {
			defer wg.Done()
			id := quorumlog.ReaderID(fmt.Sprintf("reader-%d", i))
			reports[i], readerErrs[i] = consume(ctx, l, id, target)
		}(i)
	}

	var writeErr error
	for i := 0; i < cfg.Messages; i++ {
		payload := []byte(fmt.Sprintf("Hello my name is %d", i))
		if _, err := l.WriteWait(ctx, payload); err != nil {
			writeErr = fmt.Errorf("writing message %d: %w", i, err)
			cancel()
			break
		}
	}
	wg.Wait()

	report := Report{Readers: reports, Stats: l.Stats()}
	if writeErr != nil {
		return report, writeErr
	}
	for i, err := range readerErrs {
		if err != nil {
			return report, fmt.Errorf("reader %s: %w", reports[i].ID, err)
		}
	}
	return report, nil
}

// consume reads until the reader's cursor reaches target. Receipts are
// queued and verified in batches.
func consume(ctx context.Context, l *quorumlog.Logger, id quorumlog.ReaderID, target uint64) (ReaderReport, error) {
	rep := ReaderReport{ID: id}
	backlog := queue.New()

	for {
		m, ok, err := l.Read(id)
		var evicted *quorumlog.EvictedError
		switch {
		case errors.Is(err, quorumlog.ErrTooManyReaders):
			rep.Rejected = true
			return rep, nil
		case errors.As(err, &evicted):
			rep.Missed += evicted.Missed()
		case err != nil:
			return rep, err
		case ok:
			backlog.Add(m)
			if backlog.Length() >= verifyBatch {
				verify(backlog, &rep)
			}
		}

		if pos, _ := l.Cursor(id); pos >= target {
			verify(backlog, &rep)
			return rep, nil
		}

		if !ok && err == nil {
			if err := pause(ctx); err != nil {
				verify(backlog, &rep)
				return rep, err
			}
		}
	}
}

// verify drains the backlog, counting invalid and out-of-order messages.
func verify(backlog *queue.Queue, rep *ReaderReport) {
	for backlog.Length() > 0 {
		m := backlog.Remove().(quorumlog.Message)
		if !m.Valid {
			rep.Invalid++
		}
		if rep.Received > 0 && m.Sequence <= rep.last {
			rep.OutOfOrder++
		}
		rep.Received++
		rep.last = m.Sequence
	}
}

// pause waits a short, randomized interval so idle readers do not poll in
// lockstep.
func pause(ctx context.Context) error {
	d := time.Duration(100+fastrand.Uint32n(400)) * time.Microsecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func logReport(logger *slog.Logger, report Report) {
	for _, r := range report.Readers {
		if r.Rejected {
			logger.Warn("reader rejected", "reader", string(r.ID))
			continue
		}
		logger.Info("reader finished",
			"reader", string(r.ID),
			"received", r.Received,
			"missed", r.Missed,
			"invalid", r.Invalid,
			"out_of_order", r.OutOfOrder,
		)
	}

	s := report.Stats
	logger.Info("log statistics",
		"writes", s.Writes,
		"writes_rejected", s.WritesRejected,
		"dropped", s.Dropped,
		"reads", s.Reads,
		"empty", s.Empty,
		"evicted", s.Evicted,
		"too_many_readers", s.TooManyReaders,
		"fully_consumed", s.FullyConsumed,
		"readers", s.Readers,
	)
}
