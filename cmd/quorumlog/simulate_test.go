package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSimulateDefault(t *testing.T) {
	cfg := DefaultConfig()

	report, err := simulate(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	for _, r := range report.Readers {
		if r.Rejected {
			t.Fatalf("%s: unexpectedly rejected", r.ID)
		}
		if r.Received != cfg.Messages || r.Missed != 0 {
			t.Fatalf("%s: expected %d received and 0 missed, got %d and %d",
				r.ID, cfg.Messages, r.Received, r.Missed)
		}
		if r.Invalid != 0 || r.OutOfOrder != 0 {
			t.Fatalf("%s: %d invalid, %d out of order", r.ID, r.Invalid, r.OutOfOrder)
		}
	}
	if got := report.Stats.FullyConsumed; got != uint64(cfg.Messages) {
		t.Fatalf("expected %d fully consumed messages, got %d", cfg.Messages, got)
	}
}

func TestSimulateExtraReaderRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Readers = cfg.Quorum + 1

	report, err := simulate(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	rejected := 0
	for _, r := range report.Readers {
		if r.Rejected {
			rejected++
			continue
		}
		if r.Received != cfg.Messages {
			t.Fatalf("%s: expected %d received, got %d", r.ID, cfg.Messages, r.Received)
		}
	}
	if rejected != 1 {
		t.Fatalf("expected exactly 1 rejected reader, got %d", rejected)
	}
	if report.Stats.TooManyReaders == 0 {
		t.Fatalf("expected the log to count the rejection")
	}
}

func TestSimulateBackpressureTimesOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quorum = 2
	cfg.Readers = 1
	cfg.Capacity = 4
	cfg.Messages = 20
	cfg.Policy = "backpressure"
	cfg.Timeout = 50 * time.Millisecond

	_, err := simulate(context.Background(), cfg, discardLogger())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the blocked writer to time out, got %v", err)
	}
}

func TestSimulateOverwriteDropsForMissingReaders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quorum = 2
	cfg.Readers = 1
	cfg.Capacity = 4
	cfg.Messages = 20

	report, err := simulate(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if got := report.Stats.Dropped; got == 0 {
		t.Fatalf("expected messages below quorum to be dropped, got %d", got)
	}
	// a reader that registers late starts at the oldest retained message,
	// so it may skip messages without seeing an eviction
	r := report.Readers[0]
	if r.Received == 0 || uint64(r.Received)+r.Missed > uint64(cfg.Messages) {
		t.Fatalf("expected 0 < received+missed <= %d, got %d+%d", cfg.Messages, r.Received, r.Missed)
	}
}

func TestRun(t *testing.T) {
	var out strings.Builder
	if err := run([]string{"--messages", "5", "--log-level", "debug"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "reader finished") {
		t.Fatalf("expected reader reports in the log, got:\n%s", out.String())
	}

	if err := run([]string{"--policy", "block"}, io.Discard); err == nil {
		t.Fatalf("expected an invalid policy to fail")
	}
	if err := run([]string{"extra"}, io.Discard); err == nil {
		t.Fatalf("expected a positional argument to fail")
	}
	if err := run([]string{"--help"}, io.Discard); err != nil {
		t.Fatalf("--help: %v", err)
	}
}
