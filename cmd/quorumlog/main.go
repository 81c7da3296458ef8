// quorumlog drives a quorum log with one writer and a configurable number of
// reader goroutines, then reports what each reader saw.
//
// Configuration comes from an optional YAML file (--config) and flags; flags
// the user sets override the file. Readers beyond the quorum are refused by
// the log, which makes the reader cap visible in the report.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "quorumlog: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	var flags flagValues

	flagSet := pflag.NewFlagSet("quorumlog", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flags.register(flagSet)

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := flags.resolve(flagSet)
	if err != nil {
		return err
	}
	level, _ := cfg.Level()

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("starting",
		"quorum", cfg.Quorum,
		"capacity", cfg.Capacity,
		"messages", cfg.Messages,
		"readers", cfg.Readers,
		"policy", cfg.Policy,
		"start", cfg.Start,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := simulate(ctx, cfg, logger)
	logReport(logger, report)
	return err
}
