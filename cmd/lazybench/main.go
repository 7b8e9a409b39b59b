package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	"github.com/coder/lazycell/bench"
	"github.com/coder/lazycell/lazy"
	"github.com/coder/serpent"
)

func main() {
	cmd := newCommand()
	if err := cmd.Invoke().WithOS().Run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %+v\n", err)
		os.Exit(1)
	}
}

func newCommand() *serpent.Command {
	var (
		logLevel    string
		cells       int64
		callers     int64
		concurrency int64
		initDelay   time.Duration
		abandonRate float64
		callTimeout time.Duration
		seed        int64
		timeout     time.Duration
		dumpMetrics bool
	)
	return &serpent.Command{
		Use:   "lazybench",
		Short: "Race goroutines over lazy cells and verify each is set exactly once",
		Options: serpent.OptionSet{
			{
				Name:        "log-level",
				Description: "What level of logs to output.",
				Flag:        "log-level",
				Env:         "LAZYBENCH_LOG_LEVEL",
				Default:     "info",
				Value:       serpent.EnumOf(&logLevel, "debug", "info", "warn", "error"),
			},
			{
				Name:        "cells",
				Description: "Number of independent cells.",
				Flag:        "cells",
				Env:         "LAZYBENCH_CELLS",
				Default:     "8",
				Value:       serpent.Int64Of(&cells),
			},
			{
				Name:        "callers",
				Description: "Number of goroutines negotiating with each cell.",
				Flag:        "callers",
				Env:         "LAZYBENCH_CALLERS",
				Default:     "1000",
				Value:       serpent.Int64Of(&callers),
			},
			{
				Name:        "concurrency",
				Description: "Number of callers running at once. 0 means unlimited.",
				Flag:        "concurrency",
				Env:         "LAZYBENCH_CONCURRENCY",
				Default:     "0",
				Value:       serpent.Int64Of(&concurrency),
			},
			{
				Name:        "init-delay",
				Description: "How long a caller holding a setter waits before setting the value.",
				Flag:        "init-delay",
				Env:         "LAZYBENCH_INIT_DELAY",
				Default:     "10ms",
				Value:       serpent.DurationOf(&initDelay),
			},
			{
				Name:        "abandon-rate",
				Description: "Chance that a caller releases its setter without setting a value.",
				Flag:        "abandon-rate",
				Env:         "LAZYBENCH_ABANDON_RATE",
				Default:     "0",
				Value:       serpent.Float64Of(&abandonRate),
			},
			{
				Name:        "call-timeout",
				Description: "Timeout per caller. 0 means unlimited.",
				Flag:        "call-timeout",
				Env:         "LAZYBENCH_CALL_TIMEOUT",
				Default:     "0",
				Value:       serpent.DurationOf(&callTimeout),
			},
			{
				Name:        "seed",
				Description: "Seed for caller ordering and abandonment.",
				Flag:        "seed",
				Env:         "LAZYBENCH_SEED",
				Default:     "1",
				Value:       serpent.Int64Of(&seed),
			},
			{
				Name:        "timeout",
				Description: "Timeout for the entire run. 0 means unlimited.",
				Flag:        "timeout",
				Env:         "LAZYBENCH_TIMEOUT",
				Default:     "5m",
				Value:       serpent.DurationOf(&timeout),
			},
			{
				Name:        "metrics",
				Description: "Print the prometheus metrics collected during the run.",
				Flag:        "metrics",
				Env:         "LAZYBENCH_METRICS",
				Value:       serpent.BoolOf(&dumpMetrics),
			},
		},
		Handler: func(inv *serpent.Invocation) error {
			ctx := inv.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			logger := slog.Make(sloghuman.Sink(inv.Stderr)).Leveled(parseLevel(logLevel))

			reg := prometheus.NewRegistry()
			metrics := lazy.NewMetrics()
			if err := metrics.Register(reg); err != nil {
				return xerrors.Errorf("register metrics: %w", err)
			}

			runner, err := bench.NewRunner(bench.Config{
				Cells:       int(cells),
				Callers:     int(callers),
				Concurrency: int(concurrency),
				InitDelay:   initDelay,
				AbandonRate: abandonRate,
				CallTimeout: callTimeout,
				Seed:        seed,
			}, logger, bench.WithMetrics(metrics))
			if err != nil {
				return err
			}

			res, runErr := runner.Run(ctx)
			res.Render(inv.Stdout)

			if dumpMetrics {
				if err := writeMetrics(inv, reg); err != nil {
					return err
				}
			}
			if runErr != nil {
				return xerrors.Errorf("bench failed: %w", runErr)
			}
			return nil
		},
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func writeMetrics(inv *serpent.Invocation, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return xerrors.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(inv.Stdout, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return xerrors.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}
