// Package bench races many goroutines over lazy cells and checks that every
// cell was set exactly once and that every caller saw the value that was set.
package bench

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/atomic"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"github.com/coder/lazycell/harness"
	"github.com/coder/lazycell/lazy"
	"github.com/coder/quartz"
)

const notObserved = -1

// Runner races callers over lazy cells as described by its Config.
type Runner struct {
	cfg     Config
	logger  slog.Logger
	clock   quartz.Clock
	metrics *lazy.Metrics
	tracer  trace.Tracer

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewRunner validates cfg and returns a Runner using the real clock and a
// no-op tracer unless overridden by opts.
func NewRunner(cfg Config, logger slog.Logger, opts ...func(*Runner)) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("validate config: %w", err)
	}
	r := &Runner{
		cfg:    cfg,
		logger: logger.Named("bench"),
		clock:  quartz.NewReal(),
		tracer: noop.NewTracerProvider().Tracer(""),
		//nolint:gosec // abandonment decisions only.
		rand: rand.New(rand.NewSource(cfg.Seed)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func WithClock(clock quartz.Clock) func(*Runner) {
	return func(r *Runner) {
		r.clock = clock
	}
}

func WithMetrics(m *lazy.Metrics) func(*Runner) {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) func(*Runner) {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// Result summarizes a run.
type Result struct {
	Cells int
	Calls int
	// Setters is how many times a caller was handed a setter.
	Setters int64
	// Commits is how many values were set. It equals Cells unless calls
	// failed before any caller of a cell could set it.
	Commits int64
	// Releases is how many setters were given up without a value.
	Releases int64
	// Values is how many calls observed an existing value.
	Values  int64
	Failed  int
	Elapsed time.Duration
}

type cellRun struct {
	cell    *lazy.Cell[int]
	commits atomic.Int64
	// observed[i] is written only by caller i.
	observed []int
}

type stats struct {
	setters  atomic.Int64
	releases atomic.Int64
	values   atomic.Int64
}

// Run races the configured callers over fresh cells. The returned error
// aggregates failed calls and any broken invariant; the Result is filled in
// either way.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	ctx, span := r.tracer.Start(ctx, "bench.Run", trace.WithAttributes(
		attribute.Int("bench.cells", r.cfg.Cells),
		attribute.Int("bench.callers", r.cfg.Callers),
	))
	defer span.End()

	var (
		st    stats
		cells = make([]*cellRun, r.cfg.Cells)
		fns   = make([]harness.TestFn, 0, r.cfg.Cells*r.cfg.Callers)
	)
	for i := range cells {
		cr := &cellRun{
			cell: lazy.NewCell[int](
				lazy.WithName(fmt.Sprintf("bench-%d", i)),
				lazy.WithLogger(r.logger),
				lazy.WithMetrics(r.metrics),
				lazy.WithClock(r.clock),
				lazy.WithTracer(r.tracer),
			),
			observed: make([]int, r.cfg.Callers),
		}
		for j := range cr.observed {
			cr.observed[j] = notObserved
			fns = append(fns, r.caller(cr, j, &st))
		}
		cells[i] = cr
	}

	var strategy harness.ExecutionStrategy = harness.ShuffleExecutionStrategyWrapper{
		Seed:  r.cfg.Seed,
		Inner: harness.ForConcurrency(r.cfg.Concurrency),
	}
	if r.cfg.CallTimeout > 0 {
		strategy = harness.TimeoutExecutionStrategyWrapper{
			Timeout: r.cfg.CallTimeout,
			Inner:   strategy,
		}
	}

	defer func() {
		e := recover()
		if e != nil {
			err = xerrors.Errorf("panic in bench.Run: %+v", e)
		}
	}()

	r.logger.Info(ctx, "starting bench",
		slog.F("cells", r.cfg.Cells),
		slog.F("callers", r.cfg.Callers),
		slog.F("concurrency", r.cfg.Concurrency),
	)
	start := r.clock.Now()
	runErrs, err := strategy.Run(ctx, fns)
	if err != nil {
		return Result{}, xerrors.Errorf("run strategy: %w", err)
	}

	res = Result{
		Cells:    r.cfg.Cells,
		Calls:    len(fns),
		Setters:  st.setters.Load(),
		Releases: st.releases.Load(),
		Values:   st.values.Load(),
		Failed:   len(runErrs),
		Elapsed:  r.clock.Since(start),
	}

	var merr error
	for _, runErr := range runErrs {
		merr = multierror.Append(merr, runErr)
	}
	for _, cr := range cells {
		res.Commits += cr.commits.Load()
		if verr := cr.verify(); verr != nil {
			merr = multierror.Append(merr, verr)
		}
	}

	r.logger.Info(ctx, "bench finished",
		slog.F("elapsed", res.Elapsed),
		slog.F("setters", res.Setters),
		slog.F("commits", res.Commits),
		slog.F("failed", res.Failed),
	)
	if merr != nil {
		span.RecordError(merr)
	}
	return res, merr
}

func (r *Runner) caller(cr *cellRun, id int, st *stats) harness.TestFn {
	return func(ctx context.Context) error {
		for {
			out, err := cr.cell.Negotiate(ctx)
			if err != nil {
				return xerrors.Errorf("negotiate: %w", err)
			}
			if v, ok := out.Value(); ok {
				st.values.Inc()
				cr.observed[id] = v
				return nil
			}

			setter, _ := out.Setter()
			st.setters.Inc()
			if r.abandon() {
				setter.Release()
				st.releases.Inc()
				continue
			}
			if err := r.initDelay(ctx); err != nil {
				setter.Release()
				st.releases.Inc()
				return xerrors.Errorf("initialize %s: %w", cr.cell.Name(), err)
			}
			cr.commits.Inc()
			cr.observed[id] = setter.Set(id)
			return nil
		}
	}
}

func (r *Runner) abandon() bool {
	if r.cfg.AbandonRate == 0 {
		return false
	}
	r.randMu.Lock()
	defer r.randMu.Unlock()
	return r.rand.Float64() < r.cfg.AbandonRate
}

func (r *Runner) initDelay(ctx context.Context) error {
	if r.cfg.InitDelay == 0 {
		return nil
	}
	timer := r.clock.NewTimer(r.cfg.InitDelay, "bench", "initDelay")
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (cr *cellRun) verify() error {
	name := cr.cell.Name()
	commits := cr.commits.Load()
	if commits > 1 {
		return xerrors.Errorf("%s: set %d times", name, commits)
	}

	want, ok := cr.cell.TryGet()
	for id, got := range cr.observed {
		if got == notObserved {
			continue
		}
		if !ok {
			return xerrors.Errorf("%s: caller %d observed %d but the cell is empty", name, id, got)
		}
		if got != want {
			return xerrors.Errorf("%s: caller %d observed %d, cell holds %d", name, id, got, want)
		}
	}
	if ok && commits != 1 {
		return xerrors.Errorf("%s: holds %d without a recorded commit", name, want)
	}
	return nil
}
