// Package harness runs batches of functions under different concurrency
// models.
package harness

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// TestFn is a function that can be run by an ExecutionStrategy.
type TestFn func(ctx context.Context) error

// ExecutionStrategy defines how a batch of functions is executed. It
// essentially defines the concurrency model for a given run.
type ExecutionStrategy interface {
	// Run calls each function in whatever way the strategy wants. All
	// errors returned from the functions are wrapped and returned, and all
	// given functions must be executed.
	Run(ctx context.Context, fns []TestFn) ([]error, error)
}

// LinearExecutionStrategy executes all functions one after the other.
type LinearExecutionStrategy struct{}

var _ ExecutionStrategy = LinearExecutionStrategy{}

// Run implements ExecutionStrategy.
func (LinearExecutionStrategy) Run(ctx context.Context, fns []TestFn) ([]error, error) {
	var errs []error
	for i, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, xerrors.Errorf("run %d: %w", i, err))
		}
	}
	return errs, nil
}

// ConcurrentExecutionStrategy executes all functions concurrently without any
// regard for parallelism.
type ConcurrentExecutionStrategy struct{}

var _ ExecutionStrategy = ConcurrentExecutionStrategy{}

// Run implements ExecutionStrategy.
func (ConcurrentExecutionStrategy) Run(ctx context.Context, fns []TestFn) ([]error, error) {
	return ParallelExecutionStrategy{}.Run(ctx, fns)
}

// ParallelExecutionStrategy executes all functions concurrently, but limits
// the number running at once to Limit. A Limit of 0 means unlimited.
type ParallelExecutionStrategy struct {
	Limit int
}

var _ ExecutionStrategy = ParallelExecutionStrategy{}

// Run implements ExecutionStrategy.
func (p ParallelExecutionStrategy) Run(ctx context.Context, fns []TestFn) ([]error, error) {
	if p.Limit < 0 {
		return nil, xerrors.Errorf("invalid parallel limit %d", p.Limit)
	}

	var (
		eg   errgroup.Group
		errs = newErrorsList()
	)
	if p.Limit > 0 {
		eg.SetLimit(p.Limit)
	}
	for i, fn := range fns {
		eg.Go(func() error {
			if err := fn(ctx); err != nil {
				errs.add(xerrors.Errorf("run %d: %w", i, err))
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errs.errs, nil
}

// TimeoutExecutionStrategyWrapper is an ExecutionStrategy that wraps another
// ExecutionStrategy and applies a timeout to each function's context.
type TimeoutExecutionStrategyWrapper struct {
	Timeout time.Duration
	Inner   ExecutionStrategy
}

var _ ExecutionStrategy = TimeoutExecutionStrategyWrapper{}

// Run implements ExecutionStrategy.
func (t TimeoutExecutionStrategyWrapper) Run(ctx context.Context, fns []TestFn) ([]error, error) {
	newFns := make([]TestFn, len(fns))
	for i, fn := range fns {
		newFns[i] = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, t.Timeout)
			defer cancel()
			return fn(ctx)
		}
	}
	return t.Inner.Run(ctx, newFns)
}

// ShuffleExecutionStrategyWrapper is an ExecutionStrategy that wraps another
// ExecutionStrategy and shuffles the functions before executing them. The
// order is derived from Seed so runs can be reproduced.
type ShuffleExecutionStrategyWrapper struct {
	Seed  int64
	Inner ExecutionStrategy
}

var _ ExecutionStrategy = ShuffleExecutionStrategyWrapper{}

// Run implements ExecutionStrategy.
func (s ShuffleExecutionStrategyWrapper) Run(ctx context.Context, fns []TestFn) ([]error, error) {
	shuffledFns := make([]TestFn, len(fns))
	copy(shuffledFns, fns)
	//nolint:gosec // ordering only, not security sensitive.
	src := rand.New(rand.NewSource(s.Seed))
	src.Shuffle(len(shuffledFns), func(i, j int) {
		shuffledFns[i], shuffledFns[j] = shuffledFns[j], shuffledFns[i]
	})
	return s.Inner.Run(ctx, shuffledFns)
}

// ForConcurrency picks the strategy for a concurrency setting: 1 runs
// linearly, 0 runs everything at once and anything else is a parallel limit.
func ForConcurrency(concurrency int) ExecutionStrategy {
	switch concurrency {
	case 1:
		return LinearExecutionStrategy{}
	case 0:
		return ConcurrentExecutionStrategy{}
	default:
		return ParallelExecutionStrategy{Limit: concurrency}
	}
}

type errorsList struct {
	mut  *sync.Mutex
	errs []error
}

func newErrorsList() *errorsList {
	return &errorsList{
		mut:  &sync.Mutex{},
		errs: []error{},
	}
}

func (l *errorsList) add(err error) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.errs = append(l.errs, err)
}
