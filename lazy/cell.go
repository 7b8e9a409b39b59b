// Package lazy provides values that are computed at most once and are safe to
// share between goroutines.
//
// Cell is the building block. It does not take an initializer up front:
// callers Negotiate with the cell and exactly one of them is handed a Setter,
// the permission to store the value. Everyone else either sees the stored
// value or waits for the Setter to be used or released.
//
//	out, err := cell.Negotiate(ctx)
//	if err != nil {
//		return err
//	}
//	if v, ok := out.Value(); ok {
//		return v
//	}
//	setter, _ := out.Setter()
//	defer setter.Release()
//	return setter.Set(compute())
package lazy

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
)

// Cell holds a value of type T that is set at most once. A Cell must be
// created with NewCell and must not be copied after first use.
//
// Values stored in a Cell are never replaced or removed, so anything returned
// by TryGet, Negotiate or Setter.Set stays valid for the life of the Cell.
type Cell[T any] struct {
	// value is nil until a Setter publishes it. Storing the pointer is the
	// last write made by Set, so a reader that loads a non-nil pointer sees
	// the fully written value without holding sem.
	value atomic.Pointer[T]
	// sem guards the transition from empty to set. Only the goroutine
	// holding a Setter holds it.
	sem *semaphore.Weighted
	// poison is non-nil once a Setter holder panicked.
	poison atomic.Pointer[PoisonError]

	opts options
}

// NewCell returns an empty Cell.
func NewCell[T any](opts ...Option) *Cell[T] {
	c := &Cell[T]{
		sem:  semaphore.NewWeighted(1),
		opts: defaultOptions(),
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	c.opts.logger = c.opts.logger.Named("lazy").With(slog.F("cell", c.opts.name))
	return c
}

// Name returns the name the cell was created with, or the empty string.
func (c *Cell[T]) Name() string {
	return c.opts.name
}

// TryGet returns the stored value and true, or the zero value and false if the
// cell is still empty. It never blocks.
func (c *Cell[T]) TryGet() (T, bool) {
	if p := c.value.Load(); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// IsSet reports whether a value has been stored.
func (c *Cell[T]) IsSet() bool {
	return c.value.Load() != nil
}

// MustGet returns the stored value and panics if the cell is empty.
func (c *Cell[T]) MustGet() T {
	v, ok := c.TryGet()
	if !ok {
		panic(xerrors.Errorf("lazy: cell %q is not set", c.opts.name))
	}
	return v
}

// Negotiate returns the stored value if there is one. Otherwise it waits for
// exclusive access to the cell and checks again; if the cell is still empty
// the caller receives a Setter and must either Set a value or Release it.
//
// Only the wait for exclusive access blocks. If ctx is done before access is
// granted the error wraps ctx.Err() and the cell is left untouched. If a
// previous Setter holder panicked, the error matches ErrPoisoned.
func (c *Cell[T]) Negotiate(ctx context.Context) (Outcome[T], error) {
	if v, ok := c.TryGet(); ok {
		c.opts.metrics.observeNegotiation(c.opts.name, pathFast)
		return Outcome[T]{value: v, hasValue: true}, nil
	}
	if err := c.Poisoned(); err != nil {
		return Outcome[T]{}, err
	}
	return c.negotiateSlow(ctx)
}

func (c *Cell[T]) negotiateSlow(ctx context.Context) (Outcome[T], error) {
	ctx, span := c.opts.tracer.Start(ctx, "lazy.Cell.Negotiate", trace.WithAttributes(
		attribute.String("lazy.cell", c.opts.name),
	))
	defer span.End()

	c.opts.logger.Debug(ctx, "cell empty, waiting for exclusive access")
	start := c.opts.clock.Now("lazy", "wait")
	err := c.sem.Acquire(ctx, 1)
	c.opts.metrics.observeWait(c.opts.name, c.opts.clock.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire")
		return Outcome[T]{}, xerrors.Errorf("acquire cell %q: %w", c.opts.name, err)
	}

	// The previous holder may have set the value, or panicked, while we were
	// waiting.
	if v, ok := c.TryGet(); ok {
		c.sem.Release(1)
		c.opts.metrics.observeNegotiation(c.opts.name, pathSlow)
		span.SetAttributes(attribute.String("lazy.outcome", "value"))
		return Outcome[T]{value: v, hasValue: true}, nil
	}
	if err := c.Poisoned(); err != nil {
		c.sem.Release(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "poisoned")
		return Outcome[T]{}, err
	}

	c.opts.metrics.observeNegotiation(c.opts.name, pathSetter)
	span.SetAttributes(attribute.String("lazy.outcome", "setter"))
	return Outcome[T]{setter: &Setter[T]{cell: c, acquired: c.opts.clock.Now("lazy", "hold")}}, nil
}

// GetOrInit returns the stored value, or negotiates for the right to set it
// and calls fn to produce it. If fn returns an error the cell stays empty and
// the error is returned; a later call will try again.
func (c *Cell[T]) GetOrInit(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	out, err := c.Negotiate(ctx)
	if err != nil {
		return zero, err
	}
	if v, ok := out.Value(); ok {
		return v, nil
	}
	setter, _ := out.Setter()
	defer setter.Release()

	v, err := fn(ctx)
	if err != nil {
		return zero, xerrors.Errorf("initialize cell %q: %w", c.opts.name, err)
	}
	return setter.Set(v), nil
}

// Poisoned returns a *PoisonError if a Setter holder panicked while holding
// the cell, and nil otherwise.
func (c *Cell[T]) Poisoned() error {
	if p := c.poison.Load(); p != nil {
		return p
	}
	return nil
}

// Unpoison clears a previous poisoning so that the next Negotiate hands out a
// Setter again. It reports whether the cell was poisoned.
func (c *Cell[T]) Unpoison() bool {
	p := c.poison.Swap(nil)
	if p != nil {
		c.opts.logger.Info(context.Background(), "cell unpoisoned")
	}
	return p != nil
}

// publish stores v and makes it visible to lock-free readers. Must be called
// with sem held.
func (c *Cell[T]) publish(v T) *T {
	p := &v
	c.value.Store(p)
	return p
}

func (c *Cell[T]) release(held time.Duration) {
	c.opts.metrics.observeHold(c.opts.name, held)
	c.sem.Release(1)
}
