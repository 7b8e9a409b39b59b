package lazy

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
)

const (
	setterHeld int32 = iota
	setterDone
)

// Setter is the exclusive permission to store the value of a Cell. It is
// handed to exactly one caller of Negotiate at a time and holds the cell's
// lock until Set or Release is called.
//
// A Setter is single use: Set publishes the value and releases the lock;
// calling Set again, or after Release, panics with an error matching
// ErrSetterUsed.
type Setter[T any] struct {
	cell     *Cell[T]
	acquired time.Time
	state    atomic.Int32
}

// Set stores v in the cell, wakes any waiters and returns the stored value.
func (s *Setter[T]) Set(v T) T {
	if !s.state.CompareAndSwap(setterHeld, setterDone) {
		panic(xerrors.Errorf("lazy: set cell %q: %w", s.cell.opts.name, ErrSetterUsed))
	}
	p := s.cell.publish(v)
	s.cell.opts.metrics.observeCommit(s.cell.opts.name)
	s.cell.opts.logger.Debug(context.Background(), "cell set")
	s.cell.release(s.cell.opts.clock.Since(s.acquired))
	return *p
}

// Release gives up the Setter without storing a value. The cell stays empty
// and the next caller of Negotiate is offered a Setter. Release after Set is a
// no-op, so it is safe to defer right after receiving the Setter:
//
//	setter, _ := out.Setter()
//	defer setter.Release()
//
// When deferred like this and the goroutine is panicking, Release poisons the
// cell, unlocks it and resumes the panic. Negotiate then fails with
// ErrPoisoned until Cell.Unpoison is called.
func (s *Setter[T]) Release() {
	if r := recover(); r != nil {
		if s.state.CompareAndSwap(setterHeld, setterDone) {
			perr := &PoisonError{Cell: s.cell.opts.name, Value: r}
			s.cell.poison.Store(perr)
			s.cell.opts.metrics.observePoison(s.cell.opts.name)
			s.cell.opts.logger.Error(context.Background(), "setter holder panicked, cell poisoned",
				slog.F("panic", r),
			)
			s.cell.release(s.cell.opts.clock.Since(s.acquired))
		}
		panic(r)
	}

	if !s.state.CompareAndSwap(setterHeld, setterDone) {
		return
	}
	s.cell.opts.metrics.observeRelease(s.cell.opts.name)
	s.cell.opts.logger.Debug(context.Background(), "setter released without a value")
	s.cell.release(s.cell.opts.clock.Since(s.acquired))
}
