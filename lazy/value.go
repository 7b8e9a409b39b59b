package lazy

import (
	"context"
)

// Value is a lazily computed value. fn runs on the first Load and its result
// is returned by every Load after that.
type Value[T any] struct {
	cell *Cell[T]
	fn   func() T
}

// New returns a Value that computes fn on first use.
func New[T any](fn func() T, opts ...Option) *Value[T] {
	return &Value[T]{cell: NewCell[T](opts...), fn: fn}
}

// Load returns the value, computing it if this is the first call. If fn
// panics, the panic propagates and every later Load panics with a
// *PoisonError.
func (v *Value[T]) Load() T {
	if t, ok := v.cell.TryGet(); ok {
		return t
	}
	t, err := v.cell.GetOrInit(context.Background(), func(context.Context) (T, error) {
		return v.fn(), nil
	})
	if err != nil {
		panic(err)
	}
	return t
}

// ValueWithError is a lazily computed value whose computation can fail.
// Failed computations are not cached: the next Load runs fn again.
type ValueWithError[T any] struct {
	cell *Cell[T]
	fn   func() (T, error)
}

// NewWithError returns a ValueWithError that computes fn on first successful
// use.
func NewWithError[T any](fn func() (T, error), opts ...Option) *ValueWithError[T] {
	return &ValueWithError[T]{cell: NewCell[T](opts...), fn: fn}
}

// Load returns the value, computing it if no earlier call succeeded.
func (v *ValueWithError[T]) Load() (T, error) {
	return v.LoadContext(context.Background())
}

// LoadContext is Load, giving up if ctx is done while another goroutine is
// computing the value.
func (v *ValueWithError[T]) LoadContext(ctx context.Context) (T, error) {
	if t, ok := v.cell.TryGet(); ok {
		return t, nil
	}
	return v.cell.GetOrInit(ctx, func(context.Context) (T, error) {
		return v.fn()
	})
}
