package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// RequireReceive will receive a value from the chan and return it. If
// the context expires or the channel is closed before a value can be received,
// it will fail the test.
//
// Safety: Must only be called from the Go routine that created `t`.
func RequireReceive[A any](ctx context.Context, t testing.TB, c <-chan A) A {
	t.Helper()
	select {
	case <-ctx.Done():
		require.Fail(t, "RequireReceive: context expired")
		var a A
		return a
	case a, ok := <-c:
		if !ok {
			require.Fail(t, "RequireReceive: channel closed")
		}
		return a
	}
}

// RequireSend will send the given value over the chan and then return. If
// the context expires before the send succeeds, it will fail the test.
//
// Safety: Must only be called from the Go routine that created `t`.
func RequireSend[A any](ctx context.Context, t testing.TB, c chan<- A, a A) {
	t.Helper()
	select {
	case <-ctx.Done():
		require.Fail(t, "RequireSend: context expired")
	case c <- a:
	}
}

// RequireNoReceive fails the test if c has a value ready to be received.
//
// Safety: Must only be called from the Go routine that created `t`.
func RequireNoReceive[A any](t testing.TB, c <-chan A) {
	t.Helper()
	select {
	case a := <-c:
		require.Failf(t, "RequireNoReceive: unexpected value", "%v", a)
	default:
	}
}
