package testutil

import (
	"context"
	"testing"

	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/slogtest"
)

// Logger returns a "standard" testing logger at debug level. Errors caused by
// canceled contexts are not treated as test failures.
func Logger(t testing.TB) slog.Logger {
	return slogtest.Make(
		t, &slogtest.Options{IgnoreErrorFn: IgnoreLoggedError},
	).Leveled(slog.LevelDebug)
}

// IgnoringErrorsLogger is Logger, but no logged error fails the test. Use it
// for tests that deliberately drive the code under test into an error path.
func IgnoringErrorsLogger(t testing.TB) slog.Logger {
	return slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}).Leveled(slog.LevelDebug)
}

func IgnoreLoggedError(entry slog.SinkEntry) bool {
	err, ok := slogtest.FindFirstError(entry)
	if !ok {
		return false
	}
	return xerrors.Is(err, context.Canceled) || xerrors.Is(err, context.DeadlineExceeded)
}
