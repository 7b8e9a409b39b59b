package testutil

import (
	"context"
	"testing"
	"time"
)

// Context returns a context that times out after dur and is canceled when
// the test ends.
func Context(t testing.TB, dur time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), dur)
	t.Cleanup(cancel)
	return ctx
}
