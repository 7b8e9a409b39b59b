package lazy_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/coder/lazycell/lazy"
	"github.com/coder/lazycell/testutil"
	"github.com/coder/quartz"
)

func TestMetrics(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitShort)

	mClock := quartz.NewMock(t)
	reg := prometheus.NewRegistry()
	metrics := lazy.NewMetrics()
	require.NoError(t, metrics.Register(reg))

	committed := lazy.NewCell[string](
		lazy.WithName("committed"),
		lazy.WithMetrics(metrics),
		lazy.WithClock(mClock),
		lazy.WithLogger(testutil.Logger(t)),
	)
	setter := requireSetter(ctx, t, committed)
	mClock.Advance(2 * time.Second).MustWait(ctx)
	setter.Set("value")
	for range 3 {
		_, err := committed.Negotiate(ctx)
		require.NoError(t, err)
	}

	released := lazy.NewCell[string](
		lazy.WithName("released"),
		lazy.WithMetrics(metrics),
		lazy.WithClock(mClock),
	)
	requireSetter(ctx, t, released).Release()

	families, err := reg.Gather()
	require.NoError(t, err)

	require.True(t, testutil.PromCounterHasValue(t, families, 1, "lazycell_negotiations_total", "committed", "setter"))
	require.True(t, testutil.PromCounterHasValue(t, families, 3, "lazycell_negotiations_total", "committed", "fast"))
	require.True(t, testutil.PromCounterHasValue(t, families, 1, "lazycell_commits_total", "committed"))
	require.True(t, testutil.PromCounterHasValue(t, families, 1, "lazycell_releases_total", "released"))
	require.False(t, testutil.PromCounterHasValue(t, families, 1, "lazycell_commits_total", "released"))

	require.True(t, testutil.PromHistogramHasCount(t, families, 1, "lazycell_lock_wait_seconds", "committed"))
	require.True(t, testutil.PromHistogramHasCount(t, families, 1, "lazycell_lock_hold_seconds", "committed"))
	require.InDelta(t, 2.0, testutil.PromHistogramSum(t, families, "lazycell_lock_hold_seconds", "committed"), 0.0001)
	require.InDelta(t, 0.0, testutil.PromHistogramSum(t, families, "lazycell_lock_hold_seconds", "released"), 0.0001)
}

func TestMetricsNil(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitShort)

	cell := lazy.NewCell[int](lazy.WithMetrics(nil))
	requireSetter(ctx, t, cell).Set(1)
	require.Equal(t, 1, cell.MustGet())
}

func TestTracing(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitShort)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(ctx) }()

	cell := lazy.NewCell[int](lazy.WithName("traced"), lazy.WithTracer(tp.Tracer(t.Name())))
	requireSetter(ctx, t, cell).Set(1)

	// The fast path does not start a span.
	_, err := cell.Negotiate(ctx)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "lazy.Cell.Negotiate", spans[0].Name())
	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	require.Equal(t, "traced", attrs["lazy.cell"])
	require.Equal(t, "setter", attrs["lazy.outcome"])
}

func TestMetricsRegisterTwice(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := lazy.NewMetrics()
	require.NoError(t, metrics.Register(reg))
	require.Error(t, metrics.Register(reg))
}
