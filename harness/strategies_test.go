package harness_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"
	"golang.org/x/xerrors"

	"github.com/coder/lazycell/harness"
	"github.com/coder/lazycell/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func Test_LinearExecutionStrategy(t *testing.T) {
	t.Parallel()

	var (
		lastSeenI int64 = -1
		count     int64
	)
	errs, err := harness.LinearExecutionStrategy{}.Run(context.Background(), strategyTestFns(10, func(i int) error {
		count++
		require.Equal(t, lastSeenI+1, int64(i))
		lastSeenI = int64(i)
		if i%2 == 0 {
			return xerrors.New("error")
		}
		return nil
	}))
	require.NoError(t, err)
	require.Len(t, errs, 5)
	require.EqualValues(t, 10, count)
}

func Test_ConcurrentExecutionStrategy(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitShort)

	// Every function blocks until all of them are running.
	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	errs, err := harness.ConcurrentExecutionStrategy{}.Run(ctx, strategyTestFns(n, func(i int) error {
		wg.Done()
		wg.Wait()
		if i%2 == 0 {
			return xerrors.New("error")
		}
		return nil
	}))
	require.NoError(t, err)
	require.Len(t, errs, 5)
}

func Test_ParallelExecutionStrategy(t *testing.T) {
	t.Parallel()

	var (
		running atomic.Int64
		maxSeen atomic.Int64
	)
	errs, err := harness.ParallelExecutionStrategy{Limit: 3}.Run(context.Background(), strategyTestFns(20, func(i int) error {
		cur := running.Inc()
		defer running.Dec()
		for {
			prev := maxSeen.Load()
			if cur <= prev || maxSeen.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		return nil
	}))
	require.NoError(t, err)
	require.Empty(t, errs)
	require.LessOrEqual(t, maxSeen.Load(), int64(3))

	_, err = harness.ParallelExecutionStrategy{Limit: -1}.Run(context.Background(), nil)
	require.Error(t, err)
}

func Test_TimeoutExecutionStrategy(t *testing.T) {
	t.Parallel()

	errs, err := harness.TimeoutExecutionStrategyWrapper{
		Timeout: time.Millisecond,
		Inner:   harness.LinearExecutionStrategy{},
	}.Run(context.Background(), []harness.TestFn{
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], context.DeadlineExceeded)
}

func Test_ShuffleExecutionStrategy(t *testing.T) {
	t.Parallel()

	order := func(seed int64) []int {
		var seen []int
		_, err := harness.ShuffleExecutionStrategyWrapper{
			Seed:  seed,
			Inner: harness.LinearExecutionStrategy{},
		}.Run(context.Background(), strategyTestFns(20, func(i int) error {
			seen = append(seen, i)
			return nil
		}))
		require.NoError(t, err)
		return seen
	}

	first := order(42)
	require.Equal(t, first, order(42))

	sorted := append([]int(nil), first...)
	sort.Ints(sorted)
	for i, v := range sorted {
		require.Equal(t, i, v)
	}
}

func Test_ForConcurrency(t *testing.T) {
	t.Parallel()

	require.Equal(t, harness.LinearExecutionStrategy{}, harness.ForConcurrency(1))
	require.Equal(t, harness.ConcurrentExecutionStrategy{}, harness.ForConcurrency(0))
	require.Equal(t, harness.ParallelExecutionStrategy{Limit: 4}, harness.ForConcurrency(4))
}

func strategyTestFns(n int, fn func(i int) error) []harness.TestFn {
	fns := make([]harness.TestFn, n)
	for i := range fns {
		fns[i] = func(context.Context) error {
			return fn(i)
		}
	}
	return fns
}
