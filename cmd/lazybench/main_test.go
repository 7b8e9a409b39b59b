package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coder/lazycell/testutil"
)

func TestLazyBench(t *testing.T) {
	t.Parallel()

	t.Run("OK", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitLong)

		var stdout, stderr bytes.Buffer
		inv := newCommand().Invoke(
			"--cells", "2",
			"--callers", "20",
			"--init-delay", "1ms",
			"--abandon-rate", "0.2",
			"--metrics",
		).WithContext(ctx)
		inv.Stdin = &bytes.Buffer{}
		inv.Stdout = &stdout
		inv.Stderr = &stderr

		require.NoError(t, inv.Run())
		out := stdout.String()
		require.Contains(t, out, "commits")
		require.Contains(t, out, "lazycell_commits_total")
		require.Contains(t, stderr.String(), "bench finished")
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitShort)

		var stdout, stderr bytes.Buffer
		inv := newCommand().Invoke("--cells", "0").WithContext(ctx)
		inv.Stdin = &bytes.Buffer{}
		inv.Stdout = &stdout
		inv.Stderr = &stderr

		err := inv.Run()
		require.ErrorContains(t, err, "cells must be greater than 0")
	})
}
