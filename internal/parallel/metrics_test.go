package parallel_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/igorfuzz/console/internal/argv"
	"github.com/igorfuzz/console/internal/parallel"
	"github.com/igorfuzz/console/internal/runner"
)

func TestMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := parallel.NewMetrics("igor", reg)
	pool := newPool(t, argv.Fragment{}, 2, parallel.WithMetrics(m))

	jobs := []runner.Job{
		sleepJob(time.Millisecond, 0),
		sleepJob(time.Millisecond, 1),
		func(context.Context) (runner.Result, error) {
			return runner.Result{Code: runner.TimeoutCode}, nil
		},
		func(context.Context) (runner.Result, error) {
			return runner.Result{}, errors.New("nope")
		},
	}
	for _, job := range jobs {
		_, _ = pool.Run(t.Context(), job)
	}

	count, err := testutil.GatherAndCount(reg, "igor_pool_jobs_submitted_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := make(map[string]bool)
	for _, f := range families {
		byName[f.GetName()] = true
	}
	require.True(t, byName["igor_pool_jobs_total"])
	require.True(t, byName["igor_pool_job_duration_seconds"])
	require.True(t, byName["igor_pool_jobs_running"])

	var nilMetrics *parallel.Metrics
	pool2 := newPool(t, argv.Fragment{}, 1, parallel.WithMetrics(nilMetrics))
	_, err = pool2.Run(t.Context(), sleepJob(0, 0))
	require.NoError(t, err)
}

func TestMetricsValues(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := parallel.NewMetrics("v", reg)
	pool := newPool(t, argv.Fragment{}, 1, parallel.WithMetrics(m))

	for range 3 {
		_, err := pool.Run(t.Context(), sleepJob(0, 0))
		require.NoError(t, err)
	}
	_, _ = pool.Run(t.Context(), func(context.Context) (runner.Result, error) {
		return runner.Result{Code: runner.TimeoutCode}, nil
	})

	const expected = `
# HELP v_pool_jobs_total Total number of finished jobs by outcome
# TYPE v_pool_jobs_total counter
v_pool_jobs_total{outcome="exited"} 3
v_pool_jobs_total{outcome="timeout"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "v_pool_jobs_total"))
}
