package parallel_test

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/igorfuzz/console/internal/argv"
	"github.com/igorfuzz/console/internal/parallel"
	"github.com/igorfuzz/console/internal/runner"
	"github.com/stretchr/testify/require"
)

func lookSh(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	return sh
}

func newPool(t *testing.T, common argv.Fragment, size int, opts ...parallel.Option) *parallel.Pool {
	t.Helper()
	pool, err := parallel.New(common, size, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Shutdown(true) })
	return pool
}

func sleepJob(d time.Duration, code int) runner.Job {
	return func(ctx context.Context) (runner.Result, error) {
		select {
		case <-time.After(d):
			return runner.Result{Code: code}, nil
		case <-ctx.Done():
			return runner.Result{Code: runner.TimeoutCode}, nil
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	for _, size := range []int{0, -1} {
		_, err := parallel.New(argv.Fragment{}, size)
		require.ErrorIs(t, err, parallel.ErrNoSlots)
	}

	common := argv.FromMap(map[int]string{-1: "/bin/ls"})
	pool := newPool(t, common, 4)
	require.Equal(t, 4, pool.Size())

	// the pool keeps its own copy
	common.Set(-1, "/bin/cat")
	c := pool.Common()
	tok, _ := c.Get(-1)
	require.Equal(t, "/bin/ls", tok)
}

func TestJob(t *testing.T) {
	t.Parallel()
	sh := lookSh(t)

	common := argv.FromMap(map[int]string{-1: sh, 0: "-c"})
	pool := newPool(t, common, 2)

	t.Run("override and capture", func(t *testing.T) {
		job, err := pool.Job(argv.FromMap(map[int]string{10: "'echo job 1'"}), runner.Options{
			Capture: true,
			Timeout: 10 * time.Second,
		})
		require.NoError(t, err)
		res, err := pool.Run(t.Context(), job)
		require.NoError(t, err)
		require.Equal(t, 0, res.Code)
		require.Equal(t, "job 1\n", string(res.Stdout))
		require.Equal(t, []string{sh, "-c", "echo job 1"}, res.Args)
	})

	t.Run("malformed spawns nothing", func(t *testing.T) {
		marker := filepath.Join(t.TempDir(), "marker")
		job, err := pool.Job(argv.FromMap(map[int]string{10: "'touch " + marker + "; echo oops"}), runner.Options{})
		require.ErrorIs(t, err, argv.ErrMalformedArguments)
		require.Nil(t, job)
		time.Sleep(50 * time.Millisecond)
		require.NoFileExists(t, marker)
	})

	t.Run("timeout", func(t *testing.T) {
		job, err := pool.Job(argv.FromMap(map[int]string{10: "'echo before; sleep 10'"}), runner.Options{
			Capture: true,
			Timeout: 200 * time.Millisecond,
		})
		require.NoError(t, err)
		res, err := pool.Run(t.Context(), job)
		require.NoError(t, err)
		require.Equal(t, runner.TimeoutCode, res.Code)
		require.Equal(t, "before\n", string(res.Stdout))
	})
}

func TestConcurrencyLimit(t *testing.T) {
	t.Parallel()
	const size = 3
	pool := newPool(t, argv.Fragment{}, size)

	var current, peak atomic.Int32
	job := func(context.Context) (runner.Result, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return runner.Result{Code: 0}, nil
	}

	futures := make([]*parallel.Future, 0, 30)
	for range 30 {
		futures = append(futures, pool.Submit(job))
	}
	for _, f := range futures {
		res, err := f.Wait(t.Context())
		require.NoError(t, err)
		require.Equal(t, 0, res.Code)
	}
	require.LessOrEqual(t, peak.Load(), int32(size))
	require.Positive(t, peak.Load())
}

func TestSubmitOrder(t *testing.T) {
	t.Parallel()
	pool := newPool(t, argv.Fragment{}, 1)

	var mx sync.Mutex
	var order []int
	futures := make([]*parallel.Future, 0, 10)
	for i := range 10 {
		futures = append(futures, pool.Submit(func(context.Context) (runner.Result, error) {
			mx.Lock()
			order = append(order, i)
			mx.Unlock()
			return runner.Result{Code: i}, nil
		}))
	}
	for i, f := range futures {
		res, err := f.Wait(t.Context())
		require.NoError(t, err)
		require.Equal(t, i, res.Code)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestFailureIsolation(t *testing.T) {
	t.Parallel()
	pool := newPool(t, argv.Fragment{}, 2)
	errBoom := errors.New("boom")

	failing := pool.Submit(func(context.Context) (runner.Result, error) {
		return runner.Result{}, errBoom
	})
	panicking := pool.Submit(func(context.Context) (runner.Result, error) {
		panic("kaboom")
	})
	notStarted := pool.Submit(func(ctx context.Context) (runner.Result, error) {
		job, err := runner.New(argv.Vector{"does not exist"}, runner.Options{})
		if err != nil {
			return runner.Result{}, err
		}
		return job(ctx)
	})
	ok := pool.Submit(sleepJob(10*time.Millisecond, 0))

	_, err := failing.Wait(t.Context())
	require.ErrorIs(t, err, errBoom)

	_, err = panicking.Wait(t.Context())
	require.ErrorIs(t, err, parallel.ErrPanic)

	_, err = notStarted.Wait(t.Context())
	var pcErr *runner.ProcessCreationError
	require.ErrorAs(t, err, &pcErr)

	res, err := ok.Wait(t.Context())
	require.NoError(t, err)
	require.Equal(t, 0, res.Code)

	// workers are still alive
	res, err = pool.Run(t.Context(), sleepJob(time.Millisecond, 5))
	require.NoError(t, err)
	require.Equal(t, 5, res.Code)
}

func TestShutdownWait(t *testing.T) {
	t.Parallel()
	pool, err := parallel.New(argv.Fragment{}, 2)
	require.NoError(t, err)

	var done atomic.Int32
	futures := make([]*parallel.Future, 0, 6)
	for range 6 {
		futures = append(futures, pool.Submit(func(context.Context) (runner.Result, error) {
			time.Sleep(30 * time.Millisecond)
			done.Add(1)
			return runner.Result{}, nil
		}))
	}
	pool.Shutdown(true)
	require.Equal(t, int32(6), done.Load())
	for _, f := range futures {
		select {
		case <-f.Done():
		default:
			t.Fatalf("future %s not resolved after shutdown", f.ID())
		}
	}

	_, err = pool.Submit(sleepJob(0, 0)).Wait(t.Context())
	require.ErrorIs(t, err, parallel.ErrClosed)

	// idempotent
	pool.Shutdown(true)
	pool.Shutdown(false)
}

func TestShutdownNoWait(t *testing.T) {
	t.Parallel()
	sh := lookSh(t)

	pool, err := parallel.New(argv.FromMap(map[int]string{0: sh, 1: "-c"}), 1)
	require.NoError(t, err)

	job, err := pool.Job(argv.FromMap(map[int]string{2: "'sleep 30'"}), runner.Options{})
	require.NoError(t, err)
	running := pool.Submit(job)

	queued := make([]*parallel.Future, 0, 3)
	for range 3 {
		queued = append(queued, pool.Submit(sleepJob(time.Second, 0)))
	}

	// let the worker pick up the first job
	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	pool.Shutdown(false)
	require.Less(t, time.Since(start), time.Second)

	for _, f := range queued {
		_, err := f.Wait(t.Context())
		require.ErrorIs(t, err, parallel.ErrClosed)
	}
	res, err := running.Wait(t.Context())
	require.NoError(t, err)
	require.Equal(t, runner.TimeoutCode, res.Code)
	pool.Shutdown(true)
}

func TestSubmitNil(t *testing.T) {
	t.Parallel()
	pool := newPool(t, argv.Fragment{}, 1)
	_, err := pool.Submit(nil).Wait(t.Context())
	require.ErrorIs(t, err, parallel.ErrNilJob)
}

func TestFutureWaitContext(t *testing.T) {
	t.Parallel()
	pool := newPool(t, argv.Fragment{}, 1)

	f := pool.Submit(sleepJob(200*time.Millisecond, 3))
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	t.Cleanup(cancel)
	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the job itself is not affected
	res, err := f.Wait(t.Context())
	require.NoError(t, err)
	require.Equal(t, 3, res.Code)
	require.NotEmpty(t, f.ID())
}
