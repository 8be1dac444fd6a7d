package parallel

import (
	"context"

	"github.com/igorfuzz/console/internal/runner"
)

// Future is a handle to the result of a submitted job.
type Future struct {
	id   string
	job  runner.Job
	done chan struct{}
	res  runner.Result
	err  error
}

func newFuture(id string, job runner.Job) *Future {
	return &Future{
		id:   id,
		job:  job,
		done: make(chan struct{}),
	}
}

func (f *Future) ID() string {
	return f.id
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job has finished or ctx is done. A context error
// only abandons the wait, the job keeps running.
func (f *Future) Wait(ctx context.Context) (runner.Result, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return runner.Result{}, ctx.Err()
	}
}

func (f *Future) resolve(res runner.Result, err error) {
	f.res = res
	f.err = err
	f.job = nil
	close(f.done)
}
