package parallel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/igorfuzz/console/internal/argv"
	"github.com/igorfuzz/console/internal/runner"
)

var (
	ErrClosed  = errors.New("pool is shut down")
	ErrPanic   = errors.New("job panicked")
	ErrNilJob  = errors.New("nil job")
	ErrNoSlots = errors.New("pool needs at least one worker")
)

// Pool runs jobs on a fixed number of workers. Submitted jobs wait in an
// unbounded FIFO queue and are handed to the first free worker.
type Pool struct {
	common  argv.Fragment
	size    int
	metrics *Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	g      errgroup.Group

	mx     sync.Mutex
	cond   *sync.Cond
	queue  []*Future
	closed bool
}

type Option func(*Pool)

// WithMetrics records job counters and durations in m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// WithLogger makes the pool log job lifecycle at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// New starts size workers sharing the common fragment.
func New(common argv.Fragment, size int, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrNoSlots, size)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		common: common.Clone(),
		size:   size,
		logger: slog.New(slog.DiscardHandler),
		ctx:    ctx,
		cancel: cancel,
	}
	p.cond = sync.NewCond(&p.mx)
	for _, opt := range opts {
		opt(p)
	}
	for range size {
		p.g.Go(p.worker)
	}
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Common returns a copy of the fragment shared by all jobs of the pool.
func (p *Pool) Common() argv.Fragment {
	return p.common.Clone()
}

// Job builds a job from the common fragment overlaid with override.
// Malformed arguments are reported here, before anything is started.
func (p *Pool) Job(override argv.Fragment, opts runner.Options) (runner.Job, error) {
	args, err := argv.Build(p.common, override)
	if err != nil {
		return nil, err
	}
	return runner.New(args, opts)
}

// Submit queues job and returns immediately. The returned Future resolves
// once a worker has run the job, or with ErrClosed if the pool is shut down.
func (p *Pool) Submit(job runner.Job) *Future {
	f := newFuture(uuid.NewString(), job)
	if job == nil {
		f.resolve(runner.Result{}, ErrNilJob)
		return f
	}

	p.mx.Lock()
	if p.closed {
		p.mx.Unlock()
		f.resolve(runner.Result{}, ErrClosed)
		return f
	}
	p.queue = append(p.queue, f)
	p.mx.Unlock()
	p.cond.Signal()

	p.metrics.submitted()
	p.logger.Debug("job submitted", "job_id", f.id)
	return f
}

// Run submits job and waits for its result.
func (p *Pool) Run(ctx context.Context, job runner.Job) (runner.Result, error) {
	return p.Submit(job).Wait(ctx)
}

// Shutdown stops accepting jobs. With wait the queued and running jobs are
// completed and Shutdown returns after the last of them. Without wait the
// queued jobs fail with ErrClosed, running processes are killed and
// Shutdown returns immediately.
func (p *Pool) Shutdown(wait bool) {
	p.mx.Lock()
	p.closed = true
	var dropped []*Future
	if !wait {
		dropped = p.queue
		p.queue = nil
	}
	p.mx.Unlock()
	p.cond.Broadcast()

	for _, f := range dropped {
		f.resolve(runner.Result{}, ErrClosed)
	}

	if !wait {
		p.cancel()
		return
	}
	_ = p.g.Wait()
	p.cancel()
}

func (p *Pool) next() (*Future, bool) {
	p.mx.Lock()
	defer p.mx.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}
	f := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return f, true
}

func (p *Pool) worker() error {
	for {
		f, ok := p.next()
		if !ok {
			return nil
		}
		p.execute(f)
	}
}

func (p *Pool) execute(f *Future) {
	p.metrics.started()
	start := time.Now()
	res, err := p.call(f.job)
	p.metrics.finished(res, err, time.Since(start))

	p.logger.Debug("job finished",
		"job_id", f.id,
		"code", res.Code,
		"timed_out", err == nil && res.TimedOut(),
		"error", err,
	)
	f.resolve(res, err)
}

func (p *Pool) call(job runner.Job) (res runner.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return job(p.ctx)
}
