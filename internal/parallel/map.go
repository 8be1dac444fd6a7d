package parallel

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/igorfuzz/console/internal/runner"
)

// Outcome pairs a job result with the input the job was made for.
type Outcome[E any] struct {
	Input  E
	Result runner.Result
}

type result[E any] struct {
	o Outcome[E]
	e error
}

// Map turns every input into a job, runs the jobs on a Pool and yields the
// outcomes in completion order. Map is context aware, a canceled context or
// an early break kills the jobs still running.
//
//	for outcome, err := range parallel.NewMap(ctx, pool, jobFunc).Iter(inputs) {}
type Map[E any] struct {
	parentCtx    context.Context
	cancelParent context.CancelFunc
	g            *errgroup.Group
	gctx         context.Context
	pool         *Pool
	mapped       chan result[E]
	jobFunc      func(E) (runner.Job, error)
}

func NewMap[E any](parentCtx context.Context, pool *Pool, jobFunc func(E) (runner.Job, error)) *Map[E] {
	parentCtx, cancelParent := context.WithCancel(parentCtx)
	g, gctx := errgroup.WithContext(parentCtx)

	return &Map[E]{
		parentCtx:    parentCtx,
		cancelParent: cancelParent,
		g:            g,
		gctx:         gctx,
		pool:         pool,
		mapped:       make(chan result[E], pool.Size()),
		jobFunc:      jobFunc,
	}
}

func (s *Map[E]) send(r result[E]) {
	select {
	case <-s.gctx.Done():
	case s.mapped <- r:
	}
}

// bind ties the job to the iteration so abandoning it kills the process.
func (s *Map[E]) bind(job runner.Job) runner.Job {
	return func(ctx context.Context) (runner.Result, error) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(s.gctx, cancel)
		defer stop()
		return job(ctx)
	}
}

func (s *Map[E]) goSubmit(seq iter.Seq2[E, error]) {
	s.g.Go(func() error {
		for entry, nerr := range seq {
			if s.gctx.Err() != nil {
				return nil
			}
			if nerr != nil {
				s.send(result[E]{o: Outcome[E]{Input: entry}, e: nerr})
				continue
			}
			job, err := s.jobFunc(entry)
			if err != nil {
				s.send(result[E]{o: Outcome[E]{Input: entry}, e: err})
				continue
			}
			future := s.pool.Submit(s.bind(job))
			s.g.Go(func() error {
				res, err := future.Wait(s.gctx)
				if s.gctx.Err() != nil {
					return nil
				}
				s.send(result[E]{o: Outcome[E]{Input: entry, Result: res}, e: err})
				return nil
			})
		}
		return nil
	})
}

func (s *Map[E]) Iter(seq iter.Seq2[E, error]) iter.Seq2[Outcome[E], error] {
	return func(yield func(Outcome[E], error) bool) {
		defer s.cancelParent()
		s.goSubmit(seq)

		go func() {
			_ = s.g.Wait()
			close(s.mapped)
		}()

		for r := range s.mapped {
			if s.parentCtx.Err() != nil {
				return
			}
			if !yield(r.o, r.e) {
				return
			}
		}
	}
}
