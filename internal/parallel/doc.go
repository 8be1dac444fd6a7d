// Package parallel executes runner jobs on a fixed-size worker pool.
//
// Overview
// A Pool owns n worker goroutines and the common argv.Fragment shared by
// every job it builds. Callers obtain jobs through Pool.Job, which overlays
// per-job arguments on the common fragment, and hand them to Submit. Submit
// only enqueues, the returned Future resolves once a worker has run the job.
//
// Data flow:
//
//	caller               Pool{common, n}             worker[i]
//	  |                      |                          |
//	  | Job(override) ------>| argv.Build + runner.New  |
//	  |<------ runner.Job ---|                          |
//	  | Submit(job) -------->| queue (FIFO) ----------->| job(ctx)
//	  |<------ *Future ------|                          | exec + wait/kill
//	  | Wait() <--------------------- Result -----------|
//
// Invariants:
//   - At most n jobs run at the same time.
//   - Jobs are assigned in submission order, completion order is unconstrained.
//   - A failing, timed out or panicking job resolves only its own Future.
//   - Every submitted job resolves exactly once, either with its result or
//     with ErrClosed when it was dropped by Shutdown(false).
//
// Map adapts a Pool to iterators: inputs in, outcomes out as they complete.
package parallel
