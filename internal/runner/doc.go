// Package runner turns a command vector into a deferred process execution.
//
// A Job wraps os/exec:
//   - starts the process only when invoked
//   - attaches an optional stdin reader owned by the caller
//   - optionally captures stdout and stderr into per-call buffers
//   - enforces a wall-clock timeout measured from the start of the call
//
// A caller can tell three outcomes apart:
//
//	err != nil                -> never ran (*ProcessCreationError) or bad vector
//	res.Code == TimeoutCode   -> killed after the timeout, output kept so far
//	otherwise                 -> the real exit code
//
// On unix the child runs in its own process group and the timeout kills the
// group with SIGKILL. Wait always reaps the child, no zombie is left behind.
package runner
