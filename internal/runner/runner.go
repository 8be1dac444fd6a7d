package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/igorfuzz/console/internal/argv"
)

// TimeoutCode is the status reported for a job whose process was killed
// because its timeout elapsed or its context was cancelled. It is "TIME" in
// ASCII and lies outside the 0-255 range of real exit codes, as well as away
// from -1 which os.ProcessState reports for signalled processes.
const TimeoutCode = 0x54494D45

// waitDelay bounds how long Wait keeps draining pipes after the process
// has been killed, grandchildren may keep them open.
const waitDelay = 2 * time.Second

// ProcessCreationError reports that the operating system did not start the
// process. No status code exists for such a job.
type ProcessCreationError struct {
	Path string
	Err  error
}

func (e *ProcessCreationError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Path, e.Err)
}

func (e *ProcessCreationError) Unwrap() error {
	return e.Err
}

// Options tunes a single job execution.
type Options struct {
	// Stdin is attached as the child's standard input. Nil means the child
	// reads from the null device. The job never closes it.
	Stdin io.Reader
	// Capture collects stdout and stderr into the Result. Otherwise the
	// child writes to the parent's streams.
	Capture bool
	// Timeout kills the process when it runs longer. Zero disables it.
	Timeout time.Duration
}

// Result is the outcome of one job execution.
type Result struct {
	Args     []string
	Code     int
	Stdout   []byte
	Stderr   []byte
	Captured bool
	Pid      int
	Started  time.Time
	Stopped  time.Time
}

// TimedOut reports whether the process was killed by the job.
func (r Result) TimedOut() bool {
	return r.Code == TimeoutCode
}

// Job is a deferred single process execution. It starts the process only
// when called and must be called at most once. Cancelling ctx has the same
// effect as the timeout elapsing.
type Job func(ctx context.Context) (Result, error)

// New returns a Job running args with opts. The vector is copied, so the
// caller may reuse it.
func New(args argv.Vector, opts Options) (Job, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty command", argv.ErrMalformedArguments)
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("negative timeout %s", opts.Timeout)
	}
	args = append(argv.Vector(nil), args...)
	return func(ctx context.Context) (Result, error) {
		return run(ctx, args, opts)
	}, nil
}

func run(ctx context.Context, args argv.Vector, opts Options) (Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = opts.Stdin
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	if opts.Capture {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	var killed atomic.Bool
	setKill(cmd, &killed)

	result := Result{
		Args:     []string(args),
		Captured: opts.Capture,
	}

	result.Started = time.Now().UTC()
	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			result.Code = TimeoutCode
			result.Stopped = time.Now().UTC()
			return result, nil
		}
		return Result{}, &ProcessCreationError{Path: args[0], Err: err}
	}
	result.Pid = cmd.Process.Pid

	err := cmd.Wait()
	result.Stopped = time.Now().UTC()
	if opts.Capture {
		result.Stdout = stdout.Bytes()
		result.Stderr = stderr.Bytes()
	}

	if killed.Load() {
		result.Code = TimeoutCode
		return result, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Code = cmd.ProcessState.ExitCode()
	case errors.As(err, &exitErr):
		result.Code = exitErr.ExitCode()
	case cmd.ProcessState != nil && (errors.Is(err, exec.ErrWaitDelay) || ctx.Err() != nil):
		// the process itself has exited, only the I/O copy was cut short
		result.Code = cmd.ProcessState.ExitCode()
	default:
		return result, fmt.Errorf("waiting for %s: %w", args[0], err)
	}
	return result, nil
}
