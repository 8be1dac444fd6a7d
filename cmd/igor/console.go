package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"strings"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/kballard/go-shellquote"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/igorfuzz/console/internal/argv"
	"github.com/igorfuzz/console/internal/bom"
	"github.com/igorfuzz/console/internal/log"
	"github.com/igorfuzz/console/internal/model"
	"github.com/igorfuzz/console/internal/parallel"
	"github.com/igorfuzz/console/internal/runner"
	"github.com/igorfuzz/console/internal/text"
	"github.com/igorfuzz/console/internal/walk"
)

type input struct {
	walk.Entry
	Tag string
}

// Console runs the configured target once per input file.
type Console struct {
	cfg    model.Config
	root   string
	logger *slog.Logger
	common argv.Fragment
	vec    argv.Vector // common alone, used in stdin mode
	inputs []input
}

func NewConsole(ctx context.Context, cfg model.Config, root string, logger *slog.Logger) (*Console, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	common := argv.FromMap(cfg.Common)
	vec, err := argv.Build(common, argv.Fragment{})
	if err != nil {
		return nil, fmt.Errorf("common arguments: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("common arguments: %w: no executable", argv.ErrMalformedArguments)
	}

	inputs, err := discover(ctx, cfg.Inputs, root, logger)
	if err != nil {
		return nil, err
	}

	return &Console{
		cfg:    cfg,
		root:   root,
		logger: logger,
		common: common,
		vec:    vec,
		inputs: inputs,
	}, nil
}

func discover(ctx context.Context, cfg model.Inputs, root string, logger *slog.Logger) ([]input, error) {
	var filter *regexp.Regexp
	if cfg.Filter != "" {
		filter = regexp.MustCompile(cfg.Filter) // validated by model
	}

	entries, err := walk.Files(ctx, walk.Resolve(root, cfg.Dir), filter)
	if err != nil {
		return nil, fmt.Errorf("discovering inputs: %w", err)
	}
	paths := walk.Paths(entries)

	tags := make([]string, len(paths))
	if cfg.Tag != "" {
		re := regexp.MustCompile(cfg.Tag)
		tags, err = walk.Tags(paths, re, func(path string, n int) {
			logger.WarnContext(ctx, "multiple tag matches, using the first", "path", path, "matches", n)
		})
		if err != nil {
			return nil, fmt.Errorf("tagging inputs: %w", err)
		}
	}

	inputs := make([]input, len(entries))
	for i, e := range entries {
		inputs[i] = input{Entry: e, Tag: tags[i]}
	}
	logger.DebugContext(ctx, "inputs discovered", "count", len(inputs), "dirs", len(walk.Hierarchy(paths)))
	return inputs, nil
}

// Do runs every input through a pool of cfg.Workers and writes the summary
// to out unless cfg.Output names a file. Job failures end up in the summary,
// only setup and output failures are returned.
func (c *Console) Do(ctx context.Context, out io.Writer) error {
	registry := prometheus.NewRegistry()
	pool, err := parallel.New(c.common, c.cfg.Workers,
		parallel.WithLogger(c.logger),
		parallel.WithMetrics(parallel.NewMetrics("igor", registry)),
	)
	if err != nil {
		return fmt.Errorf("creating pool: %w", err)
	}
	defer pool.Shutdown(true)

	summary := Summary{
		Workers: c.cfg.Workers,
		Timeout: c.cfg.Timeout.String(),
		Started: time.Now().UTC(),
		Jobs:    []JobSummary{},
	}
	m := parallel.NewMap(ctx, pool, c.jobFunc(pool))
	for outcome, err := range m.Iter(seq(c.inputs)) {
		summary.add(c.record(ctx, outcome, err))
	}
	summary.Stopped = time.Now().UTC()
	slices.SortFunc(summary.Jobs, func(a, b JobSummary) int {
		return strings.Compare(a.Input, b.Input)
	})

	c.logger.InfoContext(ctx, "run finished",
		"submitted", summary.Submitted,
		"rejected", summary.Rejected,
		"exited", summary.Exited,
		"nonzero", summary.Nonzero,
		"timeouts", summary.Timeouts,
		"errors", summary.Errors,
	)
	if err := ctx.Err(); err != nil {
		return err
	}

	var errs []error
	if err := c.writeSummary(summary, out); err != nil {
		errs = append(errs, err)
	}
	if c.cfg.BOM != "" {
		if err := c.writeBOM(summary); err != nil {
			errs = append(errs, err)
		}
	}
	if c.cfg.Metrics != "" {
		path := walk.Resolve(c.root, c.cfg.Metrics)
		if err := prometheus.WriteToTextfile(path, registry); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Console) jobFunc(pool *parallel.Pool) func(input) (runner.Job, error) {
	opts := runner.Options{
		Capture: c.cfg.Capture,
		Timeout: c.cfg.Timeout,
	}
	if !c.cfg.Stdin {
		return func(in input) (runner.Job, error) {
			var override argv.Fragment
			override.Set(c.cfg.Inputs.Key, shellquote.Join(in.Path()))
			return pool.Job(override, opts)
		}
	}

	return func(in input) (runner.Job, error) {
		return func(ctx context.Context) (runner.Result, error) {
			r, err := in.Open()
			if err != nil {
				return runner.Result{}, fmt.Errorf("opening input: %w", err)
			}
			defer func() {
				_ = r.Close()
			}()
			opts := opts
			opts.Stdin = r
			job, err := runner.New(c.vec, opts)
			if err != nil {
				return runner.Result{}, err
			}
			return job(ctx)
		}, nil
	}
}

func (c *Console) record(ctx context.Context, o parallel.Outcome[input], err error) JobSummary {
	res := o.Result
	js := JobSummary{
		Input: o.Input.Path(),
		Tag:   o.Input.Tag,
		Code:  res.Code,
	}
	if !res.Started.IsZero() && !res.Stopped.IsZero() {
		js.Duration = res.Stopped.Sub(res.Started).String()
	}
	if res.Captured {
		js.Stdout = res.Stdout
		js.Stderr = res.Stderr
	}

	ctx = log.ContextAttrs(ctx, slog.String("input", js.Input))
	switch {
	case errors.Is(err, argv.ErrMalformedArguments):
		js.Error = err.Error()
		js.Rejected = true
		c.logger.ErrorContext(ctx, "job rejected", "error", err)
	case err != nil:
		js.Error = err.Error()
		var pce *runner.ProcessCreationError
		if errors.As(err, &pce) {
			c.logger.ErrorContext(ctx, "process creation failed", "path", pce.Path, "error", pce.Err)
		} else {
			c.logger.ErrorContext(ctx, "job failed", "error", err)
		}
	case res.TimedOut():
		js.TimedOut = true
		c.logger.WarnContext(ctx, "job timed out", "timeout", c.cfg.Timeout)
	case res.Code != 0:
		c.logger.WarnContext(ctx, "job exited with nonzero code", "code", res.Code)
	default:
		c.logger.DebugContext(ctx, "job exited", "pid", res.Pid)
	}
	return js
}

func (c *Console) writeSummary(summary Summary, out io.Writer) error {
	s, err := text.Pretty(summary)
	if err != nil {
		return fmt.Errorf("formatting summary: %w", err)
	}
	if c.cfg.Output != "" {
		path := walk.Resolve(c.root, c.cfg.Output)
		if err := os.WriteFile(path, []byte(s+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
		return nil
	}
	_, err = fmt.Fprintln(out, s)
	return err
}

func (c *Console) writeBOM(summary Summary) error {
	b := bom.NewBuilder().
		AppendProperty("workers", summary.Workers).
		AppendProperty("timeout", summary.Timeout).
		AppendProperty("submitted", summary.Submitted).
		AppendProperty("rejected", summary.Rejected).
		AppendProperty("exited", summary.Exited).
		AppendProperty("nonzero", summary.Nonzero).
		AppendProperty("timeouts", summary.Timeouts).
		AppendProperty("errors", summary.Errors)

	if compo, err := target(c.vec[0]); err != nil {
		c.logger.Warn("target not described in BOM", "target", c.vec[0], "error", err)
	} else {
		b.AppendComponents(compo)
	}

	path := walk.Resolve(c.root, c.cfg.BOM)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating BOM: %w", err)
	}
	if err := b.AsJSON(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("formatting BOM as JSON: %w", err)
	}
	return f.Close()
}

func target(name string) (cdx.Component, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return cdx.Component{}, err
	}
	return bom.Executable(path)
}

func seq(inputs []input) iter.Seq2[input, error] {
	return func(yield func(input, error) bool) {
		for _, in := range inputs {
			if !yield(in, nil) {
				return
			}
		}
	}
}

// Summary is the JSON report of a run.
type Summary struct {
	Workers   int          `json:"workers"`
	Timeout   string       `json:"timeout"`
	Started   time.Time    `json:"started"`
	Stopped   time.Time    `json:"stopped"`
	Submitted int          `json:"submitted"` // jobs handed to the pool
	Rejected  int          `json:"rejected"`  // inputs without a valid command line
	Exited    int          `json:"exited"`
	Nonzero   int          `json:"nonzero"`
	Timeouts  int          `json:"timeouts"`
	Errors    int          `json:"errors"`
	Jobs      []JobSummary `json:"jobs"`
}

// JobSummary describes one input. Captured output is kept byte for byte and
// therefore base64 encoded in JSON.
type JobSummary struct {
	Input    string `json:"input"`
	Tag      string `json:"tag,omitempty"`
	Code     int    `json:"code"`
	TimedOut bool   `json:"timedOut,omitempty"`
	Rejected bool   `json:"rejected,omitempty"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
	Stdout   []byte `json:"stdout,omitempty"`
	Stderr   []byte `json:"stderr,omitempty"`
}

func (s *Summary) add(js JobSummary) {
	s.Jobs = append(s.Jobs, js)
	if js.Rejected {
		s.Rejected++
		return
	}
	s.Submitted++
	switch {
	case js.Error != "":
		s.Errors++
	case js.TimedOut:
		s.Timeouts++
	case js.Code != 0:
		s.Nonzero++
	default:
		s.Exited++
	}
}
