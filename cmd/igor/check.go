package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"

	"github.com/igorfuzz/console/internal/argv"
	"github.com/igorfuzz/console/internal/model"
	"github.com/igorfuzz/console/internal/text"
	"github.com/igorfuzz/console/internal/walk"
)

var errCheckFailed = errors.New("check failed")

// Probe is the result of a single check.
type Probe struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Report is what igor check prints.
type Report struct {
	Probes    []Probe        `json:"probes"`
	Hierarchy map[string]int `json:"hierarchy,omitempty"`
}

func (r *Report) probe(name, path string, ok bool, format string, args ...any) {
	p := Probe{Name: name, Path: path, OK: ok}
	if !ok {
		p.Message = fmt.Sprintf(format, args...)
	}
	r.Probes = append(r.Probes, p)
}

func (r Report) failed() int {
	n := 0
	for _, p := range r.Probes {
		if !p.OK {
			n++
		}
	}
	return n
}

// Check verifies that a run with cfg can start: the target can be executed,
// the inputs are readable and the outputs writable. The report is printed
// to out even when some probes fail.
func Check(ctx context.Context, cfg model.Config, root string, out io.Writer) error {
	var r Report

	checkTarget(&r, cfg)
	checkInputs(ctx, &r, cfg, root)

	if cfg.Log.Dir != "" {
		dir := walk.Resolve(root, cfg.Log.Dir)
		r.probe("log", dir, walk.DirAccess(dir), "directory missing or not accessible")
	}
	for _, o := range []struct{ name, path string }{
		{"output", cfg.Output},
		{"bom", cfg.BOM},
		{"metrics", cfg.Metrics},
	} {
		if o.path == "" {
			continue
		}
		path := walk.Resolve(root, o.path)
		r.probe(o.name, path, walk.Writable(path), "not writable")
	}

	s, err := text.Pretty(r)
	if err != nil {
		return fmt.Errorf("formatting report: %w", err)
	}
	if _, err := fmt.Fprintln(out, s); err != nil {
		return err
	}
	if n := r.failed(); n > 0 {
		return fmt.Errorf("%w: %d of %d probes", errCheckFailed, n, len(r.Probes))
	}
	return nil
}

func checkTarget(r *Report, cfg model.Config) {
	vec, err := argv.Build(argv.FromMap(cfg.Common), argv.Fragment{})
	if err != nil {
		r.probe("target", "", false, "%v", err)
		return
	}
	if len(vec) == 0 {
		r.probe("target", "", false, "no executable in common")
		return
	}
	path, err := exec.LookPath(vec[0])
	if err != nil {
		r.probe("target", vec[0], false, "%v", err)
		return
	}
	r.probe("target", path, walk.Executable(path), "not executable")
}

func checkInputs(ctx context.Context, r *Report, cfg model.Config, root string) {
	dir := walk.Resolve(root, cfg.Inputs.Dir)
	var filter *regexp.Regexp
	if cfg.Inputs.Filter != "" {
		filter = regexp.MustCompile(cfg.Inputs.Filter)
	}
	entries, err := walk.Files(ctx, dir, filter)
	if err != nil {
		r.probe("inputs", dir, false, "%v", err)
		return
	}
	r.probe("inputs", dir, true, "")
	paths := walk.Paths(entries)
	r.Hierarchy = walk.Hierarchy(paths)

	var unreadable int
	for _, p := range paths {
		if !walk.Readable(p) {
			unreadable++
		}
	}
	r.probe("readable", dir, unreadable == 0, "%d of %d inputs are not readable", unreadable, len(paths))

	if cfg.Inputs.Tag != "" {
		_, err := walk.Tags(paths, regexp.MustCompile(cfg.Inputs.Tag), nil)
		r.probe("tags", dir, err == nil, "%v", err)
	}
}
