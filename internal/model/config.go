package model

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	LogDebug = "debug"
	LogInfo  = "info"
	LogWarn  = "warn"
	LogError = "error"
)

// Config is the on-disk configuration of a run.
//
//	version: 0
//	workers: 4
//	timeout: 10s
//	capture: true
//	common:
//	  -1: /opt/target/bin/parse
//	  0: -q
//	inputs:
//	  dir: ./corpus
//	  filter: \.bin$
//	  key: 100
type Config struct {
	Version int            `yaml:"version"` // fixed 0 for now
	Workers int            `yaml:"workers"`
	Timeout time.Duration  `yaml:"timeout,omitempty"` // 0 => no timeout
	Capture bool           `yaml:"capture"`
	Stdin   bool           `yaml:"stdin"` // feed inputs on stdin instead of argv
	Common  map[int]string `yaml:"common"`
	Inputs  Inputs         `yaml:"inputs"`
	Log     Log            `yaml:"log"`
	Output  string         `yaml:"output,omitempty"`  // summary file, empty => stdout
	BOM     string         `yaml:"bom,omitempty"`     // CycloneDX inventory file
	Metrics string         `yaml:"metrics,omitempty"` // prometheus textfile
}

// Inputs describes where the per-job inputs come from.
type Inputs struct {
	Dir    string `yaml:"dir"`
	Filter string `yaml:"filter,omitempty"` // keep only paths matching
	Tag    string `yaml:"tag,omitempty"`    // first match becomes the input tag
	Key    int    `yaml:"key"`              // priority of the input path in argv
}

type Log struct {
	Level   string `yaml:"level,omitempty"`
	Dir     string `yaml:"dir,omitempty"` // optional file sink
	Verbose bool   `yaml:"verbose,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: 0,
		Workers: 2,
		Timeout: 0,
		Common:  map[int]string{},
		Inputs: Inputs{
			Dir: ".",
			Key: 1000,
		},
		Log: Log{
			Level: LogInfo,
		},
	}
}

// LoadConfig decodes YAML from r on top of DefaultConfig and validates it.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Version != 0 {
		errs = append(errs, fieldErr("version", "%d is not supported, expected 0", c.Version))
	}
	if c.Workers < 1 {
		errs = append(errs, fieldErr("workers", "must be at least 1, got %d", c.Workers))
	}
	if c.Timeout < 0 {
		errs = append(errs, fieldErr("timeout", "must not be negative, got %s", c.Timeout))
	}
	if len(c.Common) == 0 {
		errs = append(errs, fieldErr("common", "at least the executable is required"))
	}
	if c.Inputs.Dir == "" {
		errs = append(errs, fieldErr("inputs.dir", "is required"))
	}
	if _, err := regexp.Compile(c.Inputs.Filter); err != nil {
		errs = append(errs, fieldErr("inputs.filter", "bad regex %q: %v", c.Inputs.Filter, err))
	}
	if _, err := regexp.Compile(c.Inputs.Tag); err != nil {
		errs = append(errs, fieldErr("inputs.tag", "bad regex %q: %v", c.Inputs.Tag, err))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", LogDebug, LogInfo, LogWarn, LogError:
	default:
		errs = append(errs, fieldErr("log.level", "unknown level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

func fieldErr(path, format string, args ...any) error {
	return &ConfigError{Path: path, Message: fmt.Sprintf(format, args...)}
}
