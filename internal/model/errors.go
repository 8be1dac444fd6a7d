package model

import (
	"errors"
	"log/slog"
)

var ErrInvalidConfig = errors.New("invalid config")

// ConfigError points at the offending configuration field.
type ConfigError struct {
	Path    string // inputs.filter
	Message string // human text
}

func (e *ConfigError) Error() string {
	return e.Path + ": " + e.Message
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *ConfigError) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("path", e.Path),
		slog.String("message", e.Message),
	)
}

// ConfigErrDetails unpacks every ConfigError joined in err.
func ConfigErrDetails(err error) []*ConfigError {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*ConfigError
		for _, e := range joined.Unwrap() {
			out = append(out, ConfigErrDetails(e)...)
		}
		return out
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return []*ConfigError{ce}
	}
	return nil
}
