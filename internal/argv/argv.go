// Package argv assembles process argument vectors from priority-keyed
// fragments.
//
// A Fragment maps an integer priority to a token. Tokens may carry several
// shell words ("-l -h") or quoted words ("'a b'"). Two fragments, a common
// one and a per-job override, are merged so that the override wins at equal
// keys, ordered by ascending key, joined by single spaces and split again
// with POSIX shell rules. The result is the Vector passed to process
// creation.
//
//	common := argv.FromMap(map[int]string{-1: "/bin/ls", 0: "-l", 100: "/tmp"})
//	job := argv.FromMap(map[int]string{0: "-la", 20: "-h"})
//	v, err := argv.Build(common, job) // ["/bin/ls" "-la" "-h" "/tmp"]
package argv

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kballard/go-shellquote"
)

// ErrMalformedArguments is returned when a merged command line can't be
// split into words, for example because of unbalanced quotes.
var ErrMalformedArguments = errors.New("malformed arguments")

// Fragment is an ordered builder of command line tokens keyed by priority.
// The zero value is an empty fragment ready to use. Keys carry no meaning
// beyond their relative order, gaps and negative values are fine.
type Fragment struct {
	tokens map[int]string
}

// FromMap returns a fragment holding a copy of m.
func FromMap(m map[int]string) Fragment {
	return Fragment{tokens: maps.Clone(m)}
}

// Set stores token at priority, replacing any previous token there.
func (f *Fragment) Set(priority int, token string) *Fragment {
	if f.tokens == nil {
		f.tokens = make(map[int]string)
	}
	f.tokens[priority] = token
	return f
}

// Get returns the token stored at priority.
func (f Fragment) Get(priority int) (string, bool) {
	t, ok := f.tokens[priority]
	return t, ok
}

func (f Fragment) Len() int {
	return len(f.tokens)
}

// Keys returns priorities in ascending order.
func (f Fragment) Keys() []int {
	return slices.Sorted(maps.Keys(f.tokens))
}

// Clone returns an independent copy of the fragment.
func (f Fragment) Clone() Fragment {
	return FromMap(f.tokens)
}

// Map returns a copy of the underlying priority to token mapping.
func (f Fragment) Map() map[int]string {
	return maps.Clone(f.tokens)
}

// Vector is the final ordered argument list handed to process creation.
// Element 0 is conventionally the executable.
type Vector []string

// Merge overlays override on top of common and returns the tokens ordered by
// ascending priority. Neither input is modified.
func Merge(common, override Fragment) []string {
	merged := make(map[int]string, len(common.tokens)+len(override.tokens))
	maps.Copy(merged, common.tokens)
	maps.Copy(merged, override.tokens)

	keys := slices.Sorted(maps.Keys(merged))
	tokens := make([]string, 0, len(keys))
	for _, k := range keys {
		tokens = append(tokens, merged[k])
	}
	return tokens
}

// Linearize joins tokens with single spaces and splits the line into words
// honoring single quotes, double quotes and backslash escapes.
func Linearize(tokens []string) (Vector, error) {
	line := strings.Join(tokens, " ")
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMalformedArguments, line, err)
	}
	return Vector(words), nil
}

// Build merges both fragments and linearizes the result.
func Build(common, override Fragment) (Vector, error) {
	return Linearize(Merge(common, override))
}
