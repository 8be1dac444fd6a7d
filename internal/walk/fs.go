package walk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

var (
	ErrNotDir  = errors.New("not a directory")
	ErrNoFiles = errors.New("no files found")
	ErrNoMatch = errors.New("no match")
)

// Entry is a regular file found by a walk.
type Entry interface {
	Path() string
	Open() (io.ReadCloser, error)
	Stat() (fs.FileInfo, error)
}

// Resolve returns path unchanged when absolute, otherwise joined to root.
func Resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// FS recursively walks the filesystem rooted at root and return a handle for every regular file found.
// Or an error if file information retrieval fails.
// Each Entry's Path() is prefixed with name of a filesystem. Symlinks are
// followed, a link to a directory is entered unless it points back to one of
// its own ancestors.
func FS(ctx context.Context, root fs.FS, name string) iter.Seq2[Entry, error] {
	if root == nil {
		panic("root is nil")
	}

	return func(yield func(Entry, error) bool) {
		dirs := make(map[string]fs.FileInfo)
		stopped := false

		var fn fs.WalkDirFunc
		fn = func(p string, d fs.DirEntry, err error) error {
			if stopped || ctx.Err() != nil {
				stopped = true
				return fs.SkipAll
			}
			var entry = fsEntry{
				root:    root,
				abspath: filepath.Join(name, filepath.FromSlash(p)),
				path:    p,
			}
			var info fs.FileInfo
			if err == nil {
				if d.Type()&fs.ModeSymlink != 0 {
					info, err = fs.Stat(root, p)
				} else {
					info, err = d.Info()
				}
			}
			if err != nil {
				entry.infoErr = err
				if !yield(entry, err) {
					stopped = true
					return fs.SkipAll
				}
				return nil
			}

			switch {
			case info.IsDir() && d.Type()&fs.ModeSymlink == 0:
				dirs[p] = info
			case info.IsDir():
				if cyclic(dirs, p, info) {
					return nil
				}
				// WalkDir swallows SkipAll, stopped carries it out
				_ = fs.WalkDir(root, p, fn)
			case info.Mode().IsRegular():
				entry.info = info
				if !yield(entry, nil) {
					stopped = true
					return fs.SkipAll
				}
			}
			return nil
		}
		_ = fs.WalkDir(root, ".", fn)
	}
}

// cyclic reports whether target is the same directory as an ancestor of p.
func cyclic(dirs map[string]fs.FileInfo, p string, target fs.FileInfo) bool {
	for dir := path.Dir(p); ; dir = path.Dir(dir) {
		if info, ok := dirs[dir]; ok && os.SameFile(info, target) {
			return true
		}
		if dir == "." || dir == "/" {
			return false
		}
	}
}

// Files returns all regular files below dir sorted by path. When filter is
// not nil only paths containing a match are kept. Unreadable entries are
// skipped. An empty result is ErrNoFiles.
func Files(ctx context.Context, dir string, filter *regexp.Regexp) ([]Entry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotDir, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDir, dir)
	}

	var entries []Entry
	for entry, err := range FS(ctx, os.DirFS(dir), dir) {
		if err != nil {
			continue
		}
		if filter != nil && !filter.MatchString(entry.Path()) {
			continue
		}
		entries = append(entries, entry)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFiles, dir)
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Path(), b.Path())
	})
	return entries, nil
}

// Paths returns the path of every entry.
func Paths(entries []Entry) []string {
	ret := make([]string, len(entries))
	for i, e := range entries {
		ret[i] = e.Path()
	}
	return ret
}

// Tags returns the first match of re in every path. A path without a match
// is ErrNoMatch. onMultiple, when set, is called for paths with more than
// one match.
func Tags(paths []string, re *regexp.Regexp, onMultiple func(path string, matches int)) ([]string, error) {
	tags := make([]string, 0, len(paths))
	for _, p := range paths {
		matches := re.FindAllStringSubmatch(p, -1)
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoMatch, p)
		}
		if len(matches) > 1 && onMultiple != nil {
			onMultiple(p, len(matches))
		}
		tags = append(tags, tag(matches[0]))
	}
	return tags, nil
}

// tag is the first capture group, or the whole match without groups.
func tag(match []string) string {
	if len(match) > 1 {
		return match[1]
	}
	return match[0]
}

// Hierarchy counts files per parent directory.
func Hierarchy(paths []string) map[string]int {
	ret := make(map[string]int)
	for _, p := range paths {
		ret[filepath.Dir(p)]++
	}
	return ret
}

// fsEntry implements Entry for a filesystem
// it uses root.Open to open the file, so links resolve the same way the walk did
type fsEntry struct {
	root    fs.FS
	abspath string
	path    string
	info    fs.FileInfo
	infoErr error
}

// returns the absolute path to the file
func (e fsEntry) Path() string {
	return e.abspath
}

func (e fsEntry) Open() (io.ReadCloser, error) {
	if e.infoErr != nil {
		return nil, e.infoErr
	}
	return e.root.Open(e.path)
}

func (e fsEntry) Stat() (fs.FileInfo, error) {
	return e.info, e.infoErr
}
