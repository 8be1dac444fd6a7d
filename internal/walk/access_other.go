//go:build !unix

package walk

import (
	"os"
	"path/filepath"
)

// Without access(2) the owner permission bits are the best approximation.

func Executable(path string) bool {
	return hasMode(path, false, 0o500)
}

func Readable(path string) bool {
	return hasMode(path, false, 0o400)
}

func Writable(path string) bool {
	if hasMode(path, false, 0) {
		return hasMode(path, false, 0o200)
	}
	return hasMode(filepath.Dir(path), true, 0o700)
}

func DirAccess(path string) bool {
	return hasMode(path, true, 0o700)
}

func hasMode(path string, dir bool, perm os.FileMode) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if dir != info.IsDir() || (!dir && !info.Mode().IsRegular()) {
		return false
	}
	return info.Mode().Perm()&perm == perm
}
