//go:build unix

package walk

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Executable reports whether path is a regular file the process may read
// and execute.
func Executable(path string) bool {
	return isFile(path) && unix.Access(path, unix.R_OK|unix.X_OK) == nil
}

func Readable(path string) bool {
	return isFile(path) && unix.Access(path, unix.R_OK) == nil
}

// Writable reports whether path is a writable file, or, when it does not
// exist yet, whether its directory allows creating it.
func Writable(path string) bool {
	if isFile(path) {
		return unix.Access(path, unix.W_OK) == nil
	}
	return unix.Access(filepath.Dir(path), unix.R_OK|unix.W_OK|unix.X_OK) == nil
}

// DirAccess reports whether path is a directory with at least rwx access.
func DirAccess(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	return unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK) == nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
