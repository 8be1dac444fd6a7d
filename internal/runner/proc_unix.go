//go:build unix

package runner

import (
	"errors"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// setKill places the child in its own process group and makes the context
// cancellation SIGKILL the whole group, so helpers spawned by the child do
// not outlive it.
func setKill(cmd *exec.Cmd, killed *atomic.Bool) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		if err != nil {
			return err
		}
		killed.Store(true)
		return nil
	}
}
