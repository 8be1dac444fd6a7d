//go:build !unix

package runner

import (
	"os/exec"
	"sync/atomic"
)

func setKill(cmd *exec.Cmd, killed *atomic.Bool) {
	cmd.Cancel = func() error {
		err := cmd.Process.Kill()
		if err == nil {
			killed.Store(true)
		}
		return err
	}
}
