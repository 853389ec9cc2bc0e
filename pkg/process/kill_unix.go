//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Kill()
	if err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}

func killByPid(pid Pid) error {
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return err
	}
	err = proc.Signal(syscall.SIGKILL)
	if err != nil && err != os.ErrProcessDone && err != syscall.ESRCH {
		return err
	}
	return nil
}
