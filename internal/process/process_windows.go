//go:build windows

package process

import (
	"context"
	"os"
	"os/exec"
	"time"
)

func GroupID(pid int) int {
	return 0
}

func setProcAttr(*exec.Cmd) {}

func stopProcess(ctx context.Context, pid, pgid int, timeout time.Duration, wait func(context.Context) error) error {
	if pid <= 0 {
		return nil
	}
	_ = pgid
	process, err := os.FindProcess(pid)
	if err != nil {
		return ErrProcessNotFound
	}
	_ = process.Kill()
	if wait == nil {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return wait(ctx)
}

func reexec(path string, argv []string, env []string, restore func() error) error {
	if restore != nil {
		_ = restore()
	}
	return ErrReexec
}
