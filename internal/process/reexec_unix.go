//go:build !windows

package process

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

func reexec(path string, argv []string, env []string, restore func() error) error {
	if restore != nil {
		if err := restore(); err != nil {
			return fmt.Errorf("%w: restore terminal: %v", ErrReexec, err)
		}
	}
	closeExtraFiles()
	if err := unix.Exec(path, argv, env); err != nil {
		return fmt.Errorf("%w: exec %s: %v", ErrReexec, path, err)
	}
	return nil
}

// closeExtraFiles marks every descriptor above stderr close-on-exec so the
// new image starts with only the standard three.
func closeExtraFiles() {
	for _, dir := range []string{"/proc/self/fd", "/dev/fd"} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			fd, err := strconv.Atoi(entry.Name())
			if err != nil || fd <= 2 {
				continue
			}
			unix.CloseOnExec(fd)
		}
		return
	}
}
