package process

import (
	"fmt"
	"os"
)

// Reexec replaces the current process image with a fresh invocation of the
// same executable, arguments and environment. restore runs first so the
// terminal is back in its original mode. Reexec only returns on failure, and
// the error always wraps ErrReexec.
func Reexec(restore func() error) error {
	path, err := os.Executable()
	if err != nil {
		if restore != nil {
			_ = restore()
		}
		return fmt.Errorf("%w: locate executable: %v", ErrReexec, err)
	}
	return reexec(path, os.Args, os.Environ(), restore)
}
