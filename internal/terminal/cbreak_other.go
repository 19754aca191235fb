//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package terminal

import "errors"

var errCbreakUnsupported = errors.New("cbreak mode is not supported on this platform")

func enterCbreak(int) error {
	return errCbreakUnsupported
}
