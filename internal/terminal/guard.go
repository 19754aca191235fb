package terminal

import (
	"os"
	"sync"

	"golang.org/x/term"
)

// Guard holds the terminal in character-at-a-time, non-echoing mode until
// Restore is called. A guard over a non-terminal does nothing.
type Guard struct {
	fd    int
	state *term.State
	once  sync.Once
	err   error
}

// Acquire switches file into cbreak mode: input is delivered per byte
// without echo while signal keys such as Ctrl-C still raise signals.
func Acquire(file *os.File) (*Guard, error) {
	if file == nil {
		return &Guard{fd: -1}, nil
	}
	fd := int(file.Fd())
	if !term.IsTerminal(fd) {
		return &Guard{fd: -1}, nil
	}
	state, err := term.GetState(fd)
	if err != nil {
		return nil, err
	}
	if err := enterCbreak(fd); err != nil {
		_ = term.Restore(fd, state)
		return nil, err
	}
	return &Guard{fd: fd, state: state}, nil
}

// Active reports whether the guard changed a terminal's mode.
func (guard *Guard) Active() bool {
	return guard != nil && guard.state != nil
}

// Restore puts the terminal back into the mode it had before Acquire. Only
// the first call does any work.
func (guard *Guard) Restore() error {
	if !guard.Active() {
		return nil
	}
	guard.once.Do(func() {
		guard.err = term.Restore(guard.fd, guard.state)
	})
	return guard.err
}
