package terminal

import (
	"io"
	"os"
)

const (
	clearScreen     = "\x1b[2J"
	clearScrollback = "\x1b[3J"
	cursorHome      = "\x1b[H"
)

// ClearSequence returns the escape sequence for a clear intensity: nothing
// for 0, screen for 1, screen and scrollback for 2 and above.
func ClearSequence(intensity int) string {
	switch {
	case intensity <= 0:
		return ""
	case intensity == 1:
		return clearScreen + cursorHome
	default:
		return clearScreen + clearScrollback + cursorHome
	}
}

// Clear writes the sequence for intensity to w and flushes it when w is a
// file.
func Clear(w io.Writer, intensity int) error {
	sequence := ClearSequence(intensity)
	if sequence == "" || w == nil {
		return nil
	}
	if _, err := io.WriteString(w, sequence); err != nil {
		return err
	}
	if file, ok := w.(*os.File); ok {
		_ = file.Sync()
	}
	return nil
}
