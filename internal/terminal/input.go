package terminal

import (
	"io"

	"vire/internal/event"
	"vire/internal/logging"
)

// Sink receives keystroke events.
type Sink interface {
	Put(event.Event) bool
}

// ReadKeys forwards every byte read from r to sink as a key event until r
// reaches end of input, fails, or sink stops accepting events. It is meant
// to run on its own goroutine and returns the number of keys forwarded.
func ReadKeys(r io.Reader, sink Sink, logger *logging.Logger) int {
	if logger == nil {
		logger = logging.Discard()
	}
	forwarded := 0
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, key := range buf[:n] {
			if !sink.Put(event.NewKeyEvent(key)) {
				return forwarded
			}
			forwarded++
		}
		if err != nil {
			if err != io.EOF {
				logger.Debug("terminal input stopped", map[string]string{"error": err.Error()})
			} else {
				logger.Debug("terminal input closed", nil)
			}
			return forwarded
		}
	}
}
