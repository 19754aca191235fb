package event

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind tags the payload carried by an Event.
type Kind int

const (
	// KindKey carries a single keystroke from the terminal.
	KindKey Kind = iota
	// KindChange carries the ordinary paths changed in one watcher wake-up.
	KindChange
	// KindAutoReload is queued when the automatic full reload policy fires.
	KindAutoReload
	// KindInterrupt is queued when the supervisor receives SIGINT, SIGTERM or SIGHUP.
	KindInterrupt
)

func (kind Kind) String() string {
	switch kind {
	case KindKey:
		return "key"
	case KindChange:
		return "change"
	case KindAutoReload:
		return "auto_reload"
	case KindInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// Event is the single value type flowing through the supervisor queue.
type Event struct {
	Kind       Kind
	Key        byte
	Paths      []string
	Signal     string
	OccurredAt time.Time
}

func NewKeyEvent(key byte) Event {
	return Event{
		Kind:       KindKey,
		Key:        key,
		OccurredAt: time.Now().UTC(),
	}
}

// NewChangeEvent copies and sorts paths so one wake-up yields one stable event.
func NewChangeEvent(paths []string) Event {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	return Event{
		Kind:       KindChange,
		Paths:      sorted,
		OccurredAt: time.Now().UTC(),
	}
}

func NewAutoReloadEvent() Event {
	return Event{
		Kind:       KindAutoReload,
		OccurredAt: time.Now().UTC(),
	}
}

func NewInterruptEvent(signal string) Event {
	return Event{
		Kind:       KindInterrupt,
		Signal:     signal,
		OccurredAt: time.Now().UTC(),
	}
}

// Fields renders the event for structured logging.
func (e Event) Fields() map[string]string {
	fields := map[string]string{
		"event": e.Kind.String(),
	}
	switch e.Kind {
	case KindKey:
		fields["key"] = strconv.QuoteRune(rune(e.Key))
	case KindChange:
		fields["paths"] = strings.Join(e.Paths, ",")
		fields["count"] = strconv.Itoa(len(e.Paths))
	case KindInterrupt:
		if e.Signal != "" {
			fields["signal"] = e.Signal
		}
	}
	return fields
}
