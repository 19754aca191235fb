package supervisor

import "vire/internal/event"

// State is where the control loop goes after handling one event.
type State int

const (
	StateRunning State = iota
	StateRespawn
	StateFullReload
	StateQuit
)

func (state State) String() string {
	switch state {
	case StateRunning:
		return "running"
	case StateRespawn:
		return "respawn"
	case StateFullReload:
		return "full_reload"
	case StateQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Action is a transition together with the clear intensity to apply.
type Action struct {
	Next  State
	Clear int
}

// Decide maps one dequeued event to an action. reloadPending is true when
// auto full reload is on and preload files are out of sync; it outranks
// every event except quit.
func Decide(evt event.Event, reloadPending bool, clear int) Action {
	if evt.Kind == event.KindInterrupt || (evt.Kind == event.KindKey && evt.Key == 'q') {
		return Action{Next: StateQuit}
	}
	if reloadPending {
		return Action{Next: StateFullReload, Clear: clear}
	}
	switch evt.Kind {
	case event.KindKey:
		switch evt.Key {
		case 'R':
			return Action{Next: StateFullReload, Clear: 1}
		case 'c':
			return Action{Next: StateRespawn, Clear: max(clear, 1)}
		case 'C':
			return Action{Next: StateRespawn, Clear: max(clear, 2)}
		case 'r', ' ':
			return Action{Next: StateRespawn, Clear: clear}
		}
	case event.KindChange:
		if len(evt.Paths) > 0 {
			return Action{Next: StateRespawn, Clear: clear}
		}
	}
	return Action{Next: StateRunning}
}
