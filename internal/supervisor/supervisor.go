// Package supervisor runs the control loop: it owns the current child,
// drains the merged event queue and turns each event into a respawn, a full
// reload, a quit or nothing at all.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"vire/internal/classifier"
	"vire/internal/event"
	"vire/internal/logging"
	"vire/internal/process"
	"vire/internal/terminal"
)

// Child is one running incarnation of the target program.
type Child interface {
	PID() int
	Incarnation() int
	Terminate(ctx context.Context) error
}

// Spawner starts a child after clearing the screen at the given intensity.
type Spawner interface {
	Spawn(clear int) (Child, error)
}

// Events is the consumer side of the event queue.
type Events interface {
	Get(ctx context.Context) (event.Event, error)
}

// OutOfSync is the read side of the out-of-sync set.
type OutOfSync interface {
	Snapshot() []string
	Len() int
}

type Options struct {
	Spawner   Spawner
	Events    Events
	OutOfSync OutOfSync
	// Reexec replaces the process image; restore puts the terminal back
	// first. It only returns on failure.
	Reexec          func(restore func() error) error
	RestoreTerminal func() error
	Clear           int
	Silent          bool
	AutoFullReload  bool
	Stdout          io.Writer
	Stderr          io.Writer
	Logger          *logging.Logger
	// Metrics, when set, is logged at debug level on quit.
	Metrics func() map[string]string
}

type Supervisor struct {
	spawner   Spawner
	events    Events
	outOfSync OutOfSync
	reexec    func(restore func() error) error
	restore   func() error
	clear     int
	silent    bool
	auto      bool
	stdout    io.Writer
	stderr    io.Writer
	logger    *logging.Logger
	metrics   func() map[string]string
	advisory  advisory

	child    Child
	reported []string
}

func New(options Options) (*Supervisor, error) {
	if options.Spawner == nil {
		return nil, errors.New("supervisor: spawner is required")
	}
	if options.Events == nil {
		return nil, errors.New("supervisor: event source is required")
	}
	outOfSync := options.OutOfSync
	if outOfSync == nil {
		outOfSync = classifier.NewOutOfSync()
	}
	reexec := options.Reexec
	if reexec == nil {
		reexec = process.Reexec
	}
	stdout := options.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := options.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Supervisor{
		spawner:   options.Spawner,
		events:    options.Events,
		outOfSync: outOfSync,
		reexec:    reexec,
		restore:   options.RestoreTerminal,
		clear:     options.Clear,
		silent:    options.Silent,
		auto:      options.AutoFullReload,
		stdout:    stdout,
		stderr:    stderr,
		logger:    logger.With(map[string]string{"component": "supervisor"}),
		metrics:   options.Metrics,
		advisory:  newAdvisory(stderr),
	}, nil
}

// Run spawns the first child and drives the loop until quit or full reload.
// It returns the terminal state reached. A full reload that fails to replace
// the process returns an error wrapping process.ErrReexec.
func (s *Supervisor) Run(ctx context.Context) (State, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.spawn(s.clear)
	for {
		s.report()
		if s.reloadPending() {
			return s.fullReload(s.clear)
		}

		evt, err := s.events.Get(ctx)
		if err != nil {
			s.logger.Debug("event source closed", map[string]string{"error": err.Error()})
			return s.quit()
		}
		action := Decide(evt, s.reloadPending(), s.clear)
		if s.logger.Enabled(logging.LevelDebug) {
			fields := evt.Fields()
			fields["next"] = action.Next.String()
			s.logger.Debug("event handled", fields)
		}

		switch action.Next {
		case StateQuit:
			return s.quit()
		case StateFullReload:
			return s.fullReload(action.Clear)
		case StateRespawn:
			s.terminateChild()
			s.spawn(action.Clear)
		}
	}
}

func (s *Supervisor) reloadPending() bool {
	return s.auto && s.outOfSync.Len() > 0
}

// report prints the advisory whenever the out-of-sync set differs from what
// was last shown to the current incarnation.
func (s *Supervisor) report() {
	snapshot := s.outOfSync.Snapshot()
	if classifier.Equal(snapshot, s.reported) {
		return
	}
	s.reported = snapshot
	s.logger.Info("preload files out of sync", map[string]string{
		"count": strconv.Itoa(len(snapshot)),
	})
	if s.silent {
		return
	}
	_, _ = io.WriteString(s.stderr, s.advisory.render(snapshot))
}

func (s *Supervisor) spawn(clear int) {
	s.reported = nil
	child, err := s.spawner.Spawn(clear)
	if err != nil {
		s.child = nil
		s.logger.Warn("spawn failed", map[string]string{"error": err.Error()})
		return
	}
	s.child = child
}

func (s *Supervisor) terminateChild() {
	if s.child == nil {
		return
	}
	child := s.child
	s.child = nil
	if err := child.Terminate(context.Background()); err != nil {
		s.logger.Warn("terminate child failed", map[string]string{
			"pid":         strconv.Itoa(child.PID()),
			"incarnation": strconv.Itoa(child.Incarnation()),
			"error":       err.Error(),
		})
	}
}

func (s *Supervisor) quit() (State, error) {
	s.terminateChild()
	if s.metrics != nil {
		s.logger.Debug("watcher metrics", s.metrics())
	}
	return StateQuit, nil
}

func (s *Supervisor) fullReload(clear int) (State, error) {
	s.terminateChild()
	if err := terminal.Clear(s.stdout, clear); err != nil {
		s.logger.Debug("clear screen failed", map[string]string{"error": err.Error()})
	}
	s.logger.Info("full reload", map[string]string{
		"out_of_sync": strconv.Itoa(s.outOfSync.Len()),
	})
	if err := s.reexec(s.restore); err != nil {
		if !errors.Is(err, process.ErrReexec) {
			err = fmt.Errorf("%w: %v", process.ErrReexec, err)
		}
		return StateFullReload, err
	}
	return StateFullReload, nil
}

// ProcessSpawner adapts a process.Spawner to the loop's Spawner.
type ProcessSpawner struct {
	Spawner *process.Spawner
}

func (adapter ProcessSpawner) Spawn(clear int) (Child, error) {
	child, err := adapter.Spawner.Spawn(clear)
	if err != nil {
		return nil, err
	}
	return child, nil
}
