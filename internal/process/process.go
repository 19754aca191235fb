// Package process starts and stops the supervised child and replaces the
// supervisor's own process image on a full reload.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"vire/internal/logging"
	"vire/internal/terminal"
)

var (
	ErrProcessNotFound = errors.New("process not running")
	ErrReexec          = errors.New("re-exec failed")
	ErrNoProgram       = errors.New("no program to run")
)

const (
	defaultStopTimeout = 5 * time.Second
	defaultInterpreter = "python3"

	EnvIncarnation = "VIRE_INCARNATION"
	EnvSession     = "VIRE_SESSION"
)

// InvocationMode selects how the first program argument is interpreted.
type InvocationMode int

const (
	ModePath InvocationMode = iota
	ModeModule
)

func (mode InvocationMode) String() string {
	if mode == ModeModule {
		return "module"
	}
	return "path"
}

// CommandLine returns the argument vector that runs the target program.
func CommandLine(argv []string, mode InvocationMode, interpreter string) ([]string, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrNoProgram
	}
	if mode != ModeModule {
		out := make([]string, len(argv))
		copy(out, argv)
		return out, nil
	}
	if interpreter == "" {
		interpreter = defaultInterpreter
	}
	out := make([]string, 0, len(argv)+2)
	out = append(out, interpreter, "-m")
	return append(out, argv...), nil
}

type SpawnerOptions struct {
	Argv        []string
	Mode        InvocationMode
	Interpreter string
	Dir         string
	Session     string
	StopTimeout time.Duration
	Stdout      io.Writer
	Stderr      io.Writer
	Logger      *logging.Logger
}

// Spawner starts one child incarnation at a time. It is owned by the control
// loop and is not safe for concurrent use.
type Spawner struct {
	command     []string
	dir         string
	session     string
	stopTimeout time.Duration
	stdout      io.Writer
	stderr      io.Writer
	logger      *logging.Logger
	incarnation int
}

func NewSpawner(options SpawnerOptions) (*Spawner, error) {
	command, err := CommandLine(options.Argv, options.Mode, options.Interpreter)
	if err != nil {
		return nil, err
	}
	stopTimeout := options.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
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
	return &Spawner{
		command:     command,
		dir:         options.Dir,
		session:     options.Session,
		stopTimeout: stopTimeout,
		stdout:      stdout,
		stderr:      stderr,
		logger:      logger,
	}, nil
}

func (spawner *Spawner) Command() []string {
	out := make([]string, len(spawner.command))
	copy(out, spawner.command)
	return out
}

// Spawn clears the screen at the given intensity and starts a new child.
// A program that cannot be started is reported on stderr and returned as an
// error; the caller treats it like a child that already finished.
func (spawner *Spawner) Spawn(clear int) (*Child, error) {
	if err := terminal.Clear(spawner.stdout, clear); err != nil {
		spawner.logger.Debug("clear screen failed", map[string]string{"error": err.Error()})
	}
	spawner.incarnation++
	incarnation := spawner.incarnation

	cmd := exec.Command(spawner.command[0], spawner.command[1:]...)
	cmd.Dir = spawner.dir
	cmd.Stdin = nil
	cmd.Stdout = spawner.stdout
	cmd.Stderr = spawner.stderr
	cmd.Env = append(os.Environ(),
		EnvIncarnation+"="+strconv.Itoa(incarnation),
		EnvSession+"="+spawner.session,
	)
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(spawner.stderr, "vire: cannot start %s: %v\n", spawner.command[0], err)
		spawner.logger.Warn("child start failed", map[string]string{
			"incarnation": strconv.Itoa(incarnation),
			"program":     spawner.command[0],
			"error":       err.Error(),
		})
		return nil, fmt.Errorf("start %s: %w", spawner.command[0], err)
	}

	child := &Child{
		cmd:         cmd,
		pid:         cmd.Process.Pid,
		pgid:        GroupID(cmd.Process.Pid),
		incarnation: incarnation,
		stopTimeout: spawner.stopTimeout,
		done:        make(chan struct{}),
	}
	spawner.logger.Info("child started", child.fields())
	go child.reap(spawner.stderr, spawner.logger)
	return child, nil
}

// Child is the handle for one running incarnation of the target program.
type Child struct {
	cmd         *exec.Cmd
	pid         int
	pgid        int
	incarnation int
	stopTimeout time.Duration

	done        chan struct{}
	waitErr     error
	terminating atomic.Bool
	stopOnce    sync.Once
	stopErr     error
}

func (child *Child) PID() int {
	return child.pid
}

func (child *Child) Incarnation() int {
	return child.incarnation
}

// Done is closed once the child has been reaped.
func (child *Child) Done() <-chan struct{} {
	return child.done
}

// Exited reports whether the child has been reaped.
func (child *Child) Exited() bool {
	select {
	case <-child.done:
		return true
	default:
		return false
	}
}

// Err returns the wait result once Done is closed.
func (child *Child) Err() error {
	<-child.done
	return child.waitErr
}

func (child *Child) reap(stderr io.Writer, logger *logging.Logger) {
	err := child.cmd.Wait()
	child.waitErr = err
	defer close(child.done)

	if child.terminating.Load() {
		logger.Debug("child stopped", child.fields())
		return
	}
	status := exitStatus(child.cmd, err)
	fields := child.fields()
	fields["status"] = status
	logger.Info("child exited", fields)
	fmt.Fprintf(stderr, "vire: child exited (%s, incarnation %d)\n", status, child.incarnation)
}

// Terminate stops the child's process group and waits until it is reaped.
// Calling it on a child that already exited is a no-op.
func (child *Child) Terminate(ctx context.Context) error {
	if child == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	child.stopOnce.Do(func() {
		child.terminating.Store(true)
		if child.Exited() {
			return
		}
		err := stopProcess(ctx, child.pid, child.pgid, child.stopTimeout, child.wait)
		if errors.Is(err, ErrProcessNotFound) {
			err = nil
		}
		child.stopErr = err
	})
	return child.stopErr
}

func (child *Child) wait(ctx context.Context) error {
	select {
	case <-child.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (child *Child) fields() map[string]string {
	return map[string]string{
		"pid":         strconv.Itoa(child.pid),
		"incarnation": strconv.Itoa(child.incarnation),
	}
}

func exitStatus(cmd *exec.Cmd, err error) string {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.String()
	}
	if err != nil {
		return err.Error()
	}
	return "unknown"
}
