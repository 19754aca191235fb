package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"

	"vire/internal/classifier"
	"vire/internal/event"
	"vire/internal/logging"
	"vire/internal/process"
	"vire/internal/supervisor"
	"vire/internal/targets"
	"vire/internal/terminal"
	"vire/internal/watcher"
)

type runDeps struct {
	WorkDir string
	Stdin   *os.File
	Stdout  io.Writer
	Stderr  io.Writer
	// Reexec defaults to process.Reexec.
	Reexec func(restore func() error) error
	// Signals defaults to SIGINT, SIGTERM and SIGHUP delivered by the OS.
	Signals <-chan os.Signal
}

func supervise(ctx context.Context, cfg Config, deps runDeps, logger *logging.Logger, logCloser io.Closer) error {
	settings := cfg.Settings
	session := uuid.NewString()
	logger = logger.With(map[string]string{"session": session})

	preload := resolvePreload(ctx, cfg, deps, logger)
	set, err := targets.Build(deps.WorkDir, preload, settings.Glob)
	if err != nil {
		return &cliError{Code: exitCodeConfig, Message: err.Error()}
	}
	logger.Info("watch set built", map[string]string{
		"preload": strconv.Itoa(set.Count(targets.OriginPreload)),
		"glob":    strconv.Itoa(set.Count(targets.OriginGlob)),
	})

	queue := event.NewQueue[event.Event]()
	defer queue.Close()
	outOfSync := classifier.NewOutOfSync()
	classify := classifier.New(set, outOfSync, queue, classifier.Options{
		Logger:         logger,
		AutoFullReload: settings.AutoFullReload,
	})

	fileWatcher, err := watcher.NewWithOptions(watcher.Options{
		Logger:   logger,
		Coalesce: settings.Debounce,
		OnBatch:  classify.HandleBatch,
		ErrorHandler: func(err error) {
			logger.Error("file watching stopped", map[string]string{"error": err.Error()})
			fmt.Fprintf(deps.Stderr, "vire: file watching stopped: %v\n", err)
		},
	})
	if err != nil {
		logger.Error("file watcher unavailable", map[string]string{"error": err.Error()})
		fmt.Fprintf(deps.Stderr, "vire: file watcher unavailable, keys still work: %v\n", err)
	} else {
		defer fileWatcher.Close()
		if err := fileWatcher.AddAll(set.Paths()); err != nil {
			logger.Warn("some files are not watched", map[string]string{"error": err.Error()})
		}
	}

	guard, err := terminal.Acquire(deps.Stdin)
	if err != nil {
		logger.Warn("terminal mode unchanged", map[string]string{"error": err.Error()})
		guard = nil
	}
	defer func() {
		if err := guard.Restore(); err != nil {
			logger.Error("restore terminal failed", map[string]string{"error": err.Error()})
		}
	}()

	signalCh := deps.Signals
	if signalCh == nil {
		osSignals := make(chan os.Signal, 1)
		signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(osSignals)
		signalCh = osSignals
	}
	stopSignals := watchInterruptSignals(logger, queue, signalCh)
	defer stopSignals()

	if deps.Stdin != nil {
		go terminal.ReadKeys(deps.Stdin, queue, logger)
	}

	mode := process.ModePath
	if settings.Module {
		mode = process.ModeModule
	}
	spawner, err := process.NewSpawner(process.SpawnerOptions{
		Argv:        cfg.Program,
		Mode:        mode,
		Interpreter: settings.Interpreter,
		Dir:         deps.WorkDir,
		Session:     session,
		StopTimeout: settings.StopTimeout,
		Stdout:      deps.Stdout,
		Stderr:      deps.Stderr,
		Logger:      logger,
	})
	if err != nil {
		return &cliError{Code: exitCodeUsage, Message: err.Error()}
	}

	reexec := deps.Reexec
	if reexec == nil {
		reexec = process.Reexec
	}
	loop, err := supervisor.New(supervisor.Options{
		Spawner:   supervisor.ProcessSpawner{Spawner: spawner},
		Events:    queue,
		OutOfSync: outOfSync,
		Reexec:    reexec,
		RestoreTerminal: func() error {
			if fileWatcher != nil {
				_ = fileWatcher.Close()
			}
			_ = logCloser.Close()
			return guard.Restore()
		},
		Clear:          settings.Clear,
		Silent:         settings.Silent,
		AutoFullReload: settings.AutoFullReload,
		Stdout:         deps.Stdout,
		Stderr:         deps.Stderr,
		Logger:         logger,
		Metrics: func() map[string]string {
			if fileWatcher == nil {
				return nil
			}
			return fileWatcher.Metrics().Fields()
		},
	})
	if err != nil {
		return err
	}

	state, err := loop.Run(ctx)
	logger.Debug("supervisor stopped", map[string]string{"state": state.String()})
	return err
}

// resolvePreload imports the configured preload names and returns the files
// backing them. The config file is always preloaded: vire already parsed it.
func resolvePreload(ctx context.Context, cfg Config, deps runDeps, logger *logging.Logger) []string {
	settings := cfg.Settings
	resolver := targets.Chain{
		targets.FileResolver{WorkDir: deps.WorkDir},
		targets.PythonResolver{Interpreter: settings.Interpreter, WorkDir: deps.WorkDir},
	}
	paths, err := targets.ResolvePreload(ctx, resolver, settings.Preload, settings.SystemPrefixes)
	if err != nil {
		logger.Warn("preload failed", map[string]string{"error": err.Error()})
		fmt.Fprintf(deps.Stderr, "vire: preload: %v\n", err)
	}
	if settings.ConfigFile != "" {
		paths = append(paths, settings.ConfigFile)
	}
	return paths
}
