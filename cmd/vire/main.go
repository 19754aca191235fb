package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"vire/internal/logging"
	"vire/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, out io.Writer, errOut io.Writer) int {
	workDir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(errOut, "vire: working directory: %v\n", err)
		return exitCodeFatal
	}
	return runWithDeps(args, runDeps{
		WorkDir: workDir,
		Stdin:   stdin,
		Stdout:  out,
		Stderr:  errOut,
	})
}

func runWithDeps(args []string, deps runDeps) int {
	cfg, err := parseArgs(args, deps.WorkDir, deps.Stdout, deps.Stderr)
	if err != nil {
		if errors.Is(err, errHelpShown) {
			return exitCodeSuccess
		}
		var cliErr *cliError
		if errors.As(err, &cliErr) {
			fmt.Fprintf(deps.Stderr, "vire: %s\n", cliErr.Message)
			return cliErr.Code
		}
		fmt.Fprintf(deps.Stderr, "vire: %v\n", err)
		return exitCodeUsage
	}
	if cfg.ShowVersion {
		fmt.Fprintln(deps.Stdout, version.GetVersionInfo().String())
		return exitCodeSuccess
	}
	if cfg.PrintConfig {
		if err := cfg.Settings.WriteTOML(deps.Stdout); err != nil {
			fmt.Fprintf(deps.Stderr, "vire: print config: %v\n", err)
			return exitCodeFatal
		}
		return exitCodeSuccess
	}

	logger, logCloser := logging.NewLoggerWithFile(nil, cfg.Settings.LogLevel(), deps.Stderr, logging.FileOptions{
		Path:       cfg.Settings.Log.File,
		MaxSizeMB:  cfg.Settings.Log.MaxSizeMB,
		MaxBackups: cfg.Settings.Log.MaxBackups,
		MaxAgeDays: cfg.Settings.Log.MaxAgeDays,
	})
	defer logCloser.Close()
	for _, warning := range cfg.Warnings {
		logger.Warn("config warning", map[string]string{"warning": warning})
	}

	if err := supervise(context.Background(), cfg, deps, logger, logCloser); err != nil {
		logger.Error("supervisor failed", map[string]string{"error": err.Error()})
		fmt.Fprintf(deps.Stderr, "vire: %v\n", err)
		var cliErr *cliError
		if errors.As(err, &cliErr) {
			return cliErr.Code
		}
		return exitCodeFatal
	}
	return exitCodeSuccess
}
