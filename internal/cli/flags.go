// Package cli declares vire's command-line flags.
package cli

import (
	"time"

	"github.com/spf13/pflag"

	"vire/internal/targets"
)

const (
	defaultHelpDesc    = "Show help"
	defaultVersionDesc = "Print version and exit"
)

type HelpVersionFlags struct {
	Help    bool
	Version bool
}

func AddHelpVersionFlags(fs *pflag.FlagSet, helpDesc, versionDesc string) *HelpVersionFlags {
	if fs == nil {
		return &HelpVersionFlags{}
	}
	if helpDesc == "" {
		helpDesc = defaultHelpDesc
	}
	if versionDesc == "" {
		versionDesc = defaultVersionDesc
	}
	flags := &HelpVersionFlags{}
	fs.BoolVarP(&flags.Help, "help", "h", false, helpDesc)
	fs.BoolVarP(&flags.Version, "version", "v", false, versionDesc)
	return flags
}

// SupervisorFlags holds the raw flag values. Settings come from the config
// loader, which only honours flags that were set explicitly.
type SupervisorFlags struct {
	Module         bool
	Preload        []string
	Glob           []string
	Clear          int
	Silent         bool
	AutoFullReload bool
	Config         string
	Interpreter    string
	Debounce       time.Duration
	StopTimeout    time.Duration
	LogLevel       string
	LogFile        string
	PrintConfig    bool
}

func AddSupervisorFlags(fs *pflag.FlagSet) *SupervisorFlags {
	flags := &SupervisorFlags{}
	if fs == nil {
		return flags
	}
	fs.BoolVarP(&flags.Module, "module", "m", false, "Run the program as a module (interpreter -m name)")
	fs.StringSliceVarP(&flags.Preload, "preload", "p", nil, "Comma-separated modules to import before the first run")
	fs.StringSliceVarP(&flags.Glob, "glob", "g", []string{targets.DefaultGlob}, "Comma-separated glob patterns of files to watch")
	fs.CountVarP(&flags.Clear, "clear", "c", "Clear the screen before each run; repeat to also clear scrollback")
	fs.BoolVarP(&flags.Silent, "silent", "s", false, "Do not report modified preloaded files")
	fs.BoolVarP(&flags.AutoFullReload, "auto-full-reload", "r", false, "Reload fully as soon as a preloaded file changes")
	fs.StringVar(&flags.Config, "config", "", "Config file (default .vire.toml or .vire.yaml in the working directory)")
	fs.StringVar(&flags.Interpreter, "interpreter", "python3", "Interpreter used for -m and preload resolution")
	fs.DurationVar(&flags.Debounce, "debounce", 50*time.Millisecond, "Window for coalescing file changes")
	fs.DurationVar(&flags.StopTimeout, "stop-timeout", 5*time.Second, "Wait this long after SIGTERM before killing the program")
	fs.StringVar(&flags.LogLevel, "log-level", "warning", "Log level: debug, info, warning, error")
	fs.StringVar(&flags.LogFile, "log-file", "", "Also write logs to this rotating file")
	fs.BoolVar(&flags.PrintConfig, "print-config", false, "Print the resolved settings as TOML and exit")
	return flags
}
