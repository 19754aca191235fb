// Package config resolves vire's settings from flags, VIRE_* environment
// variables, an optional config file and the embedded defaults.
package config

import (
	_ "embed"
	"fmt"
	"io"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed defaults.toml
var defaultsPayload []byte

const (
	KeyPreload        = "preload"
	KeyGlob           = "glob"
	KeyClear          = "clear"
	KeySilent         = "silent"
	KeyAutoFullReload = "auto_full_reload"
	KeyModule         = "module"
	KeyInterpreter    = "interpreter"
	KeyDebounce       = "debounce"
	KeyStopTimeout    = "stop_timeout"
	KeySystemPrefixes = "system_prefixes"
	KeyLogLevel       = "log_level"
	KeyLogFile        = "log_file"
	KeyLogMaxSizeMB   = "log_max_size_mb"
	KeyLogMaxBackups  = "log_max_backups"
	KeyLogMaxAgeDays  = "log_max_age_days"
)

type Settings struct {
	Preload        []string
	Glob           []string
	Clear          int
	Silent         bool
	AutoFullReload bool
	Module         bool
	Interpreter    string
	Debounce       time.Duration
	StopTimeout    time.Duration
	SystemPrefixes []string
	Log            LogSettings
	// ConfigFile is the absolute path of the file the settings were read
	// from, empty when none was found.
	ConfigFile string
}

type LogSettings struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// fileSettings is the on-disk shape of a config file. Durations stay
// strings so the same struct round-trips through TOML and YAML.
type fileSettings struct {
	Preload        []string `toml:"preload" yaml:"preload"`
	Glob           []string `toml:"glob" yaml:"glob"`
	Clear          int      `toml:"clear" yaml:"clear"`
	Silent         bool     `toml:"silent" yaml:"silent"`
	AutoFullReload bool     `toml:"auto_full_reload" yaml:"auto_full_reload"`
	Module         bool     `toml:"module" yaml:"module"`
	Interpreter    string   `toml:"interpreter" yaml:"interpreter"`
	Debounce       string   `toml:"debounce" yaml:"debounce"`
	StopTimeout    string   `toml:"stop_timeout" yaml:"stop_timeout"`
	SystemPrefixes []string `toml:"system_prefixes" yaml:"system_prefixes"`
	LogLevel       string   `toml:"log_level" yaml:"log_level"`
	LogFile        string   `toml:"log_file" yaml:"log_file"`
	LogMaxSizeMB   int      `toml:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups  int      `toml:"log_max_backups" yaml:"log_max_backups"`
	LogMaxAgeDays  int      `toml:"log_max_age_days" yaml:"log_max_age_days"`
}

func decodeDefaults() (map[string]any, error) {
	values := map[string]any{}
	if _, err := toml.Decode(string(defaultsPayload), &values); err != nil {
		return nil, fmt.Errorf("decode embedded defaults: %w", err)
	}
	return values, nil
}

// Defaults returns the embedded default settings.
func Defaults() (Settings, error) {
	var file fileSettings
	if _, err := toml.Decode(string(defaultsPayload), &file); err != nil {
		return Settings{}, fmt.Errorf("decode embedded defaults: %w", err)
	}
	return file.settings()
}

func (file fileSettings) settings() (Settings, error) {
	debounce, err := time.ParseDuration(file.Debounce)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", KeyDebounce, err)
	}
	stopTimeout, err := time.ParseDuration(file.StopTimeout)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", KeyStopTimeout, err)
	}
	return Settings{
		Preload:        file.Preload,
		Glob:           file.Glob,
		Clear:          file.Clear,
		Silent:         file.Silent,
		AutoFullReload: file.AutoFullReload,
		Module:         file.Module,
		Interpreter:    file.Interpreter,
		Debounce:       debounce,
		StopTimeout:    stopTimeout,
		SystemPrefixes: file.SystemPrefixes,
		Log: LogSettings{
			Level:      file.LogLevel,
			File:       file.LogFile,
			MaxSizeMB:  file.LogMaxSizeMB,
			MaxBackups: file.LogMaxBackups,
			MaxAgeDays: file.LogMaxAgeDays,
		},
	}, nil
}

func (settings Settings) file() fileSettings {
	return fileSettings{
		Preload:        nonNil(settings.Preload),
		Glob:           nonNil(settings.Glob),
		Clear:          settings.Clear,
		Silent:         settings.Silent,
		AutoFullReload: settings.AutoFullReload,
		Module:         settings.Module,
		Interpreter:    settings.Interpreter,
		Debounce:       settings.Debounce.String(),
		StopTimeout:    settings.StopTimeout.String(),
		SystemPrefixes: nonNil(settings.SystemPrefixes),
		LogLevel:       settings.Log.Level,
		LogFile:        settings.Log.File,
		LogMaxSizeMB:   settings.Log.MaxSizeMB,
		LogMaxBackups:  settings.Log.MaxBackups,
		LogMaxAgeDays:  settings.Log.MaxAgeDays,
	}
}

// WriteTOML prints the settings in config file form.
func (settings Settings) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(settings.file())
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
