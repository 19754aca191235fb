package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"vire/internal/logging"
	"vire/internal/targets"
)

const EnvPrefix = "VIRE"

// FileNames are searched in the working directory when no config file is
// given explicitly.
var FileNames = []string{".vire.toml", ".vire.yaml", ".vire.yml"}

// flagKeys maps command-line flag names onto setting keys.
var flagKeys = map[string]string{
	"preload":          KeyPreload,
	"glob":             KeyGlob,
	"clear":            KeyClear,
	"silent":           KeySilent,
	"auto-full-reload": KeyAutoFullReload,
	"module":           KeyModule,
	"interpreter":      KeyInterpreter,
	"debounce":         KeyDebounce,
	"stop-timeout":     KeyStopTimeout,
	"log-level":        KeyLogLevel,
	"log-file":         KeyLogFile,
}

// Loader layers flags over VIRE_* environment variables over a config file
// over the embedded defaults.
type Loader struct {
	v       *viper.Viper
	workDir string
}

func NewLoader(workDir string) (*Loader, error) {
	defaults, err := decodeDefaults()
	if err != nil {
		return nil, err
	}
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if strings.TrimSpace(workDir) == "" {
		workDir = "."
	}
	return &Loader{v: v, workDir: workDir}, nil
}

// BindFlags makes every known flag in flags override its setting when the
// flag is set on the command line.
func (loader *Loader) BindFlags(flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := loader.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load resolves the settings. explicitPath, when set, must exist. Unknown
// keys in the config file are returned as warnings, not errors.
func (loader *Loader) Load(explicitPath string) (Settings, []string, error) {
	path, err := loader.findFile(explicitPath)
	if err != nil {
		return Settings{}, nil, err
	}

	var warnings []string
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, nil, fmt.Errorf("read config: %w", err)
		}
		format := fileFormat(path)
		warnings, err = unknownKeys(path, format, data)
		if err != nil {
			return Settings{}, nil, err
		}
		loader.v.SetConfigFile(path)
		loader.v.SetConfigType(format)
		if err := loader.v.ReadInConfig(); err != nil {
			return Settings{}, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	settings := loader.settings()
	settings.ConfigFile = path
	if err := settings.Validate(); err != nil {
		return Settings{}, warnings, err
	}
	return settings, warnings, nil
}

func (loader *Loader) findFile(explicitPath string) (string, error) {
	if strings.TrimSpace(explicitPath) != "" {
		path, err := filepath.Abs(explicitPath)
		if err != nil {
			return "", fmt.Errorf("config path: %w", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("config file %s is a directory", path)
		}
		return path, nil
	}
	for _, name := range FileNames {
		path, err := filepath.Abs(filepath.Join(loader.workDir, name))
		if err != nil {
			continue
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", nil
}

func (loader *Loader) settings() Settings {
	v := loader.v
	return Settings{
		Preload:        targets.SplitList(v.GetStringSlice(KeyPreload)...),
		Glob:           targets.SplitList(v.GetStringSlice(KeyGlob)...),
		Clear:          v.GetInt(KeyClear),
		Silent:         v.GetBool(KeySilent),
		AutoFullReload: v.GetBool(KeyAutoFullReload),
		Module:         v.GetBool(KeyModule),
		Interpreter:    strings.TrimSpace(v.GetString(KeyInterpreter)),
		Debounce:       v.GetDuration(KeyDebounce),
		StopTimeout:    v.GetDuration(KeyStopTimeout),
		SystemPrefixes: targets.SplitList(v.GetStringSlice(KeySystemPrefixes)...),
		Log: LogSettings{
			Level:      strings.TrimSpace(v.GetString(KeyLogLevel)),
			File:       strings.TrimSpace(v.GetString(KeyLogFile)),
			MaxSizeMB:  v.GetInt(KeyLogMaxSizeMB),
			MaxBackups: v.GetInt(KeyLogMaxBackups),
			MaxAgeDays: v.GetInt(KeyLogMaxAgeDays),
		},
	}
}

// Validate rejects settings the supervisor cannot run with.
func (settings Settings) Validate() error {
	var errs []error
	if settings.Clear < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %d", KeyClear, settings.Clear))
	}
	if settings.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("%s must be a positive duration", KeyDebounce))
	}
	if settings.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be a positive duration", KeyStopTimeout))
	}
	if settings.Interpreter == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyInterpreter))
	}
	if _, ok := logging.ParseLevel(settings.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("%s %q is not one of debug, info, warning, error", KeyLogLevel, settings.Log.Level))
	}
	return errors.Join(errs...)
}

// LogLevel returns the parsed log level, falling back to warning.
func (settings Settings) LogLevel() logging.Level {
	if level, ok := logging.ParseLevel(settings.Log.Level); ok {
		return level
	}
	return logging.LevelWarning
}

func fileFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}
