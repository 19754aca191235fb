package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"vire/internal/cli"
	"vire/internal/config"
)

var errHelpShown = errors.New("help shown")

type cliError struct {
	Code    int
	Message string
}

func (e *cliError) Error() string {
	return e.Message
}

// Config is the parsed command line together with the resolved settings.
type Config struct {
	Program     []string
	Settings    config.Settings
	Warnings    []string
	ShowVersion bool
	PrintConfig bool
}

const usageTemplate = `Usage:
  vire [flags] program [args...]
  vire [flags] -m module [args...]

Runs program and restarts it whenever a watched file changes.

Keys:
  r, space  rerun the program
  c         clear the screen and rerun
  C         clear the screen and scrollback and rerun
  R         full reload: restart vire itself, picking up preloaded modules
  q         quit

Flags:
{{.LocalFlags.FlagUsages}}`

func newRootCommand(workDir string, cfg *Config, out io.Writer, errOut io.Writer) *cobra.Command {
	var (
		helpVersion *cli.HelpVersionFlags
		flags       *cli.SupervisorFlags
	)
	cmd := &cobra.Command{
		Use:           "vire [flags] program [args...]",
		Short:         "Live-reload supervisor",
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if helpVersion.Version {
				cfg.ShowVersion = true
				return nil
			}
			loader, err := config.NewLoader(workDir)
			if err != nil {
				return &cliError{Code: exitCodeConfig, Message: err.Error()}
			}
			if err := loader.BindFlags(cmd.Flags()); err != nil {
				return &cliError{Code: exitCodeConfig, Message: err.Error()}
			}
			settings, warnings, err := loader.Load(flags.Config)
			if err != nil {
				return &cliError{Code: exitCodeConfig, Message: err.Error()}
			}
			cfg.Settings = settings
			cfg.Warnings = warnings
			cfg.PrintConfig = flags.PrintConfig
			if flags.PrintConfig {
				return nil
			}
			if len(args) == 0 {
				_ = cmd.Usage()
				return &cliError{Code: exitCodeUsage, Message: "missing program to run"}
			}
			cfg.Program = append([]string(nil), args...)
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetUsageTemplate(usageTemplate)
	cmd.SetHelpTemplate("{{.UsageString}}")
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		_ = cmd.Usage()
		return &cliError{Code: exitCodeUsage, Message: err.Error()}
	})

	fs := cmd.Flags()
	fs.SetInterspersed(false)
	fs.SortFlags = false
	flags = cli.AddSupervisorFlags(fs)
	helpVersion = cli.AddHelpVersionFlags(fs, "", "")
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd
}

func parseArgs(args []string, workDir string, out io.Writer, errOut io.Writer) (Config, error) {
	cfg := Config{}
	cmd := newRootCommand(workDir, &cfg, out, errOut)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	executed, err := cmd.ExecuteC()
	if err != nil {
		return Config{}, err
	}
	if help, _ := executed.Flags().GetBool("help"); help {
		return Config{}, errHelpShown
	}
	return cfg, nil
}
