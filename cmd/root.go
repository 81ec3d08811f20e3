package main

import (
	"errors"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/clipreel/internal/config"
	"github.com/MimeLyc/clipreel/pkg/log"
)

// appContext carries what the subcommands share: the loaded configuration,
// the resources to release on exit and the terminal hooks tests replace.
type appContext struct {
	configPath string
	logLevel   string

	closers []func() error

	interactive func() bool
	prompt      func(*compileOptions) error
}

func newAppContext() *appContext {
	return &appContext{
		interactive: stdinIsTerminal,
		prompt:      promptCompileOptions,
	}
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newRootCommand(app *appContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "clipreel",
		Short:         "Compile top Twitch clips into a single video",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Configuration file path (overrides CLIPREEL_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(newCompileCommand(app))
	rootCmd.AddCommand(newScheduleCommand(app))
	rootCmd.AddCommand(newRunsCommand(app))
	rootCmd.AddCommand(newWorkdirCommand(app))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

// loadConfig builds the configuration and applies its logging settings.
func (a *appContext) loadConfig(opts ...config.Option) (*config.Config, error) {
	if a.configPath != "" {
		if err := os.Setenv("CLIPREEL_CONFIG", a.configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, err
	}

	level := cfg.System.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	if cfg.System.LogFile != "" {
		fileLogger, err := log.NewFileLogger(cfg.System.LogFile, log.ParseLevel(level))
		if err != nil {
			return nil, err
		}
		log.SetLogger(fileLogger.Logger)
		a.onClose(fileLogger.Close)
	} else {
		log.GetLogger().SetLevel(log.ParseLevel(level))
	}
	return cfg, nil
}

func (a *appContext) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *appContext) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
