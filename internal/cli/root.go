// Package cli defines the command-line interface for stackdeploy.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/stackdeploy/internal/logging"
)

const (
	// defaultDocumentPath is the default deployment document.
	defaultDocumentPath = "stackdeploy.yml"
)

// Options stores global CLI options shared between commands.
type Options struct {
	File       string
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Vars       []string
	EnvFiles   []string

	// Settings is the resolved tool configuration, loaded before any
	// command runs.
	Settings *Settings
}

// Execute builds the root command, runs it with the provided args and
// logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo, "text")
	}

	rootOpts := &Options{File: defaultDocumentPath}

	rootCmd := newRootCommand(rootOpts, logger)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and
// subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stackdeploy",
		Short:         "stackdeploy applies declarative deployment documents to a cluster",
		Long:          "stackdeploy reads a YAML deployment document, resolves variables, includes and dependencies, and converges a cluster toward it. Runs are idempotent: unchanged entities are never touched.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := LoadSettings(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.Settings = settings

			level := opts.LogLevel
			if level == "" {
				level = settings.Log.Level
			}
			format := opts.LogFormat
			if format == "" {
				format = settings.Log.Format
			}
			logger = logging.NewLogger(cmd.ErrOrStderr(), logging.ParseLevel(level), format)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level, "format", format)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.File, "file", "f", defaultDocumentPath, "Path to the deployment document")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to the tool config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "Log format (text, json)")
	cmd.PersistentFlags().StringArrayVarP(&opts.Vars, "env", "e", nil, "Provided variable in name=value form, repeatable")
	cmd.PersistentFlags().StringArrayVar(&opts.EnvFiles, "env-file", nil, "Env file with provided variables, repeatable")

	cmd.AddCommand(
		newApplyCommand(opts),
		newPlanCommand(opts),
		newDestroyCommand(opts),
		newValidateCommand(opts),
		newGraphCommand(opts),
		newEncryptCommand(),
		newDecryptCommand(),
		newVersionCommand(),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command
// contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a
// default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo, "text")
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo, "text")
}
