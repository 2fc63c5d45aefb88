// Package cli provides the command-line interface for localgenius.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/localgenius/internal/app"
	"github.com/raphaelgruber/localgenius/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error

	// a is built in PersistentPreRunE for every command that touches jobs.
	a *app.App
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "localgenius",
	Short: "Local coding agent with resumable jobs",
	Long: `Localgenius turns a task into a short plan of coding steps, writes and runs
code for each step, and records every step as it happens.

Jobs survive restarts: a paused or interrupted job resumes from its first
unfinished step, and any single step can be retried.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, level, verbose)
		slog.SetDefault(logger)

		var err error
		a, err = app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		return nil
	},
}

// Execute runs the root command, then waits for background steps and closes
// storage whether or not the command failed.
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if a != nil {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close storage: %v\n", closeErr)
		}
	}
	if closeLog != nil {
		_ = closeLog()
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
}
