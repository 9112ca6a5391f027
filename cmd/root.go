// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/naka-gawa/contrib-stats/internal/config"
	"github.com/spf13/cobra"
)

// errReported marks a failure whose details were already printed.
var errReported = errors.New("lookup failed")

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "contrib-stats",
		Short: "A CLI tool to tabulate a user's contributions on GitHub and Discourse.",
		Long: `contrib-stats counts a single user's historical activity and prints a summary:
pull requests, reviews, commits, issues and commented threads in a GitHub
repository, or topics, replies, likes and solutions on a Discourse forum.

Run a subcommand without --user to look up several users interactively.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML or TOML config file")

	rootCmd.AddCommand(newGitHubCmd())
	rootCmd.AddCommand(newDiscourseCmd())
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

// setup builds the logger from --verbose and loads the configuration from --config.
func setup(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := log.New(io.Discard, "", log.LstdFlags) // Default: discard all logs.
	if verbose {
		logger.SetOutput(cmd.ErrOrStderr()) // If verbose, log to standard error.
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// overrideString replaces *dst with the flag value when the flag was given.
func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}
