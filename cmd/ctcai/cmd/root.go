// Package cmd implements the CLI commands for ctcai.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ctcai",
	Short: "Terminal client for CTC-AI",
	Long: `ctcai signs you in through the browser and keeps the local model current.

Run without a subcommand to open the terminal UI. When stdout is not a
terminal, ctcai runs the plain console login instead.

Examples:
  # Open the terminal UI
  ctcai

  # Log in from a script and print the token
  ctcai login --print-token

  # Show the last attempts
  ctcai history --limit 10`,
	SilenceUsage: true,
	RunE:         runDefault,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default $CTCAI_HOME/config.yaml or ~/.config/ctcai/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on the console")
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func runDefault(cmd *cobra.Command, args []string) error {
	if isInteractive() {
		return runUI(cmd, args)
	}
	return runLogin(cmd, args)
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}
