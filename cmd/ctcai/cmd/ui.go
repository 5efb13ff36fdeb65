package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/ctc-ai/ctc_ai_ui/internal/auth"
	"github.com/ctc-ai/ctc_ai_ui/internal/config"
	"github.com/ctc-ai/ctc_ai_ui/internal/tui"
	"github.com/ctc-ai/ctc_ai_ui/internal/watcher"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the terminal UI",
	Long: `Open the terminal UI: log in through the browser, load the model, and
show the signed-in view.

Edits to the config file are picked up while the UI runs and apply to the
next login attempt.`,
	Args: cobra.NoArgs,
	RunE: runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

func runUI(cmd *cobra.Command, args []string) error {
	// Console logs would draw over the UI; the log file still gets them.
	env, err := loadApp(nil)
	if err != nil {
		return err
	}
	defer env.Close()
	logger := env.logger

	// The login view shows the URL itself, so a print opener stays quiet.
	coord, err := env.newCoordinator(env.cfg.WebSocket.Browser, io.Discard)
	if err != nil {
		return err
	}
	defer coord.Close()

	opts := tui.Options{
		AppName:  env.cfg.App.Name,
		Window:   env.cfg.Window,
		Login:    coord,
		Verifier: auth.PassthroughVerifier{},
		Models:   env.modelManager(),
		Logger:   logger,
		OnReload: func(cfg *config.Config) error {
			s, err := settingsFrom(cfg)
			if err != nil {
				return err
			}
			return coord.Reconfigure(s)
		},
	}

	w, err := watcher.New(env.cfgPath)
	if err != nil {
		logger.Warn("config hot reload disabled", "path", env.cfgPath, "error", err)
	} else {
		defer w.Close()
		opts.Reloads = w.Events()
		go func() {
			for err := range w.Errors() {
				logger.Warn("config reload failed", "path", w.Path(), "error", err)
			}
		}()
	}

	logger.Info("ui started", "run_id", coord.RunID())
	return tui.Run(cmd.Context(), opts)
}
