package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctc-ai/ctc_ai_ui/internal/auth"
	"github.com/ctc-ai/ctc_ai_ui/internal/coordinator"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in through the browser without the terminal UI",
	Long: `Open the login page in the browser and wait for it to hand the token
back over the local callback websocket.

Progress is written to stderr. With --print-token the token itself is the
only thing written to stdout, so it can be captured by scripts.

Examples:
  ctcai login
  ctcai login --browser none --timeout 2m
  TOKEN=$(ctcai login --print-token --skip-model)`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var (
	loginPrintToken bool
	loginTimeout    time.Duration
	loginBrowser    string
	loginSkipModel  bool
)

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().BoolVar(&loginPrintToken, "print-token", false, "print the token to stdout on success")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 0, "how long to wait for the browser (default from config)")
	loginCmd.Flags().StringVar(&loginBrowser, "browser", "", "system, chrome or none (default from config)")
	loginCmd.Flags().BoolVar(&loginSkipModel, "skip-model", false, "do not check or download the model after login")
}

// consoleView prints coordinator status updates as lines of text.
type consoleView struct {
	w       io.Writer
	last    string
	enabled bool
	token   string
}

var _ coordinator.View = (*consoleView)(nil)

func (v *consoleView) SetStatusText(text string) {
	if text == "" || text == v.last {
		return
	}
	v.last = text
	fmt.Fprintln(v.w, text)
}

func (v *consoleView) SetLoginButtonEnabled(enabled bool) {
	v.enabled = enabled
}

func (v *consoleView) LoginSucceeded(token string) {
	v.token = token
}

func runLogin(cmd *cobra.Command, args []string) error {
	env, err := commandEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	if cmd.Flags().Changed("timeout") {
		if loginTimeout <= 0 {
			return fmt.Errorf("--timeout must be positive")
		}
		env.cfg.WebSocket.ConnectionTimeout = int((loginTimeout + time.Second - 1) / time.Second)
	}
	browserName := env.cfg.WebSocket.Browser
	if cmd.Flags().Changed("browser") {
		browserName = loginBrowser
	}

	coord, err := env.newCoordinator(browserName, stderr)
	if err != nil {
		return err
	}
	defer coord.Close()

	view := &consoleView{w: stderr}
	coord.Bind(view)

	var outcome *coordinator.Outcome
	coord.OnOutcome(func(o coordinator.Outcome) {
		outcome = &o
	})

	if _, err := coord.Start(ctx); err != nil {
		return fmt.Errorf("start login: %w", err)
	}

	// Events are dispatched on this goroutine only. An interrupt cancels the
	// attempt; the loop still waits for its Cancelled outcome.
	done := ctx.Done()
	for outcome == nil {
		select {
		case <-coord.Ready():
			coord.Drain()
		case <-done:
			coord.CancelCurrent()
			done = nil
		}
	}

	if !outcome.Succeeded() {
		if outcome.Err != nil {
			return fmt.Errorf("login %s: %w", outcome.Status, outcome.Err)
		}
		return fmt.Errorf("login %s", outcome.Status)
	}

	user, err := auth.PassthroughVerifier{}.Verify(ctx, view.token)
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	fmt.Fprintf(stderr, "Logged in as %s (token %s)\n", user.Subject, user.Fingerprint)

	if !loginSkipModel {
		if err := syncModel(ctx, env, stderr); err != nil {
			return err
		}
	}

	if loginPrintToken {
		fmt.Fprintln(cmd.OutOrStdout(), view.token)
	}
	return nil
}
