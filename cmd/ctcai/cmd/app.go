package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ctc-ai/ctc_ai_ui/internal/browser"
	"github.com/ctc-ai/ctc_ai_ui/internal/config"
	"github.com/ctc-ai/ctc_ai_ui/internal/coordinator"
	"github.com/ctc-ai/ctc_ai_ui/internal/db"
	"github.com/ctc-ai/ctc_ai_ui/internal/logging"
	"github.com/ctc-ai/ctc_ai_ui/internal/model"
)

// appEnv is what every command builds from the config file: the config
// itself, the process logger and, when enabled, the history store.
type appEnv struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger
	history *db.DB

	closers []func()
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.ConfigPath()
}

// loadApp reads the config and builds the logger. console receives text
// logs; nil keeps the console clean for the TUI.
func loadApp(console io.Writer) (*appEnv, error) {
	path := resolveConfigPath()
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := newLogger(cfg, console)
	if err != nil {
		return nil, err
	}

	env := &appEnv{cfg: cfg, cfgPath: path, logger: logger}
	env.closers = append(env.closers, closeLog)
	logger.Debug("config loaded", "path", path)
	return env, nil
}

func newLogger(cfg *config.Config, console io.Writer) (*slog.Logger, func(), error) {
	consoleLevel, err := logging.ParseLevel(cfg.Logging.ConsoleLevel)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		consoleLevel = slog.LevelDebug
	}
	fileLevel, err := logging.ParseLevel(cfg.Logging.FileLevel)
	if err != nil {
		return nil, nil, err
	}

	logger, cleanup, err := logging.New(logging.Options{
		Console:      console,
		ConsoleLevel: consoleLevel,
		FileEnabled:  cfg.Logging.FileEnabled,
		Dir:          cfg.LogDir(),
		Prefix:       cfg.Logging.FilePrefix,
		FileLevel:    fileLevel,
	})
	if err != nil {
		return nil, nil, err
	}
	return logger.With("app", cfg.App.Name), cleanup, nil
}

// openHistory opens the history store when enabled. A store that cannot be
// opened is logged and skipped; history never blocks a login.
func (e *appEnv) openHistory() *db.DB {
	if e.history != nil || !e.cfg.History.Enabled {
		return e.history
	}
	h, err := db.Open()
	if err != nil {
		e.logger.Warn("login history unavailable", "error", err)
		return nil
	}
	e.history = h
	e.closers = append(e.closers, func() { _ = h.Close() })
	return h
}

// Close releases everything in reverse order of acquisition.
func (e *appEnv) Close() {
	if e == nil {
		return
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// settingsFrom maps the websocket section onto coordinator settings.
func settingsFrom(cfg *config.Config) (coordinator.Settings, error) {
	policy, err := coordinator.ParseStartPolicy(cfg.WebSocket.StartPolicy)
	if err != nil {
		return coordinator.Settings{}, err
	}
	return coordinator.Settings{
		ListenHost:  cfg.WebSocket.Host,
		Timeout:     cfg.WebSocket.Timeout(),
		AuthBaseURL: cfg.WebSocket.AuthServerURL,
		TokenKey:    cfg.WebSocket.TokenKey,
		Policy:      policy,
	}, nil
}

// newCoordinator builds the login coordinator for env. The opener is chosen
// by browserName, and promptOut receives the URL when no browser is opened.
func (e *appEnv) newCoordinator(browserName string, promptOut io.Writer) (*coordinator.Coordinator, error) {
	s, err := settingsFrom(e.cfg)
	if err != nil {
		return nil, err
	}
	if err := browser.ValidateBaseURL(s.AuthBaseURL); err != nil {
		return nil, fmt.Errorf("auth_server_url: %w", err)
	}
	opener, err := browser.ParseOpener(browserName, promptOut, e.logger)
	if err != nil {
		return nil, err
	}

	cfg := coordinator.DefaultConfig()
	cfg.ListenHost = s.ListenHost
	cfg.Timeout = s.Timeout
	cfg.AuthBaseURL = s.AuthBaseURL
	cfg.TokenKey = s.TokenKey
	cfg.Policy = s.Policy
	cfg.Opener = opener
	cfg.Logger = e.logger
	if h := e.openHistory(); h != nil {
		cfg.Recorder = h
	}
	return coordinator.New(cfg), nil
}

func (e *appEnv) modelManager() *model.Manager {
	dir := e.cfg.ModelDir()
	return model.NewManager(model.Options{
		Dir:        dir,
		Source:     model.StaticSource{Delay: e.cfg.Model.CheckDelay},
		Downloader: model.SimulatedDownloader{Dir: dir, StepDelay: e.cfg.Model.StepDelay},
		Logger:     e.logger.With("component", "model"),
	})
}

// commandEnv is loadApp with console logs on the command's stderr.
func commandEnv(cmd *cobra.Command) (*appEnv, error) {
	return loadApp(cmd.ErrOrStderr())
}
