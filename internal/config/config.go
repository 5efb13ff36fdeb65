// Package config manages ctcai configuration.
//
// The config file is YAML, found at the first of:
//   - $CTCAI_HOME/config.yaml
//   - $XDG_CONFIG_HOME/ctcai/config.yaml
//   - ~/.config/ctcai/config.yaml
//
// A missing file yields DefaultConfig. Fields absent from the file keep their
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ctc-ai/ctc_ai_ui/internal/browser"
)

// Config is the ctcai configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Window    WindowConfig    `yaml:"window"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Model     ModelConfig     `yaml:"model"`
	History   HistoryConfig   `yaml:"history"`
}

// AppConfig identifies the application.
type AppConfig struct {
	// Name is used as the logger name and window heading.
	Name string `yaml:"name" validate:"required"`
}

// WindowConfig holds the user-facing strings of the terminal views.
type WindowConfig struct {
	LoginTitle      string `yaml:"login_title" validate:"required"`
	LoginButtonText string `yaml:"login_button_text" validate:"required"`
	LoadingText     string `yaml:"loading_text"`
	WelcomeText     string `yaml:"welcome_text"`

	// Width caps the rendered view width. Zero means the terminal width.
	Width int `yaml:"width" validate:"min=0,max=1000"`
}

// WebSocketConfig configures the browser login handshake.
type WebSocketConfig struct {
	// Host is the interface the callback listener binds.
	// Default: localhost
	Host string `yaml:"host" validate:"required,hostname_rfc1123|ip"`

	// ConnectionTimeout is how long to wait for the browser, in seconds.
	// Default: 30
	ConnectionTimeout int `yaml:"connection_timeout" validate:"min=1,max=3600"`

	// AuthServerURL is the auth server base; the browser opens
	// {auth_server_url}/login?ws_port={port}.
	AuthServerURL string `yaml:"auth_server_url" validate:"required,url"`

	// TokenKey is the payload key carrying the token. Default: utoken
	TokenKey string `yaml:"token_key" validate:"required"`

	// StartPolicy applies when a login is started while one is running.
	StartPolicy string `yaml:"start_policy" validate:"oneof=reject reset restart"`

	// Browser selects how the login page is opened.
	Browser string `yaml:"browser" validate:"oneof=system chrome none"`
}

// Timeout returns ConnectionTimeout as a duration.
func (w WebSocketConfig) Timeout() time.Duration {
	return time.Duration(w.ConnectionTimeout) * time.Second
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Dir holds the daily log files. Relative paths are under DataDir.
	Dir        string `yaml:"log_dir" validate:"required"`
	FilePrefix string `yaml:"log_file_prefix" validate:"required"`

	ConsoleLevel string `yaml:"console_level" validate:"oneof=debug info warn error"`
	FileLevel    string `yaml:"file_level" validate:"oneof=debug info warn error"`

	// FileEnabled turns the daily log file on.
	FileEnabled bool `yaml:"file_enabled"`
}

// ModelConfig configures the local model store.
type ModelConfig struct {
	// Dir holds the model files and version.json. Relative paths are under
	// DataDir.
	Dir string `yaml:"model_dir" validate:"required"`

	// CheckDelay simulates the version server round trip.
	CheckDelay time.Duration `yaml:"check_delay" validate:"min=0"`

	// StepDelay is the pause between simulated download progress steps.
	StepDelay time.Duration `yaml:"step_delay" validate:"min=0"`
}

// HistoryConfig configures the login history database.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name: "CTC-AI-UI",
		},
		Window: WindowConfig{
			LoginTitle:      "CTC-AI",
			LoginButtonText: "Login",
			LoadingText:     "Loading...",
			WelcomeText:     "Welcome back!",
		},
		WebSocket: WebSocketConfig{
			Host:              "localhost",
			ConnectionTimeout: 30,
			AuthServerURL:     "http://localhost:8000",
			TokenKey:          "utoken",
			StartPolicy:       "reject",
			Browser:           "system",
		},
		Logging: LoggingConfig{
			Dir:          "logs",
			FilePrefix:   "app",
			ConsoleLevel: "info",
			FileLevel:    "debug",
			FileEnabled:  true,
		},
		Model: ModelConfig{
			Dir:        "models",
			CheckDelay: time.Second,
			StepDelay:  time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// HomeDir returns $CTCAI_HOME, or "" when unset.
func HomeDir() string {
	return strings.TrimSpace(os.Getenv("CTCAI_HOME"))
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	if home := HomeDir(); home != "" {
		return filepath.Join(home, "config.yaml")
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ctcai", "config.yaml")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "ctcai", "config.yaml")
	}
	return filepath.Join(homeDir, ".config", "ctcai", "config.yaml")
}

// DataDir returns the directory for logs, models and the history database.
func DataDir() string {
	if home := HomeDir(); home != "" {
		return home
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ctcai")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".local", "share", "ctcai")
	}
	return filepath.Join(homeDir, ".local", "share", "ctcai")
}

func resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(DataDir(), p)
}

// LogDir returns the absolute log directory.
func (c *Config) LogDir() string { return resolve(c.Logging.Dir) }

// ModelDir returns the absolute model directory.
func (c *Config) ModelDir() string { return resolve(c.Model.Dir) }

// Load reads the config from ConfigPath.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads and validates the config at path. A missing file yields
// the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to ConfigPath.
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo atomically writes the config to path with owner-only permissions.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ValidationError lists every invalid field.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "invalid config"
	}
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and the auth server URL guard.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		problems = append(problems, formatValidationErrors(verrs)...)
	}

	if c.WebSocket.AuthServerURL != "" {
		if err := browser.ValidateBaseURL(c.WebSocket.AuthServerURL); err != nil {
			problems = append(problems, "websocket.auth_server_url: "+err.Error())
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func formatValidationErrors(verrs validator.ValidationErrors) []string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Drop the root type name: "Config.websocket.host" -> "websocket.host".
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", ")))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", field))
		case "hostname_rfc1123|ip":
			msgs = append(msgs, fmt.Sprintf("%s must be a host name or IP address", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return msgs
}
