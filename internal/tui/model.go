// Package tui provides the terminal user interface for ctcai: a login view
// driving the browser handshake, a model loading view and the signed-in
// user view.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/ctc-ai/ctc_ai_ui/internal/auth"
	"github.com/ctc-ai/ctc_ai_ui/internal/config"
	"github.com/ctc-ai/ctc_ai_ui/internal/coordinator"
	"github.com/ctc-ai/ctc_ai_ui/internal/watcher"
)

// viewState represents the current view/mode of the TUI.
type viewState int

const (
	stateLogin viewState = iota
	stateVerifying
	stateLoading
	stateUser
)

// LoginService is the part of the login coordinator the TUI drives.
type LoginService interface {
	Start(ctx context.Context) (*coordinator.Handle, error)
	CancelCurrent() bool
	Ready() <-chan struct{}
	Poll() []coordinator.Event
}

var _ LoginService = (*coordinator.Coordinator)(nil)

// ModelLoader brings the local model up to date, reporting percentages.
type ModelLoader interface {
	Load(ctx context.Context, progress func(int)) error
	ModelPath() string
}

// Options wires the TUI to its collaborators.
type Options struct {
	AppName  string
	Window   config.WindowConfig
	Login    LoginService
	Verifier auth.Verifier
	Models   ModelLoader

	// Reloads delivers hot-reloaded configs; OnReload applies them to the
	// login coordinator. Both are optional.
	Reloads  <-chan watcher.Event
	OnReload func(*config.Config) error

	Logger *slog.Logger
}

// Model is the main Bubble Tea model for the ctcai TUI.
type Model struct {
	ctx  context.Context
	opts Options

	// View state
	width    int
	height   int
	state    viewState
	showHelp bool

	// Login view, fed by coordinator status updates
	statusText    string
	statusErr     bool
	loginURL      string
	listening     bool
	buttonEnabled bool

	// Loading view
	progress *Progress
	loadErr  error

	// User view
	user      auth.UserInfo
	modelPath string

	// UI components
	keys    keyMap
	styles  Styles
	spinner *Spinner

	// Status bar message
	statusMsg string
}

// New creates a TUI model. ctx bounds every background command.
func New(ctx context.Context, opts Options) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Verifier == nil {
		opts.Verifier = auth.PassthroughVerifier{}
	}
	if opts.AppName == "" {
		opts.AppName = config.DefaultConfig().App.Name
	}
	defaults := config.DefaultConfig().Window
	if opts.Window.LoginTitle == "" {
		opts.Window.LoginTitle = defaults.LoginTitle
	}
	if opts.Window.LoginButtonText == "" {
		opts.Window.LoginButtonText = defaults.LoginButtonText
	}

	display := DisplayFromEnv()
	styles := DefaultStyles()
	if display.NoColor {
		styles = PlainStyles()
	}

	return Model{
		ctx:           ctx,
		opts:          opts,
		state:         stateLogin,
		buttonEnabled: true,
		progress:      NewProgress(display, defaultBarWidth),
		keys:          defaultKeyMap(),
		styles:        styles,
		spinner:       NewSpinner(display, spinner.Line, colorYellow),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForLoginEvents(m.ctx, m.opts.Login),
		waitForReload(m.ctx, m.opts.Reloads),
		m.spinner.Tick(),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Resize(max(10, min(60, m.contentWidth()-6)))
		return m, nil

	case loginEventsMsg:
		var cmds []tea.Cmd
		for _, ev := range msg.events {
			cmds = append(cmds, m.applyLoginEvent(ev))
		}
		cmds = append(cmds, waitForLoginEvents(m.ctx, m.opts.Login))
		return m, tea.Batch(cmds...)

	case verifiedMsg:
		return m.handleVerified(msg)

	case modelProgressMsg:
		var cmd tea.Cmd
		if msg.percent >= 0 {
			cmd = m.progress.Set(float64(msg.percent) / 100)
		}
		return m, tea.Batch(cmd, waitForModel(msg.stream))

	case modelLoadedMsg:
		if msg.err != nil {
			m.loadErr = msg.err
			return m, nil
		}
		m.state = stateUser
		m.modelPath = m.opts.Models.ModelPath()
		return m, nil

	case configReloadedMsg:
		return m.handleReload(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.progress, cmd = m.progress.Update(msg)
	return m, cmd
}

// handleKeyPress processes keyboard input.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.opts.Login != nil {
			m.opts.Login.CancelCurrent()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	}

	switch m.state {
	case stateLogin:
		switch {
		case key.Matches(msg, m.keys.Login):
			return m.startLogin()
		case key.Matches(msg, m.keys.Cancel):
			if m.opts.Login != nil && m.opts.Login.CancelCurrent() {
				m.statusMsg = "Cancelling login..."
			}
			return m, nil
		}

	case stateLoading:
		if key.Matches(msg, m.keys.Retry) && m.loadErr != nil {
			return m.startModelLoad()
		}

	case stateUser:
		if key.Matches(msg, m.keys.Logout) {
			m.opts.Logger.Info("logged out", "action", "logout", "token_fp", m.user.Fingerprint)
			m.resetLogin()
			m.statusMsg = "Logged out"
			return m, nil
		}
	}

	return m, nil
}

func (m Model) startLogin() (tea.Model, tea.Cmd) {
	if !m.buttonEnabled || m.opts.Login == nil {
		return m, nil
	}

	m.statusMsg = ""
	_, err := m.opts.Login.Start(m.ctx)
	switch {
	case err == nil:
		m.buttonEnabled = false
		m.statusErr = false
	case errors.Is(err, coordinator.ErrAlreadyInProgress):
		m.statusMsg = "Login already in progress"
	case errors.Is(err, coordinator.ErrAttemptReset):
		m.resetLogin()
		m.statusMsg = "Login reset, press enter to try again"
	default:
		m.opts.Logger.Error("login start failed", "action", "start", "error", err)
		m.statusText = "Error: " + err.Error()
		m.statusErr = true
		m.buttonEnabled = true
	}
	return m, nil
}

// applyLoginEvent mirrors the coordinator's View callbacks: status text,
// button enablement and the success notification.
func (m *Model) applyLoginEvent(ev coordinator.Event) tea.Cmd {
	switch ev.Kind {
	case coordinator.EventStatus:
		st := ev.Status
		m.statusText = st.Text
		m.buttonEnabled = st.ButtonEnabled
		m.listening = !st.Status.Terminal()
		m.statusErr = st.Status == coordinator.StatusFailed
		if st.Status.Terminal() {
			m.loginURL = ""
		} else if st.LoginURL != "" {
			m.loginURL = st.LoginURL
		}
		return nil

	case coordinator.EventOutcome:
		if !ev.Outcome.Succeeded() {
			return nil
		}
		m.state = stateVerifying
		m.statusMsg = ""
		return verifyToken(m.ctx, m.opts.Verifier, ev.Outcome.Token)
	}
	return nil
}

func (m Model) handleVerified(msg verifiedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.opts.Logger.Warn("token verification failed", "action", "verify", "error", msg.err)
		m.resetLogin()
		m.statusText = "Verification failed: " + msg.err.Error()
		m.statusErr = true
		return m, nil
	}

	m.user = msg.user
	m.opts.Logger.Info("token verified", "action", "verify", "token_fp", msg.user.Fingerprint)
	if m.opts.Models == nil {
		m.state = stateUser
		return m, nil
	}
	return m.startModelLoad()
}

func (m Model) startModelLoad() (tea.Model, tea.Cmd) {
	m.state = stateLoading
	m.loadErr = nil
	cmd := m.progress.Set(0)
	return m, tea.Batch(cmd, loadModel(m.ctx, m.opts.Models))
}

func (m Model) handleReload(msg configReloadedMsg) (tea.Model, tea.Cmd) {
	cfg := msg.event.Config
	next := waitForReload(m.ctx, m.opts.Reloads)
	if cfg == nil {
		return m, next
	}

	m.opts.Window = cfg.Window
	m.opts.AppName = cfg.App.Name
	m.statusMsg = "Settings reloaded, applied to the next login"
	if m.opts.OnReload != nil {
		if err := m.opts.OnReload(cfg); err != nil {
			m.opts.Logger.Warn("apply reloaded config failed", "path", msg.event.Path, "error", err)
			m.statusMsg = "Reload failed: " + err.Error()
		}
	}
	return m, next
}

// resetLogin returns to an idle login view.
func (m *Model) resetLogin() {
	m.state = stateLogin
	m.user = auth.UserInfo{}
	m.modelPath = ""
	m.loadErr = nil
	m.statusText = ""
	m.statusErr = false
	m.loginURL = ""
	m.listening = false
	m.buttonEnabled = true
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.helpView()
	}

	var body string
	switch m.state {
	case stateVerifying:
		body = m.spinnerLine("Verifying login...")
	case stateLoading:
		body = m.loadingView()
	case stateUser:
		body = m.userView()
	default:
		body = m.loginView()
	}

	header := m.styles.Header.Render(m.opts.AppName)
	content := lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.styles.Panel.Width(m.contentWidth()-2).Render(body),
	)

	status := m.renderStatusBar()
	availableHeight := m.height - lipgloss.Height(content) - lipgloss.Height(status)
	if availableHeight > 0 {
		content = lipgloss.JoinVertical(lipgloss.Left,
			content,
			lipgloss.NewStyle().Height(availableHeight).Render(""),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, content, status)
}

// contentWidth is the terminal width, capped by the configured window width.
func (m Model) contentWidth() int {
	w := m.width
	if m.opts.Window.Width > 0 && m.opts.Window.Width < w {
		w = m.opts.Window.Width
	}
	return max(w, 20)
}

// innerWidth is the text width inside the panel.
func (m Model) innerWidth() int {
	return max(m.contentWidth()-8, 10)
}

func (m Model) loginView() string {
	button := m.styles.ButtonDisabled
	if m.buttonEnabled {
		button = m.styles.Button
	}

	lines := []string{
		m.styles.Title.Render(m.opts.Window.LoginTitle),
		"",
		button.Render(m.opts.Window.LoginButtonText),
		"",
	}

	switch {
	case m.statusText == "":
	case m.statusErr:
		lines = append(lines, m.styles.Error.Render(m.truncate(m.statusText)))
	case m.listening:
		lines = append(lines, m.spinnerLine(m.statusText))
	default:
		lines = append(lines, m.styles.Status.Render(m.truncate(m.statusText)))
	}

	if m.loginURL != "" {
		lines = append(lines,
			m.styles.Muted.Render("If the browser did not open, visit:"),
			m.styles.URL.Render(m.truncate(m.loginURL)),
		)
	}
	return strings.Join(lines, "\n")
}

func (m Model) loadingView() string {
	text := m.opts.Window.LoadingText
	if text == "" {
		text = "Loading..."
	}

	lines := []string{
		m.styles.Title.Render(text),
		"",
		m.progress.View(),
	}
	if m.loadErr != nil {
		lines = append(lines, "",
			m.styles.Error.Render(m.truncate("Model load failed: "+m.loadErr.Error())),
			m.styles.Muted.Render("Press r to retry."),
		)
	}
	return strings.Join(lines, "\n")
}

func (m Model) userView() string {
	welcome := m.opts.Window.WelcomeText
	if welcome == "" {
		welcome = "Welcome back!"
	}

	lines := []string{m.styles.Success.Render(welcome), ""}
	if m.user.Subject != "" {
		lines = append(lines, "Signed in as "+m.user.Subject)
	}
	if m.user.Fingerprint != "" {
		lines = append(lines, m.styles.Muted.Render("Token "+m.user.Fingerprint))
	}
	if m.modelPath != "" {
		lines = append(lines, m.styles.Muted.Render(m.truncate("Model "+m.modelPath)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) spinnerLine(text string) string {
	m.spinner.SetLabel(m.truncate(text))
	return m.spinner.View()
}

func (m Model) truncate(s string) string {
	return ansi.Truncate(s, m.innerWidth(), "…")
}

// renderStatusBar renders the bottom status bar.
func (m Model) renderStatusBar() string {
	var bindings []key.Binding
	switch m.state {
	case stateLogin:
		bindings = []key.Binding{m.keys.Login, m.keys.Cancel}
	case stateLoading:
		if m.loadErr != nil {
			bindings = []key.Binding{m.keys.Retry}
		}
	case stateUser:
		bindings = []key.Binding{m.keys.Logout}
	}
	bindings = append(bindings, m.keys.Help, m.keys.Quit)

	var parts []string
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, m.styles.StatusKey.Render(h.Key)+m.styles.StatusText.Render(" "+h.Desc))
	}
	left := strings.Join(parts, "  ")

	if m.statusMsg != "" {
		left = m.styles.StatusText.Render(m.statusMsg)
	}

	return m.styles.StatusBar.Width(m.width).Render(ansi.Truncate(left, max(m.width-2, 1), "…"))
}

// helpView renders the help screen.
func (m Model) helpView() string {
	var b strings.Builder
	b.WriteString("Keyboard Shortcuts\n==================\n")
	for _, group := range m.keys.FullHelp() {
		b.WriteString("\n")
		for _, binding := range group {
			h := binding.Help()
			fmt.Fprintf(&b, "  %-8s%s\n", h.Key, h.Desc)
		}
	}
	b.WriteString("\nPress any key to return...\n")
	return m.styles.Help.Render(b.String())
}

// Run starts the TUI application and blocks until it exits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(New(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
