package tui

import "github.com/charmbracelet/lipgloss"

// Color palette - Dracula theme inspired.
var (
	colorPurple   = lipgloss.Color("#bd93f9")
	colorGreen    = lipgloss.Color("#50fa7b")
	colorYellow   = lipgloss.Color("#f1fa8c")
	colorCyan     = lipgloss.Color("#8be9fd")
	colorRed      = lipgloss.Color("#ff5555")
	colorWhite    = lipgloss.Color("#f8f8f2")
	colorGray     = lipgloss.Color("#6272a4")
	colorDarkGray = lipgloss.Color("#44475a")
)

// Styles holds all the lipgloss styles for the TUI.
type Styles struct {
	Header lipgloss.Style
	Title  lipgloss.Style

	// Login button
	Button         lipgloss.Style
	ButtonDisabled lipgloss.Style

	// Attempt status
	Status  lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	URL     lipgloss.Style
	Muted   lipgloss.Style

	// Status bar styles
	StatusBar  lipgloss.Style
	StatusKey  lipgloss.Style
	StatusText lipgloss.Style

	// Help screen
	Help lipgloss.Style

	// Framed panel for each window
	Panel lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPurple).
			MarginBottom(1),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite),

		Button: lipgloss.NewStyle().
			Padding(0, 3).
			Bold(true).
			Foreground(colorWhite).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple),

		ButtonDisabled: lipgloss.NewStyle().
			Padding(0, 3).
			Foreground(colorGray).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDarkGray),

		Status: lipgloss.NewStyle().
			Foreground(colorYellow),

		Success: lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(colorRed),

		URL: lipgloss.NewStyle().
			Foreground(colorCyan).
			Underline(true),

		Muted: lipgloss.NewStyle().
			Foreground(colorGray),

		StatusBar: lipgloss.NewStyle().
			Padding(0, 1).
			Background(colorDarkGray).
			Foreground(colorWhite),

		StatusKey: lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true),

		StatusText: lipgloss.NewStyle().
			Foreground(colorGray),

		Help: lipgloss.NewStyle().
			Padding(2, 4).
			Foreground(colorWhite),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple).
			Padding(1, 2),
	}
}

// PlainStyles keeps layout but drops every color, for NO_COLOR terminals.
func PlainStyles() Styles {
	bordered := lipgloss.NewStyle().Border(lipgloss.NormalBorder())
	return Styles{
		Header:         lipgloss.NewStyle().Bold(true).MarginBottom(1),
		Title:          lipgloss.NewStyle().Bold(true),
		Button:         bordered.Padding(0, 3).Bold(true),
		ButtonDisabled: bordered.Padding(0, 3).Faint(true),
		Status:         lipgloss.NewStyle(),
		Success:        lipgloss.NewStyle().Bold(true),
		Error:          lipgloss.NewStyle(),
		URL:            lipgloss.NewStyle(),
		Muted:          lipgloss.NewStyle(),
		StatusBar:      lipgloss.NewStyle().Padding(0, 1),
		StatusKey:      lipgloss.NewStyle().Bold(true),
		StatusText:     lipgloss.NewStyle(),
		Help:           lipgloss.NewStyle().Padding(2, 4),
		Panel:          bordered.Padding(1, 2),
	}
}
