package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// stillFrame stands in for the animation under reduced motion.
const stillFrame = "[...]"

// Spinner is the activity indicator shown next to the login status while an
// attempt is running. A nil *Spinner renders nothing.
type Spinner struct {
	anim   spinner.Model
	label  string
	tint   lipgloss.Style
	frozen bool
}

// NewSpinner builds a spinner using frames. color tints both the frames and
// the label unless d.NoColor is set.
func NewSpinner(d Display, frames spinner.Spinner, color lipgloss.TerminalColor) *Spinner {
	anim := spinner.New(spinner.WithSpinner(frames))
	tint := lipgloss.NewStyle()
	if color != nil && !d.NoColor {
		tint = tint.Foreground(color)
		anim.Style = tint
	}
	return &Spinner{anim: anim, tint: tint, frozen: d.ReduceMotion}
}

// Animated reports whether the spinner consumes tick messages.
func (s *Spinner) Animated() bool {
	return s != nil && !s.frozen
}

// Tick starts the animation. It is nil when the spinner is frozen.
func (s *Spinner) Tick() tea.Cmd {
	if !s.Animated() {
		return nil
	}
	return s.anim.Tick
}

func (s *Spinner) Update(msg tea.Msg) (*Spinner, tea.Cmd) {
	tick, ok := msg.(spinner.TickMsg)
	if !ok || !s.Animated() {
		return s, nil
	}
	var cmd tea.Cmd
	s.anim, cmd = s.anim.Update(tick)
	return s, cmd
}

func (s *Spinner) SetLabel(label string) {
	if s != nil {
		s.label = label
	}
}

func (s *Spinner) View() string {
	if s == nil {
		return ""
	}
	frame := stillFrame
	if !s.frozen {
		frame = s.anim.View()
	}
	if s.label == "" {
		return frame
	}
	return frame + " " + s.tint.Render(s.label)
}
