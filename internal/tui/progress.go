package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// defaultBarWidth is used until the first window size arrives.
const defaultBarWidth = 40

// Progress is the model download bar. Values are fractions in [0, 1].
// A nil *Progress renders nothing.
type Progress struct {
	bar    progress.Model
	value  float64
	frozen bool
}

// NewProgress builds a bar of the given width. Without color it draws solid
// and shaded blocks; under reduced motion it jumps straight to each value.
func NewProgress(d Display, width int) *Progress {
	var bar progress.Model
	if d.NoColor {
		bar = progress.New(progress.WithoutPercentage(), progress.WithFillCharacters('█', '░'))
		bar.FullColor, bar.EmptyColor = "", ""
	} else {
		bar = progress.New(progress.WithoutPercentage(),
			progress.WithGradient(string(colorPurple), string(colorGreen)))
	}
	if width <= 0 {
		width = defaultBarWidth
	}
	bar.Width = width
	return &Progress{bar: bar, frozen: d.ReduceMotion}
}

// Set moves the bar to fraction and returns the animation command, if any.
func (p *Progress) Set(fraction float64) tea.Cmd {
	if p == nil {
		return nil
	}
	p.value = max(0, min(1, fraction))
	cmd := p.bar.SetPercent(p.value)
	if p.frozen {
		return nil
	}
	return cmd
}

func (p *Progress) Value() float64 {
	if p == nil {
		return 0
	}
	return p.value
}

// Update forwards animation frames to the bar.
func (p *Progress) Update(msg tea.Msg) (*Progress, tea.Cmd) {
	frame, ok := msg.(progress.FrameMsg)
	if p == nil || !ok {
		return p, nil
	}
	next, cmd := p.bar.Update(frame)
	p.bar = next.(progress.Model)
	return p, cmd
}

// Resize ignores non-positive widths.
func (p *Progress) Resize(width int) {
	if p != nil && width > 0 {
		p.bar.Width = width
	}
}

func (p *Progress) Width() int {
	if p == nil {
		return 0
	}
	return p.bar.Width
}

// View renders the bar followed by a right-aligned percentage.
func (p *Progress) View() string {
	if p == nil {
		return ""
	}
	bar := p.bar.View()
	if p.frozen {
		bar = p.bar.ViewAs(p.value)
	}
	label := lipgloss.NewStyle().Width(5).Align(lipgloss.Right).Render(percentLabel(p.value))
	return bar + label
}

func percentLabel(fraction float64) string {
	f := max(0, min(1, fraction))
	return fmt.Sprintf("%d%%", int(f*100+0.5))
}
