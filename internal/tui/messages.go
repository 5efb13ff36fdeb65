package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ctc-ai/ctc_ai_ui/internal/auth"
	"github.com/ctc-ai/ctc_ai_ui/internal/coordinator"
	"github.com/ctc-ai/ctc_ai_ui/internal/watcher"
)

// loginEventsMsg carries events drained from the coordinator queue.
type loginEventsMsg struct {
	events []coordinator.Event
}

type verifiedMsg struct {
	user auth.UserInfo
	err  error
}

type modelProgressMsg struct {
	percent int
	stream  <-chan tea.Msg
}

type modelLoadedMsg struct {
	err error
}

type configReloadedMsg struct {
	event watcher.Event
}

// waitForLoginEvents blocks until the coordinator signals pending events,
// then takes them all. The UI re-arms it after every delivery, so events
// are consumed only on the bubbletea goroutine and in queue order.
func waitForLoginEvents(ctx context.Context, login LoginService) tea.Cmd {
	if login == nil {
		return nil
	}
	return func() tea.Msg {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-login.Ready():
				if events := login.Poll(); len(events) > 0 {
					return loginEventsMsg{events: events}
				}
			}
		}
	}
}

func waitForReload(ctx context.Context, reloads <-chan watcher.Event) tea.Cmd {
	if reloads == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-reloads:
			if !ok {
				return nil
			}
			return configReloadedMsg{event: e}
		}
	}
}

func verifyToken(ctx context.Context, v auth.Verifier, token string) tea.Cmd {
	return func() tea.Msg {
		user, err := v.Verify(ctx, token)
		return verifiedMsg{user: user, err: err}
	}
}

// loadModel runs the loader on its own goroutine and streams progress back
// one message at a time.
func loadModel(ctx context.Context, loader ModelLoader) tea.Cmd {
	return func() tea.Msg {
		stream := make(chan tea.Msg, 16)
		go func() {
			defer close(stream)
			send := func(msg tea.Msg) {
				select {
				case stream <- msg:
				case <-ctx.Done():
				}
			}
			err := loader.Load(ctx, func(pct int) {
				send(modelProgressMsg{percent: pct, stream: stream})
			})
			send(modelLoadedMsg{err: err})
		}()
		return waitForModel(stream)()
	}
}

func waitForModel(stream <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-stream
		if !ok {
			return nil
		}
		return msg
	}
}
