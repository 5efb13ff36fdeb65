package coordinator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ctc-ai/ctc_ai_ui/internal/browser"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(opener browser.Opener) Config {
	cfg := DefaultConfig()
	cfg.ListenHost = "127.0.0.1"
	cfg.Timeout = 5 * time.Second
	cfg.TeardownGrace = 500 * time.Millisecond
	cfg.Opener = opener
	cfg.Logger = discardLogger()
	return cfg
}

// noopOpener stands in for a user who never finishes the login.
var noopOpener = browser.OpenerFunc(func(context.Context, string) error { return nil })

// peerOpener plays the login page: it connects back to the callback listener
// named in the login URL and hands the connection to fn on its own goroutine.
func peerOpener(t *testing.T, header http.Header, fn func(conn *websocket.Conn)) browser.Opener {
	t.Helper()
	return browser.OpenerFunc(func(_ context.Context, loginURL string) error {
		port, err := browser.CallbackPort(loginURL)
		if err != nil {
			return err
		}
		go func() {
			conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/", port), header)
			if err != nil {
				t.Errorf("dial callback listener: %v", err)
				return
			}
			defer conn.Close()
			fn(conn)
		}()
		return nil
	})
}

// sendFrames writes each frame as a text message, then waits for the
// server to close the connection. Write errors are expected once the
// server has accepted a token.
func sendFrames(frames ...string) func(conn *websocket.Conn) {
	return func(conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

// eventLog accumulates queued events in order.
type eventLog struct {
	mu     sync.Mutex
	c      *Coordinator
	events []Event
	cursor int
}

func newEventLog(c *Coordinator) *eventLog {
	return &eventLog{c: c}
}

// waitFor returns the next event after the previous match that satisfies
// pred, failing the test after timeout.
func (l *eventLog) waitFor(t *testing.T, timeout time.Duration, pred func(Event) bool) Event {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		l.mu.Lock()
		l.events = append(l.events, l.c.Poll()...)
		for i := l.cursor; i < len(l.events); i++ {
			if pred(l.events[i]) {
				l.cursor = i + 1
				ev := l.events[i]
				l.mu.Unlock()
				return ev
			}
		}
		l.mu.Unlock()

		select {
		case <-l.c.Ready():
		case <-deadline.C:
			t.Fatalf("no matching event within %s; got %d events", timeout, len(l.snapshot()))
			return Event{}
		}
	}
}

func (l *eventLog) waitOutcome(t *testing.T, timeout time.Duration) Outcome {
	t.Helper()
	return l.waitFor(t, timeout, func(ev Event) bool { return ev.Kind == EventOutcome }).Outcome
}

func (l *eventLog) waitStatus(t *testing.T, timeout time.Duration, status Status) StatusUpdate {
	t.Helper()
	return l.waitFor(t, timeout, func(ev Event) bool {
		return ev.Kind == EventStatus && ev.Status.Status == status
	}).Status
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, l.c.Poll()...)
	return append([]Event(nil), l.events...)
}

// outcomes returns all outcome events seen so far.
func (l *eventLog) outcomes() []Outcome {
	var out []Outcome
	for _, ev := range l.snapshot() {
		if ev.Kind == EventOutcome {
			out = append(out, ev.Outcome)
		}
	}
	return out
}

// stallingOpener blocks for d regardless of its context, like a browser
// that takes its time to launch.
func stallingOpener(d time.Duration) browser.Opener {
	return browser.OpenerFunc(func(context.Context, string) error {
		time.Sleep(d)
		return nil
	})
}
