package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStartPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    StartPolicy
		wantErr bool
	}{
		{"", PolicyReject, false},
		{"reject", PolicyReject, false},
		{" RESET ", PolicyReset, false},
		{"restart", PolicyRestart, false},
		{"queue", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStartPolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{Opener: noopOpener, Logger: discardLogger()})

	s := c.Settings()
	assert.Equal(t, "localhost", s.ListenHost)
	assert.Equal(t, 30*time.Second, s.Timeout)
	assert.Equal(t, "http://localhost:8000", s.AuthBaseURL)
	assert.Equal(t, "utoken", s.TokenKey)
	assert.Equal(t, PolicyReject, s.Policy)
	assert.Len(t, c.RunID(), 8)
	assert.False(t, c.InProgress())
}

func TestCoordinator_ConcurrentStartsReject(t *testing.T) {
	c := New(testConfig(noopOpener))
	log := newEventLog(c)

	const n = 20
	var (
		wg       sync.WaitGroup
		started  atomic.Int32
		rejected atomic.Int32
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := c.Start(context.Background())
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, ErrAlreadyInProgress):
				rejected.Add(1)
			default:
				t.Errorf("unexpected start error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(n-1), rejected.Load())

	log.waitStatus(t, 2*time.Second, StatusListening)
	c.Close()
	log.waitOutcome(t, 2*time.Second)

	listening := 0
	for _, ev := range log.snapshot() {
		if ev.Kind == EventStatus && ev.Status.Status == StatusListening {
			listening++
		}
	}
	assert.Equal(t, 1, listening)
}

func TestCoordinator_PolicyReset(t *testing.T) {
	cfg := testConfig(noopOpener)
	cfg.Policy = PolicyReset
	c := New(cfg)
	log := newEventLog(c)

	first, err := c.Start(context.Background())
	require.NoError(t, err)
	log.waitStatus(t, 2*time.Second, StatusListening)

	second, err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrAttemptReset)
	assert.Nil(t, second)
	assert.False(t, c.InProgress())

	select {
	case <-first.Done():
	default:
		t.Fatal("reset returned before the previous attempt was torn down")
	}

	out := log.waitOutcome(t, time.Second)
	assert.Equal(t, first.ID(), out.ID)
	assert.Equal(t, StatusCancelled, out.Status)

	// Idle again: the next start goes through.
	third, err := c.Start(context.Background())
	require.NoError(t, err)
	c.Close()
	assert.True(t, third.Wait(time.Second))
}

func TestCoordinator_PolicyRestart(t *testing.T) {
	cfg := testConfig(noopOpener)
	cfg.Policy = PolicyRestart
	c := New(cfg)
	log := newEventLog(c)

	first, err := c.Start(context.Background())
	require.NoError(t, err)
	log.waitStatus(t, 2*time.Second, StatusListening)

	second, err := c.Start(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.ID(), second.ID())

	select {
	case <-first.Done():
	default:
		t.Fatal("restart began before the previous attempt was torn down")
	}

	firstOut := log.waitOutcome(t, time.Second)
	assert.Equal(t, first.ID(), firstOut.ID)
	assert.Equal(t, StatusCancelled, firstOut.Status)

	// The new attempt's Listening follows the old attempt's outcome.
	listening := log.waitStatus(t, 2*time.Second, StatusListening)
	assert.Equal(t, second.ID(), listening.AttemptID)

	a, ok := c.Active()
	require.True(t, ok)
	assert.Equal(t, second.ID(), a.ID)

	c.Close()
	assert.Equal(t, second.ID(), log.waitOutcome(t, 2*time.Second).ID)
}

func TestCoordinator_PolicyRestartSlowOpener(t *testing.T) {
	cfg := testConfig(stallingOpener(1500 * time.Millisecond))
	cfg.Policy = PolicyRestart
	cfg.TeardownGrace = 100 * time.Millisecond
	c := New(cfg)
	log := newEventLog(c)

	first, err := c.Start(context.Background())
	require.NoError(t, err)
	log.waitStatus(t, time.Second, StatusListening)

	second, err := c.Start(context.Background())
	require.NoError(t, err)
	log.waitFor(t, time.Second, func(ev Event) bool {
		return ev.Kind == EventStatus && ev.Status.AttemptID == second.ID() && ev.Status.Status == StatusListening
	})

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		a, b := first.Snapshot().Status, second.Snapshot().Status
		require.False(t, a == StatusListening && b == StatusListening, "both attempts listening")
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, StatusCancelled, first.Snapshot().Status)
	assert.Equal(t, StatusListening, second.Snapshot().Status)

	c.Close()
}

func TestCoordinator_PolicyRestartRefusesWhileTeardownStalls(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	cfg := testConfig(noopOpener)
	cfg.Policy = PolicyRestart
	cfg.TeardownGrace = 100 * time.Millisecond
	cfg.Ports = PortAllocatorFunc(func() (int, error) {
		if calls.Add(1) == 1 {
			<-release
			return 0, errors.New("allocator released")
		}
		return EphemeralPorts{Host: "127.0.0.1"}.Allocate()
	})
	c := New(cfg)
	log := newEventLog(c)

	first, err := c.Start(context.Background())
	require.NoError(t, err)

	_, err = c.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyInProgress)

	a, ok := c.Active()
	require.True(t, ok)
	assert.Equal(t, first.ID(), a.ID)

	close(release)
	assert.Equal(t, first.ID(), log.waitOutcome(t, time.Second).ID)
	require.True(t, first.Wait(time.Second))

	second, err := c.Start(context.Background())
	require.NoError(t, err)
	listening := log.waitStatus(t, 2*time.Second, StatusListening)
	assert.Equal(t, second.ID(), listening.AttemptID)
	c.Close()
}

func TestCoordinator_EventOrder(t *testing.T) {
	c := New(testConfig(peerOpener(t, nil, sendFrames(`{"utoken":"abc123"}`))))
	log := newEventLog(c)

	h, err := c.Start(context.Background())
	require.NoError(t, err)
	log.waitOutcome(t, 5*time.Second)

	events := log.snapshot()
	require.Len(t, events, 4)

	assert.Equal(t, EventStatus, events[0].Kind)
	assert.Equal(t, StatusIdle, events[0].Status.Status)
	assert.Equal(t, TextStarting, events[0].Status.Text)
	assert.False(t, events[0].Status.ButtonEnabled)

	assert.Equal(t, StatusListening, events[1].Status.Status)
	assert.Equal(t, TextWaiting, events[1].Status.Text)
	assert.Contains(t, events[1].Status.LoginURL, "/login?ws_port=")
	assert.False(t, events[1].Status.ButtonEnabled)

	assert.Equal(t, StatusSucceeded, events[2].Status.Status)
	assert.Equal(t, TextSucceeded, events[2].Status.Text)
	assert.False(t, events[2].Status.ButtonEnabled)

	assert.Equal(t, EventOutcome, events[3].Kind)
	for _, ev := range events[:3] {
		assert.Equal(t, h.ID(), ev.Status.AttemptID)
	}
}

func TestCoordinator_SequentialAttempts(t *testing.T) {
	cfg := testConfig(noopOpener)
	cfg.Timeout = 100 * time.Millisecond
	c := New(cfg)
	log := newEventLog(c)

	for i := 0; i < 3; i++ {
		h, err := c.Start(context.Background())
		require.NoError(t, err, "attempt %d", i)
		out := log.waitOutcome(t, 2*time.Second)
		assert.Equal(t, h.ID(), out.ID)
		assert.Equal(t, StatusTimedOut, out.Status)
	}
	assert.Len(t, log.outcomes(), 3)
}

type fakeView struct {
	mu      sync.Mutex
	texts   []string
	buttons []bool
	tokens  []string
}

func (v *fakeView) SetStatusText(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.texts = append(v.texts, text)
}

func (v *fakeView) SetLoginButtonEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buttons = append(v.buttons, enabled)
}

func (v *fakeView) LoginSucceeded(token string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens = append(v.tokens, token)
}

// drainUntil runs Drain on the test goroutine until cond holds.
func drainUntil(t *testing.T, c *Coordinator, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		c.Drain()
		if cond() {
			return
		}
		select {
		case <-c.Ready():
		case <-deadline:
			t.Fatalf("condition not met within %s", timeout)
		}
	}
}

func TestCoordinator_BindSuccess(t *testing.T) {
	c := New(testConfig(peerOpener(t, nil, sendFrames(`{"utoken":"abc123"}`))))
	view := &fakeView{}
	c.Bind(view)

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	drainUntil(t, c, 5*time.Second, func() bool {
		view.mu.Lock()
		defer view.mu.Unlock()
		return len(view.tokens) > 0
	})

	view.mu.Lock()
	defer view.mu.Unlock()
	assert.Equal(t, []string{"abc123"}, view.tokens)
	assert.Equal(t, []string{TextStarting, TextWaiting, TextSucceeded}, view.texts)
	assert.Equal(t, []bool{false, false, false}, view.buttons)
}

func TestCoordinator_BindTimeout(t *testing.T) {
	cfg := testConfig(noopOpener)
	cfg.Timeout = 100 * time.Millisecond
	c := New(cfg)
	view := &fakeView{}
	c.Bind(view)

	var outcomes []Outcome
	c.OnOutcome(func(o Outcome) { outcomes = append(outcomes, o) })

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	drainUntil(t, c, 2*time.Second, func() bool { return len(outcomes) > 0 })

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusTimedOut, outcomes[0].Status)

	view.mu.Lock()
	defer view.mu.Unlock()
	assert.Empty(t, view.tokens)
	assert.Equal(t, TextTimedOut, view.texts[len(view.texts)-1])
	assert.True(t, view.buttons[len(view.buttons)-1])
}

func TestCoordinator_DrainEmpty(t *testing.T) {
	c := New(testConfig(noopOpener))
	assert.Equal(t, 0, c.Drain())
	assert.Empty(t, c.Poll())
	assert.Equal(t, 0, c.Pending())
}

func TestCoordinator_OnStatus(t *testing.T) {
	cfg := testConfig(noopOpener)
	c := New(cfg)

	var statuses []Status
	c.OnStatus(func(u StatusUpdate) { statuses = append(statuses, u.Status) })

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	drainUntil(t, c, 2*time.Second, func() bool {
		return len(statuses) >= 2
	})
	c.Close()
	drainUntil(t, c, 2*time.Second, func() bool {
		return len(statuses) >= 3
	})

	assert.Equal(t, []Status{StatusIdle, StatusListening, StatusCancelled}, statuses)
}

type recorderFunc func(ctx context.Context, a Attempt) error

func (f recorderFunc) RecordAttempt(ctx context.Context, a Attempt) error { return f(ctx, a) }

func TestCoordinator_Recorder(t *testing.T) {
	recorded := make(chan Attempt, 1)
	cfg := testConfig(noopOpener)
	cfg.Timeout = 100 * time.Millisecond
	cfg.Recorder = recorderFunc(func(_ context.Context, a Attempt) error {
		recorded <- a
		return nil
	})
	c := New(cfg)
	log := newEventLog(c)

	h, err := c.Start(context.Background())
	require.NoError(t, err)

	out := log.waitOutcome(t, 2*time.Second)
	select {
	case a := <-recorded:
		assert.Equal(t, h.ID(), a.ID)
		assert.Equal(t, out.Status, a.Status)
	default:
		t.Fatal("attempt recorded after its outcome")
	}
}

func TestCoordinator_RecorderErrorIgnored(t *testing.T) {
	cfg := testConfig(noopOpener)
	cfg.Timeout = 100 * time.Millisecond
	cfg.Recorder = recorderFunc(func(context.Context, Attempt) error {
		return errors.New("disk full")
	})
	c := New(cfg)
	log := newEventLog(c)

	_, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, log.waitOutcome(t, 2*time.Second).Status)
}

func TestCoordinator_Reconfigure(t *testing.T) {
	c := New(testConfig(noopOpener))

	require.NoError(t, c.Reconfigure(Settings{
		Timeout:     150 * time.Millisecond,
		AuthBaseURL: "https://auth.example.com",
		Policy:      PolicyRestart,
	}))

	s := c.Settings()
	assert.Equal(t, 150*time.Millisecond, s.Timeout)
	assert.Equal(t, "https://auth.example.com", s.AuthBaseURL)
	assert.Equal(t, PolicyRestart, s.Policy)
	assert.Equal(t, "127.0.0.1", s.ListenHost, "zero fields are kept")
	assert.Equal(t, "utoken", s.TokenKey)

	assert.Error(t, c.Reconfigure(Settings{AuthBaseURL: "http://auth.example.com"}))
	assert.Error(t, c.Reconfigure(Settings{Policy: "queue"}))
	assert.Equal(t, "https://auth.example.com", c.Settings().AuthBaseURL)

	// The next attempt picks the new settings up.
	log := newEventLog(c)
	_, err := c.Start(context.Background())
	require.NoError(t, err)
	listening := log.waitStatus(t, 2*time.Second, StatusListening)
	assert.Contains(t, listening.LoginURL, "https://auth.example.com/login?ws_port=")

	out := log.waitOutcome(t, 2*time.Second)
	assert.Equal(t, StatusTimedOut, out.Status)
}

func TestCoordinator_CloseIdle(t *testing.T) {
	c := New(testConfig(noopOpener))
	c.Close()
	assert.False(t, c.CancelCurrent())
	_, ok := c.Active()
	assert.False(t, ok)
}
