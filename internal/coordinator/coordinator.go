// Package coordinator runs the browser login handshake: it binds a loopback
// websocket listener, opens the login page, races the returned token against
// a deadline, and reports the outcome to the UI goroutine.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ctc-ai/ctc_ai_ui/internal/browser"
)

// StartPolicy decides what Start does while an attempt is active.
type StartPolicy string

const (
	// PolicyReject refuses the new attempt with ErrAlreadyInProgress.
	PolicyReject StartPolicy = "reject"

	// PolicyReset tears the active attempt down and leaves the coordinator
	// idle; Start returns ErrAttemptReset.
	PolicyReset StartPolicy = "reset"

	// PolicyRestart tears the active attempt down, waits for its port to be
	// released, then starts a fresh attempt.
	PolicyRestart StartPolicy = "restart"
)

// ParseStartPolicy converts a config string to a StartPolicy.
func ParseStartPolicy(s string) (StartPolicy, error) {
	switch StartPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyReject:
		return PolicyReject, nil
	case PolicyReset:
		return PolicyReset, nil
	case PolicyRestart:
		return PolicyRestart, nil
	default:
		return "", fmt.Errorf("invalid start policy %q (want reject, reset or restart)", s)
	}
}

// Recorder persists finished attempts.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

// View is the UI boundary fed by Bind.
type View interface {
	SetStatusText(text string)
	SetLoginButtonEnabled(enabled bool)
	LoginSucceeded(token string)
}

// Config configures the coordinator.
type Config struct {
	// ListenHost is the interface the callback listener binds.
	// Default: "localhost"
	ListenHost string

	// Timeout is how long an attempt waits for the browser.
	// Default: 30s
	Timeout time.Duration

	// AuthBaseURL is the auth server; the login page is {AuthBaseURL}/login.
	AuthBaseURL string

	// TokenKey is the payload key carrying the token. Default: "utoken"
	TokenKey string

	// Policy applies when Start is called while an attempt is active.
	Policy StartPolicy

	// TeardownGrace bounds every wait on an attempt's teardown.
	TeardownGrace time.Duration

	// Opener opens the login URL. If nil, the system browser is used.
	Opener browser.Opener

	// Ports allocates listener ports. If nil, EphemeralPorts on ListenHost.
	Ports PortAllocator

	// Recorder, if set, receives every finished attempt.
	Recorder Recorder

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenHost:    "localhost",
		Timeout:       30 * time.Second,
		AuthBaseURL:   "http://localhost:8000",
		TokenKey:      DefaultTokenKey,
		Policy:        PolicyReject,
		TeardownGrace: time.Second,
	}
}

// Settings are the parts of Config that may change between attempts.
type Settings struct {
	ListenHost  string
	Timeout     time.Duration
	AuthBaseURL string
	TokenKey    string
	Policy      StartPolicy
}

// Coordinator admits at most one login attempt at a time and relays
// attempt events to the UI goroutine.
type Coordinator struct {
	// startMu serializes Start, CancelCurrent and Close, including their
	// bounded waits. mu guards the fields below and is never held while
	// waiting.
	startMu sync.Mutex

	mu     sync.RWMutex
	config Config
	active *Session
	last   *Session

	logger *slog.Logger
	runID  string
	queue  *eventQueue

	hmu             sync.Mutex
	statusHandlers  []func(StatusUpdate)
	outcomeHandlers []func(Outcome)
}

// New creates a new coordinator.
func New(config Config) *Coordinator {
	defaults := DefaultConfig()
	if config.ListenHost == "" {
		config.ListenHost = defaults.ListenHost
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.AuthBaseURL == "" {
		config.AuthBaseURL = defaults.AuthBaseURL
	}
	if config.TokenKey == "" {
		config.TokenKey = defaults.TokenKey
	}
	if config.Policy == "" {
		config.Policy = defaults.Policy
	}
	if config.TeardownGrace <= 0 {
		config.TeardownGrace = defaults.TeardownGrace
	}
	if config.Opener == nil {
		config.Opener = browser.SystemOpener{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	// Correlates every log line from this coordinator instance.
	runID := uuid.New().String()[:8]

	return &Coordinator{
		config: config,
		logger: config.Logger.With("run_id", runID),
		runID:  runID,
		queue:  newEventQueue(),
	}
}

// RunID returns the correlation ID for this coordinator.
func (c *Coordinator) RunID() string {
	return c.runID
}

// Settings returns the settings the next attempt will use.
func (c *Coordinator) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Settings{
		ListenHost:  c.config.ListenHost,
		Timeout:     c.config.Timeout,
		AuthBaseURL: c.config.AuthBaseURL,
		TokenKey:    c.config.TokenKey,
		Policy:      c.config.Policy,
	}
}

// Reconfigure replaces the non-zero fields of s for subsequent attempts.
// An active attempt keeps the settings it started with.
func (c *Coordinator) Reconfigure(s Settings) error {
	if s.AuthBaseURL != "" {
		if err := browser.ValidateBaseURL(s.AuthBaseURL); err != nil {
			return err
		}
	}
	if s.Policy != "" {
		if _, err := ParseStartPolicy(string(s.Policy)); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s.ListenHost != "" {
		c.config.ListenHost = s.ListenHost
	}
	if s.Timeout > 0 {
		c.config.Timeout = s.Timeout
	}
	if s.AuthBaseURL != "" {
		c.config.AuthBaseURL = s.AuthBaseURL
	}
	if s.TokenKey != "" {
		c.config.TokenKey = s.TokenKey
	}
	if s.Policy != "" {
		c.config.Policy = s.Policy
	}

	c.logger.Info("settings updated",
		"listen_host", c.config.ListenHost,
		"timeout", c.config.Timeout,
		"auth_base_url", c.config.AuthBaseURL,
		"policy", string(c.config.Policy),
		"action", "reconfigure")
	return nil
}

// Handle refers to one started attempt.
type Handle struct {
	s *Session
}

// ID returns the attempt identifier.
func (h *Handle) ID() string { return h.s.ID() }

// Snapshot returns the current attempt state.
func (h *Handle) Snapshot() Attempt { return h.s.Snapshot() }

// Done is closed once the attempt is terminal and its port is released.
func (h *Handle) Done() <-chan struct{} { return h.s.Done() }

// Cancel requests cancellation without waiting.
func (h *Handle) Cancel() { h.s.Cancel() }

// Wait blocks until teardown completes or timeout elapses.
func (h *Handle) Wait(timeout time.Duration) bool { return h.s.Wait(timeout) }

// Start begins a new login attempt on its own goroutine.
//
// While another attempt is active the configured StartPolicy applies. A new
// attempt is never started before the previous attempt's teardown has
// completed or the teardown grace has elapsed.
func (c *Coordinator) Start(ctx context.Context) (*Handle, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.RLock()
	cfg := c.config
	prev := c.active
	last := c.last
	c.mu.RUnlock()

	if prev != nil {
		switch cfg.Policy {
		case PolicyReset:
			c.logger.Info("login already in progress, resetting",
				"attempt_id", prev.ID(),
				"action", "reset")
			c.stopActive(prev, cfg.TeardownGrace)
			return nil, ErrAttemptReset
		case PolicyRestart:
			c.logger.Info("login already in progress, restarting",
				"attempt_id", prev.ID(),
				"action", "restart")
			if !c.stopActive(prev, cfg.TeardownGrace) {
				return nil, fmt.Errorf("%w: previous attempt still tearing down", ErrAlreadyInProgress)
			}
		default:
			c.logger.Debug("login already in progress, rejecting start",
				"attempt_id", prev.ID(),
				"action", "reject")
			return nil, ErrAlreadyInProgress
		}
	} else if last != nil && !last.Wait(cfg.TeardownGrace) {
		c.logger.Warn("previous attempt teardown exceeded grace, proceeding",
			"attempt_id", last.ID(),
			"grace", cfg.TeardownGrace,
			"action", "teardown_timeout")
	}

	ports := cfg.Ports
	if ports == nil {
		ports = EphemeralPorts{Host: cfg.ListenHost}
	}

	s := newSession(sessionConfig{
		Host:          cfg.ListenHost,
		Timeout:       cfg.Timeout,
		AuthBaseURL:   cfg.AuthBaseURL,
		TokenKey:      cfg.TokenKey,
		TeardownGrace: cfg.TeardownGrace,
		Opener:        cfg.Opener,
		Ports:         ports,
	}, sessionHooks{
		listening: c.sessionListening,
		ended:     c.sessionEnded,
	}, c.logger)

	c.mu.Lock()
	c.active = s
	c.last = s
	c.mu.Unlock()

	c.logger.Info("login attempt starting",
		"attempt_id", s.ID(),
		"timeout", cfg.Timeout,
		"action", "attempt_start")

	c.queue.push(Event{Kind: EventStatus, Status: StatusUpdate{
		AttemptID:     s.ID(),
		Status:        StatusIdle,
		Text:          TextStarting,
		ButtonEnabled: false,
	}})

	go s.run(ctx)
	return &Handle{s: s}, nil
}

// stopActive cancels prev and waits, bounded, for its teardown. It reports
// whether teardown finished; if not, prev stays active until its session
// ends, so no second attempt can start beside it.
func (c *Coordinator) stopActive(prev *Session, grace time.Duration) bool {
	prev.Cancel()
	if !prev.Wait(grace) {
		c.logger.Warn("attempt teardown exceeded grace",
			"attempt_id", prev.ID(),
			"grace", grace,
			"action", "teardown_timeout")
		return false
	}
	c.mu.Lock()
	if c.active == prev {
		c.active = nil
	}
	c.mu.Unlock()
	return true
}

// CancelCurrent cancels the active attempt, if any. It does not wait for
// teardown; the outcome arrives through the event queue. It does wait for an
// in-flight Start, which under PolicyRestart or PolicyReset may spend up to
// the teardown grace stopping the previous attempt.
func (c *Coordinator) CancelCurrent() bool {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.RLock()
	active := c.active
	c.mu.RUnlock()
	if active == nil {
		return false
	}

	c.logger.Info("cancelling login attempt",
		"attempt_id", active.ID(),
		"action", "cancel")
	active.Cancel()
	return true
}

// Close cancels any active attempt and waits, bounded, for its teardown.
func (c *Coordinator) Close() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.RLock()
	active := c.active
	grace := c.config.TeardownGrace
	c.mu.RUnlock()
	if active != nil {
		c.stopActive(active, grace)
	}
}

// Active returns a snapshot of the active attempt.
func (c *Coordinator) Active() (Attempt, bool) {
	c.mu.RLock()
	active := c.active
	c.mu.RUnlock()
	if active == nil {
		return Attempt{}, false
	}
	return active.Snapshot(), true
}

// InProgress reports whether an attempt is active.
func (c *Coordinator) InProgress() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active != nil
}

func (c *Coordinator) sessionListening(a Attempt) {
	c.queue.push(Event{Kind: EventStatus, Status: StatusUpdate{
		AttemptID:     a.ID,
		Status:        StatusListening,
		Text:          TextWaiting,
		LoginURL:      a.LoginURL,
		ButtonEnabled: false,
	}})
}

// sessionEnded runs on the session goroutine after teardown, so the port is
// free by the time the outcome is observable.
func (c *Coordinator) sessionEnded(s *Session, a Attempt) {
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	recorder := c.config.Recorder
	grace := c.config.TeardownGrace
	c.mu.Unlock()

	if recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		if err := recorder.RecordAttempt(ctx, a); err != nil {
			c.logger.Warn("failed to record login attempt",
				"attempt_id", a.ID,
				"error", err,
				"action", "record_failed")
		}
		cancel()
	}

	c.queue.push(Event{Kind: EventStatus, Status: StatusUpdate{
		AttemptID:     a.ID,
		Status:        a.Status,
		Text:          statusText(a),
		LoginURL:      a.LoginURL,
		ButtonEnabled: a.Status != StatusSucceeded,
	}})
	c.queue.push(Event{Kind: EventOutcome, Outcome: Outcome{Attempt: a}})
}

// OnStatus registers fn to run, during Drain, for every status update.
func (c *Coordinator) OnStatus(fn func(StatusUpdate)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.statusHandlers = append(c.statusHandlers, fn)
}

// OnOutcome registers fn to run, during Drain, once per finished attempt.
func (c *Coordinator) OnOutcome(fn func(Outcome)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.outcomeHandlers = append(c.outcomeHandlers, fn)
}

// Bind routes status and outcome events to v. Only successful outcomes
// reach LoginSucceeded.
func (c *Coordinator) Bind(v View) {
	c.OnStatus(func(u StatusUpdate) {
		v.SetStatusText(u.Text)
		v.SetLoginButtonEnabled(u.ButtonEnabled)
	})
	c.OnOutcome(func(o Outcome) {
		if o.Succeeded() {
			v.LoginSucceeded(o.Token)
		}
	})
}

// Ready receives a value whenever events are waiting. Wakeups coalesce, so
// a receiver must drain everything queued.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.queue.ready
}

// Poll removes and returns all queued events in order without running
// handlers.
func (c *Coordinator) Poll() []Event {
	return c.queue.take()
}

// Pending returns the number of queued events.
func (c *Coordinator) Pending() int {
	return c.queue.len()
}

// Drain runs the registered handlers for every queued event, in order, on
// the calling goroutine. It returns the number of events handled.
func (c *Coordinator) Drain() int {
	events := c.queue.take()
	if len(events) == 0 {
		return 0
	}

	c.hmu.Lock()
	statusHandlers := append([]func(StatusUpdate){}, c.statusHandlers...)
	outcomeHandlers := append([]func(Outcome){}, c.outcomeHandlers...)
	c.hmu.Unlock()

	for _, ev := range events {
		switch ev.Kind {
		case EventStatus:
			for _, fn := range statusHandlers {
				fn(ev.Status)
			}
		case EventOutcome:
			for _, fn := range outcomeHandlers {
				fn(ev.Outcome)
			}
		}
	}
	return len(events)
}
