package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ctc-ai/ctc_ai_ui/internal/auth"
	"github.com/ctc-ai/ctc_ai_ui/internal/browser"
)

// sessionConfig is the frozen per-attempt view of Config.
type sessionConfig struct {
	Host          string
	Timeout       time.Duration
	AuthBaseURL   string
	TokenKey      string
	TeardownGrace time.Duration
	Opener        browser.Opener
	Ports         PortAllocator
}

// sessionHooks connect a session to its coordinator. Both run on the
// session goroutine.
type sessionHooks struct {
	listening func(Attempt)
	ended     func(*Session, Attempt)
}

// Session owns one login attempt: the callback listener, the browser
// launch, and the race between an inbound token and the deadline.
type Session struct {
	id     string
	cfg    sessionConfig
	hooks  sessionHooks
	logger *slog.Logger

	upgrader      websocket.Upgrader
	allowedOrigin string

	mu      sync.Mutex
	attempt Attempt
	conns   map[*websocket.Conn]struct{}

	ended      chan struct{} // closed on the terminal transition
	done       chan struct{} // closed once teardown has released the port
	cancelCh   chan struct{}
	cancelOnce sync.Once
}

// sessionResources are owned by the session goroutine.
type sessionResources struct {
	listener   net.Listener
	server     *http.Server
	timer      *time.Timer
	cancelOpen context.CancelFunc
}

func newSession(cfg sessionConfig, hooks sessionHooks, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	s := &Session{
		id:            id,
		cfg:           cfg,
		hooks:         hooks,
		logger:        logger.With("attempt_id", id),
		allowedOrigin: browser.Origin(cfg.AuthBaseURL),
		attempt:       Attempt{ID: id, Status: StatusIdle},
		conns:         make(map[*websocket.Conn]struct{}),
		ended:         make(chan struct{}),
		done:          make(chan struct{}),
		cancelCh:      make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// ID returns the attempt identifier.
func (s *Session) ID() string { return s.id }

// Snapshot returns a copy of the attempt state.
func (s *Session) Snapshot() Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Cancel requests a Cancelled transition. It does not wait for teardown.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelCh)
	})
}

// Done is closed once the attempt is terminal and its resources are released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until teardown completes or timeout elapses. It reports
// whether teardown completed.
func (s *Session) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-s.done:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.done:
		return true
	case <-t.C:
		return false
	}
}

// run drives the attempt from Idle to a terminal state, then tears down and
// reports. It is the only goroutine that touches the listener and timer.
func (s *Session) run(ctx context.Context) {
	res := &sessionResources{}
	defer close(s.done)
	defer func() {
		s.teardown(res)
		snap := s.Snapshot()
		s.logger.Info("login attempt finished",
			"status", snap.Status.String(),
			"port", snap.Port,
			"duration", snap.Duration(),
			"error", snap.Err,
			"action", "attempt_end")
		if s.hooks.ended != nil {
			s.hooks.ended(s, snap)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("login session panic",
				"panic", r,
				"action", "recovered")
			s.finish(StatusFailed, "", attemptError(s.id, nil, fmt.Errorf("internal error: %v", r)))
		}
	}()

	s.listen(ctx, res)

	// listen only returns on a terminal transition; guard anyway.
	s.finish(StatusFailed, "", attemptError(s.id, nil, errors.New("login session ended unexpectedly")))
}

func (s *Session) listen(ctx context.Context, res *sessionResources) {
	port, err := s.cfg.Ports.Allocate()
	if err != nil {
		if !errors.Is(err, ErrResourceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
		}
		s.finish(StatusFailed, "", attemptError(s.id, ErrResourceUnavailable, err))
		return
	}

	loginURL, err := browser.LoginURL(s.cfg.AuthBaseURL, port)
	if err != nil {
		s.finish(StatusFailed, "", attemptError(s.id, nil, err))
		return
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.finish(StatusFailed, "", attemptError(s.id, ErrListenerBind, err))
		return
	}
	res.listener = ln

	now := time.Now()
	s.mu.Lock()
	s.attempt.Port = port
	s.attempt.Status = StatusListening
	s.attempt.LoginURL = loginURL
	s.attempt.StartedAt = now
	s.attempt.Deadline = now.Add(s.cfg.Timeout)
	snap := s.attempt
	s.mu.Unlock()

	s.logger.Info("state transition",
		"from_state", StatusIdle.String(),
		"to_state", StatusListening.String(),
		"addr", addr,
		"deadline", snap.Deadline,
		"action", "transition")

	// Reported before serving so it always precedes the terminal status.
	if s.hooks.listening != nil {
		s.hooks.listening(snap)
	}

	res.server = s.newServer()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- res.server.Serve(ln)
	}()

	res.timer = time.NewTimer(time.Until(snap.Deadline))

	// Openers may block for seconds (chromedp waits for Chrome), so they run
	// beside the race; teardown cancels openCtx.
	if s.cfg.Opener != nil {
		openCtx, cancelOpen := context.WithCancel(ctx)
		res.cancelOpen = cancelOpen
		go s.openBrowser(openCtx, loginURL)
	}

	select {
	case <-s.ended:
	case <-res.timer.C:
		s.logger.Info("login timed out - no token received",
			"timeout", s.cfg.Timeout,
			"action", "timeout")
		s.finish(StatusTimedOut, "", attemptError(s.id, ErrTimeout, nil))
	case <-s.cancelCh:
		s.finish(StatusCancelled, "", attemptError(s.id, ErrCancelled, nil))
	case <-ctx.Done():
		s.finish(StatusCancelled, "", attemptError(s.id, ErrCancelled, ctx.Err()))
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback listener failed", "error", err, "action", "serve_failed")
			s.finish(StatusFailed, "", attemptError(s.id, nil, fmt.Errorf("callback listener: %w", err)))
		}
	}
}

func (s *Session) openBrowser(ctx context.Context, loginURL string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("browser opener panic",
				"panic", r,
				"action", "recovered")
		}
	}()
	if err := s.cfg.Opener.Open(ctx, loginURL); err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("browser open abandoned", "error", err, "action", "open_cancelled")
			return
		}
		s.logger.Warn("failed to open browser",
			"url", loginURL,
			"error", err,
			"action", "open_failed")
		return
	}
	s.logger.Debug("browser opened", "url", loginURL, "action", "open_browser")
}

// finish performs the single terminal transition. It reports false when the
// attempt was already terminal, in which case nothing changes.
func (s *Session) finish(status Status, token string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.Status.Terminal() {
		return false
	}

	from := s.attempt.Status
	s.attempt.Status = status
	if status == StatusSucceeded {
		s.attempt.Token = token
	}
	s.attempt.Err = err
	s.attempt.EndedAt = time.Now()
	close(s.ended)

	s.logger.Info("state transition",
		"from_state", from.String(),
		"to_state", status.String(),
		"error", err,
		"action", "transition")
	return true
}

// teardown releases everything the attempt holds. Each step is bounded by
// the teardown grace so a stuck peer can not block the caller.
func (s *Session) teardown(res *sessionResources) {
	if res.timer != nil {
		res.timer.Stop()
	}
	if res.cancelOpen != nil {
		res.cancelOpen()
	}

	s.closeConns()

	switch {
	case res.server != nil:
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TeardownGrace)
		defer cancel()
		if err := res.server.Shutdown(ctx); err != nil {
			s.logger.Warn("callback listener shutdown exceeded grace",
				"grace", s.cfg.TeardownGrace,
				"error", err,
				"action", "force_close")
			_ = res.server.Close()
		}
	}
	// Serve may not have taken ownership of the listener yet.
	if res.listener != nil {
		_ = res.listener.Close()
	}

	s.logger.Debug("login attempt resources released", "action", "teardown")
}

func (s *Session) accepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.Status == StatusListening
}

func (s *Session) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.Status != StatusListening {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Session) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Session) closeConns() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(s.cfg.TeardownGrace)
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "login attempt ended"),
			deadline)
		_ = c.Close()
	}
}

// tokenAttr is the loggable form of a token.
func tokenAttr(token string) slog.Attr {
	return slog.String("token_fingerprint", auth.Fingerprint(token))
}
