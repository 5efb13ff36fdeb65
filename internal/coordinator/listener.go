package coordinator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ctc-ai/ctc_ai_ui/internal/browser"
)

// newServer builds the loopback HTTP server for one attempt. The browser
// page connects a websocket to any path other than /health and sends the
// token as a JSON object.
func (s *Session) newServer() *http.Server {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.PathPrefix("/").HandlerFunc(s.handleCallback)

	return &http.Server{
		Handler:           s.withLogging(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Session) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}

// healthResponse is the response from the /health endpoint.
type healthResponse struct {
	Status    string `json:"status"`
	AttemptID string `json:"attempt_id"`
	State     string `json:"state"`
}

func (s *Session) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:    "ok",
		AttemptID: snap.ID,
		State:     snap.Status.String(),
	})
}

// handleCallback serves one browser connection. Malformed frames are logged
// and skipped; the first frame carrying a token ends the attempt.
func (s *Session) handleCallback(w http.ResponseWriter, r *http.Request) {
	defer s.recoverHandler()

	if !s.accepting() {
		http.Error(w, "login attempt closed", http.StatusGone)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("websocket upgrade failed",
			"remote", r.RemoteAddr,
			"error", err)
		return
	}
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	s.logger.Debug("browser connected",
		"remote", r.RemoteAddr,
		"action", "peer_connected")

	conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.finish(StatusPeerClosed, "", attemptError(s.id, ErrPeerClosed, err)) {
				s.logger.Info("browser closed before login completed",
					"remote", r.RemoteAddr,
					"error", err,
					"action", "peer_closed")
			}
			return
		}

		token, err := decodeToken(data, s.cfg.TokenKey)
		if err != nil {
			s.logger.Warn("ignoring malformed login message",
				"remote", r.RemoteAddr,
				"size", len(data),
				"error", err,
				"action", "message_skipped")
			continue
		}
		if token == "" {
			s.logger.Debug("message without token",
				"token_key", s.cfg.TokenKey,
				"action", "message_skipped")
			continue
		}

		if s.finish(StatusSucceeded, token, nil) {
			s.logger.LogAttrs(r.Context(), slog.LevelInfo, "login token received",
				tokenAttr(token), slog.String("action", "token_received"))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "login complete"),
				time.Now().Add(time.Second))
		} else {
			s.logger.Debug("late token ignored", "action", "message_skipped")
		}
		return
	}
}

func (s *Session) recoverHandler() {
	if r := recover(); r != nil {
		s.logger.Error("callback handler panic",
			"panic", r,
			"action", "recovered")
		s.finish(StatusFailed, "", attemptError(s.id, nil, fmt.Errorf("callback handler: %v", r)))
	}
}

// checkOrigin accepts non-browser clients, loopback pages and the auth
// server's own origin.
func (s *Session) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if browser.IsLoopbackHost(u.Hostname()) {
		return true
	}
	if s.allowedOrigin != "" && browser.Origin(origin) == s.allowedOrigin {
		return true
	}
	s.logger.Warn("rejected websocket origin",
		"origin", origin,
		"action", "origin_rejected")
	return false
}
