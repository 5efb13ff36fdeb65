package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ctc-ai/ctc_ai_ui/internal/auth"
	"github.com/ctc-ai/ctc_ai_ui/internal/coordinator"
)

var _ coordinator.Recorder = (*DB)(nil)

// AttemptRecord is one stored login attempt. Tokens are never stored, only
// their fingerprint.
type AttemptRecord struct {
	ID               string
	Status           string
	Port             int
	LoginURL         string
	TokenFingerprint string
	Error            string
	StartedAt        time.Time
	EndedAt          time.Time
	Duration         time.Duration
}

// Fixed-width UTC timestamps sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s.String)
}

// RecordAttempt stores a finished attempt. Recording the same attempt twice
// keeps the latest values.
func (d *DB) RecordAttempt(ctx context.Context, a coordinator.Attempt) error {
	if d == nil || d.conn == nil {
		return fmt.Errorf("db is not open")
	}

	ended := a.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	var errText sql.NullString
	if a.Err != nil {
		errText = sql.NullString{String: a.Err.Error(), Valid: true}
	}
	var fp sql.NullString
	if a.Token != "" {
		fp = sql.NullString{String: auth.Fingerprint(a.Token), Valid: true}
	}

	_, err := d.conn.ExecContext(ctx, `
INSERT INTO login_attempts (id, status, port, login_url, token_fingerprint, error, started_at, ended_at, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    port = excluded.port,
    login_url = excluded.login_url,
    token_fingerprint = excluded.token_fingerprint,
    error = excluded.error,
    started_at = excluded.started_at,
    ended_at = excluded.ended_at,
    duration_ms = excluded.duration_ms
`,
		a.ID,
		a.Status.String(),
		a.Port,
		a.LoginURL,
		fp,
		errText,
		formatTime(a.StartedAt),
		formatTime(ended),
		a.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record attempt %s: %w", a.ID, err)
	}
	return nil
}

// RecentAttempts returns up to limit attempts, newest first.
func (d *DB) RecentAttempts(ctx context.Context, limit int) ([]AttemptRecord, error) {
	if d == nil || d.conn == nil {
		return nil, fmt.Errorf("db is not open")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := d.conn.QueryContext(ctx, `
SELECT id, status, port, COALESCE(login_url, ''), COALESCE(token_fingerprint, ''),
       COALESCE(error, ''), started_at, ended_at, duration_ms
FROM login_attempts
ORDER BY ended_at DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var (
			r              AttemptRecord
			started, ended sql.NullString
			durationMS     int64
		)
		if err := rows.Scan(&r.ID, &r.Status, &r.Port, &r.LoginURL, &r.TokenFingerprint,
			&r.Error, &started, &ended, &durationMS); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse started_at for %s: %w", r.ID, err)
		}
		if r.EndedAt, err = parseTime(ended); err != nil {
			return nil, fmt.Errorf("parse ended_at for %s: %w", r.ID, err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

// StatusCounts returns the number of stored attempts per status.
func (d *DB) StatusCounts(ctx context.Context) (map[string]int, error) {
	if d == nil || d.conn == nil {
		return nil, fmt.Errorf("db is not open")
	}

	rows, err := d.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM login_attempts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Prune keeps the newest keep attempts and deletes the rest. It returns the
// number of rows removed.
func (d *DB) Prune(ctx context.Context, keep int) (int64, error) {
	if d == nil || d.conn == nil {
		return 0, fmt.Errorf("db is not open")
	}
	if keep < 0 {
		keep = 0
	}

	res, err := d.conn.ExecContext(ctx, `
DELETE FROM login_attempts
WHERE id NOT IN (
    SELECT id FROM login_attempts ORDER BY ended_at DESC LIMIT ?
)
`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	return n, nil
}
