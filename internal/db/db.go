// Package db stores the login attempt history in a local SQLite database.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ctc-ai/ctc_ai_ui/internal/config"
)

// FileName is the database file name under the data directory.
const FileName = "ctcai.db"

// pragmas are applied to the single pooled connection on open.
var pragmas = []string{
	"journal_mode=WAL",
	"busy_timeout=5000",
	"foreign_keys=ON",
}

// DB is the history store. Its methods are safe on a nil receiver, which
// behaves as a disabled store.
type DB struct {
	path string
	conn *sql.DB
}

// Open opens the database at DefaultPath.
func Open() (*DB, error) {
	return OpenAt(DefaultPath())
}

// DefaultPath returns {DataDir}/ctcai.db.
func DefaultPath() string {
	return filepath.Join(config.DataDir(), FileName)
}

// OpenAt opens (creating if needed) the database at path and migrates it.
// An unreadable file is quarantined as {path}.corrupt.{UTC stamp} together
// with its WAL and SHM files, and a fresh database is created in its place.
func OpenAt(path string) (*DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("db path is required")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := connect(path)
	if err != nil && looksCorrupt(err) {
		if qerr := quarantine(path, time.Now()); qerr != nil {
			return nil, fmt.Errorf("db unreadable (%v): %w", err, qerr)
		}
		conn, err = connect(path)
	}
	if err != nil {
		return nil, err
	}
	return &DB{path: path, conn: conn}, nil
}

func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// Conn exposes the underlying pool for tests and maintenance.
func (d *DB) Conn() *sql.DB {
	if d == nil {
		return nil
	}
	return d.conn
}

func (d *DB) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// connect opens path, applies pragmas and runs migrations. The pool is
// capped at one connection so per-connection pragmas always hold.
func connect(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := prepare(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func prepare(ctx context.Context, conn *sql.DB) error {
	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, "PRAGMA "+p); err != nil {
			return fmt.Errorf("pragma %s: %w", p, err)
		}
	}
	return Migrate(ctx, conn)
}

// looksCorrupt reports whether err means the file is not a usable database,
// as opposed to a transient failure such as a lock.
func looksCorrupt(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrInvalid) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"file is not a database", "malformed", "database disk image"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// quarantine moves path and its sidecar files aside. Missing files are
// skipped.
func quarantine(path string, now time.Time) error {
	backup := path + ".corrupt." + now.UTC().Format("20060102T150405Z")
	for _, suffix := range []string{"", "-wal", "-shm"} {
		src := path + suffix
		if err := os.Rename(src, backup+suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("move %s aside: %w", src, err)
		}
	}
	return nil
}
