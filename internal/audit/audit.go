// Package audit persists a record of every admin-originated channel
// mutation (kick, empty, mute, shutdown) to an embedded SQLite database,
// following the migration idiom of the corpus's own sqlite-backed store:
// ordered DDL strings applied once each, tracked in a schema_migrations
// table. This is an operational log, never read back to reconstruct live
// channel state.
package audit

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

var migrations = []string{
	// v1 — admin action log
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		actor      TEXT NOT NULL,
		action     TEXT NOT NULL,
		channel    TEXT NOT NULL DEFAULT '',
		target     TEXT NOT NULL DEFAULT '',
		detail     TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2 — index for time-ordered reads from the monitoring API
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
}

// Action enumerates the admin-originated mutations the log records.
type Action string

const (
	ActionKick          Action = "kick"
	ActionEmpty         Action = "empty"
	ActionMute          Action = "mute"
	ActionUnmuteExpiry  Action = "unmute-expiry"
	ActionShutdown      Action = "shutdown"
)

// Entry is one persisted audit row (SPEC_FULL.md §3 AuditEntry).
type Entry struct {
	ID        int64
	Timestamp time.Time
	Actor     string
	Action    Action
	Channel   string
	Target    string
	Detail    string
}

// Log wraps the audit database. A nil *Log is valid and turns Record into
// a no-op, which is how "--audit-db=" (disabled) is wired in main.go.
type Log struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates or opens the SQLite database at path and applies pending
// migrations. Use ":memory:" for ephemeral storage in tests.
func Open(path string, log *slog.Logger) (*Log, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Warn("audit db: enable WAL failed (non-fatal)", "err", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Warn("audit db: set busy_timeout failed (non-fatal)", "err", err)
	}

	l := &Log{db: db, log: log}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return l, nil
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := l.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := l.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		l.log.Debug("applied audit db migration", "version", v)
	}
	return nil
}

// Close releases the database connection. Safe to call on a nil *Log.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record appends one audit row. Failures are logged and swallowed — an
// audit write never rolls back, retries, or blocks the state mutation
// that triggered it (SPEC_FULL.md §7 AuditWriteError).
func (l *Log) Record(actor string, action Action, channel, target, detail string) {
	if l == nil || l.db == nil {
		return
	}
	_, err := l.db.Exec(
		`INSERT INTO audit_log(actor, action, channel, target, detail) VALUES(?, ?, ?, ?, ?)`,
		actor, string(action), channel, target, detail,
	)
	if err != nil {
		l.log.Error("audit write failed", "actor", actor, "action", action, "err", err)
	}
}

// Recent returns the most recent n audit entries, newest first, for the
// monitoring API. Returns an empty slice (never an error) on a nil Log.
func (l *Log) Recent(n int) []Entry {
	if l == nil || l.db == nil {
		return nil
	}
	rows, err := l.db.Query(
		`SELECT id, actor, action, channel, target, detail, created_at
		 FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ?`, n,
	)
	if err != nil {
		l.log.Error("audit read failed", "err", err)
		return nil
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var action string
		var ts int64
		if err := rows.Scan(&e.ID, &e.Actor, &action, &e.Channel, &e.Target, &e.Detail, &ts); err != nil {
			l.log.Error("audit row scan failed", "err", err)
			continue
		}
		e.Action = Action(action)
		e.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out
}
