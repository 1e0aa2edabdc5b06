// Package audit archives finished commits in a local SQLite database, so
// who changed what, and when, survives daemon restarts. The daemon treats
// the archive as best effort: if the database cannot be opened, commits
// proceed unrecorded.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/psaab/netcli/pkg/commit"
	"github.com/psaab/netcli/pkg/diff"
)

// DefaultPath is where the daemon keeps the commit archive.
const DefaultPath = "/var/lib/netcli/commits.db"

// Store is a commit.Recorder backed by SQLite.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS commits (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	time        TEXT NOT NULL,
	user        TEXT NOT NULL DEFAULT '',
	comment     TEXT NOT NULL DEFAULT '',
	result      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	changes     INTEGER NOT NULL DEFAULT 0,
	diff        TEXT NOT NULL DEFAULT '',
	snapshot    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS commits_time ON commits(time);
CREATE INDEX IF NOT EXISTS commits_user ON commits(user);
`

// Open creates or opens the commit archive. WAL mode keeps API reads
// from blocking commit writes.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open commit archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open commit archive: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	stmt, err := s.db.Prepare(
		`INSERT INTO commits (time, user, comment, result, duration_ms, changes, diff, snapshot)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	s.insert = stmt
	return nil
}

// RecordCommit implements commit.Recorder. The diff is stored in its
// +/- set-command form, which is both grep-friendly and replayable; the
// snapshot column carries the pre-commit configuration of successful
// commits so rollback survives a daemon restart.
func (s *Store) RecordCommit(ctx context.Context, rec commit.Record) error {
	when := rec.Time
	if when.IsZero() {
		when = time.Now()
	}
	_, err := s.insert.ExecContext(ctx,
		when.UTC().Format(time.RFC3339Nano),
		rec.User,
		rec.Comment,
		rec.Result,
		rec.Duration.Milliseconds(),
		len(rec.Entries),
		diff.SetLines(rec.Entries),
		rec.Snapshot,
	)
	if err != nil {
		return fmt.Errorf("record commit: %w", err)
	}
	return nil
}

// Entry is one archived commit.
type Entry struct {
	ID       int64         `json:"id"`
	Time     time.Time     `json:"time"`
	User     string        `json:"user,omitempty"`
	Comment  string        `json:"comment,omitempty"`
	Result   string        `json:"result"`
	Duration time.Duration `json:"duration"`
	Changes  int           `json:"changes"`
	Diff     string        `json:"diff,omitempty"`
}

const recentDefault = 20

// Recent returns the newest archive entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = recentDefault
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, time, user, comment, result, duration_ms, changes, diff
		 FROM commits ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query commit archive: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByUser returns the newest archive entries recorded for one user.
func (s *Store) ByUser(ctx context.Context, user string, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = recentDefault
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, time, user, comment, result, duration_ms, changes, diff
		 FROM commits WHERE user = ? ORDER BY id DESC LIMIT ?`, user, limit)
	if err != nil {
		return nil, fmt.Errorf("query commit archive: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Successes returns the newest entries that changed the configuration,
// most recent first. Position n in the result is rollback point n+1.
func (s *Store) Successes(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = recentDefault
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, time, user, comment, result, duration_ms, changes, diff
		 FROM commits WHERE snapshot != '' ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query commit archive: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// SnapshotBefore returns the configuration that was running before the
// n-th most recent successful commit, n >= 1. The numbering matches the
// in-memory rollback ring while both cover the same commits, and keeps
// counting past where the ring was truncated or lost to a restart.
func (s *Store) SnapshotBefore(ctx context.Context, n int) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("no such rollback point: %d", n)
	}
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM commits WHERE snapshot != ''
		 ORDER BY id DESC LIMIT 1 OFFSET ?`, n-1).Scan(&text)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no such rollback point: %d", n)
	}
	if err != nil {
		return "", fmt.Errorf("query commit archive: %w", err)
	}
	return text, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			when   string
			millis int64
		)
		if err := rows.Scan(&e.ID, &when, &e.User, &e.Comment, &e.Result, &millis, &e.Changes, &e.Diff); err != nil {
			return nil, fmt.Errorf("scan commit archive row: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, when)
		if err != nil {
			return nil, fmt.Errorf("parse archived time %q: %w", when, err)
		}
		e.Time = t
		e.Duration = time.Duration(millis) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries older than the retention window and reports how
// many were removed.
func (s *Store) Prune(ctx context.Context, keep time.Duration) (int64, error) {
	cutoff := time.Now().Add(-keep).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM commits WHERE time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune commit archive: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}
	return s.db.Close()
}
