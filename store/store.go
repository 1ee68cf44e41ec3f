// Package store implements the shared article persistence layer on a
// single SQLite file. The ingestor writes, the notifier reads; cross
// process coordination is left to SQLite's own locking.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is a fixed-width UTC layout so stored timestamps compare
// correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const busyAttempts = 3

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the article store at path and runs the
// schema migration.
func Open(path string, busyTimeout time.Duration, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer; a single connection keeps transactions
	// from tripping over each other inside the process.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS feeds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id TEXT NOT NULL,
			url TEXT UNIQUE NOT NULL,
			title TEXT,
			description TEXT,
			active BOOLEAN DEFAULT 1,
			added_date TEXT DEFAULT CURRENT_TIMESTAMP,
			last_updated TEXT,
			first_parse_done BOOLEAN DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			feed_id TEXT NOT NULL,
			title TEXT NOT NULL,
			link TEXT UNIQUE,
			guid TEXT,
			description TEXT,
			content TEXT,
			author TEXT,
			published_date TEXT,
			added_date TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_articles_added ON articles(added_date);
		CREATE INDEX IF NOT EXISTS idx_articles_feed ON articles(feed_id);
	`)
	if err != nil {
		return err
	}

	return s.ensureArticleColumns()
}

// optionalArticleColumns are the extension columns added after the first
// schema version. Older database files gain them on open, so the store
// stays compatible with files written by previous releases.
var optionalArticleColumns = map[string]string{
	"full_text":         "TEXT DEFAULT ''",
	"category":          "TEXT DEFAULT ''",
	"tags":              "TEXT DEFAULT '[]'",
	"media_attachments": "TEXT DEFAULT '[]'",
	"modification_date": "TEXT",
	"news_id":           "TEXT DEFAULT ''",
	"content_type":      "TEXT DEFAULT ''",
	"newsline":          "TEXT DEFAULT ''",
}

func (s *Store) ensureArticleColumns() error {
	rows, err := s.db.Query(`PRAGMA table_info(articles)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, definition := range optionalArticleColumns {
		if existing[column] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE articles ADD COLUMN %s %s", column, definition)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s: %w", column, err)
		}
		s.logger.Info("added missing article column", "column", column)
	}

	return nil
}

// isBusy reports whether an error is transient SQLite lock contention.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func (s *Store) execRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		res, err = s.db.ExecContext(ctx, query, args...)
		if !isBusy(err) {
			return res, err
		}
		s.logger.Warn("database busy, retrying", "attempt", attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return res, err
}

func (s *Store) queryRetry(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		rows, err = s.db.QueryContext(ctx, query, args...)
		if !isBusy(err) {
			return rows, err
		}
		s.logger.Warn("database busy, retrying", "attempt", attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return rows, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t
	}
	// Older rows may carry CURRENT_TIMESTAMP formatting.
	if t, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
