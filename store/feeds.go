package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RegisterFeed inserts a feed row for url if one does not exist and
// returns the row id. Registering an already known url is a no-op that
// returns the existing id.
func (s *Store) RegisterFeed(ctx context.Context, sourceID, url, title string) (int64, error) {
	res, err := s.execRetry(ctx,
		`INSERT INTO feeds (source_id, url, title) VALUES (?, ?, ?)
		 ON CONFLICT(url) DO NOTHING`,
		sourceID, url, title)
	if err != nil {
		return 0, fmt.Errorf("register feed %s: %w", url, err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		return id, nil
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM feeds WHERE url = ?`, url).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup feed %s: %w", url, err)
	}
	return id, nil
}

// UpdateFeed refreshes the feed title (when non-empty) and the
// last-updated timestamp.
func (s *Store) UpdateFeed(ctx context.Context, feedID int64, title string) error {
	now := formatTime(time.Now())

	var err error
	if title != "" {
		_, err = s.execRetry(ctx,
			`UPDATE feeds SET title = ?, last_updated = ? WHERE id = ?`,
			title, now, feedID)
	} else {
		_, err = s.execRetry(ctx,
			`UPDATE feeds SET last_updated = ? WHERE id = ?`,
			now, feedID)
	}
	if err != nil {
		return fmt.Errorf("update feed %d: %w", feedID, err)
	}
	return nil
}

// MarkFirstParseDone records that the feed finished its first successful
// ingest cycle.
func (s *Store) MarkFirstParseDone(ctx context.Context, feedID int64) error {
	_, err := s.execRetry(ctx,
		`UPDATE feeds SET first_parse_done = 1 WHERE id = ?`, feedID)
	return err
}

// IsFirstParse reports whether the feed has never completed a successful
// ingest cycle.
func (s *Store) IsFirstParse(ctx context.Context, feedID int64) (bool, error) {
	var done bool
	err := s.db.QueryRowContext(ctx,
		`SELECT first_parse_done FROM feeds WHERE id = ?`, feedID).Scan(&done)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !done, nil
}

// FeedStat is one row of the per-feed operator summary.
type FeedStat struct {
	SourceID     string
	URL          string
	Title        string
	ArticleCount int64
	LastUpdated  time.Time
}

// FeedStats returns per-feed article counts, most productive feeds first.
func (s *Store) FeedStats(ctx context.Context) ([]FeedStat, error) {
	rows, err := s.queryRetry(ctx, `
		SELECT f.source_id, f.url, COALESCE(f.title, ''),
		       COUNT(a.id), COALESCE(f.last_updated, '')
		FROM feeds f
		LEFT JOIN articles a ON a.feed_id = f.source_id
		GROUP BY f.id
		ORDER BY COUNT(a.id) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []FeedStat
	for rows.Next() {
		var st FeedStat
		var lastUpdated string
		if err := rows.Scan(&st.SourceID, &st.URL, &st.Title, &st.ArticleCount, &lastUpdated); err != nil {
			return nil, err
		}
		st.LastUpdated = parseTime(lastUpdated)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
