package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"rssbus/domain"
)

// RecordArticle inserts the article if its link is not already present.
// It reports inserted=false without error on a duplicate and returns the
// id of the stored row either way. Articles without a link fall back to
// (feed id, guid) deduplication.
func (s *Store) RecordArticle(ctx context.Context, a *domain.Article) (bool, int64, error) {
	if a.Link == "" {
		var id int64
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM articles WHERE feed_id = ? AND guid = ? AND guid != ''`,
			a.FeedID, a.GUID).Scan(&id)
		if err == nil {
			return false, id, nil
		}
		if err != sql.ErrNoRows {
			return false, 0, fmt.Errorf("lookup article by guid: %w", err)
		}
	}

	tags, err := json.Marshal(tagsOrEmpty(a.Tags))
	if err != nil {
		return false, 0, fmt.Errorf("marshal tags: %w", err)
	}
	media, err := json.Marshal(mediaOrEmpty(a.Media))
	if err != nil {
		return false, 0, fmt.Errorf("marshal media attachments: %w", err)
	}

	addedAt := time.Now()
	var modified any
	if !a.Modified.IsZero() {
		modified = formatTime(a.Modified)
	}
	var link any
	if a.Link != "" {
		link = a.Link
	}

	res, err := s.execRetry(ctx, `
		INSERT INTO articles
			(feed_id, title, link, guid, description, content, full_text,
			 author, published_date, modification_date, category, tags,
			 media_attachments, news_id, content_type, newsline, added_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(link) DO NOTHING`,
		a.FeedID, a.Title, link, a.GUID, a.Description, a.Content, a.FullText,
		a.Author, formatTime(a.Published), modified, a.Category, string(tags),
		string(media), a.NewsID, a.ContentType, a.Newsline, formatTime(addedAt))
	if err != nil {
		return false, 0, fmt.Errorf("record article %q: %w", a.Title, err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return false, 0, err
		}
		return true, id, nil
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM articles WHERE link = ?`, a.Link).Scan(&id)
	if err != nil {
		return false, 0, fmt.Errorf("lookup article %q: %w", a.Link, err)
	}
	return false, id, nil
}

// ArticlesSince returns up to limit articles ingested strictly after
// cutoff, in delivery order: published timestamp first, ingest timestamp
// as the tie breaker.
func (s *Store) ArticlesSince(ctx context.Context, cutoff time.Time, limit int) ([]domain.Article, error) {
	rows, err := s.queryRetry(ctx, `
		SELECT id, feed_id, title, COALESCE(link, ''), COALESCE(guid, ''),
		       COALESCE(description, ''), COALESCE(content, ''),
		       COALESCE(full_text, ''), COALESCE(author, ''),
		       COALESCE(published_date, ''), COALESCE(modification_date, ''),
		       COALESCE(category, ''), COALESCE(tags, '[]'),
		       COALESCE(media_attachments, '[]'), COALESCE(news_id, ''),
		       COALESCE(content_type, ''), COALESCE(newsline, ''), added_date
		FROM articles
		WHERE added_date > ?
		ORDER BY published_date ASC, added_date ASC
		LIMIT ?`,
		formatTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("scan articles since %s: %w", cutoff, err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var a domain.Article
		var published, modified, added, tags, media string
		err := rows.Scan(&a.ID, &a.FeedID, &a.Title, &a.Link, &a.GUID,
			&a.Description, &a.Content, &a.FullText, &a.Author,
			&published, &modified, &a.Category, &tags, &media,
			&a.NewsID, &a.ContentType, &a.Newsline, &added)
		if err != nil {
			return nil, err
		}
		a.Published = parseTime(published)
		a.Modified = parseTime(modified)
		a.AddedAt = parseTime(added)
		if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
			a.Tags = nil
		}
		if err := json.Unmarshal([]byte(media), &a.Media); err != nil {
			a.Media = nil
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// Prune deletes articles ingested more than the given number of days ago
// and returns how many rows went away.
func (s *Store) Prune(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	res, err := s.execRetry(ctx,
		`DELETE FROM articles WHERE added_date < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune articles: %w", err)
	}
	return res.RowsAffected()
}

// CountArticles returns the total number of stored articles.
func (s *Store) CountArticles(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&count)
	return count, err
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func mediaOrEmpty(media []domain.MediaAttachment) []domain.MediaAttachment {
	if media == nil {
		return []domain.MediaAttachment{}
	}
	return media
}
