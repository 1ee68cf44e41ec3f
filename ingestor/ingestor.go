// Package ingestor runs the polling pipeline: governor-gated concurrent
// fetches, normalization and idempotent persistence of articles.
package ingestor

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"rssbus/domain"
	"rssbus/fetcher"
	"rssbus/governor"
	"rssbus/retry"
	"rssbus/store"
)

// ArticleStore is the slice of the store the ingestor writes to.
type ArticleStore interface {
	RegisterFeed(ctx context.Context, sourceID, url, title string) (int64, error)
	UpdateFeed(ctx context.Context, feedID int64, title string) error
	MarkFirstParseDone(ctx context.Context, feedID int64) error
	IsFirstParse(ctx context.Context, feedID int64) (bool, error)
	RecordArticle(ctx context.Context, a *domain.Article) (bool, int64, error)
	Prune(ctx context.Context, olderThanDays int) (int64, error)
	CountArticles(ctx context.Context) (int64, error)
	FeedStats(ctx context.Context) ([]store.FeedStat, error)
}

// FeedFetcher performs one classified fetch of a feed URL.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string, opts fetcher.Options) ([]byte, error)
}

// Normalizer turns raw feed bytes into canonical articles.
type Normalizer interface {
	Normalize(feedID string, body []byte) (string, []domain.Article, error)
}

type Config struct {
	Interval       time.Duration
	MaxConcurrency int64
	PerHostLimit   int64
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

type Ingestor struct {
	store      ArticleStore
	fetcher    FeedFetcher
	normalizer Normalizer
	governor   *governor.Governor
	retrier    *retry.Retrier
	config     Config
	logger     *slog.Logger

	// global caps in-flight fetches across all hosts; hostSems caps
	// fetches per host so one slow origin cannot absorb the whole budget.
	global   *semaphore.Weighted
	hostMu   sync.Mutex
	hostSems map[string]*semaphore.Weighted

	// remedies carries the governor's access recommendation for a feed
	// into its next fetch attempt.
	remedyMu sync.Mutex
	remedies map[string]governor.Remedy
}

func New(store ArticleStore, fetch FeedFetcher, norm Normalizer, gov *governor.Governor, config Config, logger *slog.Logger) *Ingestor {
	retrier := retry.NewRetrier(retry.Config{
		MaxAttempts: config.MaxAttempts,
		BaseDelay:   config.RetryBaseDelay,
	}, isRetryableFetch, logger)

	return &Ingestor{
		store:      store,
		fetcher:    fetch,
		normalizer: norm,
		governor:   gov,
		retrier:    retrier,
		config:     config,
		logger:     logger,
		global:     semaphore.NewWeighted(config.MaxConcurrency),
		hostSems:   make(map[string]*semaphore.Weighted),
		remedies:   make(map[string]governor.Remedy),
	}
}

// isRetryableFetch keeps retrying everything except a permanently
// missing feed.
func isRetryableFetch(err error) bool {
	return domain.ClassifyError(err) != domain.ErrorNotFound
}

// Run polls the feed set until the context is cancelled. The first
// cycle starts immediately; reload tokens are honored between cycles
// only, and a failing reload keeps the previous set.
func (i *Ingestor) Run(ctx context.Context, feeds []domain.Feed, reloadCh <-chan struct{}, reload func() ([]domain.Feed, error)) error {
	ticker := time.NewTicker(i.config.Interval)
	defer ticker.Stop()

	i.Cycle(ctx, feeds)

	for {
		select {
		case <-ctx.Done():
			i.logger.Info("ingestor stopping")
			return ctx.Err()
		case <-reloadCh:
			next, err := reload()
			if err != nil {
				i.logger.Error("sources reload failed, keeping previous configuration", "error", err)
				continue
			}
			feeds = next
			i.logger.Info("sources reloaded", "feeds", len(feeds))
		case <-ticker.C:
			i.Cycle(ctx, feeds)
		}
	}
}

// CycleStats summarizes one ingest pass for the operator log.
type CycleStats struct {
	Feeds    int
	Skipped  int
	Failed   int
	Inserted int
}

// Cycle ingests every feed once, bounded by the global and per-host
// concurrency limits.
func (i *Ingestor) Cycle(ctx context.Context, feeds []domain.Feed) CycleStats {
	start := time.Now()

	var mu sync.Mutex
	stats := CycleStats{Feeds: len(feeds)}

	g, gctx := errgroup.WithContext(ctx)
	for _, feed := range feeds {
		feed := feed
		g.Go(func() error {
			if err := i.global.Acquire(gctx, 1); err != nil {
				return err
			}
			defer i.global.Release(1)

			sem := i.hostSemaphore(feed.URL)
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			inserted, skipped, err := i.ingestFeed(gctx, feed)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case skipped:
				stats.Skipped++
			case err != nil:
				stats.Failed++
			default:
				stats.Inserted += inserted
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		i.logger.Error("ingest cycle aborted", "error", err)
	}

	i.logger.Info("ingest cycle finished",
		"feeds", stats.Feeds,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"new_articles", stats.Inserted,
		"errored_feeds", len(i.governor.Stats()),
		"duration", time.Since(start))

	return stats
}

func (i *Ingestor) ingestFeed(ctx context.Context, feed domain.Feed) (inserted int, skipped bool, err error) {
	if skip, reason := i.governor.ShouldSkip(feed.URL); skip {
		i.logger.Info("skipping feed", "feed", feed.Name, "url", feed.URL, "reason", reason)
		return 0, true, nil
	}

	opts := i.fetchOptions(feed)

	var body []byte
	err = i.retrier.Do(ctx, func() error {
		b, fetchErr := i.fetcher.Fetch(ctx, feed.URL, opts)
		if fetchErr != nil {
			return fetchErr
		}
		body = b
		return nil
	})
	if err != nil {
		i.recordFailure(feed, err)
		return 0, false, err
	}

	title, articles, err := i.normalizer.Normalize(feed.ID, body)
	if err != nil {
		i.recordFailure(feed, err)
		return 0, false, err
	}

	i.governor.Reset(feed.URL)
	i.clearRemedy(feed.URL)

	feedRowID, err := i.store.RegisterFeed(ctx, feed.ID, feed.URL, title)
	if err != nil {
		i.logger.Error("feed registration failed", "feed", feed.Name, "error", err)
		return 0, false, err
	}

	firstParse, err := i.store.IsFirstParse(ctx, feedRowID)
	if err != nil {
		i.logger.Warn("first-parse check failed", "feed", feed.Name, "error", err)
	}

	for idx := range articles {
		ok, _, err := i.store.RecordArticle(ctx, &articles[idx])
		if err != nil {
			i.logger.Error("article insert failed",
				"feed", feed.Name,
				"link", articles[idx].Link,
				"error", err)
			continue
		}
		if ok {
			inserted++
		}
	}

	if err := i.store.UpdateFeed(ctx, feedRowID, title); err != nil {
		i.logger.Warn("feed update failed", "feed", feed.Name, "error", err)
	}
	if firstParse {
		if err := i.store.MarkFirstParseDone(ctx, feedRowID); err != nil {
			i.logger.Warn("first-parse mark failed", "feed", feed.Name, "error", err)
		}
	}

	i.logger.Info("feed ingested",
		"feed", feed.Name,
		"source", feed.ID,
		"entries", len(articles),
		"new_articles", inserted,
		"first_parse", firstParse)

	return inserted, false, nil
}

// recordFailure books the classified error with the governor and, for
// rejection statuses, stashes the recommended remedy for the next fetch.
func (i *Ingestor) recordFailure(feed domain.Feed, err error) {
	kind := domain.ClassifyError(err)
	status := domain.StatusCode(err)

	i.governor.RecordError(feed.URL, feed.Name, kind, status, err.Error())

	if remedy := i.governor.RecommendAlternative(feed.URL, status); remedy != governor.RemedyNone {
		i.remedyMu.Lock()
		i.remedies[feed.URL] = remedy
		i.remedyMu.Unlock()
		i.logger.Info("access remedy scheduled",
			"feed", feed.Name,
			"status", status,
			"remedy", remedy)
	}
}

// fetchOptions applies the feed's static proxy assignment plus whatever
// the governor recommended after the last failure.
func (i *Ingestor) fetchOptions(feed domain.Feed) fetcher.Options {
	opts := fetcher.Options{}
	if feed.ProxyRequired {
		opts.Proxy = feed.Proxy
	}

	i.remedyMu.Lock()
	remedy := i.remedies[feed.URL]
	i.remedyMu.Unlock()

	switch remedy {
	case governor.RemedyUserAgent:
		opts.AlternateUA = true
	case governor.RemedyProxy:
		opts.Proxy = feed.Proxy
	case governor.RemedyBoth:
		opts.AlternateUA = true
		opts.Proxy = feed.Proxy
	}
	return opts
}

func (i *Ingestor) clearRemedy(feedURL string) {
	i.remedyMu.Lock()
	delete(i.remedies, feedURL)
	i.remedyMu.Unlock()
}

// hostSemaphore returns the per-host fetch semaphore, creating it on
// first sight of the host.
func (i *Ingestor) hostSemaphore(feedURL string) *semaphore.Weighted {
	host := feedURL
	if u, err := url.Parse(feedURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	i.hostMu.Lock()
	defer i.hostMu.Unlock()

	sem, ok := i.hostSems[host]
	if !ok {
		sem = semaphore.NewWeighted(i.config.PerHostLimit)
		i.hostSems[host] = sem
	}
	return sem
}

// RunRetention prunes articles past the retention window on a fixed
// period, starting with an immediate pass.
func (i *Ingestor) RunRetention(ctx context.Context, interval time.Duration, olderThanDays int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prune := func() {
		removed, err := i.store.Prune(ctx, olderThanDays)
		if err != nil {
			i.logger.Error("article prune failed", "error", err)
			return
		}
		if removed > 0 {
			i.logger.Info("old articles pruned", "removed", removed, "retention_days", olderThanDays)
		}
		i.logStoreSummary(ctx)
	}

	prune()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// logStoreSummary emits the per-feed operator summary alongside each
// retention pass.
func (i *Ingestor) logStoreSummary(ctx context.Context) {
	total, err := i.store.CountArticles(ctx)
	if err != nil {
		i.logger.Warn("article count failed", "error", err)
		return
	}
	stats, err := i.store.FeedStats(ctx)
	if err != nil {
		i.logger.Warn("feed stats failed", "error", err)
		return
	}

	const topFeeds = 5
	top := stats
	if len(top) > topFeeds {
		top = top[:topFeeds]
	}
	for _, st := range top {
		i.logger.Info("feed stats",
			"source", st.SourceID,
			"title", st.Title,
			"articles", st.ArticleCount,
			"last_updated", st.LastUpdated)
	}
	i.logger.Info("store summary", "feeds", len(stats), "articles", total)
}
