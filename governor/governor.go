// Package governor tracks per-feed failure history and owns the
// skip-or-attempt decision for the ingest cycle.
package governor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rssbus/domain"
)

const (
	// maxConsecutiveErrors is the circuit-breaker threshold: at or above
	// it a feed enters cooldown.
	maxConsecutiveErrors = 5

	// historyLimit caps the rolling error history kept per feed.
	historyLimit = 10

	maxCooldownMinutes = 60
)

// Remedy is the suggested access remediation for a feed that keeps
// getting rejected.
type Remedy string

const (
	RemedyNone      Remedy = "none"
	RemedyUserAgent Remedy = "user_agent"
	RemedyProxy     Remedy = "proxy"
	RemedyBoth      Remedy = "both"
)

// ErrorDetail is one recorded failure descriptor.
type ErrorDetail struct {
	Timestamp  time.Time
	FeedName   string
	Kind       domain.ErrorKind
	StatusCode int
	Message    string
	Count      int
}

// Governor is the per-feed failure authority. It is safe for concurrent
// use by the fetch workers of a cycle.
type Governor struct {
	mu        sync.Mutex
	counts    map[string]int
	lastError map[string]time.Time
	history   map[string][]ErrorDetail
	logger    *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func New(logger *slog.Logger) *Governor {
	return &Governor{
		counts:    make(map[string]int),
		lastError: make(map[string]time.Time),
		history:   make(map[string][]ErrorDetail),
		logger:    logger,
		now:       time.Now,
	}
}

// RecordError registers a classified failure for the feed URL.
func (g *Governor) RecordError(feedURL, feedName string, kind domain.ErrorKind, statusCode int, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counts[feedURL]++
	g.lastError[feedURL] = g.now()

	detail := ErrorDetail{
		Timestamp:  g.now(),
		FeedName:   feedName,
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
		Count:      g.counts[feedURL],
	}
	history := append(g.history[feedURL], detail)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	g.history[feedURL] = history

	g.logger.Error("feed error recorded",
		"feed", feedName,
		"url", feedURL,
		"kind", kind,
		"status", statusCode,
		"message", message,
		"consecutive_errors", g.counts[feedURL])
}

// Reset clears the failure state after a successful fetch.
func (g *Governor) Reset(feedURL string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := g.counts[feedURL]
	delete(g.counts, feedURL)
	delete(g.lastError, feedURL)

	if count > 0 {
		g.logger.Info("feed recovered", "url", feedURL, "after_errors", count)
	}
}

// ShouldSkip decides whether the feed sits inside its failure cooldown.
// At maxConsecutiveErrors and above the cooldown is min(60, 2^errors)
// minutes from the last failure.
func (g *Governor) ShouldSkip(feedURL string) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := g.counts[feedURL]
	if count < maxConsecutiveErrors {
		return false, ""
	}

	cooldown := cooldownMinutes(count)
	elapsed := g.now().Sub(g.lastError[feedURL])
	if elapsed < time.Duration(cooldown)*time.Minute {
		return true, fmt.Sprintf("cooldown %dm (errors: %d)", cooldown, count)
	}
	return false, ""
}

// RecommendAlternative suggests an access remediation based on the HTTP
// status and accumulated error count. 403 escalates from a user-agent
// swap through proxying to both as errors pile up; 429 and 503 go
// straight to a proxy.
func (g *Governor) RecommendAlternative(feedURL string, statusCode int) Remedy {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch statusCode {
	case 403:
		count := g.counts[feedURL]
		switch {
		case count <= 2:
			return RemedyUserAgent
		case count <= 4:
			return RemedyProxy
		default:
			return RemedyBoth
		}
	case 429, 503:
		return RemedyProxy
	}
	return RemedyNone
}

// ErrorCount returns the consecutive-error count for the feed URL.
func (g *Governor) ErrorCount(feedURL string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[feedURL]
}

// FeedStats is a snapshot of one feed's failure state.
type FeedStats struct {
	ErrorCount int
	LastError  time.Time
	Recent     []ErrorDetail
}

// Stats snapshots the failure state of every feed currently in error,
// for the end-of-cycle operator summary.
func (g *Governor) Stats() map[string]FeedStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := make(map[string]FeedStats, len(g.counts))
	for url, count := range g.counts {
		history := g.history[url]
		recent := make([]ErrorDetail, len(history))
		copy(recent, history)
		stats[url] = FeedStats{
			ErrorCount: count,
			LastError:  g.lastError[url],
			Recent:     recent,
		}
	}
	return stats
}

func cooldownMinutes(errorCount int) int {
	if errorCount >= 6 {
		return maxCooldownMinutes
	}
	cooldown := 1 << errorCount
	if cooldown > maxCooldownMinutes {
		return maxCooldownMinutes
	}
	return cooldown
}
